package store

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// Breaker guards the point operations of a Store with a circuit breaker so a
// failing backend is not hammered by retries. Not-found and version conflicts
// are normal outcomes and do not count as failures.
type Breaker struct {
	inner Store
	cb    *gobreaker.CircuitBreaker
}

// WithBreaker wraps s. The breaker opens after three consecutive backend
// failures and lets a single trial request through after ten seconds.
func WithBreaker(s Store, logger *logrus.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        "store",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 2
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrNotFound) ||
				errors.Is(err, ErrVersionConflict) ||
				errors.Is(err, context.Canceled)
		},
	}
	return &Breaker{inner: s, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaker) Bookings() BookingStore { return breakerBookings{b} }
func (b *Breaker) Months() MonthStore     { return breakerMonths{b} }

func (b *Breaker) Subscribe(ctx context.Context) (Feed, error) {
	return b.inner.Subscribe(ctx)
}

// State exposes the breaker state for health reporting.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

func execute[T any](b *Breaker, fn func() (T, error)) (T, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if v, ok := out.(T); ok {
			zero = v
		}
		return zero, err
	}
	return out.(T), nil
}

type breakerBookings struct{ b *Breaker }

func (s breakerBookings) Get(ctx context.Context, date model.DateKey) (model.DateRecord, error) {
	return execute(s.b, func() (model.DateRecord, error) { return s.b.inner.Bookings().Get(ctx, date) })
}

func (s breakerBookings) Put(ctx context.Context, rec model.DateRecord) (model.DateRecord, error) {
	return execute(s.b, func() (model.DateRecord, error) { return s.b.inner.Bookings().Put(ctx, rec) })
}

func (s breakerBookings) Delete(ctx context.Context, date model.DateKey, version int64) error {
	_, err := execute(s.b, func() (struct{}, error) {
		return struct{}{}, s.b.inner.Bookings().Delete(ctx, date, version)
	})
	return err
}

func (s breakerBookings) List(ctx context.Context) ([]model.DateRecord, error) {
	return execute(s.b, func() ([]model.DateRecord, error) { return s.b.inner.Bookings().List(ctx) })
}

type breakerMonths struct{ b *Breaker }

func (s breakerMonths) Get(ctx context.Context, ym model.YearMonth) (model.MonthAvailability, error) {
	return execute(s.b, func() (model.MonthAvailability, error) { return s.b.inner.Months().Get(ctx, ym) })
}

func (s breakerMonths) Put(ctx context.Context, m model.MonthAvailability) (model.MonthAvailability, error) {
	return execute(s.b, func() (model.MonthAvailability, error) { return s.b.inner.Months().Put(ctx, m) })
}

func (s breakerMonths) Delete(ctx context.Context, ym model.YearMonth) error {
	_, err := execute(s.b, func() (struct{}, error) {
		return struct{}{}, s.b.inner.Months().Delete(ctx, ym)
	})
	return err
}

func (s breakerMonths) List(ctx context.Context) ([]model.MonthAvailability, error) {
	return execute(s.b, func() ([]model.MonthAvailability, error) { return s.b.inner.Months().List(ctx) })
}
