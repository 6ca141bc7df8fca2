package store

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

var errFeedClosed = errors.New("change feed closed")

// Snapshot is the complete content of both collections at one point of the feed.
type Snapshot struct {
	Bookings map[model.DateKey]model.DateRecord
	Months   map[model.YearMonth]model.MonthAvailability
}

func newSnapshot() Snapshot {
	return Snapshot{
		Bookings: make(map[model.DateKey]model.DateRecord),
		Months:   make(map[model.YearMonth]model.MonthAvailability),
	}
}

func (s Snapshot) clone() Snapshot {
	out := Snapshot{
		Bookings: make(map[model.DateKey]model.DateRecord, len(s.Bookings)),
		Months:   make(map[model.YearMonth]model.MonthAvailability, len(s.Months)),
	}
	for k, v := range s.Bookings {
		out.Bookings[k] = cloneRecord(v)
	}
	for k, v := range s.Months {
		out.Months[k] = v
	}
	return out
}

func (s Snapshot) apply(c Change) {
	switch c.Collection {
	case Bookings:
		key := model.DateKey(c.Key)
		if c.Kind == Removed || c.Booking == nil {
			delete(s.Bookings, key)
			return
		}
		s.Bookings[key] = *c.Booking
	case MonthAvailability:
		key := model.YearMonth(c.Key)
		if c.Kind == Removed || c.Month == nil {
			delete(s.Months, key)
			return
		}
		s.Months[key] = *c.Month
	}
}

// Listen subscribes to s and calls onSnapshot with a fresh, complete Snapshot
// after every delivered batch. Feed failures are passed to onError as a
// *SubscriptionError and the feed is re-established after retryDelay. Listen
// returns only when ctx is done.
func Listen(ctx context.Context, s Store, onSnapshot func(Snapshot), onError func(error), retryDelay time.Duration) error {
	if onError == nil {
		onError = func(error) {}
	}
	for {
		feed, err := s.Subscribe(ctx)
		if err == nil {
			err = consume(ctx, feed, onSnapshot)
			_ = feed.Close()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var subErr *SubscriptionError
		if !errors.As(err, &subErr) {
			err = &SubscriptionError{Err: err}
		}
		onError(err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

func consume(ctx context.Context, feed Feed, onSnapshot func(Snapshot)) error {
	snap := newSnapshot()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-feed.Errors():
			return err
		case batch, ok := <-feed.Changes():
			if !ok {
				return errFeedClosed
			}
			for _, c := range batch {
				snap.apply(c)
			}
			onSnapshot(snap.clone())
		}
	}
}
