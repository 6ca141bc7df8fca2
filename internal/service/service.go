// Package service owns the live calendar state and orchestrates the operations
// the HTTP handlers expose: queries over the indexes, month flags, and the
// operator sessions that select cells and commit or release them.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Shivanand-hulikatti/room-calendar/internal/availability"
	"github.com/Shivanand-hulikatti/room-calendar/internal/booking"
	"github.com/Shivanand-hulikatti/room-calendar/internal/catalog"
	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
	"github.com/Shivanand-hulikatti/room-calendar/internal/reservation"
	"github.com/Shivanand-hulikatti/room-calendar/internal/selection"
	"github.com/Shivanand-hulikatti/room-calendar/internal/store"
)

// ErrNotFound is returned when a requested reservation or session does not exist.
var ErrNotFound = errors.New("not found")

// ErrBusy is returned when a commit or release touches cells that another
// commit or release is still writing.
var ErrBusy = errors.New("cells are being written by another operation")

// maxGridDays bounds a single calendar query.
const maxGridDays = selection.MaxSpanDays

// Calendar is the single owner of the read-model. Every store snapshot
// replaces the availability and booking indexes and the reservation aggregate.
type Calendar struct {
	store      store.Store
	catalog    *catalog.Catalog
	months     *availability.Index
	bookings   *booking.Index
	aggregate  atomic.Pointer[reservation.Aggregate]
	writer     *reservation.Writer
	logger     *logrus.Logger
	tracer     trace.Tracer
	policy     selection.Policy
	retryDelay time.Duration

	now        func() time.Time
	writerOpts []reservation.WriterOption

	mu       sync.Mutex
	inflight map[model.Cell]struct{}

	ready     chan struct{}
	readyOnce sync.Once
}

// Option configures a Calendar.
type Option func(*Calendar)

func WithTracer(t trace.Tracer) Option {
	return func(c *Calendar) { c.tracer = t }
}

// WithClock sets the clock used for "today" and for reservation timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Calendar) { c.now = now }
}

func WithDragPolicy(p selection.Policy) Option {
	return func(c *Calendar) { c.policy = p }
}

func WithResubscribeDelay(d time.Duration) Option {
	return func(c *Calendar) { c.retryDelay = d }
}

// WithWriterOptions passes options through to the reservation writer.
func WithWriterOptions(opts ...reservation.WriterOption) Option {
	return func(c *Calendar) { c.writerOpts = append(c.writerOpts, opts...) }
}

// New constructs a Calendar over s. Call Run to start following the store.
func New(s store.Store, cat *catalog.Catalog, logger *logrus.Logger, opts ...Option) *Calendar {
	c := &Calendar{
		store:      s,
		catalog:    cat,
		logger:     logger,
		tracer:     trace.NewNoopTracerProvider().Tracer(""),
		policy:     selection.Accumulate,
		retryDelay: 2 * time.Second,
		now:        time.Now,
		inflight:   make(map[model.Cell]struct{}),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.months = availability.New()
	c.bookings = booking.New(c.months, c.now)
	c.writer = reservation.NewWriter(s.Bookings(), cat,
		append([]reservation.WriterOption{reservation.WithClock(c.now)}, c.writerOpts...)...)
	c.aggregate.Store(reservation.Build(nil, cat))
	return c
}

// Run follows the store until ctx is done. Feed failures are logged and the
// subscription is re-established; the indexes keep serving the last snapshot.
func (c *Calendar) Run(ctx context.Context) error {
	return store.Listen(ctx, c.store, c.apply, func(err error) {
		c.logger.WithError(err).Error("calendar subscription failed, resubscribing")
	}, c.retryDelay)
}

// Ready is closed once the first snapshot has been applied.
func (c *Calendar) Ready() <-chan struct{} { return c.ready }

func (c *Calendar) apply(snap store.Snapshot) {
	c.months.Replace(snap.Months)
	c.bookings.Replace(snap.Bookings)
	agg := reservation.Build(c.bookings.Records(), c.catalog)
	c.aggregate.Store(agg)
	c.readyOnce.Do(func() { close(c.ready) })

	c.logger.WithFields(logrus.Fields{
		"dates":        len(snap.Bookings),
		"months":       len(snap.Months),
		"reservations": agg.Len(),
	}).Debug("calendar snapshot applied")
}

// Rooms returns the room catalog in display order.
func (c *Calendar) Rooms() []model.Room {
	return c.catalog.Rooms()
}

// Catalog returns the room catalog.
func (c *Calendar) Catalog() *catalog.Catalog {
	return c.catalog
}

// Today is the current calendar day.
func (c *Calendar) Today() model.DateKey {
	return c.bookings.Today()
}

// Months returns every stored month flag.
func (c *Calendar) Months() []model.MonthAvailability {
	return c.months.Months()
}

// IsOccupied reports whether room is unavailable on date for view.
func (c *Calendar) IsOccupied(date model.DateKey, room model.Room, view model.View) bool {
	return c.bookings.IsOccupied(date, room, view)
}

// Grid returns the occupancy of every room over [from, to]. Entries are only
// included for the operator view.
func (c *Calendar) Grid(from, to model.DateKey, view model.View) (model.Grid, error) {
	var problems []string
	if !from.Valid() {
		problems = append(problems, fmt.Sprintf("invalid from date %q", from))
	}
	if !to.Valid() {
		problems = append(problems, fmt.Sprintf("invalid to date %q", to))
	}
	if view != model.OperatorView && view != model.CustomerView {
		problems = append(problems, fmt.Sprintf("unknown view %q", view))
	}
	if len(problems) == 0 {
		if to.Before(from) {
			problems = append(problems, "to must not be before from")
		} else if n := model.SpanDays(from, to); n > maxGridDays {
			problems = append(problems, fmt.Sprintf("range spans %d days, at most %d allowed", n, maxGridDays))
		}
	}
	if len(problems) > 0 {
		return model.Grid{}, &reservation.ValidationError{Problems: problems}
	}

	rooms := c.catalog.Rooms()
	days := model.DaysBetween(from, to)
	grid := model.Grid{View: view, Rooms: rooms, Days: make([]model.GridDay, 0, len(days))}
	for _, d := range days {
		day := model.GridDay{
			Date:     d,
			Open:     c.months.IsOpen(d.YearMonth(), view),
			Occupied: []model.Room{},
		}
		for _, r := range rooms {
			if c.bookings.IsOccupied(d, r, view) {
				day.Occupied = append(day.Occupied, r)
			}
		}
		if view == model.OperatorView {
			day.Entries = c.bookings.EntriesFor(d)
		}
		grid.Days = append(grid.Days, day)
	}
	return grid, nil
}

// Reservations returns every reservation, newest first.
func (c *Calendar) Reservations() []model.Reservation {
	return c.aggregate.Load().List()
}

// Reservation returns one reservation by id.
func (c *Calendar) Reservation(id string) (model.Reservation, error) {
	res, ok := c.aggregate.Load().Get(id)
	if !ok {
		return model.Reservation{}, ErrNotFound
	}
	return res, nil
}

// ReservationCells returns every cell held by reservation id.
func (c *Calendar) ReservationCells(id string) []model.Cell {
	return c.aggregate.Load().CellsFor(id)
}

// SetMonthOpen writes the open flag of one month.
func (c *Calendar) SetMonthOpen(ctx context.Context, ym model.YearMonth, open bool) (model.MonthAvailability, error) {
	ctx, span := c.tracer.Start(ctx, "calendar.SetMonthOpen", trace.WithAttributes(
		attribute.String("month", string(ym)),
		attribute.Bool("open", open),
	))
	defer span.End()

	if _, err := model.ParseYearMonth(string(ym)); err != nil {
		return model.MonthAvailability{}, &reservation.ValidationError{Problems: []string{err.Error()}}
	}
	m, err := c.store.Months().Put(ctx, model.MonthAvailability{YearMonth: ym, IsOpen: open})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return model.MonthAvailability{}, fmt.Errorf("set month %s: %w", ym, err)
	}
	c.logger.WithFields(logrus.Fields{"month": ym, "open": open}).Info("month availability updated")
	return m, nil
}

// claim marks cells as in flight, or fails with ErrBusy if any of them already is.
func (c *Calendar) claim(cells []model.Cell) (func(), error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cell := range cells {
		if _, ok := c.inflight[cell]; ok {
			return nil, ErrBusy
		}
	}
	for _, cell := range cells {
		c.inflight[cell] = struct{}{}
	}
	return func() {
		c.mu.Lock()
		for _, cell := range cells {
			delete(c.inflight, cell)
		}
		c.mu.Unlock()
	}, nil
}

func (c *Calendar) commit(ctx context.Context, cells []model.Cell, form model.GuestForm) (*reservation.Result, error) {
	ctx, span := c.tracer.Start(ctx, "calendar.Commit", trace.WithAttributes(attribute.Int("cells", len(cells))))
	defer span.End()

	// The guard covers every cell the commit rewrites, including the rest of
	// the reservation it updates.
	agg := c.aggregate.Load()
	_, affected := c.writer.Plan(agg, cells)
	release, err := c.claim(affected)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := c.writer.Commit(ctx, agg, cells, form)
	if err != nil {
		c.fail(span, "commit", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation.id", res.ReservationID))
	c.logger.WithFields(logrus.Fields{
		"reservation": res.ReservationID,
		"dates":       len(res.Written),
		"cells":       len(res.Cells),
	}).Info("reservation committed")
	return res, nil
}

func (c *Calendar) release(ctx context.Context, cells []model.Cell) (*reservation.Result, error) {
	ctx, span := c.tracer.Start(ctx, "calendar.Release", trace.WithAttributes(attribute.Int("cells", len(cells))))
	defer span.End()

	release, err := c.claim(cells)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := c.writer.Release(ctx, cells)
	if err != nil {
		c.fail(span, "release", err)
		return nil, err
	}
	c.logger.WithFields(logrus.Fields{
		"written": len(res.Written),
		"deleted": len(res.Deleted),
		"cells":   len(res.Cells),
	}).Info("cells released")
	return res, nil
}

func (c *Calendar) fail(span trace.Span, op string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	entry := c.logger.WithError(err).WithField("op", op)
	var partial *reservation.PartialWriteError
	var invalid *reservation.ValidationError
	switch {
	case errors.As(err, &invalid):
		entry.Debug("rejected invalid request")
	case errors.As(err, &partial):
		entry.WithFields(logrus.Fields{
			"applied": partial.Applied,
			"failed":  partial.Failed,
			"pending": partial.Pending,
		}).Error("write stopped partway")
	default:
		entry.Error("write failed")
	}
}
