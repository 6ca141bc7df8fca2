// Package store defines the persistence contract of the calendar: two keyed
// collections with point operations and a push feed of changes.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when a conditional write sees a version other
// than the one it was based on.
var ErrVersionConflict = errors.New("version conflict")

// ReadError wraps a backend failure on a read.
type ReadError struct {
	Op  string
	Key string
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("store read %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError wraps a backend failure on a write.
type WriteError struct {
	Op  string
	Key string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store write %s %s: %v", e.Op, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SubscriptionError reports a broken change feed. It is never fatal to the
// subscriber: the index stops updating until the feed is re-established.
type SubscriptionError struct {
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("store subscription: %v", e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

// Collection names a keyed collection.
type Collection string

const (
	Bookings          Collection = "bookings"
	MonthAvailability Collection = "monthAvailability"
)

// ChangeKind is the kind of a pushed change.
type ChangeKind string

const (
	Added    ChangeKind = "added"
	Modified ChangeKind = "modified"
	Removed  ChangeKind = "removed"
)

// Change is one pushed record change. Booking or Month is set for added and
// modified changes of the matching collection.
type Change struct {
	Collection Collection
	Kind       ChangeKind
	Key        string
	Booking    *model.DateRecord
	Month      *model.MonthAvailability
}

// Feed is a live subscription. The first batch on Changes is the complete
// current content of both collections; later batches are incremental.
type Feed interface {
	Changes() <-chan []Change
	Errors() <-chan error
	Close() error
}

// BookingStore is the bookings collection, keyed by date.
type BookingStore interface {
	// Get returns ErrNotFound when no record exists for date.
	Get(ctx context.Context, date model.DateKey) (model.DateRecord, error)
	// Put writes rec if the stored version equals rec.Version (zero meaning
	// absent) and returns the record as stored, with its new version.
	Put(ctx context.Context, rec model.DateRecord) (model.DateRecord, error)
	// Delete removes the record if its stored version equals version.
	Delete(ctx context.Context, date model.DateKey, version int64) error
	List(ctx context.Context) ([]model.DateRecord, error)
}

// MonthStore is the monthAvailability collection, keyed by year-month.
type MonthStore interface {
	Get(ctx context.Context, ym model.YearMonth) (model.MonthAvailability, error)
	// Put upserts m; the store assigns UpdatedAt.
	Put(ctx context.Context, m model.MonthAvailability) (model.MonthAvailability, error)
	Delete(ctx context.Context, ym model.YearMonth) error
	List(ctx context.Context) ([]model.MonthAvailability, error)
}

// Store groups both collections and their change feed.
type Store interface {
	Bookings() BookingStore
	Months() MonthStore
	Subscribe(ctx context.Context) (Feed, error)
}

// InitialBatch lists both collections as a batch of added changes.
func InitialBatch(ctx context.Context, s Store) ([]Change, error) {
	recs, err := s.Bookings().List(ctx)
	if err != nil {
		return nil, err
	}
	months, err := s.Months().List(ctx)
	if err != nil {
		return nil, err
	}
	batch := make([]Change, 0, len(recs)+len(months))
	for i := range recs {
		rec := recs[i]
		batch = append(batch, Change{Collection: Bookings, Kind: Added, Key: string(rec.Date), Booking: &rec})
	}
	for i := range months {
		m := months[i]
		batch = append(batch, Change{Collection: MonthAvailability, Kind: Added, Key: string(m.YearMonth), Month: &m})
	}
	return batch, nil
}
