package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

func record(date string, rooms ...model.Room) model.DateRecord {
	rec := model.DateRecord{Date: model.DateKey(date)}
	for _, r := range rooms {
		rec.Rooms = append(rec.Rooms, model.Bare(r))
	}
	return rec
}

func TestMemoryConditionalWrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemory().Bookings()

	_, err := s.Get(ctx, "2026-02-10")
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := s.Put(ctx, record("2026-02-10", "Lopa"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	assert.False(t, stored.Timestamp.IsZero())

	// A writer still holding version 0 lost the race.
	_, err = s.Put(ctx, record("2026-02-10", "İskaroz"))
	assert.ErrorIs(t, err, ErrVersionConflict)

	stored.Rooms = append(stored.Rooms, model.Bare("İskaroz"))
	stored, err = s.Put(ctx, stored)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)

	assert.ErrorIs(t, s.Delete(ctx, "2026-02-10", 1), ErrVersionConflict)
	require.NoError(t, s.Delete(ctx, "2026-02-10", 2))
	assert.ErrorIs(t, s.Delete(ctx, "2026-02-10", 2), ErrNotFound)
}

func TestMemoryMonthsUpsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemory().Months()

	m, err := s.Put(ctx, model.MonthAvailability{YearMonth: "2026-07", IsOpen: true})
	require.NoError(t, err)
	assert.False(t, m.UpdatedAt.IsZero())

	_, err = s.Put(ctx, model.MonthAvailability{YearMonth: "2026-07", IsOpen: false})
	require.NoError(t, err)
	got, err := s.Get(ctx, "2026-07")
	require.NoError(t, err)
	assert.False(t, got.IsOpen)

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

type snapshots struct {
	mu   sync.Mutex
	list []Snapshot
}

func (s *snapshots) add(snap Snapshot) {
	s.mu.Lock()
	s.list = append(s.list, snap)
	s.mu.Unlock()
}

func (s *snapshots) last() (Snapshot, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.list) == 0 {
		return Snapshot{}, 0
	}
	return s.list[len(s.list)-1], len(s.list)
}

func TestListenDeliversFullSnapshots(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := NewMemory()
	_, err := mem.Bookings().Put(ctx, record("2026-02-10", "Lopa"))
	require.NoError(t, err)

	var got snapshots
	done := make(chan error, 1)
	go func() { done <- Listen(ctx, mem, got.add, nil, time.Millisecond) }()

	require.Eventually(t, func() bool {
		snap, n := got.last()
		return n == 1 && len(snap.Bookings) == 1
	}, time.Second, 5*time.Millisecond)

	_, err = mem.Bookings().Put(ctx, record("2026-02-11", "Lopa"))
	require.NoError(t, err)
	cur, err := mem.Bookings().Get(ctx, "2026-02-10")
	require.NoError(t, err)
	require.NoError(t, mem.Bookings().Delete(ctx, "2026-02-10", cur.Version))
	_, err = mem.Months().Put(ctx, model.MonthAvailability{YearMonth: "2026-02", IsOpen: true})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snap, _ := got.last()
		_, has10 := snap.Bookings["2026-02-10"]
		_, has11 := snap.Bookings["2026-02-11"]
		return !has10 && has11 && len(snap.Months) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

// flakyStore fails its first subscription and then behaves like its Memory.
type flakyStore struct {
	*Memory
	mu    sync.Mutex
	calls int
}

func (f *flakyStore) Subscribe(ctx context.Context) (Feed, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == 1 {
		return nil, errors.New("connection refused")
	}
	return f.Memory.Subscribe(ctx)
}

func TestListenReportsAndResubscribes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &flakyStore{Memory: NewMemory()}
	var got snapshots
	errs := make(chan error, 4)
	go func() {
		_ = Listen(ctx, s, got.add, func(err error) { errs <- err }, time.Millisecond)
	}()

	select {
	case err := <-errs:
		var subErr *SubscriptionError
		assert.ErrorAs(t, err, &subErr)
		assert.ErrorContains(t, err, "connection refused")
	case <-time.After(time.Second):
		t.Fatal("subscription error not reported")
	}

	require.Eventually(t, func() bool {
		_, n := got.last()
		return n >= 1
	}, time.Second, 5*time.Millisecond)
}

type failingStore struct{ *Memory }

func (f failingStore) Bookings() BookingStore { return failingBookings{} }

type failingBookings struct{ BookingStore }

func (failingBookings) Get(context.Context, model.DateKey) (model.DateRecord, error) {
	return model.DateRecord{}, &ReadError{Op: "get", Key: "x", Err: errors.New("boom")}
}

func TestBreakerOpensOnBackendFailures(t *testing.T) {
	ctx := context.Background()
	logger := logrus.New()
	b := WithBreaker(failingStore{NewMemory()}, logger)

	for i := 0; i < 3; i++ {
		_, err := b.Bookings().Get(ctx, "2026-02-10")
		var readErr *ReadError
		require.ErrorAs(t, err, &readErr)
	}
	assert.Equal(t, gobreaker.StateOpen, b.State())

	_, err := b.Bookings().Get(ctx, "2026-02-10")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestBreakerIgnoresNotFound(t *testing.T) {
	ctx := context.Background()
	b := WithBreaker(NewMemory(), logrus.New())
	for i := 0; i < 5; i++ {
		_, err := b.Bookings().Get(ctx, "2026-02-10")
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, gobreaker.StateClosed, b.State())
}
