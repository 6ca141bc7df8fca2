package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// Memory is an in-process Store. Every write is pushed to live feeds while the
// write lock is held, so feeds see changes in commit order.
type Memory struct {
	mu       sync.Mutex
	bookings map[model.DateKey]model.DateRecord
	months   map[model.YearMonth]model.MonthAvailability
	feeds    map[*QueueFeed]struct{}
	now      func() time.Time
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		bookings: make(map[model.DateKey]model.DateRecord),
		months:   make(map[model.YearMonth]model.MonthAvailability),
		feeds:    make(map[*QueueFeed]struct{}),
		now:      time.Now,
	}
}

func (m *Memory) Bookings() BookingStore { return memoryBookings{m} }
func (m *Memory) Months() MonthStore     { return memoryMonths{m} }

func (m *Memory) Subscribe(ctx context.Context) (Feed, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var feed *QueueFeed
	feed = NewQueueFeed(func() {
		m.mu.Lock()
		delete(m.feeds, feed)
		m.mu.Unlock()
	})
	batch := make([]Change, 0, len(m.bookings)+len(m.months))
	for _, rec := range m.bookings {
		rec := cloneRecord(rec)
		batch = append(batch, Change{Collection: Bookings, Kind: Added, Key: string(rec.Date), Booking: &rec})
	}
	for _, mo := range m.months {
		mo := mo
		batch = append(batch, Change{Collection: MonthAvailability, Kind: Added, Key: string(mo.YearMonth), Month: &mo})
	}
	feed.PushInitial(batch)
	m.feeds[feed] = struct{}{}
	return feed, nil
}

// broadcast must be called with m.mu held.
func (m *Memory) broadcast(c Change) {
	for f := range m.feeds {
		f.Push([]Change{c})
	}
}

func cloneRecord(rec model.DateRecord) model.DateRecord {
	rooms := make([]model.RoomEntry, len(rec.Rooms))
	copy(rooms, rec.Rooms)
	rec.Rooms = rooms
	return rec
}

type memoryBookings struct{ m *Memory }

func (b memoryBookings) Get(ctx context.Context, date model.DateKey) (model.DateRecord, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	rec, ok := b.m.bookings[date]
	if !ok {
		return model.DateRecord{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (b memoryBookings) Put(ctx context.Context, rec model.DateRecord) (model.DateRecord, error) {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	cur, exists := b.m.bookings[rec.Date]
	if cur.Version != rec.Version {
		return model.DateRecord{}, ErrVersionConflict
	}
	rec = cloneRecord(rec)
	rec.Version = cur.Version + 1
	rec.Timestamp = b.m.now().UTC()
	b.m.bookings[rec.Date] = rec

	kind := Added
	if exists {
		kind = Modified
	}
	pushed := cloneRecord(rec)
	b.m.broadcast(Change{Collection: Bookings, Kind: kind, Key: string(rec.Date), Booking: &pushed})
	return cloneRecord(rec), nil
}

func (b memoryBookings) Delete(ctx context.Context, date model.DateKey, version int64) error {
	b.m.mu.Lock()
	defer b.m.mu.Unlock()
	cur, ok := b.m.bookings[date]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != version {
		return ErrVersionConflict
	}
	delete(b.m.bookings, date)
	b.m.broadcast(Change{Collection: Bookings, Kind: Removed, Key: string(date)})
	return nil
}

func (b memoryBookings) List(ctx context.Context) ([]model.DateRecord, error) {
	b.m.mu.Lock()
	out := make([]model.DateRecord, 0, len(b.m.bookings))
	for _, rec := range b.m.bookings {
		out = append(out, cloneRecord(rec))
	}
	b.m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type memoryMonths struct{ m *Memory }

func (s memoryMonths) Get(ctx context.Context, ym model.YearMonth) (model.MonthAvailability, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	mo, ok := s.m.months[ym]
	if !ok {
		return model.MonthAvailability{}, ErrNotFound
	}
	return mo, nil
}

func (s memoryMonths) Put(ctx context.Context, mo model.MonthAvailability) (model.MonthAvailability, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	_, exists := s.m.months[mo.YearMonth]
	mo.UpdatedAt = s.m.now().UTC()
	s.m.months[mo.YearMonth] = mo

	kind := Added
	if exists {
		kind = Modified
	}
	pushed := mo
	s.m.broadcast(Change{Collection: MonthAvailability, Kind: kind, Key: string(mo.YearMonth), Month: &pushed})
	return mo, nil
}

func (s memoryMonths) Delete(ctx context.Context, ym model.YearMonth) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if _, ok := s.m.months[ym]; !ok {
		return ErrNotFound
	}
	delete(s.m.months, ym)
	s.m.broadcast(Change{Collection: MonthAvailability, Kind: Removed, Key: string(ym)})
	return nil
}

func (s memoryMonths) List(ctx context.Context) ([]model.MonthAvailability, error) {
	s.m.mu.Lock()
	out := make([]model.MonthAvailability, 0, len(s.m.months))
	for _, mo := range s.m.months {
		out = append(out, mo)
	}
	s.m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, nil
}
