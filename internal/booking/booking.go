// Package booking maintains the read-model of occupied rooms per date. The
// index is never patched: each store snapshot replaces it wholesale.
package booking

import (
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/room-calendar/internal/availability"
	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// Index maps dates to their normalized room entries.
type Index struct {
	mu      sync.RWMutex
	records map[model.DateKey]model.DateRecord
	months  *availability.Index
	now     func() time.Time
}

// New builds an empty index. now supplies the current instant; today is the
// calendar day of now() in its own location.
func New(months *availability.Index, now func() time.Time) *Index {
	if now == nil {
		now = time.Now
	}
	return &Index{
		records: make(map[model.DateKey]model.DateRecord),
		months:  months,
		now:     now,
	}
}

// Replace rebuilds the index from a complete snapshot.
func (x *Index) Replace(records map[model.DateKey]model.DateRecord) {
	next := make(map[model.DateKey]model.DateRecord, len(records))
	for date, rec := range records {
		rec.Date = date
		rec.Rooms = model.NormalizeEntries(rec.Rooms)
		if len(rec.Rooms) == 0 {
			continue
		}
		next[date] = rec
	}
	x.mu.Lock()
	x.records = next
	x.mu.Unlock()
}

// EntriesFor returns the entries stored for date in stored order.
func (x *Index) EntriesFor(date model.DateKey) []model.RoomEntry {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[date]
	if !ok {
		return nil
	}
	out := make([]model.RoomEntry, len(rec.Rooms))
	copy(out, rec.Rooms)
	return out
}

// Entry returns the entry for one cell.
func (x *Index) Entry(date model.DateKey, room model.Room) (model.RoomEntry, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	rec, ok := x.records[date]
	if !ok {
		return model.RoomEntry{}, false
	}
	return rec.Entry(room)
}

// Records returns every record sorted by date.
func (x *Index) Records() []model.DateRecord {
	x.mu.RLock()
	out := make([]model.DateRecord, 0, len(x.records))
	for _, rec := range x.records {
		out = append(out, rec)
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

// Today is the current calendar day.
func (x *Index) Today() model.DateKey {
	return model.NewDateKey(x.now())
}

// IsPast reports whether date is strictly before today.
func (x *Index) IsPast(date model.DateKey) bool {
	return date.Before(x.Today())
}

// IsBlocked reports whether a cell may not be selected by the operator. Only
// past days are blocked; closed months stay selectable so they can be pre-blocked.
func (x *Index) IsBlocked(c model.Cell) bool {
	return x.IsPast(c.Date)
}

// IsOccupied reports whether room is unavailable on date for the given view.
// Past days are always occupied. For customers a closed month is occupied too.
func (x *Index) IsOccupied(date model.DateKey, room model.Room, view model.View) bool {
	if x.IsPast(date) {
		return true
	}
	if view == model.CustomerView && x.months != nil && !x.months.IsOpen(date.YearMonth(), view) {
		return true
	}
	_, ok := x.Entry(date, room)
	return ok
}
