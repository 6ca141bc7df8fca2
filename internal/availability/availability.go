// Package availability tracks which calendar months are open for booking.
package availability

import (
	"sort"
	"sync"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// Index answers open/closed questions per month. A month with no record is
// open for the operator but closed for customers: customers only see months
// the operator has explicitly opened.
type Index struct {
	mu     sync.RWMutex
	months map[model.YearMonth]model.MonthAvailability
}

func New() *Index {
	return &Index{months: make(map[model.YearMonth]model.MonthAvailability)}
}

// Replace swaps in a complete set of month records.
func (x *Index) Replace(months map[model.YearMonth]model.MonthAvailability) {
	next := make(map[model.YearMonth]model.MonthAvailability, len(months))
	for k, v := range months {
		next[k] = v
	}
	x.mu.Lock()
	x.months = next
	x.mu.Unlock()
}

// IsOpen reports whether ym is open for the given view.
func (x *Index) IsOpen(ym model.YearMonth, view model.View) bool {
	x.mu.RLock()
	m, ok := x.months[ym]
	x.mu.RUnlock()
	if !ok {
		return view != model.CustomerView
	}
	return m.IsOpen
}

// Months returns the stored records sorted by month.
func (x *Index) Months() []model.MonthAvailability {
	x.mu.RLock()
	out := make([]model.MonthAvailability, 0, len(x.months))
	for _, m := range x.months {
		out = append(out, m)
	}
	x.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out
}
