// Package reservation groups per-date room entries into reservations and
// writes operator selections back to the bookings store.
package reservation

import (
	"sort"

	"github.com/Shivanand-hulikatti/room-calendar/internal/catalog"
	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// Aggregate is an immutable view of every reservation in one booking snapshot.
type Aggregate struct {
	catalog      *catalog.Catalog
	byID         map[string]*model.Reservation
	cells        map[string][]model.Cell
	ordered      []model.Reservation
	reservations map[model.Cell]string
}

// Build folds every detailed entry carrying a reservation id into one
// Reservation per id. Rooms and dates are deduplicated; guest and payment
// fields come from the first entry seen, in date order.
func Build(records []model.DateRecord, cat *catalog.Catalog) *Aggregate {
	sorted := make([]model.DateRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	a := &Aggregate{
		catalog:      cat,
		byID:         make(map[string]*model.Reservation),
		cells:        make(map[string][]model.Cell),
		reservations: make(map[model.Cell]string),
	}
	for _, rec := range sorted {
		for _, e := range model.NormalizeEntries(rec.Rooms) {
			id := e.ReservationID()
			if id == "" {
				continue
			}
			res, ok := a.byID[id]
			if !ok {
				d := e.Detail
				res = &model.Reservation{
					ID:          id,
					GuestName:   d.GuestName,
					GuestPhone:  d.GuestPhone,
					AmountDue:   d.AmountDue,
					AmountPaid:  d.AmountPaid,
					PaymentDate: d.PaymentDate,
					AdultCount:  d.AdultCount,
					ChildCount:  d.ChildCount,
					Note:        d.Note,
					CreatedAt:   d.CreatedAt,
				}
				a.byID[id] = res
			}
			if !containsRoom(res.Rooms, e.Room) {
				res.Rooms = append(res.Rooms, e.Room)
			}
			if n := len(res.Dates); n == 0 || res.Dates[n-1] != rec.Date {
				res.Dates = append(res.Dates, rec.Date)
			}
			cell := model.Cell{Date: rec.Date, Room: e.Room}
			a.cells[id] = append(a.cells[id], cell)
			a.reservations[cell] = id
		}
	}

	a.ordered = make([]model.Reservation, 0, len(a.byID))
	for id, res := range a.byID {
		cat.SortRooms(res.Rooms)
		res.StayStart, res.StayEnd, res.StayLengthDays = model.StayWindow(res.Dates)
		cat.SortCells(a.cells[id])
		a.ordered = append(a.ordered, *res)
	}
	sort.Slice(a.ordered, func(i, j int) bool {
		return newerFirst(a.ordered[i], a.ordered[j])
	})
	return a
}

// newerFirst orders by createdAt descending; reservations without a creation
// time go last, and ties fall back to the id.
func newerFirst(a, b model.Reservation) bool {
	switch {
	case a.CreatedAt != nil && b.CreatedAt != nil:
		if !a.CreatedAt.Equal(*b.CreatedAt) {
			return a.CreatedAt.After(*b.CreatedAt)
		}
	case a.CreatedAt != nil:
		return true
	case b.CreatedAt != nil:
		return false
	}
	return a.ID < b.ID
}

func containsRoom(rooms []model.Room, r model.Room) bool {
	for _, x := range rooms {
		if x == r {
			return true
		}
	}
	return false
}

// List returns every reservation, most recently created first.
func (a *Aggregate) List() []model.Reservation {
	out := make([]model.Reservation, len(a.ordered))
	copy(out, a.ordered)
	return out
}

func (a *Aggregate) Len() int {
	return len(a.ordered)
}

// Get returns one reservation by id.
func (a *Aggregate) Get(id string) (model.Reservation, bool) {
	res, ok := a.byID[id]
	if !ok {
		return model.Reservation{}, false
	}
	return *res, true
}

// CellsFor returns every cell of a reservation sorted by date, then catalog
// order. Editing a reservation through a subset of its cells expands to this set.
func (a *Aggregate) CellsFor(id string) []model.Cell {
	cells := a.cells[id]
	out := make([]model.Cell, len(cells))
	copy(out, cells)
	return out
}

// ReservationAt returns the id of the reservation occupying c.
func (a *Aggregate) ReservationAt(c model.Cell) (string, bool) {
	id, ok := a.reservations[c]
	return id, ok
}
