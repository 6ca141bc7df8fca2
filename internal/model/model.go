// Package model defines the core domain types for the room availability calendar.
package model

import (
	"sort"
	"time"
)

// Cell is one (date, room) square of the calendar grid.
type Cell struct {
	Date DateKey `json:"date"`
	Room Room    `json:"room"`
}

// DateRecord holds every occupied room for one date. A record never holds two
// entries for the same room and is deleted rather than stored empty.
type DateRecord struct {
	Date      DateKey     `json:"date"`
	Rooms     []RoomEntry `json:"rooms"`
	Timestamp time.Time   `json:"timestamp"`
	// Version is the store's concurrency token; zero means the record does not exist.
	Version int64 `json:"version"`
}

// Entry returns the entry for room, if any.
func (r DateRecord) Entry(room Room) (RoomEntry, bool) {
	for _, e := range r.Rooms {
		if e.Room == room {
			return e, true
		}
	}
	return RoomEntry{}, false
}

// MonthAvailability is the open/closed flag for one calendar month.
type MonthAvailability struct {
	YearMonth YearMonth `json:"yearMonth"`
	IsOpen    bool      `json:"isOpen"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GuestForm is the operator's working guest data for a commit.
type GuestForm struct {
	GuestName   string   `json:"guestName" validate:"required,max=200"`
	GuestPhone  string   `json:"guestPhone" validate:"required,max=50"`
	AmountDue   float64  `json:"amountDue" validate:"gte=0"`
	AmountPaid  float64  `json:"amountPaid" validate:"gte=0"`
	PaymentDate *DateKey `json:"paymentDate,omitempty"`
	AdultCount  int      `json:"adultCount" validate:"gte=0"`
	ChildCount  int      `json:"childCount" validate:"gte=0"`
	Note        string   `json:"note" validate:"max=2000"`
}

// Reservation is derived from every entry sharing one reservation id.
type Reservation struct {
	ID          string     `json:"id"`
	GuestName   string     `json:"guestName"`
	GuestPhone  string     `json:"guestPhone"`
	AmountDue   float64    `json:"amountDue"`
	AmountPaid  float64    `json:"amountPaid"`
	PaymentDate *DateKey   `json:"paymentDate,omitempty"`
	AdultCount  int        `json:"adultCount"`
	ChildCount  int        `json:"childCount"`
	Note        string     `json:"note"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Rooms       []Room     `json:"rooms"`
	Dates       []DateKey  `json:"bookingDates"`
	// The stay window is derived from Dates: first day, day after the last, count.
	StayStart      DateKey `json:"stayStart"`
	StayEnd        DateKey `json:"stayEnd"`
	StayLengthDays int     `json:"stayLengthDays"`
}

// Outstanding is the unpaid part of the amount due, for display only.
func (r *Reservation) Outstanding() float64 {
	if r.AmountPaid >= r.AmountDue {
		return 0
	}
	return r.AmountDue - r.AmountPaid
}

// StayWindow computes start, end (exclusive) and length from a set of dates.
func StayWindow(dates []DateKey) (start, end DateKey, length int) {
	if len(dates) == 0 {
		return "", "", 0
	}
	uniq := make(map[DateKey]struct{}, len(dates))
	for _, d := range dates {
		uniq[d] = struct{}{}
	}
	sorted := make([]DateKey, 0, len(uniq))
	for d := range uniq {
		sorted = append(sorted, d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	return sorted[0], sorted[len(sorted)-1].AddDays(1), len(sorted)
}

// View selects which audience a calendar query is answered for.
type View string

const (
	OperatorView View = "operator"
	CustomerView View = "customer"
)

// GridDay is one column of the calendar grid.
type GridDay struct {
	Date     DateKey     `json:"date"`
	Open     bool        `json:"open"`
	Occupied []Room      `json:"occupied"`
	Entries  []RoomEntry `json:"entries,omitempty"`
}

// Grid is the occupancy of every catalog room over a date range.
type Grid struct {
	View  View      `json:"view"`
	Rooms []Room    `json:"rooms"`
	Days  []GridDay `json:"days"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string    `json:"error"`
	Applied []DateKey `json:"applied,omitempty"`
	Failed  DateKey   `json:"failed,omitempty"`
	Pending []DateKey `json:"pending,omitempty"`
}
