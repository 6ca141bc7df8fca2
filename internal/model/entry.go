package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Room is an opaque room identifier from the room catalog.
type Room string

// EntryDetail is the reservation and guest data attached to an occupied cell.
type EntryDetail struct {
	GuestName      string     `json:"guestName"`
	GuestPhone     string     `json:"guestPhone"`
	AmountDue      float64    `json:"amountDue"`
	AmountPaid     float64    `json:"amountPaid"`
	PaymentDate    *DateKey   `json:"paymentDate,omitempty"`
	AdultCount     int        `json:"adultCount"`
	ChildCount     int        `json:"childCount"`
	Note           string     `json:"note"`
	ReservationID  string     `json:"reservationId"`
	CreatedAt      *time.Time `json:"createdAt,omitempty"`
	StayStart      DateKey    `json:"stayStart"`
	StayEnd        DateKey    `json:"stayEnd"`
	StayLengthDays int        `json:"stayLengthDays"`
}

// RoomEntry is one room's occupancy on one date. It is either bare (a legacy
// block holding only the room id) or detailed.
type RoomEntry struct {
	Room   Room
	Detail *EntryDetail
}

// Bare builds a legacy, reservation-less entry.
func Bare(room Room) RoomEntry {
	return RoomEntry{Room: room}
}

// Detailed builds an entry carrying reservation data.
func Detailed(room Room, d EntryDetail) RoomEntry {
	return RoomEntry{Room: room, Detail: &d}
}

func (e RoomEntry) IsBare() bool {
	return e.Detail == nil
}

// ReservationID is empty for bare entries.
func (e RoomEntry) ReservationID() string {
	if e.Detail == nil {
		return ""
	}
	return e.Detail.ReservationID
}

type detailedJSON struct {
	Room Room `json:"room"`
	EntryDetail
}

// MarshalJSON writes bare entries as plain strings so legacy readers keep working.
func (e RoomEntry) MarshalJSON() ([]byte, error) {
	if e.Detail == nil {
		return json.Marshal(string(e.Room))
	}
	return json.Marshal(detailedJSON{Room: e.Room, EntryDetail: *e.Detail})
}

// UnmarshalJSON accepts both the legacy string form and the record form.
func (e *RoomEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("decode room entry: empty value")
	}
	if data[0] == '"' {
		var room string
		if err := json.Unmarshal(data, &room); err != nil {
			return fmt.Errorf("decode room entry: %w", err)
		}
		*e = Bare(Room(room))
		return nil
	}
	var d detailedJSON
	if err := json.Unmarshal(data, &d); err != nil {
		return fmt.Errorf("decode room entry: %w", err)
	}
	*e = Detailed(d.Room, d.EntryDetail)
	return nil
}

// NormalizeEntries is applied to every entry list read from the store. Room ids
// are trimmed, blank ids dropped, and a room that appears more than once keeps
// only its last entry, at the position of that last entry.
func NormalizeEntries(entries []RoomEntry) []RoomEntry {
	seen := make(map[Room]struct{}, len(entries))
	out := make([]RoomEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		e.Room = Room(strings.TrimSpace(string(e.Room)))
		if e.Room == "" {
			continue
		}
		if _, dup := seen[e.Room]; dup {
			continue
		}
		seen[e.Room] = struct{}{}
		out = append(out, e)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}
