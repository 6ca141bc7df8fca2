package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoomEntryDecodesBothShapes(t *testing.T) {
	raw := `["Lopa", {"room": "Kızılbük", "guestName": "Ayşe", "guestPhone": "555",
		"reservationId": "r1", "stayStart": "2026-02-10", "stayEnd": "2026-02-12", "stayLengthDays": 2}]`

	var entries []RoomEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	require.Len(t, entries, 2)

	assert.True(t, entries[0].IsBare())
	assert.Equal(t, Room("Lopa"), entries[0].Room)
	assert.Empty(t, entries[0].ReservationID())

	assert.False(t, entries[1].IsBare())
	assert.Equal(t, Room("Kızılbük"), entries[1].Room)
	assert.Equal(t, "r1", entries[1].ReservationID())
	assert.Equal(t, DateKey("2026-02-12"), entries[1].Detail.StayEnd)
}

func TestRoomEntryEncodesBareAsString(t *testing.T) {
	out, err := json.Marshal([]RoomEntry{Bare("Lopa"), Detailed("İskaroz", EntryDetail{ReservationID: "r2"})})
	require.NoError(t, err)

	var generic []any
	require.NoError(t, json.Unmarshal(out, &generic))
	assert.Equal(t, "Lopa", generic[0])
	obj, ok := generic[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "İskaroz", obj["room"])
	assert.Equal(t, "r2", obj["reservationId"])
}

func TestNormalizeEntriesKeepsLastPerRoom(t *testing.T) {
	in := []RoomEntry{
		Bare("A"),
		Bare(" "),
		Detailed("B", EntryDetail{ReservationID: "old"}),
		Detailed(" B ", EntryDetail{ReservationID: "new"}),
	}
	out := NormalizeEntries(in)
	require.Len(t, out, 2)
	assert.Equal(t, Room("A"), out[0].Room)
	assert.Equal(t, Room("B"), out[1].Room)
	assert.Equal(t, "new", out[1].ReservationID())
}

func TestDateKeyHelpers(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	// Local midnight must not slide to the previous day.
	assert.Equal(t, DateKey("2026-02-10"), NewDateKey(time.Date(2026, 2, 10, 0, 30, 0, 0, loc)))

	d, err := ParseDateKey("2026-02-28")
	require.NoError(t, err)
	assert.Equal(t, DateKey("2026-03-01"), d.AddDays(1))
	assert.Equal(t, YearMonth("2026-02"), d.YearMonth())

	_, err = ParseDateKey("2026-02-30")
	assert.Error(t, err)

	days := DaysBetween("2026-03-02", "2026-02-27")
	assert.Equal(t, []DateKey{"2026-02-27", "2026-02-28", "2026-03-01", "2026-03-02"}, days)
	assert.Equal(t, 4, SpanDays("2026-03-02", "2026-02-27"))
	assert.Equal(t, 1, SpanDays("2026-03-02", "2026-03-02"))
	assert.Equal(t, 366, SpanDays("2028-01-01", "2028-12-31"))
	assert.Equal(t, 2912403, SpanDays("2026-02-10", "9999-12-31"))
}

func TestStayWindow(t *testing.T) {
	start, end, n := StayWindow([]DateKey{"2026-02-11", "2026-02-10", "2026-02-11"})
	assert.Equal(t, DateKey("2026-02-10"), start)
	assert.Equal(t, DateKey("2026-02-12"), end)
	assert.Equal(t, 2, n)

	start, end, n = StayWindow(nil)
	assert.Empty(t, start)
	assert.Empty(t, end)
	assert.Zero(t, n)
}
