package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

func TestWriteReservations(t *testing.T) {
	created := time.Date(2026, 2, 1, 10, 30, 0, 0, time.UTC)
	paid := model.DateKey("2026-02-02")
	list := []model.Reservation{
		{
			ID: "r1", GuestName: "Ayşe", GuestPhone: "555",
			AmountDue: 300, AmountPaid: 100, PaymentDate: &paid,
			AdultCount: 2, Note: "late arrival", CreatedAt: &created,
			Rooms:     []model.Room{"Lopa", "Ateş"},
			StayStart: "2026-02-10", StayEnd: "2026-02-12", StayLengthDays: 2,
		},
		{ID: "r2", GuestName: "Mehmet", GuestPhone: "556", Rooms: []model.Room{"Lopa"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, list))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, headers, rows[0])

	first := rows[1]
	assert.Equal(t, "r1", first[0])
	assert.Equal(t, "Ayşe", first[1])
	assert.Equal(t, "Lopa, Ateş", first[3])
	assert.Equal(t, "2026-02-10", first[4])
	assert.Equal(t, "2026-02-12", first[5])
	assert.Equal(t, "2", first[6])
	assert.Equal(t, "200", first[11])
	assert.Equal(t, "2026-02-02", first[12])
	assert.Equal(t, "2026-02-01 10:30:00", first[14])

	assert.Equal(t, "r2", rows[2][0])
}

func TestWriteReservationsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReservations(&buf, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
