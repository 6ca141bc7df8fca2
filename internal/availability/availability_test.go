package availability

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

func TestMissingMonthDefaultsDifferPerView(t *testing.T) {
	x := New()
	assert.True(t, x.IsOpen("2026-07", model.OperatorView))
	assert.False(t, x.IsOpen("2026-07", model.CustomerView))
}

func TestStoredFlagWinsForBothViews(t *testing.T) {
	x := New()
	x.Replace(map[model.YearMonth]model.MonthAvailability{
		"2026-07": {YearMonth: "2026-07", IsOpen: true},
		"2026-08": {YearMonth: "2026-08", IsOpen: false},
	})

	assert.True(t, x.IsOpen("2026-07", model.CustomerView))
	assert.False(t, x.IsOpen("2026-08", model.OperatorView))
	assert.False(t, x.IsOpen("2026-08", model.CustomerView))

	months := x.Months()
	if assert.Len(t, months, 2) {
		assert.Equal(t, model.YearMonth("2026-07"), months[0].YearMonth)
	}
}
