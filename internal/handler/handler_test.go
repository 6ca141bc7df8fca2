package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/room-calendar/internal/catalog"
	"github.com/Shivanand-hulikatti/room-calendar/internal/export"
	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
	"github.com/Shivanand-hulikatti/room-calendar/internal/reservation"
	"github.com/Shivanand-hulikatti/room-calendar/internal/service"
	"github.com/Shivanand-hulikatti/room-calendar/internal/store"
)

// flakyBookings fails every Put for one date.
type flakyBookings struct {
	store.BookingStore
	failOn model.DateKey
}

func (f flakyBookings) Put(ctx context.Context, rec model.DateRecord) (model.DateRecord, error) {
	if rec.Date == f.failOn {
		return model.DateRecord{}, &store.WriteError{Op: "put booking", Key: string(rec.Date), Err: errors.New("disk full")}
	}
	return f.BookingStore.Put(ctx, rec)
}

type flakyStore struct {
	*store.Memory
	failOn model.DateKey
}

func (f flakyStore) Bookings() store.BookingStore {
	return flakyBookings{BookingStore: f.Memory.Bookings(), failOn: f.failOn}
}

type fixture struct {
	srv *httptest.Server
	cal *service.Calendar
}

func newFixture(t *testing.T, s store.Store) *fixture {
	t.Helper()
	cat, err := catalog.New([]model.Room{"A", "B", "C"})
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	cal := service.New(s, cat, logger,
		service.WithClock(func() time.Time { return time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC) }),
		service.WithWriterOptions(reservation.WithIDGenerator(func() string { return "res-1" })),
	)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = cal.Run(ctx) }()
	<-cal.Ready()

	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Use(CORS)
	r.Get("/health", HealthCheck)
	NewCalendarHandler(cal, service.NewSessions(cal), logger).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, cal: cal}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// openAndSelect opens a session and drags from one cell to another.
func (f *fixture) openAndSelect(t *testing.T, from, to model.Cell) string {
	t.Helper()
	resp := f.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sess := decode[struct {
		ID string `json:"id"`
	}](t, resp)

	down := decode[pointerResponse](t, f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/pointer/down", from))
	require.True(t, down.Accepted)
	f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/pointer/enter", to)
	f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/pointer/up", nil)
	return sess.ID
}

func TestHealthAndRooms(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	resp := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	rooms := decode[[]model.Room](t, f.do(t, http.MethodGet, "/rooms", nil))
	assert.Equal(t, []model.Room{"A", "B", "C"}, rooms)
}

func TestCommitFlow(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	id := f.openAndSelect(t, model.Cell{Date: "2026-02-10", Room: "A"}, model.Cell{Date: "2026-02-11", Room: "B"})

	sel := decode[service.SelectionState](t, f.do(t, http.MethodGet, "/sessions/"+id+"/selection", nil))
	assert.Len(t, sel.Cells, 4)

	resp := f.do(t, http.MethodPut, "/sessions/"+id+"/guest", model.GuestForm{GuestName: "Ayşe", GuestPhone: "555", AmountDue: 200})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/sessions/"+id+"/commit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[reservation.Result](t, resp)
	assert.Equal(t, "res-1", res.ReservationID)
	assert.Equal(t, []model.DateKey{"2026-02-10", "2026-02-11"}, res.Written)

	require.Eventually(t, func() bool {
		return len(f.cal.ReservationCells("res-1")) == 4
	}, 2*time.Second, 10*time.Millisecond)

	got := decode[model.Reservation](t, f.do(t, http.MethodGet, "/reservations/res-1", nil))
	assert.Equal(t, "Ayşe", got.GuestName)
	assert.Equal(t, 2, got.StayLengthDays)

	list := decode[[]model.Reservation](t, f.do(t, http.MethodGet, "/reservations", nil))
	assert.Len(t, list, 1)

	grid := decode[model.Grid](t, f.do(t, http.MethodGet, "/calendar?from=2026-02-10&to=2026-02-10&view=operator", nil))
	require.Len(t, grid.Days, 1)
	assert.Equal(t, []model.Room{"A", "B"}, grid.Days[0].Occupied)

	resp = f.do(t, http.MethodGet, "/reservations/export", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.ContentType, resp.Header.Get("Content-Type"))

	sel = decode[service.SelectionState](t, f.do(t, http.MethodGet, "/sessions/"+id+"/selection", nil))
	assert.Empty(t, sel.Cells)
}

func TestCommitValidationIs400(t *testing.T) {
	f := newFixture(t, store.NewMemory())
	id := f.openAndSelect(t, model.Cell{Date: "2026-02-10", Room: "A"}, model.Cell{Date: "2026-02-10", Room: "A"})

	resp := f.do(t, http.MethodPost, "/sessions/"+id+"/commit", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decode[model.ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "guestName is required")

	sel := decode[service.SelectionState](t, f.do(t, http.MethodGet, "/sessions/"+id+"/selection", nil))
	assert.Len(t, sel.Cells, 1)
}

func TestPartialWriteIs502(t *testing.T) {
	f := newFixture(t, flakyStore{Memory: store.NewMemory(), failOn: "2026-02-11"})
	id := f.openAndSelect(t, model.Cell{Date: "2026-02-10", Room: "A"}, model.Cell{Date: "2026-02-12", Room: "A"})
	f.do(t, http.MethodPut, "/sessions/"+id+"/guest", model.GuestForm{GuestName: "Ayşe", GuestPhone: "555"})

	resp := f.do(t, http.MethodPost, "/sessions/"+id+"/commit", nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	body := decode[model.ErrorResponse](t, resp)
	assert.Equal(t, []model.DateKey{"2026-02-10"}, body.Applied)
	assert.Equal(t, model.DateKey("2026-02-11"), body.Failed)
	assert.Equal(t, []model.DateKey{"2026-02-12"}, body.Pending)

	sel := decode[service.SelectionState](t, f.do(t, http.MethodGet, "/sessions/"+id+"/selection", nil))
	assert.Len(t, sel.Cells, 3)
	assert.Equal(t, "Ayşe", sel.Guest.GuestName)
}

func TestReleaseFlow(t *testing.T) {
	mem := store.NewMemory()
	_, err := mem.Bookings().Put(context.Background(), model.DateRecord{
		Date:  "2026-02-10",
		Rooms: []model.RoomEntry{model.Bare("A"), model.Bare("B")},
	})
	require.NoError(t, err)
	f := newFixture(t, mem)

	id := f.openAndSelect(t, model.Cell{Date: "2026-02-10", Room: "A"}, model.Cell{Date: "2026-02-10", Room: "A"})
	resp := f.do(t, http.MethodPost, "/sessions/"+id+"/release", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[reservation.Result](t, resp)
	assert.Equal(t, []model.DateKey{"2026-02-10"}, res.Written)

	rec, err := mem.Bookings().Get(context.Background(), "2026-02-10")
	require.NoError(t, err)
	assert.Equal(t, []model.RoomEntry{model.Bare("B")}, rec.Rooms)
}

func TestMonths(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	resp := f.do(t, http.MethodPut, "/months/2026-07", map[string]bool{"isOpen": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	m := decode[model.MonthAvailability](t, resp)
	assert.True(t, m.IsOpen)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/months/2026-07", map[string]string{}).StatusCode)
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodPut, "/months/july", map[string]bool{"isOpen": true}).StatusCode)

	require.Eventually(t, func() bool { return len(f.cal.Months()) == 1 }, 2*time.Second, 10*time.Millisecond)
	months := decode[[]model.MonthAvailability](t, f.do(t, http.MethodGet, "/months", nil))
	require.Len(t, months, 1)
	assert.Equal(t, model.YearMonth("2026-07"), months[0].YearMonth)
}

func TestErrorStatuses(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/calendar?from=2026-02-10&to=2026-02-01", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/reservations/nope", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/sessions/nope/selection", nil).StatusCode)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/sessions/nope", nil).StatusCode)

	resp := f.do(t, http.MethodPost, "/sessions", nil)
	sess := decode[struct {
		ID string `json:"id"`
	}](t, resp)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/pointer/hover", nil).StatusCode)

	down := decode[pointerResponse](t, f.do(t, http.MethodPost, "/sessions/"+sess.ID+"/pointer/down",
		model.Cell{Date: "2026-02-01", Room: "A"}))
	assert.False(t, down.Accepted)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/sessions/"+sess.ID, nil).StatusCode)
}

func TestCalendarDefaults(t *testing.T) {
	f := newFixture(t, store.NewMemory())

	grid := decode[model.Grid](t, f.do(t, http.MethodGet, "/calendar", nil))
	assert.Equal(t, model.CustomerView, grid.View)
	require.Len(t, grid.Days, defaultGridDays)
	assert.Equal(t, model.DateKey("2026-02-05"), grid.Days[0].Date)
}
