// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/room-calendar/internal/export"
	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
	"github.com/Shivanand-hulikatti/room-calendar/internal/reservation"
	"github.com/Shivanand-hulikatti/room-calendar/internal/service"
	"github.com/Shivanand-hulikatti/room-calendar/internal/store"
)

// defaultGridDays is the span of GET /calendar when "to" is omitted.
const defaultGridDays = 35

// CalendarHandler holds all HTTP handlers for the calendar API.
type CalendarHandler struct {
	cal      *service.Calendar
	sessions *service.Sessions
	logger   *logrus.Logger
}

// NewCalendarHandler constructs a CalendarHandler.
func NewCalendarHandler(cal *service.Calendar, sessions *service.Sessions, logger *logrus.Logger) *CalendarHandler {
	return &CalendarHandler{cal: cal, sessions: sessions, logger: logger}
}

// Routes mounts every calendar endpoint on r.
func (h *CalendarHandler) Routes(r chi.Router) {
	r.Get("/rooms", h.ListRooms)
	r.Get("/calendar", h.GetCalendar)

	r.Route("/months", func(r chi.Router) {
		r.Get("/", h.ListMonths)
		r.Put("/{yearMonth}", h.SetMonth)
	})

	r.Route("/reservations", func(r chi.Router) {
		r.Get("/", h.ListReservations)
		r.Get("/export", h.ExportReservations)
		r.Get("/{id}", h.GetReservation)
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", h.OpenSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Delete("/", h.CloseSession)
			r.Get("/selection", h.GetSelection)
			r.Delete("/selection", h.ClearSelection)
			r.Post("/pointer/{action}", h.Pointer)
			r.Put("/guest", h.SetGuest)
			r.Post("/commit", h.Commit)
			r.Post("/release", h.Release)
		})
	})
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps service and writer errors to HTTP statuses.
func (h *CalendarHandler) writeServiceError(w http.ResponseWriter, err error) {
	var (
		invalid *reservation.ValidationError
		partial *reservation.PartialWriteError
	)
	switch {
	case errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound), errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &partial):
		writeJSON(w, http.StatusBadGateway, model.ErrorResponse{
			Error:   err.Error(),
			Applied: partial.Applied,
			Failed:  partial.Failed,
			Pending: partial.Pending,
		})
	default:
		h.logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *CalendarHandler) session(w http.ResponseWriter, r *http.Request) (*service.Session, bool) {
	s, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

// ─── Calendar ─────────────────────────────────────────────────────────────────

// ListRooms handles GET /rooms
func (h *CalendarHandler) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cal.Rooms())
}

// GetCalendar handles GET /calendar?from=&to=&view=
// Returns room occupancy for every date in [from, to]. from defaults to today,
// to to five weeks later, view to customer.
func (h *CalendarHandler) GetCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from := model.DateKey(q.Get("from"))
	if from == "" {
		from = h.cal.Today()
	}
	to := model.DateKey(q.Get("to"))
	if to == "" && from.Valid() {
		to = from.AddDays(defaultGridDays - 1)
	}
	view := model.View(q.Get("view"))
	if view == "" {
		view = model.CustomerView
	}

	grid, err := h.cal.Grid(from, to, view)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grid)
}

// ListMonths handles GET /months
func (h *CalendarHandler) ListMonths(w http.ResponseWriter, r *http.Request) {
	months := h.cal.Months()
	if months == nil {
		months = []model.MonthAvailability{}
	}
	writeJSON(w, http.StatusOK, months)
}

type setMonthRequest struct {
	IsOpen *bool `json:"isOpen"`
}

// SetMonth handles PUT /months/{yearMonth}
func (h *CalendarHandler) SetMonth(w http.ResponseWriter, r *http.Request) {
	var req setMonthRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.IsOpen == nil {
		writeError(w, http.StatusBadRequest, "isOpen is required")
		return
	}

	m, err := h.cal.SetMonthOpen(r.Context(), model.YearMonth(chi.URLParam(r, "yearMonth")), *req.IsOpen)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// ─── Reservations ─────────────────────────────────────────────────────────────

// ListReservations handles GET /reservations
// Returns every reservation, newest first.
func (h *CalendarHandler) ListReservations(w http.ResponseWriter, r *http.Request) {
	list := h.cal.Reservations()
	if list == nil {
		list = []model.Reservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// GetReservation handles GET /reservations/{id}
func (h *CalendarHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res, err := h.cal.Reservation(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "reservation not found")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ExportReservations handles GET /reservations/export
// Streams every reservation as an xlsx workbook.
func (h *CalendarHandler) ExportReservations(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := export.WriteReservations(&buf, h.cal.Reservations()); err != nil {
		h.writeServiceError(w, fmt.Errorf("export reservations: %w", err))
		return
	}
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="reservations.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// ─── Sessions ─────────────────────────────────────────────────────────────────

// OpenSession handles POST /sessions
func (h *CalendarHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusCreated, h.sessions.Open())
}

// CloseSession handles DELETE /sessions/{id}
func (h *CalendarHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSelection handles GET /sessions/{id}/selection
func (h *CalendarHandler) GetSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Selection())
}

// ClearSelection handles DELETE /sessions/{id}/selection
func (h *CalendarHandler) ClearSelection(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ClearSelection())
}

type pointerResponse struct {
	service.SelectionState
	Accepted bool `json:"accepted"`
}

// Pointer handles POST /sessions/{id}/pointer/{down|enter|up}
// down and enter take a {date, room} body; up takes none.
func (h *CalendarHandler) Pointer(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	action := chi.URLParam(r, "action")
	if action == "up" {
		writeJSON(w, http.StatusOK, pointerResponse{SelectionState: s.PointerUp(), Accepted: true})
		return
	}
	if action != "down" && action != "enter" {
		writeError(w, http.StatusNotFound, "unknown pointer action "+action)
		return
	}

	var c model.Cell
	if err := decodeJSON(r, &c); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp := pointerResponse{Accepted: true}
	if action == "down" {
		resp.SelectionState, resp.Accepted = s.PointerDown(c)
	} else {
		resp.SelectionState = s.PointerEnter(c)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SetGuest handles PUT /sessions/{id}/guest
// Replaces the session's guest form draft; validation happens on commit.
func (h *CalendarHandler) SetGuest(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var form model.GuestForm
	if err := decodeJSON(r, &form); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.SetGuest(form))
}

// Commit handles POST /sessions/{id}/commit
// Writes the guest draft onto every selected cell.
func (h *CalendarHandler) Commit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Commit(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Release handles POST /sessions/{id}/release
// Frees every selected cell.
func (h *CalendarHandler) Release(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	res, err := s.Release(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
