package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
	"github.com/Shivanand-hulikatti/room-calendar/internal/reservation"
	"github.com/Shivanand-hulikatti/room-calendar/internal/selection"
)

// Session is one operator's working state: the current selection and the
// guest form draft. All methods are safe for concurrent use.
type Session struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`

	cal    *Calendar
	mu     sync.Mutex
	engine *selection.Engine
	draft  model.GuestForm
	rev    uint64 // bumped on every selection or draft change
}

// SelectionState is a point-in-time view of a session's selection.
type SelectionState struct {
	State string          `json:"state"`
	Mode  string          `json:"mode"`
	Cells []model.Cell    `json:"cells"`
	Guest model.GuestForm `json:"guest"`
}

func (s *Session) snapshot() SelectionState {
	cells := s.engine.Cells()
	if cells == nil {
		cells = []model.Cell{}
	}
	return SelectionState{
		State: s.engine.State().String(),
		Mode:  s.engine.Mode().String(),
		Cells: cells,
		Guest: s.draft,
	}
}

// Selection returns the current selection and draft.
func (s *Session) Selection() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// PointerDown starts a drag at c. It reports false when c cannot be selected.
func (s *Session) PointerDown(c model.Cell) (SelectionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.engine.PointerDown(c)
	s.rev++
	return s.snapshot(), ok
}

func (s *Session) PointerEnter(c model.Cell) SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.PointerEnter(c)
	s.rev++
	return s.snapshot()
}

func (s *Session) PointerUp() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.PointerUp()
	s.rev++
	return s.snapshot()
}

// ClearSelection drops every selected cell. The draft is kept.
func (s *Session) ClearSelection() SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine.Clear()
	s.rev++
	return s.snapshot()
}

// SetGuest replaces the guest form draft.
func (s *Session) SetGuest(form model.GuestForm) SelectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = form
	s.rev++
	return s.snapshot()
}

// Commit writes the draft onto the selection. The session stays usable while
// the write runs. On success the selection and draft are cleared unless they
// changed in the meantime; on failure both are kept so the operator can retry.
func (s *Session) Commit(ctx context.Context) (*reservation.Result, error) {
	cells, draft, rev := s.pending()
	res, err := s.cal.commit(ctx, cells, draft)
	if err != nil {
		return nil, err
	}
	s.settle(rev)
	return res, nil
}

// Release frees every selected cell, with the same clearing rule as Commit.
func (s *Session) Release(ctx context.Context) (*reservation.Result, error) {
	cells, _, rev := s.pending()
	res, err := s.cal.release(ctx, cells)
	if err != nil {
		return nil, err
	}
	s.settle(rev)
	return res, nil
}

func (s *Session) pending() ([]model.Cell, model.GuestForm, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Cells(), s.draft, s.rev
}

// settle clears the selection and draft if nothing touched them since rev.
func (s *Session) settle(rev uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != rev {
		return
	}
	s.engine.Clear()
	s.draft = model.GuestForm{}
	s.rev++
}

// Sessions is the registry of open operator sessions.
type Sessions struct {
	cal *Calendar
	now func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewSessions(cal *Calendar) *Sessions {
	return &Sessions{cal: cal, now: cal.now, sessions: make(map[string]*Session)}
}

// Open starts a session with an empty selection.
func (r *Sessions) Open() *Session {
	s := &Session{
		ID:        uuid.NewString(),
		CreatedAt: r.now().UTC(),
		cal:       r.cal,
		engine:    selection.New(r.cal.catalog, r.cal.bookings, selection.WithPolicy(r.cal.policy)),
	}
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
	return s
}

func (r *Sessions) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (r *Sessions) Close(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(r.sessions, id)
	return nil
}

// List returns every open session, oldest first.
func (r *Sessions) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
