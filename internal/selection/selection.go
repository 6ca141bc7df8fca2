// Package selection implements the operator's drag selection over the
// (date, room) grid.
package selection

import (
	"github.com/Shivanand-hulikatti/room-calendar/internal/catalog"
	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// State of the pointer gesture.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	if s == Dragging {
		return "dragging"
	}
	return "idle"
}

// Mode is fixed at pointer-down for the whole drag.
type Mode int

const (
	ModeNone Mode = iota
	ModeAdd
	ModeRemove
)

func (m Mode) String() string {
	switch m {
	case ModeAdd:
		return "add"
	case ModeRemove:
		return "remove"
	default:
		return "none"
	}
}

// Policy decides what happens to cells a drag rectangle stops covering.
type Policy int

const (
	// Accumulate keeps every cell touched by any rectangle of the drag.
	Accumulate Policy = iota
	// Replace recomputes the drag's effect from the pre-drag selection on
	// every move, so only the current rectangle counts.
	Replace
)

// ParsePolicy maps "replace" to Replace and anything else to Accumulate.
func ParsePolicy(s string) Policy {
	if s == "replace" {
		return Replace
	}
	return Accumulate
}

// MaxSpanDays bounds the dates one drag rectangle can cover.
const MaxSpanDays = 366

// Blocker reports cells that cannot be selected.
type Blocker interface {
	IsBlocked(c model.Cell) bool
}

// Engine is not safe for concurrent use; its owner serializes access.
type Engine struct {
	catalog  *catalog.Catalog
	blocker  Blocker
	policy   Policy
	selected map[model.Cell]struct{}

	state  State
	mode   Mode
	anchor model.Cell
	base   map[model.Cell]struct{}
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the drag policy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) { e.policy = p }
}

func New(cat *catalog.Catalog, blocker Blocker, opts ...Option) *Engine {
	e := &Engine{
		catalog:  cat,
		blocker:  blocker,
		selected: make(map[model.Cell]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) State() State { return e.state }
func (e *Engine) Mode() Mode   { return e.mode }
func (e *Engine) Len() int     { return len(e.selected) }

func (e *Engine) Contains(c model.Cell) bool {
	_, ok := e.selected[c]
	return ok
}

// Cells returns the selection sorted by date, then catalog order.
func (e *Engine) Cells() []model.Cell {
	out := make([]model.Cell, 0, len(e.selected))
	for c := range e.selected {
		out = append(out, c)
	}
	e.catalog.SortCells(out)
	return out
}

func (e *Engine) selectable(c model.Cell) bool {
	if !c.Date.Valid() || !e.catalog.Contains(c.Room) {
		return false
	}
	return e.blocker == nil || !e.blocker.IsBlocked(c)
}

// PointerDown starts a drag at c. It returns false and leaves the engine idle
// when c cannot be selected.
func (e *Engine) PointerDown(c model.Cell) bool {
	if !e.selectable(c) {
		return false
	}
	if e.policy == Replace {
		e.base = make(map[model.Cell]struct{}, len(e.selected))
		for k := range e.selected {
			e.base[k] = struct{}{}
		}
	}
	e.state = Dragging
	e.anchor = c
	if e.Contains(c) {
		e.mode = ModeRemove
		delete(e.selected, c)
	} else {
		e.mode = ModeAdd
		e.selected[c] = struct{}{}
	}
	return true
}

// PointerEnter extends the drag to c. It is a no-op while idle. A date more
// than MaxSpanDays from the anchor is clamped to that span.
func (e *Engine) PointerEnter(c model.Cell) {
	if e.state != Dragging || !c.Date.Valid() {
		return
	}
	if model.SpanDays(e.anchor.Date, c.Date) > MaxSpanDays {
		if c.Date.Before(e.anchor.Date) {
			c.Date = e.anchor.Date.AddDays(-(MaxSpanDays - 1))
		} else {
			c.Date = e.anchor.Date.AddDays(MaxSpanDays - 1)
		}
	}
	rooms := e.catalog.Between(e.anchor.Room, c.Room)
	if rooms == nil {
		return
	}
	if e.policy == Replace {
		e.selected = make(map[model.Cell]struct{}, len(e.base))
		for k := range e.base {
			e.selected[k] = struct{}{}
		}
	}
	for _, d := range model.DaysBetween(e.anchor.Date, c.Date) {
		for _, r := range rooms {
			cell := model.Cell{Date: d, Room: r}
			if e.blocker != nil && e.blocker.IsBlocked(cell) {
				continue
			}
			if e.mode == ModeAdd {
				e.selected[cell] = struct{}{}
			} else {
				delete(e.selected, cell)
			}
		}
	}
}

// PointerUp ends the drag wherever the pointer is released.
func (e *Engine) PointerUp() {
	e.state = Idle
	e.mode = ModeNone
	e.anchor = model.Cell{}
	e.base = nil
}

// Clear ends any drag and empties the selection.
func (e *Engine) Clear() {
	e.PointerUp()
	e.selected = make(map[model.Cell]struct{})
}
