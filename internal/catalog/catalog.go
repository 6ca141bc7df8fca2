// Package catalog holds the fixed, ordered list of bookable rooms. Catalog
// order defines adjacency for rectangular range selection.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
)

// DefaultRooms is the room list used when none is configured.
var DefaultRooms = []model.Room{
	"İnceburun",
	"Gökliman",
	"Armutlusu",
	"Çetisuyu",
	"İncirliin",
	"Hurmalıbük",
	"Kızılbük",
	"Değirmenbükü",
	"İskaroz",
	"İskorpit",
	"Lopa",
}

// ErrEmpty is returned when a catalog would hold no rooms.
var ErrEmpty = errors.New("room catalog is empty")

// Catalog is immutable once built.
type Catalog struct {
	rooms []model.Room
	index map[model.Room]int
}

// New validates rooms (non-blank, unique) and builds a Catalog.
func New(rooms []model.Room) (*Catalog, error) {
	if len(rooms) == 0 {
		return nil, ErrEmpty
	}
	c := &Catalog{
		rooms: make([]model.Room, 0, len(rooms)),
		index: make(map[model.Room]int, len(rooms)),
	}
	for _, r := range rooms {
		r = model.Room(strings.TrimSpace(string(r)))
		if r == "" {
			return nil, fmt.Errorf("room catalog: blank room id at position %d", len(c.rooms))
		}
		if _, dup := c.index[r]; dup {
			return nil, fmt.Errorf("room catalog: duplicate room %q", r)
		}
		c.index[r] = len(c.rooms)
		c.rooms = append(c.rooms, r)
	}
	return c, nil
}

// Parse builds a Catalog from a comma-separated list, falling back to
// DefaultRooms when s is blank.
func Parse(s string) (*Catalog, error) {
	if strings.TrimSpace(s) == "" {
		return New(DefaultRooms)
	}
	parts := strings.Split(s, ",")
	rooms := make([]model.Room, 0, len(parts))
	for _, p := range parts {
		rooms = append(rooms, model.Room(p))
	}
	return New(rooms)
}

// Default returns the catalog of DefaultRooms.
func Default() *Catalog {
	c, err := New(DefaultRooms)
	if err != nil {
		panic(err)
	}
	return c
}

// Rooms returns a copy of the rooms in catalog order.
func (c *Catalog) Rooms() []model.Room {
	out := make([]model.Room, len(c.rooms))
	copy(out, c.rooms)
	return out
}

func (c *Catalog) Len() int {
	return len(c.rooms)
}

func (c *Catalog) Contains(r model.Room) bool {
	_, ok := c.index[r]
	return ok
}

// Index returns the catalog position of r.
func (c *Catalog) Index(r model.Room) (int, bool) {
	i, ok := c.index[r]
	return i, ok
}

// Between returns every room from a to b inclusive in catalog order, whichever
// comes first. It returns nil if either room is unknown.
func (c *Catalog) Between(a, b model.Room) []model.Room {
	i, ok := c.index[a]
	if !ok {
		return nil
	}
	j, ok := c.index[b]
	if !ok {
		return nil
	}
	if j < i {
		i, j = j, i
	}
	out := make([]model.Room, j-i+1)
	copy(out, c.rooms[i:j+1])
	return out
}

// Less orders rooms by catalog position. Rooms outside the catalog sort after
// every catalog room, by id.
func (c *Catalog) Less(a, b model.Room) bool {
	i, aok := c.index[a]
	j, bok := c.index[b]
	switch {
	case aok && bok:
		return i < j
	case aok != bok:
		return aok
	default:
		return a < b
	}
}

// SortRooms sorts rooms in place by catalog order.
func (c *Catalog) SortRooms(rooms []model.Room) {
	sort.SliceStable(rooms, func(i, j int) bool { return c.Less(rooms[i], rooms[j]) })
}

// SortCells sorts cells in place by date, then catalog order.
func (c *Catalog) SortCells(cells []model.Cell) {
	sort.SliceStable(cells, func(i, j int) bool {
		if cells[i].Date != cells[j].Date {
			return cells[i].Date.Before(cells[j].Date)
		}
		return c.Less(cells[i].Room, cells[j].Room)
	})
}
