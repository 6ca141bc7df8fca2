package reservation

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/room-calendar/internal/catalog"
	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
	"github.com/Shivanand-hulikatti/room-calendar/internal/store"
)

// ValidationError rejects a Commit or Release before anything is written.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, "; ")
}

// PartialWriteError reports a multi-date write that stopped part-way. Dates in
// Applied were written and stay written; Failed and Pending were not.
type PartialWriteError struct {
	Op      string
	Applied []model.DateKey
	Failed  model.DateKey
	Pending []model.DateKey
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%s stopped at %s after %d of %d dates: %v",
		e.Op, e.Failed, len(e.Applied), len(e.Applied)+1+len(e.Pending), e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Result describes a completed Commit or Release.
type Result struct {
	ReservationID string          `json:"reservationId,omitempty"`
	Written       []model.DateKey `json:"written"`
	Deleted       []model.DateKey `json:"deleted,omitempty"`
	Cells         []model.Cell    `json:"cells"`
}

// Writer turns selections into per-date read-modify-write operations. Every
// write is conditional on the version that was read; a conflict re-reads the
// date and tries again, up to maxAttempts.
type Writer struct {
	bookings    store.BookingStore
	catalog     *catalog.Catalog
	validate    *validator.Validate
	now         func() time.Time
	newID       func() string
	maxAttempts int
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

func WithClock(now func() time.Time) WriterOption {
	return func(w *Writer) { w.now = now }
}

func WithIDGenerator(fn func() string) WriterOption {
	return func(w *Writer) { w.newID = fn }
}

// WithMaxAttempts bounds the tries per date when writes conflict.
func WithMaxAttempts(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

func NewWriter(bookings store.BookingStore, cat *catalog.Catalog, opts ...WriterOption) *Writer {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	w := &Writer{
		bookings:    bookings,
		catalog:     cat,
		validate:    v,
		now:         time.Now,
		newID:       func() string { return uuid.New().String() },
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) checkCells(cells []model.Cell) []string {
	if len(cells) == 0 {
		return []string{"selection is empty"}
	}
	var problems []string
	for _, c := range cells {
		if !c.Date.Valid() {
			problems = append(problems, fmt.Sprintf("invalid date %q", c.Date))
		}
		if !w.catalog.Contains(c.Room) {
			problems = append(problems, fmt.Sprintf("unknown room %q", c.Room))
		}
	}
	return problems
}

func (w *Writer) checkForm(form *model.GuestForm) []string {
	form.GuestName = strings.TrimSpace(form.GuestName)
	form.GuestPhone = strings.TrimSpace(form.GuestPhone)
	form.Note = strings.TrimSpace(form.Note)

	var problems []string
	if err := w.validate.Struct(form); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return []string{err.Error()}
		}
		for _, fe := range verrs {
			switch fe.Tag() {
			case "required":
				problems = append(problems, fe.Field()+" is required")
			case "gte":
				problems = append(problems, fe.Field()+" must not be negative")
			default:
				problems = append(problems, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			}
		}
	}
	if form.PaymentDate != nil && !form.PaymentDate.Valid() {
		problems = append(problems, fmt.Sprintf("invalid paymentDate %q", *form.PaymentDate))
	}
	return problems
}

func (w *Writer) uniqueSorted(cells []model.Cell) []model.Cell {
	seen := make(map[model.Cell]struct{}, len(cells))
	out := make([]model.Cell, 0, len(cells))
	for _, c := range cells {
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	w.catalog.SortCells(out)
	return out
}

// groupByDate returns the dates in calendar order and the rooms per date in
// catalog order.
func (w *Writer) groupByDate(cells []model.Cell) ([]model.DateKey, map[model.DateKey][]model.Room) {
	groups := make(map[model.DateKey][]model.Room)
	var dates []model.DateKey
	for _, c := range cells {
		if _, ok := groups[c.Date]; !ok {
			dates = append(dates, c.Date)
		}
		groups[c.Date] = append(groups[c.Date], c.Room)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	for _, rooms := range groups {
		w.catalog.SortRooms(rooms)
	}
	return dates, groups
}

// Plan returns the reservation a Commit of selected would update, or "" when
// it would create one, and every cell that Commit would rewrite.
func (w *Writer) Plan(agg *Aggregate, selected []model.Cell) (string, []model.Cell) {
	selected = w.uniqueSorted(selected)
	if agg == nil {
		return "", selected
	}
	for _, c := range selected {
		if id, ok := agg.ReservationAt(c); ok {
			return id, w.uniqueSorted(append(append([]model.Cell{}, selected...), agg.CellsFor(id)...))
		}
	}
	return "", selected
}

// Commit writes form onto every selected cell. If a selected cell already
// belongs to a reservation, the first such reservation (in date, then catalog
// order) is updated and all of its cells are rewritten; otherwise a new
// reservation is created. The stay window is taken from the selected dates.
//
// The target reservation is looked up in agg, so a Commit issued before the
// snapshot of an earlier Commit has arrived creates a new reservation.
func (w *Writer) Commit(ctx context.Context, agg *Aggregate, selected []model.Cell, form model.GuestForm) (*Result, error) {
	problems := w.checkCells(selected)
	problems = append(problems, w.checkForm(&form)...)
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	selected = w.uniqueSorted(selected)

	var createdAt *time.Time
	id, cells := w.Plan(agg, selected)
	if id != "" {
		if res, ok := agg.Get(id); ok {
			createdAt = res.CreatedAt
		}
	} else {
		id = w.newID()
	}
	if createdAt == nil {
		now := w.now().UTC()
		createdAt = &now
	}

	selectedDates := make([]model.DateKey, 0, len(selected))
	for _, c := range selected {
		selectedDates = append(selectedDates, c.Date)
	}
	stayStart, stayEnd, stayLength := model.StayWindow(selectedDates)

	detail := model.EntryDetail{
		GuestName:      form.GuestName,
		GuestPhone:     form.GuestPhone,
		AmountDue:      form.AmountDue,
		AmountPaid:     form.AmountPaid,
		PaymentDate:    form.PaymentDate,
		AdultCount:     form.AdultCount,
		ChildCount:     form.ChildCount,
		Note:           form.Note,
		ReservationID:  id,
		CreatedAt:      createdAt,
		StayStart:      stayStart,
		StayEnd:        stayEnd,
		StayLengthDays: stayLength,
	}

	dates, groups := w.groupByDate(cells)
	res := &Result{ReservationID: id, Cells: cells}
	for i, date := range dates {
		rooms := groups[date]
		_, err := w.apply(ctx, date, func(entries []model.RoomEntry) []model.RoomEntry {
			next := withoutRooms(entries, rooms)
			for _, r := range rooms {
				next = append(next, model.Detailed(r, detail))
			}
			return next
		})
		if err != nil {
			return nil, &PartialWriteError{Op: "commit", Applied: res.Written, Failed: date, Pending: dates[i+1:], Err: err}
		}
		res.Written = append(res.Written, date)
	}
	return res, nil
}

// Release removes the selected rooms from their dates. A date left without
// entries is deleted. Dates with nothing to remove are left untouched.
func (w *Writer) Release(ctx context.Context, selected []model.Cell) (*Result, error) {
	if problems := w.checkCells(selected); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	selected = w.uniqueSorted(selected)

	dates, groups := w.groupByDate(selected)
	res := &Result{Cells: selected}
	var applied []model.DateKey
	for i, date := range dates {
		rooms := groups[date]
		out, err := w.apply(ctx, date, func(entries []model.RoomEntry) []model.RoomEntry {
			return withoutRooms(entries, rooms)
		})
		if err != nil {
			return nil, &PartialWriteError{Op: "release", Applied: applied, Failed: date, Pending: dates[i+1:], Err: err}
		}
		switch out {
		case outcomeWritten:
			res.Written = append(res.Written, date)
		case outcomeDeleted:
			res.Deleted = append(res.Deleted, date)
		}
		if out != outcomeUnchanged {
			applied = append(applied, date)
		}
	}
	return res, nil
}

type outcome int

const (
	outcomeUnchanged outcome = iota
	outcomeWritten
	outcomeDeleted
)

// apply runs one read-modify-write on date. The record is re-read on every
// attempt, so a retry after a conflict never drops the other writer's entries.
func (w *Writer) apply(ctx context.Context, date model.DateKey, mutate func([]model.RoomEntry) []model.RoomEntry) (outcome, error) {
	for attempt := 1; ; attempt++ {
		cur, err := w.bookings.Get(ctx, date)
		if errors.Is(err, store.ErrNotFound) {
			cur, err = model.DateRecord{Date: date}, nil
		}
		if err != nil {
			return outcomeUnchanged, fmt.Errorf("read %s: %w", date, err)
		}
		before := model.NormalizeEntries(cur.Rooms)
		next := mutate(before)

		var out outcome
		switch {
		case len(next) == 0 && cur.Version == 0:
			return outcomeUnchanged, nil
		case len(next) == 0:
			err = w.bookings.Delete(ctx, date, cur.Version)
			out = outcomeDeleted
		case sameEntries(before, next) && cur.Version != 0:
			return outcomeUnchanged, nil
		default:
			cur.Date = date
			cur.Rooms = next
			_, err = w.bookings.Put(ctx, cur)
			out = outcomeWritten
		}
		if err == nil {
			return out, nil
		}
		retryable := errors.Is(err, store.ErrVersionConflict) || errors.Is(err, store.ErrNotFound)
		if !retryable || attempt >= w.maxAttempts || ctx.Err() != nil {
			return outcomeUnchanged, fmt.Errorf("write %s (attempt %d): %w", date, attempt, err)
		}
	}
}

func withoutRooms(entries []model.RoomEntry, rooms []model.Room) []model.RoomEntry {
	drop := make(map[model.Room]struct{}, len(rooms))
	for _, r := range rooms {
		drop[r] = struct{}{}
	}
	out := make([]model.RoomEntry, 0, len(entries))
	for _, e := range entries {
		if _, ok := drop[e.Room]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// sameEntries reports whether next is before with nothing removed or added.
func sameEntries(before, next []model.RoomEntry) bool {
	if len(before) != len(next) {
		return false
	}
	for i := range before {
		if before[i].Room != next[i].Room || !reflect.DeepEqual(before[i].Detail, next[i].Detail) {
			return false
		}
	}
	return true
}
