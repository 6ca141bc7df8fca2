// Package repository implements the calendar store on PostgreSQL and Redis.
// Both backends use their native primitives directly, with no ORM.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
	"github.com/Shivanand-hulikatti/room-calendar/internal/store"
)

// notifyChannel carries one JSON notice per committed write.
const notifyChannel = "calendar_changes"

// notice is the change announcement shared by both backends. Subscribers
// re-read the key, so a notice never carries record data.
type notice struct {
	Collection store.Collection `json:"collection"`
	Key        string           `json:"key"`
	Kind       store.ChangeKind `json:"kind"`
}

// PostgresStore keeps bookings and month flags in two tables and announces
// writes with NOTIFY inside the writing transaction.
type PostgresStore struct {
	db     *pgxpool.Pool
	logger *logrus.Logger
	now    func() time.Time
}

// NewPostgresStore constructs a PostgresStore. The schema must already exist
// (see database.Migrate).
func NewPostgresStore(db *pgxpool.Pool, logger *logrus.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger, now: time.Now}
}

func (s *PostgresStore) Bookings() store.BookingStore { return pgBookings{s} }
func (s *PostgresStore) Months() store.MonthStore     { return pgMonths{s} }

func notify(ctx context.Context, tx pgx.Tx, n notice) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(payload))
	return err
}

type pgBookings struct{ s *PostgresStore }

func (b pgBookings) Get(ctx context.Context, date model.DateKey) (model.DateRecord, error) {
	var (
		raw []byte
		rec = model.DateRecord{Date: date}
	)
	err := b.s.db.QueryRow(ctx,
		`SELECT rooms, version, updated_at FROM bookings WHERE date_key = $1`, string(date),
	).Scan(&raw, &rec.Version, &rec.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DateRecord{}, store.ErrNotFound
	}
	if err != nil {
		return model.DateRecord{}, &store.ReadError{Op: "get booking", Key: string(date), Err: err}
	}
	if err := json.Unmarshal(raw, &rec.Rooms); err != nil {
		return model.DateRecord{}, &store.ReadError{Op: "decode booking", Key: string(date), Err: err}
	}
	return rec, nil
}

// Put performs the version check and the write in one transaction, locking
// the row with SELECT FOR UPDATE so concurrent writers serialise.
func (b pgBookings) Put(ctx context.Context, rec model.DateRecord) (model.DateRecord, error) {
	key := string(rec.Date)
	fail := func(err error) (model.DateRecord, error) {
		return model.DateRecord{}, &store.WriteError{Op: "put booking", Key: key, Err: err}
	}

	rooms, err := json.Marshal(rec.Rooms)
	if err != nil {
		return fail(err)
	}

	tx, err := b.s.db.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM bookings WHERE date_key = $1 FOR UPDATE`, key,
	).Scan(&current)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fail(fmt.Errorf("lock booking: %w", err))
	}
	if current != rec.Version {
		return model.DateRecord{}, store.ErrVersionConflict
	}

	stored := rec
	stored.Version = current + 1
	stored.Timestamp = b.s.now().UTC()

	kind := store.Modified
	if current == 0 {
		kind = store.Added
		// Two writers may both see no row; the primary key decides.
		tag, err := tx.Exec(ctx,
			`INSERT INTO bookings (date_key, rooms, version, updated_at)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (date_key) DO NOTHING`,
			key, rooms, stored.Version, stored.Timestamp,
		)
		if err != nil {
			return fail(fmt.Errorf("insert booking: %w", err))
		}
		if tag.RowsAffected() == 0 {
			return model.DateRecord{}, store.ErrVersionConflict
		}
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE bookings SET rooms = $2, version = $3, updated_at = $4 WHERE date_key = $1`,
			key, rooms, stored.Version, stored.Timestamp,
		)
		if err != nil {
			return fail(fmt.Errorf("update booking: %w", err))
		}
	}

	if err := notify(ctx, tx, notice{Collection: store.Bookings, Key: key, Kind: kind}); err != nil {
		return fail(fmt.Errorf("notify: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit tx: %w", err))
	}
	return stored, nil
}

func (b pgBookings) Delete(ctx context.Context, date model.DateKey, version int64) error {
	key := string(date)
	fail := func(err error) error {
		return &store.WriteError{Op: "delete booking", Key: key, Err: err}
	}

	tx, err := b.s.db.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var current int64
	err = tx.QueryRow(ctx,
		`SELECT version FROM bookings WHERE date_key = $1 FOR UPDATE`, key,
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	if err != nil {
		return fail(fmt.Errorf("lock booking: %w", err))
	}
	if current != version {
		return store.ErrVersionConflict
	}

	if _, err := tx.Exec(ctx, `DELETE FROM bookings WHERE date_key = $1`, key); err != nil {
		return fail(fmt.Errorf("delete booking: %w", err))
	}
	if err := notify(ctx, tx, notice{Collection: store.Bookings, Key: key, Kind: store.Removed}); err != nil {
		return fail(fmt.Errorf("notify: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (b pgBookings) List(ctx context.Context) ([]model.DateRecord, error) {
	rows, err := b.s.db.Query(ctx,
		`SELECT date_key, rooms, version, updated_at FROM bookings ORDER BY date_key`,
	)
	if err != nil {
		return nil, &store.ReadError{Op: "list bookings", Err: err}
	}
	defer rows.Close()

	var recs []model.DateRecord
	for rows.Next() {
		var (
			rec model.DateRecord
			raw []byte
		)
		if err := rows.Scan(&rec.Date, &raw, &rec.Version, &rec.Timestamp); err != nil {
			return nil, &store.ReadError{Op: "scan booking", Err: err}
		}
		if err := json.Unmarshal(raw, &rec.Rooms); err != nil {
			return nil, &store.ReadError{Op: "decode booking", Key: string(rec.Date), Err: err}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.ReadError{Op: "list bookings", Err: err}
	}
	return recs, nil
}

type pgMonths struct{ s *PostgresStore }

func (m pgMonths) Get(ctx context.Context, ym model.YearMonth) (model.MonthAvailability, error) {
	out := model.MonthAvailability{YearMonth: ym}
	err := m.s.db.QueryRow(ctx,
		`SELECT is_open, updated_at FROM month_availability WHERE year_month = $1`, string(ym),
	).Scan(&out.IsOpen, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.MonthAvailability{}, store.ErrNotFound
	}
	if err != nil {
		return model.MonthAvailability{}, &store.ReadError{Op: "get month", Key: string(ym), Err: err}
	}
	return out, nil
}

func (m pgMonths) Put(ctx context.Context, mo model.MonthAvailability) (model.MonthAvailability, error) {
	key := string(mo.YearMonth)
	fail := func(err error) (model.MonthAvailability, error) {
		return model.MonthAvailability{}, &store.WriteError{Op: "put month", Key: key, Err: err}
	}
	mo.UpdatedAt = m.s.now().UTC()

	tx, err := m.s.db.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var inserted bool
	err = tx.QueryRow(ctx,
		`INSERT INTO month_availability (year_month, is_open, updated_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (year_month) DO UPDATE SET is_open = EXCLUDED.is_open, updated_at = EXCLUDED.updated_at
		 RETURNING (xmax = 0)`,
		key, mo.IsOpen, mo.UpdatedAt,
	).Scan(&inserted)
	if err != nil {
		return fail(fmt.Errorf("upsert month: %w", err))
	}

	kind := store.Modified
	if inserted {
		kind = store.Added
	}
	if err := notify(ctx, tx, notice{Collection: store.MonthAvailability, Key: key, Kind: kind}); err != nil {
		return fail(fmt.Errorf("notify: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit tx: %w", err))
	}
	return mo, nil
}

func (m pgMonths) Delete(ctx context.Context, ym model.YearMonth) error {
	key := string(ym)
	fail := func(err error) error {
		return &store.WriteError{Op: "delete month", Key: key, Err: err}
	}

	tx, err := m.s.db.Begin(ctx)
	if err != nil {
		return fail(fmt.Errorf("begin tx: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	tag, err := tx.Exec(ctx, `DELETE FROM month_availability WHERE year_month = $1`, key)
	if err != nil {
		return fail(fmt.Errorf("delete month: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	if err := notify(ctx, tx, notice{Collection: store.MonthAvailability, Key: key, Kind: store.Removed}); err != nil {
		return fail(fmt.Errorf("notify: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return fail(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (m pgMonths) List(ctx context.Context) ([]model.MonthAvailability, error) {
	rows, err := m.s.db.Query(ctx,
		`SELECT year_month, is_open, updated_at FROM month_availability ORDER BY year_month`,
	)
	if err != nil {
		return nil, &store.ReadError{Op: "list months", Err: err}
	}
	defer rows.Close()

	var out []model.MonthAvailability
	for rows.Next() {
		var mo model.MonthAvailability
		if err := rows.Scan(&mo.YearMonth, &mo.IsOpen, &mo.UpdatedAt); err != nil {
			return nil, &store.ReadError{Op: "scan month", Err: err}
		}
		out = append(out, mo)
	}
	if err := rows.Err(); err != nil {
		return nil, &store.ReadError{Op: "list months", Err: err}
	}
	return out, nil
}

// Subscribe holds a dedicated connection in LISTEN mode. LISTEN is issued
// before the initial listing, so no write committed after the listing is
// missed; a write seen by both is re-read and delivered twice, which is
// harmless for snapshot consumers.
func (s *PostgresStore) Subscribe(ctx context.Context) (store.Feed, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, &store.SubscriptionError{Err: fmt.Errorf("acquire listen conn: %w", err)}
	}
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		conn.Release()
		return nil, &store.SubscriptionError{Err: fmt.Errorf("listen: %w", err)}
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	feed := store.NewQueueFeed(cancel)

	batch, err := store.InitialBatch(ctx, s)
	if err != nil {
		_ = feed.Close()
		conn.Release()
		return nil, &store.SubscriptionError{Err: err}
	}
	feed.PushInitial(batch)

	go s.relay(listenCtx, conn, feed)
	return feed, nil
}

func (s *PostgresStore) relay(ctx context.Context, conn *pgxpool.Conn, feed *store.QueueFeed) {
	defer func() {
		// Closing drops the LISTEN registration; the pool discards closed conns.
		_ = conn.Conn().Close(context.Background())
		conn.Release()
	}()

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() == nil {
				feed.Fail(fmt.Errorf("wait for notification: %w", err))
			}
			return
		}
		var nt notice
		if err := json.Unmarshal([]byte(n.Payload), &nt); err != nil {
			s.logger.WithError(err).WithField("payload", n.Payload).Warn("ignoring malformed change notice")
			continue
		}
		change, err := resolve(ctx, s, nt)
		if err != nil {
			if ctx.Err() == nil {
				feed.Fail(err)
			}
			return
		}
		feed.Push([]store.Change{change})
	}
}

// resolve turns a notice into a Change carrying the record's current state.
func resolve(ctx context.Context, s store.Store, nt notice) (store.Change, error) {
	c := store.Change{Collection: nt.Collection, Key: nt.Key, Kind: nt.Kind}
	var err error
	switch nt.Collection {
	case store.Bookings:
		var rec model.DateRecord
		rec, err = s.Bookings().Get(ctx, model.DateKey(nt.Key))
		if err == nil {
			c.Booking = &rec
		}
	case store.MonthAvailability:
		var mo model.MonthAvailability
		mo, err = s.Months().Get(ctx, model.YearMonth(nt.Key))
		if err == nil {
			c.Month = &mo
		}
	default:
		return store.Change{}, fmt.Errorf("unknown collection %q", nt.Collection)
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		c.Kind = store.Removed
	case err != nil:
		return store.Change{}, err
	case c.Kind == store.Removed:
		// Deleted and recreated before the notice was read.
		c.Kind = store.Added
	}
	return c, nil
}
