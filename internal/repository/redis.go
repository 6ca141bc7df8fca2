package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/Shivanand-hulikatti/room-calendar/internal/model"
	"github.com/Shivanand-hulikatti/room-calendar/internal/store"
)

// RedisStore keeps each record as a JSON string under its own key, indexes the
// keys of each collection in a set and publishes a notice per write.
//
//	{prefix}:bookings:{date}   DateRecord JSON
//	{prefix}:bookings          set of dates
//	{prefix}:months:{ym}       MonthAvailability JSON
//	{prefix}:months            set of year-months
//	{prefix}:changes           pub/sub channel of notices
type RedisStore struct {
	rdb     *redis.Client
	prefix  string
	logger  *logrus.Logger
	now     func() time.Time
	publish func(ctx context.Context, channel string, payload []byte) error

	mu    sync.Mutex
	feeds map[*store.QueueFeed]struct{}
}

// NewRedisStore constructs a RedisStore whose keys start with prefix.
func NewRedisStore(rdb *redis.Client, prefix string, logger *logrus.Logger) *RedisStore {
	s := &RedisStore{
		rdb:    rdb,
		prefix: prefix,
		logger: logger,
		now:    time.Now,
		feeds:  make(map[*store.QueueFeed]struct{}),
	}
	s.publish = func(ctx context.Context, channel string, payload []byte) error {
		return rdb.Publish(ctx, channel, payload).Err()
	}
	return s
}

func (s *RedisStore) Bookings() store.BookingStore { return redisBookings{s} }
func (s *RedisStore) Months() store.MonthStore     { return redisMonths{s} }

func (s *RedisStore) bookingIndex() string { return s.prefix + ":bookings" }
func (s *RedisStore) monthIndex() string   { return s.prefix + ":months" }
func (s *RedisStore) channel() string      { return s.prefix + ":changes" }

func (s *RedisStore) bookingKey(date model.DateKey) string {
	return s.bookingIndex() + ":" + string(date)
}

func (s *RedisStore) monthKey(ym model.YearMonth) string {
	return s.monthIndex() + ":" + string(ym)
}

// notify publishes n after a successful write. The write stands either way.
// When the publish fails, every feed opened by this store is failed so its
// listener resubscribes and relists; subscribers in other processes miss the
// notice until their own feed is re-established.
func (s *RedisStore) notify(ctx context.Context, n notice) {
	payload, err := json.Marshal(n)
	if err == nil {
		err = s.publish(ctx, s.channel(), payload)
	}
	if err == nil {
		return
	}
	s.logger.WithError(err).WithField("key", n.Key).Warn("publish change notice failed")

	s.mu.Lock()
	defer s.mu.Unlock()
	for feed := range s.feeds {
		feed.Fail(fmt.Errorf("change notice for %s not published: %w", n.Key, err))
	}
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON(ctx context.Context, c getter, key string, v interface{}) error {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return store.ErrNotFound
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

type redisBookings struct{ s *RedisStore }

func (b redisBookings) Get(ctx context.Context, date model.DateKey) (model.DateRecord, error) {
	var rec model.DateRecord
	err := getJSON(ctx, b.s.rdb, b.s.bookingKey(date), &rec)
	if errors.Is(err, store.ErrNotFound) {
		return model.DateRecord{}, err
	}
	if err != nil {
		return model.DateRecord{}, &store.ReadError{Op: "get booking", Key: string(date), Err: err}
	}
	return rec, nil
}

// Put checks the version under WATCH; a concurrent write to the key aborts
// the transaction, which surfaces as a version conflict.
func (b redisBookings) Put(ctx context.Context, rec model.DateRecord) (model.DateRecord, error) {
	key := b.s.bookingKey(rec.Date)
	var (
		stored model.DateRecord
		kind   store.ChangeKind
	)
	txf := func(tx *redis.Tx) error {
		var cur model.DateRecord
		err := getJSON(ctx, tx, key, &cur)
		switch {
		case errors.Is(err, store.ErrNotFound):
			kind = store.Added
		case err != nil:
			return err
		default:
			kind = store.Modified
		}
		if cur.Version != rec.Version {
			return store.ErrVersionConflict
		}

		stored = rec
		stored.Version = cur.Version + 1
		stored.Timestamp = b.s.now().UTC()
		data, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			pipe.SAdd(ctx, b.s.bookingIndex(), string(rec.Date))
			return nil
		})
		return err
	}

	err := b.s.rdb.Watch(ctx, txf, key)
	switch {
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, store.ErrVersionConflict):
		return model.DateRecord{}, store.ErrVersionConflict
	case err != nil:
		return model.DateRecord{}, &store.WriteError{Op: "put booking", Key: string(rec.Date), Err: err}
	}
	b.s.notify(ctx, notice{Collection: store.Bookings, Key: string(rec.Date), Kind: kind})
	return stored, nil
}

func (b redisBookings) Delete(ctx context.Context, date model.DateKey, version int64) error {
	key := b.s.bookingKey(date)
	txf := func(tx *redis.Tx) error {
		var cur model.DateRecord
		if err := getJSON(ctx, tx, key, &cur); err != nil {
			return err
		}
		if cur.Version != version {
			return store.ErrVersionConflict
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SRem(ctx, b.s.bookingIndex(), string(date))
			return nil
		})
		return err
	}

	err := b.s.rdb.Watch(ctx, txf, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return store.ErrNotFound
	case errors.Is(err, redis.TxFailedErr), errors.Is(err, store.ErrVersionConflict):
		return store.ErrVersionConflict
	case err != nil:
		return &store.WriteError{Op: "delete booking", Key: string(date), Err: err}
	}
	b.s.notify(ctx, notice{Collection: store.Bookings, Key: string(date), Kind: store.Removed})
	return nil
}

func (b redisBookings) List(ctx context.Context) ([]model.DateRecord, error) {
	dates, err := b.s.rdb.SMembers(ctx, b.s.bookingIndex()).Result()
	if err != nil {
		return nil, &store.ReadError{Op: "list bookings", Err: err}
	}
	if len(dates) == 0 {
		return nil, nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = b.s.bookingKey(model.DateKey(d))
	}
	vals, err := b.s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &store.ReadError{Op: "list bookings", Err: err}
	}

	recs := make([]model.DateRecord, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			// Index entry outlived its key.
			continue
		}
		var rec model.DateRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, &store.ReadError{Op: "decode booking", Key: dates[i], Err: err}
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Date.Before(recs[j].Date) })
	return recs, nil
}

type redisMonths struct{ s *RedisStore }

func (m redisMonths) Get(ctx context.Context, ym model.YearMonth) (model.MonthAvailability, error) {
	var mo model.MonthAvailability
	err := getJSON(ctx, m.s.rdb, m.s.monthKey(ym), &mo)
	if errors.Is(err, store.ErrNotFound) {
		return model.MonthAvailability{}, err
	}
	if err != nil {
		return model.MonthAvailability{}, &store.ReadError{Op: "get month", Key: string(ym), Err: err}
	}
	return mo, nil
}

func (m redisMonths) Put(ctx context.Context, mo model.MonthAvailability) (model.MonthAvailability, error) {
	key := m.s.monthKey(mo.YearMonth)
	mo.UpdatedAt = m.s.now().UTC()
	data, err := json.Marshal(mo)
	if err != nil {
		return model.MonthAvailability{}, &store.WriteError{Op: "put month", Key: string(mo.YearMonth), Err: err}
	}

	var added *redis.IntCmd
	_, err = m.s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, data, 0)
		added = pipe.SAdd(ctx, m.s.monthIndex(), string(mo.YearMonth))
		return nil
	})
	if err != nil {
		return model.MonthAvailability{}, &store.WriteError{Op: "put month", Key: string(mo.YearMonth), Err: err}
	}

	kind := store.Modified
	if added.Val() == 1 {
		kind = store.Added
	}
	m.s.notify(ctx, notice{Collection: store.MonthAvailability, Key: string(mo.YearMonth), Kind: kind})
	return mo, nil
}

func (m redisMonths) Delete(ctx context.Context, ym model.YearMonth) error {
	var removed *redis.IntCmd
	_, err := m.s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.Del(ctx, m.s.monthKey(ym))
		pipe.SRem(ctx, m.s.monthIndex(), string(ym))
		return nil
	})
	if err != nil {
		return &store.WriteError{Op: "delete month", Key: string(ym), Err: err}
	}
	if removed.Val() == 0 {
		return store.ErrNotFound
	}
	m.s.notify(ctx, notice{Collection: store.MonthAvailability, Key: string(ym), Kind: store.Removed})
	return nil
}

func (m redisMonths) List(ctx context.Context) ([]model.MonthAvailability, error) {
	yms, err := m.s.rdb.SMembers(ctx, m.s.monthIndex()).Result()
	if err != nil {
		return nil, &store.ReadError{Op: "list months", Err: err}
	}
	if len(yms) == 0 {
		return nil, nil
	}
	keys := make([]string, len(yms))
	for i, ym := range yms {
		keys[i] = m.s.monthKey(model.YearMonth(ym))
	}
	vals, err := m.s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &store.ReadError{Op: "list months", Err: err}
	}

	out := make([]model.MonthAvailability, 0, len(vals))
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var mo model.MonthAvailability
		if err := json.Unmarshal([]byte(raw), &mo); err != nil {
			return nil, &store.ReadError{Op: "decode month", Key: yms[i], Err: err}
		}
		out = append(out, mo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth < out[j].YearMonth })
	return out, nil
}

// Subscribe waits for the SUBSCRIBE confirmation before listing, so every
// write after the listing produces a notice on this feed.
func (s *RedisStore) Subscribe(ctx context.Context) (store.Feed, error) {
	ps := s.rdb.Subscribe(ctx, s.channel())
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, &store.SubscriptionError{Err: fmt.Errorf("subscribe %s: %w", s.channel(), err)}
	}

	relayCtx, cancel := context.WithCancel(context.Background())
	var feed *store.QueueFeed
	feed = store.NewQueueFeed(func() {
		cancel()
		_ = ps.Close()
		s.mu.Lock()
		delete(s.feeds, feed)
		s.mu.Unlock()
	})
	s.mu.Lock()
	s.feeds[feed] = struct{}{}
	s.mu.Unlock()

	batch, err := store.InitialBatch(ctx, s)
	if err != nil {
		_ = feed.Close()
		return nil, &store.SubscriptionError{Err: err}
	}
	feed.PushInitial(batch)

	go s.relay(relayCtx, ps.Channel(), feed)
	return feed, nil
}

func (s *RedisStore) relay(ctx context.Context, msgs <-chan *redis.Message, feed *store.QueueFeed) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				feed.Fail(errors.New("redis subscription closed"))
				return
			}
			var nt notice
			if err := json.Unmarshal([]byte(msg.Payload), &nt); err != nil {
				s.logger.WithError(err).WithField("payload", msg.Payload).Warn("ignoring malformed change notice")
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
}
