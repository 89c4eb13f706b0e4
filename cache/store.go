// Package cache implements the two-tier response cache described by
// spec.md §4.2: a bounded, auto-evicting LRU tier and an unbounded
// pinned tier, both mirrored into a sqlite-backed table so cached
// responses survive a process restart.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/internal/storedb"
	"github.com/ltyfantasy/goapn/pkg/logger"
)

// entry is the in-memory payload held by either tier.
type entry struct {
	Data      map[string]interface{}
	CreatedAt time.Time
	Duration  *time.Duration // nil = infinite
}

func (e *entry) expired() bool {
	if e.Duration == nil {
		return false
	}
	return time.Now().After(e.CreatedAt.Add(*e.Duration))
}

// Store is the two-tier cache store (spec.md §4.2). The zero value is
// not usable; construct with New.
type Store struct {
	db  *gorm.DB
	log logger.Logger

	mu      sync.Mutex
	lru     *core.LRU[string, *entry]
	pinned  map[string]*entry
	ready   *core.Gate
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithLRUCapacity overrides the default bounded-tier capacity (100 per
// spec.md §4.2).
func WithLRUCapacity(n int) Option {
	return func(s *Store) {
		s.lru = core.NewLRU[string, *entry](n, s.evict)
	}
}

// New constructs a Store backed by the sqlite file at dbPath. Call
// Init before using it; until Init completes, Save and Clear return
// ErrStoreNotInitialized and Load reports a miss.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := storedb.Open(dbPath, &row{})
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:     db,
		log:    logger.NewDefaultLogger(),
		pinned: make(map[string]*entry),
		ready:  core.NewGate(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.lru == nil {
		s.lru = core.NewLRU[string, *entry](core.DefaultLRUCapacity, s.evict)
	}
	return s, nil
}

// evict is the LRU tier's eviction callback: it deletes the
// corresponding DB row (spec.md §4.2: "evicted entries are deleted
// from the DB via the LRU eviction callback"). Called while s.mu is
// already held by Put.
func (s *Store) evict(key string, _ *entry) {
	if err := s.db.Delete(&row{}, "id = ?", key).Error; err != nil {
		s.log.Warn("cache: failed to delete evicted row", "key", key, "error", err)
	}
}

// Init loads all persisted rows into the matching tier and marks the
// store ready. Safe to call once; callers should wait on WaitReady
// before using Load/Save if they did not call Init themselves.
func (s *Store) Init(ctx context.Context) error {
	var rows []row
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return core.NewOpError("cache.Init", "", err)
	}

	s.mu.Lock()
	for _, r := range rows {
		e, err := decodeRow(r)
		if err != nil {
			s.log.Warn("cache: dropping unreadable row", "key", r.ID, "error", err)
			continue
		}
		if r.IsLRU {
			s.lru.Put(r.ID, e)
		} else {
			s.pinned[r.ID] = e
		}
	}
	s.mu.Unlock()

	s.ready.Close()
	return nil
}

// WaitReady blocks until Init has completed, or ctx is cancelled.
func (s *Store) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready.Wait():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeRow(r row) (*entry, error) {
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
		return nil, err
	}
	var dur *time.Duration
	if r.Duration != nil {
		d := time.Duration(*r.Duration) * time.Second
		dur = &d
	}
	return &entry{Data: data, CreatedAt: time.Now(), Duration: dur}, nil
}

// Save writes data under key into the selected tier and upserts the
// matching DB row (spec.md §4.2). A nil data map is treated as Remove
// (spec.md §4.1: "put(k, nil) is equivalent to remove(k)"). Cross-tier
// moves are not supported; saving the same key into the other tier is
// rejected with ErrTierMismatch — callers that want to change tier must
// Remove first.
func (s *Store) Save(ctx context.Context, key string, data map[string]interface{}, duration *time.Duration, useLRU bool) error {
	if !s.ready.IsClosed() {
		return core.ErrStoreNotInitialized
	}

	if data == nil {
		return s.Remove(ctx, key)
	}

	e := &entry{Data: data, CreatedAt: time.Now(), Duration: duration}

	s.mu.Lock()
	if useLRU {
		if _, inPinned := s.pinned[key]; inPinned {
			s.mu.Unlock()
			return core.NewOpError("cache.Save", key, core.ErrTierMismatch)
		}
		s.lru.Put(key, e)
	} else {
		if _, inLRU := s.lru.Get(key); inLRU {
			s.mu.Unlock()
			return core.NewOpError("cache.Save", key, core.ErrTierMismatch)
		}
		s.pinned[key] = e
	}
	s.mu.Unlock()

	encoded, err := json.Marshal(data)
	if err != nil {
		return core.NewOpError("cache.Save", key, err)
	}

	var durSeconds *int64
	if duration != nil {
		sec := int64(duration.Seconds())
		durSeconds = &sec
	}

	dbRow := row{
		ID:         key,
		Data:       string(encoded),
		IsLRU:      useLRU,
		CreateTime: e.CreatedAt.Format(time.RFC3339Nano),
		Duration:   durSeconds,
	}

	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&dbRow).Error
	if err != nil {
		s.log.Warn("cache: db write swallowed", "key", key, "error", err)
	}
	return nil
}

// Load looks up key in the selected tier. An expired entry is removed
// and reported as a miss. A successful lookup in the LRU tier updates
// recency order.
func (s *Store) Load(key string, useLRU bool) (map[string]interface{}, bool) {
	if !s.ready.IsClosed() {
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if useLRU {
		e, ok := s.lru.Get(key)
		if !ok {
			return nil, false
		}
		if e.expired() {
			s.lru.Remove(key)
			s.deleteRowLocked(key)
			return nil, false
		}
		return e.Data, true
	}

	e, ok := s.pinned[key]
	if !ok {
		return nil, false
	}
	if e.expired() {
		delete(s.pinned, key)
		s.deleteRowLocked(key)
		return nil, false
	}
	return e.Data, true
}

// Remove deletes key from whichever tier holds it, and its DB row.
// Callers changing a key's tier must call Remove before the next Save
// into the other tier (ErrTierMismatch otherwise).
func (s *Store) Remove(ctx context.Context, key string) error {
	s.mu.Lock()
	s.lru.Remove(key)
	delete(s.pinned, key)
	s.mu.Unlock()

	if err := s.db.WithContext(ctx).Delete(&row{}, "id = ?", key).Error; err != nil {
		return core.NewOpError("cache.Remove", key, err)
	}
	return nil
}

func (s *Store) deleteRowLocked(key string) {
	if err := s.db.Delete(&row{}, "id = ?", key).Error; err != nil {
		s.log.Warn("cache: failed to delete expired row", "key", key, "error", err)
	}
}

// Clear truncates both tiers and the DB table.
func (s *Store) Clear(ctx context.Context) error {
	if !s.ready.IsClosed() {
		return core.ErrStoreNotInitialized
	}

	s.mu.Lock()
	s.lru.Clear()
	s.pinned = make(map[string]*entry)
	s.mu.Unlock()

	if err := s.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s", (row{}).TableName())).Error; err != nil {
		return core.NewOpError("cache.Clear", "", err)
	}
	return nil
}
