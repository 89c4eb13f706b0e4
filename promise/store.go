// Package promise implements the durable per-business request queue
// described by spec.md §4.3: requests enlisted for promise persistence
// survive a process restart and are replayed until they complete.
package promise

import (
	"context"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ltyfantasy/goapn/core"
	"github.com/ltyfantasy/goapn/internal/storedb"
	"github.com/ltyfantasy/goapn/pkg/logger"
)

// Store is the durable promise queue (spec.md §4.3). The zero value is
// not usable; construct with New.
type Store struct {
	db  *gorm.DB
	log logger.Logger

	mu    sync.Mutex
	byBiz map[string][]*core.Request // insertion order preserved
	ready *core.Gate
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithLogger overrides the default logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) { s.log = l }
}

// New constructs a Store backed by the sqlite file at dbPath.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := storedb.Open(dbPath, &row{})
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:    db,
		log:   logger.NewDefaultLogger(),
		byBiz: make(map[string][]*core.Request),
		ready: core.NewGate(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Init loads every persisted row, groups it by business identifier,
// and rehydrates each into a fresh Request (spec.md §4.3).
func (s *Store) Init(ctx context.Context) error {
	var rows []row
	if err := s.db.WithContext(ctx).Order("rowid").Find(&rows).Error; err != nil {
		return core.NewOpError("promise.Init", "", err)
	}

	s.mu.Lock()
	for _, r := range rows {
		snap, err := Decode([]byte(r.Data))
		if err != nil {
			s.log.Warn("promise: dropping unreadable row", "id", r.ID, "error", err)
			continue
		}
		req := snap.ToRequest()
		s.byBiz[r.BusinessID] = append(s.byBiz[r.BusinessID], req)
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

// Save appends req to its business's in-memory list (or replaces, in
// place, the entry with the same promise key) and upserts the DB row
// keyed by req.Promise.Key (spec.md §4.3).
func (s *Store) Save(ctx context.Context, req *core.Request) error {
	if req.Promise.Key == "" {
		return core.NewOpError("promise.Save", req.BusinessIdentifier, core.ErrStoreNotInitialized)
	}

	snap, err := ToSnapshot(req)
	if err != nil {
		return core.NewOpError("promise.Save", req.Promise.Key, err)
	}
	encoded, err := snap.Encode()
	if err != nil {
		return core.NewOpError("promise.Save", req.Promise.Key, err)
	}

	s.mu.Lock()
	list := s.byBiz[req.BusinessIdentifier]
	replaced := false
	for i, existing := range list {
		if existing.Promise.Key == req.Promise.Key {
			list[i] = req
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, req)
	}
	s.byBiz[req.BusinessIdentifier] = list
	s.mu.Unlock()

	dbRow := row{ID: req.Promise.Key, BusinessID: req.BusinessIdentifier, Path: req.APIPath, Data: string(encoded)}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&dbRow).Error
	if err != nil {
		s.log.Warn("promise: db write swallowed", "key", req.Promise.Key, "error", err)
	}
	return nil
}

// LoadBusinessRequests returns the in-memory Requests for businessID,
// filtered to apiPath ∈ paths when paths is non-empty (spec.md §4.3).
// Insertion order is preserved.
func (s *Store) LoadBusinessRequests(businessID string, paths ...string) []*core.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byBiz[businessID]
	if len(paths) == 0 {
		out := make([]*core.Request, len(list))
		copy(out, list)
		return out
	}

	allowed := make(map[string]bool, len(paths))
	for _, p := range paths {
		allowed[p] = true
	}

	out := make([]*core.Request, 0, len(list))
	for _, r := range list {
		if allowed[r.APIPath] {
			out = append(out, r)
		}
	}
	return out
}

// Delete removes the entry matching (businessID, promiseKey) from both
// the in-memory list and the DB (spec.md §4.3).
func (s *Store) Delete(ctx context.Context, businessID, promiseKey string) error {
	s.mu.Lock()
	list := s.byBiz[businessID]
	for i, r := range list {
		if r.Promise.Key == promiseKey {
			s.byBiz[businessID] = append(list[:i], list[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if err := s.db.WithContext(ctx).Delete(&row{}, "id = ?", promiseKey).Error; err != nil {
		return core.NewOpError("promise.Delete", promiseKey, err)
	}
	return nil
}

// Clear drops all in-memory lists and truncates the DB table.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.byBiz = make(map[string][]*core.Request)
	s.mu.Unlock()

	if err := s.db.WithContext(ctx).Exec("DELETE FROM " + (row{}).TableName()).Error; err != nil {
		return core.NewOpError("promise.Clear", "", err)
	}
	return nil
}
