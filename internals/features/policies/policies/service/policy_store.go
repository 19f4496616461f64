// file: internals/features/policies/policies/service/policy_store.go
package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	policyModel "vulcan_backend/internals/features/policies/policies/model"
	"vulcan_backend/internals/helpers/dbtime"
	"vulcan_backend/internals/helpers/logger"
)

// Store is the read-only policy boundary. ok=false means the key is not configured.
type Store interface {
	Get(ctx context.Context, key string) (value int, ok bool, err error)
}

// IntOr returns the policy value, or def when the key is missing or unreadable.
func IntOr(ctx context.Context, s Store, key string, def int) int {
	if s == nil {
		return def
	}
	v, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return def
	}
	return v
}

/* =========================================================
   Gorm-backed store with TTL cache
========================================================= */

type cacheEntry struct {
	value     int
	ok        bool
	expiresAt time.Time
}

type GormPolicyStore struct {
	DB    *gorm.DB
	TTL   time.Duration
	Clock dbtime.Clock

	mu    sync.RWMutex
	cache map[string]cacheEntry
	log   zerolog.Logger
}

func NewGormPolicyStore(db *gorm.DB, ttl time.Duration) *GormPolicyStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &GormPolicyStore{
		DB:    db,
		TTL:   ttl,
		Clock: dbtime.NowUTC,
		cache: map[string]cacheEntry{},
		log:   logger.For("policies"),
	}
}

// Get caches both hits and misses for TTL.
func (s *GormPolicyStore) Get(ctx context.Context, key string) (int, bool, error) {
	now := s.Clock.OrDefault()()

	s.mu.RLock()
	e, hit := s.cache[key]
	s.mu.RUnlock()
	if hit && now.Before(e.expiresAt) {
		return e.value, e.ok, nil
	}

	var row policyModel.PolicyModel
	err := s.DB.WithContext(ctx).Where("policy_key = ?", key).Take(&row).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		e = cacheEntry{expiresAt: now.Add(s.TTL)}
	case err != nil:
		s.log.Warn().Err(err).Str("key", key).Msg("policy lookup failed")
		return 0, false, err
	default:
		e = cacheEntry{value: row.Value, ok: true, expiresAt: now.Add(s.TTL)}
	}

	s.mu.Lock()
	s.cache[key] = e
	s.mu.Unlock()
	return e.value, e.ok, nil
}

// Invalidate drops the cached value for key, or every key when key is empty.
func (s *GormPolicyStore) Invalidate(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		s.cache = map[string]cacheEntry{}
		return
	}
	delete(s.cache, key)
}

/* =========================================================
   Static store
========================================================= */

// StaticStore serves a fixed map; used in tests and as the fallback when no DB is wired.
type StaticStore struct {
	mu     sync.RWMutex
	values map[string]int
}

func NewStaticStore(values map[string]int) *StaticStore {
	cp := make(map[string]int, len(values))
	for k, v := range values {
		cp[k] = v
	}
	return &StaticStore{values: cp}
}

func (s *StaticStore) Get(_ context.Context, key string) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *StaticStore) Set(key string, value int) {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
}
