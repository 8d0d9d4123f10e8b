// Package cache is a TTL-bounded in-memory store for normalized scrape
// results. It is the single authority on staleness: an expired entry is
// indistinguishable from a missing one.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/bcrapp/bcr-backend/pkg/models"
)

// Clock abstracts wall-clock reads so expiry can be tested without sleeping.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real wall clock.
func SystemClock() Clock { return systemClock{} }

type entry struct {
	payload   interface{}
	createdAt time.Time
	ttl       time.Duration
}

// Store is a concurrency-safe key-value cache with lazy read-time expiry.
// Writes are last-writer-wins; payloads are idempotent snapshots so races
// between concurrent populates are harmless.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]entry
	clock      Clock
	defaultTTL time.Duration
}

// New creates a Store with the given default TTL and clock.
func New(defaultTTL time.Duration, clock Clock) *Store {
	if clock == nil {
		clock = SystemClock()
	}
	return &Store{
		entries:    make(map[string]entry),
		clock:      clock,
		defaultTTL: defaultTTL,
	}
}

// DefaultTTL reports the TTL used by PutDefault.
func (s *Store) DefaultTTL() time.Duration { return s.defaultTTL }

// Get returns the payload for key if present and not expired. An expired
// entry is removed and reported as a miss.
func (s *Store) Get(key string) (interface{}, bool) {
	s.mu.RLock()
	e, found := s.entries[key]
	s.mu.RUnlock()
	if !found {
		return nil, false
	}
	if s.clock.Now().Sub(e.createdAt) > e.ttl {
		s.mu.Lock()
		// Re-check under the write lock; another writer may have refreshed it.
		if cur, ok := s.entries[key]; ok && cur.createdAt.Equal(e.createdAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return nil, false
	}
	return e.payload, true
}

// Put stores payload under key with an explicit ttl.
func (s *Store) Put(key string, payload interface{}, ttl time.Duration) {
	s.mu.Lock()
	s.entries[key] = entry{payload: payload, createdAt: s.clock.Now(), ttl: ttl}
	s.mu.Unlock()
}

// PutDefault stores payload with the store's default TTL.
func (s *Store) PutDefault(key string, payload interface{}) {
	s.Put(key, payload, s.defaultTTL)
}

// Clear removes every entry and returns the number removed.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.entries)
	s.entries = make(map[string]entry)
	s.mu.Unlock()
	return n
}

// ClearPrefix removes entries whose key starts with prefix and returns the
// number removed.
func (s *Store) ClearPrefix(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			delete(s.entries, k)
			n++
		}
	}
	return n
}

// Len reports the number of entries, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// RankingKey builds the composite cache key for a ranking partition. The
// trailing date bucket supersedes a whole day's entries on rollover even if
// TTL never fires in a long-lived process.
func (s *Store) RankingKey(category models.Category, scope models.Scope, tier models.Tier) string {
	t := "all"
	if tier != "" {
		t = string(tier)
	}
	return Key("rankings", string(category), string(scope), t, s.DateBucket())
}

// DateBucket is the calendar day of the current request.
func (s *Store) DateBucket() string {
	return s.clock.Now().Format("2006-01-02")
}

// Key joins parts with the composite-key separator.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}
