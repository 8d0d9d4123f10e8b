package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrapp/bcr-backend/pkg/models"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)}
}

func TestGetAfterPut(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Hour, clock)

	s.Put("k", "v", time.Minute)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Hour, clock)
	s.Put("k", 42, time.Minute)

	// Exactly at TTL the entry is still valid.
	clock.advance(time.Minute)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, 42, v)

	// One tick past TTL it is gone and removed.
	clock.advance(time.Nanosecond)
	_, ok = s.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestPutDefaultUsesDefaultTTL(t *testing.T) {
	clock := newFakeClock()
	s := New(30*time.Minute, clock)
	s.PutDefault("k", "v")

	clock.advance(30 * time.Minute)
	_, ok := s.Get("k")
	assert.True(t, ok)

	clock.advance(time.Second)
	_, ok = s.Get("k")
	assert.False(t, ok)
}

func TestLastWriterWins(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Hour, clock)
	s.Put("k", "first", time.Hour)
	s.Put("k", "second", time.Hour)

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestRefreshedEntrySurvivesStaleExpiryCheck(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Hour, clock)
	s.Put("k", "old", time.Minute)

	clock.advance(2 * time.Minute)
	_, ok := s.Get("k")
	assert.False(t, ok)

	s.Put("k", "new", time.Minute)
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestClearAndClearPrefix(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Hour, clock)
	s.Put("rankings|MS|national|all|2025-03-10", 1, time.Hour)
	s.Put("rankings|WS|national|all|2025-03-10", 2, time.Hour)
	s.Put("news_fr|2025-03-10", 3, time.Hour)

	assert.Equal(t, 2, s.ClearPrefix("rankings|"))
	assert.Equal(t, 1, s.Len())

	_, ok := s.Get("news_fr|2025-03-10")
	assert.True(t, ok)

	assert.Equal(t, 1, s.Clear())
	assert.Equal(t, 0, s.Len())
}

func TestRankingKeyComposite(t *testing.T) {
	clock := newFakeClock()
	s := New(time.Hour, clock)

	key := s.RankingKey(models.MensDoubles, models.ScopeNational, "")
	assert.Equal(t, "rankings|MD|national|all|2025-03-10", key)

	key = s.RankingKey(models.WomensSingles, models.ScopeProvincial, models.TierB)
	assert.Equal(t, "rankings|WS|provincial|B|2025-03-10", key)

	// The date bucket rolls with the clock, superseding yesterday's keys.
	clock.advance(24 * time.Hour)
	key = s.RankingKey(models.MensDoubles, models.ScopeNational, "")
	assert.Equal(t, "rankings|MD|national|all|2025-03-11", key)
}
