// Package service is the aggregation core: every read goes through the cache
// first, and a miss invokes the matching source adapter under a single-flight
// guard so concurrent requests for one key share one upstream fetch.
package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bcrapp/bcr-backend/pkg/cache"
	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/metrics"
	"github.com/bcrapp/bcr-backend/pkg/models"
	"github.com/bcrapp/bcr-backend/pkg/scrape"
)

// NationalSource is the adapter surface for the national federation site.
type NationalSource interface {
	FetchRankings(ctx context.Context, category models.Category) ([]models.RankingEntry, error)
	FetchPlayerProfile(ctx context.Context, playerID string) (*models.PlayerProfile, error)
	SearchPlayers(ctx context.Context, query string, limit int) ([]models.PlayerSearchResult, error)
	SearchTournaments(ctx context.Context, query string, limit int) ([]models.TournamentRecord, error)
	FetchSeasonTournaments(ctx context.Context, limit int) ([]models.TournamentRecord, error)
	FetchTournamentDraws(ctx context.Context, tournamentID string) ([]models.DrawItem, error)
}

// ProvincialSource is the adapter surface for the provincial ABC rankings.
type ProvincialSource interface {
	FetchTierRankings(ctx context.Context, tier models.Tier, category models.Category) ([]models.RankingEntry, error)
}

// NewsSource is the adapter surface for the news feed.
type NewsSource interface {
	Fetch(ctx context.Context, limit int) ([]models.NewsItem, error)
}

// CalendarSource is the adapter surface for the provincial circuit calendar.
type CalendarSource interface {
	Fetch(ctx context.Context, limit int) ([]models.CalendarEvent, error)
}

const (
	defaultNewsLimit       = 20
	defaultSearchLimit     = 40
	seasonTournamentsLimit = 200
	calendarLimit          = 250
)

type Service struct {
	cache      *cache.Store
	national   NationalSource
	provincial ProvincialSource
	news       NewsSource
	calendar   CalendarSource
	clock      cache.Clock
	timeout    time.Duration
	flight     singleflight.Group
}

func New(store *cache.Store, national NationalSource, provincial ProvincialSource, news NewsSource, calendar CalendarSource, clock cache.Clock, fetchTimeout time.Duration) *Service {
	return &Service{
		cache:      store,
		national:   national,
		provincial: provincial,
		news:       news,
		calendar:   calendar,
		clock:      clock,
		timeout:    fetchTimeout,
	}
}

// fetchCached answers from the cache or runs fetch under single-flight,
// caching only success. The fetch runs on a detached context: a client that
// disconnects mid-fetch must not cancel the flight its neighbors are waiting
// on, and the result still populates the cache.
func fetchCached[T any](s *Service, ctx context.Context, key string, fetch func(context.Context) (T, error)) (T, error) {
	if v, ok := s.cache.Get(key); ok {
		metrics.CacheHits.Inc()
		return v.(T), nil
	}
	metrics.CacheMisses.Inc()

	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		res, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		s.cache.PutDefault(key, res)
		return res, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// NationalRankings returns one category's national rankings, optionally
// filtered to a province. The cache holds the full list; the filter applies
// per request so every province shares one upstream fetch.
func (s *Service) NationalRankings(ctx context.Context, category models.Category, province string) (models.RankingResponse, error) {
	key := s.cache.RankingKey(category, models.ScopeNational, "")
	entries, err := fetchCached(s, ctx, key, func(fctx context.Context) ([]models.RankingEntry, error) {
		rows, ferr := s.national.FetchRankings(fctx, category)
		if ferr != nil {
			recordScrapeFailure("national", ferr)
		}
		return rows, ferr
	})
	if err != nil {
		return models.RankingResponse{}, err
	}

	if province != "" {
		p := strings.ToUpper(province)
		filtered := make([]models.RankingEntry, 0, len(entries))
		for _, e := range entries {
			if strings.EqualFold(e.Province, p) {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}

	return s.rankingResponse(category, models.ScopeNational, "", entries), nil
}

// ProvincialRankings returns one tier/category slice of the ABC rankings.
func (s *Service) ProvincialRankings(ctx context.Context, category models.Category, tier models.Tier) (models.RankingResponse, error) {
	key := s.cache.RankingKey(category, models.ScopeProvincial, tier)
	entries, err := fetchCached(s, ctx, key, func(fctx context.Context) ([]models.RankingEntry, error) {
		rows, ferr := s.provincial.FetchTierRankings(fctx, tier, category)
		if ferr != nil {
			recordScrapeFailure("provincial", ferr)
		}
		return rows, ferr
	})
	if err != nil {
		return models.RankingResponse{}, err
	}
	return s.rankingResponse(category, models.ScopeProvincial, tier, entries), nil
}

// PlayerProfile returns one player's scraped profile.
func (s *Service) PlayerProfile(ctx context.Context, playerID string) (*models.PlayerProfile, error) {
	key := cache.Key("player", playerID, s.cache.DateBucket())
	return fetchCached(s, ctx, key, func(fctx context.Context) (*models.PlayerProfile, error) {
		p, ferr := s.national.FetchPlayerProfile(fctx, playerID)
		if ferr != nil {
			recordScrapeFailure("national", ferr)
		}
		return p, ferr
	})
}

// SearchPlayers proxies the upstream player search, cached per query.
func (s *Service) SearchPlayers(ctx context.Context, query string) ([]models.PlayerSearchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if len(q) < 2 {
		return []models.PlayerSearchResult{}, nil
	}
	key := cache.Key("players_search", q, s.cache.DateBucket())
	return fetchCached(s, ctx, key, func(fctx context.Context) ([]models.PlayerSearchResult, error) {
		res, ferr := s.national.SearchPlayers(fctx, q, defaultSearchLimit)
		if ferr != nil {
			recordScrapeFailure("national", ferr)
		}
		return res, ferr
	})
}

// SearchTournaments searches the current season's tournaments by name.
func (s *Service) SearchTournaments(ctx context.Context, query string) (models.TournamentResponse, error) {
	q := strings.TrimSpace(query)
	key := cache.Key("tournaments_search", strings.ToLower(q), s.cache.DateBucket())
	items, err := fetchCached(s, ctx, key, func(fctx context.Context) ([]models.TournamentRecord, error) {
		res, ferr := s.national.SearchTournaments(fctx, q, defaultSearchLimit)
		if ferr != nil {
			recordScrapeFailure("national", ferr)
		}
		return res, ferr
	})
	if err != nil {
		return models.TournamentResponse{}, err
	}
	return models.TournamentResponse{
		Query:       q,
		Source:      "badmintoncanada.tournamentsoftware.com",
		LastUpdated: s.now(),
		Items:       items,
		TotalCount:  len(items),
	}, nil
}

// LiveTournaments returns tournaments running today: startDate <= today <=
// endDate, both ends inclusive. The cache holds the whole season's list, not
// the live subset, so the answer stays correct as days pass within one TTL.
func (s *Service) LiveTournaments(ctx context.Context) (models.TournamentResponse, error) {
	key := cache.Key("tournaments_season", s.cache.DateBucket())
	season, err := fetchCached(s, ctx, key, func(fctx context.Context) ([]models.TournamentRecord, error) {
		res, ferr := s.national.FetchSeasonTournaments(fctx, seasonTournamentsLimit)
		if ferr != nil {
			recordScrapeFailure("national", ferr)
		}
		return res, ferr
	})
	if err != nil {
		return models.TournamentResponse{}, err
	}

	today := s.clock.Now().Format("2006-01-02")
	live := []models.TournamentRecord{}
	for _, t := range season {
		if t.StartDate == "" {
			continue
		}
		end := t.EndDate
		if end == "" {
			end = t.StartDate
		}
		if t.StartDate <= today && today <= end {
			live = append(live, t)
		}
	}
	sort.SliceStable(live, func(i, j int) bool {
		ei, ej := live[i].EndDate, live[j].EndDate
		if ei == "" {
			ei = live[i].StartDate
		}
		if ej == "" {
			ej = live[j].StartDate
		}
		return ei < ej
	})

	return models.TournamentResponse{
		Source:      "badmintoncanada.tournamentsoftware.com",
		LastUpdated: s.now(),
		Items:       live,
		TotalCount:  len(live),
	}, nil
}

// TournamentDraws returns one tournament's draw list, cached per tournament.
func (s *Service) TournamentDraws(ctx context.Context, tournamentID string) (models.DrawsResponse, error) {
	tid := strings.ToUpper(strings.TrimSpace(tournamentID))
	key := cache.Key("tournament_draws", tid, s.cache.DateBucket())
	draws, err := fetchCached(s, ctx, key, func(fctx context.Context) ([]models.DrawItem, error) {
		res, ferr := s.national.FetchTournamentDraws(fctx, tid)
		if ferr != nil {
			recordScrapeFailure("national", ferr)
		}
		return res, ferr
	})
	if err != nil {
		return models.DrawsResponse{}, err
	}
	return models.DrawsResponse{
		TournamentID: tid,
		Source:       "badmintoncanada.tournamentsoftware.com",
		LastUpdated:  s.now(),
		Draws:        draws,
		TotalCount:   len(draws),
	}, nil
}

// Calendar returns the provincial circuit calendar.
func (s *Service) Calendar(ctx context.Context) (models.CalendarResponse, error) {
	key := cache.Key("abc_calendar", s.cache.DateBucket())
	events, err := fetchCached(s, ctx, key, func(fctx context.Context) ([]models.CalendarEvent, error) {
		res, ferr := s.calendar.Fetch(fctx, calendarLimit)
		if ferr != nil {
			recordScrapeFailure("calendar", ferr)
		}
		return res, ferr
	})
	if err != nil {
		return models.CalendarResponse{}, err
	}
	return models.CalendarResponse{
		Source:      "badmintonquebec.com",
		LastUpdated: s.now(),
		Events:      events,
		TotalCount:  len(events),
	}, nil
}

// News returns the French items of the national news feed.
func (s *Service) News(ctx context.Context) (models.NewsResponse, error) {
	key := cache.Key("news_fr", s.cache.DateBucket())
	items, err := fetchCached(s, ctx, key, func(fctx context.Context) ([]models.NewsItem, error) {
		res, ferr := s.news.Fetch(fctx, defaultNewsLimit)
		if ferr != nil {
			recordScrapeFailure("news", ferr)
		}
		return res, ferr
	})
	if err != nil {
		return models.NewsResponse{}, err
	}
	return models.NewsResponse{
		Source:      "badminton.ca",
		LastUpdated: s.now(),
		Items:       items,
		TotalCount:  len(items),
	}, nil
}

// ClearCache drops all entries, or only those under prefix when non-empty,
// and returns the number removed.
func (s *Service) ClearCache(prefix string) int {
	if prefix == "" {
		n := s.cache.Clear()
		logger.Info("cache cleared: %d entries", n)
		return n
	}
	n := s.cache.ClearPrefix(prefix)
	logger.Info("cache cleared under %q: %d entries", prefix, n)
	return n
}

// CacheLen reports the current number of live cache entries.
func (s *Service) CacheLen() int { return s.cache.Len() }

// WarmRankings prefetches every national category plus the provincial A tier,
// for the cron warmer. Failures are logged and skipped; warming never aborts.
func (s *Service) WarmRankings(ctx context.Context) {
	for _, category := range models.Categories {
		if _, err := s.NationalRankings(ctx, category, ""); err != nil {
			logger.Warn("warmup: national %s failed: %v", category, err)
		}
	}
	for _, category := range models.Categories {
		if _, err := s.ProvincialRankings(ctx, category, models.TierA); err != nil {
			logger.Warn("warmup: provincial %s A failed: %v", category, err)
		}
	}
}

func (s *Service) rankingResponse(category models.Category, scope models.Scope, tier models.Tier, entries []models.RankingEntry) models.RankingResponse {
	return models.RankingResponse{
		Category:    category,
		Scope:       scope,
		Tier:        tier,
		LastUpdated: s.now(),
		Rankings:    entries,
		TotalCount:  len(entries),
	}
}

func (s *Service) now() string {
	return s.clock.Now().UTC().Format(time.RFC3339)
}

func recordScrapeFailure(source string, err error) {
	kind := "other"
	switch {
	case errors.Is(err, scrape.ErrUnavailable):
		kind = "unavailable"
	case errors.Is(err, scrape.ErrParseFailure):
		kind = "parse"
	}
	metrics.ScrapeFailures.WithLabelValues(source, kind).Inc()
}
