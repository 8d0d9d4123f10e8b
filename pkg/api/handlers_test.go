package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bcrapp/bcr-backend/pkg/auth"
	"github.com/bcrapp/bcr-backend/pkg/cache"
	"github.com/bcrapp/bcr-backend/pkg/config"
	"github.com/bcrapp/bcr-backend/pkg/media"
	"github.com/bcrapp/bcr-backend/pkg/models"
	"github.com/bcrapp/bcr-backend/pkg/ratelimit"
	"github.com/bcrapp/bcr-backend/pkg/scrape"
	"github.com/bcrapp/bcr-backend/pkg/service"
)

type stubNational struct {
	rankings []models.RankingEntry
	draws    []models.DrawItem
	err      error
}

func (s *stubNational) FetchRankings(ctx context.Context, category models.Category) ([]models.RankingEntry, error) {
	return s.rankings, s.err
}

func (s *stubNational) FetchPlayerProfile(ctx context.Context, playerID string) (*models.PlayerProfile, error) {
	return &models.PlayerProfile{PlayerID: playerID, FullName: "Player " + playerID}, s.err
}

func (s *stubNational) SearchPlayers(ctx context.Context, query string, limit int) ([]models.PlayerSearchResult, error) {
	return []models.PlayerSearchResult{}, nil
}

func (s *stubNational) SearchTournaments(ctx context.Context, query string, limit int) ([]models.TournamentRecord, error) {
	return nil, nil
}

func (s *stubNational) FetchSeasonTournaments(ctx context.Context, limit int) ([]models.TournamentRecord, error) {
	return nil, nil
}

func (s *stubNational) FetchTournamentDraws(ctx context.Context, tournamentID string) ([]models.DrawItem, error) {
	return s.draws, s.err
}

type stubProvincial struct{}

func (stubProvincial) FetchTierRankings(ctx context.Context, tier models.Tier, category models.Category) ([]models.RankingEntry, error) {
	return []models.RankingEntry{}, nil
}

type stubNews struct{}

func (stubNews) Fetch(ctx context.Context, limit int) ([]models.NewsItem, error) {
	return []models.NewsItem{}, nil
}

type stubCalendar struct{ events []models.CalendarEvent }

func (s stubCalendar) Fetch(ctx context.Context, limit int) ([]models.CalendarEvent, error) {
	return s.events, nil
}

func newTestServer(t *testing.T, nat *stubNational) *httptest.Server {
	t.Helper()

	root := t.TempDir()
	sink, err := media.NewLocalSink(root, "/media-files")
	require.NoError(t, err)
	library, err := media.NewLibrary(filepath.Join(root, "photos.db"), sink)
	require.NoError(t, err)
	t.Cleanup(func() { library.Close() })

	store := cache.New(time.Hour, cache.SystemClock())
	svc := service.New(store, nat, stubProvincial{}, stubNews{}, stubCalendar{}, cache.SystemClock(), 5*time.Second)

	cfg := config.Config{
		Addr:                 ":0",
		CORSOrigins:          []string{"*"},
		MediaRoot:            root,
		MediaBackend:         "local",
		RateLimitWritePerMin: 100,
	}
	server := NewServer(svc, library, auth.New("press-key", "server-secret"), ratelimit.New(100, time.Minute), cfg)

	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, headers map[string]string, body []byte) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(res.Body)
	require.NoError(t, err)
	return res, buf.Bytes()
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubNational{})
	res, body := doJSON(t, "GET", srv.URL+"/health", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"status":"ok"`)
}

func TestRankingsValidation(t *testing.T) {
	srv := newTestServer(t, &stubNational{})

	res, _ := doJSON(t, "GET", srv.URL+"/rankings/ZZ", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, "GET", srv.URL+"/rankings/MS/abc/Z", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, _ = doJSON(t, "GET", srv.URL+"/player/not-a-number", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestRankingsSuccess(t *testing.T) {
	nat := &stubNational{rankings: []models.RankingEntry{{
		Rank:    1,
		Points:  12500,
		Primary: models.Player{Name: "Nyl Yakura"},
		Partner: &models.Player{Name: "Adam Dong"},
	}}}
	srv := newTestServer(t, nat)

	res, body := doJSON(t, "GET", srv.URL+"/rankings/md", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var resp models.RankingResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, models.MensDoubles, resp.Category)
	require.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, "Nyl Yakura", resp.Rankings[0].Primary.Name)
	assert.Equal(t, "Adam Dong", resp.Rankings[0].Partner.Name)
}

func TestRankingsScopeParam(t *testing.T) {
	srv := newTestServer(t, &stubNational{})

	res, body := doJSON(t, "GET", srv.URL+"/rankings/WS?scope=provincial", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var resp models.RankingResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, models.ScopeProvincial, resp.Scope)
	assert.Equal(t, models.TierA, resp.Tier)

	res, _ = doJSON(t, "GET", srv.URL+"/rankings/WS?scope=galactic", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPlayerSearchPathAliases(t *testing.T) {
	srv := newTestServer(t, &stubNational{})

	res, _ := doJSON(t, "GET", srv.URL+"/player/search?name=ya", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, _ = doJSON(t, "GET", srv.URL+"/players/search?q=ya", nil, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestTournamentDraws(t *testing.T) {
	nat := &stubNational{draws: []models.DrawItem{{
		Name: "Men's Singles",
		Size: "32",
		URL:  "https://example.org/sport/draw.aspx?id=1",
	}}}
	srv := newTestServer(t, nat)

	res, body := doJSON(t, "GET", srv.URL+"/tournament/ab111111-2222-3333-4444-555555555555/draws", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var resp models.DrawsResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "AB111111-2222-3333-4444-555555555555", resp.TournamentID)
	require.Equal(t, 1, resp.TotalCount)
	assert.Equal(t, "Men's Singles", resp.Draws[0].Name)

	// Anything that is not a 36-character GUID never reaches the fetch.
	res, _ = doJSON(t, "GET", srv.URL+"/tournament/not-a-guid/draws", nil, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCalendar(t *testing.T) {
	srv := newTestServer(t, &stubNational{})
	res, body := doJSON(t, "GET", srv.URL+"/abc/calendar", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	var resp models.CalendarResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "badmintonquebec.com", resp.Source)
	assert.Equal(t, 0, resp.TotalCount)
}

func TestLiveTournamentsOmitsQuery(t *testing.T) {
	srv := newTestServer(t, &stubNational{})

	res, body := doJSON(t, "GET", srv.URL+"/tournaments/live", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, string(body), `"query"`)

	res, body = doJSON(t, "GET", srv.URL+"/tournaments/search?q=yonex", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"query":"yonex"`)
}

func TestUpstreamFailureMapsTo502(t *testing.T) {
	srv := newTestServer(t, &stubNational{err: scrape.ErrParseFailure})
	res, _ := doJSON(t, "GET", srv.URL+"/rankings/MS", nil, nil)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)

	srv = newTestServer(t, &stubNational{err: scrape.ErrUnavailable})
	res, _ = doJSON(t, "GET", srv.URL+"/rankings/MS", nil, nil)
	assert.Equal(t, http.StatusBadGateway, res.StatusCode)
}

func TestPhotoUploadAuthorization(t *testing.T) {
	srv := newTestServer(t, &stubNational{})
	img := []byte("jpeg-bytes")

	// Visitor: no credential at all.
	res, _ := doJSON(t, "POST", srv.URL+"/media/photos/QC12345", nil, img)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// Wrong media key.
	res, _ = doJSON(t, "POST", srv.URL+"/media/photos/QC12345", map[string]string{auth.HeaderMediaKey: "guess"}, img)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// Standard actor writing to someone else's profile.
	res, _ = doJSON(t, "POST", srv.URL+"/media/photos/QC12345", map[string]string{auth.HeaderSelfID: "ON99999"}, img)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	// Accredited media can write to any profile.
	res, body := doJSON(t, "POST", srv.URL+"/media/photos/QC12345", map[string]string{auth.HeaderMediaKey: "press-key"}, img)
	require.Equal(t, http.StatusCreated, res.StatusCode)

	var photo models.UserPhoto
	require.NoError(t, json.Unmarshal(body, &photo))
	assert.NotEmpty(t, photo.ID)
	assert.Equal(t, "media", photo.AddedByMode)
	// The ownership tag never leaves the server.
	assert.NotContains(t, string(body), "ownership")
}

func TestPhotoDeleteOwnership(t *testing.T) {
	srv := newTestServer(t, &stubNational{})

	res, body := doJSON(t, "POST", srv.URL+"/media/photos/QC12345", map[string]string{auth.HeaderMediaKey: "press-key"}, []byte("img"))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var photo models.UserPhoto
	require.NoError(t, json.Unmarshal(body, &photo))

	url := srv.URL + "/media/photos/QC12345/" + photo.ID

	// A different credential cannot delete, and the record stays intact.
	res, _ = doJSON(t, "DELETE", url, map[string]string{auth.HeaderMediaKey: "other-key"}, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body = doJSON(t, "GET", srv.URL+"/media/photos/QC12345", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	var photos []models.UserPhoto
	require.NoError(t, json.Unmarshal(body, &photos))
	require.Len(t, photos, 1)

	// Unknown photo id is a 404, not a permission error.
	res, _ = doJSON(t, "DELETE", srv.URL+"/media/photos/QC12345/nope", map[string]string{auth.HeaderMediaKey: "press-key"}, nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	// The original key deletes.
	res, _ = doJSON(t, "DELETE", url, map[string]string{auth.HeaderMediaKey: "press-key"}, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	res, body = doJSON(t, "GET", srv.URL+"/media/photos/QC12345", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &photos))
	assert.Empty(t, photos)
}

func TestStandardSelfUploadAndDelete(t *testing.T) {
	srv := newTestServer(t, &stubNational{})
	headers := map[string]string{auth.HeaderSelfID: "QC12345"}

	res, body := doJSON(t, "POST", srv.URL+"/media/photos/QC12345", headers, []byte("img"))
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var photo models.UserPhoto
	require.NoError(t, json.Unmarshal(body, &photo))
	assert.Equal(t, "self", photo.AddedByMode)

	// Another standard actor cannot delete it.
	res, _ = doJSON(t, "DELETE", srv.URL+"/media/photos/QC12345/"+photo.ID, map[string]string{auth.HeaderSelfID: "ON99999"}, nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, _ = doJSON(t, "DELETE", srv.URL+"/media/photos/QC12345/"+photo.ID, headers, nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestAvatarRequiresStandardOwner(t *testing.T) {
	srv := newTestServer(t, &stubNational{})

	res, _ := doJSON(t, "POST", srv.URL+"/media/avatar/QC12345", map[string]string{auth.HeaderMediaKey: "press-key"}, []byte("img"))
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	res, body := doJSON(t, "POST", srv.URL+"/media/avatar/QC12345", map[string]string{auth.HeaderSelfID: "QC12345"}, []byte("img"))
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "avatar_url")

	res, body = doJSON(t, "GET", srv.URL+"/media/avatar/QC12345", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "/media-files/avatars/avatar_QC12345.jpg")
}

func TestEmptyUploadRejected(t *testing.T) {
	srv := newTestServer(t, &stubNational{})
	res, _ := doJSON(t, "POST", srv.URL+"/media/photos/QC12345", map[string]string{auth.HeaderMediaKey: "press-key"}, nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCacheClear(t *testing.T) {
	nat := &stubNational{rankings: []models.RankingEntry{{Rank: 1, Primary: models.Player{Name: "X"}}}}
	srv := newTestServer(t, nat)

	res, _ := doJSON(t, "GET", srv.URL+"/rankings/MS", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)

	res, body := doJSON(t, "POST", srv.URL+"/cache/clear?prefix=rankings%7C", nil, nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"cleared":1`)
}
