package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/models"
	"github.com/bcrapp/bcr-backend/pkg/normalizer"
)

const (
	tsBase        = "https://badmintoncanada.tournamentsoftware.com"
	rankingListID = "49797"
)

// Upstream ranking category ids for the current national list.
var nationalCategoryIDs = map[models.Category]string{
	models.MensSingles:   "151",
	models.WomensSingles: "152",
	models.MensDoubles:   "153",
	models.WomensDoubles: "154",
	models.MixedDoubles:  "155",
}

var (
	playerIDPattern  = regexp.MustCompile(`[?&]player=(\d+)`)
	memberIDPattern  = regexp.MustCompile(`^[A-Z]{2}\d+$`)
	rankingOfPattern = regexp.MustCompile(`(?i)Ranking of\s+(.+?)\s*\(([^)]+)\)`)
	tournamentIDPat  = regexp.MustCompile(`[?&]id=([0-9A-Fa-f-]{36})`)
)

// National scrapes the national federation's tournament-software pages:
// ranking tables, player profiles, player search and tournament search.
type National struct {
	h    *httpClient
	base string
}

// NewNational creates the national source adapter. An empty base uses the
// production upstream; tests point it at a fixture server.
func NewNational(base string, timeout time.Duration) *National {
	if base == "" {
		base = tsBase
	}
	return &National{h: newHTTPClient(timeout), base: base}
}

// FetchRankings scrapes one category's national ranking table. Doubles rows
// are routed through the normalizer when the upstream markup lost the pair
// separator. Zero extracted rows is a parse failure, never an empty result.
func (n *National) FetchRankings(ctx context.Context, category models.Category) ([]models.RankingEntry, error) {
	id, ok := nationalCategoryIDs[category]
	if !ok {
		return nil, fmt.Errorf("%w: no upstream category id for %s", ErrParseFailure, category)
	}
	pageURL := fmt.Sprintf("%s/ranking/category.aspx?id=%s&category=%s", n.base, rankingListID, id)
	logger.Info("national: fetching rankings %s from %s", category, pageURL)

	doc, err := n.h.getDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	table := findTableWithHeaders(doc, "rank", "points")
	if table == nil {
		return nil, fmt.Errorf("%w: no ranking table with rank/points headers on %s", ErrParseFailure, pageURL)
	}

	snapshot := time.Now().UTC().Format(time.RFC3339)
	var entries []models.RankingEntry

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td, th")
		if cells.Length() < 3 {
			return
		}

		var texts []string
		cells.Each(func(_ int, c *goquery.Selection) {
			texts = append(texts, normalizer.CollapseSpaces(c.Text()))
		})

		rank := findRank(texts)
		if rank == 0 {
			return
		}

		anchors := playerAnchors(row)
		entry := models.RankingEntry{
			Rank:       rank,
			Points:     findPoints(texts),
			Category:   category,
			Scope:      models.ScopeNational,
			Province:   findProvince(texts),
			SnapshotAt: snapshot,
		}

		if category.IsDoubles() {
			switch {
			case len(anchors) >= 2:
				entry.Primary = anchors[0]
				p := anchors[1]
				entry.Partner = &p
			case len(anchors) == 1:
				primary, partner, split := normalizer.SplitDoubles(anchors[0].Name)
				entry.Primary = models.Player{Name: primary, ID: anchors[0].ID}
				if split {
					entry.Partner = &models.Player{Name: partner}
				}
			default:
				raw := findNameCell(texts)
				if raw == "" {
					return
				}
				primary, partner, split := normalizer.SplitDoubles(raw)
				entry.Primary = models.Player{Name: primary}
				if split {
					entry.Partner = &models.Player{Name: partner}
				} else {
					logger.Warn("national: could not split doubles pair %q in %s", raw, category)
				}
			}
		} else {
			if len(anchors) > 0 {
				entry.Primary = anchors[0]
			} else if raw := findNameCell(texts); raw != "" {
				entry.Primary = models.Player{Name: normalizer.TitleCase(raw)}
			} else {
				return
			}
		}

		entries = append(entries, entry)
	})

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: zero ranking rows extracted for %s from %s", ErrParseFailure, category, pageURL)
	}
	logger.Info("national: extracted %d ranking rows for %s", len(entries), category)
	return entries, nil
}

// FetchPlayerProfile scrapes one player's ranking page. The per-category
// table is located by its Category/Points header labels.
func (n *National) FetchPlayerProfile(ctx context.Context, playerID string) (*models.PlayerProfile, error) {
	pageURL := fmt.Sprintf("%s/ranking/player.aspx?id=%s&player=%s", n.base, rankingListID, playerID)
	logger.Info("national: fetching player profile %s", pageURL)

	body, err := n.h.getBody(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	profile := &models.PlayerProfile{
		PlayerID:    playerID,
		FullName:    "Player " + playerID,
		ProfileURL:  pageURL,
		LastUpdated: time.Now().UTC().Format(time.RFC3339),
	}
	if m := rankingOfPattern.FindSubmatch(body); m != nil {
		profile.FullName = strings.TrimSpace(string(m[1]))
		profile.MemberID = strings.TrimSpace(string(m[2]))
		if memberIDPattern.MatchString(profile.MemberID) {
			profile.Province = profile.MemberID[:2]
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrParseFailure, pageURL, err)
	}

	table := findTableWithHeaders(doc, "category", "points")
	if table == nil {
		// Players without any current ranking have no table at all.
		return profile, nil
	}

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		tds := row.Find("td")
		if tds.Length() < 4 {
			return
		}

		categoryName := normalizer.CollapseSpaces(tds.Eq(0).Text())
		category := mapCategoryFromText(categoryName)
		if category == "" {
			return
		}

		item := models.PlayerRankingItem{
			Category:     category,
			CategoryName: categoryName,
		}

		if a := tds.Eq(1).Find("a[href]").First(); a.Length() > 0 {
			partner := models.Player{Name: normalizer.CollapseSpaces(a.Text())}
			if href, ok := a.Attr("href"); ok {
				if m := playerIDPattern.FindStringSubmatch(href); m != nil {
					partner.ID = m[1]
				}
			}
			if partner.Name != "" {
				item.Partner = &partner
			}
		}

		row.Find("td").EachWithBreak(func(_ int, td *goquery.Selection) bool {
			if class, _ := td.Attr("class"); strings.Contains(class, "rank") && !strings.Contains(class, "rankingpoints") {
				if v, err := strconv.Atoi(strings.TrimSpace(firstNumber(td.Text()))); err == nil {
					item.Rank = v
					return false
				}
			}
			return true
		})
		if item.Rank == 0 {
			return
		}

		if td := row.Find("td.rankingpoints").First(); td.Length() > 0 {
			item.Points = normalizer.ParsePoints(td.Text())
		}

		profile.Rankings = append(profile.Rankings, item)
	})

	return profile, nil
}

// SearchPlayers queries the upstream find endpoint. The endpoint requires a
// session cookie obtained by loading the find page first; the shared cookie
// jar carries it over.
func (n *National) SearchPlayers(ctx context.Context, query string, limit int) ([]models.PlayerSearchResult, error) {
	q := strings.TrimSpace(query)
	if len(q) < 2 {
		return []models.PlayerSearchResult{}, nil
	}

	findURL := fmt.Sprintf("%s/ranking/find.aspx?id=%s", n.base, rankingListID)
	methodURL := findURL[:strings.Index(findURL, "?")] + "/GetRankingPlayer"

	// Seed session cookies.
	res, err := n.h.do(ctx, http.MethodGet, findURL, nil, nil)
	if err != nil {
		return nil, err
	}
	res.Body.Close()

	listID, _ := strconv.Atoi(rankingListID)
	payload, _ := json.Marshal(map[string]interface{}{
		"LCID":      4105,
		"RankingID": listID,
		// The webmethod expects a JS encodeURIComponent-encoded value.
		"Value": url.QueryEscape(q),
	})
	res, err = n.h.do(ctx, http.MethodPost, methodURL, bytes.NewReader(payload), map[string]string{
		"Content-Type":     "application/json; charset=utf-8",
		"X-Requested-With": "XMLHttpRequest",
		"Referer":          findURL,
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var decoded struct {
		D []struct {
			ID        json.Number `json:"ID"`
			Value     string      `json:"Value"`
			ExtraInfo string      `json:"ExtraInfo"`
		} `json:"d"`
	}
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding player search response: %v", ErrParseFailure, err)
	}

	out := []models.PlayerSearchResult{}
	for _, it := range decoded.D {
		if len(out) >= limit {
			break
		}
		pid := strings.TrimSpace(it.ID.String())
		name := strings.TrimSpace(it.Value)
		if pid == "" || name == "" {
			continue
		}
		r := models.PlayerSearchResult{PlayerID: pid, FullName: name, MemberID: strings.TrimSpace(it.ExtraInfo)}
		if memberIDPattern.MatchString(r.MemberID) {
			r.Province = r.MemberID[:2]
		}
		out = append(out, r)
	}
	return out, nil
}

// SearchTournaments queries the upstream tournament finder, restricted to the
// current season window.
func (n *National) SearchTournaments(ctx context.Context, query string, limit int) ([]models.TournamentRecord, error) {
	return n.searchTournaments(ctx, strings.TrimSpace(query), 1, limit)
}

// FetchSeasonTournaments pages through the finder with an empty query to
// collect the full season list; the live-tournament filter is applied by the
// caller against this list.
func (n *National) FetchSeasonTournaments(ctx context.Context, limit int) ([]models.TournamentRecord, error) {
	var out []models.TournamentRecord
	seen := map[string]bool{}
	for page := 1; page <= 10 && len(out) < limit; page++ {
		items, err := n.searchTournaments(ctx, "", page, limit-len(out))
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			break
		}
		for _, it := range items {
			if seen[it.ID] {
				continue
			}
			seen[it.ID] = true
			out = append(out, it)
		}
	}
	return out, nil
}

func (n *National) searchTournaments(ctx context.Context, query string, page, limit int) ([]models.TournamentRecord, error) {
	seasonStart, seasonEnd := SeasonRange(time.Now())
	searchURL := n.base + "/find/tournament/DoSearch"

	form := url.Values{}
	form.Set("Page", strconv.Itoa(page))
	form.Set("TournamentExtendedFilter.SportID", "2") // badminton
	form.Set("TournamentFilter.Q", query)
	form.Set("TournamentFilter.StartDate", seasonStart+"T00:00")
	form.Set("TournamentFilter.EndDate", seasonEnd+"T00:00")

	doc, err := n.h.postFormDocument(ctx, searchURL, form)
	if err != nil {
		return nil, err
	}

	items := []models.TournamentRecord{}
	doc.Find("li.list__item").EachWithBreak(func(_ int, li *goquery.Selection) bool {
		a := li.Find("a.media__link[href*='/sport/tournament?id=']").First()
		href, _ := a.Attr("href")
		m := tournamentIDPat.FindStringSubmatch(href)
		if m == nil {
			return true
		}
		rec := models.TournamentRecord{
			ID:          strings.ToUpper(m[1]),
			Name:        normalizer.CollapseSpaces(a.Text()),
			ExternalURL: n.base + href,
		}
		if rec.Name == "" {
			return true
		}
		rec.DrawsURL = fmt.Sprintf("%s/sport/draws.aspx?id=%s", n.base, rec.ID)

		if loc := li.Find(".media__subheading .icon-marker").First(); loc.Length() > 0 {
			if parent := loc.Closest(".media__subheading"); parent.Length() > 0 {
				rec.Location = normalizer.CollapseSpaces(parent.Text())
			}
		}

		times := li.Find("time")
		if times.Length() >= 1 {
			if dt, ok := times.Eq(0).Attr("datetime"); ok {
				rec.StartDate = strings.SplitN(dt, " ", 2)[0]
			}
		}
		if times.Length() >= 2 {
			if dt, ok := times.Eq(1).Attr("datetime"); ok {
				rec.EndDate = strings.SplitN(dt, " ", 2)[0]
			}
		}

		if img := li.Find("img.media__img-element").First(); img.Length() > 0 {
			if src, ok := img.Attr("src"); ok && src != "" {
				if !strings.HasPrefix(src, "http") {
					src = "https:" + src
				}
				rec.ImageURL = src
			}
		}

		li.Find(".tag").Each(func(_ int, t *goquery.Selection) {
			if tag := normalizer.CollapseSpaces(t.Text()); tag != "" {
				rec.Tags = append(rec.Tags, tag)
			}
		})

		if !overlapsSeason(rec.StartDate, rec.EndDate, seasonStart, seasonEnd) {
			return true
		}
		items = append(items, rec)
		return len(items) < limit
	})

	return items, nil
}

// FetchTournamentDraws scrapes the draw list of one tournament. The page
// renders a single table, one row per draw, the draw link in the first cell.
// A tournament with no published draws has no table; that is an empty result,
// not a failure.
func (n *National) FetchTournamentDraws(ctx context.Context, tournamentID string) ([]models.DrawItem, error) {
	tid := strings.ToUpper(strings.TrimSpace(tournamentID))
	pageURL := fmt.Sprintf("%s/sport/draws.aspx?id=%s", n.base, tid)
	logger.Info("national: fetching draws %s", pageURL)

	doc, err := n.h.getDocument(ctx, pageURL)
	if err != nil {
		return nil, err
	}

	draws := []models.DrawItem{}
	doc.Find("table").First().Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return
		}
		a := tds.Eq(0).Find("a[href]").First()
		if a.Length() == 0 {
			return
		}
		name := normalizer.CollapseSpaces(a.Text())
		if name == "" {
			return
		}
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "http") {
			href = n.base + "/sport/" + strings.TrimPrefix(href, "/")
		}

		cell := func(i int) string {
			if i >= tds.Length() {
				return ""
			}
			return normalizer.CollapseSpaces(tds.Eq(i).Text())
		}
		draws = append(draws, models.DrawItem{
			Name:        name,
			Size:        cell(1),
			Type:        cell(2),
			Stage:       cell(3),
			Consolation: cell(4),
			URL:         href,
		})
	})

	logger.Info("national: extracted %d draws for %s", len(draws), tid)
	return draws, nil
}

// SeasonRange returns (start, end) of the badminton season containing now,
// treated as July 1 through June 30, in "2006-01-02" form.
func SeasonRange(now time.Time) (string, string) {
	startYear := now.Year()
	if now.Month() < time.July {
		startYear--
	}
	return fmt.Sprintf("%d-07-01", startYear), fmt.Sprintf("%d-06-30", startYear+1)
}

// overlapsSeason uses lexicographic compare, valid for "2006-01-02" dates.
func overlapsSeason(startDate, endDate, seasonStart, seasonEnd string) bool {
	if startDate == "" {
		return false
	}
	sd := startDate[:min(10, len(startDate))]
	ed := endDate
	if ed == "" {
		ed = startDate
	}
	ed = ed[:min(10, len(ed))]
	return sd <= seasonEnd && ed >= seasonStart
}

func playerAnchors(row *goquery.Selection) []models.Player {
	var out []models.Player
	seen := map[string]bool{}
	row.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		m := playerIDPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		name := normalizer.CollapseSpaces(a.Text())
		if name == "" {
			return
		}
		key := m[1] + "|" + name
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, models.Player{Name: name, ID: m[1]})
	})
	return out
}

// findRank picks the first small integer cell; ranking positions are well
// below 1000 while points and ids are not.
func findRank(texts []string) int {
	for _, t := range texts {
		if v, err := strconv.Atoi(t); err == nil && v >= 1 && v < 1000 {
			return v
		}
	}
	return 0
}

// findPoints picks the first numeric cell at or above 1000, matching how the
// upstream table mixes rank and points columns.
func findPoints(texts []string) float64 {
	for _, t := range texts {
		if v := normalizer.ParsePoints(t); v >= 1000 {
			return v
		}
	}
	return 0
}

func findProvince(texts []string) string {
	for _, t := range texts {
		if memberIDPattern.MatchString(t) {
			return t[:2]
		}
	}
	return ""
}

// findNameCell is the fallback when a row carries no player anchors: the
// first cell that looks like a person name rather than a number or member id.
func findNameCell(texts []string) string {
	for _, t := range texts {
		if len(t) <= 2 {
			continue
		}
		stripped := strings.ReplaceAll(strings.ReplaceAll(t, ".", ""), ",", "")
		if _, err := strconv.Atoi(stripped); err == nil {
			continue
		}
		if memberIDPattern.MatchString(t) {
			continue
		}
		alpha := 0
		for _, c := range t {
			if c == ' ' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z') || c > 127 {
				alpha++
			}
		}
		if alpha*2 > len(t) {
			return t
		}
	}
	return ""
}

func firstNumber(s string) string {
	start := -1
	for i, c := range s {
		if c >= '0' && c <= '9' {
			if start < 0 {
				start = i
			}
		} else if start >= 0 {
			return s[start:i]
		}
	}
	if start >= 0 {
		return s[start:]
	}
	return ""
}

func mapCategoryFromText(text string) models.Category {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "mixed"):
		return models.MixedDoubles
	case (strings.Contains(t, "women") || strings.Contains(t, "ladies")) && strings.Contains(t, "double"):
		return models.WomensDoubles
	case strings.Contains(t, "men") && strings.Contains(t, "double"):
		return models.MensDoubles
	case (strings.Contains(t, "women") || strings.Contains(t, "ladies")) && strings.Contains(t, "single"):
		return models.WomensSingles
	case strings.Contains(t, "men") && strings.Contains(t, "single"):
		return models.MensSingles
	}
	return ""
}
