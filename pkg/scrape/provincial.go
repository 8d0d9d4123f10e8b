package scrape

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/models"
	"github.com/bcrapp/bcr-backend/pkg/normalizer"
)

const abcRankingURL = "https://www.badmintonquebec.com/fr/page/membres/classement-adulte"

// Provincial scrapes the Badminton Québec adult ABC ranking page: a single
// table carrying every tier and gender, filtered client-side per request.
type Provincial struct {
	h   *httpClient
	url string
}

// NewProvincial creates the provincial source adapter. An empty url uses the
// production upstream; tests point it at a fixture server.
func NewProvincial(rankingURL string, timeout time.Duration) *Provincial {
	if rankingURL == "" {
		rankingURL = abcRankingURL
	}
	return &Provincial{h: newHTTPClient(timeout), url: rankingURL}
}

// Column labels on the upstream page. The table is located and indexed by
// these headers so a column reorder upstream cannot silently misparse.
const (
	colNo     = "no"
	colName   = "nom"
	colClass  = "classe"
	colCoteS  = "cotes"
	colCoteD  = "coted"
	colCoteDX = "cotedx"
)

type abcRow struct {
	memberID string
	name     string
	class    string
	points   float64
}

// FetchTierRankings scrapes one tier/category slice of the ABC table. Rows
// are filtered by tier prefix and gender, sorted by points descending and
// re-ranked from one. Doubles categories group consecutive identical-points
// rows into pairs. A table that yields zero raw rows is a parse failure; a
// filter that matches nothing is a valid empty result.
func (p *Provincial) FetchTierRankings(ctx context.Context, tier models.Tier, category models.Category) ([]models.RankingEntry, error) {
	logger.Info("provincial: fetching ABC rankings tier=%s category=%s from %s", tier, category, p.url)

	doc, err := p.h.getDocument(ctx, p.url)
	if err != nil {
		return nil, err
	}

	table := findTableWithHeaders(doc, colNo, colName, colClass)
	if table == nil {
		return nil, fmt.Errorf("%w: no ABC table with NO/NOM/CLASSE headers on %s", ErrParseFailure, p.url)
	}

	idx := headerIndex(table)
	pointsCol, ok := pointsColumnFor(category, idx)
	if !ok {
		return nil, fmt.Errorf("%w: ABC table missing points column for %s", ErrParseFailure, category)
	}

	rawRows := 0
	var rows []abcRow
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		if tds.Length() == 0 {
			return
		}
		rawRows++

		get := func(col string) string {
			i, ok := idx[col]
			if !ok || i >= tds.Length() {
				return ""
			}
			return normalizer.CollapseSpaces(tds.Eq(i).Text())
		}

		row := abcRow{
			memberID: get(colNo),
			name:     get(colName),
			class:    strings.ToUpper(get(colClass)),
			points:   normalizer.ParsePoints(get(pointsCol)),
		}
		if row.name == "" || row.points <= 0 {
			return
		}
		if !strings.HasPrefix(row.class, string(tier)) {
			return
		}
		if !genderMatches(category, row.class) {
			return
		}
		rows = append(rows, row)
	})

	if rawRows == 0 {
		return nil, fmt.Errorf("%w: zero ABC rows extracted from %s", ErrParseFailure, p.url)
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].points > rows[j].points })

	snapshot := time.Now().UTC().Format(time.RFC3339)
	entries := []models.RankingEntry{}

	if category.IsDoubles() {
		// Upstream lists doubles partners as adjacent rows sharing one cote.
		for i := 0; i < len(rows); {
			entry := models.RankingEntry{
				Rank:       len(entries) + 1,
				Points:     rows[i].points,
				Category:   category,
				Scope:      models.ScopeProvincial,
				Tier:       tier,
				Primary:    models.Player{Name: normalizer.TitleCase(rows[i].name), ID: rows[i].memberID},
				Province:   provinceFromMemberID(rows[i].memberID),
				SnapshotAt: snapshot,
			}
			if i+1 < len(rows) && rows[i+1].points == rows[i].points {
				entry.Partner = &models.Player{Name: normalizer.TitleCase(rows[i+1].name), ID: rows[i+1].memberID}
				i += 2
			} else {
				i++
			}
			entries = append(entries, entry)
		}
	} else {
		for _, row := range rows {
			entries = append(entries, models.RankingEntry{
				Rank:       len(entries) + 1,
				Points:     row.points,
				Category:   category,
				Scope:      models.ScopeProvincial,
				Tier:       tier,
				Primary:    models.Player{Name: normalizer.TitleCase(row.name), ID: row.memberID},
				Province:   provinceFromMemberID(row.memberID),
				SnapshotAt: snapshot,
			})
		}
	}

	logger.Info("provincial: %d entries for tier=%s category=%s (%d raw rows)", len(entries), tier, category, rawRows)
	return entries, nil
}

// headerIndex maps normalized header labels to their column positions.
func headerIndex(table *goquery.Selection) map[string]int {
	idx := map[string]int{}
	headerRow := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Find("th").Length() > 0
	}).First()
	if headerRow.Length() == 0 {
		headerRow = table.Find("tr").First()
	}
	headerRow.Find("th, td").Each(func(i int, c *goquery.Selection) {
		label := strings.ToLower(normalizer.CollapseSpaces(c.Text()))
		label = strings.ReplaceAll(label, " ", "")
		if label != "" {
			if _, dup := idx[label]; !dup {
				idx[label] = i
			}
		}
	})
	return idx
}

func pointsColumnFor(category models.Category, idx map[string]int) (string, bool) {
	var col string
	switch category {
	case models.MensSingles, models.WomensSingles:
		col = colCoteS
	case models.MensDoubles, models.WomensDoubles:
		col = colCoteD
	case models.MixedDoubles:
		col = colCoteDX
	default:
		return "", false
	}
	_, ok := idx[col]
	return col, ok
}

// genderMatches checks the CLASSE suffix (AMAS, BFEM, ...) against the
// requested category. Mixed doubles keeps both genders.
func genderMatches(category models.Category, class string) bool {
	switch category {
	case models.MensSingles, models.MensDoubles:
		return strings.Contains(class, "MAS")
	case models.WomensSingles, models.WomensDoubles:
		return strings.Contains(class, "FEM")
	case models.MixedDoubles:
		return true
	}
	return false
}

func provinceFromMemberID(memberID string) string {
	if memberIDPattern.MatchString(memberID) {
		return memberID[:2]
	}
	return "QC"
}
