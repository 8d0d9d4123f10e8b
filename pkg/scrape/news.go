package scrape

import (
	"bytes"
	"context"
	"encoding/xml"
	"regexp"
	"strings"
	"time"

	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/models"
)

const newsFeedURL = "https://www.badminton.ca/newsfeed/0/"

// News scrapes the Badminton Canada RSS feed, keeping only the French items
// of the mixed-language stream.
type News struct {
	h   *httpClient
	url string
}

// NewNews creates the news feed adapter. An empty url uses the production
// feed; tests point it at a fixture server.
func NewNews(feedURL string, timeout time.Duration) *News {
	if feedURL == "" {
		feedURL = newsFeedURL
	}
	return &News{h: newHTTPClient(timeout), url: feedURL}
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
	Description string `xml:"description"`
	Enclosure   struct {
		URL string `xml:"url,attr"`
	} `xml:"enclosure"`
}

// Fetch returns up to limit French items from the feed. Feed items that fail
// the language check are dropped, not errors.
func (n *News) Fetch(ctx context.Context, limit int) ([]models.NewsItem, error) {
	logger.Info("news: fetching RSS feed %s", n.url)

	body, err := n.h.getBody(ctx, n.url)
	if err != nil {
		return nil, err
	}

	var feed rssFeed
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	if err := dec.Decode(&feed); err != nil {
		return nil, wrapParseFailure("decoding news feed", err)
	}

	items := []models.NewsItem{}
	for _, it := range feed.Channel.Items {
		title := strings.TrimSpace(it.Title)
		link := strings.TrimSpace(it.Link)
		if title == "" || link == "" {
			continue
		}
		if !isLikelyFrench(title) {
			continue
		}
		id := strings.TrimSpace(it.GUID)
		if id == "" {
			id = link
		}
		items = append(items, models.NewsItem{
			ID:        id,
			Title:     title,
			URL:       link,
			ImageURL:  strings.TrimSpace(it.Enclosure.URL),
			Excerpt:   strings.TrimSpace(it.Description),
			Published: strings.TrimSpace(it.PubDate),
		})
		if len(items) >= limit {
			break
		}
	}
	logger.Info("news: kept %d french items", len(items))
	return items, nil
}

// The feed mixes French and English items with no language marker, so the
// filter scores each title against small token sets. Accented characters are
// a strong French signal on their own.
var (
	frTokens = []string{
		"demande", "proposition", "dp", "défi", "defi", "conclusion",
		"remporte", "étoile", "etoile", "montante", "année", "annee",
		"intronisée", "intronisee", "temple", "renommée", "renommee",
		"résultats", "resultats", "championnats", "panaméricains", "panamericains",
		"para-badminton", "para",
	}
	enTokens = []string{
		"request", "proposal", "rfp", "wins", "wrap", "results", "canadians",
		"championships", "inducted", "into", "hall", "fame",
	}
	accentPattern = regexp.MustCompile(`[àâäçéèêëîïôöùûüÿœæ]`)
	wordPattern   = regexp.MustCompile(`(?i)[a-zà-ÿ]+(?:'[a-zà-ÿ]+)?`)
)

func langScore(text string) (fr, en int, accents bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if t == "" {
		return 0, 0, false
	}
	accents = accentPattern.MatchString(t)

	tokenSet := map[string]bool{}
	for _, w := range wordPattern.FindAllString(t, -1) {
		tokenSet[w] = true
	}
	for _, w := range frTokens {
		if tokenSet[w] || tokenSet[strings.ReplaceAll(w, "é", "e")] {
			fr++
		}
	}
	for _, w := range enTokens {
		if tokenSet[w] {
			en++
		}
	}
	if strings.Contains(t, "hall of fame") {
		en += 3
	}
	if strings.Contains(t, "has been") {
		en++
	}
	return fr, en, accents
}

func isLikelyFrench(text string) bool {
	fr, en, accents := langScore(text)
	return accents || fr > en
}
