package scrape

import (
	"context"
	"regexp"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bcrapp/bcr-backend/pkg/logger"
	"github.com/bcrapp/bcr-backend/pkg/models"
	"github.com/bcrapp/bcr-backend/pkg/normalizer"
)

const circuitCalendarURL = "https://www.badmintonquebec.com/circuit-elite-abc-yonex-2-2449"

var (
	eventTimePattern = regexp.MustCompile(`^(\d+)-(\d+)$`)
	bgImagePattern   = regexp.MustCompile(`url\(["']?([^"')]+)["']?\)`)
)

// Calendar scrapes the provincial circuit calendar page, an eventon widget
// listing one div per event with unix time bounds in a data attribute.
type Calendar struct {
	h   *httpClient
	url string
}

// NewCalendar creates the calendar adapter. An empty url uses the production
// page; tests point it at a fixture server.
func NewCalendar(pageURL string, timeout time.Duration) *Calendar {
	if pageURL == "" {
		pageURL = circuitCalendarURL
	}
	return &Calendar{h: newHTTPClient(timeout), url: pageURL}
}

// Fetch returns up to limit events, deduplicated by event URL (falling back
// to the widget's event id). Malformed event divs are skipped, not errors; a
// page with no events at all is a valid empty calendar.
func (c *Calendar) Fetch(ctx context.Context, limit int) ([]models.CalendarEvent, error) {
	logger.Info("calendar: fetching %s", c.url)

	doc, err := c.h.getDocument(ctx, c.url)
	if err != nil {
		return nil, err
	}

	events := []models.CalendarEvent{}
	seen := map[string]bool{}
	doc.Find("div.eventon_list_event").EachWithBreak(func(_ int, div *goquery.Selection) bool {
		id, ok := div.Attr("data-event_id")
		if !ok || id == "" {
			id, _ = div.Attr("id")
		}
		if id == "" {
			return true
		}

		dataTime, _ := div.Attr("data-time")
		m := eventTimePattern.FindStringSubmatch(dataTime)
		if m == nil {
			return true
		}
		startTS, _ := strconv.ParseInt(m[1], 10, 64)
		endTS, _ := strconv.ParseInt(m[2], 10, 64)

		title := normalizer.CollapseSpaces(div.Find(".evoet_title").First().Text())
		if title == "" {
			return true
		}

		ev := models.CalendarEvent{
			ID:       id,
			Title:    title,
			Subtitle: normalizer.CollapseSpaces(div.Find(".evcal_event_subtitle").First().Text()),
			StartTS:  startTS,
			EndTS:    endTS,
			Start:    time.Unix(startTS, 0).UTC().Format(time.RFC3339),
			End:      time.Unix(endTS, 0).UTC().Format(time.RFC3339),
		}

		if a := div.Find(".evo_event_schema a[itemprop='url']").First(); a.Length() > 0 {
			ev.URL, _ = a.Attr("href")
		}

		if ft := div.Find(".ev_ftImg").First(); ft.Length() > 0 {
			img, ok := ft.Attr("data-img")
			if !ok || img == "" {
				img, _ = ft.Attr("data-thumb")
			}
			if img == "" {
				if style, ok := ft.Attr("style"); ok {
					if sm := bgImagePattern.FindStringSubmatch(style); sm != nil {
						img = sm[1]
					}
				}
			}
			ev.ImageURL = img
		}

		key := ev.URL
		if key == "" {
			key = ev.ID
		}
		if seen[key] {
			return true
		}
		seen[key] = true

		events = append(events, ev)
		return len(events) < limit
	})

	logger.Info("calendar: extracted %d events", len(events))
	return events, nil
}
