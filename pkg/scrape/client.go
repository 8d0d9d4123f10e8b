package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "Mozilla/5.0"

// DefaultTimeout bounds a single upstream fetch. It is independent of the
// cache TTL.
const DefaultTimeout = 30 * time.Second

// httpClient wraps the shared fetch plumbing for both adapters: bounded
// timeout, browser-looking User-Agent, cookie jar (the national search
// endpoint requires a seeded session cookie) and redirect following.
type httpClient struct {
	c *http.Client
}

func newHTTPClient(timeout time.Duration) *httpClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	jar, _ := cookiejar.New(nil)
	return &httpClient{c: &http.Client{Timeout: timeout, Jar: jar}}
}

func (h *httpClient) do(ctx context.Context, method, rawURL string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrUnavailable, err)
	}
	req.Header.Set("User-Agent", userAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := h.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnavailable, method, rawURL, err)
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		res.Body.Close()
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrUnavailable, method, rawURL, res.StatusCode)
	}
	return res, nil
}

// getDocument fetches rawURL and parses the response body as HTML.
func (h *httpClient) getDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	res, err := h.do(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrParseFailure, rawURL, err)
	}
	return doc, nil
}

// postFormDocument submits an urlencoded form and parses the response as HTML.
func (h *httpClient) postFormDocument(ctx context.Context, rawURL string, form url.Values) (*goquery.Document, error) {
	res, err := h.do(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %v", ErrParseFailure, rawURL, err)
	}
	return doc, nil
}

// getBody fetches rawURL and returns the raw response bytes.
func (h *httpClient) getBody(ctx context.Context, rawURL string) ([]byte, error) {
	res, err := h.do(ctx, http.MethodGet, rawURL, nil, nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", ErrUnavailable, rawURL, err)
	}
	return body, nil
}

// findTableWithHeaders locates the table whose text contains every required
// header label (case-insensitive). Upstream pages render several tables and
// their order is not stable, so positional selection is never used.
func findTableWithHeaders(doc *goquery.Document, required ...string) *goquery.Selection {
	var match *goquery.Selection
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		text := strings.ToLower(table.Text())
		for _, h := range required {
			if !strings.Contains(text, strings.ToLower(h)) {
				return true
			}
		}
		match = table
		return false
	})
	return match
}
