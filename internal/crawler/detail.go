package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"

	"github.com/kulturkartan/kulturkartan/internal/sanitize"
)

// DetailFetcher retrieves the description text of an event detail page.
type DetailFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const detailUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// descriptionSelectors is tried in order; the first non-trivial match wins.
var descriptionSelectors = []string{
	"[class*='description']",
	".event-description",
	"article p",
	"main p",
	".content p",
	"p",
}

// CollyDetailFetcher fetches detail pages over plain HTTP. Detail pages are
// usually server-rendered even on otherwise client-rendered sites, so a
// browser session is not worth its cost here.
type CollyDetailFetcher struct {
	timeout time.Duration
	logger  zerolog.Logger
}

func NewCollyDetailFetcher(logger zerolog.Logger) *CollyDetailFetcher {
	return &CollyDetailFetcher{timeout: 10 * time.Second, logger: logger}
}

func (f *CollyDetailFetcher) Fetch(ctx context.Context, url string) (string, error) {
	c := colly.NewCollector(
		colly.UserAgent(detailUserAgent),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(f.timeout)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "sv-SE,sv;q=0.9,en;q=0.8")
	})

	var body string
	c.OnResponse(func(r *colly.Response) {
		body = string(r.Body)
	})

	var fetchErr error
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		return "", fmt.Errorf("detail fetch %s: %w", url, err)
	}
	c.Wait()
	if fetchErr != nil {
		return "", fmt.Errorf("detail fetch %s: %w", url, fetchErr)
	}
	return DescriptionFromHTML(body), nil
}

// DescriptionFromHTML pulls the most description-like text block out of a
// detail page. Returns "" when nothing substantial is found.
func DescriptionFromHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	for _, selector := range descriptionSelectors {
		var parts []string
		doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			text := sanitize.Text(s.Text())
			if text != "" {
				parts = append(parts, text)
			}
			return len(parts) < 4
		})
		joined := strings.TrimSpace(strings.Join(parts, " "))
		if len(joined) >= minDescriptionLen {
			return joined
		}
	}
	return ""
}
