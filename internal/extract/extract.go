// Package extract runs a stored selector bundle against rendered HTML and
// returns one raw field map per event container.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/normalize"
)

// ErrNoContainers signals that the bundle's container selector matched no
// element, i.e. a stale cached bundle. The caller decides whether to fall
// back to discovery.
var ErrNoContainers = errors.New("extract: container selector matched nothing")

var whitespaceRe = regexp.MustCompile(`\s+`)

// Extractor applies selector bundles to HTML.
type Extractor struct {
	logger zerolog.Logger
}

func New(logger zerolog.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// Extract parses the HTML and reads every field of the bundle relative to
// each container. Records without an event name are dropped. Relative URL
// fields are resolved against baseURL.
func (e *Extractor) Extract(html string, bundle domain.SelectorBundle, baseURL string) ([]domain.RawEvent, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	containers := doc.Find(bundle.ContainerSelector)
	if containers.Length() == 0 {
		return nil, ErrNoContainers
	}

	var events []domain.RawEvent
	containers.Each(func(_ int, container *goquery.Selection) {
		raw := make(domain.RawEvent, len(bundle.Items))
		for field, item := range bundle.Items {
			if item.Selector == "" {
				continue
			}
			raw[field] = extractField(container, field, item, baseURL)
		}
		if collapse(raw[domain.FieldEventName]) == "" {
			return
		}
		events = append(events, raw)
	})

	e.logger.Debug().
		Int("containers", containers.Length()).
		Int("events", len(events)).
		Str("container_selector", bundle.ContainerSelector).
		Msg("extract: bundle applied")

	return events, nil
}

func extractField(container *goquery.Selection, field string, item domain.ItemSelector, baseURL string) string {
	matches := container.Find(item.Selector)
	if matches.Length() == 0 {
		return ""
	}
	first := matches.First()

	if item.Attribute != "" {
		value := first.AttrOr(item.Attribute, "")
		if isURLField(field) {
			return ResolveURL(baseURL, value)
		}
		return collapse(value)
	}

	if isURLField(field) {
		href := first.AttrOr("href", "")
		if href == "" {
			href = first.Find("a").First().AttrOr("href", "")
		}
		return ResolveURL(baseURL, href)
	}

	// Date/time fields prefer a machine-readable datetime attribute when the
	// selector landed on a <time> style node.
	if isDateField(field) {
		if dt := first.AttrOr("datetime", ""); dt != "" {
			return collapse(dt)
		}
	}

	if field == domain.FieldBooking {
		return bookingText(matches)
	}

	return collapse(first.Text())
}

// bookingText scans every matching paragraph and returns the first one
// carrying a booking keyword, falling back to the first match.
func bookingText(matches *goquery.Selection) string {
	found := ""
	matches.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := collapse(sel.Text())
		if text == "" {
			return true
		}
		if found == "" {
			found = text
		}
		if normalize.ExtractBooking(text) != domain.NA {
			found = text
			return false
		}
		return true
	})
	return found
}

func isURLField(field string) bool {
	return field == domain.FieldEventURL || strings.HasSuffix(field, "_url")
}

func isDateField(field string) bool {
	return strings.Contains(field, "date") || strings.Contains(field, "time")
}

// ResolveURL resolves a possibly relative href against the listing URL.
// Returns the href unchanged when either side does not parse.
func ResolveURL(baseURL, href string) string {
	if href == "" {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return href
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
