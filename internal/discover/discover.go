// Package discover infers a selector bundle for an unknown site: it samples
// candidate event containers, asks the AI for selectors, validates them
// structurally against the real HTML, and grades the result.
package discover

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/kulturkartan/kulturkartan/internal/ai"
	"github.com/kulturkartan/kulturkartan/internal/domain"
)

// Confidence bands. At or above Trusted the bundle may be cached; between
// Usable and Trusted it serves the current run only; below Usable the
// discoverer falls back to one-shot AI event extraction.
const (
	TrustedConfidence = 0.6
	UsableConfidence  = 0.3
)

const (
	maxSamples        = 5
	minSamples        = 3
	minSampleText     = 20
	maxSampleHTML     = 4000
	validateContainer = 3 // containers inspected per field during validation
)

var candidateClassRe = regexp.MustCompile(`(?i)event|calendar|listing|card|item`)

// Outcome is the discovery result. Exactly one of Bundle or Events is
// meaningful: a graded bundle, or fallback events when no usable bundle
// came out.
type Outcome struct {
	Bundle     *domain.SelectorBundle
	Trusted    bool
	Confidence float64
	Events     []domain.RawEvent
	Warnings   []string
}

// Discoverer drives AI-assisted selector discovery. Calls to the AI are
// serialized by the per-worker pipeline, not here.
type Discoverer struct {
	ai     ai.Extractor
	logger zerolog.Logger
}

func New(extractor ai.Extractor, logger zerolog.Logger) *Discoverer {
	return &Discoverer{ai: extractor, logger: logger}
}

// Discover runs sampling, the AI proposal, structural validation, and the
// confidence decision for one page. It never returns an error for AI
// failures; those become warnings on the outcome.
func (d *Discoverer) Discover(ctx context.Context, url, html string) Outcome {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Outcome{Warnings: []string{fmt.Sprintf("discovery: unparseable html: %v", err)}}
	}

	samples := sampleContainers(doc)
	if len(samples) == 0 {
		d.logger.Warn().Str("url", url).Msg("discover: no candidate containers found")
		return d.fallback(ctx, url, html, "discovery: no candidate containers")
	}

	proposal, err := d.propose(ctx, url, samples)
	if err != nil {
		return d.fallback(ctx, url, html, fmt.Sprintf("discovery: %v", err))
	}

	confidence, items := validate(doc, proposal)
	d.logger.Info().
		Str("url", url).
		Str("container", proposal.Container).
		Float64("reported", proposal.Confidence).
		Float64("adjusted", confidence).
		Msg("discover: proposal validated")

	if confidence < UsableConfidence {
		return d.fallback(ctx, url, html,
			fmt.Sprintf("discovery: confidence %.2f below usable threshold", confidence))
	}

	host, path, err := domain.SplitURL(url)
	if err != nil {
		return Outcome{Warnings: []string{fmt.Sprintf("discovery: %v", err)}}
	}
	bundle := &domain.SelectorBundle{
		Domain:            host,
		URLPattern:        path,
		ContainerSelector: proposal.Container,
		Items:             items,
		Confidence:        confidence,
	}
	outcome := Outcome{Bundle: bundle, Confidence: confidence, Trusted: confidence >= TrustedConfidence}
	if !outcome.Trusted {
		outcome.Warnings = append(outcome.Warnings,
			fmt.Sprintf("discovery: low confidence %.2f, bundle used for this run only", confidence))
	}
	return outcome
}

// propose calls the AI with one retry on transport errors.
func (d *Discoverer) propose(ctx context.Context, url string, samples []ai.Sample) (*ai.SelectorProposal, error) {
	proposal, err := d.ai.ProposeSelectors(ctx, url, samples)
	if errors.Is(err, ai.ErrTransport) {
		d.logger.Warn().Err(err).Str("url", url).Msg("discover: proposal transport error, retrying")
		proposal, err = d.ai.ProposeSelectors(ctx, url, samples)
	}
	if err != nil {
		return nil, err
	}
	return proposal, nil
}

// fallback asks for a one-shot event list, again with one transport retry.
// On failure the outcome carries the warnings and no events.
func (d *Discoverer) fallback(ctx context.Context, url, html, reason string) Outcome {
	outcome := Outcome{Warnings: []string{reason}}

	events, err := d.ai.ExtractEvents(ctx, url, html)
	if errors.Is(err, ai.ErrTransport) {
		d.logger.Warn().Err(err).Str("url", url).Msg("discover: event list transport error, retrying")
		events, err = d.ai.ExtractEvents(ctx, url, html)
	}
	if err != nil {
		outcome.Warnings = append(outcome.Warnings, fmt.Sprintf("discovery fallback: %v", err))
		return outcome
	}
	outcome.Events = events
	return outcome
}

// sampleContainers picks 3–5 plausible event containers: <article> elements
// and nodes whose class names look event-like, preferring ones with enough
// rendered text to correlate against.
func sampleContainers(doc *goquery.Document) []ai.Sample {
	var samples []ai.Sample
	seen := make(map[string]struct{})

	add := func(sel *goquery.Selection) bool {
		if len(samples) >= maxSamples {
			return false
		}
		html, err := goquery.OuterHtml(sel)
		if err != nil {
			return true
		}
		text := strings.Join(strings.Fields(sel.Text()), " ")
		if len(text) < minSampleText {
			return true
		}
		if len(html) > maxSampleHTML {
			html = html[:maxSampleHTML]
		}
		if _, dup := seen[html]; dup {
			return true
		}
		seen[html] = struct{}{}
		samples = append(samples, ai.Sample{HTML: html, Text: text})
		return true
	}

	doc.Find("article").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		return add(sel)
	})
	if len(samples) < minSamples {
		doc.Find("div, li, section").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			class, ok := sel.Attr("class")
			if !ok || !candidateClassRe.MatchString(class) {
				return true
			}
			return add(sel)
		})
	}
	return samples
}

// validate checks the proposal against the full HTML: the container must
// match at least once, and each required field's selector must produce
// non-empty content within the first containers. The returned confidence is
// passed_fields / required_fields.
func validate(doc *goquery.Document, proposal *ai.SelectorProposal) (float64, map[string]domain.ItemSelector) {
	containers := doc.Find(proposal.Container)
	if containers.Length() == 0 {
		return 0, nil
	}

	items := make(map[string]domain.ItemSelector, len(proposal.Items))
	for field, item := range proposal.Items {
		if item.Selector != "" {
			items[field] = item
		}
	}

	required := domain.RequiredFields()
	passed := 0
	for _, field := range required {
		item, ok := items[field]
		if !ok {
			continue
		}
		if fieldResolves(containers, item) {
			passed++
		}
	}
	return float64(passed) / float64(len(required)), items
}

func fieldResolves(containers *goquery.Selection, item domain.ItemSelector) bool {
	resolved := false
	containers.EachWithBreak(func(i int, container *goquery.Selection) bool {
		if i >= validateContainer {
			return false
		}
		match := container.Find(item.Selector).First()
		if match.Length() == 0 {
			return true
		}
		var value string
		if item.Attribute != "" {
			value = match.AttrOr(item.Attribute, "")
		} else {
			value = strings.TrimSpace(match.Text())
			if value == "" {
				// Attribute-bearing nodes like <time datetime=...> or
				// <a href=...> still count as resolvable.
				value = match.AttrOr("datetime", match.AttrOr("href", ""))
			}
		}
		if value != "" {
			resolved = true
			return false
		}
		return true
	})
	return resolved
}
