// Package ai wraps the LLM behind the two operations the pipeline needs:
// proposing a selector bundle from sample HTML, and one-shot event-list
// extraction when selectors cannot be trusted.
package ai

import (
	"context"
	"errors"

	"github.com/kulturkartan/kulturkartan/internal/domain"
)

// Error kinds. Transport failures are retried once by the caller; malformed
// responses get one JSON repair attempt before surfacing.
var (
	ErrTransport = errors.New("ai: transport error")
	ErrMalformed = errors.New("ai: malformed response")
)

// Sample is one candidate event container handed to the selector proposal:
// the raw HTML subtree and its rendered text.
type Sample struct {
	HTML string `json:"html"`
	Text string `json:"text"`
}

// SelectorProposal is the model's answer in correlation mode, including its
// self-reported confidence in [0,1].
type SelectorProposal struct {
	Container  string                         `json:"container"`
	Items      map[string]domain.ItemSelector `json:"items"`
	Confidence float64                        `json:"confidence"`
}

// Extractor is the opaque LLM capability. Implementations must be safe for
// concurrent use; callers serialize their own bursts.
type Extractor interface {
	// ProposeSelectors asks for a selector bundle that maps the sample HTML
	// to its visible text.
	ProposeSelectors(ctx context.Context, url string, samples []Sample) (*SelectorProposal, error)
	// ExtractEvents asks for normalized raw events straight from the HTML,
	// bypassing selectors entirely.
	ExtractEvents(ctx context.Context, url, html string) ([]domain.RawEvent, error)
}
