// Package sanitize cleans scraped HTML fragments before they reach the
// catalog.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

var (
	// strictPolicy removes every tag and attribute. Used for names,
	// locations, and other single-line fields.
	strictPolicy = bluemonday.StrictPolicy()

	// descriptionPolicy keeps the basic formatting event descriptions tend
	// to carry (paragraphs, emphasis, lists, links) and drops everything
	// else, scripts and inline styles included.
	descriptionPolicy = bluemonday.UGCPolicy()
)

// Text strips all HTML and collapses the result to trimmed plain text.
func Text(input string) string {
	return strings.TrimSpace(strictPolicy.Sanitize(input))
}

// Description sanitizes an event description, allowing safe formatting tags.
func Description(input string) string {
	return strings.TrimSpace(descriptionPolicy.Sanitize(input))
}
