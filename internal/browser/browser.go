// Package browser abstracts the headless browser behind a small capability
// interface so the crawler, paginator, and tests do not depend on a
// particular engine.
package browser

import (
	"context"
	"time"
)

// Wait conditions for Open and Navigate.
const (
	WaitNetworkIdle      = "networkidle"
	WaitDOMContentLoaded = "domcontentloaded"
)

// OpenOptions controls page loading.
type OpenOptions struct {
	Until               string        // WaitNetworkIdle (default) or WaitDOMContentLoaded
	PostDelay           time.Duration // settle time after the wait condition
	ExtraDelayAfterLoad time.Duration // additional delay for slow client-side rendering
}

// Driver creates browser sessions. A Driver is typically one browser process
// shared by nothing: each worker owns its own.
type Driver interface {
	Open(ctx context.Context, url string, opts OpenOptions) (Session, error)
	Close() error
}

// Session is one open page. All methods honor the passed context's deadline.
// Close must be called on every exit path; it is idempotent.
type Session interface {
	Navigate(ctx context.Context, url string, opts OpenOptions) error
	// Click clicks the first visible element matching the CSS selector.
	// Returns false when nothing clickable was found within timeout.
	Click(ctx context.Context, selector string, timeout time.Duration) bool
	// ClickText clicks the first visible element whose text matches the
	// given case-insensitive label.
	ClickText(ctx context.Context, text string, timeout time.Duration) bool
	ScrollToBottom(ctx context.Context) error
	InnerText(ctx context.Context, selector string) (string, error)
	InnerHTML(ctx context.Context, selector string) (string, error)
	GetAttribute(ctx context.Context, selector, attr string) (string, error)
	// Count reports how many elements match the selector.
	Count(ctx context.Context, selector string) (int, error)
	// Content returns the full rendered HTML of the page.
	Content(ctx context.Context) (string, error)
	URL() string
	Close() error
}
