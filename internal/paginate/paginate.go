// Package paginate applies site-agnostic "load more / next page" sequences
// to an open browser session so the full listing is rendered before
// extraction.
package paginate

import (
	"context"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kulturkartan/kulturkartan/internal/browser"
)

// DefaultMaxClicks bounds pagination for ordinary listings. Library
// catalogs override this upward via adapter options.
const DefaultMaxClicks = 10

// loadMoreSelectors are tried in order before the text labels.
var loadMoreSelectors = []string{
	"button.load-more",
	"button.show-more",
	"[class*='load-more']",
	"[class*='show-more']",
	"a.load-more",
}

// loadMoreLabels cover the Swedish, Spanish, and English button texts seen
// across the configured sites.
var loadMoreLabels = []string{
	"Visa mer", "Visa fler", "Ladda fler", "Cargar más", "Load more", "Show more",
}

var nextLabels = []string{"Nästa", "Next", "Siguiente"}

// pageParams are the query parameters recognized by the URL-increment
// strategy.
var pageParams = []string{"page", "p", "offset", "start"}

// Options tunes one pagination run.
type Options struct {
	MaxClicks   int           // 0 means DefaultMaxClicks
	SettleDelay time.Duration // wait after each click/scroll; default 1 s
	ClickWait   time.Duration // per-candidate click timeout; default 2 s
}

func (o Options) withDefaults() Options {
	if o.MaxClicks <= 0 {
		o.MaxClicks = DefaultMaxClicks
	}
	if o.SettleDelay <= 0 {
		o.SettleDelay = time.Second
	}
	if o.ClickWait <= 0 {
		o.ClickWait = 2 * time.Second
	}
	return o
}

// Result reports what a pagination run did.
type Result struct {
	Strategy string // "load-more", "next", "url-param", or "" when nothing applied
	Steps    int
}

// Paginator expands listings. It is idempotent per session: a session that
// was already paginated is skipped.
type Paginator struct {
	logger zerolog.Logger
	done   map[browser.Session]struct{}
}

func New(logger zerolog.Logger) *Paginator {
	return &Paginator{logger: logger, done: make(map[browser.Session]struct{})}
}

// Run scrolls to trigger lazy loads, then applies the first strategy that
// makes progress. Errors from individual clicks are swallowed; pagination
// is best-effort.
func (p *Paginator) Run(ctx context.Context, s browser.Session, opts Options) Result {
	if _, ok := p.done[s]; ok {
		return Result{}
	}
	p.done[s] = struct{}{}
	opts = opts.withDefaults()

	// Scroll to the bottom a few times first so lazy-loaded content and any
	// load-more controls are in the DOM.
	for i := 0; i < 4; i++ {
		if err := s.ScrollToBottom(ctx); err != nil {
			p.logger.Debug().Err(err).Msg("paginate: scroll failed")
			break
		}
		sleep(ctx, opts.SettleDelay)
	}

	if steps := p.clickLoadMore(ctx, s, opts); steps > 0 {
		return Result{Strategy: "load-more", Steps: steps}
	}
	if steps := p.clickNext(ctx, s, opts); steps > 0 {
		return Result{Strategy: "next", Steps: steps}
	}
	if steps := p.incrementURLParam(ctx, s, opts); steps > 0 {
		return Result{Strategy: "url-param", Steps: steps}
	}
	return Result{}
}

// clickLoadMore clicks "show more" style controls while any remains visible.
func (p *Paginator) clickLoadMore(ctx context.Context, s browser.Session, opts Options) int {
	steps := 0
	for steps < opts.MaxClicks {
		if ctx.Err() != nil {
			return steps
		}
		if !p.clickAnyLoadMore(ctx, s, opts) {
			return steps
		}
		steps++
		sleep(ctx, opts.SettleDelay)
	}
	return steps
}

func (p *Paginator) clickAnyLoadMore(ctx context.Context, s browser.Session, opts Options) bool {
	for _, sel := range loadMoreSelectors {
		if s.Click(ctx, sel, opts.ClickWait) {
			return true
		}
	}
	for _, label := range loadMoreLabels {
		if s.ClickText(ctx, label, opts.ClickWait) {
			return true
		}
	}
	return false
}

// clickNext walks numbered pagination: a "next" label, or ascending page
// numbers. A label that stopped working is not retried, so the last page
// never loops.
func (p *Paginator) clickNext(ctx context.Context, s browser.Session, opts Options) int {
	steps := 0
	for steps < opts.MaxClicks {
		if ctx.Err() != nil {
			return steps
		}
		if !p.clickNextOnce(ctx, s, opts, steps) {
			return steps
		}
		steps++
		sleep(ctx, opts.SettleDelay)
	}
	return steps
}

func (p *Paginator) clickNextOnce(ctx context.Context, s browser.Session, opts Options, step int) bool {
	for _, label := range nextLabels {
		if s.ClickText(ctx, label, opts.ClickWait) {
			return true
		}
	}
	// Ascending page numbers: the first click targets page 2.
	n := step + 2
	if s.Click(ctx, `[data-page="`+strconv.Itoa(n)+`"]`, opts.ClickWait) {
		return true
	}
	return s.ClickText(ctx, strconv.Itoa(n), opts.ClickWait)
}

// incrementURLParam reloads the page with page=N style parameters counted
// up from 2, stopping when a load fails or brings no new content.
func (p *Paginator) incrementURLParam(ctx context.Context, s browser.Session, opts Options) int {
	current := s.URL()
	u, err := url.Parse(current)
	if err != nil {
		return 0
	}
	query := u.Query()
	param := ""
	for _, candidate := range pageParams {
		if query.Has(candidate) {
			param = candidate
			break
		}
	}
	if param == "" {
		return 0
	}

	lastLen := contentLength(ctx, s)
	steps := 0
	for n := 2; n <= opts.MaxClicks+1; n++ {
		if ctx.Err() != nil {
			return steps
		}
		query.Set(param, strconv.Itoa(n))
		u.RawQuery = query.Encode()
		if err := s.Navigate(ctx, u.String(), browser.OpenOptions{Until: browser.WaitNetworkIdle}); err != nil {
			p.logger.Debug().Err(err).Str("url", u.String()).Msg("paginate: page load failed")
			return steps
		}
		length := contentLength(ctx, s)
		if length <= lastLen {
			return steps
		}
		lastLen = length
		steps++
		sleep(ctx, opts.SettleDelay)
	}
	return steps
}

func contentLength(ctx context.Context, s browser.Session) int {
	html, err := s.Content(ctx)
	if err != nil {
		return 0
	}
	return len(strings.TrimSpace(html))
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
