// Package adapters holds per-host overrides of the crawl pipeline. An
// adapter matches on hostname and may replace the fetch, pagination, or
// extraction phase; everything it does not override runs the generic path.
package adapters

import (
	"context"

	"github.com/kulturkartan/kulturkartan/internal/browser"
	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/paginate"
)

// Adapter is the base plugin interface. Concrete adapters additionally
// implement one or more of the override interfaces below.
type Adapter interface {
	Name() string
	Matches(host string) bool
}

// FetchOverride replaces headless-browser fetching with another way of
// obtaining rendered HTML (e.g. a bot-challenge-capable HTTP client).
type FetchOverride interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// PaginateOverride supplies pagination options for the host, e.g. the
// raised click cap for library catalogs.
type PaginateOverride interface {
	PaginateOptions() paginate.Options
}

// ExtractOverride runs the whole extraction phase itself and returns raw
// events plus warnings. Used by calendar sites that expose one day at a
// time.
type ExtractOverride interface {
	ExtractAll(ctx context.Context, driver browser.Driver, url string) ([]domain.RawEvent, []string, error)
}

// HorizonOverride widens the forward event window for the host, capped by
// the crawler at 45 days.
type HorizonOverride interface {
	HorizonDays() int
}

// Registry selects adapters by first-matching registration order.
type Registry struct {
	adapters []Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	return &Registry{adapters: adapters}
}

func (r *Registry) Register(a Adapter) {
	r.adapters = append(r.adapters, a)
}

// ForURL returns the first adapter whose predicate matches the URL's host,
// or nil when the generic pipeline should run.
func (r *Registry) ForURL(url string) Adapter {
	host, _, err := domain.SplitURL(url)
	if err != nil {
		return nil
	}
	for _, a := range r.adapters {
		if a.Matches(host) {
			return a
		}
	}
	return nil
}
