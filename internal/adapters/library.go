package adapters

import (
	"github.com/kulturkartan/kulturkartan/internal/paginate"
)

// libraryMaxClicks raises the pagination cap for library catalogs, whose
// "show more" listings run much deeper than ordinary event pages.
const libraryMaxClicks = 40

// LibraryAdapter tunes the generic pipeline for library event catalogs:
// deeper pagination and an optionally wider horizon. Fetch and extraction
// stay generic.
type LibraryAdapter struct {
	host    string
	horizon int
}

var (
	_ Adapter          = (*LibraryAdapter)(nil)
	_ PaginateOverride = (*LibraryAdapter)(nil)
	_ HorizonOverride  = (*LibraryAdapter)(nil)
)

// NewLibrary builds the adapter. horizonDays 0 keeps the default horizon.
func NewLibrary(host string, horizonDays int) *LibraryAdapter {
	return &LibraryAdapter{host: host, horizon: horizonDays}
}

func (a *LibraryAdapter) Name() string             { return "library:" + a.host }
func (a *LibraryAdapter) Matches(host string) bool { return host == a.host }

func (a *LibraryAdapter) PaginateOptions() paginate.Options {
	return paginate.Options{MaxClicks: libraryMaxClicks}
}

func (a *LibraryAdapter) HorizonDays() int { return a.horizon }
