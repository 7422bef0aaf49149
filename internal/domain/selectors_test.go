package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestItemSelectorWireForms(t *testing.T) {
	t.Parallel()

	var bundle SelectorBundle
	raw := `{
		"container": "article.event-card",
		"items": {
			"event_name": "h3.title",
			"date_iso": {"selector": "time", "attribute": "datetime"}
		}
	}`
	require.NoError(t, json.Unmarshal([]byte(raw), &bundle))

	assert.Equal(t, "article.event-card", bundle.ContainerSelector)
	assert.Equal(t, ItemSelector{Selector: "h3.title"}, bundle.Items["event_name"])
	assert.Equal(t, ItemSelector{Selector: "time", Attribute: "datetime"}, bundle.Items["date_iso"])

	out, err := json.Marshal(bundle.Items["event_name"])
	require.NoError(t, err)
	assert.Equal(t, `"h3.title"`, string(out))

	out, err = json.Marshal(bundle.Items["date_iso"])
	require.NoError(t, err)
	assert.JSONEq(t, `{"selector":"time","attribute":"datetime"}`, string(out))
}

func TestSplitURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		domain  string
		path    string
		wantErr bool
	}{
		{"plain", "https://example.org/events", "example.org", "/events", false},
		{"www stripped", "https://www.Example.org/kalender/", "example.org", "/kalender/", false},
		{"empty path", "https://example.org", "example.org", "/", false},
		{"no host", "/relative/only", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			domain, path, err := SplitURL(tt.url)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.domain, domain)
			assert.Equal(t, tt.path, path)
		})
	}
}

func TestPatternMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"/events", "/events", true},
		{"/events", "/events/today", false},
		{"/events*", "/events/today", true},
		{"/events*", "/events", true},
		{"*", "/anything", true},
		{"", "/anything", true},
		{"/kalender/*/dag", "/kalender/2025/dag", true},
		{"/kalender/*/dag", "/kalender/2025/vecka", false},
		{"*forskolor*", "/ung/forskolor/program", true},
	}
	for _, tt := range tests {
		got := PatternMatches(tt.pattern, tt.path)
		assert.Equal(t, tt.want, got, "pattern %q path %q", tt.pattern, tt.path)
	}
}

func TestBestBundlePrefersLongestPattern(t *testing.T) {
	t.Parallel()

	candidates := []SelectorBundle{
		{Domain: "example.org", URLPattern: "", ContainerSelector: ".fallback"},
		{Domain: "example.org", URLPattern: "/events*", ContainerSelector: ".events"},
		{Domain: "example.org", URLPattern: "/events/today", ContainerSelector: ".today"},
	}

	b := BestBundle(candidates, "/events/today")
	require.NotNil(t, b)
	assert.Equal(t, ".today", b.ContainerSelector)

	b = BestBundle(candidates, "/events/archive")
	require.NotNil(t, b)
	assert.Equal(t, ".events", b.ContainerSelector)

	b = BestBundle(candidates, "/about")
	require.NotNil(t, b)
	assert.Equal(t, ".fallback", b.ContainerSelector)

	assert.Nil(t, BestBundle(nil, "/events"))
}

func TestEventMultiDay(t *testing.T) {
	t.Parallel()

	assert.False(t, Event{DateISO: "2025-12-24", EndDateISO: NA}.MultiDay())
	assert.False(t, Event{DateISO: "2025-12-24", EndDateISO: ""}.MultiDay())
	assert.False(t, Event{DateISO: "2025-12-24", EndDateISO: "2025-12-24"}.MultiDay())
	assert.True(t, Event{DateISO: "2025-12-24", EndDateISO: "2026-01-03"}.MultiDay())
}
