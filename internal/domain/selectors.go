package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ItemSelector locates one field relative to a container element. Attribute
// is optional; when set the extractor reads that attribute instead of text.
type ItemSelector struct {
	Selector  string `json:"selector"`
	Attribute string `json:"attribute,omitempty"`
}

// UnmarshalJSON accepts both wire forms: a bare CSS string, or an object
// {"selector": "...", "attribute": "..."}.
func (s *ItemSelector) UnmarshalJSON(data []byte) error {
	var plain string
	if err := json.Unmarshal(data, &plain); err == nil {
		s.Selector = plain
		s.Attribute = ""
		return nil
	}
	type alias ItemSelector
	var obj alias
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("item selector: %w", err)
	}
	*s = ItemSelector(obj)
	return nil
}

// MarshalJSON emits the compact string form when no attribute is set.
func (s ItemSelector) MarshalJSON() ([]byte, error) {
	if s.Attribute == "" {
		return json.Marshal(s.Selector)
	}
	type alias ItemSelector
	return json.Marshal(alias(s))
}

// SelectorBundle describes how to read one site: a container selector
// isolating each event's subtree, and per-field item selectors relative to it.
type SelectorBundle struct {
	Domain            string                  `json:"domain"`
	URLPattern        string                  `json:"url_pattern"`
	ContainerSelector string                  `json:"container"`
	Items             map[string]ItemSelector `json:"items"`
	Confidence        float64                 `json:"confidence,omitempty"`
	LastUpdated       time.Time               `json:"last_updated,omitempty"`
}

// Canonical field names used as keys in SelectorBundle.Items and RawEvent.
const (
	FieldEventName   = "event_name"
	FieldDateISO     = "date_iso"
	FieldEndDateISO  = "end_date_iso"
	FieldTime        = "time"
	FieldLocation    = "location"
	FieldTargetGroup = "target_group"
	FieldDescription = "description"
	FieldEventURL    = "event_url"
	FieldStatus      = "status"
	FieldBooking     = "booking_info"
)

// RequiredFields are the fields a discovered bundle is validated against.
func RequiredFields() []string {
	return []string{
		FieldEventName, FieldDateISO, FieldTime, FieldLocation,
		FieldDescription, FieldTargetGroup, FieldStatus,
	}
}

// NormalizeDomain strips the scheme-less host to its canonical form:
// lowercase, leading "www." removed.
func NormalizeDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}

// SplitURL returns the (domain, path) key pair for a URL. The path defaults
// to "/" when empty.
func SplitURL(rawURL string) (domain, path string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("split url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("split url %q: missing host", rawURL)
	}
	path = u.Path
	if path == "" {
		path = "/"
	}
	return NormalizeDomain(u.Host), path, nil
}

// PatternMatches reports whether a url_pattern matches a path. "*" matches
// any substring, including the empty one. An empty pattern matches any path
// (domain-only bundle).
func PatternMatches(pattern, path string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == path
	}
	if !strings.HasPrefix(path, parts[0]) {
		return false
	}
	rest := path[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(rest, part)
		if idx < 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	return strings.HasSuffix(rest, parts[len(parts)-1])
}

// BestBundle picks the matching bundle with the longest url_pattern, falling
// back to a domain-only bundle (empty or "*" pattern). Returns nil when
// nothing matches. Candidates must already be filtered to the right domain.
func BestBundle(candidates []SelectorBundle, path string) *SelectorBundle {
	matched := make([]SelectorBundle, 0, len(candidates))
	for _, b := range candidates {
		if PatternMatches(b.URLPattern, path) {
			matched = append(matched, b)
		}
	}
	if len(matched) == 0 {
		return nil
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return len(matched[i].URLPattern) > len(matched[j].URLPattern)
	})
	return &matched[0]
}
