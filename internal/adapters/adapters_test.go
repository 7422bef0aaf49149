package adapters

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulturkartan/kulturkartan/internal/browser"
	"github.com/kulturkartan/kulturkartan/internal/domain"
	"github.com/kulturkartan/kulturkartan/internal/paginate"
)

// fakeDriver serves canned HTML per URL.
type fakeDriver struct {
	pages map[string]string
	opens []string
}

func (d *fakeDriver) Open(_ context.Context, url string, _ browser.OpenOptions) (browser.Session, error) {
	d.opens = append(d.opens, url)
	html, ok := d.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return &fakePage{html: html, url: url}, nil
}

func (d *fakeDriver) Close() error { return nil }

type fakePage struct {
	html   string
	url    string
	closed bool
}

func (p *fakePage) Navigate(context.Context, string, browser.OpenOptions) error { return nil }
func (p *fakePage) Click(context.Context, string, time.Duration) bool           { return false }
func (p *fakePage) ClickText(context.Context, string, time.Duration) bool       { return false }
func (p *fakePage) ScrollToBottom(context.Context) error                        { return nil }
func (p *fakePage) InnerText(context.Context, string) (string, error)           { return "", nil }
func (p *fakePage) InnerHTML(context.Context, string) (string, error)           { return "", nil }
func (p *fakePage) GetAttribute(context.Context, string, string) (string, error) {
	return "", nil
}
func (p *fakePage) Count(context.Context, string) (int, error)  { return 0, nil }
func (p *fakePage) Content(context.Context) (string, error)     { return p.html, nil }
func (p *fakePage) URL() string                                 { return p.url }
func (p *fakePage) Close() error                                { p.closed = true; return nil }

func dayHTML(entries ...[2]string) string {
	html := "<html><body>"
	for _, e := range entries {
		html += fmt.Sprintf(`<div class="cal-event"><h4>%s</h4><span class="tid">%s</span></div>`, e[0], e[1])
	}
	return html + "</body></html>"
}

func TestDayStepBuffersByName(t *testing.T) {
	t.Parallel()

	today := time.Now()
	urlFor := func(day time.Time) string {
		return "https://kalender.se/dag?datum=" + day.Format("2006-01-02")
	}

	driver := &fakeDriver{pages: map[string]string{
		urlFor(today): dayHTML(
			[2]string{"Utställning: Vinterljus", "10:00"},
			[2]string{"Sagostund", "11:00"},
		),
		urlFor(today.AddDate(0, 0, 1)): dayHTML(
			[2]string{"Utställning: Vinterljus", "10:00"},
		),
		urlFor(today.AddDate(0, 0, 2)): dayHTML(
			[2]string{"Utställning: Vinterljus", "12:00"},
			[2]string{"Julpyssel", "13:00"},
		),
	}}

	adapter := NewDayStep(DayStepConfig{
		Host:              "kalender.se",
		URLForDay:         urlFor,
		ContainerSelector: "div.cal-event",
		NameSelector:      "h4",
		TimeSelector:      "span.tid",
		Days:              3,
	}, zerolog.Nop())

	events, warnings, err := adapter.ExtractAll(context.Background(), driver, "https://kalender.se/dag")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, events, 3)
	assert.Len(t, driver.opens, 3)

	multi := events[0]
	assert.Equal(t, "Utställning: Vinterljus", multi[domain.FieldEventName])
	assert.Equal(t, today.Format("2006-01-02"), multi[domain.FieldDateISO])
	assert.Equal(t, today.AddDate(0, 0, 2).Format("2006-01-02"), multi[domain.FieldEndDateISO])
	assert.Equal(t, "10:00, 12:00", multi[domain.FieldTime])

	single := events[1]
	assert.Equal(t, "Sagostund", single[domain.FieldEventName])
	assert.Equal(t, today.Format("2006-01-02"), single[domain.FieldDateISO])
	assert.Equal(t, "", single[domain.FieldEndDateISO])

	last := events[2]
	assert.Equal(t, "Julpyssel", last[domain.FieldEventName])
	assert.Equal(t, today.AddDate(0, 0, 2).Format("2006-01-02"), last[domain.FieldDateISO])
}

func TestDayStepFailedDaysBecomeWarnings(t *testing.T) {
	t.Parallel()

	today := time.Now()
	urlFor := func(day time.Time) string {
		return "https://kalender.se/dag?datum=" + day.Format("2006-01-02")
	}

	// Only the first day resolves.
	driver := &fakeDriver{pages: map[string]string{
		urlFor(today): dayHTML([2]string{"Sagostund", "10:00"}),
	}}

	adapter := NewDayStep(DayStepConfig{
		Host:              "kalender.se",
		URLForDay:         urlFor,
		ContainerSelector: "div.cal-event",
		NameSelector:      "h4",
		Days:              3,
	}, zerolog.Nop())

	events, warnings, err := adapter.ExtractAll(context.Background(), driver, "https://kalender.se/dag")
	require.NoError(t, err)
	assert.Len(t, events, 1)
	assert.Len(t, warnings, 2)
}

func TestRegistryFirstMatchWins(t *testing.T) {
	t.Parallel()

	day := NewDayStep(DayStepConfig{Host: "kalender.se", URLForDay: func(time.Time) string { return "" },
		ContainerSelector: "div", NameSelector: "h4"}, zerolog.Nop())
	protected := NewProtectedFetch("skyddad.se", zerolog.Nop())
	catchAll := NewProtectedFetch("kalender.se", zerolog.Nop()) // same host, registered later

	reg := NewRegistry(day, protected)
	reg.Register(catchAll)

	assert.Equal(t, day.Name(), reg.ForURL("https://www.kalender.se/dag").Name())
	assert.Equal(t, protected.Name(), reg.ForURL("https://skyddad.se/evenemang").Name())
	assert.Nil(t, reg.ForURL("https://okand.se/"))
	assert.Nil(t, reg.ForURL("not a url"))
}

func TestAdapterCapabilityInterfaces(t *testing.T) {
	t.Parallel()

	day := NewDayStep(DayStepConfig{Host: "kalender.se", URLForDay: func(time.Time) string { return "" },
		ContainerSelector: "div", NameSelector: "h4", Days: 45}, zerolog.Nop())

	var a Adapter = day
	hz, ok := a.(HorizonOverride)
	require.True(t, ok)
	assert.Equal(t, 45, hz.HorizonDays())
	_, isFetch := a.(FetchOverride)
	assert.False(t, isFetch)

	var p Adapter = NewProtectedFetch("skyddad.se", zerolog.Nop())
	_, isFetch = p.(FetchOverride)
	assert.True(t, isFetch)
	_, isExtract := p.(ExtractOverride)
	assert.False(t, isExtract)
	_, isPaginate := p.(PaginateOverride)
	assert.False(t, isPaginate)

	var lib Adapter = NewLibrary("bibliotek.se", 45)
	pg, ok := lib.(PaginateOverride)
	require.True(t, ok)
	assert.Equal(t, paginate.Options{MaxClicks: 40}, pg.PaginateOptions())
	hz, ok = lib.(HorizonOverride)
	require.True(t, ok)
	assert.Equal(t, 45, hz.HorizonDays())
}
