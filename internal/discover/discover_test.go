package discover

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kulturkartan/kulturkartan/internal/ai"
	"github.com/kulturkartan/kulturkartan/internal/domain"
)

const fixtureHTML = `
<html><body>
<article class="event-card">
  <h3>Sagostund för de minsta barnen</h3>
  <time datetime="2025-12-24">24 december</time>
  <span class="when">kl. 10:00</span>
  <span class="where">Stadsbiblioteket i centrum</span>
  <span class="age">3-6 år</span>
  <span class="state">Platser kvar</span>
  <p class="desc">Vi läser julsagor tillsammans i sagorummet.</p>
</article>
<article class="event-card">
  <h3>Babyrytmik med sång och rörelse</h3>
  <time datetime="2025-12-26">26 december</time>
  <span class="when">kl. 11:00</span>
  <span class="where">Kulturhuset vid torget</span>
  <span class="age">4-12 månader</span>
  <span class="state">Fåtal platser</span>
  <p class="desc">Rytmik för bebisar och deras vuxna.</p>
</article>
<article class="event-card">
  <h3>Skaparverkstad för hela familjen</h3>
  <time datetime="2025-12-27">27 december</time>
  <span class="when">kl. 13:00</span>
  <span class="where">Konsthallen på söder</span>
  <span class="age">Alla åldrar</span>
  <span class="state">Drop-in</span>
  <p class="desc">Pyssel och skapande med julens material.</p>
</article>
</body></html>`

func fullProposal() *ai.SelectorProposal {
	return &ai.SelectorProposal{
		Container: "article.event-card",
		Items: map[string]domain.ItemSelector{
			domain.FieldEventName:   {Selector: "h3"},
			domain.FieldDateISO:     {Selector: "time", Attribute: "datetime"},
			domain.FieldTime:        {Selector: "span.when"},
			domain.FieldLocation:    {Selector: "span.where"},
			domain.FieldDescription: {Selector: "p.desc"},
			domain.FieldTargetGroup: {Selector: "span.age"},
			domain.FieldStatus:      {Selector: "span.state"},
		},
		Confidence: 0.9,
	}
}

// fakeAI scripts proposal and event-list responses.
type fakeAI struct {
	proposalQueue []func() (*ai.SelectorProposal, error)
	eventQueue    []func() ([]domain.RawEvent, error)
	proposeCalls  int
	extractCalls  int
}

func (f *fakeAI) ProposeSelectors(context.Context, string, []ai.Sample) (*ai.SelectorProposal, error) {
	f.proposeCalls++
	if len(f.proposalQueue) == 0 {
		return nil, ai.ErrTransport
	}
	next := f.proposalQueue[0]
	f.proposalQueue = f.proposalQueue[1:]
	return next()
}

func (f *fakeAI) ExtractEvents(context.Context, string, string) ([]domain.RawEvent, error) {
	f.extractCalls++
	if len(f.eventQueue) == 0 {
		return nil, ai.ErrTransport
	}
	next := f.eventQueue[0]
	f.eventQueue = f.eventQueue[1:]
	return next()
}

func ok(p *ai.SelectorProposal) func() (*ai.SelectorProposal, error) {
	return func() (*ai.SelectorProposal, error) { return p, nil }
}

func fail(err error) func() (*ai.SelectorProposal, error) {
	return func() (*ai.SelectorProposal, error) { return nil, err }
}

func TestDiscoverTrustedBundle(t *testing.T) {
	t.Parallel()

	fake := &fakeAI{proposalQueue: []func() (*ai.SelectorProposal, error){ok(fullProposal())}}
	d := New(fake, zerolog.Nop())

	outcome := d.Discover(context.Background(), "https://example.org/events", fixtureHTML)
	require.NotNil(t, outcome.Bundle)
	assert.True(t, outcome.Trusted)
	assert.InDelta(t, 1.0, outcome.Confidence, 1e-9)
	assert.Equal(t, "example.org", outcome.Bundle.Domain)
	assert.Equal(t, "/events", outcome.Bundle.URLPattern)
	assert.Equal(t, "article.event-card", outcome.Bundle.ContainerSelector)
	assert.Empty(t, outcome.Warnings)
	assert.Equal(t, 0, fake.extractCalls)
}

func TestDiscoverUntrustedBundleNotCached(t *testing.T) {
	t.Parallel()

	proposal := fullProposal()
	// Break enough field selectors to land between 0.3 and 0.6: 3 of 7 pass.
	proposal.Items[domain.FieldLocation] = domain.ItemSelector{Selector: ".nope"}
	proposal.Items[domain.FieldDescription] = domain.ItemSelector{Selector: ".nope"}
	proposal.Items[domain.FieldTargetGroup] = domain.ItemSelector{Selector: ".nope"}
	proposal.Items[domain.FieldStatus] = domain.ItemSelector{Selector: ".nope"}

	fake := &fakeAI{proposalQueue: []func() (*ai.SelectorProposal, error){ok(proposal)}}
	d := New(fake, zerolog.Nop())

	outcome := d.Discover(context.Background(), "https://example.org/events", fixtureHTML)
	require.NotNil(t, outcome.Bundle)
	assert.False(t, outcome.Trusted)
	assert.InDelta(t, 3.0/7.0, outcome.Confidence, 1e-9)
	assert.NotEmpty(t, outcome.Warnings)
}

func TestDiscoverFallsBackBelowUsable(t *testing.T) {
	t.Parallel()

	proposal := fullProposal()
	proposal.Container = "div.does-not-exist"

	events := []domain.RawEvent{{domain.FieldEventName: "Sagostund", domain.FieldDateISO: "24 december"}}
	fake := &fakeAI{
		proposalQueue: []func() (*ai.SelectorProposal, error){ok(proposal)},
		eventQueue: []func() ([]domain.RawEvent, error){
			func() ([]domain.RawEvent, error) { return events, nil },
		},
	}
	d := New(fake, zerolog.Nop())

	outcome := d.Discover(context.Background(), "https://example.org/events", fixtureHTML)
	assert.Nil(t, outcome.Bundle)
	assert.Equal(t, events, outcome.Events)
	assert.NotEmpty(t, outcome.Warnings)
	assert.Equal(t, 1, fake.extractCalls)
}

func TestDiscoverRetriesTransportOnce(t *testing.T) {
	t.Parallel()

	fake := &fakeAI{proposalQueue: []func() (*ai.SelectorProposal, error){
		fail(ai.ErrTransport),
		ok(fullProposal()),
	}}
	d := New(fake, zerolog.Nop())

	outcome := d.Discover(context.Background(), "https://example.org/events", fixtureHTML)
	require.NotNil(t, outcome.Bundle)
	assert.True(t, outcome.Trusted)
	assert.Equal(t, 2, fake.proposeCalls)
}

func TestDiscoverMalformedProposalFallsBack(t *testing.T) {
	t.Parallel()

	events := []domain.RawEvent{{domain.FieldEventName: "Babyrytmik"}}
	fake := &fakeAI{
		proposalQueue: []func() (*ai.SelectorProposal, error){fail(ai.ErrMalformed)},
		eventQueue: []func() ([]domain.RawEvent, error){
			func() ([]domain.RawEvent, error) { return events, nil },
		},
	}
	d := New(fake, zerolog.Nop())

	outcome := d.Discover(context.Background(), "https://example.org/events", fixtureHTML)
	assert.Nil(t, outcome.Bundle)
	assert.Equal(t, events, outcome.Events)
	// Malformed responses are not retried at the proposal stage.
	assert.Equal(t, 1, fake.proposeCalls)
}

func TestDiscoverAllAIFailuresYieldWarningsOnly(t *testing.T) {
	t.Parallel()

	fake := &fakeAI{} // every call returns ErrTransport
	d := New(fake, zerolog.Nop())

	outcome := d.Discover(context.Background(), "https://example.org/events", fixtureHTML)
	assert.Nil(t, outcome.Bundle)
	assert.Empty(t, outcome.Events)
	assert.NotEmpty(t, outcome.Warnings)
	assert.Equal(t, 2, fake.proposeCalls)
	assert.Equal(t, 2, fake.extractCalls)
}

func TestSampleContainersFindsEventLikeNodes(t *testing.T) {
	t.Parallel()

	htmlDivs := `
<html><body>
<div class="EventListing">Julkonsert i stora salen den 24 december kl 18</div>
<div class="EventListing">Nyårsfest med dans den 31 december kl 22</div>
<div class="plain">Om webbplatsen och kontaktuppgifter till oss</div>
<li class="calendar-item">Sagostund i sagorummet den 26 december</li>
</body></html>`

	fake := &fakeAI{proposalQueue: []func() (*ai.SelectorProposal, error){
		func() (*ai.SelectorProposal, error) { return nil, ai.ErrMalformed },
	}}
	d := New(fake, zerolog.Nop())
	d.Discover(context.Background(), "https://example.org/kalender", htmlDivs)

	// Sampling found candidates, so the proposal stage was reached.
	assert.Equal(t, 1, fake.proposeCalls)
}
