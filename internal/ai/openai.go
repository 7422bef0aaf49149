package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/kulturkartan/kulturkartan/internal/domain"
)

const (
	defaultModel = openai.GPT4oMini

	// maxHTMLChars bounds how much page HTML goes into one prompt.
	maxHTMLChars = 60000

	defaultCallTimeout = 30 * time.Second
)

const proposeSystemPrompt = `You analyze Swedish event listing pages. Given sample HTML snippets of
event containers and their rendered text, return CSS selectors that extract
each event field. Respond with JSON only:
{"container": "<css selector matching one event container>",
 "items": {"event_name": "<css>", "date_iso": "<css>" or {"selector": "<css>", "attribute": "<attr>"},
           "time": "<css>", "location": "<css>", "description": "<css>",
           "target_group": "<css>", "status": "<css>", "event_url": "<css>", "booking_info": "<css>"},
 "confidence": <0..1>}
Selectors in "items" are relative to the container. Omit fields you cannot
locate. Prefer the datetime attribute of <time> elements for dates.`

const eventListSystemPrompt = `You extract events from Swedish event listing pages. Return JSON only:
{"events": [{"event_name": "...", "date_iso": "...", "end_date_iso": "...",
 "time": "...", "location": "...", "target_group": "...", "description": "...",
 "event_url": "...", "status": "...", "booking_info": "..."}]}
Dates as written on the page; leave fields you cannot find empty. Only
include real events, never navigation or headings.`

// OpenAI implements Extractor with the OpenAI chat completion API. Calls
// are rate-limited so parallel workers cannot burst the provider.
type OpenAI struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	timeout time.Duration
	logger  zerolog.Logger
}

var _ Extractor = (*OpenAI)(nil)

// NewOpenAI builds the client. model may be empty for the default; apiKey
// must not be.
func NewOpenAI(apiKey, model string, logger zerolog.Logger) (*OpenAI, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("ai: api key is required")
	}
	if model == "" {
		model = defaultModel
	}
	return &OpenAI{
		client:  openai.NewClient(apiKey),
		model:   model,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 2),
		timeout: defaultCallTimeout,
		logger:  logger,
	}, nil
}

// ProposeSelectors runs the correlation-mode prompt over the samples.
func (o *OpenAI) ProposeSelectors(ctx context.Context, url string, samples []Sample) (*SelectorProposal, error) {
	payload, err := json.Marshal(samples)
	if err != nil {
		return nil, fmt.Errorf("marshal samples: %w", err)
	}
	user := fmt.Sprintf("Listing URL: %s\n\nSample containers:\n%s", url, payload)

	content, err := o.complete(ctx, proposeSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var proposal SelectorProposal
	if err := unmarshalWithRepair(content, &proposal); err != nil {
		return nil, err
	}
	if proposal.Container == "" {
		return nil, fmt.Errorf("%w: proposal has no container selector", ErrMalformed)
	}
	return &proposal, nil
}

// ExtractEvents runs the one-shot event-list prompt over the page HTML.
func (o *OpenAI) ExtractEvents(ctx context.Context, url, html string) ([]domain.RawEvent, error) {
	if len(html) > maxHTMLChars {
		html = html[:maxHTMLChars]
	}
	user := fmt.Sprintf("Listing URL: %s\n\nPage HTML:\n%s", url, html)

	content, err := o.complete(ctx, eventListSystemPrompt, user)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Events []domain.RawEvent `json:"events"`
	}
	if err := unmarshalWithRepair(content, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Events, nil
}

func (o *OpenAI) complete(ctx context.Context, system, user string) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrMalformed)
	}

	o.logger.Debug().
		Dur("elapsed", time.Since(start)).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("ai: completion finished")

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// unmarshalWithRepair tries the cleaned payload as-is, then once more after
// JSON repair.
func unmarshalWithRepair(content string, v any) error {
	cleaned := CleanResponse(content)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}
	repaired := RepairJSON(cleaned)
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}
