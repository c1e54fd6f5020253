package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/carematch/community-recommender/internal/ai"
	"github.com/carematch/community-recommender/internal/utils"
)

const (
	defaultModel      = "gemini-2.5-flash"
	defaultMaxRetries = 3
	defaultBaseDelay  = 2 * time.Second
	defaultDeadline   = 30 * time.Second
)

// waitFor is swapped out in tests.
var waitFor = utils.WaitFor

// modelCaller is the slice of the genai client the Client needs, kept as an
// interface so tests can queue fake responses.
type modelCaller interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client implements ai.Client on top of the Gemini API. All calls request
// strict JSON output; transient failures are retried with exponential
// backoff before reporting ai.ErrUnavailable.
type Client struct {
	models     modelCaller
	model      string
	maxRetries int
	baseDelay  time.Duration
	logger     *zap.Logger
}

func New(ctx context.Context, apiKey, model string, logger *zap.Logger) (*Client, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}

	return &Client{
		models:     client.Models,
		model:      model,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		logger:     logger,
	}, nil
}

func (c *Client) Model() string { return c.model }

// ExtractStructured sends the schema prompt plus the consultation media and
// returns the raw JSON document the model produced.
func (c *Client) ExtractStructured(ctx context.Context, media ai.Media, schema string, opts ai.CallOptions) (json.RawMessage, ai.Usage, error) {
	parts := []*genai.Part{{Text: schema}}
	if media.IsAudio() {
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{MIMEType: media.MIME, Data: media.Audio},
		})
	} else {
		parts = append(parts, &genai.Part{Text: "CLIENT CONVERSATION:\n" + media.Text})
	}

	raw, usage, err := c.generate(ctx, parts, opts)
	if err != nil {
		return nil, usage, err
	}

	cleaned := extractJSON(raw)
	if !json.Valid([]byte(cleaned)) {
		return nil, usage, fmt.Errorf("gemini returned invalid JSON: %s", utils.TruncateForLog(cleaned, 200))
	}

	return json.RawMessage(cleaned), usage, nil
}

// Rank sends a ranking prompt and decodes the rankings array. Both the
// wrapped `{"rankings": [...]}` shape and a bare array are accepted. An
// empty rankings array is a successful call meaning the model ranked
// nothing; callers fall back per community rather than treating the
// provider as degraded.
func (c *Client) Rank(ctx context.Context, prompt string, opts ai.CallOptions) ([]ai.RankedItem, ai.Usage, error) {
	raw, usage, err := c.generate(ctx, []*genai.Part{{Text: prompt}}, opts)
	if err != nil {
		return nil, usage, err
	}

	cleaned := extractJSON(raw)

	var wrapped struct {
		Rankings *[]ai.RankedItem `json:"rankings"`
	}
	if err := json.Unmarshal([]byte(cleaned), &wrapped); err == nil && wrapped.Rankings != nil {
		return *wrapped.Rankings, usage, nil
	}

	var items []ai.RankedItem
	if err := json.Unmarshal([]byte(cleaned), &items); err != nil {
		return nil, usage, fmt.Errorf("parse gemini rankings: %w", err)
	}

	return items, usage, nil
}

func (c *Client) generate(ctx context.Context, parts []*genai.Part, opts ai.CallOptions) (string, ai.Usage, error) {
	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = defaultDeadline
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(opts.Temperature),
		ResponseMIMEType: "application/json",
	}
	contents := []*genai.Content{{Role: genai.RoleUser, Parts: parts}}

	var usage ai.Usage
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.baseDelay << (attempt - 1)
			c.logger.Warn("retrying gemini call",
				zap.Int("attempt", attempt+1),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)
			if err := waitFor(ctx, delay); err != nil {
				return "", usage, fmt.Errorf("%w: %v", ai.ErrUnavailable, err)
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, deadline)
		start := time.Now()
		resp, err := c.models.GenerateContent(callCtx, c.model, contents, config)
		usage.Latency += time.Since(start)
		cancel()

		if err != nil {
			if !retriable(err) {
				return "", usage, fmt.Errorf("generate content: %w", err)
			}
			lastErr = err
			continue
		}

		if resp.UsageMetadata != nil {
			usage.InputTokens += int(resp.UsageMetadata.PromptTokenCount)
			usage.OutputTokens += int(resp.UsageMetadata.CandidatesTokenCount)
		}

		text := collectText(resp)
		if text == "" {
			lastErr = errors.New("gemini returned empty response")
			continue
		}

		return text, usage, nil
	}

	return "", usage, fmt.Errorf("%w: %v", ai.ErrUnavailable, lastErr)
}

// retriable reports whether the error is transient: rate limiting, server
// errors, timeouts, or transport failures.
func retriable(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429 || apiErr.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func collectText(resp *genai.GenerateContentResponse) string {
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	return strings.TrimSpace(builder.String())
}

// extractJSON strips markdown code fences some models wrap around JSON.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	return strings.TrimSpace(strings.Trim(raw, "`"))
}
