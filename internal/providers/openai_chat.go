package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	OpenAIChatName    = "openai"
	OpenAIChatBaseURL = "https://api.openai.com/v1"
	OpenAIChatModel   = "gpt-4o-mini"
)

// OpenAIChatConfig configures an OpenAI-compatible chat client. Any endpoint
// speaking the chat completions protocol works (OpenAI, OpenRouter, Together,
// vLLM) by setting BaseURL.
type OpenAIChatConfig struct {
	Name       string // registry name, defaults to "openai"
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	RateLimit  float64 // Requests per second (default: 2.0)
	MaxRetries int     // default: 3
	RetryDelay time.Duration

	// Per-million token prices used for CostUSD. Zero means unknown.
	InputPricePerM  float64
	OutputPricePerM float64

	HTTPClient *http.Client
}

// OpenAIChatClient implements LLMClient using the openai-go SDK.
type OpenAIChatClient struct {
	name            string
	model           string
	maxRetries      int
	retryDelay      time.Duration
	timeout         time.Duration
	inputPricePerM  float64
	outputPricePerM float64

	client  openai.Client
	limiter *RateLimiter
}

// NewOpenAIChatClient creates a new OpenAI-compatible chat client.
func NewOpenAIChatClient(cfg OpenAIChatConfig) *OpenAIChatClient {
	if cfg.Name == "" {
		cfg.Name = OpenAIChatName
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = OpenAIChatBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = OpenAIChatModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/") + "/"),
		// Retries are ours so 429 handling and attempt counts stay in one place.
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIChatClient{
		name:            cfg.Name,
		model:           cfg.Model,
		maxRetries:      cfg.MaxRetries,
		retryDelay:      cfg.RetryDelay,
		timeout:         cfg.Timeout,
		inputPricePerM:  cfg.InputPricePerM,
		outputPricePerM: cfg.OutputPricePerM,
		client:          openai.NewClient(opts...),
		limiter:         NewRateLimiter(cfg.RateLimit),
	}
}

// Name returns the client identifier.
func (c *OpenAIChatClient) Name() string {
	return c.name
}

// Model returns the default model.
func (c *OpenAIChatClient) Model() string {
	return c.model
}

// Limiter exposes the client's rate limiter for status reporting.
func (c *OpenAIChatClient) Limiter() *RateLimiter {
	return c.limiter
}

// Chat sends a chat completion request, retrying transient failures.
func (c *OpenAIChatClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	model := req.Model
	if model == "" {
		model = c.model
	}

	result := &ChatResult{
		Provider:  c.name,
		ModelUsed: model,
		RequestID: requestID,
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: buildOpenAIMessages(req.Messages),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	timeout := req.Timeout
	if timeout == 0 {
		timeout = c.timeout
	}

	var resp *openai.ChatCompletion
	attempts, err := withRetry(ctx, c.maxRetries, c.retryDelay, func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		r, err := c.client.Chat.Completions.New(callCtx, params)
		if err != nil {
			mapped := mapOpenAIError(c.name, err)
			var rl *RateLimitError
			if errors.As(mapped, &rl) {
				c.limiter.Record429()
			}
			return mapped
		}
		if len(r.Choices) == 0 || strings.TrimSpace(r.Choices[0].Message.Content) == "" {
			return fmt.Errorf("%s returned no content: %w", c.name, ErrEmptyResponse)
		}
		resp = r
		return nil
	})
	result.Attempts = attempts
	result.ExecutionTime = time.Since(start)
	if err != nil {
		result.Success = false
		result.ErrorMessage = err.Error()
		return result, err
	}

	result.Success = true
	result.Content = resp.Choices[0].Message.Content
	if resp.Model != "" {
		result.ModelUsed = resp.Model
	}
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	result.CostUSD = float64(result.PromptTokens)*c.inputPricePerM/1e6 +
		float64(result.CompletionTokens)*c.outputPricePerM/1e6

	return result, nil
}

// buildOpenAIMessages converts messages to SDK params. User messages with
// images become multi-part content with PNG data URLs.
func buildOpenAIMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			if len(m.Images) == 0 {
				out = append(out, openai.UserMessage(m.Content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
			if m.Content != "" {
				parts = append(parts, openai.TextContentPart(m.Content))
			}
			for _, img := range m.Images {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(img),
					Detail: "high",
				}))
			}
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out
}

// mapOpenAIError converts SDK API errors into RateLimitError or StatusError
// so retry decisions are uniform across providers.
func mapOpenAIError(provider string, err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	if apiErr.StatusCode == http.StatusTooManyRequests {
		var retryAfter time.Duration
		if apiErr.Response != nil {
			retryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return &RateLimitError{
			Message:    fmt.Sprintf("%s rate limited: %s", provider, msg),
			RetryAfter: retryAfter,
			StatusCode: apiErr.StatusCode,
		}
	}
	return &StatusError{Provider: provider, StatusCode: apiErr.StatusCode, Message: msg}
}

// Verify interface
var _ LLMClient = (*OpenAIChatClient)(nil)
