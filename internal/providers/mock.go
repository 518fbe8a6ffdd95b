package providers

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const MockClientName = "mock"

// MockClient is an LLMClient for testing.
type MockClient struct {
	// Configurable behavior
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int // Fail after N requests (0 = never)
	ResponseText string

	// Respond, when set, computes the response text per request and may fail.
	Respond func(req *ChatRequest) (string, error)

	// State
	requestCount atomic.Int64
	mu           sync.Mutex
	requests     []*ChatRequest
}

// NewMockClient creates a new mock client with sensible defaults.
func NewMockClient() *MockClient {
	return &MockClient{
		Latency:      time.Millisecond,
		ResponseText: "mock response",
	}
}

// Name returns the client identifier.
func (c *MockClient) Name() string {
	return MockClientName
}

// Chat sends a mock chat request.
func (c *MockClient) Chat(ctx context.Context, req *ChatRequest) (*ChatResult, error) {
	start := time.Now()
	count := c.requestCount.Add(1)

	c.mu.Lock()
	c.requests = append(c.requests, req)
	c.mu.Unlock()

	result := &ChatResult{
		RequestID: fmt.Sprintf("mock-%d", count),
		Provider:  MockClientName,
		ModelUsed: req.Model,
		Attempts:  1,
	}
	fail := func(err error) (*ChatResult, error) {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}

	if c.ShouldFail {
		return fail(fmt.Errorf("mock client configured to fail"))
	}
	if c.FailAfter > 0 && int(count) > c.FailAfter {
		return fail(fmt.Errorf("mock client failed after %d requests", c.FailAfter))
	}

	// Simulate latency
	select {
	case <-time.After(c.Latency):
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	content := c.ResponseText
	if c.Respond != nil {
		text, err := c.Respond(req)
		if err != nil {
			return fail(err)
		}
		content = text
	}

	result.Success = true
	result.Content = content
	result.ExecutionTime = time.Since(start)

	// Simulate token counting
	promptTokens := 0
	for _, m := range req.Messages {
		promptTokens += len(m.Content) / 4 // Rough estimate
	}
	completionTokens := len(content) / 4

	result.PromptTokens = promptTokens
	result.CompletionTokens = completionTokens
	result.TotalTokens = promptTokens + completionTokens
	result.CostUSD = 0.001 // Mock cost

	return result, nil
}

// RequestCount returns the number of requests made.
func (c *MockClient) RequestCount() int64 {
	return c.requestCount.Load()
}

// Requests returns a copy of every request received.
func (c *MockClient) Requests() []*ChatRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*ChatRequest, len(c.requests))
	copy(out, c.requests)
	return out
}

// Reset resets the request counter.
func (c *MockClient) Reset() {
	c.requestCount.Store(0)
	c.mu.Lock()
	c.requests = nil
	c.mu.Unlock()
}

// Verify interface
var _ LLMClient = (*MockClient)(nil)

// MockOCRProvider is an OCRProvider for testing.
type MockOCRProvider struct {
	ProviderName string
	Latency      time.Duration
	ShouldFail   bool
	FailAfter    int
	FailPages    map[int]bool // pages that always fail
	ResponseText string
	Tables       []string
	TableFormat  string
	RPS          float64
	Retries      int
	RetryDelay   time.Duration

	// LatencyFor, when set, overrides Latency per page.
	LatencyFor func(pageNum int) time.Duration

	requestCount atomic.Int64
}

// NewMockOCRProvider creates a new mock OCR provider.
func NewMockOCRProvider() *MockOCRProvider {
	return &MockOCRProvider{
		ProviderName: "mock-ocr",
		Latency:      time.Millisecond,
		ResponseText: "mock OCR text",
		TableFormat:  TableFormatMarkdown,
		RPS:          1000,
		Retries:      1,
		RetryDelay:   time.Millisecond,
	}
}

// Name returns the provider identifier.
func (p *MockOCRProvider) Name() string {
	return p.ProviderName
}

// RequestsPerSecond returns the rate limit.
func (p *MockOCRProvider) RequestsPerSecond() float64 {
	return p.RPS
}

// MaxRetries returns the max retry count.
func (p *MockOCRProvider) MaxRetries() int {
	return p.Retries
}

// RetryDelayBase returns the base retry delay.
func (p *MockOCRProvider) RetryDelayBase() time.Duration {
	return p.RetryDelay
}

// ProcessImage returns canned text for a page image.
func (p *MockOCRProvider) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()
	count := p.requestCount.Add(1)

	result := &OCRResult{}
	fail := func(err error) (*OCRResult, error) {
		result.Success = false
		result.ErrorMessage = err.Error()
		result.ExecutionTime = time.Since(start)
		return result, err
	}

	if p.ShouldFail {
		return fail(fmt.Errorf("mock OCR provider configured to fail"))
	}
	if p.FailAfter > 0 && int(count) > p.FailAfter {
		return fail(fmt.Errorf("mock OCR provider failed after %d requests", p.FailAfter))
	}
	if p.FailPages[pageNum] {
		return fail(fmt.Errorf("mock OCR provider configured to fail page %d", pageNum))
	}

	latency := p.Latency
	if p.LatencyFor != nil {
		latency = p.LatencyFor(pageNum)
	}
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	result.Success = true
	result.Text = fmt.Sprintf("Page %d: %s", pageNum, p.ResponseText)
	result.Tables = append([]string(nil), p.Tables...)
	result.TableFormat = p.TableFormat
	result.ExecutionTime = time.Since(start)
	result.CostUSD = 0.001
	result.Metadata = map[string]any{
		"page_num":    pageNum,
		"char_count":  len(result.Text),
		"provider":    p.ProviderName,
		"image_bytes": len(image),
	}

	return result, nil
}

// RequestCount returns the number of requests made.
func (p *MockOCRProvider) RequestCount() int64 {
	return p.requestCount.Load()
}

// Reset resets the request counter.
func (p *MockOCRProvider) Reset() {
	p.requestCount.Store(0)
}

// Verify interface
var _ OCRProvider = (*MockOCRProvider)(nil)
