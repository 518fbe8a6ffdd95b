package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	MistralOCRName    = "mistral-ocr"
	MistralOCRBaseURL = "https://api.mistral.ai/v1"
	MistralOCRModel   = "mistral-ocr-latest"

	// Mistral OCR is billed per page; a rasterized drawing is one page.
	MistralOCRCostPerPage = 0.001
)

// MistralOCRConfig holds configuration for the Mistral OCR client.
type MistralOCRConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	RateLimit   float64 // Requests per second (default: 6.0)
	MaxRetries  int     // default: 3
	RetryDelay  time.Duration
	TableFormat string // "html" (default) or "markdown"
}

// MistralOCRClient implements OCRProvider using the Mistral OCR API.
type MistralOCRClient struct {
	apiKey      string
	baseURL     string
	model       string
	rateLimit   float64
	maxRetries  int
	retryDelay  time.Duration
	tableFormat string
	client      *http.Client
}

// NewMistralOCRClient creates a new Mistral OCR client.
func NewMistralOCRClient(cfg MistralOCRConfig) *MistralOCRClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = MistralOCRBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = MistralOCRModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 6.0
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.TableFormat == "" {
		cfg.TableFormat = TableFormatHTML
	}

	return &MistralOCRClient{
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		rateLimit:   cfg.RateLimit,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		tableFormat: cfg.TableFormat,
		client:      &http.Client{Timeout: cfg.Timeout},
	}
}

// Name returns the provider identifier.
func (c *MistralOCRClient) Name() string {
	return MistralOCRName
}

// RequestsPerSecond returns the rate limit for Mistral OCR.
func (c *MistralOCRClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// MaxRetries returns the maximum retry attempts.
func (c *MistralOCRClient) MaxRetries() int {
	return c.maxRetries
}

// RetryDelayBase returns the base delay for exponential backoff.
func (c *MistralOCRClient) RetryDelayBase() time.Duration {
	return c.retryDelay
}

// ProcessImage runs OCR on a PNG page image. Tables are returned separately
// in the configured table format.
func (c *MistralOCRClient) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()

	reqBody := mistralOCRRequest{
		Model: c.model,
		Document: mistralDocument{
			Type:     "image_url",
			ImageURL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
		},
		TableFormat: c.tableFormat,
	}

	var resp *mistralOCRResponse
	attempts, err := withRetry(ctx, c.maxRetries, c.retryDelay, func() error {
		r, err := c.doRequest(ctx, "/ocr", reqBody)
		if err != nil {
			return err
		}
		if len(r.Pages) == 0 {
			return fmt.Errorf("no pages in OCR response: %w", ErrEmptyResponse)
		}
		resp = r
		return nil
	})
	if err != nil {
		return &OCRResult{
			Success:       false,
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
			RetryCount:    attempts - 1,
		}, err
	}

	page := resp.Pages[0]
	tables := make([]string, 0, len(page.Tables))
	for _, tbl := range page.Tables {
		if strings.TrimSpace(tbl.Content) != "" {
			tables = append(tables, tbl.Content)
		}
	}

	metadata := map[string]any{
		"model_used": resp.Model,
		"page_num":   pageNum,
		"dimensions": map[string]any{
			"width":  page.Dimensions.Width,
			"height": page.Dimensions.Height,
			"dpi":    page.Dimensions.DPI,
		},
		"image_count": len(page.Images),
	}
	if resp.UsageInfo != nil {
		metadata["pages_processed"] = resp.UsageInfo.PagesProcessed
	}

	return &OCRResult{
		Success:       true,
		Text:          page.Markdown,
		Tables:        tables,
		TableFormat:   c.tableFormat,
		Metadata:      metadata,
		CostUSD:       MistralOCRCostPerPage,
		ExecutionTime: time.Since(start),
		RetryCount:    attempts - 1,
	}, nil
}

// doRequest makes an HTTP request to Mistral API.
func (c *MistralOCRClient) doRequest(ctx context.Context, path string, body any) (*mistralOCRResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var errResp mistralErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, &RateLimitError{
				Message:    fmt.Sprintf("Mistral OCR rate limited: %s", msg),
				RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
				StatusCode: resp.StatusCode,
			}
		}
		return nil, &StatusError{Provider: "Mistral OCR", StatusCode: resp.StatusCode, Message: msg}
	}

	var ocrResp mistralOCRResponse
	if err := json.Unmarshal(respBody, &ocrResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &ocrResp, nil
}

// Mistral OCR API types

type mistralOCRRequest struct {
	Model       string          `json:"model"`
	Document    mistralDocument `json:"document"`
	TableFormat string          `json:"table_format,omitempty"`
}

type mistralDocument struct {
	Type     string `json:"type"` // "image_url" or "document_url"
	ImageURL string `json:"image_url,omitempty"`
}

type mistralOCRResponse struct {
	Model     string            `json:"model"`
	Pages     []mistralOCRPage  `json:"pages"`
	UsageInfo *mistralUsageInfo `json:"usage_info,omitempty"`
}

type mistralOCRPage struct {
	Index      int                   `json:"index"`
	Markdown   string                `json:"markdown"`
	Images     []mistralOCRImage     `json:"images,omitempty"`
	Tables     []mistralOCRTable     `json:"tables,omitempty"`
	Dimensions mistralPageDimensions `json:"dimensions"`
}

type mistralOCRImage struct {
	ID string `json:"id"`
}

type mistralOCRTable struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

type mistralPageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	DPI    int `json:"dpi"`
}

type mistralUsageInfo struct {
	PagesProcessed int `json:"pages_processed"`
}

type mistralErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Verify interface
var _ OCRProvider = (*MistralOCRClient)(nil)
