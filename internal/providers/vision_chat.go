package providers

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const VisionChatOCRName = "vision-llm"

const visionOCRPrompt = `Transcribe this page from a construction bid document into markdown.
Reproduce every table as a markdown pipe table with a header row.
Include title block text, sheet numbers, keynotes and schedule entries.
Do not describe the image. Do not add commentary.`

// VisionChatOCRConfig configures OCR through a vision-capable chat model.
type VisionChatOCRConfig struct {
	Name       string
	Client     LLMClient
	Model      string
	Prompt     string
	MaxTokens  int     // default: 4096
	RateLimit  float64 // default: 2.0
	MaxRetries int     // default: 3
	RetryDelay time.Duration
}

// VisionChatOCR implements OCRProvider by sending the page image to a chat
// model and asking for a markdown transcription.
type VisionChatOCR struct {
	name       string
	client     LLMClient
	model      string
	prompt     string
	maxTokens  int
	rateLimit  float64
	maxRetries int
	retryDelay time.Duration
}

// NewVisionChatOCR wraps an LLM client as an OCR provider.
func NewVisionChatOCR(cfg VisionChatOCRConfig) *VisionChatOCR {
	if cfg.Name == "" {
		cfg.Name = VisionChatOCRName
	}
	if cfg.Prompt == "" {
		cfg.Prompt = visionOCRPrompt
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
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
	return &VisionChatOCR{
		name:       cfg.Name,
		client:     cfg.Client,
		model:      cfg.Model,
		prompt:     cfg.Prompt,
		maxTokens:  cfg.MaxTokens,
		rateLimit:  cfg.RateLimit,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}
}

func (p *VisionChatOCR) Name() string                  { return p.name }
func (p *VisionChatOCR) RequestsPerSecond() float64    { return p.rateLimit }
func (p *VisionChatOCR) MaxRetries() int               { return p.maxRetries }
func (p *VisionChatOCR) RetryDelayBase() time.Duration { return p.retryDelay }

// ProcessImage transcribes one page image. Markdown pipe tables found in the
// transcription are also returned in Tables.
func (p *VisionChatOCR) ProcessImage(ctx context.Context, image []byte, pageNum int) (*OCRResult, error) {
	start := time.Now()
	if p.client == nil {
		err := fmt.Errorf("%s: no chat client configured", p.name)
		return &OCRResult{ErrorMessage: err.Error()}, err
	}

	res, err := p.client.Chat(ctx, &ChatRequest{
		Model:       p.model,
		Temperature: 0.1,
		MaxTokens:   p.maxTokens,
		Messages: []Message{
			{Role: "user", Content: p.prompt, Images: [][]byte{image}},
		},
	})
	if err != nil {
		return &OCRResult{
			ErrorMessage:  err.Error(),
			ExecutionTime: time.Since(start),
		}, err
	}

	text := stripMarkdownFence(res.Content)
	if strings.TrimSpace(text) == "" {
		err := fmt.Errorf("%s page %d: %w", p.name, pageNum, ErrEmptyResponse)
		return &OCRResult{ErrorMessage: err.Error(), ExecutionTime: time.Since(start)}, err
	}

	retries := 0
	if res.Attempts > 1 {
		retries = res.Attempts - 1
	}
	return &OCRResult{
		Success:     true,
		Text:        text,
		Tables:      MarkdownTables(text),
		TableFormat: TableFormatMarkdown,
		Metadata: map[string]any{
			"model_used":        res.ModelUsed,
			"page_num":          pageNum,
			"prompt_tokens":     res.PromptTokens,
			"completion_tokens": res.CompletionTokens,
		},
		CostUSD:       res.CostUSD,
		ExecutionTime: time.Since(start),
		RetryCount:    retries,
	}, nil
}

// MarkdownTables returns each contiguous block of pipe-table rows (lines
// starting with "|") that has at least a header and a separator row.
func MarkdownTables(text string) []string {
	var (
		tables []string
		block  []string
	)
	flush := func() {
		if len(block) >= 2 && isTableSeparator(block[1]) {
			tables = append(tables, strings.Join(block, "\n"))
		}
		block = block[:0]
	}
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "|") {
			block = append(block, trimmed)
			continue
		}
		flush()
	}
	flush()
	return tables
}

func isTableSeparator(line string) bool {
	cells := strings.Trim(line, "|")
	if !strings.Contains(cells, "-") {
		return false
	}
	for _, r := range cells {
		switch r {
		case '|', '-', ':', ' ':
		default:
			return false
		}
	}
	return true
}

// stripMarkdownFence removes a wrapping ```markdown fence some models add.
func stripMarkdownFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	} else {
		return ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Verify interface
var _ OCRProvider = (*VisionChatOCR)(nil)
