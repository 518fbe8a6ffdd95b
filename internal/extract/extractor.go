// Package extract turns analyzed pages into structured screen specs,
// requirements and project info by batching them through a chat model.
package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/types"
)

// ErrBatchFailed marks a batch that contributed nothing to the result.
var ErrBatchFailed = errors.New("batch extraction failed")

const (
	DefaultMaxTokens   = 8192
	DefaultTemperature = 0.1
	DefaultCallTimeout = 180 * time.Second
)

// Config configures an Extractor.
type Config struct {
	Limits      Limits
	Model       string // client default if empty
	MaxTokens   int
	Temperature float64
	CallTimeout time.Duration
	Logger      *slog.Logger
}

// Progress is reported after each batch, success or failure.
type Progress struct {
	Batch        int
	TotalBatches int
	Pages        []int
	Err          error // wraps ErrBatchFailed when the batch was skipped
}

// Options are per-run inputs.
type Options struct {
	Document       string
	ProjectContext string
	OnProgress     func(Progress)
}

// Result is the merged output of every successful batch.
type Result struct {
	Specs         []types.ExtractedSpec `json:"specs"`
	Requirements  []types.Requirement   `json:"requirements"`
	Project       types.ProjectInfo     `json:"project"`
	Batches       int                   `json:"batches"`
	FailedBatches int                   `json:"failed_batches"`
	TokensUsed    int                   `json:"tokens_used"`
	CostUSD       float64               `json:"cost_usd"`
}

// Extractor calls an LLM once per batch and merges the answers.
type Extractor struct {
	llm    providers.LLMClient
	cfg    Config
	logger *slog.Logger
}

// New creates an Extractor.
func New(llm providers.LLMClient, cfg Config) *Extractor {
	cfg.Limits = cfg.Limits.withDefaults()
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Extractor{llm: llm, cfg: cfg, logger: cfg.Logger}
}

// BatchCount returns how many batches Extract will make for pages.
func (e *Extractor) BatchCount(pages []types.AnalyzedPage) int {
	return len(MakeBatches(pages, e.cfg.Limits))
}

// Extract runs every batch in page order. Failed batches are reported
// through OnProgress and skipped; only context cancellation returns an
// error.
func (e *Extractor) Extract(ctx context.Context, pages []types.AnalyzedPage, opts Options) (*Result, error) {
	batches := MakeBatches(pages, e.cfg.Limits)
	res := &Result{Batches: len(batches)}

	for _, b := range batches {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		out, err := e.extractBatch(ctx, b, len(batches), opts)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.FailedBatches++
			e.logger.Warn("batch extraction failed",
				"batch", b.Index,
				"total", len(batches),
				"pages", b.PageNumbers(),
				"error", err)
		} else {
			res.Specs = MergeSpecs(res.Specs, out.specs)
			res.Requirements = MergeRequirements(res.Requirements, out.requirements)
			res.Project = MergeProject(res.Project, out.project)
		}
		if out != nil {
			res.TokensUsed += out.tokens
			res.CostUSD += out.cost
		}

		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Batch:        b.Index,
				TotalBatches: len(batches),
				Pages:        b.PageNumbers(),
				Err:          err,
			})
		}
	}

	if res.Specs == nil {
		res.Specs = []types.ExtractedSpec{}
	}
	if res.Requirements == nil {
		res.Requirements = []types.Requirement{}
	}
	return res, nil
}

type batchOutput struct {
	specs        []types.ExtractedSpec
	requirements []types.Requirement
	project      types.ProjectInfo
	tokens       int
	cost         float64
}

// extractBatch runs one batch. Any failure is wrapped in ErrBatchFailed.
// A non-nil output is returned whenever the model was reached, so usage is
// counted even for unparseable answers.
func (e *Extractor) extractBatch(ctx context.Context, b Batch, total int, opts Options) (*batchOutput, error) {
	pagesInBatch := b.PageNumbers()
	prompt, err := userPrompt(promptData{
		ProjectContext: strings.TrimSpace(opts.ProjectContext),
		Document:       opts.Document,
		Batch:          b.Index,
		TotalBatches:   total,
		FirstPage:      pagesInBatch[0],
		LastPage:       pagesInBatch[len(pagesInBatch)-1],
		Pages:          b.Pages,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: render prompt: %v", ErrBatchFailed, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	chat, err := e.llm.Chat(callCtx, &providers.ChatRequest{
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
		MaxTokens:   e.cfg.MaxTokens,
		Messages: []providers.Message{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: &providers.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}

	out := &batchOutput{tokens: chat.TotalTokens, cost: chat.CostUSD}

	raw, err := providers.ParseStructuredJSON(chat.Content)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	if err := compiledBatchSchema.Validate(raw); err != nil {
		return out, fmt.Errorf("%w: %w", ErrBatchFailed, err)
	}
	var resp batchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return out, fmt.Errorf("%w: decode: %v", ErrBatchFailed, err)
	}

	out.specs = convertScreens(resp.Screens, pagesInBatch)
	out.requirements = convertRequirements(resp.Requirements, pagesInBatch)
	if resp.Project != nil {
		out.project = convertProject(*resp.Project)
	}

	e.logger.Debug("batch extracted",
		"batch", b.Index,
		"total", total,
		"screens", len(out.specs),
		"requirements", len(out.requirements),
		"tokens", chat.TotalTokens,
		"duration", time.Since(start))
	return out, nil
}

func convertScreens(in []wireScreen, batchPages []int) []types.ExtractedSpec {
	out := make([]types.ExtractedSpec, 0, len(in))
	for _, w := range in {
		name := strings.TrimSpace(w.Name)
		if name == "" {
			continue
		}
		s := types.ExtractedSpec{
			Name:                name,
			Location:            deref(w.Location),
			Size:                deref(w.Size),
			WidthFt:             positive(w.WidthFt),
			HeightFt:            positive(w.HeightFt),
			PixelPitchMM:        positive(w.PixelPitchMM),
			Resolution:          deref(w.Resolution),
			Environment:         types.ParseEnvironment(deref(w.Environment)),
			MountingType:        deref(w.MountingType),
			BrightnessNits:      positive(w.BrightnessNits),
			SpecialRequirements: deref(w.SpecialRequirements),
			Notes:               deref(w.Notes),
			Confidence:          clampConfidence(w.Confidence),
			SourcePages:         pagesWithin(w.SourcePages, batchPages),
		}
		if w.Quantity != nil && *w.Quantity >= 1 {
			q := int(math.Round(*w.Quantity))
			s.Quantity = &q
		}
		out = append(out, s)
	}
	return out
}

func convertRequirements(in []wireRequirement, batchPages []int) []types.Requirement {
	out := make([]types.Requirement, 0, len(in))
	for _, w := range in {
		desc := strings.TrimSpace(w.Description)
		if desc == "" {
			continue
		}
		r := types.Requirement{
			Category:    strings.ToLower(strings.TrimSpace(deref(w.Category))),
			Description: desc,
			SourcePages: pagesWithin(w.SourcePages, batchPages),
		}
		if w.Mandatory != nil {
			r.Mandatory = *w.Mandatory
		}
		out = append(out, r)
	}
	return out
}

func convertProject(w wireProject) types.ProjectInfo {
	return MergeProject(types.ProjectInfo{
		ProjectName: strings.TrimSpace(deref(w.ProjectName)),
		Client:      strings.TrimSpace(deref(w.Client)),
		Venue:       strings.TrimSpace(deref(w.Venue)),
		Location:    strings.TrimSpace(deref(w.Location)),
		BidDueDate:  strings.TrimSpace(deref(w.BidDueDate)),
		Flags:       w.Flags,
	}, types.ProjectInfo{})
}

// pagesWithin keeps the model's page citations that fall inside the batch,
// falling back to the whole batch when none do.
func pagesWithin(cited, batch []int) []int {
	allowed := make(map[int]bool, len(batch))
	for _, p := range batch {
		allowed[p] = true
	}
	var kept []int
	for _, p := range cited {
		if allowed[p] {
			kept = append(kept, p)
		}
	}
	if len(kept) == 0 {
		kept = batch
	}
	return types.UnionPages(kept, nil)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func positive(f *float64) *float64 {
	if f == nil || *f <= 0 {
		return nil
	}
	v := *f
	return &v
}

func clampConfidence(c *float64) float64 {
	if c == nil {
		return 0.5
	}
	return math.Max(0, math.Min(1, *c))
}
