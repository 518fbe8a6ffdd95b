// Package vision sends drawing pages through an OCR provider and falls back
// to the page's raw text when the provider cannot produce content.
package vision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/types"
)

const (
	DefaultWorkers     = 1
	DefaultCallTimeout = 120 * time.Second
)

// Renderer rasterizes a single page to PNG.
type Renderer interface {
	RenderPage(ctx context.Context, page int) ([]byte, error)
}

// Page is a drawing page queued for vision analysis.
type Page struct {
	Number    int
	Text      string // raw text used when the provider fails
	Category  types.Category
	Relevance int
}

// Warning reports a page that fell back to raw text.
type Warning struct {
	Page    int
	Message string
}

// Stats summarizes one dispatch.
type Stats struct {
	Submitted int     `json:"submitted"`
	Analyzed  int     `json:"analyzed"`
	Fallbacks int     `json:"fallbacks"`
	CostUSD   float64 `json:"cost_usd"`
}

// Config configures a Dispatcher.
type Config struct {
	Workers     int           // concurrent pages, default 1
	CallTimeout time.Duration // per page, covers render and OCR
	RateLimit   float64       // requests per second, provider value if zero
	Logger      *slog.Logger
}

// Dispatcher runs drawing pages through an OCR provider.
type Dispatcher struct {
	ocr     providers.OCRProvider
	workers int
	timeout time.Duration
	limiter *providers.RateLimiter
	tables  *TableConverter
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher for ocr.
func NewDispatcher(ocr providers.OCRProvider, cfg Config) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.RateLimit <= 0 && ocr != nil {
		cfg.RateLimit = ocr.RequestsPerSecond()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		ocr:     ocr,
		workers: cfg.Workers,
		timeout: cfg.CallTimeout,
		limiter: providers.NewRateLimiter(cfg.RateLimit),
		tables:  NewTableConverter(),
		logger:  cfg.Logger,
	}
}

func (d *Dispatcher) providerName() string {
	if d.ocr == nil {
		return "none"
	}
	return d.ocr.Name()
}

// Limiter exposes the pacing limiter for status reporting.
func (d *Dispatcher) Limiter() *providers.RateLimiter {
	return d.limiter
}

// Analyze returns exactly one AnalyzedPage per input page, sorted by page
// number. Provider failures produce a warning and a raw-text page; only
// cancellation of ctx returns an error. onWarning may be nil and may be
// called from several goroutines.
func (d *Dispatcher) Analyze(ctx context.Context, doc Renderer, pages []Page, onWarning func(Warning)) ([]types.AnalyzedPage, Stats, error) {
	stats := Stats{Submitted: len(pages)}
	if len(pages) == 0 {
		return nil, stats, nil
	}

	var (
		mu      sync.Mutex
		results = make(map[int]types.AnalyzedPage, len(pages))
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for _, p := range pages {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			ap, cost, err := d.analyzePage(gctx, doc, p)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				msg := fmt.Sprintf("vision failed for page %d, using raw text: %v", p.Number, err)
				d.logger.Warn("vision fallback", "page", p.Number, "provider", d.providerName(), "error", err)
				if onWarning != nil {
					onWarning(Warning{Page: p.Number, Message: msg})
				}
				ap = fallbackPage(p)
			}

			mu.Lock()
			results[p.Number] = ap
			if ap.VisionAnalyzed {
				stats.Analyzed++
			} else {
				stats.Fallbacks++
			}
			stats.CostUSD += cost
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, stats, err
	}

	out := make([]types.AnalyzedPage, 0, len(results))
	for _, ap := range results {
		out = append(out, ap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, stats, nil
}

// analyzePage renders and OCRs one page under its own timeout.
func (d *Dispatcher) analyzePage(ctx context.Context, doc Renderer, p Page) (types.AnalyzedPage, float64, error) {
	if d.ocr == nil {
		return types.AnalyzedPage{}, 0, errors.New("no OCR provider configured")
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	png, err := doc.RenderPage(ctx, p.Number)
	if err != nil {
		return types.AnalyzedPage{}, 0, fmt.Errorf("render: %w", err)
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return types.AnalyzedPage{}, 0, err
	}

	res, err := d.ocr.ProcessImage(ctx, png, p.Number)
	var cost float64
	if res != nil {
		cost = res.CostUSD
	}
	if err != nil {
		var rl *providers.RateLimitError
		if errors.As(err, &rl) {
			d.limiter.Record429()
		}
		return types.AnalyzedPage{}, cost, fmt.Errorf("ocr: %w", err)
	}
	if res == nil || !res.Success || strings.TrimSpace(res.Text) == "" {
		return types.AnalyzedPage{}, cost, fmt.Errorf("ocr: %w", providers.ErrEmptyResponse)
	}

	tables, dropped := d.tables.Tables(res)
	if dropped > 0 {
		d.logger.Debug("dropped unconvertible tables", "page", p.Number, "count", dropped)
	}

	d.logger.Debug("vision page analyzed",
		"page", p.Number,
		"provider", d.providerName(),
		"chars", len(res.Text),
		"tables", len(tables),
		"duration", time.Since(start))

	return types.AnalyzedPage{
		PageNumber:     p.Number,
		Category:       p.Category,
		Relevance:      p.Relevance,
		Content:        res.Text,
		Tables:         tables,
		VisionAnalyzed: true,
		ClassifiedBy:   types.ClassifiedByVision,
	}, cost, nil
}

func fallbackPage(p Page) types.AnalyzedPage {
	return types.AnalyzedPage{
		PageNumber:     p.Number,
		Category:       p.Category,
		Relevance:      p.Relevance,
		Content:        p.Text,
		VisionAnalyzed: false,
		ClassifiedBy:   types.ClassifiedByText,
	}
}
