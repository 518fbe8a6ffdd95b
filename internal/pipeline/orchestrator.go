// Package pipeline drives one document through reading, text extraction,
// triage, page selection, vision and batch extraction, reporting progress on
// an event channel.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jackzampolin/rfptriage/internal/extract"
	"github.com/jackzampolin/rfptriage/internal/pdf"
	"github.com/jackzampolin/rfptriage/internal/triage"
	"github.com/jackzampolin/rfptriage/internal/types"
	"github.com/jackzampolin/rfptriage/internal/vision"
)

// ErrCancelled is reported when the run context ends before completion.
var ErrCancelled = errors.New("pipeline cancelled")

const (
	DefaultHeartbeatInterval = 15 * time.Second
	DefaultTextWorkers       = 4
	DefaultPersistTimeout    = 30 * time.Second
	DefaultIndexTimeout      = 30 * time.Second
	DefaultTerminalGrace     = 5 * time.Second
	defaultEventBuffer       = 64
)

// Document is an opened source document.
type Document interface {
	Name() string
	PageCount(ctx context.Context) (int, error)
	ExtractText(ctx context.Context, from, to int) ([]pdf.PageText, error)
	PagesWithImages(ctx context.Context) (map[int]bool, error)
	RenderPage(ctx context.Context, page int) ([]byte, error)
	Close() error
}

// Opener opens the document at path.
type Opener func(path string) (Document, error)

// PDFOpener returns an Opener backed by pdf.Open.
func PDFOpener(cfg pdf.Config) Opener {
	return func(path string) (Document, error) {
		doc, err := pdf.Open(path, cfg)
		if err != nil {
			return nil, err
		}
		return doc, nil
	}
}

// RunStore persists finished runs and returns their ID.
type RunStore interface {
	Save(ctx context.Context, run *Run) (string, error)
}

// Indexer makes a run's pages searchable.
type Indexer interface {
	Index(ctx context.Context, runID string, pages []types.AnalyzedPage) error
}

// Deps are the collaborators a run uses. Vision, Extractor, Store and Index
// are optional.
type Deps struct {
	Open       Opener
	Classifier *triage.Classifier
	Vision     *vision.Dispatcher
	Extractor  *extract.Extractor
	Store      RunStore
	Index      Indexer
}

// Config tunes the orchestrator.
type Config struct {
	HeartbeatInterval time.Duration
	TextWorkers       int
	PersistTimeout    time.Duration
	IndexTimeout      time.Duration
	TerminalGrace     time.Duration
	Logger            *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.TextWorkers <= 0 {
		c.TextWorkers = DefaultTextWorkers
	}
	if c.PersistTimeout <= 0 {
		c.PersistTimeout = DefaultPersistTimeout
	}
	if c.IndexTimeout <= 0 {
		c.IndexTimeout = DefaultIndexTimeout
	}
	if c.TerminalGrace <= 0 {
		c.TerminalGrace = DefaultTerminalGrace
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Options are per-run inputs.
type Options struct {
	ProjectContext string
	// Classifier overrides Deps.Classifier, e.g. for per-request keyword banks.
	Classifier *triage.Classifier
}

// Orchestrator runs documents through the pipeline. Deps may be swapped
// with Update while runs are in flight; each run uses the set it started
// with.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger

	mu   sync.RWMutex
	deps Deps

	indexing sync.WaitGroup
}

// New creates an Orchestrator.
func New(deps Deps, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{cfg: cfg, logger: cfg.Logger, deps: deps}
}

// Update replaces the collaborators used by future runs.
func (o *Orchestrator) Update(deps Deps) {
	o.mu.Lock()
	o.deps = deps
	o.mu.Unlock()
}

// Deps returns the current collaborators.
func (o *Orchestrator) Deps() Deps {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.deps
}

// Wait blocks until background indexing from finished runs has returned.
func (o *Orchestrator) Wait() {
	o.indexing.Wait()
}

// Start launches a run for the document at path. The returned channel
// carries stage, progress and warning events followed by exactly one
// complete or error event, and is then closed. Cancelling ctx ends the run
// with an error event.
func (o *Orchestrator) Start(ctx context.Context, path string, opts Options) <-chan Event {
	deps := o.Deps()
	if opts.Classifier != nil {
		deps.Classifier = opts.Classifier
	}
	if deps.Classifier == nil {
		deps.Classifier = triage.NewClassifier(nil, triage.Thresholds{}, nil)
	}
	if deps.Open == nil {
		deps.Open = PDFOpener(pdf.Config{Logger: o.logger})
	}

	em := newEmitter(ctx, defaultEventBuffer, o.cfg.TerminalGrace)
	go func() {
		defer close(em.ch)
		o.run(ctx, deps, path, opts, em)
	}()
	return em.ch
}

// Run executes a run synchronously and returns its result. Events are
// passed to onEvent when it is non-nil.
func (o *Orchestrator) Run(ctx context.Context, path string, opts Options, onEvent func(Event)) (*Run, error) {
	var (
		result *Run
		runErr error
	)
	for ev := range o.Start(ctx, path, opts) {
		if onEvent != nil {
			onEvent(ev)
		}
		switch ev.Type {
		case EventComplete:
			result = ev.Result
		case EventError:
			runErr = errors.New(ev.Message)
		}
	}
	if result == nil && runErr == nil {
		runErr = fmt.Errorf("%w: no terminal event", ErrCancelled)
	}
	return result, runErr
}

func (o *Orchestrator) run(ctx context.Context, deps Deps, path string, opts Options, em *emitter) {
	start := time.Now()
	logger := o.logger.With("path", path)

	fail := func(stage Stage, err error) {
		if ctx.Err() != nil && !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		logger.Error("pipeline failed", "stage", stage, "error", err)
		em.terminal(Event{Type: EventError, Stage: StageError, Message: err.Error()})
	}
	cancelled := func() bool {
		return ctx.Err() != nil
	}

	// reading
	em.stage(StageReading, "opening document")
	doc, err := deps.Open(path)
	if err != nil {
		fail(StageReading, fmt.Errorf("open document: %w", err))
		return
	}
	defer func() {
		if err := doc.Close(); err != nil {
			logger.Warn("failed to close document", "error", err)
		}
	}()

	total, err := doc.PageCount(ctx)
	if err != nil {
		fail(StageReading, fmt.Errorf("page count: %w", err))
		return
	}
	if total <= 0 {
		fail(StageReading, fmt.Errorf("document %s has no pages", doc.Name()))
		return
	}

	run := &Run{
		Document:       doc.Name(),
		TotalPages:     total,
		ProjectContext: opts.ProjectContext,
		CreatedAt:      start.UTC(),
	}
	logger = logger.With("document", run.Document, "total_pages", total)

	// text_extraction
	em.stage(StageTextExtraction, fmt.Sprintf("extracting text from %d pages", total))
	texts := o.extractText(ctx, doc, total, func(page int, err error) {
		em.warning(StageTextExtraction, fmt.Sprintf("page %d: text extraction failed: %v", page, err))
	})
	if cancelled() {
		fail(StageTextExtraction, ctx.Err())
		return
	}
	images, err := doc.PagesWithImages(ctx)
	if err != nil {
		if cancelled() {
			fail(StageTextExtraction, ctx.Err())
			return
		}
		em.warning(StageTextExtraction, fmt.Sprintf("image inventory failed: %v", err))
		images = nil
	}

	// triage
	em.stage(StageTriage, fmt.Sprintf("classifying %d pages", total))
	pages := make([]triage.Page, total)
	for i := range pages {
		n := i + 1
		pages[i] = triage.Page{Number: n, Text: texts[n], HasEmbeddedImage: images[n]}
	}
	cls, err := deps.Classifier.ClassifyAll(ctx, pages)
	if err != nil {
		fail(StageTriage, fmt.Errorf("classify: %w", err))
		return
	}
	run.Classifications = cls
	counts := triage.CountCategories(cls)

	// selecting
	sel := triage.NewSelector(deps.Classifier.Thresholds()).Select(cls)
	em.stage(StageSelecting, fmt.Sprintf("selected %d of %d relevant pages (%d text, %d drawing)",
		len(sel.Selected), sel.RelevantCount, len(sel.TextPages), len(sel.DrawingPages)))
	if sel.Capped {
		logger.Info("selection capped", "relevant", sel.RelevantCount, "dropped", sel.DroppedCount)
	}
	run.Selection = SelectionStats{
		RelevantCount: sel.RelevantCount,
		Selected:      len(sel.Selected),
		Capped:        sel.Capped,
		DroppedCount:  sel.DroppedCount,
	}

	byPage := make(map[int]types.AnalyzedPage, len(sel.Selected))
	for _, c := range sel.TextPages {
		byPage[c.PageNumber] = types.AnalyzedPage{
			PageNumber:   c.PageNumber,
			Category:     c.Category,
			Relevance:    c.Relevance,
			Content:      texts[c.PageNumber],
			ClassifiedBy: types.ClassifiedByText,
		}
	}

	// vision
	var visionStats vision.Stats
	if len(sel.DrawingPages) > 0 {
		em.stage(StageVision, fmt.Sprintf("analyzing %d drawing pages", len(sel.DrawingPages)))
		queue := make([]vision.Page, len(sel.DrawingPages))
		for i, c := range sel.DrawingPages {
			queue[i] = vision.Page{
				Number:    c.PageNumber,
				Text:      texts[c.PageNumber],
				Category:  c.Category,
				Relevance: c.Relevance,
			}
		}

		var analyzed []types.AnalyzedPage
		if deps.Vision == nil {
			em.warning(StageVision, fmt.Sprintf("no vision provider configured, %d drawing pages use raw text", len(queue)))
			analyzed = rawTextPages(queue)
			visionStats = vision.Stats{Submitted: len(queue), Fallbacks: len(queue)}
		} else {
			analyzed, visionStats, err = deps.Vision.Analyze(ctx, doc, queue, func(w vision.Warning) {
				em.warning(StageVision, w.Message)
			})
			if err != nil {
				fail(StageVision, fmt.Errorf("vision: %w", err))
				return
			}
		}
		for _, p := range analyzed {
			byPage[p.PageNumber] = p
		}
	}
	if cancelled() {
		fail(StageVision, ctx.Err())
		return
	}

	run.Pages = sortPages(byPage)

	// extracting
	em.stage(StageExtracting, fmt.Sprintf("extracting specs from %d pages", len(run.Pages)))
	res, err := o.extract(ctx, deps.Extractor, run, em)
	if err != nil {
		fail(StageExtracting, err)
		return
	}
	run.Specs = res.Specs
	run.Requirements = res.Requirements
	run.Project = res.Project

	run.Stats = Stats{
		CategoryCounts:   counts,
		TextPages:        len(sel.TextPages),
		DrawingPages:     len(sel.DrawingPages),
		VisionPages:      visionStats.Analyzed,
		VisionFallbacks:  visionStats.Fallbacks,
		Batches:          res.Batches,
		BatchesFailed:    res.FailedBatches,
		TokensUsed:       res.TokensUsed,
		CostUSD:          visionStats.CostUSD + res.CostUSD,
		ProcessingTimeMS: time.Since(start).Milliseconds(),
	}

	if deps.Store != nil {
		run.Warnings = em.recordedWarnings()
		saveCtx, cancel := context.WithTimeout(ctx, o.cfg.PersistTimeout)
		id, err := deps.Store.Save(saveCtx, run)
		cancel()
		if err != nil {
			logger.Warn("failed to persist run", "error", err)
			em.warning(StageDone, fmt.Sprintf("run not saved: %v", err))
		} else {
			run.ID = id
		}
	}
	if deps.Index != nil && run.ID != "" && len(run.Pages) > 0 {
		o.index(deps.Index, run.ID, run.Pages)
	}

	run.Warnings = em.recordedWarnings()
	if run.Warnings == nil {
		run.Warnings = []string{}
	}

	logger.Info("pipeline complete",
		"run_id", run.ID,
		"selected", len(run.Pages),
		"specs", len(run.Specs),
		"requirements", len(run.Requirements),
		"warnings", len(run.Warnings),
		"duration", time.Since(start))

	em.stage(StageDone, fmt.Sprintf("found %d screens and %d requirements", len(run.Specs), len(run.Requirements)))
	em.terminal(Event{Type: EventComplete, Stage: StageDone, Result: run})
}

// extract runs batch extraction with the heartbeat active for its duration.
func (o *Orchestrator) extract(ctx context.Context, ex *extract.Extractor, run *Run, em *emitter) (*extract.Result, error) {
	empty := &extract.Result{Specs: []types.ExtractedSpec{}, Requirements: []types.Requirement{}}
	if len(run.Pages) == 0 {
		return empty, nil
	}
	if ex == nil {
		em.warning(StageExtracting, "no extraction model configured, skipping extraction")
		return empty, nil
	}

	total := ex.BatchCount(run.Pages)
	em.progress(StageExtracting, 0, total, fmt.Sprintf("0/%d batches", total))

	stop := em.startHeartbeat(ctx, o.cfg.HeartbeatInterval)
	defer stop()

	res, err := ex.Extract(ctx, run.Pages, extract.Options{
		Document:       run.Document,
		ProjectContext: run.ProjectContext,
		OnProgress: func(p extract.Progress) {
			if p.Err != nil {
				em.warning(StageExtracting, fmt.Sprintf("batch %d/%d (pages %v) skipped: %v",
					p.Batch, p.TotalBatches, p.Pages, p.Err))
			}
			em.progress(StageExtracting, p.Batch, p.TotalBatches, fmt.Sprintf("%d/%d batches", p.Batch, p.TotalBatches))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCancelled, err)
	}
	return res, nil
}

// index runs the indexer in the background with its own timeout.
func (o *Orchestrator) index(ix Indexer, runID string, pages []types.AnalyzedPage) {
	o.indexing.Add(1)
	go func() {
		defer o.indexing.Done()
		ctx, cancel := context.WithTimeout(context.Background(), o.cfg.IndexTimeout)
		defer cancel()
		if err := ix.Index(ctx, runID, pages); err != nil {
			o.logger.Warn("failed to index run", "run_id", runID, "error", err)
			return
		}
		o.logger.Debug("run indexed", "run_id", runID, "pages", len(pages))
	}()
}

func rawTextPages(queue []vision.Page) []types.AnalyzedPage {
	out := make([]types.AnalyzedPage, len(queue))
	for i, p := range queue {
		out[i] = types.AnalyzedPage{
			PageNumber:   p.Number,
			Category:     p.Category,
			Relevance:    p.Relevance,
			Content:      p.Text,
			ClassifiedBy: types.ClassifiedByText,
		}
	}
	return out
}

// sortPages orders the selected pages by page number and assigns Index.
func sortPages(byPage map[int]types.AnalyzedPage) []types.AnalyzedPage {
	out := make([]types.AnalyzedPage, 0, len(byPage))
	for _, p := range byPage {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	for i := range out {
		out[i].Index = i
	}
	return out
}
