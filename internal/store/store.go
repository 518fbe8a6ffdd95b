// Package store persists pipeline runs in DefraDB.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/rfptriage/internal/defra"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/schema"
	"github.com/jackzampolin/rfptriage/internal/types"
)

const DefaultListLimit = 50

// Config configures a Store.
type Config struct {
	Client *defra.Client
	// Sink batches page writes. When nil, pages are written with one
	// CreateMany call.
	Sink   *defra.Sink
	Logger *slog.Logger
}

// Store is a pipeline.RunStore backed by the RfpAnalysis and RfpPage
// collections.
type Store struct {
	client *defra.Client
	sink   *defra.Sink
	logger *slog.Logger
}

// New creates a Store.
func New(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{client: cfg.Client, sink: cfg.Sink, logger: cfg.Logger}
}

var _ pipeline.RunStore = (*Store)(nil)

// RunSummary is one row of the run listing.
type RunSummary struct {
	ID               string    `json:"run_id"`
	Document         string    `json:"document"`
	CreatedAt        time.Time `json:"created_at"`
	TotalPages       int       `json:"total_pages"`
	ProjectName      string    `json:"project_name,omitempty"`
	Client           string    `json:"client,omitempty"`
	BidDueDate       string    `json:"bid_due_date,omitempty"`
	SpecCount        int       `json:"spec_count"`
	RequirementCount int       `json:"requirement_count"`
	WarningCount     int       `json:"warning_count"`
	CostUSD          float64   `json:"cost_usd"`
}

var summaryFields = []string{
	"_docID", "document", "created_at", "total_pages", "project_name", "client",
	"bid_due_date", "spec_count", "requirement_count", "warning_count", "cost_usd",
}

// Save writes the run and its selected pages and returns the run's
// document ID.
func (s *Store) Save(ctx context.Context, run *pipeline.Run) (string, error) {
	doc, err := analysisDoc(run)
	if err != nil {
		return "", err
	}

	id, err := s.createAnalysis(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}

	if err := s.savePages(ctx, id, run.Pages); err != nil {
		if delErr := s.client.Delete(ctx, schema.RfpAnalysis, id); delErr != nil {
			s.logger.Warn("failed to remove partial run", "run_id", id, "error", delErr)
		}
		return "", fmt.Errorf("save pages: %w", err)
	}

	s.logger.Info("run saved", "run_id", id, "document", run.Document, "pages", len(run.Pages))
	return id, nil
}

func (s *Store) createAnalysis(ctx context.Context, doc map[string]any) (string, error) {
	if s.sink == nil {
		return s.client.Create(ctx, schema.RfpAnalysis, doc)
	}
	res, err := s.sink.SendSync(ctx, defra.WriteOp{
		Collection: schema.RfpAnalysis,
		Op:         defra.OpCreate,
		Document:   doc,
	})
	return res.DocID, err
}

func (s *Store) savePages(ctx context.Context, runID string, pages []types.AnalyzedPage) error {
	if len(pages) == 0 {
		return nil
	}
	docs := make([]map[string]any, len(pages))
	for i, p := range pages {
		d, err := pageDoc(runID, p)
		if err != nil {
			return err
		}
		docs[i] = d
	}

	if s.sink == nil {
		_, err := s.client.CreateMany(ctx, schema.RfpPage, docs, "page_num")
		return err
	}

	ops := make([]defra.WriteOp, len(docs))
	for i, d := range docs {
		ops[i] = defra.WriteOp{
			Collection: schema.RfpPage,
			Op:         defra.OpCreate,
			Document:   d,
			MatchField: "page_num",
		}
	}
	results, err := s.sink.SendMany(ctx, ops)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			return r.Err
		}
	}
	return nil
}

// List returns stored runs, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	docs, err := defra.NewQuery(schema.RfpAnalysis).
		Fields(summaryFields...).
		OrderBy("created_at", "DESC").
		Limit(limit).
		Offset(offset).
		Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]RunSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, summaryFromDoc(d))
	}
	return out, nil
}

// Get loads a run with its pages. It returns defra.ErrNotFound for unknown
// IDs.
func (s *Store) Get(ctx context.Context, id string) (*pipeline.Run, error) {
	if err := defra.ValidateID(id); err != nil {
		return nil, fmt.Errorf("%w: %v", defra.ErrNotFound, err)
	}

	docs, err := defra.NewQuery(schema.RfpAnalysis).
		Filter("_docID", id).
		Fields("_docID", "result").
		Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, defra.ErrNotFound)
	}

	var run pipeline.Run
	if err := json.Unmarshal([]byte(asString(docs[0]["result"])), &run); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", id, err)
	}
	run.ID = id

	pages, err := s.pages(ctx, id)
	if err != nil {
		return nil, err
	}
	run.Pages = pages
	return &run, nil
}

func (s *Store) pages(ctx context.Context, runID string) ([]types.AnalyzedPage, error) {
	docs, err := defra.NewQuery(schema.RfpPage).
		Filter("run_id", runID).
		Fields("page_num", "position", "category", "relevance", "content", "tables", "vision_analyzed", "classified_by").
		OrderBy("page_num", "ASC").
		Execute(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("get pages for run %s: %w", runID, err)
	}

	pages := make([]types.AnalyzedPage, 0, len(docs))
	for _, d := range docs {
		p := types.AnalyzedPage{
			Index:          asInt(d["position"]),
			PageNumber:     asInt(d["page_num"]),
			Category:       types.Category(asString(d["category"])),
			Relevance:      asInt(d["relevance"]),
			Content:        asString(d["content"]),
			VisionAnalyzed: d["vision_analyzed"] == true,
			ClassifiedBy:   types.ClassifiedBy(asString(d["classified_by"])),
		}
		if raw := asString(d["tables"]); raw != "" {
			if err := json.Unmarshal([]byte(raw), &p.Tables); err != nil {
				s.logger.Warn("bad tables on stored page", "run_id", runID, "page_num", p.PageNumber, "error", err)
			}
		}
		pages = append(pages, p)
	}
	return pages, nil
}

func analysisDoc(run *pipeline.Run) (map[string]any, error) {
	stored := *run
	stored.Pages = nil
	result, err := json.Marshal(&stored)
	if err != nil {
		return nil, fmt.Errorf("encode run: %w", err)
	}
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	return map[string]any{
		"document":           run.Document,
		"created_at":         created.Format(time.RFC3339),
		"total_pages":        run.TotalPages,
		"project_name":       run.Project.ProjectName,
		"client":             run.Project.Client,
		"bid_due_date":       run.Project.BidDueDate,
		"spec_count":         len(run.Specs),
		"requirement_count":  len(run.Requirements),
		"warning_count":      len(run.Warnings),
		"selected_pages":     len(run.Pages),
		"vision_pages":       run.Stats.VisionPages,
		"batches_failed":     run.Stats.BatchesFailed,
		"cost_usd":           run.Stats.CostUSD,
		"processing_time_ms": run.Stats.ProcessingTimeMS,
		"result":             string(result),
	}, nil
}

func pageDoc(runID string, p types.AnalyzedPage) (map[string]any, error) {
	tables := ""
	if len(p.Tables) > 0 {
		b, err := json.Marshal(p.Tables)
		if err != nil {
			return nil, fmt.Errorf("encode tables for page %d: %w", p.PageNumber, err)
		}
		tables = string(b)
	}
	return map[string]any{
		"run_id":          runID,
		"page_num":        p.PageNumber,
		"position":        p.Index,
		"category":        string(p.Category),
		"relevance":       p.Relevance,
		"content":         p.Content,
		"tables":          tables,
		"vision_analyzed": p.VisionAnalyzed,
		"classified_by":   string(p.ClassifiedBy),
	}, nil
}

func summaryFromDoc(d map[string]any) RunSummary {
	created, _ := time.Parse(time.RFC3339, asString(d["created_at"]))
	return RunSummary{
		ID:               asString(d["_docID"]),
		Document:         asString(d["document"]),
		CreatedAt:        created,
		TotalPages:       asInt(d["total_pages"]),
		ProjectName:      asString(d["project_name"]),
		Client:           asString(d["client"]),
		BidDueDate:       asString(d["bid_due_date"]),
		SpecCount:        asInt(d["spec_count"]),
		RequirementCount: asInt(d["requirement_count"]),
		WarningCount:     asInt(d["warning_count"]),
		CostUSD:          asFloat(d["cost_usd"]),
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	return int(asFloat(v))
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case json.Number:
		f, _ := n.Float64()
		return f
	default:
		return 0
	}
}
