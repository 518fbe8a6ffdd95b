package pipeline

import (
	"time"

	"github.com/jackzampolin/rfptriage/internal/triage"
	"github.com/jackzampolin/rfptriage/internal/types"
)

// SelectionStats summarizes the page selector's decision.
type SelectionStats struct {
	RelevantCount int  `json:"relevant_count"`
	Selected      int  `json:"selected"`
	Capped        bool `json:"capped"`
	DroppedCount  int  `json:"dropped_count"`
}

// Stats are the run's summary numbers.
type Stats struct {
	CategoryCounts   map[types.Category]int `json:"category_counts"`
	TextPages        int                    `json:"text_pages"`
	DrawingPages     int                    `json:"drawing_pages"`
	VisionPages      int                    `json:"vision_pages"`
	VisionFallbacks  int                    `json:"vision_fallbacks"`
	Batches          int                    `json:"batches"`
	BatchesFailed    int                    `json:"batches_failed"`
	TokensUsed       int                    `json:"tokens_used"`
	CostUSD          float64                `json:"cost_usd"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
}

// Run is the full result of one pipeline run. Only the orchestrator writes
// to it; once the complete event is sent it is read-only.
type Run struct {
	ID             string    `json:"run_id,omitempty"`
	Document       string    `json:"document"`
	TotalPages     int       `json:"total_pages"`
	ProjectContext string    `json:"project_context,omitempty"`
	CreatedAt      time.Time `json:"created_at"`

	Classifications []triage.Classification `json:"classifications"`
	Pages           []types.AnalyzedPage    `json:"pages"`

	Specs        []types.ExtractedSpec `json:"specs"`
	Requirements []types.Requirement   `json:"requirements"`
	Project      types.ProjectInfo     `json:"project"`

	Selection SelectionStats `json:"selection"`
	Stats     Stats          `json:"stats"`
	Warnings  []string       `json:"warnings"`
}

// Summary returns a copy of the run without per-page data, suitable for
// listings.
func (r *Run) Summary() *Run {
	s := *r
	s.Classifications = nil
	s.Pages = nil
	return &s
}
