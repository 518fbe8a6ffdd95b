package triage

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/rfptriage/internal/types"
)

// Thresholds holds every number in the decision table.
type Thresholds struct {
	SparseTextChars int `mapstructure:"sparse_text_chars" yaml:"sparse_text_chars" json:"sparse_text_chars"`

	DrawingStrongRelevance int `mapstructure:"drawing_strong_relevance" yaml:"drawing_strong_relevance" json:"drawing_strong_relevance"`
	StrongManyMin          int `mapstructure:"strong_many_min" yaml:"strong_many_min" json:"strong_many_min"`
	StrongManyBase         int `mapstructure:"strong_many_base" yaml:"strong_many_base" json:"strong_many_base"`
	StrongManyPerTerm      int `mapstructure:"strong_many_per_term" yaml:"strong_many_per_term" json:"strong_many_per_term"`
	StrongPairMin          int `mapstructure:"strong_pair_min" yaml:"strong_pair_min" json:"strong_pair_min"`
	StrongPairRelevance    int `mapstructure:"strong_pair_relevance" yaml:"strong_pair_relevance" json:"strong_pair_relevance"`
	StrongWeakRelevance    int `mapstructure:"strong_weak_relevance" yaml:"strong_weak_relevance" json:"strong_weak_relevance"`
	TechnicalRelevance     int `mapstructure:"technical_relevance" yaml:"technical_relevance" json:"technical_relevance"`
	LegalNoiseMin          int `mapstructure:"legal_noise_min" yaml:"legal_noise_min" json:"legal_noise_min"`
	BoilerplateChars       int `mapstructure:"boilerplate_chars" yaml:"boilerplate_chars" json:"boilerplate_chars"`
	FloorRelevance         int `mapstructure:"floor_relevance" yaml:"floor_relevance" json:"floor_relevance"`

	RelevantMin int `mapstructure:"relevant_min" yaml:"relevant_min" json:"relevant_min"`
	MaxSelected int `mapstructure:"max_selected" yaml:"max_selected" json:"max_selected"`
}

// DefaultThresholds returns the validated starting values.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SparseTextChars:        DefaultSparseTextChars,
		DrawingStrongRelevance: 70,
		StrongManyMin:          3,
		StrongManyBase:         85,
		StrongManyPerTerm:      3,
		StrongPairMin:          2,
		StrongPairRelevance:    75,
		StrongWeakRelevance:    65,
		TechnicalRelevance:     55,
		LegalNoiseMin:          2,
		BoilerplateChars:       100,
		FloorRelevance:         5,
		RelevantMin:            50,
		MaxSelected:            100,
	}
}

// withDefaults fills unset fields from DefaultThresholds. Counts and sizes
// are unset when zero or negative. Relevance scores default as a group: they
// are unset only when every score is zero, so a complete table may use 0
// for any single score.
func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	fill := func(v *int, def int) {
		if *v <= 0 {
			*v = def
		}
	}
	fill(&t.SparseTextChars, d.SparseTextChars)
	fill(&t.StrongManyMin, d.StrongManyMin)
	fill(&t.StrongPairMin, d.StrongPairMin)
	fill(&t.LegalNoiseMin, d.LegalNoiseMin)
	fill(&t.BoilerplateChars, d.BoilerplateChars)
	fill(&t.RelevantMin, d.RelevantMin)
	fill(&t.MaxSelected, d.MaxSelected)

	if t.scores() == [7]int{} {
		t.DrawingStrongRelevance = d.DrawingStrongRelevance
		t.StrongManyBase = d.StrongManyBase
		t.StrongManyPerTerm = d.StrongManyPerTerm
		t.StrongPairRelevance = d.StrongPairRelevance
		t.StrongWeakRelevance = d.StrongWeakRelevance
		t.TechnicalRelevance = d.TechnicalRelevance
		t.FloorRelevance = d.FloorRelevance
	}
	return t
}

func (t Thresholds) scores() [7]int {
	return [7]int{
		t.DrawingStrongRelevance, t.StrongManyBase, t.StrongManyPerTerm,
		t.StrongPairRelevance, t.StrongWeakRelevance, t.TechnicalRelevance,
		t.FloorRelevance,
	}
}

// Classification is the triage verdict for one page.
type Classification struct {
	PageNumber    int            `json:"page_num"`
	Category      types.Category `json:"category"`
	Relevance     int            `json:"relevance"`
	IsDrawing     bool           `json:"is_drawing"`
	DrawingReason DrawingReason  `json:"drawing_reason,omitempty"`
	TextLength    int            `json:"text_length"`
	Matched       Matches        `json:"matched"`
}

// Classifier applies the drawing detector and the decision table.
type Classifier struct {
	banks      *Banks
	detector   *Detector
	thresholds Thresholds
}

// NewClassifier builds a classifier. A nil banks value uses DefaultBanks and
// zero thresholds take their defaults.
func NewClassifier(banks *Banks, th Thresholds, forcePhrases []string) *Classifier {
	if banks == nil {
		banks = DefaultBanks()
	}
	th = th.withDefaults()
	return &Classifier{
		banks:      banks,
		detector:   NewDetector(th.SparseTextChars, forcePhrases),
		thresholds: th,
	}
}

// Banks returns the classifier's keyword banks.
func (c *Classifier) Banks() *Banks { return c.banks }

// Thresholds returns the effective thresholds.
func (c *Classifier) Thresholds() Thresholds { return c.thresholds }

// Classify scores a single page.
func (c *Classifier) Classify(p Page) Classification {
	reason := c.detector.Detect(p)
	matched := c.banks.Match(Normalize(p.Text))
	length := p.TextLength()

	cat, rel := c.decide(reason != ReasonNone, matched, length)
	return Classification{
		PageNumber:    p.Number,
		Category:      cat,
		Relevance:     rel,
		IsDrawing:     reason != ReasonNone,
		DrawingReason: reason,
		TextLength:    length,
		Matched:       matched,
	}
}

// decide is the ordered decision table; the first matching row wins.
func (c *Classifier) decide(isDrawing bool, m Matches, textLength int) (types.Category, int) {
	th := c.thresholds
	strong, weak, support, noise := len(m.Strong), len(m.Weak), len(m.Support), len(m.Noise)

	switch {
	case isDrawing:
		if strong >= 1 {
			return types.CategoryDrawing, clamp(th.DrawingStrongRelevance)
		}
		return types.CategoryDrawing, clamp(th.FloorRelevance)
	case strong >= th.StrongManyMin:
		return types.CategoryLEDSpecs, clamp(th.StrongManyBase + th.StrongManyPerTerm*strong)
	case strong >= th.StrongPairMin:
		return types.CategoryLEDSpecs, clamp(th.StrongPairRelevance)
	case strong >= 1 && weak >= 1:
		return types.CategoryLEDSpecs, clamp(th.StrongWeakRelevance)
	case strong >= 1 && support >= 1 && noise == 0:
		return types.CategoryTechnical, clamp(th.TechnicalRelevance)
	case noise >= th.LegalNoiseMin:
		return types.CategoryLegal, clamp(th.FloorRelevance)
	case textLength < th.BoilerplateChars:
		return types.CategoryBoilerplate, clamp(th.FloorRelevance)
	default:
		return types.CategoryUnknown, clamp(th.FloorRelevance)
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// ClassifyAll scores pages in parallel. The result is indexed like pages.
func (c *Classifier) ClassifyAll(ctx context.Context, pages []Page) ([]Classification, error) {
	out := make([]Classification, len(pages))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range pages {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = c.Classify(pages[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
