package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/jackzampolin/rfptriage/internal/types"
)

const (
	DefaultMaxBatchChars = 60000
	DefaultMaxBatchPages = 8
	DefaultMaxPageChars  = 20000
)

// Limits bound the size of each batch sent to the model.
type Limits struct {
	MaxBatchChars int `mapstructure:"max_batch_chars" yaml:"max_batch_chars" json:"max_batch_chars"`
	MaxBatchPages int `mapstructure:"max_batch_pages" yaml:"max_batch_pages" json:"max_batch_pages"`
	MaxPageChars  int `mapstructure:"max_page_chars" yaml:"max_page_chars" json:"max_page_chars"`
}

// DefaultLimits returns the standard batch limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBatchChars: DefaultMaxBatchChars,
		MaxBatchPages: DefaultMaxBatchPages,
		MaxPageChars:  DefaultMaxPageChars,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxBatchChars <= 0 {
		l.MaxBatchChars = d.MaxBatchChars
	}
	if l.MaxBatchPages <= 0 {
		l.MaxBatchPages = d.MaxBatchPages
	}
	if l.MaxPageChars <= 0 {
		l.MaxPageChars = d.MaxPageChars
	}
	if l.MaxPageChars > l.MaxBatchChars {
		l.MaxPageChars = l.MaxBatchChars
	}
	return l
}

// Batch is a run of consecutive pages sent in one model call.
type Batch struct {
	Index int // 1-based
	Pages []promptPage
	Chars int
}

// PageNumbers returns the page numbers in the batch.
func (b Batch) PageNumbers() []int {
	out := make([]int, len(b.Pages))
	for i, p := range b.Pages {
		out[i] = p.Number
	}
	return out
}

// MakeBatches groups pages, in the given order, into batches that respect
// limits. Each page's content plus tables is truncated to MaxPageChars first,
// so a single page never exceeds a batch on its own. Pages with no content
// and no tables are skipped.
func MakeBatches(pages []types.AnalyzedPage, limits Limits) []Batch {
	limits = limits.withDefaults()

	var (
		batches []Batch
		cur     Batch
	)
	flush := func() {
		if len(cur.Pages) == 0 {
			return
		}
		cur.Index = len(batches) + 1
		batches = append(batches, cur)
		cur = Batch{}
	}

	for _, ap := range pages {
		pp, size := preparePage(ap, limits.MaxPageChars)
		if size == 0 {
			continue
		}
		if len(cur.Pages) > 0 && (cur.Chars+size > limits.MaxBatchChars || len(cur.Pages) >= limits.MaxBatchPages) {
			flush()
		}
		cur.Pages = append(cur.Pages, pp)
		cur.Chars += size
	}
	flush()
	return batches
}

// preparePage trims a page to budget characters, spending the budget on
// content first and then on whole tables.
func preparePage(ap types.AnalyzedPage, budget int) (promptPage, int) {
	content := strings.TrimSpace(ap.Content)
	content = truncateRunes(content, budget)
	used := utf8.RuneCountInString(content)

	var tables []string
	for _, t := range ap.Tables {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		n := utf8.RuneCountInString(t)
		if used+n > budget {
			break
		}
		// OCR markdown often already inlines its tables.
		if strings.Contains(content, t) {
			continue
		}
		tables = append(tables, t)
		used += n
	}
	return promptPage{Number: ap.PageNumber, Content: content, Tables: tables}, used
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
