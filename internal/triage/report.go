package triage

import (
	"sort"
	"strings"
	"time"

	"github.com/jackzampolin/rfptriage/internal/types"
)

// SnippetChars is the length of the text preview in a report.
const SnippetChars = 200

// Recommendation is the suggested action for a page.
type Recommendation string

const (
	RecommendKeep    Recommendation = "keep"
	RecommendMaybe   Recommendation = "maybe"
	RecommendDiscard Recommendation = "discard"
	RecommendReview  Recommendation = "review"
)

// PageReport is one row of a triage report.
type PageReport struct {
	Classification
	Snippet     string         `json:"snippet"`
	Recommended Recommendation `json:"recommended"`
}

// Report is the classification-only view of a document.
type Report struct {
	Filename         string                 `json:"filename"`
	TotalPages       int                    `json:"total_pages"`
	TextPages        int                    `json:"text_pages"`
	DrawingPages     int                    `json:"drawing_pages"`
	RelevantPages    int                    `json:"relevant_pages"`
	CategoryCounts   map[types.Category]int `json:"category_counts"`
	ProcessingTimeMS int64                  `json:"processing_time_ms"`
	Pages            []PageReport           `json:"pages"`
}

// BuildReport assembles a report from pages and their classifications.
// cls may be in any order; the report lists pages in page order.
func BuildReport(filename string, pages []Page, cls []Classification, relevantMin int, elapsed time.Duration) *Report {
	text := make(map[int]string, len(pages))
	for _, p := range pages {
		text[p.Number] = p.Text
	}

	r := &Report{
		Filename:         filename,
		TotalPages:       len(pages),
		CategoryCounts:   CountCategories(cls),
		ProcessingTimeMS: elapsed.Milliseconds(),
		Pages:            make([]PageReport, 0, len(cls)),
	}
	for _, c := range cls {
		if c.IsDrawing {
			r.DrawingPages++
		} else {
			r.TextPages++
		}
		if c.Relevance >= relevantMin {
			r.RelevantPages++
		}
		r.Pages = append(r.Pages, PageReport{
			Classification: c,
			Snippet:        Snippet(text[c.PageNumber], SnippetChars),
			Recommended:    Recommend(c, relevantMin),
		})
	}
	sortPageReports(r.Pages)
	return r
}

// Recommend maps a classification to a suggested action.
func Recommend(c Classification, relevantMin int) Recommendation {
	switch {
	case c.IsDrawing:
		return RecommendReview
	case c.Relevance >= relevantMin:
		return RecommendKeep
	case len(c.Matched.Strong) > 0 || len(c.Matched.Weak) > 0:
		return RecommendMaybe
	default:
		return RecommendDiscard
	}
}

// CountCategories tallies classifications per category. Every category is
// present in the result, with zero where nothing matched.
func CountCategories(cls []Classification) map[types.Category]int {
	counts := make(map[types.Category]int, len(types.Categories()))
	for _, c := range types.Categories() {
		counts[c] = 0
	}
	for _, c := range cls {
		counts[c.Category]++
	}
	return counts
}

// Snippet returns the first n characters of trimmed text with newlines
// flattened to spaces.
func Snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > n {
		runes = runes[:n]
	}
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(string(runes))
}

func sortPageReports(pages []PageReport) {
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNumber < pages[j].PageNumber })
}
