package triage

import "sort"

// Selection is the ranked, capped set of pages worth extracting.
type Selection struct {
	// Selected is sorted by relevance descending, ties in page order.
	Selected     []Classification `json:"selected"`
	TextPages    []Classification `json:"text_pages"`
	DrawingPages []Classification `json:"drawing_pages"`

	RelevantCount int  `json:"relevant_count"`
	Capped        bool `json:"capped"`
	DroppedCount  int  `json:"dropped_count"`
}

// Selector filters classifications by relevance and caps the result.
type Selector struct {
	MinRelevance int
	MaxPages     int
}

// NewSelector returns a selector from thresholds.
func NewSelector(th Thresholds) Selector {
	th = th.withDefaults()
	return Selector{MinRelevance: th.RelevantMin, MaxPages: th.MaxSelected}
}

// Select keeps pages at or above MinRelevance, ranks them and applies the cap.
func (s Selector) Select(cls []Classification) Selection {
	relevant := make([]Classification, 0, len(cls))
	for _, c := range cls {
		if c.Relevance >= s.MinRelevance {
			relevant = append(relevant, c)
		}
	}
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].PageNumber < relevant[j].PageNumber
	})
	sort.SliceStable(relevant, func(i, j int) bool {
		return relevant[i].Relevance > relevant[j].Relevance
	})

	sel := Selection{RelevantCount: len(relevant)}
	if s.MaxPages > 0 && len(relevant) > s.MaxPages {
		sel.Capped = true
		sel.DroppedCount = len(relevant) - s.MaxPages
		relevant = relevant[:s.MaxPages]
	}
	sel.Selected = relevant

	for _, c := range relevant {
		if c.IsDrawing {
			sel.DrawingPages = append(sel.DrawingPages, c)
		} else {
			sel.TextPages = append(sel.TextPages, c)
		}
	}
	return sel
}
