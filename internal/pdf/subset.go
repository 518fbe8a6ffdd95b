package pdf

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// PageCount returns the number of pages in a PDF stream.
func PageCount(rs io.ReadSeeker) (int, error) {
	n, err := api.PageCount(rs, model.NewDefaultConfiguration())
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return n, nil
}

// ValidPages returns the distinct requested pages within 1..total, sorted.
func ValidPages(requested []int, total int) []int {
	seen := make(map[int]bool, len(requested))
	out := make([]int, 0, len(requested))
	for _, p := range requested {
		if p < 1 || p > total || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// WritePages writes a copy of the PDF in rs containing only pages to w.
// Pages must already be validated against the document's page count.
func WritePages(rs io.ReadSeeker, w io.Writer, pages []int) error {
	if len(pages) == 0 {
		return fmt.Errorf("no pages selected")
	}
	selection := make([]string, len(pages))
	for i, p := range pages {
		selection[i] = strconv.Itoa(p)
	}
	if err := api.Trim(rs, w, selection, model.NewDefaultConfiguration()); err != nil {
		return fmt.Errorf("failed to extract pages: %w", err)
	}
	return nil
}
