// Package types provides shared types used across multiple packages.
// This package has no dependencies on other rfptriage packages to avoid import cycles.
package types

import "fmt"

// Category is the relevance bucket a page falls into.
type Category string

const (
	CategoryLEDSpecs    Category = "led_specs"
	CategoryTechnical   Category = "technical"
	CategoryDrawing     Category = "drawing"
	CategoryLegal       Category = "legal"
	CategoryBoilerplate Category = "boilerplate"
	CategoryUnknown     Category = "unknown"
)

// Categories returns every category in report order.
func Categories() []Category {
	return []Category{
		CategoryLEDSpecs,
		CategoryTechnical,
		CategoryDrawing,
		CategoryLegal,
		CategoryBoilerplate,
		CategoryUnknown,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryLEDSpecs, CategoryTechnical, CategoryDrawing,
		CategoryLegal, CategoryBoilerplate, CategoryUnknown:
		return true
	default:
		return false
	}
}

// ParseCategory converts a string to a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", s)
	}
	return c, nil
}

// ClassifiedBy records which path produced an analyzed page's content.
type ClassifiedBy string

const (
	// ClassifiedByText means content is the page's extracted text layer.
	ClassifiedByText ClassifiedBy = "text-heuristic"
	// ClassifiedByVision means content came back from the vision OCR service.
	ClassifiedByVision ClassifiedBy = "vision-ocr"
)

// Valid reports whether c is a known source.
func (c ClassifiedBy) Valid() bool {
	switch c {
	case ClassifiedByText, ClassifiedByVision:
		return true
	default:
		return false
	}
}

// AnalyzedPage is an extraction-ready page after the text-vs-vision decision.
// VisionAnalyzed is true exactly when ClassifiedBy is ClassifiedByVision.
type AnalyzedPage struct {
	Index          int          `json:"index"`
	PageNumber     int          `json:"page_num"`
	Category       Category     `json:"category"`
	Relevance      int          `json:"relevance"`
	Content        string       `json:"content"`
	Tables         []string     `json:"tables,omitempty"`
	VisionAnalyzed bool         `json:"vision_analyzed"`
	ClassifiedBy   ClassifiedBy `json:"classified_by"`
}
