package types

import (
	"sort"
	"strings"
)

// Environment is where a display is installed.
type Environment string

const (
	EnvironmentIndoor  Environment = "indoor"
	EnvironmentOutdoor Environment = "outdoor"
	EnvironmentUnknown Environment = ""
)

// ParseEnvironment normalizes free text like "Outdoor" or "exterior".
func ParseEnvironment(s string) Environment {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "indoor", "interior":
		return EnvironmentIndoor
	case "outdoor", "exterior":
		return EnvironmentOutdoor
	default:
		return EnvironmentUnknown
	}
}

// ExtractedSpec is one display screen pulled out of the document.
// Dimensional fields are nil when the document did not state them.
type ExtractedSpec struct {
	Name                string      `json:"name"`
	Location            string      `json:"location,omitempty"`
	Size                string      `json:"size,omitempty"`
	WidthFt             *float64    `json:"width_ft,omitempty"`
	HeightFt            *float64    `json:"height_ft,omitempty"`
	PixelPitchMM        *float64    `json:"pixel_pitch_mm,omitempty"`
	Resolution          string      `json:"resolution,omitempty"`
	Environment         Environment `json:"environment,omitempty"`
	Quantity            *int        `json:"quantity,omitempty"`
	MountingType        string      `json:"mounting_type,omitempty"`
	BrightnessNits      *float64    `json:"brightness_nits,omitempty"`
	SpecialRequirements string      `json:"special_requirements,omitempty"`
	Confidence          float64     `json:"confidence"`
	Notes               string      `json:"notes,omitempty"`
	SourcePages         []int       `json:"source_pages"`
}

// Requirement is a non-screen obligation found in the document.
type Requirement struct {
	Category    string `json:"category"`
	Description string `json:"description"`
	Mandatory   bool   `json:"mandatory"`
	SourcePages []int  `json:"source_pages"`
}

// ProjectInfo is document-level metadata.
type ProjectInfo struct {
	ProjectName string   `json:"project_name,omitempty"`
	Client      string   `json:"client,omitempty"`
	Venue       string   `json:"venue,omitempty"`
	Location    string   `json:"location,omitempty"`
	BidDueDate  string   `json:"bid_due_date,omitempty"`
	Flags       []string `json:"flags,omitempty"`
}

// UnionPages merges two page sets into a sorted, duplicate-free slice.
func UnionPages(a, b []int) []int {
	seen := make(map[int]struct{}, len(a)+len(b))
	out := make([]int, 0, len(a)+len(b))
	for _, list := range [][]int{a, b} {
		for _, p := range list {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}
