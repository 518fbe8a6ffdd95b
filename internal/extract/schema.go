package extract

import (
	"encoding/json"

	"github.com/jackzampolin/rfptriage/internal/providers"
)

var nullableNumber = []string{"number", "null"}
var nullableString = []string{"string", "null"}

// BatchSchema is the JSON schema every batch response is validated against.
// Fields the model cannot find may be null or omitted; only the three top
// level collections are required.
var BatchSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"screens": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"name":                 map[string]any{"type": "string", "minLength": 1},
					"location":             map[string]any{"type": nullableString},
					"size":                 map[string]any{"type": nullableString},
					"width_ft":             map[string]any{"type": nullableNumber},
					"height_ft":            map[string]any{"type": nullableNumber},
					"pixel_pitch_mm":       map[string]any{"type": nullableNumber},
					"resolution":           map[string]any{"type": nullableString},
					"environment":          map[string]any{"type": nullableString},
					"quantity":             map[string]any{"type": nullableNumber},
					"mounting_type":        map[string]any{"type": nullableString},
					"brightness_nits":      map[string]any{"type": nullableNumber},
					"special_requirements": map[string]any{"type": nullableString},
					"confidence":           map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					"notes":                map[string]any{"type": nullableString},
					"source_pages": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "integer"},
					},
				},
				"required": []string{"name"},
			},
		},
		"requirements": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"category":    map[string]any{"type": nullableString},
					"description": map[string]any{"type": "string", "minLength": 1},
					"mandatory":   map[string]any{"type": []string{"boolean", "null"}},
					"source_pages": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "integer"},
					},
				},
				"required": []string{"description"},
			},
		},
		"project": map[string]any{
			"type": []string{"object", "null"},
			"properties": map[string]any{
				"project_name": map[string]any{"type": nullableString},
				"client":       map[string]any{"type": nullableString},
				"venue":        map[string]any{"type": nullableString},
				"location":     map[string]any{"type": nullableString},
				"bid_due_date": map[string]any{"type": nullableString},
				"flags": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
		},
	},
	"required": []string{"screens", "requirements"},
}

var compiledBatchSchema = func() *providers.Schema {
	raw, err := json.Marshal(BatchSchema)
	if err != nil {
		panic(err)
	}
	return providers.MustCompileSchema(raw)
}()

// batchResponse is the wire shape of one batch. Numbers arrive as floats
// because models are not consistent about integer formatting.
type batchResponse struct {
	Screens      []wireScreen      `json:"screens"`
	Requirements []wireRequirement `json:"requirements"`
	Project      *wireProject      `json:"project"`
}

type wireScreen struct {
	Name                string   `json:"name"`
	Location            *string  `json:"location"`
	Size                *string  `json:"size"`
	WidthFt             *float64 `json:"width_ft"`
	HeightFt            *float64 `json:"height_ft"`
	PixelPitchMM        *float64 `json:"pixel_pitch_mm"`
	Resolution          *string  `json:"resolution"`
	Environment         *string  `json:"environment"`
	Quantity            *float64 `json:"quantity"`
	MountingType        *string  `json:"mounting_type"`
	BrightnessNits      *float64 `json:"brightness_nits"`
	SpecialRequirements *string  `json:"special_requirements"`
	Confidence          *float64 `json:"confidence"`
	Notes               *string  `json:"notes"`
	SourcePages         []int    `json:"source_pages"`
}

type wireRequirement struct {
	Category    *string `json:"category"`
	Description string  `json:"description"`
	Mandatory   *bool   `json:"mandatory"`
	SourcePages []int   `json:"source_pages"`
}

type wireProject struct {
	ProjectName *string  `json:"project_name"`
	Client      *string  `json:"client"`
	Venue       *string  `json:"venue"`
	Location    *string  `json:"location"`
	BidDueDate  *string  `json:"bid_due_date"`
	Flags       []string `json:"flags"`
}
