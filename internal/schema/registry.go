// Package schema holds the DefraDB collection definitions and applies them
// to a node.
package schema

import (
	"embed"
	"fmt"
	"sort"
)

//go:embed schemas/*.graphql
var schemaFS embed.FS

// Collection names.
const (
	RfpAnalysis = "RfpAnalysis"
	RfpPage     = "RfpPage"
)

// Schema is one DefraDB collection definition.
type Schema struct {
	Name  string
	File  string
	SDL   string
	Order int // lower applies first
}

var registry = []Schema{
	{Name: RfpAnalysis, File: "rfp_analysis.graphql", Order: 1},
	{Name: RfpPage, File: "rfp_page.graphql", Order: 2},
}

// All returns every schema with its SDL loaded, in apply order.
func All() ([]Schema, error) {
	out := make([]Schema, 0, len(registry))
	for _, s := range registry {
		loaded, err := load(s)
		if err != nil {
			return nil, err
		}
		out = append(out, loaded)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// Get returns one schema by collection name.
func Get(name string) (*Schema, error) {
	for _, s := range registry {
		if s.Name == name {
			loaded, err := load(s)
			if err != nil {
				return nil, err
			}
			return &loaded, nil
		}
	}
	return nil, fmt.Errorf("schema not found: %s", name)
}

func load(s Schema) (Schema, error) {
	content, err := schemaFS.ReadFile("schemas/" + s.File)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to read schema %s: %w", s.Name, err)
	}
	s.SDL = string(content)
	return s, nil
}
