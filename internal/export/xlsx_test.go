package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/types"
)

func ptr[T any](v T) *T { return &v }

func sampleRun() *pipeline.Run {
	return &pipeline.Run{
		ID:         "bae-1",
		Document:   "arena.pdf",
		TotalPages: 120,
		CreatedAt:  time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
		Project:    types.ProjectInfo{ProjectName: "Arena Renovation", Client: "City of Springfield", Flags: []string{"union labor"}},
		Specs: []types.ExtractedSpec{
			{Name: "Center Hung", WidthFt: ptr(24.0), HeightFt: ptr(13.5), PixelPitchMM: ptr(4.0), Environment: types.EnvironmentIndoor, Quantity: ptr(4), Confidence: 0.9, SourcePages: []int{12, 14}},
			{Name: "Ribbon Board", Confidence: 0.6, SourcePages: []int{15}},
		},
		Requirements: []types.Requirement{
			{Category: "warranty", Description: "5 year parts and labor", Mandatory: true, SourcePages: []int{40}},
		},
		Pages: []types.AnalyzedPage{
			{PageNumber: 12, Category: types.CategoryLEDSpecs, Relevance: 95, Content: "LED  display\nspecs", ClassifiedBy: types.ClassifiedByText},
		},
		Warnings: []string{"batch 3/3 skipped"},
	}
}

func TestXLSX(t *testing.T) {
	data, err := XLSX(sampleRun())
	if err != nil {
		t.Fatalf("XLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	want := []string{SheetProject, SheetSpecs, SheetRequirements, SheetPages}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sheet %d = %s, want %s", i, got[i], want[i])
		}
	}

	cells := []struct {
		sheet, cell, want string
	}{
		{SheetProject, "B1", "arena.pdf"},
		{SheetProject, "B3", "Arena Renovation"},
		{SheetProject, "B8", "union labor"},
		{SheetSpecs, "A1", "Name"},
		{SheetSpecs, "A2", "Center Hung"},
		{SheetSpecs, "D2", "24"},
		{SheetSpecs, "H2", "indoor"},
		{SheetSpecs, "I2", "4"},
		{SheetSpecs, "N2", "12, 14"},
		{SheetSpecs, "D3", ""},
		{SheetRequirements, "B2", "5 year parts and labor"},
		{SheetRequirements, "C2", "Yes"},
		{SheetPages, "A2", "12"},
		{SheetPages, "F2", "LED display specs"},
	}
	for _, c := range cells {
		v, err := f.GetCellValue(c.sheet, c.cell)
		if err != nil {
			t.Errorf("GetCellValue(%s!%s) error = %v", c.sheet, c.cell, err)
			continue
		}
		if v != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.cell, v, c.want)
		}
	}

	rows, _ := f.GetRows(SheetSpecs)
	if len(rows) != 3 {
		t.Errorf("spec rows = %d, want header + 2", len(rows))
	}
}

func TestXLSXEmptyRun(t *testing.T) {
	data, err := XLSX(&pipeline.Run{Document: "empty.pdf"})
	if err != nil {
		t.Fatalf("XLSX() error = %v", err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	rows, _ := f.GetRows(SheetRequirements)
	if len(rows) != 1 {
		t.Errorf("requirement rows = %d, want header only", len(rows))
	}
}

func TestSnippet(t *testing.T) {
	long := bytes.Repeat([]byte("x"), 300)
	if got := []rune(snippet(string(long))); len(got) != 160 {
		t.Errorf("snippet length = %d, want 160", len(got))
	}
	if got := snippet(" a\n\tb "); got != "a b" {
		t.Errorf("snippet() = %q", got)
	}
}
