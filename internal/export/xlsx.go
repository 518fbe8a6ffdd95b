// Package export renders a stored run as an XLSX workbook for estimators.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/types"
)

// Sheet names, in workbook order.
const (
	SheetProject      = "Project"
	SheetSpecs        = "Displays"
	SheetRequirements = "Requirements"
	SheetPages        = "Pages"
)

// ContentType is the MIME type of the workbook.
const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var specHeaders = []string{
	"Name", "Location", "Size", "Width (ft)", "Height (ft)", "Pixel Pitch (mm)",
	"Resolution", "Environment", "Quantity", "Mounting", "Brightness (nits)",
	"Special Requirements", "Confidence", "Source Pages", "Notes",
}

var requirementHeaders = []string{"Category", "Description", "Mandatory", "Source Pages"}

var pageHeaders = []string{"Page", "Category", "Relevance", "Classified By", "Vision", "Snippet"}

// XLSX builds the workbook for run.
func XLSX(run *pipeline.Run) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	// NewFile starts with Sheet1; rename it so the project sheet opens first.
	if err := f.SetSheetName("Sheet1", SheetProject); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetSpecs, SheetRequirements, SheetPages} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("new sheet %s: %w", name, err)
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}

	w := &writer{f: f, bold: bold}
	w.project(run)
	w.specs(run.Specs)
	w.requirements(run.Requirements)
	w.pages(run.Pages)
	if w.err != nil {
		return nil, w.err
	}

	f.SetActiveSheet(0)
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// writer keeps the first error so the sheet builders read straight through.
type writer struct {
	f    *excelize.File
	bold int
	err  error
}

func (w *writer) row(sheet string, row int, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
}

func (w *writer) header(sheet string, headers []string) {
	vals := make([]any, len(headers))
	for i, h := range headers {
		vals[i] = h
	}
	w.row(sheet, 1, vals)
	if w.err != nil {
		return
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	if err := w.f.SetCellStyle(sheet, "A1", last, w.bold); err != nil {
		w.err = err
		return
	}
	if err := w.f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		w.err = err
	}
}

func (w *writer) widths(sheet string, widths map[string]float64) {
	for col, width := range widths {
		if w.err != nil {
			return
		}
		w.err = w.f.SetColWidth(sheet, col, col, width)
	}
}

func (w *writer) project(run *pipeline.Run) {
	p := run.Project
	rows := [][]any{
		{"Document", run.Document},
		{"Run ID", run.ID},
		{"Project", p.ProjectName},
		{"Client", p.Client},
		{"Venue", p.Venue},
		{"Location", p.Location},
		{"Bid Due", p.BidDueDate},
		{"Flags", strings.Join(p.Flags, "; ")},
		{"Total Pages", run.TotalPages},
		{"Selected Pages", len(run.Pages)},
		{"Vision Pages", run.Stats.VisionPages},
		{"Cost (USD)", run.Stats.CostUSD},
		{"Warnings", strings.Join(run.Warnings, "\n")},
	}
	if !run.CreatedAt.IsZero() {
		rows = append(rows, []any{"Analyzed", run.CreatedAt.UTC().Format("2006-01-02 15:04 MST")})
	}
	for i, r := range rows {
		w.row(SheetProject, i+1, r)
	}
	if w.err == nil {
		last := strconv.Itoa(len(rows))
		w.err = w.f.SetCellStyle(SheetProject, "A1", "A"+last, w.bold)
	}
	w.widths(SheetProject, map[string]float64{"A": 16, "B": 80})
}

func (w *writer) specs(specs []types.ExtractedSpec) {
	w.header(SheetSpecs, specHeaders)
	for i, s := range specs {
		w.row(SheetSpecs, i+2, []any{
			s.Name, s.Location, s.Size,
			optFloat(s.WidthFt), optFloat(s.HeightFt), optFloat(s.PixelPitchMM),
			s.Resolution, string(s.Environment), optInt(s.Quantity), s.MountingType,
			optFloat(s.BrightnessNits), s.SpecialRequirements, s.Confidence,
			joinPages(s.SourcePages), s.Notes,
		})
	}
	w.widths(SheetSpecs, map[string]float64{"A": 28, "B": 24, "L": 40, "O": 40})
}

func (w *writer) requirements(reqs []types.Requirement) {
	w.header(SheetRequirements, requirementHeaders)
	for i, r := range reqs {
		mandatory := "No"
		if r.Mandatory {
			mandatory = "Yes"
		}
		w.row(SheetRequirements, i+2, []any{r.Category, r.Description, mandatory, joinPages(r.SourcePages)})
	}
	w.widths(SheetRequirements, map[string]float64{"A": 18, "B": 80})
}

func (w *writer) pages(pages []types.AnalyzedPage) {
	w.header(SheetPages, pageHeaders)
	for i, p := range pages {
		w.row(SheetPages, i+2, []any{
			p.PageNumber, string(p.Category), p.Relevance, string(p.ClassifiedBy),
			p.VisionAnalyzed, snippet(p.Content),
		})
	}
	w.widths(SheetPages, map[string]float64{"B": 16, "D": 16, "F": 80})
}

// optFloat leaves the cell blank when the document did not state a value.
func optFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ", ")
}

func snippet(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 160 {
		return string(r[:159]) + "…"
	}
	return s
}
