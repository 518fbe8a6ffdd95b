package endpoints

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/rfptriage/internal/export"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/types"
)

// storeRun makes the fake DefraDB answer queries with run.
func storeRun(t *testing.T, h *harness, run *pipeline.Run) {
	t.Helper()
	pages := run.Pages
	run.Pages = nil
	result, err := json.Marshal(run)
	if err != nil {
		t.Fatal(err)
	}
	analysis, _ := json.Marshal(map[string]any{
		"data": map[string]any{"RfpAnalysis": []any{
			map[string]any{"_docID": run.ID, "result": string(result)},
		}},
	})
	docs := make([]any, len(pages))
	for i, p := range pages {
		docs[i] = map[string]any{
			"page_num": p.PageNumber, "position": i, "category": string(p.Category),
			"relevance": p.Relevance, "content": p.Content, "tables": "",
			"vision_analyzed": p.VisionAnalyzed, "classified_by": string(p.ClassifiedBy),
		}
	}
	pageResp, _ := json.Marshal(map[string]any{"data": map[string]any{"RfpPage": docs}})
	h.defra.Respond("RfpAnalysis", string(analysis))
	h.defra.Respond("RfpPage", string(pageResp))
}

func sampleRun() *pipeline.Run {
	qty := 2
	return &pipeline.Run{
		ID:         "bae-run",
		Document:   "arena.pdf",
		TotalPages: 40,
		Project:    types.ProjectInfo{ProjectName: "Arena Renovation"},
		Specs:      []types.ExtractedSpec{{Name: "Center Hung", Quantity: &qty, Confidence: 0.8, SourcePages: []int{3}}},
		Pages: []types.AnalyzedPage{
			{PageNumber: 3, Category: types.CategoryLEDSpecs, Relevance: 91, Content: "LED video wall and scoreboard", ClassifiedBy: types.ClassifiedByText},
		},
		Warnings: []string{},
	}
}

func TestListRunsEndpoint(t *testing.T) {
	h := newHarness(t, harnessOpts{noIndex: true})
	h.defra.Respond("RfpAnalysis", `{"data": {"RfpAnalysis": [
		{"_docID": "bae-2", "document": "b.pdf", "created_at": "2026-03-02T00:00:00Z", "total_pages": 10, "spec_count": 4}
	]}}`)

	rec := h.get(t, "/api/runs?limit=5&offset=0")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var resp ListRunsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Runs) != 1 || resp.Runs[0].ID != "bae-2" || resp.Runs[0].SpecCount != 4 {
		t.Errorf("runs = %+v", resp.Runs)
	}
	if vars := h.defra.Variables(); len(vars) != 1 {
		t.Errorf("queries = %d, want 1", len(vars))
	}

	for _, q := range []string{"limit=-1", "offset=x"} {
		if rec := h.get(t, "/api/runs?"+q); rec.Code != http.StatusBadRequest {
			t.Errorf("GET /api/runs?%s = %d, want 400", q, rec.Code)
		}
	}
}

func TestListRunsEndpointEmpty(t *testing.T) {
	h := newHarness(t, harnessOpts{noIndex: true})
	rec := h.get(t, "/api/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"runs\":[]}\n" {
		t.Errorf("body = %q, want an empty list", got)
	}
}

func TestGetRunEndpoint(t *testing.T) {
	h := newHarness(t, harnessOpts{noIndex: true})
	storeRun(t, h, sampleRun())

	rec := h.get(t, "/api/runs/bae-run")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var run pipeline.Run
	if err := json.NewDecoder(rec.Body).Decode(&run); err != nil {
		t.Fatal(err)
	}
	if run.ID != "bae-run" || run.Project.ProjectName != "Arena Renovation" || len(run.Pages) != 1 {
		t.Errorf("run = %+v", run)
	}
}

func TestGetRunEndpointNotFound(t *testing.T) {
	h := newHarness(t, harnessOpts{noIndex: true})
	h.defra.Respond("RfpAnalysis", `{"data": {"RfpAnalysis": []}}`)

	for _, path := range []string{"/api/runs/bae-missing", "/api/runs/bae-missing/export.xlsx"} {
		if rec := h.get(t, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
	}
}

func TestRunsEndpointsWithoutStore(t *testing.T) {
	h := newHarness(t, harnessOpts{noStore: true, noIndex: true})
	for _, path := range []string{"/api/runs", "/api/runs/bae-1", "/api/runs/bae-1/export.xlsx", "/api/runs/bae-1/search?q=led"} {
		if rec := h.get(t, path); rec.Code != http.StatusServiceUnavailable {
			t.Errorf("GET %s = %d, want 503", path, rec.Code)
		}
	}
}

func TestExportRunEndpoint(t *testing.T) {
	h := newHarness(t, harnessOpts{noIndex: true})
	storeRun(t, h, sampleRun())

	rec := h.get(t, "/api/runs/bae-run/export.xlsx")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != `attachment; filename="rfp_bae-run.xlsx"` {
		t.Errorf("Content-Disposition = %q", cd)
	}

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()
	if v, _ := f.GetCellValue(export.SheetSpecs, "A2"); v != "Center Hung" {
		t.Errorf("first spec = %q", v)
	}
	if v, _ := f.GetCellValue(export.SheetPages, "A2"); v != "3" {
		t.Errorf("first page = %q", v)
	}
}

func TestSearchRunEndpoint(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	if err := h.svc.Index.Index(context.Background(), "bae-run", sampleRun().Pages); err != nil {
		t.Fatalf("Index() error = %v", err)
	}

	tests := []struct {
		name     string
		query    string
		want     int
		wantHits int
	}{
		{"term hit", "?q=scoreboard", http.StatusOK, 1},
		{"category filter", "?q=scoreboard&category=legal", http.StatusOK, 0},
		{"miss", "?q=bleachers", http.StatusOK, 0},
		{"bad category", "?q=led&category=nope", http.StatusBadRequest, 0},
		{"bad limit", "?q=led&limit=x", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.get(t, "/api/runs/bae-run/search"+tt.query)
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
			if tt.want != http.StatusOK {
				return
			}
			var resp SearchResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatal(err)
			}
			if resp.RunID != "bae-run" || resp.Hits == nil {
				t.Errorf("resp = %+v", resp)
			}
			if len(resp.Hits) != tt.wantHits {
				t.Errorf("hits = %d, want %d", len(resp.Hits), tt.wantHits)
			}
		})
	}
}

func TestSearchRunEndpointDisabled(t *testing.T) {
	h := newHarness(t, harnessOpts{noIndex: true})
	rec := h.get(t, "/api/runs/bae-run/search?q=led")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
