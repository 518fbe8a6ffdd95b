package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/rfptriage/internal/defra"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/testutil"
	"github.com/jackzampolin/rfptriage/internal/types"
)

func testRun() *pipeline.Run {
	return &pipeline.Run{
		Document:   "bid.pdf",
		TotalPages: 40,
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Pages: []types.AnalyzedPage{
			{Index: 0, PageNumber: 3, Category: types.CategoryLEDSpecs, Relevance: 94, Content: "LED wall", ClassifiedBy: types.ClassifiedByText},
			{Index: 1, PageNumber: 7, Category: types.CategoryDrawing, Relevance: 70, Content: "E-101", Tables: []string{"| a |\n| --- |\n| 1 |"}, VisionAnalyzed: true, ClassifiedBy: types.ClassifiedByVision},
		},
		Specs:        []types.ExtractedSpec{{Name: "Main Videoboard", Confidence: 0.9, SourcePages: []int{3}}},
		Requirements: []types.Requirement{},
		Project:      types.ProjectInfo{ProjectName: "Stadium", Client: "County"},
		Warnings:     []string{"batch 2/2 skipped"},
		Stats:        pipeline.Stats{VisionPages: 1, CostUSD: 0.02, ProcessingTimeMS: 1234},
	}
}

func TestSave(t *testing.T) {
	for _, withSink := range []bool{false, true} {
		t.Run(fmt.Sprintf("sink=%v", withSink), func(t *testing.T) {
			fake := testutil.NewFakeDefra(t)
			client := defra.NewClient(fake.URL())
			cfg := Config{Client: client}
			if withSink {
				sink := defra.NewSink(defra.SinkConfig{Client: client, FlushInterval: time.Hour})
				sink.Start(context.Background())
				defer sink.Stop()
				cfg.Sink = sink
			}

			id, err := New(cfg).Save(context.Background(), testRun())
			if err != nil {
				t.Fatalf("Save() error = %v", err)
			}
			if id != "bae-rfpanalysis-1" {
				t.Errorf("id = %q, want bae-rfpanalysis-1", id)
			}
			mutations := fake.Mutations()
			if len(mutations) != 2 {
				t.Fatalf("mutations = %d, want analysis + one page batch", len(mutations))
			}
			analysis := mutations[0]
			for _, want := range []string{`document: "bid.pdf"`, `spec_count: 1`, `warning_count: 1`, `created_at: "2026-03-01T12:00:00Z"`} {
				if !strings.Contains(analysis, want) {
					t.Errorf("analysis mutation missing %s", want)
				}
			}
			if strings.Contains(analysis, "LED wall") {
				t.Error("page content should not be stored on the analysis")
			}
			pages := mutations[1]
			if !strings.Contains(pages, `run_id: "bae-rfpanalysis-1"`) || !strings.Contains(pages, `vision_analyzed: true`) {
				t.Errorf("page mutation = %s", pages)
			}
		})
	}
}

func TestSavePageFailureRemovesRun(t *testing.T) {
	fake := testutil.NewFakeDefra(t)
	fake.FailCreates("RfpPage", "disk full")
	st := New(Config{Client: defra.NewClient(fake.URL())})

	id, err := st.Save(context.Background(), testRun())
	if err == nil {
		t.Fatal("Save() should fail when pages cannot be written")
	}
	if id != "" {
		t.Errorf("id = %q, want empty", id)
	}
	mutations := fake.Mutations()
	last := mutations[len(mutations)-1]
	if !strings.HasPrefix(last, `mutation { delete_RfpAnalysis(docID: "bae-rfpanalysis-1")`) {
		t.Errorf("last mutation = %s, want delete of partial run", last)
	}
}

func TestGet(t *testing.T) {
	stored := testRun()
	stored.Pages = nil
	result, _ := json.Marshal(stored)
	analysis, _ := json.Marshal(map[string]any{
		"data": map[string]any{
			"RfpAnalysis": []any{map[string]any{"_docID": "bae-run", "result": string(result)}},
		},
	})

	fake := testutil.NewFakeDefra(t)
	fake.Respond("RfpAnalysis", string(analysis))
	fake.Respond("RfpPage", `{"data": {"RfpPage": [
			{"page_num": 3, "position": 0, "category": "led_specs", "relevance": 94, "content": "LED wall", "tables": "", "vision_analyzed": false, "classified_by": "text-heuristic"},
			{"page_num": 7, "position": 1, "category": "drawing", "relevance": 70, "content": "E-101", "tables": "[\"| a |\"]", "vision_analyzed": true, "classified_by": "vision-ocr"}
		]}}`)
	st := New(Config{Client: defra.NewClient(fake.URL())})

	run, err := st.Get(context.Background(), "bae-run")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if run.ID != "bae-run" || run.Document != "bid.pdf" || len(run.Specs) != 1 {
		t.Errorf("run = %+v", run)
	}
	if len(run.Pages) != 2 {
		t.Fatalf("pages = %d, want 2", len(run.Pages))
	}
	p := run.Pages[1]
	if p.PageNumber != 7 || !p.VisionAnalyzed || p.ClassifiedBy != types.ClassifiedByVision || len(p.Tables) != 1 {
		t.Errorf("page = %+v", p)
	}
	if vars := fake.Variables(); vars[1]["v0"] != "bae-run" {
		t.Errorf("page query variables = %v", vars[1])
	}
}

func TestGetNotFound(t *testing.T) {
	fake := testutil.NewFakeDefra(t)
	fake.Respond("RfpAnalysis", `{"data": {"RfpAnalysis": []}}`)
	st := New(Config{Client: defra.NewClient(fake.URL())})

	for _, id := range []string{"bae-missing", `bad"id`} {
		if _, err := st.Get(context.Background(), id); !errors.Is(err, defra.ErrNotFound) {
			t.Errorf("Get(%q) error = %v, want ErrNotFound", id, err)
		}
	}
}

func TestList(t *testing.T) {
	fake := testutil.NewFakeDefra(t)
	fake.Respond("RfpAnalysis", `{"data": {"RfpAnalysis": [
		{"_docID": "bae-2", "document": "b.pdf", "created_at": "2026-03-02T00:00:00Z", "total_pages": 10, "spec_count": 4, "cost_usd": 0.5},
		{"_docID": "bae-1", "document": "a.pdf", "created_at": "2026-03-01T00:00:00Z", "total_pages": 5}
	]}}`)
	st := New(Config{Client: defra.NewClient(fake.URL())})

	runs, err := st.List(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if r := runs[0]; r.ID != "bae-2" || r.SpecCount != 4 || r.TotalPages != 10 || r.CostUSD != 0.5 || r.CreatedAt.Day() != 2 {
		t.Errorf("runs[0] = %+v", r)
	}
}
