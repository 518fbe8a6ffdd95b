package endpoints

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/jackzampolin/rfptriage/internal/pipeline"
)

func decodeEvents(t *testing.T, body string) []pipeline.Event {
	t.Helper()
	var events []pipeline.Event
	for _, line := range strings.Split(strings.TrimSpace(body), "\n") {
		var ev pipeline.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line %q is not an event: %v", line, err)
		}
		events = append(events, ev)
	}
	return events
}

func TestAnalyzeEndpoint(t *testing.T) {
	h := newHarness(t, harnessOpts{})

	rec := h.serve(t, uploadRequest(t, "/api/analyze", "arena.pdf", []byte("%PDF"), map[string]string{
		"project_context": "arena renovation",
	}))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != NDJSONContentType {
		t.Errorf("Content-Type = %q", ct)
	}

	events := decodeEvents(t, rec.Body.String())
	last := events[len(events)-1]
	if last.Type != pipeline.EventComplete {
		t.Fatalf("last event = %s %q", last.Type, last.Message)
	}
	for _, ev := range events[:len(events)-1] {
		if ev.Terminal() {
			t.Errorf("terminal event before the end: %+v", ev)
		}
	}

	run := last.Result
	if run.ID != "bae-rfpanalysis-1" {
		t.Errorf("run ID = %q, want the stored document ID", run.ID)
	}
	if run.Document != "arena.pdf" || run.ProjectContext != "arena renovation" {
		t.Errorf("run = %s %q", run.Document, run.ProjectContext)
	}
	if len(run.Pages) != 1 || run.Pages[0].PageNumber != 1 {
		t.Errorf("selected pages = %+v", run.Pages)
	}
	// No extraction model is configured in the harness.
	if len(run.Warnings) != 1 || !strings.Contains(run.Warnings[0], "no extraction model") {
		t.Errorf("Warnings = %v", run.Warnings)
	}
	if n := uploadsLeft(t, h); n != 0 {
		t.Errorf("%d spooled uploads left behind", n)
	}
}

func TestAnalyzeEndpointBadOverride(t *testing.T) {
	h := newHarness(t, harnessOpts{})
	rec := h.serve(t, uploadRequest(t, "/api/analyze", "a.pdf", []byte("%PDF"), map[string]string{
		"disabled_banks": "nope",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if len(h.defra.Mutations()) != 0 {
		t.Error("a rejected request should not start a run")
	}
}

func TestRelayEvents(t *testing.T) {
	line := func(ev pipeline.Event) string {
		b, _ := json.Marshal(ev)
		return string(b) + "\n"
	}
	stage := line(pipeline.Event{Type: pipeline.EventStage, Stage: pipeline.StageReading})
	complete := line(pipeline.Event{Type: pipeline.EventComplete, Stage: pipeline.StageDone})
	failed := line(pipeline.Event{Type: pipeline.EventError, Message: "page count: corrupt"})

	tests := []struct {
		name    string
		in      string
		lines   int
		wantErr string
	}{
		{"complete", stage + complete, 2, ""},
		{"error event", stage + failed, 2, "corrupt"},
		{"truncated", stage, 1, "without a terminal event"},
		{"garbage", "not json\n", 0, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := relayEvents(strings.NewReader(tt.in), &out)
			switch {
			case tt.wantErr == "" && err != nil:
				t.Fatalf("relayEvents() error = %v", err)
			case tt.wantErr != "" && (err == nil || !strings.Contains(err.Error(), tt.wantErr)):
				t.Fatalf("relayEvents() error = %v, want %q", err, tt.wantErr)
			}
			if got := strings.Count(out.String(), "\n"); got != tt.lines {
				t.Errorf("relayed %d lines, want %d", got, tt.lines)
			}
		})
	}
}
