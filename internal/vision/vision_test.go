package vision

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/types"
)

type fakeRenderer struct {
	mu      sync.Mutex
	failFor map[int]bool
	calls   []int
}

func (f *fakeRenderer) RenderPage(ctx context.Context, page int) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, page)
	f.mu.Unlock()
	if f.failFor[page] {
		return nil, errors.New("pdftoppm exited 1")
	}
	return []byte("\x89PNG fake"), nil
}

func drawingPages(n int) []Page {
	pages := make([]Page, n)
	for i := range pages {
		pages[i] = Page{
			Number:    i + 1,
			Text:      "raw text " + string(rune('a'+i%26)),
			Category:  types.CategoryDrawing,
			Relevance: 70,
		}
	}
	return pages
}

func TestAnalyzeSuccess(t *testing.T) {
	ocr := providers.NewMockOCRProvider()
	ocr.Tables = []string{"<table><tr><th>Tag</th><th>Size</th></tr><tr><td>D1</td><td>12x20</td></tr></table>"}
	ocr.TableFormat = providers.TableFormatHTML

	d := NewDispatcher(ocr, Config{Workers: 2})
	got, stats, err := d.Analyze(context.Background(), &fakeRenderer{}, drawingPages(3), nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Analyze() returned %d pages, want 3", len(got))
	}
	for i, ap := range got {
		if ap.PageNumber != i+1 {
			t.Errorf("page %d out of order: %d", i, ap.PageNumber)
		}
		if !ap.VisionAnalyzed || ap.ClassifiedBy != types.ClassifiedByVision {
			t.Errorf("page %d not marked as vision analyzed: %+v", ap.PageNumber, ap)
		}
		if !strings.Contains(ap.Content, "mock OCR text") {
			t.Errorf("page %d content = %q", ap.PageNumber, ap.Content)
		}
		if len(ap.Tables) != 1 || !strings.Contains(ap.Tables[0], "D1") || !strings.Contains(ap.Tables[0], "|") {
			t.Errorf("page %d tables = %v", ap.PageNumber, ap.Tables)
		}
		if ap.Category != types.CategoryDrawing || ap.Relevance != 70 {
			t.Errorf("page %d lost its classification: %+v", ap.PageNumber, ap)
		}
	}
	if stats.Analyzed != 3 || stats.Fallbacks != 0 || stats.Submitted != 3 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestAnalyzeAlwaysFailingProviderFallsBack(t *testing.T) {
	ocr := providers.NewMockOCRProvider()
	ocr.ShouldFail = true

	var (
		mu       sync.Mutex
		warnings []Warning
	)
	d := NewDispatcher(ocr, Config{Workers: 3})
	pages := drawingPages(7)
	got, stats, err := d.Analyze(context.Background(), &fakeRenderer{}, pages, func(w Warning) {
		mu.Lock()
		warnings = append(warnings, w)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(got) != len(pages) {
		t.Fatalf("got %d pages, want %d", len(got), len(pages))
	}
	for i, ap := range got {
		if ap.PageNumber != pages[i].Number {
			t.Errorf("page %d: number %d", i, ap.PageNumber)
		}
		if ap.VisionAnalyzed || ap.ClassifiedBy != types.ClassifiedByText {
			t.Errorf("page %d should be a text fallback: %+v", ap.PageNumber, ap)
		}
		if ap.Content != pages[i].Text {
			t.Errorf("page %d content = %q, want raw text", ap.PageNumber, ap.Content)
		}
	}
	if len(warnings) != len(pages) {
		t.Errorf("got %d warnings, want %d", len(warnings), len(pages))
	}
	if stats.Fallbacks != len(pages) || stats.Analyzed != 0 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestAnalyzeRenderFailureFallsBack(t *testing.T) {
	ocr := providers.NewMockOCRProvider()
	r := &fakeRenderer{failFor: map[int]bool{2: true}}

	var warned []int
	d := NewDispatcher(ocr, Config{})
	got, _, err := d.Analyze(context.Background(), r, drawingPages(3), func(w Warning) {
		warned = append(warned, w.Page)
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got[1].VisionAnalyzed || !got[0].VisionAnalyzed || !got[2].VisionAnalyzed {
		t.Errorf("only page 2 should fall back: %+v", got)
	}
	if len(warned) != 1 || warned[0] != 2 {
		t.Errorf("warnings for pages %v, want [2]", warned)
	}
	if ocr.RequestCount() != 2 {
		t.Errorf("OCR called %d times, want 2", ocr.RequestCount())
	}
}

func TestAnalyzeEmptyTextIsFailure(t *testing.T) {
	ocr := &blankOCR{MockOCRProvider: providers.NewMockOCRProvider()}
	d := NewDispatcher(ocr, Config{})
	got, stats, err := d.Analyze(context.Background(), &fakeRenderer{}, drawingPages(1), nil)
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got[0].VisionAnalyzed || stats.Fallbacks != 1 {
		t.Errorf("blank OCR output should fall back: %+v", got[0])
	}
}

type blankOCR struct {
	*providers.MockOCRProvider
}

func (b *blankOCR) ProcessImage(ctx context.Context, image []byte, page int) (*providers.OCRResult, error) {
	return &providers.OCRResult{Success: true, Text: "  \n"}, nil
}

func TestAnalyzeOrderingUnderRandomLatency(t *testing.T) {
	for trial := 0; trial < 5; trial++ {
		rng := rand.New(rand.NewSource(int64(trial)))
		delays := make(map[int]time.Duration)
		for p := 1; p <= 20; p++ {
			delays[p] = time.Duration(rng.Intn(8)) * time.Millisecond
		}
		ocr := providers.NewMockOCRProvider()
		ocr.LatencyFor = func(page int) time.Duration { return delays[page] }
		ocr.FailPages = map[int]bool{3: true, 11: true}

		d := NewDispatcher(ocr, Config{Workers: 6})
		got, _, err := d.Analyze(context.Background(), &fakeRenderer{}, drawingPages(20), nil)
		if err != nil {
			t.Fatalf("Analyze() error = %v", err)
		}
		if len(got) != 20 {
			t.Fatalf("trial %d: got %d pages", trial, len(got))
		}
		for i := 1; i < len(got); i++ {
			if got[i].PageNumber <= got[i-1].PageNumber {
				t.Fatalf("trial %d: pages not strictly increasing at %d: %d after %d",
					trial, i, got[i].PageNumber, got[i-1].PageNumber)
			}
		}
	}
}

func TestAnalyzeCancelled(t *testing.T) {
	ocr := providers.NewMockOCRProvider()
	ocr.Latency = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	d := NewDispatcher(ocr, Config{Workers: 2})
	_, _, err := d.Analyze(ctx, &fakeRenderer{}, drawingPages(4), nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Analyze() error = %v, want context.Canceled", err)
	}
}

func TestAnalyzeNoPages(t *testing.T) {
	d := NewDispatcher(providers.NewMockOCRProvider(), Config{})
	got, stats, err := d.Analyze(context.Background(), &fakeRenderer{}, nil, nil)
	if err != nil || len(got) != 0 || stats.Submitted != 0 {
		t.Errorf("Analyze(nil) = %v, %+v, %v", got, stats, err)
	}
}

func TestTableConverter(t *testing.T) {
	tc := NewTableConverter()

	t.Run("html table is sanitized and converted", func(t *testing.T) {
		md, err := tc.HTMLToMarkdown(`<table onclick="x()"><tr><th>Screen</th><th>Pitch</th></tr><tr><td>Main<script>alert(1)</script></td><td>4mm</td></tr></table>`)
		if err != nil {
			t.Fatalf("HTMLToMarkdown() error = %v", err)
		}
		if strings.Contains(md, "script") || strings.Contains(md, "alert") || strings.Contains(md, "onclick") {
			t.Errorf("unsafe content survived: %q", md)
		}
		if !strings.Contains(md, "Screen") || !strings.Contains(md, "4mm") || !strings.Contains(md, "|") {
			t.Errorf("unexpected markdown: %q", md)
		}
	})

	t.Run("markdown fragments and inline tables are merged", func(t *testing.T) {
		inline := "| A | B |\n|---|---|\n| 1 | 2 |"
		res := &providers.OCRResult{
			Text:        "Schedule\n\n" + inline + "\n\nNotes",
			Tables:      []string{inline, "| C |\n|---|\n| 3 |"},
			TableFormat: providers.TableFormatMarkdown,
		}
		tables, dropped := tc.Tables(res)
		if dropped != 0 {
			t.Errorf("dropped = %d", dropped)
		}
		if len(tables) != 2 {
			t.Fatalf("Tables() = %v, want 2 distinct tables", tables)
		}
		if tables[0] != inline {
			t.Errorf("first table = %q", tables[0])
		}
	})
}

func TestAnalyzeWithoutProviderFallsBack(t *testing.T) {
	d := NewDispatcher(nil, Config{Workers: 2})
	pages := drawingPages(3)
	var warned int
	var mu sync.Mutex
	got, stats, err := d.Analyze(context.Background(), &fakeRenderer{}, pages, func(Warning) {
		mu.Lock()
		warned++
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(got) != len(pages) {
		t.Fatalf("got %d pages, want %d", len(got), len(pages))
	}
	for i, ap := range got {
		if ap.VisionAnalyzed || ap.Content != pages[i].Text {
			t.Errorf("page %d should be a raw text fallback: %+v", ap.PageNumber, ap)
		}
	}
	if warned != len(pages) || stats.Fallbacks != len(pages) {
		t.Errorf("warnings = %d, Stats = %+v", warned, stats)
	}
}
