package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// buildTestPDF writes a minimal PDF with one text line per page. Pages
// listed in withImage also draw a 1x1 image XObject.
func buildTestPDF(t *testing.T, texts []string, withImage map[int]bool) string {
	t.Helper()

	var (
		buf     bytes.Buffer
		offsets []int
	)
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}
	buf.WriteString("%PDF-1.4\n")

	n := len(texts)
	kids := make([]string, n)
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 5+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	obj("<< /Type /XObject /Subtype /Image /Width 1 /Height 1 /ColorSpace /DeviceGray /BitsPerComponent 8 /Length 1 >>\nstream\n\x00\nendstream")

	for i, text := range texts {
		pageNum := i + 1
		resources := "<< /Font << /F1 3 0 R >> >>"
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		if withImage[pageNum] {
			resources = "<< /Font << /F1 3 0 R >> /XObject << /Im1 4 0 R >> >>"
			content += "\nq 10 0 0 10 72 72 cm /Im1 Do Q"
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources %s /Contents %d 0 R >>",
			resources, 6+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	path := filepath.Join(t.TempDir(), "test.pdf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("failed to write test PDF: %v", err)
	}
	return path
}

func TestTextFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "simple Tj",
			content: "BT /F1 12 Tf 72 720 Td (Video wall) Tj ET",
			want:    "Video wall",
		},
		{
			name:    "TJ array with kerning",
			content: "BT [(Pix) -120 (el pitch)] TJ ET",
			want:    "Pixel pitch",
		},
		{
			name:    "escapes and nested parens",
			content: `BT (a \(b\) \101 \\ (c)) Tj ET`,
			want:    `a (b) A \ (c)`,
		},
		{
			name:    "quote operator starts new line",
			content: "BT (line one) Tj (line two) ' ET",
			want:    "line one\nline two",
		},
		{
			name:    "hex string",
			content: "BT <4C4544> Tj ET",
			want:    "LED",
		},
		{
			name:    "T* breaks lines",
			content: "BT (first) Tj T* (second) Tj ET",
			want:    "first\nsecond",
		},
		{
			name:    "non-text operators discard strings",
			content: "(ignored) BDC BT (kept) Tj ET % (comment) Tj",
			want:    "kept",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TextFromContent([]byte(tt.content)); got != tt.want {
				t.Errorf("TextFromContent() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestValidPages(t *testing.T) {
	got := ValidPages([]int{5, 0, 2, 2, 9, -1, 1}, 5)
	want := []int{1, 2, 5}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("ValidPages() = %v, want %v", got, want)
	}
	if got := ValidPages([]int{7, 8}, 5); len(got) != 0 {
		t.Errorf("ValidPages() = %v, want empty", got)
	}
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	path := buildTestPDF(t, []string{"Page one LED wall", "Page two sheet", "Page three bond"}, map[int]bool{2: true})

	// A missing pdftotext forces the content-stream reader.
	doc, err := Open(path, Config{PdftotextPath: filepath.Join(t.TempDir(), "missing-pdftotext")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	if doc.Name() != "test.pdf" {
		t.Errorf("Name() = %q", doc.Name())
	}

	n, err := doc.PageCount(ctx)
	if err != nil || n != 3 {
		t.Fatalf("PageCount() = %d, %v; want 3", n, err)
	}

	imgs, err := doc.PagesWithImages(ctx)
	if err != nil {
		t.Fatalf("PagesWithImages() error = %v", err)
	}
	if !imgs[2] || imgs[1] || imgs[3] {
		t.Errorf("PagesWithImages() = %v, want only page 2", imgs)
	}

	pages, err := doc.ExtractText(ctx, 1, 3)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	want := []string{"Page one LED wall", "Page two sheet", "Page three bond"}
	for i, p := range pages {
		if p.Page != i+1 || p.Text != want[i] {
			t.Errorf("page %d: got %+v, want %q", i+1, p, want[i])
		}
	}

	single, err := doc.ExtractText(ctx, 3, 3)
	if err != nil || len(single) != 1 || single[0].Page != 3 {
		t.Errorf("ExtractText(3,3) = %+v, %v", single, err)
	}

	if _, err := doc.ExtractText(ctx, 2, 9); err == nil {
		t.Error("expected error for range past the last page")
	}
	if _, err := doc.ExtractText(ctx, 3, 1); err == nil {
		t.Error("expected error for inverted range")
	}
}

func TestOpenWithPoppler(t *testing.T) {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		t.Skip("pdftotext not installed")
	}
	path := buildTestPDF(t, []string{"Scoreboard alpha", "Ribbon board beta"}, nil)
	doc, err := Open(path, Config{})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	pages, err := doc.ExtractText(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if len(pages) != 2 || !strings.Contains(pages[1].Text, "Ribbon board beta") {
		t.Errorf("ExtractText() = %+v", pages)
	}
}

func TestContentTextEmptyPages(t *testing.T) {
	path := buildTestPDF(t, []string{"", ""}, nil)
	doc, err := Open(path, Config{PdftotextPath: filepath.Join(t.TempDir(), "missing")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	_, err = doc.ExtractText(context.Background(), 1, 2)
	if !errors.Is(err, ErrNoText) {
		t.Errorf("ExtractText() error = %v, want ErrNoText", err)
	}
}

func TestOpenInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.pdf")
	if err := os.WriteFile(path, []byte("not a pdf"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(path, Config{}); err == nil {
		t.Error("expected error opening invalid PDF")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing.pdf"), Config{}); err == nil {
		t.Error("expected error opening missing file")
	}
}

func TestWritePages(t *testing.T) {
	path := buildTestPDF(t, []string{"one", "two", "three", "four"}, nil)
	src, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	var out bytes.Buffer
	if err := WritePages(src, &out, []int{2, 4}); err != nil {
		t.Fatalf("WritePages() error = %v", err)
	}
	n, err := PageCount(bytes.NewReader(out.Bytes()))
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if n != 2 {
		t.Errorf("subset has %d pages, want 2", n)
	}

	if err := WritePages(src, &out, nil); err == nil {
		t.Error("expected error for empty selection")
	}
}

func TestRenderPage(t *testing.T) {
	if _, err := exec.LookPath("pdftoppm"); err != nil {
		t.Skip("pdftoppm not installed")
	}
	path := buildTestPDF(t, []string{"render me"}, nil)
	doc, err := Open(path, Config{DPI: 36})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()

	png, err := doc.RenderPage(context.Background(), 1)
	if err != nil {
		t.Fatalf("RenderPage() error = %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Error("output is not a PNG")
	}
}

func TestRenderPageMissingTool(t *testing.T) {
	path := buildTestPDF(t, []string{"x"}, nil)
	doc, err := Open(path, Config{PdftoppmPath: filepath.Join(t.TempDir(), "missing-pdftoppm")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer doc.Close()
	if _, err := doc.RenderPage(context.Background(), 1); err == nil {
		t.Error("expected error when pdftoppm is missing")
	}
}
