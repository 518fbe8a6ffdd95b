// Package pdf is the page source for the triage pipeline. It wraps pdfcpu
// for structure (page count, image inventory, page subsets) and poppler's
// command-line tools for text and raster output.
package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrNoText is returned when a page range yields no text from any extractor.
var ErrNoText = errors.New("no text extracted")

const (
	DefaultDPI         = 150
	DefaultCallTimeout = 90 * time.Second
)

// Config controls external tool usage.
type Config struct {
	// PdftotextPath and PdftoppmPath default to the binaries on $PATH.
	PdftotextPath string
	PdftoppmPath  string
	// DPI for rasterized pages.
	DPI int
	// CallTimeout bounds every external tool invocation.
	CallTimeout time.Duration
	Logger      *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.PdftotextPath == "" {
		c.PdftotextPath = "pdftotext"
	}
	if c.PdftoppmPath == "" {
		c.PdftoppmPath = "pdftoppm"
	}
	if c.DPI <= 0 {
		c.DPI = DefaultDPI
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// PageText is the text layer of one page.
type PageText struct {
	Page int
	Text string
}

// Document is an opened PDF. Methods are safe for concurrent use.
type Document struct {
	path   string
	cfg    Config
	logger *slog.Logger

	mu   sync.Mutex // guards model; pdfcpu contexts are not concurrency-safe
	file *os.File
	pdf  *model.Context
}

// Open parses and validates the PDF at path.
func Open(path string, cfg Config) (*Document, error) {
	cfg = cfg.withDefaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}

	pdfCtx, err := api.ReadValidateAndOptimize(f, model.NewDefaultConfiguration())
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse PDF %s: %w", filepath.Base(path), err)
	}

	return &Document{
		path:   path,
		cfg:    cfg,
		logger: cfg.Logger.With("document", filepath.Base(path)),
		file:   f,
		pdf:    pdfCtx,
	}, nil
}

// Name returns the document's file name.
func (d *Document) Name() string {
	return filepath.Base(d.path)
}

// Path returns the document's location on disk.
func (d *Document) Path() string {
	return d.path
}

// Close releases the underlying file.
func (d *Document) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// PageCount returns the number of pages.
func (d *Document) PageCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pdf.PageCount <= 0 {
		return 0, fmt.Errorf("document reports %d pages", d.pdf.PageCount)
	}
	return d.pdf.PageCount, nil
}

// PagesWithImages scans the document once and returns the pages that
// reference at least one image XObject.
func (d *Document) PagesWithImages(ctx context.Context) (map[int]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make(map[int]bool)
	if d.pdf.Optimize == nil {
		if documentHasImages(d.pdf) {
			d.logger.Warn("image inventory unavailable per page, document contains images")
		}
		return out, nil
	}
	for pageNr := 1; pageNr <= d.pdf.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(pdfcpu.ImageObjNrs(d.pdf, pageNr)) > 0 {
			out[pageNr] = true
		}
	}
	return out, nil
}

// documentHasImages scans the cross-reference table for image streams.
func documentHasImages(pdfCtx *model.Context) bool {
	for _, entry := range pdfCtx.Table {
		if entry == nil || entry.Free || entry.Compressed {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if v, found := sd.Find("Subtype"); found {
			if name, ok := v.(types.Name); ok && name == "Image" {
				return true
			}
		}
	}
	return false
}

// ExtractText returns text for pages from..to inclusive, in page order.
// pdftotext is tried first; if it is unavailable or fails, the pdfcpu
// content-stream reader is used instead.
func (d *Document) ExtractText(ctx context.Context, from, to int) ([]PageText, error) {
	if from < 1 || to < from {
		return nil, fmt.Errorf("invalid page range %d-%d", from, to)
	}

	pages, err := d.pdftotext(ctx, from, to)
	if err == nil {
		return pages, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	d.logger.Debug("pdftotext unavailable, using content streams", "from", from, "to", to, "error", err)

	return d.contentText(ctx, from, to)
}

func (d *Document) pdftotext(ctx context.Context, from, to int) ([]PageText, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(callCtx, d.cfg.PdftotextPath,
		"-layout",
		"-enc", "UTF-8",
		"-f", strconv.Itoa(from),
		"-l", strconv.Itoa(to),
		d.path, "-",
	)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("pdftotext failed: %w (output: %s)", err, strings.TrimSpace(stderr.String()))
	}

	// pdftotext terminates every page with a form feed.
	parts := strings.Split(stdout.String(), "\f")
	want := to - from + 1
	if len(parts) < want {
		return nil, fmt.Errorf("pdftotext returned %d pages, want %d", len(parts), want)
	}

	out := make([]PageText, want)
	for i := range out {
		out[i] = PageText{Page: from + i, Text: strings.TrimSpace(parts[i])}
	}
	return out, nil
}

func (d *Document) contentText(ctx context.Context, from, to int) ([]PageText, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if to > d.pdf.PageCount {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", to, d.pdf.PageCount)
	}

	out := make([]PageText, 0, to-from+1)
	found := false
	for pageNr := from; pageNr <= to; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(d.pdf, pageNr)
		if err != nil {
			return nil, fmt.Errorf("failed to read content of page %d: %w", pageNr, err)
		}
		var text string
		if r != nil {
			data, err := io.ReadAll(r)
			if err != nil {
				return nil, fmt.Errorf("failed to read content of page %d: %w", pageNr, err)
			}
			text = TextFromContent(data)
		}
		if text != "" {
			found = true
		}
		out = append(out, PageText{Page: pageNr, Text: text})
	}
	if !found {
		return out, ErrNoText
	}
	return out, nil
}

// RenderPage rasterizes one page to PNG with pdftoppm.
func (d *Document) RenderPage(ctx context.Context, page int) ([]byte, error) {
	tmpDir, err := os.MkdirTemp("", "rfptriage-page-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	prefix := filepath.Join(tmpDir, "page")
	pageStr := strconv.Itoa(page)
	cmd := exec.CommandContext(callCtx, d.cfg.PdftoppmPath,
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(d.cfg.DPI),
		"-singlefile",
		d.path,
		prefix,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("pdftoppm failed on page %d: %w (output: %s)", page, err, strings.TrimSpace(string(output)))
	}

	data, err := os.ReadFile(prefix + ".png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}
	return data, nil
}
