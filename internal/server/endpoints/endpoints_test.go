package endpoints

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jackzampolin/rfptriage/internal/api"
	"github.com/jackzampolin/rfptriage/internal/config"
	"github.com/jackzampolin/rfptriage/internal/defra"
	"github.com/jackzampolin/rfptriage/internal/home"
	"github.com/jackzampolin/rfptriage/internal/index"
	"github.com/jackzampolin/rfptriage/internal/pdf"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/store"
	"github.com/jackzampolin/rfptriage/internal/svcctx"
	"github.com/jackzampolin/rfptriage/internal/testutil"
)

const filler = "The vendor shall furnish the listed work in full and keep the site clean. "

func pad(text string, n int) string {
	for len([]rune(text)) < n {
		text += filler
	}
	return text
}

// stubDoc is an in-memory pipeline.Document named after the uploaded file.
type stubDoc struct {
	name  string
	texts []string
}

func (d *stubDoc) Name() string { return d.name }

func (d *stubDoc) PageCount(ctx context.Context) (int, error) { return len(d.texts), nil }

func (d *stubDoc) ExtractText(ctx context.Context, from, to int) ([]pdf.PageText, error) {
	var out []pdf.PageText
	for p := from; p <= to; p++ {
		out = append(out, pdf.PageText{Page: p, Text: d.texts[p-1]})
	}
	return out, nil
}

func (d *stubDoc) PagesWithImages(ctx context.Context) (map[int]bool, error) { return nil, nil }

func (d *stubDoc) RenderPage(ctx context.Context, page int) ([]byte, error) {
	return nil, errors.New("no renderer")
}

func (d *stubDoc) Close() error { return nil }

var bidTexts = []string{
	pad("LED display with a video wall and scoreboard. ", 300),
	pad("Bid bond and surety are due with the form. ", 300),
	pad("Indemnification and liquidated damages apply. ", 300),
}

// harness holds the services a request sees.
type harness struct {
	svc   *svcctx.Services
	defra *testutil.FakeDefra
	redis *miniredis.Miniredis
}

type harnessOpts struct {
	config  string // config file contents
	texts   []string
	noStore bool
	noIndex bool
}

func newHarness(t *testing.T, opts harnessOpts) *harness {
	t.Helper()
	t.Setenv("MISTRAL_API_KEY", "")
	t.Setenv("OPENROUTER_API_KEY", "")

	mgr, err := config.NewManager(testutil.WriteConfig(t, opts.config))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	dir, err := home.New(t.TempDir())
	if err != nil {
		t.Fatalf("home.New() error = %v", err)
	}
	if err := dir.EnsureExists(); err != nil {
		t.Fatalf("EnsureExists() error = %v", err)
	}
	logger := testutil.Logger(t)

	texts := opts.texts
	if texts == nil {
		texts = bidTexts
	}
	h := &harness{defra: testutil.NewFakeDefra(t)}
	h.svc = &svcctx.Services{
		Config:   mgr,
		Registry: providers.NewRegistry(),
		Logger:   logger,
		Home:     dir,
	}
	deps := pipeline.Deps{
		Open: func(path string) (pipeline.Document, error) {
			return &stubDoc{name: filepath.Base(path), texts: texts}, nil
		},
	}

	if !opts.noStore {
		client := defra.NewClient(h.defra.URL())
		h.svc.DefraClient = client
		h.svc.Store = store.New(store.Config{Client: client, Logger: logger})
		deps.Store = h.svc.Store
	}
	if !opts.noIndex {
		h.redis = miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: h.redis.Addr()})
		t.Cleanup(func() { rdb.Close() })
		h.svc.Index = index.New(index.Config{Client: rdb, Prefix: "test:", Logger: logger})
		deps.Index = h.svc.Index
	}
	h.svc.Orchestrator = pipeline.New(deps, pipeline.Config{Logger: logger})
	return h
}

// serve routes req through a mux holding every endpoint, with the
// harness services in the request context.
func (h *harness) serve(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	reg := api.NewRegistry()
	for _, ep := range All(Config{}) {
		reg.Register(ep)
	}
	mux := http.NewServeMux()
	reg.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc { return next })

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req.WithContext(svcctx.WithServices(req.Context(), h.svc)))
	return rec
}

func (h *harness) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	return h.serve(t, httptest.NewRequest(http.MethodGet, path, nil))
}

// uploadRequest builds a multipart POST with a "file" part.
func uploadRequest(t *testing.T, path, filename string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatal(err)
		}
		part.Write(content)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// buildPDF writes a minimal PDF with one line of text per page.
func buildPDF(t *testing.T, texts []string) []byte {
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

	kids := make([]string, len(texts))
	for i := range texts {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(texts)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	for i, text := range texts {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

// uploadsLeft counts spooled upload dirs that were not removed.
func uploadsLeft(t *testing.T, h *harness) int {
	t.Helper()
	entries, err := os.ReadDir(h.svc.Home.UploadsDir())
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	return len(entries)
}

// serveFunc calls a single handler with the harness services.
func (h *harness) serveFunc(t *testing.T, fn http.HandlerFunc, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	fn(rec, req.WithContext(svcctx.WithServices(req.Context(), h.svc)))
	return rec
}
