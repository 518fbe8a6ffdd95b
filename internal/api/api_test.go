package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

type fakeEndpoint struct {
	method, path string
	group        string
	init         bool
}

func (e *fakeEndpoint) Route() (string, string, http.HandlerFunc) {
	return e.method, e.path, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(e.path))
	}
}

func (e *fakeEndpoint) RequiresInit() bool { return e.init }

func (e *fakeEndpoint) Command(getServerURL func() string) *cobra.Command {
	if e.group == "-" {
		return nil
	}
	return &cobra.Command{Use: strings.Trim(filepath.Base(e.path), "/")}
}

type groupedEndpoint struct{ fakeEndpoint }

func (e *groupedEndpoint) Group() string { return e.group }

func TestRegistryRoutes(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeEndpoint{method: "GET", path: "/open"})
	reg.Register(&fakeEndpoint{method: "GET", path: "/gated", init: true})

	mux := http.NewServeMux()
	reg.RegisterRoutes(mux, func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	})

	tests := []struct {
		method, path string
		want         int
	}{
		{"GET", "/open", http.StatusOK},
		{"GET", "/gated", http.StatusServiceUnavailable},
		{"POST", "/open", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("%s %s = %d, want %d", tt.method, tt.path, rec.Code, tt.want)
		}
	}
	if len(reg.Endpoints()) != 2 {
		t.Errorf("Endpoints() = %d", len(reg.Endpoints()))
	}
}

func TestBuildCommandsGroups(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeEndpoint{method: "GET", path: "/health"})
	reg.Register(&groupedEndpoint{fakeEndpoint{method: "GET", path: "/runs/list", group: "runs"}})
	reg.Register(&groupedEndpoint{fakeEndpoint{method: "GET", path: "/runs/get", group: "runs"}})
	reg.Register(&fakeEndpoint{method: "GET", path: "/hidden", group: "-"})

	root := reg.BuildCommands(func() string { return "" })
	names := map[string]*cobra.Command{}
	for _, c := range root.Commands() {
		names[c.Name()] = c
	}
	if len(names) != 2 || names["health"] == nil || names["runs"] == nil {
		t.Fatalf("top-level commands = %v", names)
	}
	if got := len(names["runs"].Commands()); got != 2 {
		t.Errorf("runs subcommands = %d, want 2", got)
	}
}

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		case "/echo":
			body, _ := io.ReadAll(r.Body)
			w.Write(body)
		case "/upload":
			if err := r.ParseMultipartForm(1 << 20); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_, fh, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"error":"no file uploaded"}`))
				return
			}
			w.Write([]byte(fh.Filename + ":" + r.FormValue("note")))
		case "/bytes":
			w.Write([]byte("PK\x03\x04"))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"run not found"}`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL)

	var got map[string]string
	if err := c.Get(ctx, "/ok", &got); err != nil || got["status"] != "ok" {
		t.Errorf("Get() = %v, %v", got, err)
	}

	var echo map[string]int
	if err := c.Post(ctx, "/echo", map[string]int{"n": 3}, &echo); err != nil || echo["n"] != 3 {
		t.Errorf("Post() = %v, %v", echo, err)
	}

	err := c.Get(ctx, "/missing", nil)
	if err == nil || !strings.Contains(err.Error(), "server error (404): run not found") {
		t.Errorf("Get(missing) error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "bid.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatal(err)
	}
	resp, err := c.Upload(ctx, "/upload", path, map[string]string{"note": "hi"})
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "bid.pdf:hi" {
		t.Errorf("Upload() body = %q", body)
	}
	if _, err := c.Upload(ctx, "/nowhere", path, nil); err == nil {
		t.Error("Upload() to a 404 should fail")
	}
	if _, err := c.Upload(ctx, "/upload", filepath.Join(t.TempDir(), "none.pdf"), nil); err == nil {
		t.Error("Upload() of a missing file should fail")
	}

	var buf bytes.Buffer
	if err := c.Download(ctx, "/bytes", &buf); err != nil || buf.String() != "PK\x03\x04" {
		t.Errorf("Download() = %q, %v", buf.String(), err)
	}
	if err := c.Download(ctx, "/missing", &buf); err == nil {
		t.Error("Download() of a 404 should fail")
	}
}

func TestOutput(t *testing.T) {
	data := map[string]any{"run_id": "bae-1", "pages": 3}

	var jsonOut bytes.Buffer
	if err := OutputTo(&jsonOut, OutputFormatJSON, data); err != nil {
		t.Fatalf("OutputTo(json) error = %v", err)
	}
	if !strings.Contains(jsonOut.String(), `"run_id": "bae-1"`) {
		t.Errorf("json = %s", jsonOut.String())
	}

	var yamlOut bytes.Buffer
	if err := OutputTo(&yamlOut, OutputFormatYAML, data); err != nil {
		t.Fatalf("OutputTo(yaml) error = %v", err)
	}
	if !strings.Contains(yamlOut.String(), "run_id: bae-1") {
		t.Errorf("yaml = %s", yamlOut.String())
	}

	if err := OutputTo(&yamlOut, "xml", data); err == nil {
		t.Error("unknown format should fail")
	}

	path := filepath.Join(t.TempDir(), "spec.json")
	if err := OutputToFile(data, path); err != nil {
		t.Fatalf("OutputToFile() error = %v", err)
	}
	raw, _ := os.ReadFile(path)
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Errorf(".json output is not JSON: %v", err)
	}
}

func TestSetOutputFormat(t *testing.T) {
	defer SetOutputFormat("yaml")
	SetOutputFormat("json")
	if GetOutputFormat() != OutputFormatJSON {
		t.Errorf("GetOutputFormat() = %s", GetOutputFormat())
	}
	SetOutputFormat("toml")
	if GetOutputFormat() != DefaultOutput {
		t.Errorf("unknown format should fall back to %s", DefaultOutput)
	}
}
