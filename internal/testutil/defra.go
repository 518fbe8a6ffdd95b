package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
)

// FakeDefra is an in-process stand-in for a DefraDB node. It answers the
// health check, accepts schemas, assigns IDs to created documents and
// serves canned query responses keyed by collection name.
type FakeDefra struct {
	Server *httptest.Server

	mu        sync.Mutex
	unhealthy bool
	schemas   []string
	mutations []string
	variables []map[string]any
	responses map[string]string
	failures  map[string]string
	created   map[string]int
}

// NewFakeDefra starts a fake node that is closed when the test ends.
func NewFakeDefra(t *testing.T) *FakeDefra {
	t.Helper()
	f := &FakeDefra{
		responses: map[string]string{},
		failures:  map[string]string{},
		created:   map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health-check", f.health)
	mux.HandleFunc("POST /api/v0/schema", f.schema)
	mux.HandleFunc("POST /api/v0/graphql", func(w http.ResponseWriter, r *http.Request) {
		f.graphql(t, w, r)
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL is the node's base URL.
func (f *FakeDefra) URL() string { return f.Server.URL }

// SetHealthy controls the health check answer.
func (f *FakeDefra) SetHealthy(ok bool) {
	f.mu.Lock()
	f.unhealthy = !ok
	f.mu.Unlock()
}

// Respond sets the raw GraphQL response for queries on collection.
func (f *FakeDefra) Respond(collection, body string) {
	f.mu.Lock()
	f.responses[collection] = body
	f.mu.Unlock()
}

// FailCreates makes creates on collection return a GraphQL error.
func (f *FakeDefra) FailCreates(collection, msg string) {
	f.mu.Lock()
	f.failures[collection] = msg
	f.mu.Unlock()
}

// Schemas returns the SDL documents received, in order.
func (f *FakeDefra) Schemas() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.schemas...)
}

// Mutations returns the mutation documents received, in order.
func (f *FakeDefra) Mutations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mutations...)
}

// Variables returns the variables of each query received, in order.
func (f *FakeDefra) Variables() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.variables...)
}

func (f *FakeDefra) health(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	down := f.unhealthy
	f.mu.Unlock()
	if down {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

var typeName = regexp.MustCompile(`type\s+(\w+)`)

func (f *FakeDefra) schema(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	sdl := string(body)

	f.mu.Lock()
	defer f.mu.Unlock()
	if m := typeName.FindStringSubmatch(sdl); m != nil {
		for _, prev := range f.schemas {
			if pm := typeName.FindStringSubmatch(prev); pm != nil && pm[1] == m[1] {
				w.WriteHeader(http.StatusBadRequest)
				fmt.Fprintf(w, `{"errors":[{"message":"collection %s already exists"}]}`, m[1])
				return
			}
		}
	}
	f.schemas = append(f.schemas, sdl)
	w.WriteHeader(http.StatusOK)
}

var mutationOp = regexp.MustCompile(`^mutation \{ (create|update|delete)_(\w+)\(`)

func (f *FakeDefra) graphql(t *testing.T, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string         `json:"query"`
		Variables map[string]any `json:"variables"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("fake defra: decode request: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	m := mutationOp.FindStringSubmatch(req.Query)
	if m == nil {
		f.variables = append(f.variables, req.Variables)
		for coll, resp := range f.responses {
			if strings.Contains(req.Query, "{ "+coll+"(") || strings.Contains(req.Query, "{ "+coll+" {") {
				w.Write([]byte(resp))
				return
			}
		}
		w.Write([]byte(`{"data": {}}`))
		return
	}

	f.mutations = append(f.mutations, req.Query)
	op, coll := m[1], m[2]
	if op == "create" {
		if msg, ok := f.failures[coll]; ok {
			fmt.Fprintf(w, `{"errors": [{"message": %q}]}`, msg)
			return
		}
		docs := f.createDocs(coll, req.Query)
		out, _ := json.Marshal(map[string]any{"data": map[string]any{"create_" + coll: docs}})
		w.Write(out)
		return
	}

	id := ""
	if dm := regexp.MustCompile(`docID: "([^"]+)"`).FindStringSubmatch(req.Query); dm != nil {
		id = dm[1]
	}
	fmt.Fprintf(w, `{"data": {"%s_%s": [{"_docID": %q}]}}`, op, coll, id)
}

// createDocs answers a create mutation with one document per input object,
// echoing any requested return field whose literal appears in that input.
func (f *FakeDefra) createDocs(coll, query string) []map[string]any {
	var fields []string
	if i := strings.LastIndex(query, "{ "); i >= 0 {
		fields = strings.Fields(strings.Trim(query[i:], "{} "))
	}

	var docs []map[string]any
	for _, obj := range inputObjects(query) {
		f.created[coll]++
		doc := map[string]any{"_docID": fmt.Sprintf("bae-%s-%d", strings.ToLower(coll), f.created[coll])}
		for _, field := range fields {
			if field == "_docID" {
				continue
			}
			re := regexp.MustCompile(`\b` + field + `: ("(?:[^"\\]|\\.)*"|[^,}\s]+)`)
			if lm := re.FindStringSubmatch(obj); lm != nil {
				var v any
				if json.Unmarshal([]byte(lm[1]), &v) == nil {
					doc[field] = v
				}
			}
		}
		docs = append(docs, doc)
	}
	return docs
}

// inputObjects splits the top-level objects of "input: [...]" or
// "input: {...}", skipping braces inside string literals.
func inputObjects(query string) []string {
	start := strings.Index(query, "input: ")
	if start < 0 {
		return nil
	}
	s := query[start+len("input: "):]

	var (
		objs     []string
		depth    int
		inString bool
		escaped  bool
		begin    int
	)
	for i, c := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				begin = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 {
				objs = append(objs, s[begin:i+1])
			}
		case ']', ')':
			if depth == 0 {
				return objs
			}
		}
	}
	return objs
}
