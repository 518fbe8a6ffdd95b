package defra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"
)

var pageNumRE = regexp.MustCompile(`page_num: (\d+)`)

// fakeDefra answers create/update/delete mutations and records each query.
type fakeDefra struct {
	mu      sync.Mutex
	queries []string
	nextID  int
	failOn  string
}

func (f *fakeDefra) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GQLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode: %v", err)
		}

		f.mu.Lock()
		defer f.mu.Unlock()
		f.queries = append(f.queries, req.Query)

		if f.failOn != "" && strings.Contains(req.Query, f.failOn) {
			w.Write([]byte(`{"errors": [{"message": "boom"}]}`))
			return
		}

		switch {
		case strings.HasPrefix(req.Query, "mutation { create_"):
			nums := pageNumRE.FindAllStringSubmatch(req.Query, -1)
			count := strings.Count(req.Query, "}, {") + 1
			var docs []string
			// Answer in reverse order to exercise result matching.
			for i := count - 1; i >= 0; i-- {
				f.nextID++
				doc := fmt.Sprintf(`{"_docID": "bae-%d"`, f.nextID)
				if i < len(nums) && strings.Contains(req.Query, "_docID page_num }") {
					doc += `, "page_num": ` + nums[i][1]
				}
				docs = append(docs, doc+"}")
			}
			coll := strings.SplitN(strings.TrimPrefix(req.Query, "mutation { "), "(", 2)[0]
			fmt.Fprintf(w, `{"data": {%q: [%s]}}`, coll, strings.Join(docs, ","))
		default:
			w.Write([]byte(`{"data": {"ok": [{"_docID": "bae-x"}]}}`))
		}
	}
}

func (f *fakeDefra) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if strings.HasPrefix(q, prefix) {
			n++
		}
	}
	return n
}

func newTestSink(t *testing.T, fake *fakeDefra, cfg SinkConfig) *Sink {
	t.Helper()
	server := httptest.NewServer(fake.handler(t))
	t.Cleanup(server.Close)

	cfg.Client = NewClient(server.URL)
	sink := NewSink(cfg)
	sink.Start(context.Background())
	t.Cleanup(sink.Stop)
	return sink
}

func pageOps(n int) []WriteOp {
	ops := make([]WriteOp, n)
	for i := range ops {
		ops[i] = WriteOp{
			Collection: "RfpPage",
			Op:         OpCreate,
			Document:   map[string]any{"page_num": i + 1, "content": "x"},
			MatchField: "page_num",
		}
	}
	return ops
}

func TestSink_SendSync_Create(t *testing.T) {
	fake := &fakeDefra{}
	sink := newTestSink(t, fake, SinkConfig{FlushInterval: time.Hour})

	res, err := sink.SendSync(context.Background(), WriteOp{
		Collection: "RfpAnalysis",
		Op:         OpCreate,
		Document:   map[string]any{"document": "bid.pdf"},
	})
	if err != nil {
		t.Fatalf("SendSync() error = %v", err)
	}
	if res.DocID != "bae-1" {
		t.Errorf("DocID = %q, want bae-1", res.DocID)
	}
}

func TestSink_SendMany_BatchesAndMatches(t *testing.T) {
	fake := &fakeDefra{}
	sink := newTestSink(t, fake, SinkConfig{FlushInterval: time.Hour})

	results, err := sink.SendMany(context.Background(), pageOps(4))
	if err != nil {
		t.Fatalf("SendMany() error = %v", err)
	}
	if got := fake.count("mutation { create_RfpPage"); got != 1 {
		t.Errorf("create mutations = %d, want 1 batched", got)
	}
	// The fake answers in reverse order, so page 1 got the last ID.
	want := []string{"bae-4", "bae-3", "bae-2", "bae-1"}
	for i, r := range results {
		if r.Err != nil || r.DocID != want[i] {
			t.Errorf("results[%d] = %+v, want %s", i, r, want[i])
		}
	}
}

func TestSink_CreatesWithoutMatchFieldGoOneByOne(t *testing.T) {
	fake := &fakeDefra{}
	sink := newTestSink(t, fake, SinkConfig{FlushInterval: time.Hour})

	ops := pageOps(3)
	for i := range ops {
		ops[i].MatchField = ""
	}
	results, err := sink.SendMany(context.Background(), ops)
	if err != nil {
		t.Fatalf("SendMany() error = %v", err)
	}
	if got := fake.count("mutation { create_RfpPage"); got != 3 {
		t.Errorf("create mutations = %d, want 3", got)
	}
	for i, r := range results {
		if r.DocID == "" {
			t.Errorf("results[%d] has no DocID", i)
		}
	}
}

func TestSink_BatchFailureReachesEveryOp(t *testing.T) {
	fake := &fakeDefra{failOn: "create_RfpPage"}
	sink := newTestSink(t, fake, SinkConfig{FlushInterval: time.Hour})

	results, err := sink.SendMany(context.Background(), pageOps(3))
	if err != nil {
		t.Fatalf("SendMany() error = %v", err)
	}
	for i, r := range results {
		if r.Err == nil {
			t.Errorf("results[%d] should carry the batch error", i)
		}
	}
}

func TestSink_BatchBySize(t *testing.T) {
	fake := &fakeDefra{}
	sink := newTestSink(t, fake, SinkConfig{BatchSize: 2, FlushInterval: time.Hour})

	for _, op := range pageOps(2) {
		sink.Send(op)
	}
	deadline := time.Now().Add(2 * time.Second)
	for fake.count("mutation") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fake.count("mutation { create_RfpPage") != 1 {
		t.Error("expected a flush once BatchSize ops were queued")
	}
}

func TestSink_BatchByTime(t *testing.T) {
	fake := &fakeDefra{}
	sink := newTestSink(t, fake, SinkConfig{FlushInterval: 20 * time.Millisecond})

	sink.Send(pageOps(1)[0])
	deadline := time.Now().Add(2 * time.Second)
	for fake.count("mutation") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if fake.count("mutation") == 0 {
		t.Error("expected a flush after FlushInterval")
	}
}

func TestSink_UpdateAndDelete(t *testing.T) {
	fake := &fakeDefra{}
	sink := newTestSink(t, fake, SinkConfig{FlushInterval: time.Hour})

	results, err := sink.SendMany(context.Background(), []WriteOp{
		{Collection: "RfpAnalysis", Op: OpUpdate, DocID: "bae-1", Document: map[string]any{"spec_count": 3}},
		{Collection: "RfpAnalysis", Op: OpDelete, DocID: "bae-2"},
	})
	if err != nil {
		t.Fatalf("SendMany() error = %v", err)
	}
	if results[0].DocID != "bae-1" || results[1].DocID != "bae-2" {
		t.Errorf("results = %+v", results)
	}
	if fake.count("mutation { update_RfpAnalysis") != 1 || fake.count("mutation { delete_RfpAnalysis") != 1 {
		t.Errorf("queries = %v", fake.queries)
	}
}

func TestSink_GracefulShutdown(t *testing.T) {
	fake := &fakeDefra{}
	server := httptest.NewServer(fake.handler(t))
	defer server.Close()

	sink := NewSink(SinkConfig{Client: NewClient(server.URL), FlushInterval: time.Hour})
	sink.Start(context.Background())
	for _, op := range pageOps(3) {
		sink.Send(op)
	}
	sink.Stop()

	if fake.count("mutation { create_RfpPage") != 1 {
		t.Error("Stop() should flush pending ops")
	}
	if _, err := sink.SendSync(context.Background(), pageOps(1)[0]); err == nil {
		t.Error("SendSync() after Stop() should fail")
	}
	sink.Stop()
}

func TestSink_ConcurrentSends(t *testing.T) {
	fake := &fakeDefra{}
	sink := newTestSink(t, fake, SinkConfig{BatchSize: 5, FlushInterval: 10 * time.Millisecond})

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sink.SendSync(context.Background(), WriteOp{
				Collection: "RfpAnalysis",
				Op:         OpCreate,
				Document:   map[string]any{"document": fmt.Sprintf("doc-%d.pdf", i)},
			})
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("SendSync() error = %v", err)
	}
}

func TestBatchMatchField(t *testing.T) {
	ops := pageOps(3)
	if f, ok := batchMatchField(ops); !ok || f != "page_num" {
		t.Errorf("batchMatchField() = %q, %v", f, ok)
	}
	dup := pageOps(2)
	dup[1].Document["page_num"] = 1
	if _, ok := batchMatchField(dup); ok {
		t.Error("duplicate match values must not batch")
	}
	if _, ok := batchMatchField(pageOps(1)); ok {
		t.Error("a single op does not need batching")
	}
}
