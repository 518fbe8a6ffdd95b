package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestMistralOCRClient_ProcessImage(t *testing.T) {
	t.Run("successful OCR with tables", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/ocr" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != http.MethodPost {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
				t.Errorf("unexpected authorization: %s", auth)
			}

			var req mistralOCRRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("failed to decode request: %v", err)
			}
			if req.TableFormat != TableFormatHTML {
				t.Errorf("table_format = %q, want html", req.TableFormat)
			}
			if !strings.HasPrefix(req.Document.ImageURL, "data:image/png;base64,") {
				t.Errorf("unexpected image url prefix: %.30s", req.Document.ImageURL)
			}

			resp := mistralOCRResponse{
				Model: "mistral-ocr-latest",
				Pages: []mistralOCRPage{
					{
						Markdown: "# Display Schedule\n\n[tbl-0.html](tbl-0.html)",
						Tables: []mistralOCRTable{
							{ID: "tbl-0.html", Content: "<table><tr><th>Tag</th><th>Size</th></tr><tr><td>D1</td><td>10x20</td></tr></table>"},
							{ID: "tbl-1.html", Content: "  "},
						},
						Dimensions: mistralPageDimensions{Width: 1700, Height: 2200, DPI: 200},
					},
				},
				UsageInfo: &mistralUsageInfo{PagesProcessed: 1},
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		client := NewMistralOCRClient(MistralOCRConfig{APIKey: "test-key", BaseURL: server.URL})
		result, err := client.ProcessImage(context.Background(), []byte("fake png"), 4)
		if err != nil {
			t.Fatalf("ProcessImage() error = %v", err)
		}
		if !result.Success {
			t.Error("expected Success = true")
		}
		if !strings.Contains(result.Text, "Display Schedule") {
			t.Errorf("unexpected text: %q", result.Text)
		}
		if len(result.Tables) != 1 || !strings.Contains(result.Tables[0], "<td>D1</td>") {
			t.Errorf("unexpected tables: %v", result.Tables)
		}
		if result.TableFormat != TableFormatHTML {
			t.Errorf("TableFormat = %q", result.TableFormat)
		}
		if result.Metadata["page_num"] != 4 {
			t.Errorf("page_num metadata = %v", result.Metadata["page_num"])
		}
		if result.CostUSD != MistralOCRCostPerPage {
			t.Errorf("CostUSD = %f", result.CostUSD)
		}
	})

	t.Run("client error is not retried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"bad image","type":"invalid_request"}}`))
		}))
		defer server.Close()

		client := NewMistralOCRClient(MistralOCRConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			RetryDelay: time.Millisecond,
		})
		result, err := client.ProcessImage(context.Background(), []byte("x"), 1)
		if err == nil {
			t.Fatal("expected error")
		}
		var se *StatusError
		if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
			t.Errorf("error = %v, want StatusError 400", err)
		}
		if !strings.Contains(err.Error(), "bad image") {
			t.Errorf("error should carry API message: %v", err)
		}
		if calls.Load() != 1 {
			t.Errorf("calls = %d, want 1", calls.Load())
		}
		if result.Success {
			t.Error("expected Success = false")
		}
	})

	t.Run("server error retried until success", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) < 3 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "ok"}}})
		}))
		defer server.Close()

		client := NewMistralOCRClient(MistralOCRConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
		})
		result, err := client.ProcessImage(context.Background(), []byte("x"), 1)
		if err != nil {
			t.Fatalf("ProcessImage() error = %v", err)
		}
		if result.RetryCount != 2 {
			t.Errorf("RetryCount = %d, want 2", result.RetryCount)
		}
	})

	t.Run("rate limit then success", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Retry-After", "0.01")
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			json.NewEncoder(w).Encode(mistralOCRResponse{Pages: []mistralOCRPage{{Markdown: "ok"}}})
		}))
		defer server.Close()

		client := NewMistralOCRClient(MistralOCRConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			RetryDelay: time.Millisecond,
		})
		if _, err := client.ProcessImage(context.Background(), []byte("x"), 1); err != nil {
			t.Fatalf("ProcessImage() error = %v", err)
		}
		if calls.Load() != 2 {
			t.Errorf("calls = %d, want 2", calls.Load())
		}
	})

	t.Run("empty pages", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"model":"m","pages":[]}`))
		}))
		defer server.Close()

		client := NewMistralOCRClient(MistralOCRConfig{
			APIKey:     "test-key",
			BaseURL:    server.URL,
			MaxRetries: 2,
			RetryDelay: time.Millisecond,
		})
		_, err := client.ProcessImage(context.Background(), []byte("x"), 1)
		if !errors.Is(err, ErrEmptyResponse) {
			t.Errorf("error = %v, want ErrEmptyResponse", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer server.Close()

		client := NewMistralOCRClient(MistralOCRConfig{APIKey: "test-key", BaseURL: server.URL})
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := client.ProcessImage(ctx, []byte("x"), 1); err == nil {
			t.Error("expected error from cancelled context")
		}
	})
}

func TestMistralOCRClient_Defaults(t *testing.T) {
	client := NewMistralOCRClient(MistralOCRConfig{APIKey: "k"})
	if client.Name() != MistralOCRName {
		t.Errorf("Name() = %q", client.Name())
	}
	if client.RequestsPerSecond() != 6.0 {
		t.Errorf("RequestsPerSecond() = %f", client.RequestsPerSecond())
	}
	if client.MaxRetries() != 3 {
		t.Errorf("MaxRetries() = %d", client.MaxRetries())
	}
	if client.RetryDelayBase() != 2*time.Second {
		t.Errorf("RetryDelayBase() = %v", client.RetryDelayBase())
	}
	if client.baseURL != MistralOCRBaseURL || client.model != MistralOCRModel {
		t.Errorf("unexpected defaults: %s %s", client.baseURL, client.model)
	}
}

func TestMistralOCRClient_Integration(t *testing.T) {
	cfg := LoadTestConfig()
	if !cfg.HasMistral() {
		t.Skip("RFPTRIAGE_MISTRAL_API_KEY not set")
	}
	png := onePixelPNG()
	client := cfg.NewMistralOCRClient()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	if _, err := client.ProcessImage(ctx, png, 1); err != nil {
		t.Fatalf("ProcessImage() error = %v", err)
	}
}
