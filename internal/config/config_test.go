package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackzampolin/rfptriage/internal/triage"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.OCRProviders["mistral"].APIKey != "${MISTRAL_API_KEY}" {
		t.Error("expected mistral API key placeholder")
	}
	if cfg.Triage.Thresholds.RelevantMin != 50 || cfg.Triage.Thresholds.MaxSelected != 100 {
		t.Errorf("thresholds = %+v", cfg.Triage.Thresholds)
	}
	if cfg.MaxUploadBytes() != 500<<20 {
		t.Errorf("MaxUploadBytes() = %d", cfg.MaxUploadBytes())
	}
	if _, err := cfg.Classifier(); err != nil {
		t.Errorf("Classifier() error = %v", err)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret123")

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"resolves environment variable", "${TEST_API_KEY}", "secret123"},
		{"returns empty for missing env var", "${DEFINITELY_NOT_SET_12345}", ""},
		{"leaves literal values unchanged", "literal-value", "literal-value"},
		{"embedded reference", "Bearer ${TEST_API_KEY}", "Bearer secret123"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveEnvVars(tt.in); got != tt.want {
				t.Errorf("ResolveEnvVars(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestToProviderRegistryConfig(t *testing.T) {
	t.Setenv("TEST_MISTRAL_KEY", "m-key")
	cfg := &Config{
		OCRProviders: map[string]OCRProviderCfg{
			"mistral": {Type: "mistral-ocr", APIKey: "${TEST_MISTRAL_KEY}", TimeoutSeconds: 30, Enabled: true},
		},
		LLMProviders: map[string]LLMProviderCfg{
			"local": {Type: "openai", BaseURL: "http://localhost:8000/v1", APIKey: "direct", Enabled: true},
		},
	}

	rc := cfg.ToProviderRegistryConfig()
	if got := rc.OCRProviders["mistral"]; got.APIKey != "m-key" || got.Timeout != 30*time.Second {
		t.Errorf("mistral = %+v", got)
	}
	if got := rc.LLMProviders["local"]; got.APIKey != "direct" || got.BaseURL != "http://localhost:8000/v1" {
		t.Errorf("local = %+v", got)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		path := writeConfig(t, `
log_level: debug
server:
  port: "9090"
triage:
  thresholds:
    relevant_min: 60
`)
		mgr, err := NewManager(path)
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}

		cfg := mgr.Get()
		if cfg.LogLevel != "debug" || cfg.Server.Port != "9090" {
			t.Errorf("cfg = %+v", cfg.Server)
		}
		if cfg.Triage.Thresholds.RelevantMin != 60 {
			t.Errorf("RelevantMin = %d, want 60", cfg.Triage.Thresholds.RelevantMin)
		}
		// Keys the file does not mention keep their defaults.
		if cfg.Triage.Thresholds.MaxSelected != 100 || cfg.Server.MaxUploadMB != 500 {
			t.Errorf("defaults lost: %+v %+v", cfg.Triage.Thresholds, cfg.Server)
		}
		if len(cfg.Triage.Banks.Strong) == 0 {
			t.Error("default strong bank lost")
		}
		if mgr.ConfigFile() != path {
			t.Errorf("ConfigFile() = %s, want %s", mgr.ConfigFile(), path)
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		t.Setenv("RFPTRIAGE_SERVER_PORT", "7070")
		t.Setenv("RFPTRIAGE_REDIS_ENABLED", "true")
		mgr, err := NewManager(writeConfig(t, "server:\n  port: \"9090\"\n"))
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		cfg := mgr.Get()
		if cfg.Server.Port != "7070" || !cfg.Redis.Enabled {
			t.Errorf("server.port = %s redis.enabled = %v", cfg.Server.Port, cfg.Redis.Enabled)
		}
	})

	t.Run("provider map replaced by file", func(t *testing.T) {
		mgr, err := NewManager(writeConfig(t, `
llm_providers:
  local:
    type: openai
    base_url: http://localhost:8000/v1
    api_key: x
    enabled: true
`))
		if err != nil {
			t.Fatalf("NewManager() error = %v", err)
		}
		cfg := mgr.Get()
		if _, ok := cfg.GetLLMProvider("openrouter"); ok {
			t.Error("default provider should be replaced")
		}
		if p, ok := cfg.GetLLMProvider("local"); !ok || p.BaseURL != "http://localhost:8000/v1" {
			t.Errorf("local = %+v, %v", p, ok)
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		if _, err := NewManager(writeConfig(t, "server: [unclosed")); err == nil {
			t.Error("expected error for malformed config")
		}
	})
}

func TestConfigBanks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Triage.Banks = triage.BankTerms{}
	if b, err := cfg.Banks(); err != nil || b == nil {
		t.Errorf("empty banks should use defaults: %v", err)
	}

	cfg.Triage.Banks = triage.BankTerms{Strong: []string{"led wall"}, Weak: []string{"LED Wall"}}
	if _, err := cfg.Banks(); err == nil {
		t.Error("a term in two banks should be rejected")
	}
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log_level: info\n"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 3 {
		t.Errorf("expected 3 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "log_level: info\n"))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				_ = mgr.Get().Triage.Thresholds.RelevantMin
			}
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	path := writeConfig(t, "triage:\n  thresholds:\n    max_selected: 40\n")
	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	mgr.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if got := mgr.Get().Triage.Thresholds.MaxSelected; got != 40 {
		t.Fatalf("initial MaxSelected = %d, want 40", got)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Int64
	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(int64(cfg.Triage.Thresholds.MaxSelected))
	})

	mgr.WatchConfig()
	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("triage:\n  thresholds:\n    max_selected: 25\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && lastValue.Load() != 25 {
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Triage.Thresholds.MaxSelected; got != 25 {
		t.Errorf("config not updated: MaxSelected = %d, want 25", got)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("RFPTRIAGE_TEST_DOTENV=from-file\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("RFPTRIAGE_TEST_DOTENV") })

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), path); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("RFPTRIAGE_TEST_DOTENV"); got != "from-file" {
		t.Errorf("RFPTRIAGE_TEST_DOTENV = %q", got)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault() error = %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	cfg := mgr.Get()
	if cfg.Defaults.LLMProvider != "openrouter" || cfg.Extract.Limits.MaxBatchPages != 8 {
		t.Errorf("round-tripped config = %+v", cfg.Defaults)
	}
	if _, err := cfg.Classifier(); err != nil {
		t.Errorf("Classifier() from written file error = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
