package config

import (
	"time"

	"github.com/jackzampolin/rfptriage/internal/extract"
	"github.com/jackzampolin/rfptriage/internal/triage"
)

// Config holds rfptriage configuration.
// Stored at: ./config.yaml or ~/.rfptriage/config.yaml
type Config struct {
	LogLevel     string                    `mapstructure:"log_level" yaml:"log_level"`
	Server       ServerCfg                 `mapstructure:"server" yaml:"server"`
	OCRProviders map[string]OCRProviderCfg `mapstructure:"ocr_providers" yaml:"ocr_providers"`
	LLMProviders map[string]LLMProviderCfg `mapstructure:"llm_providers" yaml:"llm_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
	Triage       TriageCfg                 `mapstructure:"triage" yaml:"triage"`
	Vision       VisionCfg                 `mapstructure:"vision" yaml:"vision"`
	Extract      ExtractCfg                `mapstructure:"extract" yaml:"extract"`
	Pipeline     PipelineCfg               `mapstructure:"pipeline" yaml:"pipeline"`
	Defra        DefraConfig               `mapstructure:"defra" yaml:"defra"`
	Redis        RedisCfg                  `mapstructure:"redis" yaml:"redis"`
}

// ServerCfg configures the HTTP server.
type ServerCfg struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        string `mapstructure:"port" yaml:"port"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
}

// OCRProviderCfg configures a vision provider.
type OCRProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type"`             // "mistral-ocr", "vision-llm"
	Model          string  `mapstructure:"model" yaml:"model"`           // model name
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`     // provider default if empty
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`       // supports ${ENV_VAR} syntax
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // requests per second
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// LLMProviderCfg configures an OpenAI-compatible chat provider.
type LLMProviderCfg struct {
	Type           string  `mapstructure:"type" yaml:"type"` // "openai"
	Model          string  `mapstructure:"model" yaml:"model"`
	BaseURL        string  `mapstructure:"base_url" yaml:"base_url"`
	APIKey         string  `mapstructure:"api_key" yaml:"api_key"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	Enabled        bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg selects providers by name.
type DefaultsCfg struct {
	OCRProviders []string `mapstructure:"ocr_providers" yaml:"ocr_providers"` // first registered wins
	LLMProvider  string   `mapstructure:"llm_provider" yaml:"llm_provider"`
}

// TriageCfg holds the classifier decision table and keyword banks.
type TriageCfg struct {
	Thresholds   triage.Thresholds `mapstructure:"thresholds" yaml:"thresholds"`
	Banks        triage.BankTerms  `mapstructure:"banks" yaml:"banks"`
	ForcePhrases []string          `mapstructure:"force_phrases" yaml:"force_phrases"`
}

// VisionCfg configures the drawing-page dispatcher.
type VisionCfg struct {
	Workers        int     `mapstructure:"workers" yaml:"workers"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
	RateLimit      float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // provider value if zero
	DPI            int     `mapstructure:"dpi" yaml:"dpi"`
}

// ExtractCfg configures batch extraction.
type ExtractCfg struct {
	Limits         extract.Limits `mapstructure:"limits" yaml:"limits"`
	Model          string         `mapstructure:"model" yaml:"model"` // provider model if empty
	MaxTokens      int            `mapstructure:"max_tokens" yaml:"max_tokens"`
	Temperature    float64        `mapstructure:"temperature" yaml:"temperature"`
	TimeoutSeconds int            `mapstructure:"timeout_seconds" yaml:"timeout_seconds"`
}

// PipelineCfg configures the orchestrator and external PDF tools.
type PipelineCfg struct {
	HeartbeatSeconds   int    `mapstructure:"heartbeat_seconds" yaml:"heartbeat_seconds"`
	TextWorkers        int    `mapstructure:"text_workers" yaml:"text_workers"`
	ToolTimeoutSeconds int    `mapstructure:"tool_timeout_seconds" yaml:"tool_timeout_seconds"`
	PdftotextPath      string `mapstructure:"pdftotext_path" yaml:"pdftotext_path"`
	PdftoppmPath       string `mapstructure:"pdftoppm_path" yaml:"pdftoppm_path"`
}

// DefraConfig holds DefraDB container configuration.
type DefraConfig struct {
	// URL points at an existing DefraDB; when set no container is managed.
	URL           string `mapstructure:"url" yaml:"url"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Image         string `mapstructure:"image" yaml:"image"`
	Port          string `mapstructure:"port" yaml:"port"`
	BatchSize     int    `mapstructure:"batch_size" yaml:"batch_size"`
}

// RedisCfg configures the search workspace.
type RedisCfg struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"` // supports ${ENV_VAR} syntax
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
	TTLHours int    `mapstructure:"ttl_hours" yaml:"ttl_hours"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerCfg{
			Host:        "127.0.0.1",
			Port:        "8080",
			MaxUploadMB: 500,
		},
		OCRProviders: map[string]OCRProviderCfg{
			"mistral": {
				Type:           "mistral-ocr",
				Model:          "mistral-ocr-latest",
				APIKey:         "${MISTRAL_API_KEY}",
				RateLimit:      6.0,
				TimeoutSeconds: 120,
				Enabled:        true,
			},
			"glm": {
				Type:           "vision-llm",
				Model:          "z-ai/glm-4.6v",
				BaseURL:        "https://openrouter.ai/api/v1",
				APIKey:         "${OPENROUTER_API_KEY}",
				RateLimit:      2.0,
				TimeoutSeconds: 120,
				Enabled:        false,
			},
		},
		LLMProviders: map[string]LLMProviderCfg{
			"openrouter": {
				Type:           "openai",
				Model:          "anthropic/claude-sonnet-4",
				BaseURL:        "https://openrouter.ai/api/v1",
				APIKey:         "${OPENROUTER_API_KEY}",
				RateLimit:      2.0,
				TimeoutSeconds: 180,
				Enabled:        true,
			},
		},
		Defaults: DefaultsCfg{
			OCRProviders: []string{"mistral", "glm"},
			LLMProvider:  "openrouter",
		},
		Triage: TriageCfg{
			Thresholds:   triage.DefaultThresholds(),
			Banks:        triage.DefaultBankTerms(),
			ForcePhrases: triage.DefaultForcePhrases(),
		},
		Vision: VisionCfg{
			Workers:        2,
			TimeoutSeconds: 120,
			DPI:            150,
		},
		Extract: ExtractCfg{
			Limits:         extract.DefaultLimits(),
			MaxTokens:      extract.DefaultMaxTokens,
			Temperature:    extract.DefaultTemperature,
			TimeoutSeconds: 180,
		},
		Pipeline: PipelineCfg{
			HeartbeatSeconds:   15,
			TextWorkers:        4,
			ToolTimeoutSeconds: 90,
			PdftotextPath:      "pdftotext",
			PdftoppmPath:       "pdftoppm",
		},
		Defra: DefraConfig{
			ContainerName: "rfptriage-defra",
			Image:         "sourcenetwork/defradb:latest",
			Port:          "9181",
			BatchSize:     100,
		},
		Redis: RedisCfg{
			Enabled:  false,
			Addr:     "localhost:6379",
			Prefix:   "rfptriage:",
			TTLHours: 168,
		},
	}
}

// GetOCRProvider returns an OCR provider config by name.
func (c *Config) GetOCRProvider(name string) (OCRProviderCfg, bool) {
	cfg, ok := c.OCRProviders[name]
	return cfg, ok
}

// GetLLMProvider returns an LLM provider config by name.
func (c *Config) GetLLMProvider(name string) (LLMProviderCfg, bool) {
	cfg, ok := c.LLMProviders[name]
	return cfg, ok
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
