package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/jackzampolin/rfptriage/internal/extract"
	"github.com/jackzampolin/rfptriage/internal/pdf"
	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/providers"
	"github.com/jackzampolin/rfptriage/internal/triage"
	"github.com/jackzampolin/rfptriage/internal/vision"
)

// EnvPrefix prefixes environment overrides, e.g. RFPTRIAGE_SERVER_PORT.
const EnvPrefix = "RFPTRIAGE"

// Manager handles loading and hot-reloading configuration.
type Manager struct {
	v *viper.Viper

	mu        sync.RWMutex
	config    *Config
	callbacks []func(*Config)
	logger    *slog.Logger
}

// NewManager creates a new config manager and loads initial config. An
// empty cfgFile searches ./config.yaml then ~/.rfptriage/config.yaml.
func NewManager(cfgFile string) (*Manager, error) {
	cm := &Manager{
		v:         viper.New(),
		callbacks: make([]func(*Config), 0),
		logger:    slog.Default(),
	}

	if err := cm.initViper(cfgFile); err != nil {
		return nil, err
	}

	cfg, err := cm.load()
	if err != nil {
		return nil, err
	}
	cm.config = cfg

	return cm, nil
}

// LoadDotEnv loads KEY=value pairs from .env files into the process
// environment. Missing files are ignored and existing variables win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// initViper sets up viper with defaults and config file.
func (cm *Manager) initViper(cfgFile string) error {
	v := cm.v
	defaults := DefaultConfig()

	// Provider maps are replaced wholesale by the file, so they are set as
	// one value. Every other section is set per leaf so env overrides work.
	v.SetDefault("ocr_providers", defaults.OCRProviders)
	v.SetDefault("llm_providers", defaults.LLMProviders)
	for _, section := range []struct {
		key string
		val any
	}{
		{"log_level", defaults.LogLevel},
		{"server", defaults.Server},
		{"defaults", defaults.Defaults},
		{"triage", defaults.Triage},
		{"vision", defaults.Vision},
		{"extract", defaults.Extract},
		{"pipeline", defaults.Pipeline},
		{"defra", defaults.Defra},
		{"redis", defaults.Redis},
	} {
		if err := setLeafDefaults(v, section.key, section.val); err != nil {
			return err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.rfptriage")
	}

	// The config file is optional.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	return nil
}

// setLeafDefaults registers every scalar or list under key as its own
// default. Nested structs become dotted keys.
func setLeafDefaults(v *viper.Viper, key string, val any) error {
	data, err := yaml.Marshal(val)
	if err != nil {
		return fmt.Errorf("marshal default %s: %w", key, err)
	}
	var tree any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal default %s: %w", key, err)
	}
	walkDefaults(v, key, tree)
	return nil
}

func walkDefaults(v *viper.Viper, key string, node any) {
	m, ok := node.(map[any]any)
	if !ok || len(m) == 0 {
		v.SetDefault(key, node)
		return
	}
	for k, child := range m {
		walkDefaults(v, key+"."+fmt.Sprint(k), child)
	}
}

// load parses the current viper state into a Config struct.
func (cm *Manager) load() (*Config, error) {
	var cfg Config
	if err := cm.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ConfigFile returns the file in use, or "" when running on defaults.
func (cm *Manager) ConfigFile() string {
	return cm.v.ConfigFileUsed()
}

// SetLogger sets the logger used for reload messages.
func (cm *Manager) SetLogger(logger *slog.Logger) {
	if logger == nil {
		return
	}
	cm.mu.Lock()
	cm.logger = logger
	cm.mu.Unlock()
}

// Get returns the current configuration (thread-safe).
func (cm *Manager) Get() *Config {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.config
}

// OnChange registers a callback for config changes.
func (cm *Manager) OnChange(fn func(*Config)) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks = append(cm.callbacks, fn)
}

// WatchConfig enables hot-reloading of configuration.
func (cm *Manager) WatchConfig() {
	cm.v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := cm.load()
		if err != nil {
			cm.mu.RLock()
			cm.logger.Warn("config reload failed", "file", e.Name, "error", err)
			cm.mu.RUnlock()
			return
		}

		cm.mu.Lock()
		cm.config = cfg
		callbacks := make([]func(*Config), len(cm.callbacks))
		copy(callbacks, cm.callbacks)
		logger := cm.logger
		cm.mu.Unlock()

		logger.Info("config reloaded", "file", e.Name)
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	cm.v.WatchConfig()
}

var envRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveEnvVars expands ${ENV_VAR} references in a string.
func ResolveEnvVars(value string) string {
	if value == "" {
		return value
	}
	return envRef.ReplaceAllStringFunc(value, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// ToProviderRegistryConfig converts the config to a format suitable for providers.Registry.
// It resolves all ${ENV_VAR} references in API keys.
func (c *Config) ToProviderRegistryConfig() providers.RegistryConfig {
	cfg := providers.RegistryConfig{
		OCRProviders: make(map[string]providers.OCRProviderConfig),
		LLMProviders: make(map[string]providers.LLMProviderConfig),
	}

	for name, ocr := range c.OCRProviders {
		cfg.OCRProviders[name] = providers.OCRProviderConfig{
			Type:      ocr.Type,
			Model:     ocr.Model,
			BaseURL:   ocr.BaseURL,
			APIKey:    ResolveEnvVars(ocr.APIKey),
			RateLimit: ocr.RateLimit,
			Timeout:   seconds(ocr.TimeoutSeconds),
			Enabled:   ocr.Enabled,
		}
	}

	for name, llm := range c.LLMProviders {
		cfg.LLMProviders[name] = providers.LLMProviderConfig{
			Type:      llm.Type,
			Model:     llm.Model,
			BaseURL:   llm.BaseURL,
			APIKey:    ResolveEnvVars(llm.APIKey),
			RateLimit: llm.RateLimit,
			Timeout:   seconds(llm.TimeoutSeconds),
			Enabled:   llm.Enabled,
		}
	}

	return cfg
}

// Banks builds the configured keyword banks. An empty banks section uses
// the built-in vocabulary.
func (c *Config) Banks() (*triage.Banks, error) {
	b := c.Triage.Banks
	if len(b.Strong)+len(b.Weak)+len(b.Support)+len(b.Noise) == 0 {
		return triage.DefaultBanks(), nil
	}
	banks, err := triage.NewBanks(b)
	if err != nil {
		return nil, fmt.Errorf("triage banks: %w", err)
	}
	return banks, nil
}

// Classifier builds the shared classifier from the triage section.
func (c *Config) Classifier() (*triage.Classifier, error) {
	banks, err := c.Banks()
	if err != nil {
		return nil, err
	}
	return triage.NewClassifier(banks, c.Triage.Thresholds, c.Triage.ForcePhrases), nil
}

// PDFConfig configures the external PDF tools.
func (c *Config) PDFConfig(logger *slog.Logger) pdf.Config {
	return pdf.Config{
		PdftotextPath: c.Pipeline.PdftotextPath,
		PdftoppmPath:  c.Pipeline.PdftoppmPath,
		DPI:           c.Vision.DPI,
		CallTimeout:   seconds(c.Pipeline.ToolTimeoutSeconds),
		Logger:        logger,
	}
}

// VisionConfig configures the drawing-page dispatcher.
func (c *Config) VisionConfig(logger *slog.Logger) vision.Config {
	return vision.Config{
		Workers:     c.Vision.Workers,
		CallTimeout: seconds(c.Vision.TimeoutSeconds),
		RateLimit:   c.Vision.RateLimit,
		Logger:      logger,
	}
}

// ExtractConfig configures batch extraction.
func (c *Config) ExtractConfig(logger *slog.Logger) extract.Config {
	return extract.Config{
		Limits:      c.Extract.Limits,
		Model:       c.Extract.Model,
		MaxTokens:   c.Extract.MaxTokens,
		Temperature: c.Extract.Temperature,
		CallTimeout: seconds(c.Extract.TimeoutSeconds),
		Logger:      logger,
	}
}

// PipelineConfig configures the orchestrator.
func (c *Config) PipelineConfig(logger *slog.Logger) pipeline.Config {
	return pipeline.Config{
		HeartbeatInterval: seconds(c.Pipeline.HeartbeatSeconds),
		TextWorkers:       c.Pipeline.TextWorkers,
		Logger:            logger,
	}
}

// RedisTTL is how long indexed runs stay searchable.
func (c *Config) RedisTTL() time.Duration {
	return time.Duration(c.Redis.TTLHours) * time.Hour
}

// MaxUploadBytes is the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

// ParseLevel maps a log_level string to a slog level. Unknown values are info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WriteDefault writes the default configuration to the specified path.
func WriteDefault(path string) error {
	cfg := DefaultConfig()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	header := []byte(`# rfptriage configuration
# API keys use ${ENV_VAR} syntax to reference environment variables.
# Set them in your shell or a .env file: MISTRAL_API_KEY=xxx OPENROUTER_API_KEY=xxx
# Any key can be overridden with RFPTRIAGE_<SECTION>_<KEY>, e.g. RFPTRIAGE_SERVER_PORT=9090

`)
	return os.WriteFile(path, append(header, data...), 0o644)
}
