package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry holds the chat clients used for extraction and the OCR providers
// used for vision passes. It is built from config and reloads on change.
type Registry struct {
	mu           sync.RWMutex
	llmClients   map[string]LLMClient
	ocrProviders map[string]OCRProvider
	llmConfigs   map[string]LLMProviderConfig
	ocrConfigs   map[string]OCRProviderConfig
	logger       *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		llmClients:   make(map[string]LLMClient),
		ocrProviders: make(map[string]OCRProvider),
		llmConfigs:   make(map[string]LLMProviderConfig),
		ocrConfigs:   make(map[string]OCRProviderConfig),
		logger:       slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterLLM registers an LLM client by name.
func (r *Registry) RegisterLLM(name string, client LLMClient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llmClients[name] = client
	r.logger.Info("registered LLM client", "name", name)
}

// UnregisterLLM removes an LLM client by name.
func (r *Registry) UnregisterLLM(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.llmClients, name)
	r.logger.Info("unregistered LLM client", "name", name)
}

// RegisterOCR registers an OCR provider by name.
func (r *Registry) RegisterOCR(name string, provider OCRProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocrProviders[name] = provider
	r.logger.Info("registered OCR provider", "name", name)
}

// UnregisterOCR removes an OCR provider by name.
func (r *Registry) UnregisterOCR(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ocrProviders, name)
	r.logger.Info("unregistered OCR provider", "name", name)
}

// GetLLM returns an LLM client by name.
func (r *Registry) GetLLM(name string) (LLMClient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	client, ok := r.llmClients[name]
	if !ok {
		return nil, fmt.Errorf("LLM client not found: %s", name)
	}
	return client, nil
}

// GetOCR returns an OCR provider by name.
func (r *Registry) GetOCR(name string) (OCRProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.ocrProviders[name]
	if !ok {
		return nil, fmt.Errorf("OCR provider not found: %s", name)
	}
	return provider, nil
}

// ListLLM returns all registered LLM client names, sorted.
func (r *Registry) ListLLM() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.llmClients))
	for name := range r.llmClients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListOCR returns all registered OCR provider names, sorted.
func (r *Registry) ListOCR() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ocrProviders))
	for name := range r.ocrProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FirstOCR returns the first registered provider among names, in order.
func (r *Registry) FirstOCR(names ...string) (OCRProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range names {
		if p, ok := r.ocrProviders[name]; ok {
			return p, nil
		}
	}
	return nil, fmt.Errorf("none of the OCR providers %v are registered", names)
}

// HasLLM checks if an LLM client is registered.
func (r *Registry) HasLLM(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llmClients[name]
	return ok
}

// HasOCR checks if an OCR provider is registered.
func (r *Registry) HasOCR(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ocrProviders[name]
	return ok
}

// LLMClients returns a map of all registered LLM clients.
func (r *Registry) LLMClients() map[string]LLMClient {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]LLMClient, len(r.llmClients))
	for name, client := range r.llmClients {
		result[name] = client
	}
	return result
}

// OCRProviders returns a map of all registered OCR providers.
func (r *Registry) OCRProviders() map[string]OCRProvider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make(map[string]OCRProvider, len(r.ocrProviders))
	for name, provider := range r.ocrProviders {
		result[name] = provider
	}
	return result
}

// RegistryConfig defines the providers to instantiate from config.
type RegistryConfig struct {
	// OCRProviders maps provider names to their config
	OCRProviders map[string]OCRProviderConfig

	// LLMProviders maps provider names to their config
	LLMProviders map[string]LLMProviderConfig
}

// OCRProviderConfig is an OCR provider entry with its API key resolved.
type OCRProviderConfig struct {
	Type      string  // "mistral-ocr" or "vision-llm"
	Model     string  // model name
	BaseURL   string  // API endpoint, provider default if empty
	APIKey    string  // resolved API key
	RateLimit float64 // requests per second
	Timeout   time.Duration
	Enabled   bool
}

// LLMProviderConfig is a chat provider entry with its API key resolved.
type LLMProviderConfig struct {
	Type      string  // "openai" (any chat-completions compatible endpoint)
	Model     string  // model name
	BaseURL   string  // API endpoint, provider default if empty
	APIKey    string  // resolved API key
	RateLimit float64 // requests per second
	Timeout   time.Duration
	Enabled   bool
}

// NewRegistryFromConfig creates a registry with providers based on configuration.
// Only enabled providers with valid API keys will be registered.
func NewRegistryFromConfig(cfg RegistryConfig) *Registry {
	r := NewRegistry()
	r.Reload(cfg)
	return r
}

// Reload updates the registry based on new configuration.
// Providers that are no longer configured will be unregistered.
// Providers with changed settings will be re-registered.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wantLLM := make(map[string]bool)
	wantOCR := make(map[string]bool)

	for name, provCfg := range cfg.LLMProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		wantLLM[name] = true

		old, hasExisting := r.llmConfigs[name]
		if hasExisting && old == provCfg {
			continue
		}
		client := createLLMClient(name, provCfg)
		if client == nil {
			r.logger.Warn("unknown LLM provider type", "name", name, "type", provCfg.Type)
			continue
		}
		r.llmClients[name] = client
		r.llmConfigs[name] = provCfg
		if hasExisting {
			r.logger.Info("updated LLM client", "name", name, "type", provCfg.Type)
		} else {
			r.logger.Info("registered LLM client", "name", name, "type", provCfg.Type)
		}
	}

	for name, provCfg := range cfg.OCRProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		wantOCR[name] = true

		old, hasExisting := r.ocrConfigs[name]
		if hasExisting && old == provCfg {
			continue
		}
		provider := createOCRProvider(name, provCfg)
		if provider == nil {
			r.logger.Warn("unknown OCR provider type", "name", name, "type", provCfg.Type)
			continue
		}
		r.ocrProviders[name] = provider
		r.ocrConfigs[name] = provCfg
		if hasExisting {
			r.logger.Info("updated OCR provider", "name", name, "type", provCfg.Type)
		} else {
			r.logger.Info("registered OCR provider", "name", name, "type", provCfg.Type)
		}
	}

	// Only config-managed entries are removed; manual registrations stay.
	for name := range r.llmConfigs {
		if !wantLLM[name] {
			delete(r.llmClients, name)
			delete(r.llmConfigs, name)
			r.logger.Info("unregistered LLM client", "name", name)
		}
	}
	for name := range r.ocrConfigs {
		if !wantOCR[name] {
			delete(r.ocrProviders, name)
			delete(r.ocrConfigs, name)
			r.logger.Info("unregistered OCR provider", "name", name)
		}
	}
}

// createLLMClient creates an LLM client based on provider type.
func createLLMClient(name string, cfg LLMProviderConfig) LLMClient {
	switch cfg.Type {
	case "openai", "openai-compatible":
		return NewOpenAIChatClient(OpenAIChatConfig{
			Name:      name,
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
		})
	default:
		return nil
	}
}

// createOCRProvider creates an OCR provider based on provider type.
func createOCRProvider(name string, cfg OCRProviderConfig) OCRProvider {
	switch cfg.Type {
	case MistralOCRName:
		return NewMistralOCRClient(MistralOCRConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
			Timeout:   cfg.Timeout,
		})
	case VisionChatOCRName:
		return NewVisionChatOCR(VisionChatOCRConfig{
			Name: name,
			Client: NewOpenAIChatClient(OpenAIChatConfig{
				Name:      name,
				APIKey:    cfg.APIKey,
				BaseURL:   cfg.BaseURL,
				Model:     cfg.Model,
				RateLimit: cfg.RateLimit,
				Timeout:   cfg.Timeout,
			}),
			Model:     cfg.Model,
			RateLimit: cfg.RateLimit,
		})
	default:
		return nil
	}
}
