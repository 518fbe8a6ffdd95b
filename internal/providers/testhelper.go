package providers

import (
	"os"
)

// TestConfig holds provider configurations loaded from environment variables.
// This allows tests to use the same configuration pattern as production.
type TestConfig struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	MistralAPIKey string
}

// LoadTestConfig loads provider API keys from environment variables.
// Returns a TestConfig with whatever keys are available.
func LoadTestConfig() TestConfig {
	return TestConfig{
		OpenAIAPIKey:  os.Getenv("RFPTRIAGE_OPENAI_API_KEY"),
		OpenAIBaseURL: os.Getenv("RFPTRIAGE_OPENAI_BASE_URL"),
		OpenAIModel:   os.Getenv("RFPTRIAGE_OPENAI_MODEL"),
		MistralAPIKey: os.Getenv("RFPTRIAGE_MISTRAL_API_KEY"),
	}
}

// HasOpenAI returns true if an OpenAI-compatible key is configured.
func (c TestConfig) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

// HasMistral returns true if Mistral API key is configured.
func (c TestConfig) HasMistral() bool {
	return c.MistralAPIKey != ""
}

// NewOpenAIChatClient creates a chat client from test config.
// Returns nil if not configured.
func (c TestConfig) NewOpenAIChatClient() *OpenAIChatClient {
	if !c.HasOpenAI() {
		return nil
	}
	return NewOpenAIChatClient(OpenAIChatConfig{
		APIKey:  c.OpenAIAPIKey,
		BaseURL: c.OpenAIBaseURL,
		Model:   c.OpenAIModel,
	})
}

// NewMistralOCRClient creates a Mistral OCR client from test config.
// Returns nil if not configured.
func (c TestConfig) NewMistralOCRClient() *MistralOCRClient {
	if !c.HasMistral() {
		return nil
	}
	return NewMistralOCRClient(MistralOCRConfig{
		APIKey: c.MistralAPIKey,
	})
}

// ToRegistryConfig converts test config to a RegistryConfig for the provider registry.
// Only includes providers that have API keys configured.
func (c TestConfig) ToRegistryConfig() RegistryConfig {
	cfg := RegistryConfig{
		OCRProviders: make(map[string]OCRProviderConfig),
		LLMProviders: make(map[string]LLMProviderConfig),
	}

	if c.HasOpenAI() {
		cfg.LLMProviders["openai"] = LLMProviderConfig{
			Type:      "openai",
			APIKey:    c.OpenAIAPIKey,
			BaseURL:   c.OpenAIBaseURL,
			Model:     c.OpenAIModel,
			RateLimit: 2,
			Enabled:   true,
		}
	}

	if c.HasMistral() {
		cfg.OCRProviders["mistral"] = OCRProviderConfig{
			Type:      MistralOCRName,
			APIKey:    c.MistralAPIKey,
			RateLimit: 6,
			Enabled:   true,
		}
	}

	return cfg
}
