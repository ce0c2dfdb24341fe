package engine

import (
	"fmt"
	"strings"
)

// Backend names accepted by Detect.
const (
	BackendOllama     = "ollama"
	BackendOpenRouter = "openrouter"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	Backend       string
	OllamaBaseURL string
	APIBaseURL    string
	APIKey        string
	// Temperature below zero keeps the model default.
	Temperature float64
	// ContextTokens is the prompt budget; Ollama widens num_ctx to fit it.
	ContextTokens int
}

// Detect returns the Engine named by cfg.Backend. An empty backend picks
// OpenRouter when an API key is set and Ollama otherwise.
func Detect(cfg DetectConfig) (Engine, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = BackendOllama
		if cfg.APIKey != "" {
			backend = BackendOpenRouter
		}
	}
	switch backend {
	case BackendOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL, cfg.Temperature, cfg.ContextTokens), nil
	case BackendOpenRouter, "openai":
		if cfg.APIKey == "" && cfg.APIBaseURL == "" {
			return nil, fmt.Errorf("backend %s needs an API key", backend)
		}
		return NewOpenAIEngine(cfg.APIKey, cfg.APIBaseURL, cfg.Temperature), nil
	default:
		return nil, fmt.Errorf("unknown llm backend %q", cfg.Backend)
	}
}
