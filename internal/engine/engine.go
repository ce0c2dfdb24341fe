package engine

import (
	"context"
	"errors"
	"fmt"
)

// ErrCompletion wraps every failure of a completion call: transport errors,
// non-OK statuses, timeouts and empty responses.
var ErrCompletion = errors.New("completion failed")

// Engine abstracts an inference backend (a local Ollama server or any
// OpenAI-compatible endpoint such as OpenRouter).
type Engine interface {
	// Chat sends messages to the given model and returns the assistant's response.
	// When jsonSchema is non-nil, structured JSON output is requested.
	Chat(ctx context.Context, model string, messages []Message, jsonSchema *Schema) (string, error)

	// IsRunning reports whether the backend is reachable.
	IsRunning(ctx context.Context) bool

	// ListModels returns the names of the models the backend can serve.
	ListModels(ctx context.Context) ([]string, error)

	// HasModel reports whether the given model name is available.
	HasModel(ctx context.Context, name string) bool

	// PullModel downloads a model. The optional callback receives progress updates.
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Completer turns a single prompt into completion text. It is the only
// surface the classifier and synthesizers depend on.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteJSON(ctx context.Context, prompt string, schema *Schema) (string, error)
}

// CompletionError wraps err with ErrCompletion unless it already is one.
func CompletionError(err error) error {
	if err == nil || errors.Is(err, ErrCompletion) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCompletion, err)
}
