package engine

import (
	"context"

	"github.com/sigamony/DataViz/internal/ollama"
)

// replyHeadroom is added to the prompt budget when sizing num_ctx, leaving
// room for a generated chart script.
const replyHeadroom = 2048

// OllamaEngine serves completions from a local Ollama server.
type OllamaEngine struct {
	client *ollama.Client
	opts   *ollama.Options
}

// NewOllamaEngine returns an engine for the server at baseURL. A negative
// temperature keeps the model default; promptTokens of zero keeps the
// model's default context window.
func NewOllamaEngine(baseURL string, temperature float64, promptTokens int) *OllamaEngine {
	var opts ollama.Options
	if temperature >= 0 {
		opts.Temperature = &temperature
	}
	if promptTokens > 0 {
		opts.NumCtx = promptTokens + replyHeadroom
	}
	e := &OllamaEngine{client: ollama.New(baseURL)}
	if opts != (ollama.Options{}) {
		e.opts = &opts
	}
	return e
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, schema *Schema) (string, error) {
	msgs := make([]ollama.Message, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ollama.Message(m))
	}
	return e.client.Chat(ctx, model, msgs, toOllamaFormat(schema), e.opts)
}

// toOllamaFormat closes the object so the model cannot add fields the
// decoder would reject.
func toOllamaFormat(s *Schema) *ollama.Schema {
	if s == nil {
		return nil
	}
	closed := false
	out := &ollama.Schema{
		Type:                 s.Type,
		Required:             s.Required,
		AdditionalProperties: &closed,
		Properties:           make(map[string]ollama.SchemaProperty, len(s.Properties)),
	}
	for name, p := range s.Properties {
		out.Properties[name] = ollama.SchemaProperty(p)
	}
	return out
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool { return e.client.IsRunning(ctx) }

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	return e.client.PullModel(ctx, name, func(p ollama.PullProgress) {
		if onProgress != nil {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	})
}
