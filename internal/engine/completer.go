package engine

import (
	"context"
	"fmt"
	"strings"
)

// ModelCompleter adapts an Engine and a model name to the Completer interface.
// Each prompt is sent as a single user message.
type ModelCompleter struct {
	eng   Engine
	model string
}

// NewCompleter binds eng to model.
func NewCompleter(eng Engine, model string) *ModelCompleter {
	return &ModelCompleter{eng: eng, model: model}
}

// Model returns the bound model name.
func (c *ModelCompleter) Model() string { return c.model }

func (c *ModelCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	return c.chat(ctx, prompt, nil)
}

func (c *ModelCompleter) CompleteJSON(ctx context.Context, prompt string, schema *Schema) (string, error) {
	return c.chat(ctx, prompt, schema)
}

func (c *ModelCompleter) chat(ctx context.Context, prompt string, schema *Schema) (string, error) {
	out, err := c.eng.Chat(ctx, c.model, []Message{{Role: RoleUser, Content: prompt}}, schema)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrCompletion, c.model, err)
	}
	if strings.TrimSpace(out) == "" {
		return "", fmt.Errorf("%w: %s: empty response", ErrCompletion, c.model)
	}
	return out, nil
}
