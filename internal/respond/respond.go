// Package respond produces the text replies for requests that do not end in a
// chart.
package respond

import (
	"context"
	"fmt"
	"strings"

	"github.com/sigamony/DataViz/internal/composer"
	"github.com/sigamony/DataViz/internal/engine"
	"github.com/sigamony/DataViz/internal/intent"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/profile"
)

const (
	// SkipMessage is returned for requests unrelated to the dataset.
	SkipMessage = "I can only help with visualizing or understanding this dataset. Please ask a question about the data."
	// ClarifyFallback is used when the classifier asked for clarification
	// without saying what to ask.
	ClarifyFallback = "Could you provide more details about what you'd like to see?"
)

const answerTemplate = `You are a Data Analyst.
Dataset Profile: %s%s
User Question: %q
Answer the user's question based on the metadata and conversation history. Keep it concise.`

// Synthesizer answers dataset questions in prose.
type Synthesizer struct {
	llm      engine.Completer
	composer *composer.Composer
}

func New(llm engine.Completer, c *composer.Composer) *Synthesizer {
	return &Synthesizer{llm: llm, composer: c}
}

// Skip returns the fixed scope message. No completion is made.
func (s *Synthesizer) Skip() string { return SkipMessage }

// Answer returns the completion text verbatim. Failures wrap engine.ErrCompletion.
func (s *Synthesizer) Answer(ctx context.Context, p profile.DatasetProfile, query string, history []memory.Turn) (string, error) {
	g, err := s.composer.Ground(p, history)
	if err != nil {
		return "", engine.CompletionError(err)
	}
	out, err := s.llm.Complete(ctx, fmt.Sprintf(answerTemplate, g.Profile, g.History, query))
	if err != nil {
		return "", fmt.Errorf("answering question: %w", engine.CompletionError(err))
	}
	return out, nil
}

// Clarify returns the classifier's clarification message, or ClarifyFallback.
func (s *Synthesizer) Clarify(d intent.Decision) string {
	if d.ClarificationMessage != nil && strings.TrimSpace(*d.ClarificationMessage) != "" {
		return *d.ClarificationMessage
	}
	return ClarifyFallback
}
