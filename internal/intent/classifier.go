// Package intent decides how a dataset question should be handled.
package intent

import (
	"context"
	"log/slog"
	"time"

	"github.com/sigamony/DataViz/internal/composer"
	"github.com/sigamony/DataViz/internal/engine"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/profile"
)

// DefaultTimeout bounds one classification call.
const DefaultTimeout = 20 * time.Second

const tieBreakNote = "clarification overridden: date and numeric columns allow a default chart"

// Classifier turns a profile, query and history into a Decision.
type Classifier struct {
	llm      engine.Completer
	composer *composer.Composer
	timeout  time.Duration
}

// NewClassifier creates a Classifier. A non-positive timeout uses DefaultTimeout.
func NewClassifier(llm engine.Completer, c *composer.Composer, timeout time.Duration) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{llm: llm, composer: c, timeout: timeout}
}

// Classify never fails. Any completion, timeout or decoding error yields the
// permissive Fallback decision.
func (c *Classifier) Classify(ctx context.Context, p profile.DatasetProfile, query string, history []memory.Turn) Decision {
	g, err := c.composer.Ground(p, history)
	if err != nil {
		slog.Warn("intent grounding failed", "error", err)
		return Fallback(err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	raw, err := c.llm.CompleteJSON(ctx, BuildPrompt(g, query), decisionSchema())
	if err != nil {
		slog.Warn("intent classification failed", "error", err)
		return Fallback(err)
	}

	d, err := Decode(raw)
	if err != nil {
		slog.Warn("failed to decode intent decision", "error", err, "response", raw)
		return Fallback(err)
	}

	if d.NeedsClarification && p.HasDefaultChart() {
		d.NeedsClarification = false
		d.ClarificationMessage = nil
		if d.Rationale != "" {
			d.Rationale += "; "
		}
		d.Rationale += tieBreakNote
	}
	return d
}
