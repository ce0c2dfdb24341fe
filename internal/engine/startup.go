package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// ErrBackendDown is returned by EnsureReady when the backend does not answer.
var ErrBackendDown = errors.New("inference backend is not reachable")

const warmupTimeout = 30 * time.Second

// EnsureReady verifies the backend answers and that model is available,
// pulling it if needed with progress written to w. A one-token warm-up
// request follows so the first user question does not pay the load cost.
// Extra models (a separate code model, say) are checked and pulled too.
func EnsureReady(ctx context.Context, e Engine, models []string, w io.Writer) error {
	if !e.IsRunning(ctx) {
		return fmt.Errorf("%w; for Ollama start it with: ollama serve", ErrBackendDown)
	}

	seen := make(map[string]bool, len(models))
	var first string
	for _, model := range models {
		if model == "" || seen[model] {
			continue
		}
		seen[model] = true
		if first == "" {
			first = model
		}
		if err := ensureModel(ctx, e, model, w); err != nil {
			return err
		}
	}
	if first != "" {
		warmUp(ctx, e, first, w)
	}
	return nil
}

func ensureModel(ctx context.Context, e Engine, model string, w io.Writer) error {
	if e.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
		return nil
	}
	fmt.Fprintf(w, "model %s: pulling...\n", model)
	last := -1
	err := e.PullModel(ctx, model, func(p PullProgress) {
		pct := p.Percent()
		switch {
		case pct < 0:
			fmt.Fprintf(w, "  %s\n", p.Status)
		case pct != last:
			// Ollama streams many updates per percent.
			fmt.Fprintf(w, "  %s %d%%\n", p.Status, pct)
		}
		last = pct
	})
	if err != nil {
		return fmt.Errorf("pulling model %s: %w", model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)
	return nil
}

func warmUp(ctx context.Context, e Engine, model string, w io.Writer) {
	ctx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()
	msgs := []Message{{Role: RoleUser, Content: "Reply with the single word: ready"}}
	if _, err := e.Chat(ctx, model, msgs, nil); err != nil {
		fmt.Fprintf(w, "model %s: warm-up failed (non-fatal): %v\n", model, err)
		return
	}
	fmt.Fprintf(w, "model %s: warm\n", model)
}
