// Package composer renders the dataset profile and conversation history that
// ground every completion prompt.
package composer

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/profile"
)

const defaultMaxContextTokens = 6000

// Composer builds prompt grounding within a token budget.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (6000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Grounding is the rendered context shared by the classifier and both
// synthesizers.
type Grounding struct {
	// Profile is the profile as compact JSON.
	Profile string
	// History is the formatted transcript, empty when there is none.
	History string
	// Dropped counts history turns left out to fit the budget.
	Dropped int
}

// Ground renders p and history. The profile is always included; history turns
// are kept newest-first while they fit the remaining budget and are then
// printed oldest-first.
func (c *Composer) Ground(p profile.DatasetProfile, history []memory.Turn) (Grounding, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return Grounding{}, fmt.Errorf("encoding profile: %w", err)
	}
	g := Grounding{Profile: string(b)}

	remaining := c.budget() - EstimateTokens(g.Profile) - EstimateTokens(historyHeader)
	start := len(history)
	for start > 0 {
		tokens := EstimateTokens(formatTurn(history[start-1]))
		if tokens > remaining {
			break
		}
		remaining -= tokens
		start--
	}
	g.Dropped = start
	g.History = FormatHistory(history[start:])
	return g, nil
}

func (c *Composer) budget() int {
	if c == nil || c.MaxContextTokens <= 0 {
		return defaultMaxContextTokens
	}
	return c.MaxContextTokens
}

const historyHeader = "\n\nPrevious Conversation:\n"

// FormatHistory renders turns oldest-first as role-labelled lines under a
// header. It returns "" for no turns.
func FormatHistory(turns []memory.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(historyHeader)
	for _, t := range turns {
		sb.WriteString(formatTurn(t))
	}
	return sb.String()
}

func formatTurn(t memory.Turn) string {
	label := "User"
	if t.Role == memory.RoleAssistant {
		label = "Assistant"
	}
	return label + ": " + t.Content + "\n"
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
