package intent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Decision is the classifier's routing verdict for one request. It is never
// persisted.
type Decision struct {
	IsRelated            bool    `json:"is_related"`
	IsVisualization      bool    `json:"is_visualization"`
	NeedsClarification   bool    `json:"needs_clarification"`
	ClarificationMessage *string `json:"clarification_message"`
	Rationale            string  `json:"rationale"`
}

// Fallback is the permissive decision used when classification fails: the
// request proceeds to the chart path.
func Fallback(cause error) Decision {
	return Decision{
		IsRelated:       true,
		IsVisualization: true,
		Rationale:       fmt.Sprintf("classification failed: %v", cause),
	}
}

var errMissingKey = errors.New("missing required key")

// wireDecision mirrors Decision with pointer booleans so absent keys are
// distinguishable from false.
type wireDecision struct {
	IsRelated            *bool   `json:"is_related"`
	IsVisualization      *bool   `json:"is_visualization"`
	NeedsClarification   *bool   `json:"needs_clarification"`
	ClarificationMessage *string `json:"clarification_message"`
	Rationale            string  `json:"rationale"`
}

// Decode parses a completion into a Decision. Markdown fences are stripped,
// unknown keys are rejected and the three booleans are required.
func Decode(raw string) (Decision, error) {
	dec := json.NewDecoder(strings.NewReader(StripFences(raw)))
	dec.DisallowUnknownFields()

	var w wireDecision
	if err := dec.Decode(&w); err != nil {
		return Decision{}, fmt.Errorf("decoding decision: %w", err)
	}
	if dec.More() {
		return Decision{}, errors.New("decoding decision: trailing data after object")
	}

	switch {
	case w.IsRelated == nil:
		return Decision{}, fmt.Errorf("%w: is_related", errMissingKey)
	case w.IsVisualization == nil:
		return Decision{}, fmt.Errorf("%w: is_visualization", errMissingKey)
	case w.NeedsClarification == nil:
		return Decision{}, fmt.Errorf("%w: needs_clarification", errMissingKey)
	}

	d := Decision{
		IsRelated:          *w.IsRelated,
		IsVisualization:    *w.IsVisualization,
		NeedsClarification: *w.NeedsClarification,
		Rationale:          w.Rationale,
	}
	if w.ClarificationMessage != nil && strings.TrimSpace(*w.ClarificationMessage) != "" {
		d.ClarificationMessage = w.ClarificationMessage
	}
	return d, nil
}

// StripFences removes a surrounding Markdown code fence, with or without a
// language tag.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
