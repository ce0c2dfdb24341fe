package engine

// Chat roles understood by every backend.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a chat transcript sent to a backend.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Schema is a flat JSON object schema used to force structured output from
// the classifier. Name labels the schema for backends that require one and
// is not part of the schema document itself.
type Schema struct {
	Name       string                    `json:"-"`
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty is a single field of a Schema.
type SchemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// Strict reports whether every property is listed as required. OpenAI-style
// strict mode rejects schemas with optional fields.
func (s *Schema) Strict() bool {
	if s == nil || len(s.Required) != len(s.Properties) {
		return false
	}
	for _, name := range s.Required {
		if _, ok := s.Properties[name]; !ok {
			return false
		}
	}
	return true
}

func (s *Schema) label() string {
	if s == nil || s.Name == "" {
		return "response"
	}
	return s.Name
}

// PullProgress is one status line from a model download.
type PullProgress struct {
	Status    string `json:"status"`
	Total     int64  `json:"total,omitempty"`
	Completed int64  `json:"completed,omitempty"`
}

// Percent returns the completed share of the download, or -1 when the
// backend did not report a size.
func (p PullProgress) Percent() int {
	if p.Total <= 0 {
		return -1
	}
	return int(p.Completed * 100 / p.Total)
}
