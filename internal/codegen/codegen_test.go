package codegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sigamony/DataViz/internal/engine"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/profile"
)

type mockCompleter struct {
	response string
	err      error
	prompt   string
}

func (m *mockCompleter) Complete(_ context.Context, prompt string) (string, error) {
	m.prompt = prompt
	return m.response, m.err
}

func (m *mockCompleter) CompleteJSON(ctx context.Context, prompt string, _ *engine.Schema) (string, error) {
	return m.Complete(ctx, prompt)
}

func testProfile() profile.DatasetProfile {
	return profile.DatasetProfile{
		Columns:  []string{"Date", "Revenue"},
		Dtypes:   map[string]string{"Date": "datetime64[ns]", "Revenue": "float64"},
		RowCount: 3,
	}
}

func TestExtractCode(t *testing.T) {
	cases := []struct {
		name, raw, want string
	}{
		{"tagged", "Here you go:\n```javascript\nplt.plot([1, 2]);\n```\nEnjoy", "plt.plot([1, 2]);"},
		{"bare fence", "```\nplt.bar(['a'], [1]);\n```", "plt.bar(['a'], [1]);"},
		{"first block wins", "```js\nfirst();\n```\n```js\nsecond();\n```", "first();"},
		{"unterminated", "```js\nplt.plot([1]);\n", "plt.plot([1]);"},
		{"no fence", "  plt.hist([1, 2]);  \n", "plt.hist([1, 2]);"},
		{"code on fence line", "```plt.plot([1]);\n```", "plt.plot([1]);"},
		{"empty", "", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := ExtractCode(c.raw); got != c.want {
				t.Errorf("ExtractCode = %q, want %q", got, c.want)
			}
		})
	}
}

func TestSynthesize_PromptGrounding(t *testing.T) {
	m := &mockCompleter{response: "```javascript\nplt.plot(df.col(\"Date\"), df.col(\"Revenue\"));\n```"}
	s := New(m, nil, []string{"default", "ggplot"})
	history := []memory.Turn{
		{Role: memory.RoleUser, Content: "show revenue over time"},
		{Role: memory.RoleAssistant, Content: "Generated chart for: show revenue over time"},
	}

	code, err := s.Synthesize(context.Background(), testProfile(), "make it a bar chart", history)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if code != `plt.plot(df.col("Date"), df.col("Revenue"));` {
		t.Errorf("code = %q", code)
	}
	for _, want := range []string{
		`"make it a bar chart"`,
		`"row_count":3`,
		"Previous Conversation:\nUser: show revenue over time\nAssistant: Generated chart for: show revenue over time\n",
		"styles: default, ggplot",
		"Do NOT call plt.show()",
	} {
		if !strings.Contains(m.prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSynthesize_CompletionError(t *testing.T) {
	m := &mockCompleter{err: errors.New("connection refused")}
	_, err := New(m, nil, nil).Synthesize(context.Background(), testProfile(), "plot revenue", nil)
	if !errors.Is(err, engine.ErrCompletion) {
		t.Errorf("err = %v, want ErrCompletion", err)
	}
}

func TestSynthesize_NoValidation(t *testing.T) {
	m := &mockCompleter{response: "I cannot do that."}
	code, err := New(m, nil, nil).Synthesize(context.Background(), testProfile(), "plot revenue", nil)
	if err != nil {
		t.Fatal(err)
	}
	if code != "I cannot do that." {
		t.Errorf("code = %q", code)
	}
}
