// Package codegen asks the model for a chart script and extracts it from the
// reply.
package codegen

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/sigamony/DataViz/internal/composer"
	"github.com/sigamony/DataViz/internal/engine"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/profile"
)

const promptTemplate = `You are a JavaScript Data Visualization Expert.
You have access to a dataset object named ` + "`df`" + ` and two helper libraries, ` + "`table` and `plt`" + `.

Dataset Metadata:
%s%s

User Request:
%q

Goal:
Write JavaScript code to create the most appropriate visualization for the user's request.
Consider the conversation history to understand context and references (e.g., "make it horizontal" refers to the previous chart).

Available API (nothing else exists: no require, no fetch, no files):
- df.columns, df.length, df.dtypes, df.col(name) -> array, df.rows() -> array of row objects, df.head(n)
- table.toNumeric(arr), table.toDatetime(arr)
- table.groupBy(df or rows, keyColumn, valueColumn, agg) -> {keys, values}; agg is sum, mean, count, min, max or median
- table.valueCounts(arr) -> {keys, values}; table.sortBy(keys, values, desc) -> {keys, values}
- table.sum(arr), table.mean(arr), table.min(arr), table.max(arr), table.unique(arr)
- table.filter(df or rows, fn) -> rows; table.pluck(rows, column) -> array
- plt.figure({figsize: [w, h]}), plt.plot(x, y, label), plt.bar(x, y, label), plt.barh(categories, values, label),
  plt.scatter(x, y, label), plt.hist(values, bins), plt.pie(values, labels)
- plt.title(s), plt.xlabel(s), plt.ylabel(s), plt.legend(), plt.xticksRotation(deg), plt.style(name)
  (styles: %s)

Rules:
1. Use ONLY df, table and plt.
2. Assume df is already loaded. Do NOT load the data again.
3. Handle data types: check the dtypes in the metadata. If a column is object but holds dates, convert it with table.toDatetime. If it holds numeric strings, convert it with table.toNumeric.
4. Best effort: if the user is vague (e.g. "show trends"), pick the most logical columns (e.g. a date column and a numeric column) and plot them.
5. No explanations: output ONLY the executable JavaScript code.
6. One plot: create exactly one figure.
7. Formatting: title the chart, label both axes, and pick a style if it helps.
8. Do NOT call plt.show(); drawing the plot is enough.

Code Format:
` + "```javascript\n// Code here\n```"

// BuildPrompt renders the code generation prompt.
func BuildPrompt(g composer.Grounding, query string, styles []string) string {
	return fmt.Sprintf(promptTemplate, g.Profile, g.History, query, strings.Join(styles, ", "))
}

// Synthesizer turns a chart request into a script.
type Synthesizer struct {
	llm      engine.Completer
	composer *composer.Composer
	styles   []string
}

// New creates a Synthesizer. styles lists the style names offered to the model.
func New(llm engine.Completer, c *composer.Composer, styles []string) *Synthesizer {
	return &Synthesizer{llm: llm, composer: c, styles: styles}
}

// Synthesize returns the script extracted from the completion. The script is
// not validated. Failures wrap engine.ErrCompletion.
func (s *Synthesizer) Synthesize(ctx context.Context, p profile.DatasetProfile, query string, history []memory.Turn) (string, error) {
	g, err := s.composer.Ground(p, history)
	if err != nil {
		return "", engine.CompletionError(err)
	}
	raw, err := s.llm.Complete(ctx, BuildPrompt(g, query, s.styles))
	if err != nil {
		return "", fmt.Errorf("generating chart code: %w", engine.CompletionError(err))
	}
	return ExtractCode(raw), nil
}

const fence = "```"

// ExtractCode returns the body of the first fenced block in raw, without its
// language tag line. An unterminated block runs to the end of raw; with no
// fence at all the whole trimmed text is returned.
func ExtractCode(raw string) string {
	start := strings.Index(raw, fence)
	if start < 0 {
		return strings.TrimSpace(raw)
	}
	body := raw[start+len(fence):]
	if nl := strings.IndexByte(body, '\n'); nl >= 0 && isLanguageTag(body[:nl]) {
		body = body[nl+1:]
	}
	if end := strings.Index(body, fence); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isLanguageTag(line string) bool {
	line = strings.TrimSpace(line)
	for _, r := range line {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !strings.ContainsRune("+-#._", r) {
			return false
		}
	}
	return true
}
