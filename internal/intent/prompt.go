package intent

import (
	"fmt"

	"github.com/sigamony/DataViz/internal/composer"
	"github.com/sigamony/DataViz/internal/engine"
)

const promptTemplate = `You are a smart data analyst assistant.
Your job is to analyze a User Query in the context of a Dataset Profile and determine the user's intent.

Dataset Profile:
%s%s

User Query:
%q

Task:
Determine if the user wants to visualize data from this dataset.
1. is_related: Does the query refer to the data or its columns? A greeting or an unrelated request ("How are you?", "Write me a poem") is not related.
2. is_visualization: Does the user ask to see a chart, plot, diagram or trend?
3. needs_clarification: Is the query too vague to produce any meaningful chart (e.g. "Show me data" without saying what)?
   - If the query is "Show me trends" and there are date and numeric columns, try your best (needs_clarification = false). Only return true if no reasonable default exists.
   - Consider the previous conversation when deciding; follow-ups like "make it a bar chart" refer to the previous chart.

Output ONLY a JSON object with exactly these keys:
{"is_related": boolean, "is_visualization": boolean, "needs_clarification": boolean, "clarification_message": string or null, "rationale": "short explanation"}
Set clarification_message only when needs_clarification is true.`

// BuildPrompt renders the classification prompt.
func BuildPrompt(g composer.Grounding, query string) string {
	return fmt.Sprintf(promptTemplate, g.Profile, g.History, query)
}

// decisionSchema is the structured-output schema for Decision.
func decisionSchema() *engine.Schema {
	return &engine.Schema{
		Name: "decision",
		Type: "object",
		Properties: map[string]engine.SchemaProperty{
			"is_related":            {Type: "boolean", Description: "Query concerns this dataset"},
			"is_visualization":      {Type: "boolean", Description: "User wants a chart"},
			"needs_clarification":   {Type: "boolean", Description: "No reasonable default chart exists"},
			"clarification_message": {Type: "string", Description: "Question to ask when clarification is needed"},
			"rationale":             {Type: "string", Description: "Short explanation"},
		},
		Required: []string{"is_related", "is_visualization", "needs_clarification"},
	}
}
