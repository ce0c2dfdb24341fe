// Package suggest proposes starter chart requests for a dataset.
package suggest

import (
	"fmt"

	"github.com/sigamony/DataViz/internal/profile"
)

// Count is the number of suggestions returned.
const Count = 3

// Suggestion is a ready-to-send chart request.
type Suggestion struct {
	Query       string `json:"query"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Type        string `json:"type"`
}

type rule func(k profile.ColumnKinds) (Suggestion, bool)

// rules run in priority order; each fires at most once.
var rules = []rule{
	func(k profile.ColumnKinds) (Suggestion, bool) {
		if len(k.Date) == 0 || len(k.Numeric) == 0 {
			return Suggestion{}, false
		}
		n, d := k.Numeric[0], k.Date[0]
		return Suggestion{
			Query:       fmt.Sprintf("Create a line chart showing %s over %s", n, d),
			Description: "Time series trend of " + n,
			Icon:        "📈",
			Type:        "trend",
		}, true
	},
	func(k profile.ColumnKinds) (Suggestion, bool) {
		if len(k.Categorical) == 0 || len(k.Numeric) == 0 {
			return Suggestion{}, false
		}
		n, c := k.Numeric[0], k.Categorical[0]
		return Suggestion{
			Query:       fmt.Sprintf("Create a bar chart of %s grouped by %s", n, c),
			Description: fmt.Sprintf("Compare %s across %s", n, c),
			Icon:        "📊",
			Type:        "comparison",
		}, true
	},
	func(k profile.ColumnKinds) (Suggestion, bool) {
		if len(k.Numeric) == 0 {
			return Suggestion{}, false
		}
		n := k.Numeric[0]
		return Suggestion{
			Query:       fmt.Sprintf("Create a histogram of %s distribution", n),
			Description: "Distribution analysis of " + n,
			Icon:        "📊",
			Type:        "distribution",
		}, true
	},
	func(k profile.ColumnKinds) (Suggestion, bool) {
		if len(k.Numeric) < 2 {
			return Suggestion{}, false
		}
		a, b := k.Numeric[0], k.Numeric[1]
		return Suggestion{
			Query:       fmt.Sprintf("Create a scatter plot of %s vs %s", a, b),
			Description: fmt.Sprintf("Correlation between %s and %s", a, b),
			Icon:        "🔗",
			Type:        "correlation",
		}, true
	},
	func(k profile.ColumnKinds) (Suggestion, bool) {
		if len(k.Categorical) == 0 || len(k.Numeric) == 0 {
			return Suggestion{}, false
		}
		n, c := k.Numeric[0], k.Categorical[0]
		return Suggestion{
			Query:       fmt.Sprintf("Create a horizontal bar chart showing top 10 %s by %s", c, n),
			Description: fmt.Sprintf("Top 10 %s ranked by %s", c, n),
			Icon:        "🏆",
			Type:        "ranking",
		}, true
	},
	func(k profile.ColumnKinds) (Suggestion, bool) {
		if len(k.Categorical) == 0 {
			return Suggestion{}, false
		}
		c := k.Categorical[0]
		return Suggestion{
			Query:       "Create a pie chart showing the distribution of " + c,
			Description: "Percentage breakdown of " + c,
			Icon:        "🥧",
			Type:        "breakdown",
		}, true
	},
	func(k profile.ColumnKinds) (Suggestion, bool) {
		if len(k.Categorical) < 2 || len(k.Numeric) == 0 {
			return Suggestion{}, false
		}
		return Suggestion{
			Query:       fmt.Sprintf("Create a grouped bar chart of %s by %s and %s", k.Numeric[0], k.Categorical[0], k.Categorical[1]),
			Description: "Multi-category comparison",
			Icon:        "📊",
			Type:        "grouped",
		}, true
	},
}

// For returns exactly Count suggestions for p, most specific first.
func For(p profile.DatasetProfile) []Suggestion {
	k := p.Kinds()
	out := make([]Suggestion, 0, Count)
	for _, r := range rules {
		if len(out) == Count {
			return out
		}
		if s, ok := r(k); ok {
			out = append(out, s)
		}
	}
	if len(out) < Count && len(p.Columns) >= 2 {
		out = append(out, Suggestion{
			Query:       fmt.Sprintf("Create a chart visualizing %s and %s", p.Columns[0], p.Columns[1]),
			Description: "Basic data visualization",
			Icon:        "📊",
			Type:        "basic",
		})
	}
	for len(out) < Count {
		if len(k.Numeric) > 0 {
			out = append(out, Suggestion{
				Query:       "Create a line plot of " + k.Numeric[0],
				Description: "Simple plot of " + k.Numeric[0],
				Icon:        "📈",
				Type:        "simple",
			})
			continue
		}
		out = append(out, Suggestion{
			Query:       "Show me the first few rows of data",
			Description: "Data preview",
			Icon:        "👁️",
			Type:        "preview",
		})
	}
	return out
}
