package suggest

import (
	"testing"

	"github.com/sigamony/DataViz/internal/profile"
)

func kinds(out []Suggestion) []string {
	var types []string
	for _, s := range out {
		types = append(types, s.Type)
	}
	return types
}

func assertTypes(t *testing.T, got []Suggestion, want ...string) {
	t.Helper()
	if len(got) != Count {
		t.Fatalf("got %d suggestions, want %d", len(got), Count)
	}
	for i, w := range want {
		if got[i].Type != w {
			t.Fatalf("types = %v, want %v", kinds(got), want)
		}
	}
}

func TestFor_TimeSeriesFirst(t *testing.T) {
	p := profile.DatasetProfile{
		Columns: []string{"Date", "Region", "Revenue"},
		Dtypes:  map[string]string{"Date": "datetime64[ns]", "Region": "object", "Revenue": "float64"},
	}
	got := For(p)
	assertTypes(t, got, "trend", "comparison", "distribution")
	if got[0].Query != "Create a line chart showing Revenue over Date" {
		t.Errorf("query = %q", got[0].Query)
	}
}

func TestFor_DateByName(t *testing.T) {
	p := profile.DatasetProfile{
		Columns: []string{"order_date", "units"},
		Dtypes:  map[string]string{"order_date": "object", "units": "int64"},
	}
	assertTypes(t, For(p), "trend", "distribution", "basic")
}

func TestFor_CategoricalOnly(t *testing.T) {
	p := profile.DatasetProfile{
		Columns: []string{"City"},
		Dtypes:  map[string]string{"City": "object"},
	}
	assertTypes(t, For(p), "breakdown", "preview", "preview")
}

func TestFor_NumericOnly(t *testing.T) {
	p := profile.DatasetProfile{
		Columns: []string{"a", "b"},
		Dtypes:  map[string]string{"a": "float64", "b": "int64"},
	}
	assertTypes(t, For(p), "distribution", "correlation", "basic")
}

func TestFor_Empty(t *testing.T) {
	assertTypes(t, For(profile.DatasetProfile{}), "preview", "preview", "preview")
}
