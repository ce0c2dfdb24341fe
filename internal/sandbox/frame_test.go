package sandbox

import (
	"math"
	"testing"
	"time"
)

func TestAggregate(t *testing.T) {
	values := []float64{4, math.NaN(), 1, 3}
	cases := map[string]float64{
		AggSum: 8, AggMean: 8.0 / 3, AggCount: 3, AggMin: 1, AggMax: 4, AggMedian: 3,
	}
	for agg, want := range cases {
		got, err := aggregate(agg, values)
		if err != nil {
			t.Fatalf("%s: %v", agg, err)
		}
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("%s = %v, want %v", agg, got, want)
		}
	}
	if got, _ := aggregate(AggMean, nil); !math.IsNaN(got) {
		t.Errorf("mean of nothing = %v, want NaN", got)
	}
	if got, _ := aggregate(AggSum, nil); got != 0 {
		t.Errorf("sum of nothing = %v", got)
	}
	if _, err := aggregate("mode", values); err == nil {
		t.Error("unknown aggregation accepted")
	}
}

func TestGroupBy_SortsKeysAndDropsMissing(t *testing.T) {
	keys := []any{"b", "a", nil, "b", "a"}
	values := []float64{1, 2, 100, 3, math.NaN()}
	k, v, err := groupBy(keys, values, AggSum)
	if err != nil {
		t.Fatal(err)
	}
	if len(k) != 2 || k[0] != "a" || k[1] != "b" {
		t.Fatalf("keys = %v", k)
	}
	if v[0] != 2 || v[1] != 4 {
		t.Errorf("values = %v, want [2 4]", v)
	}
}

func TestGroupBy_NumericAndDateKeys(t *testing.T) {
	k, v, _ := groupBy([]any{int64(10), 2.0, int64(2)}, nil, AggCount)
	if len(k) != 2 || v[0] != 2 || v[1] != 1 {
		t.Errorf("numeric groups = %v %v", k, v)
	}

	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb := jan.AddDate(0, 1, 0)
	k, _, _ = groupBy([]any{feb, jan, feb}, nil, AggCount)
	if !k[0].(time.Time).Equal(jan) {
		t.Errorf("date keys not chronological: %v", k)
	}
}

func TestGroupBy_LengthMismatch(t *testing.T) {
	if _, _, err := groupBy([]any{"a"}, []float64{1, 2}, AggSum); err == nil {
		t.Error("expected length error")
	}
}

func TestValueCounts_TiesKeepFirstAppearance(t *testing.T) {
	k, v := valueCounts([]any{"x", "y", "y", "z", "x", nil})
	want := []any{"x", "y", "z"}
	for i := range want {
		if k[i] != want[i] {
			t.Fatalf("keys = %v, want %v", k, want)
		}
	}
	if v[0] != 2 || v[2] != 1 {
		t.Errorf("counts = %v", v)
	}
}

func TestSortPairs(t *testing.T) {
	k, v, err := sortPairs([]any{"a", "b", "c"}, []float64{2, math.NaN(), 5}, true)
	if err != nil {
		t.Fatal(err)
	}
	if k[0] != "c" || k[1] != "a" || k[2] != "b" || !math.IsNaN(v[2]) {
		t.Errorf("sorted = %v %v", k, v)
	}
}

func TestToNumeric(t *testing.T) {
	got := toNumeric([]any{"1,200", "$5", "12%", "abc", int64(3), nil})
	want := []any{1200.0, 5.0, 12.0, nil, 3.0, nil}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("toNumeric[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestToDatetime(t *testing.T) {
	got := toDatetime([]any{"2024-03-05", int64(2020), "soon", nil})
	if d, ok := got[0].(time.Time); !ok || d.Month() != time.March || d.Day() != 5 {
		t.Errorf("string date = %v", got[0])
	}
	if d, ok := got[1].(time.Time); !ok || d.Year() != 2020 {
		t.Errorf("year = %v", got[1])
	}
	if got[2] != nil || got[3] != nil {
		t.Errorf("unparseable values = %v %v, want nil", got[2], got[3])
	}
}

func TestUnique(t *testing.T) {
	got := unique([]any{int64(1), 1.0, "1", nil, int64(2)})
	if len(got) != 3 {
		t.Errorf("unique = %v, want [1 \"1\" 2]", got)
	}
}
