package sandbox

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sigamony/DataViz/internal/dataset"
)

// Aggregations accepted by table.groupBy.
const (
	AggSum    = "sum"
	AggMean   = "mean"
	AggCount  = "count"
	AggMin    = "min"
	AggMax    = "max"
	AggMedian = "median"
)

// aggregate reduces values with agg, skipping NaN. Empty input yields NaN
// except for sum and count, which yield 0.
func aggregate(agg string, values []float64) (float64, error) {
	var kept []float64
	for _, v := range values {
		if !math.IsNaN(v) {
			kept = append(kept, v)
		}
	}
	switch agg {
	case AggSum:
		s := 0.0
		for _, v := range kept {
			s += v
		}
		return s, nil
	case AggCount:
		return float64(len(kept)), nil
	}
	if len(kept) == 0 {
		switch agg {
		case AggMean, AggMin, AggMax, AggMedian:
			return math.NaN(), nil
		}
	}
	switch agg {
	case AggMean:
		s := 0.0
		for _, v := range kept {
			s += v
		}
		return s / float64(len(kept)), nil
	case AggMin, AggMax:
		m := kept[0]
		for _, v := range kept[1:] {
			if (agg == AggMin && v < m) || (agg == AggMax && v > m) {
				m = v
			}
		}
		return m, nil
	case AggMedian:
		sort.Float64s(kept)
		n := len(kept)
		if n%2 == 1 {
			return kept[n/2], nil
		}
		return (kept[n/2-1] + kept[n/2]) / 2, nil
	}
	return 0, fmt.Errorf("unknown aggregation %q (use sum, mean, count, min, max or median)", agg)
}

// groupBy aggregates values per distinct key. A nil values slice counts rows.
// Missing keys are dropped; groups come back sorted by key.
func groupBy(keys []any, values []float64, agg string) ([]any, []float64, error) {
	if values != nil && len(values) != len(keys) {
		return nil, nil, fmt.Errorf("key and value columns differ in length (%d vs %d)", len(keys), len(values))
	}
	var order []any
	groups := make(map[string][]float64)
	for i, k := range keys {
		if k == nil {
			continue
		}
		id := identity(k)
		if _, ok := groups[id]; !ok {
			order = append(order, k)
			groups[id] = nil
		}
		v := 1.0
		if values != nil {
			v = values[i]
		}
		groups[id] = append(groups[id], v)
	}
	sortKeys(order)

	out := make([]float64, len(order))
	for i, k := range order {
		r, err := aggregate(agg, groups[identity(k)])
		if err != nil {
			return nil, nil, err
		}
		out[i] = r
	}
	return order, out, nil
}

// sortKeys orders numbers numerically, dates chronologically and anything
// else by its text.
func sortKeys(keys []any) {
	allNum, allTime := true, true
	for _, k := range keys {
		switch k.(type) {
		case time.Time:
			allNum = false
		case float64, int64, int:
			allTime = false
		default:
			allNum, allTime = false, false
		}
	}
	switch {
	case len(keys) == 0:
	case allNum:
		sort.SliceStable(keys, func(i, j int) bool {
			a, _ := dataset.ToFloat(keys[i])
			b, _ := dataset.ToFloat(keys[j])
			return a < b
		})
	case allTime:
		sort.SliceStable(keys, func(i, j int) bool {
			return keys[i].(time.Time).Before(keys[j].(time.Time))
		})
	default:
		sort.SliceStable(keys, func(i, j int) bool {
			return fmt.Sprint(keys[i]) < fmt.Sprint(keys[j])
		})
	}
}

// valueCounts counts occurrences, most frequent first. Ties keep first
// appearance order.
func valueCounts(values []any) ([]any, []float64) {
	var order []any
	counts := make(map[string]float64)
	for _, v := range values {
		if v == nil {
			continue
		}
		id := identity(v)
		if _, ok := counts[id]; !ok {
			order = append(order, v)
		}
		counts[id]++
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[identity(order[i])] > counts[identity(order[j])]
	})
	out := make([]float64, len(order))
	for i, k := range order {
		out[i] = counts[identity(k)]
	}
	return order, out
}

// sortPairs sorts keys by their values. NaN values go last.
func sortPairs(keys []any, values []float64, desc bool) ([]any, []float64, error) {
	if len(keys) != len(values) {
		return nil, nil, fmt.Errorf("keys and values differ in length (%d vs %d)", len(keys), len(values))
	}
	idx := make([]int, len(keys))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		va, vb := values[idx[a]], values[idx[b]]
		if math.IsNaN(va) || math.IsNaN(vb) {
			return !math.IsNaN(va) && math.IsNaN(vb)
		}
		if desc {
			return va > vb
		}
		return va < vb
	})
	k := make([]any, len(idx))
	v := make([]float64, len(idx))
	for i, j := range idx {
		k[i], v[i] = keys[j], values[j]
	}
	return k, v, nil
}

func unique(values []any) []any {
	seen := make(map[string]bool)
	var out []any
	for _, v := range values {
		if v == nil {
			continue
		}
		id := identity(v)
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, v)
	}
	return out
}

// toNumeric coerces each value to a float; unparseable values become nil.
func toNumeric(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		if _, isTime := v.(time.Time); isTime || v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			s = strings.TrimSuffix(strings.TrimSpace(s), "%")
			v = strings.TrimLeft(s, "$€£")
		}
		if f, ok := dataset.ToFloat(v); ok && !math.IsNaN(f) {
			out[i] = f
		}
	}
	return out
}

// toDatetime coerces each value to a time. Strings use the loader's date
// layouts, integers between 1000 and 9999 are years, other numbers are Unix
// milliseconds. Unparseable values become nil.
func toDatetime(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		switch x := v.(type) {
		case time.Time:
			out[i] = x
		case string:
			if t, ok := dataset.ParseTime(strings.TrimSpace(x)); ok {
				out[i] = t
			}
		case int64, float64, int:
			f, _ := dataset.ToFloat(x)
			if math.IsNaN(f) || math.IsInf(f, 0) {
				continue
			}
			if f == math.Trunc(f) && f >= 1000 && f <= 9999 {
				out[i] = time.Date(int(f), time.January, 1, 0, 0, 0, 0, time.UTC)
				continue
			}
			out[i] = time.UnixMilli(int64(f)).UTC()
		}
	}
	return out
}
