package profile

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sigamony/DataViz/internal/dataset"
)

// SampleSize is the number of leading rows copied into a profile.
const SampleSize = 5

// DatasetProfile is the compact, JSON-safe description of a table that
// grounds every prompt. Absent values are nil and serialize as null.
type DatasetProfile struct {
	Columns        []string                  `json:"columns"`
	Dtypes         map[string]string         `json:"dtypes"`
	RowCount       int                       `json:"row_count"`
	SampleRows     []map[string]any          `json:"sample_rows"`
	NumericSummary map[string]map[string]any `json:"numeric_summary"`
}

// Build profiles t. The result never contains NaN or ±Inf.
func Build(t *dataset.Table) (DatasetProfile, error) {
	if t == nil || len(t.Columns) == 0 {
		return DatasetProfile{}, fmt.Errorf("building profile: %w", dataset.ErrUnsupportedFormat)
	}

	p := DatasetProfile{
		Columns:        t.Names(),
		Dtypes:         make(map[string]string, len(t.Columns)),
		RowCount:       t.Len(),
		SampleRows:     make([]map[string]any, 0, SampleSize),
		NumericSummary: make(map[string]map[string]any, len(t.Columns)),
	}

	for _, c := range t.Columns {
		p.Dtypes[c.Name] = c.Kind.Dtype()
		p.NumericSummary[c.Name] = describe(c)
	}

	head := t.Head(SampleSize)
	for i := 0; i < head.Len(); i++ {
		row := head.Row(i)
		for k, v := range row {
			row[k] = dataset.FormatValue(v)
		}
		p.SampleRows = append(p.SampleRows, row)
	}

	for i, row := range p.SampleRows {
		p.SampleRows[i] = Sanitize(row).(map[string]any)
	}
	for name, stats := range p.NumericSummary {
		p.NumericSummary[name] = Sanitize(stats).(map[string]any)
	}
	return p, nil
}

// Sanitize replaces non-finite floats with nil, descending into maps and
// slices. Containers are copied; other values are returned unchanged.
func Sanitize(v any) any {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		return x
	case float32:
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			return nil
		}
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = Sanitize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Sanitize(e)
		}
		return out
	case []float64:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = Sanitize(e)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(x))
		for i, e := range x {
			out[i] = Sanitize(e).(map[string]any)
		}
		return out
	case map[string]map[string]any:
		out := make(map[string]map[string]any, len(x))
		for k, e := range x {
			out[k] = Sanitize(e).(map[string]any)
		}
		return out
	}
	return v
}

// describe computes descriptive statistics for one column. Columns with no
// present values yield an empty mapping.
func describe(c dataset.Column) map[string]any {
	switch {
	case c.Kind.IsNumeric():
		return describeNumeric(c.Values)
	case c.Kind == dataset.KindDatetime:
		return describeDatetime(c.Values)
	default:
		return describeCategorical(c.Values)
	}
}

func describeNumeric(values []any) map[string]any {
	xs := make([]float64, 0, len(values))
	for _, v := range values {
		if f, ok := dataset.ToFloat(v); ok && !math.IsNaN(f) {
			xs = append(xs, f)
		}
	}
	if len(xs) == 0 {
		return map[string]any{}
	}

	n := float64(len(xs))
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / n

	std := math.NaN()
	if len(xs) > 1 {
		var ss float64
		for _, x := range xs {
			ss += (x - mean) * (x - mean)
		}
		std = math.Sqrt(ss / (n - 1))
	}

	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	return map[string]any{
		"count": len(xs),
		"mean":  mean,
		"std":   std,
		"min":   sorted[0],
		"25%":   Quantile(sorted, 0.25),
		"50%":   Quantile(sorted, 0.50),
		"75%":   Quantile(sorted, 0.75),
		"max":   sorted[len(sorted)-1],
	}
}

// Quantile returns the q-th quantile of sorted using linear interpolation
// between closest ranks.
func Quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func describeDatetime(values []any) map[string]any {
	var (
		count            int
		earliest, latest time.Time
		unique           = make(map[int64]struct{})
	)
	for _, v := range values {
		ts, ok := v.(time.Time)
		if !ok {
			continue
		}
		if count == 0 || ts.Before(earliest) {
			earliest = ts
		}
		if count == 0 || ts.After(latest) {
			latest = ts
		}
		unique[ts.UnixNano()] = struct{}{}
		count++
	}
	if count == 0 {
		return map[string]any{}
	}
	return map[string]any{
		"count":  count,
		"unique": len(unique),
		"min":    dataset.FormatValue(earliest),
		"max":    dataset.FormatValue(latest),
	}
}

func describeCategorical(values []any) map[string]any {
	var (
		count int
		order []string
		freq  = make(map[string]int)
		first = make(map[string]any)
	)
	for _, v := range values {
		if v == nil {
			continue
		}
		key := fmt.Sprint(v)
		if _, seen := freq[key]; !seen {
			order = append(order, key)
			first[key] = v
		}
		freq[key]++
		count++
	}
	if count == 0 {
		return map[string]any{}
	}

	top := order[0]
	for _, k := range order[1:] {
		if freq[k] > freq[top] {
			top = k
		}
	}
	return map[string]any{
		"count":  count,
		"unique": len(order),
		"top":    first[top],
		"freq":   freq[top],
	}
}

// ColumnKinds groups profile columns the way chart defaults are chosen:
// int/float dtypes are numeric, date/time dtypes or names are dates, the
// rest are categorical.
type ColumnKinds struct {
	Numeric     []string `json:"numeric"`
	Date        []string `json:"date"`
	Categorical []string `json:"categorical"`
}

// Kinds classifies the profile's columns in declaration order.
func (p DatasetProfile) Kinds() ColumnKinds {
	var k ColumnKinds
	for _, col := range p.Columns {
		dtype := strings.ToLower(p.Dtypes[col])
		name := strings.ToLower(col)
		switch {
		case strings.Contains(dtype, "int") || strings.Contains(dtype, "float"):
			k.Numeric = append(k.Numeric, col)
		case strings.Contains(dtype, "date") || strings.Contains(dtype, "time"):
			k.Date = append(k.Date, col)
		case strings.Contains(name, "date") || strings.Contains(name, "time"):
			k.Date = append(k.Date, col)
		default:
			k.Categorical = append(k.Categorical, col)
		}
	}
	return k
}

// HasDefaultChart reports whether an obvious default chart exists: at least
// one date-like column and one numeric column.
func (p DatasetProfile) HasDefaultChart() bool {
	k := p.Kinds()
	return len(k.Date) > 0 && len(k.Numeric) > 0
}
