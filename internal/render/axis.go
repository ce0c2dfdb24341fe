package render

import (
	"math"
	"strconv"
	"strings"
	"time"
)

type axisKind int

const (
	axisNumeric axisKind = iota
	axisTime
	axisCategory
)

type tick struct {
	pos   float64
	label string
}

// axis maps data values onto a continuous coordinate in [lo, hi].
type axis struct {
	kind       axisKind
	lo, hi     float64
	ticks      []tick
	categories []string
	index      map[string]int
}

// classify picks the axis kind able to hold every non-nil value.
func classify(values []any) axisKind {
	kind := axisNumeric
	seen := false
	for _, v := range values {
		switch normalize(v).(type) {
		case nil:
			continue
		case float64:
			if seen && kind != axisNumeric {
				return axisCategory
			}
			kind = axisNumeric
		case time.Time:
			if seen && kind != axisTime {
				return axisCategory
			}
			kind = axisTime
		default:
			return axisCategory
		}
		seen = true
	}
	return kind
}

// coord returns v's position on a, or false when v cannot be placed.
func (a *axis) coord(v any) (float64, bool) {
	switch x := normalize(v).(type) {
	case nil:
		return 0, false
	case float64:
		if a.kind == axisCategory {
			return a.categoryCoord(formatValue(x))
		}
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return clampMagnitude(x), true
	case time.Time:
		if a.kind == axisCategory {
			return a.categoryCoord(formatValue(x))
		}
		return timeCoord(x), true
	case string:
		return a.categoryCoord(x)
	}
	return 0, false
}

func (a *axis) categoryCoord(s string) (float64, bool) {
	i, ok := a.index[s]
	return float64(i), ok
}

func timeCoord(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Label renders a script value the way category ticks show it.
func Label(v any) string {
	return formatValue(normalize(v))
}

func formatValue(v any) string {
	switch x := v.(type) {
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	case string:
		return x
	}
	return ""
}

// newCategoryAxis orders categories by first appearance.
func newCategoryAxis(values []any) *axis {
	a := &axis{kind: axisCategory, index: make(map[string]int)}
	for _, v := range values {
		n := normalize(v)
		if n == nil {
			continue
		}
		s := formatValue(n)
		if _, ok := a.index[s]; ok {
			continue
		}
		a.index[s] = len(a.categories)
		a.categories = append(a.categories, s)
	}
	a.lo, a.hi = -0.5, float64(len(a.categories))-0.5
	if len(a.categories) == 0 {
		a.lo, a.hi = -0.5, 0.5
	}
	step := 1
	if n := len(a.categories); n > 30 {
		step = (n + 29) / 30
	}
	for i := 0; i < len(a.categories); i += step {
		a.ticks = append(a.ticks, tick{pos: float64(i), label: a.categories[i]})
	}
	return a
}

// maxMagnitude bounds plotted values so spans, margins and tick steps stay
// finite.
const maxMagnitude = 1e300

func clampMagnitude(v float64) float64 {
	return math.Max(-maxMagnitude, math.Min(maxMagnitude, v))
}

// newNumericAxis spans the finite values with 5% margins. includeZero pins
// the baseline for bars; a zero edge gets no margin.
func newNumericAxis(values []float64, includeZero bool) *axis {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		v = clampMagnitude(v)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		lo, hi = 0, 1
	}
	if includeZero {
		lo = math.Min(lo, 0)
		hi = math.Max(hi, 0)
	}
	if lo == hi {
		d := math.Max(math.Abs(lo)*0.1, 0.5)
		lo, hi = lo-d, hi+d
	}
	pad := (hi - lo) * 0.05
	if !(includeZero && lo == 0) {
		lo -= pad
	}
	if !(includeZero && hi == 0) {
		hi += pad
	}
	a := &axis{kind: axisNumeric, lo: lo, hi: hi}
	a.ticks = numericTicks(lo, hi, 7)
	return a
}

func niceNum(x float64, round bool) float64 {
	exp := math.Floor(math.Log10(x))
	f := x / math.Pow(10, exp)
	var nf float64
	if round {
		switch {
		case f < 1.5:
			nf = 1
		case f < 3:
			nf = 2
		case f < 7:
			nf = 5
		default:
			nf = 10
		}
	} else {
		switch {
		case f <= 1:
			nf = 1
		case f <= 2:
			nf = 2
		case f <= 5:
			nf = 5
		default:
			nf = 10
		}
	}
	return nf * math.Pow(10, exp)
}

// numericTicks returns round tick positions inside [lo, hi]. A range whose
// step cannot be computed gets its two endpoints as ticks.
func numericTicks(lo, hi float64, maxTicks int) []tick {
	span := niceNum(hi-lo, false)
	step := niceNum(span/float64(maxTicks-1), true)
	first := math.Ceil(lo/step) * step
	if !finite(step) || step <= 0 || !finite(first) {
		return []tick{{pos: lo, label: formatTick(lo, 0)}, {pos: hi, label: formatTick(hi, 0)}}
	}
	decimals := 0
	if step < 1 {
		decimals = int(math.Ceil(-math.Log10(step)))
	}
	var ticks []tick
	for i := 0; i <= 4*maxTicks; i++ {
		v := first + float64(i)*step
		if v > hi+step*1e-9 {
			break
		}
		if math.Abs(v) < step*1e-9 {
			v = 0
		}
		ticks = append(ticks, tick{pos: v, label: formatTick(v, decimals)})
	}
	return ticks
}

func formatTick(v float64, decimals int) string {
	if math.Abs(v) >= 1e7 {
		return strconv.FormatFloat(v, 'g', 4, 64)
	}
	s := strconv.FormatFloat(v, 'f', decimals, 64)
	if decimals == 0 {
		return groupThousands(s)
	}
	return s
}

func groupThousands(s string) string {
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")
	if len(s) <= 4 {
		if neg {
			return "-" + s
		}
		return s
	}
	var b strings.Builder
	pre := len(s) % 3
	if pre > 0 {
		b.WriteString(s[:pre])
	}
	for i := pre; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

type timeStep struct {
	d      time.Duration
	months int
	layout string
}

var timeSteps = []timeStep{
	{d: time.Second, layout: "15:04:05"},
	{d: 5 * time.Second, layout: "15:04:05"},
	{d: 15 * time.Second, layout: "15:04:05"},
	{d: time.Minute, layout: "15:04"},
	{d: 5 * time.Minute, layout: "15:04"},
	{d: 15 * time.Minute, layout: "15:04"},
	{d: time.Hour, layout: "01-02 15:04"},
	{d: 3 * time.Hour, layout: "01-02 15:04"},
	{d: 6 * time.Hour, layout: "01-02 15:04"},
	{d: 12 * time.Hour, layout: "01-02 15:04"},
	{d: 24 * time.Hour, layout: "2006-01-02"},
	{d: 2 * 24 * time.Hour, layout: "2006-01-02"},
	{d: 7 * 24 * time.Hour, layout: "2006-01-02"},
	{d: 14 * 24 * time.Hour, layout: "2006-01-02"},
	{months: 1, layout: "2006-01"},
	{months: 2, layout: "2006-01"},
	{months: 3, layout: "2006-01"},
	{months: 6, layout: "2006-01"},
	{months: 12, layout: "2006"},
	{months: 24, layout: "2006"},
	{months: 60, layout: "2006"},
	{months: 120, layout: "2006"},
}

func (s timeStep) approx() time.Duration {
	if s.months > 0 {
		return time.Duration(s.months) * 30 * 24 * time.Hour
	}
	return s.d
}

// newTimeAxis spans the times with 2% margins and calendar-aligned ticks.
func newTimeAxis(values []time.Time) *axis {
	if len(values) == 0 {
		return newNumericAxis(nil, false)
	}
	lo, hi := values[0], values[0]
	for _, t := range values[1:] {
		if t.Before(lo) {
			lo = t
		}
		if t.After(hi) {
			hi = t
		}
	}
	if lo.Equal(hi) {
		lo = lo.Add(-24 * time.Hour)
		hi = hi.Add(24 * time.Hour)
	}
	pad := time.Duration(float64(hi.Sub(lo)) * 0.02)
	lo, hi = lo.Add(-pad), hi.Add(pad)

	a := &axis{kind: axisTime, lo: timeCoord(lo), hi: timeCoord(hi)}
	a.ticks = timeTicks(lo.UTC(), hi.UTC(), 8)
	return a
}

func timeTicks(lo, hi time.Time, maxTicks int) []tick {
	span := hi.Sub(lo)
	step := timeSteps[len(timeSteps)-1]
	for _, s := range timeSteps {
		if span/s.approx() <= time.Duration(maxTicks) {
			step = s
			break
		}
	}

	var ticks []tick
	add := func(t time.Time) {
		ticks = append(ticks, tick{pos: timeCoord(t), label: t.Format(step.layout)})
	}
	if step.months > 0 {
		m := (int(lo.Month()) - 1) / step.months * step.months
		t := time.Date(lo.Year(), time.Month(m+1), 1, 0, 0, 0, 0, time.UTC)
		for !t.After(hi) {
			if !t.Before(lo) {
				add(t)
			}
			t = t.AddDate(0, step.months, 0)
		}
		return ticks
	}
	t := lo.Truncate(step.d)
	if t.Before(lo) {
		t = t.Add(step.d)
	}
	for ; !t.After(hi); t = t.Add(step.d) {
		add(t)
	}
	return ticks
}
