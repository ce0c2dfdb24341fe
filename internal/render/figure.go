// Package render holds the plotting surface scripts draw on and rasterizes
// its figures to PNG.
package render

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTooManyFigures = errors.New("too many figures")
	ErrTooManyPoints  = errors.New("too many points in series")
	ErrNoFigure       = errors.New("no figure")
)

// Kind is the mark type of a series.
type Kind int

const (
	KindLine Kind = iota
	KindBar
	KindBarH
	KindScatter
	KindHist
	KindPie
)

func (k Kind) String() string {
	switch k {
	case KindLine:
		return "line"
	case KindBar:
		return "bar"
	case KindBarH:
		return "barh"
	case KindScatter:
		return "scatter"
	case KindHist:
		return "hist"
	case KindPie:
		return "pie"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Series is one set of marks. X holds float64, time.Time or string values
// (nil skips the point); Y holds the measure, NaN for missing. For KindHist
// only Y is used; for KindPie Labels names each wedge.
type Series struct {
	Kind   Kind
	Label  string
	X      []any
	Y      []float64
	Bins   int
	Labels []string
}

// Len is the number of points in s.
func (s Series) Len() int {
	if len(s.X) > len(s.Y) {
		return len(s.X)
	}
	return len(s.Y)
}

// Figure is a single chart under construction.
type Figure struct {
	Title         string
	XLabel        string
	YLabel        string
	Legend        bool
	XTickRotation float64
	Style         string
	Width         int
	Height        int
	Series        []Series
}

const (
	DefaultWidth  = 1000
	DefaultHeight = 600
	maxDimension  = 2400
)

// SetSize sets the canvas size in pixels, clamped to a sane range.
func (f *Figure) SetSize(w, h int) {
	f.Width = clampInt(w, 200, maxDimension)
	f.Height = clampInt(h, 150, maxDimension)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Limits bound what a single script may draw.
type Limits struct {
	MaxFigures int
	MaxPoints  int
}

// DefaultLimits allows 8 figures and 100k points per series.
var DefaultLimits = Limits{MaxFigures: 8, MaxPoints: 100_000}

// Surface is the mutable drawing state shared by a plotting session. It is
// not safe for concurrent use; callers serialize access.
type Surface struct {
	limits  Limits
	style   string
	figures []*Figure
	current int
}

// NewSurface creates an empty surface. Zero limit fields use DefaultLimits.
func NewSurface(l Limits) *Surface {
	if l.MaxFigures <= 0 {
		l.MaxFigures = DefaultLimits.MaxFigures
	}
	if l.MaxPoints <= 0 {
		l.MaxPoints = DefaultLimits.MaxPoints
	}
	return &Surface{limits: l, current: -1}
}

// Reset discards every figure and the active style.
func (s *Surface) Reset() {
	s.figures = nil
	s.current = -1
	s.style = ""
}

// Len is the number of open figures.
func (s *Surface) Len() int { return len(s.figures) }

// NewFigure opens a figure and makes it current.
func (s *Surface) NewFigure() (*Figure, error) {
	if len(s.figures) >= s.limits.MaxFigures {
		return nil, fmt.Errorf("%w: limit is %d", ErrTooManyFigures, s.limits.MaxFigures)
	}
	f := &Figure{Style: s.style, Width: DefaultWidth, Height: DefaultHeight}
	s.figures = append(s.figures, f)
	s.current = len(s.figures) - 1
	return f, nil
}

// Current returns the current figure, opening one if none is open.
func (s *Surface) Current() (*Figure, error) {
	if s.current < 0 {
		return s.NewFigure()
	}
	return s.figures[s.current], nil
}

// Close closes the current figure; the most recently opened remaining
// figure becomes current.
func (s *Surface) Close() {
	if s.current < 0 {
		return
	}
	s.figures = append(s.figures[:s.current], s.figures[s.current+1:]...)
	s.current = len(s.figures) - 1
}

// CloseAll closes every figure.
func (s *Surface) CloseAll() {
	s.figures = nil
	s.current = -1
}

// SetStyle applies a named style to the current figure and to figures opened later.
func (s *Surface) SetStyle(name string) {
	s.style = name
	if s.current >= 0 {
		s.figures[s.current].Style = name
	}
}

// Add appends sr to the current figure.
func (s *Surface) Add(sr Series) error {
	if n := sr.Len(); n > s.limits.MaxPoints {
		return fmt.Errorf("%w: %d points, limit is %d", ErrTooManyPoints, n, s.limits.MaxPoints)
	}
	f, err := s.Current()
	if err != nil {
		return err
	}
	f.Series = append(f.Series, sr)
	return nil
}

// Export rasterizes the current figure to PNG.
func (s *Surface) Export() ([]byte, error) {
	if s.current < 0 {
		return nil, ErrNoFigure
	}
	return s.figures[s.current].PNG()
}

// normalize maps exported script values onto float64, time.Time or string.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64, time.Time, string:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case int32:
		return float64(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		return fmt.Sprint(x)
	}
}
