package sandbox

import (
	"math"

	"github.com/dop251/goja"

	"github.com/sigamony/DataViz/internal/render"
)

const (
	pixelsPerInch = 100
	maxBins       = 500
)

// plotFuncs is the plt global, drawing onto the executor's surface.
type plotFuncs struct {
	*binder
	s *render.Surface
}

func (p *plotFuncs) figure() *render.Figure {
	f, err := p.s.Current()
	if err != nil {
		p.goError(err)
	}
	return f
}

func (p *plotFuncs) add(sr render.Series) {
	if err := p.s.Add(sr); err != nil {
		p.goError(err)
	}
}

// label reads a series label from a string or an options object.
func label(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	if obj, ok := v.(*goja.Object); ok {
		if l := obj.Get("label"); l != nil && !goja.IsUndefined(l) {
			return l.String()
		}
		return ""
	}
	return v.String()
}

// option reads a named option from an options object argument.
func option(v goja.Value, name string) goja.Value {
	obj, ok := v.(*goja.Object)
	if !ok || isArray(v) {
		return nil
	}
	o := obj.Get(name)
	if o == nil || goja.IsUndefined(o) || goja.IsNull(o) {
		return nil
	}
	return o
}

// xy parses (x, y, label?) or (y, label?); a lone y is plotted against its index.
func (p *plotFuncs) xy(fn string, call goja.FunctionCall) (x []any, y []float64, rest goja.Value) {
	if isArray(call.Argument(1)) {
		x = p.list(fn, call.Argument(0))
		y = p.floats(fn, call.Argument(1))
		rest = call.Argument(2)
	} else {
		y = p.floats(fn, call.Argument(0))
		x = make([]any, len(y))
		for i := range x {
			x[i] = float64(i)
		}
		rest = call.Argument(1)
	}
	if len(x) != len(y) {
		p.typeError("%s: x and y must have the same length (%d vs %d)", fn, len(x), len(y))
	}
	return x, y, rest
}

func (p *plotFuncs) build() *goja.Object {
	obj := p.vm.NewObject()
	set := func(name string, fn func(goja.FunctionCall) goja.Value) {
		_ = obj.Set(name, fn)
	}
	series := func(name string, kind render.Kind) {
		set(name, func(call goja.FunctionCall) goja.Value {
			x, y, rest := p.xy("plt."+name, call)
			p.add(render.Series{Kind: kind, Label: label(rest), X: x, Y: y})
			return goja.Undefined()
		})
	}
	text := func(name string, apply func(f *render.Figure, s string)) {
		set(name, func(call goja.FunctionCall) goja.Value {
			arg := call.Argument(0)
			s := ""
			if !goja.IsUndefined(arg) && !goja.IsNull(arg) {
				s = arg.String()
			}
			apply(p.figure(), s)
			return goja.Undefined()
		})
	}
	noop := func(goja.FunctionCall) goja.Value { return goja.Undefined() }

	set("figure", func(call goja.FunctionCall) goja.Value {
		f, err := p.s.NewFigure()
		if err != nil {
			p.goError(err)
		}
		if size := option(call.Argument(0), "figsize"); size != nil {
			dims := p.floats("plt.figure", size)
			if len(dims) != 2 || math.IsNaN(dims[0]) || math.IsNaN(dims[1]) {
				p.typeError("plt.figure: figsize must be [width, height] in inches")
			}
			f.SetSize(int(dims[0]*pixelsPerInch), int(dims[1]*pixelsPerInch))
		}
		return goja.Undefined()
	})

	series("plot", render.KindLine)
	series("bar", render.KindBar)
	series("barh", render.KindBarH)
	series("scatter", render.KindScatter)

	set("hist", func(call goja.FunctionCall) goja.Value {
		values := p.floats("plt.hist", call.Argument(0))
		bins := 0
		arg := call.Argument(1)
		if b := option(arg, "bins"); b != nil {
			bins = int(b.ToInteger())
		} else if !goja.IsUndefined(arg) && !goja.IsNull(arg) && !isObject(arg) {
			bins = int(arg.ToInteger())
		}
		if bins < 0 || bins > maxBins {
			p.typeError("plt.hist: bins must be between 1 and %d", maxBins)
		}
		p.add(render.Series{Kind: render.KindHist, Label: label(option(arg, "label")), Y: values, Bins: bins})
		return goja.Undefined()
	})

	set("pie", func(call goja.FunctionCall) goja.Value {
		values := p.floats("plt.pie", call.Argument(0))
		for _, v := range values {
			if v < 0 {
				p.typeError("plt.pie: wedge sizes must be non-negative")
			}
		}
		labelsArg := call.Argument(1)
		if l := option(labelsArg, "labels"); l != nil {
			labelsArg = l
		}
		var labels []string
		if isArray(labelsArg) {
			for _, l := range p.list("plt.pie", labelsArg) {
				labels = append(labels, render.Label(l))
			}
			if len(labels) != len(values) {
				p.typeError("plt.pie: %d labels for %d wedges", len(labels), len(values))
			}
		}
		p.add(render.Series{Kind: render.KindPie, Y: values, Labels: labels})
		return goja.Undefined()
	})

	text("title", func(f *render.Figure, s string) { f.Title = s })
	text("xlabel", func(f *render.Figure, s string) { f.XLabel = s })
	text("ylabel", func(f *render.Figure, s string) { f.YLabel = s })
	set("legend", func(goja.FunctionCall) goja.Value {
		p.figure().Legend = true
		return goja.Undefined()
	})
	set("xticksRotation", func(call goja.FunctionCall) goja.Value {
		if deg := call.Argument(0).ToFloat(); !math.IsNaN(deg) {
			p.figure().XTickRotation = deg
		}
		return goja.Undefined()
	})
	set("xticks", func(call goja.FunctionCall) goja.Value {
		if r := option(call.Argument(0), "rotation"); r != nil {
			p.figure().XTickRotation = r.ToFloat()
		}
		return goja.Undefined()
	})
	set("style", func(call goja.FunctionCall) goja.Value {
		p.s.SetStyle(call.Argument(0).String())
		return goja.Undefined()
	})
	set("close", func(call goja.FunctionCall) goja.Value {
		if call.Argument(0).String() == "all" {
			p.s.CloseAll()
		} else {
			p.s.Close()
		}
		return goja.Undefined()
	})
	set("show", noop)
	set("tightLayout", noop)
	set("grid", noop)
	return obj
}

func isObject(v goja.Value) bool {
	_, ok := v.(*goja.Object)
	return ok
}
