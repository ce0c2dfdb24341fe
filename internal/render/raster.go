package render

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"sort"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
)

const (
	tickSize  = 13
	labelSize = 15
	titleSize = 18
	cropPad   = 10
)

type faces struct {
	tick, label, title font.Face
}

func newFaces() (faces, error) {
	var fs faces
	var err error
	if fs.tick, err = face(tickSize); err != nil {
		return fs, err
	}
	if fs.label, err = face(labelSize); err != nil {
		return fs, err
	}
	fs.title, err = face(titleSize)
	return fs, err
}

// PNG rasterizes f and crops it to its drawn content.
func (f *Figure) PNG() ([]byte, error) {
	img, err := f.Rasterize()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Rasterize draws f and returns the image cropped to a tight bounding box.
func (f *Figure) Rasterize() (image.Image, error) {
	w, h := f.Width, f.Height
	if w <= 0 || h <= 0 {
		w, h = DefaultWidth, DefaultHeight
	}
	fs, err := newFaces()
	if err != nil {
		return nil, err
	}
	th := themeFor(f.Style)

	dc := gg.NewContext(w, h)
	dc.SetColor(th.figureBG)
	dc.Clear()

	if pie, ok := f.firstPie(); ok {
		drawPie(dc, f, pie, th, fs)
	} else {
		drawCartesian(dc, f, th, fs)
	}
	return cropToContent(dc.Image(), th.figureBG, cropPad), nil
}

func (f *Figure) firstPie() (Series, bool) {
	for _, s := range f.Series {
		if s.Kind == KindPie {
			return s, true
		}
	}
	return Series{}, false
}

// plotted is a series resolved against its axes.
type plotted struct {
	Series
	color  color.Color
	edges  []float64 // hist bin edges
	counts []float64 // hist bin counts
}

func drawCartesian(dc *gg.Context, f *Figure, th theme, fs faces) {
	var series []plotted
	for _, s := range f.Series {
		if s.Kind == KindPie {
			continue
		}
		p := plotted{Series: s, color: th.palette[len(series)%len(th.palette)]}
		if s.Kind == KindHist {
			p.edges, p.counts = histogram(s.Y, s.Bins)
		}
		series = append(series, p)
	}

	horizontal := len(series) > 0
	for _, s := range series {
		if s.Kind != KindBarH {
			horizontal = false
		}
	}

	xa, ya, barWidth := buildAxes(series, horizontal)

	W, H := float64(dc.Width()), float64(dc.Height())

	// Margins depend on the rendered tick labels.
	dc.SetFontFace(fs.tick)
	var yTickW float64
	for _, t := range ya.ticks {
		tw, _ := dc.MeasureString(truncate(t.label))
		yTickW = math.Max(yTickW, tw)
	}
	_, tickH := dc.MeasureString("0")
	dc.SetFontFace(fs.label)
	_, labelH := dc.MeasureString("Xy")

	left := yTickW + 18
	if f.YLabel != "" {
		left += labelH + 12
	}
	top := 20.0
	if f.Title != "" {
		dc.SetFontFace(fs.title)
		_, titleH := dc.MeasureString(f.Title)
		top = titleH + 30
	}
	right := 30.0

	plotW := W - left - right
	rotation := f.XTickRotation
	dc.SetFontFace(fs.tick)
	var xTickW, totalW float64
	for _, t := range xa.ticks {
		tw, _ := dc.MeasureString(truncate(t.label))
		xTickW = math.Max(xTickW, tw)
		totalW += tw + 8
	}
	if rotation == 0 && totalW > plotW {
		rotation = 45
	}
	theta := gg.Radians(math.Abs(rotation))
	xTickExtent := tickH
	if rotation != 0 {
		xTickExtent = xTickW*math.Sin(theta) + tickH*math.Cos(theta)
	}
	bottom := xTickExtent + 20
	if f.XLabel != "" {
		bottom += labelH + 12
	}

	x0, y0 := left, top
	x1, y1 := W-right, H-bottom
	if x1-x0 < 50 {
		x1 = x0 + 50
	}
	if y1-y0 < 50 {
		y1 = y0 + 50
	}
	pw, ph := x1-x0, y1-y0
	px := func(v float64) float64 { return x0 + (clampMagnitude(v)-xa.lo)/(xa.hi-xa.lo)*pw }
	py := func(v float64) float64 { return y1 - (clampMagnitude(v)-ya.lo)/(ya.hi-ya.lo)*ph }

	dc.SetColor(th.axesBG)
	dc.DrawRectangle(x0, y0, pw, ph)
	dc.Fill()

	if th.gridOn {
		dc.SetColor(th.grid)
		dc.SetLineWidth(1)
		for _, t := range xa.ticks {
			dc.DrawLine(px(t.pos), y0, px(t.pos), y1)
		}
		for _, t := range ya.ticks {
			dc.DrawLine(x0, py(t.pos), x1, py(t.pos))
		}
		dc.Stroke()
	}

	dc.DrawRectangle(x0, y0, pw, ph)
	dc.Clip()
	bars, nbars := 0, 0
	for _, s := range series {
		if s.Kind == KindBar || s.Kind == KindBarH {
			nbars++
		}
	}
	for _, s := range series {
		switch s.Kind {
		case KindLine:
			drawLine(dc, s, xa, px, py)
		case KindScatter:
			drawScatter(dc, s, xa, px, py)
		case KindBar:
			drawBars(dc, s, xa, px, py, barWidth, bars, nbars)
			bars++
		case KindBarH:
			if horizontal {
				drawHBars(dc, s, ya, px, py, barWidth, bars, nbars)
			} else {
				drawBars(dc, s, xa, px, py, barWidth, bars, nbars)
			}
			bars++
		case KindHist:
			drawHist(dc, s, px, py, th.axesBG)
		}
	}
	dc.ResetClip()

	dc.SetColor(th.spine)
	dc.SetLineWidth(1)
	dc.DrawRectangle(x0, y0, pw, ph)
	dc.Stroke()

	dc.SetFontFace(fs.tick)
	dc.SetColor(th.text)
	for _, t := range ya.ticks {
		y := py(t.pos)
		dc.DrawLine(x0-5, y, x0, y)
		dc.Stroke()
		dc.DrawStringAnchored(truncate(t.label), x0-8, y, 1, 0.35)
	}
	for _, t := range xa.ticks {
		x := px(t.pos)
		dc.DrawLine(x, y1, x, y1+5)
		dc.Stroke()
		label := truncate(t.label)
		if rotation == 0 {
			dc.DrawStringAnchored(label, x, y1+8, 0.5, 1)
			continue
		}
		dc.Push()
		dc.RotateAbout(gg.Radians(-rotation), x, y1+8)
		dc.DrawStringAnchored(label, x, y1+8, 1, 0.7)
		dc.Pop()
	}

	if f.XLabel != "" {
		dc.SetFontFace(fs.label)
		dc.DrawStringAnchored(f.XLabel, x0+pw/2, y1+xTickExtent+18, 0.5, 1)
	}
	if f.YLabel != "" {
		dc.SetFontFace(fs.label)
		lx := x0 - yTickW - 18 - labelH/2
		dc.Push()
		dc.RotateAbout(gg.Radians(-90), lx, y0+ph/2)
		dc.DrawStringAnchored(f.YLabel, lx, y0+ph/2, 0.5, 0.5)
		dc.Pop()
	}
	drawTitle(dc, f, fs, x0+pw/2, top/2+4)

	if f.Legend {
		var entries []legendEntry
		for _, s := range series {
			if s.Label != "" {
				entries = append(entries, legendEntry{label: s.Label, color: s.color, line: s.Kind == KindLine})
			}
		}
		drawLegend(dc, entries, th, fs, x1-10, y0+10)
	}
}

// buildAxes derives both axes. barWidth is in x-axis units (y-axis units
// when horizontal) for one full bar group.
func buildAxes(series []plotted, horizontal bool) (xa, ya *axis, barWidth float64) {
	var xs []any
	var ys []float64
	hasBars := false
	for _, s := range series {
		switch s.Kind {
		case KindHist:
			for _, e := range s.edges {
				xs = append(xs, e)
			}
			ys = append(ys, s.counts...)
			hasBars = true
		default:
			xs = append(xs, s.X...)
			ys = append(ys, s.Y...)
			if s.Kind == KindBar || s.Kind == KindBarH {
				hasBars = true
			}
		}
	}

	if horizontal {
		return newNumericAxis(ys, true), newCategoryAxis(xs), 0.8
	}

	barWidth = 0.8
	switch classify(xs) {
	case axisCategory:
		xa = newCategoryAxis(xs)
	case axisTime:
		times := make([]time.Time, 0, len(xs))
		for _, v := range xs {
			if t, ok := normalize(v).(time.Time); ok {
				times = append(times, t)
			}
		}
		xa = newTimeAxis(times)
		if hasBars {
			barWidth = 0.8 * minGap(xa, xs)
			widenForBars(xa, barWidth)
		}
	default:
		floats := make([]float64, 0, len(xs))
		for _, v := range xs {
			if x, ok := normalize(v).(float64); ok {
				floats = append(floats, x)
			}
		}
		xa = newNumericAxis(floats, false)
		if hasBars {
			barWidth = 0.8 * minGap(xa, xs)
			widenForBars(xa, barWidth)
		}
	}
	return xa, newNumericAxis(ys, hasBars), barWidth
}

// minGap is the smallest positive distance between distinct x coordinates.
func minGap(a *axis, xs []any) float64 {
	var cs []float64
	for _, v := range xs {
		if c, ok := a.coord(v); ok {
			cs = append(cs, c)
		}
	}
	sort.Float64s(cs)
	gap := math.Inf(1)
	for i := 1; i < len(cs); i++ {
		if d := cs[i] - cs[i-1]; d > 0 && d < gap {
			gap = d
		}
	}
	if math.IsInf(gap, 1) {
		return (a.hi - a.lo) / 2
	}
	return gap
}

func widenForBars(a *axis, width float64) {
	a.lo -= width / 2
	a.hi += width / 2
}

func drawLine(dc *gg.Context, s plotted, xa *axis, px, py func(float64) float64) {
	dc.SetColor(s.color)
	dc.SetLineWidth(2)
	pen := false
	for i := 0; i < len(s.X) && i < len(s.Y); i++ {
		x, ok := xa.coord(s.X[i])
		if !ok || !finite(s.Y[i]) {
			pen = false
			continue
		}
		if pen {
			dc.LineTo(px(x), py(s.Y[i]))
		} else {
			dc.MoveTo(px(x), py(s.Y[i]))
			pen = true
		}
	}
	dc.Stroke()
}

func drawScatter(dc *gg.Context, s plotted, xa *axis, px, py func(float64) float64) {
	dc.SetColor(s.color)
	for i := 0; i < len(s.X) && i < len(s.Y); i++ {
		x, ok := xa.coord(s.X[i])
		if !ok || !finite(s.Y[i]) {
			continue
		}
		dc.DrawCircle(px(x), py(s.Y[i]), 3.5)
		dc.Fill()
	}
}

func drawBars(dc *gg.Context, s plotted, xa *axis, px, py func(float64) float64, group float64, idx, n int) {
	bw := group / float64(n)
	off := -group/2 + bw*(float64(idx)+0.5)
	dc.SetColor(s.color)
	for i := 0; i < len(s.X) && i < len(s.Y); i++ {
		x, ok := xa.coord(s.X[i])
		if !ok || !finite(s.Y[i]) {
			continue
		}
		l, r := px(x+off-bw/2), px(x+off+bw/2)
		top, base := py(s.Y[i]), py(0)
		dc.DrawRectangle(l, math.Min(top, base), r-l, math.Abs(base-top))
		dc.Fill()
	}
}

func drawHBars(dc *gg.Context, s plotted, ya *axis, px, py func(float64) float64, group float64, idx, n int) {
	bh := group / float64(n)
	off := -group/2 + bh*(float64(idx)+0.5)
	dc.SetColor(s.color)
	for i := 0; i < len(s.X) && i < len(s.Y); i++ {
		y, ok := ya.coord(s.X[i])
		if !ok || !finite(s.Y[i]) {
			continue
		}
		t, b := py(y+off+bh/2), py(y+off-bh/2)
		end, base := px(s.Y[i]), px(0)
		dc.DrawRectangle(math.Min(end, base), t, math.Abs(end-base), b-t)
		dc.Fill()
	}
}

func drawHist(dc *gg.Context, s plotted, px, py func(float64) float64, edge color.Color) {
	for i, c := range s.counts {
		l, r := px(s.edges[i]), px(s.edges[i+1])
		top, base := py(c), py(0)
		dc.DrawRectangle(l, top, r-l, base-top)
		dc.SetColor(s.color)
		dc.FillPreserve()
		dc.SetColor(edge)
		dc.SetLineWidth(1)
		dc.Stroke()
	}
}

// histogram bins the finite values into equal-width bins (10 by default).
func histogram(values []float64, bins int) (edges, counts []float64) {
	if bins <= 0 {
		bins = 10
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	var vals []float64
	for _, v := range values {
		if !finite(v) {
			continue
		}
		v = clampMagnitude(v)
		vals = append(vals, v)
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if len(vals) == 0 {
		lo, hi = 0, 1
	}
	if lo == hi {
		lo, hi = lo-0.5, hi+0.5
	}
	width := (hi - lo) / float64(bins)
	edges = make([]float64, bins+1)
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	counts = make([]float64, bins)
	for _, v := range vals {
		i := int((v - lo) / width)
		if i < 0 {
			i = 0
		}
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	return edges, counts
}

func drawPie(dc *gg.Context, f *Figure, s Series, th theme, fs faces) {
	W, H := float64(dc.Width()), float64(dc.Height())
	top := 20.0
	if f.Title != "" {
		top = 60
	}
	cx, cy := W/2, top+(H-top)/2
	r := math.Min(W, H-top) / 2 * 0.7

	labels := s.Labels
	if len(labels) == 0 {
		for _, x := range s.X {
			labels = append(labels, formatValue(normalize(x)))
		}
	}
	var total float64
	for _, v := range s.Y {
		if finite(v) && v > 0 {
			total += clampMagnitude(v)
		}
	}

	var entries []legendEntry
	dc.SetFontFace(fs.tick)
	angle := -math.Pi / 2
	for i, v := range s.Y {
		if !finite(v) || v <= 0 || total == 0 {
			continue
		}
		sweep := clampMagnitude(v) / total * 2 * math.Pi
		c := th.palette[i%len(th.palette)]
		dc.SetColor(c)
		dc.MoveTo(cx, cy)
		dc.DrawArc(cx, cy, r, angle, angle+sweep)
		dc.ClosePath()
		dc.FillPreserve()
		dc.SetColor(th.figureBG)
		dc.SetLineWidth(1.5)
		dc.Stroke()

		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		mid := angle + sweep/2
		lx, ly := cx+math.Cos(mid)*r*1.1, cy+math.Sin(mid)*r*1.1
		ax := 0.0
		if math.Cos(mid) < 0 {
			ax = 1
		}
		dc.SetColor(th.text)
		text := fmt.Sprintf("%.1f%%", v/total*100)
		if label != "" {
			text = label + " (" + text + ")"
		}
		dc.DrawStringAnchored(truncate(text), lx, ly, ax, 0.5)
		if label != "" {
			entries = append(entries, legendEntry{label: label, color: c})
		}
		angle += sweep
	}
	if total == 0 {
		dc.SetColor(th.spine)
		dc.DrawCircle(cx, cy, r)
		dc.Stroke()
	}

	drawTitle(dc, f, fs, W/2, top/2+4)
	if f.Legend {
		drawLegend(dc, entries, th, fs, W-20, top)
	}
}

func drawTitle(dc *gg.Context, f *Figure, fs faces, x, y float64) {
	if f.Title == "" {
		return
	}
	dc.SetFontFace(fs.title)
	dc.SetColor(themeFor(f.Style).text)
	dc.DrawStringAnchored(f.Title, x, y, 0.5, 0.5)
}

type legendEntry struct {
	label string
	color color.Color
	line  bool
}

// drawLegend draws entries in a box whose top-right corner is (right, top).
func drawLegend(dc *gg.Context, entries []legendEntry, th theme, fs faces, right, top float64) {
	if len(entries) == 0 {
		return
	}
	dc.SetFontFace(fs.tick)
	var maxW float64
	for _, e := range entries {
		w, _ := dc.MeasureString(truncate(e.label))
		maxW = math.Max(maxW, w)
	}
	const rowH, swatch, pad = 20.0, 18.0, 8.0
	boxW := pad + swatch + 6 + maxW + pad
	boxH := pad*2 + rowH*float64(len(entries))
	left := right - boxW

	dc.SetColor(th.axesBG)
	dc.DrawRectangle(left, top, boxW, boxH)
	dc.FillPreserve()
	dc.SetColor(th.grid)
	dc.SetLineWidth(1)
	dc.Stroke()

	for i, e := range entries {
		cy := top + pad + rowH*float64(i) + rowH/2
		dc.SetColor(e.color)
		if e.line {
			dc.SetLineWidth(2)
			dc.DrawLine(left+pad, cy, left+pad+swatch, cy)
			dc.Stroke()
		} else {
			dc.DrawRectangle(left+pad+3, cy-6, swatch-6, 12)
			dc.Fill()
		}
		dc.SetColor(th.text)
		dc.DrawStringAnchored(truncate(e.label), left+pad+swatch+6, cy, 0, 0.35)
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func truncate(s string) string {
	r := []rune(s)
	if len(r) <= 32 {
		return s
	}
	return string(r[:31]) + "…"
}

// cropToContent trims background-coloured borders, keeping pad pixels.
func cropToContent(img image.Image, bg color.Color, pad int) image.Image {
	b := img.Bounds()
	br, bgc, bb, ba := bg.RGBA()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if r == br && g == bgc && bl == bb && a == ba {
				continue
			}
			if x < minX {
				minX = x
			}
			if x > maxX {
				maxX = x
			}
			if y < minY {
				minY = y
			}
			if y > maxY {
				maxY = y
			}
		}
	}
	if maxX < minX {
		return img
	}
	rect := image.Rect(minX-pad, minY-pad, maxX+1+pad, maxY+1+pad).Intersect(b)
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}
