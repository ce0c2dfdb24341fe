package render

import (
	"encoding/hex"
	"fmt"
	"image/color"
	"strings"
	"sync"

	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

type theme struct {
	figureBG color.Color
	axesBG   color.Color
	text     color.Color
	spine    color.Color
	grid     color.Color
	gridOn   bool
	palette  []color.Color
}

var tab10 = mustPalette("#1F77B4", "#FF7F0E", "#2CA02C", "#D62728", "#9467BD",
	"#8C564B", "#E377C2", "#7F7F7F", "#BCBD22", "#17BECF")

var themes = map[string]theme{
	"default": {
		figureBG: color.White, axesBG: color.White, text: color.Black,
		spine: color.Black, grid: mustHex("#B0B0B0"), palette: tab10,
	},
	"ggplot": {
		figureBG: color.White, axesBG: mustHex("#E5E5E5"), text: mustHex("#555555"),
		spine: color.White, grid: color.White, gridOn: true,
		palette: mustPalette("#E24A33", "#348ABD", "#988ED5", "#777777", "#FBC15E", "#8EBA42", "#FFB5B8"),
	},
	"seaborn": {
		figureBG: color.White, axesBG: mustHex("#EAEAF2"), text: mustHex("#262626"),
		spine: color.White, grid: color.White, gridOn: true,
		palette: mustPalette("#4C72B0", "#DD8452", "#55A868", "#C44E52", "#8172B3", "#937860", "#DA8BC3", "#8C8C8C"),
	},
	"fivethirtyeight": {
		figureBG: mustHex("#F0F0F0"), axesBG: mustHex("#F0F0F0"), text: mustHex("#3C3C3C"),
		spine: mustHex("#F0F0F0"), grid: mustHex("#CBCBCB"), gridOn: true,
		palette: mustPalette("#008FD5", "#FC4F30", "#E5AE38", "#6D904F", "#8B8B8B", "#810F7C"),
	},
	"dark_background": {
		figureBG: color.Black, axesBG: color.Black, text: color.White,
		spine: color.White, grid: mustHex("#555555"), palette: tab10,
	},
	"whitegrid": {
		figureBG: color.White, axesBG: color.White, text: mustHex("#262626"),
		spine: mustHex("#CCCCCC"), grid: mustHex("#DDDDDD"), gridOn: true, palette: tab10,
	},
}

// themeFor resolves a style name. Unknown names fall back to the default.
func themeFor(name string) theme {
	n := strings.ToLower(strings.TrimSpace(name))
	if t, ok := themes[n]; ok {
		return t
	}
	switch {
	case strings.Contains(n, "ggplot"):
		return themes["ggplot"]
	case strings.Contains(n, "whitegrid"):
		return themes["whitegrid"]
	case strings.HasPrefix(n, "seaborn"):
		return themes["seaborn"]
	case strings.Contains(n, "dark"):
		return themes["dark_background"]
	}
	return themes["default"]
}

// Styles lists the built-in style names.
func Styles() []string {
	return []string{"default", "ggplot", "seaborn", "fivethirtyeight", "dark_background", "whitegrid"}
}

func mustHex(s string) color.Color {
	c, err := parseHex(s)
	if err != nil {
		panic(err)
	}
	return c
}

func mustPalette(hexes ...string) []color.Color {
	out := make([]color.Color, len(hexes))
	for i, h := range hexes {
		out[i] = mustHex(h)
	}
	return out
}

func parseHex(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("color %q: expected 6 hex chars", s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("color %q: %w", s, err)
	}
	return color.NRGBA{R: raw[0], G: raw[1], B: raw[2], A: 0xFF}, nil
}

var (
	fontOnce sync.Once
	goFont   *truetype.Font
	fontErr  error
)

// face returns a Go Regular face at size points. Faces carry a glyph cache
// and must not be shared across goroutines.
func face(size float64) (font.Face, error) {
	fontOnce.Do(func() {
		goFont, fontErr = truetype.Parse(goregular.TTF)
	})
	if fontErr != nil {
		return nil, fmt.Errorf("parsing font: %w", fontErr)
	}
	return truetype.NewFace(goFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
