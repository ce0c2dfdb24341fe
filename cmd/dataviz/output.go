package main

import (
	"fmt"
	"io"
	"os"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
)

// Status lines go to stderr so stdout stays clean for scripts and JSON.
var (
	statusOut io.Writer = os.Stderr
	dataOut   io.Writer = os.Stdout
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

type marker struct{ color, glyph string }

var (
	markOK   = marker{colorGreen, "✓"}
	markFail = marker{colorRed, "✗"}
	markWarn = marker{colorYellow, "⚠"}
	markStep = marker{colorCyan, "→"}
)

func (m marker) print(format string, args ...any) {
	fmt.Fprintln(statusOut, colorize(m.color, m.glyph+" "+fmt.Sprintf(format, args...)))
}

func printSuccess(format string, args ...any) { markOK.print(format, args...) }
func printError(format string, args ...any) { markFail.print(format, args...) }
func printWarning(format string, args ...any) { markWarn.print(format, args...) }
func printStep(format string, args ...any) { markStep.print(format, args...) }

func printStatus(label, format string, args ...any) {
	fmt.Fprintf(statusOut, "  %s %s\n", colorize(colorBold, label+":"), fmt.Sprintf(format, args...))
}

// printCode writes a chart script to stdout, dimmed.
func printCode(code string) {
	fmt.Fprintln(dataOut, colorize(colorDim, code))
}
