// Package sandbox runs generated chart scripts against a dataset in an
// isolated JavaScript runtime and returns the rendered artifact.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dop251/goja"
	"golang.org/x/sync/semaphore"

	"github.com/sigamony/DataViz/internal/dataset"
	"github.com/sigamony/DataViz/internal/render"
)

const (
	// DefaultTimeout bounds a single script run.
	DefaultTimeout = 10 * time.Second

	NoPlotMessage = "No plot was generated. Ensure the script calls plt.plot() or similar."
)

// ArtifactKind tags what a request produced.
type ArtifactKind string

const (
	KindText  ArtifactKind = "text"
	KindChart ArtifactKind = "chart"
	KindError ArtifactKind = "error"
)

// Artifact is the outcome of a request: a text message, a chart with the
// script that drew it, or an error with the script that failed.
type Artifact struct {
	Kind         ArtifactKind
	Message      string
	Code         string
	Image        []byte
	ErrorMessage string
}

// TextArtifact wraps a plain message.
func TextArtifact(msg string) Artifact {
	return Artifact{Kind: KindText, Message: msg}
}

func errorArtifact(code, msg string) Artifact {
	return Artifact{Kind: KindError, Code: code, ErrorMessage: msg}
}

// Executor runs scripts one at a time against a single drawing surface.
// The surface is held through a one-slot semaphore so a waiting caller can
// give up when its context ends.
type Executor struct {
	slot    *semaphore.Weighted
	surface *render.Surface
	timeout time.Duration
}

// New creates an Executor. A non-positive timeout uses DefaultTimeout; zero
// limit fields use render.DefaultLimits.
func New(timeout time.Duration, limits render.Limits) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Executor{slot: semaphore.NewWeighted(1), surface: render.NewSurface(limits), timeout: timeout}
}

// Execute runs script with df bound to t and returns a chart artifact
// holding the PNG of the current figure, or an error artifact. Concurrent
// calls are serialized; the surface is cleared before and after each run.
// A caller whose ctx ends while waiting gets an error artifact.
func (e *Executor) Execute(ctx context.Context, script string, t *dataset.Table) (art Artifact) {
	if err := e.slot.Acquire(ctx, 1); err != nil {
		return errorArtifact(script, fmt.Sprintf("Execution error: script cancelled: %v", err))
	}
	defer e.slot.Release(1)

	e.surface.Reset()
	defer e.surface.CloseAll()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("script execution panicked", "panic", r)
			art = errorArtifact(script, fmt.Sprintf("Execution error: %v", r))
		}
	}()

	if err := e.run(ctx, script, t); err != nil {
		msg := "Execution error: " + err.Error()
		slog.Warn("script execution failed", "error", err)
		return errorArtifact(script, msg)
	}
	if e.surface.Len() == 0 {
		return errorArtifact(script, NoPlotMessage)
	}
	img, err := e.surface.Export()
	if err != nil {
		slog.Warn("rendering figure failed", "error", err)
		return errorArtifact(script, "Execution error: "+err.Error())
	}
	return Artifact{Kind: KindChart, Code: script, Image: img}
}

func (e *Executor) run(ctx context.Context, script string, t *dataset.Table) error {
	vm := goja.New()
	b := &binder{vm: vm}

	df := b.frame(t)
	globals := map[string]any{
		"df":      df,
		"table":   (&tableFuncs{binder: b, t: t, df: df}).build(),
		"plt":     (&plotFuncs{binder: b, s: e.surface}).build(),
		"console": b.console(),
	}
	for name, v := range globals {
		if err := vm.Set(name, v); err != nil {
			return fmt.Errorf("binding %s: %w", name, err)
		}
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	stop := context.AfterFunc(runCtx, func() {
		vm.Interrupt(runCtx.Err())
	})
	defer stop()

	_, err := vm.RunString(script)
	if err == nil {
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		if ctx.Err() != nil {
			return fmt.Errorf("script cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("script exceeded the %s time limit", e.timeout)
	}
	return errors.New(scriptMessage(err))
}

// console discards script output.
func (b *binder) console() *goja.Object {
	c := b.vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		_ = c.Set(name, func(goja.FunctionCall) goja.Value { return goja.Undefined() })
	}
	return c
}

// scriptMessage extracts the message of a thrown error. Built-in errors keep
// their name prefix; errors raised by df, table and plt carry their own.
func scriptMessage(err error) string {
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return err.Error()
	}
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return ex.Value().String()
	}
	msg := obj.Get("message")
	if msg == nil || goja.IsUndefined(msg) {
		return ex.Value().String()
	}
	name := ""
	if n := obj.Get("name"); n != nil && !goja.IsUndefined(n) {
		name = n.String()
	}
	switch {
	case name == "" || name == "Error" || name == "GoError":
		return msg.String()
	case strings.HasPrefix(msg.String(), name):
		return msg.String()
	}
	return name + ": " + msg.String()
}
