package engine

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type fakeEngine struct {
	up       bool
	models   map[string]bool
	pulled   []string
	warmed   []string
	chatErr  error
	progress []PullProgress
}

func (f *fakeEngine) Chat(_ context.Context, model string, _ []Message, _ *Schema) (string, error) {
	f.warmed = append(f.warmed, model)
	return "ready", f.chatErr
}

func (f *fakeEngine) IsRunning(context.Context) bool { return f.up }

func (f *fakeEngine) ListModels(context.Context) ([]string, error) {
	names := make([]string, 0, len(f.models))
	for n := range f.models {
		names = append(names, n)
	}
	return names, nil
}

func (f *fakeEngine) HasModel(_ context.Context, name string) bool { return f.models[name] }

func (f *fakeEngine) PullModel(_ context.Context, name string, fn func(PullProgress)) error {
	f.pulled = append(f.pulled, name)
	for _, p := range f.progress {
		fn(p)
	}
	return nil
}

func TestEnsureReady_ModelPresent(t *testing.T) {
	f := &fakeEngine{up: true, models: map[string]bool{"llama3.1": true}}
	if err := EnsureReady(context.Background(), f, []string{"llama3.1"}, io.Discard); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulled) != 0 {
		t.Errorf("pulled %v, want nothing", f.pulled)
	}
	if len(f.warmed) != 1 || f.warmed[0] != "llama3.1" {
		t.Errorf("warmed %v, want [llama3.1]", f.warmed)
	}
}

func TestEnsureReady_PullsMissingOnce(t *testing.T) {
	f := &fakeEngine{up: true, models: map[string]bool{"llama3.1": true}}
	err := EnsureReady(context.Background(), f, []string{"", "llama3.1", "qwen2.5-coder", "qwen2.5-coder"}, io.Discard)
	if err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if len(f.pulled) != 1 || f.pulled[0] != "qwen2.5-coder" {
		t.Errorf("pulled %v, want [qwen2.5-coder]", f.pulled)
	}
	if len(f.warmed) != 1 || f.warmed[0] != "llama3.1" {
		t.Errorf("warmed %v, want first non-empty model only", f.warmed)
	}
}

func TestEnsureReady_ProgressDeduplicated(t *testing.T) {
	f := &fakeEngine{up: true, models: map[string]bool{}, progress: []PullProgress{
		{Status: "pulling manifest"},
		{Status: "downloading", Total: 200, Completed: 20},
		{Status: "downloading", Total: 200, Completed: 21},
		{Status: "downloading", Total: 200, Completed: 200},
		{Status: "success"},
	}}
	var out bytes.Buffer
	if err := EnsureReady(context.Background(), f, []string{"llama3.1"}, &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	got := out.String()
	if strings.Count(got, "downloading 10%") != 1 {
		t.Errorf("output = %q, want one 10%% line", got)
	}
	for _, want := range []string{"pulling manifest", "downloading 100%", "success", "model llama3.1: warm"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}

func TestEnsureReady_WarmupFailureIsNotFatal(t *testing.T) {
	f := &fakeEngine{up: true, models: map[string]bool{"llama3.1": true}, chatErr: errors.New("cold")}
	var out bytes.Buffer
	if err := EnsureReady(context.Background(), f, []string{"llama3.1"}, &out); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if !strings.Contains(out.String(), "warm-up failed") {
		t.Errorf("output = %q, want warm-up failure note", out.String())
	}
}

func TestEnsureReady_BackendDown(t *testing.T) {
	f := &fakeEngine{models: map[string]bool{}}
	err := EnsureReady(context.Background(), f, []string{"llama3.1"}, io.Discard)
	if !errors.Is(err, ErrBackendDown) {
		t.Fatalf("err = %v, want ErrBackendDown", err)
	}
	if !strings.Contains(err.Error(), "ollama serve") {
		t.Errorf("err = %q, want a hint", err.Error())
	}
}

func TestPullProgress_Percent(t *testing.T) {
	tests := []struct {
		p    PullProgress
		want int
	}{
		{PullProgress{Status: "verifying"}, -1},
		{PullProgress{Total: 4, Completed: 1}, 25},
		{PullProgress{Total: 3, Completed: 3}, 100},
	}
	for _, tt := range tests {
		if got := tt.p.Percent(); got != tt.want {
			t.Errorf("Percent(%+v) = %d, want %d", tt.p, got, tt.want)
		}
	}
}

func TestSchema_Strict(t *testing.T) {
	s := &Schema{
		Type: "object",
		Properties: map[string]SchemaProperty{
			"a": {Type: "string"},
			"b": {Type: "boolean"},
		},
		Required: []string{"a", "b"},
	}
	if !s.Strict() {
		t.Error("all fields required should be strict")
	}
	s.Required = []string{"a"}
	if s.Strict() {
		t.Error("optional field should disable strict")
	}
	s.Required = []string{"a", "c"}
	if s.Strict() {
		t.Error("unknown required field should disable strict")
	}
	if (*Schema)(nil).Strict() {
		t.Error("nil schema is not strict")
	}
	if got := s.label(); got != "response" {
		t.Errorf("label = %q, want response", got)
	}
}
