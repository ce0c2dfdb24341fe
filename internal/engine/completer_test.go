package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type scriptedEngine struct {
	fakeEngine
	reply  string
	err    error
	schema *Schema
	msgs   []Message
}

func (s *scriptedEngine) Chat(_ context.Context, _ string, msgs []Message, schema *Schema) (string, error) {
	s.msgs = msgs
	s.schema = schema
	return s.reply, s.err
}

func TestModelCompleter_Complete(t *testing.T) {
	eng := &scriptedEngine{reply: "fine"}
	c := NewCompleter(eng, "llama3.1")

	out, err := c.Complete(context.Background(), "how are you")
	if err != nil || out != "fine" {
		t.Fatalf("Complete = %q, %v", out, err)
	}
	if len(eng.msgs) != 1 || eng.msgs[0].Role != RoleUser || eng.msgs[0].Content != "how are you" {
		t.Errorf("messages = %+v", eng.msgs)
	}
	if eng.schema != nil {
		t.Error("plain completion sent a schema")
	}
}

func TestModelCompleter_CompleteJSONPassesSchema(t *testing.T) {
	eng := &scriptedEngine{reply: "{}"}
	schema := &Schema{Type: "object"}
	if _, err := NewCompleter(eng, "m").CompleteJSON(context.Background(), "p", schema); err != nil {
		t.Fatal(err)
	}
	if eng.schema != schema {
		t.Error("schema not forwarded")
	}
}

func TestModelCompleter_WrapsErrors(t *testing.T) {
	cause := errors.New("connection refused")
	_, err := NewCompleter(&scriptedEngine{err: cause}, "m").Complete(context.Background(), "p")
	if !errors.Is(err, ErrCompletion) || !errors.Is(err, cause) {
		t.Errorf("err = %v, want ErrCompletion wrapping cause", err)
	}

	_, err = NewCompleter(&scriptedEngine{reply: "  \n"}, "m").Complete(context.Background(), "p")
	if !errors.Is(err, ErrCompletion) {
		t.Errorf("empty reply err = %v, want ErrCompletion", err)
	}
}

func TestCompletionError(t *testing.T) {
	if CompletionError(nil) != nil {
		t.Error("CompletionError(nil) != nil")
	}
	plain := errors.New("eof")
	if err := CompletionError(plain); !errors.Is(err, ErrCompletion) || !errors.Is(err, plain) {
		t.Errorf("CompletionError(plain) = %v", err)
	}
	already := fmt.Errorf("%w: x", ErrCompletion)
	if CompletionError(already) != already {
		t.Error("already-wrapped error was wrapped again")
	}
}
