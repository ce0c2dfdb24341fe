// Package pipeline routes a chart request through classification, text
// synthesis or script synthesis and execution, and records the exchange.
package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sigamony/DataViz/internal/codegen"
	"github.com/sigamony/DataViz/internal/dataset"
	"github.com/sigamony/DataViz/internal/intent"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/respond"
	"github.com/sigamony/DataViz/internal/sandbox"
	"github.com/sigamony/DataViz/internal/storage"
)

// ErrEmptyQuery is returned for a blank request.
var ErrEmptyQuery = errors.New("query is empty")

// State is a step of request handling. Terminal states are SKIP, CLARIFY,
// ANSWER, CHART, RENDER_ERROR and FAILED.
type State string

const (
	StateStart       State = "START"
	StateClassify    State = "CLASSIFY"
	StateSkip        State = "SKIP"
	StateClarify     State = "CLARIFY"
	StateAnswer      State = "ANSWER"
	StateSynthesize  State = "SYNTHESIZE"
	StateRender      State = "RENDER"
	StateChart       State = "CHART"
	StateRenderError State = "RENDER_ERROR"
	StateFailed      State = "FAILED"
)

// Request is one natural-language question about a dataset. SessionID is
// optional; without it nothing is remembered.
type Request struct {
	SessionID string
	DatasetID string
	Query     string
}

// Result is the terminal state and what it produced. MessageCount is set
// when the exchange was recorded in a session.
type Result struct {
	State        State
	Artifact     sandbox.Artifact
	MessageCount *int
}

// Response is the caller-visible shape of a Result.
type Response struct {
	Type         string `json:"type"`
	Success      bool   `json:"success"`
	Message      string `json:"message,omitempty"`
	Image        string `json:"image,omitempty"`
	Code         string `json:"code,omitempty"`
	Error        string `json:"error,omitempty"`
	MessageCount *int   `json:"message_count,omitempty"`
}

const (
	TypeText  = "text_response"
	TypeImage = "image_response"
	TypeError = "error_response"
)

// Response converts r; chart images are base64-encoded PNG.
func (r Result) Response() Response {
	a := r.Artifact
	out := Response{MessageCount: r.MessageCount}
	switch a.Kind {
	case sandbox.KindChart:
		out.Type, out.Success = TypeImage, true
		out.Image = base64.StdEncoding.EncodeToString(a.Image)
		out.Code = a.Code
	case sandbox.KindError:
		out.Type = TypeError
		out.Error, out.Code = a.ErrorMessage, a.Code
	default:
		out.Type, out.Success = TypeText, true
		out.Message = a.Message
	}
	return out
}

// Metadata resolves dataset records.
type Metadata interface {
	GetDataset(ctx context.Context, id string) (storage.Dataset, error)
}

// TableSource loads a dataset's rows from durable storage.
type TableSource interface {
	Load(ctx context.Context, handle string) (*dataset.Table, error)
}

// Orchestrator wires the request pipeline.
type Orchestrator struct {
	meta       Metadata
	source     TableSource
	memory     memory.Store
	classifier *intent.Classifier
	responder  *respond.Synthesizer
	coder      *codegen.Synthesizer
	executor   *sandbox.Executor
}

func New(
	meta Metadata,
	source TableSource,
	store memory.Store,
	classifier *intent.Classifier,
	responder *respond.Synthesizer,
	coder *codegen.Synthesizer,
	executor *sandbox.Executor,
) *Orchestrator {
	return &Orchestrator{
		meta:       meta,
		source:     source,
		memory:     store,
		classifier: classifier,
		responder:  responder,
		coder:      coder,
		executor:   executor,
	}
}

// Handle runs req to a terminal state. Errors are returned for an unknown
// dataset or session, store failures, and failed QA or code completions
// (with State FAILED); everything else, including script failures, ends in
// a Result.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	if strings.TrimSpace(req.Query) == "" {
		return Result{State: StateFailed}, ErrEmptyQuery
	}

	ds, err := o.meta.GetDataset(ctx, req.DatasetID)
	if errors.Is(err, storage.ErrNotFound) {
		return Result{State: StateFailed}, fmt.Errorf("%w: %s", dataset.ErrNotFound, req.DatasetID)
	}
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("loading dataset metadata: %w", err)
	}

	var history []memory.Turn
	if req.SessionID != "" {
		history, err = o.memory.History(ctx, req.SessionID, req.DatasetID)
		if err != nil {
			return Result{State: StateFailed}, fmt.Errorf("reading history: %w", err)
		}
	}

	decision := o.classifier.Classify(ctx, ds.Profile, req.Query, history)

	var res Result
	switch {
	case !decision.IsRelated:
		res = textResult(StateSkip, o.responder.Skip())
	case !decision.IsVisualization:
		answer, err := o.responder.Answer(ctx, ds.Profile, req.Query, history)
		if err != nil {
			return Result{State: StateFailed}, err
		}
		res = textResult(StateAnswer, answer)
	case decision.NeedsClarification:
		res = textResult(StateClarify, o.responder.Clarify(decision))
	default:
		res, err = o.chart(ctx, ds, req.Query, history)
		if err != nil {
			return Result{State: StateFailed}, err
		}
	}

	if req.SessionID != "" {
		n, err := o.record(ctx, req, res)
		if err != nil {
			return Result{State: StateFailed}, err
		}
		res.MessageCount = &n
	}

	slog.Info("request handled",
		"state", res.State,
		"dataset", req.DatasetID,
		"session", req.SessionID,
		"rationale", decision.Rationale,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func textResult(s State, msg string) Result {
	return Result{State: s, Artifact: sandbox.TextArtifact(msg)}
}

// chart synthesizes a script and renders it against a fresh load of the table.
func (o *Orchestrator) chart(ctx context.Context, ds storage.Dataset, query string, history []memory.Turn) (Result, error) {
	code, err := o.coder.Synthesize(ctx, ds.Profile, query, history)
	if err != nil {
		return Result{}, err
	}
	t, err := o.source.Load(ctx, ds.ID)
	if err != nil {
		return Result{}, fmt.Errorf("loading dataset %s: %w", ds.ID, err)
	}
	art := o.executor.Execute(ctx, code, t)
	if art.Kind == sandbox.KindChart {
		return Result{State: StateChart, Artifact: art}, nil
	}
	return Result{State: StateRenderError, Artifact: art}, nil
}

// record appends the user and assistant turns and returns the new count.
func (o *Orchestrator) record(ctx context.Context, req Request, res Result) (int, error) {
	if err := o.memory.AppendTurn(ctx, req.SessionID, req.DatasetID, memory.RoleUser, req.Query); err != nil {
		return 0, fmt.Errorf("recording user turn: %w", err)
	}
	if err := o.memory.AppendTurn(ctx, req.SessionID, req.DatasetID, memory.RoleAssistant, assistantTurn(req.Query, res)); err != nil {
		return 0, fmt.Errorf("recording assistant turn: %w", err)
	}
	n, err := o.memory.TurnCount(ctx, req.SessionID, req.DatasetID)
	if err != nil {
		return 0, fmt.Errorf("counting turns: %w", err)
	}
	return n, nil
}

func assistantTurn(query string, res Result) string {
	switch res.State {
	case StateChart:
		return "Generated chart for: " + query
	case StateRenderError:
		return res.Artifact.ErrorMessage
	}
	return res.Artifact.Message
}
