package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sigamony/DataViz/internal/dataset"
	"github.com/sigamony/DataViz/internal/engine"
	"github.com/sigamony/DataViz/internal/memory"
	"github.com/sigamony/DataViz/internal/pipeline"
	"github.com/sigamony/DataViz/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB
	// DefaultMaxUploadSize caps dataset uploads.
	DefaultMaxUploadSize = 50 << 20
)

// Asker runs a question through the request pipeline.
type Asker interface {
	Handle(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// DatasetStore persists dataset metadata.
type DatasetStore interface {
	PutDataset(ctx context.Context, d storage.Dataset) error
	GetDataset(ctx context.Context, id string) (storage.Dataset, error)
	ListDatasets(ctx context.Context, limit int) ([]storage.Dataset, error)
}

// Deps holds what the HTTP and MCP surfaces need.
type Deps struct {
	Datasets      DatasetStore
	Memory        memory.Store
	Asker         Asker
	UploadDir     string
	MaxUploadSize int64
	// Token enables bearer authentication on every route but /health.
	Token string
}

// NewHandler returns the HTTP API.
func NewHandler(deps Deps) http.Handler {
	if deps.MaxUploadSize <= 0 {
		deps.MaxUploadSize = DefaultMaxUploadSize
	}
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/sessions", handleCreateSession(deps))
		r.Get("/sessions/{sid}", handleGetSession(deps))
		r.Get("/sessions/{sid}/datasets/{did}/history", handleHistory(deps))
		r.Delete("/sessions/{sid}/datasets/{did}/history", handleClearHistory(deps))

		r.Post("/datasets", handleUpload(deps))
		r.Get("/datasets", handleListDatasets(deps))
		r.Get("/datasets/{id}", handleGetDataset(deps))
		r.Get("/datasets/{id}/suggestions", handleSuggestions(deps))

		r.Post("/generate", handleGenerate(deps))
	})
	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	FileID    string `json:"file_id"`
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
}

func handleGenerate(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.FileID == "" || req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file_id and query are required")
			return
		}

		res, err := deps.Asker.Handle(r.Context(), pipeline.Request{
			SessionID: req.SessionID,
			DatasetID: req.FileID,
			Query:     req.Query,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res.Response())
	}
}

// decodeBody decodes a JSON body into v. An empty body leaves v unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// writeError maps domain errors onto status codes and error types.
func writeError(w http.ResponseWriter, err error) {
	code, errType := http.StatusInternalServerError, "api_error"
	switch {
	case errors.Is(err, memory.ErrSessionNotFound):
		code, errType = http.StatusNotFound, "session_not_found"
	case errors.Is(err, memory.ErrSessionExpired):
		code, errType = http.StatusGone, "session_expired"
	case errors.Is(err, dataset.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		code, errType = http.StatusNotFound, "dataset_not_found"
	case errors.Is(err, dataset.ErrUnsupportedFormat):
		code, errType = http.StatusUnsupportedMediaType, "unsupported_format"
	case errors.Is(err, memory.ErrStoreUnavailable):
		code, errType = http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, engine.ErrCompletion):
		code, errType = http.StatusBadGateway, "completion_error"
	case errors.Is(err, pipeline.ErrEmptyQuery):
		code, errType = http.StatusBadRequest, "invalid_request_error"
	}
	if code >= http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	httpError(w, code, errType, "%v", err)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
