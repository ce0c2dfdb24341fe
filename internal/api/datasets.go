package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sigamony/DataViz/internal/dataset"
	"github.com/sigamony/DataViz/internal/profile"
	"github.com/sigamony/DataViz/internal/storage"
	"github.com/sigamony/DataViz/internal/suggest"
)

const defaultListLimit = 50

// DatasetView is the caller-visible shape of a stored dataset.
type DatasetView struct {
	FileID      string                 `json:"file_id"`
	Filename    string                 `json:"filename"`
	SizeBytes   int64                  `json:"size_bytes"`
	RowCount    int                    `json:"row_count"`
	Profile     profile.DatasetProfile `json:"profile"`
	Suggestions []suggest.Suggestion   `json:"suggestions,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func viewOf(d storage.Dataset, withSuggestions bool) DatasetView {
	v := DatasetView{
		FileID:    d.ID,
		Filename:  d.Filename,
		SizeBytes: d.SizeBytes,
		RowCount:  d.Profile.RowCount,
		Profile:   d.Profile,
		CreatedAt: d.CreatedAt,
	}
	if withSuggestions {
		v.Suggestions = suggest.For(d.Profile)
	}
	return v
}

// ImportDataset copies r into dir, parses and profiles it, and records it.
// The copy is removed when the file cannot be parsed.
func ImportDataset(ctx context.Context, store DatasetStore, dir, filename string, r io.Reader) (storage.Dataset, error) {
	name := filepath.Base(filename)
	if !dataset.SupportedExtension(name) {
		return storage.Dataset{}, fmt.Errorf("%w: %q (want .csv or .xlsx)", dataset.ErrUnsupportedFormat, filepath.Ext(name))
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return storage.Dataset{}, fmt.Errorf("creating upload dir: %w", err)
	}

	id := uuid.New().String()
	path := filepath.Join(dir, id+strings.ToLower(filepath.Ext(name)))
	size, err := save(path, r)
	if err != nil {
		return storage.Dataset{}, err
	}

	d, err := register(ctx, store, id, name, path, size)
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("removing rejected upload", "path", path, "error", rmErr)
		}
		return storage.Dataset{}, err
	}
	slog.Info("dataset imported", "id", id, "filename", name, "rows", d.Profile.RowCount)
	return d, nil
}

func save(path string, r io.Reader) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("saving upload: %w", err)
	}
	return n, nil
}

func register(ctx context.Context, store DatasetStore, id, name, path string, size int64) (storage.Dataset, error) {
	t, err := dataset.Load(path)
	if err != nil {
		return storage.Dataset{}, err
	}
	p, err := profile.Build(t)
	if err != nil {
		return storage.Dataset{}, err
	}
	d := storage.Dataset{
		ID:        id,
		Filename:  name,
		Path:      path,
		SizeBytes: size,
		Profile:   p,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.PutDataset(ctx, d); err != nil {
		return storage.Dataset{}, fmt.Errorf("recording dataset: %w", err)
	}
	return d, nil
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > deps.MaxUploadSize {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds %d bytes", deps.MaxUploadSize)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadSize)
		file, header, err := r.FormFile("file")
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds %d bytes", maxErr.Limit)
				return
			}
			httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field \"file\" is required")
			return
		}
		defer file.Close()

		d, err := ImportDataset(r.Context(), deps.Datasets, deps.UploadDir, header.Filename, file)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "file exceeds %d bytes", maxErr.Limit)
				return
			}
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, viewOf(d, true))
	}
}

func handleListDatasets(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultListLimit
		if s := r.URL.Query().Get("limit"); s != "" {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must be a positive integer")
				return
			}
			limit = n
		}
		ds, err := deps.Datasets.ListDatasets(r.Context(), limit)
		if err != nil {
			writeError(w, err)
			return
		}
		out := make([]DatasetView, 0, len(ds))
		for _, d := range ds {
			out = append(out, viewOf(d, false))
		}
		writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
	}
}

func handleGetDataset(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := lookupDataset(r.Context(), deps, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewOf(d, false))
	}
}

func handleSuggestions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := lookupDataset(r.Context(), deps, chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"file_id":     d.ID,
			"suggestions": suggest.For(d.Profile),
		})
	}
}

func lookupDataset(ctx context.Context, deps Deps, id string) (storage.Dataset, error) {
	d, err := deps.Datasets.GetDataset(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return storage.Dataset{}, fmt.Errorf("%w: %s", dataset.ErrNotFound, id)
	}
	return d, err
}
