package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sigamony/DataViz/internal/memory"
)

type createSessionRequest struct {
	ProfileTag string `json:"profile_tag"`
}

func handleCreateSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if !decodeBody(w, r, &req) {
			return
		}
		id, err := deps.Memory.CreateSession(r.Context(), req.ProfileTag)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": id})
	}
}

func handleGetSession(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := liveSession(r.Context(), deps.Memory, chi.URLParam(r, "sid"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

// liveSession resolves id, telling a missing session apart from an expired one.
func liveSession(ctx context.Context, store memory.Store, id string) (*memory.Session, error) {
	s, err := store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s != nil {
		return s, nil
	}
	if _, err := store.History(ctx, id, ""); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: %s", memory.ErrSessionNotFound, id)
}

type historyResponse struct {
	SessionID string        `json:"session_id"`
	FileID    string        `json:"file_id"`
	Messages  []memory.Turn `json:"messages"`
	Count     int           `json:"message_count"`
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, did := chi.URLParam(r, "sid"), chi.URLParam(r, "did")
		turns, err := deps.Memory.History(r.Context(), sid, did)
		if err != nil {
			writeError(w, err)
			return
		}
		if turns == nil {
			turns = []memory.Turn{}
		}
		writeJSON(w, http.StatusOK, historyResponse{
			SessionID: sid,
			FileID:    did,
			Messages:  turns,
			Count:     len(turns),
		})
	}
}

func handleClearHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sid, did := chi.URLParam(r, "sid"), chi.URLParam(r, "did")
		if err := deps.Memory.Clear(r.Context(), sid, did); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session_id": sid, "file_id": did, "cleared": true})
	}
}
