package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"famhub/internal/indicator"
	"famhub/internal/models"
	"famhub/internal/queue"
	"famhub/internal/remote"
	"famhub/internal/worker"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"online": s.network.Online(),
	})
}

func (s *HTTPServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.status.Snapshot())
}

func (s *HTTPServer) handleListQueue(w http.ResponseWriter, r *http.Request) {
	actions, err := s.actions.Pending(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("list queue")
		writeError(w, http.StatusInternalServerError, "failed to read queue")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions, "count": len(actions)})
}

func (s *HTTPServer) handleRemoveQueued(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(mux.Vars(r)["id"])
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if err := s.actions.Discard(r.Context(), id); err != nil {
		s.logger.Error().Err(err).Str("action_id", id).Msg("remove queued action")
		writeError(w, http.StatusInternalServerError, "failed to remove action")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitRequest struct {
	Type    models.ActionType `json:"type"`
	Payload json.RawMessage   `json:"payload"`
}

func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.actions.Submit(r.Context(), body.Type, body.Payload)
	if err != nil {
		var statusErr *remote.StatusError
		switch {
		case errors.Is(err, queue.ErrInvalidAction):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, queue.ErrQueueFull):
			writeError(w, http.StatusInsufficientStorage, err.Error())
		case errors.As(err, &statusErr):
			writeError(w, http.StatusBadGateway, err.Error())
		default:
			s.logger.Error().Err(err).Str("action_type", string(body.Type)).Msg("submit action")
			writeError(w, http.StatusInternalServerError, "failed to submit action")
		}
		return
	}

	statusCode := http.StatusCreated
	if res.Queued {
		statusCode = http.StatusAccepted
	}
	writeJSON(w, statusCode, res)
}

func (s *HTTPServer) handleSync(w http.ResponseWriter, r *http.Request) {
	result, err := s.status.Retry(r.Context())
	switch {
	case errors.Is(err, worker.ErrSyncInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, indicator.ErrOffline):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error().Err(err).Msg("manual sync")
		writeError(w, http.StatusInternalServerError, "sync failed")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

type networkRequest struct {
	Online *bool `json:"online"`
}

func (s *HTTPServer) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var body networkRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Online == nil {
		writeError(w, http.StatusBadRequest, "online is required")
		return
	}

	changed := s.network.SetOnline(*body.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"online": *body.Online, "changed": changed})
}
