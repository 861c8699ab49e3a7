package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hibikilabs/hibiki/internal/session"
	"github.com/hibikilabs/hibiki/internal/version"
	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/radio"
)

var processStart = time.Now()

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeErrorMessage writes a JSON error body with a fixed message
func writeErrorMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeError maps a classified error to its HTTP status
func writeError(w http.ResponseWriter, err error) {
	writeErrorMessage(w, radio.HTTPStatusOf(err), errorMessage(err))
}

// errorMessage strips the internal operation prefix off classified errors
func errorMessage(err error) string {
	var classified *radio.Error
	if errors.As(err, &classified) && classified.Err != nil {
		return classified.Err.Error()
	}
	return err.Error()
}

// handleHealth reports liveness plus build details
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := version.Get()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"version":     info.Version,
		"commit":      info.GitCommit,
		"go_version":  info.GoVersion,
		"uptime_secs": int64(time.Since(processStart).Seconds()),
	})
}

// handleStatus returns the engine snapshot
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.Snapshot())
}

// handleMe tells the client who it is and whether it may queue
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	identity := session.IdentityFromContext(r.Context())

	canQueue := false
	if identity != nil {
		canQueue = s.policy.CanQueue(identity.ID)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":     identity,
		"canQueue": canQueue,
	})
}

// handleEnqueue resolves a submitted URL and appends it to the queue
func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeErrorMessage(w, http.StatusBadRequest, "url is required")
		return
	}

	source, err := radio.DetectSource(req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	normalized := radio.NormalizeURL(req.URL)

	info, err := s.resolver.Resolve(r.Context(), source, normalized)
	if err != nil {
		writeError(w, err)
		return
	}

	identity := session.IdentityFromContext(r.Context())
	track, err := s.engine.Enqueue(&common.TrackPayload{
		Source:    source,
		URL:       normalized,
		Title:     info.Title,
		Thumbnail: info.Thumbnail,
		Duration:  float64(info.DurationSecs),
		RequestedBy: common.Requester{
			ID:          identity.ID,
			DisplayName: identity.DisplayName,
			Avatar:      identity.Avatar,
		},
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{"track": track})
}

// handleRemoveTrack deletes a queued track by id
func (s *Server) handleRemoveTrack(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "id")

	if !s.engine.RemoveTrack(trackID) {
		writeErrorMessage(w, http.StatusNotFound, "track not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleMoveTrack moves a queued track to a new position
// Out-of-range indexes clamp to the ends of the queue
func (s *Server) handleMoveTrack(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "id")

	var req struct {
		Index *int `json:"index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Index == nil {
		writeErrorMessage(w, http.StatusBadRequest, "index is required")
		return
	}

	if !s.engine.MoveTrack(trackID, *req.Index) {
		writeErrorMessage(w, http.StatusNotFound, "track not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handlePause pauses or resumes the broadcast clock
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Paused == nil {
		writeErrorMessage(w, http.StatusBadRequest, "paused is required")
		return
	}

	if err := s.engine.SetPaused(*req.Paused); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":     true,
		"paused": s.engine.Snapshot().Paused,
	})
}

// handleSkip abandons the current track
func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Skip(); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleHistory returns the recent playback journal
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 200 {
		limit = 200
	}

	records, err := s.history.RecentPlaybacks(limit)
	if err != nil {
		s.logger.Error("Playback journal query failed", err, map[string]interface{}{
			"limit": limit,
		})
		writeErrorMessage(w, http.StatusInternalServerError, "history unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"history": records})
}
