package server

import (
	"errors"
	"net/http"

	"github.com/me/tickloop/pkg/model"
	"github.com/me/tickloop/pkg/ticker"
)

// handleStatus returns the scheduler status.
// GET /api/v1/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, s.host.Status())
}

// handleStop stops the tick loop. Stopping a stopped loop succeeds.
// POST /api/v1/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if err := s.host.Stop(); err != nil {
		if errors.Is(err, ticker.ErrNotStarted) {
			respondError(w, reqID, http.StatusConflict, model.NewConflictError("scheduler has not started"))
			return
		}
		respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		return
	}

	s.logger.Info("stop requested", "run_id", s.host.RunID())
	respondOK(w, reqID, s.host.Status())
}
