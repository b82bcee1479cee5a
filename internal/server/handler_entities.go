package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/me/tickloop/internal/entities"
	"github.com/me/tickloop/internal/sim"
	"github.com/me/tickloop/pkg/model"
	"github.com/me/tickloop/pkg/ticker"
)

// handleListEntities returns registered entities in tick order.
// GET /api/v1/entities
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	opts, apiErr := parseListOptions(r)
	if apiErr != nil {
		respondError(w, reqID, http.StatusBadRequest, apiErr)
		return
	}

	all := s.host.List()
	total := len(all)
	page := all[min(opts.Offset, total):min(opts.Offset+opts.Limit, total)]
	respondList(w, reqID, page, pagination(opts, total))
}

// handleSpawnEntity builds and registers an entity.
// POST /api/v1/entities
func (s *Server) handleSpawnEntity(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var spec model.EntitySpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			&model.APIError{Code: model.ErrValidation, Message: "invalid JSON body: " + err.Error()})
		return
	}
	if spec.Kind == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("missing required fields",
				model.FieldError{Field: "kind", Message: "kind is required"}))
		return
	}

	e, err := s.host.Spawn(spec)
	if err != nil {
		var hookErr *ticker.HookError
		switch {
		case errors.Is(err, ticker.ErrDiscarded):
			respondError(w, reqID, http.StatusConflict, model.NewConflictError("scheduler has stopped"))
		case errors.As(err, &hookErr):
			respondError(w, reqID, http.StatusBadRequest,
				model.NewValidationError("register hook failed: "+hookErr.Err.Error()))
		default:
			respondError(w, reqID, http.StatusBadRequest, model.NewValidationError(err.Error()))
		}
		return
	}

	respondCreated(w, reqID, entities.Info(e))
}

// handleGetEntity returns one registered entity.
// GET /api/v1/entities/{id}
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	e, ok := s.host.Get(id)
	if !ok {
		respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("entity", id))
		return
	}
	respondOK(w, reqID, entities.Info(e))
}

// handleDespawnEntity unregisters an entity.
// DELETE /api/v1/entities/{id}
func (s *Server) handleDespawnEntity(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	id := chi.URLParam(r, "id")

	if err := s.host.Despawn(id); err != nil {
		var hookErr *ticker.HookError
		switch {
		case errors.Is(err, sim.ErrEntityNotFound):
			respondError(w, reqID, http.StatusNotFound, model.NewNotFoundError("entity", id))
		case errors.Is(err, ticker.ErrDiscarded):
			respondError(w, reqID, http.StatusConflict, model.NewConflictError("scheduler has stopped"))
		case errors.As(err, &hookErr):
			respondError(w, reqID, http.StatusConflict,
				model.NewConflictError("unregister hook failed, entity kept: "+hookErr.Err.Error()))
		default:
			respondError(w, reqID, http.StatusInternalServerError, model.NewInternalError(err.Error()))
		}
		return
	}

	respondOK(w, reqID, map[string]any{"id": id, "deleted": true})
}
