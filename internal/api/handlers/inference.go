package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/medgraph/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type InferenceHandler struct {
	svc    *service.InferenceService
	logger *zap.Logger
}

func NewInferenceHandler(svc *service.InferenceService, logger *zap.Logger) *InferenceHandler {
	return &InferenceHandler{svc: svc, logger: logger}
}

// GetEntity handles GET /inferences/entity/{entity_id}?scope=<json>.
func (h *InferenceHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	entityID, ok := parseUUID(chi.URLParam(r, "entity_id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	scope, err := parseScopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	inf, err := h.svc.EntityInferences(r.Context(), entityID, scope)
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("entity inference failed",
				zap.String("entity_id", entityID.String()), zap.Error(err))
		}
		writeServiceError(w, err, "failed to compute inference")
		return
	}

	writeJSON(w, http.StatusOK, inf)
}
