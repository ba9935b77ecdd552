package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/medgraph/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type ExplainHandler struct {
	svc    *service.ExplanationService
	logger *zap.Logger
}

func NewExplainHandler(svc *service.ExplanationService, logger *zap.Logger) *ExplainHandler {
	return &ExplainHandler{svc: svc, logger: logger}
}

// Explain handles GET /explain/inference/{entity_id}/{role_type}?scope=<json>.
func (h *ExplainHandler) Explain(w http.ResponseWriter, r *http.Request) {
	entityID, ok := parseUUID(chi.URLParam(r, "entity_id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid entity id")
		return
	}

	roleType := chi.URLParam(r, "role_type")
	if roleType == "" {
		writeError(w, http.StatusBadRequest, "role_type is required")
		return
	}

	scope, err := parseScopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exp, err := h.svc.Explain(r.Context(), entityID, roleType, scope)
	if err != nil {
		if !isClientError(err) {
			h.logger.Error("explanation failed",
				zap.String("entity_id", entityID.String()),
				zap.String("role_type", roleType),
				zap.Error(err))
		}
		writeServiceError(w, err, "failed to build explanation")
		return
	}

	writeJSON(w, http.StatusOK, exp)
}
