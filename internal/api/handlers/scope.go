package handlers

import (
	"net/http"

	"github.com/Harshitk-cp/medgraph/internal/domain"
)

type ScopeHandler struct{}

func NewScopeHandler() *ScopeHandler {
	return &ScopeHandler{}
}

type scopeHashResponse struct {
	EntityID  string             `json:"entity_id"`
	Scope     domain.ScopeFilter `json:"scope"`
	ScopeHash string             `json:"scope_hash"`
}

// Hash handles GET /scopes/hash?entity_id=&scope=. It lets operators find the
// cache key for a query before invalidating it.
func (h *ScopeHandler) Hash(w http.ResponseWriter, r *http.Request) {
	entityID, ok := parseUUID(r.URL.Query().Get("entity_id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "entity_id must be a UUID")
		return
	}

	scope, err := parseScopeParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, scopeHashResponse{
		EntityID:  entityID.String(),
		Scope:     scope,
		ScopeHash: domain.ScopeHash(entityID, scope),
	})
}
