package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/Harshitk-cp/medgraph/internal/service"
	"github.com/google/uuid"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps core failures onto HTTP statuses. Unexpected errors
// are reported generically as fallback.
func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEntityNotFound), errors.Is(err, service.ErrRoleNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrResolverTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "revision store timed out")
	default:
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func isClientError(err error) bool {
	return errors.Is(err, domain.ErrInvalidScope) ||
		errors.Is(err, service.ErrEntityNotFound) ||
		errors.Is(err, service.ErrRoleNotFound)
}

// parseScopeParam reads the optional ?scope= JSON object.
func parseScopeParam(r *http.Request) (domain.ScopeFilter, error) {
	return domain.ParseScope(r.URL.Query().Get("scope"))
}

func parseUUID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	return id, err == nil
}
