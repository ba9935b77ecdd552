package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Harshitk-cp/medgraph/internal/domain"
	"github.com/Harshitk-cp/medgraph/internal/service"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Publisher fans invalidations out to other processes.
type Publisher interface {
	Publish(ctx context.Context, ev domain.InvalidationEvent) error
}

type ComputedHandler struct {
	cache     *service.ComputedRelationCache
	publisher Publisher
	logger    *zap.Logger
}

func NewComputedHandler(cache *service.ComputedRelationCache, logger *zap.Logger) *ComputedHandler {
	return &ComputedHandler{cache: cache, logger: logger}
}

func (h *ComputedHandler) SetPublisher(p Publisher) {
	h.publisher = p
}

// InvalidateRelation handles DELETE /computed/relations/{relation_id}.
func (h *ComputedHandler) InvalidateRelation(w http.ResponseWriter, r *http.Request) {
	relationID, ok := parseUUID(chi.URLParam(r, "relation_id"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid relation id")
		return
	}

	if _, err := h.cache.InvalidateRelation(r.Context(), relationID); err != nil {
		h.logger.Error("relation invalidation failed", zap.String("relation_id", relationID.String()), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to invalidate computed relations")
		return
	}
	h.publish(r.Context(), domain.InvalidationEvent{Kind: domain.InvalidateRelation, ID: relationID})

	w.WriteHeader(http.StatusNoContent)
}

// InvalidateScope handles DELETE /computed/scopes/{scope_hash}.
func (h *ComputedHandler) InvalidateScope(w http.ResponseWriter, r *http.Request) {
	hash := strings.ToLower(chi.URLParam(r, "scope_hash"))
	if !isHexHash(hash) {
		writeError(w, http.StatusBadRequest, "scope_hash must be 64 hex characters")
		return
	}

	if _, err := h.cache.InvalidateScope(r.Context(), hash); err != nil {
		h.logger.Error("scope invalidation failed", zap.String("scope_hash", hash), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to invalidate computed relations")
		return
	}
	h.publish(r.Context(), domain.InvalidationEvent{Kind: domain.InvalidateScope, ScopeHash: hash})

	w.WriteHeader(http.StatusNoContent)
}

// Stats handles GET /computed/stats.
func (h *ComputedHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.cache.Stats())
}

func (h *ComputedHandler) publish(ctx context.Context, ev domain.InvalidationEvent) {
	if h.publisher == nil {
		return
	}
	// Rows are already gone; peers only miss a generation bump.
	if err := h.publisher.Publish(ctx, ev); err != nil && !errors.Is(err, context.Canceled) {
		h.logger.Warn("failed to publish invalidation", zap.String("event", ev.Payload()), zap.Error(err))
	}
}

func isHexHash(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
