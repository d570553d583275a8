// Package api exposes the governance engine's HTTP surface. Handlers are
// registered on the controller-runtime metrics server via ExtraHandlers, so
// the controller serves claims, approval requests, and metrics from one
// address.
package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/stewardio/steward/internal/inventory"
	"github.com/stewardio/steward/internal/types"
)

// ClaimsResponse is the wire format for GET /api/v1/claims.
type ClaimsResponse struct {
	Claims    []ClaimSummary `json:"claims"`
	UpdatedAt string         `json:"updatedAt,omitempty"`
}

// ClaimSummary is the read-model projection of a claim.
type ClaimSummary struct {
	ID        string            `json:"id"`
	Namespace string            `json:"namespace"`
	Name      string            `json:"name"`
	Tier      string            `json:"tier"`
	Status    string            `json:"status"`
	Labels    map[string]string `json:"labels,omitempty"`
	CreatedAt string            `json:"createdAt"`
	FlaggedAt string            `json:"flaggedAt,omitempty"`
}

// ClaimsHandler handles GET /api/v1/claims.
type ClaimsHandler struct {
	logger    *zap.Logger
	inventory *inventory.Inventory
}

// NewClaimsHandler creates a ClaimsHandler reading from the inventory.
func NewClaimsHandler(inv *inventory.Inventory, logger *zap.Logger) *ClaimsHandler {
	return &ClaimsHandler{
		logger:    logger.Named("claims-api"),
		inventory: inv,
	}
}

// ServeHTTP implements http.Handler.
func (h *ClaimsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.inventory == nil {
		writeJSON(w, h.logger, http.StatusOK, ClaimsResponse{Claims: []ClaimSummary{}})
		return
	}

	q := r.URL.Query()
	claims := h.inventory.Filter(
		q.Get("namespace"),
		types.Tier(q.Get("tier")),
		types.ClaimStatus(q.Get("status")),
	)

	resp := ClaimsResponse{Claims: make([]ClaimSummary, 0, len(claims))}
	for _, c := range claims {
		resp.Claims = append(resp.Claims, summarize(c))
	}
	if t := h.inventory.UpdatedAt(); !t.IsZero() {
		resp.UpdatedAt = t.UTC().Format(timeFormat)
	}

	writeJSON(w, h.logger, http.StatusOK, resp)
}

func summarize(c types.Claim) ClaimSummary {
	s := ClaimSummary{
		ID:        c.ID,
		Namespace: c.Namespace,
		Name:      c.Name,
		Tier:      string(c.Tier),
		Status:    string(c.Status),
		Labels:    c.Labels,
		CreatedAt: c.CreatedAt.UTC().Format(timeFormat),
	}
	if !c.FlaggedAt.IsZero() {
		s.FlaggedAt = c.FlaggedAt.UTC().Format(timeFormat)
	}
	return s
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

// errorBody is the JSON error shape returned by every handler.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, logger *zap.Logger, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, status int, msg string) {
	writeJSON(w, logger, status, errorBody{Error: msg})
}
