package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/stewardio/steward/internal/approval"
	"github.com/stewardio/steward/internal/inventory"
)

// ExtraHandlers returns a map of path → http.Handler suitable for
// controller-runtime's metricsserver.Options.ExtraHandlers.
func ExtraHandlers(inv *inventory.Inventory, manager *approval.Manager, logger *zap.Logger) map[string]http.Handler {
	claimsHandler := NewClaimsHandler(inv, logger)
	approvalsHandler := NewApprovalsHandler(manager, logger)

	return map[string]http.Handler{
		"/api/v1/claims":    claimsHandler,
		"/api/v1/requests":  approvalsHandler,
		"/api/v1/requests/": approvalsHandler,
	}
}
