package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/stewardio/steward/internal/approval"
	"github.com/stewardio/steward/internal/types"
)

// SubmitRequest is the body of POST /api/v1/requests.
type SubmitRequest struct {
	Requester     string  `json:"requester"`
	Description   string  `json:"description"`
	EstimatedCost float64 `json:"estimatedCost"`
}

// OpenRequest is the body of POST /api/v1/requests/{id}/open.
type OpenRequest struct {
	Reviewer string `json:"reviewer"`
}

// ReviewRequest is the body of POST /api/v1/requests/{id}/review.
type ReviewRequest struct {
	Decision     string `json:"decision"`
	Reviewer     string `json:"reviewer"`
	CostOverride bool   `json:"costOverride,omitempty"`
}

// RequestsResponse is the wire format for GET /api/v1/requests.
type RequestsResponse struct {
	Requests []types.ApprovalRequest `json:"requests"`
}

// ProvisionResponse is the wire format for a provision call: the final
// request state plus the emitted manifest descriptor.
type ProvisionResponse struct {
	Request  types.ApprovalRequest       `json:"request"`
	Manifest approval.ManifestDescriptor `json:"manifest"`
}

// ApprovalsHandler serves the approval workflow API under /api/v1/requests.
type ApprovalsHandler struct {
	logger  *zap.Logger
	manager *approval.Manager
}

// NewApprovalsHandler creates an ApprovalsHandler.
func NewApprovalsHandler(manager *approval.Manager, logger *zap.Logger) *ApprovalsHandler {
	return &ApprovalsHandler{
		logger:  logger.Named("approvals-api"),
		manager: manager,
	}
}

// ServeHTTP implements http.Handler. Routes:
//
//	GET  /api/v1/requests            list
//	POST /api/v1/requests            submit
//	GET  /api/v1/requests/{id}       get
//	POST /api/v1/requests/{id}/open      notified -> under_review
//	POST /api/v1/requests/{id}/review    under_review -> approved|rejected
//	POST /api/v1/requests/{id}/provision approved -> provisioned
func (h *ApprovalsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/requests"), "/")

	switch {
	case rest == "":
		h.collection(w, r)
	default:
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		verb := ""
		if len(parts) == 2 {
			verb = parts[1]
		}
		h.item(w, r, id, verb)
	}
}

func (h *ApprovalsHandler) collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, h.logger, http.StatusOK, RequestsResponse{Requests: h.manager.List()})
	case http.MethodPost:
		var body SubmitRequest
		if !h.decode(w, r, &body) {
			return
		}
		req, err := h.manager.Submit(r.Context(), body.Requester, body.Description, body.EstimatedCost)
		if err != nil {
			h.writeWorkflowError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusCreated, req)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ApprovalsHandler) item(w http.ResponseWriter, r *http.Request, id, verb string) {
	switch {
	case verb == "" && r.Method == http.MethodGet:
		req, err := h.manager.Get(id)
		if err != nil {
			h.writeWorkflowError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, req)

	case verb == "open" && r.Method == http.MethodPost:
		var body OpenRequest
		if !h.decode(w, r, &body) {
			return
		}
		req, err := h.manager.Open(id, body.Reviewer)
		if err != nil {
			h.writeWorkflowError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, req)

	case verb == "review" && r.Method == http.MethodPost:
		var body ReviewRequest
		if !h.decode(w, r, &body) {
			return
		}
		outcome, err := h.manager.Review(id, types.ReviewDecision(body.Decision), body.Reviewer, body.CostOverride)
		if err != nil {
			h.writeWorkflowError(w, err)
			return
		}
		// A cost-ceiling refusal is a business outcome, not a transport
		// error: 200 with applied=false and the reason.
		writeJSON(w, h.logger, http.StatusOK, outcome)

	case verb == "provision" && r.Method == http.MethodPost:
		req, manifest, err := h.manager.Provision(id)
		if err != nil {
			h.writeWorkflowError(w, err)
			return
		}
		writeJSON(w, h.logger, http.StatusOK, ProvisionResponse{Request: req, Manifest: manifest})

	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// decode parses the JSON request body, writing a 400 on failure.
func (h *ApprovalsHandler) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(into); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// writeWorkflowError maps the error taxonomy to HTTP status codes.
func (h *ApprovalsHandler) writeWorkflowError(w http.ResponseWriter, err error) {
	switch {
	case types.IsValidation(err):
		writeError(w, h.logger, http.StatusBadRequest, err.Error())
	case errors.Is(err, types.ErrNotFound):
		writeError(w, h.logger, http.StatusNotFound, err.Error())
	case types.IsInvalidStateTransition(err):
		writeError(w, h.logger, http.StatusConflict, err.Error())
	case types.IsConfig(err):
		writeError(w, h.logger, http.StatusServiceUnavailable, err.Error())
	default:
		h.logger.Error("Unexpected workflow error", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "internal error")
	}
}
