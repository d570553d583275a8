package types

import "time"

// ApprovalState is the lifecycle phase of an out-of-blueprint request.
// Transitions are monotonic: once a state is left it is never revisited. A
// rejected request must be resubmitted as a new request, never resurrected.
type ApprovalState string

const (
	StateSubmitted   ApprovalState = "submitted"
	StateNotified    ApprovalState = "notified"
	StateUnderReview ApprovalState = "under_review"
	StateApproved    ApprovalState = "approved"
	StateRejected    ApprovalState = "rejected"
	StateProvisioned ApprovalState = "provisioned"
)

// TerminalApprovalState reports whether no further transitions are possible.
func TerminalApprovalState(s ApprovalState) bool {
	return s == StateRejected || s == StateProvisioned
}

// ApprovalRequest is a custom infrastructure ask outside the standard
// blueprints. Mutated only by the approval workflow manager.
type ApprovalRequest struct {
	ID            string        `json:"id"`
	Requester     string        `json:"requester"`
	Description   string        `json:"description"`
	EstimatedCost float64       `json:"estimatedCost"`
	State         ApprovalState `json:"state"`

	// Reviewer and CostOverride are recorded when the request is reviewed.
	Reviewer     string `json:"reviewer,omitempty"`
	CostOverride bool   `json:"costOverride,omitempty"`

	// ManifestName is set when the approved request is provisioned.
	ManifestName string `json:"manifestName,omitempty"`

	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// ReviewDecision is a reviewer's verdict on a request under review.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "approve"
	DecisionReject  ReviewDecision = "reject"
)
