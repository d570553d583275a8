// Package approval implements the workflow for infrastructure requests that
// fall outside the standard blueprints.
//
// A request moves through a one-directional state machine:
//
//	submitted -> notified -> under_review -> approved -> provisioned
//	                                      \-> rejected
//
// No state is ever revisited once left. A rejected request stays rejected;
// teams resubmit a new one. The manager is the sole writer of request state.
package approval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/types"
)

// Notifier delivers a submitted request to the platform team. A nil
// Notifier (or a failed delivery) leaves the request in submitted; the
// retry loop re-attempts until delivery succeeds.
type Notifier interface {
	NotifySubmission(ctx context.Context, req types.ApprovalRequest) error
}

// ReviewOutcome is the result of a review call. Cost-ceiling refusals are
// business outcomes carried here, not errors: the request stays under
// review and the reviewer is told why.
type ReviewOutcome struct {
	Request types.ApprovalRequest `json:"request"`
	Applied bool                  `json:"applied"`
	Reason  string                `json:"reason,omitempty"`
}

// Manager owns the approval workflow state machine.
type Manager struct {
	logger   *zap.Logger
	store    *Store
	policy   *policy.Store
	notifier Notifier
	now      func() time.Time

	// mu makes each read-check-write transition atomic. The store's own
	// lock covers single map operations only; without this, two concurrent
	// reviews could both observe under_review and the loser would
	// overwrite a terminal verdict.
	mu sync.Mutex
}

// NewManager creates a Manager. notifier may be nil, in which case requests
// stay in submitted until NotifyPending delivers them.
func NewManager(policyStore *policy.Store, notifier Notifier, logger *zap.Logger) *Manager {
	return &Manager{
		logger:   logger.Named("approval"),
		store:    NewStore(),
		policy:   policyStore,
		notifier: notifier,
		now:      time.Now,
	}
}

// Submit validates and registers a new request, then attempts platform-team
// notification. The request always starts in submitted; a successful
// notification moves it to notified before Submit returns.
func (m *Manager) Submit(ctx context.Context, requester, description string, estimatedCost float64) (types.ApprovalRequest, error) {
	if requester == "" {
		return types.ApprovalRequest{}, &types.ValidationError{Field: "requester", Detail: "must not be empty"}
	}
	if description == "" {
		return types.ApprovalRequest{}, &types.ValidationError{Field: "description", Detail: "must not be empty"}
	}
	if estimatedCost < 0 {
		return types.ApprovalRequest{}, &types.ValidationError{Field: "estimatedCost", Detail: "must not be negative"}
	}

	now := m.now()
	req := types.ApprovalRequest{
		ID:            uuid.NewString(),
		Requester:     requester,
		Description:   description,
		EstimatedCost: estimatedCost,
		State:         types.StateSubmitted,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}
	m.store.Put(req)

	m.logger.Info("Approval request submitted",
		zap.String("id", req.ID),
		zap.String("requester", requester),
		zap.Float64("estimated_cost", estimatedCost),
	)

	return m.notify(ctx, req), nil
}

// notify attempts platform-team delivery and advances submitted -> notified
// on success. Failures are logged; the request stays submitted for retry.
// The delivery happens outside the transition lock; the state is re-read
// under it before the advance, so a concurrent retry never double-puts.
func (m *Manager) notify(ctx context.Context, req types.ApprovalRequest) types.ApprovalRequest {
	if m.notifier == nil || req.State != types.StateSubmitted {
		return req
	}
	if err := m.notifier.NotifySubmission(ctx, req); err != nil {
		m.logger.Warn("Platform-team notification failed, will retry",
			zap.String("id", req.ID),
			zap.Error(err),
		)
		return req
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.store.Get(req.ID)
	if !ok || current.State != types.StateSubmitted {
		return current
	}
	current.State = types.StateNotified
	current.UpdatedAt = m.now()
	m.store.Put(current)
	m.logger.Info("Platform team notified", zap.String("id", req.ID))
	return current
}

// NotifyPending re-attempts delivery for every request still in submitted.
// Called periodically by the controller.
func (m *Manager) NotifyPending(ctx context.Context) {
	for _, req := range m.store.InState(types.StateSubmitted) {
		m.notify(ctx, req)
	}
}

// Open transitions a request from notified to under_review, recording which
// reviewer picked it up.
func (m *Manager) Open(id, reviewer string) (types.ApprovalRequest, error) {
	if reviewer == "" {
		return types.ApprovalRequest{}, &types.ValidationError{Field: "reviewer", Detail: "must not be empty"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.store.Get(id)
	if !ok {
		return types.ApprovalRequest{}, fmt.Errorf("approval request %s: %w", id, types.ErrNotFound)
	}
	if req.State != types.StateNotified {
		return types.ApprovalRequest{}, &types.InvalidStateTransitionError{
			RequestID: id, From: req.State, Event: "open",
		}
	}

	req.State = types.StateUnderReview
	req.Reviewer = reviewer
	req.UpdatedAt = m.now()
	m.store.Put(req)

	m.logger.Info("Request opened for review",
		zap.String("id", id),
		zap.String("reviewer", reviewer),
	)
	return req, nil
}

// Review applies a reviewer's verdict. Only valid from under_review; any
// other state is an InvalidStateTransition. The check and the write happen
// under one lock, so of two racing reviews exactly one lands and the other
// is rejected.
//
// Approving a request whose estimated cost exceeds the policy ceiling
// requires costOverride; without it the outcome reports "cost ceiling
// exceeded" and the state is left unchanged.
func (m *Manager) Review(id string, decision types.ReviewDecision, reviewer string, costOverride bool) (ReviewOutcome, error) {
	if reviewer == "" {
		return ReviewOutcome{}, &types.ValidationError{Field: "reviewer", Detail: "must not be empty"}
	}
	if decision != types.DecisionApprove && decision != types.DecisionReject {
		return ReviewOutcome{}, &types.ValidationError{Field: "decision", Detail: fmt.Sprintf("unknown decision %q", decision)}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.store.Get(id)
	if !ok {
		return ReviewOutcome{}, fmt.Errorf("approval request %s: %w", id, types.ErrNotFound)
	}
	if req.State != types.StateUnderReview {
		return ReviewOutcome{}, &types.InvalidStateTransitionError{
			RequestID: id, From: req.State, Event: "review",
		}
	}

	if decision == types.DecisionApprove {
		snap, err := m.policy.Current()
		if err != nil {
			// Fail closed: no approval without a cost ceiling to check.
			return ReviewOutcome{}, err
		}
		if req.EstimatedCost > snap.CostCeiling && !costOverride {
			m.logger.Info("Approval refused: cost ceiling exceeded",
				zap.String("id", id),
				zap.Float64("estimated_cost", req.EstimatedCost),
				zap.Float64("ceiling", snap.CostCeiling),
			)
			return ReviewOutcome{
				Request: req,
				Applied: false,
				Reason:  "cost ceiling exceeded",
			}, nil
		}
		req.State = types.StateApproved
		req.CostOverride = costOverride
	} else {
		req.State = types.StateRejected
	}

	req.Reviewer = reviewer
	req.UpdatedAt = m.now()
	m.store.Put(req)

	m.logger.Info("Request reviewed",
		zap.String("id", id),
		zap.String("decision", string(decision)),
		zap.String("reviewer", reviewer),
		zap.Bool("cost_override", costOverride),
	)
	return ReviewOutcome{Request: req, Applied: true}, nil
}

// Provision transitions an approved request to provisioned and emits the
// manifest descriptor for the external provisioning engine. The emission is
// the side effect; the provisioning itself is not Steward's job.
func (m *Manager) Provision(id string) (types.ApprovalRequest, ManifestDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.store.Get(id)
	if !ok {
		return types.ApprovalRequest{}, ManifestDescriptor{}, fmt.Errorf("approval request %s: %w", id, types.ErrNotFound)
	}
	if req.State != types.StateApproved {
		return types.ApprovalRequest{}, ManifestDescriptor{}, &types.InvalidStateTransitionError{
			RequestID: id, From: req.State, Event: "provision",
		}
	}

	manifest := buildManifest(req, m.now())
	req.State = types.StateProvisioned
	req.ManifestName = manifest.Metadata.Name
	req.UpdatedAt = m.now()
	m.store.Put(req)

	m.logger.Info("Request provisioned, manifest emitted",
		zap.String("id", id),
		zap.String("manifest", manifest.Metadata.Name),
	)
	return req, manifest, nil
}

// Get returns a request by ID.
func (m *Manager) Get(id string) (types.ApprovalRequest, error) {
	req, ok := m.store.Get(id)
	if !ok {
		return types.ApprovalRequest{}, fmt.Errorf("approval request %s: %w", id, types.ErrNotFound)
	}
	return req, nil
}

// List returns all requests.
func (m *Manager) List() []types.ApprovalRequest {
	return m.store.All()
}
