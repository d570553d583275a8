package types

// ActionKind categorizes a corrective action emitted by a reconciliation
// cycle.
type ActionKind string

const (
	// ActionFlagForCleanup transitions a ready claim past its tier's max age
	// (and without an owner label) to flagged-for-cleanup.
	ActionFlagForCleanup ActionKind = "flag-for-cleanup"

	// ActionRequireOwner marks a production claim missing the owner label.
	// Independent of age.
	ActionRequireOwner ActionKind = "require-owner"

	// ActionMissingRequiredLabel marks a claim missing one or more
	// policy-required label keys.
	ActionMissingRequiredLabel ActionKind = "missing-required-label"

	// ActionDeleteExpired removes a flagged claim whose cleanup grace period
	// has elapsed.
	ActionDeleteExpired ActionKind = "delete-expired"
)

// Action is one corrective step against one claim. Actions are independent
// per claim: applying them in any order, or re-applying one that already
// took effect, must yield the same cluster state.
type Action struct {
	Kind    ActionKind `json:"kind"`
	ClaimID string     `json:"claimId"`

	// MissingKeys lists the absent label keys for missing-required-label.
	MissingKeys []string `json:"missingKeys,omitempty"`

	// Reason is a human-readable explanation for logs and annotations.
	Reason string `json:"reason,omitempty"`
}
