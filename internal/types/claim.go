package types

import (
	"fmt"
	"time"
)

// Tier classifies the environment a claim targets. Policy strictness scales
// with the tier: development is nearly unconstrained, production is not.
type Tier string

const (
	TierDevelopment Tier = "development"
	TierStaging     Tier = "staging"
	TierProduction  Tier = "production"
)

// ParseTier converts a raw tier token to a Tier. Unknown values are rejected
// at the boundary rather than carried through the engine.
func ParseTier(s string) (Tier, error) {
	switch Tier(s) {
	case TierDevelopment, TierStaging, TierProduction:
		return Tier(s), nil
	default:
		return "", &ValidationError{Field: "tier", Detail: fmt.Sprintf("unknown tier %q", s)}
	}
}

// ClaimStatus is the lifecycle phase of a claim.
type ClaimStatus string

const (
	StatusPending           ClaimStatus = "pending"
	StatusReady             ClaimStatus = "ready"
	StatusDenied            ClaimStatus = "denied"
	StatusFlaggedForCleanup ClaimStatus = "flagged-for-cleanup"
	StatusDeleted           ClaimStatus = "deleted"
)

// OwnerLabel exempts a claim from age-based cleanup. Production claims must
// carry it at all times.
const OwnerLabel = "owner"

// Claim is the normalized, engine-internal representation of a governed
// infrastructure request. The claim source adapter converts cluster objects
// to and from this shape; everything above the adapter works only on Claim.
type Claim struct {
	// Identity
	ID        string // namespace-qualified: "<namespace>/<name>"
	Name      string
	Namespace string

	// Classification
	Tier   Tier
	Status ClaimStatus

	// Requested resource shape
	StorageSizeGB int
	EngineVersion string
	EnableBackups bool

	Labels      map[string]string
	Annotations map[string]string
	CreatedAt   time.Time

	// FlaggedAt is when the claim entered flagged-for-cleanup, zero otherwise.
	// Cleanup after the grace period is computed from this absolute timestamp.
	FlaggedAt time.Time

	// Version is the claim source's optimistic-concurrency token. Patches
	// carry it back; a mismatch is a version conflict, never an overwrite.
	Version string
}

// Age returns how long the claim has existed at the given instant. Computed
// from the absolute creation timestamp so missed monitor cycles never skew it.
func (c Claim) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// HasOwner reports whether the claim carries a non-empty owner label.
func (c Claim) HasOwner() bool {
	return c.Labels[OwnerLabel] != ""
}

// Terminal reports whether the claim has left the governed lifecycle.
func (c Claim) Terminal() bool {
	return c.Status == StatusDenied || c.Status == StatusDeleted
}

// Decision is the outcome of an admission check. Denials are expected
// business outcomes carried as data, not errors; Reasons accumulates every
// violated rule so callers always see the complete rejection rationale.
type Decision struct {
	Allowed bool     `json:"allowed"`
	Reasons []string `json:"reasons,omitempty"`
}

// Deny returns a Decision rejecting the claim for the given reasons.
func Deny(reasons ...string) Decision {
	return Decision{Allowed: false, Reasons: reasons}
}

// Allow returns an accepting Decision.
func Allow() Decision {
	return Decision{Allowed: true}
}
