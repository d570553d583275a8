// Package policy loads and serves governance policy configuration.
//
// Policy is read from a structured YAML document at process start and on
// reload. Each successful load produces a new immutable Snapshot; components
// take a snapshot at the start of an operation or cycle and never observe a
// mid-cycle change. A failed reload keeps the previous snapshot in place.
package policy

import (
	"fmt"
	"time"

	"github.com/stewardio/steward/internal/types"
	"github.com/stewardio/steward/internal/util"
)

// Rule is the governance constraint set for one tier. Immutable for the
// duration of a reconciliation cycle; owned exclusively by the policy store.
type Rule struct {
	// Tier this rule applies to.
	Tier types.Tier `json:"tier"`

	// NamespacePatterns lists the namespace globs claims of this tier may
	// live in. "*" allows any namespace.
	NamespacePatterns []string `json:"namespacePatterns"`

	// MaxAgeDays caps how long a ready claim may exist without an owner
	// label. Zero means unlimited.
	MaxAgeDays int `json:"maxAgeDays,omitempty"`

	// RequireOwner demands the owner label at all times, independent of age.
	RequireOwner bool `json:"requireOwner,omitempty"`
}

// MaxAge returns the rule's age cap as a duration, or zero if unlimited.
func (r Rule) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeDays) * 24 * time.Hour
}

// Unlimited reports whether the rule imposes no age cap.
func (r Rule) Unlimited() bool { return r.MaxAgeDays == 0 }

// AllowsNamespace reports whether ns matches any of the rule's patterns.
func (r Rule) AllowsNamespace(ns string) bool {
	for _, p := range r.NamespacePatterns {
		if util.MatchGlob(p, ns) {
			return true
		}
	}
	return false
}

// Snapshot is one immutable, versioned view of the governance policy. Safe
// to share across concurrent admission checks; never mutated after Load.
type Snapshot struct {
	rules map[types.Tier]Rule

	// RequiredLabels is the set of label keys every claim must carry.
	RequiredLabels []string

	// OrgLabels are policy-owned label values stamped onto every claim.
	// They always win over team-supplied values for the same key.
	OrgLabels map[string]string

	// CostCeiling is the approval threshold above which an explicit
	// reviewer override is required.
	CostCeiling float64

	// CleanupGracePeriod is how long a flagged claim survives before
	// automated deletion.
	CleanupGracePeriod time.Duration

	// Generation increments on every successful load, for log correlation.
	Generation int64

	// LoadedAt records when this snapshot was produced.
	LoadedAt time.Time
}

// Rule returns the rule for the given tier. The second return is false when
// no rule exists; an absent rule is never treated as "no constraint".
func (s *Snapshot) Rule(tier types.Tier) (Rule, bool) {
	r, ok := s.rules[tier]
	return r, ok
}

// Tiers returns the tiers this snapshot has rules for.
func (s *Snapshot) Tiers() []types.Tier {
	out := make([]types.Tier, 0, len(s.rules))
	for t := range s.rules {
		out = append(out, t)
	}
	return out
}

// RequiresLabel reports whether the given key is policy-required.
func (s *Snapshot) RequiresLabel(key string) bool {
	for _, k := range s.RequiredLabels {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Snapshot) String() string {
	return fmt.Sprintf("policy generation %d (%d tiers, ceiling %.0f)",
		s.Generation, len(s.rules), s.CostCeiling)
}
