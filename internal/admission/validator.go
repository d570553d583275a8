// Package admission decides whether a claim is allowed to exist.
//
// Validation is a pure function of the claim and a policy snapshot: no I/O,
// no mutation, so it can sit behind an admission webhook, an RPC endpoint,
// or an in-process call without partial-mutation risk. Denials accumulate
// every violated rule rather than short-circuiting on the first.
package admission

import (
	"fmt"

	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/types"
	"github.com/stewardio/steward/internal/util"
)

// ValidateInput checks that a claim is syntactically well-formed. A failure
// here is a ValidationError, distinct from a policy denial: the claim could
// never be evaluated, as opposed to evaluated and refused.
func ValidateInput(claim types.Claim) error {
	if claim.Name == "" {
		return &types.ValidationError{Field: "name", Detail: "must not be empty"}
	}
	if claim.Namespace == "" {
		return &types.ValidationError{Field: "namespace", Detail: "must not be empty"}
	}
	if !util.IsDNSLabel(claim.Namespace) {
		return &types.ValidationError{Field: "namespace", Detail: fmt.Sprintf("%q is not a DNS label", claim.Namespace)}
	}
	if _, err := types.ParseTier(string(claim.Tier)); err != nil {
		return err
	}
	if claim.StorageSizeGB < 0 {
		return &types.ValidationError{Field: "storageSizeGB", Detail: "must not be negative"}
	}
	return nil
}

// Validate evaluates a well-formed claim against the policy snapshot and
// returns the admission decision. A nil snapshot fails closed: the policy
// store being unavailable is never treated as "no constraint".
//
// Label completeness and ownership are deliberately not admission concerns:
// the tag enforcer derives labels during composition and the lifecycle
// monitor flags violations continuously. Admission gates placement only.
func Validate(claim types.Claim, snap *policy.Snapshot) types.Decision {
	if snap == nil {
		return types.Deny("policy unavailable, denying by default")
	}

	var reasons []string

	rule, ok := snap.Rule(claim.Tier)
	if !ok {
		// Deny-by-default: an absent rule is a denial, not an allowance.
		reasons = append(reasons, fmt.Sprintf("unknown tier %q: no policy rule defined", claim.Tier))
	} else if !namespaceAllowed(claim, rule, snap) {
		reasons = append(reasons, fmt.Sprintf("namespace %q does not match %s pattern", claim.Namespace, claim.Tier))
	}

	if len(reasons) > 0 {
		return types.Deny(reasons...)
	}
	return types.Allow()
}

// namespaceAllowed applies the tier placement rules. Development claims are
// accepted in any namespace. Staging is allowed to float up into production
// namespaces but never down. Production is confined to its own patterns.
func namespaceAllowed(claim types.Claim, rule policy.Rule, snap *policy.Snapshot) bool {
	switch claim.Tier {
	case types.TierDevelopment:
		return true
	case types.TierStaging:
		if rule.AllowsNamespace(claim.Namespace) {
			return true
		}
		if prod, ok := snap.Rule(types.TierProduction); ok {
			return prod.AllowsNamespace(claim.Namespace)
		}
		return false
	default:
		return rule.AllowsNamespace(claim.Namespace)
	}
}
