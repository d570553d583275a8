// Package lifecycle enforces governance policy on existing claims.
//
// Reconcile is a pure function of the claim snapshot, the policy snapshot,
// and an injected clock, so a cycle is deterministic and testable without a
// live cluster. The Monitor schedules cycles; the applier turns the emitted
// actions into claim source writes.
package lifecycle

import (
	"fmt"
	"sort"

	"time"

	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/types"
)

// Reconcile inspects every claim and emits the corrective actions policy
// demands. Claims are evaluated independently; the output is sorted by
// claim ID then kind so identical inputs always produce identical output.
func Reconcile(claims []types.Claim, snap *policy.Snapshot, now time.Time) []types.Action {
	if snap == nil {
		// Fail closed: with no policy there is nothing safe to enforce.
		return nil
	}

	var actions []types.Action
	for _, claim := range claims {
		actions = append(actions, reconcileClaim(claim, snap, now)...)
	}

	sort.Slice(actions, func(i, j int) bool {
		if actions[i].ClaimID != actions[j].ClaimID {
			return actions[i].ClaimID < actions[j].ClaimID
		}
		return actions[i].Kind < actions[j].Kind
	})
	return actions
}

// reconcileClaim evaluates one claim against policy.
func reconcileClaim(claim types.Claim, snap *policy.Snapshot, now time.Time) []types.Action {
	if claim.Terminal() {
		return nil
	}

	var actions []types.Action
	rule, hasRule := snap.Rule(claim.Tier)

	// Age-based cleanup: ready claims past the tier's max age with no owner
	// label. An owner label exempts the claim regardless of tier or age.
	if claim.Status == types.StatusReady && hasRule && !rule.Unlimited() && !claim.HasOwner() {
		if age := claim.Age(now); age > rule.MaxAge() {
			actions = append(actions, types.Action{
				Kind:    types.ActionFlagForCleanup,
				ClaimID: claim.ID,
				Reason: fmt.Sprintf("age %s exceeds %s-tier maximum of %d days with no %s label",
					age.Round(time.Hour), claim.Tier, rule.MaxAgeDays, types.OwnerLabel),
			})
		}
	}

	// Ownership requirement: independent of age.
	if hasRule && rule.RequireOwner && !claim.HasOwner() {
		actions = append(actions, types.Action{
			Kind:    types.ActionRequireOwner,
			ClaimID: claim.ID,
			Reason:  fmt.Sprintf("%s-tier claims must carry the %q label", claim.Tier, types.OwnerLabel),
		})
	}

	// Required governance labels.
	if missing := missingLabels(claim, snap); len(missing) > 0 {
		actions = append(actions, types.Action{
			Kind:        types.ActionMissingRequiredLabel,
			ClaimID:     claim.ID,
			MissingKeys: missing,
			Reason:      fmt.Sprintf("missing required label(s): %v", missing),
		})
	}

	// Grace-period expiry: flagged claims are deleted once the policy grace
	// period has elapsed since the flag timestamp. A flagged claim with no
	// timestamp (flagged out-of-band) is re-flagged to stamp one, otherwise
	// it would sit in flagged-for-cleanup forever.
	if claim.Status == types.StatusFlaggedForCleanup {
		switch {
		case claim.FlaggedAt.IsZero():
			actions = append(actions, types.Action{
				Kind:    types.ActionFlagForCleanup,
				ClaimID: claim.ID,
				Reason:  "flagged with no flag timestamp, stamping one so the grace period can run",
			})
		case now.Sub(claim.FlaggedAt) > snap.CleanupGracePeriod:
			actions = append(actions, types.Action{
				Kind:    types.ActionDeleteExpired,
				ClaimID: claim.ID,
				Reason: fmt.Sprintf("flagged %s ago, past the %s cleanup grace period",
					now.Sub(claim.FlaggedAt).Round(time.Hour), snap.CleanupGracePeriod),
			})
		}
	}

	return actions
}

// missingLabels returns the policy-required keys absent from the claim, in
// sorted order for deterministic output.
func missingLabels(claim types.Claim, snap *policy.Snapshot) []string {
	var missing []string
	for _, key := range snap.RequiredLabels {
		if claim.Labels[key] == "" {
			missing = append(missing, key)
		}
	}
	sort.Strings(missing)
	return missing
}
