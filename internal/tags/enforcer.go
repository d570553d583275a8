// Package tags derives and injects the governance labels every provisioned
// resource must carry. Invoked during composition, after admission: the
// rendered resources are stamped, not the incoming claim.
package tags

import (
	"fmt"
	"sort"
	"strings"

	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/types"
)

// Label keys with engine-derived values.
const (
	LabelTeam        = "team"
	LabelEnvironment = "environment"
)

// Enforce returns the full governance label set for a claim: the union of
// claim-supplied labels and policy-required labels. Policy-owned values
// always win on conflict; organizational metadata is not team-overridable.
//
// The output is guaranteed to contain every key in snap.RequiredLabels. A
// required key with no derivable value is a ValidationError, never a silent
// omission.
func Enforce(claim types.Claim, snap *policy.Snapshot) (map[string]string, error) {
	if snap == nil {
		return nil, &types.ConfigError{Detail: "no policy loaded"}
	}

	out := make(map[string]string, len(claim.Labels)+len(snap.RequiredLabels))
	for k, v := range claim.Labels {
		out[k] = v
	}

	// Policy-owned values override whatever the team supplied.
	for k, v := range snap.OrgLabels {
		out[k] = v
	}

	var missing []string
	for _, key := range snap.RequiredLabels {
		if out[key] != "" {
			continue
		}
		value := derive(key, claim)
		if value == "" {
			missing = append(missing, key)
			continue
		}
		out[key] = value
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &types.ValidationError{
			Field:  "labels",
			Detail: fmt.Sprintf("no value derivable for required label(s) %s", strings.Join(missing, ", ")),
		}
	}
	return out, nil
}

// derive computes a value for a required label the claim did not supply.
func derive(key string, claim types.Claim) string {
	switch key {
	case LabelEnvironment:
		return string(claim.Tier)
	case LabelTeam:
		// Namespaces follow the <team>-<suffix> convention; the prefix is
		// the best available team hint when the label is absent.
		if i := strings.IndexByte(claim.Namespace, '-'); i > 0 {
			return claim.Namespace[:i]
		}
		return claim.Namespace
	default:
		return ""
	}
}
