package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	v1alpha1 "github.com/stewardio/steward/api/v1alpha1"
	"github.com/stewardio/steward/internal/admission"
	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/tags"
	"github.com/stewardio/steward/internal/types"
)

var (
	checkFile       string
	checkPolicyFile string
)

func checkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a claim against a policy file without a cluster",
		Long: `Run the admission decision for a claim manifest offline.

The same validation the webhook performs: placement rules, tier rules,
label derivation. Useful in CI before a claim ever reaches the cluster.

Examples:
  # Check a claim
  stewardctl check -f claim.yaml --policy policy.yaml

  # Check and output as JSON
  stewardctl check -f claim.yaml --policy policy.yaml -o json`,
		RunE: runCheck,
	}

	cmd.Flags().StringVarP(&checkFile, "filename", "f", "", "Claim manifest to check (required)")
	cmd.Flags().StringVar(&checkPolicyFile, "policy", "", "Policy file to check against (required)")
	cmd.MarkFlagRequired("filename")
	cmd.MarkFlagRequired("policy")

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	claim, err := readClaim(checkFile)
	if err != nil {
		return err
	}

	store := policy.NewStore(checkPolicyFile, zap.NewNop())
	snap, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	result := CheckResult{
		Claim: ClaimRef{
			Name:      claim.Name,
			Namespace: claim.Namespace,
			Tier:      string(claim.Tier),
		},
	}

	if err := admission.ValidateInput(claim); err != nil {
		result.Reasons = []string{err.Error()}
		return outputResult(result, outputFmt)
	}

	decision := admission.Validate(claim, snap)
	if !decision.Allowed {
		result.Reasons = decision.Reasons
		return outputResult(result, outputFmt)
	}

	labels, err := tags.Enforce(claim, snap)
	if err != nil {
		result.Reasons = []string{err.Error()}
		return outputResult(result, outputFmt)
	}

	result.Allowed = true
	result.Labels = labels
	return outputResult(result, outputFmt)
}

// readClaim parses a ResourceClaim manifest into the engine's claim type.
func readClaim(path string) (types.Claim, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.Claim{}, fmt.Errorf("failed to read claim manifest: %w", err)
	}

	var rc v1alpha1.ResourceClaim
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return types.Claim{}, fmt.Errorf("failed to parse claim manifest: %w", err)
	}

	return types.Claim{
		ID:            rc.Namespace + "/" + rc.Name,
		Name:          rc.Name,
		Namespace:     rc.Namespace,
		Tier:          types.Tier(rc.Spec.Tier),
		Status:        types.StatusPending,
		StorageSizeGB: rc.Spec.StorageSizeGB,
		EngineVersion: rc.Spec.Version,
		EnableBackups: rc.Spec.EnableBackups,
		Labels:        rc.Labels,
		Annotations:   rc.Annotations,
		CreatedAt:     rc.CreationTimestamp.Time,
	}, nil
}
