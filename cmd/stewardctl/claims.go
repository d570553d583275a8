package main

import (
	"context"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/stewardio/steward/internal/api"
)

var (
	claimsNamespace string
	claimsTier      string
	claimsStatus    string
)

func claimsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "claims",
		Short: "List resource claims known to the controller",
		Long: `List claims from the controller's inventory.

Examples:
  # All claims
  stewardctl claims

  # Claims in one namespace
  stewardctl claims -n prod-payments

  # Flagged production claims, as JSON
  stewardctl claims --tier production --status flagged-for-cleanup -o json`,
		RunE: runClaims,
	}

	cmd.Flags().StringVarP(&claimsNamespace, "namespace", "n", "", "Filter by namespace")
	cmd.Flags().StringVar(&claimsTier, "tier", "", "Filter by tier (development, staging, production)")
	cmd.Flags().StringVar(&claimsStatus, "status", "", "Filter by status")

	return cmd
}

func runClaims(cmd *cobra.Command, args []string) error {
	query := url.Values{}
	if claimsNamespace != "" {
		query.Set("namespace", claimsNamespace)
	}
	if claimsTier != "" {
		query.Set("tier", claimsTier)
	}
	if claimsStatus != "" {
		query.Set("status", claimsStatus)
	}

	var resp api.ClaimsResponse
	if err := getClient().get(context.Background(), "/api/v1/claims", query, &resp); err != nil {
		return err
	}

	return outputResult(resp, outputFmt)
}
