package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/stewardio/steward/internal/api"
	"github.com/stewardio/steward/internal/approval"
	"github.com/stewardio/steward/internal/types"
)

var (
	submitRequester   string
	submitDescription string
	submitCost        float64
	requestReviewer   string
	reviewOverride    bool
)

func requestsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "Manage custom infrastructure approval requests",
	}

	cmd.AddCommand(requestsListCmd())
	cmd.AddCommand(requestsGetCmd())
	cmd.AddCommand(requestsSubmitCmd())
	cmd.AddCommand(requestsOpenCmd())
	cmd.AddCommand(requestsApproveCmd())
	cmd.AddCommand(requestsRejectCmd())
	cmd.AddCommand(requestsProvisionCmd())

	return cmd
}

func requestsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List approval requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.RequestsResponse
			if err := getClient().get(context.Background(), "/api/v1/requests", nil, &resp); err != nil {
				return err
			}
			return outputResult(resp, outputFmt)
		},
	}
}

func requestsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one approval request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req types.ApprovalRequest
			if err := getClient().get(context.Background(), "/api/v1/requests/"+args[0], nil, &req); err != nil {
				return err
			}
			return outputResult(req, outputFmt)
		},
	}
}

func requestsSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a custom infrastructure request",
		Long: `Submit a request for infrastructure outside the standard blueprints.

Examples:
  stewardctl requests submit --requester alice --description "dedicated kafka cluster" --cost 420`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var req types.ApprovalRequest
			err := getClient().post(context.Background(), "/api/v1/requests", api.SubmitRequest{
				Requester:     submitRequester,
				Description:   submitDescription,
				EstimatedCost: submitCost,
			}, &req)
			if err != nil {
				return err
			}
			return outputResult(req, outputFmt)
		},
	}

	cmd.Flags().StringVar(&submitRequester, "requester", "", "Requesting user or team (required)")
	cmd.Flags().StringVar(&submitDescription, "description", "", "What is being requested and why (required)")
	cmd.Flags().Float64Var(&submitCost, "cost", 0, "Estimated monthly cost")
	cmd.MarkFlagRequired("requester")
	cmd.MarkFlagRequired("description")

	return cmd
}

func requestsOpenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "open <id>",
		Short: "Open a notified request for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var req types.ApprovalRequest
			err := getClient().post(context.Background(), "/api/v1/requests/"+args[0]+"/open",
				api.OpenRequest{Reviewer: requestReviewer}, &req)
			if err != nil {
				return err
			}
			return outputResult(req, outputFmt)
		},
	}

	cmd.Flags().StringVar(&requestReviewer, "reviewer", "", "Reviewer taking the request (required)")
	cmd.MarkFlagRequired("reviewer")

	return cmd
}

func requestsApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a request under review",
		RunE:  reviewRunE(string(types.DecisionApprove)),
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().StringVar(&requestReviewer, "reviewer", "", "Reviewer making the decision (required)")
	cmd.Flags().BoolVar(&reviewOverride, "override-cost-ceiling", false, "Approve even when the estimated cost exceeds the policy ceiling")
	cmd.MarkFlagRequired("reviewer")

	return cmd
}

func requestsRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a request under review",
		RunE:  reviewRunE(string(types.DecisionReject)),
		Args:  cobra.ExactArgs(1),
	}

	cmd.Flags().StringVar(&requestReviewer, "reviewer", "", "Reviewer making the decision (required)")
	cmd.MarkFlagRequired("reviewer")

	return cmd
}

func reviewRunE(decision string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		var outcome approval.ReviewOutcome
		err := getClient().post(context.Background(), "/api/v1/requests/"+args[0]+"/review",
			api.ReviewRequest{
				Decision:     decision,
				Reviewer:     requestReviewer,
				CostOverride: reviewOverride,
			}, &outcome)
		if err != nil {
			return err
		}
		return outputResult(outcome, outputFmt)
	}
}

func requestsProvisionCmd() *cobra.Command {
	var showManifest bool

	cmd := &cobra.Command{
		Use:   "provision <id>",
		Short: "Mark an approved request provisioned and emit its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp api.ProvisionResponse
			err := getClient().post(context.Background(), "/api/v1/requests/"+args[0]+"/provision", nil, &resp)
			if err != nil {
				return err
			}
			if showManifest {
				return printManifestYAML(os.Stdout, resp.Manifest)
			}
			return outputResult(resp, outputFmt)
		},
	}

	cmd.Flags().BoolVar(&showManifest, "manifest", false, "Print the emitted manifest YAML instead of the request summary")

	return cmd
}
