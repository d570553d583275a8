// stewardctl is a CLI tool for inspecting Steward governance state.
//
// Installation:
//
//	go build -o stewardctl ./cmd/stewardctl
//	mv stewardctl /usr/local/bin/
//
// Usage:
//
//	stewardctl claims -n prod-payments
//	stewardctl check -f claim.yaml --policy policy.yaml
//	stewardctl requests list
//	stewardctl requests submit --requester alice --description "kafka cluster" --cost 420
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	outputFmt string
	serverURL string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "stewardctl",
		Short: "Inspect Steward claims and approval requests",
		Long: `stewardctl is a CLI tool for interacting with Steward.

It reads governance state from the controller API and can evaluate a
claim against a policy file offline, without a cluster.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://steward-controller.steward-system.svc:8080", "Base URL of the Steward controller API")

	// Add subcommands
	rootCmd.AddCommand(claimsCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(requestsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
