package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"sigs.k8s.io/yaml"

	"github.com/stewardio/steward/internal/api"
	"github.com/stewardio/steward/internal/approval"
	"github.com/stewardio/steward/internal/types"
)

// CheckResult is the result of an offline admission check.
type CheckResult struct {
	Allowed bool              `json:"allowed"`
	Reasons []string          `json:"reasons,omitempty"`
	Labels  map[string]string `json:"labels,omitempty"`
	Claim   ClaimRef          `json:"claim"`
}

// ClaimRef identifies the checked claim.
type ClaimRef struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Tier      string `json:"tier"`
}

// outputResult outputs the result in the specified format.
func outputResult(result interface{}, format string) error {
	switch format {
	case "json":
		return outputJSON(result)
	case "yaml":
		return outputYAML(result)
	default:
		return outputTable(result)
	}
}

func outputJSON(result interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func outputYAML(result interface{}) error {
	data, err := yaml.Marshal(result)
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func outputTable(result interface{}) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	switch r := result.(type) {
	case api.ClaimsResponse:
		return outputClaimsTable(w, r)
	case CheckResult:
		return outputCheckTable(w, r)
	case api.RequestsResponse:
		return outputRequestsTable(w, r.Requests...)
	case types.ApprovalRequest:
		return outputRequestsTable(w, r)
	case approval.ReviewOutcome:
		return outputReviewTable(w, r)
	case api.ProvisionResponse:
		return outputProvisionTable(w, r)
	default:
		// Fall back to JSON for unknown types
		return outputJSON(result)
	}
}

func outputClaimsTable(w *tabwriter.Writer, r api.ClaimsResponse) error {
	fmt.Fprintf(w, "TOTAL\t%d\n\n", len(r.Claims))

	fmt.Fprintln(w, "NAMESPACE\tNAME\tTIER\tSTATUS\tOWNER\tCREATED")
	for _, c := range r.Claims {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Namespace, c.Name, c.Tier, c.Status, c.Labels[types.OwnerLabel], c.CreatedAt)
	}

	return nil
}

func outputCheckTable(w *tabwriter.Writer, r CheckResult) error {
	status := "ALLOWED"
	if !r.Allowed {
		status = "DENIED"
	}

	fmt.Fprintf(w, "CLAIM:\t%s/%s (%s)\n", r.Claim.Namespace, r.Claim.Name, r.Claim.Tier)
	fmt.Fprintf(w, "STATUS:\t%s\n", status)

	if len(r.Reasons) > 0 {
		fmt.Fprintln(w, "\nREASONS:")
		for _, reason := range r.Reasons {
			fmt.Fprintf(w, "- %s\n", reason)
		}
	}

	if len(r.Labels) > 0 {
		fmt.Fprintln(w, "\nLABELS:")
		keys := make([]string, 0, len(r.Labels))
		for k := range r.Labels {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "%s\t%s\n", k, r.Labels[k])
		}
	}

	return nil
}

func outputRequestsTable(w *tabwriter.Writer, requests ...types.ApprovalRequest) error {
	fmt.Fprintln(w, "ID\tSTATE\tREQUESTER\tCOST\tREVIEWER\tSUBMITTED")
	for _, req := range requests {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\t%s\n",
			req.ID, req.State, req.Requester, req.EstimatedCost,
			req.Reviewer, req.SubmittedAt.Format("2006-01-02 15:04"))
	}
	return nil
}

func outputReviewTable(w *tabwriter.Writer, r approval.ReviewOutcome) error {
	if !r.Applied {
		fmt.Fprintf(w, "NOT APPLIED:\t%s\n\n", r.Reason)
	}
	return outputRequestsTable(w, r.Request)
}

func outputProvisionTable(w *tabwriter.Writer, r api.ProvisionResponse) error {
	fmt.Fprintf(w, "MANIFEST:\t%s\n\n", r.Manifest.Metadata.Name)
	return outputRequestsTable(w, r.Request)
}

// printManifestYAML writes the emitted manifest to the given writer.
func printManifestYAML(w io.Writer, m approval.ManifestDescriptor) error {
	data, err := m.ToYAML()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
