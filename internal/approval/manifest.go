package approval

import (
	"fmt"
	"strings"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/stewardio/steward/internal/types"
)

// ManifestDescriptor is what Steward hands to the provisioning engine when
// an approved request is provisioned. It describes the requested
// infrastructure; the provisioning itself is out of scope.
type ManifestDescriptor struct {
	APIVersion string            `json:"apiVersion"`
	Kind       string            `json:"kind"`
	Metadata   ManifestMetadata  `json:"metadata"`
	Spec       ManifestSpec      `json:"spec"`
	Labels     map[string]string `json:"labels,omitempty"`
}

type ManifestMetadata struct {
	Name        string            `json:"name"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

type ManifestSpec struct {
	RequestID     string  `json:"requestId"`
	Requester     string  `json:"requester"`
	Description   string  `json:"description"`
	EstimatedCost float64 `json:"estimatedCost"`
	ApprovedBy    string  `json:"approvedBy"`
	ApprovedAt    string  `json:"approvedAt"`
}

// buildManifest renders the descriptor for an approved request.
func buildManifest(req types.ApprovalRequest, now time.Time) ManifestDescriptor {
	return ManifestDescriptor{
		APIVersion: "governance.steward.io/v1alpha1",
		Kind:       "CustomInfrastructure",
		Metadata: ManifestMetadata{
			Name: manifestName(req),
			Annotations: map[string]string{
				"governance.steward.io/approved-by": req.Reviewer,
			},
		},
		Spec: ManifestSpec{
			RequestID:     req.ID,
			Requester:     req.Requester,
			Description:   req.Description,
			EstimatedCost: req.EstimatedCost,
			ApprovedBy:    req.Reviewer,
			ApprovedAt:    now.UTC().Format(time.RFC3339),
		},
	}
}

// manifestName derives a DNS-safe manifest name from the request ID.
func manifestName(req types.ApprovalRequest) string {
	short := req.ID
	if i := strings.IndexByte(short, '-'); i > 0 {
		short = short[:i]
	}
	return fmt.Sprintf("custom-%s", strings.ToLower(short))
}

// ToYAML renders the descriptor as a YAML document.
func (m ManifestDescriptor) ToYAML() ([]byte, error) {
	return yaml.Marshal(m)
}
