package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:scope=Namespaced,shortName=rc
// +kubebuilder:printcolumn:name="Tier",type=string,JSONPath=`.spec.tier`
// +kubebuilder:printcolumn:name="Phase",type=string,JSONPath=`.status.phase`
// +kubebuilder:printcolumn:name="Age",type=date,JSONPath=`.metadata.creationTimestamp`

// ResourceClaim is a declarative request for a governed infrastructure
// resource. Teams create claims; the governance engine admits or denies
// them at creation and lifecycle-manages them afterwards. The provisioning
// engine that turns an admitted claim into running infrastructure is a
// separate system.
type ResourceClaim struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   ResourceClaimSpec   `json:"spec"`
	Status ResourceClaimStatus `json:"status,omitempty"`
}

type ResourceClaimSpec struct {
	// Tier classifies the target environment and drives policy strictness.
	// +kubebuilder:validation:Enum=development;staging;production
	Tier string `json:"tier"`

	// StorageSizeGB is the requested storage size.
	// +kubebuilder:validation:Minimum=0
	// +optional
	StorageSizeGB int `json:"storageSizeGB,omitempty"`

	// Version is the requested engine version (e.g., "15" for PostgreSQL 15).
	// +optional
	Version string `json:"version,omitempty"`

	// EnableBackups requests automated backups for the provisioned resource.
	// +optional
	EnableBackups bool `json:"enableBackups,omitempty"`
}

type ResourceClaimStatus struct {
	// Phase is the claim's lifecycle state. Written only by the governance
	// engine after admission.
	// +kubebuilder:validation:Enum=pending;ready;denied;flagged-for-cleanup;deleted
	// +optional
	Phase string `json:"phase,omitempty"`

	// FlaggedAt is when the claim entered flagged-for-cleanup. Grace-period
	// expiry is computed from this absolute timestamp.
	// +optional
	FlaggedAt string `json:"flaggedAt,omitempty"`

	// Reasons carries the accumulated denial rationale for denied claims.
	// +optional
	Reasons []string `json:"reasons,omitempty"`
}

// +kubebuilder:object:root=true
type ResourceClaimList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitempty"`
	Items           []ResourceClaim `json:"items"`
}
