package claimsource

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"

	"github.com/stewardio/steward/internal/types"
)

// DefaultGVR is the cluster resource backing the claim inventory.
var DefaultGVR = schema.GroupVersionResource{
	Group:    "governance.steward.io",
	Version:  "v1alpha1",
	Resource: "resourceclaims",
}

const defaultRequestTimeout = 10 * time.Second

// DynamicAdapter implements Adapter over a Kubernetes dynamic client. Claims
// are stored as ResourceClaim objects; the adapter converts between the
// unstructured cluster shape and the engine's normalized Claim.
type DynamicAdapter struct {
	client  dynamic.Interface
	gvr     schema.GroupVersionResource
	timeout time.Duration
	logger  *zap.Logger
}

// NewDynamicAdapter creates a DynamicAdapter over the given client and GVR.
func NewDynamicAdapter(client dynamic.Interface, gvr schema.GroupVersionResource, logger *zap.Logger) *DynamicAdapter {
	return &DynamicAdapter{
		client:  client,
		gvr:     gvr,
		timeout: defaultRequestTimeout,
		logger:  logger.Named("claimsource"),
	}
}

// List returns all claims across all namespaces.
func (a *DynamicAdapter) List(ctx context.Context) ([]types.Claim, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	list, err := a.client.Resource(a.gvr).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, types.Transient("list claims", err)
	}

	claims := make([]types.Claim, 0, len(list.Items))
	for i := range list.Items {
		claim, err := FromUnstructured(&list.Items[i])
		if err != nil {
			// A malformed object must not poison the whole cycle.
			a.logger.Warn("Skipping malformed claim object",
				zap.String("name", list.Items[i].GetName()),
				zap.String("namespace", list.Items[i].GetNamespace()),
				zap.Error(err),
			)
			continue
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// Get fetches a single claim by its namespace-qualified ID.
func (a *DynamicAdapter) Get(ctx context.Context, id string) (types.Claim, error) {
	namespace, name, err := SplitID(id)
	if err != nil {
		return types.Claim{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	obj, err := a.client.Resource(a.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return types.Claim{}, fmt.Errorf("claim %s: %w", id, types.ErrNotFound)
		}
		return types.Claim{}, types.Transient("get claim "+id, err)
	}
	return FromUnstructured(obj)
}

// Patch applies changes to a claim using compare-and-set on the version
// token. The object is re-read, checked against expectedVersion, mutated,
// and written back carrying that same version so the API server enforces
// the CAS; either check failing surfaces as a VersionConflictError.
func (a *DynamicAdapter) Patch(ctx context.Context, id, expectedVersion string, changes Changes) (types.Claim, error) {
	namespace, name, err := SplitID(id)
	if err != nil {
		return types.Claim{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	obj, err := a.client.Resource(a.gvr).Namespace(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return types.Claim{}, fmt.Errorf("claim %s: %w", id, types.ErrNotFound)
		}
		return types.Claim{}, types.Transient("get claim "+id, err)
	}
	if obj.GetResourceVersion() != expectedVersion {
		return types.Claim{}, types.Transient("patch claim "+id,
			&types.VersionConflictError{ClaimID: id, ExpectedVersion: expectedVersion})
	}

	applyChanges(obj, changes)

	updated, err := a.client.Resource(a.gvr).Namespace(namespace).Update(ctx, obj, metav1.UpdateOptions{})
	if err != nil {
		if apierrors.IsConflict(err) {
			return types.Claim{}, types.Transient("patch claim "+id,
				&types.VersionConflictError{ClaimID: id, ExpectedVersion: expectedVersion})
		}
		return types.Claim{}, types.Transient("patch claim "+id, err)
	}
	return FromUnstructured(updated)
}

// Delete removes a claim, guarded by the version token.
func (a *DynamicAdapter) Delete(ctx context.Context, id, expectedVersion string) error {
	namespace, name, err := SplitID(id)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	opts := metav1.DeleteOptions{
		Preconditions: &metav1.Preconditions{ResourceVersion: &expectedVersion},
	}
	if err := a.client.Resource(a.gvr).Namespace(namespace).Delete(ctx, name, opts); err != nil {
		if apierrors.IsNotFound(err) {
			// Already gone: deletion is idempotent.
			return nil
		}
		if apierrors.IsConflict(err) {
			return types.Transient("delete claim "+id,
				&types.VersionConflictError{ClaimID: id, ExpectedVersion: expectedVersion})
		}
		return types.Transient("delete claim "+id, err)
	}
	return nil
}

// applyChanges mutates the unstructured object in place.
func applyChanges(obj *unstructured.Unstructured, changes Changes) {
	if changes.Status != "" {
		_ = unstructured.SetNestedField(obj.Object, string(changes.Status), "status", "phase")
		if changes.Status == types.StatusFlaggedForCleanup {
			// Record when the claim was flagged so grace-period expiry is
			// computed from an absolute timestamp. Never overwrite an
			// existing value: re-flagging must not reset the clock.
			if existing, _, _ := unstructured.NestedString(obj.Object, "status", "flaggedAt"); existing == "" {
				_ = unstructured.SetNestedField(obj.Object,
					time.Now().UTC().Format(time.RFC3339), "status", "flaggedAt")
			}
		}
	}
	if len(changes.SetLabels) > 0 {
		labels := obj.GetLabels()
		if labels == nil {
			labels = make(map[string]string, len(changes.SetLabels))
		}
		for k, v := range changes.SetLabels {
			labels[k] = v
		}
		obj.SetLabels(labels)
	}
	if len(changes.Annotations) > 0 {
		annotations := obj.GetAnnotations()
		if annotations == nil {
			annotations = make(map[string]string, len(changes.Annotations))
		}
		for k, v := range changes.Annotations {
			annotations[k] = v
		}
		obj.SetAnnotations(annotations)
	}
}

// FromUnstructured converts a ResourceClaim cluster object to a normalized Claim.
func FromUnstructured(obj *unstructured.Unstructured) (types.Claim, error) {
	tierRaw, _, _ := unstructured.NestedString(obj.Object, "spec", "tier")
	tier, err := types.ParseTier(tierRaw)
	if err != nil {
		return types.Claim{}, err
	}

	phase, _, _ := unstructured.NestedString(obj.Object, "status", "phase")
	if phase == "" {
		phase = string(types.StatusPending)
	}

	storage, _, _ := unstructured.NestedInt64(obj.Object, "spec", "storageSizeGB")
	engineVersion, _, _ := unstructured.NestedString(obj.Object, "spec", "version")
	backups, _, _ := unstructured.NestedBool(obj.Object, "spec", "enableBackups")

	claim := types.Claim{
		ID:            obj.GetNamespace() + "/" + obj.GetName(),
		Name:          obj.GetName(),
		Namespace:     obj.GetNamespace(),
		Tier:          tier,
		Status:        types.ClaimStatus(phase),
		StorageSizeGB: int(storage),
		EngineVersion: engineVersion,
		EnableBackups: backups,
		Labels:        obj.GetLabels(),
		Annotations:   obj.GetAnnotations(),
		CreatedAt:     obj.GetCreationTimestamp().Time,
		Version:       obj.GetResourceVersion(),
	}

	if flaggedAt, _, _ := unstructured.NestedString(obj.Object, "status", "flaggedAt"); flaggedAt != "" {
		if t, err := time.Parse(time.RFC3339, flaggedAt); err == nil {
			claim.FlaggedAt = t
		}
	}
	return claim, nil
}

// SplitID splits a namespace-qualified claim ID into its parts.
func SplitID(id string) (namespace, name string, err error) {
	parts := strings.SplitN(id, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &types.ValidationError{Field: "id", Detail: fmt.Sprintf("%q is not namespace-qualified", id)}
	}
	return parts[0], parts[1], nil
}
