package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/serializer"
	k8stypes "k8s.io/apimachinery/pkg/types"

	"github.com/stewardio/steward/internal/admission"
	"github.com/stewardio/steward/internal/claimsource"
	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/tags"
	"github.com/stewardio/steward/internal/types"
)

var (
	scheme       = runtime.NewScheme()
	codecs       = serializer.NewCodecFactory(scheme)
	deserializer = codecs.UniversalDeserializer()
)

func init() {
	_ = admissionv1.AddToScheme(scheme)
}

// AdmissionHandler validates ResourceClaim creation against the current
// policy snapshot. Unlike an advisory webhook it denies: claims that
// violate placement policy never reach the cluster, and if no policy is
// loaded every claim is denied. Accepted claims come back with their
// governance labels patched in.
type AdmissionHandler struct {
	policy *policy.Store
	logger *zap.Logger
}

// NewAdmissionHandler creates a new admission handler.
func NewAdmissionHandler(store *policy.Store, logger *zap.Logger) *AdmissionHandler {
	return &AdmissionHandler{
		policy: store,
		logger: logger.Named("admission"),
	}
}

// Handle handles an admission review request.
func (h *AdmissionHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		http.Error(w, "Content-Type must be application/json", http.StatusUnsupportedMediaType)
		return
	}

	// Limit body size to prevent DoS (typical admission review is ~10-50KB)
	const maxBodySize = 1 << 20 // 1MB
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		h.logger.Error("Failed to read request body", zap.Error(err))
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	review := &admissionv1.AdmissionReview{}
	if _, _, err := deserializer.Decode(body, nil, review); err != nil {
		h.logger.Error("Failed to decode admission review", zap.Error(err))
		http.Error(w, "Malformed admission review", http.StatusBadRequest)
		return
	}

	review.Response = h.processRequest(review.Request)
	h.sendResponse(w, review)
}

// processRequest evaluates an admission request and returns the response.
func (h *AdmissionHandler) processRequest(req *admissionv1.AdmissionRequest) *admissionv1.AdmissionResponse {
	if req == nil {
		return denied("", "empty admission request")
	}

	h.logger.Debug("Processing admission request",
		zap.String("uid", string(req.UID)),
		zap.String("namespace", req.Namespace),
		zap.String("name", req.Name),
		zap.String("operation", string(req.Operation)),
	)

	// Only claim creation is gated; anything else the rules let through
	// is not ours to judge.
	if req.Operation != admissionv1.Create {
		return allowed(req.UID)
	}

	claim, err := decodeClaim(req)
	if err != nil {
		h.logger.Warn("Rejecting undecodable claim",
			zap.String("uid", string(req.UID)), zap.Error(err))
		if types.IsValidation(err) {
			return denied(req.UID, err.Error())
		}
		return denied(req.UID, "malformed resource claim: "+err.Error())
	}

	if err := admission.ValidateInput(claim); err != nil {
		return denied(req.UID, err.Error())
	}

	// A missing snapshot denies everything. The validator handles nil.
	snap, err := h.policy.Current()
	if err != nil {
		snap = nil
	}

	decision := admission.Validate(claim, snap)
	if !decision.Allowed {
		h.logger.Info("Denied claim",
			zap.String("claim", claim.ID),
			zap.Strings("reasons", decision.Reasons))
		return denied(req.UID, strings.Join(decision.Reasons, "; "))
	}

	labels, err := tags.Enforce(claim, snap)
	if err != nil {
		return denied(req.UID, err.Error())
	}

	resp := allowed(req.UID)
	if patch := labelsPatch(claim, labels); patch != nil {
		patchType := admissionv1.PatchTypeJSONPatch
		resp.Patch = patch
		resp.PatchType = &patchType
	}

	h.logger.Info("Admitted claim",
		zap.String("claim", claim.ID),
		zap.String("tier", string(claim.Tier)))
	return resp
}

// decodeClaim extracts the ResourceClaim from the raw admission object,
// falling back to the request's own name and namespace when the object
// metadata omits them.
func decodeClaim(req *admissionv1.AdmissionRequest) (types.Claim, error) {
	obj := &unstructured.Unstructured{}
	if err := json.Unmarshal(req.Object.Raw, &obj.Object); err != nil {
		return types.Claim{}, err
	}
	if obj.GetName() == "" {
		obj.SetName(req.Name)
	}
	if obj.GetNamespace() == "" {
		obj.SetNamespace(req.Namespace)
	}
	return claimsource.FromUnstructured(obj)
}

// labelsPatch builds a JSONPatch replacing the claim's labels with the
// enforced set. Returns nil when nothing changed.
func labelsPatch(claim types.Claim, enforced map[string]string) []byte {
	if len(enforced) == len(claim.Labels) {
		same := true
		for k, v := range enforced {
			if claim.Labels[k] != v {
				same = false
				break
			}
		}
		if same {
			return nil
		}
	}

	op := "add"
	if len(claim.Labels) > 0 {
		op = "replace"
	}
	patch, err := json.Marshal([]map[string]any{
		{"op": op, "path": "/metadata/labels", "value": enforced},
	})
	if err != nil {
		return nil
	}
	return patch
}

func allowed(uid k8stypes.UID) *admissionv1.AdmissionResponse {
	return &admissionv1.AdmissionResponse{UID: uid, Allowed: true}
}

func denied(uid k8stypes.UID, message string) *admissionv1.AdmissionResponse {
	return &admissionv1.AdmissionResponse{
		UID:     uid,
		Allowed: false,
		Result: &metav1.Status{
			Status:  metav1.StatusFailure,
			Reason:  metav1.StatusReasonForbidden,
			Message: message,
			Code:    http.StatusForbidden,
		},
	}
}

// sendResponse sends an admission review response.
func (h *AdmissionHandler) sendResponse(w http.ResponseWriter, review *admissionv1.AdmissionReview) {
	review.TypeMeta = metav1.TypeMeta{
		APIVersion: "admission.k8s.io/v1",
		Kind:       "AdmissionReview",
	}

	responseBytes, err := json.Marshal(review)
	if err != nil {
		h.logger.Error("Failed to marshal response", zap.Error(err))
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(responseBytes)
}
