package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"

	"github.com/stewardio/steward/internal/policy"
)

const testPolicy = `
tiers:
  development:
    namespacePatterns: ["*"]
  staging:
    namespacePatterns: ["staging-*"]
  production:
    namespacePatterns: ["prod-*"]
    requireOwner: true
requiredLabels:
  - environment
  - team
orgLabels:
  cost-center: eng-42
costCeiling: 500
`

func loadedStore(t *testing.T) *policy.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPolicy), 0o600))
	store := policy.NewStore(path, zap.NewNop())
	_, err := store.Load()
	require.NoError(t, err)
	return store
}

func claimObject(name, namespace, tier string, labels map[string]string) []byte {
	metadata := map[string]any{
		"name":      name,
		"namespace": namespace,
	}
	if labels != nil {
		metadata["labels"] = labels
	}
	raw, _ := json.Marshal(map[string]any{
		"apiVersion": "governance.steward.io/v1alpha1",
		"kind":       "ResourceClaim",
		"metadata":   metadata,
		"spec": map[string]any{
			"tier":          tier,
			"storageSizeGB": 20,
		},
	})
	return raw
}

func reviewBody(t *testing.T, operation admissionv1.Operation, object []byte) []byte {
	t.Helper()
	review := admissionv1.AdmissionReview{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "admission.k8s.io/v1",
			Kind:       "AdmissionReview",
		},
		Request: &admissionv1.AdmissionRequest{
			UID:       "test-uid",
			Operation: operation,
			Object:    runtime.RawExtension{Raw: object},
		},
	}
	body, err := json.Marshal(review)
	require.NoError(t, err)
	return body
}

func postReview(t *testing.T, h *AdmissionHandler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) *admissionv1.AdmissionResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var review admissionv1.AdmissionReview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &review))
	require.NotNil(t, review.Response)
	return review.Response
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/validate", nil)
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandle_BadContentType(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	req := httptest.NewRequest(http.MethodPost, "/validate", bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	h.Handle(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandle_MalformedReview(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	rec := postReview(t, h, []byte("this is not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandle_DeniesWhenPolicyUnavailable(t *testing.T) {
	// Store constructed but never loaded.
	store := policy.NewStore(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	h := NewAdmissionHandler(store, zap.NewNop())

	body := reviewBody(t, admissionv1.Create,
		claimObject("db", "prod-payments", "production", map[string]string{"owner": "alice"}))
	resp := decodeResponse(t, postReview(t, h, body))

	assert.False(t, resp.Allowed)
	assert.Contains(t, resp.Result.Message, "policy unavailable")
}

func TestHandle_AllowsAndPatchesLabels(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	body := reviewBody(t, admissionv1.Create,
		claimObject("db", "prod-payments", "production", map[string]string{"owner": "alice"}))
	resp := decodeResponse(t, postReview(t, h, body))

	assert.True(t, resp.Allowed)
	require.NotNil(t, resp.PatchType)
	assert.Equal(t, admissionv1.PatchTypeJSONPatch, *resp.PatchType)

	var ops []struct {
		Op    string            `json:"op"`
		Path  string            `json:"path"`
		Value map[string]string `json:"value"`
	}
	require.NoError(t, json.Unmarshal(resp.Patch, &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "replace", ops[0].Op)
	assert.Equal(t, "/metadata/labels", ops[0].Path)
	assert.Equal(t, map[string]string{
		"owner":       "alice",
		"cost-center": "eng-42",
		"environment": "production",
		"team":        "prod",
	}, ops[0].Value)
}

func TestHandle_AddsLabelsWhenNoneSupplied(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	body := reviewBody(t, admissionv1.Create,
		claimObject("scratch", "team-a", "development", nil))
	resp := decodeResponse(t, postReview(t, h, body))

	assert.True(t, resp.Allowed)
	require.NotNil(t, resp.Patch)

	var ops []struct {
		Op   string `json:"op"`
		Path string `json:"path"`
	}
	require.NoError(t, json.Unmarshal(resp.Patch, &ops))
	require.Len(t, ops, 1)
	assert.Equal(t, "add", ops[0].Op)
}

func TestHandle_DeniesWrongNamespace(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	body := reviewBody(t, admissionv1.Create,
		claimObject("db", "team-sandbox", "production", nil))
	resp := decodeResponse(t, postReview(t, h, body))

	assert.False(t, resp.Allowed)
	assert.Contains(t, resp.Result.Message, `namespace "team-sandbox" does not match production pattern`)
	assert.Equal(t, int32(http.StatusForbidden), resp.Result.Code)
}

func TestHandle_StagingAllowedInProductionNamespace(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	body := reviewBody(t, admissionv1.Create,
		claimObject("db", "prod-payments", "staging", nil))
	resp := decodeResponse(t, postReview(t, h, body))

	assert.True(t, resp.Allowed)
}

func TestHandle_DeniesUnknownTier(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	body := reviewBody(t, admissionv1.Create,
		claimObject("db", "prod-payments", "quantum", nil))
	resp := decodeResponse(t, postReview(t, h, body))

	assert.False(t, resp.Allowed)
	assert.Contains(t, resp.Result.Message, "quantum")
}

func TestHandle_DeniesEmptyObject(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	body := reviewBody(t, admissionv1.Create, []byte(`{"metadata":{},"spec":{}}`))
	resp := decodeResponse(t, postReview(t, h, body))
	assert.False(t, resp.Allowed)
}

func TestProcessRequest_NilRequest(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	resp := h.processRequest(nil)
	assert.False(t, resp.Allowed)
}

func TestProcessRequest_NonCreateAllowed(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	resp := h.processRequest(&admissionv1.AdmissionRequest{
		UID:       "uid",
		Operation: admissionv1.Delete,
	})
	assert.True(t, resp.Allowed)
}

func TestProcessRequest_ResponseCarriesUID(t *testing.T) {
	h := NewAdmissionHandler(loadedStore(t), zap.NewNop())

	resp := h.processRequest(&admissionv1.AdmissionRequest{
		UID:       "uid-42",
		Operation: admissionv1.Create,
		Object:    runtime.RawExtension{Raw: claimObject("db", "prod-a", "production", nil)},
	})
	assert.Equal(t, "uid-42", string(resp.UID))
}
