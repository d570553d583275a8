package main

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/webhook"
)

func TestServer_HandleHealth(t *testing.T) {
	s := NewServer(ServerConfig{}, NewAdmissionHandler(loadedStore(t), zap.NewNop()), zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServer_HandleReady_PolicyLoaded(t *testing.T) {
	s := NewServer(ServerConfig{}, NewAdmissionHandler(loadedStore(t), zap.NewNop()), zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_HandleReady_NoPolicy(t *testing.T) {
	store := policy.NewStore(filepath.Join(t.TempDir(), "absent.yaml"), zap.NewNop())
	s := NewServer(ServerConfig{}, NewAdmissionHandler(store, zap.NewNop()), zap.NewNop())

	rec := httptest.NewRecorder()
	s.handleReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_GetTLSConfig_NoConfiguration(t *testing.T) {
	s := NewServer(ServerConfig{}, nil, zap.NewNop())

	_, err := s.getTLSConfig()
	assert.ErrorContains(t, err, "no TLS configuration provided")
}

func TestServer_GetTLSConfig_FileBased(t *testing.T) {
	s := NewServer(ServerConfig{TLSCertFile: "cert.pem", TLSKeyFile: "key.pem"}, nil, zap.NewNop())

	cfg, err := s.getTLSConfig()
	require.NoError(t, err)
	assert.Nil(t, cfg.GetCertificate)
}

func TestServer_GetTLSConfig_CertManager(t *testing.T) {
	client := fake.NewSimpleClientset()
	cm := webhook.NewCertManager(client, webhook.DefaultCertManagerConfig("steward-system"), zap.NewNop())
	require.NoError(t, cm.EnsureCertificates(t.Context()))

	s := NewServer(ServerConfig{CertManager: cm}, nil, zap.NewNop())

	cfg, err := s.getTLSConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.GetCertificate)

	cert, err := cfg.GetCertificate(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
}

func TestServer_GetTLSConfig_CertManagerEmpty(t *testing.T) {
	client := fake.NewSimpleClientset()
	cm := webhook.NewCertManager(client, webhook.DefaultCertManagerConfig("steward-system"), zap.NewNop())

	s := NewServer(ServerConfig{CertManager: cm}, nil, zap.NewNop())

	cfg, err := s.getTLSConfig()
	require.NoError(t, err)

	_, err = cfg.GetCertificate(nil)
	assert.ErrorContains(t, err, "no certificates")
}
