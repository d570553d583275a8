package webhook

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newTestCertManager(client *fake.Clientset) *CertManager {
	config := CertManagerConfig{
		Namespace:         "steward-system",
		ServiceName:       "steward-webhook",
		SecretName:        "test-tls",
		WebhookConfigName: "test-webhook",
	}
	return NewCertManager(client, config, zap.NewNop())
}

func TestDefaultCertManagerConfig(t *testing.T) {
	config := DefaultCertManagerConfig("test-ns")

	assert.Equal(t, "test-ns", config.Namespace)
	assert.Equal(t, "steward-webhook", config.ServiceName)
	assert.Equal(t, DefaultSecretName, config.SecretName)
	assert.Equal(t, DefaultWebhookConfigName, config.WebhookConfigName)
}

func TestEnsureCertificates_CreateNew(t *testing.T) {
	client := fake.NewSimpleClientset()
	cm := newTestCertManager(client)
	ctx := context.Background()

	require.NoError(t, cm.EnsureCertificates(ctx))

	secret, err := client.CoreV1().Secrets("steward-system").Get(ctx, "test-tls", metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.SecretTypeTLS, secret.Type)
	assert.NotEmpty(t, secret.Data["ca.crt"])
	assert.NotEmpty(t, secret.Data["tls.crt"])
	assert.NotEmpty(t, secret.Data["tls.key"])

	_, serverCert, _ := cm.GetCertificates()
	block, _ := pem.Decode(serverCert)
	require.NotNil(t, block)

	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Contains(t, cert.DNSNames, "steward-webhook")
	assert.Contains(t, cert.DNSNames, "steward-webhook.steward-system.svc")
	assert.True(t, cert.NotAfter.After(time.Now().Add(certValidity-time.Hour)))
}

func TestEnsureCertificates_ReusesExisting(t *testing.T) {
	client := fake.NewSimpleClientset()
	ctx := context.Background()

	cm := newTestCertManager(client)
	require.NoError(t, cm.EnsureCertificates(ctx))
	initialCert, _, _ := cm.GetCertificates()

	cm2 := newTestCertManager(client)
	require.NoError(t, cm2.EnsureCertificates(ctx))

	cert2, _, _ := cm2.GetCertificates()
	assert.Equal(t, initialCert, cert2, "should reuse existing valid certificates")
}

func TestEnsureCertificates_RegeneratesExpiring(t *testing.T) {
	client := fake.NewSimpleClientset()
	ctx := context.Background()

	cm := newTestCertManager(client)
	require.NoError(t, cm.EnsureCertificates(ctx))

	// Swap in a certificate inside the rotation window.
	expiringPEM, expiringKeyPEM := expiringServerCert(t, cm, 5*24*time.Hour)
	secret, err := client.CoreV1().Secrets("steward-system").Get(ctx, "test-tls", metav1.GetOptions{})
	require.NoError(t, err)
	secret.Data["tls.crt"] = expiringPEM
	secret.Data["tls.key"] = expiringKeyPEM
	_, err = client.CoreV1().Secrets("steward-system").Update(ctx, secret, metav1.UpdateOptions{})
	require.NoError(t, err)

	cm2 := newTestCertManager(client)
	require.NoError(t, cm2.EnsureCertificates(ctx))

	_, newCert, _ := cm2.GetCertificates()
	assert.NotEqual(t, expiringPEM, newCert, "should have regenerated certificates")

	block, _ := pem.Decode(newCert)
	require.NotNil(t, block)
	parsed, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.True(t, parsed.NotAfter.After(time.Now().Add(rotationThreshold)))
}

func TestGenerateCA(t *testing.T) {
	cm := newTestCertManager(fake.NewSimpleClientset())

	certPEM, keyPEM, err := cm.generateCA()
	require.NoError(t, err)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.True(t, cert.IsCA)
	assert.True(t, cert.BasicConstraintsValid)
	assert.Equal(t, "Steward Webhook CA", cert.Subject.CommonName)
	assert.Contains(t, cert.Subject.Organization, "Steward")
	assert.NotZero(t, cert.KeyUsage&x509.KeyUsageCertSign)

	keyBlock, _ := pem.Decode(keyPEM)
	require.NotNil(t, keyBlock)
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	require.NoError(t, err)
	assert.Equal(t, 2048, key.N.BitLen())
}

func TestGenerateServerCert_SignedByCA(t *testing.T) {
	cm := newTestCertManager(fake.NewSimpleClientset())

	caCertPEM, caKeyPEM, err := cm.generateCA()
	require.NoError(t, err)

	serverCertPEM, serverKeyPEM, err := cm.generateServerCert(caCertPEM, caKeyPEM)
	require.NoError(t, err)

	block, _ := pem.Decode(serverCertPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	assert.False(t, cert.IsCA)
	assert.Equal(t, "steward-webhook", cert.Subject.CommonName)
	assert.Contains(t, cert.ExtKeyUsage, x509.ExtKeyUsageServerAuth)

	for _, dns := range []string{
		"steward-webhook",
		"steward-webhook.steward-system",
		"steward-webhook.steward-system.svc",
		"steward-webhook.steward-system.svc.cluster.local",
	} {
		assert.Contains(t, cert.DNSNames, dns)
	}

	keyBlock, _ := pem.Decode(serverKeyPEM)
	require.NotNil(t, keyBlock)
	_, err = x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	require.NoError(t, err)

	caBlock, _ := pem.Decode(caCertPEM)
	caCert, err := x509.ParseCertificate(caBlock.Bytes)
	require.NoError(t, err)

	roots := x509.NewCertPool()
	roots.AddCert(caCert)
	_, err = cert.Verify(x509.VerifyOptions{Roots: roots})
	require.NoError(t, err, "server cert should chain to the CA")
}

func TestGenerateServerCert_BadCAInput(t *testing.T) {
	cm := newTestCertManager(fake.NewSimpleClientset())
	caCertPEM, _, err := cm.generateCA()
	require.NoError(t, err)

	_, _, err = cm.generateServerCert([]byte("not a PEM"), []byte("not a key"))
	assert.ErrorContains(t, err, "failed to decode CA certificate PEM")

	_, _, err = cm.generateServerCert(caCertPEM, []byte("not a PEM key"))
	assert.ErrorContains(t, err, "failed to decode CA key PEM")
}

func TestUpdateWebhookCABundle(t *testing.T) {
	ctx := context.Background()
	webhookConfig := ClaimsWebhookConfiguration("steward-system", "steward-webhook", "test-webhook", []byte("old-ca"))

	client := fake.NewSimpleClientset(webhookConfig)
	cm := newTestCertManager(client)

	require.NoError(t, cm.EnsureCertificates(ctx))
	require.NoError(t, cm.UpdateWebhookCABundle(ctx))

	updated, err := client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Get(ctx, "test-webhook", metav1.GetOptions{})
	require.NoError(t, err)

	caCert, _, _ := cm.GetCertificates()
	assert.Equal(t, caCert, updated.Webhooks[0].ClientConfig.CABundle)

	// Idempotent when already synced.
	require.NoError(t, cm.UpdateWebhookCABundle(ctx))
}

func TestEnsureWebhookConfiguration_CreatesMissing(t *testing.T) {
	ctx := context.Background()
	client := fake.NewSimpleClientset()
	cm := newTestCertManager(client)
	require.NoError(t, cm.EnsureCertificates(ctx))

	require.NoError(t, cm.EnsureWebhookConfiguration(ctx))

	created, err := client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Get(ctx, "test-webhook", metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, created.Webhooks, 1)

	caCert, _, _ := cm.GetCertificates()
	assert.Equal(t, caCert, created.Webhooks[0].ClientConfig.CABundle)
	assert.Equal(t, admissionregistrationv1.Fail, *created.Webhooks[0].FailurePolicy)
}

func TestEnsureWebhookConfiguration_SyncsExisting(t *testing.T) {
	ctx := context.Background()
	stale := ClaimsWebhookConfiguration("steward-system", "steward-webhook", "test-webhook", []byte("old-ca"))
	client := fake.NewSimpleClientset(stale)
	cm := newTestCertManager(client)
	require.NoError(t, cm.EnsureCertificates(ctx))

	require.NoError(t, cm.EnsureWebhookConfiguration(ctx))

	got, err := client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Get(ctx, "test-webhook", metav1.GetOptions{})
	require.NoError(t, err)

	caCert, _, _ := cm.GetCertificates()
	assert.Equal(t, caCert, got.Webhooks[0].ClientConfig.CABundle)
}

func TestEnsureWebhookConfiguration_RequiresCA(t *testing.T) {
	cm := newTestCertManager(fake.NewSimpleClientset())
	err := cm.EnsureWebhookConfiguration(context.Background())
	assert.ErrorContains(t, err, "no CA certificate available")
}

func TestUpdateWebhookCABundle_Errors(t *testing.T) {
	ctx := context.Background()

	cm := newTestCertManager(fake.NewSimpleClientset())
	err := cm.UpdateWebhookCABundle(ctx)
	assert.ErrorContains(t, err, "no CA certificate available")

	require.NoError(t, cm.EnsureCertificates(ctx))
	err = cm.UpdateWebhookCABundle(ctx)
	assert.ErrorContains(t, err, "not found")
}

func TestCertsValid(t *testing.T) {
	cm := newTestCertManager(fake.NewSimpleClientset())

	tests := []struct {
		name string
		cert []byte
		want bool
	}{
		{"empty", nil, false},
		{"not PEM", []byte("not a valid PEM"), false},
		{"garbage DER", pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("garbage")}), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secret := &corev1.Secret{Data: map[string][]byte{"tls.crt": tt.cert}}
			assert.Equal(t, tt.want, cm.certsValid(secret))
		})
	}
}

func TestCertsValid_ExpiringSoon(t *testing.T) {
	cm := newTestCertManager(fake.NewSimpleClientset())

	certPEM, _ := expiringServerCert(t, cm, 24*time.Hour)
	secret := &corev1.Secret{Data: map[string][]byte{"tls.crt": certPEM}}
	assert.False(t, cm.certsValid(secret), "certificate inside the rotation window should be invalid")
}

func TestStartRotationWatcher_RotatesExpiring(t *testing.T) {
	client := fake.NewSimpleClientset()
	cm := newTestCertManager(client)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, cm.EnsureCertificates(ctx))

	webhookConfig := ClaimsWebhookConfiguration("steward-system", "steward-webhook", "test-webhook", nil)
	_, err := client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Create(ctx, webhookConfig, metav1.CreateOptions{})
	require.NoError(t, err)

	expiringPEM, expiringKeyPEM := expiringServerCert(t, cm, 2*24*time.Hour)
	secret, err := client.CoreV1().Secrets("steward-system").Get(ctx, "test-tls", metav1.GetOptions{})
	require.NoError(t, err)
	secret.Data["tls.crt"] = expiringPEM
	secret.Data["tls.key"] = expiringKeyPEM
	_, err = client.CoreV1().Secrets("steward-system").Update(ctx, secret, metav1.UpdateOptions{})
	require.NoError(t, err)

	cm.StartRotationWatcher(ctx, 50*time.Millisecond)

	require.Eventually(t, func() bool {
		rotated, err := client.CoreV1().Secrets("steward-system").Get(context.Background(), "test-tls", metav1.GetOptions{})
		if err != nil {
			return false
		}
		return !assert.ObjectsAreEqual(expiringPEM, rotated.Data["tls.crt"])
	}, 3*time.Second, 50*time.Millisecond, "server cert should have been rotated")
}

func TestClaimsWebhookConfiguration(t *testing.T) {
	caBundle := []byte("test-ca-bundle")
	config := ClaimsWebhookConfiguration("steward-system", "steward-webhook", "steward-claims", caBundle)

	assert.Equal(t, "steward-claims", config.Name)
	assert.Equal(t, "steward", config.Labels["app.kubernetes.io/name"])
	require.Len(t, config.Webhooks, 1)

	webhook := config.Webhooks[0]
	assert.Equal(t, "claims.governance.steward.io", webhook.Name)
	assert.Equal(t, caBundle, webhook.ClientConfig.CABundle)
	assert.Equal(t, "steward-system", webhook.ClientConfig.Service.Namespace)
	assert.Equal(t, "steward-webhook", webhook.ClientConfig.Service.Name)
	assert.Equal(t, "/validate", *webhook.ClientConfig.Service.Path)
	assert.Equal(t, int32(443), *webhook.ClientConfig.Service.Port)

	require.Len(t, webhook.Rules, 1)
	rule := webhook.Rules[0]
	assert.Equal(t, []admissionregistrationv1.OperationType{admissionregistrationv1.Create}, rule.Operations)
	assert.Equal(t, []string{"governance.steward.io"}, rule.APIGroups)
	assert.Equal(t, []string{"v1alpha1"}, rule.APIVersions)
	assert.Equal(t, []string{"resourceclaims"}, rule.Resources)

	// A webhook that fails open cannot deny by default.
	assert.Equal(t, admissionregistrationv1.Fail, *webhook.FailurePolicy)
	assert.Equal(t, int32(5), *webhook.TimeoutSeconds)
}

// expiringServerCert signs a server certificate that expires within the
// rotation threshold.
func expiringServerCert(t *testing.T, cm *CertManager, ttl time.Duration) (certPEM, keyPEM []byte) {
	t.Helper()

	caCertPEM, caKeyPEM, err := cm.generateCA()
	require.NoError(t, err)

	caBlock, _ := pem.Decode(caCertPEM)
	caCert, err := x509.ParseCertificate(caBlock.Bytes)
	require.NoError(t, err)
	keyBlock, _ := pem.Decode(caKeyPEM)
	caKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	require.NoError(t, err)

	serverKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: "steward-webhook"},
		NotBefore:    time.Now().Add(-350 * 24 * time.Hour),
		NotAfter:     time.Now().Add(ttl),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		DNSNames:     []string{"steward-webhook"},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, &serverKey.PublicKey, caKey)
	require.NoError(t, err)

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(serverKey)})
	return certPEM, keyPEM
}
