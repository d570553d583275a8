// Package webhook manages TLS material for the admission webhook: a
// self-signed CA and server certificate stored in a cluster Secret, with
// rotation and MutatingWebhookConfiguration caBundle sync.
package webhook

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	certValidity      = 365 * 24 * time.Hour
	rotationThreshold = 30 * 24 * time.Hour

	// DefaultSecretName is the Secret storing the webhook TLS material.
	DefaultSecretName = "steward-webhook-tls"

	// DefaultWebhookConfigName is the MutatingWebhookConfiguration name.
	DefaultWebhookConfigName = "steward-claims"
)

// CertManagerConfig holds configuration for certificate management.
type CertManagerConfig struct {
	// Namespace where the webhook and secret live.
	Namespace string

	// ServiceName is the webhook service name (for DNS SANs).
	ServiceName string

	// SecretName is the name of the TLS secret.
	SecretName string

	// WebhookConfigName is the MutatingWebhookConfiguration to keep the
	// caBundle synced on.
	WebhookConfigName string
}

// DefaultCertManagerConfig returns default configuration.
func DefaultCertManagerConfig(namespace string) CertManagerConfig {
	return CertManagerConfig{
		Namespace:         namespace,
		ServiceName:       "steward-webhook",
		SecretName:        DefaultSecretName,
		WebhookConfigName: DefaultWebhookConfigName,
	}
}

// CertManager generates, stores, and rotates the webhook's self-signed
// certificates.
type CertManager struct {
	client kubernetes.Interface
	config CertManagerConfig
	logger *zap.Logger

	caCert     []byte
	serverCert []byte
	serverKey  []byte
}

// NewCertManager creates a certificate manager.
func NewCertManager(client kubernetes.Interface, config CertManagerConfig, logger *zap.Logger) *CertManager {
	return &CertManager{
		client: client,
		config: config,
		logger: logger.Named("cert-manager"),
	}
}

// EnsureCertificates loads valid certificates from the Secret or generates
// new ones when the Secret is absent, invalid, or expiring.
func (m *CertManager) EnsureCertificates(ctx context.Context) error {
	secret, getErr := m.client.CoreV1().Secrets(m.config.Namespace).
		Get(ctx, m.config.SecretName, metav1.GetOptions{})

	secretExists := getErr == nil
	if getErr == nil {
		if m.certsValid(secret) {
			m.caCert = secret.Data["ca.crt"]
			m.serverCert = secret.Data["tls.crt"]
			m.serverKey = secret.Data["tls.key"]
			m.logger.Debug("Using existing certificates from secret")
			return nil
		}
		m.logger.Info("Certificates expiring or invalid, regenerating")
	} else if !apierrors.IsNotFound(getErr) {
		return fmt.Errorf("failed to get secret: %w", getErr)
	}

	m.logger.Info("Generating self-signed certificates")
	caCert, caKey, err := m.generateCA()
	if err != nil {
		return fmt.Errorf("failed to generate CA: %w", err)
	}
	serverCert, serverKey, err := m.generateServerCert(caCert, caKey)
	if err != nil {
		return fmt.Errorf("failed to generate server certificate: %w", err)
	}

	newSecret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      m.config.SecretName,
			Namespace: m.config.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/name":      "steward",
				"app.kubernetes.io/component": "webhook",
			},
		},
		Type: corev1.SecretTypeTLS,
		Data: map[string][]byte{
			"ca.crt":  caCert,
			"tls.crt": serverCert,
			"tls.key": serverKey,
		},
	}

	if secretExists {
		_, err = m.client.CoreV1().Secrets(m.config.Namespace).Update(ctx, newSecret, metav1.UpdateOptions{})
	} else {
		_, err = m.client.CoreV1().Secrets(m.config.Namespace).Create(ctx, newSecret, metav1.CreateOptions{})
	}
	if err != nil {
		return fmt.Errorf("failed to store TLS secret: %w", err)
	}
	m.logger.Info("Stored TLS secret", zap.String("name", m.config.SecretName))

	m.caCert = caCert
	m.serverCert = serverCert
	m.serverKey = serverKey
	return nil
}

// GetCertificates returns (caCert, serverCert, serverKey).
func (m *CertManager) GetCertificates() ([]byte, []byte, []byte) {
	return m.caCert, m.serverCert, m.serverKey
}

// EnsureWebhookConfiguration creates the claims MutatingWebhookConfiguration
// if it does not exist, or syncs its CA bundle if it does. Applied at
// startup so the Fail-policy webhook registers itself without a separate
// deploy step.
func (m *CertManager) EnsureWebhookConfiguration(ctx context.Context) error {
	if len(m.caCert) == 0 {
		return fmt.Errorf("no CA certificate available")
	}

	_, err := m.client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Get(ctx, m.config.WebhookConfigName, metav1.GetOptions{})
	if err == nil {
		return m.UpdateWebhookCABundle(ctx)
	}
	if !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to get webhook configuration %s: %w", m.config.WebhookConfigName, err)
	}

	cfg := ClaimsWebhookConfiguration(m.config.Namespace, m.config.ServiceName, m.config.WebhookConfigName, m.caCert)
	if _, err := m.client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Create(ctx, cfg, metav1.CreateOptions{}); err != nil {
		if apierrors.IsAlreadyExists(err) {
			// Lost the create race to another replica; sync instead.
			return m.UpdateWebhookCABundle(ctx)
		}
		return fmt.Errorf("failed to create webhook configuration: %w", err)
	}

	m.logger.Info("Created webhook configuration", zap.String("name", m.config.WebhookConfigName))
	return nil
}

// UpdateWebhookCABundle patches the MutatingWebhookConfiguration with the
// current CA bundle.
func (m *CertManager) UpdateWebhookCABundle(ctx context.Context) error {
	if len(m.caCert) == 0 {
		return fmt.Errorf("no CA certificate available")
	}

	cfg, err := m.client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Get(ctx, m.config.WebhookConfigName, metav1.GetOptions{})
	if err != nil {
		return fmt.Errorf("failed to get webhook configuration %s: %w", m.config.WebhookConfigName, err)
	}

	updated := false
	for i := range cfg.Webhooks {
		if !bytes.Equal(cfg.Webhooks[i].ClientConfig.CABundle, m.caCert) {
			cfg.Webhooks[i].ClientConfig.CABundle = m.caCert
			updated = true
		}
	}
	if !updated {
		m.logger.Debug("Webhook CA bundle already up to date")
		return nil
	}

	if _, err := m.client.AdmissionregistrationV1().
		MutatingWebhookConfigurations().
		Update(ctx, cfg, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("failed to update webhook configuration: %w", err)
	}

	m.logger.Info("Updated webhook CA bundle", zap.String("name", m.config.WebhookConfigName))
	return nil
}

// StartRotationWatcher checks certificate validity on the given interval,
// regenerating and re-syncing the caBundle as needed.
func (m *CertManager) StartRotationWatcher(ctx context.Context, interval time.Duration) {
	go func() {
		// Sync once on startup in case the initial attempt raced with the
		// webhook configuration being created.
		if err := m.UpdateWebhookCABundle(ctx); err != nil {
			m.logger.Warn("Initial caBundle sync failed, will retry on next tick", zap.Error(err))
		}

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				secret, err := m.client.CoreV1().Secrets(m.config.Namespace).
					Get(ctx, m.config.SecretName, metav1.GetOptions{})
				if err != nil && !apierrors.IsNotFound(err) {
					m.logger.Error("Failed to check certificate rotation", zap.Error(err))
					continue
				}
				if err != nil || !m.certsValid(secret) {
					m.logger.Info("Rotating certificates")
					if err := m.EnsureCertificates(ctx); err != nil {
						m.logger.Error("Failed to rotate certificates", zap.Error(err))
						continue
					}
				}
				if err := m.UpdateWebhookCABundle(ctx); err != nil {
					m.logger.Error("Failed to update webhook CA bundle", zap.Error(err))
				}
			}
		}
	}()
}

// certsValid reports whether the stored server certificate parses and is
// not within the rotation threshold of expiry.
func (m *CertManager) certsValid(secret *corev1.Secret) bool {
	certPEM := secret.Data["tls.crt"]
	if len(certPEM) == 0 {
		return false
	}
	block, _ := pem.Decode(certPEM)
	if block == nil {
		return false
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false
	}
	if cert.NotAfter.Before(time.Now().Add(rotationThreshold)) {
		m.logger.Info("Certificate expiring soon", zap.Time("expires", cert.NotAfter))
		return false
	}
	return true
}

func (m *CertManager) generateCA() (certPEM, keyPEM []byte, err error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate CA key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Steward"},
			CommonName:   "Steward Webhook CA",
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLen:            0,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}
	return pemEncode(certDER, key), pemEncodeKey(key), nil
}

func (m *CertManager) generateServerCert(caCertPEM, caKeyPEM []byte) (certPEM, keyPEM []byte, err error) {
	caBlock, _ := pem.Decode(caCertPEM)
	if caBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode CA certificate PEM")
	}
	caCert, err := x509.ParseCertificate(caBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}
	keyBlock, _ := pem.Decode(caKeyPEM)
	if keyBlock == nil {
		return nil, nil, fmt.Errorf("failed to decode CA key PEM")
	}
	caKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	serverKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate server key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"Steward"},
			CommonName:   m.config.ServiceName,
		},
		NotBefore:             time.Now().Add(-1 * time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames: []string{
			m.config.ServiceName,
			fmt.Sprintf("%s.%s", m.config.ServiceName, m.config.Namespace),
			fmt.Sprintf("%s.%s.svc", m.config.ServiceName, m.config.Namespace),
			fmt.Sprintf("%s.%s.svc.cluster.local", m.config.ServiceName, m.config.Namespace),
		},
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, caCert, &serverKey.PublicKey, caKey)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create server certificate: %w", err)
	}
	return pemEncode(certDER, serverKey), pemEncodeKey(serverKey), nil
}

func pemEncode(certDER []byte, _ *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
}

func pemEncodeKey(key *rsa.PrivateKey) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

// ClaimsWebhookConfiguration builds the MutatingWebhookConfiguration
// gating ResourceClaim creation. It is registered as mutating because
// accepted claims come back with their governance labels patched in; a
// mutating webhook can still deny. The failure policy is Fail: if the
// governance webhook is unreachable, claims are not admitted. Denying by
// default is the whole point.
func ClaimsWebhookConfiguration(namespace, serviceName, webhookName string, caBundle []byte) *admissionregistrationv1.MutatingWebhookConfiguration {
	failurePolicy := admissionregistrationv1.Fail
	sideEffects := admissionregistrationv1.SideEffectClassNone
	matchPolicy := admissionregistrationv1.Equivalent
	timeoutSeconds := int32(5)
	neverReinvoke := admissionregistrationv1.NeverReinvocationPolicy

	return &admissionregistrationv1.MutatingWebhookConfiguration{
		ObjectMeta: metav1.ObjectMeta{
			Name: webhookName,
			Labels: map[string]string{
				"app.kubernetes.io/name":      "steward",
				"app.kubernetes.io/component": "webhook",
			},
		},
		Webhooks: []admissionregistrationv1.MutatingWebhook{
			{
				Name: "claims.governance.steward.io",
				ClientConfig: admissionregistrationv1.WebhookClientConfig{
					Service: &admissionregistrationv1.ServiceReference{
						Namespace: namespace,
						Name:      serviceName,
						Path:      ptr("/validate"),
						Port:      ptrInt32(443),
					},
					CABundle: caBundle,
				},
				Rules: []admissionregistrationv1.RuleWithOperations{
					{
						Operations: []admissionregistrationv1.OperationType{
							admissionregistrationv1.Create,
						},
						Rule: admissionregistrationv1.Rule{
							APIGroups:   []string{"governance.steward.io"},
							APIVersions: []string{"v1alpha1"},
							Resources:   []string{"resourceclaims"},
						},
					},
				},
				FailurePolicy:           &failurePolicy,
				SideEffects:             &sideEffects,
				AdmissionReviewVersions: []string{"v1"},
				MatchPolicy:             &matchPolicy,
				TimeoutSeconds:          &timeoutSeconds,
				ReinvocationPolicy:      &neverReinvoke,
			},
		},
	}
}

func ptr(s string) *string    { return &s }
func ptrInt32(i int32) *int32 { return &i }
