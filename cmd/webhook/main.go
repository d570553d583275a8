package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/stewardio/steward/internal/policy"
	"github.com/stewardio/steward/internal/webhook"
)

// runConfig holds parsed configuration for the webhook.
type runConfig struct {
	PolicyFile     string
	TLSCertFile    string
	TLSKeyFile     string
	Addr           string
	Namespace      string
	SelfSignedMode bool
}

func main() {
	cfg := runConfig{}
	flag.StringVar(&cfg.PolicyFile, "policy-file", "/etc/steward/policy.yaml", "Path to the governance policy file")
	flag.StringVar(&cfg.TLSCertFile, "tls-cert-file", "", "Path to TLS certificate file (optional if using self-signed mode)")
	flag.StringVar(&cfg.TLSKeyFile, "tls-key-file", "", "Path to TLS key file (optional if using self-signed mode)")
	flag.StringVar(&cfg.Addr, "addr", ":8443", "Address to listen on")
	flag.StringVar(&cfg.Namespace, "namespace", "steward-system", "Namespace where the webhook runs")
	flag.BoolVar(&cfg.SelfSignedMode, "self-signed", true, "Use self-signed certificate management")
	flag.Parse()

	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server error", zap.Error(err))
	}
}

// run contains the main application logic, separated from main() for testability.
func run(cfg runConfig, logger *zap.Logger) error {
	logger.Info("Starting Steward admission webhook",
		zap.String("addr", cfg.Addr),
		zap.String("policy_file", cfg.PolicyFile),
		zap.Bool("self_signed", cfg.SelfSignedMode),
	)

	config, err := rest.InClusterConfig()
	if err != nil {
		return fmt.Errorf("failed to get in-cluster config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return fmt.Errorf("failed to create Kubernetes client: %w", err)
	}

	return startServer(cfg, clientset, logger)
}

// startServer sets up the policy store, certificate manager, admission
// handler, and HTTPS server. It blocks until the context is cancelled or an
// error occurs. Extracted from run() to allow testing with a fake clientset.
func startServer(cfg runConfig, clientset kubernetes.Interface, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	// Load the policy before serving. If the file is broken at startup the
	// webhook still comes up and denies everything until a valid reload.
	store := policy.NewStore(cfg.PolicyFile, logger)
	if _, err := store.Load(); err != nil {
		logger.Error("Initial policy load failed, denying all claims until reload", zap.Error(err))
	}
	go func() {
		if err := store.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Error("Policy watcher stopped", zap.Error(err))
		}
	}()

	var certManager *webhook.CertManager
	if cfg.SelfSignedMode {
		certConfig := webhook.DefaultCertManagerConfig(cfg.Namespace)
		certManager = webhook.NewCertManager(clientset, certConfig, logger)

		if err := certManager.EnsureCertificates(ctx); err != nil {
			return fmt.Errorf("failed to ensure certificates: %w", err)
		}

		// Register the webhook configuration (create or caBundle sync).
		// Retry in the background because the API server may not be ready
		// for admissionregistration writes when the pod starts.
		go func() {
			for attempt := 0; attempt < 10; attempt++ {
				if err := certManager.EnsureWebhookConfiguration(ctx); err == nil {
					return
				}
				backoff := time.Duration(1<<uint(attempt)) * time.Second
				if backoff > 10*time.Second {
					backoff = 10 * time.Second
				}
				logger.Info("Retrying webhook configuration registration",
					zap.Int("attempt", attempt+1),
					zap.Duration("backoff", backoff))
				select {
				case <-ctx.Done():
					return
				case <-time.After(backoff):
				}
			}
			logger.Error("Failed to register webhook configuration after retries")
		}()

		certManager.StartRotationWatcher(ctx, 24*time.Hour)
	}

	handler := NewAdmissionHandler(store, logger)

	serverConfig := ServerConfig{
		Addr:        cfg.Addr,
		TLSCertFile: cfg.TLSCertFile,
		TLSKeyFile:  cfg.TLSKeyFile,
		CertManager: certManager,
	}

	server := NewServer(serverConfig, handler, logger)
	if err := server.Start(ctx); err != nil {
		return err
	}

	logger.Info("Webhook server stopped")
	return nil
}
