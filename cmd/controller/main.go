package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	"k8s.io/client-go/dynamic"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	internalapi "github.com/stewardio/steward/internal/api"
	"github.com/stewardio/steward/internal/approval"
	"github.com/stewardio/steward/internal/claimsource"
	"github.com/stewardio/steward/internal/inventory"
	"github.com/stewardio/steward/internal/lifecycle"
	"github.com/stewardio/steward/internal/notifier"
	"github.com/stewardio/steward/internal/policy"
)

var scheme = runtime.NewScheme()

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
}

func main() {
	var (
		metricsAddr       string
		healthAddr        string
		leaderElect       bool
		policyFile        string
		reconcileInterval time.Duration
		notifyInterval    time.Duration
		claimsGroup       string
		claimsVersion     string
		claimsResource    string
		webhookURL        string
		webhookTimeout    int
		webhookInsecure   bool
		webhookAuthToken  string
	)

	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&healthAddr, "health-probe-bind-address", ":8081", "The address the health probe endpoint binds to.")
	flag.BoolVar(&leaderElect, "leader-elect", true, "Enable leader election for controller manager.")
	flag.StringVar(&policyFile, "policy-file", "/etc/steward/policy.yaml", "Path to the governance policy file.")
	flag.DurationVar(&reconcileInterval, "reconcile-interval", time.Hour, "How often to run a lifecycle reconciliation cycle.")
	flag.DurationVar(&notifyInterval, "notify-interval", time.Minute, "How often to retry platform-team notification for submitted approval requests.")
	flag.StringVar(&claimsGroup, "claims-group", claimsource.DefaultGVR.Group, "API group of the claims resource.")
	flag.StringVar(&claimsVersion, "claims-version", claimsource.DefaultGVR.Version, "API version of the claims resource.")
	flag.StringVar(&claimsResource, "claims-resource", claimsource.DefaultGVR.Resource, "Plural name of the claims resource.")
	flag.StringVar(&webhookURL, "notify-webhook-url", "", "URL for platform-team approval notifications (HTTP POST).")
	flag.IntVar(&webhookTimeout, "notify-webhook-timeout", 10, "Notification HTTP request timeout in seconds.")
	flag.BoolVar(&webhookInsecure, "notify-webhook-insecure-skip-verify", false, "Disable TLS certificate verification for notifications (insecure).")
	flag.StringVar(&webhookAuthToken, "notify-webhook-auth-token", "", "Bearer token for notification Authorization header. Overridden by STEWARD_WEBHOOK_AUTH_TOKEN env var if set.")
	flag.Parse()

	// Environment variable override for webhook auth token (allows Secret mounting).
	if envToken := os.Getenv("STEWARD_WEBHOOK_AUTH_TOKEN"); envToken != "" {
		webhookAuthToken = envToken
	}

	logConfig := zap.NewProductionConfig()
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, err := logConfig.Build()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting Steward",
		zap.String("version", "dev"),
		zap.Bool("leader_elect", leaderElect),
		zap.String("policy_file", policyFile),
		zap.Duration("reconcile_interval", reconcileInterval),
	)

	// Load the policy before anything that depends on it. A broken file at
	// startup is fatal for the controller: unlike the webhook it has no
	// sensible deny-all posture to fall back to, it would just burn cycles.
	policyStore := policy.NewStore(policyFile, logger)
	if _, err := policyStore.Load(); err != nil {
		logger.Fatal("Failed to load policy", zap.Error(err))
	}

	// Inventory is created before the manager so its API handlers can be
	// registered on the metrics server via ExtraHandlers.
	inv := inventory.New(func(count int) {
		logger.Debug("Inventory updated", zap.Int("claims", count))
	})

	// Platform-team notifier is optional; without it approval requests stay
	// in submitted until an operator wires a URL.
	var approvalNotifier approval.Notifier
	if webhookURL != "" {
		sender, err := notifier.NewWebhookSender(logger, notifier.WebhookSenderConfig{
			URL:                webhookURL,
			TimeoutSeconds:     webhookTimeout,
			InsecureSkipVerify: webhookInsecure,
			AuthToken:          webhookAuthToken,
		})
		if err != nil {
			logger.Fatal("Failed to create notification sender", zap.Error(err))
		}
		approvalNotifier = sender
		logger.Info("Notification sender configured", zap.String("url", notifier.RedactURL(webhookURL)))
	}

	approvalManager := approval.NewManager(policyStore, approvalNotifier, logger)

	cfg := ctrl.GetConfigOrDie()
	mgr, err := ctrl.NewManager(cfg, ctrl.Options{
		Scheme:                 scheme,
		LeaderElection:         leaderElect,
		LeaderElectionID:       "steward-leader",
		HealthProbeBindAddress: healthAddr,
		Metrics: metricsserver.Options{
			BindAddress:   metricsAddr,
			ExtraHandlers: internalapi.ExtraHandlers(inv, approvalManager, logger),
		},
	})
	if err != nil {
		logger.Fatal("Unable to create manager", zap.Error(err))
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		logger.Fatal("Unable to set up health check", zap.Error(err))
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		logger.Fatal("Unable to set up readiness check", zap.Error(err))
	}

	dynamicClient, err := dynamic.NewForConfig(cfg)
	if err != nil {
		logger.Fatal("Failed to create dynamic client", zap.Error(err))
	}

	gvr := schema.GroupVersionResource{
		Group:    claimsGroup,
		Version:  claimsVersion,
		Resource: claimsResource,
	}
	source := claimsource.NewDynamicAdapter(dynamicClient, gvr, logger)

	monitorOpts := lifecycle.DefaultMonitorOptions()
	monitorOpts.Interval = reconcileInterval
	monitor := lifecycle.NewMonitor(source, policyStore, inv, logger, monitorOpts)

	// Policy hot-reload: SIGHUP and file-watch.
	if err := mgr.Add(&runnableFunc{fn: func(ctx context.Context) error {
		return policyStore.Watch(ctx)
	}}); err != nil {
		logger.Fatal("Failed to add policy watcher to manager", zap.Error(err))
	}

	// Lifecycle reconciliation loop.
	if err := mgr.Add(&runnableFunc{fn: func(ctx context.Context) error {
		return monitor.Start(ctx)
	}}); err != nil {
		logger.Fatal("Failed to add lifecycle monitor to manager", zap.Error(err))
	}

	// Re-deliver platform-team notifications for requests still in submitted.
	if err := mgr.Add(&runnableFunc{fn: func(ctx context.Context) error {
		ticker := time.NewTicker(notifyInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				approvalManager.NotifyPending(ctx)
			}
		}
	}}); err != nil {
		logger.Fatal("Failed to add notification retry loop to manager", zap.Error(err))
	}

	ctx := ctrl.SetupSignalHandler()

	logger.Info("Starting manager")
	if err := mgr.Start(ctx); err != nil {
		logger.Fatal("Manager exited with error", zap.Error(err))
	}
}

// runnableFunc is a helper to convert a function to a controller-runtime Runnable.
type runnableFunc struct {
	fn func(context.Context) error
}

func (r *runnableFunc) Start(ctx context.Context) error {
	return r.fn(ctx)
}
