package lifecycle

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stewardio/steward/internal/claimsource"
	"github.com/stewardio/steward/internal/inventory"
	"github.com/stewardio/steward/internal/policy"
)

// MonitorOptions configures the lifecycle monitor.
type MonitorOptions struct {
	// Interval between reconciliation cycles. Default: 1 hour.
	Interval time.Duration

	// Now is the clock used for age computation. Default: time.Now.
	Now func() time.Time
}

// DefaultMonitorOptions returns sensible defaults.
func DefaultMonitorOptions() MonitorOptions {
	return MonitorOptions{
		Interval: time.Hour,
		Now:      time.Now,
	}
}

// Monitor runs the recurring reconciliation loop: list every claim, compute
// compliance against the current policy snapshot, apply corrective actions.
// Two cycles never overlap; a tick that arrives while a cycle is still
// running is skipped rather than queued.
type Monitor struct {
	logger    *zap.Logger
	source    claimsource.Adapter
	store     *policy.Store
	applier   *Applier
	inventory *inventory.Inventory
	opts      MonitorOptions

	running sync.Mutex
}

// NewMonitor creates a Monitor.
func NewMonitor(
	source claimsource.Adapter,
	store *policy.Store,
	inv *inventory.Inventory,
	logger *zap.Logger,
	opts MonitorOptions,
) *Monitor {
	if opts.Interval == 0 {
		opts.Interval = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Monitor{
		logger:    logger.Named("lifecycle"),
		source:    source,
		store:     store,
		applier:   NewApplier(source, logger),
		inventory: inv,
		opts:      opts,
	}
}

// Start runs the scheduled loop until the context is cancelled. One cycle
// runs immediately on startup.
func (m *Monitor) Start(ctx context.Context) error {
	m.logger.Info("Starting lifecycle monitor", zap.Duration("interval", m.opts.Interval))

	m.runCycle(ctx)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Lifecycle monitor stopped")
			return nil
		case <-ticker.C:
			m.runCycle(ctx)
		}
	}
}

// RunOnce executes a single on-demand cycle, subject to the same mutual
// exclusion as the scheduled loop.
func (m *Monitor) RunOnce(ctx context.Context) error {
	return m.runCycle(ctx)
}

// runCycle executes one reconciliation cycle. Returns nil when the cycle
// was skipped because another is in flight.
func (m *Monitor) runCycle(ctx context.Context) error {
	if !m.running.TryLock() {
		cyclesSkipped.Inc()
		m.logger.Warn("Previous reconciliation cycle still running, skipping")
		return nil
	}
	defer m.running.Unlock()

	start := time.Now()
	defer func() { cycleDuration.Observe(time.Since(start).Seconds()) }()

	snap, err := m.store.Current()
	if err != nil {
		// Fail closed: without a valid policy snapshot no lifecycle action
		// is safe to take.
		m.logger.Error("Policy unavailable, skipping all lifecycle actions", zap.Error(err))
		return err
	}

	claims, err := m.source.List(ctx)
	if err != nil {
		m.logger.Error("Failed to list claims, skipping cycle", zap.Error(err))
		return err
	}
	if m.inventory != nil {
		m.inventory.Replace(claims)
	}

	now := m.opts.Now()
	actions := Reconcile(claims, snap, now)
	for _, action := range actions {
		actionsEmitted.WithLabelValues(string(action.Kind)).Inc()
	}

	m.logger.Info("Reconciliation cycle computed",
		zap.Int64("policy_generation", snap.Generation),
		zap.Int("claims", len(claims)),
		zap.Int("actions", len(actions)),
	)

	var failed int
	for _, action := range actions {
		// Cooperative cancellation at per-claim boundaries: the in-flight
		// write finishes, then the cycle stops.
		select {
		case <-ctx.Done():
			m.logger.Info("Cycle cancelled",
				zap.Int("applied", len(actions)-failed),
				zap.Error(ctx.Err()),
			)
			return ctx.Err()
		default:
		}

		if err := m.applier.Apply(ctx, action); err != nil {
			// One claim's failure never aborts the cycle for the others.
			failed++
			m.logger.Error("Failed to apply action, continuing",
				zap.String("claim", action.ClaimID),
				zap.String("kind", string(action.Kind)),
				zap.Error(err),
			)
			continue
		}

		m.logger.Info("Applied lifecycle action",
			zap.String("claim", action.ClaimID),
			zap.String("kind", string(action.Kind)),
			zap.String("reason", action.Reason),
		)
	}

	m.logger.Info("Reconciliation cycle complete",
		zap.Int("actions", len(actions)),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}
