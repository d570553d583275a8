package policy

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"sigs.k8s.io/yaml"

	"github.com/stewardio/steward/internal/types"
	"github.com/stewardio/steward/internal/util"
)

// fileConfig is the on-disk YAML shape of the governance policy document.
type fileConfig struct {
	Tiers map[string]struct {
		NamespacePatterns []string `json:"namespacePatterns"`
		MaxAgeDays        int      `json:"maxAgeDays,omitempty"`
		RequireOwner      bool     `json:"requireOwner,omitempty"`
	} `json:"tiers"`

	RequiredLabels     []string          `json:"requiredLabels"`
	OrgLabels          map[string]string `json:"orgLabels,omitempty"`
	CostCeiling        float64           `json:"costCeiling"`
	CleanupGracePeriod string            `json:"cleanupGracePeriod,omitempty"`
}

const defaultCleanupGracePeriod = 72 * time.Hour

// Store holds the live policy snapshot. Reads are lock-free; a reload swaps
// the pointer atomically so an in-flight cycle keeps its old snapshot.
type Store struct {
	path    string
	logger  *zap.Logger
	current atomic.Pointer[Snapshot]
	gen     atomic.Int64
}

// NewStore creates a Store reading policy from path. Call Load before
// serving; Current fails closed until the first successful load.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		path:   path,
		logger: logger.Named("policy"),
	}
}

// Current returns the live snapshot. Returns a ConfigError when no snapshot
// has ever loaded; callers must treat that as deny-all / skip-all.
func (s *Store) Current() (*Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, &types.ConfigError{Detail: "no policy loaded"}
	}
	return snap, nil
}

// Load reads, parses, and validates the policy file, then installs the new
// snapshot. On error the previous snapshot (if any) stays in place.
func (s *Store) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &types.ConfigError{Detail: "read policy file", Err: err}
	}

	var cfg fileConfig
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, &types.ConfigError{Detail: "parse policy file", Err: err}
	}

	snap, err := buildSnapshot(cfg)
	if err != nil {
		return nil, err
	}

	snap.Generation = s.gen.Add(1)
	snap.LoadedAt = time.Now()
	s.current.Store(snap)

	s.logger.Info("Policy loaded",
		zap.Int64("generation", snap.Generation),
		zap.Int("tiers", len(snap.rules)),
		zap.Strings("required_labels", snap.RequiredLabels),
		zap.Float64("cost_ceiling", snap.CostCeiling),
		zap.Duration("cleanup_grace_period", snap.CleanupGracePeriod),
	)
	return snap, nil
}

// buildSnapshot validates the parsed config and produces an immutable snapshot.
func buildSnapshot(cfg fileConfig) (*Snapshot, error) {
	if len(cfg.Tiers) == 0 {
		return nil, &types.ConfigError{Detail: "no tier rules defined"}
	}
	if len(cfg.RequiredLabels) == 0 {
		return nil, &types.ConfigError{Detail: "requiredLabels must not be empty"}
	}
	if cfg.CostCeiling <= 0 {
		return nil, &types.ConfigError{Detail: "costCeiling must be positive"}
	}

	rules := make(map[types.Tier]Rule, len(cfg.Tiers))
	for name, rc := range cfg.Tiers {
		tier, err := types.ParseTier(name)
		if err != nil {
			return nil, &types.ConfigError{Detail: "tier rules", Err: err}
		}
		if len(rc.NamespacePatterns) == 0 {
			return nil, &types.ConfigError{Detail: "tier " + name + ": namespacePatterns must not be empty"}
		}
		for _, p := range rc.NamespacePatterns {
			if !util.ValidGlob(p) {
				return nil, &types.ConfigError{Detail: "tier " + name + ": invalid namespace pattern " + p}
			}
		}
		if rc.MaxAgeDays < 0 {
			return nil, &types.ConfigError{Detail: "tier " + name + ": maxAgeDays must not be negative"}
		}
		rules[tier] = Rule{
			Tier:              tier,
			NamespacePatterns: rc.NamespacePatterns,
			MaxAgeDays:        rc.MaxAgeDays,
			RequireOwner:      rc.RequireOwner,
		}
	}

	grace := defaultCleanupGracePeriod
	if cfg.CleanupGracePeriod != "" {
		d, err := time.ParseDuration(cfg.CleanupGracePeriod)
		if err != nil || d <= 0 {
			return nil, &types.ConfigError{Detail: "invalid cleanupGracePeriod " + cfg.CleanupGracePeriod, Err: err}
		}
		grace = d
	}

	return &Snapshot{
		rules:              rules,
		RequiredLabels:     util.UniqueStrings(cfg.RequiredLabels),
		OrgLabels:          cfg.OrgLabels,
		CostCeiling:        cfg.CostCeiling,
		CleanupGracePeriod: grace,
	}, nil
}

// Watch reloads the policy on SIGHUP and on file change until the context is
// cancelled. Reload failures are logged and the previous snapshot kept.
func (s *Store) Watch(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return &types.ConfigError{Detail: "create policy watcher", Err: err}
	}
	defer watcher.Close()

	// Watch the directory, not the file: editors and configmap mounts
	// replace the file via rename, which drops a file-level watch.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		return &types.ConfigError{Detail: "watch policy directory", Err: err}
	}

	s.logger.Info("Policy watcher started", zap.String("path", s.path))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Policy watcher stopped")
			return nil
		case <-sigCh:
			s.reload("SIGHUP")
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(s.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reload("file change")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Policy watcher error", zap.Error(err))
		}
	}
}

func (s *Store) reload(trigger string) {
	if _, err := s.Load(); err != nil {
		s.logger.Error("Policy reload failed, keeping previous snapshot",
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("Policy reloaded", zap.String("trigger", trigger))
}
