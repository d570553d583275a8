package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/stewardio/steward/internal/claimsource"
	"github.com/stewardio/steward/internal/types"
)

const (
	// AnnotationViolation records the latest policy violation on a claim.
	AnnotationViolation = "governance.steward.io/violation"

	maxApplyAttempts = 3
	baseBackoff      = 500 * time.Millisecond
)

// Applier turns reconciliation actions into claim source writes. Every
// write is a compare-and-set against the version token read at the start of
// the attempt; a conflict triggers a fresh read and retry, never an
// overwrite.
type Applier struct {
	source claimsource.Adapter
	logger *zap.Logger
}

// NewApplier creates an Applier over the given claim source.
func NewApplier(source claimsource.Adapter, logger *zap.Logger) *Applier {
	return &Applier{
		source: source,
		logger: logger.Named("applier"),
	}
}

// Apply executes one action with bounded retry. Transient failures are
// retried with exponential backoff; exhaustion returns the last error so
// the monitor can log-and-continue to the next claim.
func (a *Applier) Apply(ctx context.Context, action types.Action) error {
	var lastErr error
	for attempt := 0; attempt < maxApplyAttempts; attempt++ {
		if attempt > 0 {
			applyRetries.Inc()
			backoff := baseBackoff << uint(attempt-1)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = a.applyOnce(ctx, action)
		if lastErr == nil {
			actionApplyTotal.WithLabelValues("success").Inc()
			return nil
		}
		if !types.IsTransient(lastErr) {
			actionApplyTotal.WithLabelValues("error").Inc()
			return lastErr
		}

		a.logger.Debug("Transient failure applying action, will retry",
			zap.String("claim", action.ClaimID),
			zap.String("kind", string(action.Kind)),
			zap.Int("attempt", attempt+1),
			zap.Error(lastErr),
		)
	}

	actionApplyTotal.WithLabelValues("exhausted").Inc()
	return fmt.Errorf("apply %s to %s failed after %d attempts: %w",
		action.Kind, action.ClaimID, maxApplyAttempts, lastErr)
}

// applyOnce reads fresh claim state and performs one compare-and-set write.
func (a *Applier) applyOnce(ctx context.Context, action types.Action) error {
	claim, err := a.source.Get(ctx, action.ClaimID)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			// The claim disappeared between listing and applying: done.
			return nil
		}
		return err
	}

	switch action.Kind {
	case types.ActionFlagForCleanup:
		if claim.Status == types.StatusFlaggedForCleanup && !claim.FlaggedAt.IsZero() {
			// Already flagged with a timestamp: applying again is a no-op.
			// A flagged claim missing its timestamp is written again so the
			// adapter stamps flaggedAt and the grace period can run.
			return nil
		}
		_, err = a.source.Patch(ctx, claim.ID, claim.Version, claimsource.Changes{
			Status:      types.StatusFlaggedForCleanup,
			Annotations: map[string]string{AnnotationViolation: action.Reason},
		})
		return err

	case types.ActionRequireOwner, types.ActionMissingRequiredLabel:
		// Warn-style actions: record the violation on the claim so teams
		// and tooling can see it. Skip the write when nothing changes.
		if claim.Annotations[AnnotationViolation] == action.Reason {
			return nil
		}
		_, err = a.source.Patch(ctx, claim.ID, claim.Version, claimsource.Changes{
			Annotations: map[string]string{AnnotationViolation: action.Reason},
		})
		return err

	case types.ActionDeleteExpired:
		return a.source.Delete(ctx, claim.ID, claim.Version)

	default:
		return fmt.Errorf("unknown action kind %q", action.Kind)
	}
}
