package types

import (
	"errors"
	"fmt"
)

// ValidationError marks malformed input: a missing required field, an
// unparseable tier, a namespace that is not a DNS label. Surfaced to the
// caller immediately, never retried.
type ValidationError struct {
	Field  string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Detail
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Detail)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransientError marks an adapter I/O failure, timeout, or version conflict.
// Retried with bounded backoff; exhaustion is logged and the affected claim
// skipped for the cycle.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as a TransientError for the given operation.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientError.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// VersionConflictError is a compare-and-set failure against the claim
// source: the expected version token no longer matches. Treated as
// transient; the caller re-reads fresh state and retries, never overwrites.
type VersionConflictError struct {
	ClaimID         string
	ExpectedVersion string
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict on claim %s (expected %s)", e.ClaimID, e.ExpectedVersion)
}

// IsVersionConflict reports whether err is (or wraps) a VersionConflictError.
func IsVersionConflict(err error) bool {
	var vc *VersionConflictError
	return errors.As(err, &vc)
}

// ConfigError marks an unloadable or invalid policy store. Fatal to the
// admission validator and lifecycle monitor: both fail closed rather than
// proceed with stale or default-permissive policy.
type ConfigError struct {
	Detail string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy configuration: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("policy configuration: %s", e.Detail)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// InvalidStateTransitionError marks an approval workflow event attempted
// from a state that does not permit it. The operation is rejected and the
// request's state left unchanged.
type InvalidStateTransitionError struct {
	RequestID string
	From      ApprovalState
	Event     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("request %s: cannot %s from state %q", e.RequestID, e.Event, e.From)
}

// IsInvalidStateTransition reports whether err is (or wraps) an
// InvalidStateTransitionError.
func IsInvalidStateTransition(err error) bool {
	var ist *InvalidStateTransitionError
	return errors.As(err, &ist)
}

// ErrNotFound is returned when a claim or approval request does not exist.
var ErrNotFound = errors.New("not found")
