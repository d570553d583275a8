package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "tier", Detail: `unknown tier "prod"`}
	assert.Equal(t, `invalid tier: unknown tier "prod"`, err.Error())
	assert.True(t, IsValidation(err))
	assert.True(t, IsValidation(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsValidation(errors.New("other")))

	noField := &ValidationError{Detail: "just a detail"}
	assert.Equal(t, "just a detail", noField.Error())
}

func TestTransientError(t *testing.T) {
	inner := errors.New("connection refused")
	err := Transient("list claims", inner)

	assert.Equal(t, "list claims: connection refused", err.Error())
	assert.True(t, IsTransient(err))
	assert.True(t, errors.Is(err, inner))
	assert.False(t, IsTransient(inner))
}

func TestVersionConflictError(t *testing.T) {
	err := &VersionConflictError{ClaimID: "prod-a/db", ExpectedVersion: "42"}
	assert.Contains(t, err.Error(), "prod-a/db")
	assert.Contains(t, err.Error(), "42")
	assert.True(t, IsVersionConflict(err))

	// A conflict wrapped as transient is still detectable as both.
	wrapped := Transient("patch claim", err)
	assert.True(t, IsTransient(wrapped))
	assert.True(t, IsVersionConflict(wrapped))
}

func TestConfigError(t *testing.T) {
	bare := &ConfigError{Detail: "no policy loaded"}
	assert.Equal(t, "policy configuration: no policy loaded", bare.Error())
	assert.True(t, IsConfig(bare))

	inner := errors.New("yaml: line 3")
	withCause := &ConfigError{Detail: "parse policy file", Err: inner}
	assert.Contains(t, withCause.Error(), "parse policy file")
	assert.True(t, errors.Is(withCause, inner))
}

func TestInvalidStateTransitionError(t *testing.T) {
	err := &InvalidStateTransitionError{RequestID: "req-1", From: StateSubmitted, Event: "review"}
	assert.Equal(t, `request req-1: cannot review from state "submitted"`, err.Error())
	assert.True(t, IsInvalidStateTransition(err))
	assert.False(t, IsInvalidStateTransition(ErrNotFound))
}
