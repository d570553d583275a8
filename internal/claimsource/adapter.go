// Package claimsource abstracts the claim inventory.
//
// The engine consumes a read/patch contract only: list, get, patch with an
// optimistic-concurrency token, delete. No push or watch interface is
// assumed; polling List is always a valid substitute.
package claimsource

import (
	"context"

	"github.com/stewardio/steward/internal/types"
)

// Changes describes a partial claim update. Nil or empty fields are left
// untouched; SetLabels merges into the existing label map.
type Changes struct {
	Status      types.ClaimStatus
	SetLabels   map[string]string
	Annotations map[string]string
}

// Adapter is the claim source contract. Patch and Delete carry the version
// token the caller read; a stale token yields a VersionConflictError so the
// caller re-reads and retries instead of blindly overwriting.
type Adapter interface {
	List(ctx context.Context) ([]types.Claim, error)
	Get(ctx context.Context, id string) (types.Claim, error)
	Patch(ctx context.Context, id, expectedVersion string, changes Changes) (types.Claim, error)
	Delete(ctx context.Context, id, expectedVersion string) error
}
