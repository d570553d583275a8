// Package inventory keeps the last-observed claim set in memory so API
// reads never hit the cluster. The lifecycle monitor replaces the whole set
// once per cycle; nothing else writes.
package inventory

import (
	"sync"
	"time"

	"github.com/stewardio/steward/internal/types"
)

// ChangeFunc is called after every Replace with the new claim count.
type ChangeFunc func(count int)

// Inventory is a concurrent-safe snapshot of the claim population.
type Inventory struct {
	mu        sync.RWMutex
	byID      map[string]types.Claim
	updatedAt time.Time
	onChange  ChangeFunc
}

// New creates an empty Inventory with an optional change callback.
func New(onChange ChangeFunc) *Inventory {
	return &Inventory{
		byID:     make(map[string]types.Claim),
		onChange: onChange,
	}
}

// Replace swaps the entire claim set for the given one.
func (inv *Inventory) Replace(claims []types.Claim) {
	next := make(map[string]types.Claim, len(claims))
	for _, c := range claims {
		next[c.ID] = c
	}

	inv.mu.Lock()
	inv.byID = next
	inv.updatedAt = time.Now()
	inv.mu.Unlock()

	if inv.onChange != nil {
		inv.onChange(len(next))
	}
}

// Get returns the claim with the given ID.
func (inv *Inventory) Get(id string) (types.Claim, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	c, ok := inv.byID[id]
	return c, ok
}

// All returns every stored claim.
func (inv *Inventory) All() []types.Claim {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	result := make([]types.Claim, 0, len(inv.byID))
	for _, c := range inv.byID {
		result = append(result, c)
	}
	return result
}

// Filter returns claims matching every non-zero criterion.
func (inv *Inventory) Filter(namespace string, tier types.Tier, status types.ClaimStatus) []types.Claim {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	var result []types.Claim
	for _, c := range inv.byID {
		if namespace != "" && c.Namespace != namespace {
			continue
		}
		if tier != "" && c.Tier != tier {
			continue
		}
		if status != "" && c.Status != status {
			continue
		}
		result = append(result, c)
	}
	return result
}

// Count returns the number of stored claims.
func (inv *Inventory) Count() int {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return len(inv.byID)
}

// UpdatedAt returns when the inventory was last replaced. Zero until the
// first cycle completes.
func (inv *Inventory) UpdatedAt() time.Time {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.updatedAt
}
