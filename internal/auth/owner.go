// Package auth provides the ownership capability composed into each
// component that exposes owner-only operations. Keeping a single
// implementation avoids drift between per-component copies of the check.
package auth

import (
	"fmt"
	"sync"

	"github.com/definite-protocol/dne/internal/types"
)

// Ownable guards owner-only entry points. The zero value is unusable; build
// one with NewOwnable.
type Ownable struct {
	mu    sync.RWMutex
	owner types.Address
}

// NewOwnable sets the genesis owner.
func NewOwnable(owner types.Address) (*Ownable, error) {
	if owner == "" {
		return nil, fmt.Errorf("%w: owner address cannot be empty", types.ErrInvalidParameter)
	}
	return &Ownable{owner: owner}, nil
}

// Owner returns the current owner address.
func (o *Ownable) Owner() types.Address {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.owner
}

// AssertOwner returns ErrNotOwner unless caller is the current owner.
func (o *Ownable) AssertOwner(caller types.Address) error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if caller != o.owner {
		return types.ErrNotOwner
	}
	return nil
}

// TransferOwnership hands the capability to a new address. Owner-only.
func (o *Ownable) TransferOwnership(caller, newOwner types.Address) error {
	if newOwner == "" {
		return fmt.Errorf("%w: new owner address cannot be empty", types.ErrInvalidParameter)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if caller != o.owner {
		return types.ErrNotOwner
	}
	o.owner = newOwner
	return nil
}
