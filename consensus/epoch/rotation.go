// Package epoch implements the round-robin validator rotation (component
// H): the expected signer for the next epoch, and whether a given address
// is allowed to produce it. Grounded on the donor's
// lib/consensus/clique.Snapshot design (a signer set resolved through an
// ARC-cached lookup), generalized from clique's per-block in-turn/no-turn
// tiebreak to per-epoch strict rotation over the nexus validator list.
package epoch

import (
	"errors"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/5uwifi/nexuschain/common"
)

// ErrEmptyValidatorSet is returned by any Rotation method when no
// validators have been registered yet.
var ErrEmptyValidatorSet = errors.New("epoch: empty validator set")

// ValidatorSet is the slice of Nexus a Rotation needs: the ordered
// validator list that defines the rotation sequence.
type ValidatorSet interface {
	GetValidatorCount() int
	GetValidatorByIndex(i int) (common.Address, bool)
}

// Rotation tracks whose turn it is across successive epochs: the
// validator at position epochIndex mod count produces epochIndex. The
// lookup cache resolves the index-to-address mapping the way clique's
// sigcache caches ecrecover, since the same small set of addresses is
// resolved on every epoch advance.
type Rotation struct {
	validators ValidatorSet

	mu     sync.Mutex
	lookup *lru.ARCCache
}

// NewRotation builds a Rotation over validators.
func NewRotation(validators ValidatorSet) (*Rotation, error) {
	cache, err := lru.NewARC(256)
	if err != nil {
		return nil, err
	}
	return &Rotation{validators: validators, lookup: cache}, nil
}

// ExpectedValidator returns the validator whose turn it is to produce
// epochIndex: the validator at position epochIndex mod the validator
// count.
func (r *Rotation) ExpectedValidator(epochIndex uint64) (common.Address, error) {
	count := r.validators.GetValidatorCount()
	if count == 0 {
		return common.Address{}, ErrEmptyValidatorSet
	}
	slot := epochIndex % uint64(count)

	r.mu.Lock()
	defer r.mu.Unlock()
	if addr, ok := r.lookup.Get(slot); ok {
		return addr.(common.Address), nil
	}
	addr, ok := r.validators.GetValidatorByIndex(int(slot))
	if !ok {
		return common.Address{}, ErrEmptyValidatorSet
	}
	r.lookup.Add(slot, addr)
	return addr, nil
}

// IsCurrentValidator reports whether addr holds the rotation slot for
// epochIndex.
func (r *Rotation) IsCurrentValidator(epochIndex uint64, addr common.Address) (bool, error) {
	expected, err := r.ExpectedValidator(epochIndex)
	if err != nil {
		return false, err
	}
	return expected == addr, nil
}
