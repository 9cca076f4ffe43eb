// Package nexus implements component I: the root registry owning every
// chain in the hierarchy, the validator list, and the plugin list.
// Grounded on the donor's node.Node as the top-level owned-resource
// registry (one shared backend database, a set of registered services)
// and on cmd's cache-size-selects-backend convention for candb.
package nexus

import (
	"fmt"
	"sort"
	"sync"

	log "github.com/inconshreveable/log15"

	"github.com/5uwifi/nexuschain/candb"
	"github.com/5uwifi/nexuschain/chain"
	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/consensus/epoch"
	"github.com/5uwifi/nexuschain/kernel/types"
	"github.com/5uwifi/nexuschain/kernel/vm"
	"github.com/5uwifi/nexuschain/nexusconfig"
)

// Nexus is the single process-wide registry: explicitly constructed and
// passed, never an implicit singleton.
type Nexus struct {
	db       candb.Database
	rotation *epoch.Rotation

	validators []common.Address

	mu     sync.RWMutex
	root   *chain.Chain
	byAddr map[common.Address]*chain.Chain

	plugins []chain.Plugin

	log log.Logger
}

// Open builds a Nexus from cfg: cfg.CacheSizeMB < 0 or an empty DataDir
// selects the volatile in-memory backend, otherwise it opens cfg.DataDir
// on disk with cfg.CacheSizeMB/cfg.Handles sized per
// candb.NewLevelDatabase.
func Open(cfg *nexusconfig.Config) (*Nexus, error) {
	var db candb.Database
	if cfg.CacheSizeMB < 0 || cfg.DataDir == "" {
		db = candb.NewMemoryDatabase()
	} else {
		var err error
		db, err = candb.NewLevelDatabase(cfg.DataDir, cfg.CacheSizeMB, cfg.Handles)
		if err != nil {
			return nil, fmt.Errorf("nexus: open backend: %w", err)
		}
	}

	n := &Nexus{
		db:         db,
		validators: cfg.ValidatorAddresses(),
		byAddr:     make(map[common.Address]*chain.Chain),
		log:        log.New("module", "nexus"),
	}
	rotation, err := epoch.NewRotation(n)
	if err != nil {
		return nil, err
	}
	n.rotation = rotation
	return n, nil
}

// NewRootChain registers and returns the tree's root chain. May only be
// called once.
func (n *Nexus) NewRootChain(name string, address common.Address) (*chain.Chain, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.root != nil {
		return nil, fmt.Errorf("nexus: root chain already exists")
	}
	c, err := chain.New(name, address, n.db, n, n.rotation, n)
	if err != nil {
		return nil, err
	}
	n.root = c
	n.byAddr[address] = c
	n.log.Info("Registered root chain", "name", name, "address", address.Hex())
	return c, nil
}

// NewChildChain registers name as a child of parent, propagating the
// nexus's plugin list to it.
func (n *Nexus) NewChildChain(parent *chain.Chain, name string, address common.Address) (*chain.Chain, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, exists := n.byAddr[address]; exists {
		return nil, fmt.Errorf("nexus: address %s already registered", address.Hex())
	}
	c, err := parent.NewChild(name, address)
	if err != nil {
		return nil, err
	}
	n.byAddr[address] = c
	n.log.Info("Registered child chain", "name", name, "address", address.Hex(), "parent", parent.Name)
	return c, nil
}

// Chains enumerates every registered chain, root first, ordered by
// address within each level for deterministic iteration.
func (n *Nexus) Chains() []*chain.Chain {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*chain.Chain, 0, len(n.byAddr))
	for _, c := range n.byAddr {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level < out[j].Level
		}
		return string(out[i].Address.Bytes()) < string(out[j].Address.Bytes())
	})
	return out
}

// ContainsChain reports whether address names a registered chain.
func (n *Nexus) ContainsChain(address common.Address) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.byAddr[address]
	return ok
}

// FindChainByAddress satisfies vm.NexusLookup, letting a Runtime's
// context-load interop resolve any chain in the tree.
func (n *Nexus) FindChainByAddress(addr common.Address) (vm.ChainLookup, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.byAddr[addr]
	if !ok {
		return nil, false
	}
	return c, true
}

// GetValidatorByIndex satisfies epoch.ValidatorSet.
func (n *Nexus) GetValidatorByIndex(i int) (common.Address, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if i < 0 || i >= len(n.validators) {
		return common.Address{}, false
	}
	return n.validators[i], true
}

// GetIndexOfValidator returns addr's position in the validator list.
func (n *Nexus) GetIndexOfValidator(addr common.Address) (int, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for i, v := range n.validators {
		if v == addr {
			return i, true
		}
	}
	return 0, false
}

// GetValidatorCount satisfies epoch.ValidatorSet.
func (n *Nexus) GetValidatorCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.validators)
}

// RegisterPlugin adds p to the nexus-wide plugin list; every chain in the
// tree shares this same list via PluginTriggerBlock, so registration
// takes effect for chains created before or after the call.
func (n *Nexus) RegisterPlugin(p chain.Plugin) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.plugins = append(n.plugins, p)
}

// PluginTriggerBlock fires every registered plugin in registration order.
// chain.Chain.AddBlock calls this once per commit; plugins must not
// reenter c.
func (n *Nexus) PluginTriggerBlock(c *chain.Chain, b *types.Block) {
	n.mu.RLock()
	plugins := append([]chain.Plugin(nil), n.plugins...)
	n.mu.RUnlock()
	for _, p := range plugins {
		p.OnBlock(c, b)
	}
}

// Close releases the nexus's backend database.
func (n *Nexus) Close() {
	n.db.Close()
}
