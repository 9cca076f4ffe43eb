// Package chain implements component G: one ledger in the hierarchy,
// its block-application algorithm, and its rollback. Grounded on the
// donor's kernel.BlockChain (kernel/blockchain_insert.go) for the
// import-and-commit shape and its structured logging, and on
// lib/consensus/clique for the validator-rotation bookkeeping it drives
// through consensus/epoch.
package chain

import (
	"fmt"
	"math/big"
	"regexp"
	"sync"

	log "github.com/inconshreveable/log15"

	"github.com/5uwifi/nexuschain/candb"
	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/consensus/epoch"
	"github.com/5uwifi/nexuschain/kernel/storage"
	"github.com/5uwifi/nexuschain/kernel/types"
	"github.com/5uwifi/nexuschain/kernel/vm"
)

// nameRE is the chain/contract naming rule: 3-19 lowercase
// alphanumeric-or-underscore characters.
var nameRE = regexp.MustCompile(`^[a-z0-9_]{3,19}$`)

// ValidateName reports whether name is an acceptable chain or contract
// name.
func ValidateName(name string) bool { return nameRE.MatchString(name) }

// Plugin is a post-commit observer, invoked in registration order after a
// block commits. Plugins must not reenter the chain that invoked them.
type Plugin interface {
	OnBlock(c *Chain, b *types.Block)
}

// PluginHost fires the registered plugin list after a commit. A Nexus is
// the usual PluginHost; passing nil disables plugin dispatch entirely.
type PluginHost interface {
	PluginTriggerBlock(c *Chain, b *types.Block)
}

// Chain is one ledger in the hierarchy: a named, addressed namespace with
// optional parent, a token registry, and the four persisted maps plus
// VM-visible storage assigned to it.
type Chain struct {
	Name    string
	Address common.Address
	Level   int

	parent      *Chain
	parentBlock common.Hash
	children    []*Chain

	db  candb.Database
	txs storage.Context
	blk storage.Context
	txb storage.Context
	epo storage.Context
	dat storage.Context

	rotation *epoch.Rotation

	CurrentEpoch *types.Epoch
	LastBlock    *types.Block

	blockByHeight   map[uint64]*types.Block
	blockByHash     map[common.Hash]*types.Block
	changeSetByHash map[common.Hash]*storage.ChangeSet
	blockOfTx       map[common.Hash]common.Hash

	tokens map[string]types.Token

	plugins PluginHost
	nexus   vm.NexusLookup

	// Verifier checks transaction signatures. Nil accepts every
	// well-hashed transaction, which test harnesses rely on to exercise
	// chain logic without wiring a real signature scheme.
	Verifier types.Verifier

	log  log.Logger
	lock sync.RWMutex
}

// New constructs a Chain rooted at db and scoped to address, with no
// parent. rotation drives component H's validator selection for this
// chain; it may be shared across a chain tree that shares a validator
// set (a single, explicitly constructed registry rather than an implicit
// singleton).
func New(name string, address common.Address, db candb.Database, nexus vm.NexusLookup, rotation *epoch.Rotation, plugins PluginHost) (*Chain, error) {
	if !ValidateName(name) {
		return nil, chainErr(fmt.Sprintf("invalid chain name %q", name))
	}
	return &Chain{
		Name:            name,
		Address:         address,
		db:              db,
		txs:             storage.NewKeyValueContext(db, address, storage.NamespaceTxs),
		blk:             storage.NewKeyValueContext(db, address, storage.NamespaceBlocks),
		txb:             storage.NewKeyValueContext(db, address, storage.NamespaceTxBlk),
		epo:             storage.NewKeyValueContext(db, address, storage.NamespaceEpoch),
		dat:             storage.NewKeyValueContext(db, address, storage.NamespaceData),
		rotation:        rotation,
		nexus:           nexus,
		plugins:         plugins,
		blockByHeight:   make(map[uint64]*types.Block),
		blockByHash:     make(map[common.Hash]*types.Block),
		changeSetByHash: make(map[common.Hash]*storage.ChangeSet),
		blockOfTx:       make(map[common.Hash]common.Hash),
		tokens:          make(map[string]types.Token),
		log:             log.New("chain", name),
	}, nil
}

// NewChild constructs a Chain that is name's child under parent, sharing
// parent's backend database and validator rotation. name must additionally
// be unique among parent's existing children.
func (parent *Chain) NewChild(name string, address common.Address) (*Chain, error) {
	for _, c := range parent.children {
		if c.Name == name {
			return nil, chainErr(fmt.Sprintf("duplicate child chain name %q", name))
		}
	}
	child, err := New(name, address, parent.db, parent.nexus, parent.rotation, parent.plugins)
	if err != nil {
		return nil, err
	}
	child.Level = parent.Level + 1
	child.parent = parent
	if parent.LastBlock != nil {
		child.parentBlock = parent.LastBlock.Hash
	}
	parent.children = append(parent.children, child)
	return child, nil
}

// RegisterToken adds token to this chain's registry. Returns a
// ChainException if the symbol is already registered.
func (c *Chain) RegisterToken(token types.Token) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if _, exists := c.tokens[token.Symbol]; exists {
		return chainErr(fmt.Sprintf("duplicate token symbol %q", token.Symbol))
	}
	c.tokens[token.Symbol] = token
	return nil
}

// GetToken satisfies vm.ChainLookup.
func (c *Chain) GetToken(symbol string) (types.Token, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	t, ok := c.tokens[symbol]
	return t, ok
}

// heldLockView is the vm.ChainLookup handed to the VM by methods that
// already hold c's lock: it reads the token registry without locking again.
type heldLockView struct{ *Chain }

func (v heldLockView) GetToken(symbol string) (types.Token, bool) {
	t, ok := v.tokens[symbol]
	return t, ok
}

// ChainAddress satisfies vm.ChainLookup.
func (c *Chain) ChainAddress() common.Address { return c.Address }

// Parent returns this chain's parent, or nil at the root.
func (c *Chain) Parent() *Chain { return c.parent }

// ParentBlock is the parent chain's head block hash at the moment this
// chain was created, recorded so a full tree snapshot can be replayed in
// creation order.
func (c *Chain) ParentBlock() common.Hash { return c.parentBlock }

// Children returns this chain's direct children, in creation order.
func (c *Chain) Children() []*Chain { return append([]*Chain(nil), c.children...) }

// Storage is the VM-visible data map, exposed so callers can stage a
// change-set for AddBlock or InvokeContract.
func (c *Chain) Storage() storage.Context { return c.dat }

// AdvanceEpoch validates that proposer holds the next rotation slot and
// either opens the chain's first epoch or closes the current one and
// opens the next. It is the caller's responsibility to invoke this once
// per production round; AddBlock never advances the epoch on its own
// past the bootstrap case.
func (c *Chain) AdvanceEpoch(proposer common.Address, timestamp int64) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.advanceEpochLocked(proposer, timestamp)
}

func (c *Chain) advanceEpochLocked(proposer common.Address, timestamp int64) error {
	nextIndex := uint64(0)
	previousHash := common.Null
	if c.CurrentEpoch != nil {
		nextIndex = c.CurrentEpoch.Index + 1
		previousHash = c.CurrentEpoch.Hash
	}
	ok, err := c.rotation.IsCurrentValidator(nextIndex, proposer)
	if err != nil {
		return err
	}
	if !ok {
		return chainErr(fmt.Sprintf("%s is not the validator for epoch %d", proposer.Hex(), nextIndex))
	}
	c.CurrentEpoch = types.NewEpoch(nextIndex, timestamp, proposer, previousHash)
	return nil
}

// IsCurrentValidator reports whether addr is authorized to produce the
// chain's current (or, absent one, the bootstrap) epoch.
func (c *Chain) IsCurrentValidator(addr common.Address) (bool, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	index := uint64(0)
	if c.CurrentEpoch != nil {
		index = c.CurrentEpoch.Index
	}
	return c.rotation.IsCurrentValidator(index, addr)
}

// AddBlock applies b by executing txs in b.TransactionHashes order.
func (c *Chain) AddBlock(b *types.Block, txs []*types.Transaction) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.LastBlock != nil {
		if b.Height != c.LastBlock.Height+1 {
			return blockGenErr(fmt.Sprintf("block height %d does not follow %d", b.Height, c.LastBlock.Height))
		}
		if b.PreviousHash != c.LastBlock.Hash {
			return blockGenErr("block previous-hash does not match chain head")
		}
	} else if b.Height != 0 {
		return blockGenErr(fmt.Sprintf("genesis block must have height 0, got %d", b.Height))
	}

	byHash := make(map[common.Hash]*types.Transaction, len(txs))
	for _, tx := range txs {
		byHash[tx.Hash] = tx
	}
	if len(byHash) != len(b.TransactionHashes) {
		return blockGenErr("transaction set size mismatch")
	}
	for _, h := range b.TransactionHashes {
		if _, ok := byHash[h]; !ok {
			return blockGenErr(fmt.Sprintf("missing transaction %s", h.Hex()))
		}
	}
	for _, h := range b.TransactionHashes {
		tx := byHash[h]
		if !tx.IsValid(c.Verifier) {
			return &InvalidTransactionException{Hash: tx.Hash}
		}
	}

	changes := storage.NewChangeSet(c.dat)
	for _, h := range b.TransactionHashes {
		tx := byHash[h]
		result, halted, events, err := vm.Execute(tx, c.nexus, heldLockView{c}, b, changes, false)
		if err != nil {
			return err
		}
		if !halted {
			return &InvalidTransactionException{Hash: tx.Hash}
		}
		b.SetResultForHash(h, result)
		for _, ev := range events {
			b.AppendEvent(h, ev)
		}
	}

	if c.CurrentEpoch == nil {
		if err := c.advanceEpochLocked(c.bootstrapValidator(), b.Timestamp); err != nil {
			return err
		}
	}

	c.blockByHeight[b.Height] = b
	c.blockByHash[b.Hash] = b
	c.changeSetByHash[b.Hash] = changes
	if err := changes.Execute(); err != nil {
		return err
	}
	c.CurrentEpoch.AppendBlockHash(b.Hash)
	c.LastBlock = b
	for _, h := range b.TransactionHashes {
		c.blockOfTx[h] = b.Hash
	}

	c.log.Info("Committed block", "height", b.Height, "hash", b.Hash.Hex(), "txs", len(b.TransactionHashes))
	if c.plugins != nil {
		c.plugins.PluginTriggerBlock(c, b)
	}
	return nil
}

// bootstrapValidator resolves the address that opens epoch 0: the
// validator at rotation index 0.
func (c *Chain) bootstrapValidator() common.Address {
	addr, err := c.rotation.ExpectedValidator(0)
	if err != nil {
		return common.Address{}
	}
	return addr
}

// DeleteBlocks rolls the chain back to target: every block strictly after
// target is undone in reverse commit order and removed from the indices.
func (c *Chain) DeleteBlocks(target common.Hash) error {
	c.lock.Lock()
	defer c.lock.Unlock()

	if c.LastBlock == nil {
		return &errBrokenRollback{Reason: "no blocks to roll back"}
	}
	cur := c.LastBlock
	for cur.Hash != target {
		changes, ok := c.changeSetByHash[cur.Hash]
		if !ok {
			return &errBrokenRollback{Reason: fmt.Sprintf("missing change-set for block %s", cur.Hash.Hex())}
		}
		if err := changes.Undo(); err != nil {
			return err
		}
		delete(c.blockByHeight, cur.Height)
		delete(c.blockByHash, cur.Hash)
		delete(c.changeSetByHash, cur.Hash)
		for _, h := range cur.TransactionHashes {
			delete(c.blockOfTx, h)
		}
		c.log.Info("Rolled back block", "height", cur.Height, "hash", cur.Hash.Hex())

		if cur.PreviousHash == target {
			cur = nil
			break
		}
		prev, ok := c.blockByHash[cur.PreviousHash]
		if !ok {
			return &errBrokenRollback{Reason: fmt.Sprintf("missing predecessor %s", cur.PreviousHash.Hex())}
		}
		cur = prev
	}
	if target.IsNull() {
		c.LastBlock = nil
	} else {
		surv, ok := c.blockByHash[target]
		if !ok {
			return &errBrokenRollback{Reason: fmt.Sprintf("target block %s not retained", target.Hex())}
		}
		c.LastBlock = surv
	}
	return nil
}

// FindBlockByHash returns the block committed under hash, if any.
func (c *Chain) FindBlockByHash(hash common.Hash) (*types.Block, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	b, ok := c.blockByHash[hash]
	return b, ok
}

// FindBlockByHeight returns the block committed at height, if any.
func (c *Chain) FindBlockByHeight(height uint64) (*types.Block, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	b, ok := c.blockByHeight[height]
	return b, ok
}

// FindBlockOfTransaction returns the block that committed tx's hash.
func (c *Chain) FindBlockOfTransaction(hash common.Hash) (*types.Block, bool) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	blockHash, ok := c.blockOfTx[hash]
	if !ok {
		return nil, false
	}
	b, ok := c.blockByHash[blockHash]
	return b, ok
}

// GetTokenBalance is the read-only fungible-balance accessor, safe to run
// concurrently with other readers.
func (c *Chain) GetTokenBalance(symbol string, addr common.Address) (*big.Int, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()
	token, ok := c.tokens[symbol]
	if !ok {
		return nil, chainErr(fmt.Sprintf("unknown token %q", symbol))
	}
	ts := types.NewTokenState(token)
	sheet, err := ts.Balance()
	if err != nil {
		return nil, err
	}
	return sheet.Get(c.dat, addr)
}

// InvokeContract runs methodName as a read-only query: it builds a script
// calling methodName with args, stages a throw-away change-set, and
// executes a read-only Runtime.
func (c *Chain) InvokeContract(methodName string, args [][]byte) ([]byte, error) {
	c.lock.RLock()
	defer c.lock.RUnlock()

	script := vm.EncodeScript([]vm.Instruction{{Method: methodName, Args: args}})
	changes := storage.NewChangeSet(c.dat)
	result, err := vm.Invoke(c.nexus, heldLockView{c}, changes, script)
	if err != nil {
		return nil, chainErr(err.Error())
	}
	return result, nil
}

// TransferToChild moves amount of symbol's capped supply from this
// chain's local balance into child's, honoring the parent-before-child
// writer-lock order cross-chain transfers require. child must be a
// direct child of this chain.
func (c *Chain) TransferToChild(symbol string, child *Chain, amount *big.Int) error {
	if child.parent != c {
		return chainErr("target is not a child of this chain")
	}
	c.lock.Lock()
	defer c.lock.Unlock()
	child.lock.Lock()
	defer child.lock.Unlock()

	token, ok := c.tokens[symbol]
	if !ok {
		return chainErr(fmt.Sprintf("unknown token %q", symbol))
	}
	sheet := types.NewSupplySheet(token)
	if err := sheet.TransferToChild(c.dat, child.dat, amount); err != nil {
		return err
	}
	if _, exists := child.tokens[symbol]; !exists {
		child.tokens[symbol] = token
	}
	return nil
}
