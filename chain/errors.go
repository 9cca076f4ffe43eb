package chain

import "github.com/5uwifi/nexuschain/common"

// BlockGenerationException is a structural block-level invariant
// violation: bad linkage or a transaction-hash set mismatch. No state is
// touched before this is raised.
type BlockGenerationException struct {
	Reason string
}

func (e *BlockGenerationException) Error() string { return "chain: " + e.Reason }

func blockGenErr(reason string) error { return &BlockGenerationException{Reason: reason} }

// InvalidTransactionException names the transaction that failed
// validation or execution.
type InvalidTransactionException struct {
	Hash common.Hash
}

func (e *InvalidTransactionException) Error() string {
	return "chain: invalid transaction " + e.Hash.Hex()
}

// ChainException covers configuration and invocation errors: duplicate
// contract names, failed queries, bad chain names.
type ChainException struct {
	Reason string
}

func (e *ChainException) Error() string { return "chain: " + e.Reason }

func chainErr(reason string) error { return &ChainException{Reason: reason} }

// errBrokenRollback is raised when DeleteBlocks walks into a missing
// change-set or block: a programmer bug, not a recoverable condition.
type errBrokenRollback struct {
	Reason string
}

func (e *errBrokenRollback) Error() string { return "chain: broken rollback invariant: " + e.Reason }
