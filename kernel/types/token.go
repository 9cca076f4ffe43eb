package types

import "math/big"

// TokenFlags is a bit set describing a Token's accounting model. Grounded
// on the donor's params.ChainConfig fork-flag style (a set of named bits
// gating behavior), generalized from hard-fork gates to token kinds.
type TokenFlags uint32

const (
	TokenFungible TokenFlags = 1 << iota
	TokenCapped
	TokenTransferable
	TokenFinite
)

func (f TokenFlags) Has(bit TokenFlags) bool { return f&bit != 0 }

// Token is the descriptor for one symbol on a chain tree. MaxSupply only
// applies when Capped is set.
type Token struct {
	Symbol    string
	Flags     TokenFlags
	MaxSupply *big.Int
}

func (t Token) IsFungible() bool { return t.Flags.Has(TokenFungible) }
func (t Token) IsCapped() bool   { return t.Flags.Has(TokenCapped) }
