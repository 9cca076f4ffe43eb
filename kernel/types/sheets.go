package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/kernel/storage"
)

var (
	ErrNotFungible       = errors.New("types: token is not fungible")
	ErrNotCapped         = errors.New("types: token is not capped")
	ErrNotNonFungible    = errors.New("types: token is fungible, not non-fungible")
	ErrInsufficientFunds = errors.New("types: insufficient balance")
	ErrSupplyOverflow    = errors.New("types: mint would exceed max supply")
	ErrNoSuchID          = errors.New("types: no such token ID")
)

func balanceKey(symbol string, addr common.Address) []byte {
	return []byte(fmt.Sprintf("balance:%s:%s", symbol, addr.Hex()))
}

// BalanceSheet is the fungible-token accounting projection over a
// storage.Context: Address -> non-negative integer. Every mutator takes
// the Context explicitly so callers route writes through a block's
// ChangeSet.
type BalanceSheet struct {
	Symbol string
}

func NewBalanceSheet(symbol string) *BalanceSheet { return &BalanceSheet{Symbol: symbol} }

func (s *BalanceSheet) Get(ctx storage.Context, addr common.Address) (*big.Int, error) {
	raw, err := ctx.Get(balanceKey(s.Symbol, addr))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return big.NewInt(0), nil
	}
	v := new(big.Int)
	if err := v.UnmarshalText(raw); err != nil {
		return nil, err
	}
	return v, nil
}

func (s *BalanceSheet) set(ctx storage.Context, addr common.Address, v *big.Int) error {
	if v.Sign() == 0 {
		return ctx.Delete(balanceKey(s.Symbol, addr))
	}
	raw, err := v.MarshalText()
	if err != nil {
		return err
	}
	return ctx.Put(balanceKey(s.Symbol, addr), raw)
}

// Add credits addr by amount. Used by Mint and as the receiving half of
// Transfer.
func (s *BalanceSheet) Add(ctx storage.Context, addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("types: negative amount")
	}
	bal, err := s.Get(ctx, addr)
	if err != nil {
		return err
	}
	return s.set(ctx, addr, new(big.Int).Add(bal, amount))
}

// Subtract debits addr by amount, failing if the balance would go
// negative.
func (s *BalanceSheet) Subtract(ctx storage.Context, addr common.Address, amount *big.Int) error {
	bal, err := s.Get(ctx, addr)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	return s.set(ctx, addr, new(big.Int).Sub(bal, amount))
}

// Transfer moves amount from `from` to `to` atomically within ctx.
func (s *BalanceSheet) Transfer(ctx storage.Context, from, to common.Address, amount *big.Int) error {
	if err := s.Subtract(ctx, from, amount); err != nil {
		return err
	}
	return s.Add(ctx, to, amount)
}

func supplyKey(symbol string) []byte { return []byte(fmt.Sprintf("supply:%s", symbol)) }

// SupplyState is the persisted triple backing a capped token's supply
// accounting.
type SupplyState struct {
	LocalBalance *big.Int
	ChildBalance *big.Int
	MaxSupply    *big.Int
}

type supplyWire struct {
	LocalBalance string
	ChildBalance string
	MaxSupply    string
}

// SupplySheet enforces LocalBalance+ChildBalance<=MaxSupply on mint and
// mediates the parent/child transfer invariant.
type SupplySheet struct {
	Token Token
}

func NewSupplySheet(token Token) *SupplySheet { return &SupplySheet{Token: token} }

// Get returns the sheet's current state, lazily seeding
// {0, 0, Token.MaxSupply} on first access, independently per chain.
// TransferToChild is what actually establishes a child's LocalBalance.
func (s *SupplySheet) Get(ctx storage.Context) (*SupplyState, error) {
	raw, err := ctx.Get(supplyKey(s.Token.Symbol))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return &SupplyState{LocalBalance: big.NewInt(0), ChildBalance: big.NewInt(0), MaxSupply: s.Token.MaxSupply}, nil
	}
	var w supplyWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}
	parse := func(x string) *big.Int { v, _ := new(big.Int).SetString(x, 10); return v }
	return &SupplyState{LocalBalance: parse(w.LocalBalance), ChildBalance: parse(w.ChildBalance), MaxSupply: parse(w.MaxSupply)}, nil
}

func (s *SupplySheet) put(ctx storage.Context, st *SupplyState) error {
	w := supplyWire{LocalBalance: st.LocalBalance.String(), ChildBalance: st.ChildBalance.String(), MaxSupply: st.MaxSupply.String()}
	raw, err := json.Marshal(w)
	if err != nil {
		return err
	}
	return ctx.Put(supplyKey(s.Token.Symbol), raw)
}

// Mint increases LocalBalance, failing if the root-chain invariant
// LocalBalance+ChildBalance<=MaxSupply would be violated.
func (s *SupplySheet) Mint(ctx storage.Context, amount *big.Int) error {
	if !s.Token.IsCapped() {
		return ErrNotCapped
	}
	st, err := s.Get(ctx)
	if err != nil {
		return err
	}
	next := new(big.Int).Add(st.LocalBalance, amount)
	total := new(big.Int).Add(next, st.ChildBalance)
	if total.Cmp(st.MaxSupply) > 0 {
		return ErrSupplyOverflow
	}
	st.LocalBalance = next
	return s.put(ctx, st)
}

// Burn decreases LocalBalance.
func (s *SupplySheet) Burn(ctx storage.Context, amount *big.Int) error {
	st, err := s.Get(ctx)
	if err != nil {
		return err
	}
	if st.LocalBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	st.LocalBalance = new(big.Int).Sub(st.LocalBalance, amount)
	return s.put(ctx, st)
}

// TransferToChild moves amount out of the parent's LocalBalance into its
// ChildBalance, and into the child's own LocalBalance. The caller (Chain)
// is responsible for holding both chains' writer locks in
// parent-then-child order before calling this.
func (s *SupplySheet) TransferToChild(parentCtx, childCtx storage.Context, amount *big.Int) error {
	parentState, err := s.Get(parentCtx)
	if err != nil {
		return err
	}
	if parentState.LocalBalance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}
	childSheet := NewSupplySheet(s.Token)
	childState, err := childSheet.Get(childCtx)
	if err != nil {
		return err
	}
	parentState.LocalBalance = new(big.Int).Sub(parentState.LocalBalance, amount)
	parentState.ChildBalance = new(big.Int).Add(parentState.ChildBalance, amount)
	childState.LocalBalance = new(big.Int).Add(childState.LocalBalance, amount)

	if err := s.put(parentCtx, parentState); err != nil {
		return err
	}
	return childSheet.put(childCtx, childState)
}

func ownerKey(symbol, id string) []byte { return []byte(fmt.Sprintf("nft:owner:%s:%s", symbol, id)) }
func idsKey(symbol string, addr common.Address) []byte {
	return []byte(fmt.Sprintf("nft:ids:%s:%s", symbol, addr.Hex()))
}

// OwnershipSheet is the non-fungible accounting projection: an Address ->
// set-of-IDs relation kept in sync with its ID -> Address inverse.
type OwnershipSheet struct {
	Symbol string
}

func NewOwnershipSheet(symbol string) *OwnershipSheet { return &OwnershipSheet{Symbol: symbol} }

func (s *OwnershipSheet) idsOf(ctx storage.Context, addr common.Address) ([]string, error) {
	raw, err := ctx.Get(idsKey(s.Symbol, addr))
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *OwnershipSheet) putIDs(ctx storage.Context, addr common.Address, ids []string) error {
	if len(ids) == 0 {
		return ctx.Delete(idsKey(s.Symbol, addr))
	}
	sort.Strings(ids)
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return ctx.Put(idsKey(s.Symbol, addr), raw)
}

// OwnerOf returns the current owner of id, if any.
func (s *OwnershipSheet) OwnerOf(ctx storage.Context, id string) (common.Address, bool, error) {
	raw, err := ctx.Get(ownerKey(s.Symbol, id))
	if err != nil || raw == nil {
		return common.Address{}, false, err
	}
	return common.BytesToAddress(raw), true, nil
}

// IDsOf returns the IDs currently owned by addr, in ascending order.
func (s *OwnershipSheet) IDsOf(ctx storage.Context, addr common.Address) ([]string, error) {
	return s.idsOf(ctx, addr)
}

// Mint assigns a freshly-created id to owner.
func (s *OwnershipSheet) Mint(ctx storage.Context, owner common.Address, id string) error {
	if _, exists, err := s.OwnerOf(ctx, id); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("types: token id %q already minted", id)
	}
	if err := ctx.Put(ownerKey(s.Symbol, id), owner.Bytes()); err != nil {
		return err
	}
	ids, err := s.idsOf(ctx, owner)
	if err != nil {
		return err
	}
	return s.putIDs(ctx, owner, append(ids, id))
}

// Transfer moves id from its current owner to `to`, keeping both
// relations in sync.
func (s *OwnershipSheet) Transfer(ctx storage.Context, to common.Address, id string) error {
	from, exists, err := s.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoSuchID
	}
	fromIDs, err := s.idsOf(ctx, from)
	if err != nil {
		return err
	}
	fromIDs = removeString(fromIDs, id)
	if err := s.putIDs(ctx, from, fromIDs); err != nil {
		return err
	}
	toIDs, err := s.idsOf(ctx, to)
	if err != nil {
		return err
	}
	if err := s.putIDs(ctx, to, append(toIDs, id)); err != nil {
		return err
	}
	return ctx.Put(ownerKey(s.Symbol, id), to.Bytes())
}

// Burn removes id from circulation entirely.
func (s *OwnershipSheet) Burn(ctx storage.Context, id string) error {
	owner, exists, err := s.OwnerOf(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNoSuchID
	}
	ids, err := s.idsOf(ctx, owner)
	if err != nil {
		return err
	}
	if err := s.putIDs(ctx, owner, removeString(ids, id)); err != nil {
		return err
	}
	return ctx.Delete(ownerKey(s.Symbol, id))
}

func removeString(in []string, target string) []string {
	out := in[:0]
	for _, v := range in {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

// TokenState is the single accessor that dispatches to the fungible or
// non-fungible sheet applying to a token, instead of the caller branching
// on Token.Flags itself.
type TokenState struct {
	Token     Token
	balance   *BalanceSheet
	supply    *SupplySheet
	ownership *OwnershipSheet
}

func NewTokenState(token Token) *TokenState {
	ts := &TokenState{Token: token}
	if token.IsFungible() {
		ts.balance = NewBalanceSheet(token.Symbol)
		if token.IsCapped() {
			ts.supply = NewSupplySheet(token)
		}
	} else {
		ts.ownership = NewOwnershipSheet(token.Symbol)
	}
	return ts
}

func (ts *TokenState) Balance() (*BalanceSheet, error) {
	if ts.balance == nil {
		return nil, ErrNotFungible
	}
	return ts.balance, nil
}

func (ts *TokenState) Supply() (*SupplySheet, error) {
	if ts.supply == nil {
		return nil, ErrNotCapped
	}
	return ts.supply, nil
}

func (ts *TokenState) Ownership() (*OwnershipSheet, error) {
	if ts.ownership == nil {
		return nil, ErrNotNonFungible
	}
	return ts.ownership, nil
}
