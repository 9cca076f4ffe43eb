package types

import (
	"math/big"
	"testing"

	"github.com/5uwifi/nexuschain/candb"
	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/kernel/storage"
)

func newSheetContext() storage.Context {
	return storage.NewKeyValueContext(candb.NewMemoryDatabase(), common.AddressFromName("root"), storage.NamespaceData)
}

func TestBalanceSheetAddSubtract(t *testing.T) {
	ctx := newSheetContext()
	s := NewBalanceSheet("GOLD")
	addr := common.AddressFromName("alice")

	if err := s.Add(ctx, addr, big.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	bal, err := s.Get(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("balance = %s, want 100", bal)
	}
	if err := s.Subtract(ctx, addr, big.NewInt(40)); err != nil {
		t.Fatal(err)
	}
	bal, _ = s.Get(ctx, addr)
	if bal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("balance = %s, want 60", bal)
	}
}

func TestBalanceSheetSubtractInsufficient(t *testing.T) {
	ctx := newSheetContext()
	s := NewBalanceSheet("GOLD")
	addr := common.AddressFromName("alice")
	if err := s.Subtract(ctx, addr, big.NewInt(1)); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestBalanceSheetTransfer(t *testing.T) {
	ctx := newSheetContext()
	s := NewBalanceSheet("GOLD")
	alice := common.AddressFromName("alice")
	bob := common.AddressFromName("bob")

	s.Add(ctx, alice, big.NewInt(100))
	if err := s.Transfer(ctx, alice, bob, big.NewInt(30)); err != nil {
		t.Fatal(err)
	}
	ab, _ := s.Get(ctx, alice)
	bb, _ := s.Get(ctx, bob)
	if ab.Cmp(big.NewInt(70)) != 0 || bb.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected balances alice=%s bob=%s", ab, bb)
	}
}

func TestBalanceSheetZeroBalanceIsDeleted(t *testing.T) {
	ctx := newSheetContext()
	s := NewBalanceSheet("GOLD")
	addr := common.AddressFromName("alice")
	s.Add(ctx, addr, big.NewInt(10))
	s.Subtract(ctx, addr, big.NewInt(10))

	v, err := ctx.Get(balanceKey("GOLD", addr))
	if err != nil {
		t.Fatal(err)
	}
	if v != nil {
		t.Fatalf("expected zero balance to be pruned from storage, got %q", v)
	}
}

func cappedToken(symbol string, max int64) Token {
	return Token{Symbol: symbol, Flags: TokenFungible | TokenCapped, MaxSupply: big.NewInt(max)}
}

func TestSupplySheetMintRespectsCap(t *testing.T) {
	ctx := newSheetContext()
	s := NewSupplySheet(cappedToken("CAP", 100))

	if err := s.Mint(ctx, big.NewInt(60)); err != nil {
		t.Fatal(err)
	}
	if err := s.Mint(ctx, big.NewInt(50)); err != ErrSupplyOverflow {
		t.Fatalf("expected ErrSupplyOverflow, got %v", err)
	}
	if err := s.Mint(ctx, big.NewInt(40)); err != nil {
		t.Fatal(err)
	}
	st, _ := s.Get(ctx)
	if st.LocalBalance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("local balance = %s, want 100", st.LocalBalance)
	}
}

func TestSupplySheetMintRejectsUncapped(t *testing.T) {
	ctx := newSheetContext()
	token := Token{Symbol: "FREE", Flags: TokenFungible}
	s := NewSupplySheet(token)
	if err := s.Mint(ctx, big.NewInt(1)); err != ErrNotCapped {
		t.Fatalf("expected ErrNotCapped, got %v", err)
	}
}

func TestSupplySheetTransferToChild(t *testing.T) {
	parentCtx := newSheetContext()
	childCtx := storage.NewKeyValueContext(candb.NewMemoryDatabase(), common.AddressFromName("child"), storage.NamespaceData)

	token := cappedToken("CAP", 100)
	s := NewSupplySheet(token)
	s.Mint(parentCtx, big.NewInt(100))

	if err := s.TransferToChild(parentCtx, childCtx, big.NewInt(30)); err != nil {
		t.Fatal(err)
	}
	parentState, _ := s.Get(parentCtx)
	childState, _ := NewSupplySheet(token).Get(childCtx)

	if parentState.LocalBalance.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("parent local balance = %s, want 70", parentState.LocalBalance)
	}
	if parentState.ChildBalance.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("parent child balance = %s, want 30", parentState.ChildBalance)
	}
	if childState.LocalBalance.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("child local balance = %s, want 30", childState.LocalBalance)
	}
	total := new(big.Int).Add(parentState.LocalBalance, parentState.ChildBalance)
	if total.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("parent+child invariant violated: %s", total)
	}
}

func TestSupplySheetTransferToChildInsufficientFunds(t *testing.T) {
	parentCtx := newSheetContext()
	childCtx := storage.NewKeyValueContext(candb.NewMemoryDatabase(), common.AddressFromName("child"), storage.NamespaceData)
	token := cappedToken("CAP", 100)
	s := NewSupplySheet(token)
	if err := s.TransferToChild(parentCtx, childCtx, big.NewInt(1)); err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestOwnershipSheetMintTransferBurn(t *testing.T) {
	ctx := newSheetContext()
	s := NewOwnershipSheet("PIC")
	alice := common.AddressFromName("alice")
	bob := common.AddressFromName("bob")

	if err := s.Mint(ctx, alice, "1"); err != nil {
		t.Fatal(err)
	}
	owner, ok, err := s.OwnerOf(ctx, "1")
	if err != nil || !ok || owner != alice {
		t.Fatalf("owner=%v ok=%v err=%v", owner, ok, err)
	}

	if err := s.Transfer(ctx, bob, "1"); err != nil {
		t.Fatal(err)
	}
	owner, _, _ = s.OwnerOf(ctx, "1")
	if owner != bob {
		t.Fatalf("expected bob to own id 1 after transfer, got %v", owner)
	}
	aliceIDs, _ := s.IDsOf(ctx, alice)
	if len(aliceIDs) != 0 {
		t.Fatalf("expected alice to hold no ids after transfer, got %v", aliceIDs)
	}

	if err := s.Burn(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.OwnerOf(ctx, "1"); ok {
		t.Fatalf("expected id 1 to have no owner after burn")
	}
}

func TestOwnershipSheetDuplicateMintRejected(t *testing.T) {
	ctx := newSheetContext()
	s := NewOwnershipSheet("PIC")
	alice := common.AddressFromName("alice")
	s.Mint(ctx, alice, "1")
	if err := s.Mint(ctx, alice, "1"); err == nil {
		t.Fatal("expected duplicate mint to fail")
	}
}

func TestTokenStateDispatch(t *testing.T) {
	fungible := NewTokenState(Token{Symbol: "GOLD", Flags: TokenFungible})
	if _, err := fungible.Balance(); err != nil {
		t.Fatalf("expected fungible token to expose Balance, got %v", err)
	}
	if _, err := fungible.Ownership(); err != ErrNotNonFungible {
		t.Fatalf("expected ErrNotNonFungible, got %v", err)
	}

	nft := NewTokenState(Token{Symbol: "PIC"})
	if _, err := nft.Ownership(); err != nil {
		t.Fatalf("expected non-fungible token to expose Ownership, got %v", err)
	}
	if _, err := nft.Balance(); err != ErrNotFungible {
		t.Fatalf("expected ErrNotFungible, got %v", err)
	}
}
