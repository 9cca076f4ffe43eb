package chain

import (
	"math/big"
	"testing"

	"github.com/5uwifi/nexuschain/candb"
	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/consensus/epoch"
	"github.com/5uwifi/nexuschain/kernel/types"
	"github.com/5uwifi/nexuschain/kernel/vm"
)

type singleValidator struct{ addr common.Address }

func (s singleValidator) GetValidatorCount() int { return 1 }

func (s singleValidator) GetValidatorByIndex(i int) (common.Address, bool) {
	if i != 0 {
		return common.Address{}, false
	}
	return s.addr, true
}

func newTestChain(t *testing.T, validator common.Address) *Chain {
	t.Helper()
	rotation, err := epoch.NewRotation(singleValidator{addr: validator})
	if err != nil {
		t.Fatal(err)
	}
	c, err := New("root", common.AddressFromName("root"), candb.NewMemoryDatabase(), nil, rotation, nil)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func mintTx(symbol string, to common.Address, amount int64, signer common.Address) *types.Transaction {
	script := vm.EncodeScript([]vm.Instruction{
		{Method: "token.mint", Args: [][]byte{[]byte(symbol), to.Bytes(), []byte(big.NewInt(amount).String())}},
	})
	return types.NewTransaction(script, signer)
}

func TestChainAddBlockBootstrapsEpoch(t *testing.T) {
	validator := common.AddressFromName("validator")
	c := newTestChain(t, validator)
	if err := c.RegisterToken(types.Token{Symbol: "GOLD", Flags: types.TokenFungible}); err != nil {
		t.Fatal(err)
	}

	alice := common.AddressFromName("alice")
	tx := mintTx("GOLD", alice, 50, alice)
	b := types.NewBlock(0, common.Null, 1000, []common.Hash{tx.Hash})

	if err := c.AddBlock(b, []*types.Transaction{tx}); err != nil {
		t.Fatal(err)
	}
	if c.CurrentEpoch == nil || c.CurrentEpoch.Index != 0 {
		t.Fatal("expected genesis block to bootstrap epoch 0")
	}
	if c.LastBlock == nil || c.LastBlock.Hash != b.Hash {
		t.Fatal("expected LastBlock to be the committed block")
	}
	bal, err := c.GetTokenBalance("GOLD", alice)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("balance = %s, want 50", bal)
	}
}

func TestChainAddBlockRejectsWrongHeight(t *testing.T) {
	c := newTestChain(t, common.AddressFromName("validator"))
	b := types.NewBlock(1, common.Null, 1000, nil)
	if err := c.AddBlock(b, nil); err == nil {
		t.Fatal("expected non-zero genesis height to be rejected")
	}
}

func TestChainAddBlockRejectsBadPreviousHash(t *testing.T) {
	c := newTestChain(t, common.AddressFromName("validator"))
	genesis := types.NewBlock(0, common.Null, 1000, nil)
	if err := c.AddBlock(genesis, nil); err != nil {
		t.Fatal(err)
	}
	bad := types.NewBlock(1, common.HexToHash("0xdead"), 2000, nil)
	if err := c.AddBlock(bad, nil); err == nil {
		t.Fatal("expected mismatched previous-hash to be rejected")
	}
}

func TestChainAddBlockRejectsMissingTransaction(t *testing.T) {
	c := newTestChain(t, common.AddressFromName("validator"))
	tx := mintTx("GOLD", common.AddressFromName("alice"), 1, common.AddressFromName("alice"))
	b := types.NewBlock(0, common.Null, 1000, []common.Hash{tx.Hash})
	if err := c.AddBlock(b, nil); err == nil {
		t.Fatal("expected block referencing an unsupplied transaction to be rejected")
	}
}

func TestChainDeleteBlocksRollsBack(t *testing.T) {
	validator := common.AddressFromName("validator")
	c := newTestChain(t, validator)
	if err := c.RegisterToken(types.Token{Symbol: "GOLD", Flags: types.TokenFungible}); err != nil {
		t.Fatal(err)
	}
	alice := common.AddressFromName("alice")

	genesisTx := mintTx("GOLD", alice, 10, alice)
	genesis := types.NewBlock(0, common.Null, 1000, []common.Hash{genesisTx.Hash})
	if err := c.AddBlock(genesis, []*types.Transaction{genesisTx}); err != nil {
		t.Fatal(err)
	}

	secondTx := mintTx("GOLD", alice, 5, alice)
	second := types.NewBlock(1, genesis.Hash, 2000, []common.Hash{secondTx.Hash})
	if err := c.AddBlock(second, []*types.Transaction{secondTx}); err != nil {
		t.Fatal(err)
	}

	bal, _ := c.GetTokenBalance("GOLD", alice)
	if bal.Cmp(big.NewInt(15)) != 0 {
		t.Fatalf("balance before rollback = %s, want 15", bal)
	}

	if err := c.DeleteBlocks(genesis.Hash); err != nil {
		t.Fatal(err)
	}
	if c.LastBlock.Hash != genesis.Hash {
		t.Fatal("expected chain head to be restored to genesis")
	}
	bal, _ = c.GetTokenBalance("GOLD", alice)
	if bal.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("balance after rollback = %s, want 10", bal)
	}
}

func TestChainTransferToChildLockOrdering(t *testing.T) {
	validator := common.AddressFromName("validator")
	parent := newTestChain(t, validator)
	token := types.Token{Symbol: "GOLD", Flags: types.TokenFungible | types.TokenCapped, MaxSupply: big.NewInt(1000)}
	if err := parent.RegisterToken(token); err != nil {
		t.Fatal(err)
	}
	alice := common.AddressFromName("alice")
	mint := mintTx("GOLD", alice, 100, alice)
	genesis := types.NewBlock(0, common.Null, 1000, []common.Hash{mint.Hash})
	if err := parent.AddBlock(genesis, []*types.Transaction{mint}); err != nil {
		t.Fatal(err)
	}

	child, err := parent.NewChild("childchain", common.AddressFromName("childchain"))
	if err != nil {
		t.Fatal(err)
	}
	if err := parent.TransferToChild("GOLD", child, big.NewInt(30)); err != nil {
		t.Fatal(err)
	}

	if _, ok := child.GetToken("GOLD"); !ok {
		t.Fatal("expected child to inherit the token on first cross-chain transfer")
	}
}

func TestChainTransferToChildRejectsNonChild(t *testing.T) {
	a := newTestChain(t, common.AddressFromName("va"))
	b := newTestChain(t, common.AddressFromName("vb"))
	if err := a.TransferToChild("GOLD", b, big.NewInt(1)); err == nil {
		t.Fatal("expected transfer to a non-child chain to be rejected")
	}
}

func TestChainInvokeContractReadOnly(t *testing.T) {
	validator := common.AddressFromName("validator")
	c := newTestChain(t, validator)
	if err := c.RegisterToken(types.Token{Symbol: "GOLD", Flags: types.TokenFungible}); err != nil {
		t.Fatal(err)
	}
	alice := common.AddressFromName("alice")
	mint := mintTx("GOLD", alice, 42, alice)
	genesis := types.NewBlock(0, common.Null, 1000, []common.Hash{mint.Hash})
	if err := c.AddBlock(genesis, []*types.Transaction{mint}); err != nil {
		t.Fatal(err)
	}

	result, err := c.InvokeContract("balance.get", [][]byte{[]byte("GOLD"), alice.Bytes()})
	if err != nil {
		t.Fatal(err)
	}
	if string(result) != "42" {
		t.Fatalf("got %q, want %q", result, "42")
	}
}
