package nexus

import (
	"os"
	"testing"

	"github.com/5uwifi/nexuschain/chain"
	"github.com/5uwifi/nexuschain/common"
	"github.com/5uwifi/nexuschain/kernel/types"
	"github.com/5uwifi/nexuschain/nexusconfig"
)

func newTestNexus(t *testing.T) *Nexus {
	t.Helper()
	cfg := nexusconfig.DefaultConfig()
	cfg.CacheSizeMB = -1
	cfg.Validators = []nexusconfig.ValidatorEntry{{Name: "validator"}}
	n, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestOpenSelectsMemoryBackendForNegativeCacheSize(t *testing.T) {
	cfg := nexusconfig.DefaultConfig()
	cfg.CacheSizeMB = -1
	cfg.DataDir = t.TempDir()
	cfg.Validators = []nexusconfig.ValidatorEntry{{Name: "validator"}}
	n, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer n.Close()
	entries, err := os.ReadDir(cfg.DataDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no on-disk database in DataDir, found %d entries", len(entries))
	}
	if n.GetValidatorCount() != 1 {
		t.Fatalf("got %d validators, want 1", n.GetValidatorCount())
	}
}

func TestNewRootChainOnlyOnce(t *testing.T) {
	n := newTestNexus(t)
	defer n.Close()
	root, err := n.NewRootChain("root", common.AddressFromName("root"))
	if err != nil {
		t.Fatal(err)
	}
	if !n.ContainsChain(root.Address) {
		t.Fatal("expected root chain to be registered")
	}
	if _, err := n.NewRootChain("second", common.AddressFromName("second")); err == nil {
		t.Fatal("expected a second root chain to be rejected")
	}
}

func TestNewChildChainRejectsDuplicateAddress(t *testing.T) {
	n := newTestNexus(t)
	defer n.Close()
	root, err := n.NewRootChain("root", common.AddressFromName("root"))
	if err != nil {
		t.Fatal(err)
	}
	addr := common.AddressFromName("child")
	if _, err := n.NewChildChain(root, "childone", addr); err != nil {
		t.Fatal(err)
	}
	if _, err := n.NewChildChain(root, "childtwo", addr); err == nil {
		t.Fatal("expected duplicate child address to be rejected")
	}
}

func TestChainsOrderedByLevelThenAddress(t *testing.T) {
	n := newTestNexus(t)
	defer n.Close()
	root, err := n.NewRootChain("root", common.AddressFromName("root"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := n.NewChildChain(root, "childa", common.AddressFromName("childa")); err != nil {
		t.Fatal(err)
	}
	if _, err := n.NewChildChain(root, "childb", common.AddressFromName("childb")); err != nil {
		t.Fatal(err)
	}
	chains := n.Chains()
	if len(chains) != 3 {
		t.Fatalf("got %d chains, want 3", len(chains))
	}
	if chains[0].Address != root.Address {
		t.Fatal("expected root chain first")
	}
}

func TestFindChainByAddress(t *testing.T) {
	n := newTestNexus(t)
	defer n.Close()
	root, err := n.NewRootChain("root", common.AddressFromName("root"))
	if err != nil {
		t.Fatal(err)
	}
	found, ok := n.FindChainByAddress(root.Address)
	if !ok {
		t.Fatal("expected root chain to be found")
	}
	if found.ChainAddress() != root.Address {
		t.Fatal("found chain address mismatch")
	}
	if _, ok := n.FindChainByAddress(common.AddressFromName("nowhere")); ok {
		t.Fatal("expected lookup of unregistered address to fail")
	}
}

type recordingPlugin struct{ calls int }

func (p *recordingPlugin) OnBlock(c *chain.Chain, b *types.Block) { p.calls++ }

func TestRegisterPluginFiresOnBlockCommit(t *testing.T) {
	n := newTestNexus(t)
	defer n.Close()
	plugin := &recordingPlugin{}
	n.RegisterPlugin(plugin)

	root, err := n.NewRootChain("root", common.AddressFromName("root"))
	if err != nil {
		t.Fatal(err)
	}
	genesis := types.NewBlock(0, common.Null, 1000, nil)
	if err := root.AddBlock(genesis, nil); err != nil {
		t.Fatal(err)
	}
	if plugin.calls != 1 {
		t.Fatalf("got %d plugin calls, want 1", plugin.calls)
	}
}
