package splitter

import (
	"context"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/mbd888/splitpay/internal/money"
)

const (
	agentA = "0x7777777777777777777777777777777777777777"
	agentB = "0x8888888888888888888888888888888888888888"
	agentC = "0x9999999999999999999999999999999999999999"
)

func TestFlattenChainConservation(t *testing.T) {
	// A gets 50%, B takes 40% out of A's share, C gets 20%.
	chain := []*ChainNode{
		{AgentID: "a", AgentAddress: agentA, SharePercent: 50, Role: RoleAgent,
			Children: []*ChainNode{
				{AgentID: "b", AgentAddress: agentB, SharePercent: 40, Role: RoleAgent},
			}},
		{AgentID: "c", AgentAddress: agentC, SharePercent: 20, Role: RoleAgent},
	}
	p := pool(1000)

	splits := FlattenChain(slog.Default(), p, merchantWallet, chain, 0)
	if len(splits) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(splits))
	}

	total := big.NewInt(0)
	for _, s := range splits {
		if s.Amount.Sign() < 0 {
			t.Errorf("negative split for %s", s.Address)
		}
		total.Add(total, s.Amount)
	}
	// A gross 500, B carves 200, A keeps 300; C 200. Total 700 of the 1000 pool.
	if total.Cmp(pool(700)) != 0 {
		t.Errorf("flattened total = %s, want 700", money.Format(total))
	}

	byAddr := map[string]*big.Int{}
	for _, s := range splits {
		byAddr[s.Address] = s.Amount
	}
	if byAddr[agentA].Cmp(pool(300)) != 0 {
		t.Errorf("A keeps %s, want 300", money.Format(byAddr[agentA]))
	}
	if byAddr[agentB].Cmp(pool(200)) != 0 {
		t.Errorf("B gets %s, want 200", money.Format(byAddr[agentB]))
	}
}

func TestFlattenChainPure(t *testing.T) {
	chain := []*ChainNode{
		{AgentID: "a", AgentAddress: agentA, SharePercent: 10, Role: RoleAgent},
	}
	p := pool(100)

	first := FlattenChain(slog.Default(), p, merchantWallet, chain, 0)
	second := FlattenChain(slog.Default(), p, merchantWallet, chain, 0)
	if len(first) != 1 || len(second) != 1 {
		t.Fatal("expected one entry per call")
	}
	// Mutating one result must not leak into the other.
	first[0].Amount.SetInt64(0)
	if second[0].Amount.Cmp(pool(10)) != 0 {
		t.Error("calls share state; each call must return fresh amounts")
	}
	if p.Cmp(pool(100)) != 0 {
		t.Error("input pool was mutated")
	}
}

func TestFlattenChainCyclicTerminates(t *testing.T) {
	a := &ChainNode{AgentID: "a", AgentAddress: agentA, SharePercent: 50, Role: RoleAgent}
	b := &ChainNode{AgentID: "b", AgentAddress: agentB, SharePercent: 50, Role: RoleAgent}
	a.Children = []*ChainNode{b}
	b.Children = []*ChainNode{a}

	splits := FlattenChain(slog.Default(), pool(1000), merchantWallet, []*ChainNode{a}, 0)

	if len(splits) != MaxChainDepth {
		t.Fatalf("cyclic chain produced %d entries, want exactly %d", len(splits), MaxChainDepth)
	}
	for _, s := range splits {
		if s.Depth >= MaxChainDepth {
			t.Fatalf("entry beyond depth bound: %d", s.Depth)
		}
	}
}

func TestMergeByAddress(t *testing.T) {
	splits := []FlattenedSplit{
		{Address: agentA, Amount: pool(10), Role: "agent", Depth: 0},
		{Address: agentB, Amount: pool(5), Role: "agent", Depth: 1},
		{Address: agentA, Amount: pool(3), Role: "referrer", Depth: 2},
	}

	merged := MergeByAddress(splits)
	if len(merged) != 2 {
		t.Fatalf("expected 2 merged entries, got %d", len(merged))
	}
	if merged[0].Address != agentA || merged[0].Amount.Cmp(pool(13)) != 0 {
		t.Errorf("A merged to %s, want 13", money.Format(merged[0].Amount))
	}
	if merged[0].Role != "agent, referrer" {
		t.Errorf("roles not concatenated: %q", merged[0].Role)
	}
	// Inputs must be untouched.
	if splits[0].Amount.Cmp(pool(10)) != 0 {
		t.Error("merge mutated its input")
	}
}

func TestBuildMultiHopSplitTree(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	chain := []*ChainNode{
		{AgentID: "a", AgentAddress: agentA, SharePercent: 50, Role: RoleExecutor,
			Children: []*ChainNode{
				{AgentID: "b", AgentAddress: agentB, SharePercent: 40, Role: RoleAgent},
			}},
		{AgentID: "c", AgentAddress: agentC, SharePercent: 20, Role: RoleReferrer},
	}
	if err := b.RegisterChain(ctx, "root-agent", chain); err != nil {
		t.Fatalf("RegisterChain failed: %v", err)
	}

	amount := pool(1000)
	result, err := b.BuildMultiHopSplitTree(ctx, amount, merchantWallet, "root-agent", ProductService)
	if err != nil {
		t.Fatalf("BuildMultiHopSplitTree failed: %v", err)
	}

	// agent pool = 1000 - 10 (platform) - 3 (channel) = 987
	// A gross 493.5, B carves 197.4, A keeps 296.1; C 197.4
	// merchant keeps 987 - 690.9 = 296.1
	if result.TotalRecipients != 3 {
		t.Fatalf("expected 3 merged recipients, got %d", result.TotalRecipients)
	}
	cfg := result.FlatConfig
	if cfg.ExecutionWallet != agentA || cfg.ExecutionFee.Cmp(big.NewInt(296_100_000)) != 0 {
		t.Errorf("largest entry must fill the execution slot: %s %s", cfg.ExecutionWallet, cfg.ExecutionFee)
	}
	if cfg.ReferralWallet != agentB || cfg.ReferralFee.Cmp(big.NewInt(197_400_000)) != 0 {
		t.Errorf("second largest must fill the referral slot: %s %s", cfg.ReferralWallet, cfg.ReferralFee)
	}
	if cfg.MerchantAmount.Cmp(big.NewInt(296_100_000)) != 0 {
		t.Errorf("merchant keeps %s, want 296.1", money.Format(cfg.MerchantAmount))
	}

	// Everything outside the two slots rides the batch call data. C's 197.4
	// is not in the flat config, so the flat legs alone do not sum to total.
	flatSum := configSum(cfg)
	withBatch := new(big.Int).Add(flatSum, big.NewInt(197_400_000))
	if withBatch.Cmp(amount) != 0 {
		t.Fatalf("flat legs + batch = %s, want %s", withBatch, amount)
	}

	if !strings.HasPrefix(result.BatchCallData, "0x") || len(result.BatchCallData) <= 2 {
		t.Errorf("batch call data missing: %q", result.BatchCallData)
	}
	// 3 chain nodes merged into 3 recipients: nothing saved.
	if result.EstimatedGasSaved != 0 {
		t.Errorf("gas saved = %d, want 0", result.EstimatedGasSaved)
	}
}

func TestBuildMultiHopUnknownChain(t *testing.T) {
	b := newTestBuilder(t)
	_, err := b.BuildMultiHopSplitTree(context.Background(), pool(10), merchantWallet, "nobody", ProductService)
	if err == nil {
		t.Fatal("expected error for unregistered chain")
	}
}

func TestRegisterChainValidation(t *testing.T) {
	b := newTestBuilder(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		root  string
		chain []*ChainNode
	}{
		{"empty root", "", []*ChainNode{{AgentAddress: agentA, SharePercent: 10}}},
		{"empty chain", "root", nil},
		{"bad address", "root", []*ChainNode{{AgentAddress: "nope", SharePercent: 10}}},
		{"zero share", "root", []*ChainNode{{AgentAddress: agentA, SharePercent: 0}}},
		{"over 100", "root", []*ChainNode{{AgentAddress: agentA, SharePercent: 101}}},
		{"siblings over 100", "root", []*ChainNode{
			{AgentAddress: agentA, SharePercent: 60},
			{AgentAddress: agentB, SharePercent: 60},
		}},
	}
	for _, tc := range cases {
		if err := b.RegisterChain(ctx, tc.root, tc.chain); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestEstimateGasSaving(t *testing.T) {
	if got := estimateGasSaving(10, 3); got != 7*gasPerTransfer {
		t.Errorf("estimateGasSaving(10,3) = %d", got)
	}
	if got := estimateGasSaving(2, 5); got != 0 {
		t.Errorf("saving must floor at zero, got %d", got)
	}
}
