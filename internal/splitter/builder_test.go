package splitter

import (
	"context"
	"log/slog"
	"math/big"
	"testing"

	"github.com/mbd888/splitpay/internal/agreements"
	"github.com/mbd888/splitpay/internal/money"
)

const (
	platformWallet = "0x4444444444444444444444444444444444444444"
	channelWallet  = "0x5555555555555555555555555555555555555555"
	merchantWallet = "0x6666666666666666666666666666666666666666"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	registry := agreements.NewRegistry(agreements.NewMemoryStore())
	return NewBuilder(registry, NewMemoryChainStore(), platformWallet, channelWallet, slog.Default())
}

func configSum(cfg SplitConfig) *big.Int {
	return money.Sum(cfg.MerchantAmount, cfg.ReferralFee, cfg.ExecutionFee,
		cfg.PlatformFee, cfg.ChannelFee, cfg.FundAmount)
}

func TestBuildSplitTreeConservation(t *testing.T) {
	b := newTestBuilder(t)
	amount := pool(1000)

	result, err := b.BuildSplitTree(context.Background(), amount, merchantWallet,
		Intent{Executor: executor, Referrer: referrer}, ProductService, true)
	if err != nil {
		t.Fatalf("BuildSplitTree failed: %v", err)
	}

	if configSum(result.FlatConfig).Cmp(amount) != 0 {
		t.Fatalf("legs sum to %s, want %s", configSum(result.FlatConfig), amount)
	}
	// service rates: platform 100 bps, channel 30 bps, pool 370 bps
	if result.FlatConfig.PlatformFee.Cmp(pool(10)) != 0 {
		t.Errorf("platform fee = %s, want 10", result.FlatConfig.PlatformFee)
	}
	if result.FlatConfig.ChannelFee.Cmp(pool(3)) != 0 {
		t.Errorf("channel fee = %s, want 3", result.FlatConfig.ChannelFee)
	}
	if result.FlatConfig.MerchantAmount.Cmp(pool(950)) != 0 {
		t.Errorf("merchant amount = %s, want 950", result.FlatConfig.MerchantAmount)
	}
	// pool 37: executor 70% = 25.9, referrer 30% = 11.1, no residual
	if result.FlatConfig.ExecutionFee.Cmp(big.NewInt(25_900_000)) != 0 {
		t.Errorf("execution fee = %s, want 25.9", result.FlatConfig.ExecutionFee)
	}
	if result.FlatConfig.ReferralFee.Cmp(big.NewInt(11_100_000)) != 0 {
		t.Errorf("referral fee = %s, want 11.1", result.FlatConfig.ReferralFee)
	}
	if result.FlatConfig.FundAmount.Sign() != 0 {
		t.Errorf("fund must be zero when the pool is fully allocated, got %s", result.FlatConfig.FundAmount)
	}

	v := Validate(result.FlatConfig, amount)
	if !v.Valid {
		t.Fatalf("built config failed validation: %v", v.Errors)
	}
}

func TestBuildSplitTreeNoChannelFeeWithoutX402(t *testing.T) {
	b := newTestBuilder(t)
	amount := pool(1000)

	result, err := b.BuildSplitTree(context.Background(), amount, merchantWallet,
		Intent{Executor: executor}, ProductService, false)
	if err != nil {
		t.Fatalf("BuildSplitTree failed: %v", err)
	}
	if result.FlatConfig.ChannelFee.Sign() != 0 {
		t.Errorf("channel fee must be zero without x402, got %s", result.FlatConfig.ChannelFee)
	}
	// merchant absorbs the channel leg's absence: 1000 - 10 - 37 = 953
	if result.FlatConfig.MerchantAmount.Cmp(pool(953)) != 0 {
		t.Errorf("merchant amount = %s, want 953", result.FlatConfig.MerchantAmount)
	}
	if configSum(result.FlatConfig).Cmp(amount) != 0 {
		t.Fatal("conservation broken without channel leg")
	}
}

func TestBuildSplitTreeResidualGoesToFund(t *testing.T) {
	b := newTestBuilder(t)
	amount := pool(1000)

	// Only an executor: 70% of the 37 pool is allocated, 30% is residual.
	result, err := b.BuildSplitTree(context.Background(), amount, merchantWallet,
		Intent{Executor: executor}, ProductService, false)
	if err != nil {
		t.Fatalf("BuildSplitTree failed: %v", err)
	}
	if result.FlatConfig.FundAmount.Cmp(big.NewInt(11_100_000)) != 0 {
		t.Errorf("fund = %s, want the unallocated 11.1", result.FlatConfig.FundAmount)
	}
	if result.FlatConfig.FundWallet != platformWallet {
		t.Errorf("fund wallet = %s, want platform wallet", result.FlatConfig.FundWallet)
	}
	if configSum(result.FlatConfig).Cmp(amount) != 0 {
		t.Fatal("conservation broken with fund leg")
	}
}

func TestBuildSplitTreeUsesAgreements(t *testing.T) {
	registry := agreements.NewRegistry(agreements.NewMemoryStore())
	b := NewBuilder(registry, NewMemoryChainStore(), platformWallet, channelWallet, slog.Default())
	ctx := context.Background()

	if _, err := registry.Register(ctx, agreements.RegisterRequest{
		PrimaryAgent:   requester,
		SecondaryAgent: executor,
		Type:           "hire",
		Terms:          agreements.Terms{FixedFee: "5"},
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result, err := b.BuildSplitTree(ctx, pool(1000), merchantWallet,
		Intent{Requester: requester, Executor: executor}, ProductService, false)
	if err != nil {
		t.Fatalf("BuildSplitTree failed: %v", err)
	}
	if result.FlatConfig.ExecutionFee.Cmp(pool(5)) != 0 {
		t.Errorf("execution fee = %s, want the agreed fixed fee 5", result.FlatConfig.ExecutionFee)
	}
	if configSum(result.FlatConfig).Cmp(pool(1000)) != 0 {
		t.Fatal("conservation broken with agreement-driven shares")
	}
}

func TestBuildSplitTreeRejectsBadInput(t *testing.T) {
	b := newTestBuilder(t)

	if _, err := b.BuildSplitTree(context.Background(), big.NewInt(0), merchantWallet, Intent{}, ProductService, false); err == nil {
		t.Error("zero amount must be rejected")
	}
	if _, err := b.BuildSplitTree(context.Background(), pool(1), merchantWallet, Intent{}, ProductType("food"), false); err == nil {
		t.Error("unknown product type must be rejected")
	}
}

func TestHashDeterministic(t *testing.T) {
	b := newTestBuilder(t)
	amount := pool(1000)
	intent := Intent{Executor: executor, Referrer: referrer}

	r1, err := b.BuildSplitTree(context.Background(), amount, merchantWallet, intent, ProductService, true)
	if err != nil {
		t.Fatalf("BuildSplitTree failed: %v", err)
	}
	r2, err := b.BuildSplitTree(context.Background(), amount, merchantWallet, intent, ProductService, true)
	if err != nil {
		t.Fatalf("BuildSplitTree failed: %v", err)
	}
	if r1.Hash != r2.Hash {
		t.Errorf("same input, different hashes: %s vs %s", r1.Hash, r2.Hash)
	}

	r3, err := b.BuildSplitTree(context.Background(), pool(1001), merchantWallet, intent, ProductService, true)
	if err != nil {
		t.Fatalf("BuildSplitTree failed: %v", err)
	}
	if r1.Hash == r3.Hash {
		t.Error("different amounts must produce different hashes")
	}
	if len(r1.Hash) != 66 || r1.Hash[:2] != "0x" {
		t.Errorf("hash must be a 0x-prefixed 256-bit digest, got %q", r1.Hash)
	}
}
