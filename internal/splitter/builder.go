package splitter

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/mbd888/splitpay/internal/agreements"
	"github.com/mbd888/splitpay/internal/money"
	"github.com/mbd888/splitpay/internal/traces"
	"github.com/mbd888/splitpay/internal/validation"
)

// Builder assembles split configurations from the rate table, the agreement
// registry and registered multi-hop chains.
type Builder struct {
	registry       *agreements.Registry
	chains         ChainStore
	platformWallet string
	channelWallet  string
	logger         *slog.Logger
}

// NewBuilder creates a split tree builder. The platform wallet doubles as
// the incentive-pool fund sink.
func NewBuilder(registry *agreements.Registry, chains ChainStore, platformWallet, channelWallet string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		registry:       registry,
		chains:         chains,
		platformWallet: platformWallet,
		channelWallet:  channelWallet,
		logger:         logger,
	}
}

// BuildSplitTree computes the single-level split for a payment.
//
// The merchant receives amount minus the platform, channel and incentive-pool
// legs. The incentive pool funds the referral and execution legs; whatever
// the resolver leaves unallocated becomes the fund leg, paid to the platform
// wallet, so the config always sums exactly to the amount. The channel leg
// exists only for x402 payments.
func (b *Builder) BuildSplitTree(ctx context.Context, amount *big.Int, merchantWallet string, intent Intent, productType ProductType, isX402 bool) (*TreeResult, error) {
	ctx, span := traces.StartSpan(ctx, "splitter.BuildSplitTree",
		traces.ProductType(string(productType)), traces.Amount(money.Format(amount)))
	defer span.End()

	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	rates, ok := RatesFor(productType)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProductType, productType)
	}

	platformFee := money.Bps(amount, rates.PlatformBps)
	channelFee := money.Zero()
	if isX402 {
		channelFee = money.Bps(amount, rates.ChannelBps)
	}
	incentivePool := money.Bps(amount, rates.IncentivePoolBps)

	agmts, err := b.registry.FindApplicable(ctx, intent.Requester, intent.Executor, intent.Referrer, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to look up agreements: %w", err)
	}

	shares := ResolveShares(incentivePool, agmts, intent)

	merchantAmount := new(big.Int).Set(amount)
	merchantAmount.Sub(merchantAmount, platformFee)
	merchantAmount.Sub(merchantAmount, channelFee)
	merchantAmount.Sub(merchantAmount, incentivePool)

	// Incentive pool residual goes to the fund leg, not the merchant.
	fund := new(big.Int).Set(incentivePool)
	fund.Sub(fund, shares.ReferralFee)
	fund.Sub(fund, shares.ExecutionFee)

	root := &TreeNode{
		Address:        "payment",
		Role:           RoleMerchant,
		Amount:         amount,
		PercentOfTotal: 100,
	}
	root.Children = appendLeg(root.Children, amount, merchantWallet, RoleMerchant, merchantAmount, "merchant net revenue")
	root.Children = appendLeg(root.Children, amount, b.platformWallet, RolePlatform, platformFee, "platform service fee")
	root.Children = appendLeg(root.Children, amount, b.channelWallet, RoleChannel, channelFee, "x402 channel fee")
	root.Children = appendLeg(root.Children, amount, shares.ReferralWallet, RoleReferrer, shares.ReferralFee, "referral reward")
	root.Children = appendLeg(root.Children, amount, shares.ExecutionWallet, RoleExecutor, shares.ExecutionFee, "executing agent fee")
	root.Children = appendLeg(root.Children, amount, b.platformWallet, RoleFund, fund, "incentive pool residual")

	cfg := SplitConfig{
		MerchantWallet:  merchantWallet,
		MerchantAmount:  merchantAmount,
		ReferralWallet:  orZeroAddress(shares.ReferralWallet),
		ReferralFee:     shares.ReferralFee,
		ExecutionWallet: orZeroAddress(shares.ExecutionWallet),
		ExecutionFee:    shares.ExecutionFee,
		PlatformWallet:  b.platformWallet,
		PlatformFee:     platformFee,
		ChannelWallet:   b.channelWallet,
		ChannelFee:      channelFee,
		FundWallet:      b.platformWallet,
		FundAmount:      fund,
	}

	return &TreeResult{
		Root:        root,
		FlatConfig:  cfg,
		TotalAmount: amount,
		Hash:        Hash(cfg),
		GeneratedAt: time.Now(),
	}, nil
}

func appendLeg(children []*TreeNode, total *big.Int, address string, role Role, amount *big.Int, source string) []*TreeNode {
	if address == "" || amount == nil || amount.Sign() <= 0 {
		return children
	}
	return append(children, &TreeNode{
		Address:        address,
		Role:           role,
		Amount:         amount,
		PercentOfTotal: percentOf(amount, total),
		Source:         source,
	})
}

// percentOf returns amount/total as a percentage with bps precision. Display
// only; never used in settlement arithmetic.
func percentOf(amount, total *big.Int) float64 {
	if total == nil || total.Sign() == 0 {
		return 0
	}
	bps := new(big.Int).Mul(amount, money.BasisPoints)
	bps.Div(bps, total)
	return float64(bps.Int64()) / 100
}

func orZeroAddress(addr string) string {
	if addr == "" {
		return validation.ZeroAddress
	}
	return addr
}

// Hash returns the audit digest of a split config: Keccak-256 over a
// canonical serialization with stable field order and amounts as decimal
// micro-unit strings.
func Hash(cfg SplitConfig) string {
	canonical := fmt.Sprintf("m=%s|ma=%s|r=%s|rf=%s|e=%s|ef=%s|p=%s|pf=%s|c=%s|cf=%s|f=%s|ff=%s",
		cfg.MerchantWallet, amt(cfg.MerchantAmount),
		cfg.ReferralWallet, amt(cfg.ReferralFee),
		cfg.ExecutionWallet, amt(cfg.ExecutionFee),
		cfg.PlatformWallet, amt(cfg.PlatformFee),
		cfg.ChannelWallet, amt(cfg.ChannelFee),
		cfg.FundWallet, amt(cfg.FundAmount),
	)
	return "0x" + common.Bytes2Hex(crypto.Keccak256([]byte(canonical)))
}

func amt(a *big.Int) string {
	if a == nil {
		return "0"
	}
	return a.String()
}
