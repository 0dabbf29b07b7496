package splitter

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/mbd888/splitpay/internal/money"
	"github.com/mbd888/splitpay/internal/traces"
	"github.com/mbd888/splitpay/internal/validation"
)

// MaxChainDepth bounds multi-hop recursion. Chains are not required to be
// acyclic, so the depth bound is the sole cycle-safety mechanism: hops past
// it are logged and pruned, never an error.
const MaxChainDepth = 100

// gasPerTransfer approximates the on-chain cost of one settlement transfer.
const gasPerTransfer = 50_000

// ChainStore persists registered multi-hop chains per root agent.
type ChainStore interface {
	PutChain(ctx context.Context, rootAgentID string, chain []*ChainNode) error
	GetChain(ctx context.Context, rootAgentID string) ([]*ChainNode, error)
}

// RegisterChain validates and stores a multi-hop chain for a root agent.
func (b *Builder) RegisterChain(ctx context.Context, rootAgentID string, chain []*ChainNode) error {
	if rootAgentID == "" {
		return fmt.Errorf("%w: root agent id required", ErrInvalidChain)
	}
	if len(chain) == 0 {
		return fmt.Errorf("%w: chain must have at least one node", ErrInvalidChain)
	}
	if err := validateChainLevel(chain, 0); err != nil {
		return err
	}
	if err := b.chains.PutChain(ctx, rootAgentID, chain); err != nil {
		return fmt.Errorf("failed to store chain: %w", err)
	}
	b.logger.Info("registered multi-hop split chain",
		"rootAgent", rootAgentID, "nodes", len(chain))
	return nil
}

func validateChainLevel(nodes []*ChainNode, depth int) error {
	if depth >= MaxChainDepth {
		return fmt.Errorf("%w: chain deeper than %d levels", ErrInvalidChain, MaxChainDepth)
	}
	total := 0
	for _, n := range nodes {
		if !validation.IsValidAddress(n.AgentAddress) {
			return fmt.Errorf("%w: invalid agent address %q", ErrInvalidChain, n.AgentAddress)
		}
		if n.SharePercent < 1 || n.SharePercent > 100 {
			return fmt.Errorf("%w: sharePercent must be 1..100, got %d", ErrInvalidChain, n.SharePercent)
		}
		total += n.SharePercent
		if len(n.Children) > 0 {
			if err := validateChainLevel(n.Children, depth+1); err != nil {
				return err
			}
		}
	}
	if total > 100 {
		return fmt.Errorf("%w: sibling shares sum to %d%%", ErrInvalidChain, total)
	}
	return nil
}

// FlattenChain expands a chain level into flattened splits. Pure: each call
// returns a fresh slice and never mutates its inputs.
//
// Each node's gross share is floor(remaining * sharePercent / 100). Children
// are carved out of their parent's gross share, and the parent's own entry
// keeps what its children leave behind, so the flattened amounts for a level
// never exceed the pool that fed it.
func FlattenChain(logger *slog.Logger, remaining *big.Int, parentAddress string, nodes []*ChainNode, depth int) []FlattenedSplit {
	if depth >= MaxChainDepth {
		if logger != nil {
			logger.Warn("max depth reached in multi-hop split chain", "depth", depth)
		}
		return nil
	}

	var out []FlattenedSplit
	for _, node := range nodes {
		gross := money.Pct(remaining, node.SharePercent)
		kept := new(big.Int).Set(gross)

		var childSplits []FlattenedSplit
		if len(node.Children) > 0 {
			childSplits = FlattenChain(logger, gross, node.AgentAddress, node.Children, depth+1)
			if childSplits != nil {
				// Direct children carve their gross shares out of this
				// node's entry. A nil result means the level was pruned at
				// the depth bound, in which case the node keeps everything.
				for _, c := range node.Children {
					kept.Sub(kept, money.Pct(gross, c.SharePercent))
				}
			}
		}

		out = append(out, FlattenedSplit{
			Address:       node.AgentAddress,
			Amount:        kept,
			Role:          string(node.Role),
			Depth:         depth,
			ParentAddress: parentAddress,
			SourceAgentID: node.AgentID,
		})
		out = append(out, childSplits...)
	}
	return out
}

// MergeByAddress merges flattened entries sharing an address: amounts sum,
// role labels join with commas. The joined label is display only. Merge
// order follows first appearance, so output is deterministic for a given
// traversal.
func MergeByAddress(splits []FlattenedSplit) []FlattenedSplit {
	index := make(map[string]int)
	var out []FlattenedSplit
	for _, s := range splits {
		if i, ok := index[s.Address]; ok {
			out[i].Amount = new(big.Int).Add(out[i].Amount, s.Amount)
			out[i].Role = out[i].Role + ", " + s.Role
			continue
		}
		cp := s
		cp.Amount = new(big.Int).Set(s.Amount)
		index[s.Address] = len(out)
		out = append(out, cp)
	}
	return out
}

// BuildMultiHopSplitTree expands the chain registered for rootAgentID over a
// payment and collapses it into a single settlement configuration.
//
// The agent pool is the amount minus the platform and channel legs. Whatever
// the chain leaves unallocated stays with the merchant. The two largest
// merged recipients fill the execution and referral slots of the flat
// config; the rest ride the batch transfer call data.
func (b *Builder) BuildMultiHopSplitTree(ctx context.Context, amount *big.Int, merchantWallet, rootAgentID string, productType ProductType) (*MultiHopResult, error) {
	ctx, span := traces.StartSpan(ctx, "splitter.BuildMultiHopSplitTree",
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
	channelFee := money.Bps(amount, rates.ChannelBps)
	agentPool := new(big.Int).Set(amount)
	agentPool.Sub(agentPool, platformFee)
	agentPool.Sub(agentPool, channelFee)

	chain, err := b.chains.GetChain(ctx, rootAgentID)
	if err != nil {
		return nil, err
	}

	flattened := FlattenChain(b.logger, agentPool, merchantWallet, chain, 0)
	merged := MergeByAddress(flattened)

	merchantAmount := new(big.Int).Set(agentPool)
	for _, s := range merged {
		merchantAmount.Sub(merchantAmount, s.Amount)
	}

	// Largest two merged recipients take the execution and referral slots.
	sorted := make([]FlattenedSplit, len(merged))
	copy(sorted, merged)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.Cmp(sorted[j].Amount) > 0
	})

	cfg := SplitConfig{
		MerchantWallet:  merchantWallet,
		MerchantAmount:  merchantAmount,
		ReferralWallet:  validation.ZeroAddress,
		ReferralFee:     money.Zero(),
		ExecutionWallet: validation.ZeroAddress,
		ExecutionFee:    money.Zero(),
		PlatformWallet:  b.platformWallet,
		PlatformFee:     platformFee,
		ChannelWallet:   b.channelWallet,
		ChannelFee:      channelFee,
		FundWallet:      b.platformWallet,
		FundAmount:      money.Zero(),
	}
	var rest []FlattenedSplit
	if len(sorted) > 0 {
		cfg.ExecutionWallet = sorted[0].Address
		cfg.ExecutionFee = sorted[0].Amount
	}
	if len(sorted) > 1 {
		cfg.ReferralWallet = sorted[1].Address
		cfg.ReferralFee = sorted[1].Amount
	}
	if len(sorted) > 2 {
		rest = sorted[2:]
	}

	batchCallData, err := EncodeBatchTransfer(rest)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch call data: %w", err)
	}

	return &MultiHopResult{
		Root:              buildChainTree(amount, agentPool, merchantWallet, chain),
		FlattenedSplits:   merged,
		FlatConfig:        cfg,
		BatchCallData:     batchCallData,
		TotalAmount:       amount,
		TotalRecipients:   len(merged),
		EstimatedGasSaved: estimateGasSaving(countNodes(chain), len(merged)),
		Hash:              Hash(cfg),
		GeneratedAt:       time.Now(),
	}, nil
}

// buildChainTree renders the chain as a presentation tree with gross
// per-node amounts. Visualization only.
func buildChainTree(amount, agentPool *big.Int, merchantWallet string, chain []*ChainNode) *TreeNode {
	root := &TreeNode{
		Address:        "payment",
		Role:           RoleMerchant,
		Amount:         amount,
		PercentOfTotal: 100,
		Source:         merchantWallet,
	}
	root.Children = chainChildren(chain, agentPool, amount)
	return root
}

func chainChildren(nodes []*ChainNode, pool, total *big.Int) []*TreeNode {
	var out []*TreeNode
	for _, n := range nodes {
		gross := money.Pct(pool, n.SharePercent)
		child := &TreeNode{
			Address:        n.AgentAddress,
			Role:           n.Role,
			Amount:         gross,
			PercentOfTotal: percentOf(gross, total),
			Source:         "from " + n.AgentID,
		}
		if len(n.Children) > 0 {
			child.Children = chainChildren(n.Children, gross, total)
		}
		out = append(out, child)
	}
	return out
}

var batchTransferArgs = func() abi.Arguments {
	addresses, err := abi.NewType("address[]", "", nil)
	if err != nil {
		panic(err)
	}
	amounts, err := abi.NewType("uint256[]", "", nil)
	if err != nil {
		panic(err)
	}
	return abi.Arguments{{Type: addresses}, {Type: amounts}}
}()

// EncodeBatchTransfer ABI-encodes (address[], uint256[]) for the recipients
// settled outside the two flat config slots. Empty input encodes two empty
// arrays so the contract call shape stays constant.
func EncodeBatchTransfer(splits []FlattenedSplit) (string, error) {
	addresses := make([]common.Address, 0, len(splits))
	amounts := make([]*big.Int, 0, len(splits))
	for _, s := range splits {
		addresses = append(addresses, common.HexToAddress(s.Address))
		amounts = append(amounts, s.Amount)
	}
	packed, err := batchTransferArgs.Pack(addresses, amounts)
	if err != nil {
		return "", err
	}
	return "0x" + common.Bytes2Hex(packed), nil
}

// estimateGasSaving compares settling every chain hop individually against
// the merged recipient set.
func estimateGasSaving(originalHops, mergedCount int) uint64 {
	if originalHops <= mergedCount {
		return 0
	}
	return uint64(originalHops-mergedCount) * gasPerTransfer
}

func countNodes(nodes []*ChainNode) int {
	n := 0
	for _, node := range nodes {
		n++
		n += countNodes(node.Children)
	}
	return n
}
