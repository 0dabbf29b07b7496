// Package splitter computes deterministic payment split configurations:
// single-level splits between merchant, platform, channel and collaborating
// agents, and multi-hop flattening of nested collaboration chains into a
// minimal recipient set. All amounts are integer micro-units; the splitter
// never touches balances, it only computes and validates configurations.
package splitter

import (
	"errors"
	"fmt"
	"math/big"
	"time"
)

var (
	ErrInvalidProductType = errors.New("invalid product type")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidChain       = errors.New("invalid split chain")
	ErrChainNotFound      = errors.New("split chain not found")
)

// ProductType selects the rate table row for a payment.
type ProductType string

const (
	ProductPhysical ProductType = "physical"
	ProductService  ProductType = "service"
	ProductVirtual  ProductType = "virtual"
	ProductNFT      ProductType = "nft"
)

// ParseProductType converts a wire string into a ProductType.
// Empty defaults to service.
func ParseProductType(s string) (ProductType, error) {
	if s == "" {
		return ProductService, nil
	}
	switch ProductType(s) {
	case ProductPhysical, ProductService, ProductVirtual, ProductNFT:
		return ProductType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidProductType, s)
}

// Rates are per-product-type fee legs in basis points of the total amount.
type Rates struct {
	PlatformBps      int
	ChannelBps       int
	IncentivePoolBps int
}

// rateTable mirrors the platform's published fee schedule.
var rateTable = map[ProductType]Rates{
	ProductPhysical: {PlatformBps: 50, ChannelBps: 30, IncentivePoolBps: 220},
	ProductService:  {PlatformBps: 100, ChannelBps: 30, IncentivePoolBps: 370},
	ProductVirtual:  {PlatformBps: 50, ChannelBps: 30, IncentivePoolBps: 220},
	ProductNFT:      {PlatformBps: 50, ChannelBps: 30, IncentivePoolBps: 170},
}

// RatesFor returns the fee legs for a product type.
func RatesFor(pt ProductType) (Rates, bool) {
	r, ok := rateTable[pt]
	return r, ok
}

// Intent names the agents involved in a collaboration. Any field may be
// empty; absent roles simply get no leg in the split.
type Intent struct {
	Requester string `json:"requester,omitempty"`
	Executor  string `json:"executor,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

// Role labels a split leg. Merged multi-hop entries may carry a
// comma-joined list of these; the joined form is display only.
type Role string

const (
	RoleMerchant Role = "merchant"
	RoleAgent    Role = "agent"
	RolePlatform Role = "platform"
	RoleReferrer Role = "referrer"
	RoleExecutor Role = "executor"
	RoleChannel  Role = "channel"
	RoleFund     Role = "fund"
)

// SplitConfig is the flat settlement shape. Every leg is (address, amount);
// zero-amount legs carry the zero address. FundAmount is the incentive-pool
// residual routed to the platform wallet so the legs always sum exactly to
// the total.
type SplitConfig struct {
	MerchantWallet  string   `json:"merchantWallet"`
	MerchantAmount  *big.Int `json:"merchantAmount"`
	ReferralWallet  string   `json:"referralWallet"`
	ReferralFee     *big.Int `json:"referralFee"`
	ExecutionWallet string   `json:"executionWallet"`
	ExecutionFee    *big.Int `json:"executionFee"`
	PlatformWallet  string   `json:"platformWallet"`
	PlatformFee     *big.Int `json:"platformFee"`
	ChannelWallet   string   `json:"channelWallet"`
	ChannelFee      *big.Int `json:"channelFee"`
	FundWallet      string   `json:"fundWallet"`
	FundAmount      *big.Int `json:"fundAmount"`
}

// TreeNode is the presentation form of a split, one child per non-zero leg.
// Not authoritative; settlement consumes SplitConfig.
type TreeNode struct {
	Address        string      `json:"address"`
	Role           Role        `json:"role"`
	Amount         *big.Int    `json:"amount"`
	PercentOfTotal float64     `json:"percentOfTotal"`
	Source         string      `json:"source,omitempty"`
	Children       []*TreeNode `json:"children,omitempty"`
}

// TreeResult is the output of the single-level builder.
type TreeResult struct {
	Root        *TreeNode   `json:"root"`
	FlatConfig  SplitConfig `json:"flatConfig"`
	TotalAmount *big.Int    `json:"totalAmount"`
	Hash        string      `json:"hash"`
	GeneratedAt time.Time   `json:"generatedAt"`
}

// ChainNode is one hop in a multi-hop collaboration chain. SharePercent is
// the whole-percent share of the parent's pool (0..100). Children receive
// their shares out of this node's share.
type ChainNode struct {
	AgentID      string       `json:"agentId"`
	AgentAddress string       `json:"agentAddress"`
	SharePercent int          `json:"sharePercent"`
	Role         Role         `json:"role"`
	Children     []*ChainNode `json:"children,omitempty"`
}

// FlattenedSplit is one traversal entry before merging, or one merged
// recipient after MergeByAddress.
type FlattenedSplit struct {
	Address       string   `json:"address"`
	Amount        *big.Int `json:"amount"`
	Role          string   `json:"role"`
	Depth         int      `json:"depth"`
	ParentAddress string   `json:"parentAddress"`
	SourceAgentID string   `json:"sourceAgentId"`
}

// MultiHopResult is the output of the multi-hop builder. BatchCallData is
// ABI-encoded (address[], uint256[]) for the recipients beyond the two flat
// config slots.
type MultiHopResult struct {
	Root              *TreeNode        `json:"root"`
	FlattenedSplits   []FlattenedSplit `json:"flattenedSplits"`
	FlatConfig        SplitConfig      `json:"flatConfig"`
	BatchCallData     string           `json:"batchCallData"`
	TotalAmount       *big.Int         `json:"totalAmount"`
	TotalRecipients   int              `json:"totalRecipients"`
	EstimatedGasSaved uint64           `json:"estimatedGasSaved"`
	Hash              string           `json:"hash"`
	GeneratedAt       time.Time        `json:"generatedAt"`
}

// ShareResult is the resolver's output: the referral and execution legs
// carved out of an incentive pool.
type ShareResult struct {
	ReferralFee     *big.Int
	ExecutionFee    *big.Int
	ReferralWallet  string
	ExecutionWallet string
}
