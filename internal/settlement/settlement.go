// Package settlement is the stateful side of the split system: it holds
// split plans, executes validated splits against them, accumulates pending
// balances per recipient, and pays balances out on claim.
//
// Flow:
//  1. An owner creates a split plan (recipients, shares, fee config)
//  2. The relayer executes a split for a payment session against the plan
//  3. The platform fee sweeps to the treasury immediately; recipients
//     accumulate pending balances
//  4. Recipients claim their full balance on demand
package settlement

import (
	"context"
	"errors"
	"time"

	"math/big"

	"github.com/mbd888/splitpay/internal/fees"
)

// Validation errors: rejected synchronously, nothing persisted.
var (
	ErrInvalidPlan   = errors.New("invalid split plan")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Authorization errors: caller lacks the required role, nothing mutated.
var (
	ErrNotOwner   = errors.New("caller is not the owner")
	ErrNotRelayer = errors.New("caller is not the relayer")
)

// State errors: the ledger is not in a state that allows the operation.
var (
	ErrPlanNotFound     = errors.New("split plan not found")
	ErrPlanInactive     = errors.New("split plan is not active")
	ErrPaused           = errors.New("settlement ledger is paused")
	ErrDuplicateSession = errors.New("session already executed for this plan")
	ErrNothingToClaim   = errors.New("nothing to claim")
)

// SplitPlan declares how executed payments divide among recipients.
// Immutable once created except for the Active toggle. ShareBps entries sum
// to exactly 10000. Roles are display labels aligned with Recipients.
type SplitPlan struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Recipients []string    `json:"recipients"`
	ShareBps   []int       `json:"shareBps"`
	Roles      []string    `json:"roles"`
	FeeConfig  fees.Config `json:"feeConfig"`
	Active     bool        `json:"active"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// ExecutionRecord is the idempotency record for one executed split. At most
// one exists per (PlanID, SessionID). Amounts are decimal strings.
type ExecutionRecord struct {
	ID             string    `json:"id"`
	PlanID         string    `json:"planId"`
	SessionID      string    `json:"sessionId"`
	Amount         string    `json:"amount"`
	PlatformFee    string    `json:"platformFee"`
	Mode           string    `json:"mode"`
	TreasuryTxHash string    `json:"treasuryTxHash,omitempty"`
	ExecutedAt     time.Time `json:"executedAt"`
}

// CreditEntry is one recipient credit inside an execution commit.
type CreditEntry struct {
	Address string
	Amount  *big.Int
}

// Store persists plans, pending balances and execution records. Pending
// balances belong exclusively to this package; nothing else mutates them.
type Store interface {
	CreatePlan(ctx context.Context, plan *SplitPlan) error
	GetPlan(ctx context.Context, id string) (*SplitPlan, error)
	UpdatePlan(ctx context.Context, plan *SplitPlan) error
	ListPlans(ctx context.Context) ([]*SplitPlan, error)

	// GetBalance returns the pending balance for an address, zero when the
	// address has never been credited.
	GetBalance(ctx context.Context, addr string) (*big.Int, error)
	// Credit increases an address's pending balance.
	Credit(ctx context.Context, addr string, amount *big.Int) error
	// ZeroBalance atomically reads and zeroes an address's pending balance,
	// returning the prior value.
	ZeroBalance(ctx context.Context, addr string) (*big.Int, error)

	// ApplyExecution commits one executed split: every credit plus the
	// execution record land together or not at all. Fails with
	// ErrDuplicateSession when (PlanID, SessionID) was already recorded,
	// leaving balances untouched.
	ApplyExecution(ctx context.Context, credits []CreditEntry, rec *ExecutionRecord) error
	// RecordExecution persists an execution record, failing with
	// ErrDuplicateSession when (PlanID, SessionID) was already recorded.
	RecordExecution(ctx context.Context, rec *ExecutionRecord) error
	HasExecution(ctx context.Context, planID, sessionID string) (bool, error)
	ListExecutions(ctx context.Context, planID string, limit int) ([]*ExecutionRecord, error)
}
