package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/mbd888/splitpay/internal/fees"
	"github.com/mbd888/splitpay/internal/idgen"
	"github.com/mbd888/splitpay/internal/metrics"
	"github.com/mbd888/splitpay/internal/money"
	"github.com/mbd888/splitpay/internal/realtime"
	"github.com/mbd888/splitpay/internal/syncutil"
	"github.com/mbd888/splitpay/internal/traces"
	"github.com/mbd888/splitpay/internal/treasury"
	"github.com/mbd888/splitpay/internal/validation"
)

// EventPublisher receives settlement events. The realtime hub satisfies it;
// a nil publisher disables events.
type EventPublisher interface {
	Publish(eventType realtime.EventType, data map[string]interface{})
}

// Roles holds the access-control addresses for the ledger. Owner gates
// administrative operations, the relayer is the sole executor of splits,
// and the operator may pause.
type Roles struct {
	Owner    string
	Operator string
	Relayer  string
}

// Ledger is the settlement ledger. Execution commits are atomic at the
// store; claims hold a per-address sharded lock across the
// zero-then-transfer sequence. Role and pause state lives under its own
// mutex.
type Ledger struct {
	store    Store
	transfer treasury.Transferor
	events   EventPublisher
	logger   *slog.Logger

	locks syncutil.ShardedMutex

	mu       sync.RWMutex
	roles    Roles
	treasury string
	paused   bool
}

// New creates a settlement ledger. platformTreasury receives the platform
// fee sweep on every execution.
func New(store Store, transfer treasury.Transferor, roles Roles, platformTreasury string, events EventPublisher, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:    store,
		transfer: transfer,
		events:   events,
		logger:   logger,
		roles:    roles,
		treasury: platformTreasury,
	}
}

// CreatePlanRequest is the request body for POST /v1/plans.
type CreatePlanRequest struct {
	Name       string      `json:"name" binding:"required"`
	Recipients []string    `json:"recipients" binding:"required"`
	ShareBps   []int       `json:"shareBps" binding:"required"`
	Roles      []string    `json:"roles" binding:"required"`
	FeeConfig  fees.Config `json:"feeConfig"`
}

// CreateSplitPlan validates and persists a new plan. Owner only; plans
// start active. Any violation rejects the whole request; nothing partial is
// created.
func (l *Ledger) CreateSplitPlan(ctx context.Context, req CreatePlanRequest, caller string) (*SplitPlan, error) {
	if !l.isOwner(caller) {
		return nil, ErrNotOwner
	}
	if req.Name == "" {
		return nil, fmt.Errorf("%w: name required", ErrInvalidPlan)
	}
	n := len(req.Recipients)
	if n == 0 {
		return nil, fmt.Errorf("%w: at least one recipient required", ErrInvalidPlan)
	}
	if len(req.ShareBps) != n || len(req.Roles) != n {
		return nil, fmt.Errorf("%w: recipients, shareBps and roles must have equal length", ErrInvalidPlan)
	}

	total := 0
	recipients := make([]string, n)
	for i, r := range req.Recipients {
		addr := validation.SanitizeAddress(r)
		if !validation.IsValidAddress(addr) || validation.IsZeroAddress(addr) {
			return nil, fmt.Errorf("%w: invalid recipient address %q", ErrInvalidPlan, r)
		}
		recipients[i] = addr
		if req.ShareBps[i] <= 0 {
			return nil, fmt.Errorf("%w: shareBps must be positive", ErrInvalidPlan)
		}
		total += req.ShareBps[i]
	}
	if total != 10000 {
		return nil, fmt.Errorf("%w: shareBps must sum to 10000, got %d", ErrInvalidPlan, total)
	}
	if err := req.FeeConfig.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	now := time.Now()
	plan := &SplitPlan{
		ID:         idgen.WithPrefix("plan_"),
		Name:       req.Name,
		Recipients: recipients,
		ShareBps:   append([]int(nil), req.ShareBps...),
		Roles:      append([]string(nil), req.Roles...),
		FeeConfig:  req.FeeConfig,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := l.store.CreatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to create plan: %w", err)
	}

	l.publish(realtime.EventPlanCreated, map[string]interface{}{
		"planId":     plan.ID,
		"name":       plan.Name,
		"recipients": len(plan.Recipients),
	})
	l.logger.Info("split plan created", "planId", plan.ID, "recipients", n)
	return plan, nil
}

// GetSplitPlan returns a plan by ID.
func (l *Ledger) GetSplitPlan(ctx context.Context, id string) (*SplitPlan, error) {
	return l.store.GetPlan(ctx, id)
}

// ListSplitPlans returns all plans.
func (l *Ledger) ListSplitPlans(ctx context.Context) ([]*SplitPlan, error) {
	return l.store.ListPlans(ctx)
}

// SetSplitPlanActive toggles a plan's active flag. Owner only.
func (l *Ledger) SetSplitPlanActive(ctx context.Context, id string, active bool, caller string) (*SplitPlan, error) {
	if !l.isOwner(caller) {
		return nil, ErrNotOwner
	}
	plan, err := l.store.GetPlan(ctx, id)
	if err != nil {
		return nil, err
	}
	plan.Active = active
	plan.UpdatedAt = time.Now()
	if err := l.store.UpdatePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("failed to update plan: %w", err)
	}
	return plan, nil
}

// ExecuteSplit settles one payment session against a plan. Relayer only,
// plan must be active, ledger not paused, and the (planID, sessionID) pair
// unseen. The platform fee sweeps to the treasury immediately; each
// recipient's pending balance grows by its bps share of the remainder. Any
// floor dust joins the platform fee leg so credits plus the sweep always
// equal the amount exactly.
func (l *Ledger) ExecuteSplit(ctx context.Context, planID, sessionID string, amount *big.Int, mode fees.PaymentMode, caller string) (*ExecutionRecord, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.ExecuteSplit",
		traces.PlanID(planID), traces.SessionID(sessionID), traces.Amount(money.Format(amount)))
	defer span.End()

	if !l.isRelayer(caller) {
		return nil, l.reject("not_relayer", ErrNotRelayer)
	}
	if l.isPaused() {
		return nil, l.reject("paused", ErrPaused)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, l.reject("invalid_amount", fmt.Errorf("%w: amount must be positive", ErrInvalidAmount))
	}
	if sessionID == "" {
		return nil, l.reject("invalid_session", fmt.Errorf("%w: session id required", ErrInvalidAmount))
	}

	// Linearize duplicate submissions of the same session.
	unlock := l.locks.Lock("exec:" + planID + ":" + sessionID)
	defer unlock()

	plan, err := l.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, l.reject("plan_not_found", err)
	}
	if !plan.Active {
		return nil, l.reject("plan_inactive", ErrPlanInactive)
	}
	seen, err := l.store.HasExecution(ctx, planID, sessionID)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, l.reject("duplicate_session", ErrDuplicateSession)
	}

	platformFee := fees.Calculate(amount, mode, plan.FeeConfig)
	if platformFee.Cmp(amount) >= 0 {
		return nil, l.reject("fee_exceeds_amount",
			fmt.Errorf("%w: platform fee %s consumes the whole amount %s",
				ErrInvalidAmount, money.Format(platformFee), money.Format(amount)))
	}

	distributable := new(big.Int).Sub(amount, platformFee)
	credits := make([]*big.Int, len(plan.Recipients))
	credited := big.NewInt(0)
	for i, bps := range plan.ShareBps {
		credits[i] = money.Bps(distributable, bps)
		credited.Add(credited, credits[i])
	}
	// Floor dust rides with the platform fee sweep.
	sweep := new(big.Int).Sub(amount, credited)

	var txHash string
	if sweep.Sign() > 0 {
		result, err := l.transfer.Transfer(ctx, l.treasuryAddress(), sweep)
		if err != nil {
			metrics.TreasuryTransfersTotal.WithLabelValues("error").Inc()
			return nil, l.reject("treasury_transfer", fmt.Errorf("treasury transfer failed: %w", err))
		}
		metrics.TreasuryTransfersTotal.WithLabelValues("ok").Inc()
		txHash = result.TxHash
	}

	entries := make([]CreditEntry, 0, len(plan.Recipients))
	for i, addr := range plan.Recipients {
		if credits[i].Sign() == 0 {
			continue
		}
		entries = append(entries, CreditEntry{Address: addr, Amount: credits[i]})
	}
	rec := &ExecutionRecord{
		ID:             idgen.WithPrefix("exec_"),
		PlanID:         planID,
		SessionID:      sessionID,
		Amount:         money.Format(amount),
		PlatformFee:    money.Format(platformFee),
		Mode:           string(mode),
		TreasuryTxHash: txHash,
		ExecutedAt:     time.Now(),
	}
	// Credits and the idempotency record commit together; a store failure
	// here leaves every balance untouched and the session unrecorded.
	if err := l.store.ApplyExecution(ctx, entries, rec); err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			return nil, l.reject("duplicate_session", err)
		}
		// CRITICAL: the sweep is already out but no ledger state changed;
		// the session stays replayable once the store recovers.
		l.logger.Error("CRITICAL: execution commit failed after treasury sweep",
			"planId", planID, "sessionId", sessionID, "sweepTx", txHash, "error", err)
		return nil, fmt.Errorf("failed to commit execution: %w", err)
	}

	metrics.SplitsExecutedTotal.Inc()
	l.publish(realtime.EventSplitExecuted, map[string]interface{}{
		"planId":      planID,
		"sessionId":   sessionID,
		"amount":      rec.Amount,
		"platformFee": rec.PlatformFee,
	})
	l.logger.Info("split executed",
		"planId", planID, "sessionId", sessionID,
		"amount", rec.Amount, "platformFee", rec.PlatformFee)
	return rec, nil
}

// ClaimAll pays out an address's entire pending balance and zeroes it. The
// read-zero-transfer sequence holds the address lock, so no concurrent
// execution can credit in between.
func (l *Ledger) ClaimAll(ctx context.Context, caller string) (*treasury.TransferResult, error) {
	ctx, span := traces.StartSpan(ctx, "settlement.ClaimAll", traces.Recipient(caller))
	defer span.End()

	addr := validation.SanitizeAddress(caller)
	if !validation.IsValidAddress(addr) {
		return nil, fmt.Errorf("%w: invalid address", ErrInvalidAmount)
	}

	unlock := l.locks.Lock("addr:" + addr)
	defer unlock()

	balance, err := l.store.ZeroBalance(ctx, addr)
	if err != nil {
		return nil, err
	}
	if balance.Sign() == 0 {
		return nil, ErrNothingToClaim
	}

	result, err := l.transfer.Transfer(ctx, addr, balance)
	if err != nil {
		// Restore the balance so the claim can be retried.
		if crErr := l.store.Credit(ctx, addr, balance); crErr != nil {
			l.logger.Error("CRITICAL: failed to restore balance after failed payout",
				"address", addr, "amount", money.Format(balance), "error", crErr)
		}
		metrics.TreasuryTransfersTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("payout failed: %w", err)
	}
	metrics.TreasuryTransfersTotal.WithLabelValues("ok").Inc()
	metrics.ClaimsTotal.Inc()

	l.publish(realtime.EventClaimed, map[string]interface{}{
		"caller": addr,
		"amount": money.Format(balance),
		"txHash": result.TxHash,
	})
	l.logger.Info("balance claimed", "address", addr, "amount", money.Format(balance))
	return result, nil
}

// GetPendingBalance returns an address's pending balance.
func (l *Ledger) GetPendingBalance(ctx context.Context, addr string) (*big.Int, error) {
	return l.store.GetBalance(ctx, validation.SanitizeAddress(addr))
}

// ListExecutions returns execution history for a plan, newest first.
func (l *Ledger) ListExecutions(ctx context.Context, planID string, limit int) ([]*ExecutionRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return l.store.ListExecutions(ctx, planID, limit)
}

// Pause stops split execution. Owner or operator.
func (l *Ledger) Pause(caller string) error {
	if !l.isOwner(caller) && !l.isOperator(caller) {
		return ErrNotOwner
	}
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
	metrics.LedgerPaused.Set(1)
	l.logger.Warn("settlement ledger paused", "caller", caller)
	return nil
}

// Unpause resumes split execution. Owner or operator.
func (l *Ledger) Unpause(caller string) error {
	if !l.isOwner(caller) && !l.isOperator(caller) {
		return ErrNotOwner
	}
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
	metrics.LedgerPaused.Set(0)
	l.logger.Info("settlement ledger unpaused", "caller", caller)
	return nil
}

// SetOperator replaces the operator address. Owner only.
func (l *Ledger) SetOperator(caller, operator string) error {
	if !l.isOwner(caller) {
		return ErrNotOwner
	}
	l.mu.Lock()
	l.roles.Operator = operator
	l.mu.Unlock()
	return nil
}

// SetRelayer replaces the relayer address. Owner only.
func (l *Ledger) SetRelayer(caller, relayer string) error {
	if !l.isOwner(caller) {
		return ErrNotOwner
	}
	l.mu.Lock()
	l.roles.Relayer = relayer
	l.mu.Unlock()
	return nil
}

// SetPlatformTreasury replaces the treasury address. Owner only.
func (l *Ledger) SetPlatformTreasury(caller, addr string) error {
	if !l.isOwner(caller) {
		return ErrNotOwner
	}
	if !validation.IsValidAddress(validation.SanitizeAddress(addr)) {
		return fmt.Errorf("%w: invalid treasury address", ErrInvalidAmount)
	}
	l.mu.Lock()
	l.treasury = addr
	l.mu.Unlock()
	return nil
}

// Paused reports whether execution is paused.
func (l *Ledger) Paused() bool {
	return l.isPaused()
}

func (l *Ledger) isOwner(caller string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roles.Owner != "" && strings.EqualFold(caller, l.roles.Owner)
}

func (l *Ledger) isOperator(caller string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roles.Operator != "" && strings.EqualFold(caller, l.roles.Operator)
}

func (l *Ledger) isRelayer(caller string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.roles.Relayer != "" && strings.EqualFold(caller, l.roles.Relayer)
}

func (l *Ledger) isPaused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

func (l *Ledger) treasuryAddress() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.treasury
}

func (l *Ledger) publish(eventType realtime.EventType, data map[string]interface{}) {
	if l.events != nil {
		l.events.Publish(eventType, data)
	}
}

func (l *Ledger) reject(reason string, err error) error {
	metrics.SplitExecutionFailuresTotal.WithLabelValues(reason).Inc()
	return err
}
