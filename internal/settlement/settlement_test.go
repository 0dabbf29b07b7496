package settlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/mbd888/splitpay/internal/fees"
	"github.com/mbd888/splitpay/internal/money"
	"github.com/mbd888/splitpay/internal/treasury"
)

const (
	ownerAddr    = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	operatorAddr = "0xcccccccccccccccccccccccccccccccccccccccc"
	relayerAddr  = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	treasuryAddr = "0xffffffffffffffffffffffffffffffffffffffff"

	recipientA = "0x1111111111111111111111111111111111111111"
	recipientB = "0x2222222222222222222222222222222222222222"
	recipientC = "0x3333333333333333333333333333333333333333"
)

func testLedger(t *testing.T) (*Ledger, *treasury.Recorder) {
	t.Helper()
	rec := treasury.NewRecorder("0xdddddddddddddddddddddddddddddddddddddddd")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roles := Roles{Owner: ownerAddr, Operator: operatorAddr, Relayer: relayerAddr}
	return New(NewMemoryStore(), rec, roles, treasuryAddr, nil, logger), rec
}

func mustAmount(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := money.Parse(s)
	if !ok {
		t.Fatalf("bad amount %q", s)
	}
	return v
}

func standardPlan(t *testing.T, l *Ledger) *SplitPlan {
	t.Helper()
	plan, err := l.CreateSplitPlan(context.Background(), CreatePlanRequest{
		Name:       "revenue split",
		Recipients: []string{recipientA, recipientB, recipientC},
		ShareBps:   []int{7000, 2000, 1000},
		Roles:      []string{"merchant", "referrer", "executor"},
		FeeConfig: fees.Config{
			OnrampFeeBps:  10,
			OfframpFeeBps: 10,
			SplitFeeBps:   30,
			MinSplitFee:   "0.1",
		},
	}, ownerAddr)
	if err != nil {
		t.Fatalf("CreateSplitPlan: %v", err)
	}
	return plan
}

func TestCreateSplitPlanOwnerOnly(t *testing.T) {
	l, _ := testLedger(t)
	_, err := l.CreateSplitPlan(context.Background(), CreatePlanRequest{
		Name:       "x",
		Recipients: []string{recipientA},
		ShareBps:   []int{10000},
		Roles:      []string{"merchant"},
	}, relayerAddr)
	if !errors.Is(err, ErrNotOwner) {
		t.Fatalf("want ErrNotOwner, got %v", err)
	}
}

func TestCreateSplitPlanValidation(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  CreatePlanRequest
	}{
		{"empty name", CreatePlanRequest{
			Recipients: []string{recipientA}, ShareBps: []int{10000}, Roles: []string{"m"},
		}},
		{"no recipients", CreatePlanRequest{Name: "p"}},
		{"length mismatch", CreatePlanRequest{
			Name:       "p",
			Recipients: []string{recipientA, recipientB},
			ShareBps:   []int{10000},
			Roles:      []string{"m", "r"},
		}},
		{"bad address", CreatePlanRequest{
			Name:       "p",
			Recipients: []string{"not-an-address"},
			ShareBps:   []int{10000},
			Roles:      []string{"m"},
		}},
		{"zero address", CreatePlanRequest{
			Name:       "p",
			Recipients: []string{"0x0000000000000000000000000000000000000000"},
			ShareBps:   []int{10000},
			Roles:      []string{"m"},
		}},
		{"shares do not sum to 10000", CreatePlanRequest{
			Name:       "p",
			Recipients: []string{recipientA, recipientB},
			ShareBps:   []int{7000, 2000},
			Roles:      []string{"m", "r"},
		}},
		{"non-positive share", CreatePlanRequest{
			Name:       "p",
			Recipients: []string{recipientA, recipientB},
			ShareBps:   []int{10000, 0},
			Roles:      []string{"m", "r"},
		}},
		{"fee rate above ceiling", CreatePlanRequest{
			Name:       "p",
			Recipients: []string{recipientA},
			ShareBps:   []int{10000},
			Roles:      []string{"m"},
			FeeConfig:  fees.Config{SplitFeeBps: 200},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.CreateSplitPlan(ctx, tc.req, ownerAddr)
			if !errors.Is(err, ErrInvalidPlan) {
				t.Fatalf("want ErrInvalidPlan, got %v", err)
			}
		})
	}
}

func TestExecuteSplitOnramp(t *testing.T) {
	l, rec := testLedger(t)
	ctx := context.Background()
	plan := standardPlan(t, l)

	execRec, err := l.ExecuteSplit(ctx, plan.ID, "sess-1", mustAmount(t, "1000"), fees.ModeOnramp, relayerAddr)
	if err != nil {
		t.Fatalf("ExecuteSplit: %v", err)
	}

	// splitFee 0.30% of 1000 is 3, onramp leg 0.10% is 1.
	if execRec.PlatformFee != "4.000000" {
		t.Errorf("platform fee = %s, want 4.000000", execRec.PlatformFee)
	}

	want := map[string]string{
		recipientA: "697.200000",
		recipientB: "199.200000",
		recipientC: "99.600000",
	}
	total := big.NewInt(0)
	for addr, exp := range want {
		bal, err := l.GetPendingBalance(ctx, addr)
		if err != nil {
			t.Fatalf("GetPendingBalance(%s): %v", addr, err)
		}
		if got := money.Format(bal); got != exp {
			t.Errorf("balance %s = %s, want %s", addr, got, exp)
		}
		total.Add(total, bal)
	}
	total.Add(total, rec.TotalTo(treasuryAddr))
	if total.Cmp(mustAmount(t, "1000")) != 0 {
		t.Errorf("credits + sweep = %s, want 1000.000000", money.Format(total))
	}
	if got := rec.TotalTo(treasuryAddr); money.Format(got) != "4.000000" {
		t.Errorf("treasury sweep = %s, want 4.000000", money.Format(got))
	}
}

func TestExecuteSplitMinSplitFeeFloor(t *testing.T) {
	l, _ := testLedger(t)
	plan := standardPlan(t, l)

	// 0.30% of 10 is 0.03, below the 0.1 floor; onramp leg adds 0.01.
	execRec, err := l.ExecuteSplit(context.Background(), plan.ID, "sess-min", mustAmount(t, "10"), fees.ModeOnramp, relayerAddr)
	if err != nil {
		t.Fatalf("ExecuteSplit: %v", err)
	}
	if execRec.PlatformFee != "0.110000" {
		t.Errorf("platform fee = %s, want 0.110000", execRec.PlatformFee)
	}
}

func TestExecuteSplitCryptoDirectNoFee(t *testing.T) {
	l, rec := testLedger(t)
	plan := standardPlan(t, l)

	execRec, err := l.ExecuteSplit(context.Background(), plan.ID, "sess-cd", mustAmount(t, "1000"), fees.ModeCryptoDirect, relayerAddr)
	if err != nil {
		t.Fatalf("ExecuteSplit: %v", err)
	}
	if execRec.PlatformFee != "0.000000" {
		t.Errorf("platform fee = %s, want 0.000000", execRec.PlatformFee)
	}
	if got := rec.TotalTo(treasuryAddr); got.Sign() != 0 {
		t.Errorf("treasury sweep = %s, want 0", money.Format(got))
	}
}

func TestExecuteSplitFloorDustJoinsSweep(t *testing.T) {
	l, rec := testLedger(t)
	ctx := context.Background()
	plan, err := l.CreateSplitPlan(ctx, CreatePlanRequest{
		Name:       "thirds",
		Recipients: []string{recipientA, recipientB, recipientC},
		ShareBps:   []int{3333, 3333, 3334},
		Roles:      []string{"a", "b", "c"},
	}, ownerAddr)
	if err != nil {
		t.Fatalf("CreateSplitPlan: %v", err)
	}

	// 100 micro-units across thirds floors to 33+33+33; 1 micro-unit of
	// dust must ride with the sweep, not vanish.
	amount := big.NewInt(100)
	if _, err := l.ExecuteSplit(ctx, plan.ID, "sess-dust", amount, fees.ModeCryptoDirect, relayerAddr); err != nil {
		t.Fatalf("ExecuteSplit: %v", err)
	}

	total := rec.TotalTo(treasuryAddr)
	for _, addr := range []string{recipientA, recipientB, recipientC} {
		bal, err := l.GetPendingBalance(ctx, addr)
		if err != nil {
			t.Fatal(err)
		}
		total.Add(total, bal)
	}
	if total.Cmp(amount) != 0 {
		t.Errorf("credits + sweep = %s micro-units, want 100", total)
	}
	if rec.TotalTo(treasuryAddr).Cmp(big.NewInt(1)) != 0 {
		t.Errorf("dust sweep = %s, want 1 micro-unit", rec.TotalTo(treasuryAddr))
	}
}

func TestExecuteSplitDuplicateSession(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	plan := standardPlan(t, l)

	if _, err := l.ExecuteSplit(ctx, plan.ID, "sess-dup", mustAmount(t, "100"), fees.ModeOnramp, relayerAddr); err != nil {
		t.Fatalf("first execution: %v", err)
	}
	before, _ := l.GetPendingBalance(ctx, recipientA)

	_, err := l.ExecuteSplit(ctx, plan.ID, "sess-dup", mustAmount(t, "100"), fees.ModeOnramp, relayerAddr)
	if !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("want ErrDuplicateSession, got %v", err)
	}

	after, _ := l.GetPendingBalance(ctx, recipientA)
	if before.Cmp(after) != 0 {
		t.Errorf("balance changed on duplicate: %s -> %s", money.Format(before), money.Format(after))
	}

	// Same session under a different plan is a distinct settlement.
	other := standardPlan(t, l)
	if _, err := l.ExecuteSplit(ctx, other.ID, "sess-dup", mustAmount(t, "100"), fees.ModeOnramp, relayerAddr); err != nil {
		t.Fatalf("same session, different plan: %v", err)
	}
}

func TestExecuteSplitRejections(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	plan := standardPlan(t, l)
	amount := mustAmount(t, "100")

	if _, err := l.ExecuteSplit(ctx, plan.ID, "s1", amount, fees.ModeOnramp, ownerAddr); !errors.Is(err, ErrNotRelayer) {
		t.Errorf("owner as caller: want ErrNotRelayer, got %v", err)
	}
	if _, err := l.ExecuteSplit(ctx, plan.ID, "s1", big.NewInt(0), fees.ModeOnramp, relayerAddr); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("zero amount: want ErrInvalidAmount, got %v", err)
	}
	if _, err := l.ExecuteSplit(ctx, plan.ID, "", amount, fees.ModeOnramp, relayerAddr); !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("empty session: want ErrInvalidAmount, got %v", err)
	}
	if _, err := l.ExecuteSplit(ctx, "plan_missing", "s1", amount, fees.ModeOnramp, relayerAddr); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("unknown plan: want ErrPlanNotFound, got %v", err)
	}

	if _, err := l.SetSplitPlanActive(ctx, plan.ID, false, ownerAddr); err != nil {
		t.Fatalf("SetSplitPlanActive: %v", err)
	}
	if _, err := l.ExecuteSplit(ctx, plan.ID, "s1", amount, fees.ModeOnramp, relayerAddr); !errors.Is(err, ErrPlanInactive) {
		t.Errorf("inactive plan: want ErrPlanInactive, got %v", err)
	}
}

func TestPauseBlocksExecution(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	plan := standardPlan(t, l)
	amount := mustAmount(t, "100")

	if err := l.Pause(recipientA); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("random caller pause: want ErrNotOwner, got %v", err)
	}
	if err := l.Pause(operatorAddr); err != nil {
		t.Fatalf("operator pause: %v", err)
	}
	if !l.Paused() {
		t.Fatal("ledger not paused")
	}
	if _, err := l.ExecuteSplit(ctx, plan.ID, "s1", amount, fees.ModeOnramp, relayerAddr); !errors.Is(err, ErrPaused) {
		t.Fatalf("want ErrPaused, got %v", err)
	}
	if err := l.Unpause(ownerAddr); err != nil {
		t.Fatalf("owner unpause: %v", err)
	}
	if _, err := l.ExecuteSplit(ctx, plan.ID, "s1", amount, fees.ModeOnramp, relayerAddr); err != nil {
		t.Fatalf("execute after unpause: %v", err)
	}
}

func TestClaimAll(t *testing.T) {
	l, rec := testLedger(t)
	ctx := context.Background()
	plan := standardPlan(t, l)

	if _, err := l.ExecuteSplit(ctx, plan.ID, "sess-c", mustAmount(t, "1000"), fees.ModeOnramp, relayerAddr); err != nil {
		t.Fatalf("ExecuteSplit: %v", err)
	}
	before, _ := l.GetPendingBalance(ctx, recipientA)
	if before.Sign() == 0 {
		t.Fatal("expected a pending balance before claim")
	}

	result, err := l.ClaimAll(ctx, recipientA)
	if err != nil {
		t.Fatalf("ClaimAll: %v", err)
	}
	if result.AmountRaw.Cmp(before) != 0 {
		t.Errorf("claimed %s, want %s", money.Format(result.AmountRaw), money.Format(before))
	}
	if got := rec.TotalTo(recipientA); got.Cmp(before) != 0 {
		t.Errorf("transferred %s, want %s", money.Format(got), money.Format(before))
	}
	after, _ := l.GetPendingBalance(ctx, recipientA)
	if after.Sign() != 0 {
		t.Errorf("balance after claim = %s, want zero", money.Format(after))
	}

	if _, err := l.ClaimAll(ctx, recipientA); !errors.Is(err, ErrNothingToClaim) {
		t.Errorf("second claim: want ErrNothingToClaim, got %v", err)
	}
}

// failingTransferor rejects every transfer.
type failingTransferor struct{}

func (failingTransferor) Address() string { return "0x0" }

func (failingTransferor) Transfer(ctx context.Context, to string, amount *big.Int) (*treasury.TransferResult, error) {
	return nil, errors.New("rpc unavailable")
}

func TestClaimRestoresBalanceOnPayoutFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roles := Roles{Owner: ownerAddr, Relayer: relayerAddr}
	l := New(store, failingTransferor{}, roles, treasuryAddr, nil, logger)

	amount := mustAmount(t, "12.5")
	if err := store.Credit(ctx, recipientA, amount); err != nil {
		t.Fatalf("Credit: %v", err)
	}

	if _, err := l.ClaimAll(ctx, recipientA); err == nil {
		t.Fatal("expected payout failure")
	}
	bal, err := l.GetPendingBalance(ctx, recipientA)
	if err != nil {
		t.Fatal(err)
	}
	if bal.Cmp(amount) != 0 {
		t.Errorf("balance after failed payout = %s, want %s", money.Format(bal), money.Format(amount))
	}
}

// flakyStore fails the first n execution commits, then recovers.
type flakyStore struct {
	*MemoryStore
	failures int
}

func (s *flakyStore) ApplyExecution(ctx context.Context, credits []CreditEntry, rec *ExecutionRecord) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("connection reset")
	}
	return s.MemoryStore.ApplyExecution(ctx, credits, rec)
}

func TestExecuteSplitCommitFailureLeavesNoState(t *testing.T) {
	ctx := context.Background()
	store := &flakyStore{MemoryStore: NewMemoryStore(), failures: 1}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	roles := Roles{Owner: ownerAddr, Relayer: relayerAddr}
	l := New(store, treasury.NewRecorder("0xdddddddddddddddddddddddddddddddddddddddd"), roles, treasuryAddr, nil, logger)
	plan := standardPlan(t, l)

	amount := mustAmount(t, "1000")
	if _, err := l.ExecuteSplit(ctx, plan.ID, "sess-flaky", amount, fees.ModeOnramp, relayerAddr); err == nil {
		t.Fatal("expected commit failure")
	}

	// A rejected execution leaves every balance at zero.
	for _, addr := range []string{recipientA, recipientB, recipientC} {
		bal, err := l.GetPendingBalance(ctx, addr)
		if err != nil {
			t.Fatalf("GetPendingBalance(%s): %v", addr, err)
		}
		if bal.Sign() != 0 {
			t.Fatalf("balance %s = %s after rejected execution, want 0", addr, money.Format(bal))
		}
	}

	// The session was never recorded, so the relayer's retry settles it
	// exactly once.
	if _, err := l.ExecuteSplit(ctx, plan.ID, "sess-flaky", amount, fees.ModeOnramp, relayerAddr); err != nil {
		t.Fatalf("retry after store recovery: %v", err)
	}
	bal, err := l.GetPendingBalance(ctx, recipientA)
	if err != nil {
		t.Fatal(err)
	}
	if got := money.Format(bal); got != "697.200000" {
		t.Errorf("balance after retry = %s, want 697.200000", got)
	}
	if _, err := l.ExecuteSplit(ctx, plan.ID, "sess-flaky", amount, fees.ModeOnramp, relayerAddr); !errors.Is(err, ErrDuplicateSession) {
		t.Fatalf("third submission: want ErrDuplicateSession, got %v", err)
	}
}

func TestListExecutions(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	plan := standardPlan(t, l)

	for _, sess := range []string{"s1", "s2", "s3"} {
		if _, err := l.ExecuteSplit(ctx, plan.ID, sess, mustAmount(t, "100"), fees.ModeOnramp, relayerAddr); err != nil {
			t.Fatalf("ExecuteSplit(%s): %v", sess, err)
		}
	}

	recs, err := l.ListExecutions(ctx, plan.ID, 2)
	if err != nil {
		t.Fatalf("ListExecutions: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}
	if recs[0].SessionID != "s3" {
		t.Errorf("newest first: got %s, want s3", recs[0].SessionID)
	}
}

func TestAdminRoleRotation(t *testing.T) {
	l, _ := testLedger(t)
	ctx := context.Background()
	plan := standardPlan(t, l)
	amount := mustAmount(t, "100")

	newRelayer := "0x4444444444444444444444444444444444444444"
	if err := l.SetRelayer(relayerAddr, newRelayer); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("non-owner rotation: want ErrNotOwner, got %v", err)
	}
	if err := l.SetRelayer(ownerAddr, newRelayer); err != nil {
		t.Fatalf("SetRelayer: %v", err)
	}

	if _, err := l.ExecuteSplit(ctx, plan.ID, "s1", amount, fees.ModeOnramp, relayerAddr); !errors.Is(err, ErrNotRelayer) {
		t.Errorf("old relayer: want ErrNotRelayer, got %v", err)
	}
	// Role comparison is case-insensitive.
	if _, err := l.ExecuteSplit(ctx, plan.ID, "s2", amount, fees.ModeOnramp, "0x"+strings.ToUpper(newRelayer[2:])); err != nil {
		t.Errorf("uppercase new relayer: %v", err)
	}
}
