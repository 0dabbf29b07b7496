package agreements

import (
	"context"
	"testing"
	"time"
)

const (
	addrA = "0x1111111111111111111111111111111111111111"
	addrB = "0x2222222222222222222222222222222222222222"
	addrC = "0x3333333333333333333333333333333333333333"
)

func newTestRegistry() *Registry {
	return NewRegistry(NewMemoryStore())
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	a, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent:   addrA,
		SecondaryAgent: addrB,
		Type:           "hire",
		Terms:          Terms{RevenueShareBps: 2000},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if a.Status != StatusActive {
		t.Errorf("expected active status, got %s", a.Status)
	}
	if a.Type != TypeHire {
		t.Errorf("expected hire type, got %s", a.Type)
	}
	if a.ID == "" {
		t.Error("expected generated ID")
	}

	got, err := reg.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.PrimaryAgent != addrA || got.SecondaryAgent != addrB {
		t.Errorf("round-trip mismatch: %+v", got)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	cases := []struct {
		name string
		req  RegisterRequest
	}{
		{"unknown type", RegisterRequest{PrimaryAgent: addrA, SecondaryAgent: addrB, Type: "barter"}},
		{"bad address", RegisterRequest{PrimaryAgent: "not-an-address", SecondaryAgent: addrB, Type: "hire"}},
		{"same agent", RegisterRequest{PrimaryAgent: addrA, SecondaryAgent: addrA, Type: "hire"}},
		{"bps too high", RegisterRequest{PrimaryAgent: addrA, SecondaryAgent: addrB, Type: "hire", Terms: Terms{RevenueShareBps: 10001}}},
		{"bad validTo", RegisterRequest{PrimaryAgent: addrA, SecondaryAgent: addrB, Type: "hire", ValidTo: "tomorrow"}},
	}
	for _, tc := range cases {
		if _, err := reg.Register(ctx, tc.req); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestTerminate(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	a, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent: addrA, SecondaryAgent: addrB, Type: "delegate",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	done, err := reg.Terminate(ctx, a.ID)
	if err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}
	if done.Status != StatusTerminated {
		t.Errorf("expected terminated, got %s", done.Status)
	}

	if _, err := reg.Terminate(ctx, a.ID); err != ErrNotActive {
		t.Errorf("expected ErrNotActive on double terminate, got %v", err)
	}
	if _, err := reg.Terminate(ctx, "agr_missing"); err != ErrAgreementNotFound {
		t.Errorf("expected ErrAgreementNotFound, got %v", err)
	}
}

func TestFindApplicablePair(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	now := time.Now()

	hire, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent: addrA, SecondaryAgent: addrB, Type: "hire",
		Terms: Terms{FixedFee: "5"},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// Reversed pair must not match.
	if _, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent: addrB, SecondaryAgent: addrA, Type: "hire",
	}); err != nil {
		t.Fatalf("Register reversed failed: %v", err)
	}

	found, err := reg.FindApplicable(ctx, addrA, addrB, "", now)
	if err != nil {
		t.Fatalf("FindApplicable failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != hire.ID {
		t.Fatalf("expected exactly the A->B hire agreement, got %d", len(found))
	}
}

func TestFindApplicableReferral(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	now := time.Now()

	// A referral agreement touching C applies regardless of which side C is on.
	ref, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent: addrA, SecondaryAgent: addrC, Type: "referral",
		Terms: Terms{RevenueShareBps: 1500},
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	// A non-referral agreement touching C must not surface via the referrer scan.
	if _, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent: addrC, SecondaryAgent: addrB, Type: "partner",
	}); err != nil {
		t.Fatalf("Register partner failed: %v", err)
	}

	found, err := reg.FindApplicable(ctx, "", "", addrC, now)
	if err != nil {
		t.Fatalf("FindApplicable failed: %v", err)
	}
	if len(found) != 1 || found[0].ID != ref.ID {
		t.Fatalf("expected only the referral agreement, got %d", len(found))
	}
}

func TestFindApplicableStatusAndWindow(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()
	now := time.Now()

	expired, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent: addrA, SecondaryAgent: addrB, Type: "hire",
		ValidTo: now.Add(-time.Hour).Format(time.RFC3339),
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	_ = expired

	terminated, err := reg.Register(ctx, RegisterRequest{
		PrimaryAgent: addrA, SecondaryAgent: addrB, Type: "hire",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if _, err := reg.Terminate(ctx, terminated.ID); err != nil {
		t.Fatalf("Terminate failed: %v", err)
	}

	found, err := reg.FindApplicable(ctx, addrA, addrB, "", now)
	if err != nil {
		t.Fatalf("FindApplicable failed: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected no applicable agreements, got %d", len(found))
	}
}

func TestFindApplicableEmptyRoles(t *testing.T) {
	ctx := context.Background()
	reg := newTestRegistry()

	found, err := reg.FindApplicable(ctx, "", "", "", time.Now())
	if err != nil {
		t.Fatalf("FindApplicable failed: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("expected empty result, got %d", len(found))
	}
}
