// Package agreements stores bilateral collaboration agreements between
// agents and answers which agreements apply to a settlement.
//
// Flow:
//  1. Agent onboarding registers an agreement (hire/delegate/referral/...)
//  2. The split builder asks for agreements applicable to a collaboration
//     intent (requester/executor/referrer)
//  3. Agreements expire or are terminated out of band; the registry only
//     filters on status and validity window
package agreements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mbd888/splitpay/internal/idgen"
	"github.com/mbd888/splitpay/internal/validation"
)

var (
	ErrAgreementNotFound = errors.New("agreement not found")
	ErrInvalidAgreement  = errors.New("invalid agreement")
	ErrNotActive         = errors.New("agreement is not active")
)

// Type classifies the relationship between the two agents.
type Type string

const (
	TypeHire        Type = "hire"        // primary hires secondary
	TypeDelegate    Type = "delegate"    // primary delegates to secondary
	TypePartner     Type = "partner"     // equal partnership
	TypeReferral    Type = "referral"    // primary refers business to secondary
	TypeSubcontract Type = "subcontract" // primary subcontracts to secondary
)

// ParseType converts a wire string into an agreement Type.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeHire, TypeDelegate, TypePartner, TypeReferral, TypeSubcontract:
		return Type(s), nil
	}
	return "", fmt.Errorf("%w: unknown type %q", ErrInvalidAgreement, s)
}

// Status is the lifecycle state of an agreement.
type Status string

const (
	StatusActive     Status = "active"
	StatusExpired    Status = "expired"
	StatusTerminated Status = "terminated"
)

// Terms define how revenue is shared under an agreement. RevenueShareBps is
// the secondary agent's share of the incentive pool. FixedFee, MinAmount and
// MaxAmount are optional decimal strings in whole units.
type Terms struct {
	RevenueShareBps int    `json:"revenueShareBps"`
	FixedFee        string `json:"fixedFee,omitempty"`
	MinAmount       string `json:"minAmount,omitempty"`
	MaxAmount       string `json:"maxAmount,omitempty"`
}

// Agreement is a bilateral collaboration agreement between two agents.
type Agreement struct {
	ID             string     `json:"id"`
	PrimaryAgent   string     `json:"primaryAgent"`
	SecondaryAgent string     `json:"secondaryAgent"`
	Type           Type       `json:"type"`
	Terms          Terms      `json:"terms"`
	ValidFrom      time.Time  `json:"validFrom"`
	ValidTo        *time.Time `json:"validTo,omitempty"`
	Status         Status     `json:"status"`
	Note           string     `json:"note,omitempty"` // display only
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// InWindow reports whether the agreement's validity window covers now.
func (a *Agreement) InWindow(now time.Time) bool {
	if now.Before(a.ValidFrom) {
		return false
	}
	if a.ValidTo != nil && now.After(*a.ValidTo) {
		return false
	}
	return true
}

// Touches reports whether the agreement involves the given agent on either side.
func (a *Agreement) Touches(agent string) bool {
	return a.PrimaryAgent == agent || a.SecondaryAgent == agent
}

// Store persists agreements.
type Store interface {
	Create(ctx context.Context, a *Agreement) error
	Get(ctx context.Context, id string) (*Agreement, error)
	Update(ctx context.Context, a *Agreement) error
	// ListByPair returns agreements between the exact (primary, secondary) pair.
	ListByPair(ctx context.Context, primary, secondary string) ([]*Agreement, error)
	// ListByAgent returns agreements touching the agent on either side.
	ListByAgent(ctx context.Context, agent string) ([]*Agreement, error)
}

// Registry answers which agreements apply to a collaboration intent.
type Registry struct {
	store Store
}

// NewRegistry creates a new agreement registry.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store}
}

// RegisterRequest is the request body for POST /v1/agreements.
type RegisterRequest struct {
	PrimaryAgent   string `json:"primaryAgent" binding:"required"`
	SecondaryAgent string `json:"secondaryAgent" binding:"required"`
	Type           string `json:"type" binding:"required"`
	Terms          Terms  `json:"terms"`
	ValidTo        string `json:"validTo,omitempty"` // RFC3339; empty = open-ended
	Note           string `json:"note,omitempty"`
}

// Register creates a new active agreement. Writes belong to the onboarding
// flow; the split path only ever reads.
func (r *Registry) Register(ctx context.Context, req RegisterRequest) (*Agreement, error) {
	typ, err := ParseType(req.Type)
	if err != nil {
		return nil, err
	}

	primary := validation.SanitizeAddress(req.PrimaryAgent)
	secondary := validation.SanitizeAddress(req.SecondaryAgent)
	if !validation.IsValidAddress(primary) || !validation.IsValidAddress(secondary) {
		return nil, fmt.Errorf("%w: agent addresses must be valid addresses", ErrInvalidAgreement)
	}
	if primary == secondary {
		return nil, fmt.Errorf("%w: agents must differ", ErrInvalidAgreement)
	}
	if req.Terms.RevenueShareBps < 0 || req.Terms.RevenueShareBps > 10000 {
		return nil, fmt.Errorf("%w: revenueShareBps must be 0..10000", ErrInvalidAgreement)
	}

	var validTo *time.Time
	if req.ValidTo != "" {
		t, err := time.Parse(time.RFC3339, req.ValidTo)
		if err != nil {
			return nil, fmt.Errorf("%w: validTo must be RFC3339", ErrInvalidAgreement)
		}
		validTo = &t
	}

	now := time.Now()
	a := &Agreement{
		ID:             idgen.WithPrefix("agr_"),
		PrimaryAgent:   primary,
		SecondaryAgent: secondary,
		Type:           typ,
		Terms:          req.Terms,
		ValidFrom:      now,
		ValidTo:        validTo,
		Status:         StatusActive,
		Note:           req.Note,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := r.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create agreement: %w", err)
	}
	return a, nil
}

// Terminate marks an agreement terminated. Out-of-band lifecycle operation.
func (r *Registry) Terminate(ctx context.Context, id string) (*Agreement, error) {
	a, err := r.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusActive {
		return nil, ErrNotActive
	}
	a.Status = StatusTerminated
	a.UpdatedAt = time.Now()
	if err := r.store.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to terminate agreement: %w", err)
	}
	return a, nil
}

// Get returns an agreement by ID.
func (r *Registry) Get(ctx context.Context, id string) (*Agreement, error) {
	return r.store.Get(ctx, id)
}

// ListByAgent returns all agreements touching the agent.
func (r *Registry) ListByAgent(ctx context.Context, agent string) ([]*Agreement, error) {
	return r.store.ListByAgent(ctx, validation.SanitizeAddress(agent))
}

// FindApplicable returns the agreements that apply to a collaboration intent:
// exact-pair lookups for (requester, executor), plus a scan of all referral
// agreements touching the referrer. Missing roles skip their lookup. Returns
// an empty slice, never an error, when nothing matches.
func (r *Registry) FindApplicable(ctx context.Context, requester, executor, referrer string, now time.Time) ([]*Agreement, error) {
	var out []*Agreement

	if requester != "" && executor != "" {
		pair, err := r.store.ListByPair(ctx,
			validation.SanitizeAddress(requester), validation.SanitizeAddress(executor))
		if err != nil {
			return nil, err
		}
		for _, a := range pair {
			if a.Status == StatusActive && a.InWindow(now) {
				out = append(out, a)
			}
		}
	}

	if referrer != "" {
		touching, err := r.store.ListByAgent(ctx, validation.SanitizeAddress(referrer))
		if err != nil {
			return nil, err
		}
		for _, a := range touching {
			if a.Type == TypeReferral && a.Status == StatusActive && a.InWindow(now) {
				out = append(out, a)
			}
		}
	}

	return out, nil
}
