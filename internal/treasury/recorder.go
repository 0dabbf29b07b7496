package treasury

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/mbd888/splitpay/internal/money"
)

// Recorder is a Transferor that records transfers instead of submitting
// them. Used in development (no PRIVATE_KEY configured) and in tests.
type Recorder struct {
	mu        sync.Mutex
	from      string
	transfers []*TransferResult
}

var _ Transferor = (*Recorder)(nil)

// NewRecorder creates a recording transferor claiming the given from address.
func NewRecorder(from string) *Recorder {
	return &Recorder{from: from}
}

func (r *Recorder) Address() string {
	return r.from
}

func (r *Recorder) Transfer(ctx context.Context, to string, amount *big.Int) (*TransferResult, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	result := &TransferResult{
		TxHash:    fmt.Sprintf("0xdev%060d", len(r.transfers)),
		From:      r.from,
		To:        to,
		Amount:    money.Format(amount),
		AmountRaw: new(big.Int).Set(amount),
		Nonce:     uint64(len(r.transfers)),
	}
	r.transfers = append(r.transfers, result)
	return result, nil
}

// Transfers returns a snapshot of everything recorded so far.
func (r *Recorder) Transfers() []*TransferResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*TransferResult, len(r.transfers))
	copy(out, r.transfers)
	return out
}

// TotalTo sums recorded transfer amounts to a given address.
func (r *Recorder) TotalTo(to string) *big.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := big.NewInt(0)
	for _, t := range r.transfers {
		if t.To == to {
			total.Add(total, t.AmountRaw)
		}
	}
	return total
}
