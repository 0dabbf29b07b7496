package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"

	"github.com/lib/pq"
)

// PostgresStore persists settlement state in PostgreSQL. Balance mutations
// run in serializable transactions; the non-negative CHECK on pending
// balances backstops the service-level locking.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL settlement store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) CreatePlan(ctx context.Context, plan *SplitPlan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO split_plans (id, name, recipients, share_bps, roles,
			onramp_fee_bps, offramp_fee_bps, split_fee_bps, min_split_fee,
			active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		plan.ID, plan.Name, pq.Array(plan.Recipients), pq.Array(plan.ShareBps), pq.Array(plan.Roles),
		plan.FeeConfig.OnrampFeeBps, plan.FeeConfig.OfframpFeeBps,
		plan.FeeConfig.SplitFeeBps, plan.FeeConfig.MinSplitFee,
		plan.Active, plan.CreatedAt, plan.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) GetPlan(ctx context.Context, id string) (*SplitPlan, error) {
	plan := &SplitPlan{}
	var shareBps []sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, recipients, share_bps, roles,
			onramp_fee_bps, offramp_fee_bps, split_fee_bps, min_split_fee,
			active, created_at, updated_at
		FROM split_plans WHERE id = $1`, id,
	).Scan(
		&plan.ID, &plan.Name, pq.Array(&plan.Recipients), pq.Array(&shareBps), pq.Array(&plan.Roles),
		&plan.FeeConfig.OnrampFeeBps, &plan.FeeConfig.OfframpFeeBps,
		&plan.FeeConfig.SplitFeeBps, &plan.FeeConfig.MinSplitFee,
		&plan.Active, &plan.CreatedAt, &plan.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	plan.ShareBps = make([]int, len(shareBps))
	for i, v := range shareBps {
		plan.ShareBps[i] = int(v.Int64)
	}
	return plan, nil
}

func (s *PostgresStore) UpdatePlan(ctx context.Context, plan *SplitPlan) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE split_plans SET active = $2, updated_at = $3 WHERE id = $1`,
		plan.ID, plan.Active, plan.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrPlanNotFound
	}
	return nil
}

func (s *PostgresStore) ListPlans(ctx context.Context) ([]*SplitPlan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM split_plans ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*SplitPlan, 0, len(ids))
	for _, id := range ids {
		plan, err := s.GetPlan(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, plan)
	}
	return out, nil
}

func (s *PostgresStore) GetBalance(ctx context.Context, addr string) (*big.Int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT amount::TEXT FROM pending_balances WHERE address = $1`, addr,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt balance for %s: %q", addr, raw)
	}
	return amount, nil
}

func (s *PostgresStore) Credit(ctx context.Context, addr string, amount *big.Int) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pending_balances (address, amount, updated_at)
		VALUES ($1, $2::NUMERIC(30,0), NOW())
		ON CONFLICT (address) DO UPDATE SET
			amount     = pending_balances.amount + $2::NUMERIC(30,0),
			updated_at = NOW()`,
		addr, amount.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to credit balance: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) ZeroBalance(ctx context.Context, addr string) (*big.Int, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Self-join to return the pre-update amount in the same statement.
	var raw string
	err = tx.QueryRowContext(ctx, `
		UPDATE pending_balances p SET amount = 0, updated_at = NOW()
		FROM (SELECT address, amount FROM pending_balances WHERE address = $1 FOR UPDATE) prior
		WHERE p.address = prior.address
		RETURNING prior.amount::TEXT`,
		addr,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	prior, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("corrupt balance for %s: %q", addr, raw)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return prior, nil
}

func (s *PostgresStore) ApplyExecution(ctx context.Context, credits []CreditEntry, rec *ExecutionRecord) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	// Insert the record first so a duplicate session aborts before any
	// balance rows are touched.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO execution_records (id, plan_id, session_id, amount,
			platform_fee, mode, treasury_tx_hash, executed_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5::NUMERIC(20,6), $6, $7, $8)`,
		rec.ID, rec.PlanID, rec.SessionID, rec.Amount,
		rec.PlatformFee, rec.Mode, rec.TreasuryTxHash, rec.ExecutedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrDuplicateSession
	}
	if err != nil {
		return err
	}

	for _, c := range credits {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pending_balances (address, amount, updated_at)
			VALUES ($1, $2::NUMERIC(30,0), NOW())
			ON CONFLICT (address) DO UPDATE SET
				amount     = pending_balances.amount + $2::NUMERIC(30,0),
				updated_at = NOW()`,
			c.Address, c.Amount.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to credit %s: %w", c.Address, err)
		}
	}
	return tx.Commit()
}

func (s *PostgresStore) RecordExecution(ctx context.Context, rec *ExecutionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_records (id, plan_id, session_id, amount,
			platform_fee, mode, treasury_tx_hash, executed_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,6), $5::NUMERIC(20,6), $6, $7, $8)`,
		rec.ID, rec.PlanID, rec.SessionID, rec.Amount,
		rec.PlatformFee, rec.Mode, rec.TreasuryTxHash, rec.ExecutedAt,
	)
	if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
		return ErrDuplicateSession
	}
	return err
}

func (s *PostgresStore) HasExecution(ctx context.Context, planID, sessionID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM execution_records WHERE plan_id = $1 AND session_id = $2)`,
		planID, sessionID,
	).Scan(&exists)
	return exists, err
}

func (s *PostgresStore) ListExecutions(ctx context.Context, planID string, limit int) ([]*ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_id, session_id, amount::TEXT, platform_fee::TEXT,
			mode, COALESCE(treasury_tx_hash, ''), executed_at
		FROM execution_records
		WHERE plan_id = $1 ORDER BY executed_at DESC LIMIT $2`,
		planID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*ExecutionRecord
	for rows.Next() {
		rec := &ExecutionRecord{}
		if err := rows.Scan(&rec.ID, &rec.PlanID, &rec.SessionID, &rec.Amount,
			&rec.PlatformFee, &rec.Mode, &rec.TreasuryTxHash, &rec.ExecutedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
