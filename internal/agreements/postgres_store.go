package agreements

import (
	"context"
	"database/sql"
)

// PostgresStore persists agreements in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL agreements store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const agreementCols = `id, primary_agent, secondary_agent, type, revenue_share_bps,
		fixed_fee, min_amount, max_amount, valid_from, valid_to, status, note,
		created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, a *Agreement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agreements (id, primary_agent, secondary_agent, type, revenue_share_bps,
			fixed_fee, min_amount, max_amount, valid_from, valid_to, status, note,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.PrimaryAgent, a.SecondaryAgent, a.Type, a.Terms.RevenueShareBps,
		a.Terms.FixedFee, a.Terms.MinAmount, a.Terms.MaxAmount,
		a.ValidFrom, a.ValidTo, a.Status, a.Note, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Agreement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+agreementCols+` FROM agreements WHERE id = $1`, id)
	a, err := scanAgreement(row)
	if err == sql.ErrNoRows {
		return nil, ErrAgreementNotFound
	}
	return a, err
}

func (s *PostgresStore) Update(ctx context.Context, a *Agreement) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE agreements SET revenue_share_bps=$2, fixed_fee=$3, min_amount=$4,
			max_amount=$5, valid_to=$6, status=$7, note=$8, updated_at=$9
		WHERE id = $1`,
		a.ID, a.Terms.RevenueShareBps, a.Terms.FixedFee, a.Terms.MinAmount,
		a.Terms.MaxAmount, a.ValidTo, a.Status, a.Note, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrAgreementNotFound
	}
	return nil
}

func (s *PostgresStore) ListByPair(ctx context.Context, primary, secondary string) ([]*Agreement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+agreementCols+` FROM agreements
		WHERE primary_agent = $1 AND secondary_agent = $2
		ORDER BY created_at DESC`, primary, secondary)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanAgreements(rows)
}

func (s *PostgresStore) ListByAgent(ctx context.Context, agent string) ([]*Agreement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+agreementCols+` FROM agreements
		WHERE primary_agent = $1 OR secondary_agent = $1
		ORDER BY created_at DESC`, agent)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanAgreements(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgreement(row rowScanner) (*Agreement, error) {
	a := &Agreement{}
	var validTo sql.NullTime
	err := row.Scan(
		&a.ID, &a.PrimaryAgent, &a.SecondaryAgent, &a.Type, &a.Terms.RevenueShareBps,
		&a.Terms.FixedFee, &a.Terms.MinAmount, &a.Terms.MaxAmount,
		&a.ValidFrom, &validTo, &a.Status, &a.Note, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if validTo.Valid {
		t := validTo.Time
		a.ValidTo = &t
	}
	return a, nil
}

func scanAgreements(rows *sql.Rows) ([]*Agreement, error) {
	var out []*Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
