package splitter

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

// PostgresChainStore persists multi-hop chains in PostgreSQL. The chain
// itself is stored as a JSON document keyed by root agent.
type PostgresChainStore struct {
	db *sql.DB
}

// NewPostgresChainStore creates a new PostgreSQL chain store.
func NewPostgresChainStore(db *sql.DB) *PostgresChainStore {
	return &PostgresChainStore{db: db}
}

func (s *PostgresChainStore) PutChain(ctx context.Context, rootAgentID string, chain []*ChainNode) error {
	doc, err := json.Marshal(chain)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO split_chains (root_agent_id, chain, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (root_agent_id)
		DO UPDATE SET chain = EXCLUDED.chain, updated_at = EXCLUDED.updated_at`,
		rootAgentID, doc, now, now,
	)
	return err
}

func (s *PostgresChainStore) GetChain(ctx context.Context, rootAgentID string) ([]*ChainNode, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT chain FROM split_chains WHERE root_agent_id = $1`, rootAgentID,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrChainNotFound
	}
	if err != nil {
		return nil, err
	}
	var chain []*ChainNode
	if err := json.Unmarshal(doc, &chain); err != nil {
		return nil, err
	}
	return chain, nil
}
