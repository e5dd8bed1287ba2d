package postgres

import (
	"context"
	"fmt"

	"merchant-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

// Transactor implements ports.DBTransactor using pgxpool.Pool.
type Transactor struct {
	pool Pool
}

// NewTransactor creates a new Transactor wrapping the connection pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool}
}

// Begin starts a new database transaction. The returned value is a pgx.Tx.
func (t *Transactor) Begin(ctx context.Context) (ports.Tx, error) {
	tx, err := t.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// asPgxTx recovers the pgx transaction behind a ports.Tx.
func asPgxTx(tx ports.Tx) (pgx.Tx, error) {
	pt, ok := tx.(pgx.Tx)
	if !ok || pt == nil {
		return nil, fmt.Errorf("postgres: unexpected transaction type %T", tx)
	}
	return pt, nil
}
