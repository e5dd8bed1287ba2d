package postgres

import (
	"context"
	"fmt"
)

// ledgerTables must exist for the store to serve requests. A reachable
// database without the schema is reported unhealthy.
var ledgerTables = []string{"wallets", "transactions"}

type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

// Ping verifies connectivity and that the ledger schema is migrated.
func (h *HealthCheck) Ping(ctx context.Context) error {
	var missing int
	err := h.pool.QueryRow(ctx,
		`SELECT count(*) FROM unnest($1::text[]) AS t(name) WHERE to_regclass(t.name) IS NULL`,
		ledgerTables,
	).Scan(&missing)
	if err != nil {
		return fmt.Errorf("checking ledger schema: %w", err)
	}
	if missing > 0 {
		return fmt.Errorf("ledger schema incomplete: %d of %d tables missing", missing, len(ledgerTables))
	}
	return nil
}

func (h *HealthCheck) Name() string { return "postgresql" }
