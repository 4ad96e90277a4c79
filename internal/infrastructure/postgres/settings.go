package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmorland/securepay-backend/internal/domain/settings"
)

// policyKey identifies the single settings row.
const policyKey = "risk_policy"

// SettingsRepository stores the risk policy as one keyed JSONB row. Reads
// always hit the database so a committed update governs the next payment
// with no cache invalidation step.
type SettingsRepository struct {
	store *Store
}

func NewSettingsRepository(store *Store) *SettingsRepository {
	return &SettingsRepository{store: store}
}

// Policy returns the stored policy, or the shipped defaults when no row
// exists yet.
func (r *SettingsRepository) Policy(ctx context.Context) (settings.Policy, error) {
	var raw []byte
	err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key = $1`, policyKey).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return settings.Default(), nil
	}
	if err != nil {
		return settings.Policy{}, fmt.Errorf("loading policy: %w", err)
	}

	var p settings.Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return settings.Policy{}, fmt.Errorf("decoding policy: %w", err)
	}
	return p, nil
}

// Update upserts the policy row.
func (r *SettingsRepository) Update(ctx context.Context, p settings.Policy) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding policy: %w", err)
	}
	_, err = r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
		policyKey, raw,
	)
	if err != nil {
		return fmt.Errorf("storing policy: %w", err)
	}
	return nil
}
