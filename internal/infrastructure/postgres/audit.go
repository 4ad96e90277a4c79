package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmorland/securepay-backend/internal/domain/audit"
)

// AuditRepository is the append-only audit trail. Entries carry a
// client-generated id, so a retried insert after a half-visible success is
// absorbed by ON CONFLICT DO NOTHING rather than duplicated.
type AuditRepository struct {
	store *Store
}

func NewAuditRepository(store *Store) *AuditRepository {
	return &AuditRepository{store: store}
}

// Append inserts one entry. Idempotent per entry id.
func (r *AuditRepository) Append(ctx context.Context, e *audit.Entry) error {
	_, err := r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action, entity_type, entity_id, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ActorID, string(e.Action), e.EntityType, e.EntityID, e.Details, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("appending audit entry: %w", err)
	}
	return nil
}

// ListByEntity returns the trail for one entity, newest first.
func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*audit.Entry, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `
		SELECT id, actor_id, action, entity_type, entity_id, details, created_at
		FROM audit_log
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3`,
		entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e      audit.Entry
			action string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ListRecent returns the newest entries across all entities.
func (r *AuditRepository) ListRecent(ctx context.Context, since time.Time, limit int) ([]*audit.Entry, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `
		SELECT id, actor_id, action, entity_type, entity_id, details, created_at
		FROM audit_log
		WHERE created_at >= $1
		ORDER BY created_at DESC
		LIMIT $2`,
		since, limit)
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []*audit.Entry
	for rows.Next() {
		var (
			e      audit.Entry
			action string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &action, &e.EntityType, &e.EntityID, &e.Details, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Action = audit.Action(action)
		out = append(out, &e)
	}
	return out, rows.Err()
}
