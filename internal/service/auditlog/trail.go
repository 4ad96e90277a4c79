package auditlog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	"github.com/jmorland/securepay-backend/internal/domain/audit"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
)

const (
	defaultTrailLimit  = 100
	maxTrailLimit      = 500
	defaultTrailWindow = 30 * 24 * time.Hour
)

// TrailStore reads the trail back out for review.
type TrailStore interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]*audit.Entry, error)
	ListRecent(ctx context.Context, since time.Time, limit int) ([]*audit.Entry, error)
}

// AccountReader resolves the caller for the admin check.
type AccountReader interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

// Trail is the admin-facing read side of the audit log.
type Trail struct {
	store    TrailStore
	accounts AccountReader
}

func NewTrail(store TrailStore, accounts AccountReader) *Trail {
	return &Trail{store: store, accounts: accounts}
}

// Recent returns the newest entries since the given time, newest first.
// A zero since defaults to the last 30 days.
func (t *Trail) Recent(ctx context.Context, adminID uuid.UUID, since time.Time, limit int) ([]*audit.Entry, error) {
	if err := t.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if since.IsZero() {
		since = time.Now().UTC().Add(-defaultTrailWindow)
	}
	return t.store.ListRecent(ctx, since, clampLimit(limit))
}

// ForEntity returns the trail for one entity, newest first.
func (t *Trail) ForEntity(ctx context.Context, adminID uuid.UUID, entityType, entityID string, limit int) ([]*audit.Entry, error) {
	if err := t.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	if entityType == "" || entityID == "" {
		return nil, domainerrors.NewValidationError("INVALID_ENTITY", "entity type and id are required")
	}
	return t.store.ListByEntity(ctx, entityType, entityID, clampLimit(limit))
}

func (t *Trail) requireAdmin(ctx context.Context, adminID uuid.UUID) error {
	admin, err := t.accounts.Get(ctx, adminID)
	if err != nil {
		return err
	}
	if admin.Role != account.RoleAdmin || admin.Status != account.StatusApproved {
		return domainerrors.NewForbiddenError("admin role required")
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTrailLimit
	}
	if limit > maxTrailLimit {
		return maxTrailLimit
	}
	return limit
}
