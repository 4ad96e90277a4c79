package policy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	"github.com/jmorland/securepay-backend/internal/domain/audit"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
)

// Store reads and writes the single policy record. Reads must reflect the
// latest committed write so a policy change applies to the next payment.
type Store interface {
	Policy(ctx context.Context) (settings.Policy, error)
	Update(ctx context.Context, p settings.Policy) error
}

// AccountReader resolves the caller for the admin check.
type AccountReader interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
}

// Auditor records best-effort audit entries.
type Auditor interface {
	Record(ctx context.Context, actorID uuid.UUID, action audit.Action, entityType, entityID, details string)
}

// Service exposes the risk policy to admins.
type Service struct {
	store    Store
	accounts AccountReader
	auditor  Auditor
	logger   *slog.Logger
}

func NewService(store Store, accounts AccountReader, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{store: store, accounts: accounts, auditor: auditor, logger: logger}
}

// Get returns the current policy.
func (s *Service) Get(ctx context.Context) (settings.Policy, error) {
	return s.store.Policy(ctx)
}

// Update validates and persists a new policy. The change takes effect on the
// next scoring evaluation without a restart.
func (s *Service) Update(ctx context.Context, adminID uuid.UUID, p settings.Policy) error {
	admin, err := s.accounts.Get(ctx, adminID)
	if err != nil {
		return err
	}
	if admin.Role != account.RoleAdmin || admin.Status != account.StatusApproved {
		return domainerrors.NewForbiddenError("admin role required")
	}
	if err := p.Validate(); err != nil {
		return domainerrors.NewValidationError("INVALID_POLICY", err.Error())
	}
	if err := s.store.Update(ctx, p); err != nil {
		return err
	}

	s.auditor.Record(ctx, adminID, audit.ActionUpdateSettings, "settings", "policy",
		fmt.Sprintf("tx_limit=%.2f flag=%.2f block=%.2f", p.TxLimitAmount, p.FlagThreshold, p.BlockThreshold))
	s.logger.InfoContext(ctx, "risk policy updated",
		"admin_id", adminID,
		"flag_threshold", p.FlagThreshold,
		"block_threshold", p.BlockThreshold,
	)
	return nil
}
