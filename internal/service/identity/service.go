package identity

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	"github.com/jmorland/securepay-backend/internal/domain/audit"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
	"github.com/jmorland/securepay-backend/internal/domain/values"
)

// AccountStore persists accounts.
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	// GetByEmail returns nil, nil when no account has the email.
	GetByEmail(ctx context.Context, email string) (*account.Account, error)
	Create(ctx context.Context, a *account.Account) error
	Update(ctx context.Context, a *account.Account) error
	ListByStatus(ctx context.Context, status account.Status) ([]*account.Account, error)
}

// PolicyReader yields the live policy; approval reads the default starting
// balance from it.
type PolicyReader interface {
	Policy(ctx context.Context) (settings.Policy, error)
}

// Auditor records best-effort audit entries.
type Auditor interface {
	Record(ctx context.Context, actorID uuid.UUID, action audit.Action, entityType, entityID, details string)
}

// Service handles registration and the admin approval workflow. New accounts
// start pending with a zero balance; approval grants customers the configured
// starting balance.
type Service struct {
	accounts AccountStore
	policy   PolicyReader
	auditor  Auditor
	logger   *slog.Logger
}

func NewService(accounts AccountStore, policy PolicyReader, auditor Auditor, logger *slog.Logger) *Service {
	return &Service{accounts: accounts, policy: policy, auditor: auditor, logger: logger}
}

// Register creates a pending account. The insert is retried briefly on
// transient storage failures; before each attempt the email is re-checked so
// a retry after a half-visible success cannot create a duplicate.
func (s *Service) Register(ctx context.Context, email, name, phone string, role account.Role) (*account.Account, error) {
	a, err := account.NewAccount(email, name, phone, role)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_REGISTRATION", err.Error())
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = time.Second

	op := func() error {
		existing, err := s.accounts.GetByEmail(ctx, a.Email)
		if err != nil {
			return err
		}
		if existing != nil {
			return backoff.Permanent(domainerrors.NewConflictError("EMAIL_TAKEN", "an account with this email already exists"))
		}
		return s.accounts.Create(ctx, a)
	}
	if err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, 3), ctx)); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, a.ID, audit.ActionRegisterUser, "account", a.ID.String(),
		fmt.Sprintf("email=%s role=%s", a.Email, a.Role))
	s.logger.InfoContext(ctx, "account registered", "account_id", a.ID, "role", a.Role.String())
	return a, nil
}

// Approve activates a pending account. Customers receive the configured
// default starting balance; investigators and admins start at zero.
func (s *Service) Approve(ctx context.Context, adminID, userID uuid.UUID) (*account.Account, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	a, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	starting := values.Zero(values.USD)
	if a.Role == account.RoleCustomer {
		pol, err := s.policy.Policy(ctx)
		if err != nil {
			return nil, err
		}
		starting, err = values.NewMoneyFromFloat(pol.DefaultUserBalance, values.USD)
		if err != nil {
			return nil, err
		}
	}
	if err := a.Approve(starting); err != nil {
		return nil, domainerrors.NewConflictError("NOT_APPROVABLE", err.Error())
	}
	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, adminID, audit.ActionApproveUser, "account", userID.String(),
		fmt.Sprintf("starting_balance=%s", starting))
	return a, nil
}

// Reject declines a pending account.
func (s *Service) Reject(ctx context.Context, adminID, userID uuid.UUID) (*account.Account, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	a, err := s.accounts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := a.Reject(); err != nil {
		return nil, domainerrors.NewConflictError("NOT_REJECTABLE", err.Error())
	}
	if err := s.accounts.Update(ctx, a); err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, adminID, audit.ActionRejectUser, "account", userID.String(), "registration rejected")
	return a, nil
}

// ListPending returns accounts awaiting an admin decision.
func (s *Service) ListPending(ctx context.Context, adminID uuid.UUID) ([]*account.Account, error) {
	if err := s.requireAdmin(ctx, adminID); err != nil {
		return nil, err
	}
	return s.accounts.ListByStatus(ctx, account.StatusPending)
}

// Get loads one account.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return s.accounts.Get(ctx, id)
}

func (s *Service) requireAdmin(ctx context.Context, adminID uuid.UUID) error {
	admin, err := s.accounts.Get(ctx, adminID)
	if err != nil {
		return err
	}
	if admin.Role != account.RoleAdmin || admin.Status != account.StatusApproved {
		return domainerrors.NewForbiddenError("admin role required")
	}
	return nil
}
