package investigation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	"github.com/jmorland/securepay-backend/internal/domain/audit"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	caseinv "github.com/jmorland/securepay-backend/internal/domain/investigation"
	"github.com/jmorland/securepay-backend/internal/domain/payment"
)

// CaseStore persists investigation cases. ResolveGuarded must apply the
// update with a status compare-and-swap so two concurrent resolutions cannot
// both succeed.
type CaseStore interface {
	Get(ctx context.Context, id uuid.UUID) (*caseinv.Case, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*caseinv.Case, error)
	Update(ctx context.Context, c *caseinv.Case) error
	// ResolveGuarded writes the resolved case only if the stored row is not
	// already Resolved; it returns false when the guard failed.
	ResolveGuarded(ctx context.Context, c *caseinv.Case) (bool, error)
	// ListForInvestigator returns unassigned cases plus cases assigned to the
	// investigator, optionally filtered by status, newest first.
	ListForInvestigator(ctx context.Context, investigatorID uuid.UUID, status *caseinv.Status) ([]*caseinv.Case, error)
}

// AccountStore is the slice of account persistence case resolution needs.
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error)
	UpdateBalance(ctx context.Context, a *account.Account) error
}

// TransactionStore loads and finalizes the transaction linked to a case.
type TransactionStore interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Transaction, error)
	Update(ctx context.Context, t *payment.Transaction) error
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Auditor records best-effort audit entries.
type Auditor interface {
	Record(ctx context.Context, actorID uuid.UUID, action audit.Action, entityType, entityID, details string)
}

// Service drives the case lifecycle: assignment, review, and resolution with
// its balance effects.
type Service struct {
	cases        CaseStore
	accounts     AccountStore
	transactions TransactionStore
	tx           Transactor
	auditor      Auditor
	logger       *slog.Logger
}

func NewService(
	cases CaseStore,
	accounts AccountStore,
	transactions TransactionStore,
	tx Transactor,
	auditor Auditor,
	logger *slog.Logger,
) *Service {
	return &Service{
		cases:        cases,
		accounts:     accounts,
		transactions: transactions,
		tx:           tx,
		auditor:      auditor,
		logger:       logger,
	}
}

// ListCases returns the investigator's queue: unassigned cases plus their own,
// optionally filtered by status.
func (s *Service) ListCases(ctx context.Context, investigatorID uuid.UUID, status *caseinv.Status) ([]*caseinv.Case, error) {
	inv, err := s.accounts.Get(ctx, investigatorID)
	if err != nil {
		return nil, err
	}
	if !inv.IsApprovedInvestigator() && inv.Role != account.RoleAdmin {
		return nil, domainerrors.NewForbiddenError("investigator role required")
	}
	return s.cases.ListForInvestigator(ctx, investigatorID, status)
}

// AssignCase puts a queued case into review under the given investigator.
func (s *Service) AssignCase(ctx context.Context, caseID, investigatorID uuid.UUID) (*caseinv.Case, error) {
	inv, err := s.accounts.Get(ctx, investigatorID)
	if err != nil {
		return nil, err
	}
	if !inv.IsApprovedInvestigator() {
		return nil, domainerrors.NewForbiddenError("approved investigator role required")
	}

	var c *caseinv.Case
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err = s.cases.GetForUpdate(ctx, caseID)
		if err != nil {
			return err
		}
		if err := c.Assign(investigatorID); err != nil {
			return domainerrors.ErrCaseNotAssignable.WithCause(err)
		}
		return s.cases.Update(ctx, c)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, investigatorID, audit.ActionAssignCase, "case", caseID.String(), "case taken for review")
	return c, nil
}

// ResolveRequest carries an investigator's verdict on a case.
type ResolveRequest struct {
	CaseID         uuid.UUID
	InvestigatorID uuid.UUID
	Finding        caseinv.Finding
	Report         string
	// Confidence is the investigator's self-reported certainty hint in [0,1].
	// Recorded for audit; it does not alter the balance effect.
	Confidence float64
}

// ResolveCase closes a case and finalizes its transaction. A Safe finding on
// a blocked transaction re-validates the sender balance before moving funds;
// insufficient funds closes the transaction as RejectedInsufficientFunds
// instead of failing the resolution. The whole effect commits atomically, and
// a second resolution of the same case fails with AlreadyResolved.
func (s *Service) ResolveCase(ctx context.Context, req ResolveRequest) (*caseinv.Case, error) {
	if !req.Finding.IsVerdict() {
		return nil, domainerrors.NewValidationError("INVALID_FINDING", "finding must be Safe or Fraudulent")
	}
	inv, err := s.accounts.Get(ctx, req.InvestigatorID)
	if err != nil {
		return nil, err
	}
	if !inv.IsApprovedInvestigator() {
		return nil, domainerrors.NewForbiddenError("approved investigator role required")
	}

	var c *caseinv.Case
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		c, err = s.cases.GetForUpdate(ctx, req.CaseID)
		if err != nil {
			return err
		}
		if err := c.Resolve(req.Finding, req.Report); err != nil {
			return domainerrors.ErrAlreadyResolved.WithCause(err)
		}

		txn, err := s.transactions.GetForUpdate(ctx, c.TransactionID)
		if err != nil {
			return err
		}
		if err := s.finalizeTransaction(ctx, txn, req.Finding); err != nil {
			return err
		}
		if err := s.transactions.Update(ctx, txn); err != nil {
			return fmt.Errorf("finalizing transaction: %w", err)
		}

		ok, err := s.cases.ResolveGuarded(ctx, c)
		if err != nil {
			return err
		}
		if !ok {
			return domainerrors.ErrAlreadyResolved
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observeResolution(req.Finding)
	s.auditor.Record(ctx, req.InvestigatorID, audit.ActionResolveCase, "case", req.CaseID.String(),
		fmt.Sprintf("finding=%s confidence=%.2f", req.Finding, req.Confidence))
	s.logger.InfoContext(ctx, "case resolved",
		"case_id", req.CaseID,
		"transaction_id", c.TransactionID,
		"investigator_id", req.InvestigatorID,
		"finding", string(req.Finding),
	)
	return c, nil
}

// finalizeTransaction applies the verdict to the linked transaction inside
// the resolution's database transaction.
func (s *Service) finalizeTransaction(ctx context.Context, txn *payment.Transaction, finding caseinv.Finding) error {
	switch finding {
	case caseinv.FindingSafe:
		switch txn.Status {
		case payment.StatusBlocked:
			// Funds were held at creation; the balance may have changed
			// since, so re-validate under the row lock.
			if err := s.releaseHold(ctx, txn); err != nil {
				return err
			}
		case payment.StatusFlagged:
			return txn.ClearFlag()
		default:
			return domainerrors.NewConflictError("NOT_REVIEWABLE",
				fmt.Sprintf("transaction is %s, nothing to resolve", txn.Status))
		}
	case caseinv.FindingFraudulent:
		if err := txn.RejectFraudulent(); err != nil {
			return domainerrors.NewConflictError("NOT_REVIEWABLE", err.Error())
		}
	}
	return nil
}

// releaseHold settles a blocked transaction: move funds if the sender can
// still cover the amount, otherwise reject for insufficient funds.
func (s *Service) releaseHold(ctx context.Context, txn *payment.Transaction) error {
	sender, err := s.accounts.GetForUpdate(ctx, txn.SenderID)
	if err != nil {
		return err
	}
	if !sender.Balance.GreaterOrEqual(txn.Amount) {
		return txn.RejectInsufficientFunds()
	}
	if txn.RecipientID == nil {
		return fmt.Errorf("blocked payment has no recipient")
	}
	recipient, err := s.accounts.GetForUpdate(ctx, *txn.RecipientID)
	if err != nil {
		return err
	}
	if err := sender.Debit(txn.Amount); err != nil {
		return err
	}
	if err := recipient.Credit(txn.Amount); err != nil {
		return err
	}
	if err := s.accounts.UpdateBalance(ctx, sender); err != nil {
		return err
	}
	if err := s.accounts.UpdateBalance(ctx, recipient); err != nil {
		return err
	}
	return txn.Approve(false)
}
