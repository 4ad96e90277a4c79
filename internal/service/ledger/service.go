package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	"github.com/jmorland/securepay-backend/internal/domain/audit"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/investigation"
	"github.com/jmorland/securepay-backend/internal/domain/payment"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
	"github.com/jmorland/securepay-backend/internal/domain/values"
	"github.com/jmorland/securepay-backend/internal/service/risk"
	"github.com/jmorland/securepay-backend/internal/service/velocity"
)

// historyWindow caps how many recent amounts feed the typical-pattern rule.
const historyWindow = 10

// AccountStore is the slice of account persistence the ledger needs.
type AccountStore interface {
	Get(ctx context.Context, id uuid.UUID) (*account.Account, error)
	// GetForUpdate locks the account row for the life of the surrounding
	// database transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error)
	UpdateBalance(ctx context.Context, a *account.Account) error
}

// TransactionStore persists ledger records.
type TransactionStore interface {
	Create(ctx context.Context, t *payment.Transaction) error
	Get(ctx context.Context, id uuid.UUID) (*payment.Transaction, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Transaction, error)
	Update(ctx context.Context, t *payment.Transaction) error
	// ExistsBetween reports whether the sender has ever paid the recipient.
	ExistsBetween(ctx context.Context, senderID, recipientID uuid.UUID) (bool, error)
	// RecentSettledAmounts returns the sender's most recent settled amounts,
	// newest first, at most limit entries.
	RecentSettledAmounts(ctx context.Context, senderID uuid.UUID, limit int) ([]float64, error)
}

// CaseStore is the slice of case persistence the ledger touches: creating
// cases for risky payments and closing them on admin override.
type CaseStore interface {
	Create(ctx context.Context, c *investigation.Case) error
	// OpenByTransaction returns the open case for a transaction, or nil when
	// none exists.
	OpenByTransaction(ctx context.Context, transactionID uuid.UUID) (*investigation.Case, error)
	Update(ctx context.Context, c *investigation.Case) error
}

// Transactor runs fn inside one database transaction. Store methods called
// through the fn's context join that transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Auditor records best-effort audit entries.
type Auditor interface {
	Record(ctx context.Context, actorID uuid.UUID, action audit.Action, entityType, entityID, details string)
}

// Evaluator scores a candidate payment.
type Evaluator interface {
	Evaluate(ctx context.Context, in risk.Input) (*risk.Assessment, error)
}

// VelocityChecker supplies rolling-window aggregates and limit violations.
type VelocityChecker interface {
	Snapshot(ctx context.Context, senderID uuid.UUID, now time.Time) (velocity.Stats, error)
	Check(ctx context.Context, senderID uuid.UUID, amount float64, now time.Time, limits settings.VelocityLimits) ([]string, velocity.Stats, error)
}

// PolicyReader yields the live risk policy.
type PolicyReader interface {
	Policy(ctx context.Context) (settings.Policy, error)
}

// Service owns transaction creation and every balance effect that happens at
// creation or admin-override time. Case-driven balance effects live in the
// investigation service, which shares the same stores.
type Service struct {
	accounts     AccountStore
	transactions TransactionStore
	cases        CaseStore
	tx           Transactor
	evaluator    Evaluator
	velocity     VelocityChecker
	policy       PolicyReader
	auditor      Auditor
	logger       *slog.Logger
}

func NewService(
	accounts AccountStore,
	transactions TransactionStore,
	cases CaseStore,
	tx Transactor,
	evaluator Evaluator,
	velocity VelocityChecker,
	policy PolicyReader,
	auditor Auditor,
	logger *slog.Logger,
) *Service {
	return &Service{
		accounts:     accounts,
		transactions: transactions,
		cases:        cases,
		tx:           tx,
		evaluator:    evaluator,
		velocity:     velocity,
		policy:       policy,
		auditor:      auditor,
		logger:       logger,
	}
}

// SubmitRequest is one payment attempt.
type SubmitRequest struct {
	SenderID    uuid.UUID
	RecipientID uuid.UUID
	Amount      values.Money
	Description string

	IP       string
	Device   string
	Location string

	// FailedAttempts is the sender's recent failed-authentication count,
	// supplied by the auth layer.
	FailedAttempts int
}

// SubmitResult reports the outcome of a payment attempt.
type SubmitResult struct {
	TransactionID        uuid.UUID
	Outcome              payment.Status
	FinalScore           float64
	RiskFactors          []string
	VelocityViolations   []string
	RecipientDisplayName string
	CaseID               *uuid.UUID
}

// SubmitPayment scores and records one payment. Settled and Flagged outcomes
// move funds in the same database transaction as the status write; Blocked
// holds funds and opens a high-priority case.
func (s *Service) SubmitPayment(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if !req.Amount.IsPositive() {
		return nil, domainerrors.NewValidationError("INVALID_AMOUNT", "amount must be positive")
	}
	if req.SenderID == req.RecipientID {
		return nil, domainerrors.NewValidationError("SELF_PAYMENT", "sender and recipient must differ")
	}

	sender, err := s.accounts.Get(ctx, req.SenderID)
	if err != nil {
		return nil, err
	}
	recipient, err := s.accounts.Get(ctx, req.RecipientID)
	if err != nil {
		return nil, err
	}
	if !sender.CanTransact() {
		return nil, domainerrors.ErrAccountNotApproved
	}
	if !recipient.CanTransact() {
		return nil, domainerrors.NewBusinessError("RECIPIENT_NOT_APPROVED", "recipient cannot receive payments")
	}

	// Funds check happens before any scoring work; a sender who cannot cover
	// the amount gets a clean rejection with no transaction record.
	if !sender.Balance.GreaterOrEqual(req.Amount) {
		return nil, domainerrors.ErrInsufficientFunds
	}

	now := time.Now().UTC()
	pol, err := s.policy.Policy(ctx)
	if err != nil {
		return nil, err
	}

	amountF := req.Amount.ToFloat64()
	// The velocity snapshot is not serialized against other in-flight
	// payments from this sender; see velocity.Checker.Check.
	violations, stats, err := s.velocity.Check(ctx, req.SenderID, amountF, now, pol.Velocity)
	if err != nil {
		return nil, fmt.Errorf("velocity check: %w", err)
	}
	history, err := s.transactions.RecentSettledAmounts(ctx, req.SenderID, historyWindow)
	if err != nil {
		return nil, fmt.Errorf("loading payment history: %w", err)
	}
	paidBefore, err := s.transactions.ExistsBetween(ctx, req.SenderID, req.RecipientID)
	if err != nil {
		return nil, fmt.Errorf("checking recipient history: %w", err)
	}

	assessment, err := s.evaluator.Evaluate(ctx, risk.Input{
		SenderID:       req.SenderID,
		RecipientID:    req.RecipientID,
		Amount:         amountF,
		Currency:       req.Amount.Currency(),
		Location:       req.Location,
		Device:         req.Device,
		FailedAttempts: req.FailedAttempts,
		SenderBalance:  sender.Balance.ToFloat64(),
		AccountAge:     sender.AgeAt(now),
		RecipientIsNew: !paidBefore,
		HistoryAmounts: history,
		Velocity:       stats,
		Now:            now,
	})
	if err != nil {
		return nil, err
	}

	txn, err := payment.NewTransaction(
		req.SenderID,
		&req.RecipientID,
		req.Amount,
		req.Description,
		payment.Context{IP: req.IP, Device: req.Device, Location: req.Location},
		assessment.Outcome,
		assessment.FinalScore,
		payment.Details{
			RiskFactors:     assessment.RiskFactors,
			MLProbability:   assessment.MLProbability,
			RuleScore:       assessment.RuleScore,
			FinalScore:      assessment.FinalScore,
			Processed:       assessment.Outcome.FundsMoveAtCreation(),
			FraudIndicators: assessment.Indicators,
		},
	)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_TRANSACTION", err.Error())
	}

	var createdCase *investigation.Case
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		if txn.Status.FundsMoveAtCreation() {
			if err := s.moveFunds(ctx, req.SenderID, req.RecipientID, req.Amount); err != nil {
				return err
			}
		}
		if err := s.transactions.Create(ctx, txn); err != nil {
			return fmt.Errorf("recording transaction: %w", err)
		}
		if txn.NeedsCase() {
			c, err := investigation.NewCase(txn.ID, investigation.Priority(txn.CasePriority()))
			if err != nil {
				return err
			}
			if err := s.cases.Create(ctx, c); err != nil {
				return fmt.Errorf("creating case: %w", err)
			}
			createdCase = c
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, req.SenderID, audit.ActionProcessPayment, "transaction", txn.ID.String(),
		fmt.Sprintf("amount=%s outcome=%s final_score=%.3f", req.Amount, txn.Status, assessment.FinalScore))

	observePayment(txn.Status, assessment.RuleOnly)
	s.logger.InfoContext(ctx, "payment recorded",
		"transaction_id", txn.ID,
		"sender_id", req.SenderID,
		"recipient_id", req.RecipientID,
		"amount", req.Amount.String(),
		"outcome", string(txn.Status),
		"final_score", assessment.FinalScore,
		"velocity_violations", len(violations),
	)

	result := &SubmitResult{
		TransactionID:        txn.ID,
		Outcome:              txn.Status,
		FinalScore:           assessment.FinalScore,
		RiskFactors:          assessment.RiskFactors,
		VelocityViolations:   violations,
		RecipientDisplayName: recipient.Name,
	}
	if createdCase != nil {
		id := createdCase.ID
		result.CaseID = &id
	}
	return result, nil
}

// moveFunds debits the sender and credits the recipient under row locks. The
// sender balance is re-read inside the transaction: the pre-scoring check may
// be stale by the time we commit.
func (s *Service) moveFunds(ctx context.Context, senderID, recipientID uuid.UUID, amount values.Money) error {
	// Lock in a fixed order to avoid deadlocks between crossing payments.
	first, second := senderID, recipientID
	if second.String() < first.String() {
		first, second = second, first
	}
	locked := make(map[uuid.UUID]*account.Account, 2)
	for _, id := range []uuid.UUID{first, second} {
		a, err := s.accounts.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		locked[id] = a
	}

	sender, recipient := locked[senderID], locked[recipientID]
	if err := sender.Debit(amount); err != nil {
		if err == account.ErrInsufficientFunds {
			return domainerrors.ErrInsufficientFunds
		}
		return err
	}
	if err := recipient.Credit(amount); err != nil {
		return err
	}
	if err := s.accounts.UpdateBalance(ctx, sender); err != nil {
		return fmt.Errorf("updating sender balance: %w", err)
	}
	if err := s.accounts.UpdateBalance(ctx, recipient); err != nil {
		return fmt.Errorf("updating recipient balance: %w", err)
	}
	return nil
}

// AdminOverride finalizes a blocked transaction outside the normal case flow.
// Approval re-checks the sender balance since time has passed since the hold;
// a sender who can no longer cover the amount yields RejectedInsufficientFunds
// rather than an error, so the record still closes.
func (s *Service) AdminOverride(ctx context.Context, adminID, transactionID uuid.UUID, approve bool) (*payment.Transaction, error) {
	admin, err := s.accounts.Get(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != account.RoleAdmin {
		return nil, domainerrors.NewForbiddenError("admin role required")
	}

	var txn *payment.Transaction
	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		txn, err = s.transactions.GetForUpdate(ctx, transactionID)
		if err != nil {
			return err
		}
		if txn.Status != payment.StatusBlocked {
			return domainerrors.NewConflictError("NOT_BLOCKED",
				fmt.Sprintf("transaction is %s, only blocked transactions can be overridden", txn.Status))
		}

		finding := investigation.FindingFraudulent
		if approve {
			moveErr := s.moveFunds(ctx, txn.SenderID, *txn.RecipientID, txn.Amount)
			switch {
			case moveErr == nil:
				if err := txn.Approve(true); err != nil {
					return err
				}
				finding = investigation.FindingSafe
			case domainerrors.IsCode(moveErr, "INSUFFICIENT_FUNDS"):
				if err := txn.RejectInsufficientFunds(); err != nil {
					return err
				}
			default:
				return moveErr
			}
		} else {
			if err := txn.RejectFraudulent(); err != nil {
				return err
			}
		}

		if err := s.transactions.Update(ctx, txn); err != nil {
			return fmt.Errorf("updating transaction: %w", err)
		}

		// Close any open case so it does not linger in investigator queues.
		c, err := s.cases.OpenByTransaction(ctx, transactionID)
		if err != nil {
			return err
		}
		if c != nil {
			if err := c.Resolve(finding, "Resolved by administrative override"); err != nil {
				return err
			}
			if err := s.cases.Update(ctx, c); err != nil {
				return fmt.Errorf("closing case: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, adminID, audit.ActionAdminOverride, "transaction", transactionID.String(),
		fmt.Sprintf("approve=%t result=%s", approve, txn.Status))
	s.logger.InfoContext(ctx, "admin override applied",
		"transaction_id", transactionID,
		"admin_id", adminID,
		"approve", approve,
		"result", string(txn.Status),
	)
	return txn, nil
}

// AdjustBalance applies an administrative credit or debit to one account and
// records it as an internal adjustment transaction.
func (s *Service) AdjustBalance(ctx context.Context, adminID, targetID uuid.UUID, delta values.Money, reason string) (*payment.Transaction, error) {
	admin, err := s.accounts.Get(ctx, adminID)
	if err != nil {
		return nil, err
	}
	if admin.Role != account.RoleAdmin {
		return nil, domainerrors.NewForbiddenError("admin role required")
	}

	txn, err := payment.NewAdminAdjustment(targetID, delta, reason)
	if err != nil {
		return nil, domainerrors.NewValidationError("INVALID_ADJUSTMENT", err.Error())
	}

	err = s.tx.InTx(ctx, func(ctx context.Context) error {
		target, err := s.accounts.GetForUpdate(ctx, targetID)
		if err != nil {
			return err
		}
		if delta.IsNegative() {
			abs, err := values.NewMoney(delta.Amount().Neg(), delta.Currency())
			if err != nil {
				return err
			}
			if err := target.Debit(abs); err != nil {
				if err == account.ErrInsufficientFunds {
					return domainerrors.ErrInsufficientFunds
				}
				return err
			}
		} else {
			if err := target.Credit(delta); err != nil {
				return err
			}
		}
		if err := s.accounts.UpdateBalance(ctx, target); err != nil {
			return fmt.Errorf("updating balance: %w", err)
		}
		return s.transactions.Create(ctx, txn)
	})
	if err != nil {
		return nil, err
	}

	s.auditor.Record(ctx, adminID, audit.ActionBalanceAdjustment, "account", targetID.String(),
		fmt.Sprintf("delta=%s reason=%s", delta, reason))
	return txn, nil
}

// GetTransaction loads one ledger record.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	return s.transactions.Get(ctx, id)
}

// VelocitySnapshot exposes a sender's current rolling-window usage.
func (s *Service) VelocitySnapshot(ctx context.Context, userID uuid.UUID) (velocity.Stats, error) {
	return s.velocity.Snapshot(ctx, userID, time.Now().UTC())
}
