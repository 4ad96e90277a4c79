package payment

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmorland/securepay-backend/internal/domain/values"
)

// Transaction is the append-only record of a payment attempt. Amount, parties
// and captured context are immutable after creation; only Status, RiskScore and
// Details may change, and only through the ledger or the case manager.
type Transaction struct {
	ID          uuid.UUID
	Type        Type
	SenderID    uuid.UUID
	RecipientID *uuid.UUID // nil for internal adjustments
	Amount      values.Money
	Currency    string
	Description string
	Context     Context
	Status      Status
	RiskScore   float64
	Details     Details
	CreatedAt   time.Time
}

// Context captures where a payment request came from. Stored verbatim for
// investigator review.
type Context struct {
	IP       string `json:"ip"`
	Device   string `json:"device"`
	Location string `json:"location"`
}

// Details is the per-transaction risk metadata. Typed in memory, serialized to
// a single JSONB column at the storage boundary.
type Details struct {
	RiskFactors     []string        `json:"risk_factors,omitempty"`
	MLProbability   float64         `json:"ml_probability"`
	RuleScore       float64         `json:"rule_score"`
	FinalScore      float64         `json:"final_score"`
	Processed       bool            `json:"processed"`
	FraudIndicators map[string]bool `json:"fraud_indicators,omitempty"`
}

type Type string

const (
	TypePayment         Type = "payment"
	TypeAdminAdjustment Type = "admin_adjustment"
)

// Status is the transaction lifecycle state. The string values mirror what
// investigators and admins see in their dashboards.
type Status string

const (
	// StatusSettled: balance effect applied, no further review.
	StatusSettled Status = "Settled"
	// StatusFlagged: funds moved but the transaction is monitored by an
	// investigation case. Terminal for balance purposes.
	StatusFlagged Status = "Flagged"
	// StatusBlocked: funds held pending investigation.
	StatusBlocked Status = "Blocked"
	// StatusSettledByOverride: an admin force-approved a blocked payment.
	StatusSettledByOverride Status = "Settled (Override)"
	// StatusRejectedFraudulent: investigation or override found fraud.
	StatusRejectedFraudulent Status = "Rejected - Fraudulent"
	// StatusRejectedInsufficientFunds: approval failed because the sender
	// could no longer cover the amount.
	StatusRejectedInsufficientFunds Status = "Rejected - Insufficient Funds"
)

func (s Status) String() string {
	return string(s)
}

// IsValid checks if the status is a known lifecycle state
func (s Status) IsValid() bool {
	switch s {
	case StatusSettled, StatusFlagged, StatusBlocked,
		StatusSettledByOverride, StatusRejectedFraudulent, StatusRejectedInsufficientFunds:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the status admits no further transition.
// Flagged is terminal for balance purposes but its case may still be open.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSettled, StatusSettledByOverride, StatusRejectedFraudulent, StatusRejectedInsufficientFunds:
		return true
	default:
		return false
	}
}

// FundsMoveAtCreation reports whether the initial status licenses an immediate
// balance effect.
func (s Status) FundsMoveAtCreation() bool {
	return s == StatusSettled || s == StatusFlagged
}

// NewTransaction creates a payment transaction in its initial risk-assigned
// status. The status must be one of the three creation outcomes.
func NewTransaction(
	sender uuid.UUID,
	recipient *uuid.UUID,
	amount values.Money,
	description string,
	ctx Context,
	status Status,
	riskScore float64,
	details Details,
) (*Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("transaction amount must be positive")
	}
	if sender == uuid.Nil {
		return nil, fmt.Errorf("sender is required")
	}
	if recipient != nil && *recipient == sender {
		return nil, fmt.Errorf("cannot pay yourself")
	}

	switch status {
	case StatusSettled, StatusFlagged, StatusBlocked:
	default:
		return nil, fmt.Errorf("invalid initial status: %s", status)
	}

	if riskScore < 0 || riskScore > 1 {
		return nil, fmt.Errorf("risk score out of range: %f", riskScore)
	}

	return &Transaction{
		ID:          uuid.New(),
		Type:        TypePayment,
		SenderID:    sender,
		RecipientID: recipient,
		Amount:      amount,
		Currency:    amount.Currency(),
		Description: description,
		Context:     ctx,
		Status:      status,
		RiskScore:   riskScore,
		Details:     details,
		CreatedAt:   time.Now(),
	}, nil
}

// NewAdminAdjustment creates an internal balance adjustment record. It is
// settled immediately and carries no risk assessment.
func NewAdminAdjustment(target uuid.UUID, amount values.Money, description string) (*Transaction, error) {
	if amount.IsZero() {
		return nil, fmt.Errorf("adjustment amount cannot be zero")
	}
	if target == uuid.Nil {
		return nil, fmt.Errorf("target account is required")
	}

	return &Transaction{
		ID:          uuid.New(),
		Type:        TypeAdminAdjustment,
		SenderID:    target,
		RecipientID: nil,
		Amount:      amount,
		Currency:    amount.Currency(),
		Description: description,
		Status:      StatusSettled,
		Details:     Details{Processed: true},
		CreatedAt:   time.Now(),
	}, nil
}

// Approve transitions a held transaction to its settled-equivalent state.
// byOverride distinguishes the admin escape hatch from case resolution.
func (t *Transaction) Approve(byOverride bool) error {
	if t.Status != StatusBlocked {
		return fmt.Errorf("can only approve blocked transactions, status is %s", t.Status)
	}

	if byOverride {
		t.Status = StatusSettledByOverride
	} else {
		t.Status = StatusSettled
	}
	t.Details.Processed = true
	return nil
}

// ClearFlag settles a monitored transaction after a safe finding. Funds
// already moved at creation, so this is a status change only.
func (t *Transaction) ClearFlag() error {
	if t.Status != StatusFlagged {
		return fmt.Errorf("can only clear flagged transactions, status is %s", t.Status)
	}
	t.Status = StatusSettled
	return nil
}

// RejectFraudulent closes the transaction with a fraud finding. Allowed from
// Blocked (funds held) and Flagged (funds already moved, record only).
func (t *Transaction) RejectFraudulent() error {
	if t.Status.IsTerminal() {
		return fmt.Errorf("transaction already terminal: %s", t.Status)
	}
	t.Status = StatusRejectedFraudulent
	return nil
}

// RejectInsufficientFunds closes a held transaction whose sender can no longer
// cover the amount at approval time.
func (t *Transaction) RejectInsufficientFunds() error {
	if t.Status != StatusBlocked {
		return fmt.Errorf("can only reject blocked transactions for funds, status is %s", t.Status)
	}
	t.Status = StatusRejectedInsufficientFunds
	return nil
}

// NeedsCase reports whether this transaction requires an investigation case
func (t *Transaction) NeedsCase() bool {
	return t.Status == StatusFlagged || t.Status == StatusBlocked
}

// CasePriority returns the priority of the case this transaction warrants
func (t *Transaction) CasePriority() string {
	if t.Status == StatusBlocked {
		return "High"
	}
	return "Medium"
}
