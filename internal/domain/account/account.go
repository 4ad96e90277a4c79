package account

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmorland/securepay-backend/internal/domain/values"
)

// Account is a platform user: a paying customer, a fraud investigator, or an
// administrator. Accounts are created in pending status and hold no balance
// until an admin approves them; they are never deleted.
type Account struct {
	ID     uuid.UUID `json:"id"`
	Email  string    `json:"email"`
	Name   string    `json:"name"`
	Phone  string    `json:"phone"`
	Role   Role      `json:"role"`
	Status Status    `json:"status"`

	Balance values.Money `json:"balance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Role int

const (
	RoleCustomer Role = iota
	RoleInvestigator
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleCustomer:
		return "customer"
	case RoleInvestigator:
		return "investigator"
	case RoleAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseRole converts the persisted role string back to a Role
func ParseRole(s string) (Role, error) {
	switch s {
	case "customer":
		return RoleCustomer, nil
	case "investigator":
		return RoleInvestigator, nil
	case "admin":
		return RoleAdmin, nil
	default:
		return RoleCustomer, fmt.Errorf("unknown role: %q", s)
	}
}

type Status int

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// ParseStatus converts the persisted status string back to a Status
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected":
		return StatusRejected, nil
	default:
		return StatusPending, fmt.Errorf("unknown account status: %q", s)
	}
}

// NewAccount creates a pending account with a zero balance
func NewAccount(email, name, phone string, role Role) (*Account, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("invalid email: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}

	switch role {
	case RoleCustomer, RoleInvestigator, RoleAdmin:
	default:
		return nil, ErrInvalidRole
	}

	now := time.Now()
	return &Account{
		ID:        uuid.New(),
		Email:     email,
		Name:      strings.TrimSpace(name),
		Phone:     strings.TrimSpace(phone),
		Role:      role,
		Status:    StatusPending,
		Balance:   values.Zero(values.USD),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Approve activates the account and seeds its starting balance. Investigators
// and admins do not transact, so their balance stays zero regardless of the
// configured default.
func (a *Account) Approve(startingBalance values.Money) error {
	if a.Status == StatusApproved {
		return ErrAlreadyApproved
	}

	a.Status = StatusApproved
	if a.Role == RoleCustomer {
		a.Balance = startingBalance
	}
	a.UpdatedAt = time.Now()
	return nil
}

// Reject marks a pending registration as rejected
func (a *Account) Reject() error {
	if a.Status == StatusApproved {
		return ErrAlreadyApproved
	}
	a.Status = StatusRejected
	a.UpdatedAt = time.Now()
	return nil
}

// CanTransact reports whether the account may send or receive payments
func (a *Account) CanTransact() bool {
	return a.Status == StatusApproved && a.Role == RoleCustomer
}

// IsApprovedInvestigator reports whether the account may work cases
func (a *Account) IsApprovedInvestigator() bool {
	return a.Status == StatusApproved && a.Role == RoleInvestigator
}

// Debit withdraws amount from the balance. The balance never goes negative.
func (a *Account) Debit(amount values.Money) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}
	if a.Balance.Compare(amount) < 0 {
		return ErrInsufficientFunds
	}

	newBalance, err := a.Balance.Sub(amount)
	if err != nil {
		return err
	}
	a.Balance = newBalance
	a.UpdatedAt = time.Now()
	return nil
}

// Credit adds amount to the balance
func (a *Account) Credit(amount values.Money) error {
	if !amount.IsPositive() {
		return ErrInvalidAmount
	}

	newBalance, err := a.Balance.Add(amount)
	if err != nil {
		return err
	}
	a.Balance = newBalance
	a.UpdatedAt = time.Now()
	return nil
}

// AgeAt returns how old the account is at the given instant
func (a *Account) AgeAt(now time.Time) time.Duration {
	return now.Sub(a.CreatedAt)
}

var (
	ErrInsufficientFunds = fmt.Errorf("insufficient funds")
	ErrInvalidAmount     = fmt.Errorf("amount must be positive")
	ErrInvalidRole       = fmt.Errorf("invalid account role")
	ErrEmptyName         = fmt.Errorf("name cannot be empty")
	ErrAlreadyApproved   = fmt.Errorf("account already approved")
)
