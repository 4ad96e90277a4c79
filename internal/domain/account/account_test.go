package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorland/securepay-backend/internal/domain/values"
)

func TestNewAccount(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		who     string
		role    Role
		wantErr error
	}{
		{name: "valid customer", email: "alice@example.com", who: "Alice", role: RoleCustomer},
		{name: "valid investigator", email: "ivan@example.com", who: "Ivan", role: RoleInvestigator},
		{name: "empty name", email: "a@example.com", who: "  ", role: RoleCustomer, wantErr: ErrEmptyName},
		{name: "bad role", email: "a@example.com", who: "A", role: Role(99), wantErr: ErrInvalidRole},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewAccount(tt.email, tt.who, "", tt.role)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusPending, a.Status)
			assert.True(t, a.Balance.IsZero())
			assert.False(t, a.CanTransact(), "pending accounts cannot transact")
		})
	}
}

func TestNewAccountRejectsBadEmail(t *testing.T) {
	_, err := NewAccount("not-an-email", "Alice", "", RoleCustomer)
	require.Error(t, err)
}

func TestApprove(t *testing.T) {
	a, err := NewAccount("bob@example.com", "Bob", "", RoleCustomer)
	require.NoError(t, err)

	starting := values.MustNewMoneyFromFloat(2000, values.USD)
	require.NoError(t, a.Approve(starting))
	assert.Equal(t, StatusApproved, a.Status)
	assert.True(t, a.Balance.Equal(starting))
	assert.True(t, a.CanTransact())

	assert.ErrorIs(t, a.Approve(starting), ErrAlreadyApproved)
}

func TestApproveInvestigatorNoBalance(t *testing.T) {
	a, err := NewAccount("ivy@example.com", "Ivy", "", RoleInvestigator)
	require.NoError(t, err)

	require.NoError(t, a.Approve(values.MustNewMoneyFromFloat(2000, values.USD)))
	assert.True(t, a.Balance.IsZero(), "only customers receive a starting balance")
	assert.True(t, a.IsApprovedInvestigator())
}

func TestDebitCredit(t *testing.T) {
	a, err := NewAccount("carol@example.com", "Carol", "", RoleCustomer)
	require.NoError(t, err)
	require.NoError(t, a.Approve(values.MustNewMoneyFromFloat(100, values.USD)))

	require.NoError(t, a.Debit(values.MustNewMoneyFromFloat(30, values.USD)))
	assert.Equal(t, "70.00 USD", a.Balance.String())

	require.NoError(t, a.Credit(values.MustNewMoneyFromFloat(5, values.USD)))
	assert.Equal(t, "75.00 USD", a.Balance.String())

	err = a.Debit(values.MustNewMoneyFromFloat(75.01, values.USD))
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, "75.00 USD", a.Balance.String(), "failed debit must not change the balance")

	assert.ErrorIs(t, a.Debit(values.MustNewMoneyFromFloat(-1, values.USD)), ErrInvalidAmount)
	assert.ErrorIs(t, a.Credit(values.Zero(values.USD)), ErrInvalidAmount)
}

func TestAgeAt(t *testing.T) {
	a, err := NewAccount("dan@example.com", "Dan", "", RoleCustomer)
	require.NoError(t, err)

	age := a.AgeAt(a.CreatedAt.Add(36 * time.Hour))
	assert.Equal(t, 36*time.Hour, age)
}

func TestParseRoleAndStatus(t *testing.T) {
	r, err := ParseRole("investigator")
	require.NoError(t, err)
	assert.Equal(t, RoleInvestigator, r)

	_, err = ParseRole("superuser")
	assert.Error(t, err)

	s, err := ParseStatus("approved")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s)

	_, err = ParseStatus("frozen")
	assert.Error(t, err)
}
