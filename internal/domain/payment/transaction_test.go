package payment

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorland/securepay-backend/internal/domain/values"
)

func money(t *testing.T, amount float64) values.Money {
	t.Helper()
	return values.MustNewMoneyFromFloat(amount, values.USD)
}

func TestNewTransaction(t *testing.T) {
	sender := uuid.New()
	recipient := uuid.New()

	tests := []struct {
		name      string
		sender    uuid.UUID
		recipient *uuid.UUID
		amount    float64
		status    Status
		riskScore float64
		wantErr   bool
	}{
		{name: "settled", sender: sender, recipient: &recipient, amount: 50, status: StatusSettled, riskScore: 0.1},
		{name: "flagged", sender: sender, recipient: &recipient, amount: 50, status: StatusFlagged, riskScore: 0.5},
		{name: "blocked", sender: sender, recipient: &recipient, amount: 50, status: StatusBlocked, riskScore: 0.9},
		{name: "zero amount", sender: sender, recipient: &recipient, amount: 0, status: StatusSettled, wantErr: true},
		{name: "self payment", sender: sender, recipient: &sender, amount: 10, status: StatusSettled, wantErr: true},
		{name: "terminal initial status", sender: sender, recipient: &recipient, amount: 10, status: StatusRejectedFraudulent, wantErr: true},
		{name: "risk score above one", sender: sender, recipient: &recipient, amount: 10, status: StatusSettled, riskScore: 1.5, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txn, err := NewTransaction(tt.sender, tt.recipient, money(t, tt.amount), "", Context{}, tt.status, tt.riskScore, Details{})
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, TypePayment, txn.Type)
			assert.Equal(t, tt.status, txn.Status)
			assert.Equal(t, values.USD, txn.Currency)
		})
	}
}

func TestStatusProperties(t *testing.T) {
	assert.True(t, StatusSettled.FundsMoveAtCreation())
	assert.True(t, StatusFlagged.FundsMoveAtCreation())
	assert.False(t, StatusBlocked.FundsMoveAtCreation())

	assert.True(t, StatusSettled.IsTerminal())
	assert.True(t, StatusSettledByOverride.IsTerminal())
	assert.True(t, StatusRejectedFraudulent.IsTerminal())
	assert.True(t, StatusRejectedInsufficientFunds.IsTerminal())
	assert.False(t, StatusBlocked.IsTerminal())
	assert.False(t, StatusFlagged.IsTerminal())

	assert.False(t, Status("Pending").IsValid())
}

func blockedTransaction(t *testing.T) *Transaction {
	t.Helper()
	recipient := uuid.New()
	txn, err := NewTransaction(uuid.New(), &recipient, money(t, 7000), "", Context{}, StatusBlocked, 0.8, Details{})
	require.NoError(t, err)
	return txn
}

func TestApprove(t *testing.T) {
	txn := blockedTransaction(t)
	require.NoError(t, txn.Approve(false))
	assert.Equal(t, StatusSettled, txn.Status)
	assert.True(t, txn.Details.Processed)

	override := blockedTransaction(t)
	require.NoError(t, override.Approve(true))
	assert.Equal(t, StatusSettledByOverride, override.Status)

	assert.Error(t, override.Approve(true), "approving twice must fail")
}

func TestRejectTransitions(t *testing.T) {
	txn := blockedTransaction(t)
	require.NoError(t, txn.RejectFraudulent())
	assert.Equal(t, StatusRejectedFraudulent, txn.Status)
	assert.Error(t, txn.RejectFraudulent(), "terminal transactions cannot transition")

	funds := blockedTransaction(t)
	require.NoError(t, funds.RejectInsufficientFunds())
	assert.Equal(t, StatusRejectedInsufficientFunds, funds.Status)
}

func TestClearFlag(t *testing.T) {
	recipient := uuid.New()
	txn, err := NewTransaction(uuid.New(), &recipient, money(t, 100), "", Context{}, StatusFlagged, 0.5, Details{})
	require.NoError(t, err)

	require.NoError(t, txn.ClearFlag())
	assert.Equal(t, StatusSettled, txn.Status)

	assert.Error(t, txn.ClearFlag(), "only flagged transactions can be cleared")
}

func TestNeedsCaseAndPriority(t *testing.T) {
	recipient := uuid.New()

	flagged, err := NewTransaction(uuid.New(), &recipient, money(t, 100), "", Context{}, StatusFlagged, 0.5, Details{})
	require.NoError(t, err)
	assert.True(t, flagged.NeedsCase())
	assert.Equal(t, "Medium", flagged.CasePriority())

	blocked := blockedTransaction(t)
	assert.True(t, blocked.NeedsCase())
	assert.Equal(t, "High", blocked.CasePriority())

	settled, err := NewTransaction(uuid.New(), &recipient, money(t, 100), "", Context{}, StatusSettled, 0.1, Details{})
	require.NoError(t, err)
	assert.False(t, settled.NeedsCase())
}

func TestNewAdminAdjustment(t *testing.T) {
	txn, err := NewAdminAdjustment(uuid.New(), money(t, 500), "goodwill credit")
	require.NoError(t, err)
	assert.Equal(t, TypeAdminAdjustment, txn.Type)
	assert.Nil(t, txn.RecipientID)
	assert.Equal(t, StatusSettled, txn.Status)

	_, err = NewAdminAdjustment(uuid.New(), values.Zero(values.USD), "noop")
	assert.Error(t, err)
}
