package identity

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	"github.com/jmorland/securepay-backend/internal/domain/audit"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
	"github.com/jmorland/securepay-backend/internal/domain/values"
)

type fakeAccounts struct {
	byID    map[uuid.UUID]*account.Account
	byEmail map[string]*account.Account

	createErrs []error // consumed per Create call before the insert succeeds
	creates    int
}

func newFakeAccounts(accts ...*account.Account) *fakeAccounts {
	f := &fakeAccounts{
		byID:    make(map[uuid.UUID]*account.Account),
		byEmail: make(map[string]*account.Account),
	}
	for _, a := range accts {
		f.byID[a.ID] = a
		f.byEmail[a.Email] = a
	}
	return f
}

func (f *fakeAccounts) Get(_ context.Context, id uuid.UUID) (*account.Account, error) {
	a, ok := f.byID[id]
	if !ok {
		return nil, domainerrors.ErrAccountNotFound
	}
	return a, nil
}

func (f *fakeAccounts) GetByEmail(_ context.Context, email string) (*account.Account, error) {
	return f.byEmail[email], nil
}

func (f *fakeAccounts) Create(_ context.Context, a *account.Account) error {
	if f.creates < len(f.createErrs) {
		err := f.createErrs[f.creates]
		f.creates++
		return err
	}
	f.creates++
	f.byID[a.ID] = a
	f.byEmail[a.Email] = a
	return nil
}

func (f *fakeAccounts) Update(_ context.Context, a *account.Account) error {
	f.byID[a.ID] = a
	return nil
}

func (f *fakeAccounts) ListByStatus(_ context.Context, status account.Status) ([]*account.Account, error) {
	var out []*account.Account
	for _, a := range f.byID {
		if a.Status == status {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakePolicy struct {
	pol settings.Policy
}

func (f fakePolicy) Policy(context.Context) (settings.Policy, error) {
	return f.pol, nil
}

type fakeAuditor struct {
	actions []audit.Action
}

func (f *fakeAuditor) Record(_ context.Context, _ uuid.UUID, action audit.Action, _, _, _ string) {
	f.actions = append(f.actions, action)
}

func usd(t *testing.T, amount float64) values.Money {
	t.Helper()
	m, err := values.NewMoneyFromFloat(amount, values.USD)
	require.NoError(t, err)
	return m
}

func approvedAdmin(t *testing.T) *account.Account {
	t.Helper()
	a, err := account.NewAccount("admin@securepay.test", "Admin", "", account.RoleAdmin)
	require.NoError(t, err)
	require.NoError(t, a.Approve(values.Zero(values.USD)))
	return a
}

func newService(accounts *fakeAccounts, pol settings.Policy) (*Service, *fakeAuditor) {
	auditor := &fakeAuditor{}
	return NewService(accounts, fakePolicy{pol: pol}, auditor, slog.New(slog.DiscardHandler)), auditor
}

func TestRegister(t *testing.T) {
	accounts := newFakeAccounts()
	svc, auditor := newService(accounts, settings.Default())

	a, err := svc.Register(context.Background(), "Alice@Example.com", "Alice", "+15550100", account.RoleCustomer)
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", a.Email, "emails are normalized")
	assert.Equal(t, account.StatusPending, a.Status)
	assert.True(t, a.Balance.IsZero(), "no balance before approval")
	assert.NotNil(t, accounts.byID[a.ID])
	assert.Equal(t, []audit.Action{audit.ActionRegisterUser}, auditor.actions)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newService(newFakeAccounts(), settings.Default())

	_, err := svc.Register(context.Background(), "not-an-email", "Alice", "", account.RoleCustomer)
	assert.True(t, domainerrors.IsCode(err, "INVALID_REGISTRATION"), "got %v", err)

	_, err = svc.Register(context.Background(), "alice@example.com", "   ", "", account.RoleCustomer)
	assert.True(t, domainerrors.IsCode(err, "INVALID_REGISTRATION"), "got %v", err)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	accounts := newFakeAccounts()
	svc, _ := newService(accounts, settings.Default())

	_, err := svc.Register(context.Background(), "alice@example.com", "Alice", "", account.RoleCustomer)
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), "ALICE@example.com", "Imposter", "", account.RoleCustomer)
	require.Error(t, err)
	assert.True(t, domainerrors.IsCode(err, "EMAIL_TAKEN"), "got %v", err)
	assert.Equal(t, 1, accounts.creates, "duplicates fail before the insert, without retries")
}

func TestRegisterRetriesTransientFailure(t *testing.T) {
	accounts := newFakeAccounts()
	accounts.createErrs = []error{errors.New("connection reset")}
	svc, _ := newService(accounts, settings.Default())

	a, err := svc.Register(context.Background(), "bob@example.com", "Bob", "", account.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, 2, accounts.creates)
	assert.NotNil(t, accounts.byEmail[a.Email])
}

func TestApprove(t *testing.T) {
	admin := approvedAdmin(t)
	customer, err := account.NewAccount("carol@example.com", "Carol", "", account.RoleCustomer)
	require.NoError(t, err)
	investigator, err := account.NewAccount("dave@example.com", "Dave", "", account.RoleInvestigator)
	require.NoError(t, err)

	accounts := newFakeAccounts(admin, customer, investigator)
	pol := settings.Default()
	pol.DefaultUserBalance = 2000
	svc, auditor := newService(accounts, pol)

	got, err := svc.Approve(context.Background(), admin.ID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StatusApproved, got.Status)
	assert.True(t, got.Balance.Equal(usd(t, 2000)), "customers receive the configured starting balance")

	got, err = svc.Approve(context.Background(), admin.ID, investigator.ID)
	require.NoError(t, err)
	assert.True(t, got.Balance.IsZero(), "investigators do not hold funds")

	assert.Equal(t, []audit.Action{audit.ActionApproveUser, audit.ActionApproveUser}, auditor.actions)

	_, err = svc.Approve(context.Background(), admin.ID, customer.ID)
	assert.True(t, domainerrors.IsCode(err, "NOT_APPROVABLE"), "re-approval is rejected, got %v", err)
}

func TestReject(t *testing.T) {
	admin := approvedAdmin(t)
	customer, err := account.NewAccount("erin@example.com", "Erin", "", account.RoleCustomer)
	require.NoError(t, err)
	accounts := newFakeAccounts(admin, customer)
	svc, _ := newService(accounts, settings.Default())

	got, err := svc.Reject(context.Background(), admin.ID, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, account.StatusRejected, got.Status)

	_, err = svc.Reject(context.Background(), admin.ID, customer.ID)
	assert.True(t, domainerrors.IsCode(err, "NOT_REJECTABLE"), "got %v", err)
}

func TestAdminRequired(t *testing.T) {
	admin := approvedAdmin(t)
	customer, err := account.NewAccount("frank@example.com", "Frank", "", account.RoleCustomer)
	require.NoError(t, err)
	pendingAdmin, err := account.NewAccount("pending-admin@example.com", "Pending Admin", "", account.RoleAdmin)
	require.NoError(t, err)
	accounts := newFakeAccounts(admin, customer, pendingAdmin)
	svc, _ := newService(accounts, settings.Default())

	_, err = svc.Approve(context.Background(), customer.ID, customer.ID)
	assert.True(t, domainerrors.IsCode(err, "FORBIDDEN"), "got %v", err)

	_, err = svc.ListPending(context.Background(), pendingAdmin.ID)
	assert.True(t, domainerrors.IsCode(err, "FORBIDDEN"), "an unapproved admin has no powers, got %v", err)
}

func TestListPending(t *testing.T) {
	admin := approvedAdmin(t)
	p1, err := account.NewAccount("p1@example.com", "P One", "", account.RoleCustomer)
	require.NoError(t, err)
	p2, err := account.NewAccount("p2@example.com", "P Two", "", account.RoleInvestigator)
	require.NoError(t, err)
	accounts := newFakeAccounts(admin, p1, p2)
	svc, _ := newService(accounts, settings.Default())

	got, err := svc.ListPending(context.Background(), admin.ID)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
