package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/account"
	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/values"
)

// AccountRepository persists accounts. All balances are stored as NUMERIC
// in the ledger currency.
type AccountRepository struct {
	store *Store
}

func NewAccountRepository(store *Store) *AccountRepository {
	return &AccountRepository{store: store}
}

const accountColumns = `id, email, name, phone, role, status, balance, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*account.Account, error) {
	var (
		a       account.Account
		role    string
		status  string
		balance string
	)
	err := row.Scan(&a.ID, &a.Email, &a.Name, &a.Phone, &role, &status, &balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if a.Role, err = account.ParseRole(role); err != nil {
		return nil, fmt.Errorf("account %s: %w", a.ID, err)
	}
	if a.Status, err = account.ParseStatus(status); err != nil {
		return nil, fmt.Errorf("account %s: %w", a.ID, err)
	}
	if a.Balance, err = values.NewMoneyFromString(balance, values.USD); err != nil {
		return nil, fmt.Errorf("account %s balance: %w", a.ID, err)
	}
	return &a, nil
}

// Get loads one account by id.
func (r *AccountRepository) Get(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading account: %w", err)
	}
	return a, nil
}

// GetForUpdate loads one account under a row lock. Must run inside InTx.
func (r *AccountRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking account: %w", err)
	}
	return a, nil
}

// GetByEmail returns nil, nil when no account has the email.
func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (*account.Account, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
	a, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading account by email: %w", err)
	}
	return a, nil
}

// Create inserts a new account.
func (r *AccountRepository) Create(ctx context.Context, a *account.Account) error {
	_, err := r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO accounts (id, email, name, phone, role, status, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.Email, a.Name, a.Phone, a.Role.String(), a.Status.String(),
		a.Balance.Amount().String(), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting account: %w", err)
	}
	return nil
}

// Update writes profile, status, role and balance changes.
func (r *AccountRepository) Update(ctx context.Context, a *account.Account) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE accounts
		SET email = $2, name = $3, phone = $4, role = $5, status = $6, balance = $7, updated_at = NOW()
		WHERE id = $1`,
		a.ID, a.Email, a.Name, a.Phone, a.Role.String(), a.Status.String(),
		a.Balance.Amount().String(),
	)
	if err != nil {
		return fmt.Errorf("updating account: %w", err)
	}
	return requireRow(res, domainerrors.ErrAccountNotFound)
}

// UpdateBalance writes only the balance column.
func (r *AccountRepository) UpdateBalance(ctx context.Context, a *account.Account) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE accounts SET balance = $2, updated_at = NOW() WHERE id = $1`,
		a.ID, a.Balance.Amount().String(),
	)
	if err != nil {
		return fmt.Errorf("updating balance: %w", err)
	}
	return requireRow(res, domainerrors.ErrAccountNotFound)
}

// ListByStatus returns accounts in the given status, oldest first.
func (r *AccountRepository) ListByStatus(ctx context.Context, status account.Status) ([]*account.Account, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE status = $1 ORDER BY created_at`,
		status.String())
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	defer rows.Close()

	var out []*account.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func requireRow(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
