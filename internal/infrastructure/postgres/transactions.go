package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/payment"
	"github.com/jmorland/securepay-backend/internal/domain/values"
	"github.com/jmorland/securepay-backend/internal/service/velocity"
)

// TransactionRepository persists ledger records. Risk details are stored as
// one JSONB blob; everything else is a typed column.
type TransactionRepository struct {
	store *Store
}

func NewTransactionRepository(store *Store) *TransactionRepository {
	return &TransactionRepository{store: store}
}

const transactionColumns = `id, type, sender_id, recipient_id, amount, currency, description,
	ip, device, location, status, risk_score, details, created_at`

func scanTransaction(row interface{ Scan(...any) error }) (*payment.Transaction, error) {
	var (
		t       payment.Transaction
		txType  string
		amount  string
		status  string
		details []byte
	)
	err := row.Scan(&t.ID, &txType, &t.SenderID, &t.RecipientID, &amount, &t.Currency,
		&t.Description, &t.Context.IP, &t.Context.Device, &t.Context.Location,
		&status, &t.RiskScore, &details, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	t.Type = payment.Type(txType)
	t.Status = payment.Status(status)
	if !t.Status.IsValid() {
		return nil, fmt.Errorf("transaction %s: unknown status %q", t.ID, status)
	}
	if t.Amount, err = values.NewMoneyFromString(amount, t.Currency); err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", t.ID, err)
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &t.Details); err != nil {
			return nil, fmt.Errorf("transaction %s details: %w", t.ID, err)
		}
	}
	return &t, nil
}

// Create inserts a new ledger record.
func (r *TransactionRepository) Create(ctx context.Context, t *payment.Transaction) error {
	details, err := json.Marshal(t.Details)
	if err != nil {
		return fmt.Errorf("encoding details: %w", err)
	}
	_, err = r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO transactions (id, type, sender_id, recipient_id, amount, currency, description,
			ip, device, location, status, risk_score, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		t.ID, string(t.Type), t.SenderID, t.RecipientID, t.Amount.Amount().String(), t.Currency,
		t.Description, t.Context.IP, t.Context.Device, t.Context.Location,
		string(t.Status), t.RiskScore, details, t.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting transaction: %w", err)
	}
	return nil
}

// Get loads one ledger record.
func (r *TransactionRepository) Get(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading transaction: %w", err)
	}
	return t, nil
}

// GetForUpdate loads one record under a row lock. Must run inside InTx.
func (r *TransactionRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id)
	t, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking transaction: %w", err)
	}
	return t, nil
}

// Update writes the mutable fields: status, risk score, details. Amount,
// parties and captured context are immutable and never touched.
func (r *TransactionRepository) Update(ctx context.Context, t *payment.Transaction) error {
	details, err := json.Marshal(t.Details)
	if err != nil {
		return fmt.Errorf("encoding details: %w", err)
	}
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE transactions SET status = $2, risk_score = $3, details = $4 WHERE id = $1`,
		t.ID, string(t.Status), t.RiskScore, details,
	)
	if err != nil {
		return fmt.Errorf("updating transaction: %w", err)
	}
	return requireRow(res, domainerrors.ErrTransactionNotFound)
}

// ExistsBetween reports whether the sender has a prior payment to the
// recipient, in any status.
func (r *TransactionRepository) ExistsBetween(ctx context.Context, senderID, recipientID uuid.UUID) (bool, error) {
	var exists bool
	err := r.store.q(ctx).QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE type = 'payment' AND sender_id = $1 AND recipient_id = $2
		)`, senderID, recipientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking payment history: %w", err)
	}
	return exists, nil
}

// RecentSettledAmounts returns the sender's latest settled payment amounts,
// newest first, at most limit entries.
func (r *TransactionRepository) RecentSettledAmounts(ctx context.Context, senderID uuid.UUID, limit int) ([]float64, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `
		SELECT amount FROM transactions
		WHERE type = 'payment' AND sender_id = $1 AND status IN ($2, $3)
		ORDER BY created_at DESC
		LIMIT $4`,
		senderID, string(payment.StatusSettled), string(payment.StatusSettledByOverride), limit)
	if err != nil {
		return nil, fmt.Errorf("loading settled amounts: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var amount float64
		if err := rows.Scan(&amount); err != nil {
			return nil, err
		}
		out = append(out, amount)
	}
	return out, rows.Err()
}

// SentSince returns the sender's outgoing payments created at or after the
// cutoff, newest first. Feeds the velocity checker.
func (r *TransactionRepository) SentSince(ctx context.Context, senderID uuid.UUID, since time.Time) ([]velocity.HistoryRecord, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `
		SELECT recipient_id, amount, status, created_at FROM transactions
		WHERE type = 'payment' AND sender_id = $1 AND created_at >= $2
		ORDER BY created_at DESC`,
		senderID, since)
	if err != nil {
		return nil, fmt.Errorf("loading recent transactions: %w", err)
	}
	defer rows.Close()

	var out []velocity.HistoryRecord
	for rows.Next() {
		var (
			rec    velocity.HistoryRecord
			status string
		)
		if err := rows.Scan(&rec.RecipientID, &rec.Amount, &status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Status = payment.Status(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
