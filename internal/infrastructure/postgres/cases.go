package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	domainerrors "github.com/jmorland/securepay-backend/internal/domain/errors"
	"github.com/jmorland/securepay-backend/internal/domain/investigation"
)

// CaseRepository persists investigation cases. A partial unique index on
// transaction_id for non-resolved rows enforces the one-open-case rule at
// the storage layer.
type CaseRepository struct {
	store *Store
}

func NewCaseRepository(store *Store) *CaseRepository {
	return &CaseRepository{store: store}
}

const caseColumns = `id, transaction_id, assigned_to, status, finding, report, priority, created_at, updated_at`

func scanCase(row interface{ Scan(...any) error }) (*investigation.Case, error) {
	var (
		c       investigation.Case
		status  string
		finding string
	)
	err := row.Scan(&c.ID, &c.TransactionID, &c.AssignedTo, &status, &finding,
		&c.Report, &c.Priority, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.Status = investigation.Status(status)
	c.Finding = investigation.Finding(finding)
	if !c.Status.IsValid() {
		return nil, fmt.Errorf("case %s: unknown status %q", c.ID, status)
	}
	return &c, nil
}

// Create inserts a new case. A second open case for the same transaction
// trips the partial unique index and maps to DuplicateCase.
func (r *CaseRepository) Create(ctx context.Context, c *investigation.Case) error {
	_, err := r.store.q(ctx).ExecContext(ctx, `
		INSERT INTO cases (id, transaction_id, assigned_to, status, finding, report, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.TransactionID, c.AssignedTo, string(c.Status), string(c.Finding),
		c.Report, string(c.Priority), c.CreatedAt, c.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domainerrors.ErrDuplicateCase
	}
	if err != nil {
		return fmt.Errorf("inserting case: %w", err)
	}
	return nil
}

// Get loads one case by id.
func (r *CaseRepository) Get(ctx context.Context, id uuid.UUID) (*investigation.Case, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading case: %w", err)
	}
	return c, nil
}

// GetForUpdate loads one case under a row lock. Must run inside InTx.
func (r *CaseRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*investigation.Case, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE id = $1 FOR UPDATE`, id)
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domainerrors.ErrCaseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking case: %w", err)
	}
	return c, nil
}

// Update writes assignment, status, finding and report changes.
func (r *CaseRepository) Update(ctx context.Context, c *investigation.Case) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE cases
		SET assigned_to = $2, status = $3, finding = $4, report = $5, updated_at = NOW()
		WHERE id = $1`,
		c.ID, c.AssignedTo, string(c.Status), string(c.Finding), c.Report,
	)
	if err != nil {
		return fmt.Errorf("updating case: %w", err)
	}
	return requireRow(res, domainerrors.ErrCaseNotFound)
}

// ResolveGuarded writes the resolved case only if the stored row is not
// already Resolved. Returns false when the guard failed, so a concurrent
// resolution that won the race is detected instead of overwritten.
func (r *CaseRepository) ResolveGuarded(ctx context.Context, c *investigation.Case) (bool, error) {
	res, err := r.store.q(ctx).ExecContext(ctx, `
		UPDATE cases
		SET assigned_to = $2, status = $3, finding = $4, report = $5, updated_at = NOW()
		WHERE id = $1 AND status <> $6`,
		c.ID, c.AssignedTo, string(c.Status), string(c.Finding), c.Report,
		string(investigation.StatusResolved),
	)
	if err != nil {
		return false, fmt.Errorf("resolving case: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// OpenByTransaction returns the open case for a transaction, or nil when
// none exists.
func (r *CaseRepository) OpenByTransaction(ctx context.Context, transactionID uuid.UUID) (*investigation.Case, error) {
	row := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT `+caseColumns+` FROM cases WHERE transaction_id = $1 AND status <> $2`,
		transactionID, string(investigation.StatusResolved))
	c, err := scanCase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading open case: %w", err)
	}
	return c, nil
}

// ListForInvestigator returns unassigned cases plus cases assigned to the
// investigator, optionally filtered by status, newest first.
func (r *CaseRepository) ListForInvestigator(ctx context.Context, investigatorID uuid.UUID, status *investigation.Status) ([]*investigation.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE (assigned_to IS NULL OR assigned_to = $1)`
	args := []any{investigatorID}
	if status != nil {
		query += ` AND status = $2`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.store.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()

	var out []*investigation.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
