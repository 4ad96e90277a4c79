package auditlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/audit"
)

// Store persists audit entries. Append must be safe to retry: entries carry
// a client-generated id, so a duplicate insert is a no-op for the store.
type Store interface {
	Append(ctx context.Context, e *audit.Entry) error
}

// Writer records audit entries best-effort. A failed write is retried a few
// times with increasing backoff and then dropped with a log line; the action
// being audited never fails or blocks on audit.
type Writer struct {
	store  Store
	logger *slog.Logger

	maxRetries  uint64
	initialWait time.Duration
	maxWait     time.Duration
}

func NewWriter(store Store, logger *slog.Logger) *Writer {
	return &Writer{
		store:       store,
		logger:      logger,
		maxRetries:  3,
		initialWait: 50 * time.Millisecond,
		maxWait:     500 * time.Millisecond,
	}
}

// Record writes one entry, retrying transient failures. It never returns an
// error; callers treat auditing as fire-and-forget.
func (w *Writer) Record(ctx context.Context, actorID uuid.UUID, action audit.Action, entityType, entityID, details string) {
	entry := audit.NewEntry(actorID, action, entityType, entityID, details)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.initialWait
	bo.MaxInterval = w.maxWait

	op := func() error {
		return w.store.Append(ctx, entry)
	}
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, w.maxRetries), ctx))
	if err != nil {
		w.logger.ErrorContext(ctx, "audit write dropped after retries",
			"error", err,
			"action", string(action),
			"entity_type", entityType,
			"entity_id", entityID,
			"actor_id", actorID,
		)
	}
}
