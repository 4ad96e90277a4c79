package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmorland/securepay-backend/internal/domain/payment"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
)

// Stats is a sender's rolling-window activity snapshot. Only payments that
// actually moved or reserved funds (settled or flagged) are counted; blocked
// and rejected attempts never consume velocity headroom.
type Stats struct {
	Amount1h            float64 `json:"amount_1h"`
	Amount24h           float64 `json:"amount_24h"`
	Count1h             int     `json:"tx_count_1h"`
	Count24h            int     `json:"tx_count_24h"`
	UniqueRecipients24h int     `json:"unique_recipients_24h"`
}

// HistoryRecord is the slice of a stored transaction the checker needs.
type HistoryRecord struct {
	RecipientID *uuid.UUID
	Amount      float64
	Status      payment.Status
	CreatedAt   time.Time
}

// HistoryReader supplies a sender's recent outgoing transactions, newest
// first, created at or after the given cutoff.
type HistoryReader interface {
	SentSince(ctx context.Context, senderID uuid.UUID, since time.Time) ([]HistoryRecord, error)
}

// Checker computes rolling aggregates and evaluates them against policy
// limits before a new payment is admitted.
type Checker struct {
	history HistoryReader
}

func NewChecker(history HistoryReader) *Checker {
	return &Checker{history: history}
}

// countedStatus reports whether a historical transaction consumes velocity.
func countedStatus(s payment.Status) bool {
	return s == payment.StatusSettled || s == payment.StatusFlagged ||
		s == payment.StatusSettledByOverride
}

// Snapshot computes the sender's current window aggregates as of now.
func (c *Checker) Snapshot(ctx context.Context, senderID uuid.UUID, now time.Time) (Stats, error) {
	records, err := c.history.SentSince(ctx, senderID, now.Add(-24*time.Hour))
	if err != nil {
		return Stats{}, fmt.Errorf("loading sender history: %w", err)
	}

	var stats Stats
	hourAgo := now.Add(-time.Hour)
	recipients := make(map[uuid.UUID]struct{})
	for _, r := range records {
		if !countedStatus(r.Status) {
			continue
		}
		stats.Amount24h += r.Amount
		stats.Count24h++
		if r.RecipientID != nil {
			recipients[*r.RecipientID] = struct{}{}
		}
		if !r.CreatedAt.Before(hourAgo) {
			stats.Amount1h += r.Amount
			stats.Count1h++
		}
	}
	stats.UniqueRecipients24h = len(recipients)
	return stats, nil
}

// Check snapshots the sender's windows and returns any limits the candidate
// payment would breach. The candidate amount is added to each window before
// comparison, so a payment that itself crosses a limit is a violation.
//
// The snapshot covers committed history only. Concurrent payments from the
// same sender each snapshot before either write commits, so enforcement
// across in-flight submissions is best-effort.
func (c *Checker) Check(ctx context.Context, senderID uuid.UUID, amount float64, now time.Time, limits settings.VelocityLimits) ([]string, Stats, error) {
	stats, err := c.Snapshot(ctx, senderID, now)
	if err != nil {
		return nil, Stats{}, err
	}

	var violations []string
	if stats.Amount1h+amount > limits.MaxAmount1h {
		violations = append(violations, fmt.Sprintf(
			"1-hour amount limit exceeded: $%.2f > $%.2f", stats.Amount1h+amount, limits.MaxAmount1h))
	}
	if stats.Amount24h+amount > limits.MaxAmount24h {
		violations = append(violations, fmt.Sprintf(
			"24-hour amount limit exceeded: $%.2f > $%.2f", stats.Amount24h+amount, limits.MaxAmount24h))
	}
	if stats.Count1h+1 > limits.MaxCount1h {
		violations = append(violations, fmt.Sprintf(
			"1-hour transaction count limit exceeded: %d > %d", stats.Count1h+1, limits.MaxCount1h))
	}
	if stats.Count24h+1 > limits.MaxCount24h {
		violations = append(violations, fmt.Sprintf(
			"24-hour transaction count limit exceeded: %d > %d", stats.Count24h+1, limits.MaxCount24h))
	}
	if stats.UniqueRecipients24h > limits.MaxUniqueRecipients24h {
		violations = append(violations, fmt.Sprintf(
			"24-hour unique recipient limit exceeded: %d > %d", stats.UniqueRecipients24h, limits.MaxUniqueRecipients24h))
	}
	return violations, stats, nil
}
