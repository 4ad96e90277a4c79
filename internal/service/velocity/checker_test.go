package velocity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorland/securepay-backend/internal/domain/payment"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
)

type stubHistory struct {
	records []HistoryRecord
	err     error

	gotSender uuid.UUID
	gotSince  time.Time
}

func (s *stubHistory) SentSince(_ context.Context, senderID uuid.UUID, since time.Time) ([]HistoryRecord, error) {
	s.gotSender = senderID
	s.gotSince = since
	return s.records, s.err
}

var checkNow = time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)

func rec(recipient uuid.UUID, amount float64, status payment.Status, age time.Duration) HistoryRecord {
	return HistoryRecord{
		RecipientID: &recipient,
		Amount:      amount,
		Status:      status,
		CreatedAt:   checkNow.Add(-age),
	}
}

func TestSnapshotWindows(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	history := &stubHistory{records: []HistoryRecord{
		rec(a, 100, payment.StatusSettled, 10*time.Minute),
		rec(b, 200, payment.StatusFlagged, 45*time.Minute),
		rec(a, 300, payment.StatusSettledByOverride, 5*time.Hour),
		rec(b, 400, payment.StatusSettled, 23*time.Hour),
	}}

	sender := uuid.New()
	stats, err := NewChecker(history).Snapshot(context.Background(), sender, checkNow)
	require.NoError(t, err)

	assert.Equal(t, sender, history.gotSender)
	assert.Equal(t, checkNow.Add(-24*time.Hour), history.gotSince)

	assert.Equal(t, 300.0, stats.Amount1h)
	assert.Equal(t, 2, stats.Count1h)
	assert.Equal(t, 1000.0, stats.Amount24h)
	assert.Equal(t, 4, stats.Count24h)
	assert.Equal(t, 2, stats.UniqueRecipients24h)
}

func TestSnapshotIgnoresNonCountedStatuses(t *testing.T) {
	a := uuid.New()
	history := &stubHistory{records: []HistoryRecord{
		rec(a, 500, payment.StatusBlocked, time.Minute),
		rec(a, 500, payment.StatusRejectedFraudulent, time.Minute),
		rec(a, 500, payment.StatusRejectedInsufficientFunds, time.Minute),
		rec(a, 75, payment.StatusSettled, time.Minute),
	}}

	stats, err := NewChecker(history).Snapshot(context.Background(), uuid.New(), checkNow)
	require.NoError(t, err)
	assert.Equal(t, 75.0, stats.Amount24h)
	assert.Equal(t, 1, stats.Count24h)
	assert.Equal(t, 1, stats.UniqueRecipients24h)
}

func TestSnapshotExactHourBoundaryIncluded(t *testing.T) {
	history := &stubHistory{records: []HistoryRecord{
		rec(uuid.New(), 50, payment.StatusSettled, time.Hour),
	}}
	stats, err := NewChecker(history).Snapshot(context.Background(), uuid.New(), checkNow)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count1h)
	assert.Equal(t, 50.0, stats.Amount1h)
}

func TestSnapshotNilRecipient(t *testing.T) {
	history := &stubHistory{records: []HistoryRecord{
		{Amount: 20, Status: payment.StatusSettled, CreatedAt: checkNow.Add(-time.Minute)},
	}}
	stats, err := NewChecker(history).Snapshot(context.Background(), uuid.New(), checkNow)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Count24h)
	assert.Zero(t, stats.UniqueRecipients24h)
}

func TestCheckCandidateCountsTowardLimits(t *testing.T) {
	limits := settings.VelocityLimits{
		MaxAmount1h:            1000,
		MaxAmount24h:           5000,
		MaxCount1h:             3,
		MaxCount24h:            10,
		MaxUniqueRecipients24h: 20,
	}

	t.Run("candidate amount breaches the hour window", func(t *testing.T) {
		history := &stubHistory{records: []HistoryRecord{
			rec(uuid.New(), 900, payment.StatusSettled, time.Minute),
		}}
		violations, stats, err := NewChecker(history).Check(context.Background(), uuid.New(), 200, checkNow, limits)
		require.NoError(t, err)
		require.Len(t, violations, 1)
		assert.Equal(t, "1-hour amount limit exceeded: $1100.00 > $1000.00", violations[0])
		assert.Equal(t, 900.0, stats.Amount1h, "stats report history only, without the candidate")
	})

	t.Run("candidate fills the window exactly", func(t *testing.T) {
		history := &stubHistory{records: []HistoryRecord{
			rec(uuid.New(), 900, payment.StatusSettled, time.Minute),
		}}
		violations, _, err := NewChecker(history).Check(context.Background(), uuid.New(), 100, checkNow, limits)
		require.NoError(t, err)
		assert.Empty(t, violations, "reaching a limit exactly is allowed")
	})

	t.Run("candidate transaction breaches the count limit", func(t *testing.T) {
		r := uuid.New()
		history := &stubHistory{records: []HistoryRecord{
			rec(r, 10, payment.StatusSettled, time.Minute),
			rec(r, 10, payment.StatusSettled, 2*time.Minute),
			rec(r, 10, payment.StatusSettled, 3*time.Minute),
		}}
		violations, _, err := NewChecker(history).Check(context.Background(), uuid.New(), 10, checkNow, limits)
		require.NoError(t, err)
		require.Len(t, violations, 1)
		assert.Equal(t, "1-hour transaction count limit exceeded: 4 > 3", violations[0])
	})

	t.Run("multiple limits at once", func(t *testing.T) {
		var records []HistoryRecord
		for i := 0; i < 12; i++ {
			records = append(records, rec(uuid.New(), 500, payment.StatusSettled, time.Duration(i+2)*time.Hour))
		}
		history := &stubHistory{records: records}
		violations, _, err := NewChecker(history).Check(context.Background(), uuid.New(), 100, checkNow, limits)
		require.NoError(t, err)
		// 24h amount (6100 > 5000) and 24h count (13 > 10).
		assert.Len(t, violations, 2)
	})
}

// The checker reads committed history only. Submitted one after the other,
// the second payment sees the first and the 24-hour breach is reported. Two
// payments in flight at once each snapshot before either write commits, so
// neither sees the other and both pass: window enforcement across concurrent
// submissions from the same sender is best-effort.
func TestCheckSequentialSeesPriorPaymentConcurrentMayNot(t *testing.T) {
	limits := settings.VelocityLimits{
		MaxAmount1h:            10000,
		MaxAmount24h:           5000,
		MaxCount1h:             100,
		MaxCount24h:            100,
		MaxUniqueRecipients24h: 100,
	}
	sender := uuid.New()
	history := &stubHistory{}
	checker := NewChecker(history)

	violations, _, err := checker.Check(context.Background(), sender, 3000, checkNow, limits)
	require.NoError(t, err)
	assert.Empty(t, violations, "first payment fits the window")

	// The first payment settles and its write commits.
	history.records = append(history.records, rec(uuid.New(), 3000, payment.StatusSettled, time.Minute))

	violations, _, err = checker.Check(context.Background(), sender, 3000, checkNow, limits)
	require.NoError(t, err)
	require.Len(t, violations, 1, "sequential submission sees the committed payment")
	assert.Equal(t, "24-hour amount limit exceeded: $6000.00 > $5000.00", violations[0])

	// Concurrent submission: both checks run against the same pre-write
	// snapshot, so the combined $6000 goes unreported.
	fresh := NewChecker(&stubHistory{})
	first, _, err := fresh.Check(context.Background(), sender, 3000, checkNow, limits)
	require.NoError(t, err)
	second, _, err := fresh.Check(context.Background(), sender, 3000, checkNow, limits)
	require.NoError(t, err)
	assert.Empty(t, first)
	assert.Empty(t, second)
}

func TestCheckHistoryError(t *testing.T) {
	history := &stubHistory{err: errors.New("db down")}
	_, _, err := NewChecker(history).Check(context.Background(), uuid.New(), 10, checkNow, settings.Default().Velocity)
	assert.Error(t, err)
}
