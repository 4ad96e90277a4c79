package risk

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmorland/securepay-backend/internal/domain/payment"
	"github.com/jmorland/securepay-backend/internal/domain/settings"
)

type stubScorer struct {
	prob float64
	err  error
}

func (s stubScorer) Probability(Features) (float64, error) {
	return s.prob, s.err
}

type stubPolicy struct {
	pol settings.Policy
	err error
}

func (s *stubPolicy) Policy(context.Context) (settings.Policy, error) {
	return s.pol, s.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestEvaluateBlendsScores(t *testing.T) {
	svc := NewService(stubScorer{prob: 0.5}, &stubPolicy{pol: settings.Default()}, discardLogger())

	// Micro-transaction: rule score 0.40, model 0.5 -> 0.7*0.5 + 0.3*0.4 = 0.47.
	a, err := svc.Evaluate(context.Background(), Input{Amount: 0.50, Now: tuesdayNoon})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, a.MLProbability, 1e-9)
	assert.InDelta(t, 0.40, a.RuleScore, 1e-9)
	assert.InDelta(t, 0.47, a.FinalScore, 1e-9)
	assert.False(t, a.RuleOnly)
	assert.Equal(t, payment.StatusFlagged, a.Outcome)
}

func TestEvaluateOutcomeThresholds(t *testing.T) {
	// Thresholds chosen so 0.7 * prob lands exactly on them, to pin the
	// boundary behavior: a score equal to a threshold takes the higher band.
	pol := settings.Default()
	pol.FlagThreshold = 0.35
	pol.BlockThreshold = 0.7

	tests := []struct {
		name string
		prob float64
		want payment.Status
	}{
		{"well below flag", 0.1, payment.StatusSettled},
		{"just below flag", 0.49, payment.StatusSettled},
		{"exactly flag threshold", 0.5, payment.StatusFlagged},
		{"between thresholds", 0.7, payment.StatusFlagged},
		{"just below block", 0.99, payment.StatusFlagged},
		{"exactly block threshold", 1.0, payment.StatusBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(stubScorer{prob: tt.prob}, &stubPolicy{pol: pol}, discardLogger())

			// Clean input: rule score zero, so final = 0.7 * prob.
			a, err := svc.Evaluate(context.Background(), Input{
				Amount:        50,
				SenderBalance: 10000,
				AccountAge:    90 * 24 * time.Hour,
				Now:           tuesdayNoon,
			})
			require.NoError(t, err)
			assert.Zero(t, a.RuleScore)
			assert.Equal(t, tt.want, a.Outcome)
		})
	}
}

func TestEvaluateRuleOnlyFallback(t *testing.T) {
	svc := NewService(stubScorer{err: errors.New("model diverged")}, &stubPolicy{pol: settings.Default()}, discardLogger())

	a, err := svc.Evaluate(context.Background(), Input{Amount: 0.50, Now: tuesdayNoon})
	require.NoError(t, err, "scorer failure must not fail the payment")
	assert.True(t, a.RuleOnly)
	assert.Zero(t, a.MLProbability)
	assert.InDelta(t, 0.40, a.FinalScore, 1e-9)
	assert.Equal(t, payment.StatusFlagged, a.Outcome)
}

func TestEvaluateReadsPolicyLive(t *testing.T) {
	policy := &stubPolicy{pol: settings.Default()}
	svc := NewService(stubScorer{prob: 0.5}, policy, discardLogger())

	in := Input{Amount: 50, SenderBalance: 10000, AccountAge: 90 * 24 * time.Hour, Now: tuesdayNoon}

	a, err := svc.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSettled, a.Outcome)

	// Tightening the flag threshold applies to the very next evaluation.
	policy.pol.FlagThreshold = 0.3
	a, err = svc.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFlagged, a.Outcome)
}

func TestEvaluatePolicyErrorPropagates(t *testing.T) {
	svc := NewService(stubScorer{prob: 0.1}, &stubPolicy{err: errors.New("store down")}, discardLogger())
	_, err := svc.Evaluate(context.Background(), Input{Amount: 50})
	assert.Error(t, err)
}

func TestEvaluateResolvesHighRiskLocation(t *testing.T) {
	svc := NewService(stubScorer{prob: 0}, &stubPolicy{pol: settings.Default()}, discardLogger())

	a, err := svc.Evaluate(context.Background(), Input{
		Amount:        50,
		Location:      "VPN-Detected",
		SenderBalance: 10000,
		AccountAge:    90 * 24 * time.Hour,
		Now:           tuesdayNoon,
	})
	require.NoError(t, err)
	assert.True(t, a.Indicators["unusual_location"])
	require.Len(t, a.RiskFactors, 1)
	assert.Equal(t, "High-risk geographic location: VPN-Detected", a.RiskFactors[0])
}
