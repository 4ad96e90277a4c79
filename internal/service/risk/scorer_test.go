package risk

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFeatures() Features {
	return Features{
		Amount:             250,
		Hour:               14,
		DayOfWeek:          2,
		FailedAttempts:     1,
		AmountVelocity1h:   120,
		AmountVelocity24h:  900,
		TxCount1h:          1,
		TxCount24h:         4,
		RecipientNew:       1,
		SenderBalanceRatio: 0.12,
	}
}

func TestLogisticScorerDeterministic(t *testing.T) {
	f := sampleFeatures()

	first, err := NewLogisticScorer().Probability(f)
	require.NoError(t, err)
	second, err := NewLogisticScorer().Probability(f)
	require.NoError(t, err)

	assert.Equal(t, first, second, "fresh scorers must train to the same model")

	// Repeated calls on one instance are also stable.
	s := NewLogisticScorer()
	a, err := s.Probability(f)
	require.NoError(t, err)
	b, err := s.Probability(f)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestLogisticScorerProbabilityRange(t *testing.T) {
	s := NewLogisticScorer()

	inputs := []Features{
		{},
		sampleFeatures(),
		{Amount: 1e6, Hour: 3, FailedAttempts: 10, SenderBalanceRatio: 1},
		{Amount: 0.01, DeviceRisk: 1, UnusualLocation: 1, RoundAmount: 1},
	}
	for _, f := range inputs {
		p, err := s.Probability(f)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
	}
}

func TestLogisticScorerSeparatesPopulations(t *testing.T) {
	s := NewLogisticScorer()

	benign := Features{
		Amount:             60,
		Hour:               13,
		DayOfWeek:          1,
		TxCount24h:         2,
		SenderBalanceRatio: 0.05,
	}
	hostile := Features{
		Amount:             4500,
		Hour:               2,
		DayOfWeek:          6,
		FailedAttempts:     4,
		UnusualLocation:    1,
		DeviceRisk:         1,
		AmountVelocity1h:   2000,
		AmountVelocity24h:  8000,
		TxCount1h:          5,
		TxCount24h:         15,
		RecipientNew:       1,
		SenderBalanceRatio: 0.9,
		RoundAmount:        1,
	}

	pBenign, err := s.Probability(benign)
	require.NoError(t, err)
	pHostile, err := s.Probability(hostile)
	require.NoError(t, err)
	assert.Greater(t, pHostile, pBenign)
}

func TestLogisticScorerConcurrentFirstUse(t *testing.T) {
	s := NewLogisticScorer()
	f := sampleFeatures()

	var wg sync.WaitGroup
	results := make([]float64, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := s.Probability(f)
			assert.NoError(t, err)
			results[i] = p
		}(i)
	}
	wg.Wait()

	for _, p := range results[1:] {
		assert.Equal(t, results[0], p)
	}
}

func TestSigmoidClamped(t *testing.T) {
	assert.Equal(t, predictEpsilon, sigmoid(-100))
	assert.Equal(t, 1-predictEpsilon, sigmoid(100))
	assert.InDelta(t, 0.5, sigmoid(0), 1e-12)
}
