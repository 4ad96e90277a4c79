package errors

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithCauseLeavesSentinelUntouched(t *testing.T) {
	cause := errors.New("row already resolved")

	wrapped := ErrAlreadyResolved.WithCause(cause)

	require.NotSame(t, ErrAlreadyResolved, wrapped)
	assert.Nil(t, ErrAlreadyResolved.Cause)
	assert.Equal(t, "Case is already resolved", ErrAlreadyResolved.Error())

	assert.Equal(t, cause, wrapped.Cause)
	assert.Equal(t, "ALREADY_RESOLVED", wrapped.Code)
	assert.Equal(t, "Case is already resolved: row already resolved", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestWithDetailsLeavesReceiverUntouched(t *testing.T) {
	base := NewBusinessError("INSUFFICIENT_FUNDS", "Insufficient funds")

	detailed := base.WithDetails(map[string]interface{}{"balance": "12.00"})

	require.NotSame(t, base, detailed)
	assert.Nil(t, base.Details)
	assert.Equal(t, "12.00", detailed.Details["balance"])
	assert.Equal(t, base.Code, detailed.Code)
}

// Two requests can fail on the same sentinel at the same time; each must see
// its own cause, not the other request's.
func TestWithCauseConcurrentOnSharedSentinel(t *testing.T) {
	const workers = 8

	var wg sync.WaitGroup
	results := make([]*AppError, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = ErrCaseNotAssignable.WithCause(fmt.Errorf("request %d", i))
		}(i)
	}
	wg.Wait()

	assert.Nil(t, ErrCaseNotAssignable.Cause)
	for i, res := range results {
		require.NotNil(t, res)
		assert.EqualError(t, res.Cause, fmt.Sprintf("request %d", i))
	}
}

func TestErrorHelpers(t *testing.T) {
	scoringErr := NewScoringUnavailableError("model training failed").WithCause(errors.New("nan gradient"))

	assert.Equal(t, ErrorTypeScoring, scoringErr.Type)
	assert.True(t, scoringErr.Retryable)
	assert.True(t, IsCode(scoringErr, "SCORING_UNAVAILABLE"))
	assert.False(t, IsCode(errors.New("plain"), "SCORING_UNAVAILABLE"))
	assert.Equal(t, 503, GetStatusCode(scoringErr))
	assert.Equal(t, 500, GetStatusCode(errors.New("plain")))
}
