package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeSplitGlobalMargin(t *testing.T) {
	fee, payout, err := ComputeSplit(1000, 20)
	require.NoError(t, err)
	assert.Equal(t, 200.0, fee)
	assert.Equal(t, 800.0, payout)
}

func TestComputeSplitRoundingRemainder(t *testing.T) {
	// 999.99 * 33% = 329.9967, rounds half-up to 330.00; the payout absorbs
	// the remainder so the parts still sum to the gross amount
	fee, payout, err := ComputeSplit(999.99, 33)
	require.NoError(t, err)
	assert.Equal(t, 330.0, fee)
	assert.Equal(t, 669.99, payout)
	assert.InDelta(t, 999.99, fee+payout, 1e-9)
}

func TestComputeSplitConservation(t *testing.T) {
	amounts := []float64{0, 0.01, 1, 49.99, 100, 333.33, 999.99, 12345.67}
	margins := []float64{0, 1, 7.5, 20, 33, 49.99, 50}

	for _, amount := range amounts {
		for _, margin := range margins {
			fee, payout, err := ComputeSplit(amount, margin)
			require.NoError(t, err)
			assert.InDelta(t, amount, fee+payout, 1e-9, "amount=%v margin=%v", amount, margin)
			assert.GreaterOrEqual(t, fee, 0.0)
			assert.LessOrEqual(t, fee, amount+1e-9)
			assert.GreaterOrEqual(t, payout, 0.0)
		}
	}
}

func TestComputeSplitZeroMargin(t *testing.T) {
	fee, payout, err := ComputeSplit(250, 0)
	require.NoError(t, err)
	assert.Equal(t, 0.0, fee)
	assert.Equal(t, 250.0, payout)
}

func TestComputeSplitRejectsBadInputs(t *testing.T) {
	_, _, err := ComputeSplit(100, -1)
	assert.ErrorIs(t, err, ErrMarginOutOfRange)

	_, _, err = ComputeSplit(100, 50.01)
	assert.ErrorIs(t, err, ErrMarginOutOfRange)

	_, _, err = ComputeSplit(-0.01, 20)
	assert.ErrorIs(t, err, ErrNegativeAmount)
}

func TestValidMargin(t *testing.T) {
	assert.True(t, ValidMargin(0))
	assert.True(t, ValidMargin(50))
	assert.True(t, ValidMargin(12.5))
	assert.False(t, ValidMargin(-0.1))
	assert.False(t, ValidMargin(50.1))
}

func TestRound2HalfUp(t *testing.T) {
	assert.Equal(t, 0.13, round2(0.125))
	assert.Equal(t, 0.12, round2(0.1249))
	assert.Equal(t, 330.0, round2(329.9967))
}
