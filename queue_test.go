package sanafe

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMM1KRanges(t *testing.T) {
	tests := []struct {
		name        string
		bufferSize  int
		arrivalRate float64
		serviceTime float64
	}{
		{name: "light load", bufferSize: 16, arrivalRate: 100.0, serviceTime: 0.001},
		{name: "half load", bufferSize: 24, arrivalRate: 1000.0, serviceTime: 0.0005},
		{name: "heavy load", bufferSize: 8, arrivalRate: 1000.0, serviceTime: 0.00099},
		{name: "tiny buffer", bufferSize: 2, arrivalRate: 500.0, serviceTime: 0.0004},
		{name: "critical load", bufferSize: 16, arrivalRate: 1000.0, serviceTime: 0.001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qs, err := CalcQueueBlocking(tt.bufferSize, tt.arrivalRate, tt.serviceTime, nil)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, qs.ProbBlocking, 0.0)
			assert.Less(t, qs.ProbBlocking, 1.0)
			assert.GreaterOrEqual(t, qs.MeanWaitTime, 0.0)
			assert.False(t, math.IsInf(qs.MeanWaitTime, 0))
		})
	}
}

func TestMM1KHalfLoadScenario(t *testing.T) {
	// rho = 0.5, K = 24: blocking = (0.5 * 0.5^24) / (1 - 0.5^25)
	qs, err := CalcQueueBlocking(24, 1000.0, 0.0005, nil)
	require.NoError(t, err)

	expected := math.Pow(0.5, 25.0) / (1.0 - math.Pow(0.5, 25.0))
	assert.InEpsilon(t, expected, qs.ProbBlocking, 1e-9)
	assert.InDelta(t, 2.98e-8, qs.ProbBlocking, 1e-9)
	assert.GreaterOrEqual(t, qs.MeanWaitTime, 0.0)
	assert.False(t, math.IsInf(qs.MeanWaitTime, 0))
}

func TestMM1KBlockingVanishesWithCapacity(t *testing.T) {
	// at fixed rho < 1, growing the buffer drives blocking toward zero
	prev := 1.0
	for _, bufferSize := range []int{2, 4, 8, 16, 32, 64} {
		qs, err := CalcQueueBlocking(bufferSize, 800.0, 0.001, nil)
		require.NoError(t, err)
		assert.Less(t, qs.ProbBlocking, prev)
		prev = qs.ProbBlocking
	}
	assert.Less(t, prev, 1e-6)
}

func TestMM1KCriticalUtilization(t *testing.T) {
	// rho == 1 exactly: the closed forms take their limiting values
	qs, err := CalcQueueBlocking(16, 1000.0, 0.001, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/17.0, qs.ProbBlocking, 1e-12)
	assert.GreaterOrEqual(t, qs.MeanWaitTime, 0.0)
}

func TestQueueZeroArrivalRate(t *testing.T) {
	qs, err := CalcQueueBlocking(16, 0.0, 0.001, nil)
	require.NoError(t, err)
	assert.Zero(t, qs.ProbBlocking)
	assert.Zero(t, qs.MeanWaitTime)
}

func TestQueueRejectsBadCapacity(t *testing.T) {
	_, err := CalcQueueBlocking(0, 100.0, 0.001, nil)
	assert.ErrorIs(t, err, ErrInput)
}

func TestMG1KDeterministicService(t *testing.T) {
	// all mass on one service time: M/D/1/K through the embedded chain
	dist := &ServiceDist{Values: []float64{0.0005}, Probs: []float64{1.0}}

	qs, err := CalcQueueBlocking(24, 1000.0, 0.0005, dist)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, qs.ProbBlocking, 0.0)
	assert.Less(t, qs.ProbBlocking, 1.0)
	assert.GreaterOrEqual(t, qs.MeanWaitTime, 0.0)

	// deterministic service at rho=0.5 blocks less than exponential
	// service with the same mean
	mm, err := CalcQueueBlocking(24, 1000.0, 0.0005, nil)
	require.NoError(t, err)
	assert.LessOrEqual(t, qs.ProbBlocking, mm.ProbBlocking+1e-12)
}

func TestMG1KTwoPointService(t *testing.T) {
	dist := &ServiceDist{Values: []float64{0.0004, 0.0006}, Probs: []float64{0.5, 0.5}}
	require.InDelta(t, 0.0005, dist.Mean(), 1e-12)

	qs, err := CalcQueueBlocking(16, 1000.0, dist.Mean(), dist)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, qs.ProbBlocking, 0.0)
	assert.Less(t, qs.ProbBlocking, 1.0)
	assert.GreaterOrEqual(t, qs.MeanWaitTime, 0.0)
}

func TestMG1KRejectsInconsistentDistribution(t *testing.T) {
	// probabilities summing well past 1 make a_0 > 1, which must fail
	// loudly rather than clamp
	dist := &ServiceDist{Values: []float64{1e-9, 2e-9}, Probs: []float64{0.8, 0.8}}

	_, err := CalcQueueBlocking(8, 1.0, 1.5e-9, dist)
	assert.ErrorIs(t, err, ErrInput)
}

func TestChainArrivalProbs(t *testing.T) {
	dist := &ServiceDist{Values: []float64{0.0005}, Probs: []float64{1.0}}

	// Poisson counts at lambda*x = 0.5
	sum := 0.0
	for k := 0; k < 24; k++ {
		ak, err := chainArrivalProb(k, 1000.0, dist)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, ak, 0.0)
		assert.LessOrEqual(t, ak, 1.0)
		sum += ak
	}
	// nearly all mass sits below k=24
	assert.InDelta(t, 1.0, sum, 1e-9)

	a0, err := chainArrivalProb(0, 1000.0, dist)
	require.NoError(t, err)
	assert.InDelta(t, math.Exp(-0.5), a0, 1e-12)
}
