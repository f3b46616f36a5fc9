package sanafe

// queue.go holds the finite-capacity queue solvers the congestion model is
// built from.  Two interchangeable models are provided: the closed-form
// M/M/1/K result for a scalar mean service time, and an embedded-Markov-
// chain solution of M/G/1/K for an arbitrary empirical service-time
// distribution.  Out-of-range results caused by floating-point accumulation
// are clamped back into range and flagged so callers can count them; a
// non-finite result or an impossible chain probability is a fatal error,
// never silently repaired.

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// QueueStats reports the steady-state behavior of one finite queue.  The
// clamp flags record that a result landed outside its valid range and was
// corrected.
type QueueStats struct {
	ProbBlocking    float64
	MeanWaitTime    float64
	BlockingClamped bool
	WaitClamped     bool
}

// CalcQueueBlocking solves a finite queue of capacity bufferSize under the
// given arrival rate and mean service time.  When dist is nil the M/M/1/K
// closed forms apply; when an empirical service distribution is given the
// M/G/1/K embedded Markov chain is solved instead.  A queue with no
// arrivals blocks nothing and delays nothing.
func CalcQueueBlocking(bufferSize int, arrivalRate, meanServiceTime float64, dist *ServiceDist) (QueueStats, error) {
	if bufferSize < 1 {
		return QueueStats{}, InputErrorf("queue capacity %d must be at least 1", bufferSize)
	}
	if arrivalRate <= 0.0 {
		return QueueStats{}, nil
	}

	var probBlocking, meanWait float64
	var err error
	if dist != nil {
		probBlocking, meanWait, err = solveMG1K(bufferSize, arrivalRate, meanServiceTime, dist)
	} else {
		probBlocking, meanWait = solveMM1K(bufferSize, arrivalRate, meanServiceTime)
	}
	if err != nil {
		return QueueStats{}, err
	}

	if math.IsNaN(probBlocking) || math.IsInf(probBlocking, 0) ||
		math.IsNaN(meanWait) || math.IsInf(meanWait, 0) {
		return QueueStats{}, NumericalErrorf(
			"queue solve K=%d rate=%e service=%e produced blocking=%v wait=%v",
			bufferSize, arrivalRate, meanServiceTime, probBlocking, meanWait)
	}

	// floating-point accumulation can push either result slightly out of
	// range; pull it back and flag the correction
	qs := QueueStats{ProbBlocking: probBlocking, MeanWaitTime: meanWait}
	if probBlocking < 0.0 || probBlocking > 1.0 {
		qs.ProbBlocking = math.Min(math.Max(probBlocking, 0.0), 1.0)
		qs.BlockingClamped = true
	}
	if meanWait < 0.0 {
		qs.MeanWaitTime = 0.0
		qs.WaitClamped = true
	}

	return qs, nil
}

// solveMM1K evaluates the closed-form blocking probability and mean waiting
// time of an M/M/1/K queue with utilization rho = rate * service time.
func solveMM1K(bufferSize int, arrivalRate, meanServiceTime float64) (float64, float64) {
	K := float64(bufferSize)
	rho := arrivalRate * meanServiceTime

	var probBlocking, queueLen float64
	if rho == 1.0 {
		// the closed forms are 0/0 at rho=1; use their limits
		probBlocking = 1.0 / (K + 1.0)
		queueLen = K / 2.0
	} else {
		rhoK := math.Pow(rho, K)
		probBlocking = ((1.0 - rho) * rhoK) / (1.0 - rhoK*rho)
		queueLen = rho/(1.0-rho) - ((K+1.0)*rhoK*rho)/(1.0-rhoK*rho)
	}

	effectiveThroughput := arrivalRate * (1.0 - probBlocking)
	meanWait := queueLen/effectiveThroughput - meanServiceTime

	return probBlocking, meanWait
}

// solveMG1K solves an M/G/1/K queue by its embedded Markov chain, observed
// at service completions.  The chain's arrival probabilities
// a_k = P(exactly k arrivals during one service period) come from mixing
// Poisson counts over the empirical service-time distribution.
func solveMG1K(bufferSize int, arrivalRate, meanServiceTime float64, dist *ServiceDist) (float64, float64, error) {
	K := bufferSize
	rho := arrivalRate * meanServiceTime

	a := make([]float64, K)
	for k := 0; k < K; k++ {
		ak, err := chainArrivalProb(k, arrivalRate, dist)
		if err != nil {
			return 0.0, 0.0, err
		}
		a[k] = ak
	}
	if a[0] <= 0.0 {
		return 0.0, 0.0, NumericalErrorf(
			"embedded chain has a_0=%e at rate %e; stationary recurrence is undefined", a[0], arrivalRate)
	}

	// classical M/G/1/K recurrence for the unnormalized stationary vector
	piPrime := make([]float64, K)
	piPrime[0] = 1.0
	for k := 0; k < K-1; k++ {
		s := 0.0
		for j := 1; j <= k; j++ {
			s += piPrime[j] * a[k-j+1]
		}
		piPrime[k+1] = (1.0 / a[0]) * (piPrime[k] - s - a[k])
	}

	norm := floats.Sum(piPrime)
	if !(norm > 0.0) || math.IsInf(norm, 0) {
		return 0.0, 0.0, NumericalErrorf("stationary vector normalizes by %v; chain is ill-conditioned", norm)
	}

	pi := make([]float64, K)
	pi[0] = 1.0 / norm
	for k := 1; k < K; k++ {
		pi[k] = pi[0] * piPrime[k]
	}

	probBlocking := 1.0 - 1.0/(pi[0]+rho)

	waitingSum := 0.0
	for k := 1; k < K; k++ {
		waitingSum += pi[k]
	}
	meanWait := waitingSum/arrivalRate + (float64(K)/arrivalRate)*(pi[0]+rho-1.0) - meanServiceTime

	return probBlocking, meanWait, nil
}

// chainArrivalProb computes a_k, the probability that exactly k messages
// arrive during one service period, by weighting the Poisson count at each
// service-time value with the value's empirical probability.  A result
// outside [0,1] means the rate and distribution are mutually inconsistent
// and the model must not continue.
func chainArrivalProb(k int, arrivalRate float64, dist *ServiceDist) (float64, error) {
	ak := 0.0
	for idx, x := range dist.Values {
		lx := arrivalRate * x
		if lx > 0.0 {
			poisson := distuv.Poisson{Lambda: lx}
			ak += poisson.Prob(float64(k)) * dist.Probs[idx]
		} else if k == 0 {
			// a zero-length service period sees no arrivals
			ak += dist.Probs[idx]
		}
	}

	if ak < 0.0 || ak > 1.0 || math.IsNaN(ak) {
		return 0.0, InputErrorf("embedded chain arrival probability a_%d=%v outside [0,1] at rate %e",
			k, ak, arrivalRate)
	}
	return ak, nil
}
