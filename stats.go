package sanafe

// stats.go extracts per-path statistics from the loaded message records:
// for every communicating (source core, destination core) pair, an arrival
// rate, a mean service time, and an empirical distribution of the observed
// service times.  One PathStats instance belongs to one analysis run; there
// is no package-level accumulator state.

import (
	"math"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// pdfSumTolerance bounds how far an empirical distribution's probabilities
// may drift from summing to exactly 1 before the data is declared
// inconsistent.
const pdfSumTolerance = 1e-3

// ServiceDist is an empirical probability mass function over observed
// service times: sorted distinct values with their probabilities.
type ServiceDist struct {
	Values []float64
	Probs  []float64
}

// CreateServiceDist run-length-encodes a set of observed service-time
// samples into an empirical distribution.  The samples need not arrive
// sorted.  A nil distribution (no error) is returned when there are no
// samples.  An input-inconsistency error is returned if the encoded
// probabilities fail to sum to 1 within tolerance.
func CreateServiceDist(samples []float64) (*ServiceDist, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	slices.Sort(sorted)

	sd := new(ServiceDist)
	sd.Values = make([]float64, 0)
	counts := make([]float64, 0)
	for idx, v := range sorted {
		if idx > 0 && v == sorted[idx-1] {
			counts[len(counts)-1] += 1.0
		} else {
			sd.Values = append(sd.Values, v)
			counts = append(counts, 1.0)
		}
	}

	total := floats.Sum(counts)
	sd.Probs = make([]float64, len(counts))
	for idx, c := range counts {
		sd.Probs[idx] = c / total
	}

	if math.Abs(floats.Sum(sd.Probs)-1.0) >= pdfSumTolerance {
		return nil, InputErrorf("service distribution probabilities sum to %f over %d samples",
			floats.Sum(sd.Probs), len(samples))
	}

	return sd, nil
}

// Mean returns the distribution's expected value.
func (sd *ServiceDist) Mean() float64 {
	return stat.Mean(sd.Values, sd.Probs)
}

// Flow describes one communicating (source, destination) core pair: how
// often messages arrive, how long the destination takes to serve them, and
// the empirical spread of those service times.  Dist is nil when the flow
// was constructed without per-sample data.
type Flow struct {
	Src             int
	Dst             int
	Count           int
	ArrivalRate     float64 // messages per unit time
	MeanServiceTime float64
	Dist            *ServiceDist
}

// PathStats accumulates per-path observations for one analysis run.
type PathStats struct {
	mesh *Mesh

	// nCores x nCores accumulators, indexed [src, dst]
	counts  *mat.Dense
	genSum  *mat.Dense // summed generation delays
	procSum *mat.Dense // summed processing latencies

	// full list of observed processing latencies per communicating pair
	latencies map[[2]int][]float64
}

// CreatePathStats is a constructor.  All accumulators start empty.
func CreatePathStats(mesh *Mesh) *PathStats {
	ps := new(PathStats)
	ps.mesh = mesh
	n := mesh.NumCores()
	ps.counts = mat.NewDense(n, n, nil)
	ps.genSum = mat.NewDense(n, n, nil)
	ps.procSum = mat.NewDense(n, n, nil)
	ps.latencies = make(map[[2]int][]float64)
	return ps
}

// AddRecord folds one message observation into the per-path accumulators.
// Unparsable hardware addresses are input-inconsistency errors.
func (ps *PathStats) AddRecord(rec *MessageRecord) error {
	src, serr := ps.mesh.ParseHWAddr(rec.SrcHW)
	if serr != nil {
		return serr
	}
	dst, derr := ps.mesh.ParseHWAddr(rec.DstHW)
	if derr != nil {
		return derr
	}

	ps.counts.Set(src, dst, ps.counts.At(src, dst)+1.0)
	ps.genSum.Set(src, dst, ps.genSum.At(src, dst)+rec.GenerationDelay)
	ps.procSum.Set(src, dst, ps.procSum.At(src, dst)+rec.ProcessingLatency)

	key := [2]int{src, dst}
	ps.latencies[key] = append(ps.latencies[key], rec.ProcessingLatency)

	return nil
}

// AddRecords folds a batch of message observations into the accumulators,
// stopping at the first malformed record.
func (ps *PathStats) AddRecords(recs []MessageRecord) error {
	for idx := range recs {
		err := ps.AddRecord(&recs[idx])
		if err != nil {
			return err
		}
	}
	return nil
}

// ArrivalRates returns the nCores x nCores matrix of per-path arrival
// rates, computed as observed count over summed generation delay.  Entries
// for pairs that never communicated are zero.
func (ps *PathStats) ArrivalRates() *mat.Dense {
	n := ps.mesh.NumCores()
	rates := mat.NewDense(n, n, nil)
	for s := 0; s < n; s++ {
		for d := 0; d < n; d++ {
			count := ps.counts.At(s, d)
			if count > 0 && ps.genSum.At(s, d) > 0 {
				rates.Set(s, d, count/ps.genSum.At(s, d))
			}
		}
	}
	return rates
}

// Flows converts the accumulated observations into the flow table, ordered
// by ascending (src, dst).  Pairs with no observed messages are omitted.
// A pair whose messages carry no generation delay at all has no defined
// arrival rate, which is an input inconsistency.
func (ps *PathStats) Flows() ([]Flow, error) {
	flows := []Flow{}
	n := ps.mesh.NumCores()
	for s := 0; s < n; s++ {
		for d := 0; d < n; d++ {
			count := ps.counts.At(s, d)
			if count <= 0 {
				continue
			}
			if ps.genSum.At(s, d) <= 0 {
				return nil, InputErrorf("flow %d->%d observed %d messages but zero total generation delay",
					s, d, int(count))
			}
			if ps.procSum.At(s, d) <= 0 {
				return nil, InputErrorf("flow %d->%d observed %d messages but zero total processing latency",
					s, d, int(count))
			}

			dist, err := CreateServiceDist(ps.latencies[[2]int{s, d}])
			if err != nil {
				return nil, err
			}

			flow := Flow{Src: s, Dst: d, Count: int(count)}
			flow.ArrivalRate = count / ps.genSum.At(s, d)
			flow.MeanServiceTime = ps.procSum.At(s, d) / count
			flow.Dist = dist
			flows = append(flows, flow)
		}
	}
	return flows, nil
}
