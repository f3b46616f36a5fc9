package sanafe

// solver.go drives the contention-propagation solve: a sweep over the link
// dependency graph in reverse topological order (sinks first), applying two
// update phases to each link in turn.  The buffer-queue phase folds the
// congestion of a link's downstream neighbors into its effective service
// time and solves the link as an M/M/1/K queue; the contention phase then
// models the competition among the link's upstream feeders as a queue whose
// capacity is the number of feeders.  A link's contention waiting time is
// read by its predecessors later in the same sweep, which is why the exact
// reverse-topological visitation order is mandatory and not merely "some
// valid order".

import (
	"math"
)

// LinkState holds the solved steady-state quantities of one physical link.
// One array of these is exclusively owned by one solver for one run.
type LinkState struct {
	ArrivalRate        float64
	EffServiceTime     float64
	ProbBlocking       float64
	MeanWaitTime       float64
	ContentionWaitTime float64
	FlowCount          int
	BufferCap          int
	InDegree           int
}

// ContentionSolver owns the link-state arrays for one analysis run and
// sweeps them to a solution.
type ContentionSolver struct {
	mesh  *Mesh
	graph *LinkGraph
	tm    *TraceManager

	links []LinkState
	order []int // reverse topological order over all links

	// clamp counters, the observable face of recovered numerical-range
	// violations
	BlockingClamps int
	WaitClamps     int
}

// CreateContentionSolver builds a solver over an assembled link graph.
// The reverse topological order and each link's static attributes (arrival
// rate, flow count, in-degree, buffer capacity) are fixed here; the solved
// quantities are filled in by Solve.
func CreateContentionSolver(graph *LinkGraph, tm *TraceManager) (*ContentionSolver, error) {
	cs := new(ContentionSolver)
	cs.mesh = graph.mesh
	cs.graph = graph
	cs.tm = tm

	order, err := graph.ReverseTopoOrder()
	if err != nil {
		return nil, err
	}
	cs.order = order

	cs.links = make([]LinkState, graph.NumLinks())
	for link := range cs.links {
		_, _, dir, cerr := cs.mesh.LinkCoords(link)
		if cerr != nil {
			return nil, cerr
		}
		bufCap, berr := cs.mesh.BufferCap(dir)
		if berr != nil {
			return nil, berr
		}
		cs.links[link].ArrivalRate = graph.ArrivalRate(link)
		cs.links[link].FlowCount = graph.FlowCount(link)
		cs.links[link].InDegree = graph.InDegree(link)
		cs.links[link].BufferCap = bufCap

		if tm.Active() {
			tm.AddName(link, cs.mesh.LinkName(link), "link")
		}
	}

	return cs, nil
}

// Links returns the solved per-link state array, indexed by flat link
// index.
func (cs *ContentionSolver) Links() []LinkState {
	return cs.links
}

// Order returns the reverse topological order the solver visits links in.
func (cs *ContentionSolver) Order() []int {
	return cs.order
}

// Solve runs the requested number of full sweeps (at least one) and
// returns the largest absolute change any solved quantity underwent during
// the final sweep.  The propagation is strictly feed-forward from sinks,
// so a single sweep reaches the fixed point and further sweeps reproduce
// it; the returned delta lets callers confirm that.
func (cs *ContentionSolver) Solve(sweeps int) (float64, error) {
	if sweeps < 1 {
		sweeps = 1
	}

	maxDelta := 0.0
	for sweep := 0; sweep < sweeps; sweep++ {
		maxDelta = 0.0
		for _, link := range cs.order {
			delta, err := cs.updateBufferQueue(sweep, link)
			if err != nil {
				return 0.0, err
			}
			maxDelta = math.Max(maxDelta, delta)

			delta, err = cs.updateContentionQueue(sweep, link)
			if err != nil {
				return 0.0, err
			}
			maxDelta = math.Max(maxDelta, delta)
		}
	}

	return maxDelta, nil
}

// updateBufferQueue recomputes a link's effective service time from its
// downstream neighbors and solves the link's buffer as an M/M/1/K queue.
// Returns the largest change among the link's solved quantities.
func (cs *ContentionSolver) updateBufferQueue(sweep, link int) (float64, error) {
	state := &cs.links[link]
	outLinks := cs.graph.OutLinks(link)

	var effService float64
	if len(outLinks) == 0 {
		// ejection link: service time is measured directly in the trace
		effService = cs.graph.LeafServiceTime(link)
	} else {
		// every downstream neighbor charges this link for the contention
		// its shared traffic meets there, plus a retry penalty growing
		// with the neighbor's blocking probability
		acc := 0.0
		for _, downstream := range outLinks {
			down := &cs.links[downstream]
			if down.ProbBlocking >= 1.0 {
				return 0.0, NumericalErrorf(
					"downstream link %s is fully blocked; retry penalty diverges",
					cs.mesh.LinkName(downstream))
			}
			sharedRate := cs.graph.SharedRate(link, downstream)
			acc += sharedRate * down.ContentionWaitTime
			acc += 1.0 / (1.0 - down.ProbBlocking)
		}
		// average the accumulated penalty over all traffic through the link
		if state.ArrivalRate > 0.0 {
			acc /= state.ArrivalRate
		}
		effService = acc
	}

	qs, err := CalcQueueBlocking(state.BufferCap, state.ArrivalRate, effService, nil)
	if err != nil {
		return 0.0, err
	}
	cs.countClamps(qs)

	delta := math.Abs(qs.ProbBlocking - state.ProbBlocking)
	delta = math.Max(delta, math.Abs(qs.MeanWaitTime-state.MeanWaitTime))

	state.EffServiceTime = effService
	state.ProbBlocking = qs.ProbBlocking
	state.MeanWaitTime = qs.MeanWaitTime

	cs.traceQueue(sweep, PhaseBufferQueue, link, effService, qs)

	return delta, nil
}

// updateContentionQueue models the competition among a link's upstream
// feeders.  With more than one feeder and positive traffic, the feeders
// behave as customers of a queue whose capacity is the feeder count and
// whose service time is the mean interval the link is held per message,
// stretched by the link's own blocking.  The resulting waiting time is
// consumed by this link's predecessors later in the same sweep.
func (cs *ContentionSolver) updateContentionQueue(sweep, link int) (float64, error) {
	state := &cs.links[link]

	contentionWait := 0.0
	if state.InDegree > 1 && state.ArrivalRate > 0.0 {
		if state.ProbBlocking >= 1.0 {
			return 0.0, NumericalErrorf(
				"link %s is fully blocked; contention server time diverges", cs.mesh.LinkName(link))
		}
		serverTime := (1.0 / state.ArrivalRate) * (1.0 / (1.0 - state.ProbBlocking))

		qs, err := CalcQueueBlocking(state.InDegree, state.ArrivalRate, serverTime, nil)
		if err != nil {
			return 0.0, err
		}
		cs.countClamps(qs)
		contentionWait = qs.MeanWaitTime

		cs.traceQueue(sweep, PhaseContentionQueue, link, serverTime, qs)
	}

	delta := math.Abs(contentionWait - state.ContentionWaitTime)
	state.ContentionWaitTime = contentionWait

	return delta, nil
}

// countClamps folds one queue solve's clamp flags into the run counters.
func (cs *ContentionSolver) countClamps(qs QueueStats) {
	if qs.BlockingClamped {
		cs.BlockingClamps += 1
	}
	if qs.WaitClamped {
		cs.WaitClamps += 1
	}
}

// traceQueue records one queue solve, and any clamps it triggered, in the
// solve trace.
func (cs *ContentionSolver) traceQueue(sweep int, phase string, link int, serviceTime float64, qs QueueStats) {
	if !cs.tm.Active() {
		return
	}

	rec := SolveTrace{Sweep: sweep, Phase: phase, LinkID: link, Op: OpQueueSolve,
		ArrivalRate: cs.links[link].ArrivalRate, ServiceTime: serviceTime,
		ProbBlocked: qs.ProbBlocking, WaitTime: qs.MeanWaitTime}
	cs.tm.AddTrace(rec)

	if qs.BlockingClamped {
		rec.Op = OpClampBlocking
		cs.tm.AddTrace(rec)
	}
	if qs.WaitClamped {
		rec.Op = OpClampWait
		cs.tm.AddTrace(rec)
	}
}
