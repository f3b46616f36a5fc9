package sanafe

// graph.go assembles the directed dependency graph among physical links.
// Nodes are flat link indices; a directed edge A->B exists when some flow
// traverses link A immediately before link B, so B's congestion
// back-pressures A.  Because XY routing moves monotonically toward the
// destination and never revisits a link, the graph is acyclic and admits a
// topological order; the solver consumes that order reversed, sinks first.

import (
	"os"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/graph/encoding/dot"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// LinkGraph holds the dependency graph plus the per-link accumulations
// gathered while mapping flows onto it: which flows touch each link, the
// summed arrival rate through each link, and the measured service time of
// the ejection (leaf) links.
type LinkGraph struct {
	mesh *Mesh
	dag  *simple.DirectedGraph

	flows  []Flow  // the flow table the graph was built from
	routes [][]int // cached route per flow, same order as flows

	// per-link accumulations, indexed by flat link index
	flowsByLink [][]int   // indices into flows, ascending
	arrivalRate []float64 // summed rate of all flows through the link
	flowCount   []int
	leafService []float64 // measured service time at ejection links
}

// BuildLinkGraph routes every flow over the mesh and assembles the link
// dependency graph.  Every physical link appears as a node whether or not
// traffic touches it.  Per-link arrival rates accumulate the rates of all
// member flows; the final (ejection) link of each route takes the flow's
// measured mean service time directly, since nothing downstream of it
// shapes its service.
func BuildLinkGraph(mesh *Mesh, router *MeshRouter, flows []Flow) (*LinkGraph, error) {
	lg := new(LinkGraph)
	lg.mesh = mesh
	lg.dag = simple.NewDirectedGraph()
	lg.flows = flows
	lg.routes = make([][]int, len(flows))

	nLinks := mesh.NumLinks()
	lg.flowsByLink = make([][]int, nLinks)
	lg.arrivalRate = make([]float64, nLinks)
	lg.flowCount = make([]int, nLinks)
	lg.leafService = make([]float64, nLinks)

	// every link is a node, touched or not
	for index := 0; index < nLinks; index++ {
		lg.dag.AddNode(simple.Node(index))
	}

	for flowIdx, flow := range flows {
		route, err := router.RouteLinks(flow.Src, flow.Dst)
		if err != nil {
			return nil, err
		}
		lg.routes[flowIdx] = route

		for hop, link := range route {
			lg.flowsByLink[link] = append(lg.flowsByLink[link], flowIdx)
			lg.arrivalRate[link] += flow.ArrivalRate
			lg.flowCount[link] += 1
			if hop > 0 {
				lg.addEdge(route[hop-1], link)
			}
		}

		// the last hop is the ejection link into the destination core;
		// its service time is observed directly in the trace
		lg.leafService[route[len(route)-1]] = flow.MeanServiceTime
	}

	return lg, nil
}

// addEdge inserts the dependency edge prev->cur, skipping duplicates so
// insertion is idempotent.
func (lg *LinkGraph) addEdge(prev, cur int) {
	if lg.dag.HasEdgeFromTo(int64(prev), int64(cur)) {
		return
	}
	lg.dag.SetEdge(lg.dag.NewEdge(simple.Node(prev), simple.Node(cur)))
}

// NumLinks returns the number of nodes in the graph.
func (lg *LinkGraph) NumLinks() int {
	return lg.mesh.NumLinks()
}

// Flows returns the flow table the graph was built from.
func (lg *LinkGraph) Flows() []Flow {
	return lg.flows
}

// FlowRoute returns the cached route of the flow with the given index.
func (lg *LinkGraph) FlowRoute(flowIdx int) []int {
	return lg.routes[flowIdx]
}

// LinkFlows returns the indices (ascending) of the flows traversing a link.
func (lg *LinkGraph) LinkFlows(link int) []int {
	return lg.flowsByLink[link]
}

// ArrivalRate returns the total arrival rate through a link.
func (lg *LinkGraph) ArrivalRate(link int) float64 {
	return lg.arrivalRate[link]
}

// FlowCount returns the number of flows traversing a link.
func (lg *LinkGraph) FlowCount(link int) int {
	return lg.flowCount[link]
}

// LeafServiceTime returns the measured service time of an ejection link,
// zero for links that terminate no flow.
func (lg *LinkGraph) LeafServiceTime(link int) float64 {
	return lg.leafService[link]
}

// OutLinks returns the links immediately downstream of a link.
func (lg *LinkGraph) OutLinks(link int) []int {
	out := []int{}
	for it := lg.dag.From(int64(link)); it.Next(); {
		out = append(out, int(it.Node().ID()))
	}
	return out
}

// InDegree returns the number of distinct upstream links feeding a link.
func (lg *LinkGraph) InDegree(link int) int {
	count := 0
	for it := lg.dag.To(int64(link)); it.Next(); {
		count += 1
	}
	return count
}

// HasEdge reports whether the dependency edge prev->cur is present.
func (lg *LinkGraph) HasEdge(prev, cur int) bool {
	return lg.dag.HasEdgeFromTo(int64(prev), int64(cur))
}

// SharedRate sums the arrival rates of the flows that traverse both links.
// Both membership lists are ascending, so a single merge pass finds the
// intersection.
func (lg *LinkGraph) SharedRate(linkA, linkB int) float64 {
	a := lg.flowsByLink[linkA]
	b := lg.flowsByLink[linkB]

	rate := 0.0
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			i += 1
		case a[i] > b[j]:
			j += 1
		default:
			rate += lg.flows[a[i]].ArrivalRate
			i += 1
			j += 1
		}
	}
	return rate
}

// ReverseTopoOrder returns all link indices ordered so that every link
// appears before the links that feed it (sinks first).  A cycle cannot
// occur under monotonic XY routing; finding one means the graph or router
// is defective, which is a fatal topology error.
func (lg *LinkGraph) ReverseTopoOrder() ([]int, error) {
	sorted, err := topo.Sort(lg.dag)
	if err != nil {
		return nil, TopologyErrorf("link dependency graph is not acyclic: %v", err)
	}

	order := make([]int, len(sorted))
	for idx, node := range sorted {
		order[len(sorted)-idx-1] = int(node.ID())
	}
	return order, nil
}

// WriteDOT exports the dependency graph in Graphviz dot form for the
// visualization layer.  Node ids are flat link indices.
func (lg *LinkGraph) WriteDOT(filename string) error {
	bytes, merr := dot.Marshal(lg.dag, "dependencies", "", "\t")
	if merr != nil {
		return errors.Wrap(merr, "marshaling link dependency graph")
	}
	werr := os.WriteFile(filename, bytes, 0644)
	return errors.Wrap(werr, "writing link dependency graph")
}
