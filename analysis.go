package sanafe

// analysis.go assembles the full congestion analysis for one run: path
// statistics from the loaded message records, routes and the link
// dependency graph, and the contention-propagation solve.  Every run owns
// a fresh Analysis and all the state hanging off of it; two runs over
// different traces share nothing mutable.

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// AnalysisCfg selects how one run behaves.
type AnalysisCfg struct {
	// simulation timestep the records were filtered to, echoed in the report
	Timestep int `json:"timestep" yaml:"timestep"`

	// number of solve sweeps; one suffices, more confirm convergence
	Sweeps int `json:"sweeps" yaml:"sweeps"`

	// also solve each flow's terminal ejection queue against its
	// empirical service distribution (M/G/1/K)
	ReceiverQueues bool `json:"receiverqueues" yaml:"receiverqueues"`

	// gather a solve trace
	Trace bool `json:"trace" yaml:"trace"`

	// name recorded on the solve trace
	ExpName string `json:"expname" yaml:"expname"`
}

// WriteToFile stores the AnalysisCfg struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cfg *AnalysisCfg) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*cfg)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*cfg, "", "\t")
	}

	if merr != nil {
		return merr
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		return cerr
	}
	_, werr := f.WriteString(string(bytes[:]))
	f.Close()

	return werr
}

// ReadAnalysisCfg deserializes a byte slice holding a representation of an AnalysisCfg struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadAnalysisCfg(filename string, useYAML bool, dict []byte) (*AnalysisCfg, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := AnalysisCfg{}

	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}

	if err != nil {
		return nil, err
	}

	return &example, nil
}

// Analysis is the per-run owner of every component the solve touches.
type Analysis struct {
	Mesh     *Mesh
	Cfg      AnalysisCfg
	TraceMgr *TraceManager

	Stats  *PathStats
	Flows  []Flow
	Router *MeshRouter
	Graph  *LinkGraph
	Solver *ContentionSolver
}

// CreateAnalysis is a constructor.  The components downstream of the path
// statistics are built by Run, once the records are in.
func CreateAnalysis(mesh *Mesh, cfg AnalysisCfg) *Analysis {
	an := new(Analysis)
	an.Mesh = mesh
	an.Cfg = cfg
	an.TraceMgr = CreateTraceManager(cfg.ExpName, cfg.Trace)
	an.Stats = CreatePathStats(mesh)
	an.Router = CreateMeshRouter(mesh)
	return an
}

// AddRecords folds message records into the run's path statistics.
func (an *Analysis) AddRecords(recs []MessageRecord) error {
	return an.Stats.AddRecords(recs)
}

// Run extracts the flow table, builds the link dependency graph, sweeps the
// contention solve, and assembles the report.  Any input, topology, or
// numerical error aborts the whole run; there is no partial-result mode.
func (an *Analysis) Run() (*CongestionReport, error) {
	flows, err := an.Stats.Flows()
	if err != nil {
		return nil, err
	}
	an.Flows = flows

	an.Graph, err = BuildLinkGraph(an.Mesh, an.Router, flows)
	if err != nil {
		return nil, err
	}

	an.Solver, err = CreateContentionSolver(an.Graph, an.TraceMgr)
	if err != nil {
		return nil, err
	}

	sweepDelta, err := an.Solver.Solve(an.Cfg.Sweeps)
	if err != nil {
		return nil, err
	}

	report := buildCongestionReport(an, sweepDelta)

	if an.Cfg.ReceiverQueues {
		report.Receivers, err = an.solveReceiverQueues()
		if err != nil {
			return nil, err
		}
	}

	return report, nil
}

// solveReceiverQueues solves each flow's terminal ejection queue on its
// own, using the flow's empirical service distribution where one exists.
// This isolates how the receiving core's service behavior blocks the final
// hop, independent of upstream contention.
func (an *Analysis) solveReceiverQueues() ([]FlowReport, error) {
	reports := make([]FlowReport, 0, len(an.Flows))
	for idx, flow := range an.Flows {
		route := an.Graph.FlowRoute(idx)
		terminal := route[len(route)-1]
		state := an.Solver.Links()[terminal]

		qs, err := CalcQueueBlocking(state.BufferCap, flow.ArrivalRate, flow.MeanServiceTime, flow.Dist)
		if err != nil {
			return nil, err
		}

		fr := FlowReport{Src: flow.Src, Dst: flow.Dst, ArrivalRate: flow.ArrivalRate,
			MeanServiceTime: flow.MeanServiceTime, TerminalLink: terminal,
			ProbBlocking: qs.ProbBlocking, MeanWaitTime: qs.MeanWaitTime}
		reports = append(reports, fr)
	}
	return reports, nil
}

// AnalyzeTrace is the one-call batch entry point: it runs the whole
// analysis over an already loaded and timestep-filtered record set.
func AnalyzeTrace(mesh *Mesh, records []MessageRecord, cfg AnalysisCfg) (*CongestionReport, error) {
	an := CreateAnalysis(mesh, cfg)
	err := an.AddRecords(records)
	if err != nil {
		return nil, err
	}
	return an.Run()
}
