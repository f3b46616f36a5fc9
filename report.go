package sanafe

// report.go shapes the solved link and flow state into the serializable
// report the presentation layer consumes: the per-path arrival-rate matrix,
// one row per physical link, the clamp counters, and the final sweep's
// convergence delta.

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// LinkReport is one solved link, addressed by tile coordinates and
// direction name.
type LinkReport struct {
	X                  int     `json:"x" yaml:"x"`
	Y                  int     `json:"y" yaml:"y"`
	Direction          string  `json:"direction" yaml:"direction"`
	ArrivalRate        float64 `json:"arrivalrate" yaml:"arrivalrate"`
	FlowCount          int     `json:"flowcount" yaml:"flowcount"`
	BufferCap          int     `json:"buffercap" yaml:"buffercap"`
	EffServiceTime     float64 `json:"effservicetime" yaml:"effservicetime"`
	ProbBlocking       float64 `json:"probblocking" yaml:"probblocking"`
	MeanWaitTime       float64 `json:"meanwaittime" yaml:"meanwaittime"`
	ContentionWaitTime float64 `json:"contentionwaittime" yaml:"contentionwaittime"`
}

// FlowReport is the solved terminal (receiver) queue of one flow.
type FlowReport struct {
	Src             int     `json:"src" yaml:"src"`
	Dst             int     `json:"dst" yaml:"dst"`
	ArrivalRate     float64 `json:"arrivalrate" yaml:"arrivalrate"`
	MeanServiceTime float64 `json:"meanservicetime" yaml:"meanservicetime"`
	TerminalLink    int     `json:"terminallink" yaml:"terminallink"`
	ProbBlocking    float64 `json:"probblocking" yaml:"probblocking"`
	MeanWaitTime    float64 `json:"meanwaittime" yaml:"meanwaittime"`
}

// CongestionReport is the complete, pointer-free output of one analysis
// run.
type CongestionReport struct {
	Timestep int `json:"timestep" yaml:"timestep"`
	Sweeps   int `json:"sweeps" yaml:"sweeps"`

	// nCores x nCores matrix of per-path arrival rates, row = source core
	ArrivalRates [][]float64 `json:"arrivalrates" yaml:"arrivalrates"`

	// one entry per physical link, ordered by flat link index
	Links []LinkReport `json:"links" yaml:"links"`

	// terminal-queue solves per flow, present when receiver-queue
	// analysis was requested
	Receivers []FlowReport `json:"receivers,omitempty" yaml:"receivers,omitempty"`

	// recovered numerical-range violations, counted for diagnosability
	BlockingClamps int `json:"blockingclamps" yaml:"blockingclamps"`
	WaitClamps     int `json:"waitclamps" yaml:"waitclamps"`

	// largest change any solved quantity underwent in the final sweep;
	// zero when repeated sweeps reproduce the fixed point
	SweepDelta float64 `json:"sweepdelta" yaml:"sweepdelta"`
}

// buildCongestionReport flattens a completed run into its report form.
func buildCongestionReport(an *Analysis, sweepDelta float64) *CongestionReport {
	mesh := an.Mesh
	report := new(CongestionReport)
	report.Timestep = an.Cfg.Timestep
	report.Sweeps = an.Cfg.Sweeps
	if report.Sweeps < 1 {
		report.Sweeps = 1
	}
	report.SweepDelta = sweepDelta
	report.BlockingClamps = an.Solver.BlockingClamps
	report.WaitClamps = an.Solver.WaitClamps

	rates := an.Stats.ArrivalRates()
	n := mesh.NumCores()
	report.ArrivalRates = make([][]float64, n)
	for s := 0; s < n; s++ {
		report.ArrivalRates[s] = make([]float64, n)
		for d := 0; d < n; d++ {
			report.ArrivalRates[s][d] = rates.At(s, d)
		}
	}

	states := an.Solver.Links()
	report.Links = make([]LinkReport, len(states))
	for link, state := range states {
		x, y, dir, err := mesh.LinkCoords(link)
		if err != nil {
			// the solver already validated every index
			panic(err)
		}
		report.Links[link] = LinkReport{X: x, Y: y, Direction: mesh.DirName(dir),
			ArrivalRate: state.ArrivalRate, FlowCount: state.FlowCount,
			BufferCap: state.BufferCap, EffServiceTime: state.EffServiceTime,
			ProbBlocking: state.ProbBlocking, MeanWaitTime: state.MeanWaitTime,
			ContentionWaitTime: state.ContentionWaitTime}
	}

	return report
}

// WriteToFile stores the CongestionReport struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (cr *CongestionReport) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*cr)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*cr, "", "\t")
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

// ReadCongestionReport deserializes a byte slice holding a representation of a CongestionReport.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadCongestionReport(filename string, useYAML bool, dict []byte) (*CongestionReport, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := CongestionReport{}

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
