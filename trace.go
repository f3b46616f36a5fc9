package sanafe

import (
	"encoding/json"
	"os"
	"path"

	"gopkg.in/yaml.v3"
)

// trace.go implements the solve trace: an optional record of every queueing
// update and clamp event the contention solver performs, gathered for
// post-run diagnosis and for the visualization layer.  The trace carries a
// dictionary mapping link ids to their "x.y.direction" names so consumers
// need not know the flat indexing scheme.

// solve phase labels used in trace records
const (
	PhaseBufferQueue     = "buffer"
	PhaseContentionQueue = "contention"
)

// trace operation labels
const (
	OpQueueSolve    = "queue"
	OpClampBlocking = "clamp-blocking"
	OpClampWait     = "clamp-wait"
)

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string
	Type string
}

// SolveTrace records one operation on one link during one sweep.
type SolveTrace struct {
	Sweep       int     `json:"sweep" yaml:"sweep"`
	Phase       string  `json:"phase" yaml:"phase"`
	LinkID      int     `json:"linkid" yaml:"linkid"`
	Op          string  `json:"op" yaml:"op"`
	ArrivalRate float64 `json:"arrivalrate" yaml:"arrivalrate"`
	ServiceTime float64 `json:"servicetime" yaml:"servicetime"`
	ProbBlocked float64 `json:"probblocked" yaml:"probblocked"`
	WaitTime    float64 `json:"waittime" yaml:"waittime"`
}

// TraceManager gathers solve traces for one analysis run.  By testing the
// InUse flag we can inhibit the activity of gathering a trace when we don't
// want it, while embedding calls to its methods everywhere we need them
// when it is.
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// all trace records for this experiment, keyed by sweep number
	Traces map[int][]SolveTrace `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]SolveTrace)
	return tm
}

// Active tells the caller whether the trace manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm.InUse
}

// AddTrace stores one solve record under its sweep number.
func (tm *TraceManager) AddTrace(trace SolveTrace) {
	if !tm.InUse {
		return
	}

	_, present := tm.Traces[trace.Sweep]
	if !present {
		tm.Traces[trace.Sweep] = make([]SolveTrace, 0)
	}
	tm.Traces[trace.Sweep] = append(tm.Traces[trace.Sweep], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary
// for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if tm.InUse {
		_, present := tm.NameByID[id]
		if present {
			panic("duplicated id in AddName")
		}
		tm.NameByID[id] = NameType{Name: name, Type: objDesc}
	}
}

// WriteToFile stores the Traces struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) bool {
	if !tm.InUse {
		return false
	}
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*tm)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*tm, "", "\t")
	}

	if merr != nil {
		panic(merr)
	}

	f, cerr := os.Create(filename)
	if cerr != nil {
		panic(cerr)
	}
	_, werr := f.WriteString(string(bytes[:]))
	if werr != nil {
		panic(werr)
	}
	f.Close()
	return true
}
