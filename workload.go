package sanafe

// workload.go synthesizes message-trace records for validation and
// benchmarking of the analysis.  Each described flow is an arrival process
// generated event-by-event in virtual time, with inter-arrival gaps and
// per-message service times sampled from the flow's own random number
// stream.  The generator produces arrival records only; it does not model
// the network the analysis is about.

import (
	"encoding/json"
	"math"
	"os"
	"path"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
	"github.com/iti/rngstream"
	"gopkg.in/yaml.v3"
)

// WorkloadFlowDesc describes one synthesized flow.  Models name the
// sampling distribution, "const" or "expon", matching the flow models the
// simulator's background-traffic tooling accepts.
type WorkloadFlowDesc struct {
	SrcHW string `json:"srchw" yaml:"srchw"`
	DstHW string `json:"dsthw" yaml:"dsthw"`

	ArrivalModel string  `json:"arrivalmodel" yaml:"arrivalmodel"`
	ArrivalRate  float64 `json:"arrivalrate" yaml:"arrivalrate"` // messages per second

	ServiceModel    string  `json:"servicemodel" yaml:"servicemodel"`
	MeanServiceTime float64 `json:"meanservicetime" yaml:"meanservicetime"`
}

// WorkloadDesc is the serializable description of a synthetic workload.
type WorkloadDesc struct {
	Name     string             `json:"name" yaml:"name"`
	Timestep int                `json:"timestep" yaml:"timestep"`
	Duration float64            `json:"duration" yaml:"duration"` // seconds of virtual time
	Flows    []WorkloadFlowDesc `json:"flows" yaml:"flows"`
}

// WriteToFile stores the WorkloadDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (wd *WorkloadDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*wd)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*wd, "", "\t")
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

// ReadWorkloadDesc deserializes a byte slice holding a representation of a WorkloadDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadWorkloadDesc(filename string, useYAML bool, dict []byte) (*WorkloadDesc, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := WorkloadDesc{}

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

// flowGen drives the arrival process of one described flow.
type flowGen struct {
	wkld *Workload
	desc WorkloadFlowDesc
	rng  *rngstream.RngStream
	hops int
}

// Workload generates message records from a workload description.
type Workload struct {
	mesh    *Mesh
	desc    *WorkloadDesc
	evtMgr  *evtm.EventManager
	gens    []*flowGen
	records []MessageRecord
}

// CreateWorkload validates a workload description against a mesh and
// prepares the per-flow generators, each with its own named random number
// stream so runs are reproducible.
func CreateWorkload(mesh *Mesh, desc *WorkloadDesc) (*Workload, error) {
	w := new(Workload)
	w.mesh = mesh
	w.desc = desc
	w.evtMgr = evtm.New()
	w.records = make([]MessageRecord, 0)

	for idx := range desc.Flows {
		fd := desc.Flows[idx]
		src, serr := mesh.ParseHWAddr(fd.SrcHW)
		if serr != nil {
			return nil, serr
		}
		dst, derr := mesh.ParseHWAddr(fd.DstHW)
		if derr != nil {
			return nil, derr
		}
		if src == dst {
			return nil, InputErrorf("workload flow %s->%s is degenerate", fd.SrcHW, fd.DstHW)
		}
		if fd.ArrivalRate <= 0.0 || fd.MeanServiceTime <= 0.0 {
			return nil, InputErrorf("workload flow %s->%s needs positive rate and service time",
				fd.SrcHW, fd.DstHW)
		}

		gen := new(flowGen)
		gen.wkld = w
		gen.desc = fd

		// hop count on the XY route: one per tile move, plus injection
		// and ejection
		sx, sy, _ := mesh.TileCoords(mesh.CoreTile(src))
		dx, dy, _ := mesh.TileCoords(mesh.CoreTile(dst))
		gen.hops = abs(dx-sx) + abs(dy-sy) + 2

		gen.rng = rngstream.New(desc.Name + "-" + fd.SrcHW + "->" + fd.DstHW)
		w.gens = append(w.gens, gen)
	}

	return w, nil
}

// Generate runs the arrival processes through the event manager and
// returns the accumulated records, ordered by virtual send time per flow.
func (w *Workload) Generate() ([]MessageRecord, error) {
	for _, gen := range w.gens {
		gap := sampleDelay(gen.desc.ArrivalModel, gen.rng.RandU01(), gen.desc.ArrivalRate)
		w.evtMgr.Schedule(gen, gap, nxtWorkloadArrival, vrtime.SecondsToTime(gap))
	}
	w.evtMgr.Run(w.desc.Duration)
	return w.records, nil
}

// nxtWorkloadArrival is the event handler for one message arrival.  It
// records the message and schedules the flow's next arrival while virtual
// time remains.
func nxtWorkloadArrival(evtMgr *evtm.EventManager, context any, data any) any {
	gen := context.(*flowGen)
	w := gen.wkld
	gap := data.(float64)

	now := evtMgr.CurrentSeconds()
	if now > w.desc.Duration {
		return nil
	}

	service := sampleDelay(gen.desc.ServiceModel, gen.rng.RandU01(), 1.0/gen.desc.MeanServiceTime)

	rec := MessageRecord{Timestep: w.desc.Timestep, SrcHW: gen.desc.SrcHW, DstHW: gen.desc.DstHW,
		Hops: gen.hops, Spikes: 1, GenerationDelay: gap, ProcessingLatency: service,
		SentTimestamp: now, ProcessedTimestamp: now + service}
	w.records = append(w.records, rec)

	nxtGap := sampleDelay(gen.desc.ArrivalModel, gen.rng.RandU01(), gen.desc.ArrivalRate)
	evtMgr.Schedule(gen, nxtGap, nxtWorkloadArrival, vrtime.SecondsToTime(nxtGap))

	return nil
}

// sampleDelay draws one delay from the named model at the given rate.
func sampleDelay(model string, u01, rate float64) float64 {
	switch model {
	case "expon", "exp", "exponential":
		return -math.Log(1.0-u01) / rate
	}
	// "const", "constant", or unspecified
	return 1.0 / rate
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
