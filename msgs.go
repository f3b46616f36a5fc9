package sanafe

// msgs.go holds the message-trace record type and the thin adapter that
// loads records from the simulator's CSV message trace.  The analysis
// itself consumes a fully loaded []MessageRecord; nothing downstream of
// this file touches storage.

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path"
	"strconv"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// MessageRecord describes one message observed on the network, mirroring
// one row of the simulator's message trace.  SrcHW and DstHW are hardware
// addresses in "tile.core" form.
type MessageRecord struct {
	Timestep           int     `json:"timestep" yaml:"timestep"`
	SrcNeuron          string  `json:"srcneuron" yaml:"srcneuron"`
	SrcHW              string  `json:"srchw" yaml:"srchw"`
	DstHW              string  `json:"dsthw" yaml:"dsthw"`
	Hops               int     `json:"hops" yaml:"hops"`
	Spikes             int     `json:"spikes" yaml:"spikes"`
	GenerationDelay    float64 `json:"generationdelay" yaml:"generationdelay"`
	NetworkDelay       float64 `json:"networkdelay" yaml:"networkdelay"`
	ProcessingLatency  float64 `json:"processinglatency" yaml:"processinglatency"`
	BlockingLatency    float64 `json:"blockinglatency" yaml:"blockinglatency"`
	SentTimestamp      float64 `json:"senttimestamp" yaml:"senttimestamp"`
	ProcessedTimestamp float64 `json:"processedtimestamp" yaml:"processedtimestamp"`
}

// message trace column names, as written by the simulator's trace header
const (
	colTimestep           = "timestep"
	colSrcNeuron          = "src_neuron"
	colSrcHW              = "src_hw"
	colDstHW              = "dest_hw"
	colHops               = "hops"
	colSpikes             = "spikes"
	colGenerationDelay    = "generation_delay"
	colNetworkDelay       = "network_delay"
	colProcessingLatency  = "processing_latency"
	colBlockingLatency    = "blocking_latency"
	colSentTimestamp      = "sent_timestamp"
	colProcessedTimestamp = "processed_timestamp"
)

// ReadMessageTrace loads the simulator's CSV message trace from the named
// file and returns the records belonging to one simulation timestep.
// Columns are located by header name so the trace format may grow columns
// without breaking the reader; the columns the analysis needs are required.
func ReadMessageTrace(filename string, timestep int) ([]MessageRecord, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, errors.Wrap(err, "opening message trace")
	}
	defer f.Close()

	rdr := csv.NewReader(f)
	header, err := rdr.Read()
	if err != nil {
		return nil, InputErrorf("message trace %s has no header row", filename)
	}

	colIdx := make(map[string]int)
	for idx, name := range header {
		colIdx[name] = idx
	}
	required := []string{colTimestep, colSrcHW, colDstHW, colGenerationDelay, colProcessingLatency}
	for _, name := range required {
		_, present := colIdx[name]
		if !present {
			return nil, InputErrorf("message trace %s lacks required column %q", filename, name)
		}
	}

	// optional columns are read when present and left zero otherwise
	intField := func(row []string, name string) (int, error) {
		idx, present := colIdx[name]
		if !present || row[idx] == "" {
			return 0, nil
		}
		return strconv.Atoi(row[idx])
	}
	floatField := func(row []string, name string) (float64, error) {
		idx, present := colIdx[name]
		if !present || row[idx] == "" {
			return 0.0, nil
		}
		return strconv.ParseFloat(row[idx], 64)
	}
	strField := func(row []string, name string) string {
		idx, present := colIdx[name]
		if !present {
			return ""
		}
		return row[idx]
	}

	records := []MessageRecord{}
	line := 1
	for {
		row, rerr := rdr.Read()
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return nil, InputErrorf("message trace %s line %d: %v", filename, line+1, rerr)
		}
		line += 1

		ts, terr := intField(row, colTimestep)
		if terr != nil {
			return nil, InputErrorf("message trace %s line %d holds a non-integer timestep", filename, line)
		}
		if ts != timestep {
			continue
		}

		rec := MessageRecord{Timestep: ts}
		rec.SrcNeuron = strField(row, colSrcNeuron)
		rec.SrcHW = strField(row, colSrcHW)
		rec.DstHW = strField(row, colDstHW)

		var ferr error
		rec.Hops, ferr = intField(row, colHops)
		if ferr == nil {
			rec.Spikes, ferr = intField(row, colSpikes)
		}
		if ferr == nil {
			rec.GenerationDelay, ferr = floatField(row, colGenerationDelay)
		}
		if ferr == nil {
			rec.NetworkDelay, ferr = floatField(row, colNetworkDelay)
		}
		if ferr == nil {
			rec.ProcessingLatency, ferr = floatField(row, colProcessingLatency)
		}
		if ferr == nil {
			rec.BlockingLatency, ferr = floatField(row, colBlockingLatency)
		}
		if ferr == nil {
			rec.SentTimestamp, ferr = floatField(row, colSentTimestamp)
		}
		if ferr == nil {
			rec.ProcessedTimestamp, ferr = floatField(row, colProcessedTimestamp)
		}
		if ferr != nil {
			return nil, InputErrorf("message trace %s line %d holds a malformed field: %v", filename, line, ferr)
		}
		records = append(records, rec)
	}

	return records, nil
}

// MsgTraceDesc is a serializable container for message records, used to
// carry synthesized or converted traces between tools.
type MsgTraceDesc struct {
	Name    string          `json:"name" yaml:"name"`
	Records []MessageRecord `json:"records" yaml:"records"`
}

// CreateMsgTraceDesc is an initialization constructor.
func CreateMsgTraceDesc(name string) *MsgTraceDesc {
	mtd := new(MsgTraceDesc)
	mtd.Name = name
	mtd.Records = make([]MessageRecord, 0)
	return mtd
}

// WriteToFile stores the MsgTraceDesc struct to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (mtd *MsgTraceDesc) WriteToFile(filename string) error {
	pathExt := path.Ext(filename)
	var bytes []byte
	var merr error = nil

	if pathExt == ".yaml" || pathExt == ".YAML" || pathExt == ".yml" {
		bytes, merr = yaml.Marshal(*mtd)
	} else if pathExt == ".json" || pathExt == ".JSON" {
		bytes, merr = json.MarshalIndent(*mtd, "", "\t")
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

// ReadMsgTraceDesc deserializes a byte slice holding a representation of a MsgTraceDesc struct.
// If the input argument of dict (those bytes) is empty, the file whose name is given is read
// to acquire them.
func ReadMsgTraceDesc(filename string, useYAML bool, dict []byte) (*MsgTraceDesc, error) {
	var err error

	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := MsgTraceDesc{}

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
