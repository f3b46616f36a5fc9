package sanafe

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedMessages synthesizes count messages between two hardware addresses
// with fixed generation and processing delays.
func fixedMessages(srcHW, dstHW string, count int, gen, proc float64) []MessageRecord {
	recs := make([]MessageRecord, 0, count)
	for i := 0; i < count; i++ {
		recs = append(recs, MessageRecord{Timestep: 64, SrcHW: srcHW, DstHW: dstHW,
			GenerationDelay: gen, ProcessingLatency: proc})
	}
	return recs
}

func TestAnalyzeTraceEndToEnd(t *testing.T) {
	mesh := CreateDefaultMesh()
	// flow 0.0 -> 0.1 at 1000 msg/s, 0.5ms service
	recs := fixedMessages("0.0", "0.1", 10, 0.001, 0.0005)

	report, err := AnalyzeTrace(mesh, recs, AnalysisCfg{Timestep: 64, Sweeps: 1})
	require.NoError(t, err)

	assert.Equal(t, 64, report.Timestep)
	require.Len(t, report.Links, mesh.NumLinks())
	require.Len(t, report.ArrivalRates, mesh.NumCores())
	assert.InDelta(t, 1000.0, report.ArrivalRates[0][1], 1e-9)

	leaf, err := mesh.LinkIndex(0, 0, mesh.NetToCoreDir(1))
	require.NoError(t, err)
	lr := report.Links[leaf]
	assert.Equal(t, 0, lr.X)
	assert.Equal(t, 0, lr.Y)
	assert.Equal(t, "net_to_core_2", lr.Direction)
	assert.Equal(t, 24, lr.BufferCap)
	assert.Equal(t, 1, lr.FlowCount)
	assert.InDelta(t, 1000.0, lr.ArrivalRate, 1e-9)

	expected := math.Pow(0.5, 25.0) / (1.0 - math.Pow(0.5, 25.0))
	assert.InEpsilon(t, expected, lr.ProbBlocking, 1e-9)
	assert.GreaterOrEqual(t, lr.MeanWaitTime, 0.0)
	assert.Zero(t, lr.ContentionWaitTime)

	// untouched links report all-zero state
	idle, err := mesh.LinkIndex(7, 3, DirNorth)
	require.NoError(t, err)
	assert.Zero(t, report.Links[idle].ArrivalRate)
	assert.Zero(t, report.Links[idle].ProbBlocking)
	assert.Zero(t, report.Links[idle].MeanWaitTime)
}

func TestAnalyzeTraceMultiSweepConverges(t *testing.T) {
	mesh := CreateDefaultMesh()
	recs := fixedMessages("0.0", "1.0", 10, 0.001, 0.0005)
	recs = append(recs, fixedMessages("0.1", "1.0", 20, 0.001, 0.0005)...)
	recs = append(recs, fixedMessages("1.0", "0.3", 5, 0.002, 0.0004)...)

	report, err := AnalyzeTrace(mesh, recs, AnalysisCfg{Sweeps: 4})
	require.NoError(t, err)
	assert.Zero(t, report.SweepDelta)
	assert.Equal(t, 4, report.Sweeps)
}

func TestAnalyzeTraceReceiverQueues(t *testing.T) {
	mesh := CreateDefaultMesh()
	recs := fixedMessages("0.0", "0.1", 10, 0.001, 0.0005)

	report, err := AnalyzeTrace(mesh, recs, AnalysisCfg{Sweeps: 1, ReceiverQueues: true})
	require.NoError(t, err)
	require.Len(t, report.Receivers, 1)

	fr := report.Receivers[0]
	assert.Equal(t, 0, fr.Src)
	assert.Equal(t, 1, fr.Dst)
	assert.InDelta(t, 1000.0, fr.ArrivalRate, 1e-9)
	assert.GreaterOrEqual(t, fr.ProbBlocking, 0.0)
	assert.Less(t, fr.ProbBlocking, 1.0)
	assert.GreaterOrEqual(t, fr.MeanWaitTime, 0.0)

	leaf, err := mesh.LinkIndex(0, 0, mesh.NetToCoreDir(1))
	require.NoError(t, err)
	assert.Equal(t, leaf, fr.TerminalLink)
}

func TestAnalyzeTraceRejectsDegenerateFlow(t *testing.T) {
	mesh := CreateDefaultMesh()
	// source and destination on the same core: the whole run aborts
	recs := fixedMessages("0.0", "0.0", 3, 0.001, 0.0005)

	_, err := AnalyzeTrace(mesh, recs, AnalysisCfg{Sweeps: 1})
	assert.ErrorIs(t, err, ErrInput)
}

func TestAnalysisRunsAreIndependent(t *testing.T) {
	mesh := CreateDefaultMesh()
	recs := fixedMessages("0.0", "0.1", 10, 0.001, 0.0005)

	first, err := AnalyzeTrace(mesh, recs, AnalysisCfg{Sweeps: 1})
	require.NoError(t, err)
	second, err := AnalyzeTrace(mesh, recs, AnalysisCfg{Sweeps: 1})
	require.NoError(t, err)

	// fresh state per run: identical inputs give identical reports
	assert.Equal(t, first, second)
}

func TestCongestionReportRoundTrip(t *testing.T) {
	mesh := CreateDefaultMesh()
	recs := fixedMessages("0.0", "0.1", 10, 0.001, 0.0005)

	report, err := AnalyzeTrace(mesh, recs, AnalysisCfg{Sweeps: 1})
	require.NoError(t, err)

	filename := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.WriteToFile(filename))

	loaded, err := ReadCongestionReport(filename, false, nil)
	require.NoError(t, err)
	assert.Equal(t, report.Timestep, loaded.Timestep)
	assert.Len(t, loaded.Links, mesh.NumLinks())
	assert.InDelta(t, report.Links[0].ProbBlocking, loaded.Links[0].ProbBlocking, 1e-12)
}

func TestAnalysisCfgRoundTrip(t *testing.T) {
	cfg := AnalysisCfg{Timestep: 64, Sweeps: 2, ReceiverQueues: true, Trace: true, ExpName: "dvs"}
	filename := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, cfg.WriteToFile(filename))

	loaded, err := ReadAnalysisCfg(filename, true, nil)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestAnalysisSolveTraceExport(t *testing.T) {
	mesh := CreateDefaultMesh()
	recs := fixedMessages("0.0", "0.1", 10, 0.001, 0.0005)

	an := CreateAnalysis(mesh, AnalysisCfg{Sweeps: 1, Trace: true, ExpName: "traced"})
	require.NoError(t, an.AddRecords(recs))
	_, err := an.Run()
	require.NoError(t, err)

	require.True(t, an.TraceMgr.Active())
	filename := filepath.Join(t.TempDir(), "solve.yaml")
	assert.True(t, an.TraceMgr.WriteToFile(filename))
}
