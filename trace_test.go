package tsnlat

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTraceRecordsHops(t *testing.T) {
	nw := twoHopNetwork(t, DefaultParams())
	lr, err := nw.ComputeLatency("fl", Q2022{})
	require.NoError(t, err)

	tm := CreateTraceManager("two-hop", true)
	tm.AddLatency(lr)

	traces := tm.Trace("fl", Q2022ID)
	require.Len(t, traces, 2)
	assert.Equal(t, 0, traces[0].Hop)
	assert.Equal(t, 1, traces[1].Hop)
	assert.Equal(t, "S->B/6", traces[1].Queue)
	assert.Equal(t, Q2022ID, traces[1].Formula)
	assert.Greater(t, traces[1].Ticks, traces[0].Ticks)

	var hr HopResult
	require.NoError(t, yaml.Unmarshal([]byte(traces[1].TraceStr), &hr))
	assert.InDelta(t, lr.Hops[1].Total, hr.Total, 1e-15)
	assert.Equal(t, lr.Hops[1].Queue, hr.Queue)

	// the copy handed out does not alias the records
	traces[0].Hop = 7
	assert.Equal(t, 0, tm.Trace("fl", Q2022ID)[0].Hop)
	assert.Empty(t, tm.Trace("fl", BA2021ID))
}

func TestTraceWriteToFile(t *testing.T) {
	nw := twoHopNetwork(t, DefaultParams())
	lr, err := nw.ComputeLatency("fl", BA2021{})
	require.NoError(t, err)

	tm := CreateTraceManager("two-hop", true)
	tm.AddLatency(lr)

	dir := t.TempDir()
	filename := filepath.Join(dir, "trace.yaml")
	written, err := tm.WriteToFile(filename)
	require.NoError(t, err)
	assert.True(t, written)

	bytes, err := os.ReadFile(filename)
	require.NoError(t, err)
	var stored TraceManager
	require.NoError(t, yaml.Unmarshal(bytes, &stored))
	assert.Equal(t, "two-hop", stored.ExpName)
	assert.Len(t, stored.Traces["fl/"+BA2021ID], 2)

	written, err = tm.WriteToFile(filepath.Join(dir, "trace.json"))
	require.NoError(t, err)
	assert.True(t, written)

	_, err = tm.WriteToFile(filepath.Join(dir, "trace.txt"))
	assert.Error(t, err)
}

func TestInactiveTrace(t *testing.T) {
	nw := twoHopNetwork(t, DefaultParams())
	lr, err := nw.ComputeLatency("fl", BA2021{})
	require.NoError(t, err)

	tm := CreateTraceManager("off", false)
	tm.AddLatency(lr)
	assert.Empty(t, tm.Trace("fl", BA2021ID))

	written, err := tm.WriteToFile(filepath.Join(t.TempDir(), "trace.yaml"))
	require.NoError(t, err)
	assert.False(t, written)

	var none *TraceManager
	assert.False(t, none.Active())
	none.AddLatency(lr)
}
