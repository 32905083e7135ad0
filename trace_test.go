package qnetsim

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInactiveTraceManager(t *testing.T) {
	var nilTM *TraceManager
	assert.False(t, nilTM.Active())
	assert.Equal(t, 0, nilTM.Len())
	nilTM.AddQubitTrace("net", 1, 0, 0, "add")
	assert.Nil(t, nilTM.HostTraces("net", 0))

	tm := CreateTraceManager("off", false)
	tm.AddQubitTrace("net", 1, 0, 0, "add")
	tm.AddSwapTrace("net", 1, 0, []int{0, 1, 2}, 0.5, 0.9, "swapped")
	assert.Equal(t, 0, tm.Len())

	written, err := tm.WriteToFile(filepath.Join(t.TempDir(), "trace.yaml"))
	assert.False(t, written)
	assert.NoError(t, err)
}

func TestTraceRecords(t *testing.T) {
	tm := CreateTraceManager("on", true)
	tm.AddQubitTrace("net", 3, 4, 17, "consume")
	tm.AddSwapTrace("net", 5, 0, []int{0, 4, 2}, 0.82, 0.87, "swapped")
	tm.AddSwapTrace("net", 5, 0, nil, 0.82, 0.87, "swapped")

	assert.Equal(t, 2, tm.Len())
	assert.Equal(t, NameType{Name: "net/host-4", Type: "Host"}, tm.NameByID[0])
	assert.Equal(t, NameType{Name: "net/host-0", Type: "Host"}, tm.NameByID[1])

	require.Len(t, tm.HostTraces("net", 4), 1)
	qtr := tm.HostTraces("net", 4)[0]
	assert.Equal(t, "3", qtr.TraceTime)
	assert.Equal(t, QubitType.String(), qtr.TraceType)
	var qubit QubitTrace
	require.NoError(t, yaml.Unmarshal([]byte(qtr.TraceStr), &qubit))
	assert.Equal(t, QubitTrace{Network: "net", Timeslot: 3, HostID: 4, QubitID: 17, Op: "consume"}, qubit)

	var swap SwapTrace
	require.Len(t, tm.HostTraces("net", 0), 1)
	require.NoError(t, yaml.Unmarshal([]byte(tm.HostTraces("net", 0)[0].TraceStr), &swap))
	assert.Equal(t, []int{0, 4, 2}, swap.Nodes)
	assert.Equal(t, "swapped", swap.Op)
}

func TestTraceWriteToFile(t *testing.T) {
	tm := CreateTraceManager("files", true)
	tm.AddQubitTrace("net", 1, 2, 3, "add")
	dir := t.TempDir()

	yamlFile := filepath.Join(dir, "trace.yaml")
	written, err := tm.WriteToFile(yamlFile)
	require.NoError(t, err)
	assert.True(t, written)
	contents, err := os.ReadFile(yamlFile)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(contents), "expname: files"))

	jsonFile := filepath.Join(dir, "trace.json")
	_, err = tm.WriteToFile(jsonFile)
	require.NoError(t, err)
	contents, err = os.ReadFile(jsonFile)
	require.NoError(t, err)
	back := CreateTraceManager("", false)
	require.NoError(t, json.Unmarshal(contents, back))
	assert.Equal(t, tm.Traces, back.Traces)

	_, err = tm.WriteToFile(filepath.Join(dir, "trace.txt"))
	assert.Error(t, err)
}

func TestNetworkEmitsTraces(t *testing.T) {
	tm := CreateTraceManager(t.Name(), true)
	net := createNetwork(t.Name(), nil, nil, tm, constRand(0.5))
	require.NoError(t, net.SetTopology("line", 3))
	before := tm.Len()
	assert.Greater(t, before, 0)

	nl := net.NetworkLayer()
	route, err := nl.FindRoute(0, 2, true)
	require.NoError(t, err)
	_, _, err = nl.Swap(route)
	require.NoError(t, err)
	assert.Greater(t, tm.Len(), before)
}

func TestTracesOfNetworksStayApart(t *testing.T) {
	tm := CreateTraceManager(t.Name(), true)
	tm.AddQubitTrace("batch-run-0", 1, 2, 10, "add")
	tm.AddQubitTrace("batch-run-1", 1, 2, 10, "add")
	tm.AddQubitTrace("batch-run-0", 2, 2, 11, "consume")

	first := tm.HostTraces("batch-run-0", 2)
	second := tm.HostTraces("batch-run-1", 2)
	require.Len(t, first, 2)
	require.Len(t, second, 1)
	for _, trace := range first {
		var qubit QubitTrace
		require.NoError(t, yaml.Unmarshal([]byte(trace.TraceStr), &qubit))
		assert.Equal(t, "batch-run-0", qubit.Network)
	}
	assert.Len(t, tm.NameByID, 2)
	assert.Nil(t, tm.HostTraces("batch-run-2", 2))
}

func TestSharedTraceManagerAcrossRuns(t *testing.T) {
	tm := CreateTraceManager(t.Name(), true)
	for _, name := range []string{"shared-run-0", "shared-run-1"} {
		net := createNetwork(name, nil, nil, tm, constRand(0.5))
		require.NoError(t, net.SetTopology("line", 3))
	}

	// bootstrap adds the same qubits to each network
	zero := tm.HostTraces("shared-run-0", 1)
	one := tm.HostTraces("shared-run-1", 1)
	require.NotEmpty(t, zero)
	assert.Equal(t, len(zero), len(one))
	var qubit QubitTrace
	require.NoError(t, yaml.Unmarshal([]byte(one[0].TraceStr), &qubit))
	assert.Equal(t, "shared-run-1", qubit.Network)
	assert.Equal(t, 1, qubit.HostID)
}
