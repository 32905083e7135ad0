package qnetsim

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func jobInput(t *testing.T, job WorkerJob) *bytes.Reader {
	t.Helper()
	data, err := yaml.Marshal(&job)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

func TestServeWorker(t *testing.T) {
	cfg := testSimCfg(t.Name())
	cfg.Requests = 10

	var out bytes.Buffer
	err := ServeWorker(context.Background(), jobInput(t, WorkerJob{Worker: 1, Cfg: *cfg, Runs: []int{3, 4}}), &out, nil)
	require.NoError(t, err)

	rs, err := ReadResultsIPC(&out)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())
	for _, row := range rs.Rows {
		assert.Equal(t, 10, row.Requests)
		assert.Equal(t, "Line", row.Topology)
	}
}

func TestServeWorkerEmptyShare(t *testing.T) {
	var out bytes.Buffer
	err := ServeWorker(context.Background(), jobInput(t, WorkerJob{Cfg: *testSimCfg(t.Name())}), &out, nil)
	require.NoError(t, err)

	rs, err := ReadResultsIPC(&out)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())
}

func TestServeWorkerRejectsBadJobs(t *testing.T) {
	cfg := testSimCfg(t.Name())

	err := ServeWorker(context.Background(), jobInput(t, WorkerJob{Cfg: *cfg, Runs: []int{0, 2}}), &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, ErrBadParameter)

	invalid := *cfg
	invalid.Attempts = 0
	err = ServeWorker(context.Background(), jobInput(t, WorkerJob{Cfg: invalid, Runs: []int{0}}), &bytes.Buffer{}, nil)
	assert.ErrorIs(t, err, ErrBadParameter)

	err = ServeWorker(context.Background(), strings.NewReader("runs: [oops"), &bytes.Buffer{}, nil)
	assert.Error(t, err)
}
