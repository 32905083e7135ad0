package qnetsim

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSimCfg(name string) *SimCfg {
	cfg := DefaultSimCfg(name)
	cfg.Topology = "line"
	cfg.Nodes = 6
	cfg.TopologyArgs = nil
	cfg.Requests = 25
	return cfg
}

func TestSummary(t *testing.T) {
	rr := &RunRecord{
		Topology:  "Line",
		Nodes:     4,
		Attackers: []int{2},
		Requests: []RequestOutcome{
			{Result: SwapSucceeded, Attempts: 0},
			{Result: SwapSucceeded, Attempts: 1},
			{Result: SwapFailed, Attempts: 2},
			{Result: SwapImpossible, Attempts: 0},
		},
		UsedPairs:        12,
		AvgRouteFidelity: 0.93,
	}

	row := rr.Summary()
	assert.Equal(t, ResultRow{
		Requests:         4,
		Topology:         "Line",
		Nodes:            4,
		SuccessRate:      50,
		FailureRate:      25,
		ImpossibleRate:   25,
		AvgAttempts:      0.75,
		UsedPairs:        12,
		AvgRouteFidelity: 0.93,
		Attackers:        1,
	}, row)

	empty := (&RunRecord{Topology: "Ring", Nodes: 3, AvgRouteFidelity: -1}).Summary()
	assert.Equal(t, 0, empty.Requests)
	assert.Equal(t, 0.0, empty.SuccessRate)
	assert.Equal(t, -1.0, empty.AvgRouteFidelity)
}

func TestSelectAttackers(t *testing.T) {
	net := buildTopology(t, "line", 6)
	net.SetRand(newRngStream(t.Name()))

	attackers := SelectAttackers(net, 2, true)
	require.Len(t, attackers, 2)
	assert.NotEqual(t, attackers[0].ID(), attackers[1].ID())

	for _, attacker := range attackers {
		assert.True(t, attacker.IsAttacker())
		require.Len(t, attacker.AttackTargets(), 1)
		assert.False(t, attacker.AttackTargets()[0].IsAttacker())
	}
	assert.NotEqual(t, attackers[0].AttackTargets()[0].ID(), attackers[1].AttackTargets()[0].ID())

	count := 0
	for _, host := range net.Hosts() {
		if host.IsAttacker() {
			count += 1
		}
	}
	assert.Equal(t, 2, count)
}

func TestSelectAttackersBounds(t *testing.T) {
	net := buildTopology(t, "line", 4)
	assert.Empty(t, SelectAttackers(net, 0, false))
	assert.Empty(t, SelectAttackers(net, 4, false))
	assert.Empty(t, SelectAttackers(net, -1, false))

	attackers := SelectAttackers(net, 1, false)
	require.Len(t, attackers, 1)
	assert.Empty(t, attackers[0].AttackTargets())
}

func TestSelectAttackersTargetsWithReplacement(t *testing.T) {
	net := buildTopology(t, "line", 3)
	net.SetRand(newRngStream(t.Name()))

	attackers := SelectAttackers(net, 2, true)
	require.Len(t, attackers, 2)
	first := attackers[0].AttackTargets()[0]
	second := attackers[1].AttackTargets()[0]
	assert.Same(t, first, second)
	assert.False(t, first.IsAttacker())
}

func TestSetNetworkSwapProbabilities(t *testing.T) {
	net := buildTopology(t, "line", 3)
	net.Host(1).SetAttacker(true)

	SetNetworkSwapProbabilities(net, Float64(0.9), Float64(0.3), true)
	p, _ := net.Host(0).SwapSuccessProbability()
	assert.Equal(t, 0.9, p)
	p, _ = net.Host(1).SwapSuccessProbability()
	assert.Equal(t, 0.9, p)
	p, _ = net.Host(1).TargetedSwapSuccessProbability()
	assert.Equal(t, 0.3, p)

	flat := buildTopology(t, "line", 3)
	flat.Host(1).SetAttacker(true)
	SetNetworkSwapProbabilities(flat, nil, Float64(0.3), false)
	_, set := flat.Host(0).SwapSuccessProbability()
	assert.False(t, set)
	p, _ = flat.Host(1).SwapSuccessProbability()
	assert.Equal(t, 0.3, p)
}

func TestSelectAliceBob(t *testing.T) {
	net := buildTopology(t, "line", 5)
	net.SetRand(newRngStream(t.Name()))
	attackers := SelectAttackers(net, 2, false)

	bobs := make(map[int]bool)
	for i := 0; i < 200; i++ {
		alice, bob := SelectAliceBob(net, attackers)
		assert.False(t, net.Host(alice).IsAttacker())
		assert.NotEqual(t, alice, bob)
		bobs[bob] = true
	}
	// attackers can be destinations
	for _, attacker := range attackers {
		assert.True(t, bobs[attacker.ID()], "attacker %d never chosen as bob", attacker.ID())
	}
}

func TestCreateRequest(t *testing.T) {
	tests := []struct {
		name     string
		draw     float64
		pairs    []float64
		result   SwapResult
		attempts int
	}{
		{name: "success", draw: 0.0, pairs: []float64{0.9, 0.9}, result: SwapSucceeded, attempts: 0},
		{name: "failures", draw: 0.99, pairs: []float64{0.9, 0.9, 0.9}, result: SwapFailed, attempts: 2},
		{name: "exhausted", draw: 0.99, pairs: []float64{0.9}, result: SwapImpossible, attempts: 1},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			net := manualNetwork(t, constRand(test.draw), 3, Edge{0, 1}, Edge{1, 2})
			addPairs(t, net, 0, 1, test.pairs...)
			addPairs(t, net, 1, 2, test.pairs...)

			result, attempts := CreateRequest(net.NetworkLayer(), []int{0, 1, 2}, 2, nil)
			assert.Equal(t, test.result, result)
			assert.Equal(t, test.attempts, attempts)
		})
	}
}

func TestSimulationRun(t *testing.T) {
	cfg := testSimCfg(t.Name())
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	require.NoError(t, err)

	sim := CreateSimulation(cfg, nil, nil, collector)
	record, err := sim.Run(0)
	require.NoError(t, err)

	assert.Equal(t, "Line", record.Topology)
	assert.Equal(t, 6, record.Nodes)
	require.Len(t, record.Attackers, 1)
	require.Len(t, record.Requests, 25)

	attacker := record.Attackers[0]
	for idx, req := range record.Requests {
		assert.Equal(t, idx, req.Index)
		assert.NotEqual(t, attacker, req.Alice)
		assert.NotEqual(t, req.Alice, req.Bob)
		assert.Contains(t, []SwapResult{SwapSucceeded, SwapFailed, SwapImpossible}, req.Result)
		assert.LessOrEqual(t, req.Attempts, cfg.Attempts)
		if req.Route != nil {
			assert.Equal(t, req.Alice, req.Route[0])
			assert.Equal(t, req.Bob, req.Route[len(req.Route)-1])
		} else {
			assert.Equal(t, SwapImpossible, req.Result)
			assert.Equal(t, 0, req.Attempts)
		}
	}

	row := record.Summary()
	assert.InDelta(t, 100.0, row.SuccessRate+row.FailureRate+row.ImpossibleRate, 1e-9)
	assert.Equal(t, 1, row.Attackers)

	// replenished before requests 10 and 20
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.Replenishments))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.Runs))
	total := testutil.ToFloat64(collector.Requests.WithLabelValues("success")) +
		testutil.ToFloat64(collector.Requests.WithLabelValues("failed")) +
		testutil.ToFloat64(collector.Requests.WithLabelValues("impossible"))
	assert.Equal(t, 25.0, total)
	assert.Equal(t, float64(record.UsedPairs), testutil.ToFloat64(collector.PairsUsed))
}

func TestSimulationRunWithoutAttackers(t *testing.T) {
	cfg := testSimCfg(t.Name())
	cfg.Attackers = 0
	cfg.Requests = 5

	record, err := CreateSimulation(cfg, nil, nil, nil).Run(3)
	require.NoError(t, err)
	assert.Equal(t, 3, record.Run)
	assert.Empty(t, record.Attackers)
	assert.Nil(t, record.AttackTargets)
	assert.Len(t, record.Requests, 5)
}

func TestSimulationRunTargetedAttack(t *testing.T) {
	cfg := testSimCfg(t.Name())
	cfg.Attackers = 2
	cfg.TargetedAttack = true
	cfg.AttackerSwapProb = Float64(0.1)
	cfg.NetworkSwapProb = Float64(0.95)
	cfg.Requests = 3

	record, err := CreateSimulation(cfg, nil, nil, nil).Run(0)
	require.NoError(t, err)
	require.Len(t, record.AttackTargets, 2)
	for attacker, target := range record.AttackTargets {
		assert.Contains(t, record.Attackers, attacker)
		assert.NotContains(t, record.Attackers, target)
	}
}

func TestSimulationRunConfigurationErrors(t *testing.T) {
	cfg := testSimCfg(t.Name())
	cfg.Topology = "hypercube"
	_, err := CreateSimulation(cfg, nil, nil, nil).Run(0)
	assert.ErrorIs(t, err, ErrUnknownTopology)

	cfg = testSimCfg(t.Name())
	cfg.Parameters = []ParamOverride{*CreateParamOverride("Host", "*", "bogus", "1")}
	_, err = CreateSimulation(cfg, nil, nil, nil).Run(0)
	assert.ErrorIs(t, err, ErrBadParameter)
}

func TestSimulationUsesRandFactory(t *testing.T) {
	cfg := testSimCfg(t.Name())
	cfg.Requests = 15

	run := func() *RunRecord {
		sim := CreateSimulation(cfg, nil, nil, nil)
		seen := make([]int, 0)
		sim.SetRandFactory(func(run int) Rand {
			seen = append(seen, run)
			return constRand(0.5)
		})
		record, err := sim.Run(4)
		require.NoError(t, err)
		assert.Equal(t, []int{4}, seen)
		return record
	}

	// identical sources, identical runs
	first, second := run(), run()
	require.Len(t, first.Requests, 15)
	assert.Equal(t, first.Requests, second.Requests)
	assert.Equal(t, first.Attackers, second.Attackers)
	assert.Equal(t, first.UsedPairs, second.UsedPairs)
}
