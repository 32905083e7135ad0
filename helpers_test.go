package qnetsim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// scriptedRand returns its draws in order, then rest forever
type scriptedRand struct {
	draws []float64
	idx   int
	rest  float64
}

func (sr *scriptedRand) RandU01() float64 {
	if sr.idx < len(sr.draws) {
		v := sr.draws[sr.idx]
		sr.idx += 1
		return v
	}
	return sr.rest
}

func constRand(v float64) *scriptedRand {
	return &scriptedRand{rest: v}
}

// buildTopology builds a named topology drawing 0.5 from its random source, so every
// qubit has fidelity 0.9, every channel probability is 0.6 and bootstrap pairs have
// fidelity 1.0
func buildTopology(t *testing.T, name string, args ...float64) *Network {
	t.Helper()
	net := createNetwork(t.Name(), nil, nil, nil, constRand(0.5))
	require.NoError(t, net.SetTopology(name, args...))
	return net
}

// manualNetwork registers hosts 0..n-1 with the listed edges and no resources
func manualNetwork(t *testing.T, rng Rand, n int, edges ...Edge) *Network {
	t.Helper()
	net := createNetwork(t.Name(), nil, nil, nil, rng)
	hosts := make([]*Host, n)
	for id := range hosts {
		hosts[id] = CreateHost(id, nil, nil)
	}
	for _, edge := range edges {
		hosts[edge[0]].AddConnection(edge[1])
		hosts[edge[1]].AddConnection(edge[0])
	}
	for _, host := range hosts {
		require.NoError(t, net.AddHost(host))
	}
	return net
}

// addPairs places pairs of the given fidelities on the edge a-b
func addPairs(t *testing.T, net *Network, a, b int, fidelities ...float64) {
	t.Helper()
	for _, fid := range fidelities {
		require.NoError(t, net.AddPair(a, b, createPair(a, b, fid, net.Timeslot(), false)))
	}
}

func pairCount(t *testing.T, net *Network, a, b int) int {
	t.Helper()
	pairs, err := net.PairsOnEdge(a, b)
	require.NoError(t, err)
	return len(pairs)
}
