package qnetsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateQubit(t *testing.T) {
	net := manualNetwork(t, constRand(0.5), 2, Edge{0, 1})
	pl := net.Physical()

	q, err := pl.CreateQubit(0, true, true)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, q.Fidelity, 1e-12)
	assert.Equal(t, 1, q.CreatedAt)
	assert.Equal(t, 1, pl.UsedQubits())
	assert.Equal(t, []*Qubit{q}, net.Host(0).Memory())

	ts, present := net.QubitCreationTimeslot(q.ID)
	require.True(t, present)
	assert.Equal(t, 1, ts)

	other, err := pl.CreateQubit(1, false, false)
	require.NoError(t, err)
	assert.NotEqual(t, q.ID, other.ID)
	assert.Equal(t, 1, pl.UsedQubits())

	_, err = pl.CreateQubit(7, false, false)
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestHeraldEntanglement(t *testing.T) {
	tests := []struct {
		name    string
		draw    float64
		success bool
	}{
		{name: "success", draw: 0.5, success: true},
		{name: "failure", draw: 0.7, success: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			net := manualNetwork(t, constRand(test.draw), 2, Edge{0, 1})
			ch, _ := net.Channel(0, 1)
			ch.OnDemandProb = 0.6
			net.Host(0).AddQubit(&Qubit{ID: 100, Fidelity: 0.9})
			net.Host(1).AddQubit(&Qubit{ID: 101, Fidelity: 0.8})
			pl := net.Physical()

			ok, err := pl.HeraldEntanglement(0, 1)
			require.NoError(t, err)
			assert.Equal(t, test.success, ok)

			// qubits are consumed either way
			assert.Empty(t, net.Host(0).Memory())
			assert.Empty(t, net.Host(1).Memory())
			assert.Equal(t, 2, pl.UsedQubits())
			assert.Equal(t, 1, net.Timeslot())

			if test.success {
				require.Equal(t, 1, ch.Len())
				assert.InDelta(t, 0.72, ch.Pairs[0].Fidelity, 1e-12)
				assert.Equal(t, 1, pl.UsedPairs())
				assert.InDelta(t, 0.72, pl.AverageFidelity(), 1e-12)
			} else {
				assert.Equal(t, 0, ch.Len())
				assert.Equal(t, 0, pl.UsedPairs())
				assert.Equal(t, 0.0, pl.AverageFidelity())
			}
		})
	}
}

func TestHeraldEntanglementErrors(t *testing.T) {
	net := manualNetwork(t, constRand(0.5), 3, Edge{0, 1})
	pl := net.Physical()

	_, err := pl.HeraldEntanglement(0, 2)
	assert.ErrorIs(t, err, ErrNoChannel)

	net.Host(0).AddQubit(&Qubit{ID: 1, Fidelity: 1.0})
	_, err = pl.HeraldEntanglement(0, 1)
	assert.ErrorIs(t, err, ErrEmptyMemory)
	assert.Len(t, net.Host(0).Memory(), 1)
}

func TestReplenish(t *testing.T) {
	net := manualNetwork(t, constRand(0.5), 3, Edge{0, 1}, Edge{1, 2})
	for _, edge := range net.Edges() {
		ch, _ := net.Channel(edge[0], edge[1])
		ch.OnDemandProb = 1.0
	}
	pl := net.Physical()

	require.NoError(t, pl.Replenish(net.Edges(), 3))
	assert.Equal(t, 3, pairCount(t, net, 0, 1))
	assert.Equal(t, 3, pairCount(t, net, 1, 2))
	assert.Equal(t, 6, pl.UsedPairs())
	assert.Equal(t, 12, pl.UsedQubits())
}

func TestReplenishErrors(t *testing.T) {
	net := manualNetwork(t, constRand(0.5), 3, Edge{0, 1})
	net.cfg.HeraldingAttempts = 5
	ch, _ := net.Channel(0, 1)
	ch.OnDemandProb = 0.0
	pl := net.Physical()

	err := pl.Replenish([]Edge{{0, 1}}, 1)
	assert.ErrorIs(t, err, ErrHeraldingExhausted)
	assert.Equal(t, 0, ch.Len())

	err = pl.Replenish([]Edge{{0, 2}}, 1)
	assert.ErrorIs(t, err, ErrNoChannel)
}

func TestPairChannelHelpers(t *testing.T) {
	net := manualNetwork(t, constRand(0.5), 2, Edge{0, 1})
	pl := net.Physical()

	pair := pl.CreatePair(0, 1, 0.95, true, true)
	assert.Equal(t, 1, pair.CreatedAt)
	assert.False(t, pair.Virtual)
	assert.Equal(t, 1, pl.UsedPairs())

	require.NoError(t, pl.AddPairToChannel(pair, 1, 0))
	removed, err := pl.RemovePairFromChannel(0, 1)
	require.NoError(t, err)
	assert.Same(t, pair, removed)

	_, err = pl.RemovePairFromChannel(0, 1)
	assert.ErrorIs(t, err, ErrNoPairsAvailable)
}
