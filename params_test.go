package qnetsim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyParametersMostSpecificWins(t *testing.T) {
	net := buildTopology(t, "line", 3)
	params := []ParamOverride{
		*CreateParamOverride("Host", "name%%1", "swapProb", "0.2"),
		*CreateParamOverride("Host", "*", "swapProb", "0.9"),
		*CreateParamOverride("Host", "normal", "memorySize", "4"),
	}
	require.NoError(t, net.ApplyParameters(params))

	for id, want := range map[int]float64{0: 0.9, 1: 0.2, 2: 0.9} {
		p, set := net.Host(id).SwapSuccessProbability()
		assert.True(t, set)
		assert.Equal(t, want, p, "host %d", id)
		assert.Equal(t, 4, net.Host(id).MemorySize())
	}
}

func TestApplyParametersAttackerClass(t *testing.T) {
	net := buildTopology(t, "line", 3)
	net.Host(2).SetAttacker(true)
	require.NoError(t, net.ApplyParameters([]ParamOverride{
		*CreateParamOverride("Host", "attacker", "targetedSwapProb", "0.1"),
	}))

	p, set := net.Host(2).TargetedSwapSuccessProbability()
	assert.True(t, set)
	assert.Equal(t, 0.1, p)
	_, set = net.Host(0).TargetedSwapSuccessProbability()
	assert.False(t, set)
}

func TestApplyParametersChannels(t *testing.T) {
	net := buildTopology(t, "line", 3)
	require.NoError(t, net.ApplyParameters([]ParamOverride{
		*CreateParamOverride("Channel", "name%%1-0", "onDemandProb", "0.25"),
		*CreateParamOverride("Channel", "*", "replayProb", "0.5"),
	}))

	ch01, _ := net.Channel(0, 1)
	ch12, _ := net.Channel(1, 2)
	assert.Equal(t, 0.25, ch01.OnDemandProb)
	assert.InDelta(t, 0.6, ch12.OnDemandProb, 1e-12)
	for _, ch := range []*Channel{ch01, ch12} {
		assert.Equal(t, 0.5, ch.ReplayProb)
	}

	// virtual entanglement does not exist yet when overrides are applied
	err := net.ApplyParameters([]ParamOverride{
		*CreateParamOverride("Channel", "swapped", "onDemandProb", "0"),
	})
	assert.ErrorIs(t, err, ErrBadParameter)
	assert.Equal(t, 0.25, ch01.OnDemandProb)
}

func TestApplyParametersRejectsInvalid(t *testing.T) {
	net := buildTopology(t, "line", 3)
	err := net.ApplyParameters([]ParamOverride{
		*CreateParamOverride("Host", "*", "swapProb", "0.5"),
		*CreateParamOverride("Host", "*", "swapProb", "7"),
	})
	assert.ErrorIs(t, err, ErrBadParameter)

	// nothing applied
	_, set := net.Host(0).SwapSuccessProbability()
	assert.False(t, set)
}

func TestReorderParams(t *testing.T) {
	named := *CreateParamOverride("Host", "name%%0", "swapProb", "0.1")
	class := *CreateParamOverride("Host", "attacker", "swapProb", "0.2")
	wild := *CreateParamOverride("Host", "*", "swapProb", "0.3")

	ordered := reorderParams([]ParamOverride{named, class, wild, class})
	assert.Equal(t, []ParamOverride{wild, class, named}, ordered)
}

func TestStringToValueStruct(t *testing.T) {
	assert.Equal(t, valueStruct{intValue: 3, floatValue: 3}, stringToValueStruct("3"))
	assert.Equal(t, valueStruct{floatValue: 0.25}, stringToValueStruct("0.25"))
	assert.Equal(t, valueStruct{boolValue: true}, stringToValueStruct("true"))
	assert.Equal(t, valueStruct{stringValue: "x"}, stringToValueStruct("x"))
}
