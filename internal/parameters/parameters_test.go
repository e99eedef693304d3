package parameters

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFromConfigString(t *testing.T) {
	params := NewFromConfigString("rl_type=continuous_pg, cycles=3,self_imitation,expr=a=b")
	assert.Equal(t, Params{"rl_type": "continuous_pg", "cycles": "3", "self_imitation": "", "expr": "a=b"}, params)
	assert.Empty(t, NewFromConfigString(""))
}

func TestPopParamOr(t *testing.T) {
	params := NewFromConfigString("cycles=3,rate=0.5,verbose,name=x,bad=abc")
	cycles, err := PopParamOr(params, "cycles", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, cycles)
	rate, err := PopParamOr(params, "rate", float32(1))
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), rate)
	verbose, err := PopParamOr(params, "verbose", false)
	require.NoError(t, err)
	assert.True(t, verbose)
	name, err := PopParamOr(params, "name", "default")
	require.NoError(t, err)
	assert.Equal(t, "x", name)
	missing, err := GetParamOr(params, "missing", 7.0)
	require.NoError(t, err)
	assert.Equal(t, 7.0, missing)

	_, err = PopParamOr(params, "bad", 1)
	assert.Error(t, err)
	err = CheckAllUsed(params, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	delete(params, "bad")
	assert.NoError(t, CheckAllUsed(params, "test"))
}

func TestMerge(t *testing.T) {
	merged := Merge(Params{"a": "1", "b": "2"}, Params{"b": "3"})
	assert.Equal(t, Params{"a": "1", "b": "3"}, merged)
}
