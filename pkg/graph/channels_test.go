package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/herr"
)

func TestChannelsMembersFlattensSets(t *testing.T) {
	c := NewChannels()
	require.NoError(t, c.AddSingle(0, "mod-a"))
	require.NoError(t, c.AddSingle(1, "mod-a"))
	require.NoError(t, c.AddSet(10, []int{0, 1}))

	members, err := c.Members(10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, members)
}

func TestChannelsValidateDetectsDirectCycle(t *testing.T) {
	c := NewChannels()
	require.NoError(t, c.AddSet(10, []int{11}))
	require.NoError(t, c.AddSet(11, []int{10}))

	err := c.Validate()
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.InfiniteLoop, kind)
}

func TestChannelsValidateDetectsSelfReference(t *testing.T) {
	c := NewChannels()
	require.NoError(t, c.AddSet(5, []int{5}))

	err := c.Validate()
	require.Error(t, err)
}

func TestChannelsUniversalSetReachesEverySingle(t *testing.T) {
	c := NewChannels()
	require.NoError(t, c.AddSingle(0, "mod-a"))
	require.NoError(t, c.AddSingle(1, "mod-b"))

	members, err := c.Members(UniversalSetID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{0, 1}, members)
}

func TestChannelsContains(t *testing.T) {
	c := NewChannels()
	require.NoError(t, c.AddSingle(0, "mod-a"))
	require.NoError(t, c.AddSingle(1, "mod-a"))
	require.NoError(t, c.AddSet(10, []int{0, 1}))

	assert.True(t, c.Contains(10, 0))
	assert.False(t, c.Contains(10, 2))
}
