package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewModuleStartsWithAllChannelsDisabled(t *testing.T) {
	m := NewModule("mod1", "saturn", 4)
	require.Len(t, m.Channels, 4)
	for _, c := range m.Channels {
		assert.Equal(t, DisabledChannel, c.LogicalChannel)
	}
	assert.Empty(t, m.ActiveChannels())
}

func TestModuleChannelByLogicalFailsWhenUnbound(t *testing.T) {
	m := NewModule("mod1", "saturn", 2)
	_, err := m.ChannelByLogical(9)
	require.Error(t, err)
}

func TestModuleChannelByLogicalFindsBoundChannel(t *testing.T) {
	m := NewModule("mod1", "saturn", 2)
	m.Channels[1].LogicalChannel = 42

	phys, err := m.ChannelByLogical(42)
	require.NoError(t, err)
	assert.Equal(t, 1, phys)
}

func TestModuleRunActiveIsPerChannel(t *testing.T) {
	m := NewModule("mod1", "saturn", 2)
	m.SetRunActive(0, true)
	assert.True(t, m.IsRunActive(0))
	assert.False(t, m.IsRunActive(1))

	m.SetRunActive(0, false)
	assert.False(t, m.IsRunActive(0))
}

func TestCurrentFirmwareGetUnsetKindIsEmpty(t *testing.T) {
	var cur CurrentFirmware
	assert.Equal(t, "", cur.Get(Dsp))
	cur.Set(Dsp, "dsp.bin")
	assert.Equal(t, "dsp.bin", cur.Get(Dsp))
}
