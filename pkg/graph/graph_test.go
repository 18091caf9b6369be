package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/herr"
)

func newTestDetector(t *testing.T, g *Graph, alias string, n int) *Detector {
	t.Helper()
	det, err := g.NewDetector(alias)
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", n))
	require.NoError(t, det.AddItem("type", "reset"))
	require.NoError(t, det.AddItem("type_value", 50.0))
	for i := 0; i < n; i++ {
		require.NoError(t, det.AddItem(fmt.Sprintf("channel%d_polarity", i), "pos"))
		require.NoError(t, det.AddItem(fmt.Sprintf("channel%d_gain", i), 1.0))
	}
	return det
}

func TestGraphBindChannelEnforcesGlobalUniqueness(t *testing.T) {
	g := New()
	m1, err := g.NewModule("mod1", "saturn", 2)
	require.NoError(t, err)
	m2, err := g.NewModule("mod2", "saturn", 2)
	require.NoError(t, err)

	require.NoError(t, g.BindChannel(m1, 0, 0))
	err = g.BindChannel(m2, 0, 0)
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.BadChannel, kind)
}

func TestGraphModuleForLogicalRoundTrips(t *testing.T) {
	g := New()
	m, err := g.NewModule("mod1", "saturn", 4)
	require.NoError(t, err)
	require.NoError(t, g.BindChannel(m, 2, 7))

	found, phys, err := g.ModuleForLogical(7)
	require.NoError(t, err)
	assert.Equal(t, "mod1", found.Alias)
	assert.Equal(t, 2, phys)
}

func TestGraphRemoveDetectorFailsWhileReferenced(t *testing.T) {
	g := New()
	newTestDetector(t, g, "det1", 1)
	m, err := g.NewModule("mod1", "saturn", 1)
	require.NoError(t, err)
	require.NoError(t, g.BindChannel(m, 0, 0))
	m.Channels[0].DetectorAlias = "det1"

	err = g.RemoveDetector("det1")
	require.Error(t, err)

	m.Channels[0].DetectorAlias = ""
	require.NoError(t, g.RemoveDetector("det1"))
}

func TestModuleActiveChannelsAndRunActive(t *testing.T) {
	m := NewModule("mod1", "saturn", 3)
	m.Channels[0].LogicalChannel = 0
	m.Channels[2].LogicalChannel = 2

	assert.Equal(t, []int{0, 2}, m.ActiveChannels())

	m.SetAllRunActive(true)
	assert.True(t, m.IsRunActive(0))
	assert.False(t, m.IsRunActive(1))
	assert.True(t, m.IsRunActive(2))

	m.SetAllRunActive(false)
	assert.False(t, m.IsRunActive(0))
}

func TestCurrentFirmwareSetReportsChange(t *testing.T) {
	var cur CurrentFirmware
	assert.True(t, cur.Set(Fippi, "a.bin"))
	assert.False(t, cur.Set(Fippi, "a.bin"))
	assert.True(t, cur.Set(Fippi, "b.bin"))
	assert.Equal(t, "b.bin", cur.Get(Fippi))
}
