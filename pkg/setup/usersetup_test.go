package setup

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/capability/fakedriver"
	"github.com/xiallc/handel-go/pkg/graph"
)

func buildSetupRig(t *testing.T, numChannels int) (*graph.Graph, *graph.Module, *fakedriver.Driver) {
	t.Helper()
	g := graph.New()

	det, err := g.NewDetector("det1")
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", numChannels))
	for i := 0; i < numChannels; i++ {
		require.NoError(t, det.AddItem("channel0_polarity", "pos"))
	}
	require.NoError(t, det.AddItem("type", "reset"))

	_, err = g.NewFirmwareSet("fs1")
	require.NoError(t, err)

	m, err := g.NewModule("mod1", "saturn", numChannels)
	require.NoError(t, err)
	for i := 0; i < numChannels; i++ {
		require.NoError(t, g.BindChannel(m, i, i))
		d, err := g.NewDefaults(defAlias(i))
		require.NoError(t, err)
		d.Set("peaking_time", 4.0)
		m.Channels[i].DetectorAlias = "det1"
		m.Channels[i].FirmwareSetAlias = "fs1"
		m.Channels[i].DefaultsAlias = defAlias(i)
	}

	driver := fakedriver.New()
	return g, m, driver
}

func defAlias(i int) string {
	return "def" + string(rune('0'+i))
}

func TestUserSetupAppliesBracketOnFirstChannelOnly(t *testing.T) {
	g, m, driver := buildSetupRig(t, 2)
	driver.RequiresApplyFlag = true

	s := &Sequencer{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
	}

	require.NoError(t, s.Run(context.Background()))
	// One apply run before and one after the first channel's defaults;
	// none for the second channel.
	assert.Equal(t, 2, driver.RunStarts)
	assert.Equal(t, 2, driver.RunStops)
	assert.True(t, m.IsSetup)
}

func TestUserSetupReappliesDefaultsInInsertionOrder(t *testing.T) {
	g, _, driver := buildSetupRig(t, 1)

	def, err := g.Defaults.Get("def0")
	require.NoError(t, err)
	require.NoError(t, def.Add("trigger_threshold", 50.0))
	require.NoError(t, def.Add("gap_time", 1.0))

	s := &Sequencer{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
	}

	require.NoError(t, s.Run(context.Background()))
	assert.Contains(t, driver.SetCalls, "trigger_threshold")
	assert.Contains(t, driver.SetCalls, "gap_time")
	assert.Equal(t, []string{"peaking_time", "trigger_threshold", "gap_time"}, driver.SetCalls)
}

func TestUserSetupChannelSatisfiesResetupper(t *testing.T) {
	g, m, driver := buildSetupRig(t, 1)
	s := &Sequencer{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
	}

	require.NoError(t, s.UserSetupChannel(context.Background(), m, 0))
}
