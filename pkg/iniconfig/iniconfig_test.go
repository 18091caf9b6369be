package iniconfig

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/graph"
)

func buildSaveGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()

	det, err := g.NewDetector("det1")
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", 1))
	require.NoError(t, det.AddItem("channel0_gain", 2.5))
	require.NoError(t, det.AddItem("channel0_polarity", "pos"))
	require.NoError(t, det.AddItem("type", "reset"))

	d, err := g.NewDefaults("def1")
	require.NoError(t, err)
	d.Set("peaking_time", 4.0)
	d.Set("trigger_threshold", 50.0)

	m, err := g.NewModule("mod1", "saturn", 1)
	require.NoError(t, err)
	require.NoError(t, g.BindChannel(m, 0, 0))
	m.Channels[0].DetectorAlias = "det1"
	m.Channels[0].DefaultsAlias = "def1"

	return g
}

func TestSaveThenLoadRoundTripsModuleConfiguration(t *testing.T) {
	g := buildSaveGraph(t)
	path := filepath.Join(t.TempDir(), "system.ini")

	require.NoError(t, Save(path, g))

	loaded := graph.New()
	require.NoError(t, Load(path, loaded))

	m, err := loaded.Modules.Get("mod1")
	require.NoError(t, err)
	assert.Equal(t, "saturn", m.ProductType)
	assert.Equal(t, 0, m.Channels[0].LogicalChannel)
	assert.Equal(t, "det1", m.Channels[0].DetectorAlias)
	assert.Equal(t, "def1", m.Channels[0].DefaultsAlias)

	det, err := loaded.Detectors.Get("det1")
	require.NoError(t, err)
	assert.InDelta(t, 2.5, det.Gain[0], 1e-9)

	def, err := loaded.Defaults.Get("def1")
	require.NoError(t, err)
	v, err := def.Get("trigger_threshold")
	require.NoError(t, err)
	assert.Equal(t, 50.0, v)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.ini")
	g := graph.New()
	err := Load(path, g)
	require.Error(t, err)
}
