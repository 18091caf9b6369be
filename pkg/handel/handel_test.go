package handel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/capability/fakedriver"
	"github.com/xiallc/handel-go/pkg/graph"
)

func buildHandel(t *testing.T) (*Handel, *fakedriver.Driver) {
	t.Helper()
	h := New(nil, nil, nil)
	driver := fakedriver.New()
	driver.Defaults = []string{"peaking_time", "gap_time", "calibration_energy", "mca_bin_width",
		"adc_percent_rule", "preamp_gain", "trigger_threshold", "energy_threshold",
		"number_mca_channels", "decimation"}
	h.RegisterDriver("saturn", driver)

	g := h.Graph
	det, err := g.NewDetector("det1")
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", 1))
	require.NoError(t, det.AddItem("channel0_gain", 5.0))
	require.NoError(t, det.AddItem("channel0_polarity", "pos"))
	require.NoError(t, det.AddItem("type", "reset"))

	def, err := g.NewDefaults("def1")
	require.NoError(t, err)
	for _, name := range driver.Defaults {
		def.Set(name, 1.0)
	}

	fs, err := g.NewFirmwareSet("fw1")
	require.NoError(t, err)
	require.NoError(t, fs.AddVariant(&graph.FirmwareVariant{
		PTRR: 0, MinPtime: 0, MaxPtime: 100,
		Fippi: "fippi.bin", Dsp: "dsp.bin",
	}))

	m, err := g.NewModule("mod1", "saturn", 1)
	require.NoError(t, err)
	require.NoError(t, g.BindChannel(m, 0, 0))
	m.Channels[0].DetectorAlias = "det1"
	m.Channels[0].DefaultsAlias = "def1"
	m.Channels[0].FirmwareSetAlias = "fw1"

	return h, driver
}

func TestHandelStartSystemThenUserSetupThenRunLifecycle(t *testing.T) {
	h, driver := buildHandel(t)
	ctx := context.Background()

	require.NoError(t, h.StartSystem(ctx))
	require.NoError(t, h.UserSetup(ctx))

	v, err := h.SetAcquisitionValue(ctx, 0, "peaking_time", 6.0)
	require.NoError(t, err)
	assert.Equal(t, 6.0, v)

	require.NoError(t, h.StartRun(ctx, 0, false))
	assert.Equal(t, 1, driver.RunStarts)

	require.NoError(t, h.WaitIdle(ctx, 0))
	require.NoError(t, h.StopRun(ctx, 0))
	assert.Equal(t, 1, driver.RunStops)
}

func TestHandelGetAcquisitionValueRoundTrips(t *testing.T) {
	h, _ := buildHandel(t)
	ctx := context.Background()

	_, err := h.SetAcquisitionValue(ctx, 0, "trigger_threshold", 42.0)
	require.NoError(t, err)

	v, err := h.GetAcquisitionValue(ctx, 0, "trigger_threshold")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestHandelExitWithoutBusSucceeds(t *testing.T) {
	h, _ := buildHandel(t)
	require.NoError(t, h.Exit())
}
