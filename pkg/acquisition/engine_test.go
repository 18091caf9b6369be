package acquisition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/capability/fakedriver"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
)

type testRig struct {
	g      *graph.Graph
	m      *graph.Module
	driver *fakedriver.Driver
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	g := graph.New()

	det, err := g.NewDetector("det1")
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", 1))
	require.NoError(t, det.AddItem("channel0_polarity", "pos"))
	require.NoError(t, det.AddItem("channel0_gain", 1.0))
	require.NoError(t, det.AddItem("type", "reset"))

	_, err = g.NewFirmwareSet("fs1")
	require.NoError(t, err)

	d, err := g.NewDefaults("def1")
	require.NoError(t, err)
	d.Set("peaking_time", 4.0)

	m, err := g.NewModule("mod1", "saturn", 1)
	require.NoError(t, err)
	require.NoError(t, g.BindChannel(m, 0, 0))
	m.Channels[0].DetectorAlias = "det1"
	m.Channels[0].FirmwareSetAlias = "fs1"
	m.Channels[0].DefaultsAlias = "def1"

	driver := fakedriver.New()
	return &testRig{g: g, m: m, driver: driver}
}

func (r *testRig) engine() *Engine {
	return &Engine{
		Graph: r.g,
		Drivers: func(productType string) (capability.ProductDriver, error) {
			return r.driver, nil
		},
	}
}

func TestEngineSetWritesThroughDriverAndDefaults(t *testing.T) {
	rig := newTestRig(t)
	e := rig.engine()

	out, err := e.Set(context.Background(), 0, "trigger_threshold", 50.0)
	require.NoError(t, err)
	assert.Equal(t, 50.0, out)
	assert.Contains(t, rig.driver.SetCalls, "trigger_threshold")

	got, err := e.Get(context.Background(), 0, "trigger_threshold")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got)
}

func TestEngineSetTriggersGainRecomputeChain(t *testing.T) {
	rig := newTestRig(t)
	rig.driver.RequiresApplyFlag = true
	e := rig.engine()

	_, err := e.Set(context.Background(), 0, "calibration_energy", 5900.0)
	require.NoError(t, err)

	assert.Equal(t, 2, rig.driver.GainCalls)
	assert.Equal(t, 1, rig.driver.RunStarts)
	assert.Equal(t, 1, rig.driver.RunStops)
}

func TestEngineSetPresetCompositeDecomposesIntoTypeAndValue(t *testing.T) {
	rig := newTestRig(t)
	e := rig.engine()

	_, err := e.Set(context.Background(), 0, "preset_runtime", 30.0)
	require.NoError(t, err)

	assert.Contains(t, rig.driver.SetCalls, "preset_type")
	assert.Contains(t, rig.driver.SetCalls, "preset_value")

	d, err := rig.g.ResolveDefaults(rig.m, 0)
	require.NoError(t, err)
	typeVal, err := d.Get("preset_type")
	require.NoError(t, err)
	assert.Equal(t, presetComposites["preset_runtime"], typeVal)
	val, err := d.Get("preset_value")
	require.NoError(t, err)
	assert.Equal(t, 30.0, val)
}

func TestEngineSetRewritesDeprecatedAlias(t *testing.T) {
	rig := newTestRig(t)
	e := rig.engine()

	_, err := e.Set(context.Background(), 0, "livetime", 12.0)
	require.NoError(t, err)

	assert.Contains(t, rig.driver.SetCalls, "trigger_livetime")
	assert.NotContains(t, rig.driver.SetCalls, "livetime")
}

func TestEngineSetDSPSymbolBypassesDriverAcquisitionValue(t *testing.T) {
	rig := newTestRig(t)
	e := rig.engine()

	out, err := e.Set(context.Background(), 0, "SLOWLEN", 12.0)
	require.NoError(t, err)
	assert.Equal(t, 12.0, out)
	assert.Contains(t, rig.driver.SetCalls, "SLOWLEN")
}

func TestEngineSCAMonotonicityEnforced(t *testing.T) {
	rig := newTestRig(t)
	e := rig.engine()

	_, err := e.Set(context.Background(), 0, "sca0_hi", 100.0)
	require.NoError(t, err)
	_, err = e.Set(context.Background(), 0, "sca0_lo", 50.0)
	require.NoError(t, err)

	_, err = e.Set(context.Background(), 0, "sca0_lo", 150.0)
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.BinMismatch, kind)
}

func TestEngineGetFallsBackToDriverForReadOnlyEntries(t *testing.T) {
	rig := newTestRig(t)
	rig.driver.GetAcquisitionValueFunc = func(ctx context.Context, physChan int, name string) (float64, error) {
		return 77.0, nil
	}
	e := rig.engine()

	d, err := rig.g.ResolveDefaults(rig.m, 0)
	require.NoError(t, err)
	d.Set("mca_events", 3.0)
	require.NoError(t, d.SetReadOnly("mca_events", true))

	got, err := e.Get(context.Background(), 0, "mca_events")
	require.NoError(t, err)
	assert.Equal(t, 77.0, got)
}

type fakeResetupper struct {
	called bool
}

func (f *fakeResetupper) UserSetupChannel(ctx context.Context, m *graph.Module, physChan int) error {
	f.called = true
	return nil
}

func TestEngineRemoveReinvokesSetup(t *testing.T) {
	rig := newTestRig(t)
	e := rig.engine()
	resetup := &fakeResetupper{}
	e.Setup = resetup

	_, err := e.Set(context.Background(), 0, "trigger_threshold", 10.0)
	require.NoError(t, err)

	require.NoError(t, e.Remove(context.Background(), 0, "trigger_threshold"))
	assert.True(t, resetup.called)

	d, err := rig.g.ResolveDefaults(rig.m, 0)
	require.NoError(t, err)
	assert.False(t, d.Has("trigger_threshold"))
}
