package readout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/capability/fakedriver"
	"github.com/xiallc/handel-go/pkg/graph"
)

func buildReadoutRig(t *testing.T) (*graph.Graph, *fakedriver.Driver) {
	t.Helper()
	g := graph.New()

	det, err := g.NewDetector("det1")
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", 1))
	require.NoError(t, det.AddItem("type", "reset"))

	_, err = g.NewDefaults("def1")
	require.NoError(t, err)

	m, err := g.NewModule("mod1", "saturn", 1)
	require.NoError(t, err)
	require.NoError(t, g.BindChannel(m, 0, 0))
	m.Channels[0].DetectorAlias = "det1"
	m.Channels[0].DefaultsAlias = "def1"

	driver := fakedriver.New()
	driver.Clock = 10 * time.Nanosecond
	return g, driver
}

func reader(g *graph.Graph, driver *fakedriver.Driver) *Reader {
	return &Reader{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
	}
}

func TestGetRunDataDecodesTickPairRealtime(t *testing.T) {
	g, driver := buildReadoutRig(t)
	// 5 ticks at loIndex 0/1, clock period 10ns => 50ns = 5e-8s.
	driver.Statistics = make([]uint32, 16)
	driver.Statistics[0] = 5
	driver.Statistics[1] = 0

	r := reader(g, driver)
	v, err := r.GetRunData(context.Background(), 0, "realtime")
	require.NoError(t, err)
	assert.InDelta(t, 5*10e-9, v, 1e-15)
}

func TestGetRunDataRawCounterFieldSkipsClockConversion(t *testing.T) {
	g, driver := buildReadoutRig(t)
	driver.Statistics = make([]uint32, 16)
	driver.Statistics[6] = 42

	r := reader(g, driver)
	v, err := r.GetRunData(context.Background(), 0, "triggers")
	require.NoError(t, err)
	assert.Equal(t, 42.0, v)
}

func TestGetRunDataRewritesDeprecatedAlias(t *testing.T) {
	g, driver := buildReadoutRig(t)
	driver.Statistics = make([]uint32, 16)
	driver.Statistics[8] = 7

	r := reader(g, driver)
	v, err := r.GetRunData(context.Background(), 0, "events_in_run")
	require.NoError(t, err)
	assert.Equal(t, 7.0, v)
}

func TestGetRunDataRunActiveReflectsModuleState(t *testing.T) {
	g, driver := buildReadoutRig(t)
	r := reader(g, driver)

	v, err := r.GetRunData(context.Background(), 0, "run_active")
	require.NoError(t, err)
	assert.Equal(t, 0.0, v)

	m, err := g.Modules.Get("mod1")
	require.NoError(t, err)
	m.SetRunActive(0, true)

	v, err = r.GetRunData(context.Background(), 0, "run_active")
	require.NoError(t, err)
	assert.Equal(t, 1.0, v)
}

func TestGetRunDataOutputCountRateDividesByElapsedSeconds(t *testing.T) {
	g, driver := buildReadoutRig(t)
	driver.Statistics = make([]uint32, 16)
	driver.Statistics[0] = 1000 // realtime ticks
	driver.Statistics[8] = 100  // mca_events
	driver.Statistics[10] = 5   // underflows
	driver.Statistics[12] = 3   // overflows
	driver.Clock = time.Microsecond

	r := reader(g, driver)
	v, err := r.GetRunData(context.Background(), 0, "output_count_rate")
	require.NoError(t, err)
	assert.InDelta(t, (100.0+5+3)/(1000*1e-6), v, 1e-6)
}

func TestGetSpectrumSizesReadByLengthScalar(t *testing.T) {
	g, driver := buildReadoutRig(t)
	driver.Spectrum = []uint32{1, 2, 3, 4, 5}
	driver.GetRunDataFunc = func(ctx context.Context, physChan int, name string) (float64, error) {
		if name == "mca_length" {
			return 3, nil
		}
		return 0, nil
	}

	r := reader(g, driver)
	spectrum, err := r.GetSpectrum(context.Background(), 0, "mca")
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, spectrum)
}

func TestModuleStatistics2ComputesRatesFromOneSnapshot(t *testing.T) {
	g, driver := buildReadoutRig(t)
	driver.Statistics = make([]uint32, 16)
	driver.Statistics[0] = 10 // realtime ticks
	driver.Statistics[2] = 20 // trigger_livetime ticks
	driver.Statistics[4] = 30 // energy_livetime ticks
	driver.Statistics[6] = 40 // triggers
	driver.Statistics[8] = 50 // mca_events
	driver.Statistics[10] = 5 // underflows
	driver.Statistics[12] = 3 // overflows
	driver.Clock = time.Microsecond

	r := reader(g, driver)
	out, err := r.ModuleStatistics2(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, out, 9)

	realtime := 10 * 1e-6
	triggerLivetime := 20 * 1e-6
	energyLivetime := 30 * 1e-6
	assert.InDelta(t, realtime, out[0], 1e-12)
	assert.InDelta(t, triggerLivetime, out[1], 1e-12)
	assert.InDelta(t, energyLivetime, out[2], 1e-12)
	assert.Equal(t, 40.0, out[3])
	assert.Equal(t, 50.0, out[4])
	assert.InDelta(t, out[3]/out[1], out[5], 1e-6)
	assert.InDelta(t, (out[4]+out[7]+out[8])/out[0], out[6], 1e-6)
	assert.Equal(t, 5.0, out[7])
	assert.Equal(t, 3.0, out[8])
}
