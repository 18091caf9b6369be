package run

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

func buildRunRig(t *testing.T, n int, multichannel bool) (*graph.Graph, *graph.Module, *fakedriver.Driver, int) {
	t.Helper()
	g := graph.New()

	det, err := g.NewDetector("det1")
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", n))
	require.NoError(t, det.AddItem("type", "reset"))

	_, err = g.NewDefaults("def1")
	require.NoError(t, err)

	m, err := g.NewModule("mod1", "saturn", n)
	require.NoError(t, err)
	m.IsMultichannel = multichannel

	handle := 100
	var members []int
	for i := 0; i < n; i++ {
		require.NoError(t, g.BindChannel(m, i, i))
		m.Channels[i].DetectorAlias = "det1"
		m.Channels[i].DefaultsAlias = "def1"
		members = append(members, i)
	}
	require.NoError(t, g.Channels.AddSet(handle, members))

	driver := fakedriver.New()
	return g, m, driver, handle
}

func rigController(g *graph.Graph, driver *fakedriver.Driver) *Controller {
	return &Controller{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
	}
}

func TestStartRunMultichannelIssuesSingleBroadcastCall(t *testing.T) {
	g, m, driver, handle := buildRunRig(t, 3, true)
	c := rigController(g, driver)

	require.NoError(t, c.StartRun(context.Background(), handle, false))
	assert.Equal(t, 1, driver.RunStarts)
	for i := 0; i < 3; i++ {
		assert.True(t, m.IsRunActive(i))
	}
}

func TestStartRunPerChannelIssuesOneCallPerChannel(t *testing.T) {
	g, _, driver, handle := buildRunRig(t, 3, false)
	c := rigController(g, driver)

	require.NoError(t, c.StartRun(context.Background(), handle, false))
	assert.Equal(t, 3, driver.RunStarts)
}

func TestStartRunIsSilentWhenAlreadyActive(t *testing.T) {
	g, m, driver, handle := buildRunRig(t, 1, false)
	c := rigController(g, driver)

	require.NoError(t, c.StartRun(context.Background(), handle, false))
	require.NoError(t, c.StartRun(context.Background(), handle, false))
	assert.Equal(t, 1, driver.RunStarts)
	assert.True(t, m.IsRunActive(0))
}

func TestStopRunMultichannelBroadcast(t *testing.T) {
	g, m, driver, handle := buildRunRig(t, 2, true)
	c := rigController(g, driver)

	require.NoError(t, c.StartRun(context.Background(), handle, false))
	require.NoError(t, c.StopRun(context.Background(), handle))
	assert.Equal(t, 1, driver.RunStops)
	for i := 0; i < 2; i++ {
		assert.False(t, m.IsRunActive(i))
	}
}

func TestWaitIdleReturnsOnceRunActiveClears(t *testing.T) {
	g, _, driver, handle := buildRunRig(t, 1, false)
	calls := 0
	driver.GetRunDataFunc = func(ctx context.Context, physChan int, name string) (float64, error) {
		calls++
		if calls < 3 {
			return 1, nil
		}
		return 0, nil
	}
	c := rigController(g, driver)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.WaitIdle(ctx, handle))
	assert.GreaterOrEqual(t, calls, 3)
}

func TestRunCaptureTaskRejectsUnknownTask(t *testing.T) {
	g, _, driver, handle := buildRunRig(t, 1, false)
	c := rigController(g, driver)

	_, err := c.RunCaptureTask(context.Background(), handle, "not_a_task", nil, 4)
	require.Error(t, err)
}

func TestRunCaptureTaskReadsThenStops(t *testing.T) {
	g, _, driver, handle := buildRunRig(t, 1, false)
	c := rigController(g, driver)

	data, err := c.RunCaptureTask(context.Background(), handle, "adc_trace", nil, 2)
	require.NoError(t, err)
	assert.Len(t, data, 2)
}
