package system

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/capability/fakedriver"
	"github.com/xiallc/handel-go/pkg/firmware"
	"github.com/xiallc/handel-go/pkg/graph"
)

func buildRig(t *testing.T) (*graph.Graph, *graph.Module, *fakedriver.Driver) {
	t.Helper()
	g := graph.New()

	det, err := g.NewDetector("det1")
	require.NoError(t, err)
	require.NoError(t, det.AddItem("number_of_channels", 1))
	require.NoError(t, det.AddItem("channel0_polarity", "pos"))
	require.NoError(t, det.AddItem("channel0_gain", 1.0))
	require.NoError(t, det.AddItem("type", "reset"))

	fs, err := g.NewFirmwareSet("fs1")
	require.NoError(t, err)
	require.NoError(t, fs.AddVariant(&graph.FirmwareVariant{
		PTRR: 0, MinPtime: 0, MaxPtime: 100, Fippi: "fippi.bin", Dsp: "dsp.bin",
	}))

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
	return g, m, driver
}

func TestStartSystemRequiresCompleteDefaults(t *testing.T) {
	g, _, driver := buildRig(t)
	driver.Defaults = []string{"peaking_time", "gap_time"}

	s := &Starter{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
		Resolver: firmware.New(nil, nil),
	}

	err := s.StartSystem(context.Background())
	require.Error(t, err)
}

func TestStartSystemDownloadsFippiAndDspSkippingAbsentKinds(t *testing.T) {
	g, m, driver := buildRig(t)
	driver.Defaults = []string{"peaking_time"}

	s := &Starter{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
		Resolver: firmware.New(nil, nil),
	}

	err := s.StartSystem(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fippi.bin", m.Channels[0].Current.Fippi)
	assert.Equal(t, "dsp.bin", m.Channels[0].Current.Dsp)
}

func TestStartSystemDetectsChannelCycle(t *testing.T) {
	g, _, driver := buildRig(t)
	driver.Defaults = []string{"peaking_time"}
	require.NoError(t, g.Channels.AddSet(20, []int{21}))
	require.NoError(t, g.Channels.AddSet(21, []int{20}))

	s := &Starter{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
		Resolver: firmware.New(nil, nil),
	}

	err := s.StartSystem(context.Background())
	require.Error(t, err)
}

func TestStartSystemFailsOnIncompleteDetector(t *testing.T) {
	g, _, driver := buildRig(t)
	driver.Defaults = []string{"peaking_time"}

	badDet, err := g.NewDetector("det2")
	require.NoError(t, err)
	require.NoError(t, badDet.AddItem("number_of_channels", 1))

	s := &Starter{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
		Resolver: firmware.New(nil, nil),
	}

	err = s.StartSystem(context.Background())
	require.Error(t, err)
}

func TestStartSystemSkipsInactiveChannels(t *testing.T) {
	g, m, driver := buildRig(t)
	driver.Defaults = []string{"peaking_time"}
	m2, err := g.NewModule("mod2", "saturn", 2)
	require.NoError(t, err)
	_ = m2

	assert.Equal(t, []int{0}, m.ActiveChannels())

	s := &Starter{
		Graph: g,
		Drivers: func(string) (capability.ProductDriver, error) {
			return driver, nil
		},
		Resolver: firmware.New(nil, nil),
	}
	require.NoError(t, s.StartSystem(context.Background()))
}
