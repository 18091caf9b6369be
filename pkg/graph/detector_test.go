package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/herr"
)

func TestDetectorAddItemAllocatesOnNumberOfChannels(t *testing.T) {
	d := NewDetector("det1")
	require.NoError(t, d.AddItem("number_of_channels", 2))
	assert.Len(t, d.Gain, 2)
	assert.Len(t, d.Polarity, 2)

	require.NoError(t, d.AddItem("channel0_gain", 1.5))
	require.NoError(t, d.AddItem("channel1_gain", 3.0))
	require.NoError(t, d.AddItem("channel0_polarity", "pos"))
	require.NoError(t, d.AddItem("channel1_polarity", "neg"))

	got, err := d.GetItem("channel1_gain")
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestDetectorAddItemRejectsGainOutOfRange(t *testing.T) {
	d := NewDetector("det1")
	require.NoError(t, d.AddItem("number_of_channels", 1))

	err := d.AddItem("channel0_gain", 200.0)
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.MissingGain, kind)
}

func TestDetectorAddItemRejectsUnknownPolarity(t *testing.T) {
	d := NewDetector("det1")
	require.NoError(t, d.AddItem("number_of_channels", 1))

	err := d.AddItem("channel0_polarity", "sideways")
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.BadValue, kind)
}

func TestDetectorValidateRequiresFullyPopulatedArrays(t *testing.T) {
	d := NewDetector("det1")
	require.NoError(t, d.AddItem("number_of_channels", 1))

	err := d.Validate()
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.MissingPol, kind)

	require.NoError(t, d.AddItem("channel0_polarity", "pos"))
	require.NoError(t, d.AddItem("channel0_gain", 1.0))
	err = d.Validate()
	require.Error(t, err)
	kind, ok = herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.MissingType, kind)

	require.NoError(t, d.AddItem("type", "reset"))
	require.NoError(t, d.Validate())
}

func TestDetectorTypeValueBroadcastsToAllChannels(t *testing.T) {
	d := NewDetector("det1")
	require.NoError(t, d.AddItem("number_of_channels", 3))
	require.NoError(t, d.AddItem("type_value", 12.5))

	for _, v := range d.TypeValue {
		assert.Equal(t, 12.5, v)
	}
}
