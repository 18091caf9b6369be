package busdrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/capability"
)

func TestParseVIDPIDAcceptsHexPair(t *testing.T) {
	vid, pid, err := parseVIDPID("0547:1002")
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0547), vid)
	assert.Equal(t, uint16(0x1002), pid)
}

func TestParseVIDPIDRejectsMalformedAddress(t *testing.T) {
	_, _, err := parseVIDPID("not-an-address")
	require.Error(t, err)

	_, _, err = parseVIDPID("zzzz:1002")
	require.Error(t, err)
}

func TestRegionCodeDistinguishesRegions(t *testing.T) {
	assert.NotEqual(t, regionCode(capability.RegionSpectrum), regionCode(capability.RegionRegister))
	assert.NotEqual(t, regionCode(capability.RegionData), regionCode(capability.RegionSpectrum))
}
