package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiallc/handel-go/pkg/herr"
)

func variant(ptrr uint, min, max float64) *FirmwareVariant {
	return &FirmwareVariant{PTRR: ptrr, MinPtime: min, MaxPtime: max, Fippi: "f.bin", Dsp: "d.bin"}
}

func TestFirmwareSetSortAndOverlap(t *testing.T) {
	fs := NewFirmwareSet("fs1")
	require.NoError(t, fs.AddVariant(variant(1, 4.001, 8)))
	require.NoError(t, fs.AddVariant(variant(0, 0, 4)))

	require.NoError(t, fs.Validate())
	assert.Equal(t, uint(0), fs.Variants[0].PTRR)
	assert.Equal(t, uint(1), fs.Variants[1].PTRR)
}

func TestFirmwareSetOverlapRejected(t *testing.T) {
	fs := NewFirmwareSet("fs1")
	require.NoError(t, fs.AddVariant(variant(0, 0, 5)))
	require.NoError(t, fs.AddVariant(variant(1, 4, 8)))

	err := fs.Validate()
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.PTROverlap, kind)
}

func TestFirmwareSetVariantFor(t *testing.T) {
	fs := NewFirmwareSet("fs1")
	require.NoError(t, fs.AddVariant(variant(0, 0, 4)))
	require.NoError(t, fs.AddVariant(variant(1, 4.001, 8)))

	v, err := fs.VariantFor(2)
	require.NoError(t, err)
	assert.Equal(t, uint(0), v.PTRR)

	_, err = fs.VariantFor(100)
	require.Error(t, err)
}

func TestFirmwareSetArchiveAndListedAreExclusive(t *testing.T) {
	fs := NewFirmwareSet("fs1")
	require.NoError(t, fs.SetArchive("archive.bin", "/tmp", nil))

	err := fs.AddVariant(variant(0, 0, 4))
	require.Error(t, err)
	kind, ok := herr.Of(err)
	require.True(t, ok)
	assert.Equal(t, herr.FirmBoth, kind)
}
