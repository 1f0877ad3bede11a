package packfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/packfile"
)

func TestOpenPackCatEagerAndLazy(t *testing.T) {
	small := object.Blob("short")
	// Distinct bytes do not compress, so large's packed span stays above
	// the 32-byte threshold and only its header is read at open time.
	large := make(object.Blob, 64)
	for i := range large {
		large[i] = byte(i)
	}
	packData := buildPack(t, &small, &large)

	idxBytes, err := packfile.GenerateIdx(packData, nil)
	require.NoError(t, err)
	idx, err := packfile.ReadIdx(idxBytes, int64(len(packData)))
	require.NoError(t, err)

	ra := bytes.NewReader(packData)
	pack, err := packfile.OpenPack(idx, ra, packfile.LazyConfig{Threshold: 32})
	require.NoError(t, err)

	smallID, err := object.Hash(&small)
	require.NoError(t, err)
	largeID, err := object.Hash(&large)
	require.NoError(t, err)

	assert.True(t, pack.Has(smallID.String()))
	assert.Equal(t, 2, pack.Len())

	obj, err := pack.Cat(smallID.String(), nil)
	require.NoError(t, err)
	got, ok := obj.(*object.Blob)
	require.True(t, ok)
	assert.Equal(t, small, *got)

	obj, err = pack.Cat(largeID.String(), nil)
	require.NoError(t, err)
	got, ok = obj.(*object.Blob)
	require.True(t, ok)
	assert.Equal(t, large, *got)
}

func TestOpenPackCatUnknownSha(t *testing.T) {
	blob := object.Blob("x")
	packData := buildPack(t, &blob)
	idxBytes, err := packfile.GenerateIdx(packData, nil)
	require.NoError(t, err)
	idx, err := packfile.ReadIdx(idxBytes, int64(len(packData)))
	require.NoError(t, err)

	pack, err := packfile.OpenPack(idx, bytes.NewReader(packData), packfile.LazyConfig{})
	require.NoError(t, err)

	assert.False(t, pack.Has("0000000000000000000000000000000000000000"))
	_, err = pack.Cat("0000000000000000000000000000000000000000", nil)
	assert.Error(t, err)
}
