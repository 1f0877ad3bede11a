package packfile_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/packfile"
)

func buildPack(t *testing.T, objs ...object.Interface) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := packfile.NewWriter(&buf, int64(len(objs)))
	require.NoError(t, err)
	for _, obj := range objs {
		require.NoError(t, w.Write(obj))
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestGenerateIdxNonDeltaObjects(t *testing.T) {
	a := object.Blob("hello")
	b := object.Blob("world, a bit longer this time")
	packData := buildPack(t, &a, &b)

	idxBytes, err := packfile.GenerateIdx(packData, nil)
	require.NoError(t, err)

	idx, err := packfile.ReadIdx(idxBytes, int64(len(packData)))
	require.NoError(t, err)

	aID, err := object.Hash(&a)
	require.NoError(t, err)
	bID, err := object.Hash(&b)
	require.NoError(t, err)

	assert.Contains(t, idx.Span, aID.String())
	assert.Contains(t, idx.Span, bID.String())
	assert.Len(t, idx.Span, 2)
}

func TestGenerateIdxEmptyPack(t *testing.T) {
	packData := buildPack(t)
	idxBytes, err := packfile.GenerateIdx(packData, nil)
	require.NoError(t, err)

	idx, err := packfile.ReadIdx(idxBytes, int64(len(packData)))
	require.NoError(t, err)
	assert.Empty(t, idx.Span)
}

func TestGenerateIdxRejectsTruncatedPack(t *testing.T) {
	_, err := packfile.GenerateIdx([]byte("short"), nil)
	assert.Error(t, err)
}
