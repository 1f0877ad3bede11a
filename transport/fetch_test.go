package transport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/internal/gitlog"
	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/pktline"
	"github.com/lxr-go-scm/gitfetch/protocol"
)

func TestV2FetchCommandWrapsPayload(t *testing.T) {
	id, err := object.DecodeID("1111111111111111111111111111111111111111")
	require.NoError(t, err)

	var p protocol.FetchPayload
	p.AddWant(id, nil)
	p.AddDone()

	wire := v2FetchCommand(&p)
	pktr := pktline.NewReader(bytes.NewReader(wire))

	require.NoError(t, pktr.Next())
	msg, err := pktr.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "command=fetch\n", string(msg))

	// ReadMsg already prefetched the next pkt-line's header as soon as
	// the command line's payload was fully drained, so the delim is
	// visible here without another Next call.
	assert.Equal(t, pktline.LineDelim, pktr.Type())

	// Next is needed once to step past the delim marker itself and
	// read the header of the line that follows it.
	require.NoError(t, pktr.Next())
	msg, err = pktr.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "want "+id.String()+"\n", string(msg))

	msg, err = pktr.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "done\n", string(msg))

	assert.Equal(t, pktline.LineFlush, pktr.Type())
}

func TestWritePackToFileAtomicRename(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "fetched.pack")

	var sections [][]byte
	sections = append(sections, append([]byte{1}, []byte("PACKDATA")...))
	var wire []byte
	for _, s := range sections {
		wire = pktline.Append(wire, s)
	}
	wire = pktline.AppendFlush(wire)

	err := writePackToFile(pktline.NewReader(bytes.NewReader(wire)), dest, true, gitlog.Noop, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PACKDATA", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no leftover temp file after a successful fetch")
}

func TestWritePackToFileRawWhenSideBandNotRequested(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "fetched.pack")

	// No band indicator here: an older server that never negotiated
	// side-band-64k sends the packfile bytes straight in pkt-lines.
	var wire []byte
	wire = pktline.Append(wire, []byte("PACKDATA"))
	wire = pktline.AppendFlush(wire)

	err := writePackToFile(pktline.NewReader(bytes.NewReader(wire)), dest, false, gitlog.Noop, nil)
	require.NoError(t, err)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "PACKDATA", string(data))
}

func TestWritePackToFileLeavesNoFileOnDemuxError(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "fetched.pack")

	var wire []byte
	wire = pktline.Append(wire, append([]byte{3}, []byte("boom")...))
	wire = pktline.AppendFlush(wire)

	err := writePackToFile(pktline.NewReader(bytes.NewReader(wire)), dest, true, gitlog.Noop, nil)
	require.Error(t, err)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp file must be cleaned up on failure")
}
