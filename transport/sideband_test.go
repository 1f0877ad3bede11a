package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/internal/gitlog"
	"github.com/lxr-go-scm/gitfetch/pktline"
)

type capturingLogger struct {
	infos []string
}

func (l *capturingLogger) Debug(string, ...interface{}) {}
func (l *capturingLogger) Info(msg string, _ ...interface{}) {
	l.infos = append(l.infos, msg)
}
func (l *capturingLogger) Warn(string, ...interface{})  {}
func (l *capturingLogger) Error(string, ...interface{}) {}

func buildSideband(t *testing.T, sections [][]byte) []byte {
	t.Helper()
	var buf []byte
	for _, s := range sections {
		buf = pktline.Append(buf, s)
	}
	buf = pktline.AppendFlush(buf)
	return buf
}

func TestDemuxPackfileSplitsBands(t *testing.T) {
	wire := buildSideband(t, [][]byte{
		append([]byte{1}, []byte("PACK...")...),
		append([]byte{2}, []byte("Counting objects: 1\n")...),
		append([]byte{1}, []byte("more pack bytes")...),
	})

	var out bytes.Buffer
	log := &capturingLogger{}
	err := demuxPackfile(pktline.NewReader(bytes.NewReader(wire)), &out, log, nil)
	require.NoError(t, err)

	assert.Equal(t, "PACK...more pack bytes", out.String())
	require.Len(t, log.infos, 1)
	assert.Equal(t, "Counting objects: 1", log.infos[0])
}

func TestDemuxPackfileFatalBand(t *testing.T) {
	wire := buildSideband(t, [][]byte{
		append([]byte{3}, []byte("access denied")...),
	})

	var out bytes.Buffer
	err := demuxPackfile(pktline.NewReader(bytes.NewReader(wire)), &out, gitlog.Noop, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
	kind, ok := errkind.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, errkind.PackBroken, kind)
}

func TestDemuxPackfileUnknownBand(t *testing.T) {
	wire := buildSideband(t, [][]byte{
		append([]byte{9}, []byte("???")...),
	})

	var out bytes.Buffer
	err := demuxPackfile(pktline.NewReader(bytes.NewReader(wire)), &out, gitlog.Noop, nil)
	assert.Error(t, err)
}
