package pktline_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/pktline"
)

func TestWriterWriteThenReaderReadMsg(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	_, err := w.WriteString("hello\n")
	require.NoError(t, err)
	require.NoError(t, w.Flush())

	assert.Equal(t, "000ahello\n0000", buf.String())

	r := pktline.NewReader(&buf)
	require.NoError(t, r.Next())
	assert.Equal(t, pktline.LineData, r.Type())
	msg, err := r.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(msg))
	assert.Equal(t, pktline.LineFlush, r.Type())
}

func TestReaderReadMsgAutoAdvancesBetweenDataLines(t *testing.T) {
	var buf []byte
	buf = pktline.AppendString(buf, "one\n")
	buf = pktline.AppendString(buf, "two\n")
	buf = pktline.AppendFlush(buf)

	r := pktline.NewReader(bytes.NewReader(buf))
	require.NoError(t, r.Next())

	var lines []string
	for r.Type() != pktline.LineFlush {
		msg, err := r.ReadMsg()
		require.NoError(t, err)
		lines = append(lines, string(msg))
	}
	assert.Equal(t, []string{"one\n", "two\n"}, lines)
}

func TestReaderNextSkipsUnconsumedLinesInSubstream(t *testing.T) {
	var buf []byte
	buf = pktline.AppendString(buf, "skip me\n")
	buf = pktline.AppendFlush(buf)
	buf = pktline.AppendString(buf, "next substream\n")
	buf = pktline.AppendFlush(buf)

	r := pktline.NewReader(bytes.NewReader(buf))
	require.NoError(t, r.Next()) // enters the first substream
	require.NoError(t, r.Next()) // skips it (flush-pkt) and enters the second

	msg, err := r.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "next substream\n", string(msg))
}

func TestReaderDelimPkt(t *testing.T) {
	var buf []byte
	buf = pktline.AppendString(buf, "args\n")
	buf = pktline.AppendDelim(buf)
	buf = pktline.AppendString(buf, "command\n")
	buf = pktline.AppendFlush(buf)

	r := pktline.NewReader(bytes.NewReader(buf))
	require.NoError(t, r.Next())
	_, err := r.ReadMsg()
	require.NoError(t, err)

	// ReadMsg's auto-advance already parked the reader on the delim's
	// header; one more Next steps past the marker itself.
	assert.Equal(t, pktline.LineDelim, r.Type())
	require.NoError(t, r.Next())
	msg, err := r.ReadMsg()
	require.NoError(t, err)
	assert.Equal(t, "command\n", string(msg))
}

func TestReaderReadMsgReturnsEOFAfterFlush(t *testing.T) {
	buf := pktline.AppendFlush(nil)
	r := pktline.NewReader(bytes.NewReader(buf))
	require.NoError(t, r.Next())
	_, err := r.ReadMsg()
	assert.Equal(t, io.EOF, err)
}

func TestReaderReadTruncatesAtPktLineBoundary(t *testing.T) {
	var buf []byte
	buf = pktline.AppendString(buf, "abc")
	buf = pktline.AppendString(buf, "def")
	buf = pktline.AppendFlush(buf)

	r := pktline.NewReader(bytes.NewReader(buf))
	require.NoError(t, r.Next())

	p := make([]byte, 10)
	n, err := r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(p[:n]))

	n, err = r.Read(p)
	require.NoError(t, err)
	assert.Equal(t, "def", string(p[:n]))
}

func TestWriterWriteTooLong(t *testing.T) {
	var buf bytes.Buffer
	w := pktline.NewWriter(&buf)
	_, err := w.Write(make([]byte, pktline.MaxPayloadLen+1))
	assert.Equal(t, pktline.ErrTooLong, err)
}

func TestReaderLenNegativeAtFlush(t *testing.T) {
	buf := pktline.AppendFlush(nil)
	r := pktline.NewReader(bytes.NewReader(buf))
	require.NoError(t, r.Next())
	assert.Less(t, r.Len(), 0)
}
