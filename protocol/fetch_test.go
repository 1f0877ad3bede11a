package protocol_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/pktline"
	"github.com/lxr-go-scm/gitfetch/protocol"
)

func readLines(t *testing.T, buf []byte) []string {
	t.Helper()
	r := pktline.NewReader(bytes.NewReader(buf))
	require.NoError(t, r.Next())
	var lines []string
	for {
		if r.Type() == pktline.LineFlush {
			return lines
		}
		msg, err := r.ReadMsg()
		require.NoError(t, err)
		lines = append(lines, string(msg))
	}
}

func TestFetchPayloadV1Lines(t *testing.T) {
	want, err := object.DecodeID("1111111111111111111111111111111111111111")
	require.NoError(t, err)
	have, err := object.DecodeID("2222222222222222222222222222222222222222")
	require.NoError(t, err)

	var p protocol.FetchPayload
	p.AddWant(want, protocol.CapList{"ofs-delta": true})
	p.AddHave(have)
	p.AddDone()

	lines := readLines(t, p.Build())
	require.Len(t, lines, 3)
	assert.Equal(t, "want "+want.String()+" ofs-delta\n", lines[0])
	assert.Equal(t, "have "+have.String()+"\n", lines[1])
	assert.Equal(t, "done\n", lines[2])
}

func TestFetchPayloadOnlyFirstWantCarriesCapabilities(t *testing.T) {
	a, _ := object.DecodeID("1111111111111111111111111111111111111111")
	b, _ := object.DecodeID("2222222222222222222222222222222222222222")

	var p protocol.FetchPayload
	p.AddWant(a, protocol.CapList{"thin-pack": true})
	p.AddWant(b, protocol.CapList{"thin-pack": true})
	p.AddDone()

	lines := readLines(t, p.Build())
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "thin-pack")
	assert.Equal(t, "want "+b.String()+"\n", lines[1])
}

func TestFetchPayloadNoCapabilitiesOmitsTrailingSpace(t *testing.T) {
	id, _ := object.DecodeID("1111111111111111111111111111111111111111")

	var p protocol.FetchPayload
	p.AddWant(id, nil)
	p.AddDone()

	lines := readLines(t, p.Build())
	assert.Equal(t, "want "+id.String()+"\n", lines[0])
}

func TestFetchPayloadAppendToOmitsFlush(t *testing.T) {
	id, _ := object.DecodeID("1111111111111111111111111111111111111111")

	var p protocol.FetchPayload
	p.AddWant(id, nil)
	p.AddDeepen(5)

	appended := p.AppendTo([]byte("command=fetch\n"))
	assert.True(t, bytes.HasPrefix(appended, []byte("command=fetch\n")))
	assert.NotContains(t, string(appended), "0000")
}
