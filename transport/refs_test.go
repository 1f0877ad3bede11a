package transport

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/pktline"
)

func buildAdvertisement(t *testing.T) []byte {
	t.Helper()
	var buf []byte
	buf = pktline.AppendString(buf, "1111111111111111111111111111111111111111 HEAD\x00multi_ack thin-pack side-band-64k ofs-delta\n")
	buf = pktline.AppendString(buf, "1111111111111111111111111111111111111111 refs/heads/main\n")
	buf = pktline.AppendString(buf, "2222222222222222222222222222222222222222 refs/tags/v1.0\n")
	buf = pktline.AppendString(buf, "not-a-sha refs/heads/broken\n")
	buf = pktline.AppendFlush(buf)
	return buf
}

func TestParseRefAdvertisement(t *testing.T) {
	pktr := pktline.NewReader(bytes.NewReader(buildAdvertisement(t)))
	refs, err := parseRefAdvertisement(pktr)
	require.NoError(t, err)

	main, err := object.DecodeID("1111111111111111111111111111111111111111")
	require.NoError(t, err)
	tag, err := object.DecodeID("2222222222222222222222222222222222222222")
	require.NoError(t, err)

	assert.Equal(t, map[object.ID]string{
		main: "refs/heads/main",
		tag:  "refs/tags/v1.0",
	}, refs)
}

func TestDrainAdvertisement(t *testing.T) {
	pktr := pktline.NewReader(bytes.NewReader(buildAdvertisement(t)))
	require.NoError(t, drainAdvertisement(pktr))
}
