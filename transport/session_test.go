package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/pktline"
)

// serveOneRefAdvertisement accepts a single connection, reads the
// handshake line, and writes a v1 ref advertisement with one ref.
func serveOneRefAdvertisement(t *testing.T, ln net.Listener, refSHA, refName string) {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	pktr := pktline.NewReader(conn)
	require.NoError(t, pktr.Next())
	_, err = pktr.ReadMsg() // handshake line, contents not asserted here
	require.NoError(t, err)

	var buf []byte
	buf = pktline.AppendString(buf, refSHA+" "+refName+"\x00ofs-delta\n")
	buf = pktline.AppendFlush(buf)
	_, err = conn.Write(buf)
	require.NoError(t, err)
}

func TestSessionListRefsOverLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	const sha = "1111111111111111111111111111111111111111"
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOneRefAdvertisement(t, ln, sha, "refs/heads/main")
	}()

	url := "git://" + ln.Addr().String() + "/repo.git"
	sess, err := DialSession(context.Background(), &net.Dialer{}, url, false)
	require.NoError(t, err)
	defer sess.Close()

	refs, err := sess.ListRefs()
	require.NoError(t, err)

	id, err := object.DecodeID(sha)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/main", refs[id])

	<-done
}

func TestSessionListRefsRejectsV2(t *testing.T) {
	sess := &Session{v2: true}
	_, err := sess.ListRefs()
	assert.Error(t, err)
}
