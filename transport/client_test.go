package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/object"
)

func TestClientFetchRefsOverLoopback(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	const sha = "2222222222222222222222222222222222222222"
	done := make(chan struct{})
	go func() {
		defer close(done)
		serveOneRefAdvertisement(t, ln, sha, "refs/heads/trunk")
	}()

	url := "git://" + ln.Addr().String() + "/repo.git"
	c := &Client{}
	refs, err := c.FetchRefs(context.Background(), url)
	require.NoError(t, err)

	id, err := object.DecodeID(sha)
	require.NoError(t, err)
	assert.Equal(t, "refs/heads/trunk", refs[id])

	<-done
}
