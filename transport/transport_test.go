package transport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGitURL(t *testing.T) {
	host, port, path, err := parseGitURL("git://example.com/some/repo.git")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, DefaultPort, port)
	assert.Equal(t, "/some/repo.git", path)

	host, port, path, err = parseGitURL("git://example.com:9419/x.git")
	require.NoError(t, err)
	assert.Equal(t, "example.com", host)
	assert.Equal(t, 9419, port)
	assert.Equal(t, "/x.git", path)
}

func TestParseGitURLRejectsOtherSchemes(t *testing.T) {
	_, _, _, err := parseGitURL("https://example.com/repo.git")
	assert.Error(t, err)
}

func TestParseGitURLRequiresHost(t *testing.T) {
	_, _, _, err := parseGitURL("git:///repo.git")
	assert.Error(t, err)
}

func TestHandshakeV1(t *testing.T) {
	buf := handshake("/repo.git", "example.com", false)
	assert.Contains(t, string(buf), "git-upload-pack /repo.git\x00host=example.com\x00")
	assert.NotContains(t, string(buf), "version=2")
}

func TestHandshakeV2(t *testing.T) {
	buf := handshake("/repo.git", "example.com", true)
	assert.Contains(t, string(buf), "\x00version=2\x00")
}
