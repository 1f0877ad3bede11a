package main

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRequestLineStripsTrailingNuls(t *testing.T) {
	line := "git-upload-pack '/repo.git'\x00host=example.com\x00"
	pkt := pktLineEncode(line)
	br := bufio.NewReader(strings.NewReader(pkt))

	got, err := readRequestLine(br)
	require.NoError(t, err)
	assert.Equal(t, "git-upload-pack '/repo.git'\x00host=example.com", got)
}

func TestReadRequestLineRejectsShortLength(t *testing.T) {
	br := bufio.NewReader(strings.NewReader("0003"))
	_, err := readRequestLine(br)
	assert.Error(t, err)
}

func pktLineEncode(s string) string {
	n := len(s) + 4
	return hex4(n) + s
}

func hex4(n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, 4)
	for i := 3; i >= 0; i-- {
		b[i] = digits[n&0xf]
		n >>= 4
	}
	return string(b)
}
