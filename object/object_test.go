package object_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/object"
)

func TestBlobBinaryRoundTrip(t *testing.T) {
	b := object.Blob("hello, world\n")

	data, err := b.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, "blob 13\x00hello, world\n", string(data))

	var got object.Blob
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, b, got)
}

func TestBlobTextIsIdentity(t *testing.T) {
	b := object.Blob("contents")
	text, err := b.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, []byte(b), text)
}

func TestCommitTextRoundTrip(t *testing.T) {
	sig := func(name string) object.Signature {
		return object.Signature{
			Name:  name,
			Email: name + "@example.com",
			Date:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("", 3600)),
		}
	}
	var tree object.ID
	copy(tree[:], []byte("0123456789abcdefghij"))
	var parent1, parent2 object.ID
	copy(parent1[:], []byte("aaaaaaaaaaaaaaaaaaaa"))
	copy(parent2[:], []byte("bbbbbbbbbbbbbbbbbbbb"))

	c := object.Commit{
		Tree:      tree,
		Parent:    []object.ID{parent1, parent2},
		Author:    sig("author"),
		Committer: sig("committer"),
		Message:   "a commit message\n",
	}

	data, err := c.MarshalBinary()
	require.NoError(t, err)

	var got object.Commit
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, c, got)
}

func TestCommitBinaryHeaderEndsAtFirstNUL(t *testing.T) {
	sig := object.Signature{Name: "a", Email: "a@example.com", Date: time.Unix(0, 0)}
	c := object.Commit{Author: sig, Committer: sig, Message: "x\x00y"}

	data, err := c.MarshalBinary()
	require.NoError(t, err)
	text, err := c.MarshalText()
	require.NoError(t, err)

	// packfile.marshalObj locates the header/content boundary by the
	// first NUL byte in the marshaled representation; an embedded NUL
	// in the object's own content (here, in Message) must not precede
	// the header's own NUL terminator.
	nul := -1
	for i, b := range data {
		if b == 0 {
			nul = i
			break
		}
	}
	require.GreaterOrEqual(t, nul, 0)
	assert.Equal(t, fmt.Sprintf("commit %d", len(text)), string(data[:nul]))
	assert.Equal(t, text, data[nul+1:])
}

func TestTagTextRoundTrip(t *testing.T) {
	var objID object.ID
	copy(objID[:], []byte("cccccccccccccccccccc"))

	tag := object.Tag{
		Object: objID,
		Type:   object.TypeCommit,
		Tag:    "v1.0",
		Tagger: object.Signature{
			Name:  "tagger",
			Email: "tagger@example.com",
			Date:  time.Date(2025, 6, 1, 0, 0, 0, 0, time.FixedZone("", -7200)),
		},
		Message: "release\n",
	}

	data, err := tag.MarshalBinary()
	require.NoError(t, err)

	var got object.Tag
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, tag, got)
}

func TestTreeBinaryRoundTrip(t *testing.T) {
	var blobID, subTreeID object.ID
	copy(blobID[:], []byte("dddddddddddddddddddd"))
	copy(subTreeID[:], []byte("eeeeeeeeeeeeeeeeeeee"))

	tree := object.Tree{
		"file.txt": {Mode: object.ModeBlob, Object: blobID},
		"sub":      {Mode: object.ModeTree, Object: subTreeID},
	}

	data, err := tree.MarshalBinary()
	require.NoError(t, err)

	got := object.Tree{}
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, tree, got)
}

func TestTreeNamesOrdersSubtreesAsIfSlashTerminated(t *testing.T) {
	tree := object.Tree{
		"bin":     {Mode: object.ModeTree},
		"bin.txt": {Mode: object.ModeBlob},
	}
	// "bin/" sorts after "bin.txt" in the C locale ('.' < '/'), even
	// though the name stored in the map has no trailing slash.
	assert.Equal(t, []string{"bin.txt", "bin"}, tree.Names())
}

func TestHashMatchesGitCatFileFormat(t *testing.T) {
	b := object.Blob("")
	id, err := object.Hash(&b)
	require.NoError(t, err)
	// git hash-object --stdin < /dev/null
	assert.Equal(t, "e69de29bb2d1d6434b8b29ae775ad8c2e48c5391", id.String())
}

func TestDecodeIDRejectsBadLength(t *testing.T) {
	_, err := object.DecodeID("deadbeef")
	assert.Error(t, err)
}

func TestDecodeIDRoundTripsWithString(t *testing.T) {
	const hex = "1111111111111111111111111111111111111111"
	id, err := object.DecodeID(hex)
	require.NoError(t, err)
	assert.Equal(t, hex, id.String())
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := object.New(object.TypeUnknown)
	require.Error(t, err)
	var typeErr *object.TypeError
	assert.ErrorAs(t, err, &typeErr)
}

func TestTypeOfUnrecognizedValueIsUnknown(t *testing.T) {
	assert.Equal(t, object.TypeUnknown, object.TypeOf(nil))
}
