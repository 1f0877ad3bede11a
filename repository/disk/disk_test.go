package disk_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lxr-go-scm/gitfetch/internal/metrics"
	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/packfile"
	"github.com/lxr-go-scm/gitfetch/repository/disk"
)

func writeTestPack(t *testing.T, gitDir string, objs ...object.Interface) {
	t.Helper()
	packDir := filepath.Join(gitDir, "objects", "pack")
	require.NoError(t, os.MkdirAll(packDir, 0o755))

	var packBuf bytes.Buffer
	w, err := packfile.NewWriter(&packBuf, int64(len(objs)))
	require.NoError(t, err)
	for _, obj := range objs {
		require.NoError(t, w.Write(obj))
	}
	require.NoError(t, w.Close())
	buf := packBuf.Bytes()

	idxBytes, err := packfile.GenerateIdx(buf, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(packDir, "pack-test.pack"), buf, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(packDir, "pack-test.idx"), idxBytes, 0o644))
}

func TestOpenAndGetObjectFromPack(t *testing.T) {
	gitDir := t.TempDir()
	blob := object.Blob("packed content")
	writeTestPack(t, gitDir, &blob)

	repo, err := disk.Open(gitDir)
	require.NoError(t, err)

	id, err := object.Hash(&blob)
	require.NoError(t, err)

	obj, err := repo.GetObject(id)
	require.NoError(t, err)
	got, ok := obj.(*object.Blob)
	require.True(t, ok)
	assert.Equal(t, blob, *got)
}

func TestGetObjectNotFound(t *testing.T) {
	gitDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(gitDir, "objects"), 0o755))

	repo, err := disk.Open(gitDir)
	require.NoError(t, err)

	missing, err := object.DecodeID("3333333333333333333333333333333333333333")
	require.NoError(t, err)
	_, err = repo.GetObject(missing)
	assert.Error(t, err)
}

func TestOpenWithOptionsLimitsLoadWorkers(t *testing.T) {
	gitDir := t.TempDir()
	blob := object.Blob("a")
	writeTestPack(t, gitDir, &blob)

	repo, err := disk.OpenWithOptions(gitDir, packfile.LazyConfig{Eager: true}, 1)
	require.NoError(t, err)

	id, err := object.Hash(&blob)
	require.NoError(t, err)
	_, err = repo.GetObject(id)
	require.NoError(t, err)
}

func TestListCommitHaveWalksFirstParent(t *testing.T) {
	gitDir := t.TempDir()
	sig := object.Signature{Name: "a", Email: "a@example.com", Date: time.Unix(1000, 0).UTC()}

	root := object.Commit{Author: sig, Committer: sig, Message: "root"}
	rootID, err := object.Hash(&root)
	require.NoError(t, err)

	mid := object.Commit{Parent: []object.ID{rootID}, Author: sig, Committer: sig, Message: "mid"}
	midID, err := object.Hash(&mid)
	require.NoError(t, err)

	tip := object.Commit{Parent: []object.ID{midID}, Author: sig, Committer: sig, Message: "tip"}
	tipID, err := object.Hash(&tip)
	require.NoError(t, err)

	writeTestPack(t, gitDir, &root, &mid, &tip)

	repo, err := disk.Open(gitDir)
	require.NoError(t, err)

	have, err := repo.ListCommitHave(tipID, 2)
	require.NoError(t, err)
	require.Len(t, have, 2)
	assert.Equal(t, "tip", have[0].Message)
	assert.Equal(t, "mid", have[1].Message)

	full, err := repo.ListCommitHave(tipID, 10)
	require.NoError(t, err)
	assert.Len(t, full, 3)
}

func TestGetObjectReportsMetrics(t *testing.T) {
	gitDir := t.TempDir()
	blob := object.Blob("metered")
	writeTestPack(t, gitDir, &blob)

	repo, err := disk.Open(gitDir)
	require.NoError(t, err)
	repo.Metrics = metrics.NewUnregistered()

	id, err := object.Hash(&blob)
	require.NoError(t, err)
	_, err = repo.GetObject(id)
	require.NoError(t, err)
	// No panic and no error is the contract here: Metrics is nil-safe
	// and its internal counters aren't exported for direct assertion
	// from outside the package.
}
