// Package disk implements repository.Interface over an on-disk Git
// directory: the packfiles under objects/pack/ and the loose objects
// under objects/, merged so that whichever copy of a duplicated object
// was written most recently wins, plus read access to refs/ and HEAD.
//
// Writing is deliberately unsupported: PutObject, UpdateRef and SetHEAD
// all return ErrReadOnly. A fetch client only ever needs to read the
// local history it already has (to build "have" lines) and to read the
// objects a freshly downloaded pack adds — the pack itself is written
// directly to objects/pack/ by the caller, not through this interface.
package disk

import (
	"bufio"
	"bytes"
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/internal/metrics"
	"github.com/lxr-go-scm/gitfetch/object"
	"github.com/lxr-go-scm/gitfetch/packfile"
	"github.com/lxr-go-scm/gitfetch/repository"
	"github.com/lxr-go-scm/gitfetch/repository/loose"
)

// ErrReadOnly is returned by the Repository write methods this package
// does not implement.
var ErrReadOnly = errors.New("disk: repository is read-only")

type packEntry struct {
	idx  *packfile.IdxMap
	pack *packfile.Pack
}

// A Repository reads Git objects and refs from a .git directory on
// disk. The zero value is not usable; construct one with Open.
type Repository struct {
	gitDir string
	loose  *loose.Store

	packs []*packEntry
	owner map[string]*packfile.Pack // sha hex -> newest pack containing it
	files []*os.File                // open packfile handles, closed by Close

	lazyCfg  packfile.LazyConfig
	maxLoadW int // cap on concurrent pack loads in loadPacks; 0 means unbounded

	refsMu   sync.RWMutex
	refs     map[string]object.ID
	refsDone bool

	// Metrics, if non-nil, receives counters for objects resolved by
	// GetObject. A nil Metrics (the default) is a valid no-op recorder.
	Metrics *metrics.Recorder
}

// Open reads the pack index of every pack under gitDir/objects/pack,
// pairs it with its packfile, and returns a Repository merging them
// with the loose objects under gitDir/objects. gitDir is the directory
// directly containing objects/, refs/ and HEAD (a ".git" directory, or
// the top level of a bare repository).
//
// Open uses packfile.LazyConfig's zero value (the default lazy-read
// threshold) and an unbounded pack-loading worker pool. Use
// OpenWithOptions to control either.
func Open(gitDir string) (*Repository, error) {
	return OpenWithOptions(gitDir, packfile.LazyConfig{}, 0)
}

// OpenWithOptions behaves like Open, but reads each pack's objects
// eagerly or lazily according to lazyCfg, and caps the number of packs
// loaded concurrently at maxWorkers (0 or negative means unbounded).
func OpenWithOptions(gitDir string, lazyCfg packfile.LazyConfig, maxWorkers int) (*Repository, error) {
	r := &Repository{
		gitDir:   gitDir,
		loose:    loose.New(filepath.Join(gitDir, "objects")),
		owner:    make(map[string]*packfile.Pack),
		lazyCfg:  lazyCfg,
		maxLoadW: maxWorkers,
	}
	if err := r.loadPacks(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Repository) loadPacks() error {
	dir := filepath.Join(r.gitDir, "objects", "pack")
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errkind.Wrap(errkind.IOError, err, "list %s", dir)
	}

	type pair struct {
		packPath, idxPath string
		mtime             int64
	}
	pairs := make(map[string]*pair)
	for _, fi := range entries {
		name := fi.Name()
		ext := filepath.Ext(name)
		base := strings.TrimSuffix(name, ext)
		p := pairs[base]
		if p == nil {
			p = &pair{}
			pairs[base] = p
		}
		full := filepath.Join(dir, name)
		switch ext {
		case ".pack":
			p.packPath = full
		case ".idx":
			p.idxPath = full
			p.mtime = fi.ModTime().UnixNano()
		}
	}

	var list []*pair
	for _, p := range pairs {
		if p.packPath != "" && p.idxPath != "" {
			list = append(list, p)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].mtime < list[j].mtime })

	// Opening and indexing each pack is independent I/O-and-CPU work,
	// so it fans out across a worker pool; only the ownership map
	// below needs the mtime-ascending order preserved.
	entries := make([]*packEntry, len(list))
	files := make([]*os.File, len(list))
	var g errgroup.Group
	if r.maxLoadW > 0 {
		g.SetLimit(r.maxLoadW)
	}
	for i, p := range list {
		i, p := i, p
		g.Go(func() error {
			fi, err := os.Stat(p.packPath)
			if err != nil {
				return errkind.Wrap(errkind.IOError, err, "stat %s", p.packPath)
			}
			idxBytes, err := ioutil.ReadFile(p.idxPath)
			if err != nil {
				return errkind.Wrap(errkind.IOError, err, "read %s", p.idxPath)
			}
			idx, err := packfile.ReadIdx(idxBytes, fi.Size())
			if err != nil {
				return err
			}
			f, err := os.Open(p.packPath)
			if err != nil {
				return errkind.Wrap(errkind.IOError, err, "open %s", p.packPath)
			}
			pk, err := packfile.OpenPack(idx, f, r.lazyCfg)
			if err != nil {
				return err
			}
			files[i] = f
			entries[i] = &packEntry{idx: idx, pack: pk}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, pe := range entries {
		r.files = append(r.files, files[i])
		r.packs = append(r.packs, pe)
		// list is ascending by mtime, so a later pack's ownership of
		// a sha silently overrides an earlier one's: newest wins.
		for sha := range pe.idx.Span {
			r.owner[sha] = pe.pack
		}
	}
	return nil
}

// GetObject looks the object up among the loose objects first (loose
// objects are always considered newest), then among the packs, using
// whichever pack most recently claimed ownership of the sha.
func (r *Repository) GetObject(id object.ID) (object.Interface, error) {
	if r.loose.Has(id) {
		obj, err := r.loose.Cat(id)
		if err == nil {
			r.Metrics.ObjectResolved("loose")
		}
		return obj, err
	}
	pk, ok := r.owner[id.String()]
	if !ok {
		return nil, repository.ErrObjectNotExist
	}
	obj, err := pk.Cat(id.String(), r.resolveExternal)
	if err != nil {
		if kind, ok := errkind.KindOf(err); ok && kind == errkind.NotFound {
			return nil, repository.ErrObjectNotExist
		}
		return nil, err
	}
	r.Metrics.ObjectResolved("pack")
	return obj, nil
}

// resolveExternal looks up a delta base that a pack's own Cat call
// could not find among its own entries, retrying across every other
// pack and the loose store the same way GetObject does for any other
// id. This is how a thin pack's REF_DELTA bases, deliberately omitted
// because the fetching side is expected to already have them, get
// resolved.
func (r *Repository) resolveExternal(id object.ID) (object.Interface, error) {
	return r.GetObject(id)
}

// PutObject is unimplemented; see the package doc comment.
func (r *Repository) PutObject(obj object.Interface) (object.ID, error) {
	return object.ZeroID, ErrReadOnly
}

func (r *Repository) loadRefs() error {
	r.refsMu.Lock()
	defer r.refsMu.Unlock()
	if r.refsDone {
		return nil
	}
	refs := make(map[string]object.ID)

	if packed, err := ioutil.ReadFile(filepath.Join(r.gitDir, "packed-refs")); err == nil {
		sc := bufio.NewScanner(bytes.NewReader(packed))
		for sc.Scan() {
			line := sc.Text()
			if line == "" || line[0] == '#' || line[0] == '^' {
				continue
			}
			fields := strings.SplitN(line, " ", 2)
			if len(fields) != 2 {
				continue
			}
			id, err := object.DecodeID(fields[0])
			if err != nil {
				continue
			}
			refs[fields[1]] = id
		}
	} else if !os.IsNotExist(err) {
		return errkind.Wrap(errkind.IOError, err, "read packed-refs")
	}

	refsDir := filepath.Join(r.gitDir, "refs")
	err := filepath.Walk(refsDir, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if fi.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(r.gitDir, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return err
		}
		id, err := object.DecodeID(strings.TrimSpace(string(data)))
		if err != nil {
			return nil // not a plain ref file (loose ref content is always a bare sha)
		}
		refs[name] = id
		return nil
	})
	if err != nil {
		return errkind.Wrap(errkind.IOError, err, "walk %s", refsDir)
	}

	r.refs = refs
	r.refsDone = true
	return nil
}

// GetRef returns the ID the named ref points to, consulting loose refs
// under refs/ first and packed-refs as a fallback, matching Git's own
// precedence.
func (r *Repository) GetRef(name string) (object.ID, error) {
	if !repository.IsValidRef(name) {
		return object.ZeroID, repository.ErrInvalidRef
	}
	if err := r.loadRefs(); err != nil {
		return object.ZeroID, err
	}
	r.refsMu.RLock()
	defer r.refsMu.RUnlock()
	id, ok := r.refs[name]
	if !ok {
		return object.ZeroID, repository.ErrRefNotExist
	}
	return id, nil
}

// UpdateRef is unimplemented; see the package doc comment.
func (r *Repository) UpdateRef(name string, oldID, newID object.ID) error {
	return ErrReadOnly
}

// ListRefs lists every ref known from refs/ and packed-refs, in
// ascending order by name.
func (r *Repository) ListRefs() ([]string, []object.ID, error) {
	if err := r.loadRefs(); err != nil {
		return nil, nil, err
	}
	r.refsMu.RLock()
	defer r.refsMu.RUnlock()
	names := make(sort.StringSlice, 0, len(r.refs))
	for name := range r.refs {
		names = append(names, name)
	}
	names.Sort()
	ids := make([]object.ID, len(names))
	for i, name := range names {
		ids[i] = r.refs[name]
	}
	return names, ids, nil
}

// GetHEAD returns the ref name that HEAD points to. It returns
// ErrInvalidRef if HEAD is detached (points directly at an object ID
// rather than a ref), since Interface has no way to represent that.
func (r *Repository) GetHEAD() (string, error) {
	data, err := ioutil.ReadFile(filepath.Join(r.gitDir, "HEAD"))
	if err != nil {
		return "", errkind.Wrap(errkind.IOError, err, "read HEAD")
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "ref: ") {
		return "", repository.ErrInvalidRef
	}
	return strings.TrimPrefix(line, "ref: "), nil
}

// SetHEAD is unimplemented; see the package doc comment.
func (r *Repository) SetHEAD(name string) error {
	return ErrReadOnly
}

// ListCommitHave walks the first-parent history starting at sha, up to
// lookback commits deep, and returns the commits visited. It is the
// source of the "have" lines the fetch negotiation sends a server to
// describe what the local repository already contains.
func (r *Repository) ListCommitHave(sha object.ID, lookback int) ([]*object.Commit, error) {
	var have []*object.Commit
	cur := sha
	for i := 0; i < lookback && cur != object.ZeroID; i++ {
		obj, err := r.GetObject(cur)
		if err != nil {
			return have, err
		}
		c, ok := obj.(*object.Commit)
		if !ok {
			return have, errkind.New(errkind.ObjectBroken, "%s is not a commit", cur)
		}
		have = append(have, c)
		if len(c.Parent) == 0 {
			break
		}
		cur = c.Parent[0]
	}
	return have, nil
}

// Close releases the open file handles backing the repository's packs.
// It is safe to call once after the Repository is no longer needed.
func (r *Repository) Close() error {
	var first error
	for _, f := range r.files {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ repository.Interface = (*Repository)(nil)
