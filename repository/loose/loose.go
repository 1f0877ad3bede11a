// Package loose reads Git's "loose object" store: the
// objects/<2-hex>/<38-hex> tree that holds zlib-deflated objects one
// file per object, before they are ever rolled up into a packfile.
package loose

import (
	"bufio"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zlib"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/object"
)

// A Store reads the loose objects under a single objects/ directory
// (typically <repo>/.git/objects). It holds no state of its own beyond
// the root path; every method stats or opens files fresh, so a Store
// reflects concurrent writes to the directory it watches.
type Store struct {
	root string
}

// New returns a Store reading loose objects from root, which should be
// the path to a Git repository's objects/ directory.
func New(root string) *Store {
	return &Store{root}
}

func (s *Store) path(id object.ID) string {
	hex := id.String()
	return filepath.Join(s.root, hex[:2], hex[2:])
}

// Has reports whether a loose object file exists for id. It does not
// validate the file's contents.
func (s *Store) Has(id object.ID) bool {
	_, err := os.Stat(s.path(id))
	return err == nil
}

// List walks the fan-out directories (two hex digits each) under the
// store's root and returns the ID of every loose object found. Entries
// that are not exactly 38 hex characters are skipped, since the
// objects/ directory also holds "pack" and "info" subdirectories.
func (s *Store) List() ([]object.ID, error) {
	fanouts, err := ioutil.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errkind.Wrap(errkind.IOError, err, "list %s", s.root)
	}

	var ids []object.ID
	for _, fo := range fanouts {
		if !fo.IsDir() || len(fo.Name()) != 2 {
			continue
		}
		entries, err := ioutil.ReadDir(filepath.Join(s.root, fo.Name()))
		if err != nil {
			return nil, errkind.Wrap(errkind.IOError, err, "list %s", fo.Name())
		}
		for _, e := range entries {
			if e.IsDir() || len(e.Name()) != 38 {
				continue
			}
			id, err := object.DecodeID(fo.Name() + e.Name())
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Peek opens the loose object named by id and decompresses just enough
// of it to learn its type and payload size, without reading the rest
// of the (possibly large) payload. This mirrors the progressive read
// the pack readers perform for large objects.
func (s *Store) Peek(id object.ID) (object.Type, int64, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, errkind.New(errkind.NotFound, "loose object %s", id)
		}
		return 0, 0, errkind.Wrap(errkind.IOError, err, "open loose object %s", id)
	}
	defer f.Close()

	zr, err := zlib.NewReader(bufio.NewReader(f))
	if err != nil {
		return 0, 0, errkind.Wrap(errkind.ObjectBroken, err, "inflate loose object %s", id)
	}
	defer zr.Close()

	var objType object.Type
	var size int64
	if _, err := fmt.Fscanf(zr, "%s %d\x00", &objType, &size); err != nil {
		return 0, 0, errkind.Wrap(errkind.ObjectBroken, err, "read header of loose object %s", id)
	}
	return objType, size, nil
}

// Cat reads, decompresses and decodes the loose object named by id.
func (s *Store) Cat(id object.ID) (object.Interface, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errkind.New(errkind.NotFound, "loose object %s", id)
		}
		return nil, errkind.Wrap(errkind.IOError, err, "open loose object %s", id)
	}
	defer f.Close()

	zr, err := zlib.NewReader(bufio.NewReader(f))
	if err != nil {
		return nil, errkind.Wrap(errkind.ObjectBroken, err, "inflate loose object %s", id)
	}
	defer zr.Close()

	data, err := ioutil.ReadAll(zr)
	if err != nil {
		return nil, errkind.Wrap(errkind.ObjectBroken, err, "inflate loose object %s", id)
	}

	obj, err := object.Unmarshal(data)
	if err != nil {
		return nil, errkind.Wrap(errkind.ObjectBroken, err, "decode loose object %s", id)
	}
	return obj, nil
}

// ModTime returns the modification time, in Unix seconds, of the loose
// object file named by id. The disk repository does not consult it: a
// loose copy of an object always takes precedence over a packed one.
func (s *Store) ModTime(id object.ID) (mtime int64, err error) {
	fi, err := os.Stat(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errkind.New(errkind.NotFound, "loose object %s", id)
		}
		return 0, errkind.Wrap(errkind.IOError, err, "stat loose object %s", id)
	}
	return fi.ModTime().Unix(), nil
}
