// A Pack provides random access to the objects of a packfile, using a
// paired IdxMap to locate them by offset instead of scanning the
// stream from the start.  Unlike Reader, which only supports reading
// objects in the order they occur in the stream, a Pack lets callers
// resolve any single object on demand, following its delta chain (if
// any) iteratively so that chains of unbounded depth cannot overflow
// the call stack.

package packfile

import (
	"bytes"
	"io"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/klauspost/compress/zlib"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/object"
)

// DefaultLazyThreshold is the object size above which OpenPack defers
// reading an object's payload until it is actually requested.  It is
// tuned for spinning-disk seek/throughput ratios; callers on faster
// media may raise it or set Eager to skip the distinction entirely.
const DefaultLazyThreshold = 1 << 20 // 1 MiB

// maxDeltaChainDepth bounds the number of bases Cat will walk before
// giving up, guarding against a corrupt pack whose OFS_DELTA chain
// loops back on itself.  It is far above any depth a real pack
// exhibits (git gc caps chains at 50), so it never rejects valid data.
const maxDeltaChainDepth = 1 << 20

// LazyConfig controls how OpenPack decides which objects to read
// eagerly and which to defer.
type LazyConfig struct {
	// Threshold is the object size above which its payload is read
	// on demand rather than at open time. Zero means
	// DefaultLazyThreshold.
	Threshold int64
	// Eager, if true, ignores Threshold and reads every object's
	// payload at open time.
	Eager bool
}

type packEntry struct {
	sha     string
	start   int64
	end     int64
	objType object.Type
	size    int64
	baseOff int64 // absolute offset of base object; -1 if not OFS_DELTA
	baseID  *object.ID
	payload []byte // compressed bytes; nil until loaded
	loaded  bool
}

// A Pack pairs an IdxMap with the packfile it indexes, allowing any one
// of its objects to be read without a sequential scan.
type Pack struct {
	idx *IdxMap
	ra  io.ReaderAt

	mu       sync.Mutex
	entries  map[string]*packEntry
	byOffset map[int64]*packEntry
}

// OpenPack builds a Pack from idx and the packfile data available
// through ra. It performs the eager or lazy initial read described by
// cfg, in which any IOError communicates a failure to read from ra and
// any PackBroken error communicates malformed object headers.
func OpenPack(idx *IdxMap, ra io.ReaderAt, cfg LazyConfig) (*Pack, error) {
	threshold := cfg.Threshold
	if threshold == 0 {
		threshold = DefaultLazyThreshold
	}

	type span struct {
		sha        string
		start, end int64
	}
	spans := make([]span, 0, len(idx.Span))
	for sha, s := range idx.Span {
		spans = append(spans, span{sha, s.Start, s.End})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	p := &Pack{
		idx:      idx,
		ra:       ra,
		entries:  make(map[string]*packEntry, len(spans)),
		byOffset: make(map[int64]*packEntry, len(spans)),
	}
	for _, s := range spans {
		e := &packEntry{sha: s.sha, start: s.start, end: s.end}
		p.entries[s.sha] = e
		p.byOffset[s.start] = e
	}

	loadRange := func(from, to int64, want []*packEntry) error {
		if len(want) == 0 {
			return nil
		}
		buf := make([]byte, to-from)
		if _, err := ra.ReadAt(buf, from); err != nil {
			return errkind.Wrap(errkind.IOError, err, "read pack bytes [%d,%d)", from, to)
		}
		for _, e := range want {
			if err := p.fillEntry(e, buf[e.start-from:e.end-from]); err != nil {
				return err
			}
		}
		return nil
	}

	if cfg.Eager {
		var want []*packEntry
		for _, s := range spans {
			want = append(want, p.entries[s.sha])
		}
		if len(spans) > 0 {
			if err := loadRange(spans[0].start, spans[len(spans)-1].end, want); err != nil {
				return nil, err
			}
		}
		return p, nil
	}

	var (
		segStart, segEnd int64 = -1, -1
		segEntries       []*packEntry
	)
	flush := func() error {
		if segEntries == nil {
			return nil
		}
		err := loadRange(segStart, segEnd, segEntries)
		segStart, segEnd, segEntries = -1, -1, nil
		return err
	}
	for _, s := range spans {
		e := p.entries[s.sha]
		if s.end-s.start > threshold {
			if err := flush(); err != nil {
				return nil, err
			}
			if err := p.peekEntry(e); err != nil {
				return nil, err
			}
			continue
		}
		if segEntries == nil {
			segStart = s.start
		}
		segEnd = s.end
		segEntries = append(segEntries, e)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return p, nil
}

// fillEntry parses the full header (and, for deltas, the base
// reference) out of buf, which holds exactly the bytes of e's span,
// and records the result on e as fully loaded.
func (p *Pack) fillEntry(e *packEntry, buf []byte) error {
	br := bytes.NewReader(buf)
	objType, size, err := readObjHeader(br)
	if err != nil {
		return errkind.Wrap(errkind.PackBroken, err, "read header for %s", e.sha)
	}
	e.objType, e.size = objType, size
	e.baseOff = -1
	switch objType {
	case offsetDelta:
		neg, err := readBase128MBE(br)
		if err != nil {
			return errkind.Wrap(errkind.PackBroken, err, "read delta offset for %s", e.sha)
		}
		e.baseOff = e.start - int64(neg)
	case refDelta:
		var id object.ID
		if _, err := io.ReadFull(br, id[:]); err != nil {
			return errkind.Wrap(errkind.PackBroken, err, "read delta base id for %s", e.sha)
		}
		e.baseID = &id
	}
	dataOff := len(buf) - br.Len()
	e.payload = buf[dataOff:]
	e.loaded = true
	return nil
}

// peekEntry reads just enough of e's span to learn its type and size,
// leaving the payload (and, for deltas, the base reference) to be
// filled in later by ensureLoaded.
func (p *Pack) peekEntry(e *packEntry) error {
	n := e.end - e.start
	if n > 10 {
		n = 10
	}
	buf := make([]byte, n)
	if _, err := p.ra.ReadAt(buf, e.start); err != nil {
		return errkind.Wrap(errkind.IOError, err, "peek pack bytes at %d", e.start)
	}
	objType, size, err := readObjHeader(bytes.NewReader(buf))
	if err != nil {
		return errkind.Wrap(errkind.PackBroken, err, "read header for %s", e.sha)
	}
	e.objType, e.size = objType, size
	return nil
}

// ensureLoaded guarantees that e's payload (and base reference, if
// any) has been read from the pack, reopening the span if peekEntry
// only looked at its first bytes.
func (p *Pack) ensureLoaded(e *packEntry) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e.loaded {
		return nil
	}
	buf := make([]byte, e.end-e.start)
	if _, err := p.ra.ReadAt(buf, e.start); err != nil {
		return errkind.Wrap(errkind.IOError, err, "read pack bytes at %d", e.start)
	}
	return p.fillEntry(e, buf)
}

func decompressAll(raw []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return ioutil.ReadAll(zr)
}

// Has reports whether sha names an object in the pack.
func (p *Pack) Has(sha string) bool {
	_, ok := p.entries[sha]
	return ok
}

// Len returns the number of objects the pack contains.
func (p *Pack) Len() int {
	return len(p.entries)
}

// An ExternalResolver looks up an object id that does not resolve
// within a single Pack's own entries. Cat calls it only for a
// REF_DELTA whose base is missing from the pack — the case a thin
// pack deliberately creates, trusting the receiving side to already
// hold the base in another pack or as a loose object. OFS_DELTA bases
// are always local to the pack that contains them and never consult
// the resolver.
type ExternalResolver func(id object.ID) (object.Interface, error)

// Cat resolves the object named by sha, following its OFS_DELTA or
// REF_DELTA chain (if any) iteratively and applying the chain's deltas
// from base to tip. If the chain runs into a REF_DELTA whose base is
// not in the pack, Cat calls resolve (which may be nil) to obtain it
// instead of failing outright. It is safe to call concurrently.
func (p *Pack) Cat(sha string, resolve ExternalResolver) (object.Interface, error) {
	e, ok := p.entries[sha]
	if !ok {
		return nil, errkind.New(errkind.NotFound, "object %s not in pack", sha)
	}
	if err := p.ensureLoaded(e); err != nil {
		return nil, err
	}

	var chain []*packEntry
	cur := e
	for depth := 0; cur.objType == offsetDelta || cur.objType == refDelta; depth++ {
		if depth >= maxDeltaChainDepth {
			return nil, errkind.New(errkind.PackBroken, "delta chain for %s exceeds %d links", sha, maxDeltaChainDepth)
		}
		chain = append(chain, cur)

		if cur.objType == offsetDelta {
			next, ok := p.byOffset[cur.baseOff]
			if !ok {
				return nil, errkind.New(errkind.PackBroken, "delta base for %s not found in pack", cur.sha)
			}
			if err := p.ensureLoaded(next); err != nil {
				return nil, err
			}
			cur = next
			continue
		}

		next, ok := p.entries[cur.baseID.String()]
		if !ok {
			if resolve == nil {
				return nil, errkind.New(errkind.PackBroken, "delta base for %s not found in pack", cur.sha)
			}
			base, err := resolve(*cur.baseID)
			if err != nil {
				return nil, errkind.Wrap(errkind.PackBroken, err, "resolve external delta base for %s", cur.sha)
			}
			return p.applyChain(sha, chain, base)
		}
		if err := p.ensureLoaded(next); err != nil {
			return nil, err
		}
		cur = next
	}

	data, err := decompressAll(cur.payload)
	if err != nil {
		return nil, errkind.Wrap(errkind.ObjectBroken, err, "decompress %s", cur.sha)
	}
	return p.applyChainData(sha, chain, cur.objType, data)
}

// applyChain applies chain (ordered from tip to base) atop base, an
// object resolved outside the pack, and unmarshals the result as
// sha's object.
func (p *Pack) applyChain(sha string, chain []*packEntry, base object.Interface) (object.Interface, error) {
	data, err := marshalObj(base)
	if err != nil {
		return nil, errkind.Wrap(errkind.ObjectBroken, err, "unpack external delta base for %s", sha)
	}
	return p.applyChainData(sha, chain, object.TypeOf(base), data)
}

// applyChainData applies chain (ordered from tip to base) atop data,
// the decompressed content of the chain's base object of type
// objType, and unmarshals the result as sha's object.
func (p *Pack) applyChainData(sha string, chain []*packEntry, objType object.Type, data []byte) (object.Interface, error) {
	for i := len(chain) - 1; i >= 0; i-- {
		d := chain[i]
		deltaData, err := decompressAll(d.payload)
		if err != nil {
			return nil, errkind.Wrap(errkind.ObjectBroken, err, "decompress delta %s", d.sha)
		}
		data, err = applyDelta(data, deltaData)
		if err != nil {
			return nil, errkind.Wrap(errkind.PackBroken, err, "apply delta for %s", d.sha)
		}
	}

	obj, err := object.New(objType)
	if err != nil {
		return nil, errkind.Wrap(errkind.ObjectBroken, err, "object type for %s", sha)
	}
	if err := unmarshalObj(obj, data); err != nil {
		return nil, errkind.Wrap(errkind.ObjectBroken, err, "unmarshal %s", sha)
	}
	return obj, nil
}
