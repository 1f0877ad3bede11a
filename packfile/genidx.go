// GenerateIdx rebuilds the version-2 .idx bytes for a complete
// in-memory packfile: it is the inverse of ReadIdx, used when a
// packfile has been fetched over the wire without its index (as git's
// own wire protocol never sends one) and a local IdxMap therefore has
// to be produced before the pack can be read randomly.
//
// Generation is a two-pass process. Pass one is an unavoidably
// sequential forward scan of the stream (object boundaries are only
// discoverable by decompressing each object in turn) that records
// every object's header, CRC-32 and decompressed bytes without
// resolving deltas. Pass two sweeps the resulting list in rounds,
// resolving in parallel whichever objects' delta bases have already
// been resolved, until every object has a final type and content.

package packfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"hash/crc32"
	"io"
	"io/ioutil"
	"sort"
	"sync"

	"github.com/klauspost/compress/zlib"
	"golang.org/x/sync/errgroup"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/object"
)

type packObjInfo struct {
	sha    object.ID
	offset int64
	crc    uint32
}

// rawObj is the pass-one result for a single packed object: its
// header and decompressed bytes, with delta objects left unresolved
// (data holds the raw delta instructions, not the reconstructed
// content).
type rawObj struct {
	offset  int64
	objType object.Type
	data    []byte
	baseOff int64 // absolute offset of OFS_DELTA base; -1 otherwise
	baseID  *object.ID
	crc     uint32
}

func (ro *rawObj) isDelta() bool {
	return ro.objType == offsetDelta || ro.objType == refDelta
}

type resolvedObj struct {
	id      object.ID
	objType object.Type
	data    []byte
}

// GenerateIdx validates packData's header and trailer, walks its
// objects in stream order resolving OFS_DELTA/REF_DELTA against bases
// already seen in the same pack, and returns the serialized bytes of
// the version-2 .idx file describing it (including the .idx file's own
// trailing SHA-1). A REF_DELTA whose base is not in packData at all
// (a thin pack) is resolved through resolve, which may be nil if no
// such pack is expected.
func GenerateIdx(packData []byte, resolve ExternalResolver) ([]byte, error) {
	nObjects, trailer, raws, err := scanPack(packData)
	if err != nil {
		return nil, err
	}
	resolved, err := resolveDeltas(raws, resolve)
	if err != nil {
		return nil, err
	}

	infos := make([]packObjInfo, 0, nObjects)
	for i, ro := range raws {
		infos = append(infos, packObjInfo{
			sha:    resolved[i].id,
			offset: ro.offset,
			crc:    ro.crc,
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return bytes.Compare(infos[i].sha[:], infos[j].sha[:]) < 0
	})
	return buildIdxBytes(infos, trailer), nil
}

// scanPack is GenerateIdx's sequential pass: it validates the pack
// envelope and decompresses every object once, without resolving
// deltas.
func scanPack(packData []byte) (nObjects uint32, trailer []byte, raws []rawObj, err error) {
	if len(packData) < 12+20 {
		return 0, nil, nil, errkind.New(errkind.PackBroken, "pack file too short")
	}
	if !bytes.Equal(packData[:4], signature[:]) {
		return 0, nil, nil, errkind.New(errkind.PackBroken, "bad pack magic")
	}
	version := binary.BigEndian.Uint32(packData[4:8])
	if version < 2 || version > 3 {
		return 0, nil, nil, errkind.New(errkind.PackBroken, "unsupported pack version %d", version)
	}
	nObjects = binary.BigEndian.Uint32(packData[8:12])

	trailer = packData[len(packData)-20:]
	sum := sha1.Sum(packData[:len(packData)-20])
	if !bytes.Equal(sum[:], trailer) {
		return 0, nil, nil, errkind.New(errkind.PackBroken, "pack checksum mismatch")
	}

	body := packData[12 : len(packData)-20]
	crcHash := crc32.NewIEEE()
	dr := newDigestReader(bytes.NewReader(body), crcHash)

	raws = make([]rawObj, 0, nObjects)
	for i := uint32(0); i < nObjects; i++ {
		crcHash.Reset()
		absOffset := int64(12) + dr.Tell()

		objType, size, err := readObjHeader(dr)
		if err != nil {
			return 0, nil, nil, errkind.Wrap(errkind.PackBroken, err, "read header at offset %d", absOffset)
		}

		ro := rawObj{offset: absOffset, objType: objType, baseOff: -1}
		switch objType {
		case offsetDelta:
			neg, err := readBase128MBE(dr)
			if err != nil {
				return 0, nil, nil, errkind.Wrap(errkind.PackBroken, err, "read delta offset at %d", absOffset)
			}
			ro.baseOff = absOffset - int64(neg)
		case refDelta:
			var id object.ID
			if _, err := io.ReadFull(dr, id[:]); err != nil {
				return 0, nil, nil, errkind.Wrap(errkind.PackBroken, err, "read delta base id at %d", absOffset)
			}
			ro.baseID = &id
		}

		zr, err := zlib.NewReader(dr)
		if err != nil {
			return 0, nil, nil, errkind.Wrap(errkind.ObjectBroken, err, "open zlib stream at %d", absOffset)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(zr, data); err != nil {
			zr.Close()
			return 0, nil, nil, errkind.Wrap(errkind.ObjectBroken, err, "inflate object at %d", absOffset)
		}
		var dummy [4]byte
		zr.Read(dummy[:]) // forces the zlib trailer to be consumed from dr
		zr.Close()

		ro.data = data
		ro.crc = binary.BigEndian.Uint32(crcHash.Sum(nil))
		raws = append(raws, ro)
	}
	return nObjects, trailer, raws, nil
}

// resolveDeltas is GenerateIdx's parallel pass: it sweeps raws in
// rounds, resolving in parallel every object whose base (if any) was
// resolved in an earlier round, until all of them carry a final type,
// content and SHA-1. Non-delta objects are always ready in round one.
//
// A REF_DELTA whose base is nowhere in raws is a thin pack's doing: it
// becomes ready immediately (it cannot depend on any other round's
// progress) and is resolved by calling resolve directly rather than
// waiting on a sibling object in raws.
func resolveDeltas(raws []rawObj, resolve ExternalResolver) ([]resolvedObj, error) {
	n := len(raws)
	resolved := make([]resolvedObj, n)
	done := make([]bool, n)

	byOffset := make(map[int64]int, n)
	for i, ro := range raws {
		byOffset[ro.offset] = i
	}
	shaToIndex := make(map[object.ID]int, n)

	var mu sync.Mutex
	baseIndex := func(ro *rawObj) (int, bool) {
		if ro.objType == offsetDelta {
			i, ok := byOffset[ro.baseOff]
			return i, ok
		}
		mu.Lock()
		i, ok := shaToIndex[*ro.baseID]
		mu.Unlock()
		return i, ok
	}

	remaining := n
	for remaining > 0 {
		var ready []int
		for i := range raws {
			if done[i] {
				continue
			}
			ro := &raws[i]
			if !ro.isDelta() {
				ready = append(ready, i)
				continue
			}
			if bi, ok := baseIndex(ro); ok {
				if done[bi] {
					ready = append(ready, i)
				}
				continue
			}
			if ro.objType == refDelta && resolve != nil {
				ready = append(ready, i)
			}
		}
		if len(ready) == 0 {
			return nil, errkind.New(errkind.PackBroken, "delta base missing or cyclic for %d remaining object(s)", remaining)
		}

		var g errgroup.Group
		for _, idx := range ready {
			idx := idx
			g.Go(func() error {
				ro := &raws[idx]
				var finalType object.Type
				var finalData []byte
				switch {
				case !ro.isDelta():
					finalType, finalData = ro.objType, ro.data
				default:
					bi, ok := baseIndex(ro)
					var baseType object.Type
					var baseData []byte
					if ok {
						base := &resolved[bi]
						baseType, baseData = base.objType, base.data
					} else {
						base, err := resolve(*ro.baseID)
						if err != nil {
							return errkind.Wrap(errkind.PackBroken, err, "resolve external delta base at %d", ro.offset)
						}
						data, err := marshalObj(base)
						if err != nil {
							return errkind.Wrap(errkind.ObjectBroken, err, "unpack external delta base at %d", ro.offset)
						}
						baseType, baseData = object.TypeOf(base), data
					}
					applied, err := applyDelta(baseData, ro.data)
					if err != nil {
						return errkind.Wrap(errkind.PackBroken, err, "apply delta at %d", ro.offset)
					}
					finalType, finalData = baseType, applied
				}
				id := hashObj(finalType, finalData)
				resolved[idx] = resolvedObj{id: id, objType: finalType, data: finalData}
				mu.Lock()
				shaToIndex[id] = idx
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, idx := range ready {
			done[idx] = true
		}
		remaining -= len(ready)
	}
	return resolved, nil
}

// GenerateIdxFile generates idx bytes for the packfile at packPath and
// writes them to idxPath. resolve is passed through to GenerateIdx for thin
// packs whose REF_DELTA bases live outside packPath; it may be nil.
func GenerateIdxFile(packPath, idxPath string, resolve ExternalResolver) error {
	data, err := ioutil.ReadFile(packPath)
	if err != nil {
		return errkind.Wrap(errkind.IOError, err, "read %s", packPath)
	}
	idx, err := GenerateIdx(data, resolve)
	if err != nil {
		return err
	}
	if err := ioutil.WriteFile(idxPath, idx, 0666); err != nil {
		return errkind.Wrap(errkind.IOError, err, "write %s", idxPath)
	}
	return nil
}

func buildIdxBytes(infos []packObjInfo, packTrailer []byte) []byte {
	var buf bytes.Buffer
	buf.Write(idxMagic[:])

	var fanout [idxFanoutEntries]uint32
	for _, info := range infos {
		fanout[info.sha[0]]++
	}
	var cum uint32
	for i := range fanout {
		cum += fanout[i]
		fanout[i] = cum
	}
	binary.Write(&buf, binary.BigEndian, fanout)

	for _, info := range infos {
		buf.Write(info.sha[:])
	}
	for _, info := range infos {
		binary.Write(&buf, binary.BigEndian, info.crc)
	}

	var large []int64
	for _, info := range infos {
		if info.offset >= int64(idxLargeOffFlag) {
			large = append(large, info.offset)
			binary.Write(&buf, binary.BigEndian, idxLargeOffFlag|uint32(len(large)-1))
		} else {
			binary.Write(&buf, binary.BigEndian, uint32(info.offset))
		}
	}
	for _, off := range large {
		binary.Write(&buf, binary.BigEndian, uint64(off))
	}

	buf.Write(packTrailer)
	sum := sha1.Sum(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}
