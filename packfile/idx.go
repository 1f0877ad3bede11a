// A packfile's companion .idx file records, for every object the
// packfile contains, its SHA-1 and its byte offset within the pack, so
// that an object can be located without a linear scan. This file reads
// version 2 index files, the only version git-index-pack(1) writes
// today.

package packfile

import (
	"bytes"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"sort"

	"github.com/lxr-go-scm/gitfetch/errkind"
	"github.com/lxr-go-scm/gitfetch/object"
)

var idxMagic = [8]byte{0xff, 't', 'O', 'c', 0, 0, 0, 2}

const (
	idxFanoutEntries = 256
	idxShaSize       = 20
	idxCrcSize       = 4
	idxOffsetSize    = 4
	idxLargeOffFlag  = uint32(1) << 31
)

// An IdxMap is the immutable, in-memory result of reading a .idx file:
// a bidirectional mapping between the SHA-1 of every object the paired
// packfile contains and the byte range of that object's header+data
// within the pack.
type IdxMap struct {
	// Span is the (start, end) byte offsets of each object, keyed by
	// its hex SHA-1. End is exclusive: for every object but the one
	// occupying the highest offset, it is the next object's start;
	// for that last object, it is PackEnd.
	Span map[string]OffsetSpan
	// ByOffset maps an object's start offset back to its hex SHA-1.
	ByOffset map[int64]string
	// CRC holds the CRC32 of each object's packed (header+compressed)
	// bytes, keyed by hex SHA-1. Recorded but not validated by ReadIdx,
	// per the format's own design (the pack trailer and per-object
	// SHA-1 recomputation are the actual integrity checks).
	CRC map[string]uint32
	// PackEnd is the size of the pack minus its trailing 20-byte
	// checksum: the exclusive end offset of the last object.
	PackEnd int64
	// PackSHA1 and IdxSHA1 are the trailer hashes copied from the end
	// of the index file.
	PackSHA1 object.ID
	IdxSHA1  object.ID
}

// An OffsetSpan is the half-open byte range [Start, End) of one
// object's header and compressed payload within a packfile.
type OffsetSpan struct {
	Start, End int64
}

// ReadIdx parses the contents of a version-2 .idx file (idxBytes) paired
// with a packfile of the given size (packSize, used only to derive the
// last object's End). It returns a *errkind.Error of kind PackBroken if
// the header, large-offset table, or trailer checksum do not match the
// documented layout.
func ReadIdx(idxBytes []byte, packSize int64) (*IdxMap, error) {
	if len(idxBytes) < len(idxMagic)+idxFanoutEntries*4+2*idxShaSize {
		return nil, errkind.New(errkind.PackBroken, "idx file too short")
	}
	if !bytes.Equal(idxBytes[:8], idxMagic[:]) {
		return nil, errkind.New(errkind.PackBroken, "bad idx magic")
	}
	pos := 8

	var fanout [idxFanoutEntries]uint32
	for i := range fanout {
		fanout[i] = binary.BigEndian.Uint32(idxBytes[pos : pos+4])
		pos += 4
	}
	count := int(fanout[idxFanoutEntries-1])

	need := pos + count*idxShaSize + count*idxCrcSize + count*idxOffsetSize + 2*idxShaSize
	if need > len(idxBytes) {
		return nil, errkind.New(errkind.PackBroken, "idx file truncated")
	}

	shaTable := idxBytes[pos : pos+count*idxShaSize]
	pos += count * idxShaSize
	crcTable := idxBytes[pos : pos+count*idxCrcSize]
	pos += count * idxCrcSize
	offTable := idxBytes[pos : pos+count*idxOffsetSize]
	pos += count * idxOffsetSize

	nLarge := 0
	offsets := make([]int64, count)
	largeIndices := make([]int, 0)
	for i := 0; i < count; i++ {
		raw := binary.BigEndian.Uint32(offTable[i*4 : i*4+4])
		if raw&idxLargeOffFlag != 0 {
			largeIndices = append(largeIndices, i)
			offsets[i] = -1 // filled in below
			nLarge++
		} else {
			offsets[i] = int64(raw)
		}
	}

	largeEnd := pos + nLarge*8
	if largeEnd > len(idxBytes)-2*idxShaSize {
		return nil, errkind.New(errkind.PackBroken, "large-offset table out of range")
	}
	largeTable := idxBytes[pos:largeEnd]
	pos = largeEnd

	for _, i := range largeIndices {
		raw := binary.BigEndian.Uint32(offTable[i*4 : i*4+4])
		largeIdx := int(raw &^ idxLargeOffFlag)
		if largeIdx >= nLarge {
			return nil, errkind.New(errkind.PackBroken, "large-offset index out of range")
		}
		offsets[i] = int64(binary.BigEndian.Uint64(largeTable[largeIdx*8 : largeIdx*8+8]))
	}

	if pos+2*idxShaSize > len(idxBytes) {
		return nil, errkind.New(errkind.PackBroken, "idx trailer truncated")
	}
	var packSHA, idxSHA object.ID
	copy(packSHA[:], idxBytes[pos:pos+idxShaSize])
	pos += idxShaSize
	copy(idxSHA[:], idxBytes[pos:pos+idxShaSize])
	pos += idxShaSize

	sum := sha1.Sum(idxBytes[:len(idxBytes)-idxShaSize])
	if !bytes.Equal(sum[:], idxSHA[:]) {
		return nil, errkind.New(errkind.PackBroken, "idx trailer checksum mismatch")
	}

	type entry struct {
		sha string
		off int64
		crc uint32
	}
	entries := make([]entry, count)
	for i := 0; i < count; i++ {
		var id object.ID
		copy(id[:], shaTable[i*idxShaSize:(i+1)*idxShaSize])
		entries[i] = entry{
			sha: id.String(),
			off: offsets[i],
			crc: binary.BigEndian.Uint32(crcTable[i*4 : i*4+4]),
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].off < entries[j].off })

	packEnd := packSize - idxShaSize
	m := &IdxMap{
		Span:     make(map[string]OffsetSpan, count),
		ByOffset: make(map[int64]string, count),
		CRC:      make(map[string]uint32, count),
		PackEnd:  packEnd,
		PackSHA1: packSHA,
		IdxSHA1:  idxSHA,
	}
	for i, e := range entries {
		end := packEnd
		if i+1 < len(entries) {
			end = entries[i+1].off
		}
		m.Span[e.sha] = OffsetSpan{Start: e.off, End: end}
		m.ByOffset[e.off] = e.sha
		m.CRC[e.sha] = e.crc
	}
	return m, nil
}

// ReadIdxFile is a convenience wrapper that reads the named .idx file
// and the size of its paired packfile from disk.
func ReadIdxFile(idxPath string, packSize int64) (*IdxMap, error) {
	b, err := ioutil.ReadFile(idxPath)
	if err != nil {
		return nil, errkind.Wrap(errkind.IOError, err, "read %s", idxPath)
	}
	return ReadIdx(b, packSize)
}

// Len returns the number of objects recorded in the index.
func (m *IdxMap) Len() int {
	return len(m.Span)
}

// String implements fmt.Stringer for debugging.
func (m *IdxMap) String() string {
	return fmt.Sprintf("IdxMap{%d objects, packEnd=%d}", m.Len(), m.PackEnd)
}
