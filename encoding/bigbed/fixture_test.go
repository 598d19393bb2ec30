package bigbed

import (
	"bytes"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/require"
)

// The tests in this package run against synthetic BigBed images assembled
// in memory by the helpers below.  The writer is deliberately minimal: it
// produces only the structures the decoder consumes, but with real absolute
// offsets, real zlib streams and both byte orders, so end-to-end tests
// exercise the same byte-level layout as files written by bedToBigBed.

type testChrom struct {
	name string
	id   uint32
	size uint32
}

type testRecord struct {
	chromID uint32
	start   uint32
	end     uint32
	rest    string
}

type fixtureOpts struct {
	// order defaults to little-endian, keySize to the longest chromosome
	// name, recordsPerBlock to all records in one block.  The split flags
	// select two-level trees instead of a lone root leaf.
	order           binary.ByteOrder
	keySize         int
	compress        bool
	recordsPerBlock int
	splitChromTree  bool
	splitCIRTree    bool
	zoomLevels      []ZoomLevel
}

type fixtureWriter struct {
	buf   bytes.Buffer
	order binary.ByteOrder
}

func (w *fixtureWriter) u8(v uint8) { w.buf.WriteByte(v) }

func (w *fixtureWriter) u16(v uint16) {
	var b [2]byte
	w.order.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *fixtureWriter) u32(v uint32) {
	var b [4]byte
	w.order.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *fixtureWriter) u64(v uint64) {
	var b [8]byte
	w.order.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *fixtureWriter) raw(p []byte) { w.buf.Write(p) }

func (w *fixtureWriter) pad(n int) { w.buf.Write(make([]byte, n)) }

func paddedKey(name string, keySize int) []byte {
	key := make([]byte, keySize)
	copy(key, name)
	return key
}

// buildBPTree serializes a chromosome B+ tree whose region begins at the
// absolute file offset base.  Chromosomes are stored sorted by padded key,
// as bedToBigBed writes them.
func buildBPTree(chroms []testChrom, keySize int, split bool, base uint64, order binary.ByteOrder) []byte {
	sorted := make([]testChrom, len(chroms))
	copy(sorted, chroms)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(paddedKey(sorted[i].name, keySize), paddedKey(sorted[j].name, keySize)) < 0
	})

	w := &fixtureWriter{order: order}
	w.raw(orientMagic(bptMagic, order))
	w.u32(64) // blockSize
	w.u32(uint32(keySize))
	w.u32(chromValSize)
	w.u64(uint64(len(sorted)))
	w.pad(8)

	writeLeaf := func(entries []testChrom) {
		w.u8(1)
		w.u8(0)
		w.u16(uint16(len(entries)))
		for _, c := range entries {
			w.raw(paddedKey(c.name, keySize))
			w.u32(c.id)
			w.u32(c.size)
		}
	}

	if !split || len(sorted) < 2 {
		writeLeaf(sorted)
		return w.buf.Bytes()
	}

	// Two leaves under one internal root, laid out root-first.  Child
	// offsets are absolute.
	half := len(sorted) / 2
	left, right := sorted[:half], sorted[half:]
	rootSize := uint64(4 + 2*(keySize+8))
	leftOffset := base + 32 + rootSize
	rightOffset := leftOffset + uint64(4+len(left)*(keySize+8))
	w.u8(0)
	w.u8(0)
	w.u16(2)
	w.raw(paddedKey(left[0].name, keySize))
	w.u64(leftOffset)
	w.raw(paddedKey(right[0].name, keySize))
	w.u64(rightOffset)
	writeLeaf(left)
	writeLeaf(right)
	return w.buf.Bytes()
}

// blockBounds is one data block plus its composite-key bounding range.
type blockBounds struct {
	desc       FileOffsetSize
	startChrom uint32
	startBase  uint32
	endChrom   uint32
	endBase    uint32
}

// encodeBlocks packs records into data blocks starting at the absolute file
// offset base, returning the encoded region and per-block bounds.  The
// maximum raw (pre-compression) block length is returned for the header's
// uncompressBufSize field.
func encodeBlocks(t *testing.T, records []testRecord, perBlock int, compress bool, base uint64, order binary.ByteOrder) ([]byte, []blockBounds, int) {
	if perBlock <= 0 {
		perBlock = len(records)
		if perBlock == 0 {
			perBlock = 1
		}
	}
	var region bytes.Buffer
	var bounds []blockBounds
	maxRaw := 0
	for begin := 0; begin < len(records); begin += perBlock {
		end := begin + perBlock
		if end > len(records) {
			end = len(records)
		}
		group := records[begin:end]

		w := &fixtureWriter{order: order}
		b := blockBounds{
			startChrom: group[0].chromID,
			startBase:  group[0].start,
			endChrom:   group[0].chromID,
			endBase:    group[0].end,
		}
		for _, rec := range group {
			w.u32(rec.chromID)
			w.u32(rec.start)
			w.u32(rec.end)
			w.raw([]byte(rec.rest))
			w.u8(0)
			if cmpChromPos(rec.chromID, rec.start, b.startChrom, b.startBase) < 0 {
				b.startChrom, b.startBase = rec.chromID, rec.start
			}
			if cmpChromPos(rec.chromID, rec.end, b.endChrom, b.endBase) > 0 {
				b.endChrom, b.endBase = rec.chromID, rec.end
			}
		}
		raw := w.buf.Bytes()
		if len(raw) > maxRaw {
			maxRaw = len(raw)
		}
		stored := raw
		if compress {
			var zbuf bytes.Buffer
			zw := zlib.NewWriter(&zbuf)
			_, err := zw.Write(raw)
			require.NoError(t, err)
			require.NoError(t, zw.Close())
			stored = zbuf.Bytes()
		}
		b.desc = FileOffsetSize{Offset: base + uint64(region.Len()), Size: uint64(len(stored))}
		region.Write(stored)
		bounds = append(bounds, b)
	}
	return region.Bytes(), bounds, maxRaw
}

// buildCIRTree serializes an interval index over the given blocks, starting
// at the absolute file offset base.
func buildCIRTree(blocks []blockBounds, itemCount uint64, fileSize uint64, split bool, base uint64, order binary.ByteOrder) []byte {
	w := &fixtureWriter{order: order}
	startChrom, startBase := uint32(0), uint32(0)
	endChrom, endBase := uint32(0), uint32(0)
	if len(blocks) > 0 {
		startChrom, startBase = blocks[0].startChrom, blocks[0].startBase
		last := blocks[len(blocks)-1]
		endChrom, endBase = last.endChrom, last.endBase
	}
	w.raw(orientMagic(cirMagic, order))
	w.u32(64) // blockSize
	w.u64(itemCount)
	w.u32(startChrom)
	w.u32(startBase)
	w.u32(endChrom)
	w.u32(endBase)
	w.u64(fileSize)
	w.u32(64) // itemsPerSlot
	w.pad(4)

	writeLeaf := func(entries []blockBounds) {
		w.u8(1)
		w.u8(0)
		w.u16(uint16(len(entries)))
		for _, b := range entries {
			w.u32(b.startChrom)
			w.u32(b.startBase)
			w.u32(b.endChrom)
			w.u32(b.endBase)
			w.u64(b.desc.Offset)
			w.u64(b.desc.Size)
		}
	}

	if !split || len(blocks) < 2 {
		writeLeaf(blocks)
		return w.buf.Bytes()
	}

	half := len(blocks) / 2
	left, right := blocks[:half], blocks[half:]
	rootSize := uint64(4 + 2*24)
	leftOffset := base + 48 + rootSize
	rightOffset := leftOffset + uint64(4+len(left)*32)
	w.u8(0)
	w.u8(0)
	w.u16(2)
	w.u32(left[0].startChrom)
	w.u32(left[0].startBase)
	w.u32(left[len(left)-1].endChrom)
	w.u32(left[len(left)-1].endBase)
	w.u64(leftOffset)
	w.u32(right[0].startChrom)
	w.u32(right[0].startBase)
	w.u32(right[len(right)-1].endChrom)
	w.u32(right[len(right)-1].endBase)
	w.u64(rightOffset)
	writeLeaf(left)
	writeLeaf(right)
	return w.buf.Bytes()
}

// orientMagic returns the on-disk bytes for a signature under the given
// order: the constant itself for big-endian, its reversal for little.
func orientMagic(sig [4]byte, order binary.ByteOrder) []byte {
	out := make([]byte, 4)
	order.PutUint32(out, binary.BigEndian.Uint32(sig[:]))
	return out
}

// buildBigBed assembles a complete BigBed image.  Records must be grouped
// by chromosome id and sorted by start within each group, as the real
// format requires.
func buildBigBed(t *testing.T, chroms []testChrom, records []testRecord, opts fixtureOpts) []byte {
	order := opts.order
	if order == nil {
		order = binary.LittleEndian
	}
	keySize := opts.keySize
	if keySize == 0 {
		for _, c := range chroms {
			if len(c.name) > keySize {
				keySize = len(c.name)
			}
		}
	}

	chromTreeOffset := uint64(64 + 24*len(opts.zoomLevels))
	bpt := buildBPTree(chroms, keySize, opts.splitChromTree, chromTreeOffset, order)
	dataOffset := chromTreeOffset + uint64(len(bpt))
	blockRegion, blocks, maxRaw := encodeBlocks(t, records, opts.recordsPerBlock, opts.compress, dataOffset, order)
	indexOffset := dataOffset + uint64(len(blockRegion))

	uncompressBufSize := uint32(0)
	if opts.compress {
		uncompressBufSize = uint32(maxRaw)
	}
	fileSize := indexOffset // close enough for the header field the decoder never checks
	cir := buildCIRTree(blocks, uint64(len(records)), fileSize, opts.splitCIRTree, indexOffset, order)

	w := &fixtureWriter{order: order}
	w.raw(orientMagic(bigBedMagic, order))
	w.u16(4) // version
	w.u16(uint16(len(opts.zoomLevels)))
	w.u64(chromTreeOffset)
	w.u64(dataOffset)
	w.u64(indexOffset)
	w.u16(3) // fieldCount
	w.u16(3) // definedFieldCount
	w.u64(0) // asOffset
	w.u64(0) // totalSummaryOffset
	w.u32(uncompressBufSize)
	w.u64(0) // extensionOffset
	for _, zl := range opts.zoomLevels {
		w.u32(zl.ReductionLevel)
		w.u32(zl.Reserved)
		w.u64(zl.DataOffset)
		w.u64(zl.IndexOffset)
	}
	require.Equal(t, int(chromTreeOffset), w.buf.Len())
	w.raw(bpt)
	w.raw(blockRegion)
	w.raw(cir)
	return w.buf.Bytes()
}

func openFixture(t *testing.T, img []byte) *BigBed {
	bb, err := New(bytes.NewReader(img))
	require.NoError(t, err)
	return bb
}
