// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bigbed

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/log"
)

// bigBedMagic introduces the outer file header.
var bigBedMagic = [4]byte{0x87, 0x89, 0xF2, 0xEB}

// ZoomLevel describes one reduced-resolution summary of the data.  The
// levels are parsed so the header can be walked past them, but this package
// never traverses their data or index regions.
type ZoomLevel struct {
	ReductionLevel uint32
	Reserved       uint32
	DataOffset     uint64
	IndexOffset    uint64
}

// BEDLine is one decoded interval record: the numeric chromosome id, the
// 0-based half-open interval, and any tab-delimited extra columns carried
// verbatim from the source BED ("" when the record had none).
type BEDLine struct {
	ChromID uint32
	Start   uint32
	End     uint32
	Rest    string
}

// BigBed provides random access to one open BigBed file.  It exclusively
// owns the underlying reader; the read cursor is shared mutable state, so a
// BigBed must not be used from more than one goroutine without external
// locking.
type BigBed struct {
	r *binReader

	// ByteOrder is the outer header's byte order, detected from the leading
	// magic signature.  The two tree regions detect their own orders
	// independently (in practice all three agree).
	ByteOrder           binary.ByteOrder
	Version             uint16
	ZoomLevels          uint16
	ChromTreeOffset     uint64
	UnzoomedDataOffset  uint64
	UnzoomedIndexOffset uint64
	FieldCount          uint16
	DefinedFieldCount   uint16
	AsOffset            uint64
	TotalSummaryOffset  uint64
	// UncompressBufSize is the declared size of the largest decompressed
	// data block; zero means records are stored uncompressed.
	UncompressBufSize int
	ExtensionOffset   uint64
	LevelList         []ZoomLevel

	// Extension header fields, present only when ExtensionOffset is nonzero.
	ExtensionSize        *uint16
	ExtraIndexCount      *uint16
	ExtraIndexListOffset *uint64

	chromTree *bpTree
	cir       *cirTree // lazily attached on first interval query
	inflate   *inflater
}

// New opens a BigBed from a seekable byte source.  The header, zoom-level
// table, and chromosome B+ tree header are parsed eagerly; the interval
// index is left unread until the first query needs it.
func New(r io.ReadSeeker) (*BigBed, error) {
	br := &binReader{r: r}
	var magic [4]byte
	if err := br.readFull(magic[:]); err != nil {
		return nil, err
	}
	order, err := resolveByteOrder(magic, bigBedMagic)
	if err != nil {
		return nil, err
	}
	bb := &BigBed{r: br, ByteOrder: order}
	if bb.Version, err = br.u16(order); err != nil {
		return nil, err
	}
	if bb.ZoomLevels, err = br.u16(order); err != nil {
		return nil, err
	}
	if bb.ChromTreeOffset, err = br.u64(order); err != nil {
		return nil, err
	}
	if bb.UnzoomedDataOffset, err = br.u64(order); err != nil {
		return nil, err
	}
	if bb.UnzoomedIndexOffset, err = br.u64(order); err != nil {
		return nil, err
	}
	if bb.FieldCount, err = br.u16(order); err != nil {
		return nil, err
	}
	if bb.DefinedFieldCount, err = br.u16(order); err != nil {
		return nil, err
	}
	if bb.AsOffset, err = br.u64(order); err != nil {
		return nil, err
	}
	if bb.TotalSummaryOffset, err = br.u64(order); err != nil {
		return nil, err
	}
	bufSize, err := br.u32(order)
	if err != nil {
		return nil, err
	}
	if bb.UncompressBufSize, err = toInt(uint64(bufSize)); err != nil {
		return nil, err
	}
	if bb.ExtensionOffset, err = br.u64(order); err != nil {
		return nil, err
	}

	bb.LevelList = make([]ZoomLevel, 0, bb.ZoomLevels)
	for i := 0; i < int(bb.ZoomLevels); i++ {
		var zl ZoomLevel
		if zl.ReductionLevel, err = br.u32(order); err != nil {
			return nil, err
		}
		if zl.Reserved, err = br.u32(order); err != nil {
			return nil, err
		}
		if zl.DataOffset, err = br.u64(order); err != nil {
			return nil, err
		}
		if zl.IndexOffset, err = br.u64(order); err != nil {
			return nil, err
		}
		bb.LevelList = append(bb.LevelList, zl)
	}

	if bb.ExtensionOffset != 0 {
		if _, err = br.seek(int64(bb.ExtensionOffset), io.SeekStart); err != nil {
			return nil, err
		}
		extSize, err := br.u16(order)
		if err != nil {
			return nil, err
		}
		extraCount, err := br.u16(order)
		if err != nil {
			return nil, err
		}
		extraListOffset, err := br.u64(order)
		if err != nil {
			return nil, err
		}
		bb.ExtensionSize = &extSize
		bb.ExtraIndexCount = &extraCount
		bb.ExtraIndexListOffset = &extraListOffset
	}

	if _, err = br.seek(int64(bb.ChromTreeOffset), io.SeekStart); err != nil {
		return nil, err
	}
	if bb.chromTree, err = readBPTree(br); err != nil {
		return nil, err
	}
	return bb, nil
}

// Chroms returns every chromosome in the file.  Entry order is unspecified;
// the set is stable across calls.
func (bb *BigBed) Chroms() ([]Chrom, error) {
	return bb.chromTree.chromList(bb.r)
}

// FindChrom resolves a chromosome name to its entry, or returns (nil, nil)
// when the name is not in the file.  Names longer than the B+ tree's key
// width yield a *BadKeyError.
func (bb *BigBed) FindChrom(name string) (*Chrom, error) {
	return bb.chromTree.find(name, bb.r)
}

// attachIndex parses the interval index header on first use and memoizes it
// for the file's remaining lifetime.
func (bb *BigBed) attachIndex() error {
	if bb.cir != nil {
		return nil
	}
	if _, err := bb.r.seek(int64(bb.UnzoomedIndexOffset), io.SeekStart); err != nil {
		return err
	}
	cir, err := readCIRTree(bb.r)
	if err != nil {
		return err
	}
	log.Debug.Printf("bigbed: attached interval index at offset %d (%d items)",
		bb.UnzoomedIndexOffset, cir.itemCount)
	bb.cir = cir
	return nil
}

// OverlappingBlocks returns the descriptors of every data block that may
// contain records overlapping (chromID, [start, end)).  The result is a
// superset at block granularity.
func (bb *BigBed) OverlappingBlocks(chromID, start, end uint32) ([]FileOffsetSize, error) {
	if err := bb.attachIndex(); err != nil {
		return nil, err
	}
	return bb.cir.findBlocks(chromID, start, end, bb.r)
}

// Query returns the records on chrom overlapping [start, end), at most
// maxItems of them (0 means unlimited), in block-traversal order.  When
// chrom does not resolve as given — it is absent, or longer than the B+
// tree's key width — it is retried once with its first three bytes
// stripped, accommodating the common "chr" prefix convention; a second
// miss is a *BadChromError naming the original input.
func (bb *BigBed) Query(chrom string, start, end uint32, maxItems int) ([]BEDLine, error) {
	chromData, err := bb.FindChrom(chrom)
	if err != nil {
		// A name wider than the stored keys can still match once the
		// "chr" prefix comes off; anything else is fatal.
		if _, ok := err.(*BadKeyError); !ok {
			return nil, err
		}
		chromData = nil
	}
	if chromData == nil && len(chrom) > 3 {
		if chromData, err = bb.FindChrom(chrom[3:]); err != nil {
			return nil, err
		}
	}
	if chromData == nil {
		return nil, &BadChromError{Name: chrom}
	}
	chromID := chromData.ID

	// Pad the index query by one base on each side: the index's overlap
	// test excludes touching boundaries, which would miss zero-length
	// insertions sitting exactly on a query boundary.  The decoder below
	// re-checks exact overlap against the unpadded range.
	paddedStart := start
	if start > 0 {
		paddedStart = start - 1
	}
	paddedEnd := end + 1
	blocks, err := bb.OverlappingBlocks(chromID, paddedStart, paddedEnd)
	if err != nil {
		return nil, err
	}

	if bb.UncompressBufSize > 0 && bb.inflate == nil {
		bb.inflate = newInflater(bb.UncompressBufSize)
	}

	var lines []BEDLine
	err = fetchBlocks(bb.r, blocks, func(block FileOffsetSize, raw []byte) error {
		decoded := raw
		if bb.UncompressBufSize > 0 {
			var derr error
			if decoded, derr = bb.inflate.inflate(raw, block.Offset); derr != nil {
				return derr
			}
		}
		lines = decodeRecords(decoded, bb.ByteOrder, chromID, start, end, maxItems, lines)
		if maxItems > 0 && len(lines) >= maxItems {
			return errStopFetch
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lines, nil
}

// decodeRecords walks one decoded block and appends matching records to
// lines.  Each record is a 12-byte fixed header (chromosome id, start, end)
// followed by a NUL-terminated optional rest field; with no NUL remaining,
// the rest runs to the end of the block.
func decodeRecords(buf []byte, order binary.ByteOrder, chromID, qStart, qEnd uint32, maxItems int, lines []BEDLine) []BEDLine {
	i := 0
	for i+12 <= len(buf) {
		chr := order.Uint32(buf[i : i+4])
		s := order.Uint32(buf[i+4 : i+8])
		e := order.Uint32(buf[i+8 : i+12])
		i += 12
		rest := ""
		if j := bytes.IndexByte(buf[i:], 0); j >= 0 {
			rest = string(buf[i : i+j])
			i += j + 1
		} else {
			rest = string(buf[i:])
			i = len(buf)
		}
		// Exact overlap re-check: the index only vouches at block
		// granularity, and its query range was padded.  Zero-length
		// insertions count when they sit on either query boundary.
		if chr != chromID {
			continue
		}
		if !((s < qEnd && e > qStart) || (s == e && (s == qEnd || e == qStart))) {
			continue
		}
		lines = append(lines, BEDLine{ChromID: chr, Start: s, End: e, Rest: rest})
		if maxItems > 0 && len(lines) >= maxItems {
			break
		}
	}
	return lines
}
