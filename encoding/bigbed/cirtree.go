package bigbed

import (
	"encoding/binary"
	"io"
)

// cirMagic introduces the chromosome-interval R-tree ("CIR tree") region.
var cirMagic = [4]byte{0x24, 0x68, 0xAC, 0xE0}

// FileOffsetSize locates one contiguous data block on disk.  It is the unit
// the CIR tree indexes at: a block holds zero or more encoded records, so a
// range query's result is a superset and callers must still filter decoded
// records by exact interval.
type FileOffsetSize struct {
	Offset uint64
	Size   uint64
}

// cirTree holds the header of the on-disk interval index.  Like bpTree, the
// node blocks are re-read through the shared reader on every query.
type cirTree struct {
	order        binary.ByteOrder
	blockSize    uint32
	itemCount    uint64
	startChromIx uint32
	startBase    uint32
	endChromIx   uint32
	endBase      uint32
	fileSize     uint64
	itemsPerSlot uint32
	rootOffset   int64
}

// readCIRTree parses a CIR tree header at the reader's current position,
// fixing the tree's byte order from its own magic signature.
func readCIRTree(r *binReader) (*cirTree, error) {
	var magic [4]byte
	if err := r.readFull(magic[:]); err != nil {
		return nil, err
	}
	order, err := resolveByteOrder(magic, cirMagic)
	if err != nil {
		return nil, err
	}
	t := &cirTree{order: order}
	if t.blockSize, err = r.u32(order); err != nil {
		return nil, err
	}
	if t.itemCount, err = r.u64(order); err != nil {
		return nil, err
	}
	if t.startChromIx, err = r.u32(order); err != nil {
		return nil, err
	}
	if t.startBase, err = r.u32(order); err != nil {
		return nil, err
	}
	if t.endChromIx, err = r.u32(order); err != nil {
		return nil, err
	}
	if t.endBase, err = r.u32(order); err != nil {
		return nil, err
	}
	if t.fileSize, err = r.u64(order); err != nil {
		return nil, err
	}
	if t.itemsPerSlot, err = r.u32(order); err != nil {
		return nil, err
	}
	// 4 reserved bytes sit between the header and the root block.
	if t.rootOffset, err = r.seek(4, io.SeekCurrent); err != nil {
		return nil, err
	}
	return t, nil
}

// cirOverlaps reports whether the query range intersects a node's bounding
// range.  Both are intervals over the composite key (chromosome id, base),
// ordered lexicographically with the chromosome id as the primary key; the
// test is open at both touching boundaries, which is why Query pads its
// range by one base before asking the index.
func cirOverlaps(qChrom, qStart, qEnd, startChrom, startBase, endChrom, endBase uint32) bool {
	return cmpChromPos(qChrom, qStart, endChrom, endBase) < 0 &&
		cmpChromPos(qChrom, qEnd, startChrom, startBase) > 0
}

func cmpChromPos(chromA, posA, chromB, posB uint32) int {
	if chromA != chromB {
		if chromA < chromB {
			return -1
		}
		return 1
	}
	if posA != posB {
		if posA < posB {
			return -1
		}
		return 1
	}
	return 0
}

// findBlocks returns the descriptors of every data block whose bounding
// range overlaps (chromID, [start, end)).  Traversal uses an explicit work
// list of pending node offsets; child bounding ranges prune the descent, so
// subtrees entirely outside the query are never read.
func (t *cirTree) findBlocks(chromID, start, end uint32, r *binReader) ([]FileOffsetSize, error) {
	var blocks []FileOffsetSize
	pending := []int64{t.rootOffset}
	for len(pending) > 0 {
		offset := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if _, err := r.seek(offset, io.SeekStart); err != nil {
			return nil, err
		}
		isLeaf, _, count, err := readNodeHeader(r, t.order)
		if err != nil {
			return nil, err
		}
		for i := 0; i < count; i++ {
			startChrom, err := r.u32(t.order)
			if err != nil {
				return nil, err
			}
			startBase, err := r.u32(t.order)
			if err != nil {
				return nil, err
			}
			endChrom, err := r.u32(t.order)
			if err != nil {
				return nil, err
			}
			endBase, err := r.u32(t.order)
			if err != nil {
				return nil, err
			}
			if isLeaf {
				blockOffset, err := r.u64(t.order)
				if err != nil {
					return nil, err
				}
				blockSize, err := r.u64(t.order)
				if err != nil {
					return nil, err
				}
				if cirOverlaps(chromID, start, end, startChrom, startBase, endChrom, endBase) {
					blocks = append(blocks, FileOffsetSize{Offset: blockOffset, Size: blockSize})
				}
			} else {
				child, err := r.u64(t.order)
				if err != nil {
					return nil, err
				}
				if cirOverlaps(chromID, start, end, startChrom, startBase, endChrom, endBase) {
					pending = append(pending, int64(child))
				}
			}
		}
	}
	return blocks, nil
}
