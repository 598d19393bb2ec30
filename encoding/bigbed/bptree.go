package bigbed

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/grailbio/base/errors"
)

// bptMagic introduces the chromosome B+ tree region.
var bptMagic = [4]byte{0x78, 0xCA, 0x8C, 0x91}

// chromValSize is the fixed width of a B+ tree leaf value: a 4-byte
// chromosome id followed by a 4-byte chromosome length.
const chromValSize = 8

// Chrom is one entry of the chromosome B+ tree.  Name is the key exactly as
// stored, including any trailing NUL padding out to the tree's key width.
type Chrom struct {
	Name string
	ID   uint32
	Size uint32
}

// bpTree holds the header of the on-disk chromosome B+ tree.  The node
// blocks themselves are never materialized; both traversals below re-read
// them through the shared reader.
type bpTree struct {
	order      binary.ByteOrder
	blockSize  uint32
	keySize    int
	itemCount  uint64
	rootOffset int64
}

// readBPTree parses a B+ tree header at the reader's current position.  The
// tree's byte order is fixed here, from its own magic signature, for every
// later traversal.
func readBPTree(r *binReader) (*bpTree, error) {
	var magic [4]byte
	if err := r.readFull(magic[:]); err != nil {
		return nil, err
	}
	order, err := resolveByteOrder(magic, bptMagic)
	if err != nil {
		return nil, err
	}
	t := &bpTree{order: order}
	if t.blockSize, err = r.u32(order); err != nil {
		return nil, err
	}
	keySize, err := r.u32(order)
	if err != nil {
		return nil, err
	}
	if t.keySize, err = toInt(uint64(keySize)); err != nil {
		return nil, err
	}
	valSize, err := r.u32(order)
	if err != nil {
		return nil, err
	}
	if valSize != chromValSize {
		return nil, errors.E("bigbed: chromosome b+ tree value size must be 8, got", valSize)
	}
	if t.itemCount, err = r.u64(order); err != nil {
		return nil, err
	}
	// 8 reserved bytes sit between the header and the root block.
	if t.rootOffset, err = r.seek(8, io.SeekCurrent); err != nil {
		return nil, err
	}
	return t, nil
}

// chromList returns every chromosome stored in the tree.  Blocks are visited
// via an explicit work list; sibling order is an implementation accident, so
// the result order is unspecified beyond "each leaf entry appears once".
func (t *bpTree) chromList(r *binReader) ([]Chrom, error) {
	var chroms []Chrom
	keyBuf := make([]byte, t.keySize)
	valBuf := make([]byte, chromValSize)
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
		if isLeaf {
			for i := 0; i < count; i++ {
				if err := r.readFull(keyBuf); err != nil {
					return nil, err
				}
				if err := r.readFull(valBuf); err != nil {
					return nil, err
				}
				chroms = append(chroms, Chrom{
					Name: string(keyBuf),
					ID:   t.order.Uint32(valBuf[0:4]),
					Size: t.order.Uint32(valBuf[4:8]),
				})
			}
		} else {
			for i := 0; i < count; i++ {
				// Internal keys only guide point lookups; skip them here.
				if _, err := r.seek(int64(t.keySize), io.SeekCurrent); err != nil {
					return nil, err
				}
				child, err := r.u64(t.order)
				if err != nil {
					return nil, err
				}
				pending = append(pending, int64(child))
			}
		}
	}
	return chroms, nil
}

// find resolves one chromosome name to its tree entry.  A miss is a normal
// (nil, nil) outcome; only a name wider than the tree's key is an error.
// Comparison is defined on the NUL-padded key, so find("chr2") and
// find("chr2\x00") resolve identically on a 5-byte-key tree.
func (t *bpTree) find(name string, r *binReader) (*Chrom, error) {
	if len(name) > t.keySize {
		return nil, &BadKeyError{Name: name, KeySize: t.keySize}
	}
	key := make([]byte, t.keySize)
	copy(key, name)

	keyBuf := make([]byte, t.keySize)
	valBuf := make([]byte, chromValSize)
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
		if isLeaf {
			for i := 0; i < count; i++ {
				if err := r.readFull(keyBuf); err != nil {
					return nil, err
				}
				if err := r.readFull(valBuf); err != nil {
					return nil, err
				}
				if bytes.Equal(keyBuf, key) {
					return &Chrom{
						Name: string(keyBuf),
						ID:   t.order.Uint32(valBuf[0:4]),
						Size: t.order.Uint32(valBuf[4:8]),
					}, nil
				}
			}
			continue
		}
		// Guided descent: each internal entry's key is the smallest key in
		// its subtree, so the query belongs to the child immediately before
		// the first key that compares greater.
		if _, err := r.seek(int64(t.keySize), io.SeekCurrent); err != nil {
			return nil, err
		}
		prevChild, err := r.u64(t.order)
		if err != nil {
			return nil, err
		}
		for i := 1; i < count; i++ {
			if err := r.readFull(keyBuf); err != nil {
				return nil, err
			}
			if bytes.Compare(key, keyBuf) < 0 {
				pending = append(pending, int64(prevChild))
				break
			}
			if prevChild, err = r.u64(t.order); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

// readNodeHeader decodes the 4-byte header shared by B+ tree and CIR tree
// node blocks: a leaf flag, a reserved byte, and a child count.
func readNodeHeader(r *binReader, order binary.ByteOrder) (isLeaf bool, reserved uint8, count int, err error) {
	leaf, err := r.u8()
	if err != nil {
		return false, 0, 0, err
	}
	if reserved, err = r.u8(); err != nil {
		return false, 0, 0, err
	}
	n, err := r.u16(order)
	if err != nil {
		return false, 0, 0, err
	}
	return leaf != 0, reserved, int(n), nil
}
