package bigbed

import (
	"bytes"
	"io"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/klauspost/compress/zlib"
)

const maxInt = int(^uint(0) >> 1)

// toInt guards the uint64 sizes and offsets the file declares before they
// are used as Go slice lengths or seek targets.
func toInt(v uint64) (int, error) {
	if v > uint64(maxInt) {
		return 0, errors.E("bigbed: on-disk size does not fit in int:", v)
	}
	return int(v), nil
}

// splitContiguousRun splits blocks into a leading run of descriptors that
// are contiguous on disk (each block starts where the previous one ends)
// and the remainder.  The run is never empty when blocks is non-empty.
func splitContiguousRun(blocks []FileOffsetSize) (run, rest []FileOffsetSize) {
	for i := 0; i+1 < len(blocks); i++ {
		if blocks[i+1].Offset != blocks[i].Offset+blocks[i].Size {
			return blocks[:i+1], blocks[i+1:]
		}
	}
	return blocks, nil
}

// errStopFetch, returned by a fetchBlocks callback, ends the walk early:
// no further runs are read, and fetchBlocks reports success.
var errStopFetch = errors.E("bigbed: stop fetching blocks")

// fetchBlocks reads the raw bytes of every listed block and hands each
// block's slice to fn, in ascending offset order.  Contiguous blocks are
// coalesced into a single seek+read covering the whole run, then sliced
// apart, so a query over n adjacent blocks costs one read rather than n.
// fn may return errStopFetch to skip the remaining blocks and runs.
//
// The CIR traversal's sibling visitation order is unspecified, so the list
// is sorted by offset here before any coalescing decision is made.
func fetchBlocks(r *binReader, blocks []FileOffsetSize, fn func(block FileOffsetSize, raw []byte) error) error {
	sorted := make([]FileOffsetSize, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	var merged []byte
	remaining := sorted
	for len(remaining) > 0 {
		run, rest := splitContiguousRun(remaining)
		remaining = rest

		mergedOffset := run[0].Offset
		last := run[len(run)-1]
		mergedSize, err := toInt(last.Offset + last.Size - mergedOffset)
		if err != nil {
			return err
		}
		if cap(merged) < mergedSize {
			merged = make([]byte, mergedSize)
		}
		merged = merged[:mergedSize]
		if _, err := r.seek(int64(mergedOffset), io.SeekStart); err != nil {
			return err
		}
		if err := r.readFull(merged); err != nil {
			return err
		}
		for _, block := range run {
			begin := block.Offset - mergedOffset
			if err := fn(block, merged[begin:begin+block.Size]); err != nil {
				if err == errStopFetch {
					return nil
				}
				return err
			}
		}
	}
	return nil
}

// inflater decompresses zlib-encoded data blocks into a single reused
// buffer sized to the file's declared uncompressBufSize.  The underlying
// stream state is explicitly reset between blocks; each block is an
// independent zlib stream.
type inflater struct {
	buf []byte
	src bytes.Reader
	zr  io.ReadCloser
}

func newInflater(bufSize int) *inflater {
	return &inflater{buf: make([]byte, bufSize)}
}

// inflate decompresses raw and returns a slice of the shared buffer holding
// exactly the bytes produced.  The result is only valid until the next
// call.  A block that inflates past the declared buffer size is a hard
// error, not a truncation.
func (z *inflater) inflate(raw []byte, blockOffset uint64) ([]byte, error) {
	z.src.Reset(raw)
	if z.zr == nil {
		zr, err := zlib.NewReader(&z.src)
		if err != nil {
			return nil, &DecompressError{Offset: blockOffset, Reason: err.Error()}
		}
		z.zr = zr
	} else if err := z.zr.(zlib.Resetter).Reset(&z.src, nil); err != nil {
		return nil, &DecompressError{Offset: blockOffset, Reason: err.Error()}
	}

	n := 0
	for n < len(z.buf) {
		m, err := z.zr.Read(z.buf[n:])
		n += m
		if err == io.EOF {
			return z.buf[:n], nil
		}
		if err != nil {
			return nil, &DecompressError{Offset: blockOffset, Reason: err.Error()}
		}
	}
	// The buffer is full; any further output means the file's declared
	// uncompressBufSize lied about the largest block.
	var probe [1]byte
	if m, err := z.zr.Read(probe[:]); m > 0 || (err != nil && err != io.EOF) {
		return nil, &DecompressError{Offset: blockOffset, Reason: "block exceeds declared decompression buffer size"}
	}
	return z.buf, nil
}
