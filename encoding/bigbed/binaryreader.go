package bigbed

import (
	"encoding/binary"
	"io"
)

// binReader provides fixed-width integer reads over a seekable byte source.
// BigBed stores every multi-byte integer in one byte order per sub-structure,
// so the order is passed per call rather than fixed at construction; each
// structure (outer header, B+ tree, CIR tree) detects its own order from its
// own magic signature and threads it through every read in its scope.
type binReader struct {
	r   io.ReadSeeker
	buf [8]byte
}

func (b *binReader) readFull(p []byte) error {
	_, err := io.ReadFull(b.r, p)
	return err
}

func (b *binReader) u8() (uint8, error) {
	if err := b.readFull(b.buf[:1]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

func (b *binReader) u16(order binary.ByteOrder) (uint16, error) {
	if err := b.readFull(b.buf[:2]); err != nil {
		return 0, err
	}
	return order.Uint16(b.buf[:2]), nil
}

func (b *binReader) u32(order binary.ByteOrder) (uint32, error) {
	if err := b.readFull(b.buf[:4]); err != nil {
		return 0, err
	}
	return order.Uint32(b.buf[:4]), nil
}

func (b *binReader) u64(order binary.ByteOrder) (uint64, error) {
	if err := b.readFull(b.buf[:8]); err != nil {
		return 0, err
	}
	return order.Uint64(b.buf[:8]), nil
}

func (b *binReader) seek(offset int64, whence int) (int64, error) {
	return b.r.Seek(offset, whence)
}

// resolveByteOrder compares a magic signature read from the file against the
// expected constant.  An exact match means the structure was written
// big-endian, a byte-reversed match means little-endian, and anything else
// means this is not the structure we were pointed at.
func resolveByteOrder(received, expected [4]byte) (binary.ByteOrder, error) {
	if received == expected {
		return binary.BigEndian, nil
	}
	reversed := [4]byte{expected[3], expected[2], expected[1], expected[0]}
	if received == reversed {
		return binary.LittleEndian, nil
	}
	return nil, &BadSigError{Expected: expected, Received: received}
}
