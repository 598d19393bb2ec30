package bigbed

import "fmt"

// BadSigError is returned when a 4-byte magic signature matches neither the
// expected constant nor its byte reversal.
type BadSigError struct {
	Expected [4]byte
	Received [4]byte
}

func (e *BadSigError) Error() string {
	return fmt.Sprintf("bad file signature: expected % x, received % x", e.Expected, e.Received)
}

// BadChromError is returned by Query when a chromosome name cannot be
// resolved, even after retrying without a leading "chr"-style prefix.
type BadChromError struct {
	Name string
}

func (e *BadChromError) Error() string {
	return fmt.Sprintf("chromosome %q not found", e.Name)
}

// BadKeyError is returned when a chromosome name is longer than the B+
// tree's fixed key width and so cannot possibly be an on-disk key.
type BadKeyError struct {
	Name    string
	KeySize int
}

func (e *BadKeyError) Error() string {
	return fmt.Sprintf("chromosome %q not found (exceeds max key size %d)", e.Name, e.KeySize)
}

// DecompressError is returned when a data block fails to inflate, or
// inflates to more bytes than the file header's declared buffer size.
type DecompressError struct {
	Offset uint64
	Reason string
}

func (e *DecompressError) Error() string {
	return fmt.Sprintf("decompressing block at offset %d: %s", e.Offset, e.Reason)
}
