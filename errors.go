package w25q

import (
	"errors"
	"fmt"
)

// Bus errors propagate to callers verbatim and are never retried. The
// errors below are the driver's own argument validation failures; each
// carries the offending value.
var ErrZeroLengthProgram = errors.New("w25q: zero-length program data")

// DataLengthError reports program data longer than one 256-byte page.
type DataLengthError int

func (e DataLengthError) Error() string {
	return fmt.Sprintf("w25q: program data length %d exceeds page size %d", int(e), PageSize)
}

// PageCrossError reports a program whose data would cross the 256-byte page
// boundary containing Addr. The chip would silently wrap within the page
// rather than advance, corrupting the start of the page.
type PageCrossError struct {
	Addr uint32
	Len  int
}

func (e PageCrossError) Error() string {
	return fmt.Sprintf("w25q: program of %d bytes at %#x crosses page boundary %#x",
		e.Len, e.Addr, aligndown(e.Addr, PageSize)+PageSize)
}

// AlignmentError reports an erase address not aligned to the erase granule.
type AlignmentError struct {
	Addr  uint32
	Align uint32
}

func (e AlignmentError) Error() string {
	return fmt.Sprintf("w25q: erase address %#x not aligned to %d-byte boundary", e.Addr, e.Align)
}

// AddressRangeError reports an access beyond the 16 MiB device.
type AddressRangeError uint32

func (e AddressRangeError) Error() string {
	return fmt.Sprintf("w25q: address %#x outside 16 MiB device range", uint32(e))
}
