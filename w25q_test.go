package w25q

import (
	"strings"
	"testing"
)

func TestPutAddr24(t *testing.T) {
	var b [3]byte
	putAddr24(b[:], 0xABCDEF)
	if b != [3]byte{0xAB, 0xCD, 0xEF} {
		t.Errorf("bad packing: %x", b)
	}
	putAddr24(b[:], 0x000001)
	if b != [3]byte{0x00, 0x00, 0x01} {
		t.Errorf("bad packing: %x", b)
	}
}

func TestCheckRange(t *testing.T) {
	if err := checkRange(FlashSize-1, 1); err != nil {
		t.Error("last byte must be addressable:", err)
	}
	if err := checkRange(FlashSize-1, 2); err == nil {
		t.Error("read past device end must be rejected")
	}
	if err := checkRange(FlashSize, 0); err == nil {
		t.Error("address past device end must be rejected")
	}
	// Lengths near the 32-bit boundary must not wrap the check.
	if err := checkRange(0xFFFFFF, 1<<28); err == nil {
		t.Error("huge length must be rejected")
	}
}

func TestValidationErrorsCarryValues(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want string
	}{
		{DataLengthError(257), "257"},
		{PageCrossError{Addr: 0x10, Len: 256}, "at 0x10 "},
		{AlignmentError{Addr: 0x123, Align: SectorSize}, "address 0x123 "},
		{AddressRangeError(0x1000000), "0x1000000"},
	} {
		if got := tc.err.Error(); !strings.Contains(got, tc.want) {
			t.Errorf("%T message %q does not carry offending value %q", tc.err, got, tc.want)
		}
	}
}
