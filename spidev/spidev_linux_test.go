package spidev

import (
	"testing"
	"unsafe"
)

func TestIocTransferLayout(t *testing.T) {
	// Must match struct spi_ioc_transfer exactly or the kernel misreads it.
	if got := unsafe.Sizeof(iocTransfer{}); got != 32 {
		t.Fatalf("iocTransfer size = %d, want 32", got)
	}
}

func TestIocMessage(t *testing.T) {
	if got := iocMessage(1); got != 0x40206b00 {
		t.Errorf("iocMessage(1) = %#x, want 0x40206b00", got)
	}
	if got := iocMessage(2); got != 0x40406b00 {
		t.Errorf("iocMessage(2) = %#x, want 0x40406b00", got)
	}
	// Out-of-range counts degrade to the zero-transfer number.
	if got := iocMessage(-1); got != 0x40006b00 {
		t.Errorf("iocMessage(-1) = %#x, want 0x40006b00", got)
	}
	if got := iocMessage(1 << 16); got != 0x40006b00 {
		t.Errorf("iocMessage(big) = %#x, want 0x40006b00", got)
	}
}
