// Package spidev exposes a Linux /dev/spidevN.N device as a half-duplex SPI
// endpoint suitable for the w25q driver. The kernel's automatic chip select
// is disabled (SPI_NO_CS) so that the driver can hold a GPIO chip select low
// across the multiple exchanges of one flash command.
//
// See Linux "include/uapi/linux/spi/spidev.h" and
// "Documentation/spi/spidev.rst".
package spidev

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Various ioctl numbers.
const (
	iocWrMode        = 0x40016b01
	iocWrBitsPerWord = 0x40016b03
	iocRdMaxSpeedHz  = 0x80046b04
	iocWrMaxSpeedHz  = 0x40046b04
)

// Mode bits, a subset of the spidev SPI_* mode flags.
const (
	modeCPHA uint8 = 1 << iota
	modeCPOL
	_ // CS_HIGH
	_ // LSB_FIRST
	_ // THREE_WIRE
	_ // LOOP
	modeNoCS
)

// iocTransfer mirrors struct spi_ioc_transfer.
type iocTransfer struct {
	txBuf          uint64
	rxBuf          uint64
	length         uint32
	speedHz        uint32
	delayUsecs     uint16
	bitsPerWord    uint8
	csChange       uint8
	txNBits        uint8
	rxNBits        uint8
	wordDelayUsecs uint8
	pad            uint8
}

// iocMessage is the ioctl number for n chained transfers.
func iocMessage(n int) uint32 {
	const (
		sizeBits  = 14
		sizeShift = 16
	)
	size := uint32(n) * uint32(unsafe.Sizeof(iocTransfer{}))
	if n < 0 || size > (1<<sizeBits) {
		return iocMessage(0)
	}
	return 0x40006b00 | (size << sizeShift)
}

// SPI is an exclusive handle on one spidev character device. It implements
// the w25q Bus interface: Write clocks bytes out, Read clocks zeroes out
// while capturing the returned bytes. Neither call touches chip select.
type SPI struct {
	f *os.File
}

// Open opens a spidev device such as "/dev/spidev0.0" and configures it for
// the W25Q128JV: SPI Mode 0, MSB-first, 8-bit words, kernel CS disabled.
// Remember to call Close.
func Open(dev string) (*SPI, error) {
	f, err := os.OpenFile(dev, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	s := &SPI{f: f}
	mode := modeNoCS // Mode 0: CPOL and CPHA both clear.
	if err := s.ioctl(iocWrMode, unsafe.Pointer(&mode)); err != nil {
		f.Close()
		return nil, fmt.Errorf("spidev: set mode: %w", err)
	}
	bpw := uint8(8)
	if err := s.ioctl(iocWrBitsPerWord, unsafe.Pointer(&bpw)); err != nil {
		f.Close()
		return nil, fmt.Errorf("spidev: set bits per word: %w", err)
	}
	return s, nil
}

// Close closes the device.
func (s *SPI) Close() error {
	return s.f.Close()
}

// SpeedHz returns the device's maximum transfer speed.
func (s *SPI) SpeedHz() (uint32, error) {
	var hz uint32
	err := s.ioctl(iocRdMaxSpeedHz, unsafe.Pointer(&hz))
	return hz, err
}

// SetSpeedHz sets the maximum transfer speed. The W25Q128JV accepts up to
// 50 MHz for Read Data and 133 MHz for Fast Read; the board's wiring is
// usually the real limit.
func (s *SPI) SetSpeedHz(hz uint32) error {
	return s.ioctl(iocWrMaxSpeedHz, unsafe.Pointer(&hz))
}

// Write clocks w out on MOSI, discarding MISO.
func (s *SPI) Write(w []byte) error {
	if len(w) == 0 {
		return nil
	}
	return s.transfer(w, nil)
}

// Read clocks zeroes out on MOSI while capturing MISO into r.
func (s *SPI) Read(r []byte) error {
	if len(r) == 0 {
		return nil
	}
	return s.transfer(nil, r)
}

// transfer performs one half-duplex exchange: exactly one of tx and rx is
// non-empty. Data is staged in an unmanaged buffer because the garbage
// collector may move Go pointers while the kernel holds them.
func (s *SPI) transfer(tx, rx []byte) error {
	n := len(tx) + len(rx)
	buf, err := unix.Mmap(-1, 0, n, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return err
	}
	defer unix.Munmap(buf)

	t := iocTransfer{
		length:      uint32(n),
		bitsPerWord: 8,
	}
	if len(tx) > 0 {
		copy(buf, tx)
		t.txBuf = uint64(uintptr(unsafe.Pointer(&buf[0])))
	}
	if len(rx) > 0 {
		t.rxBuf = uint64(uintptr(unsafe.Pointer(&buf[len(tx)])))
	}

	if err := s.ioctl(iocMessage(1), unsafe.Pointer(&t)); err != nil {
		return err
	}
	copy(rx, buf[len(tx):])
	return nil
}

func (s *SPI) ioctl(req uint32, arg unsafe.Pointer) error {
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, s.f.Fd(), uintptr(req), uintptr(arg)); errno != 0 {
		return errno
	}
	return nil
}
