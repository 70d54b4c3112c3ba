package w25q

// w25q.go contains the command catalog and the CS-framed exchanges for the
// W25Q128JV. Opcodes map to instructions readily found in the datasheet
// (section 8.1).

import (
	"context"
	"time"

	"log/slog"
)

const (
	opReadJEDECID  = 0x9F
	opReadStatus1  = 0x05
	opWriteEnable  = 0x06
	opReadData     = 0x03
	opFastRead     = 0x0B // One dummy byte between address and data.
	opPageProgram  = 0x02
	opSectorErase  = 0x20 // 4 KiB.
	opBlock32Erase = 0x52
	opBlock64Erase = 0xD8
	opChipErase    = 0xC7
	opReadUniqueID = 0x4B // Four dummy bytes, then 64-bit ID.
)

// Status Register 1 bits.
const (
	statusBusy = 1 << 0
	statusWEL  = 1 << 1
)

// busyPollInterval bounds scheduler wakeups while a program (O(ms)) or
// erase (O(tens of ms)) completes inside the chip.
const busyPollInterval = 100 * time.Microsecond

//go:inline
func (d *Device) csLow() { d.cs(false) }

//go:inline
func (d *Device) csHigh() { d.cs(true) }

// putAddr24 packs a 24-bit address big-endian: A23-A16, A15-A8, A7-A0.
// Packed explicitly to stay independent of host endianness.
func putAddr24(dst []byte, addr uint32) {
	_ = dst[2]
	dst[0] = byte(addr >> 16)
	dst[1] = byte(addr >> 8)
	dst[2] = byte(addr)
}

// command sends a single opcode in its own CS frame.
func (d *Device) command(op byte) error {
	d.csLow()
	defer d.csHigh()
	return d.bus.Write([]byte{op})
}

// writeThenRead performs one framed exchange: header out, buf in. CS is
// released on every exit path including bus errors.
func (d *Device) writeThenRead(hdr, buf []byte) error {
	d.csLow()
	defer d.csHigh()
	if err := d.bus.Write(hdr); err != nil {
		return err
	}
	return d.bus.Read(buf)
}

// readStatus1 reads Status Register 1 without taking the device lock.
func (d *Device) readStatus1() (uint8, error) {
	var buf [1]byte
	err := d.writeThenRead([]byte{opReadStatus1}, buf[:])
	return buf[0], err
}

// waitIdle polls Status Register 1 until the BUSY bit clears, yielding for
// busyPollInterval between samples. Status read errors surface immediately.
// No timeout is imposed here; ctx may carry one.
func (d *Device) waitIdle(ctx context.Context) error {
	for {
		status, err := d.readStatus1()
		if err != nil {
			d.logerr("waitIdle:status-read", slog.String("err", err.Error()))
			return err
		}
		if status&statusBusy == 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		d.delay(busyPollInterval)
	}
}

// ReadJEDECID reads the three JEDEC identification bytes: manufacturer,
// memory type and capacity. Legal while a program or erase is in progress,
// though the bytes are only meaningful on an idle chip. Callers compare
// against JEDECManufacturerID, JEDECMemoryType and JEDECCapacity; an absent
// or miswired chip typically answers all-zeroes or all-ones rather than a
// bus error.
func (d *Device) ReadJEDECID() (manufacturer, memType, capacity uint8, err error) {
	d.acquire()
	defer d.release()
	var buf [3]byte
	err = d.writeThenRead([]byte{opReadJEDECID}, buf[:])
	d.trace("ReadJEDECID",
		slog.Uint64("manufacturer", uint64(buf[0])),
		slog.Uint64("memType", uint64(buf[1])),
		slog.Uint64("capacity", uint64(buf[2])))
	return buf[0], buf[1], buf[2], err
}

// ReadUniqueID reads the factory-set 64-bit unique serial number.
func (d *Device) ReadUniqueID() (id [8]byte, err error) {
	d.acquire()
	defer d.release()
	if err = d.waitIdle(context.Background()); err != nil {
		return id, err
	}
	hdr := [5]byte{opReadUniqueID} // Opcode plus four dummy bytes.
	err = d.writeThenRead(hdr[:], id[:])
	return id, err
}

// ReadStatus returns the raw value of Status Register 1. Bit 0 is BUSY,
// bit 1 is WEL, bits 2-4 are the block protect bits.
func (d *Device) ReadStatus() (uint8, error) {
	d.acquire()
	defer d.release()
	return d.readStatus1()
}

// IsBusy reports whether a program or erase is in progress inside the chip.
func (d *Device) IsBusy() (bool, error) {
	status, err := d.ReadStatus()
	return status&statusBusy != 0, err
}

// WaitIdle blocks until the chip reports BUSY=0 or ctx is done. Public
// operations already wait for idle where the protocol requires it; WaitIdle
// exists for callers that want to overlap chip-internal erase latency with
// other work and resynchronize later.
func (d *Device) WaitIdle(ctx context.Context) error {
	d.acquire()
	defer d.release()
	return d.waitIdle(ctx)
}

// ReadData reads len(buf) bytes starting at the 24-bit address addr using
// the standard read instruction. Reads have no page or sector restriction;
// the chip streams until CS rises. A zero-length buf returns immediately
// with no bus traffic.
func (d *Device) ReadData(addr uint32, buf []byte) error {
	if err := checkRange(addr, len(buf)); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	d.acquire()
	defer d.release()
	if err := d.waitIdle(context.Background()); err != nil {
		return err
	}
	d.trace("ReadData", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(buf)))
	var hdr [4]byte
	hdr[0] = opReadData
	putAddr24(hdr[1:], addr)
	return d.writeThenRead(hdr[:], buf)
}

// FastRead is protocol-equivalent to ReadData but clocks one dummy byte
// between address and data, permitting higher bus clocks. The driver does
// not reconfigure the bus; choosing a supported frequency is the
// transport's concern.
func (d *Device) FastRead(addr uint32, buf []byte) error {
	if err := checkRange(addr, len(buf)); err != nil {
		return err
	}
	if len(buf) == 0 {
		return nil
	}
	d.acquire()
	defer d.release()
	if err := d.waitIdle(context.Background()); err != nil {
		return err
	}
	d.trace("FastRead", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(buf)))
	var hdr [5]byte
	hdr[0] = opFastRead
	putAddr24(hdr[1:], addr)
	hdr[4] = 0x00 // Dummy byte: 8 clocks for the chip to fetch data.
	return d.writeThenRead(hdr[:], buf)
}

// WriteData programs data at the 24-bit address addr. The target range must
// have been erased beforehand: programming only changes 1-bits to 0-bits.
// data must be 1 to 256 bytes and must not cross the 256-byte page boundary
// containing addr. The call returns once the chip reports the program
// complete, so a subsequent read observes the new contents.
//
// If the data-phase write fails the chip may have programmed a prefix; the
// error is reported and callers that care must verify by read-back.
func (d *Device) WriteData(addr uint32, data []byte) error {
	if err := checkRange(addr, len(data)); err != nil {
		return err
	}
	if len(data) == 0 {
		return ErrZeroLengthProgram
	}
	if len(data) > PageSize {
		return DataLengthError(len(data))
	}
	if aligndown(addr, PageSize) != aligndown(addr+uint32(len(data))-1, PageSize) {
		return PageCrossError{Addr: addr, Len: len(data)}
	}
	d.acquire()
	defer d.release()
	if err := d.waitIdle(context.Background()); err != nil {
		return err
	}
	d.debug("WriteData", slog.Uint64("addr", uint64(addr)), slog.Int("len", len(data)))
	if err := d.command(opWriteEnable); err != nil {
		return err
	}
	if err := d.program(addr, data); err != nil {
		return err
	}
	return d.waitIdle(context.Background())
}

// program issues the page program frame. Write enable must have been sent
// in the immediately preceding frame: any other intervening command would
// drop the chip's write enable latch.
func (d *Device) program(addr uint32, data []byte) error {
	d.csLow()
	defer d.csHigh()
	var hdr [4]byte
	hdr[0] = opPageProgram
	putAddr24(hdr[1:], addr)
	if err := d.bus.Write(hdr[:]); err != nil {
		return err
	}
	return d.bus.Write(data)
}

// EraseSector erases the 4 KiB sector at addr, restoring it to all 0xFF.
// addr must be sector-aligned (low 12 bits zero). Returns once the chip
// reports the erase complete.
func (d *Device) EraseSector(addr uint32) error {
	return d.erase(opSectorErase, addr, SectorSize, "EraseSector")
}

// EraseBlock32KB erases the 32 KiB block at addr. addr must be 32 KiB-aligned.
func (d *Device) EraseBlock32KB(addr uint32) error {
	return d.erase(opBlock32Erase, addr, Block32Size, "EraseBlock32KB")
}

// EraseBlock64KB erases the 64 KiB block at addr. addr must be 64 KiB-aligned.
func (d *Device) EraseBlock64KB(addr uint32) error {
	return d.erase(opBlock64Erase, addr, Block64Size, "EraseBlock64KB")
}

func (d *Device) erase(op byte, addr, align uint32, name string) error {
	if err := checkRange(addr, 0); err != nil {
		return err
	}
	if !isaligned(addr, align) {
		return AlignmentError{Addr: addr, Align: align}
	}
	d.acquire()
	defer d.release()
	if err := d.waitIdle(context.Background()); err != nil {
		return err
	}
	d.debug(name, slog.Uint64("addr", uint64(addr)))
	if err := d.command(opWriteEnable); err != nil {
		return err
	}
	var hdr [4]byte
	hdr[0] = op
	putAddr24(hdr[1:], addr)
	d.csLow()
	err := d.bus.Write(hdr[:])
	d.csHigh()
	if err != nil {
		return err
	}
	return d.waitIdle(context.Background())
}

// EraseChip erases the entire 16 MiB array. Takes tens of seconds on a real
// chip; wrap the call in a context-aware goroutine and use WaitIdle if that
// latency must be interruptible.
func (d *Device) EraseChip() error {
	d.acquire()
	defer d.release()
	if err := d.waitIdle(context.Background()); err != nil {
		return err
	}
	d.info("EraseChip")
	if err := d.command(opWriteEnable); err != nil {
		return err
	}
	if err := d.command(opChipErase); err != nil {
		return err
	}
	return d.waitIdle(context.Background())
}

// checkRange validates that [addr, addr+n) lies within the 24-bit, 16 MiB
// address space.
func checkRange(addr uint32, n int) error {
	if addr >= FlashSize || uint64(addr)+uint64(n) > FlashSize {
		return AddressRangeError(addr)
	}
	return nil
}
