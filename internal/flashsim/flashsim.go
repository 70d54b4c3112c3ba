// Package flashsim models a W25Q128JV as seen from the driver side of the
// SPI bus: byte exchanges framed by the chip select line, Status Register 1
// with BUSY and WEL, page-program wrap-around and erase granules. Program
// and erase latency is expressed in status polls so tests stay
// deterministic without real delays.
package flashsim

import (
	"errors"
	"fmt"
)

const (
	flashSize = 16 * 1024 * 1024
	pageSize  = 256
)

const (
	opReadJEDECID  = 0x9F
	opReadStatus1  = 0x05
	opWriteEnable  = 0x06
	opWriteDisable = 0x04
	opReadData     = 0x03
	opFastRead     = 0x0B
	opPageProgram  = 0x02
	opSectorErase  = 0x20
	opBlock32Erase = 0x52
	opBlock64Erase = 0xD8
	opChipErase    = 0xC7
	opReadUniqueID = 0x4B
)

var (
	errCSHigh = errors.New("flashsim: exchange while CS high")
)

// Chip is one simulated W25Q128JV. Pass Chip.CS as the driver's chip select
// pin and the Chip itself as its Bus.
type Chip struct {
	mem []byte
	uid [8]byte

	selected bool
	frame    []byte // Bytes clocked in since CS fell.
	readPos  int    // Bytes clocked out of the current frame's data phase.

	wel       bool
	busyPolls int // Status reads remaining until BUSY clears.

	// Latency in status polls charged when a program or erase is accepted.
	ProgramLatencyPolls int
	EraseLatencyPolls   int

	// Injected bus faults. When non-nil the corresponding exchange fails
	// without touching chip state.
	WriteErr error
	ReadErr  error

	ops []byte // Opcodes of executed frames, oldest first.
}

// New returns a chip in the erased factory state: every byte 0xFF.
func New() *Chip {
	c := &Chip{
		mem: make([]byte, flashSize),
		uid: [8]byte{0xE4, 0x68, 0x30, 0x98, 0x07, 0x25, 0x41, 0x11},
	}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

// CS drives the chip select line. Raising it commits the frame clocked in
// while it was low.
func (c *Chip) CS(level bool) {
	if !level {
		if !c.selected {
			c.selected = true
			c.frame = c.frame[:0]
			c.readPos = 0
		}
		return
	}
	if c.selected {
		c.selected = false
		c.execute()
	}
}

// Selected reports whether CS is currently low.
func (c *Chip) Selected() bool { return c.selected }

// Write clocks bytes into the chip. Valid only while CS is low.
func (c *Chip) Write(p []byte) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}
	if !c.selected {
		return errCSHigh
	}
	c.frame = append(c.frame, p...)
	return nil
}

// Read clocks bytes out of the chip. Valid only while CS is low; the data
// depends on the opcode and parameters clocked in beforehand.
func (c *Chip) Read(p []byte) error {
	if c.ReadErr != nil {
		return c.ReadErr
	}
	if !c.selected {
		return errCSHigh
	}
	if len(c.frame) == 0 {
		fill(p, 0xFF)
		return nil
	}
	switch c.frame[0] {
	case opReadStatus1:
		fill(p, c.status())
		if c.busyPolls > 0 {
			c.busyPolls--
		}
	case opReadJEDECID:
		// Identification works even while a program or erase runs.
		c.serve(p, []byte{0xEF, 0x40, 0x18})
	case opReadUniqueID:
		if len(c.frame) < 5 { // Opcode plus four dummy bytes.
			fill(p, 0xFF)
			break
		}
		c.serve(p, c.uid[:])
	case opReadData:
		c.serveMem(p, 4)
	case opFastRead:
		c.serveMem(p, 5)
	default:
		fill(p, 0xFF)
	}
	c.readPos += len(p)
	return nil
}

func (c *Chip) status() byte {
	var s byte
	if c.busyPolls > 0 {
		s |= 1 << 0
	}
	if c.wel {
		s |= 1 << 1
	}
	return s
}

// serve copies src[readPos:] into p, padding past the end with 0xFF.
func (c *Chip) serve(p, src []byte) {
	fill(p, 0xFF)
	if c.readPos < len(src) {
		copy(p, src[c.readPos:])
	}
}

// serveMem streams array data once hdrLen header bytes (opcode, address,
// dummies) have been clocked in. The read address wraps at the array end.
func (c *Chip) serveMem(p []byte, hdrLen int) {
	if len(c.frame) < hdrLen || c.busyPolls > 0 {
		fill(p, 0xFF)
		return
	}
	addr := addr24(c.frame[1:4])
	for i := range p {
		p[i] = c.mem[(int(addr)+c.readPos+i)%flashSize]
	}
}

// execute commits the frame on the rising CS edge. Modifying commands are
// accepted only when idle and, for program/erase, only with the write
// enable latch set, as on the real part.
func (c *Chip) execute() {
	if len(c.frame) == 0 {
		return
	}
	op := c.frame[0]
	c.ops = append(c.ops, op)
	if c.busyPolls > 0 {
		return
	}
	switch op {
	case opWriteEnable:
		c.wel = true
	case opWriteDisable:
		c.wel = false
	case opPageProgram:
		if !c.wel || len(c.frame) < 5 {
			return
		}
		addr := addr24(c.frame[1:4])
		base := addr &^ (pageSize - 1)
		// Addresses wrap within the page: only the low byte advances.
		for i, b := range c.frame[4:] {
			a := base | ((addr + uint32(i)) & (pageSize - 1))
			c.mem[a] &= b // Programming only clears bits.
		}
		c.wel = false
		c.busyPolls = c.ProgramLatencyPolls
	case opSectorErase:
		c.eraseGranule(4096)
	case opBlock32Erase:
		c.eraseGranule(32 * 1024)
	case opBlock64Erase:
		c.eraseGranule(64 * 1024)
	case opChipErase:
		if !c.wel {
			return
		}
		fill(c.mem, 0xFF)
		c.wel = false
		c.busyPolls = c.EraseLatencyPolls
	}
}

func (c *Chip) eraseGranule(size uint32) {
	if !c.wel || len(c.frame) < 4 {
		return
	}
	// The chip ignores address bits below the granule.
	base := addr24(c.frame[1:4]) &^ (size - 1)
	fill(c.mem[base:base+size], 0xFF)
	c.wel = false
	c.busyPolls = c.EraseLatencyPolls
}

// Peek returns the array byte at addr, bypassing the bus.
func (c *Chip) Peek(addr uint32) byte {
	return c.mem[addr%flashSize]
}

// Poke sets the array byte at addr, bypassing the bus.
func (c *Chip) Poke(addr uint32, b byte) {
	c.mem[addr%flashSize] = b
}

// ForceBusy makes the next n status polls report BUSY, emulating a long
// chip-internal operation.
func (c *Chip) ForceBusy(n int) {
	c.busyPolls = n
}

// WELSet reports the state of the write enable latch.
func (c *Chip) WELSet() bool { return c.wel }

// Ops returns the opcodes of every frame committed so far.
func (c *Chip) Ops() []byte { return c.ops }

// UniqueID returns the simulated factory serial number.
func (c *Chip) UniqueID() [8]byte { return c.uid }

func addr24(b []byte) uint32 {
	return uint32(b[0])<<16 | uint32(b[1])<<8 | uint32(b[2])
}

func fill(p []byte, b byte) {
	for i := range p {
		p[i] = b
	}
}

// String summarizes chip state for test failure messages.
func (c *Chip) String() string {
	return fmt.Sprintf("flashsim.Chip{selected=%v wel=%v busyPolls=%d frames=%d}",
		c.selected, c.wel, c.busyPolls, len(c.ops))
}
