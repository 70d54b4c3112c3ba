package w25q

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/exp/constraints"
)

// JEDEC identity of a genuine W25Q128JV as returned by ReadJEDECID.
const (
	JEDECManufacturerID = 0xEF // Winbond.
	JEDECMemoryType     = 0x40
	JEDECCapacity       = 0x18 // 128 Mbit.
)

// Device geometry. Programs may not cross a page boundary; erases work on
// whole sectors or blocks.
const (
	PageSize    = 256
	SectorSize  = 4096
	Block32Size = 32 * 1024
	Block64Size = 64 * 1024
	FlashSize   = 16 * 1024 * 1024
)

// Bus is the SPI endpoint the driver exchanges bytes over. The endpoint must
// be configured externally for SPI Mode 0 (CPOL=0, CPHA=0), MSB-first, 8-bit
// words. Both calls block until the controller completes the exchange.
//
// The driver frames commands itself via the chip select pin, so the endpoint
// must not toggle CS on its own (see package spidev for a conforming Linux
// transport).
type Bus interface {
	Write([]byte) error
	Read([]byte) error
}

// OutputPin drives the chip select line. true drives the pin high
// (deselected), false drives it low (selected).
type OutputPin func(level bool)

// Device is a handle to one W25Q128JV chip. It exclusively owns its bus
// endpoint and chip select pin; operations are serialized so only one
// command is ever in flight.
//
// The /WP (IO2) and /HOLD (IO3) pins of the chip must be held high
// externally for single-SPI operation.
type Device struct {
	mu    sync.Mutex
	bus   Bus
	cs    OutputPin
	delay func(time.Duration)

	logger        *slog.Logger
	_traceenabled bool
}

// Config carries the optional collaborators of a Device. The zero value is
// valid: no logging, time.Sleep delays.
type Config struct {
	Logger *slog.Logger
	// Delay is used for the CS settling gaps in Init and between busy polls.
	// Nil means time.Sleep. Tests inject a no-op here.
	Delay func(time.Duration)
}

// New returns a driver handle owning bus and cs. The CS pin should be
// configured as a driven output and left high before calling. Call Init once
// after power-up before issuing commands.
func New(bus Bus, cs OutputPin, cfg Config) *Device {
	d := &Device{
		bus:    bus,
		cs:     cs,
		delay:  cfg.Delay,
		logger: cfg.Logger,
	}
	if d.delay == nil {
		d.delay = time.Sleep
	}
	d._traceenabled = d.logger != nil && d.logger.Handler().Enabled(context.Background(), levelTrace)
	return d
}

// Init places the chip in a defined post-reset state by toggling CS
// high-low-high with ~10µs settling gaps, satisfying the tCHSL/tSHSL
// timings. No SPI traffic is produced. Idempotent; meant to run once after
// power-up.
func (d *Device) Init() {
	d.acquire()
	defer d.release()
	d.debug("Init:cs-toggle")
	const settle = 10 * time.Microsecond
	d.cs(true)
	d.delay(settle)
	d.cs(false)
	d.delay(settle)
	d.cs(true)
	d.delay(settle)
}

func (d *Device) acquire() { d.mu.Lock() }
func (d *Device) release() { d.mu.Unlock() }

// aligndown rounds `val` down to nearest multiple of `align`. `align` must be a power of 2.
func aligndown[T constraints.Unsigned](val, align T) T {
	return val &^ (align - 1)
}

// isaligned checks if `val` is wholly divisible by `align`. `align` must be a power of 2.
func isaligned[T constraints.Unsigned](val, align T) bool {
	return val&(align-1) == 0
}
