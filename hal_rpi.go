//go:build linux

package w25q

import (
	"fmt"

	"log/slog"

	rpio "github.com/stianeikeland/go-rpio/v4"

	"github.com/embedded-go/w25q/spidev"
)

// NewRaspberryPiDevice opens the given spidev character device and binds a
// BCM2835 GPIO as the flash chip select. The kernel's own CS line is left
// unused; wire the chip's /CS to csPin instead. speedHz of 0 keeps the
// device's configured clock.
//
// The returned close function releases the GPIO mapping and the spidev
// handle, leaving CS high.
func NewRaspberryPiDevice(dev string, csPin uint8, speedHz uint32, logger *slog.Logger) (*Device, func() error, error) {
	if err := rpio.Open(); err != nil {
		return nil, nil, fmt.Errorf("w25q: open gpio memory: %w", err)
	}
	cs := rpio.Pin(csPin)
	cs.Output()
	cs.High()

	bus, err := spidev.Open(dev)
	if err != nil {
		rpio.Close()
		return nil, nil, err
	}
	if speedHz != 0 {
		if err := bus.SetSpeedHz(speedHz); err != nil {
			bus.Close()
			rpio.Close()
			return nil, nil, err
		}
	}

	d := New(bus, func(level bool) {
		if level {
			cs.High()
		} else {
			cs.Low()
		}
	}, Config{Logger: logger})
	closer := func() error {
		cs.High()
		err := bus.Close()
		if cerr := rpio.Close(); err == nil {
			err = cerr
		}
		return err
	}
	return d, closer, nil
}
