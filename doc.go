// Package w25q drives the Winbond W25Q128JV serial NOR flash over 4-wire
// SPI. The driver owns one SPI bus endpoint and one chip select output; it
// frames every command with the CS line, pairs Write Enable with the
// modifying command that follows it, and polls Status Register 1 so that
// program and erase calls return only once the chip is idle again.
//
// Typical use on a Raspberry Pi:
//
//	d, closeDev, err := w25q.NewRaspberryPiDevice("/dev/spidev0.0", 25, 1_000_000, nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer closeDev()
//	d.Init()
//	man, mem, capacity, err := d.ReadJEDECID()
//
// Any transport implementing Bus works: supply it together with a CS pin
// function to New. Concurrent use of one Device is safe; operations are
// serialized so a single command is in flight on the bus at any instant.
package w25q
