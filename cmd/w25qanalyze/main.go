// Command w25qanalyze processes binary Saleae digital captures of W25Q128JV
// SPI traffic and renders them as a human readable command listing, one line
// per CS frame.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"
)

type opcodeInfo struct {
	name      string
	addrBytes int
	dummy     int
	// dataIn: data phase driven by the chip (appears on MISO).
	// dataOut: data phase driven by the host (appears on MOSI).
	dataIn  bool
	dataOut bool
}

// Instruction set subset of the W25Q128JV (datasheet section 8.1).
var opcodes = map[byte]opcodeInfo{
	0x9F: {name: "ReadJEDECID", dataIn: true},
	0x4B: {name: "ReadUniqueID", dummy: 4, dataIn: true},
	0x05: {name: "ReadStatus1", dataIn: true},
	0x35: {name: "ReadStatus2", dataIn: true},
	0x06: {name: "WriteEnable"},
	0x04: {name: "WriteDisable"},
	0x03: {name: "ReadData", addrBytes: 3, dataIn: true},
	0x0B: {name: "FastRead", addrBytes: 3, dummy: 1, dataIn: true},
	0x02: {name: "PageProgram", addrBytes: 3, dataOut: true},
	0x20: {name: "SectorErase4KB", addrBytes: 3},
	0x52: {name: "BlockErase32KB", addrBytes: 3},
	0xD8: {name: "BlockErase64KB", addrBytes: 3},
	0xC7: {name: "ChipErase"},
	0x60: {name: "ChipErase"},
	0xAB: {name: "ReleasePowerDown"},
	0xB9: {name: "PowerDown"},
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "w25qanalyze - Decode Binary Saleae digital data files of W25Q128JV SPI transactions.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	mosi := flag.String("f-mosi", "digital_1.bin", "Input filename: SPI MOSI data.")
	miso := flag.String("f-miso", "digital_2.bin", "Input filename: SPI MISO data.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS data.")
	clk := flag.String("f-clk", "digital_3.bin", "Input filename: SPI clock data.")
	output := flag.String("o-cmd", "commands.txt", "Output filename of decoded flash command transactions.")
	omitReadData := flag.Bool("omit-read-data", false, "Choose to omit read payloads in output.")
	maxData := flag.Int("max-data", 32, "Truncate printed payloads to this many bytes. 0 prints everything.")
	flag.Parse()

	start := time.Now()
	if err := run(*mosi, *miso, *enable, *clk, *output, *omitReadData, *maxData); err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

func run(fmosi, fmiso, fenable, fclk, output string, omitReadData bool, maxData int) error {
	mosi, err := opendigital(fmosi)
	if err != nil {
		return err
	}
	miso, err := opendigital(fmiso)
	if err != nil {
		return err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return err
	}
	clk, err := opendigital(fclk)
	if err != nil {
		return err
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, mosi, miso)

	fp, err := os.Create(output)
	if err != nil {
		return err
	}
	defer fp.Close()

	for _, tx := range txs {
		line := decode(tx, omitReadData, maxData)
		if _, err := fmt.Fprintln(fp, line); err != nil {
			return err
		}
	}
	return nil
}

func decode(tx analyzers.TxSPI, omitReadData bool, maxData int) string {
	if len(tx.SDO) == 0 {
		return fmt.Sprintf("t=%.6f  empty frame", tx.StartTime())
	}
	op := tx.SDO[0]
	info, ok := opcodes[op]
	if !ok {
		return fmt.Sprintf("t=%.6f  opcode=%#02x unknown  mosi=%x", tx.StartTime(), op, tx.SDO[1:])
	}
	s := fmt.Sprintf("t=%.6f  %-16s", tx.StartTime(), info.name)
	payloadStart := 1 + info.addrBytes + info.dummy
	if info.addrBytes == 3 && len(tx.SDO) >= 4 {
		addr := uint32(tx.SDO[1])<<16 | uint32(tx.SDO[2])<<8 | uint32(tx.SDO[3])
		s += fmt.Sprintf(" addr=%#08x", addr)
	}
	var data []byte
	switch {
	case info.dataOut && len(tx.SDO) > payloadStart:
		data = tx.SDO[payloadStart:]
	case info.dataIn && len(tx.SDI) > payloadStart:
		data = tx.SDI[payloadStart:]
		if omitReadData {
			return s + fmt.Sprintf(" len=%d", len(data))
		}
	}
	if len(data) > 0 {
		s += fmt.Sprintf(" len=%d data=%s", len(data), hexTrunc(data, maxData))
	}
	return s
}

func hexTrunc(data []byte, max int) string {
	if max > 0 && len(data) > max {
		return fmt.Sprintf("%x..+%d", data[:max], len(data)-max)
	}
	return fmt.Sprintf("%x", data)
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}
