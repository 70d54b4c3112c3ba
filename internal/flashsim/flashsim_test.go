package flashsim

import (
	"bytes"
	"testing"
)

// frame clocks a complete command into the chip and raises CS.
func frame(t *testing.T, c *Chip, out []byte, readLen int) []byte {
	t.Helper()
	c.CS(false)
	if err := c.Write(out); err != nil {
		t.Fatal(err)
	}
	var in []byte
	if readLen > 0 {
		in = make([]byte, readLen)
		if err := c.Read(in); err != nil {
			t.Fatal(err)
		}
	}
	c.CS(true)
	return in
}

func TestProgramRequiresWriteEnable(t *testing.T) {
	c := New()
	frame(t, c, []byte{opPageProgram, 0, 0, 0, 0x00}, 0)
	if c.Peek(0) != 0xFF {
		t.Error("program without WREN must be ignored")
	}
	frame(t, c, []byte{opWriteEnable}, 0)
	if !c.WELSet() {
		t.Fatal("WREN did not set WEL")
	}
	frame(t, c, []byte{opPageProgram, 0, 0, 0, 0x00}, 0)
	if c.Peek(0) != 0x00 {
		t.Error("program after WREN must take effect")
	}
	if c.WELSet() {
		t.Error("program must clear WEL")
	}
}

func TestProgramWrapsWithinPage(t *testing.T) {
	c := New()
	frame(t, c, []byte{opWriteEnable}, 0)
	// Program 4 bytes starting 2 bytes before the page end.
	frame(t, c, []byte{opPageProgram, 0x00, 0x00, 0xFE, 1, 2, 3, 4}, 0)
	if c.Peek(0xFE) != 1 || c.Peek(0xFF) != 2 {
		t.Error("bytes before the boundary not programmed")
	}
	if c.Peek(0x100) != 0xFF {
		t.Error("program crossed into the next page")
	}
	if c.Peek(0x00) != 3 || c.Peek(0x01) != 4 {
		t.Error("excess bytes must wrap to the page start")
	}
}

func TestEraseIgnoresLowAddressBits(t *testing.T) {
	c := New()
	c.Poke(0x1000, 0x00)
	frame(t, c, []byte{opWriteEnable}, 0)
	frame(t, c, []byte{opSectorErase, 0x00, 0x1F, 0xFF}, 0)
	if c.Peek(0x1000) != 0xFF {
		t.Error("erase must apply to the whole sector containing the address")
	}
}

func TestBusyGatesCommands(t *testing.T) {
	c := New()
	c.ForceBusy(3)
	frame(t, c, []byte{opWriteEnable}, 0)
	if c.WELSet() {
		t.Error("WREN must be ignored while busy")
	}
	got := frame(t, c, []byte{opReadJEDECID}, 3)
	if !bytes.Equal(got, []byte{0xEF, 0x40, 0x18}) {
		t.Errorf("JEDEC ID must be readable while busy, got %x", got)
	}
	got = frame(t, c, []byte{opReadData, 0, 0, 0}, 2)
	if !bytes.Equal(got, []byte{0xFF, 0xFF}) {
		t.Errorf("array reads while busy return 0xFF, got %x", got)
	}
}

func TestStatusPollsDrainBusy(t *testing.T) {
	c := New()
	c.ForceBusy(2)
	for i, want := range []byte{0x01, 0x01, 0x00} {
		got := frame(t, c, []byte{opReadStatus1}, 1)
		if got[0]&0x01 != want {
			t.Errorf("poll %d: status=%#02x want BUSY=%d", i, got[0], want)
		}
	}
}

func TestExchangeWithCSHighFails(t *testing.T) {
	c := New()
	if err := c.Write([]byte{opReadStatus1}); err == nil {
		t.Error("write with CS high must fail")
	}
	if err := c.Read(make([]byte, 1)); err == nil {
		t.Error("read with CS high must fail")
	}
}
