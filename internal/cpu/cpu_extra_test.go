package cpu

import (
	"testing"

	"github.com/LuanLessa/gbcore/internal/bus"
)

func TestCPU_CB_BitResSet(t *testing.T) {
	// LD B,0x80; BIT 7,B; RES 7,B; SET 0,B
	prog := []byte{0x06, 0x80, 0xCB, 0x78, 0xCB, 0xB8, 0xCB, 0xC0}
	c := newCPUWithROM(prog)
	c.Step() // LD B,0x80
	c.Step() // BIT 7,B
	if (c.F & flagZ) != 0 {
		t.Fatalf("BIT 7,B with B=0x80 should clear Z, F=%02x", c.F)
	}
	if (c.F & flagH) == 0 {
		t.Fatalf("BIT should always set H")
	}
	c.Step() // RES 7,B
	if c.B != 0x00 {
		t.Fatalf("RES 7,B got %02x want 00", c.B)
	}
	c.Step() // SET 0,B
	if c.B != 0x01 {
		t.Fatalf("SET 0,B got %02x want 01", c.B)
	}
}

func TestCPU_CB_SWAP(t *testing.T) {
	prog := []byte{0x3E, 0xA5, 0xCB, 0x37} // LD A,0xA5; SWAP A
	c := newCPUWithROM(prog)
	c.Step()
	c.Step()
	if c.A != 0x5A {
		t.Fatalf("SWAP A got %02x want 5A", c.A)
	}
	if (c.F & (flagN | flagH | flagC)) != 0 {
		t.Fatalf("SWAP should clear N,H,C, got F=%02x", c.F)
	}
}

func TestCPU_DAA_AfterBCDAddition(t *testing.T) {
	// LD A,0x45; LD B,0x38; ADD A,B; DAA  -> BCD 45+38=83
	prog := []byte{0x3E, 0x45, 0x06, 0x38, 0x80, 0x27}
	c := newCPUWithROM(prog)
	c.Step()
	c.Step()
	c.Step()
	c.Step() // DAA
	if c.A != 0x83 {
		t.Fatalf("DAA result got %#02x want 0x83", c.A)
	}
}

func TestCPU_HALT_WakesOnInterruptWithIME(t *testing.T) {
	prog := []byte{0x76} // HALT
	c := newCPUWithROM(prog)
	c.IME = true
	c.bus.Write(0xFFFF, 0x01) // enable VBlank
	c.Step()                  // HALT
	if !c.halted {
		t.Fatalf("expected halted after HALT opcode")
	}
	c.bus.Write(0xFF0F, 0x01) // request VBlank
	cyc := c.Step()
	if c.halted {
		t.Fatalf("expected CPU to wake from halt")
	}
	if cyc != 20 {
		t.Fatalf("expected interrupt dispatch cycles=20, got %d", cyc)
	}
	if c.PC != 0x40 {
		t.Fatalf("expected PC at VBlank vector 0x40, got %#04x", c.PC)
	}
}

func TestCPU_HALTBug_WithIMEOffRereadsOpcode(t *testing.T) {
	// HALT; INC A; INC A  -- with IME off and an interrupt already pending,
	// the HALT bug causes the byte after HALT to be fetched (and executed)
	// twice before PC moves past it.
	prog := []byte{0x76, 0x3C, 0x3C} // HALT, INC A, INC A
	c := newCPUWithROM(prog)
	c.IME = false
	c.bus.Write(0xFFFF, 0x01)
	c.bus.Write(0xFF0F, 0x01) // pending VBlank before HALT runs, IME off
	c.Step()                  // HALT: IME off but IF&IE != 0, so it doesn't actually sleep
	if c.halted {
		t.Fatalf("HALT with IME off and a pending interrupt should not sleep")
	}
	pcAfterHalt := c.PC
	c.Step() // first INC A, re-fetches the same opcode byte due to the HALT bug
	if c.PC != pcAfterHalt {
		t.Fatalf("HALT bug should re-read the opcode at %#04x without advancing PC, got %#04x", pcAfterHalt, c.PC)
	}
	if c.A != 1 {
		t.Fatalf("first INC A should have run, A=%d", c.A)
	}
}

func TestCPU_EI_DelayedOneInstruction(t *testing.T) {
	// EI; NOP; NOP
	prog := []byte{0xFB, 0x00, 0x00}
	c := newCPUWithROM(prog)
	c.Step() // EI
	if c.IME {
		t.Fatalf("IME should not be set immediately after EI")
	}
	c.Step() // NOP: IME becomes true only after this instruction completes
	if !c.IME {
		t.Fatalf("IME should be set after the instruction following EI")
	}
}

func TestCPU_InterruptDispatch_PriorityAndClearsIF(t *testing.T) {
	rom := make([]byte, 0x8000)
	b := bus.New(rom)
	c := New(b)
	c.IME = true
	b.Write(0xFFFF, 0x07)     // enable VBlank, STAT, Timer
	b.Write(0xFF0F, 0x06)     // STAT and Timer both pending; VBlank not pending
	cyc := c.Step()
	if cyc != 20 {
		t.Fatalf("expected dispatch cycles 20, got %d", cyc)
	}
	if c.PC != 0x48 { // STAT vector wins over Timer by priority
		t.Fatalf("expected STAT vector 0x48, got %#04x", c.PC)
	}
	if (b.IF() & 0x02) != 0 {
		t.Fatalf("STAT IF bit should be cleared after dispatch")
	}
	if (b.IF() & 0x04) == 0 {
		t.Fatalf("Timer IF bit should remain pending")
	}
}

func TestCPU_ADC_SBC_HalfCarryWithCarryIn(t *testing.T) {
	// LD A,0x0F; SCF; LD B,0x00; ADC A,B -> 0x0F+0+1=0x10, H set
	prog := []byte{0x3E, 0x0F, 0x37, 0x06, 0x00, 0x88}
	c := newCPUWithROM(prog)
	c.Step()
	c.Step()
	c.Step()
	c.Step() // ADC A,B
	if c.A != 0x10 {
		t.Fatalf("ADC result got %#02x want 0x10", c.A)
	}
	if (c.F & flagH) == 0 {
		t.Fatalf("ADC should set H when nibble+carry overflows, F=%02x", c.F)
	}
}
