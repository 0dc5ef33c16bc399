// Package cpu implements the Sharp LR35902 instruction interpreter: register
// file, flag packing, the full base and CB-prefixed opcode tables decoded via
// the x/y/z/p/q bit fields, interrupt dispatch, and the HALT bug.
package cpu

import (
	"github.com/LuanLessa/gbcore/internal/bus"
)

// CPU holds the SM83 register file and control state and executes one
// instruction per Step call against a Bus.
type CPU struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte

	SP uint16
	PC uint16

	IME       bool
	halted    bool
	haltBug   bool // next fetch does not advance PC (HALT-with-IME-off-and-pending-IRQ quirk)
	eiPending bool // EI enables IME after the *following* instruction completes

	bus *bus.Bus
}

// New creates a CPU with PC at 0 (for boot-ROM-less callers that set PC
// themselves) and SP at the usual post-boot value.
func New(b *bus.Bus) *CPU {
	return &CPU{bus: b, SP: 0xFFFE, PC: 0x0000}
}

// SetPC allows tests or a boot stub to set the program counter.
func (c *CPU) SetPC(pc uint16) { c.PC = pc }

// Bus exposes the underlying bus for tests/tools.
func (c *CPU) Bus() *bus.Bus { return c.bus }

// Halted reports whether the CPU is currently halted.
func (c *CPU) Halted() bool { return c.halted }

// ResetNoBoot sets registers to typical DMG post-boot state, for running
// without a boot ROM.
func (c *CPU) ResetNoBoot() {
	c.A, c.F = 0x01, 0xB0
	c.B, c.C = 0x00, 0x13
	c.D, c.E = 0x00, 0xD8
	c.H, c.L = 0x01, 0x4D
	c.SP = 0xFFFE
	c.PC = 0x0100
	c.IME = false
	c.halted = false
	c.haltBug = false
	c.eiPending = false
}

const (
	flagZ byte = 1 << 7
	flagN byte = 1 << 6
	flagH byte = 1 << 5
	flagC byte = 1 << 4
)

func (c *CPU) setZNHC(z, n, h, cy bool) {
	var f byte
	if z {
		f |= flagZ
	}
	if n {
		f |= flagN
	}
	if h {
		f |= flagH
	}
	if cy {
		f |= flagC
	}
	c.F = f
}

func (c *CPU) flag(mask byte) bool { return (c.F & mask) != 0 }

// --- 8-bit ALU helpers, returning (result, Z, N, H, C) ---

func (c *CPU) add8(a, b byte) (res byte, z, n, h, cy bool) {
	r := uint16(a) + uint16(b)
	res = byte(r)
	z = res == 0
	h = ((a & 0x0F) + (b & 0x0F)) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) adc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := uint16(a) + uint16(b) + uint16(ci)
	res = byte(r)
	z = res == 0
	h = ((a & 0x0F) + (b & 0x0F) + ci) > 0x0F
	cy = r > 0xFF
	return
}

func (c *CPU) sub8(a, b byte) (res byte, z, n, h, cy bool) {
	r := int16(a) - int16(b)
	res = byte(r)
	z = res == 0
	n = true
	h = (a & 0x0F) < (b & 0x0F)
	cy = int16(a) < int16(b)
	return
}

func (c *CPU) sbc8(a, b byte, carryIn bool) (res byte, z, n, h, cy bool) {
	ci := byte(0)
	if carryIn {
		ci = 1
	}
	r := int16(a) - int16(b) - int16(ci)
	res = byte(r)
	z = res == 0
	n = true
	h = (a & 0x0F) < ((b & 0x0F) + ci)
	cy = int16(a) < int16(b)+int16(ci)
	return
}

func (c *CPU) and8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a & b
	z = res == 0
	h = true
	return
}

func (c *CPU) xor8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a ^ b
	z = res == 0
	return
}

func (c *CPU) or8(a, b byte) (res byte, z, n, h, cy bool) {
	res = a | b
	z = res == 0
	return
}

func (c *CPU) cp8(a, b byte) (z, n, h, cy bool) {
	_, z, n, h, cy = c.sub8(a, b)
	return
}

func (c *CPU) read8(addr uint16) byte     { return c.bus.Read(addr) }
func (c *CPU) write8(addr uint16, v byte) { c.bus.Write(addr, v) }

func (c *CPU) fetch8() byte {
	v := c.read8(c.PC)
	if c.haltBug {
		// The HALT bug: PC fails to advance on the instruction immediately
		// following HALT when it triggers, so the opcode byte is read twice.
		c.haltBug = false
	} else {
		c.PC++
	}
	return v
}

func (c *CPU) fetch16() uint16 {
	lo := uint16(c.fetch8())
	hi := uint16(c.fetch8())
	return lo | (hi << 8)
}

func (c *CPU) read16(addr uint16) uint16 {
	lo := uint16(c.read8(addr))
	hi := uint16(c.read8(addr + 1))
	return lo | (hi << 8)
}

func (c *CPU) write16(addr uint16, v uint16) {
	c.write8(addr, byte(v&0xFF))
	c.write8(addr+1, byte(v>>8))
}

func (c *CPU) getAF() uint16  { return uint16(c.A)<<8 | uint16(c.F&0xF0) }
func (c *CPU) setAF(v uint16) { c.A = byte(v >> 8); c.F = byte(v) & 0xF0 }
func (c *CPU) getBC() uint16  { return uint16(c.B)<<8 | uint16(c.C) }
func (c *CPU) setBC(v uint16) { c.B = byte(v >> 8); c.C = byte(v) }
func (c *CPU) getDE() uint16  { return uint16(c.D)<<8 | uint16(c.E) }
func (c *CPU) setDE(v uint16) { c.D = byte(v >> 8); c.E = byte(v) }
func (c *CPU) getHL() uint16  { return uint16(c.H)<<8 | uint16(c.L) }
func (c *CPU) setHL(v uint16) { c.H = byte(v >> 8); c.L = byte(v) }

func (c *CPU) push16(v uint16) {
	c.SP -= 2
	c.write16(c.SP, v)
}

func (c *CPU) pop16() uint16 {
	v := c.read16(c.SP)
	c.SP += 2
	return v
}

// reg8 reads register index idx per the standard z/y encoding: 0:B 1:C 2:D
// 3:E 4:H 5:L 6:(HL) 7:A.
func (c *CPU) reg8(idx byte) byte {
	switch idx {
	case 0:
		return c.B
	case 1:
		return c.C
	case 2:
		return c.D
	case 3:
		return c.E
	case 4:
		return c.H
	case 5:
		return c.L
	case 6:
		return c.read8(c.getHL())
	default:
		return c.A
	}
}

func (c *CPU) setReg8(idx byte, v byte) {
	switch idx {
	case 0:
		c.B = v
	case 1:
		c.C = v
	case 2:
		c.D = v
	case 3:
		c.E = v
	case 4:
		c.H = v
	case 5:
		c.L = v
	case 6:
		c.write8(c.getHL(), v)
	default:
		c.A = v
	}
}

// rp16 reads the group-1 register pair indexed by p: 0:BC 1:DE 2:HL 3:SP.
func (c *CPU) rp16(p byte) uint16 {
	switch p {
	case 0:
		return c.getBC()
	case 1:
		return c.getDE()
	case 2:
		return c.getHL()
	default:
		return c.SP
	}
}

func (c *CPU) setRP16(p byte, v uint16) {
	switch p {
	case 0:
		c.setBC(v)
	case 1:
		c.setDE(v)
	case 2:
		c.setHL(v)
	default:
		c.SP = v
	}
}

// rp2 reads the group-2 register pair (PUSH/POP) indexed by p: 0:BC 1:DE
// 2:HL 3:AF.
func (c *CPU) rp2(p byte) uint16 {
	if p == 3 {
		return c.getAF()
	}
	return c.rp16(p)
}

func (c *CPU) setRP2(p byte, v uint16) {
	if p == 3 {
		c.setAF(v)
		return
	}
	c.setRP16(p, v)
}

func (c *CPU) condTrue(y byte) bool {
	switch y & 3 {
	case 0:
		return !c.flag(flagZ)
	case 1:
		return c.flag(flagZ)
	case 2:
		return !c.flag(flagC)
	default:
		return c.flag(flagC)
	}
}

// applyALU dispatches the 8 ALU operations (ADD/ADC/SUB/SBC/AND/XOR/OR/CP)
// selected by y against the accumulator and operand v.
func (c *CPU) applyALU(y byte, v byte) {
	var res byte
	var z, n, h, cy bool
	switch y {
	case 0:
		res, z, n, h, cy = c.add8(c.A, v)
	case 1:
		res, z, n, h, cy = c.adc8(c.A, v, c.flag(flagC))
	case 2:
		res, z, n, h, cy = c.sub8(c.A, v)
	case 3:
		res, z, n, h, cy = c.sbc8(c.A, v, c.flag(flagC))
	case 4:
		res, z, n, h, cy = c.and8(c.A, v)
	case 5:
		res, z, n, h, cy = c.xor8(c.A, v)
	case 6:
		res, z, n, h, cy = c.or8(c.A, v)
	case 7:
		z, n, h, cy = c.cp8(c.A, v)
		c.setZNHC(z, n, h, cy)
		return
	}
	c.A = res
	c.setZNHC(z, n, h, cy)
}

// serviceInterrupt checks IE & IF and, if any bit is pending, dispatches it:
// clears the IF bit, pushes PC, jumps to the vector, and returns the 20-cycle
// dispatch cost. Returns 0 if nothing is pending.
func (c *CPU) serviceInterrupt() int {
	pending := c.bus.IE() & c.bus.IF()
	if pending == 0 {
		return 0
	}
	var bit uint
	for bit = 0; bit < 5; bit++ {
		if (pending & (1 << bit)) != 0 {
			break
		}
	}
	c.bus.ClearIF(1 << bit)
	c.halted = false
	c.IME = false
	c.push16(c.PC)
	c.PC = 0x40 + uint16(bit)*8
	return 20
}

// Step executes one instruction (or services one pending interrupt, or
// advances one cycle of HALT) and returns the T-cycles consumed.
func (c *CPU) Step() (cycles int) {
	defer func() {
		if c.bus != nil && cycles > 0 {
			c.bus.Tick(cycles)
		}
	}()

	if c.halted {
		if c.IME {
			if cyc := c.serviceInterrupt(); cyc != 0 {
				return cyc
			}
			return 4
		}
		if (c.bus.IF() & c.bus.IE()) != 0 {
			c.halted = false
		} else {
			return 4
		}
	}

	if c.IME {
		if cyc := c.serviceInterrupt(); cyc != 0 {
			return cyc
		}
	}

	// Apply a deferred EI now, after this step's own interrupt-dispatch
	// check (which used the still-disabled IME above) but before fetch:
	// the instruction that set ime_pending was the *previous* step's, so it
	// has already fully completed, and this step's dispatch check couldn't
	// have used the newly-promoted IME. This keeps the one-instruction EI
	// delay intact instead of collapsing it to zero.
	if c.eiPending {
		c.eiPending = false
		c.IME = true
	}

	op := c.fetch8()
	x := op >> 6
	y := (op >> 3) & 7
	z := op & 7
	p := y >> 1
	q := y & 1

	switch x {
	case 0:
		return c.execX0(op, y, z, p, q)
	case 1:
		return c.execX1(z, y)
	case 2:
		v := c.reg8(z)
		c.applyALU(y, v)
		if z == 6 {
			return 8
		}
		return 4
	default: // x == 3
		return c.execX3(op, y, z, p, q)
	}
}

func (c *CPU) execX0(op, y, z, p, q byte) int {
	switch z {
	case 0:
		switch y {
		case 0: // NOP
			return 4
		case 1: // LD (a16),SP
			addr := c.fetch16()
			c.write16(addr, c.SP)
			return 20
		case 2: // STOP
			c.fetch8() // STOP is followed by an ignored byte on DMG
			return 4
		case 3: // JR r8
			off := int8(c.fetch8())
			c.PC = uint16(int32(c.PC) + int32(off))
			return 12
		default: // JR cc,r8 (y=4..7)
			off := int8(c.fetch8())
			if c.condTrue(y - 4) {
				c.PC = uint16(int32(c.PC) + int32(off))
				return 12
			}
			return 8
		}
	case 1:
		if q == 0 { // LD rp,d16
			c.setRP16(p, c.fetch16())
			return 12
		}
		// ADD HL,rp
		hl := c.getHL()
		rp := c.rp16(p)
		r := uint32(hl) + uint32(rp)
		h := ((hl & 0x0FFF) + (rp & 0x0FFF)) > 0x0FFF
		c.setHL(uint16(r))
		c.setZNHC(c.flag(flagZ), false, h, r > 0xFFFF)
		return 8
	case 2:
		switch {
		case q == 0 && p == 0: // LD (BC),A
			c.write8(c.getBC(), c.A)
		case q == 0 && p == 1: // LD (DE),A
			c.write8(c.getDE(), c.A)
		case q == 0 && p == 2: // LD (HL+),A
			hl := c.getHL()
			c.write8(hl, c.A)
			c.setHL(hl + 1)
		case q == 0 && p == 3: // LD (HL-),A
			hl := c.getHL()
			c.write8(hl, c.A)
			c.setHL(hl - 1)
		case q == 1 && p == 0: // LD A,(BC)
			c.A = c.read8(c.getBC())
		case q == 1 && p == 1: // LD A,(DE)
			c.A = c.read8(c.getDE())
		case q == 1 && p == 2: // LD A,(HL+)
			hl := c.getHL()
			c.A = c.read8(hl)
			c.setHL(hl + 1)
		case q == 1 && p == 3: // LD A,(HL-)
			hl := c.getHL()
			c.A = c.read8(hl)
			c.setHL(hl - 1)
		}
		return 8
	case 3:
		if q == 0 {
			c.setRP16(p, c.rp16(p)+1)
		} else {
			c.setRP16(p, c.rp16(p)-1)
		}
		return 8
	case 4: // INC r
		return c.incDec8(y, true)
	case 5: // DEC r
		return c.incDec8(y, false)
	case 6: // LD r,d8
		v := c.fetch8()
		c.setReg8(y, v)
		if y == 6 {
			return 12
		}
		return 8
	default: // z == 7: rotates/DAA/CPL/SCF/CCF, selected by y
		return c.execRotDAA(y)
	}
}

func (c *CPU) incDec8(y byte, inc bool) int {
	old := c.reg8(y)
	var v byte
	var h bool
	if inc {
		v = old + 1
		h = (old & 0x0F) == 0x0F
	} else {
		v = old - 1
		h = (old & 0x0F) == 0x00
	}
	c.setReg8(y, v)
	c.setZNHC(v == 0, !inc, h, c.flag(flagC))
	if y == 6 {
		return 12
	}
	return 4
}

func (c *CPU) execRotDAA(y byte) int {
	switch y {
	case 0: // RLCA
		cf := (c.A >> 7) & 1
		c.A = (c.A << 1) | cf
		c.setZNHC(false, false, false, cf == 1)
	case 1: // RRCA
		cf := c.A & 1
		c.A = (c.A >> 1) | (cf << 7)
		c.setZNHC(false, false, false, cf == 1)
	case 2: // RLA
		cf := (c.A >> 7) & 1
		cin := byte(0)
		if c.flag(flagC) {
			cin = 1
		}
		c.A = (c.A << 1) | cin
		c.setZNHC(false, false, false, cf == 1)
	case 3: // RRA
		cf := c.A & 1
		cin := byte(0)
		if c.flag(flagC) {
			cin = 1
		}
		c.A = (c.A >> 1) | (cin << 7)
		c.setZNHC(false, false, false, cf == 1)
	case 4: // DAA
		a := c.A
		cf := c.flag(flagC)
		if !c.flag(flagN) {
			if cf || a > 0x99 {
				a += 0x60
				cf = true
			}
			if c.flag(flagH) || (a&0x0F) > 9 {
				a += 0x06
			}
		} else {
			if cf {
				a -= 0x60
			}
			if c.flag(flagH) {
				a -= 0x06
			}
		}
		c.A = a
		c.setZNHC(c.A == 0, c.flag(flagN), false, cf)
	case 5: // CPL
		c.A = ^c.A
		c.F = (c.F & (flagZ | flagC)) | flagN | flagH
	case 6: // SCF
		c.F = (c.F & flagZ) | flagC
	case 7: // CCF
		cy := !c.flag(flagC)
		c.F = (c.F & flagZ)
		if cy {
			c.F |= flagC
		}
	}
	return 4
}

func (c *CPU) execX1(z, y byte) int {
	if z == 6 && y == 6 {
		// HALT. On real hardware, if IME is off and an interrupt is already
		// pending, the CPU never actually sleeps: it falls straight into the
		// HALT bug (the following opcode byte is fetched without advancing
		// PC) instead.
		if !c.IME && (c.bus.IF()&c.bus.IE()) != 0 {
			c.haltBug = true
		} else {
			c.halted = true
		}
		return 4
	}
	v := c.reg8(z)
	c.setReg8(y, v)
	if z == 6 || y == 6 {
		return 8
	}
	return 4
}

func (c *CPU) execX3(op, y, z, p, q byte) int {
	switch z {
	case 0:
		switch y {
		case 0, 1, 2, 3: // RET cc
			if c.condTrue(y) {
				c.PC = c.pop16()
				return 20
			}
			return 8
		case 4: // LDH (a8),A
			n := uint16(c.fetch8())
			c.write8(0xFF00+n, c.A)
			return 12
		case 5: // ADD SP,r8
			return c.addSPOffset()
		case 6: // LDH A,(a8)
			n := uint16(c.fetch8())
			c.A = c.read8(0xFF00 + n)
			return 12
		default: // LD HL,SP+r8
			return c.loadHLSPOffset()
		}
	case 1:
		if q == 0 { // POP rp2
			c.setRP2(p, c.pop16())
			return 12
		}
		switch p {
		case 0: // RET
			c.PC = c.pop16()
			return 16
		case 1: // RETI
			c.PC = c.pop16()
			c.IME = true
			return 16
		case 2: // JP (HL)
			c.PC = c.getHL()
			return 4
		default: // LD SP,HL
			c.SP = c.getHL()
			return 8
		}
	case 2:
		switch y {
		case 0, 1, 2, 3: // JP cc,a16
			addr := c.fetch16()
			if c.condTrue(y) {
				c.PC = addr
				return 16
			}
			return 12
		case 4: // LD (C),A
			c.write8(0xFF00+uint16(c.C), c.A)
			return 8
		case 5: // LD (a16),A
			addr := c.fetch16()
			c.write8(addr, c.A)
			return 16
		case 6: // LD A,(C)
			c.A = c.read8(0xFF00 + uint16(c.C))
			return 8
		default: // LD A,(a16)
			addr := c.fetch16()
			c.A = c.read8(addr)
			return 16
		}
	case 3:
		switch y {
		case 0: // JP a16
			addr := c.fetch16()
			c.PC = addr
			return 16
		case 1: // CB prefix
			return c.execCB()
		case 6: // DI
			c.IME = false
			c.eiPending = false
			return 4
		case 7: // EI
			c.eiPending = true
			return 4
		default:
			return 4 // opcodes 0xD3,0xDB,0xE3,0xEB: illegal, treated as NOP
		}
	case 4: // CALL cc,a16
		if y > 3 {
			return 4 // opcodes 0xE4,0xEC,0xF4,0xFC: illegal, treated as NOP
		}
		addr := c.fetch16()
		if c.condTrue(y) {
			c.push16(c.PC)
			c.PC = addr
			return 24
		}
		return 12
	case 5:
		if q == 0 { // PUSH rp2
			c.push16(c.rp2(p))
			return 16
		}
		if p == 0 { // CALL a16
			addr := c.fetch16()
			c.push16(c.PC)
			c.PC = addr
			return 24
		}
		return 4 // 0xD5/0xE5/0xF5 handled by q==0 above; other p values are illegal opcodes
	case 6: // ALU A,d8
		c.applyALU(y, c.fetch8())
		return 8
	default: // z == 7: RST y*8
		c.push16(c.PC)
		c.PC = uint16(y) * 8
		return 16
	}
}

func (c *CPU) addSPOffset() int {
	off := int8(c.fetch8())
	low := byte(c.SP & 0xFF)
	_, _, _, h, cy := c.add8(low, byte(off))
	c.SP = uint16(int32(int16(c.SP)) + int32(off))
	c.setZNHC(false, false, h, cy)
	return 16
}

func (c *CPU) loadHLSPOffset() int {
	off := int8(c.fetch8())
	low := byte(c.SP & 0xFF)
	_, _, _, h, cy := c.add8(low, byte(off))
	c.setHL(uint16(int32(int16(c.SP)) + int32(off)))
	c.setZNHC(false, false, h, cy)
	return 12
}

// execCB decodes and runs one CB-prefixed opcode (rotate/shift/SWAP group,
// BIT, RES, SET), selected by the same y/z bit fields as the base table.
func (c *CPU) execCB() int {
	cb := c.fetch8()
	z := cb & 7
	y := (cb >> 3) & 7
	x := cb >> 6

	cycles := 8
	if z == 6 {
		cycles = 16
	}

	switch x {
	case 0: // rotate/shift/swap
		v := c.reg8(z)
		var cf byte
		switch y {
		case 0: // RLC
			cf = (v >> 7) & 1
			v = (v << 1) | cf
		case 1: // RRC
			cf = v & 1
			v = (v >> 1) | (cf << 7)
		case 2: // RL
			cf = (v >> 7) & 1
			cin := byte(0)
			if c.flag(flagC) {
				cin = 1
			}
			v = (v << 1) | cin
		case 3: // RR
			cf = v & 1
			cin := byte(0)
			if c.flag(flagC) {
				cin = 1
			}
			v = (v >> 1) | (cin << 7)
		case 4: // SLA
			cf = (v >> 7) & 1
			v <<= 1
		case 5: // SRA
			cf = v & 1
			v = (v >> 1) | (v & 0x80)
		case 6: // SWAP
			v = (v << 4) | (v >> 4)
		case 7: // SRL
			cf = v & 1
			v >>= 1
		}
		c.setReg8(z, v)
		if y == 6 {
			c.setZNHC(v == 0, false, false, false)
		} else {
			c.setZNHC(v == 0, false, false, cf == 1)
		}
		return cycles
	case 1: // BIT y,r
		v := c.reg8(z)
		bit := (v >> y) & 1
		c.F = (c.F & flagC) | flagH
		if bit == 0 {
			c.F |= flagZ
		}
		if z == 6 {
			return 12
		}
		return 8
	case 2: // RES y,r
		v := c.reg8(z)
		c.setReg8(z, v&^(1<<y))
		return cycles
	default: // SET y,r
		v := c.reg8(z)
		c.setReg8(z, v|(1<<y))
		return cycles
	}
}
