// Package emu wires the CPU, bus, PPU, and timer into a single Machine
// facade that hosts (headless runners, the ebiten UI) drive one frame at a
// time.
package emu

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/LuanLessa/gbcore/internal/bus"
	"github.com/LuanLessa/gbcore/internal/cart"
	"github.com/LuanLessa/gbcore/internal/cpu"
)

// Buttons mirrors the joypad state a host polls once per frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

func (b Buttons) mask() byte {
	var m byte
	if b.A {
		m |= bus.JoypA
	}
	if b.B {
		m |= bus.JoypB
	}
	if b.Start {
		m |= bus.JoypStart
	}
	if b.Select {
		m |= bus.JoypSelectBtn
	}
	if b.Up {
		m |= bus.JoypUp
	}
	if b.Down {
		m |= bus.JoypDown
	}
	if b.Left {
		m |= bus.JoypLeft
	}
	if b.Right {
		m |= bus.JoypRight
	}
	return m
}

// Machine wires CPU+bus+PPU+timer into a frame-steppable unit.
type Machine struct {
	cfg Config

	bus *bus.Bus
	cpu *cpu.CPU
}

// New constructs an empty Machine; LoadCartridge (or LoadROMFromFile) must
// be called before stepping.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// LoadCartridge parses rom and wires a fresh CPU+bus+PPU+timer around it,
// starting the CPU in its post-boot-like default state (no boot ROM
// execution, per design).
func (m *Machine) LoadCartridge(rom []byte) error {
	if len(rom) == 0 {
		return fmt.Errorf("emu: empty ROM image")
	}
	r := cart.New(rom)
	b := bus.NewWithROM(r)
	c := cpu.New(b)
	c.ResetNoBoot()
	m.bus = b
	m.cpu = c
	if m.cfg.Trace {
		log.Printf("emu: loaded %s", r.String())
	}
	return nil
}

// LoadROMFromFile reads path and loads it as a cartridge image.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("emu: read ROM: %w", err)
	}
	return m.LoadCartridge(data)
}

// SetSerialWriter routes serial-port bytes (blargg test-ROM status strings,
// notably) to w.
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// SetButtons updates which joypad buttons are currently held.
func (m *Machine) SetButtons(b Buttons) {
	if m.bus != nil {
		m.bus.SetJoypadState(b.mask())
	}
}

// Halted reports whether the CPU is parked in HALT (diagnostic only; HALT
// with IME set still wakes on the next pending interrupt).
func (m *Machine) Halted() bool {
	if m.cpu == nil {
		return false
	}
	return m.cpu.Halted()
}

// Step executes a single CPU instruction (ticking the bus/PPU/timer for the
// cycles it consumes) and returns the cycle count.
func (m *Machine) Step() int {
	if m.cpu == nil {
		return 0
	}
	return m.cpu.Step()
}

// RunFrame steps the CPU until the PPU reports a completed frame right after
// a step, or until one frame's worth of T-cycles (154*456) has run.
func (m *Machine) RunFrame() {
	m.runUntilFrame(true)
}

// StepFrameNoRender runs exactly one frame's worth of steps without
// requiring the PPU's LCD to be on (used by headless serial-output test-ROM
// runners, which may never turn the LCD on at all).
func (m *Machine) StepFrameNoRender() {
	m.runUntilFrame(false)
}

func (m *Machine) runUntilFrame(stopAtFrame bool) {
	if m.cpu == nil || m.bus == nil {
		return
	}
	const dotsPerFrame = 154 * 456
	dots := 0
	for dots < dotsPerFrame {
		cycles := m.cpu.Step()
		dots += cycles
		if stopAtFrame && m.bus.PPU().FrameReady() {
			return
		}
	}
}

// Framebuffer exposes the PPU's last-rendered frame as palette indices
// (0..3), row-major, 160x144.
func (m *Machine) Framebuffer() *[144][160]byte {
	if m.bus == nil {
		return nil
	}
	return &m.bus.PPU().Framebuffer
}

// Bus exposes the underlying bus for tools/tests that need direct access.
func (m *Machine) Bus() *bus.Bus { return m.bus }

// CPU exposes the underlying CPU for tools/tests that need direct access.
func (m *Machine) CPU() *cpu.CPU { return m.cpu }
