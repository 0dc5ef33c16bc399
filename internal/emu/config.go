package emu

// Config contains settings that affect emulation behavior.
type Config struct {
	Trace bool // log a line on cartridge load
}
