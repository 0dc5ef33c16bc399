package hostui

import (
	"github.com/LuanLessa/gbcore/internal/emu"
	"github.com/hajimehoshi/ebiten/v2"
)

// shade maps a 2-bit DMG palette index to an RGBA color, lightest to
// darkest, matching the classic DMG green-tinted LCD.
var shade = [4][4]byte{
	{0x9B, 0xBC, 0x0F, 0xFF},
	{0x8B, 0xAC, 0x0F, 0xFF},
	{0x30, 0x62, 0x30, 0xFF},
	{0x0F, 0x38, 0x0F, 0xFF},
}

// App is the ebiten.Game implementation hosting a Machine.
type App struct {
	cfg Config
	m   *emu.Machine
	tex *ebiten.Image
	pix []byte // scratch RGBA buffer, reused across frames
}

// NewApp wires cfg's window settings and returns an App driving m. A
// previously saved window scale (if any) fills in a zero Scale before
// defaults are applied.
func NewApp(cfg Config, m *emu.Machine) *App {
	cfg = LoadSettings(cfg)
	cfg.Defaults()
	ebiten.SetWindowTitle(cfg.Title)
	ebiten.SetWindowSize(160*cfg.Scale, 144*cfg.Scale)
	return &App{cfg: cfg, m: m, pix: make([]byte, 160*144*4)}
}

// Run blocks until the window is closed, persisting settings on exit.
func (a *App) Run() error {
	err := ebiten.RunGame(a)
	SaveSettings(a.cfg)
	return err
}

// Update polls the keyboard for joypad state and steps one emulated frame.
// Default bindings: arrows = d-pad, X = A, Z = B, Enter = Start,
// Backspace = Select.
func (a *App) Update() error {
	var btn emu.Buttons
	btn.Right = ebiten.IsKeyPressed(ebiten.KeyArrowRight)
	btn.Left = ebiten.IsKeyPressed(ebiten.KeyArrowLeft)
	btn.Up = ebiten.IsKeyPressed(ebiten.KeyArrowUp)
	btn.Down = ebiten.IsKeyPressed(ebiten.KeyArrowDown)
	btn.A = ebiten.IsKeyPressed(ebiten.KeyX)
	btn.B = ebiten.IsKeyPressed(ebiten.KeyZ)
	btn.Start = ebiten.IsKeyPressed(ebiten.KeyEnter)
	btn.Select = ebiten.IsKeyPressed(ebiten.KeyBackspace)
	a.m.SetButtons(btn)

	a.m.RunFrame()
	return nil
}

// Draw blits the last rendered frame, converting palette indices to RGBA.
func (a *App) Draw(screen *ebiten.Image) {
	if a.tex == nil {
		a.tex = ebiten.NewImage(160, 144)
	}
	fb := a.m.Framebuffer()
	if fb != nil {
		a.Frame(fb)
	}
	a.tex.WritePixels(a.pix)
	screen.DrawImage(a.tex, nil)
}

// Frame converts a completed 160x144 palette-index frame into the RGBA
// scratch buffer Draw blits.
func (a *App) Frame(pixels *[144][160]byte) {
	i := 0
	for y := 0; y < 144; y++ {
		row := &pixels[y]
		for x := 0; x < 160; x++ {
			c := shade[row[x]&3]
			copy(a.pix[i:i+4], c[:])
			i += 4
		}
	}
}

func (a *App) Layout(outsideWidth, outsideHeight int) (int, int) { return 160, 144 }
