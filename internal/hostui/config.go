// Package hostui implements a minimal ebiten-backed host for gbcore: a
// window that blits the emulator's framebuffer and polls the keyboard for
// joypad state once per frame.
package hostui

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds window-level settings.
type Config struct {
	Title string // window title
	Scale int    // integer upscaling factor
}

// Defaults fills in zero-valued fields with sane defaults.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "gbcore"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
}

// settingsPath mirrors the teacher's per-user settings location.
func settingsPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		d := filepath.Join(dir, "gbcore")
		_ = os.MkdirAll(d, 0755)
		return filepath.Join(d, "settings.json")
	}
	exe, _ := os.Executable()
	return filepath.Join(filepath.Dir(exe), "gbcore_settings.json")
}

// LoadSettings reads a previously saved Scale and Title from disk, if any,
// and overlays them onto cfg (CLI flags still win for fields already set).
func LoadSettings(cfg Config) Config {
	var saved Config
	if b, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(b, &saved)
	}
	if cfg.Scale <= 0 && saved.Scale > 0 {
		cfg.Scale = saved.Scale
	}
	if cfg.Title == "" && saved.Title != "" {
		cfg.Title = saved.Title
	}
	return cfg
}

// SaveSettings persists cfg so the next run remembers window scale.
func SaveSettings(cfg Config) {
	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(settingsPath(), b, 0644)
}
