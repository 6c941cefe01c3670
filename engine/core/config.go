package core

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
)

// Config for the engine run.
type Config struct {
	Title   string `toml:"title"`
	Width   int    `toml:"width"`
	Height  int    `toml:"height"`
	VSync   bool   `toml:"vsync"`
	ShowFPS bool   `toml:"show_fps"`

	// Image is the covered picture revealed by the effect.
	Image string `toml:"image"`
	// ParamsDir holds the persisted tuning store.
	ParamsDir string `toml:"params_dir"`
	// WatchParams reloads params when the store file changes on disk.
	WatchParams bool `toml:"watch_params"`
	// MaxImageSize bounds the longest side of the uploaded picture; 0 keeps it as decoded.
	MaxImageSize int `toml:"max_image_size"`
	// StatsEvery logs pipeline statistics every n frames at debug level; 0 disables.
	StatsEvery uint64 `toml:"stats_every"`

	Sim SimConfig `toml:"sim"`
	Log LogConfig `toml:"log"`
}

// SimConfig sizes the solver iterations.
type SimConfig struct {
	DiffuseIterations  int `toml:"diffuse_iterations"`
	PressureIterations int `toml:"pressure_iterations"`
}

type LogConfig struct {
	Level       string `toml:"level"` // debug | info | warn | error
	Development bool   `toml:"development"`
}

// DefaultConfig returns the settings used when no file overrides them.
func DefaultConfig() Config {
	return Config{
		Title:        "reveal",
		Width:        1280,
		Height:       720,
		VSync:        true,
		ShowFPS:      true,
		Image:        "assets/images/cover.jpg",
		ParamsDir:    "~/.config/reveal",
		WatchParams:  true,
		MaxImageSize: 4096,
		StatsEvery:   600,
		Sim:          SimConfig{DiffuseIterations: 4, PressureIterations: 20},
		Log:          LogConfig{Level: "info"},
	}
}

// LoadConfig reads a TOML file over DefaultConfig. A missing file is not an
// error; the defaults are returned as-is.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config %q: %w", path, err)
		default:
			if err := toml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %q: %w", path, err)
			}
		}
	}
	return cfg, cfg.normalize()
}

func (c *Config) normalize() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("config: window size must be positive, got %dx%d", c.Width, c.Height)
	}
	if c.MaxImageSize < 0 || c.Sim.DiffuseIterations < 0 || c.Sim.PressureIterations < 0 {
		return fmt.Errorf("config: max_image_size and sim iterations must not be negative")
	}
	var err error
	if c.ParamsDir, err = homedir.Expand(c.ParamsDir); err != nil {
		return fmt.Errorf("config: params_dir: %w", err)
	}
	if c.Image, err = homedir.Expand(c.Image); err != nil {
		return fmt.Errorf("config: image: %w", err)
	}
	return nil
}
