// Command reveal covers a picture with a darkened veil that the pointer wipes
// away through a fluid simulation.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hubastard/reveal/engine/assets"
	"github.com/hubastard/reveal/engine/core"
	glbackend "github.com/hubastard/reveal/engine/gfx/gl"
	"github.com/hubastard/reveal/engine/params"
	"github.com/hubastard/reveal/engine/platform"
	"github.com/hubastard/reveal/engine/profiler"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "reveal.toml", "path to the TOML config file")
	imagePath := flag.String("image", "", "picture to reveal (overrides the config)")
	flag.Parse()

	cfg, err := core.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *imagePath != "" {
		cfg.Image = *imagePath
	}

	log, err := core.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	if err := run(cfg, log); err != nil {
		log.Error("reveal failed", zap.Error(err))
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg core.Config, log *zap.Logger) error {
	profiler.Init(1 << 18)
	defer reportProfile(log)

	store := params.NewFileStore(cfg.ParamsDir, log)
	img, initial, err := load(context.Background(), cfg, store, log)
	if err != nil {
		return err
	}

	a := newApp(cfg, log, img, store, initial)
	if cfg.WatchParams {
		a.watch = store.Watch
	}

	newWindow := func(cfg core.Config) (core.Window, error) {
		return platform.NewGLFWWindow(cfg, log)
	}
	newDevice := func(win core.Window, cfg core.Config) (core.Device, error) {
		return glbackend.NewDeviceGL(win, cfg, log)
	}
	return core.Run(a, cfg, log, newWindow, newDevice)
}

// load decodes the picture and reads the stored params concurrently. The
// window is not opened until both are done.
func load(ctx context.Context, cfg core.Config, store params.Store, log *zap.Logger) (*assets.Image, params.Params, error) {
	var (
		img     *assets.Image
		initial = params.Default()
	)
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res := <-assets.LoadImageAsync(ctx, cfg.Image)
		if res.Err != nil {
			return res.Err
		}
		img = res.Image.Downscale(cfg.MaxImageSize)
		log.Info("image loaded",
			zap.String("path", cfg.Image),
			zap.String("format", img.Format),
			zap.Int("width", img.Width), zap.Int("height", img.Height))
		return nil
	})
	g.Go(func() error {
		p, found, err := params.Load(store)
		if err != nil {
			// A corrupt store should not keep the picture from showing.
			log.Warn("params unreadable; using defaults", zap.Error(err))
			return nil
		}
		initial = p
		log.Info("params loaded", zap.Bool("stored", found))
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, initial, err
	}
	return img, initial, nil
}

// reportProfile logs the costliest scopes and writes a speedscope capture.
// Only builds with the profile tag record anything.
func reportProfile(log *zap.Logger) {
	if !profiler.Enabled() {
		return
	}
	for i, s := range profiler.Summary() {
		if i == 10 {
			break
		}
		log.Info("scope",
			zap.String("name", s.Name),
			zap.Int("count", s.Count),
			zap.Duration("mean", s.Mean()),
			zap.Duration("max", s.Max))
	}
	path := filepath.Join(os.TempDir(), "reveal.speedscope.json")
	if err := profiler.Dump(path); err != nil {
		log.Warn("profile dump failed", zap.Error(err))
		return
	}
	log.Info("profile written", zap.String("path", path))
}
