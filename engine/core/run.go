package core

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
)

// Run wires the platform window + device and executes the main loop.
// It returns the first error produced by OnStart or OnFrame.
func Run(app App, cfg Config, log *zap.Logger, newWindow func(Config) (Window, error), newDevice func(Window, Config) (Device, error)) (err error) {
	// Graphics contexts require the main OS thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if log == nil {
		log = zap.NewNop()
	}

	win, err := newWindow(cfg)
	if err != nil {
		return fmt.Errorf("create window: %w", err)
	}
	defer win.Destroy()

	dev, err := newDevice(win, cfg)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	defer dev.Shutdown()

	w, h := win.FramebufferSize()
	dev.Resize(w, h)

	info := dev.Info()
	log.Info("device ready",
		zap.String("vendor", info.Vendor),
		zap.String("renderer", info.Renderer),
		zap.String("version", info.Version),
		zap.Int("width", w), zap.Int("height", h))

	eng := &Engine{Window: win, Device: dev, Input: NewInput(), Log: log, start: time.Now()}
	win.SetEventCallback(func(ev Event) {
		eng.Input.Handle(ev)
		if r, ok := ev.(EventResize); ok {
			if r.W < 1 || r.H < 1 {
				return
			}
			dev.Resize(r.W, r.H)
		}
		if _, ok := ev.(EventCloseRequested); ok {
			win.RequestClose()
		}
		app.OnEvent(eng, ev)
	})

	if err := app.OnStart(eng); err != nil {
		app.OnShutdown(eng)
		return fmt.Errorf("start: %w", err)
	}
	defer app.OnShutdown(eng)

	var (
		fps      = newFPSCounter(time.Second)
		titleFmt = cfg.Title + " (%.1f FPS)"
	)
	for !win.ShouldClose() {
		// Events arrive between frames, never mid-frame.
		win.PollEvents()

		if err := app.OnFrame(eng); err != nil {
			log.Error("frame failed; stopping loop", zap.Uint64("frame", eng.frames), zap.Error(err))
			return fmt.Errorf("frame %d: %w", eng.frames, err)
		}
		eng.frames++

		win.SwapBuffers()

		if rate, ok := fps.tick(time.Now()); ok && cfg.ShowFPS {
			win.SetTitle(fmt.Sprintf(titleFmt, rate))
			log.Debug("fps", zap.Float64("fps", rate))
		}
	}

	log.Info("engine exit", zap.Uint64("frames", eng.frames), zap.Duration("uptime", eng.Uptime()))
	return nil
}

// fpsCounter averages frame rate over a fixed window.
type fpsCounter struct {
	window time.Duration
	start  time.Time
	count  int
}

func newFPSCounter(window time.Duration) *fpsCounter { return &fpsCounter{window: window} }

func (c *fpsCounter) tick(now time.Time) (float64, bool) {
	if c.start.IsZero() {
		c.start = now
	}
	c.count++
	elapsed := now.Sub(c.start)
	if elapsed < c.window {
		return 0, false
	}
	rate := float64(c.count) / elapsed.Seconds()
	c.start, c.count = now, 0
	return rate, true
}
