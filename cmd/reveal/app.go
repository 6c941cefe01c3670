package main

import (
	"context"
	"fmt"

	"github.com/hubastard/reveal/engine/assets"
	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/params"
	"github.com/hubastard/reveal/engine/pipeline"
	"github.com/hubastard/reveal/engine/profiler"
	"github.com/hubastard/reveal/engine/sim/fluid"
	"go.uber.org/zap"
)

// stepKeys binds the number row to the tunable fields; Shift steps down.
var stepKeys = map[core.Key]params.Field{
	core.Key1: params.FieldTimeStep,
	core.Key2: params.FieldForceRadius,
	core.Key3: params.FieldForceIntensity,
	core.Key4: params.FieldForceAttenuation,
	core.Key5: params.FieldDiffuse,
}

type watchFunc func(ctx context.Context, key string, onChange func()) error

type App struct {
	cfg   core.Config
	log   *zap.Logger
	img   *assets.Image
	store params.Store
	watch watchFunc

	// params mirrors the values queued for the simulation so several key
	// presses between two frames step from the latest value.
	params    params.Params
	debugView bool

	tex    core.Texture
	sim    *fluid.Simulation
	pipe   *pipeline.Pipeline
	cancel context.CancelFunc
}

func newApp(cfg core.Config, log *zap.Logger, img *assets.Image, store params.Store, initial params.Params) *App {
	return &App{cfg: cfg, log: log.Named("app"), img: img, store: store, params: initial.Clamped()}
}

func (a *App) OnStart(e *core.Engine) error {
	tex, err := e.Device.CreateTexture(a.img.TextureDesc())
	if err != nil {
		return fmt.Errorf("upload image: %w", err)
	}
	a.tex = tex

	w, h := e.Window.FramebufferSize()
	vp := core.Viewport{W: w, H: h}
	simCfg := fluid.Config{
		DiffuseIterations:  a.cfg.Sim.DiffuseIterations,
		PressureIterations: a.cfg.Sim.PressureIterations,
	}
	if a.sim, err = fluid.New(e.Device, vp, simCfg, e.Log); err != nil {
		return err
	}
	a.sim.SetParams(a.params)

	a.pipe, err = pipeline.New(e.Device, a.sim, pipeline.Source{Texture: tex, Aspect: a.img.Aspect()}, vp,
		pipeline.Options{Log: e.Log, StatsEvery: a.cfg.StatsEvery})
	if err != nil {
		return err
	}

	if a.watch != nil {
		ctx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		if err := a.watch(ctx, params.Key, a.reloadParams); err != nil {
			// Hot reload is a convenience; keep running without it.
			a.log.Warn("params watch disabled", zap.Error(err))
		}
	}
	a.log.Info("started", zap.Int("width", w), zap.Int("height", h))
	return nil
}

// reloadParams runs on the watcher goroutine and only talks to the command queue.
func (a *App) reloadParams() {
	p, _, err := params.Load(a.store)
	if err != nil {
		a.log.Warn("params reload failed", zap.Error(err))
		return
	}
	a.pipe.Enqueue(pipeline.ParamsCommand{Params: p})
}

func (a *App) OnFrame(e *core.Engine) error {
	defer profiler.Start("frame")()
	a.applyPointer(e)
	if err := a.pipe.Frame(); err != nil {
		return err
	}
	a.params = a.sim.Params()
	return nil
}

// applyPointer converts the cursor from top-left framebuffer pixels to
// bottom-left uv and feeds its motion to the solver.
func (a *App) applyPointer(e *core.Engine) {
	vp := a.pipe.Viewport()
	x, y := e.Input.Mouse()
	dx, dy := e.Input.MouseDelta()
	if dx == 0 && dy == 0 {
		return
	}
	fw, fh := float64(vp.W), float64(vp.H)
	a.sim.SetPointer(float32(x/fw), float32(1-y/fh))
	a.sim.AddPointerMotion(float32(dx/fw), float32(-dy/fh))
}

func (a *App) OnEvent(e *core.Engine, ev core.Event) {
	if a.pipe == nil {
		return
	}
	switch ev := ev.(type) {
	case core.EventResize:
		a.pipe.Enqueue(pipeline.ResizeCommand{Viewport: core.Viewport{W: ev.W, H: ev.H}})
	case core.EventKey:
		if ev.Down {
			a.onKey(e, ev)
		}
	}
}

func (a *App) onKey(e *core.Engine, ev core.EventKey) {
	switch ev.Key {
	case core.KeyEscape:
		e.Window.RequestClose()
	case core.KeyR:
		a.pipe.Enqueue(pipeline.ResetCommand{})
	case core.KeyA:
		on := !a.params.Additional()
		a.params = a.params.WithAdditional(on)
		a.pipe.Enqueue(pipeline.AdditionalVelocityCommand{On: on})
	case core.KeyD:
		a.debugView = !a.debugView
		a.pipe.Enqueue(pipeline.DebugViewCommand{On: a.debugView})
	case core.KeyS:
		if err := params.Save(a.store, a.params); err != nil {
			a.log.Error("save params", zap.Error(err))
			return
		}
		a.log.Info("params saved")
	default:
		field, ok := stepKeys[ev.Key]
		if !ok {
			return
		}
		dir := 1
		if ev.Mods&core.ModShift != 0 {
			dir = -1
		}
		a.params = a.params.Step(field, dir)
		a.pipe.Enqueue(pipeline.ParamsCommand{Params: a.params})
		a.log.Info("param", zap.Stringer("field", field), zap.Float64("value", a.params.Get(field)))
	}
}

func (a *App) OnShutdown(e *core.Engine) {
	if a.cancel != nil {
		a.cancel()
	}
	if a.pipe != nil {
		a.pipe.Close()
	}
	if a.sim != nil {
		a.sim.Close()
	}
	if a.tex != nil {
		e.Device.DeleteTexture(a.tex)
		a.tex = nil
	}
}
