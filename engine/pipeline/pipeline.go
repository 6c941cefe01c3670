// Package pipeline renders the fill/reveal effect as an ordered sequence of
// full-screen passes over a ping-pong pair of float render targets.
package pipeline

import (
	"errors"
	"fmt"
	"sync"

	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/gfx"
	"github.com/hubastard/reveal/engine/params"
	"github.com/hubastard/reveal/engine/profiler"
	"go.uber.org/zap"
)

// Simulation is the velocity field advanced once per frame. The pipeline only
// reads its outputs and never writes into its buffers.
type Simulation interface {
	Update() error
	Resize(vp core.Viewport) error
	ResetFrameBuffers() error
	VelocityTexture() core.Texture
	Resolution() [2]float32
	Params() params.Params
	SetParams(p params.Params)
}

// Source is the picture the effect covers.
type Source struct {
	Texture core.Texture
	Aspect  float64 // width / height
}

type Options struct {
	Log *zap.Logger
	// Registry supplies already registered stages; nil registers the built-ins.
	Registry *Registry
	// StatsEvery logs statistics every n frames at debug level; 0 disables.
	StatsEvery uint64
}

var fillTargetDesc = core.RenderTargetDesc{Format: core.TextureRGBA32F, Filter: "linear"}

// Pipeline owns the fill buffers, the stage registry and the orchestrator.
// All methods except Enqueue must run on the thread owning the device.
type Pipeline struct {
	log  *zap.Logger
	dev  core.Device
	sim  Simulation
	src  Source
	reg  *Registry
	orch *Orchestrator
	fill *gfx.PingPong
	vp   core.Viewport

	ownsRegistry bool
	statsEvery   uint64
	debugView    bool
	closed       bool

	mu      sync.Mutex
	pending []Command
}

// New registers the stages, allocates the fill buffers at vp and resets them
// to the baseline. Any error leaves nothing allocated.
func New(dev core.Device, sim Simulation, src Source, vp core.Viewport, opts Options) (*Pipeline, error) {
	if !vp.Valid() {
		return nil, fmt.Errorf("pipeline: invalid viewport %dx%d", vp.W, vp.H)
	}
	if src.Texture == nil {
		return nil, errors.New("pipeline: no source texture")
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{
		log:        log.Named("pipeline"),
		dev:        dev,
		sim:        sim,
		src:        src,
		reg:        opts.Registry,
		vp:         vp,
		statsEvery: opts.StatsEvery,
	}
	if p.reg == nil {
		p.reg = NewRegistry(dev)
		p.ownsRegistry = true
		if err := p.reg.RegisterDefaults(); err != nil {
			p.reg.Release()
			return nil, err
		}
	}
	p.orch = NewOrchestrator(dev, p.reg)

	desc := fillTargetDesc
	desc.Width, desc.Height = vp.W, vp.H
	fill, err := gfx.NewPingPong(dev, desc)
	if err != nil {
		p.releaseRegistry()
		return nil, &ResourceAllocationError{What: "fill buffers", Width: vp.W, Height: vp.H, Err: err}
	}
	p.fill = fill

	if err := p.ResetFrameBuffers(); err != nil {
		p.Close()
		return nil, err
	}
	p.log.Info("pipeline ready", zap.Int("width", vp.W), zap.Int("height", vp.H),
		zap.Float64("image_aspect", src.Aspect))
	return p, nil
}

// Viewport returns the size shared by the fill buffers, simulation and final pass.
func (p *Pipeline) Viewport() core.Viewport { return p.vp }

// Orchestrator exposes the pass orchestrator.
func (p *Pipeline) Orchestrator() *Orchestrator { return p.orch }

// FillBuffers exposes the ping-pong pair for inspection.
func (p *Pipeline) FillBuffers() *gfx.PingPong { return p.fill }

// DebugView reports whether the final pass shows the fill and velocity fields
// instead of the picture.
func (p *Pipeline) DebugView() bool { return p.debugView }

// SetDebugView switches the final pass between the picture and the debug composite.
func (p *Pipeline) SetDebugView(on bool) {
	if p.debugView != on {
		p.log.Debug("debug view", zap.Bool("on", on))
	}
	p.debugView = on
}

// Stats returns the accumulated counters.
func (p *Pipeline) Stats() Statistics { return p.orch.Stats() }

// Enqueue schedules cmd for the start of the next frame. Safe from any goroutine.
func (p *Pipeline) Enqueue(cmd Command) {
	p.mu.Lock()
	p.pending = append(p.pending, cmd)
	p.mu.Unlock()
}

// Drain applies every queued command in order.
func (p *Pipeline) Drain() error {
	p.mu.Lock()
	cmds := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, cmd := range cmds {
		p.log.Debug("command", zap.Stringer("cmd", cmd))
		if err := cmd.apply(p); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

// Frame advances the simulation and runs the fill and final passes.
// An error is fatal: the ping-pong pair would desynchronise if a frame were skipped.
func (p *Pipeline) Frame() error {
	if p.closed {
		return ErrClosed
	}
	defer profiler.Start("pipeline.frame")()
	if err := p.Drain(); err != nil {
		return err
	}
	if err := p.sim.Update(); err != nil {
		return fmt.Errorf("simulation update: %w", err)
	}
	velocity := p.sim.VelocityTexture()

	// fill pass
	write, read := p.fill.Targets()
	if err := p.orch.SetUniforms(StageFill, core.Uniforms{
		UniformResolution:      p.vp.Vec2(),
		UniformVelocityTexture: velocity,
		UniformFillTexture:     read.Texture(),
	}); err != nil {
		return err
	}
	if err := p.pass(StageFill, write); err != nil {
		return err
	}
	p.fill.Advance()

	// final pass
	debug := float32(0)
	if p.debugView {
		debug = 1
	}
	if err := p.orch.SetUniforms(StageFinal, core.Uniforms{
		UniformResolution:      p.sim.Resolution(),
		UniformVelocityTexture: velocity,
		UniformFillTexture:     p.fill.Read().Texture(),
		UniformImage:           p.src.Texture,
		UniformCoveredScale:    CoveredScale(p.src.Aspect, p.vp.Aspect()),
		UniformDebugView:       debug,
	}); err != nil {
		return err
	}
	if err := p.pass(StageFinal, nil); err != nil {
		return err
	}

	p.orch.stats.Frames++
	if p.statsEvery > 0 && p.orch.stats.Frames%p.statsEvery == 0 {
		s := p.orch.stats
		p.log.Debug("stats",
			zap.Uint64("frames", s.Frames),
			zap.Uint64("draw_calls", s.DrawCalls),
			zap.Uint64("stage_switches", s.StageSwitches),
			zap.Uint64("target_binds", s.TargetBinds),
			zap.Uint64("resets", s.Resets),
			zap.Uint64("resizes", s.Resizes))
	}
	return nil
}

func (p *Pipeline) pass(id StageID, target core.RenderTarget) error {
	defer profiler.Start("pipeline." + id.String())()
	if err := p.orch.SelectStage(id); err != nil {
		return err
	}
	p.orch.BindTarget(target)
	return p.orch.DrawFrame()
}

// OnResize resizes the simulation, reallocates both fill buffers at vp and
// resets everything to the baseline. Non-positive sizes (minimised window)
// are ignored.
func (p *Pipeline) OnResize(vp core.Viewport) error {
	if p.closed {
		return ErrClosed
	}
	if !vp.Valid() {
		p.log.Debug("ignoring resize", zap.Int("width", vp.W), zap.Int("height", vp.H))
		return nil
	}
	if err := p.sim.Resize(vp); err != nil {
		return fmt.Errorf("simulation resize: %w", err)
	}

	// Never delete a target that is still bound.
	p.orch.BindTarget(nil)
	if err := p.fill.Resize(vp.W, vp.H); err != nil {
		return &ResourceAllocationError{What: "fill buffers", Width: vp.W, Height: vp.H, Err: err}
	}
	p.vp = vp
	p.orch.stats.Resizes++
	p.log.Debug("resized", zap.Int("width", vp.W), zap.Int("height", vp.H))
	return p.ResetFrameBuffers()
}

// ResetFrameBuffers resets the simulation and draws the baseline into each
// fill buffer independently.
func (p *Pipeline) ResetFrameBuffers() error {
	if p.closed {
		return ErrClosed
	}
	if err := p.sim.ResetFrameBuffers(); err != nil {
		return fmt.Errorf("simulation reset: %w", err)
	}
	for _, rt := range p.fill.Slots() {
		if err := p.pass(StageResetFill, rt); err != nil {
			return err
		}
	}
	p.orch.stats.Resets++
	return nil
}

// Close unbinds any render target, then releases the fill buffers and the
// programs it registered. Safe to call repeatedly.
func (p *Pipeline) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.orch.BindTarget(nil)
	if p.fill != nil {
		p.fill.Release()
	}
	p.releaseRegistry()
	p.log.Debug("pipeline closed")
}

func (p *Pipeline) releaseRegistry() {
	if p.ownsRegistry {
		p.reg.Release()
	}
}
