// Package fluid is a GPU stable-fluids velocity solver. Every step is a
// full-screen pass over float render targets, run on the same core.Device as
// the effect that samples its output.
package fluid

import (
	"embed"
	"errors"
	"fmt"

	"github.com/hubastard/reveal/engine/assets"
	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/gfx"
	"github.com/hubastard/reveal/engine/params"
	"github.com/hubastard/reveal/engine/profiler"
	"go.uber.org/zap"
)

//go:embed shaders/*.frag
var shaderFS embed.FS

// ErrClosed is returned by Update after Close.
var ErrClosed = errors.New("fluid: simulation closed")

// Pass identifies one solver program.
type Pass int

const (
	PassAdvect Pass = iota
	PassDiffuse
	PassDivergence
	PassPressure
	PassProject
	PassClear

	numPasses
)

var passNames = [numPasses]string{
	PassAdvect:     "advect",
	PassDiffuse:    "diffuse",
	PassDivergence: "divergence",
	PassPressure:   "pressure",
	PassProject:    "project",
	PassClear:      "clear",
}

func (p Pass) String() string {
	if p < 0 || p >= numPasses {
		return fmt.Sprintf("Pass(%d)", int(p))
	}
	return passNames[p]
}

// Passes lists every solver program.
func Passes() []Pass {
	return []Pass{PassAdvect, PassDiffuse, PassDivergence, PassPressure, PassProject, PassClear}
}

// FragmentSource returns the embedded program of p.
func FragmentSource(p Pass) string {
	return assets.MustLoadShader(shaderFS, "shaders/"+passNames[p]+".frag")
}

// Config sizes the solver's iteration counts.
type Config struct {
	DiffuseIterations  int
	PressureIterations int
}

func DefaultConfig() Config { return Config{DiffuseIterations: 4, PressureIterations: 20} }

var targetDesc = core.RenderTargetDesc{Format: core.TextureRGBA32F, Filter: "linear"}

// Simulation owns every solver buffer. It is driven from the render thread
// only; SetPointer and AddPointerMotion must be called from that thread too.
type Simulation struct {
	log   *zap.Logger
	dev   core.Device
	cfg   Config
	progs [numPasses]core.Program

	velocity   *gfx.PingPong
	work       *gfx.PingPong
	pressure   *gfx.PingPong
	divergence core.RenderTarget

	res     core.Viewport
	p       params.Params
	time    float32
	pointer [2]float32 // uv, bottom-left origin
	motion  [2]float32 // uv delta accumulated since the last Update
	closed  bool
}

// New compiles the solver and allocates its buffers at vp.
func New(dev core.Device, vp core.Viewport, cfg Config, log *zap.Logger) (*Simulation, error) {
	if !vp.Valid() {
		return nil, fmt.Errorf("fluid: invalid resolution %dx%d", vp.W, vp.H)
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Simulation{log: log.Named("fluid"), dev: dev, cfg: cfg, p: params.Default(), pointer: [2]float32{0.5, 0.5}}

	vs := gfx.FullscreenVertexSource()
	for i := Pass(0); i < numPasses; i++ {
		prog, err := dev.Compile(vs, FragmentSource(i))
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("fluid: compile %s: %w", i, err)
		}
		s.progs[i] = prog
	}
	if err := s.allocate(vp); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.ResetFrameBuffers(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Simulation) allocate(vp core.Viewport) error {
	s.dev.SetRenderTarget(nil)
	s.release()

	desc := targetDesc
	desc.Width, desc.Height = vp.W, vp.H
	var err error
	if s.velocity, err = gfx.NewPingPong(s.dev, desc); err != nil {
		return fmt.Errorf("fluid: velocity buffers: %w", err)
	}
	if s.work, err = gfx.NewPingPong(s.dev, desc); err != nil {
		return fmt.Errorf("fluid: diffusion buffers: %w", err)
	}
	if s.pressure, err = gfx.NewPingPong(s.dev, desc); err != nil {
		return fmt.Errorf("fluid: pressure buffers: %w", err)
	}
	if s.divergence, err = s.dev.CreateRenderTarget(desc); err != nil {
		return fmt.Errorf("fluid: divergence buffer: %w", err)
	}
	s.res = vp
	return nil
}

func (s *Simulation) release() {
	for _, pp := range []*gfx.PingPong{s.velocity, s.work, s.pressure} {
		if pp != nil {
			pp.Release()
		}
	}
	s.velocity, s.work, s.pressure = nil, nil, nil
	if s.divergence != nil {
		s.dev.DeleteRenderTarget(s.divergence)
		s.divergence = nil
	}
}

func (s *Simulation) run(pass Pass, target core.RenderTarget, u core.Uniforms) error {
	defer profiler.Start("fluid." + passNames[pass])()
	s.dev.SetRenderTarget(target)
	if err := s.dev.Draw(s.progs[pass], u); err != nil {
		return fmt.Errorf("fluid %s: %w", pass, err)
	}
	return nil
}

// Update advances the field by one time step.
func (s *Simulation) Update() error {
	if s.closed {
		return ErrClosed
	}
	defer profiler.Start("fluid.update")()
	p := s.p
	dt := float32(p.TimeStep)
	res := s.res.Vec2()
	s.time += dt

	additional := float32(0)
	if p.Additional() {
		additional = 1
	}
	if err := s.run(PassAdvect, s.velocity.Write(), core.Uniforms{
		"resolution":         res,
		"velocityTexture":    s.velocity.Read().Texture(),
		"timeStep":           dt,
		"forceRadius":        float32(p.ForceRadius),
		"forceIntensity":     float32(p.ForceIntensity),
		"forceAttenuation":   float32(p.ForceAttenuation),
		"additionalVelocity": additional,
		"time":               s.time,
		"pointerPos":         s.pointer,
		"pointerDelta":       s.motion,
	}); err != nil {
		return err
	}
	s.velocity.Advance()
	s.motion = [2]float32{}

	current := s.velocity.Read().Texture()
	if p.Diffuse > 0 {
		source := current
		for i := 0; i < s.cfg.DiffuseIterations; i++ {
			if err := s.run(PassDiffuse, s.work.Write(), core.Uniforms{
				"resolution":      res,
				"velocityTexture": current,
				"sourceTexture":   source,
				"diffuse":         float32(p.Diffuse),
				"timeStep":        dt,
			}); err != nil {
				return err
			}
			s.work.Advance()
			current = s.work.Read().Texture()
		}
	}

	if err := s.run(PassDivergence, s.divergence, core.Uniforms{
		"resolution":      res,
		"velocityTexture": current,
	}); err != nil {
		return err
	}

	for i := 0; i < s.cfg.PressureIterations; i++ {
		if err := s.run(PassPressure, s.pressure.Write(), core.Uniforms{
			"resolution":        res,
			"pressureTexture":   s.pressure.Read().Texture(),
			"divergenceTexture": s.divergence.Texture(),
		}); err != nil {
			return err
		}
		s.pressure.Advance()
	}

	if err := s.run(PassProject, s.velocity.Write(), core.Uniforms{
		"resolution":      res,
		"velocityTexture": current,
		"pressureTexture": s.pressure.Read().Texture(),
	}); err != nil {
		return err
	}
	s.velocity.Advance()
	return nil
}

// Resize reallocates every buffer at vp and clears them.
func (s *Simulation) Resize(vp core.Viewport) error {
	if !vp.Valid() {
		return fmt.Errorf("fluid: invalid resolution %dx%d", vp.W, vp.H)
	}
	if err := s.allocate(vp); err != nil {
		return err
	}
	s.log.Debug("resized", zap.Int("width", vp.W), zap.Int("height", vp.H))
	return s.ResetFrameBuffers()
}

// ResetFrameBuffers zeroes velocity, pressure and divergence.
func (s *Simulation) ResetFrameBuffers() error {
	var targets []core.RenderTarget
	for _, pp := range []*gfx.PingPong{s.velocity, s.work, s.pressure} {
		slots := pp.Slots()
		targets = append(targets, slots[0], slots[1])
	}
	targets = append(targets, s.divergence)
	for _, rt := range targets {
		if err := s.run(PassClear, rt, nil); err != nil {
			return err
		}
	}
	s.motion = [2]float32{}
	return nil
}

// VelocityTexture is the latest velocity field; xy holds the velocity in uv units.
func (s *Simulation) VelocityTexture() core.Texture { return s.velocity.Read().Texture() }

// Resolution is the solver grid size in pixels.
func (s *Simulation) Resolution() [2]float32 { return s.res.Vec2() }

func (s *Simulation) Params() params.Params { return s.p }

// SetParams clamps p into the tuning ranges.
func (s *Simulation) SetParams(p params.Params) { s.p = p.Clamped() }

// SetPointer places the force source at (u, v), bottom-left origin.
func (s *Simulation) SetPointer(u, v float32) { s.pointer = [2]float32{u, v} }

// AddPointerMotion accumulates pointer movement applied on the next Update.
func (s *Simulation) AddPointerMotion(du, dv float32) {
	s.motion[0] += du
	s.motion[1] += dv
}

// Close unbinds and deletes every buffer and program. Safe to call repeatedly.
func (s *Simulation) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.dev.SetRenderTarget(nil)
	s.release()
	for i, prog := range s.progs {
		if prog != nil {
			s.dev.DeleteProgram(prog)
			s.progs[i] = nil
		}
	}
}
