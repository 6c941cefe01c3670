package pipeline

import (
	"fmt"

	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/params"
)

// Command is a request applied to the pipeline at the next tick boundary.
type Command interface {
	apply(p *Pipeline) error
	fmt.Stringer
}

// ResetCommand repopulates the fill buffers and the simulation with their baseline.
type ResetCommand struct{}

func (ResetCommand) apply(p *Pipeline) error { return p.ResetFrameBuffers() }
func (ResetCommand) String() string          { return "reset" }

// ResizeCommand reallocates every size-dependent buffer.
type ResizeCommand struct{ Viewport core.Viewport }

func (c ResizeCommand) apply(p *Pipeline) error { return p.OnResize(c.Viewport) }
func (c ResizeCommand) String() string {
	return fmt.Sprintf("resize %dx%d", c.Viewport.W, c.Viewport.H)
}

// ParamsCommand replaces the simulation params. Changing the additional
// velocity flag also resets the buffers.
type ParamsCommand struct{ Params params.Params }

func (c ParamsCommand) apply(p *Pipeline) error {
	prev := p.sim.Params()
	next := c.Params.Clamped()
	p.sim.SetParams(next)
	if prev.Additional() != next.Additional() {
		return p.ResetFrameBuffers()
	}
	return nil
}
func (c ParamsCommand) String() string { return "params" }

// AdditionalVelocityCommand switches the extra velocity source and resets the buffers.
type AdditionalVelocityCommand struct{ On bool }

func (c AdditionalVelocityCommand) apply(p *Pipeline) error {
	p.sim.SetParams(p.sim.Params().WithAdditional(c.On))
	return p.ResetFrameBuffers()
}
func (c AdditionalVelocityCommand) String() string {
	return fmt.Sprintf("additional velocity %t", c.On)
}

// DebugViewCommand switches the final pass to the fill and velocity composite.
type DebugViewCommand struct{ On bool }

func (c DebugViewCommand) apply(p *Pipeline) error {
	p.SetDebugView(c.On)
	return nil
}
func (c DebugViewCommand) String() string { return fmt.Sprintf("debug view %t", c.On) }
