package pipeline

import (
	"fmt"

	"github.com/hubastard/reveal/engine/core"
)

// Statistics captures the counts generated by the pipeline.
type Statistics struct {
	Frames        uint64
	DrawCalls     uint64
	StageSwitches uint64
	TargetBinds   uint64
	Resets        uint64
	Resizes       uint64
}

// Orchestrator issues single full-screen passes. Exactly one stage is current
// at a time; the draw uses that stage's program and uniform values against the
// bound target.
type Orchestrator struct {
	dev      core.Device
	reg      *Registry
	current  StageID
	selected bool
	uniforms [numStages]core.Uniforms
	stats    Statistics
}

func NewOrchestrator(dev core.Device, reg *Registry) *Orchestrator {
	o := &Orchestrator{dev: dev, reg: reg}
	for i := range o.uniforms {
		o.uniforms[i] = core.Uniforms{}
	}
	return o
}

// SelectStage makes id the only current stage.
func (o *Orchestrator) SelectStage(id StageID) error {
	if !o.reg.Registered(id) {
		return &UnknownStageError{Stage: id}
	}
	if !o.selected || o.current != id {
		o.stats.StageSwitches++
	}
	o.current, o.selected = id, true
	return nil
}

// Current returns the selected stage; ok is false before the first selection.
func (o *Orchestrator) Current() (id StageID, ok bool) { return o.current, o.selected }

// Visible reports whether id is the stage the next draw will use.
func (o *Orchestrator) Visible(id StageID) bool { return o.selected && o.current == id }

// BindTarget directs subsequent draws to rt, or the screen when rt is nil.
func (o *Orchestrator) BindTarget(rt core.RenderTarget) {
	o.dev.SetRenderTarget(rt)
	o.stats.TargetBinds++
}

// SetUniforms merges values into the uniform map of id. Names must be
// declared slots and values must match the slot's kind.
func (o *Orchestrator) SetUniforms(id StageID, values core.Uniforms) error {
	st, err := o.reg.Stage(id)
	if err != nil {
		return err
	}
	for name, v := range values {
		kind, ok := st.Slot(name)
		if !ok {
			return fmt.Errorf("stage %s: undeclared uniform %q", id, name)
		}
		if !kind.accepts(v) {
			return fmt.Errorf("stage %s: uniform %q wants %s, got %T", id, name, kind, v)
		}
	}
	dst := o.uniforms[id]
	for name, v := range values {
		dst[name] = v
	}
	return nil
}

// Uniforms returns a copy of the values held for id.
func (o *Orchestrator) Uniforms(id StageID) core.Uniforms {
	out := core.Uniforms{}
	if id.Valid() {
		for k, v := range o.uniforms[id] {
			out[k] = v
		}
	}
	return out
}

// DrawFrame issues exactly one draw with the current stage. Nothing is cleared
// first: feedback stages rely on the full-quad overwrite.
func (o *Orchestrator) DrawFrame() error {
	if !o.selected {
		return ErrNoStage
	}
	st, err := o.reg.Stage(o.current)
	if err != nil {
		return err
	}
	if err := o.dev.Draw(st.Program, o.uniforms[o.current]); err != nil {
		return fmt.Errorf("draw %s: %w", o.current, err)
	}
	o.stats.DrawCalls++
	return nil
}

// Stats returns the counters accumulated so far.
func (o *Orchestrator) Stats() Statistics { return o.stats }
