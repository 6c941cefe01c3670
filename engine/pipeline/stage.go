package pipeline

import (
	"embed"
	"errors"
	"fmt"

	"github.com/hubastard/reveal/engine/assets"
	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/gfx"
)

//go:embed shaders/*.frag
var shaderFS embed.FS

// StageID names a drawable pass. The shared vertex program is not a stage.
type StageID int

const (
	StageFill StageID = iota
	StageResetFill
	StageFinal

	numStages
)

var stageNames = [numStages]string{
	StageFill:      "fill",
	StageResetFill: "resetFill",
	StageFinal:     "final",
}

func (id StageID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("StageID(%d)", int(id))
	}
	return stageNames[id]
}

// Valid reports whether id belongs to the closed stage set.
func (id StageID) Valid() bool { return id >= 0 && id < numStages }

// Stages lists every drawable stage in pass order.
func Stages() []StageID { return []StageID{StageFill, StageResetFill, StageFinal} }

// UniformKind is the expected value shape of a uniform slot.
type UniformKind int

const (
	UniformFloat UniformKind = iota
	UniformVec2
	UniformSampler
)

func (k UniformKind) String() string {
	switch k {
	case UniformFloat:
		return "float"
	case UniformVec2:
		return "vec2"
	case UniformSampler:
		return "sampler2D"
	}
	return fmt.Sprintf("UniformKind(%d)", int(k))
}

// accepts reports whether v has the shape of k.
func (k UniformKind) accepts(v any) bool {
	switch k {
	case UniformFloat:
		_, ok := v.(float32)
		return ok
	case UniformVec2:
		_, ok := v.([2]float32)
		return ok
	case UniformSampler:
		t, ok := v.(core.Texture)
		return ok && t != nil
	}
	return false
}

// Slots declares the uniforms a stage reads.
type Slots map[string]UniformKind

// Uniform names shared by the stages.
const (
	UniformResolution      = "resolution"
	UniformVelocityTexture = "velocityTexture"
	UniformFillTexture     = "fillTexture"
	UniformImage           = "image"
	UniformCoveredScale    = "coveredScale"
	UniformDebugView       = "debugView"
)

// DefaultSlots returns the uniform declaration of a built-in stage.
func DefaultSlots(id StageID) Slots {
	switch id {
	case StageFill:
		return Slots{
			UniformResolution:      UniformVec2,
			UniformVelocityTexture: UniformSampler,
			UniformFillTexture:     UniformSampler,
		}
	case StageFinal:
		return Slots{
			UniformResolution:      UniformVec2,
			UniformVelocityTexture: UniformSampler,
			UniformFillTexture:     UniformSampler,
			UniformImage:           UniformSampler,
			UniformCoveredScale:    UniformVec2,
			UniformDebugView:       UniformFloat,
		}
	}
	return Slots{}
}

var fragmentFiles = [numStages]string{
	StageFill:      "shaders/fill.frag",
	StageResetFill: "shaders/reset_fill.frag",
	StageFinal:     "shaders/final.frag",
}

// VertexSource is the full-screen vertex program shared by every stage.
func VertexSource() string { return gfx.FullscreenVertexSource() }

// FragmentSource returns the built-in fragment program of id.
func FragmentSource(id StageID) string {
	if !id.Valid() {
		return ""
	}
	return assets.MustLoadShader(shaderFS, fragmentFiles[id])
}

// Stage is an immutable compiled pass.
type Stage struct {
	ID      StageID
	Program core.Program
	slots   Slots
}

// Slot returns the declared kind of a uniform.
func (s *Stage) Slot(name string) (UniformKind, bool) {
	k, ok := s.slots[name]
	return k, ok
}

// NumSlots reports how many uniforms the stage declares.
func (s *Stage) NumSlots() int { return len(s.slots) }

// Registry maps stage ids to compiled programs.
type Registry struct {
	dev    core.Device
	stages [numStages]*Stage
}

func NewRegistry(dev core.Device) *Registry { return &Registry{dev: dev} }

// Register compiles a program pair for id. Registration is once per id.
func (r *Registry) Register(id StageID, vertexSrc, fragmentSrc string, slots Slots) error {
	if !id.Valid() {
		return &UnknownStageError{Stage: id}
	}
	if r.stages[id] != nil {
		return fmt.Errorf("register %s: %w", id, ErrDuplicateStage)
	}
	prog, err := r.dev.Compile(vertexSrc, fragmentSrc)
	if err != nil {
		return &CompileError{Stage: id, Log: err.Error(), Err: err}
	}
	own := make(Slots, len(slots))
	for k, v := range slots {
		own[k] = v
	}
	r.stages[id] = &Stage{ID: id, Program: prog, slots: own}
	return nil
}

// RegisterDefaults registers every built-in stage from the embedded sources.
func (r *Registry) RegisterDefaults() error {
	vs := VertexSource()
	var errs []error
	for _, id := range Stages() {
		if err := r.Register(id, vs, FragmentSource(id), DefaultSlots(id)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stage returns the registered stage id.
func (r *Registry) Stage(id StageID) (*Stage, error) {
	if !id.Valid() || r.stages[id] == nil {
		return nil, &UnknownStageError{Stage: id}
	}
	return r.stages[id], nil
}

// Registered reports whether id has a program.
func (r *Registry) Registered(id StageID) bool { return id.Valid() && r.stages[id] != nil }

// Release deletes every program. Safe to call repeatedly.
func (r *Registry) Release() {
	for i, s := range r.stages {
		if s != nil {
			r.dev.DeleteProgram(s.Program)
			r.stages[i] = nil
		}
	}
}
