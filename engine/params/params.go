// Package params defines the simulation tuning record and its persistence.
package params

import "fmt"

// Params is the tuning surface of the velocity simulation.
type Params struct {
	TimeStep         float64 `json:"timeStep"`
	ForceRadius      float64 `json:"forceRadius"`
	ForceIntensity   float64 `json:"forceIntensity"`
	ForceAttenuation float64 `json:"forceAttenuation"`
	Diffuse          float64 `json:"diffuse"`
	// AdditionalVelocity is a 0/1 flag.
	AdditionalVelocity int `json:"additionalVelocity"`
}

// Field identifies one tunable value.
type Field int

const (
	FieldTimeStep Field = iota
	FieldForceRadius
	FieldForceIntensity
	FieldForceAttenuation
	FieldDiffuse
	FieldAdditionalVelocity
)

// Range is the UI-declared bounds and step of a field.
type Range struct {
	Min, Max, Step float64
}

var ranges = [...]Range{
	FieldTimeStep:           {Min: 0.001, Max: 0.01, Step: 0.001},
	FieldForceRadius:        {Min: 0.001, Max: 0.1, Step: 0.001},
	FieldForceIntensity:     {Min: 1, Max: 100, Step: 1},
	FieldForceAttenuation:   {Min: 0, Max: 0.1, Step: 0.001},
	FieldDiffuse:            {Min: 0, Max: 0.1, Step: 0.001},
	FieldAdditionalVelocity: {Min: 0, Max: 1, Step: 1},
}

var names = [...]string{
	FieldTimeStep:           "time_step",
	FieldForceRadius:        "force_radius",
	FieldForceIntensity:     "force_intensity",
	FieldForceAttenuation:   "force_attenuation",
	FieldDiffuse:            "diffuse",
	FieldAdditionalVelocity: "additional_velocity",
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(names) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return names[f]
}

// Range returns the declared bounds of f.
func (f Field) Range() Range { return ranges[f] }

// Default returns the startup values.
func Default() Params {
	return Params{
		TimeStep:         0.005,
		ForceRadius:      0.03,
		ForceIntensity:   20,
		ForceAttenuation: 0.01,
		Diffuse:          0.01,
	}
}

// Clamped returns p with every field inside its range. Values set
// programmatically outside the range are pulled back, never rejected.
func (p Params) Clamped() Params {
	p.TimeStep = clamp(p.TimeStep, ranges[FieldTimeStep])
	p.ForceRadius = clamp(p.ForceRadius, ranges[FieldForceRadius])
	p.ForceIntensity = clamp(p.ForceIntensity, ranges[FieldForceIntensity])
	p.ForceAttenuation = clamp(p.ForceAttenuation, ranges[FieldForceAttenuation])
	p.Diffuse = clamp(p.Diffuse, ranges[FieldDiffuse])
	if p.AdditionalVelocity != 0 {
		p.AdditionalVelocity = 1
	}
	return p
}

// Additional reports whether the extra velocity source is on.
func (p Params) Additional() bool { return p.AdditionalVelocity != 0 }

// WithAdditional returns p with the flag set to on.
func (p Params) WithAdditional(on bool) Params {
	p.AdditionalVelocity = 0
	if on {
		p.AdditionalVelocity = 1
	}
	return p
}

// Get returns the value of f as a float.
func (p Params) Get(f Field) float64 {
	switch f {
	case FieldTimeStep:
		return p.TimeStep
	case FieldForceRadius:
		return p.ForceRadius
	case FieldForceIntensity:
		return p.ForceIntensity
	case FieldForceAttenuation:
		return p.ForceAttenuation
	case FieldDiffuse:
		return p.Diffuse
	case FieldAdditionalVelocity:
		return float64(p.AdditionalVelocity)
	}
	return 0
}

// Set returns p with f replaced by v, clamped.
func (p Params) Set(f Field, v float64) Params {
	switch f {
	case FieldTimeStep:
		p.TimeStep = v
	case FieldForceRadius:
		p.ForceRadius = v
	case FieldForceIntensity:
		p.ForceIntensity = v
	case FieldForceAttenuation:
		p.ForceAttenuation = v
	case FieldDiffuse:
		p.Diffuse = v
	case FieldAdditionalVelocity:
		p.AdditionalVelocity = 0
		if v >= 0.5 {
			p.AdditionalVelocity = 1
		}
	}
	return p.Clamped()
}

// Step moves f by dir UI steps.
func (p Params) Step(f Field, dir int) Params {
	return p.Set(f, p.Get(f)+float64(dir)*ranges[f].Step)
}

func clamp(v float64, r Range) float64 {
	// NaN compares false both ways; pin it to the minimum.
	if v != v || v < r.Min {
		return r.Min
	}
	if v > r.Max {
		return r.Max
	}
	return v
}
