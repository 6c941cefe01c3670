package fluid

import (
	"math"
	"testing"

	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/gfx/soft"
	"github.com/hubastard/reveal/engine/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func texel(f *soft.Fragment) ([2]float32, [2]float32) {
	res := f.Vec2("resolution")
	t := [2]float32{1 / res[0], 1 / res[1]}
	return t, [2]float32{f.FragCoord[0] * t[0], f.FragCoord[1] * t[1]}
}

func neighbours(f *soft.Fragment, name string, c int) (l, r, b, t float32) {
	tx, uv := texel(f)
	l = f.Sample(name, [2]float32{uv[0] - tx[0], uv[1]})[c]
	r = f.Sample(name, [2]float32{uv[0] + tx[0], uv[1]})[c]
	b = f.Sample(name, [2]float32{uv[0], uv[1] - tx[1]})[c]
	t = f.Sample(name, [2]float32{uv[0], uv[1] + tx[1]})[c]
	return
}

func advectKernel(f *soft.Fragment) [4]float32 {
	res := f.Vec2("resolution")
	uv := [2]float32{f.FragCoord[0] / res[0], f.FragCoord[1] / res[1]}
	dt := f.Float("timeStep")
	vel := f.Sample("velocityTexture", uv)
	v := f.Sample("velocityTexture", [2]float32{uv[0] - vel[0]*dt, uv[1] - vel[1]*dt})
	keep := 1 - f.Float("forceAttenuation")
	vx, vy := v[0]*keep, v[1]*keep

	aspect := res[0] / res[1]
	pos := f.Vec2("pointerPos")
	dx, dy := (uv[0]-pos[0])*aspect, uv[1]-pos[1]
	r := f.Float("forceRadius")
	falloff := float32(math.Exp(float64(-(dx*dx + dy*dy) / (r * r))))
	delta := f.Vec2("pointerDelta")
	k := f.Float("forceIntensity") * falloff
	vx += delta[0] * k
	vy += delta[1] * k

	if f.Float("additionalVelocity") > 0.5 {
		cx, cy := (uv[0]-0.5)*aspect, uv[1]-0.5
		swirl := float32(math.Sin(float64(f.Float("time"))*0.5))*0.5 + 0.5
		vx += -cy * swirl * dt * 4
		vy += cx * swirl * dt * 4
	}
	return [4]float32{vx, vy, 0, 1}
}

func diffuseKernel(f *soft.Fragment) [4]float32 {
	_, uv := texel(f)
	res := f.Vec2("resolution")
	alpha := f.Float("diffuse") * f.Float("timeStep") * res[0] * res[1] * 0.001
	lx, rx, bx, tx := neighbours(f, "velocityTexture", 0)
	ly, ry, by, ty := neighbours(f, "velocityTexture", 1)
	s := f.Sample("sourceTexture", uv)
	d := 1 + 4*alpha
	return [4]float32{(s[0] + alpha*(lx+rx+bx+tx)) / d, (s[1] + alpha*(ly+ry+by+ty)) / d, 0, 1}
}

func divergenceKernel(f *soft.Fragment) [4]float32 {
	l, r, _, _ := neighbours(f, "velocityTexture", 0)
	_, _, b, t := neighbours(f, "velocityTexture", 1)
	return [4]float32{0.5 * (r - l + t - b), 0, 0, 1}
}

func pressureKernel(f *soft.Fragment) [4]float32 {
	_, uv := texel(f)
	l, r, b, t := neighbours(f, "pressureTexture", 0)
	div := f.Sample("divergenceTexture", uv)[0]
	return [4]float32{(l + r + b + t - div) * 0.25, 0, 0, 1}
}

func projectKernel(f *soft.Fragment) [4]float32 {
	_, uv := texel(f)
	l, r, b, t := neighbours(f, "pressureTexture", 0)
	v := f.Sample("velocityTexture", uv)
	return [4]float32{v[0] - 0.5*(r-l), v[1] - 0.5*(t-b), 0, 1}
}

func clearKernel(*soft.Fragment) [4]float32 { return [4]float32{} }

var kernels = map[Pass]soft.FragmentFunc{
	PassAdvect:     advectKernel,
	PassDiffuse:    diffuseKernel,
	PassDivergence: divergenceKernel,
	PassPressure:   pressureKernel,
	PassProject:    projectKernel,
	PassClear:      clearKernel,
}

func newDevice(w, h int) *soft.Device {
	dev := soft.New(w, h)
	for _, pass := range Passes() {
		dev.Register(FragmentSource(pass), kernels[pass])
	}
	return dev
}

func newSim(t *testing.T, w, h int) (*soft.Device, *Simulation) {
	t.Helper()
	dev := newDevice(w, h)
	s, err := New(dev, core.Viewport{W: w, H: h}, DefaultConfig(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return dev, s
}

func countDraws(calls []soft.Call) int {
	n := 0
	for _, c := range calls {
		if c.Op == soft.OpDraw {
			n++
		}
	}
	return n
}

func energy(img *soft.Image) float64 {
	var e float64
	for i := 0; i < len(img.Pix); i += 4 {
		e += math.Abs(float64(img.Pix[i])) + math.Abs(float64(img.Pix[i+1]))
	}
	return e
}

func TestNewAllocatesEverything(t *testing.T) {
	dev, s := newSim(t, 8, 8)
	// six programs plus seven render targets, each backed by a texture
	assert.Equal(t, int(numPasses)+7*2, dev.Live())
	assert.Equal(t, [2]float32{8, 8}, s.Resolution())
	assert.Equal(t, params.Default(), s.Params())
	assert.Equal(t, 7, countDraws(dev.Calls()))
}

func TestNewRejectsInvalidResolution(t *testing.T) {
	_, err := New(newDevice(4, 4), core.Viewport{W: 0, H: 4}, DefaultConfig(), nil)
	require.Error(t, err)
}

func TestNewCompileFailureReleasesPrograms(t *testing.T) {
	dev := soft.New(4, 4)
	dev.Register(FragmentSource(PassAdvect), advectKernel)
	dev.Register(FragmentSource(PassDiffuse), diffuseKernel)

	_, err := New(dev, core.Viewport{W: 4, H: 4}, DefaultConfig(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), PassDivergence.String())
	assert.Zero(t, dev.Live())
}

func TestNewAllocationFailureReleasesEverything(t *testing.T) {
	dev := newDevice(4, 4)
	dev.Unsupported[core.TextureRGBA32F] = true

	_, err := New(dev, core.Viewport{W: 4, H: 4}, DefaultConfig(), nil)
	require.Error(t, err)
	assert.Zero(t, dev.Live())
}

func TestUpdateRunsEverySolverPass(t *testing.T) {
	dev, s := newSim(t, 8, 8)
	cfg := DefaultConfig()

	dev.ResetCalls()
	require.NoError(t, s.Update())
	assert.Equal(t, 1+cfg.DiffuseIterations+1+cfg.PressureIterations+1, countDraws(dev.Calls()))

	p := s.Params()
	p.Diffuse = 0
	s.SetParams(p)
	dev.ResetCalls()
	require.NoError(t, s.Update())
	assert.Equal(t, 1+1+cfg.PressureIterations+1, countDraws(dev.Calls()), "no viscosity skips diffusion")
}

func TestStillFieldStaysStill(t *testing.T) {
	dev, s := newSim(t, 8, 8)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Update())
	}
	assert.Zero(t, energy(dev.Pixels(s.velocity.Read())))
}

func TestPointerMotionInjectsVelocity(t *testing.T) {
	dev, s := newSim(t, 16, 16)
	s.SetPointer(0.5, 0.5)
	s.AddPointerMotion(0.05, 0)
	s.AddPointerMotion(0.05, 0)
	require.NoError(t, s.Update())

	assert.Greater(t, energy(dev.Pixels(s.velocity.Read())), 0.0)
	assert.Equal(t, [2]float32{}, s.motion, "motion is consumed by the step")
	assert.Same(t, s.velocity.Read().Texture(), s.VelocityTexture())
}

func TestAdditionalVelocityStirsWithoutPointer(t *testing.T) {
	dev, s := newSim(t, 16, 16)
	s.SetParams(s.Params().WithAdditional(true))
	require.NoError(t, s.Update())
	assert.Greater(t, energy(dev.Pixels(s.velocity.Read())), 0.0)
}

func TestResetZeroesField(t *testing.T) {
	dev, s := newSim(t, 16, 16)
	s.AddPointerMotion(0.1, 0.1)
	require.NoError(t, s.Update())
	require.NotZero(t, energy(dev.Pixels(s.velocity.Read())))

	require.NoError(t, s.ResetFrameBuffers())
	for _, rt := range s.velocity.Slots() {
		assert.Zero(t, energy(dev.Pixels(rt)))
	}
	for _, rt := range s.pressure.Slots() {
		assert.Zero(t, energy(dev.Pixels(rt)))
	}
}

func TestResizeReallocates(t *testing.T) {
	dev, s := newSim(t, 8, 8)
	old := s.VelocityTexture()
	live := dev.Live()

	require.NoError(t, s.Resize(core.Viewport{W: 12, H: 6}))
	assert.Equal(t, [2]float32{12, 6}, s.Resolution())
	w, h := s.VelocityTexture().Size()
	assert.Equal(t, 12, w)
	assert.Equal(t, 6, h)
	assert.NotSame(t, old, s.VelocityTexture())
	assert.Equal(t, live, dev.Live(), "old buffers are released")

	require.Error(t, s.Resize(core.Viewport{W: -1, H: 6}))
	require.NoError(t, s.Update())
}

func TestSetParamsClamps(t *testing.T) {
	_, s := newSim(t, 4, 4)
	p := params.Default()
	p.TimeStep = 1
	p.ForceIntensity = -3
	s.SetParams(p)
	assert.Equal(t, params.FieldTimeStep.Range().Max, s.Params().TimeStep)
	assert.Equal(t, params.FieldForceIntensity.Range().Min, s.Params().ForceIntensity)
}

func TestCloseUnbindsThenReleases(t *testing.T) {
	dev, s := newSim(t, 4, 4)
	require.NoError(t, s.Update())
	dev.ResetCalls()

	s.Close()
	s.Close()
	calls := dev.Calls()
	require.NotEmpty(t, calls)
	assert.Equal(t, soft.Call{Op: soft.OpSetRenderTarget, ID: 0}, calls[0])
	assert.Zero(t, dev.Live())
	assert.ErrorIs(t, s.Update(), ErrClosed)
}
