package main

import (
	"context"
	"sync"
	"testing"

	"github.com/hubastard/reveal/engine/assets"
	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/gfx/soft"
	"github.com/hubastard/reveal/engine/params"
	"github.com/hubastard/reveal/engine/pipeline"
	"github.com/hubastard/reveal/engine/sim/fluid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeWindow struct {
	w, h   int
	closed bool
}

func (f *fakeWindow) PollEvents()                       {}
func (f *fakeWindow) SwapBuffers()                      {}
func (f *fakeWindow) ShouldClose() bool                 { return f.closed }
func (f *fakeWindow) RequestClose()                     { f.closed = true }
func (f *fakeWindow) FramebufferSize() (int, int)       { return f.w, f.h }
func (f *fakeWindow) SetTitle(string)                   {}
func (f *fakeWindow) SetEventCallback(func(core.Event)) {}
func (f *fakeWindow) Destroy()                          {}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[key]
	if !ok {
		return nil, params.ErrNotFound
	}
	return b, nil
}

func (m *memStore) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func zero(*soft.Fragment) [4]float32 { return [4]float32{} }

func newDevice(w, h int) *soft.Device {
	dev := soft.New(w, h)
	for _, id := range pipeline.Stages() {
		dev.Register(pipeline.FragmentSource(id), zero)
	}
	for _, pass := range fluid.Passes() {
		dev.Register(fluid.FragmentSource(pass), zero)
	}
	return dev
}

type harness struct {
	app   *App
	eng   *core.Engine
	dev   *soft.Device
	win   *fakeWindow
	store *memStore

	onChange func()
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zaptest.NewLogger(t)
	h := &harness{
		dev:   newDevice(8, 6),
		win:   &fakeWindow{w: 8, h: 6},
		store: &memStore{data: map[string][]byte{}},
	}
	h.eng = &core.Engine{Window: h.win, Device: h.dev, Input: core.NewInput(), Log: log}

	cfg := core.DefaultConfig()
	cfg.Sim = core.SimConfig{DiffuseIterations: 1, PressureIterations: 2}
	img := &assets.Image{Width: 4, Height: 2, Pixels: make([]byte, 4*2*4)}
	h.app = newApp(cfg, log, img, h.store, params.Default())
	h.app.watch = func(_ context.Context, key string, onChange func()) error {
		assert.Equal(t, params.Key, key)
		h.onChange = onChange
		return nil
	}
	require.NoError(t, h.app.OnStart(h.eng))
	return h
}

func (h *harness) key(k core.Key, mods core.Mod) {
	h.app.OnEvent(h.eng, core.EventKey{Key: k, Down: true, Mods: mods})
	h.app.OnEvent(h.eng, core.EventKey{Key: k, Down: false, Mods: mods})
}

func TestStartAndShutdownReleaseEverything(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.app.OnFrame(h.eng))
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.Equal(t, uint64(2), h.app.pipe.Stats().Frames)

	h.app.OnShutdown(h.eng)
	assert.Zero(t, h.dev.Live())
}

func TestResetKey(t *testing.T) {
	h := newHarness(t)
	before := h.app.pipe.Stats().Resets
	h.key(core.KeyR, core.ModNone)
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.Equal(t, before+1, h.app.pipe.Stats().Resets)
}

func TestToggleAdditionalVelocityResets(t *testing.T) {
	h := newHarness(t)
	before := h.app.pipe.Stats().Resets

	h.key(core.KeyA, core.ModNone)
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.True(t, h.app.sim.Params().Additional())
	assert.Equal(t, before+1, h.app.pipe.Stats().Resets)

	h.key(core.KeyA, core.ModNone)
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.False(t, h.app.sim.Params().Additional())
}

func TestDebugViewKey(t *testing.T) {
	h := newHarness(t)
	debug := func() any { return h.app.pipe.Orchestrator().Uniforms(pipeline.StageFinal)[pipeline.UniformDebugView] }

	require.NoError(t, h.app.OnFrame(h.eng))
	assert.Equal(t, float32(0), debug())

	h.key(core.KeyD, core.ModNone)
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.True(t, h.app.pipe.DebugView())
	assert.Equal(t, float32(1), debug())

	h.key(core.KeyD, core.ModNone)
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.False(t, h.app.pipe.DebugView())
	assert.Equal(t, float32(0), debug())
}

func TestStepKeys(t *testing.T) {
	h := newHarness(t)
	def := params.Default()

	h.key(core.Key1, core.ModNone)
	h.key(core.Key1, core.ModNone)
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.InDelta(t, def.TimeStep+2*params.FieldTimeStep.Range().Step, h.app.sim.Params().TimeStep, 1e-9)

	h.key(core.Key3, core.ModShift)
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.InDelta(t, def.ForceIntensity-1, h.app.sim.Params().ForceIntensity, 1e-9)
}

func TestSaveKeyPersists(t *testing.T) {
	h := newHarness(t)
	h.key(core.Key2, core.ModNone)
	h.key(core.KeyS, core.ModNone)

	p, found, err := params.Load(h.store)
	require.NoError(t, err)
	require.True(t, found)
	assert.InDelta(t, params.Default().ForceRadius+params.FieldForceRadius.Range().Step, p.ForceRadius, 1e-9)
}

func TestWatchReloadAppliesAtNextFrame(t *testing.T) {
	h := newHarness(t)
	require.NotNil(t, h.onChange)

	p := params.Default()
	p.ForceIntensity = 50
	require.NoError(t, params.Save(h.store, p))
	h.onChange()
	assert.Equal(t, params.Default().ForceIntensity, h.app.sim.Params().ForceIntensity)

	require.NoError(t, h.app.OnFrame(h.eng))
	assert.Equal(t, 50.0, h.app.sim.Params().ForceIntensity)
}

func TestResizeEvent(t *testing.T) {
	h := newHarness(t)
	h.app.OnEvent(h.eng, core.EventResize{W: 10, H: 4})
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.Equal(t, core.Viewport{W: 10, H: 4}, h.app.pipe.Viewport())
	assert.Equal(t, [2]float32{10, 4}, h.app.sim.Resolution())

	h.app.OnEvent(h.eng, core.EventResize{W: 0, H: 0})
	require.NoError(t, h.app.OnFrame(h.eng))
	assert.Equal(t, core.Viewport{W: 10, H: 4}, h.app.pipe.Viewport())
}

func TestEscapeRequestsClose(t *testing.T) {
	h := newHarness(t)
	h.key(core.KeyEscape, core.ModNone)
	assert.True(t, h.win.closed)
}

func TestPointerMotionDoesNotBreakFrame(t *testing.T) {
	h := newHarness(t)
	h.eng.Input.Handle(core.EventMouseMove{X: 1, Y: 1})
	h.eng.Input.Handle(core.EventMouseMove{X: 5, Y: 3})
	require.NoError(t, h.app.OnFrame(h.eng))
	dx, dy := h.eng.Input.MouseDelta()
	assert.Zero(t, dx)
	assert.Zero(t, dy)
}
