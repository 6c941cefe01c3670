package core

import (
	"time"

	"go.uber.org/zap"
)

// App defines the application hooks.
type App interface {
	OnStart(e *Engine) error     // called once after window/device init
	OnFrame(e *Engine) error     // called once per display refresh; an error stops the loop
	OnEvent(e *Engine, ev Event) // input/window events, delivered between frames
	OnShutdown(e *Engine)        // before the device is shut down
}

// Engine exposes core services to the App.
type Engine struct {
	Window Window
	Device Device
	Input  *Input
	Log    *zap.Logger
	start  time.Time
	frames uint64
}

func (e *Engine) Uptime() time.Duration { return time.Since(e.start) }

// Frames reports how many frames completed so far.
func (e *Engine) Frames() uint64 { return e.frames }

// Window abstraction.
type Window interface {
	PollEvents()
	SwapBuffers()
	ShouldClose() bool
	RequestClose()
	FramebufferSize() (int, int)
	SetTitle(title string)
	SetEventCallback(cb func(Event))
	Destroy()
}

// Viewport is the drawable surface size in pixels.
type Viewport struct {
	W, H int
}

// Valid reports whether both dimensions are positive.
func (v Viewport) Valid() bool { return v.W > 0 && v.H > 0 }

// Aspect returns W/H, or 0 for an invalid viewport.
func (v Viewport) Aspect() float64 {
	if !v.Valid() {
		return 0
	}
	return float64(v.W) / float64(v.H)
}

// Vec2 returns the viewport as a shader-friendly vec2.
func (v Viewport) Vec2() [2]float32 { return [2]float32{float32(v.W), float32(v.H)} }

// Event model.
type Event interface{ isEvent() }

type EventCloseRequested struct{}

func (EventCloseRequested) isEvent() {}

type EventResize struct{ W, H int }

func (EventResize) isEvent() {}

type EventKey struct {
	Key  Key
	Down bool
	Mods Mod
}

func (EventKey) isEvent() {}

// EventMouseMove carries the cursor position in framebuffer pixels, origin top-left.
type EventMouseMove struct{ X, Y float64 }

func (EventMouseMove) isEvent() {}

type EventMouseButton struct {
	Button int
	Down   bool
}

func (EventMouseButton) isEvent() {}

// Key/mod enums (subset used by the tuning bindings).
type Key int

const (
	KeyUnknown Key = iota
	KeyEscape
	KeySpace
	KeyR
	KeyS
	KeyA
	KeyD
	Key1
	Key2
	Key3
	Key4
	Key5
)

type Mod int

const (
	ModNone  Mod = 0
	ModShift Mod = 1 << 0
	ModCtrl  Mod = 1 << 1
	ModAlt   Mod = 1 << 2
	ModSuper Mod = 1 << 3
)
