package platform

import (
	"fmt"
	"runtime"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/hubastard/reveal/engine/core"
	"go.uber.org/zap"
)

// GLFWWindow implements core.Window and pushes events to the app via a handler.
type GLFWWindow struct {
	w    *glfw.Window
	log  *zap.Logger
	onEv func(core.Event)
}

// NewGLFWWindow opens a window with a current GL 3.3 core context.
// Must be called on main thread before any GL calls.
func NewGLFWWindow(cfg core.Config, log *zap.Logger) (*GLFWWindow, error) {
	runtime.LockOSThread()
	if log == nil {
		log = zap.NewNop()
	}
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	// Mac requires the forward-compatible flag.
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.Samples, 0)

	win, err := glfw.CreateWindow(cfg.Width, cfg.Height, cfg.Title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}
	win.MakeContextCurrent()
	if cfg.VSync {
		glfw.SwapInterval(1)
	} else {
		glfw.SwapInterval(0)
	}

	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("gl init: %w", err)
	}
	log.Info("context ready", zap.String("gl", gl.GoStr(gl.GetString(gl.VERSION))))

	gw := &GLFWWindow{w: win, log: log}

	// Callbacks -> translate to core.Event
	win.SetCloseCallback(func(*glfw.Window) { gw.emit(core.EventCloseRequested{}) })
	win.SetFramebufferSizeCallback(func(_ *glfw.Window, w, h int) {
		gw.emit(core.EventResize{W: w, H: h})
	})
	win.SetCursorPosCallback(func(_ *glfw.Window, x, y float64) {
		sx, sy := gw.contentScale()
		gw.emit(core.EventMouseMove{X: x * sx, Y: y * sy})
	})
	win.SetMouseButtonCallback(func(_ *glfw.Window, b glfw.MouseButton, action glfw.Action, _ glfw.ModifierKey) {
		gw.emit(core.EventMouseButton{Button: int(b), Down: action != glfw.Release})
	})
	win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, mods glfw.ModifierKey) {
		if action == glfw.Repeat {
			return
		}
		k := translateKey(key)
		if k == core.KeyUnknown {
			return
		}
		gw.emit(core.EventKey{Key: k, Down: action == glfw.Press, Mods: translateMods(mods)})
	})

	return gw, nil
}

// contentScale maps window coordinates to framebuffer pixels.
func (g *GLFWWindow) contentScale() (float64, float64) {
	ww, wh := g.w.GetSize()
	fw, fh := g.w.GetFramebufferSize()
	if ww <= 0 || wh <= 0 {
		return 1, 1
	}
	return float64(fw) / float64(ww), float64(fh) / float64(wh)
}

func (g *GLFWWindow) emit(ev core.Event) {
	if g.onEv != nil {
		g.onEv(ev)
	}
}

// core.Window impl
func (g *GLFWWindow) PollEvents()                          { glfw.PollEvents() }
func (g *GLFWWindow) SwapBuffers()                         { g.w.SwapBuffers() }
func (g *GLFWWindow) ShouldClose() bool                    { return g.w.ShouldClose() }
func (g *GLFWWindow) RequestClose()                        { g.w.SetShouldClose(true) }
func (g *GLFWWindow) FramebufferSize() (int, int)          { return g.w.GetFramebufferSize() }
func (g *GLFWWindow) SetTitle(t string)                    { g.w.SetTitle(t) }
func (g *GLFWWindow) SetEventCallback(cb func(core.Event)) { g.onEv = cb }

// Destroy closes the window and terminates GLFW.
func (g *GLFWWindow) Destroy() {
	g.w.Destroy()
	glfw.Terminate()
	g.log.Debug("window destroyed")
}

var keys = map[glfw.Key]core.Key{
	glfw.KeyEscape: core.KeyEscape,
	glfw.KeySpace:  core.KeySpace,
	glfw.KeyR:      core.KeyR,
	glfw.KeyS:      core.KeyS,
	glfw.KeyA:      core.KeyA,
	glfw.KeyD:      core.KeyD,
	glfw.Key1:      core.Key1,
	glfw.Key2:      core.Key2,
	glfw.Key3:      core.Key3,
	glfw.Key4:      core.Key4,
	glfw.Key5:      core.Key5,
}

func translateKey(k glfw.Key) core.Key {
	if ck, ok := keys[k]; ok {
		return ck
	}
	return core.KeyUnknown
}

func translateMods(m glfw.ModifierKey) core.Mod {
	var out core.Mod
	if m&glfw.ModShift != 0 {
		out |= core.ModShift
	}
	if m&glfw.ModControl != 0 {
		out |= core.ModCtrl
	}
	if m&glfw.ModAlt != 0 {
		out |= core.ModAlt
	}
	if m&glfw.ModSuper != 0 {
		out |= core.ModSuper
	}
	return out
}
