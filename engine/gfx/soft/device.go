// Package soft implements core.Device on the CPU.
//
// Programs are Go fragment functions registered against the exact fragment
// source they stand in for, so the same shader strings used on the GPU select
// the CPU kernels here. Every device call is appended to a log that tests use
// to check ordering. The device is not safe for concurrent use.
package soft

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hubastard/reveal/engine/core"
)

// ErrFeedbackLoop is returned by Draw when a texture uniform is the bound
// target's own texture. GPUs leave that read undefined.
var ErrFeedbackLoop = errors.New("soft: draw samples its own render target")

// FragmentFunc computes one output pixel.
type FragmentFunc func(f *Fragment) [4]float32

// Op names a recorded device call.
type Op string

const (
	OpCreateTexture      Op = "CreateTexture"
	OpCreateRenderTarget Op = "CreateRenderTarget"
	OpSetRenderTarget    Op = "SetRenderTarget"
	OpCompile            Op = "Compile"
	OpDraw               Op = "Draw"
	OpDeleteTexture      Op = "DeleteTexture"
	OpDeleteRenderTarget Op = "DeleteRenderTarget"
	OpDeleteProgram      Op = "DeleteProgram"
	OpResize             Op = "Resize"
	OpShutdown           Op = "Shutdown"
)

// Call is one entry in the device log. ID is the object the call acted on;
// 0 for SetRenderTarget(nil).
type Call struct {
	Op Op
	ID uint32
}

// Image is a float RGBA buffer with a bottom-left origin.
type Image struct {
	W, H int
	Pix  []float32
}

func newImage(w, h int) *Image { return &Image{W: w, H: h, Pix: make([]float32, w*h*4)} }

// At returns the pixel at (x, y), y counted from the bottom row.
func (im *Image) At(x, y int) [4]float32 {
	i := (y*im.W + x) * 4
	return [4]float32{im.Pix[i], im.Pix[i+1], im.Pix[i+2], im.Pix[i+3]}
}

func (im *Image) set(x, y int, c [4]float32) {
	i := (y*im.W + x) * 4
	copy(im.Pix[i:i+4], c[:])
}

// Clone returns a deep copy.
func (im *Image) Clone() *Image {
	out := &Image{W: im.W, H: im.H, Pix: make([]float32, len(im.Pix))}
	copy(out.Pix, im.Pix)
	return out
}

// sample performs nearest-neighbour lookup with clamp-to-edge addressing.
func (im *Image) sample(uv [2]float32) [4]float32 {
	x := clampInt(int(math.Floor(float64(uv[0])*float64(im.W))), 0, im.W-1)
	y := clampInt(int(math.Floor(float64(uv[1])*float64(im.H))), 0, im.H-1)
	return im.At(x, y)
}

type texture struct {
	id  uint32
	img *Image
}

func (t *texture) ID() uint32       { return t.id }
func (t *texture) Size() (int, int) { return t.img.W, t.img.H }

type renderTarget struct {
	id  uint32
	tex *texture
}

func (r *renderTarget) ID() uint32            { return r.id }
func (r *renderTarget) Size() (int, int)      { return r.tex.img.W, r.tex.img.H }
func (r *renderTarget) Texture() core.Texture { return r.tex }

type program struct {
	id uint32
	fn FragmentFunc
}

func (p *program) ID() uint32 { return p.id }

// Device is the CPU implementation of core.Device.
type Device struct {
	kernels map[string]FragmentFunc
	screen  *Image
	bound   *renderTarget
	calls   []Call
	nextID  uint32
	live    map[uint32]bool

	// Unsupported formats make CreateRenderTarget fail, as an incomplete
	// framebuffer would on a GPU.
	Unsupported map[core.TextureFormat]bool
}

// New creates a device with a w×h screen.
func New(w, h int) *Device {
	return &Device{
		kernels:     map[string]FragmentFunc{},
		screen:      newImage(w, h),
		live:        map[uint32]bool{},
		Unsupported: map[core.TextureFormat]bool{},
	}
}

// Register binds a CPU kernel to a fragment shader source.
func (d *Device) Register(fragmentSrc string, fn FragmentFunc) {
	d.kernels[normalizeSource(fragmentSrc)] = fn
}

// Calls returns a copy of the call log.
func (d *Device) Calls() []Call { return append([]Call(nil), d.calls...) }

// ResetCalls clears the call log.
func (d *Device) ResetCalls() { d.calls = d.calls[:0] }

// Screen returns a copy of the default framebuffer.
func (d *Device) Screen() *Image { return d.screen.Clone() }

// Pixels returns a copy of a render target's contents.
func (d *Device) Pixels(rt core.RenderTarget) *Image { return rt.(*renderTarget).tex.img.Clone() }

// Bound returns the current render target, or nil for the screen.
func (d *Device) Bound() core.RenderTarget {
	if d.bound == nil {
		return nil
	}
	return d.bound
}

// Live reports how many textures, targets and programs have not been deleted.
func (d *Device) Live() int { return len(d.live) }

func (d *Device) record(op Op, id uint32) { d.calls = append(d.calls, Call{Op: op, ID: id}) }

func (d *Device) alloc() uint32 {
	d.nextID++
	d.live[d.nextID] = true
	return d.nextID
}

func (d *Device) CreateTexture(desc core.TextureDesc) (core.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("soft: invalid texture size %dx%d", desc.Width, desc.Height)
	}
	img := newImage(desc.Width, desc.Height)
	if desc.Pixels != nil {
		if len(desc.Pixels) != desc.Width*desc.Height*4 {
			return nil, fmt.Errorf("soft: want %d pixel bytes, got %d", desc.Width*desc.Height*4, len(desc.Pixels))
		}
		for i, b := range desc.Pixels {
			img.Pix[i] = float32(b) / 255
		}
	}
	t := &texture{id: d.alloc(), img: img}
	d.record(OpCreateTexture, t.id)
	return t, nil
}

func (d *Device) CreateRenderTarget(desc core.RenderTargetDesc) (core.RenderTarget, error) {
	if d.Unsupported[desc.Format] {
		return nil, fmt.Errorf("soft: format %s not renderable", desc.Format)
	}
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("soft: invalid render target size %dx%d", desc.Width, desc.Height)
	}
	tex := &texture{id: d.alloc(), img: newImage(desc.Width, desc.Height)}
	rt := &renderTarget{id: d.alloc(), tex: tex}
	d.record(OpCreateRenderTarget, rt.id)
	return rt, nil
}

func (d *Device) SetRenderTarget(rt core.RenderTarget) {
	if rt == nil {
		d.bound = nil
		d.record(OpSetRenderTarget, 0)
		return
	}
	d.bound = rt.(*renderTarget)
	d.record(OpSetRenderTarget, d.bound.id)
}

func (d *Device) Compile(_, fragmentSrc string) (core.Program, error) {
	fn, ok := d.kernels[normalizeSource(fragmentSrc)]
	if !ok {
		return nil, fmt.Errorf("soft: no kernel registered for fragment source (%d bytes)", len(fragmentSrc))
	}
	p := &program{id: d.alloc(), fn: fn}
	d.record(OpCompile, p.id)
	return p, nil
}

func (d *Device) Draw(p core.Program, uniforms core.Uniforms) error {
	pr, ok := p.(*program)
	if !ok || !d.live[pr.id] {
		return fmt.Errorf("soft: draw with invalid program")
	}
	dst := d.screen
	if d.bound != nil {
		if !d.live[d.bound.id] {
			return fmt.Errorf("soft: draw into deleted render target %d", d.bound.id)
		}
		dst = d.bound.tex.img
	}
	for name, v := range uniforms {
		t, ok := v.(*texture)
		if !ok {
			continue
		}
		if !d.live[t.id] {
			return fmt.Errorf("soft: uniform %q samples deleted texture %d", name, t.id)
		}
		if d.bound != nil && t == d.bound.tex {
			return fmt.Errorf("uniform %q, target %d: %w", name, d.bound.id, ErrFeedbackLoop)
		}
	}
	d.record(OpDraw, pr.id)

	out := newImage(dst.W, dst.H)
	frag := &Fragment{Uniforms: uniforms, Size: [2]float32{float32(dst.W), float32(dst.H)}}
	for y := 0; y < dst.H; y++ {
		for x := 0; x < dst.W; x++ {
			frag.FragCoord = [2]float32{float32(x) + 0.5, float32(y) + 0.5}
			frag.UV = [2]float32{frag.FragCoord[0] / frag.Size[0], frag.FragCoord[1] / frag.Size[1]}
			out.set(x, y, pr.fn(frag))
		}
	}
	copy(dst.Pix, out.Pix)
	return nil
}

func (d *Device) DeleteTexture(t core.Texture) {
	tex, ok := t.(*texture)
	if !ok || !d.live[tex.id] {
		return
	}
	delete(d.live, tex.id)
	d.record(OpDeleteTexture, tex.id)
}

func (d *Device) DeleteRenderTarget(t core.RenderTarget) {
	rt, ok := t.(*renderTarget)
	if !ok || !d.live[rt.id] {
		return
	}
	delete(d.live, rt.id)
	delete(d.live, rt.tex.id)
	d.record(OpDeleteRenderTarget, rt.id)
}

func (d *Device) DeleteProgram(p core.Program) {
	pr, ok := p.(*program)
	if !ok || !d.live[pr.id] {
		return
	}
	delete(d.live, pr.id)
	d.record(OpDeleteProgram, pr.id)
}

func (d *Device) Resize(w, h int) {
	if w == d.screen.W && h == d.screen.H {
		return
	}
	d.screen = newImage(w, h)
	d.record(OpResize, 0)
}

func (d *Device) Info() core.DeviceInfo {
	return core.DeviceInfo{Vendor: "cpu", Renderer: "soft", Version: "1"}
}

func (d *Device) Shutdown() {
	d.bound = nil
	d.record(OpShutdown, 0)
}

// Fragment is the per-pixel input to a FragmentFunc.
type Fragment struct {
	FragCoord [2]float32 // pixel centre, bottom-left origin
	UV        [2]float32 // FragCoord / Size
	Size      [2]float32 // destination size
	Uniforms  core.Uniforms
}

// Float reads a float uniform; missing values read as 0.
func (f *Fragment) Float(name string) float32 {
	v, _ := f.Uniforms[name].(float32)
	return v
}

// Vec2 reads a vec2 uniform.
func (f *Fragment) Vec2(name string) [2]float32 {
	v, _ := f.Uniforms[name].([2]float32)
	return v
}

// Sample reads a texture uniform at uv. Unbound samplers read as zero, as on a GPU.
func (f *Fragment) Sample(name string, uv [2]float32) [4]float32 {
	t, ok := f.Uniforms[name].(*texture)
	if !ok {
		return [4]float32{}
	}
	return t.img.sample(uv)
}

func normalizeSource(src string) string { return strings.TrimSpace(strings.TrimRight(src, "\x00")) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
