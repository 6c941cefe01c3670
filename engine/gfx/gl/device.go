package glbackend

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/hubastard/reveal/engine/core"
	"go.uber.org/zap"
)

// DeviceGL implements core.Device on an OpenGL 3.3 core context.
// The context must be current on the calling thread.
type DeviceGL struct {
	log     *zap.Logger
	vao     uint32
	vbo     uint32
	screenW int
	screenH int
	bound   *renderTarget
	locs    map[uint32]map[string]int32
}

func NewDeviceGL(win core.Window, _ core.Config, log *zap.Logger) (*DeviceGL, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &DeviceGL{log: log.Named("gl"), locs: map[uint32]map[string]int32{}}
	d.screenW, d.screenH = win.FramebufferSize()
	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *DeviceGL) init() error {
	// Full-screen quad as a triangle strip: pos (x,y) in clip space.
	verts := []float32{
		-1, -1,
		1, -1,
		-1, 1,
		1, 1,
	}

	gl.GenVertexArrays(1, &d.vao)
	gl.BindVertexArray(d.vao)

	gl.GenBuffers(1, &d.vbo)
	gl.BindBuffer(gl.ARRAY_BUFFER, d.vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(verts)*4, gl.Ptr(verts), gl.STATIC_DRAW)

	// layout(location = 0) in vec2 aPos;
	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 2, gl.FLOAT, false, 2*4, unsafe.Pointer(uintptr(0)))

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	// Passes overwrite every pixel; blending and depth would alter the feedback values.
	gl.Disable(gl.DEPTH_TEST)
	gl.Disable(gl.BLEND)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("gl init: error 0x%x", code)
	}
	return nil
}

func (d *DeviceGL) Info() core.DeviceInfo {
	return core.DeviceInfo{
		Vendor:   gl.GoStr(gl.GetString(gl.VENDOR)),
		Renderer: gl.GoStr(gl.GetString(gl.RENDERER)),
		Version:  gl.GoStr(gl.GetString(gl.VERSION)),
	}
}

func (d *DeviceGL) Shutdown() {
	d.SetRenderTarget(nil)
	if d.vbo != 0 {
		gl.DeleteBuffers(1, &d.vbo)
		d.vbo = 0
	}
	if d.vao != 0 {
		gl.DeleteVertexArrays(1, &d.vao)
		d.vao = 0
	}
}

func (d *DeviceGL) Resize(w, h int) {
	d.screenW, d.screenH = w, h
	if d.bound == nil {
		gl.Viewport(0, 0, int32(w), int32(h))
	}
}

// --- textures ---

type texture struct {
	id     uint32
	w, h   int
	format core.TextureFormat
}

func (t *texture) ID() uint32       { return t.id }
func (t *texture) Size() (int, int) { return t.w, t.h }

func (d *DeviceGL) CreateTexture(desc core.TextureDesc) (core.Texture, error) {
	if desc.Width <= 0 || desc.Height <= 0 {
		return nil, fmt.Errorf("create texture: invalid size %dx%d", desc.Width, desc.Height)
	}
	internal, format, xtype, err := glFormat(desc.Format)
	if err != nil {
		return nil, err
	}
	var ptr unsafe.Pointer
	if desc.Pixels != nil {
		if want := desc.Width * desc.Height * 4; len(desc.Pixels) != want || desc.Format != core.TextureRGBA8 {
			return nil, fmt.Errorf("create texture: want %d RGBA8 bytes, got %d %s", want, len(desc.Pixels), desc.Format)
		}
		ptr = gl.Ptr(desc.Pixels)
	}

	t := &texture{w: desc.Width, h: desc.Height, format: desc.Format}
	gl.GenTextures(1, &t.id)
	gl.BindTexture(gl.TEXTURE_2D, t.id)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, glFilter(desc.MinFilter))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, glFilter(desc.MagFilter))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, glWrap(desc.WrapU))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, glWrap(desc.WrapV))
	gl.PixelStorei(gl.UNPACK_ALIGNMENT, 1)
	gl.TexImage2D(gl.TEXTURE_2D, 0, internal, int32(desc.Width), int32(desc.Height), 0, format, xtype, ptr)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		gl.DeleteTextures(1, &t.id)
		return nil, fmt.Errorf("create texture %dx%d %s: error 0x%x", desc.Width, desc.Height, desc.Format, code)
	}
	return t, nil
}

func (d *DeviceGL) DeleteTexture(t core.Texture) {
	tex, ok := t.(*texture)
	if !ok || tex.id == 0 {
		return
	}
	gl.DeleteTextures(1, &tex.id)
	tex.id = 0
}

// --- render targets ---

type renderTarget struct {
	fbo uint32
	tex *texture
}

func (r *renderTarget) ID() uint32            { return r.fbo }
func (r *renderTarget) Size() (int, int)      { return r.tex.w, r.tex.h }
func (r *renderTarget) Texture() core.Texture { return r.tex }

func (d *DeviceGL) CreateRenderTarget(desc core.RenderTargetDesc) (core.RenderTarget, error) {
	tex, err := d.CreateTexture(core.TextureDesc{
		Width: desc.Width, Height: desc.Height,
		Format:    desc.Format,
		MinFilter: desc.Filter, MagFilter: desc.Filter,
		WrapU: "clamp", WrapV: "clamp",
	})
	if err != nil {
		return nil, err
	}

	rt := &renderTarget{tex: tex.(*texture)}
	gl.GenFramebuffers(1, &rt.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, rt.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, rt.tex.id, 0)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	d.rebind()

	if status != gl.FRAMEBUFFER_COMPLETE {
		gl.DeleteFramebuffers(1, &rt.fbo)
		d.DeleteTexture(rt.tex)
		return nil, fmt.Errorf("framebuffer %dx%d %s incomplete: status 0x%x", desc.Width, desc.Height, desc.Format, status)
	}
	d.log.Debug("render target created",
		zap.Uint32("fbo", rt.fbo), zap.Int("width", desc.Width), zap.Int("height", desc.Height),
		zap.Stringer("format", desc.Format))
	return rt, nil
}

func (d *DeviceGL) DeleteRenderTarget(t core.RenderTarget) {
	rt, ok := t.(*renderTarget)
	if !ok || rt.fbo == 0 {
		return
	}
	if d.bound == rt {
		d.SetRenderTarget(nil)
	}
	gl.DeleteFramebuffers(1, &rt.fbo)
	rt.fbo = 0
	d.DeleteTexture(rt.tex)
}

func (d *DeviceGL) SetRenderTarget(t core.RenderTarget) {
	if t == nil {
		d.bound = nil
	} else {
		d.bound = t.(*renderTarget)
	}
	d.rebind()
}

func (d *DeviceGL) rebind() {
	if d.bound == nil {
		gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
		gl.Viewport(0, 0, int32(d.screenW), int32(d.screenH))
		return
	}
	gl.BindFramebuffer(gl.FRAMEBUFFER, d.bound.fbo)
	gl.Viewport(0, 0, int32(d.bound.tex.w), int32(d.bound.tex.h))
}

// --- programs ---

type program struct{ id uint32 }

func (p *program) ID() uint32 { return p.id }

func (d *DeviceGL) Compile(vertexSrc, fragmentSrc string) (core.Program, error) {
	id, err := makeProgram(nullTerminated(vertexSrc), nullTerminated(fragmentSrc))
	if err != nil {
		return nil, err
	}
	d.locs[id] = map[string]int32{}
	return &program{id: id}, nil
}

func (d *DeviceGL) DeleteProgram(p core.Program) {
	pr, ok := p.(*program)
	if !ok || pr.id == 0 {
		return
	}
	gl.DeleteProgram(pr.id)
	delete(d.locs, pr.id)
	pr.id = 0
}

func (d *DeviceGL) Draw(p core.Program, uniforms core.Uniforms) error {
	pr, ok := p.(*program)
	if !ok || pr.id == 0 {
		return fmt.Errorf("draw: invalid program %v", p)
	}
	gl.UseProgram(pr.id)

	unit := int32(0)
	for name, v := range uniforms {
		loc := d.location(pr.id, name)
		if loc < 0 {
			// Declared but optimised out by the compiler.
			continue
		}
		switch val := v.(type) {
		case float32:
			gl.Uniform1f(loc, val)
		case int32:
			gl.Uniform1i(loc, val)
		case [2]float32:
			gl.Uniform2f(loc, val[0], val[1])
		case [4]float32:
			gl.Uniform4f(loc, val[0], val[1], val[2], val[3])
		case core.Texture:
			gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
			gl.BindTexture(gl.TEXTURE_2D, val.ID())
			gl.Uniform1i(loc, unit)
			unit++
		case nil:
			return fmt.Errorf("draw: uniform %q has no value", name)
		default:
			return fmt.Errorf("draw: uniform %q: unsupported type %T", name, v)
		}
	}

	gl.BindVertexArray(d.vao)
	gl.DrawArrays(gl.TRIANGLE_STRIP, 0, 4)
	gl.BindVertexArray(0)
	gl.UseProgram(0)

	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("draw program %d: error 0x%x", pr.id, code)
	}
	return nil
}

func (d *DeviceGL) location(prog uint32, name string) int32 {
	cache := d.locs[prog]
	if loc, ok := cache[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(prog, gl.Str(name+"\x00"))
	cache[name] = loc
	return loc
}

// --- helpers ---

func glFormat(f core.TextureFormat) (internal int32, format, xtype uint32, err error) {
	switch f {
	case core.TextureRGBA8:
		return gl.RGBA8, gl.RGBA, gl.UNSIGNED_BYTE, nil
	case core.TextureRGBA32F:
		return gl.RGBA32F, gl.RGBA, gl.FLOAT, nil
	default:
		return 0, 0, 0, fmt.Errorf("unsupported texture format %d", int(f))
	}
}

func glFilter(s string) int32 {
	if s == "nearest" {
		return gl.NEAREST
	}
	return gl.LINEAR
}

func glWrap(s string) int32 {
	if s == "repeat" {
		return gl.REPEAT
	}
	return gl.CLAMP_TO_EDGE
}

func nullTerminated(src string) string {
	if strings.HasSuffix(src, "\x00") {
		return src
	}
	return src + "\x00"
}

func makeShader(src string, shaderType uint32) (uint32, error) {
	sh := gl.CreateShader(shaderType)
	csrc, free := gl.Strs(src)
	defer free()
	gl.ShaderSource(sh, 1, csrc, nil)
	gl.CompileShader(sh)

	var status int32
	gl.GetShaderiv(sh, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLen int32
		gl.GetShaderiv(sh, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetShaderInfoLog(sh, logLen, nil, gl.Str(log))
		gl.DeleteShader(sh)
		return 0, fmt.Errorf("shader compile error: %s", strings.TrimRight(log, "\x00"))
	}
	return sh, nil
}

func makeProgram(vsSrc, fsSrc string) (uint32, error) {
	vs, err := makeShader(vsSrc, gl.VERTEX_SHADER)
	if err != nil {
		return 0, err
	}
	fs, err := makeShader(fsSrc, gl.FRAGMENT_SHADER)
	if err != nil {
		gl.DeleteShader(vs)
		return 0, err
	}
	prog := gl.CreateProgram()
	gl.AttachShader(prog, vs)
	gl.AttachShader(prog, fs)
	gl.LinkProgram(prog)

	var status int32
	gl.GetProgramiv(prog, gl.LINK_STATUS, &status)
	gl.DeleteShader(vs)
	gl.DeleteShader(fs)

	if status == gl.FALSE {
		var logLen int32
		gl.GetProgramiv(prog, gl.INFO_LOG_LENGTH, &logLen)
		log := strings.Repeat("\x00", int(logLen+1))
		gl.GetProgramInfoLog(prog, logLen, nil, gl.Str(log))
		gl.DeleteProgram(prog)
		return 0, fmt.Errorf("program link error: %s", strings.TrimRight(log, "\x00"))
	}
	return prog, nil
}
