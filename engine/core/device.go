package core

// TextureFormat selects the storage of a texture or render target.
type TextureFormat int

const (
	TextureRGBA8 TextureFormat = iota
	TextureRGBA32F
)

func (f TextureFormat) String() string {
	switch f {
	case TextureRGBA8:
		return "rgba8"
	case TextureRGBA32F:
		return "rgba32f"
	default:
		return "unknown"
	}
}

// Texture is a sampled GPU image.
type Texture interface {
	ID() uint32
	Size() (w, h int)
}

// RenderTarget is an offscreen color buffer that can be drawn into and sampled.
type RenderTarget interface {
	ID() uint32
	Size() (w, h int)
	Texture() Texture
}

// Program is a linked vertex+fragment pair.
type Program interface {
	ID() uint32
}

type TextureDesc struct {
	Width, Height int
	Format        TextureFormat
	Pixels        []byte // RGBA8, bottom-left origin; nil allocates uninitialised storage
	MinFilter     string // "nearest" | "linear"
	MagFilter     string
	WrapU, WrapV  string // "clamp" | "repeat"
}

type RenderTargetDesc struct {
	Width, Height int
	Format        TextureFormat
	Filter        string // "nearest" | "linear"
}

// Uniforms maps uniform names to values. Supported values are float32, int32,
// [2]float32, [4]float32 and Texture.
type Uniforms map[string]any

// DeviceInfo describes the GPU behind a Device.
type DeviceInfo struct {
	Vendor   string
	Renderer string
	Version  string
}

// Device is the graphics backend. All calls happen on the thread owning the context.
type Device interface {
	CreateTexture(desc TextureDesc) (Texture, error)
	CreateRenderTarget(desc RenderTargetDesc) (RenderTarget, error)
	// SetRenderTarget directs subsequent draws to rt; nil selects the screen.
	SetRenderTarget(rt RenderTarget)
	Compile(vertexSrc, fragmentSrc string) (Program, error)
	// Draw runs prog once over a full-screen quad against the bound target.
	Draw(prog Program, uniforms Uniforms) error
	DeleteTexture(t Texture)
	DeleteRenderTarget(rt RenderTarget)
	DeleteProgram(p Program)
	Resize(w, h int)
	Info() DeviceInfo
	Shutdown()
}
