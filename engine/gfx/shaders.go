package gfx

import (
	"embed"

	"github.com/hubastard/reveal/engine/assets"
)

//go:embed shaders/fullscreen.vert
var shaderFS embed.FS

// FullscreenVertexSource covers the target with one quad and passes vUv in [0,1].
func FullscreenVertexSource() string {
	return assets.MustLoadShader(shaderFS, "shaders/fullscreen.vert")
}
