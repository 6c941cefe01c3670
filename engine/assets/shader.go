package assets

import (
	"fmt"
	"io/fs"
)

// LoadShader reads a GLSL file from fsys into a null-terminated string for OpenGL.
func LoadShader(fsys fs.FS, name string) (string, error) {
	b, err := fs.ReadFile(fsys, name)
	if err != nil {
		return "", &LoadError{Path: name, Err: err}
	}
	if len(b) == 0 {
		return "", &LoadError{Path: name, Err: fmt.Errorf("empty shader")}
	}
	// Ensure null termination for gl.Str
	if b[len(b)-1] != 0 {
		b = append(b, 0)
	}
	return string(b), nil
}

// MustLoadShader is LoadShader for sources embedded in the binary.
func MustLoadShader(fsys fs.FS, name string) string {
	src, err := LoadShader(fsys, name)
	if err != nil {
		panic(err)
	}
	return src
}
