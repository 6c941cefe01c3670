package assets

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "img.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestLoadImageFlipsRows(t *testing.T) {
	im, err := LoadImage(writePNG(t, 4, 3))
	require.NoError(t, err)

	assert.Equal(t, 4, im.Width)
	assert.Equal(t, 3, im.Height)
	assert.Equal(t, "png", im.Format)
	assert.InDelta(t, 4.0/3.0, im.Aspect(), 1e-9)
	require.Len(t, im.Pixels, 4*3*4)

	// First stored row is the bottom row of the source (y=2).
	assert.Equal(t, []byte{0, 2, 7, 255}, im.Pixels[0:4])
	// Last stored row is the top row (y=0), pixel x=3.
	last := (2*4 + 3) * 4
	assert.Equal(t, []byte{3, 0, 7, 255}, im.Pixels[last:last+4])
}

func TestLoadImageErrors(t *testing.T) {
	_, err := LoadImage(filepath.Join(t.TempDir(), "missing.jpg"))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.True(t, errors.Is(err, fs.ErrNotExist))

	bad := filepath.Join(t.TempDir(), "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = LoadImage(bad)
	require.ErrorAs(t, err, &le)
	assert.Equal(t, bad, le.Path)
}

func TestLoadImageAsync(t *testing.T) {
	res := <-LoadImageAsync(context.Background(), writePNG(t, 2, 2))
	require.NoError(t, res.Err)
	assert.Equal(t, 2, res.Image.Width)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res = <-LoadImageAsync(ctx, filepath.Join(t.TempDir(), "missing.png"))
	var le *LoadError
	assert.ErrorAs(t, res.Err, &le)
}

func TestDownscaleKeepsAspect(t *testing.T) {
	im := &Image{Width: 400, Height: 200, Pixels: make([]byte, 400*200*4)}
	small := im.Downscale(100)
	assert.Equal(t, 100, small.Width)
	assert.Equal(t, 50, small.Height)
	assert.Len(t, small.Pixels, 100*50*4)
	assert.Same(t, im, im.Downscale(0))
	assert.Same(t, im, im.Downscale(400))
}

func TestLoadShader(t *testing.T) {
	fsys := fstest.MapFS{
		"a.frag":     {Data: []byte("void main(){}")},
		"empty.frag": {Data: nil},
	}
	src, err := LoadShader(fsys, "a.frag")
	require.NoError(t, err)
	assert.Equal(t, "void main(){}\x00", src)

	_, err = LoadShader(fsys, "empty.frag")
	assert.Error(t, err)
	_, err = LoadShader(fsys, "nope.frag")
	var le *LoadError
	assert.ErrorAs(t, err, &le)
}
