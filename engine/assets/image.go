package assets

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/hubastard/reveal/engine/core"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// LoadError reports a missing or undecodable asset.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string { return fmt.Sprintf("load asset %q: %v", e.Path, e.Err) }
func (e *LoadError) Unwrap() error { return e.Err }

// Image is a decoded picture as tightly packed RGBA8, bottom-left origin.
type Image struct {
	Width, Height int
	Pixels        []byte
	Format        string // decoder name, e.g. "jpeg"
}

// Aspect is Width/Height.
func (im *Image) Aspect() float64 {
	if im.Height == 0 {
		return 0
	}
	return float64(im.Width) / float64(im.Height)
}

// TextureDesc describes the upload of im with linear filtering.
func (im *Image) TextureDesc() core.TextureDesc {
	return core.TextureDesc{
		Width: im.Width, Height: im.Height,
		Format:    core.TextureRGBA8,
		Pixels:    im.Pixels,
		MinFilter: "linear", MagFilter: "linear",
		WrapU: "clamp", WrapV: "clamp",
	}
}

// LoadImage decodes path. Rows are flipped to match OpenGL's bottom-left origin.
func LoadImage(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("decode: %w", err)}
	}
	if img.Bounds().Empty() {
		return nil, &LoadError{Path: path, Err: errors.New("empty image")}
	}
	out := FromImage(img)
	out.Format = format
	return out, nil
}

// FromImage converts any image.Image into a flipped RGBA8 Image.
func FromImage(img image.Image) *Image {
	rgba := imageToRGBA(img)
	w, h := rgba.Bounds().Dx(), rgba.Bounds().Dy()

	out := make([]byte, w*h*4)
	src := rgba.Pix
	srcStride := rgba.Stride
	for y := 0; y < h; y++ {
		dstRow := (h - 1 - y) * w * 4
		copy(out[dstRow:dstRow+w*4], src[y*srcStride:y*srcStride+w*4])
	}
	return &Image{Width: w, Height: h, Pixels: out}
}

// LoadResult is delivered by LoadImageAsync.
type LoadResult struct {
	Image *Image
	Err   error
}

// LoadImageAsync decodes path on a goroutine. The channel receives exactly one
// result and is then closed. Cancelling ctx yields ctx.Err() wrapped in a LoadError.
func LoadImageAsync(ctx context.Context, path string) <-chan LoadResult {
	ch := make(chan LoadResult, 1)
	go func() {
		defer close(ch)
		done := make(chan LoadResult, 1)
		go func() {
			im, err := LoadImage(path)
			done <- LoadResult{Image: im, Err: err}
		}()
		select {
		case r := <-done:
			ch <- r
		case <-ctx.Done():
			ch <- LoadResult{Err: &LoadError{Path: path, Err: ctx.Err()}}
		}
	}()
	return ch
}

// Downscale returns im reduced so neither side exceeds maxDim, preserving the
// aspect ratio. Images already within bounds are returned unchanged.
func (im *Image) Downscale(maxDim int) *Image {
	if maxDim <= 0 || (im.Width <= maxDim && im.Height <= maxDim) {
		return im
	}
	scale := float64(maxDim) / float64(max(im.Width, im.Height))
	w := max(1, int(float64(im.Width)*scale+0.5))
	h := max(1, int(float64(im.Height)*scale+0.5))

	src := &image.RGBA{Pix: im.Pixels, Stride: im.Width * 4, Rect: image.Rect(0, 0, im.Width, im.Height)}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return &Image{Width: w, Height: h, Pixels: dst.Pix, Format: im.Format}
}

func imageToRGBA(img image.Image) *image.RGBA {
	if m, ok := img.(*image.RGBA); ok && m.Stride == m.Rect.Dx()*4 && m.Rect.Min == (image.Point{}) {
		return m
	}
	dst := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
	return dst
}
