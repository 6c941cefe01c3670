package pipeline

// CoveredScale returns the per-axis factors that make a picture of aspect
// imageAspect cover a viewport of aspect viewportAspect: the viewport scaled
// by the result has the picture's aspect, and both factors are at least 1 so
// the overflowing axis is cropped instead of letterboxed.
func CoveredScale(imageAspect, viewportAspect float64) [2]float32 {
	if imageAspect <= 0 || viewportAspect <= 0 {
		return [2]float32{1, 1}
	}
	if imageAspect >= viewportAspect {
		return [2]float32{float32(imageAspect / viewportAspect), 1}
	}
	return [2]float32{1, float32(viewportAspect / imageAspect)}
}
