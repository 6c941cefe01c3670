package gfx

import (
	"testing"

	"github.com/hubastard/reveal/engine/core"
	"github.com/hubastard/reveal/engine/gfx/soft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var desc = core.RenderTargetDesc{Width: 4, Height: 2, Format: core.TextureRGBA32F, Filter: "linear"}

func TestPingPongAlternates(t *testing.T) {
	dev := soft.New(4, 2)
	pp, err := NewPingPong(dev, desc)
	require.NoError(t, err)
	slots := pp.Slots()

	for i := 0; i < 4; i++ {
		w, r := pp.Targets()
		assert.NotSame(t, w, r)
		assert.Same(t, slots[i%2], w)
		assert.Same(t, slots[(i+1)%2], r)
		assert.Equal(t, i%2, pp.Parity())
		pp.Advance()
	}
}

func TestPingPongResizeReplacesSlots(t *testing.T) {
	dev := soft.New(4, 2)
	pp, err := NewPingPong(dev, desc)
	require.NoError(t, err)
	old := pp.Slots()
	pp.Advance()

	require.NoError(t, pp.Resize(8, 3))
	w, h := pp.Size()
	assert.Equal(t, 8, w)
	assert.Equal(t, 3, h)
	assert.Zero(t, pp.Parity())
	for _, rt := range pp.Slots() {
		rw, rh := rt.Size()
		assert.Equal(t, [2]int{8, 3}, [2]int{rw, rh})
		assert.NotSame(t, old[0], rt)
		assert.NotSame(t, old[1], rt)
	}
	// two slots, each a framebuffer plus its texture
	assert.Equal(t, 4, dev.Live())
}

func TestPingPongFailureLeavesNothing(t *testing.T) {
	dev := soft.New(4, 2)
	dev.Unsupported[core.TextureRGBA32F] = true
	_, err := NewPingPong(dev, desc)
	require.Error(t, err)
	assert.Zero(t, dev.Live())

	dev.Unsupported = map[core.TextureFormat]bool{}
	pp, err := NewPingPong(dev, desc)
	require.NoError(t, err)
	pp.Release()
	pp.Release()
	assert.Zero(t, dev.Live())
}
