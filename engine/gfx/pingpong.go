// Package gfx holds device-agnostic helpers shared by the render passes.
package gfx

import (
	"fmt"

	"github.com/hubastard/reveal/engine/core"
)

// PingPong is a pair of equally sized render targets used as a feedback loop:
// each frame reads one slot and writes the other, then Advance flips the roles.
type PingPong struct {
	dev    core.Device
	desc   core.RenderTargetDesc
	slots  [2]core.RenderTarget
	parity uint8
}

// NewPingPong allocates both slots with desc.
func NewPingPong(dev core.Device, desc core.RenderTargetDesc) (*PingPong, error) {
	p := &PingPong{dev: dev}
	if err := p.Reallocate(desc.Width, desc.Height, desc); err != nil {
		return nil, err
	}
	return p, nil
}

// Targets returns (write, read) for the current frame.
func (p *PingPong) Targets() (write, read core.RenderTarget) {
	return p.slots[p.parity], p.slots[p.parity^1]
}

// Write is the slot the next pass draws into.
func (p *PingPong) Write() core.RenderTarget { return p.slots[p.parity] }

// Read is the slot holding the latest completed result.
func (p *PingPong) Read() core.RenderTarget { return p.slots[p.parity^1] }

// Slots returns both targets in allocation order, independent of parity.
func (p *PingPong) Slots() [2]core.RenderTarget { return p.slots }

// Advance swaps the read and write roles.
func (p *PingPong) Advance() { p.parity ^= 1 }

// Parity reports how many swaps happened, modulo 2.
func (p *PingPong) Parity() int { return int(p.parity) }

// Size reports the slot dimensions.
func (p *PingPong) Size() (int, int) { return p.desc.Width, p.desc.Height }

// Reallocate deletes both slots and creates fresh ones at w×h. Contents are
// discarded and parity resets. If allocation fails the pair holds no targets.
func (p *PingPong) Reallocate(w, h int, desc core.RenderTargetDesc) error {
	p.Release()
	desc.Width, desc.Height = w, h
	for i := range p.slots {
		rt, err := p.dev.CreateRenderTarget(desc)
		if err != nil {
			p.Release()
			return fmt.Errorf("ping-pong slot %d (%dx%d %s): %w", i, w, h, desc.Format, err)
		}
		p.slots[i] = rt
	}
	p.desc = desc
	p.parity = 0
	return nil
}

// Resize reallocates at the new size keeping the original format and filter.
func (p *PingPong) Resize(w, h int) error { return p.Reallocate(w, h, p.desc) }

// Release deletes both slots. Safe to call repeatedly.
func (p *PingPong) Release() {
	for i, rt := range p.slots {
		if rt != nil {
			p.dev.DeleteRenderTarget(rt)
			p.slots[i] = nil
		}
	}
}
