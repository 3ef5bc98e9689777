// Package display implements a vsynced, double buffered framebuffer on
// top of a video output.
package display

import (
	"image"
	"time"

	"github.com/gorcp/rcq/texture"
)

// Output is the video sink scanning out framebuffers. Headless provides
// an implementation for tests and offline rendering.
type Output interface {
	// SetFramebuffer selects the surface scanned out from now on.
	SetFramebuffer(t *texture.Texture)
	// WaitVBlank blocks until the next vertical blank, the safe moment
	// to switch framebuffers. Returns false on timeout.
	WaitVBlank(timeout time.Duration) bool
}

// ColorDepth selects the framebuffer's pixel format.
type ColorDepth uint8

const (
	BPP16 ColorDepth = iota
	BPP32
)

// Display implements a vsynced, double buffered framebuffer.
type Display struct {
	out         Output
	read, write *texture.Texture
	start       time.Time

	rendertime, frametime time.Duration
}

func NewDisplay(out Output, resolution image.Point, bpp ColorDepth) *Display {
	fb := &Display{out: out}

	bounds := image.Rectangle{Max: resolution}
	if bpp == BPP16 {
		fb.read = texture.NewRGBA16(bounds)
		fb.write = texture.NewRGBA16(bounds)
	} else {
		fb.read = texture.NewRGBA32(bounds)
		fb.write = texture.NewRGBA32(bounds)
	}

	out.SetFramebuffer(fb.read)

	fb.start = time.Now()

	return fb
}

// Swap returns the next framebuffer for rendering. The framebuffer
// returned by the last call becomes invalid. Blocks until a framebuffer
// is available for rendering.
func (p *Display) Swap() *texture.Texture {
	p.rendertime = time.Since(p.start)

	p.read, p.write = p.write, p.read
	p.out.SetFramebuffer(p.read)

	if !p.out.WaitVBlank(1 * time.Second) {
		panic("display: vblank timeout")
	}

	p.frametime = time.Since(p.start)
	p.start = time.Now()

	return p.write
}

// Show implements gfx's Presenter: a surface whose rendering finished is
// scanned out directly. Swap's buffer rotation is bypassed.
func (p *Display) Show(t *texture.Texture) {
	p.out.SetFramebuffer(t)
}

func (p *Display) FPS() float32 {
	return 1e9 / float32(p.frametime)
}

func (p *Display) Duration() time.Duration {
	return p.rendertime
}
