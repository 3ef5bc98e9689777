// Package texture provides a common datastructure for images used by the
// renderer, e.g. textures and framebuffers.
package texture

import (
	"image"

	"github.com/gorcp/rcq/debug"
)

// Format describes the pixel encoding of a texture.
type Format uint8

const (
	RGBA16 Format = iota // 5:5:5:1
	RGBA32               // 8:8:8:8
	YUV16
	IA4 // 3 bit intensity, 1 bit alpha
	IA8
	IA16
	I4
	I8
	CI4 // palette index, 16 color palette
	CI8 // palette index, 256 color palette
)

// Depth returns the format's size in bits per pixel.
func (f Format) Depth() int {
	switch f {
	case RGBA32:
		return 32
	case RGBA16, YUV16, IA16:
		return 16
	case IA8, I8, CI8:
		return 8
	case IA4, I4, CI4:
		return 4
	}
	panic("texture: invalid format")
}

// PixelsToBytes returns the size of a number of pixels in bytes.
func (f Format) PixelsToBytes(pixels int) int {
	return pixels * f.Depth() / 8
}

func (f Format) indexed() bool { return f == CI4 || f == CI8 }

const (
	// Buffers attached as render targets need cacheline alignment on
	// real hardware; keeping it here makes the layouts interchangeable.
	AlignFramebuffer = 64
	AlignTexture     = 8
)

// Texture is a rectangular pixel buffer in one of the renderer's native
// formats. The zero value is not usable, use one of the New functions or
// Load.
type Texture struct {
	pix     []byte
	stride  int // in bytes
	rect    image.Rectangle
	format  Format
	premult bool
	palette *Palette
	levels  []*Texture // mipmap chain, coarser levels
}

func newTexture(r image.Rectangle, f Format, premult bool) *Texture {
	stride := f.PixelsToBytes(r.Dx())
	debug.Assert(f.Depth() >= 8 || r.Dx()%2 == 0, "odd width for 4 bit format")
	return &Texture{
		pix:     make([]byte, stride*r.Dy()),
		stride:  stride,
		rect:    r,
		format:  f,
		premult: premult,
	}
}

// NewRGBA32 returns a premultiplied-alpha 32 bit RGBA texture.
func NewRGBA32(r image.Rectangle) *Texture { return newTexture(r, RGBA32, true) }

// NewNRGBA32 returns a non-premultiplied 32 bit RGBA texture.
func NewNRGBA32(r image.Rectangle) *Texture { return newTexture(r, RGBA32, false) }

// NewRGBA16 returns a 16 bit (5:5:5:1) RGBA texture.
func NewRGBA16(r image.Rectangle) *Texture { return newTexture(r, RGBA16, true) }

// NewIA8 returns an intensity-alpha texture with 4 bits each.
func NewIA8(r image.Rectangle) *Texture { return newTexture(r, IA8, false) }

// NewIA16 returns an intensity-alpha texture with 8 bits each.
func NewIA16(r image.Rectangle) *Texture { return newTexture(r, IA16, false) }

// NewI4 returns a 4 bit intensity texture.
func NewI4(r image.Rectangle) *Texture { return newTexture(r, I4, false) }

// NewI8 returns an 8 bit intensity texture.
func NewI8(r image.Rectangle) *Texture { return newTexture(r, I8, false) }

// NewCI4 returns a palettized texture with 4 bit indices.
func NewCI4(r image.Rectangle, pal *Palette) *Texture {
	debug.Assert(pal.Len() <= 16, "palette too large for 4 bit indices")
	t := newTexture(r, CI4, false)
	t.palette = pal
	return t
}

// NewCI8 returns a palettized texture with 8 bit indices.
func NewCI8(r image.Rectangle, pal *Palette) *Texture {
	t := newTexture(r, CI8, false)
	t.palette = pal
	return t
}

func (p *Texture) Bounds() image.Rectangle { return p.rect }
func (p *Texture) Format() Format          { return p.format }
func (p *Texture) Premult() bool           { return p.premult }
func (p *Texture) Palette() *Palette       { return p.palette }

// Pix returns the backing pixel buffer. Rows are stored top to bottom,
// big-endian within a pixel, Stride bytes apart.
func (p *Texture) Pix() []byte { return p.pix }

// Stride returns the size of a pixel row in bytes.
func (p *Texture) Stride() int { return p.stride }

// WidthBytes returns the size of the used part of a pixel row in bytes.
func (p *Texture) WidthBytes() int { return p.format.PixelsToBytes(p.rect.Dx()) }

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (p *Texture) PixOffset(x, y int) int {
	return (y-p.rect.Min.Y)*p.stride + p.format.PixelsToBytes(x-p.rect.Min.X)
}

// SubImage returns a texture sharing pixels with p, visible through r.
// For 4 bit formats r must start at an even column.
func (p *Texture) SubImage(r image.Rectangle) *Texture {
	r = r.Intersect(p.rect)
	if r.Empty() {
		return &Texture{format: p.format, premult: p.premult, palette: p.palette}
	}
	return &Texture{
		pix:     p.pix[p.PixOffset(r.Min.X, r.Min.Y):],
		stride:  p.stride,
		rect:    r,
		format:  p.format,
		premult: p.premult,
		palette: p.palette,
	}
}

// Levels returns the mipmap chain below p, ordered fine to coarse. It is
// empty unless mipmaps were stored or generated.
func (p *Texture) Levels() []*Texture { return p.levels }

// SetLevels installs a mipmap chain. Each level must halve the previous
// one's dimensions, rounding up.
func (p *Texture) SetLevels(levels []*Texture) {
	prev := p
	for _, l := range levels {
		debug.Assert(l.format == p.format, "mipmap level format mismatch")
		debug.Assert(l.rect.Dx() == max(prev.rect.Dx()/2, 1) &&
			l.rect.Dy() == max(prev.rect.Dy()/2, 1), "mipmap level size mismatch")
		prev = l
	}
	p.levels = levels
}
