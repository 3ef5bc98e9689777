package texture

import (
	"image"
	"image/color"
	"image/draw"
)

// Image exposes the texture via the standard library's image interfaces.
// Only byte-aligned formats support Set; 4 bit formats are read-only.
func (p *Texture) Image() draw.Image { return (*textureImage)(p) }

type textureImage Texture

func (p *textureImage) ColorModel() color.Model {
	switch p.format {
	case RGBA32:
		if p.premult {
			return color.RGBAModel
		}
		return color.NRGBAModel
	case RGBA16:
		return RGBA16Model
	default:
		return color.AlphaModel
	}
}

func (p *textureImage) Bounds() image.Rectangle { return p.rect }

func (p *textureImage) At(x, y int) color.Color {
	if !(image.Point{x, y}.In(p.rect)) {
		return color.RGBA{}
	}
	t := (*Texture)(p)
	o := t.PixOffset(x, y)
	switch p.format {
	case RGBA32:
		if p.premult {
			return color.RGBA{p.pix[o], p.pix[o+1], p.pix[o+2], p.pix[o+3]}
		}
		return color.NRGBA{p.pix[o], p.pix[o+1], p.pix[o+2], p.pix[o+3]}
	case RGBA16:
		return colorRGBA16(uint16(p.pix[o])<<8 | uint16(p.pix[o+1]))
	case IA16:
		return color.NRGBA{p.pix[o], p.pix[o], p.pix[o], p.pix[o+1]}
	case IA8:
		i, a := p.pix[o]&0xf0, p.pix[o]&0x0f
		return color.NRGBA{i | i>>4, i | i>>4, i | i>>4, a<<4 | a}
	case I8:
		return color.Alpha{p.pix[o]}
	case I4:
		v := p.pix[o]
		if (x-p.rect.Min.X)&1 == 0 {
			v >>= 4
		}
		v &= 0x0f
		return color.Alpha{v<<4 | v}
	case CI8:
		return p.palette.At(int(p.pix[o]))
	case CI4:
		v := p.pix[o]
		if (x-p.rect.Min.X)&1 == 0 {
			v >>= 4
		}
		return p.palette.At(int(v & 0x0f))
	}
	return color.RGBA{}
}

func (p *textureImage) Set(x, y int, c color.Color) {
	if !(image.Point{x, y}.In(p.rect)) {
		return
	}
	t := (*Texture)(p)
	o := t.PixOffset(x, y)
	switch p.format {
	case RGBA32:
		var cc color.NRGBA
		if p.premult {
			r := color.RGBAModel.Convert(c).(color.RGBA)
			cc = color.NRGBA(r)
		} else {
			cc = color.NRGBAModel.Convert(c).(color.NRGBA)
		}
		p.pix[o], p.pix[o+1], p.pix[o+2], p.pix[o+3] = cc.R, cc.G, cc.B, cc.A
	case RGBA16:
		col, _ := rgba16Model(c).(colorRGBA16)
		p.pix[o] = uint8(col >> 8)
		p.pix[o+1] = uint8(col)
	case IA16:
		cc := color.NRGBAModel.Convert(c).(color.NRGBA)
		p.pix[o], p.pix[o+1] = cc.R, cc.A
	case I8:
		p.pix[o] = color.AlphaModel.Convert(c).(color.Alpha).A
	}
}

// Draw copies src into the texture through the standard draw package.
func (p *Texture) Draw(r image.Rectangle, src image.Image, sp image.Point, op draw.Op) {
	draw.Draw(p.Image(), r, src, sp, op)
}

type colorRGBA16 uint16

func (c colorRGBA16) RGBA() (r, g, b, a uint32) {
	return uint32(c & 0xf800), uint32(c<<5) & 0xf800,
		uint32(c<<10) & 0xf800, uint32(c&1) * 0xffff
}

// RGBA16Model converts colors to the 5:5:5:1 encoding.
var RGBA16Model color.Model = color.ModelFunc(rgba16Model)

func rgba16Model(c color.Color) color.Color {
	if _, ok := c.(colorRGBA16); ok {
		return c
	}
	r, g, b, a := c.RGBA()
	return colorRGBA16((r & 0xf800) | (g&0xf800)>>5 | (b&0xf800)>>10 | a>>15)
}

// Palette is a list of up to 256 colors stored in the 16 bit (5:5:5:1)
// encoding expected by palette lookups.
type Palette struct {
	pix []byte
}

// NewPalette returns a palette with n color slots.
func NewPalette(n int) *Palette {
	return &Palette{pix: make([]byte, 2*n)}
}

// NewPaletteFrom returns a palette holding the given colors.
func NewPaletteFrom(colors []color.Color) *Palette {
	p := NewPalette(len(colors))
	for i, c := range colors {
		p.Set(i, c)
	}
	return p
}

func (p *Palette) Len() int    { return len(p.pix) / 2 }
func (p *Palette) Pix() []byte { return p.pix }

func (p *Palette) At(i int) color.Color {
	return colorRGBA16(uint16(p.pix[2*i])<<8 | uint16(p.pix[2*i+1]))
}

func (p *Palette) Set(i int, c color.Color) {
	col, _ := rgba16Model(c).(colorRGBA16)
	p.pix[2*i] = uint8(col >> 8)
	p.pix[2*i+1] = uint8(col)
}
