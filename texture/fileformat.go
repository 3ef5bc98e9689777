package texture

import (
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
)

// Container file format: a zlib stream holding a fixed-size header
// followed by the raw pixel data of each mipmap level, fine to coarse,
// followed by the palette if any.
type header struct {
	Format        Format
	Premult       bool
	Width, Height uint16
	PaletteSize   uint8
	Levels        uint8 // mipmap levels below the base
}

// Load reads a texture stored with Store.
func Load(r io.Reader) (tex *Texture, err error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("texture: %w", err)
	}
	defer zr.Close()

	var hdr header
	err = binary.Read(zr, binary.BigEndian, &hdr)
	if err != nil {
		return nil, fmt.Errorf("texture: %w", err)
	}

	var pal *Palette
	if hdr.Format.indexed() {
		n := int(hdr.PaletteSize)
		if n == 0 {
			n = 256
		}
		pal = NewPalette(n)
	}

	rect := image.Rect(0, 0, int(hdr.Width), int(hdr.Height))
	tex, err = loadPixels(zr, rect, &hdr, pal)
	if err != nil {
		return nil, err
	}

	levels := make([]*Texture, hdr.Levels)
	for i := range levels {
		rect = image.Rect(0, 0, max(rect.Dx()/2, 1), max(rect.Dy()/2, 1))
		levels[i], err = loadPixels(zr, rect, &hdr, pal)
		if err != nil {
			return nil, err
		}
	}
	tex.levels = levels

	if pal != nil {
		_, err = io.ReadFull(zr, pal.pix)
		if err != nil {
			return nil, fmt.Errorf("texture: palette: %w", err)
		}
	}

	return tex, nil
}

func loadPixels(r io.Reader, rect image.Rectangle, hdr *header, pal *Palette) (*Texture, error) {
	var tex *Texture
	switch hdr.Format {
	case RGBA32:
		if hdr.Premult {
			tex = NewRGBA32(rect)
		} else {
			tex = NewNRGBA32(rect)
		}
	case RGBA16:
		tex = NewRGBA16(rect)
	case IA8:
		tex = NewIA8(rect)
	case IA16:
		tex = NewIA16(rect)
	case I8:
		tex = NewI8(rect)
	case I4:
		tex = NewI4(rect)
	case CI8:
		tex = NewCI8(rect, pal)
	case CI4:
		tex = NewCI4(rect, pal)
	default:
		return nil, errors.New("texture: unsupported format")
	}
	_, err := io.ReadFull(r, tex.pix)
	if err != nil {
		return nil, fmt.Errorf("texture: pixels: %w", err)
	}
	return tex, nil
}

// Store writes the texture, its mipmap levels and its palette.
func (p *Texture) Store(w io.Writer) error {
	if p.stride != p.WidthBytes() {
		return errors.New("texture: store of subimage")
	}

	hdr := header{
		Format:  p.format,
		Premult: p.premult,
		Width:   uint16(p.rect.Dx()),
		Height:  uint16(p.rect.Dy()),
		Levels:  uint8(len(p.levels)),
	}
	if p.palette != nil {
		hdr.PaletteSize = uint8(p.palette.Len()) // 256 wraps to 0
	}

	zw := zlib.NewWriter(w)
	err := binary.Write(zw, binary.BigEndian, hdr)
	if err != nil {
		return err
	}

	for _, level := range append([]*Texture{p}, p.levels...) {
		_, err = zw.Write(level.pix)
		if err != nil {
			return err
		}
	}

	if p.palette != nil {
		_, err = zw.Write(p.palette.pix)
		if err != nil {
			return err
		}
	}

	return zw.Close()
}
