package gfx

import (
	"image"

	"github.com/gorcp/rcq/debug"
	"github.com/gorcp/rcq/texture"
)

// Texture memory layout. Loads go through one of 8 tile descriptors;
// palettized formats keep their pixels in the lower half because the
// upper half is reserved for palettes.
const (
	TMEMSize  = 4096
	tmemAlign = 8
	tlutBase  = 0x800
	tlutSlot  = 0x80 // one 16-color palette, stored splatted
	tileCount = 8
)

type texState struct {
	cursor int
	tile   int
	multi  bool

	loadedMask [tileCount]uint32 // sync bits of the memory each tile points at
}

func (t *texState) init() {}

func (t *texState) reset() {
	t.cursor = 0
	t.tile = 0
}

// TileDescFlags set the wrap behavior of a tile's axes.
type TileDescFlags uint32

const (
	MirrorS TileDescFlags = 1 << 8
	ClampS  TileDescFlags = 1 << 9
	MirrorT TileDescFlags = 1 << 18
	ClampT  TileDescFlags = 1 << 19
)

// TileDescriptor configures one of the eight sampling tiles. Most users
// never build one directly; TexUpload derives it from the texture.
type TileDescriptor struct {
	Format         texture.Format
	Line           uint16 // row stride in 8 byte units, 9 bit
	TMEMAddr       uint16 // in 8 byte units, 9 bit
	Idx            uint8  // 3 bit
	Palette        uint8  // 4 bit
	MaskT, MaskS   uint8  // 4 bit
	ShiftT, ShiftS uint8  // 4 bit
	Flags          TileDescFlags
}

// formatBits returns a format's encoding in image and tile commands:
// color type in bits 21-23, pixel depth in bits 19-20.
func formatBits(f texture.Format) uint32 {
	var ct, bpp uint32
	switch f {
	case texture.RGBA16:
		ct, bpp = 0, 2
	case texture.RGBA32:
		ct, bpp = 0, 3
	case texture.YUV16:
		ct, bpp = 1, 2
	case texture.CI4:
		ct, bpp = 2, 0
	case texture.CI8:
		ct, bpp = 2, 1
	case texture.IA4:
		ct, bpp = 3, 0
	case texture.IA8:
		ct, bpp = 3, 1
	case texture.IA16:
		ct, bpp = 3, 2
	case texture.I4:
		ct, bpp = 4, 0
	case texture.I8:
		ct, bpp = 4, 1
	}
	return ct<<21 | bpp<<19
}

// SetTile configures a tile descriptor.
func (r *Renderer) SetTile(ts TileDescriptor) {
	r.autosyncChange(tileMask(int(ts.Idx)))
	uw := 0xf5_000000 | formatBits(ts.Format)
	uw |= uint32(ts.Line)<<9 | uint32(ts.TMEMAddr)
	lw := uint32(ts.Idx)<<24 | uint32(ts.Palette)<<20
	lw |= uint32(ts.MaskT)<<14 | uint32(ts.ShiftT)<<10
	lw |= uint32(ts.MaskS)<<4 | uint32(ts.ShiftS)
	lw |= uint32(ts.Flags)
	r.append(uw, lw)
}

// SetTextureImage sets the image subsequent loads copy their data from.
func (r *Renderer) SetTextureImage(t *texture.Texture) {
	uw := 0xfd_000000 | formatBits(t.Format()) | uint32(t.Bounds().Dx()-1)
	r.append(uw, r.surfaceAddr(t))
}

// LoadTile copies the rectangle rect of the texture image into the
// tile's texture memory, one row at a time.
func (r *Renderer) LoadTile(idx uint8, rect image.Rectangle) {
	r.autosyncChange(tileMask(int(idx)) | r.tex.loadedMask[idx])
	uw := 0xf4_000000 | uint32(rect.Min.X)<<14 | uint32(rect.Min.Y)<<2
	lw := uint32(idx)<<24 | uint32(rect.Max.X-1)<<14 | uint32(rect.Max.Y-1)<<2
	r.append(uw, lw)
	r.autosyncUse(r.tex.loadedMask[idx])
}

// LoadBlock copies texels texels into the tile's texture memory as a
// single contiguous run. Faster than LoadTile, but only correct when the
// texture image's rows are contiguous in memory.
func (r *Renderer) LoadBlock(idx uint8, texels, wordsPerRow int) {
	r.autosyncChange(tileMask(int(idx)) | r.tex.loadedMask[idx])
	dxt := (2048 + wordsPerRow - 1) / wordsPerRow
	uw := 0xf3_000000
	lw := uint32(idx)<<24 | uint32(texels-1)<<12 | uint32(dxt)
	r.append(uint32(uw), lw)
	r.autosyncUse(r.tex.loadedMask[idx])
}

// TexParms adjust how an uploaded texture is placed and sampled. The
// zero value picks placement automatically and clamps both axes to the
// texture's bounds.
type TexParms struct {
	TMEMAddr int // byte address in texture memory, -1 for automatic
	Tile     int // tile descriptor index, -1 for automatic
	Palette  int // palette slot for 4 bit palettized formats
	S, T     TexParmsST
}

// TexParmsST adjusts sampling along one axis.
type TexParmsST struct {
	Mirror bool
	Repeat bool // wrap around instead of clamping
}

// TexUpload copies a texture, its mipmap chain and, for palettized
// formats, its palette into texture memory and configures tiles to
// sample them. It returns the tile index of the base level.
//
// Outside a TexMultiBegin batch every upload starts from an empty
// texture memory. Inside a batch, uploads pack side by side until memory
// or tiles run out, which is fatal.
func (r *Renderer) TexUpload(t *texture.Texture, p TexParms) int {
	if !r.tex.multi {
		r.tex.reset()
	}

	base := r.uploadLevel(t, p)
	for _, level := range t.Levels() {
		p.TMEMAddr = -1
		p.Tile = -1
		r.uploadLevel(level, p)
	}

	if t.Palette() != nil {
		r.TexUploadTLUT(t.Palette(), p.Palette)
	}
	return base
}

func (r *Renderer) uploadLevel(t *texture.Texture, p TexParms) int {
	size := (t.WidthBytes()*t.Bounds().Dy() + tmemAlign - 1) &^ (tmemAlign - 1)

	addr := p.TMEMAddr
	if addr < 0 {
		addr = (r.tex.cursor + tmemAlign - 1) &^ (tmemAlign - 1)
	}
	limit := TMEMSize
	if t.Format() == texture.CI4 || t.Format() == texture.CI8 {
		// Pixels of palettized formats must stay below the palettes.
		limit = tlutBase
	}
	if addr+size > limit {
		panic("gfx: out of texture memory")
	}
	r.tex.cursor = addr + size

	tile := p.Tile
	if tile < 0 {
		tile = r.tex.tile
	}
	if tile >= tileCount {
		panic("gfx: out of tile descriptors")
	}
	r.tex.tile = tile + 1

	line := uint16(t.WidthBytes() / 8)
	if t.Format() == texture.RGBA32 {
		// 32 bit texels are split across the two texture memory banks
		// and count 16 bytes per line unit.
		line >>= 1
	}

	ts := TileDescriptor{
		Format:   t.Format(),
		Line:     line,
		TMEMAddr: uint16(addr / 8),
		Idx:      uint8(tile),
		Palette:  uint8(p.Palette),
		Flags:    ClampS | ClampT,
	}
	if p.S.Repeat || p.S.Mirror {
		ts.Flags &^= ClampS
		ts.MaskS = uint8(log2(t.Bounds().Dx()))
	}
	if p.S.Mirror {
		ts.Flags |= MirrorS
	}
	if p.T.Repeat || p.T.Mirror {
		ts.Flags &^= ClampT
		ts.MaskT = uint8(log2(t.Bounds().Dy()))
	}
	if p.T.Mirror {
		ts.Flags |= MirrorT
	}

	r.SetTextureImage(t)
	r.SetTile(ts)
	r.tex.loadedMask[tile] = tmemMask(addr, size)

	if t.Stride() == t.WidthBytes() && t.WidthBytes()%8 == 0 {
		r.LoadBlock(uint8(tile), t.Bounds().Dx()*t.Bounds().Dy(), t.WidthBytes()/8)
	} else {
		r.LoadTile(uint8(tile), t.Bounds().Sub(t.Bounds().Min))
	}
	return tile
}

// TexUploadTLUT copies a palette into the palette slot in the upper half
// of texture memory.
func (r *Renderer) TexUploadTLUT(pal *texture.Palette, slot int) {
	addr := tlutBase + slot*tlutSlot
	debug.Assert(addr+pal.Len()*8 <= TMEMSize, "palette outside texture memory")

	// Palette loads go through a scratch tile pointed at the slot.
	const scratch = tileCount - 1
	r.autosyncChange(tmemMask(addr, pal.Len()*8) | tileMask(scratch))

	uw := 0xfd_000000 | formatBits(texture.RGBA16) | uint32(pal.Len()-1)
	r.append(uw, r.surfaceAddr(pal))
	r.SetTile(TileDescriptor{
		Format:   texture.RGBA16,
		TMEMAddr: uint16(addr / 8),
		Idx:      scratch,
	})
	// LoadTLUT splats each color across a full 8 byte word.
	lw := uint32(scratch)<<24 | uint32(pal.Len()-1)<<16
	r.append(0xf0_000000, lw)
	r.autosyncUse(tmemMask(addr, pal.Len()*8))
}

// TexMultiBegin starts a texture batch: until TexMultiEnd, uploads pack
// into texture memory side by side instead of replacing each other, to
// be sampled together by multi-textured primitives.
func (r *Renderer) TexMultiBegin() {
	if r.tex.multi {
		panic("gfx: texture batch already open, missing TexMultiEnd")
	}
	r.tex.multi = true
	r.tex.reset()
}

// TexMultiEnd closes a texture batch and returns the number of tiles
// used by it.
func (r *Renderer) TexMultiEnd() int {
	if !r.tex.multi {
		panic("gfx: TexMultiEnd without TexMultiBegin")
	}
	r.tex.multi = false
	return r.tex.tile
}

func log2(v int) int {
	n := 0
	for v > 1 {
		v >>= 1
		n++
	}
	return n
}
