// Package gfx encodes raster commands and manages the raster pipeline's
// state. It writes 64-bit raster commands through the command queue,
// which forwards them to the attached raster backend.
//
// Commands are not executed immediately; like everything else on the
// queue they run asynchronously. State queries like Mode report the state
// the pipeline will be in once it catches up, which is what the next
// encoded command will observe.
package gfx

import (
	"image"
	"image/color"

	"github.com/gorcp/rcq/cmdq"
	"github.com/gorcp/rcq/debug"
	"github.com/gorcp/rcq/device"
	"github.com/gorcp/rcq/fixed"
	"github.com/gorcp/rcq/texture"
)

// Config enables or disables automatic insertion of pipeline
// synchronization. Disabling it is only useful for hand-optimized command
// streams that carry their own sync commands.
type Config uint32

const (
	AutoSyncPipe Config = 1 << iota
	AutoSyncLoad
	AutoSyncTile
	AutoScissor

	ConfigDefault = AutoSyncPipe | AutoSyncLoad | AutoSyncTile | AutoScissor
)

// Renderer holds all pipeline state: the current render mode, the tile
// and texture memory allocator and the render target stack. A Renderer is
// bound to one queue and, like the queue, serializes no access itself.
type Renderer struct {
	q   *cmdq.Queue
	cfg Config

	mode     modeState
	tex      texState
	targets  attachState
	surfaces map[any]uint32
	nextSurf uint32

	// Resources used by not yet finished raster commands, see
	// autosyncUse. Bits 0-7 tiles, 8-15 texture memory regions, 16 the
	// pipeline registers.
	autosync uint32

	lastFill color.Color
	prim     struct {
		c                 color.RGBA
		minLevel, lodFrac uint8
	}
}

const (
	syncTiles uint32 = 0xff
	syncTMEM  uint32 = 0xff << 8
	syncPipe  uint32 = 1 << 16
)

// New returns a renderer encoding into q.
func New(q *cmdq.Queue) *Renderer {
	r := &Renderer{
		q:        q,
		cfg:      ConfigDefault,
		surfaces: make(map[any]uint32),
	}
	r.mode.init()
	r.tex.init()
	return r
}

func (r *Renderer) Queue() *cmdq.Queue { return r.q }

// SetConfig replaces the autosync configuration and returns the previous
// one.
func (r *Renderer) SetConfig(cfg Config) Config {
	old := r.cfg
	r.cfg = cfg
	return old
}

// append forwards one raster command dword through the queue.
func (r *Renderer) append(uw, lw uint32) {
	r.q.Write(0, byte(device.CmdRdpAppend), 0, uw, lw)
}

// autosyncUse marks resources as read by an in-flight raster command.
func (r *Renderer) autosyncUse(res uint32) {
	r.autosync |= res
}

// autosyncChange inserts sync commands if any of the resources about to
// be overwritten may still be read by an in-flight raster command.
func (r *Renderer) autosyncChange(res uint32) {
	res &= r.autosync
	if res == 0 {
		return
	}
	if res&syncTiles != 0 && r.cfg&AutoSyncTile != 0 {
		r.SyncTile()
	}
	if res&syncTMEM != 0 && r.cfg&AutoSyncLoad != 0 {
		r.SyncLoad()
	}
	if res&syncPipe != 0 && r.cfg&AutoSyncPipe != 0 {
		r.SyncPipe()
	}
}

func tileMask(idx int) uint32 { return 1 << idx }

// tmemMask returns the sync tracking bits covering a texture memory
// range, at a granularity of 512 bytes.
func tmemMask(addr, size int) uint32 {
	first := addr / 512
	last := (addr + size - 1) / 512
	var m uint32
	for i := first; i <= last && i < 8; i++ {
		m |= 1 << (8 + i)
	}
	return m
}

// surfaceAddr returns the stable identifier a raster command uses to
// reference a pixel or palette buffer. The raster backend resolves it
// back; commands never embed host pointers.
func (r *Renderer) surfaceAddr(t any) uint32 {
	if a, ok := r.surfaces[t]; ok {
		return a
	}
	r.nextSurf++
	a := r.nextSurf
	r.surfaces[t] = a
	return a
}

// Sync commands. The raster backend runs deeply pipelined; commands that
// overwrite state or memory still in use by a preceding command must be
// preceded by the matching sync. With autosync enabled (the default) the
// renderer inserts these itself.

// SyncPipe stalls until pipeline registers may be safely overwritten.
func (r *Renderer) SyncPipe() {
	r.append(0xe7_000000, 0)
	r.autosync &^= syncPipe
}

// SyncLoad stalls until texture memory may be safely overwritten.
func (r *Renderer) SyncLoad() {
	r.append(0xf1_000000, 0)
	r.autosync &^= syncTMEM
}

// SyncTile stalls until tile descriptors may be safely overwritten.
func (r *Renderer) SyncTile() {
	r.append(0xe8_000000, 0)
	r.autosync &^= syncTiles
}

// SyncFull drains the raster backend completely, including all memory
// writes, and raises SigRdpDone. Required before reading or reusing a
// render target.
func (r *Renderer) SyncFull() {
	r.append(0xe9_000000, 0)
	r.q.Write(0, byte(device.CmdWriteStatus), uint32(device.SigRdpDone))
	r.autosync = 0
}

// SetFillColor sets the color used by FillRectangle in fill mode. The
// encoding depends on the attached target's pixel depth.
func (r *Renderer) SetFillColor(c color.Color) {
	if c == r.lastFill {
		return
	}
	r.lastFill = c
	r.autosyncChange(syncPipe)

	red, g, b, a := c.RGBA()
	var ci uint32
	if tgt := r.targets.current(); tgt != nil && tgt.Format() == texture.RGBA32 {
		ci = (red>>8)<<24 | (g>>8)<<16 | (b>>8)<<8 | a>>8
	} else {
		ci = (red>>11)<<11 | (g>>11)<<6 | (b>>11)<<1 | a>>15
		ci |= ci << 16
	}
	r.append(0xf7_000000, ci)
}

// SetEnvColor sets the combiner's environment color.
func (r *Renderer) SetEnvColor(c color.RGBA) {
	r.autosyncChange(syncPipe)
	r.append(0xfb_000000, packColor(c))
}

// SetPrimColor sets the combiner's primitive color.
func (r *Renderer) SetPrimColor(c color.RGBA) {
	r.prim.c = c
	r.emitPrim()
}

// SetPrimLOD sets the minimum mipmap level clamp and the LOD fraction
// sampled by the combiner's PrimitiveLODFraction source.
func (r *Renderer) SetPrimLOD(minLevel, lodFrac uint8) {
	debug.Assert(minLevel < 32, "prim minimum level out of range")
	r.prim.minLevel = minLevel
	r.prim.lodFrac = lodFrac
	r.emitPrim()
}

func (r *Renderer) emitPrim() {
	// Unlike the other color registers this one is not pipelined and
	// needs no sync.
	uw := 0xfa_000000 | uint32(r.prim.minLevel)<<8 | uint32(r.prim.lodFrac)
	r.append(uw, packColor(r.prim.c))
}

// SetBlendColor sets the blender's constant color. The alpha channel is
// also the alpha compare threshold, see SetAlphaCompare.
func (r *Renderer) SetBlendColor(c color.RGBA) {
	r.mode.blendColor = c
	r.autosyncChange(syncPipe)
	r.append(0xf9_000000, packColor(c))
}

// SetFogColor sets the blender's fog color.
func (r *Renderer) SetFogColor(c color.RGBA) {
	r.autosyncChange(syncPipe)
	r.append(0xf8_000000, packColor(c))
}

// SetPrimDepth sets the depth value used for all pixels when the depth
// source override is enabled, see SetZOverride.
func (r *Renderer) SetPrimDepth(z uint16, dz int16) {
	r.autosyncChange(syncPipe)
	r.append(0xee_000000, uint32(z)<<16|uint32(uint16(dz)))
}

// SetYUVParms sets the coefficients of the texture filter's YUV to RGB
// conversion, 9 bit signed each. SetModeYUV installs BT.601 defaults.
func (r *Renderer) SetYUVParms(k0, k1, k2, k3, k4, k5 int16) {
	r.autosyncChange(syncPipe)
	uw := 0xec_000000 | uint32(k0&0x1ff)<<13 | uint32(k1&0x1ff)<<4 | uint32(k2&0x1ff)>>5
	lw := uint32(k2&0x1f)<<27 | uint32(k3&0x1ff)<<18 | uint32(k4&0x1ff)<<9 | uint32(k5&0x1ff)
	r.append(uw, lw)
}

func packColor(c color.RGBA) uint32 {
	return uint32(c.R)<<24 | uint32(c.G)<<16 | uint32(c.B)<<8 | uint32(c.A)
}

// InterlaceFrame selects lines skipped by the scissor.
type InterlaceFrame uint8

const (
	InterlaceNone InterlaceFrame = 0 // draw all lines
	InterlaceOdd  InterlaceFrame = 2 // skip odd lines
	InterlaceEven InterlaceFrame = 3 // skip even lines
)

// SetScissor limits rendering to r. Additionally odd or even lines can
// be skipped to render interlaced frames.
func (r *Renderer) SetScissor(rect image.Rectangle, i InterlaceFrame) {
	debug.Assert(rect.Min.X >= 0 && rect.Min.Y >= 0, "negative scissor")
	uw := 0xed_000000 | uint32(rect.Min.X)<<14 | uint32(rect.Min.Y)<<2
	lw := uint32(i)<<24 | uint32(rect.Max.X)<<14 | uint32(rect.Max.Y)<<2
	r.append(uw, lw)
}

// FillRectangle draws rect with the fill color in fill mode, or with the
// combiner/blender output in the 1- and 2-cycle modes. The rectangle's
// Max edges are exclusive.
func (r *Renderer) FillRectangle(rect image.Rectangle) {
	r.mode.apply(r)
	r.autosyncUse(syncPipe)

	// The raster grid is inclusive at 10.2 precision. In the copy and
	// fill modes it additionally skips the last subpixel row and column.
	maxX, maxY := rect.Max.X<<2, rect.Max.Y<<2
	if ct := r.mode.som & CycleTypeMask; ct != CycleTypeCopy && ct != CycleTypeFill {
		maxX, maxY = maxX-1, maxY-1
	}
	uw := 0xf6_000000 | uint32(maxX)<<12 | uint32(maxY)
	lw := uint32(rect.Min.X)<<14 | uint32(rect.Min.Y)<<2
	r.append(uw, lw)
}

// TextureRectangleScaled draws rect textured by the given tile,
// magnifying each texel to sx by sy pixels.
func (r *Renderer) TextureRectangleScaled(rect image.Rectangle, s, t int, sx, sy int, tile int) {
	r.mode.apply(r)
	r.autosyncUse(syncPipe | tileMask(tile) | r.tex.loadedMask[tile])

	dsdx := fixed.Int6_10F(1 / float32(sx))
	dtdy := fixed.Int6_10F(1 / float32(sy))

	uw := 0xe4_000000 | uint32(rect.Max.X<<2-1)<<12 | uint32(rect.Max.Y<<2-1)
	lw := uint32(tile)<<24 | uint32(rect.Min.X)<<14 | uint32(rect.Min.Y)<<2
	r.append(uw, lw)
	r.append(uint32(uint16(fixed.Int11_5U(s)))<<16|uint32(uint16(fixed.Int11_5U(t))),
		uint32(uint16(dsdx))<<16|uint32(uint16(dtdy)))
}

// TextureRectangle draws rect textured by the given tile, sampling from
// s/t at rect.Min and advancing one texel per pixel. The tile index is a
// value returned by TexUpload.
func (r *Renderer) TextureRectangle(rect image.Rectangle, s, t int, tile int) {
	r.mode.apply(r)
	r.autosyncUse(syncPipe | tileMask(tile) | r.tex.loadedMask[tile])

	dsdx := fixed.Int6_10F(1.0)
	if r.mode.som&CycleTypeMask == CycleTypeCopy {
		// The copy mode moves four texels per clock.
		dsdx = fixed.Int6_10F(4.0)
	}
	dtdy := fixed.Int6_10F(1.0)

	maxX, maxY := rect.Max.X<<2, rect.Max.Y<<2
	if ct := r.mode.som & CycleTypeMask; ct == CycleTypeCopy || ct == CycleTypeFill {
		maxX, maxY = maxX-4, maxY-4
	}
	uw := 0xe4_000000 | uint32(maxX)<<12 | uint32(maxY)
	lw := uint32(tile)<<24 | uint32(rect.Min.X)<<14 | uint32(rect.Min.Y)<<2
	r.append(uw, lw)
	r.append(uint32(uint16(fixed.Int11_5U(s)))<<16|uint32(uint16(fixed.Int11_5U(t))),
		uint32(uint16(dsdx))<<16|uint32(uint16(dtdy)))
}
