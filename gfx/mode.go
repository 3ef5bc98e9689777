package gfx

import (
	"image/color"

	"github.com/gorcp/rcq/debug"
)

// ModeFlags is the raster pipeline's mode register. The hardware-defined
// flags live in the lower 56 bits; the top byte, which the wire encoding
// reserves for the command id, carries extension flags tracked by the
// renderer and masked out on emission.
type ModeFlags uint64

const (
	AlphaCompare ModeFlags = 1 << iota
	DitherAlphaCompare
	ZSource
	AntiAlias
	ZCompare
	ZUpdate
	ImageRead
	ColorOnCoverage
	CvgTimesAlpha ModeFlags = 1 << (iota + 4)
	AlphaCvgSelect
	ForceBlend
	ChromaKeying ModeFlags = 1 << (iota + 29)
	ConvertOne
	BiLerp1
	BiLerp0
	MidTexel
	SampleType
	TLUTType
	TLUT
	TextureLOD
	TextureSharpen
	TextureDetail
	TexturePerspective
	AtomicPrimitive ModeFlags = 1 << 55
)

const (
	CycleTypeOne ModeFlags = iota << 52
	CycleTypeTwo
	CycleTypeCopy
	CycleTypeFill
	CycleTypeMask = 3 << 52
)

const (
	RGBDitherMagicSquare ModeFlags = iota << 38
	RGBDitherBayer
	RGBDitherNoise
	RGBDitherNone
	RGBDitherMask = 3 << 38
)

const (
	AlphaDitherPattern ModeFlags = iota << 36
	AlphaDitherInvPattern
	AlphaDitherNoise
	AlphaDitherNone
	AlphaDitherMask = 3 << 36
)

const (
	ZModeOpaque ModeFlags = iota << 10
	ZModeInterpenetrating
	ZModeTransparent
	ZModeDecal
	ZModeMask = 3 << 10
)

const (
	CvgDestClamp ModeFlags = iota << 8
	CvgDestWrap
	CvgDestZap
	CvgDestSave
	CvgDestMask = 3 << 8
)

// Extension flags, stored in the top byte and never emitted.
const (
	somxNumLODsMask  ModeFlags = 7 << 56
	somxLODInterp    ModeFlags = 1 << 59
	somxAAReduced    ModeFlags = 1 << 60
	somxFog          ModeFlags = 1 << 61
	somxFixedBlender ModeFlags = 1 << 62 // blender bits set raw, skip composition
	somxYUVBilerp    ModeFlags = 1 << 63 // filter in cycle 0, convert in cycle 1
	somxMask         ModeFlags = 0xff << 56
	blenderBitsMask  ModeFlags = 0xffff << 16
	somEmitMask                = ^somxMask
)

const maxModeStack = 4

// mode is the complete logical pipeline mode, the unit saved and restored
// by PushMode and PopMode.
type mode struct {
	som        ModeFlags
	comb       CombineMode
	combPasses int
	blend      [2]BlenderPass
	fogBlend   BlenderPass
	blendColor color.RGBA
}

type modeState struct {
	mode
	stack [maxModeStack - 1]mode
	sp    int

	frozen bool

	emitted     bool // emittedSOM/emittedComb are valid
	emittedSOM  uint64
	emittedComb uint64
}

func (m *modeState) init() {
	m.som = CycleTypeOne | RGBDitherNone | AlphaDitherNone | BiLerp0 | BiLerp1
	m.comb = CombineMode{One: combinePassTex0}
	m.combPasses = 1
	m.fogBlend = BlenderFogStandard
}

// change updates masked mode register bits. All mode setters funnel
// through here.
func (m *modeState) change(r *Renderer, mask, val ModeFlags) {
	debug.Assert(val&^mask == 0, "mode value outside mask")
	m.som = m.som&^mask | val
	m.update(r)
}

func (m *modeState) update(r *Renderer) {
	if m.frozen {
		return
	}
	m.emit(r)
}

// apply is called before every draw command to make sure the encoded
// mode matches the tracked one.
func (m *modeState) apply(r *Renderer) {
	debug.Assert(!m.frozen, "draw inside frozen mode, missing EndMode")
}

func (m *modeState) emit(r *Renderer) {
	som := m.derive()

	comb := m.deriveCombiner()
	if !m.emitted || comb != m.emittedComb {
		r.autosyncChange(syncPipe)
		r.append(uint32(comb>>32), uint32(comb))
	}

	if !m.emitted || som != m.emittedSOM {
		r.autosyncChange(syncPipe)
		r.append(uint32(som>>32), uint32(som))
	}

	m.emitted = true
	m.emittedSOM = som
	m.emittedComb = comb
}

// derive composes the emitted mode register value: the tracked flags
// with the cycle type, blender stages and blend enable filled in.
func (m *mode) derive() uint64 {
	som := m.som

	if m.som&somxFixedBlender == 0 {
		som &^= blenderBitsMask | ForceBlend
		fog := m.som&somxFog != 0
		blend := m.blend[0] != 0 || m.blend[1] != 0

		switch {
		case fog && m.blend[1] != 0:
			panic("gfx: fog needs the first blender stage, two-stage blender set")
		case fog:
			user := m.blend[0]
			if user == 0 {
				user = blenderPassthrough
			}
			som |= m.fogBlend.cycle0() | user.cycle1()
		case m.blend[1] != 0:
			som |= m.blend[0].cycle0() | m.blend[1].cycle1()
		case blend && m.twoCycle():
			som |= blenderPassthrough.cycle0() | m.blend[0].cycle1()
		case blend:
			som |= m.blend[0].cycle0() | m.blend[0].cycle1()
		}
		if fog || blend {
			som |= ForceBlend
		}
	}

	if ct := som & CycleTypeMask; ct != CycleTypeCopy && ct != CycleTypeFill {
		som &^= CycleTypeMask
		if m.twoCycle() {
			som |= CycleTypeTwo
		} else {
			som |= CycleTypeOne
		}
	}

	cmd := uint64(0xef00_000f_0000_0000) | uint64(som&somEmitMask)
	return cmd
}

// twoCycle reports whether the pipeline needs the two-cycle mode: a
// second combiner or blender pass, fog or mipmap interpolation.
func (m *mode) twoCycle() bool {
	return m.combPasses == 2 || m.blend[1] != 0 ||
		m.som&(somxFog|somxLODInterp|somxYUVBilerp) != 0
}

// SetAntialias selects coverage-based antialiasing of primitive edges.
func (r *Renderer) SetAntialias(aa Antialias) {
	var v ModeFlags
	switch aa {
	case AntialiasNone:
	case AntialiasStandard:
		v = AntiAlias | ImageRead
	case AntialiasReduced:
		// Reduced quality skips the framebuffer readback.
		v = AntiAlias | somxAAReduced
	}
	r.mode.change(r, AntiAlias|ImageRead|somxAAReduced, v)
}

type Antialias uint8

const (
	AntialiasNone Antialias = iota
	AntialiasStandard
	AntialiasReduced
)

// SetDither selects the dither patterns applied to color and alpha
// output, e.g. RGBDitherBayer and AlphaDitherNoise.
func (r *Renderer) SetDither(rgb, alpha ModeFlags) {
	debug.Assert(rgb&^RGBDitherMask == 0 && alpha&^AlphaDitherMask == 0,
		"invalid dither flags")
	r.mode.change(r, RGBDitherMask|AlphaDitherMask, rgb|alpha)
}

// SetAlphaCompare discards pixels with alpha below the threshold. A zero
// threshold disables the compare. The threshold is stored in the blend
// color's alpha channel, which is updated after the mode register so a
// drained pipeline never observes the new threshold with the old enable
// bit.
func (r *Renderer) SetAlphaCompare(threshold uint8) {
	if threshold == 0 {
		r.mode.change(r, AlphaCompare|DitherAlphaCompare, 0)
		return
	}
	r.mode.change(r, AlphaCompare|DitherAlphaCompare, AlphaCompare)
	c := r.mode.blendColor
	c.A = threshold
	r.SetBlendColor(c)
}

// SetZbuf enables depth testing and depth writes for primitives that
// carry depth.
func (r *Renderer) SetZbuf(compare, update bool) {
	var v ModeFlags
	if compare {
		v |= ZCompare
	}
	if update {
		v |= ZUpdate
	}
	r.mode.change(r, ZCompare|ZUpdate, v)
}

// SetZOverride makes all pixels use the given constant depth instead of
// per-pixel depth. The depth register is written before the mode bit is
// flipped so no pixel is ever drawn with a stale override value.
func (r *Renderer) SetZOverride(enable bool, z uint16) {
	if !enable {
		r.mode.change(r, ZSource, 0)
		return
	}
	r.SetPrimDepth(z, 0)
	r.mode.change(r, ZSource, ZSource)
}

// SetZMode selects how depth comparison treats coplanar surfaces, e.g.
// ZModeOpaque or ZModeDecal.
func (r *Renderer) SetZMode(mode ModeFlags) {
	debug.Assert(mode&^ZModeMask == 0, "invalid zmode flags")
	r.mode.change(r, ZModeMask, mode)
}

// TLUTMode selects palette lookup for sampled texels.
type TLUTMode uint8

const (
	TLUTNone TLUTMode = iota
	TLUTRGBA16
	TLUTIA16
)

// SetTLUT enables palette lookup for palettized texture formats.
func (r *Renderer) SetTLUT(mode TLUTMode) {
	var v ModeFlags
	switch mode {
	case TLUTRGBA16:
		v = TLUT
	case TLUTIA16:
		v = TLUT | TLUTType
	}
	r.mode.change(r, TLUT|TLUTType, v)
}

// Filter selects the texture sampling kernel.
type Filter uint8

const (
	FilterPoint Filter = iota
	FilterBilinear
	FilterMedian
)

// SetFilter selects the texture sampling filter.
func (r *Renderer) SetFilter(f Filter) {
	var v ModeFlags
	switch f {
	case FilterBilinear:
		v = SampleType
	case FilterMedian:
		v = SampleType | MidTexel
	}
	r.mode.change(r, SampleType|MidTexel, v)
}

// Mipmap selects how texture detail levels are sampled.
type Mipmap uint8

const (
	MipmapNone Mipmap = iota
	MipmapNearest
	MipmapInterpolate
)

// SetMipmap enables mipmapped sampling across levels detail levels.
// MipmapInterpolate blends adjacent levels, which occupies the first
// combiner cycle; it cannot be combined with a two-pass combiner.
func (r *Renderer) SetMipmap(m Mipmap, levels int) {
	debug.Assert(levels >= 0 && levels <= 7, "invalid mipmap level count")
	var v ModeFlags
	switch m {
	case MipmapNone:
		levels = 0
	case MipmapNearest:
		v = TextureLOD
	case MipmapInterpolate:
		debug.Assert(r.mode.combPasses == 1,
			"mipmap interpolation needs the first combiner cycle, two-pass combiner set")
		v = TextureLOD | somxLODInterp
	}
	v |= ModeFlags(levels) << 56 & somxNumLODsMask
	r.mode.change(r, TextureLOD|somxLODInterp|somxNumLODsMask, v)
}

// SetPerspective enables perspective correction of texture coordinates.
func (r *Renderer) SetPerspective(enable bool) {
	var v ModeFlags
	if enable {
		v = TexturePerspective
	}
	r.mode.change(r, TexturePerspective, v)
}

// SetFog enables fogging. Fog occupies the first blender stage using the
// shade alpha as fog intensity; a two-stage blender cannot be active at
// the same time.
func (r *Renderer) SetFog(enable bool) {
	var v ModeFlags
	if enable {
		debug.Assert(r.mode.blend[1] == 0,
			"fog needs the first blender stage, two-stage blender set")
		v = somxFog
	}
	r.mode.change(r, somxFog, v)
}

// Mode returns the tracked mode register, extension flags included.
func (r *Renderer) Mode() ModeFlags { return r.mode.som }

// SetModeStandard resets to the 1-cycle mode drawing tex0 without
// blending, the base for composing other mode setters onto.
func (r *Renderer) SetModeStandard() {
	m := &r.mode
	m.mode = mode{
		som:        RGBDitherNone | AlphaDitherNone | BiLerp0 | BiLerp1,
		comb:       CombineMode{One: combinePassTex0},
		combPasses: 1,
		fogBlend:   BlenderFogStandard,
		blendColor: m.blendColor,
	}
	m.update(r)
}

// SetModeCopy selects the copy mode, which moves 4 texels per clock but
// supports neither blending nor combining. With transparency enabled,
// texels with zero alpha are skipped.
func (r *Renderer) SetModeCopy(transparency bool) {
	m := &r.mode
	m.mode = mode{
		som:        CycleTypeCopy | RGBDitherNone | AlphaDitherNone,
		comb:       m.comb,
		combPasses: m.combPasses,
		fogBlend:   m.fogBlend,
		blendColor: m.blendColor,
	}
	if transparency {
		m.som |= AlphaCompare
		m.update(r)
		c := m.blendColor
		c.A = 1
		r.SetBlendColor(c)
		return
	}
	m.update(r)
}

// SetModeYUV configures drawing YUV textures, converting them to RGB in
// the texture filter. With bilinear filtering the filter needs the first
// cycle, moving the conversion to the second.
func (r *Renderer) SetModeYUV(bilinear bool) {
	m := &r.mode
	m.mode = mode{
		som:        RGBDitherNone | AlphaDitherNone,
		comb:       CombineMode{One: combinePassTex0},
		combPasses: 1,
		fogBlend:   m.fogBlend,
		blendColor: m.blendColor,
	}
	if bilinear {
		m.som |= SampleType | BiLerp0 | ConvertOne | somxYUVBilerp
	}
	m.update(r)
	r.SetYUVParms(175, -43, -89, 222, 114, 42)
}

// SetModeFill selects the fill mode, which writes the fill color at 4
// pixels per clock, and sets the fill color.
func (r *Renderer) SetModeFill(c color.Color) {
	m := &r.mode
	m.mode = mode{
		som:        CycleTypeFill | RGBDitherNone | AlphaDitherNone,
		comb:       m.comb,
		combPasses: m.combPasses,
		fogBlend:   m.fogBlend,
		blendColor: m.blendColor,
	}
	m.update(r)
	r.SetFillColor(c)
}

// PushMode saves the complete mode state onto a fixed-depth stack.
func (r *Renderer) PushMode() {
	m := &r.mode
	if m.sp >= len(m.stack) {
		panic("gfx: mode stack overflow")
	}
	m.stack[m.sp] = m.mode
	m.sp++
}

// PopMode restores the most recently pushed mode state.
func (r *Renderer) PopMode() {
	m := &r.mode
	if m.sp == 0 {
		panic("gfx: mode stack underflow")
	}
	m.sp--
	m.mode = m.stack[m.sp]
	m.update(r)
}

// BeginMode suspends mode emission. Setters called until EndMode only
// update the tracked state; EndMode emits the final mode once. Batching
// avoids a pipeline sync per setter when changing many flags at once.
func (r *Renderer) BeginMode() {
	debug.Assert(!r.mode.frozen, "nested BeginMode")
	r.mode.frozen = true
}

// EndMode re-enables emission and emits the batched mode change.
func (r *Renderer) EndMode() {
	debug.Assert(r.mode.frozen, "EndMode without BeginMode")
	r.mode.frozen = false
	r.mode.emit(r)
}
