package gfx

const (
	CombineCombined CombineSource = iota
	CombineTex0
	CombineTex1
	CombinePrimitive
	CombineShade
	CombineEnvironment

	CombineAColorOne   CombineSource = 6
	CombineAColorNoise CombineSource = 7
	CombineAColorZero  CombineSource = 8

	CombineAAlphaOne  CombineSource = 6
	CombineAAlphaZero CombineSource = 7

	CombineBColorCenter CombineSource = 6
	CombineBColorK4     CombineSource = 7
	CombineBColorZero   CombineSource = 8

	CombineBAlphaOne  CombineSource = 6
	CombineBAlphaZero CombineSource = 7

	CombineCColorCenter               CombineSource = 6
	CombineCColorCombinedAlpha        CombineSource = 7
	CombineCColorTex0Alpha            CombineSource = 8
	CombineCColorTex1Alpha            CombineSource = 9
	CombineCColorPrimitiveAlpha       CombineSource = 10
	CombineCColorShadeAlpha           CombineSource = 11
	CombineCColorEnvironmentAlpha     CombineSource = 12
	CombineCColorLODFraction          CombineSource = 13
	CombineCColorPrimitiveLODFraction CombineSource = 14
	CombineCColorK5                   CombineSource = 15
	CombineCColorZero                 CombineSource = 16

	CombineCAlphaPrimitiveLODFraction CombineSource = 6
	CombineCAlphaZero                 CombineSource = 7

	CombineDColorOne  CombineSource = 6
	CombineDColorZero CombineSource = 7

	CombineDAlphaOne  CombineSource = 6
	CombineDAlphaZero CombineSource = 7
)

// The color combiner computes its output with the equation `(A-B)*C + D`,
// where the inputs A, B, C and D can be chosen from the predefined
// CombineSource values. Color and alpha are calculated separately.
// In the two-cycle mode two passes run back to back, where the second
// pass can use the first pass output as its input via CombineCombined.
type CombineMode struct{ One, Two CombinePass }
type CombinePass struct{ RGB, Alpha CombineParams }
type CombineParams struct{ A, B, C, D CombineSource }
type CombineSource uint64

var combinePassTex0 = CombinePass{
	RGB:   CombineParams{CombineAColorZero, CombineAColorZero, CombineCColorZero, CombineTex0},
	Alpha: CombineParams{CombineAAlphaZero, CombineAAlphaZero, CombineCAlphaZero, CombineTex0},
}

var combinePassthrough = CombinePass{
	RGB:   CombineParams{CombineAColorZero, CombineAColorZero, CombineCColorZero, CombineCombined},
	Alpha: CombineParams{CombineAAlphaZero, CombineAAlphaZero, CombineCAlphaZero, CombineCombined},
}

// The level-of-detail interpolation pass blends the two sampled detail
// levels by the per-pixel LOD fraction.
var combinePassLODInterp = CombinePass{
	RGB:   CombineParams{CombineTex1, CombineTex0, CombineCColorLODFraction, CombineTex0},
	Alpha: CombineParams{CombineAAlphaZero, CombineAAlphaZero, CombineCAlphaZero, CombineTex0},
}

// Common single-pass combiners.
var (
	// CombinerFlat outputs the primitive color.
	CombinerFlat = CombinePass{
		RGB:   CombineParams{CombineAColorZero, CombineAColorZero, CombineCColorZero, CombinePrimitive},
		Alpha: CombineParams{CombineAAlphaZero, CombineAAlphaZero, CombineCAlphaZero, CombinePrimitive},
	}
	// CombinerShade outputs the interpolated shade color.
	CombinerShade = CombinePass{
		RGB:   CombineParams{CombineAColorZero, CombineAColorZero, CombineCColorZero, CombineShade},
		Alpha: CombineParams{CombineAAlphaZero, CombineAAlphaZero, CombineCAlphaZero, CombineShade},
	}
	// CombinerTex outputs the sampled texel.
	CombinerTex = combinePassTex0
	// CombinerTexFlat multiplies the sampled texel with the primitive
	// color.
	CombinerTexFlat = CombinePass{
		RGB:   CombineParams{CombineTex0, CombineAColorZero, CombinePrimitive, CombineDColorZero},
		Alpha: CombineParams{CombineTex0, CombineAAlphaZero, CombinePrimitive, CombineDAlphaZero},
	}
	// CombinerTexShade multiplies the sampled texel with the shade color.
	CombinerTexShade = CombinePass{
		RGB:   CombineParams{CombineTex0, CombineAColorZero, CombineShade, CombineDColorZero},
		Alpha: CombineParams{CombineTex0, CombineAAlphaZero, CombineShade, CombineDAlphaZero},
	}
)

// SetCombiner sets a single-pass color combiner. In the two-cycle mode
// the pass runs in the first cycle and its result is passed through the
// second, unless mipmap interpolation claims the first cycle for itself.
func (r *Renderer) SetCombiner(pass CombinePass) {
	r.mode.comb = CombineMode{One: pass}
	r.mode.combPasses = 1
	r.mode.update(r)
}

// SetCombiner2 sets a two-pass color combiner, which forces the
// two-cycle mode. It cannot be combined with mipmap interpolation.
func (r *Renderer) SetCombiner2(m CombineMode) {
	if r.mode.som&somxLODInterp != 0 {
		panic("gfx: two-pass combiner needs both cycles, mipmap interpolation set")
	}
	r.mode.comb = m
	r.mode.combPasses = 2
	r.mode.update(r)
}

// deriveCombiner composes the emitted combiner command: the user's
// passes, with the fixup passes filled in when the cycle layout demands
// cycles the user did not specify.
func (m *mode) deriveCombiner() uint64 {
	one, two := m.comb.One, m.comb.Two
	switch {
	case m.combPasses == 2:
		// Use as given.
	case m.som&somxLODInterp != 0:
		one, two = combinePassLODInterp, remapCombined(m.comb.One)
	case m.twoCycle():
		one, two = m.comb.One, combinePassthrough
	default:
		// The one-cycle mode runs the same pass in both slots.
		two = one
	}
	return packCombine(CombineMode{one, two})
}

// remapCombined rewrites texture inputs to the first cycle's output, for
// user passes moved into the second cycle behind an interpolation pass.
func remapCombined(p CombinePass) CombinePass {
	remap := func(s *CombineSource) {
		if *s == CombineTex0 || *s == CombineTex1 {
			*s = CombineCombined
		}
	}
	for _, params := range []*CombineParams{&p.RGB, &p.Alpha} {
		remap(&params.A)
		remap(&params.B)
		remap(&params.C)
		remap(&params.D)
	}
	return p
}

func packCombine(m CombineMode) uint64 {
	uw := uint64(0xfc)<<24 |
		uint64(m.One.RGB.A)<<20 | uint64(m.One.RGB.C)<<15 |
		uint64(m.One.Alpha.A)<<12 | uint64(m.One.Alpha.C)<<9 |
		uint64(m.Two.RGB.A)<<5 | uint64(m.Two.RGB.C)
	lw := uint64(m.One.RGB.B)<<28 | uint64(m.Two.RGB.B)<<24 |
		uint64(m.Two.Alpha.A)<<21 | uint64(m.Two.Alpha.C)<<18 |
		uint64(m.One.RGB.D)<<15 | uint64(m.One.Alpha.B)<<12 |
		uint64(m.One.Alpha.D)<<9 |
		uint64(m.Two.RGB.D)<<6 | uint64(m.Two.Alpha.B)<<3 |
		uint64(m.Two.Alpha.D)
	return uw<<32 | lw
}
