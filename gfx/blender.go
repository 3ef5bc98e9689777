package gfx

// The blender combines the combiner output with the framebuffer pixel
// using the equation `(P*A + M*B) / (A+B)`, where P and M select colors
// and A and B select the weights below. Each cycle of the two-cycle mode
// runs one blender stage; in the second stage BlendInput refers to the
// first stage's output.
type BlenderPass uint32

// P and M inputs.
const (
	BlendInput BlenderPass = iota // combiner output, or previous stage
	BlendMemory
	BlendColor
	BlendFog
)

// A inputs.
const (
	BlendInputAlpha BlenderPass = iota
	BlendFogAlpha
	BlendShadeAlpha
	BlendZero
)

// B inputs.
const (
	BlendInvAlpha BlenderPass = iota
	BlendMemoryCvg
	BlendOne
	BlendBZero
)

// Blender builds a blender stage from its four inputs.
func Blender(p, a, m, b BlenderPass) BlenderPass {
	return p<<14 | a<<10 | m<<6 | b<<2
}

var (
	// BlenderMultiply blends the pixel over the framebuffer by its
	// alpha.
	BlenderMultiply = Blender(BlendInput, BlendInputAlpha, BlendMemory, BlendInvAlpha)
	// BlenderAdditive adds the pixel onto the framebuffer, weighted by
	// its alpha.
	BlenderAdditive = Blender(BlendInput, BlendInputAlpha, BlendMemory, BlendOne)
	// BlenderFogStandard mixes in the fog color by the shade alpha. Used
	// as the first stage when fog is enabled, see SetFog.
	BlenderFogStandard = Blender(BlendInput, BlendShadeAlpha, BlendFog, BlendInvAlpha)

	blenderPassthrough = Blender(BlendInput, BlendZero, BlendInput, BlendOne)
)

// cycle0 and cycle1 place a stage's mux bits into the mode register's
// first and second cycle slots.
func (b BlenderPass) cycle0() ModeFlags { return ModeFlags(b) << 16 }
func (b BlenderPass) cycle1() ModeFlags { return ModeFlags(b) << 14 }

// SetBlender sets a single blender stage, enabling blending. A zero pass
// disables blending.
func (r *Renderer) SetBlender(pass BlenderPass) {
	r.mode.blend = [2]BlenderPass{pass, 0}
	r.mode.update(r)
}

// SetBlender2 sets both blender stages, which forces the two-cycle mode.
// It cannot be combined with fog, which needs the first stage itself.
func (r *Renderer) SetBlender2(stage0, stage1 BlenderPass) {
	if r.mode.som&somxFog != 0 {
		panic("gfx: fog needs the first blender stage, two-stage blender set")
	}
	r.mode.blend = [2]BlenderPass{stage0, stage1}
	r.mode.update(r)
}

// SetFogBlender replaces the fog stage formula used while fog is
// enabled.
func (r *Renderer) SetFogBlender(pass BlenderPass) {
	r.mode.fogBlend = pass
	r.mode.update(r)
}
