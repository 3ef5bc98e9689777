// Package draw implements the standard library's image composition
// operations on the raster renderer. It accelerates the cases the
// pipeline supports natively and rejects the rest, mirroring the subset
// pixel display drivers rely on.
package draw

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/embeddedgo/display/images"

	"github.com/gorcp/rcq/debug"
	"github.com/gorcp/rcq/gfx"
	"github.com/gorcp/rcq/texture"
)

type Driver struct {
	r      *gfx.Renderer
	target *texture.Texture
}

func NewDriver(r *gfx.Renderer) *Driver {
	return &Driver{r: r}
}

// SetFramebuffer directs subsequent draws into tex.
func (fb *Driver) SetFramebuffer(tex *texture.Texture) {
	if fb.target != nil {
		fb.r.Detach()
	}
	fb.target = tex
	fb.r.Attach(tex, nil)
}

func (fb *Driver) Bounds() image.Rectangle {
	return fb.target.Bounds()
}

func (fb *Driver) Flush() {
	fb.r.Queue().Flush()
}

func (fb *Driver) Draw(r image.Rectangle, src image.Image, sp image.Point, mask image.Image, mp image.Point, op draw.Op) {
	// Readjust r if we draw to a viewport/subimage of the framebuffer
	r = r.Bounds().Sub(fb.target.Bounds().Min)

	if !r.Overlaps(fb.target.Bounds()) {
		return
	}

	switch srcImg := src.(type) {
	case *texture.Texture:
		if mask == nil {
			fb.drawTexture(r, srcImg, sp, image.Point{1, 1}, nil, op)
			return
		}
	case *image.Uniform:
		switch maskImg := mask.(type) {
		case nil:
			switch op {
			case draw.Src:
				fb.drawUniformSrc(r, srcImg.C, nil)
				return
			case draw.Over:
				fb.drawUniformOver(r, srcImg.C, color.Opaque)
				return
			}
		case *image.Uniform:
			switch op {
			case draw.Src:
				fb.drawUniformSrc(r, srcImg.C, maskImg.C)
				return
			case draw.Over:
				fb.drawUniformOver(r, srcImg.C, maskImg.C)
				return
			}
		case *texture.Texture:
			fb.drawTexture(r, maskImg, mp, image.Point{1, 1}, srcImg.C, op)
			return
		case *images.Magnifier:
			maskAlpha, ok := maskImg.Image.(*texture.Texture)
			debug.Assert(ok, "unsupported magnifier format")
			fb.drawTexture(r, maskAlpha, mp, image.Point{maskImg.Sx, maskImg.Sy}, srcImg.C, op)
			return
		}
	}

	debug.Assert(false, "unsupported draw format")
}

func (fb *Driver) drawUniformSrc(r image.Rectangle, fill color.Color, mask color.Color) {
	if mask != nil {
		rf, gf, bf, af := fill.RGBA()
		_, _, _, ma := mask.RGBA()
		m := uint32(ma)
		fill = color.RGBA{
			uint8((rf * m) >> 24),
			uint8((gf * m) >> 24),
			uint8((bf * m) >> 24),
			uint8((af * m) >> 24),
		}
	}
	fb.r.SetModeFill(fill)
	fb.r.FillRectangle(r)
}

// drawUniformOver blends a uniform color over the framebuffer. The
// operation required by draw.Over:
//
//	a = 1.0 - (fill_alpha * mask_alpha)
//	dst = (dst*a + fill*mask_alpha)
func (fb *Driver) drawUniformOver(r image.Rectangle, fill color.Color, mask color.Color) {
	rd := fb.r
	rd.BeginMode()
	rd.SetModeStandard()
	rd.SetPrimColor(rgba(fill))
	rd.SetEnvColor(rgba(mask))

	// cc = fill*mask_alpha
	cp := gfx.CombineParams{
		A: gfx.CombinePrimitive, B: gfx.CombineBColorZero,
		C: gfx.CombineCColorEnvironmentAlpha, D: gfx.CombineDColorZero,
	}
	// cc_alpha = fill_alpha*mask_alpha
	cpA := gfx.CombineParams{
		A: gfx.CombinePrimitive, B: gfx.CombineBAlphaZero,
		C: gfx.CombineEnvironment, D: gfx.CombineDAlphaZero,
	}
	rd.SetCombiner(gfx.CombinePass{RGB: cp, Alpha: cpA})
	rd.SetBlender(blendOver)
	rd.EndMode()

	rd.FillRectangle(r)
}

// These blend stages expect the color combiner to pass premultiplied
// color and its alpha to the blender.
var (
	// dst = cc + dst*(1-cc_alpha)
	blendOver = gfx.Blender(gfx.BlendInput, gfx.BlendInputAlpha, gfx.BlendMemory, gfx.BlendInvAlpha)
	// dst = cc
	blendSrc = gfx.Blender(gfx.BlendInput, gfx.BlendZero, gfx.BlendInput, gfx.BlendOne)
)

func (fb *Driver) drawTexture(r image.Rectangle, src *texture.Texture, p image.Point, scale image.Point, fill color.Color, op draw.Op) {
	rd := fb.r
	rd.BeginMode()
	rd.SetModeStandard()

	colorSource := gfx.CombineTex0
	if fill != nil {
		rd.SetEnvColor(rgba(fill))
		colorSource = gfx.CombineEnvironment
	}

	var cp gfx.CombineParams
	if src.Premult() {
		cp = gfx.CombineParams{A: gfx.CombineAColorZero, B: gfx.CombineAColorZero,
			C: gfx.CombineCColorZero, D: colorSource} // cc = src
	} else {
		cp = gfx.CombineParams{A: colorSource, B: gfx.CombineBColorZero,
			C: gfx.CombineCColorTex0Alpha, D: gfx.CombineDColorZero} // cc = src_alpha*src
	}
	// cc_alpha = tex0_alpha
	cpA := gfx.CombineParams{A: gfx.CombineAAlphaZero, B: gfx.CombineAAlphaZero,
		C: gfx.CombineCAlphaZero, D: gfx.CombineTex0}
	rd.SetCombiner(gfx.CombinePass{RGB: cp, Alpha: cpA})

	if op == draw.Over {
		rd.SetBlender(blendOver)
	} else {
		rd.SetBlender(blendSrc)
	}
	rd.EndMode()

	bounds := src.Bounds().Intersect(r.Sub(r.Min.Sub(p)))
	bounds = bounds.Sub(src.Bounds().Min)        // draw area in src image space
	origin := r.Min.Add(src.Bounds().Min).Sub(p) // draw origin in screen space

	// Iterate a texture memory sized tile over the whole drawing area.
	step := maxTileSize(src.Format())
	var pt image.Point
	for pt.X = bounds.Min.X; pt.X < bounds.Max.X; pt.X += step.X {
		for pt.Y = bounds.Min.Y; pt.Y < bounds.Max.Y; pt.Y += step.Y {
			tileRect := image.Rectangle{pt, pt.Add(step)}.Intersect(bounds)
			debug.Assert(!tileRect.Empty(), "drawing empty tile")

			part := src.SubImage(tileRect.Add(src.Bounds().Min))
			tile := rd.TexUpload(part, gfx.TexParms{TMEMAddr: -1, Tile: -1})

			dst := image.Rectangle{Min: tileRect.Min.Add(origin)}
			dst.Max = dst.Min.Add(image.Point{
				tileRect.Dx() * scale.X, tileRect.Dy() * scale.Y})
			rd.TextureRectangleScaled(dst, 0, 0, scale.X, scale.Y, tile)
		}
	}
}

// maxTileSize returns the largest square-ish tile of a format that fits
// a single texture memory load.
func maxTileSize(f texture.Format) image.Point {
	switch f.Depth() {
	case 4:
		return image.Point{64, 64}
	case 8:
		return image.Point{64, 32}
	case 16:
		return image.Point{32, 32}
	default:
		return image.Point{32, 16}
	}
}

func rgba(c color.Color) color.RGBA {
	r, g, b, a := c.RGBA()
	return color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}
