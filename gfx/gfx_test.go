package gfx_test

import (
	"image"
	"image/color"
	"testing"

	"github.com/gorcp/rcq/cmdq"
	"github.com/gorcp/rcq/device"
	"github.com/gorcp/rcq/gfx"
	"github.com/gorcp/rcq/texture"
)

func setup(t *testing.T) (*gfx.Renderer, *device.RecordingRaster, *cmdq.Queue) {
	t.Helper()
	dev := device.New()
	raster := &device.RecordingRaster{}
	dev.AttachRaster(raster)
	q := cmdq.New(dev)
	return gfx.New(q), raster, q
}

// filter returns all raster commands with the given opcode byte.
func filter(cmds []uint64, op byte) []uint64 {
	var out []uint64
	for _, c := range cmds {
		if byte(c>>56) == op {
			out = append(out, c)
		}
	}
	return out
}

func last(t *testing.T, cmds []uint64, op byte) uint64 {
	t.Helper()
	got := filter(cmds, op)
	if len(got) == 0 {
		t.Fatalf("no %#02x command emitted", op)
	}
	return got[len(got)-1]
}

const (
	opSetOtherModes = 0xef
	opSetCombine    = 0xfc
	opFillRect      = 0xf6
	opTexRect       = 0xe4
	opSetScissor    = 0xed
	opLoadTile      = 0xf4
	opLoadBlock     = 0xf3
	opLoadTLUT      = 0xf0
	opSetColorImage = 0xff
	opBlendColor    = 0xf9
	opPrimDepth     = 0xee
	opSyncFull      = 0xe9
)

func TestModeMaskComposition(t *testing.T) {
	r, raster, q := setup(t)

	r.SetModeStandard()
	r.SetZMode(gfx.ZModeDecal)
	r.SetAntialias(gfx.AntialiasStandard)
	q.Wait()

	som := gfx.ModeFlags(last(t, raster.Cmds, opSetOtherModes))
	if som&gfx.ZModeMask != gfx.ZModeDecal {
		t.Error("zmode lost by later antialias change")
	}
	if som&gfx.AntiAlias == 0 || som&gfx.ImageRead == 0 {
		t.Error("antialias flags not set")
	}

	// The tracked mode must agree with what was emitted.
	if r.Mode()&gfx.ZModeMask != gfx.ZModeDecal {
		t.Error("tracked mode lost zmode")
	}
}

func TestModePushPop(t *testing.T) {
	r, raster, q := setup(t)

	r.SetModeStandard()
	r.SetZMode(gfx.ZModeTransparent)
	r.SetFilter(gfx.FilterBilinear)
	q.Wait()
	want := last(t, raster.Cmds, opSetOtherModes)

	r.PushMode()
	r.SetZMode(gfx.ZModeOpaque)
	r.SetFilter(gfx.FilterPoint)
	r.SetFog(true)
	r.PopMode()
	q.Wait()

	got := last(t, raster.Cmds, opSetOtherModes)
	if got != want {
		t.Errorf("mode after pop %#016x, want %#016x", got, want)
	}
}

func TestModeStackOverflow(t *testing.T) {
	r, _, _ := setup(t)

	for it := 0; it < 4; it++ {
		r.PushMode()
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on mode stack overflow")
		}
	}()
	r.PushMode()
}

func TestModeFreezeBatches(t *testing.T) {
	r, raster, q := setup(t)

	r.SetModeStandard()
	q.Wait()
	before := len(filter(raster.Cmds, opSetOtherModes))

	r.BeginMode()
	r.SetZMode(gfx.ZModeDecal)
	r.SetAntialias(gfx.AntialiasStandard)
	r.SetFilter(gfx.FilterBilinear)
	r.SetZbuf(true, true)
	r.EndMode()
	q.Wait()

	after := len(filter(raster.Cmds, opSetOtherModes))
	if after-before > 1 {
		t.Errorf("%d mode commands emitted for a frozen batch, want at most 1", after-before)
	}

	som := gfx.ModeFlags(last(t, raster.Cmds, opSetOtherModes))
	if som&gfx.ZModeMask != gfx.ZModeDecal || som&gfx.AntiAlias == 0 ||
		som&gfx.SampleType == 0 || som&gfx.ZCompare == 0 {
		t.Error("batched changes missing from emitted mode")
	}
}

func TestAlphaCompareCoupling(t *testing.T) {
	r, raster, q := setup(t)

	r.SetModeStandard()
	q.Wait()
	n := len(raster.Cmds)

	r.SetAlphaCompare(128)
	q.Wait()

	// The mode register must be written before the threshold in the
	// blend color.
	var sawMode bool
	for _, c := range raster.Cmds[n:] {
		switch byte(c >> 56) {
		case opSetOtherModes:
			if c&uint64(gfx.AlphaCompare) == 0 {
				t.Error("alpha compare not enabled")
			}
			sawMode = true
		case opBlendColor:
			if !sawMode {
				t.Error("blend color written before mode register")
			}
			if byte(c) != 128 {
				t.Errorf("threshold %d, want 128", byte(c))
			}
		}
	}
}

func TestZOverrideCoupling(t *testing.T) {
	r, raster, q := setup(t)

	r.SetModeStandard()
	q.Wait()
	n := len(raster.Cmds)

	r.SetZOverride(true, 0x8000)
	q.Wait()

	// The depth register must be written before the mode bit enables
	// it.
	var sawDepth bool
	for _, c := range raster.Cmds[n:] {
		switch byte(c >> 56) {
		case opPrimDepth:
			sawDepth = true
		case opSetOtherModes:
			if c&uint64(gfx.ZSource) != 0 && !sawDepth {
				t.Error("override enabled before depth register written")
			}
		}
	}
	if !sawDepth {
		t.Error("no depth register write")
	}
}

func TestTwoCycleConflicts(t *testing.T) {
	r, _, _ := setup(t)

	r.SetModeStandard()
	r.SetFog(true)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic on two-stage blender with fog")
			}
		}()
		r.SetBlender2(gfx.BlenderMultiply, gfx.BlenderAdditive)
	}()

	r.SetFog(false)
	r.SetMipmap(gfx.MipmapInterpolate, 3)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic on two-pass combiner with mipmap interpolation")
			}
		}()
		r.SetCombiner2(gfx.CombineMode{})
	}()
}

func TestCycleTypeDerived(t *testing.T) {
	r, raster, q := setup(t)

	r.SetModeStandard()
	q.Wait()
	som := gfx.ModeFlags(last(t, raster.Cmds, opSetOtherModes))
	if som&gfx.CycleTypeMask != gfx.CycleTypeOne {
		t.Errorf("standard mode is not one-cycle: %#016x", uint64(som))
	}

	r.SetFog(true)
	q.Wait()
	som = gfx.ModeFlags(last(t, raster.Cmds, opSetOtherModes))
	if som&gfx.CycleTypeMask != gfx.CycleTypeTwo {
		t.Error("fog did not force the two-cycle mode")
	}
	if som&gfx.ForceBlend == 0 {
		t.Error("fog did not enable blending")
	}

	r.SetFog(false)
	q.Wait()
	som = gfx.ModeFlags(last(t, raster.Cmds, opSetOtherModes))
	if som&gfx.CycleTypeMask != gfx.CycleTypeOne {
		t.Error("disabling fog did not restore the one-cycle mode")
	}
}

func TestTexUploadContiguous(t *testing.T) {
	r, raster, q := setup(t)

	// Contiguous rows take the single-run fast path.
	tex := texture.NewRGBA16(image.Rect(0, 0, 32, 32))
	r.TexUpload(tex, gfx.TexParms{TMEMAddr: -1, Tile: -1})
	q.Wait()

	if len(filter(raster.Cmds, opLoadBlock)) != 1 {
		t.Error("contiguous texture not uploaded with a block load")
	}
	if len(filter(raster.Cmds, opLoadTile)) != 0 {
		t.Error("unexpected row-by-row load")
	}

	// A subimage's rows are strided and must go row by row.
	sub := tex.SubImage(image.Rect(8, 8, 24, 24))
	r.TexUpload(sub, gfx.TexParms{TMEMAddr: -1, Tile: -1})
	q.Wait()

	if len(filter(raster.Cmds, opLoadTile)) != 1 {
		t.Error("strided texture not uploaded row by row")
	}
}

func TestTexMulti(t *testing.T) {
	r, _, q := setup(t)

	r.TexMultiBegin()
	a := r.TexUpload(texture.NewI8(image.Rect(0, 0, 16, 16)), gfx.TexParms{TMEMAddr: -1, Tile: -1})
	b := r.TexUpload(texture.NewI8(image.Rect(0, 0, 16, 16)), gfx.TexParms{TMEMAddr: -1, Tile: -1})
	n := r.TexMultiEnd()
	q.Wait()

	if a == b {
		t.Error("batched uploads share a tile")
	}
	if n != 2 {
		t.Errorf("batch used %d tiles, want 2", n)
	}

	// Outside a batch uploads start over and may reuse tiles.
	c := r.TexUpload(texture.NewI8(image.Rect(0, 0, 16, 16)), gfx.TexParms{TMEMAddr: -1, Tile: -1})
	if c != a {
		t.Error("standalone upload did not reset tile allocation")
	}
}

func TestTexUploadTLUT(t *testing.T) {
	r, raster, q := setup(t)

	pal := texture.NewPalette(256)
	for i := 0; i < 256; i++ {
		pal.Set(i, color.RGBA{uint8(i), 0, 0, 255})
	}
	tex := texture.NewCI8(image.Rect(0, 0, 16, 16), pal)
	r.TexUpload(tex, gfx.TexParms{TMEMAddr: -1, Tile: -1})
	q.Wait()

	if len(filter(raster.Cmds, opLoadTLUT)) != 1 {
		t.Error("palette not uploaded")
	}
}

func TestTexMemoryExhaustion(t *testing.T) {
	r, _, _ := setup(t)

	r.TexMultiBegin()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on texture memory exhaustion")
		}
	}()
	for it := 0; it < 3; it++ {
		// 32x32x4 bytes = 4096, the second one cannot fit.
		r.TexUpload(texture.NewRGBA32(image.Rect(0, 0, 32, 32)), gfx.TexParms{TMEMAddr: -1, Tile: -1})
	}
}

func TestTexMultiUnfinished(t *testing.T) {
	r, _, _ := setup(t)

	r.TexMultiBegin()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on nested texture batch")
		}
	}()
	r.TexMultiBegin()
}

func TestAttachScissor(t *testing.T) {
	r, raster, q := setup(t)

	fb := texture.NewRGBA16(image.Rect(0, 0, 320, 240))
	r.Attach(fb, nil)
	q.Wait()

	if len(filter(raster.Cmds, opSetColorImage)) != 1 {
		t.Fatal("no color image set")
	}
	sc := last(t, raster.Cmds, opSetScissor)
	if int(sc>>46&0x3ff) != 0 || int(sc>>14&0x3ff) != 320 || int(sc>>2&0x3ff) != 240 {
		t.Errorf("scissor not set to target bounds: %#016x", sc)
	}

	r.Detach()
	q.Wait()
	if len(filter(raster.Cmds, opSyncFull)) != 1 {
		t.Error("detach did not drain the raster backend")
	}
}

func TestAttachStack(t *testing.T) {
	r, raster, q := setup(t)

	fb := texture.NewRGBA16(image.Rect(0, 0, 320, 240))
	off := texture.NewRGBA16(image.Rect(0, 0, 64, 64))

	r.Attach(fb, nil)
	r.Attach(off, nil)
	if r.Attached() != off {
		t.Fatal("wrong attached target")
	}

	r.Detach()
	q.Wait()
	if r.Attached() != fb {
		t.Fatal("previous target not restored")
	}

	// Restoring must re-emit the outer target's image and scissor.
	imgs := filter(raster.Cmds, opSetColorImage)
	if len(imgs) != 3 {
		t.Fatalf("got %d color image commands, want 3", len(imgs))
	}
	if imgs[2] != imgs[0] {
		t.Error("restored color image differs from original")
	}
}

func TestAttachOverflow(t *testing.T) {
	r, _, _ := setup(t)

	fb := texture.NewRGBA16(image.Rect(0, 0, 16, 16))
	for it := 0; it < 4; it++ {
		r.Attach(fb, nil)
	}
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on attachment stack overflow")
		}
	}()
	r.Attach(fb, nil)
}

type presenter struct {
	shown *texture.Texture
}

func (p *presenter) Show(t *texture.Texture) { p.shown = t }

func TestDetachShow(t *testing.T) {
	r, _, q := setup(t)

	fb := texture.NewRGBA16(image.Rect(0, 0, 32, 32))
	p := &presenter{}

	r.AttachClear(fb, nil, color.RGBA{R: 255, A: 255})
	r.DetachShow(p)
	q.Wait()

	if p.shown != fb {
		t.Fatal("presenter not handed the finished surface")
	}
}

func TestAttachClearDepth(t *testing.T) {
	r, raster, q := setup(t)

	fb := texture.NewRGBA16(image.Rect(0, 0, 32, 32))
	zb := texture.NewRGBA16(image.Rect(0, 0, 32, 32))
	r.AttachClear(fb, zb, color.Black)
	q.Wait()

	fills := filter(raster.Cmds, opFillRect)
	if len(fills) != 2 {
		t.Fatalf("got %d fills, want color and depth clear", len(fills))
	}
}

func TestFillRectangle(t *testing.T) {
	r, raster, q := setup(t)

	r.SetModeFill(color.White)
	r.FillRectangle(image.Rect(10, 20, 30, 40))
	q.Wait()

	fr := last(t, raster.Cmds, opFillRect)
	// Fill mode hardware skips the last subpixel row and column, so the
	// exclusive Max edge is encoded as is.
	if int(fr>>44&0xfff) != 30<<2 || int(fr>>32&0xfff) != 40<<2 {
		t.Errorf("wrong max corner: %#016x", fr)
	}
	if int(fr>>12&0xfff) != 10<<2 || int(fr&0xfff) != 20<<2 {
		t.Errorf("wrong min corner: %#016x", fr)
	}
}

func TestTextureRectangleCopy(t *testing.T) {
	r, raster, q := setup(t)

	tex := texture.NewRGBA16(image.Rect(0, 0, 32, 32))
	r.SetModeCopy(false)
	tile := r.TexUpload(tex, gfx.TexParms{TMEMAddr: -1, Tile: -1})
	r.TextureRectangle(image.Rect(0, 0, 32, 32), 0, 0, tile)
	q.Wait()

	cmds := filter(raster.Cmds, opTexRect)
	if len(cmds) != 1 {
		t.Fatalf("got %d texture rectangles", len(cmds))
	}
	// The copy mode advances four texels per clock.
	i := len(raster.Cmds)
	for ; i > 0; i-- {
		if byte(raster.Cmds[i-1]>>56) == opTexRect {
			break
		}
	}
	dsdx := raster.Cmds[i] >> 16 & 0xffff
	if dsdx != 4<<10 {
		t.Errorf("dsdx %#x, want %#x", dsdx, 4<<10)
	}
}
