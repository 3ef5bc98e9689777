package texture_test

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/gorcp/rcq/texture"
)

func TestStoreLoad(t *testing.T) {
	tex := texture.NewRGBA16(image.Rect(0, 0, 16, 8))
	img := tex.Image()
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{uint8(x) << 4, uint8(y) << 5, 0, 255})
		}
	}

	var buf bytes.Buffer
	if err := tex.Store(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := texture.Load(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got.Format() != texture.RGBA16 {
		t.Errorf("format %v, want %v", got.Format(), texture.RGBA16)
	}
	if got.Bounds() != tex.Bounds() {
		t.Errorf("bounds %v, want %v", got.Bounds(), tex.Bounds())
	}
	if !bytes.Equal(got.Pix(), tex.Pix()) {
		t.Error("pixel data differs after round trip")
	}
}

func TestStoreLoadMipmaps(t *testing.T) {
	tex := texture.NewI8(image.Rect(0, 0, 16, 16))
	l1 := texture.NewI8(image.Rect(0, 0, 8, 8))
	l2 := texture.NewI8(image.Rect(0, 0, 4, 4))
	l1.Pix()[0] = 0x11
	l2.Pix()[0] = 0x22
	tex.SetLevels([]*texture.Texture{l1, l2})

	var buf bytes.Buffer
	if err := tex.Store(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := texture.Load(&buf)
	if err != nil {
		t.Fatal(err)
	}

	levels := got.Levels()
	if len(levels) != 2 {
		t.Fatalf("got %d levels, want 2", len(levels))
	}
	if levels[0].Bounds().Dx() != 8 || levels[1].Bounds().Dx() != 4 {
		t.Error("level dimensions not halved")
	}
	if levels[0].Pix()[0] != 0x11 || levels[1].Pix()[0] != 0x22 {
		t.Error("level pixel data differs after round trip")
	}
}

func TestStoreLoadPalette(t *testing.T) {
	pal := texture.NewPalette(256)
	for i := 0; i < 256; i++ {
		pal.Set(i, color.RGBA{uint8(i), uint8(255 - i), 0, 255})
	}
	tex := texture.NewCI8(image.Rect(0, 0, 8, 8), pal)
	for i := range tex.Pix() {
		tex.Pix()[i] = uint8(i)
	}

	var buf bytes.Buffer
	if err := tex.Store(&buf); err != nil {
		t.Fatal(err)
	}
	got, err := texture.Load(&buf)
	if err != nil {
		t.Fatal(err)
	}

	if got.Palette() == nil {
		t.Fatal("palette lost")
	}
	if got.Palette().Len() != 256 {
		t.Errorf("palette size %d, want 256", got.Palette().Len())
	}
	if !bytes.Equal(got.Palette().Pix(), pal.Pix()) {
		t.Error("palette data differs after round trip")
	}
	if !bytes.Equal(got.Pix(), tex.Pix()) {
		t.Error("index data differs after round trip")
	}
}

func TestStoreSubImage(t *testing.T) {
	tex := texture.NewRGBA16(image.Rect(0, 0, 16, 16))
	sub := tex.SubImage(image.Rect(4, 4, 12, 12))

	var buf bytes.Buffer
	if err := sub.Store(&buf); err == nil {
		t.Fatal("expected error storing a subimage")
	}
}

func TestLoadTruncated(t *testing.T) {
	tex := texture.NewI4(image.Rect(0, 0, 8, 8))
	var buf bytes.Buffer
	if err := tex.Store(&buf); err != nil {
		t.Fatal(err)
	}

	if _, err := texture.Load(bytes.NewReader(buf.Bytes()[:buf.Len()/2])); err == nil {
		t.Fatal("expected error loading a truncated file")
	}
}

func TestRGBA16Roundtrip(t *testing.T) {
	tex := texture.NewRGBA16(image.Rect(0, 0, 2, 1))
	img := tex.Image()

	want := color.RGBA{0xf8, 0x40, 0x80, 0xff}
	img.Set(0, 0, want)
	got := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
	// 5 bit channels keep the top bits.
	if got.R&0xf8 != want.R || got.G&0xf8 != want.G&0xf8 || got.B&0xf8 != want.B&0xf8 {
		t.Errorf("got %v, want %v", got, want)
	}
	if got.A != 0xff {
		t.Errorf("alpha %d, want 255", got.A)
	}
}

func TestSubImagePixOffset(t *testing.T) {
	tex := texture.NewI8(image.Rect(0, 0, 8, 8))
	for i := range tex.Pix() {
		tex.Pix()[i] = uint8(i)
	}

	sub := tex.SubImage(image.Rect(2, 3, 6, 7))
	if sub.Bounds() != image.Rect(2, 3, 6, 7) {
		t.Fatalf("bounds %v", sub.Bounds())
	}
	if sub.Pix()[0] != 3*8+2 {
		t.Errorf("subimage origin pixel %d, want %d", sub.Pix()[0], 3*8+2)
	}
	if sub.Stride() != tex.Stride() {
		t.Error("subimage stride differs from parent")
	}
}
