package display_test

import (
	"image"
	"testing"

	"github.com/gorcp/rcq/display"
	"github.com/gorcp/rcq/texture"
)

func TestSwapRotation(t *testing.T) {
	out := &display.Headless{}
	d := display.NewDisplay(out, image.Pt(64, 48), display.BPP16)

	first := out.Framebuffer()
	if first == nil {
		t.Fatal("no framebuffer scanned out after init")
	}

	a := d.Swap()
	if out.Framebuffer() == a {
		t.Fatal("buffer handed out for rendering is being scanned out")
	}

	b := d.Swap()
	if a == b {
		t.Fatal("swap did not rotate buffers")
	}
	if out.Framebuffer() != a {
		t.Fatal("previously rendered buffer not scanned out")
	}
	if d.Swap() != a {
		t.Fatal("double buffering should hand out two surfaces alternately")
	}
}

func TestSwapFormat(t *testing.T) {
	out := &display.Headless{}
	d := display.NewDisplay(out, image.Pt(32, 32), display.BPP32)

	fb := d.Swap()
	if fb.Format() != texture.RGBA32 {
		t.Errorf("format %v, want %v", fb.Format(), texture.RGBA32)
	}
	if fb.Bounds() != image.Rect(0, 0, 32, 32) {
		t.Errorf("bounds %v", fb.Bounds())
	}
}

func TestShow(t *testing.T) {
	out := &display.Headless{}
	d := display.NewDisplay(out, image.Pt(32, 32), display.BPP16)

	tex := texture.NewRGBA16(image.Rect(0, 0, 32, 32))
	d.Show(tex)
	if out.Framebuffer() != tex {
		t.Fatal("shown surface not scanned out")
	}
}
