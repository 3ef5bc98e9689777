package texture

import (
	"flag"
	"fmt"
	"image"
	"log"
	"os"
	"path/filepath"
	"strings"

	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ericpauley/go-quantize/quantize"
	xdraw "golang.org/x/image/draw"

	"github.com/gorcp/rcq/texture"
)

var (
	flags = flag.NewFlagSet("texture", flag.ExitOnError)

	format  = flags.String("format", "RGBA32", "image format and bit depth")
	dither  = flags.Bool("dither", false, "enable Floyd-Steinberg error diffusion")
	palette = flags.Int("palette", 256, "number of colors in CI4 and CI8 format")
	mipmaps = flags.Int("mipmaps", 0, "number of mipmap levels to generate")

	imagefile string
)

const usageString = `Image to texture converter.

Usage: %s [flags] <image>

`

func usage() {
	fmt.Fprintf(flags.Output(), usageString, "texture")
	flags.PrintDefaults()
}

func Main(args []string) {
	flags.Usage = usage
	flags.Parse(args[1:])

	if flags.NArg() == 1 {
		imagefile = flags.Arg(0)
	} else {
		flags.Usage()
		os.Exit(1)
	}

	r, err := os.Open(imagefile)
	if err != nil {
		log.Fatalln(err)
	}

	src, _, err := image.Decode(r)
	if err != nil {
		log.Fatalln(err)
	}

	var pal *texture.Palette
	if *format == "CI4" || *format == "CI8" {
		n := *palette
		if *format == "CI4" && n > 16 {
			n = 16
		}
		q := quantize.MedianCutQuantizer{}
		colors := q.Quantize(make([]color.Color, 0, n), src)
		pal = texture.NewPaletteFrom(colors)
	}

	dst := newTexture(*format, src.Bounds(), pal)

	var d draw.Drawer = draw.Src
	if *dither {
		d = draw.FloydSteinberg
	}
	d.Draw(dst.Image(), dst.Bounds(), src, image.Point{})

	if *mipmaps > 0 {
		dst.SetLevels(genMipmaps(dst, src, pal, d, *mipmaps))
	}

	outfile := strings.TrimSuffix(imagefile, filepath.Ext(imagefile))
	outfile += "." + *format
	w, err := os.Create(outfile)
	if err != nil {
		log.Fatalln(err)
	}
	defer w.Close()

	err = dst.Store(w)
	if err != nil {
		log.Fatalln(err)
	}
}

func newTexture(format string, r image.Rectangle, pal *texture.Palette) *texture.Texture {
	switch format {
	case "RGBA32":
		return texture.NewRGBA32(r)
	case "RGBA16":
		return texture.NewRGBA16(r)
	case "IA16":
		return texture.NewIA16(r)
	case "IA8":
		return texture.NewIA8(r)
	case "I8":
		return texture.NewI8(r)
	case "I4":
		return texture.NewI4(r)
	case "CI8":
		return texture.NewCI8(r, pal)
	case "CI4":
		return texture.NewCI4(r, pal)
	}
	log.Fatalln("unsupported format:", format)
	return nil
}

// genMipmaps renders the source at repeatedly halved resolutions. Each
// level is scaled from the original with a proper downsampling kernel
// instead of from the previous level, which would accumulate error.
func genMipmaps(base *texture.Texture, src image.Image, pal *texture.Palette, d draw.Drawer, n int) []*texture.Texture {
	levels := make([]*texture.Texture, 0, n)
	rect := base.Bounds()
	for k := 0; k < n; k++ {
		rect = image.Rect(0, 0, max(rect.Dx()/2, 1), max(rect.Dy()/2, 1))
		scaled := image.NewRGBA(rect)
		xdraw.CatmullRom.Scale(scaled, rect, src, src.Bounds(), xdraw.Src, nil)

		level := newTexture(*format, rect, pal)
		d.Draw(level.Image(), rect, scaled, image.Point{})
		levels = append(levels, level)
		if rect.Dx() == 1 && rect.Dy() == 1 {
			break
		}
	}
	return levels
}
