// Command rcqtool bundles the asset tooling for renderer projects.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/gorcp/rcq/tools/texture"
	"github.com/gorcp/rcq/tools/ucode"
)

const usageString = `rcqtool converts assets for the renderer.

Usage:

	%s <command> [arguments]

The commands are:

	texture  convert images to native texture containers
	ucode    pack overlay images
`

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), usageString, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	log.Default().SetFlags(0)
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "texture":
		texture.Main(flag.Args())
	case "ucode":
		ucode.Main(flag.Args())
	default:
		fmt.Fprintf(flag.CommandLine.Output(), "unknown command: %s\n", flag.Arg(0))
		flag.Usage()
		os.Exit(1)
	}
}
