package ucode

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorcp/rcq/ucode"
)

const usageString = `Overlay image packer.

Packs an overlay's initial state blob into a loadable, checksummed
container.

Usage: %s [flags] <datafile>

`

var (
	flags = flag.NewFlagSet("ucode", flag.ExitOnError)

	name  = flags.String("name", "", "overlay name, defaults to the file name")
	entry = flags.Uint("entry", 0, "entry point stored in the header")

	infile string
)

func usage() {
	fmt.Fprintf(flags.Output(), usageString, "ucode")
	flags.PrintDefaults()
}

func Main(args []string) {
	flags.Usage = usage
	flags.Parse(args[1:])

	if flags.NArg() == 1 {
		infile = flags.Arg(0)
	} else {
		flags.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(infile)
	if err != nil {
		log.Fatalln(err)
	}

	u := &ucode.UCode{
		Name:  *name,
		Entry: uint32(*entry),
		Data:  data,
	}
	if u.Name == "" {
		u.Name = strings.TrimSuffix(filepath.Base(infile), filepath.Ext(infile))
	}

	outfile := strings.TrimSuffix(infile, filepath.Ext(infile)) + ".uc"
	w, err := os.Create(outfile)
	if err != nil {
		log.Fatalln(err)
	}
	defer w.Close()

	err = u.Store(w)
	if err != nil {
		log.Fatalln(err)
	}
}
