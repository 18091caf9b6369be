// handel-dump: load a handel_ini configuration file and re-save it, as
// handel_ini or json, for inspection and diffing.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/xiallc/handel-go/pkg/busdrv"
	"github.com/xiallc/handel-go/pkg/handel"
	"github.com/xiallc/handel-go/pkg/hlog"
	"github.com/xiallc/handel-go/pkg/saturn"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a handel_ini configuration file")
	outPath := pflag.StringP("out", "o", "", "path to write the dump to")
	format := pflag.String("format", "json", "output format: handel_ini or json")
	pflag.Parse()

	if *configPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "handel-dump: --config and --out are required")
		os.Exit(2)
	}

	log := hlog.Discard()
	bus := busdrv.New()
	h := handel.New(bus, nil, log)
	h.RegisterDriver("saturn", saturn.New(bus, 40.0))

	if err := h.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "handel-dump: loading %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	if err := h.SaveSystem(*format, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "handel-dump: saving %s: %v\n", *outPath, err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s (%s)\n", *outPath, *format)
}
