// handel-init: load a handel_ini configuration file, start the system and
// run UserSetup, reporting success or the first failure encountered.
package main

import (
	"context"
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
	logLevel := pflag.String("log-level", "info", "log level: debug, info, warn, error, none")
	clockMHz := pflag.Float64("clock-mhz", 40.0, "hardware clock rate in MHz, used by the reference driver")
	pflag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "handel-init: --config is required")
		os.Exit(2)
	}

	level, err := hlog.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "handel-init: %v\n", err)
		os.Exit(2)
	}
	log := hlog.New(level, os.Stderr)

	bus := busdrv.New()
	h := handel.New(bus, nil, log)
	h.RegisterDriver("saturn", saturn.New(bus, *clockMHz))

	if err := h.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "handel-init: loading %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := h.StartSystem(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "handel-init: start_system: %v\n", err)
		os.Exit(1)
	}
	if err := h.UserSetup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "handel-init: user_setup: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("system initialized from %s\n", *configPath)
}
