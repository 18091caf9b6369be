// handel-run: start a run on one logical channel, wait for a preset real
// time, stop, and print the resulting statistics.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/xiallc/handel-go/pkg/busdrv"
	"github.com/xiallc/handel-go/pkg/handel"
	"github.com/xiallc/handel-go/pkg/hlog"
	"github.com/xiallc/handel-go/pkg/saturn"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a handel_ini configuration file")
	channel := pflag.IntP("channel", "n", 0, "logical channel id to run")
	seconds := pflag.Float64P("seconds", "t", 1.0, "preset real time, in seconds")
	pflag.Parse()

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "handel-run: --config is required")
		os.Exit(2)
	}

	log := hlog.New(hlog.Info, os.Stderr)
	bus := busdrv.New()
	h := handel.New(bus, nil, log)
	h.RegisterDriver("saturn", saturn.New(bus, 40.0))

	if err := h.Load(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "handel-run: loading %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := h.StartSystem(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "handel-run: start_system: %v\n", err)
		os.Exit(1)
	}
	if err := h.UserSetup(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "handel-run: user_setup: %v\n", err)
		os.Exit(1)
	}

	if _, err := h.SetAcquisitionValue(ctx, *channel, "preset_runtime", *seconds); err != nil {
		fmt.Fprintf(os.Stderr, "handel-run: preset_runtime: %v\n", err)
		os.Exit(1)
	}

	if err := h.StartRun(ctx, *channel, false); err != nil {
		fmt.Fprintf(os.Stderr, "handel-run: start_run: %v\n", err)
		os.Exit(1)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(*seconds*2)*time.Second+time.Second)
	defer cancel()
	if err := h.WaitIdle(runCtx, *channel); err != nil {
		fmt.Fprintf(os.Stderr, "handel-run: waiting for run to finish: %v\n", err)
	}

	if err := h.StopRun(ctx, *channel); err != nil {
		fmt.Fprintf(os.Stderr, "handel-run: stop_run: %v\n", err)
		os.Exit(1)
	}

	realtime, _ := h.GetRunData(ctx, *channel, "realtime")
	triggers, _ := h.GetRunData(ctx, *channel, "triggers")
	events, _ := h.GetRunData(ctx, *channel, "mca_events")
	fmt.Printf("realtime=%.6fs triggers=%.0f mca_events=%.0f\n", realtime, triggers, events)
}
