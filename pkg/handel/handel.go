// Package handel is the public client-API facade: one Handel
// value owns a configuration Graph, a hardware bus, a firmware archive
// and a product-driver registry, and threads them through every other
// layer. No package-level state is kept — every caller owns its own
// Handel.
package handel

import (
	"context"

	"github.com/xiallc/handel-go/pkg/acquisition"
	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/firmware"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
	"github.com/xiallc/handel-go/pkg/iniconfig"
	"github.com/xiallc/handel-go/pkg/readout"
	"github.com/xiallc/handel-go/pkg/run"
	"github.com/xiallc/handel-go/pkg/setup"
	"github.com/xiallc/handel-go/pkg/system"
)

// Handel is the library's single client handle.
type Handel struct {
	Graph   *graph.Graph
	Bus     capability.DeviceBus
	Archive capability.FirmwareArchive
	Log     *hlog.Logger

	drivers map[string]capability.ProductDriver

	resolver    *firmware.Resolver
	acquisition *acquisition.Engine
	starter     *system.Starter
	setup       *setup.Sequencer
	run         *run.Controller
	readout     *readout.Reader
}

// resolverAdapter satisfies acquisition.FirmwareResolver over a
// firmware.Resolver, translating firmware.Resolved into
// acquisition.StagedResult without either package importing the other.
type resolverAdapter struct{ r *firmware.Resolver }

func (a resolverAdapter) Resolve(ctx context.Context, fs *graph.FirmwareSet, kind graph.FirmwareKind, peakingTime float64, detectorType string, overrides *graph.Defaults) (acquisition.StagedResult, error) {
	res, err := a.r.Resolve(ctx, fs, kind, peakingTime, detectorType, overrides)
	if err != nil {
		return acquisition.StagedResult{}, err
	}
	return acquisition.StagedResult{StagedPath: res.StagedPath, RawName: res.RawName}, nil
}

// New creates an empty Handel bound to bus and archive. archive may be
// nil if every FirmwareSet in use is listed-mode.
func New(bus capability.DeviceBus, archive capability.FirmwareArchive, log *hlog.Logger) *Handel {
	if log == nil {
		log = hlog.Discard()
	}
	g := graph.New()
	h := &Handel{
		Graph:    g,
		Bus:      bus,
		Archive:  archive,
		Log:      log,
		drivers:  make(map[string]capability.ProductDriver),
		resolver: firmware.New(archive, log),
	}

	lookup := h.driverFor

	h.starter = &system.Starter{Graph: g, Drivers: lookup, Resolver: h.resolver, Log: log}
	seq := &setup.Sequencer{Graph: g, Drivers: lookup, Log: log}
	h.setup = seq
	h.acquisition = &acquisition.Engine{Graph: g, Drivers: lookup, Resolver: resolverAdapter{h.resolver}, Setup: seq, Log: log}
	h.run = &run.Controller{Graph: g, Drivers: lookup, Log: log}
	h.readout = &readout.Reader{Graph: g, Drivers: lookup, Log: log}
	return h
}

func (h *Handel) driverFor(productType string) (capability.ProductDriver, error) {
	d, ok := h.drivers[productType]
	if !ok {
		return nil, herr.Newf(herr.UnknownBtype, "no driver registered for product type %q", productType)
	}
	return d, nil
}

// RegisterDriver binds a ProductDriver to a product-type string.
func (h *Handel) RegisterDriver(productType string, d capability.ProductDriver) {
	h.drivers[productType] = d
}

// Load populates Handel's Graph from an INI configuration file.
func (h *Handel) Load(path string) error {
	return iniconfig.Load(path, h.Graph)
}

// SaveSystem persists the current Graph. format selects the output
// encoding; "handel_ini" is the native round-trippable format, "json" is
// a secondary dump for tooling.
func (h *Handel) SaveSystem(format, path string) error {
	switch format {
	case "handel_ini":
		return iniconfig.Save(path, h.Graph)
	case "json":
		return saveJSON(path, h.Graph)
	default:
		return herr.Newf(herr.BadSystemItem, "unknown save_system format %q", format)
	}
}

// StartSystem validates the full configuration graph and downloads
// firmware to every active channel.
func (h *Handel) StartSystem(ctx context.Context) error {
	return h.starter.StartSystem(ctx)
}

// UserSetup pushes every module's Defaults bag onto hardware.
func (h *Handel) UserSetup(ctx context.Context) error {
	return h.setup.Run(ctx)
}

// SetAcquisitionValue, GetAcquisitionValue and RemoveAcquisitionValue
// implement the named-value contract for one logical channel.
func (h *Handel) SetAcquisitionValue(ctx context.Context, logicalID int, name string, value float64) (float64, error) {
	return h.acquisition.Set(ctx, logicalID, name, value)
}

func (h *Handel) GetAcquisitionValue(ctx context.Context, logicalID int, name string) (float64, error) {
	return h.acquisition.Get(ctx, logicalID, name)
}

func (h *Handel) RemoveAcquisitionValue(ctx context.Context, logicalID int, name string) error {
	return h.acquisition.Remove(ctx, logicalID, name)
}

// StartRun, StopRun and WaitIdle implement the run-control contract for
// a logical-channel handle (Single or Set).
func (h *Handel) StartRun(ctx context.Context, handle int, resume bool) error {
	return h.run.StartRun(ctx, handle, resume)
}

func (h *Handel) StopRun(ctx context.Context, handle int) error {
	return h.run.StopRun(ctx, handle)
}

func (h *Handel) WaitIdle(ctx context.Context, handle int) error {
	return h.run.WaitIdle(ctx, handle)
}

func (h *Handel) DoSpecialRun(ctx context.Context, handle int, name string, info []float64) error {
	return h.run.DoSpecialRun(ctx, handle, name, info)
}

func (h *Handel) GetSpecialRunData(ctx context.Context, handle int, name string) (float64, error) {
	return h.run.GetSpecialRunData(ctx, handle, name)
}

func (h *Handel) RunCaptureTask(ctx context.Context, handle int, name string, info []float64, length int) ([]float64, error) {
	return h.run.RunCaptureTask(ctx, handle, name, info, length)
}

// GetRunData and GetSpectrum implement the readout contract.
func (h *Handel) GetRunData(ctx context.Context, logicalID int, name string) (float64, error) {
	return h.readout.GetRunData(ctx, logicalID, name)
}

func (h *Handel) GetSpectrum(ctx context.Context, logicalID int, name string) ([]uint32, error) {
	return h.readout.GetSpectrum(ctx, logicalID, name)
}

// GetParameter and SetParameter pass uppercase DSP symbols straight
// through to the owning module's driver.
func (h *Handel) GetParameter(ctx context.Context, logicalID int, name string) (uint16, error) {
	m, physChan, err := h.Graph.ModuleForLogical(logicalID)
	if err != nil {
		return 0, err
	}
	driver, err := h.driverFor(m.ProductType)
	if err != nil {
		return 0, err
	}
	return driver.GetParameter(ctx, physChan, name)
}

func (h *Handel) SetParameter(ctx context.Context, logicalID int, name string, value uint16) error {
	m, physChan, err := h.Graph.ModuleForLogical(logicalID)
	if err != nil {
		return err
	}
	driver, err := h.driverFor(m.ProductType)
	if err != nil {
		return err
	}
	return driver.SetParameter(ctx, physChan, name, value)
}

// BoardOperation passes a non-persistent product-specific command through
// to the owning module's driver.
func (h *Handel) BoardOperation(ctx context.Context, logicalID int, name string, value *capability.BoardOpValue) error {
	m, physChan, err := h.Graph.ModuleForLogical(logicalID)
	if err != nil {
		return err
	}
	driver, err := h.driverFor(m.ProductType)
	if err != nil {
		return err
	}
	d, err := h.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return err
	}
	return driver.BoardOperation(ctx, physChan, name, value, d)
}

// SetIOPriority is a host-side hint (e.g. scheduling priority of the
// polling goroutine); this single-threaded cooperative model has nothing
// to raise, so it is a no-op retained for API parity.
func (h *Handel) SetIOPriority(priority int) error {
	return nil
}

// Exit releases the hardware bus and closes the log sink. The Graph
// itself needs no teardown.
func (h *Handel) Exit() error {
	var err error
	if h.Bus != nil {
		err = h.Bus.Close()
	}
	if cerr := h.Log.Close(); err == nil {
		err = cerr
	}
	return err
}
