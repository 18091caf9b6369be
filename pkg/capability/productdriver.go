package capability

import (
	"context"
	"time"

	"github.com/xiallc/handel-go/pkg/graph"
)

// BoardOpValue is the in/out payload for BoardOperation: a single float64
// in each direction; product drivers interpret it as whatever type the
// named operation requires.
type BoardOpValue struct {
	In  float64
	Out float64
}

// ProductDriver is the dispatch surface that shelters the core from
// product differences. The core looks up the concrete ProductDriver for a
// Module by its product-type string through the driver registry on each
// operation; the Module does not hold a reference to its driver.
type ProductDriver interface {
	// Validation.
	ValidateModule(m *graph.Module) error
	ValidateDefaults(d *graph.Defaults) error

	// Firmware download.
	DownloadFirmware(ctx context.Context, physChan int, kind graph.FirmwareKind, stagedPath string, m *graph.Module, rawName string, d *graph.Defaults) error

	// Acquisition values.
	SetAcquisitionValue(ctx context.Context, physChan int, name string, value *float64, d *graph.Defaults, fs *graph.FirmwareSet, cur *graph.CurrentFirmware, det *graph.Detector, detChan int, m *graph.Module, modChan int) error
	GetAcquisitionValue(ctx context.Context, physChan int, name string, d *graph.Defaults) (float64, error)

	// Gain.
	GainOperation(ctx context.Context, physChan int, name string, value float64, det *graph.Detector, modChan int, m *graph.Module, d *graph.Defaults) error
	GainCalibrate(ctx context.Context, physChan int, det *graph.Detector, modChan int, m *graph.Module, d *graph.Defaults, deltaGain float64) error

	// Run control.
	StartRun(ctx context.Context, physChan int, resume bool, d *graph.Defaults, m *graph.Module) error
	StopRun(ctx context.Context, physChan int, m *graph.Module) error
	GetRunData(ctx context.Context, physChan int, name string, d *graph.Defaults, m *graph.Module) (float64, error)

	// ReadSpectrum bulk-reads an array-valued run result ("mca" or
	// "baseline") up to length words.
	ReadSpectrum(ctx context.Context, physChan int, name string, length int, d *graph.Defaults, m *graph.Module) ([]uint32, error)

	// ModuleStatistics returns the raw per-channel statistics snapshot
	// that "module_statistics_2" and the tick-pair livetime/realtime
	// fields are derived from.
	ModuleStatistics(ctx context.Context, physChan int, m *graph.Module) ([]uint32, error)

	// ClockPeriod reports the duration of one hardware clock tick for a
	// channel, used to convert raw tick counts into seconds.
	ClockPeriod(ctx context.Context, physChan int) (time.Duration, error)

	// Special runs.
	DoSpecialRun(ctx context.Context, physChan int, name string, info []float64, d *graph.Defaults, det *graph.Detector, detChan int) error
	GetSpecialRunData(ctx context.Context, physChan int, name string, d *graph.Defaults) (float64, error)

	// Setup.
	UserSetup(ctx context.Context, physChan int, d *graph.Defaults, fs *graph.FirmwareSet, cur *graph.CurrentFirmware, detType graph.DetectorType, det *graph.Detector, detChan int, m *graph.Module, modChan int) error
	ModuleSetup(ctx context.Context, physChan int, d *graph.Defaults, m *graph.Module) error

	// Defaults catalog: the product-required names and their seed values.
	NumDefaults() int
	DefaultName(index int) (string, error)
	SeedValue(name string) (float64, bool)

	// DSP parameter pass-throughs.
	GetParameter(ctx context.Context, physChan int, name string) (uint16, error)
	SetParameter(ctx context.Context, physChan int, name string, value uint16) error
	NumParams(ctx context.Context, physChan int) (int, error)
	ParamNameByIndex(ctx context.Context, physChan int, index int) (string, error)
	ParamData(ctx context.Context, physChan int, kind string) ([]string, []uint16, []bool, []uint16, []uint16, error)

	// BoardOperation covers non-persistent, product-specific commands:
	// preset configuration, CPLD version reads, trace capture, etc.
	BoardOperation(ctx context.Context, physChan int, name string, value *BoardOpValue, d *graph.Defaults) error

	// Teardown.
	FreeSCAs(m *graph.Module, modChan int) error
	Unhook(ctx context.Context, physChan int) error

	// RequiresApply reports whether this product needs the start/wait/stop
	// "apply" sequence after an analog gain change.
	RequiresApply() bool
}
