// Package fakedriver provides an in-memory capability.ProductDriver double
// for exercising the core packages (acquisition, system, setup, run,
// readout) without real hardware, mirroring the style of the capability
// interfaces it stands in for.
package fakedriver

import (
	"context"
	"time"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/graph"
)

// Driver is a scriptable capability.ProductDriver. Zero value is usable;
// callers override the Func fields they care about and leave the rest at
// their permissive defaults.
type Driver struct {
	Defaults          []string
	Seeds             map[string]float64
	RequiresApplyFlag bool

	SetCalls  []string
	GainCalls int
	RunStarts int
	RunStops  int

	Statistics []uint32
	Spectrum   []uint32
	Clock      time.Duration

	SetAcquisitionValueFunc func(ctx context.Context, physChan int, name string, value *float64) error
	GetAcquisitionValueFunc func(ctx context.Context, physChan int, name string) (float64, error)
	GetRunDataFunc          func(ctx context.Context, physChan int, name string) (float64, error)
	ValidateModuleFunc      func(m *graph.Module) error
	ValidateDefaultsFunc    func(d *graph.Defaults) error
}

func New() *Driver {
	return &Driver{Seeds: map[string]float64{}}
}

func (d *Driver) ValidateModule(m *graph.Module) error {
	if d.ValidateModuleFunc != nil {
		return d.ValidateModuleFunc(m)
	}
	return nil
}

func (d *Driver) ValidateDefaults(def *graph.Defaults) error {
	if d.ValidateDefaultsFunc != nil {
		return d.ValidateDefaultsFunc(def)
	}
	return nil
}

func (d *Driver) DownloadFirmware(ctx context.Context, physChan int, kind graph.FirmwareKind, stagedPath string, m *graph.Module, rawName string, def *graph.Defaults) error {
	return nil
}

func (d *Driver) SetAcquisitionValue(ctx context.Context, physChan int, name string, value *float64, def *graph.Defaults, fs *graph.FirmwareSet, cur *graph.CurrentFirmware, det *graph.Detector, detChan int, m *graph.Module, modChan int) error {
	d.SetCalls = append(d.SetCalls, name)
	if d.SetAcquisitionValueFunc != nil {
		return d.SetAcquisitionValueFunc(ctx, physChan, name, value)
	}
	return nil
}

func (d *Driver) GetAcquisitionValue(ctx context.Context, physChan int, name string, def *graph.Defaults) (float64, error) {
	if d.GetAcquisitionValueFunc != nil {
		return d.GetAcquisitionValueFunc(ctx, physChan, name)
	}
	return 0, nil
}

func (d *Driver) GainOperation(ctx context.Context, physChan int, name string, value float64, det *graph.Detector, modChan int, m *graph.Module, def *graph.Defaults) error {
	d.GainCalls++
	return nil
}

func (d *Driver) GainCalibrate(ctx context.Context, physChan int, det *graph.Detector, modChan int, m *graph.Module, def *graph.Defaults, deltaGain float64) error {
	return nil
}

func (d *Driver) StartRun(ctx context.Context, physChan int, resume bool, def *graph.Defaults, m *graph.Module) error {
	d.RunStarts++
	return nil
}

func (d *Driver) StopRun(ctx context.Context, physChan int, m *graph.Module) error {
	d.RunStops++
	return nil
}

func (d *Driver) GetRunData(ctx context.Context, physChan int, name string, def *graph.Defaults, m *graph.Module) (float64, error) {
	if d.GetRunDataFunc != nil {
		return d.GetRunDataFunc(ctx, physChan, name)
	}
	return 0, nil
}

func (d *Driver) ReadSpectrum(ctx context.Context, physChan int, name string, length int, def *graph.Defaults, m *graph.Module) ([]uint32, error) {
	if length > len(d.Spectrum) {
		length = len(d.Spectrum)
	}
	return d.Spectrum[:length], nil
}

func (d *Driver) ModuleStatistics(ctx context.Context, physChan int, m *graph.Module) ([]uint32, error) {
	return d.Statistics, nil
}

func (d *Driver) ClockPeriod(ctx context.Context, physChan int) (time.Duration, error) {
	if d.Clock == 0 {
		return time.Nanosecond, nil
	}
	return d.Clock, nil
}

func (d *Driver) DoSpecialRun(ctx context.Context, physChan int, name string, info []float64, def *graph.Defaults, det *graph.Detector, detChan int) error {
	return nil
}

func (d *Driver) GetSpecialRunData(ctx context.Context, physChan int, name string, def *graph.Defaults) (float64, error) {
	return 0, nil
}

func (d *Driver) UserSetup(ctx context.Context, physChan int, def *graph.Defaults, fs *graph.FirmwareSet, cur *graph.CurrentFirmware, detType graph.DetectorType, det *graph.Detector, detChan int, m *graph.Module, modChan int) error {
	return nil
}

func (d *Driver) ModuleSetup(ctx context.Context, physChan int, def *graph.Defaults, m *graph.Module) error {
	return nil
}

func (d *Driver) NumDefaults() int { return len(d.Defaults) }

func (d *Driver) DefaultName(index int) (string, error) {
	return d.Defaults[index], nil
}

func (d *Driver) SeedValue(name string) (float64, bool) {
	v, ok := d.Seeds[name]
	return v, ok
}

func (d *Driver) GetParameter(ctx context.Context, physChan int, name string) (uint16, error) {
	return 0, nil
}

func (d *Driver) SetParameter(ctx context.Context, physChan int, name string, value uint16) error {
	d.SetCalls = append(d.SetCalls, name)
	return nil
}

func (d *Driver) NumParams(ctx context.Context, physChan int) (int, error) { return 0, nil }

func (d *Driver) ParamNameByIndex(ctx context.Context, physChan int, index int) (string, error) {
	return "", nil
}

func (d *Driver) ParamData(ctx context.Context, physChan int, kind string) ([]string, []uint16, []bool, []uint16, []uint16, error) {
	return nil, nil, nil, nil, nil, nil
}

func (d *Driver) BoardOperation(ctx context.Context, physChan int, name string, value *capability.BoardOpValue, def *graph.Defaults) error {
	return nil
}

func (d *Driver) FreeSCAs(m *graph.Module, modChan int) error { return nil }

func (d *Driver) Unhook(ctx context.Context, physChan int) error { return nil }

func (d *Driver) RequiresApply() bool { return d.RequiresApplyFlag }

var _ capability.ProductDriver = (*Driver)(nil)
