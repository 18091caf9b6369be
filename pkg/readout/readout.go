// Package readout implements GetRunData's read side: MCA/baseline
// spectra, tick-counted timers and event counters extracted from a
// module's statistics snapshot, and the derived count-rate ratios.
package readout

import (
	"context"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
)

// DriverLookup resolves the ProductDriver bound to a Module's product
// type (mirrors the identical small interface elsewhere in this module).
type DriverLookup func(productType string) (capability.ProductDriver, error)

// Reader implements the GetRunData/GetSpectrum read contract.
type Reader struct {
	Graph   *graph.Graph
	Drivers DriverLookup
	Log     *hlog.Logger
}

func (r *Reader) log() *hlog.Logger {
	if r.Log == nil {
		return hlog.Discard()
	}
	return r.Log
}

func (r *Reader) driverFor(m *graph.Module) (capability.ProductDriver, error) {
	if r.Drivers == nil {
		return nil, herr.New(herr.UnknownBtype, "no driver registry configured")
	}
	return r.Drivers(m.ProductType)
}

func (r *Reader) resolve(logicalID int) (*graph.Module, int, *graph.Defaults, capability.ProductDriver, error) {
	m, physChan, err := r.Graph.ModuleForLogical(logicalID)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	d, err := r.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	driver, err := r.driverFor(m)
	if err != nil {
		return nil, 0, nil, nil, err
	}
	return m, physChan, d, driver, nil
}

// statField names one tick-pair field within a ModuleStatistics snapshot:
// the low and high words of a 48-bit (masked from 64-bit) tick count at a
// fixed snapshot offset.
type statField struct {
	loIndex int
	seconds bool // true: multiply by clock period; false: raw count
}

var statFields = map[string]statField{
	"realtime":         {loIndex: 0, seconds: true},
	"trigger_livetime": {loIndex: 2, seconds: true},
	"energy_livetime":  {loIndex: 4, seconds: true},
	"triggers":         {loIndex: 6, seconds: false},
	"mca_events":       {loIndex: 8, seconds: false},
	"underflows":       {loIndex: 10, seconds: false},
	"overflows":        {loIndex: 12, seconds: false},
	"total_output_events": {loIndex: 14, seconds: false},
}

// deprecatedAliases mirrors pkg/acquisition's table for the read side.
var deprecatedAliases = map[string]string{
	"livetime":      "trigger_livetime",
	"events_in_run": "mca_events",
}

const tick48Mask = (uint64(1) << 48) - 1

func readTickPair(snapshot []uint32, loIndex int) uint64 {
	if loIndex+1 >= len(snapshot) {
		return 0
	}
	return (uint64(snapshot[loIndex+1])<<32 | uint64(snapshot[loIndex])) & tick48Mask
}

// GetRunData reads a named run-data value for one logical channel.
func (r *Reader) GetRunData(ctx context.Context, logicalID int, name string) (float64, error) {
	if canon, ok := deprecatedAliases[name]; ok {
		r.log().Warnf("run data %q is deprecated, use %q", name, canon)
		name = canon
	}

	m, physChan, d, driver, err := r.resolve(logicalID)
	if err != nil {
		return 0, err
	}

	switch name {
	case "run_active":
		if m.IsRunActive(physChan) {
			return 1, nil
		}
		return 0, nil
	case "input_count_rate":
		return r.countRate(ctx, m, physChan, d, driver, "triggers", "trigger_livetime")
	case "output_count_rate":
		return r.outputCountRate(ctx, m, physChan, driver)
	}

	if field, ok := statFields[name]; ok {
		snapshot, err := driver.ModuleStatistics(ctx, physChan, m)
		if err != nil {
			return 0, err
		}
		ticks := readTickPair(snapshot, field.loIndex)
		if !field.seconds {
			return float64(ticks), nil
		}
		period, err := driver.ClockPeriod(ctx, physChan)
		if err != nil {
			return 0, err
		}
		return float64(ticks) * period.Seconds(), nil
	}

	return driver.GetRunData(ctx, physChan, name, d, m)
}

// statsVector decodes the full nine-element statistics vector from a
// single ModuleStatistics snapshot, so output_count_rate and
// ModuleStatistics2 each observe one instant rather than risking a torn
// read across a run boundary (input_count_rate reads its own single
// snapshot through countRate).
func (r *Reader) statsVector(ctx context.Context, physChan int, m *graph.Module, driver capability.ProductDriver) ([]float64, error) {
	snapshot, err := driver.ModuleStatistics(ctx, physChan, m)
	if err != nil {
		return nil, err
	}
	period, err := driver.ClockPeriod(ctx, physChan)
	if err != nil {
		return nil, err
	}
	sec := period.Seconds()
	realtime := float64(readTickPair(snapshot, statFields["realtime"].loIndex)) * sec
	triggerLivetime := float64(readTickPair(snapshot, statFields["trigger_livetime"].loIndex)) * sec
	energyLivetime := float64(readTickPair(snapshot, statFields["energy_livetime"].loIndex)) * sec
	triggers := float64(readTickPair(snapshot, statFields["triggers"].loIndex))
	mcaEvents := float64(readTickPair(snapshot, statFields["mca_events"].loIndex))
	underflows := float64(readTickPair(snapshot, statFields["underflows"].loIndex))
	overflows := float64(readTickPair(snapshot, statFields["overflows"].loIndex))

	icr := 0.0
	if triggerLivetime > 0 {
		icr = triggers / triggerLivetime
	}
	ocr := 0.0
	if realtime > 0 {
		ocr = (mcaEvents + underflows + overflows) / realtime
	}
	return []float64{realtime, triggerLivetime, energyLivetime, triggers, mcaEvents, icr, ocr, underflows, overflows}, nil
}

// outputCountRate implements "output_count_rate" = (mca_events +
// underflows + overflows) / realtime.
func (r *Reader) outputCountRate(ctx context.Context, m *graph.Module, physChan int, driver capability.ProductDriver) (float64, error) {
	vec, err := r.statsVector(ctx, physChan, m, driver)
	if err != nil {
		return 0, err
	}
	return vec[6], nil
}

func (r *Reader) countRate(ctx context.Context, m *graph.Module, physChan int, d *graph.Defaults, driver capability.ProductDriver, countName, timeName string) (float64, error) {
	snapshot, err := driver.ModuleStatistics(ctx, physChan, m)
	if err != nil {
		return 0, err
	}
	counts := float64(readTickPair(snapshot, statFields[countName].loIndex))
	ticks := readTickPair(snapshot, statFields[timeName].loIndex)
	if ticks == 0 {
		return 0, nil
	}
	period, err := driver.ClockPeriod(ctx, physChan)
	if err != nil {
		return 0, err
	}
	elapsed := float64(ticks) * period.Seconds()
	if elapsed == 0 {
		return 0, nil
	}
	return counts / elapsed, nil
}

// GetSpectrum implements "mca"/"baseline" array reads, sized by the
// companion "mca_length"/"baseline_length" scalar.
func (r *Reader) GetSpectrum(ctx context.Context, logicalID int, name string) ([]uint32, error) {
	m, physChan, d, driver, err := r.resolve(logicalID)
	if err != nil {
		return nil, err
	}
	lengthName := name + "_length"
	lengthF, err := driver.GetRunData(ctx, physChan, lengthName, d, m)
	if err != nil {
		return nil, err
	}
	return driver.ReadSpectrum(ctx, physChan, name, int(lengthF), d, m)
}

// ModuleStatistics2 returns the nine-element atomic statistics vector
// [realtime, trigger_livetime, energy_livetime, triggers, mca_events,
// icr, ocr, underflows, overflows], decoded from one snapshot so icr/ocr
// are consistent with the counts and livetimes they were derived from.
func (r *Reader) ModuleStatistics2(ctx context.Context, logicalID int) ([]float64, error) {
	m, physChan, _, driver, err := r.resolve(logicalID)
	if err != nil {
		return nil, err
	}
	return r.statsVector(ctx, physChan, m, driver)
}
