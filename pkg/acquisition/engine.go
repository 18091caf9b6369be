// Package acquisition implements the named-value engine that translates
// physics-level acquisition values into hardware register writes, with
// dependency recomputation, bounds checks and read-back reconciliation.
package acquisition

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
)

// DriverLookup resolves the ProductDriver bound to a Module's product
// type. The facade wires this to its driver registry.
type DriverLookup func(productType string) (capability.ProductDriver, error)

// Resetupper reruns UserSetup for one physical channel, used by Remove to
// restore coherence after an entry is dropped. Implemented by pkg/setup;
// injected to avoid an import cycle.
type Resetupper interface {
	UserSetupChannel(ctx context.Context, m *graph.Module, physChan int) error
}

// Engine implements the set/get/remove contract for named acquisition
// values.
type Engine struct {
	Graph    *graph.Graph
	Drivers  DriverLookup
	Resolver FirmwareResolver
	Setup    Resetupper
	Log      *hlog.Logger
}

// FirmwareResolver is the subset of pkg/firmware.Resolver the engine
// needs, to avoid importing it directly (pkg/firmware does not depend on
// acquisition, so this indirection exists purely for test seams).
type FirmwareResolver interface {
	Resolve(ctx context.Context, fs *graph.FirmwareSet, kind graph.FirmwareKind, peakingTime float64, detectorType string, overrides *graph.Defaults) (StagedResult, error)
}

// StagedResult mirrors firmware.Resolved without the import.
type StagedResult struct {
	StagedPath string
	RawName    string
}

// gainDependencyNames triggers the analog gain chain recompute sequence
// when any of these changes.
var gainDependencyNames = map[string]bool{
	"calibration_energy": true,
	"adc_percent_rule":   true,
	"mca_bin_width":      true,
	"preamp_gain":        true,
}

// filterNames trigger a firmware-resolution check after the driver applies
// the new filter value.
var filterNames = map[string]bool{
	"peaking_time": true,
	"gap_time":     true,
}

// presetComposites decompose into a (preset-type, preset-value) pair
// re-dispatched as "preset_type" and "preset_value".
var presetComposites = map[string]float64{
	"preset_runtime":  1, // fixed real time
	"preset_livetime": 2, // fixed live time
	"preset_output":   3, // fixed output events
	"preset_input":    4, // fixed input triggers
	"preset_standard": 0, // none
}

// deprecatedAliases resolves a legacy name to its current equivalent,
// logging a WARN.
var deprecatedAliases = map[string]string{
	"livetime":       "trigger_livetime",
	"events_in_run":  "mca_events",
}

func (e *Engine) driverFor(m *graph.Module) (capability.ProductDriver, error) {
	if e.Drivers == nil {
		return nil, herr.New(herr.UnknownBtype, "no driver registry configured")
	}
	return e.Drivers(m.ProductType)
}

func (e *Engine) log() *hlog.Logger {
	if e.Log == nil {
		return hlog.Discard()
	}
	return e.Log
}

// Set writes a named acquisition value for a single logical channel (the
// facade fans Set out over a handle's members).
func (e *Engine) Set(ctx context.Context, logicalID int, name string, value float64) (float64, error) {
	m, physChan, err := e.Graph.ModuleForLogical(logicalID)
	if err != nil {
		return 0, err
	}
	det, detChan, err := e.Graph.ResolveDetector(m, physChan)
	if err != nil {
		return 0, err
	}
	fs, err := e.Graph.ResolveFirmwareSet(m, physChan)
	if err != nil {
		return 0, err
	}
	d, err := e.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return 0, err
	}
	driver, err := e.driverFor(m)
	if err != nil {
		return 0, err
	}
	cur := &m.Channels[physChan].Current

	return e.setResolved(ctx, m, physChan, det, detChan, fs, d, cur, driver, name, value)
}

func (e *Engine) setResolved(ctx context.Context, m *graph.Module, physChan int, det *graph.Detector, detChan int, fs *graph.FirmwareSet, d *graph.Defaults, cur *graph.CurrentFirmware, driver capability.ProductDriver, name string, value float64) (float64, error) {
	if canon, ok := deprecatedAliases[name]; ok {
		e.log().Warnf("acquisition value %q is deprecated, use %q", name, canon)
		name = canon
	}

	if presetType, ok := presetComposites[name]; ok {
		if _, err := e.setResolved(ctx, m, physChan, det, detChan, fs, d, cur, driver, "preset_type", presetType); err != nil {
			return 0, err
		}
		return e.setResolved(ctx, m, physChan, det, detChan, fs, d, cur, driver, "preset_value", value)
	}

	if scaIdx, isLow, ok := parseSCAName(name); ok {
		return e.setSCA(ctx, m, physChan, det, detChan, fs, d, cur, driver, scaIdx, isLow, value)
	}

	if isDSPSymbol(name) {
		v16 := uint16(value)
		if err := driver.SetParameter(ctx, physChan, name, v16); err != nil {
			return 0, err
		}
		d.Set(name, float64(v16))
		return float64(v16), nil
	}

	out := value
	if err := driver.SetAcquisitionValue(ctx, physChan, name, &out, d, fs, cur, det, detChan, m, physChan); err != nil {
		return 0, err
	}
	d.Set(name, out)

	if gainDependencyNames[name] {
		if err := e.recomputeGainChain(ctx, m, physChan, det, detChan, d, driver); err != nil {
			return out, err
		}
	}

	if filterNames[name] {
		if err := e.reconcileFirmware(ctx, m, physChan, fs, cur, d, driver, det.Type); err != nil {
			return out, err
		}
	}

	return out, nil
}

// recomputeGainChain runs the five-step dependency recomputation:
// recompute gain, recompute thresholds, write, apply, recompute gain
// again.
func (e *Engine) recomputeGainChain(ctx context.Context, m *graph.Module, physChan int, det *graph.Detector, detChan int, d *graph.Defaults, driver capability.ProductDriver) error {
	if err := driver.GainOperation(ctx, physChan, "calculate_gain", 0, det, physChan, m, d); err != nil {
		return err
	}

	for _, thresholdName := range []string{"trigger_threshold", "energy_threshold"} {
		if !d.Has(thresholdName) {
			continue
		}
		cv, _ := d.Get(thresholdName)
		out := cv
		fs, _ := e.Graph.ResolveFirmwareSet(m, physChan)
		cur := &m.Channels[physChan].Current
		if err := driver.SetAcquisitionValue(ctx, physChan, thresholdName, &out, d, fs, cur, det, detChan, m, physChan); err != nil {
			return err
		}
		d.Set(thresholdName, out)
	}

	if driver.RequiresApply() {
		if err := e.applyRun(ctx, m, physChan, d, driver); err != nil {
			return err
		}
	}

	// Second recompute defends against rounding-induced out-of-range flags.
	return driver.GainOperation(ctx, physChan, "calculate_gain", 0, det, physChan, m, d)
}

// applyRun performs the short start-then-stop run used to latch analog
// settings.
func (e *Engine) applyRun(ctx context.Context, m *graph.Module, physChan int, d *graph.Defaults, driver capability.ProductDriver) error {
	if err := driver.StartRun(ctx, physChan, false, d, m); err != nil {
		return herr.Wrap(herr.ApplyStatus, err, "apply run: start")
	}
	if err := driver.StopRun(ctx, physChan, m); err != nil {
		return herr.Wrap(herr.ApplyStatus, err, "apply run: stop")
	}
	return nil
}

// reconcileFirmware re-resolves firmware for the module's firmware set at
// the channel's current peaking time, downloading and caching only if the
// resolved raw name differs from CurrentFirmware.
func (e *Engine) reconcileFirmware(ctx context.Context, m *graph.Module, physChan int, fs *graph.FirmwareSet, cur *graph.CurrentFirmware, d *graph.Defaults, driver capability.ProductDriver, detType graph.DetectorType) error {
	if e.Resolver == nil {
		return nil
	}
	peakingTime, err := d.Get("peaking_time")
	if err != nil {
		return nil
	}
	detTypeName := detectorTypeName(detType)

	for _, kind := range []graph.FirmwareKind{graph.Fippi, graph.Dsp} {
		res, err := e.Resolver.Resolve(ctx, fs, kind, peakingTime, detTypeName, d)
		if err != nil {
			if k, ok := herr.Of(err); ok && k == herr.OpenFile {
				// Kind absent from this set; nothing to download.
				continue
			}
			return err
		}
		if cur.Set(kind, res.RawName) {
			if err := driver.DownloadFirmware(ctx, physChan, kind, res.StagedPath, m, res.RawName, d); err != nil {
				return err
			}
		}
	}
	return nil
}

func detectorTypeName(t graph.DetectorType) string {
	switch t {
	case graph.DetectorReset:
		return "reset"
	case graph.DetectorRCFeedback:
		return "rc_feedback"
	default:
		return ""
	}
}

// Get reads a named acquisition value: Defaults-first, falling back to
// the driver for entries marked read-only and for names absent from
// Defaults.
func (e *Engine) Get(ctx context.Context, logicalID int, name string) (float64, error) {
	m, physChan, err := e.Graph.ModuleForLogical(logicalID)
	if err != nil {
		return 0, err
	}
	d, err := e.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return 0, err
	}

	if canon, ok := deprecatedAliases[name]; ok {
		e.log().Warnf("acquisition value %q is deprecated, use %q", name, canon)
		name = canon
	}

	if scaIdx, isLow, ok := parseSCAName(name); ok {
		return e.getSCAValue(m, physChan, scaIdx, isLow)
	}

	if d.Has(name) && !d.IsReadOnly(name) {
		return d.Get(name)
	}

	driver, err := e.driverFor(m)
	if err != nil {
		return 0, err
	}
	return driver.GetAcquisitionValue(ctx, physChan, name, d)
}

// Remove drops a named acquisition value, then reruns UserSetup on the
// channel to restore coherence.
func (e *Engine) Remove(ctx context.Context, logicalID int, name string) error {
	m, physChan, err := e.Graph.ModuleForLogical(logicalID)
	if err != nil {
		return err
	}
	d, err := e.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return err
	}
	if err := d.Remove(name); err != nil {
		return err
	}
	if e.Setup == nil {
		return nil
	}
	return e.Setup.UserSetupChannel(ctx, m, physChan)
}

func isDSPSymbol(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' {
			return false
		}
	}
	return strings.ToUpper(name) == name
}

// parseSCAName matches "sca{n}_lo" / "sca{n}_hi".
func parseSCAName(name string) (idx int, isLow bool, ok bool) {
	if !strings.HasPrefix(name, "sca") {
		return 0, false, false
	}
	rest := strings.TrimPrefix(name, "sca")
	switch {
	case strings.HasSuffix(rest, "_lo"):
		n, err := strconv.Atoi(strings.TrimSuffix(rest, "_lo"))
		if err != nil {
			return 0, false, false
		}
		return n, true, true
	case strings.HasSuffix(rest, "_hi"):
		n, err := strconv.Atoi(strings.TrimSuffix(rest, "_hi"))
		if err != nil {
			return 0, false, false
		}
		return n, false, true
	default:
		return 0, false, false
	}
}

func (e *Engine) setSCA(ctx context.Context, m *graph.Module, physChan int, det *graph.Detector, detChan int, fs *graph.FirmwareSet, d *graph.Defaults, cur *graph.CurrentFirmware, driver capability.ProductDriver, idx int, isLow bool, value float64) (float64, error) {
	scas := m.Channels[physChan].SCAs
	for len(scas) <= idx {
		scas = append(scas, graph.SCARange{})
	}
	v := int(value)
	if isLow {
		if v > scas[idx].High && scas[idx].High != 0 {
			return 0, herr.Newf(herr.BinMismatch, "sca%d_lo %d exceeds sca%d_hi %d", idx, v, idx, scas[idx].High)
		}
		scas[idx].Low = v
	} else {
		if v < scas[idx].Low {
			return 0, herr.Newf(herr.BinMismatch, "sca%d_hi %d below sca%d_lo %d", idx, v, idx, scas[idx].Low)
		}
		scas[idx].High = v
	}
	m.Channels[physChan].SCAs = scas

	symbol := fmt.Sprintf("SCA%dLO", idx)
	if !isLow {
		symbol = fmt.Sprintf("SCA%dHI", idx)
	}
	if err := driver.SetParameter(ctx, physChan, symbol, uint16(v)); err != nil {
		return 0, err
	}
	d.Set(fmt.Sprintf("sca%d_lo", idx), float64(scas[idx].Low))
	d.Set(fmt.Sprintf("sca%d_hi", idx), float64(scas[idx].High))
	return value, nil
}

func (e *Engine) getSCAValue(m *graph.Module, physChan, idx int, isLow bool) (float64, error) {
	scas := m.Channels[physChan].SCAs
	if idx >= len(scas) {
		return 0, herr.Newf(herr.SCAOOR, "sca%d not configured", idx)
	}
	if isLow {
		return float64(scas[idx].Low), nil
	}
	return float64(scas[idx].High), nil
}
