// Package saturn implements capability.ProductDriver for the reference
// "saturn" DSP/FiPPI product family: analog gain and filter-timing math,
// run control and readout built on capability.DeviceBus primitives.
package saturn

import (
	"context"
	"math"
	"time"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
)

// gain-chain constants grounded on saturn_psl.c's pslCalculateGain: a
// fixed bin-density reference (BINFACT1) the requested bin density is
// compared against in decibels, clamped to the analog chain's [-6,30] dB
// range, then quantized into the 16-bit GAINDAC word.
const (
	binFact1   = 8192.0
	gainDBMin  = -6.0
	gainDBMax  = 30.0
	gainDACDen = 40.0
)

// fast-trigger-filter constants grounded on saturn_psl.c's
// pslCalculateFastFilter/pslCalculateThresh: FASTLEN is a fixed trigger-
// filter length (the fast channel is not user-tunable the way the slow
// filter is), and adcResolution is the fixed 10-bit ADC the eV/ADC ratio
// is quantized against, independent of the user-configurable MCA bin
// count.
const (
	fastFilterPeakingTimeUs = 0.200
	adcResolution           = 1024.0
)

var dBinFact1 = 20.0 * math.Log10(binFact1)

func calculateGainDB(calibrationEnergyEV, mcaBinWidthEV, adcPercentRule, preampGainVPerKeV float64) float64 {
	binsPerKeV := 1000.0 / mcaBinWidthEV
	desired := calibrationEnergyEV / 1000.0 * binsPerKeV * (adcPercentRule / 100.0)
	gDB := dBinFact1 + 20.0*math.Log10(desired/binFact1) - 20.0*math.Log10(preampGainVPerKeV)
	if gDB < gainDBMin {
		gDB = gainDBMin
	}
	if gDB > gainDBMax {
		gDB = gainDBMax
	}
	return gDB
}

func gainDBToDAC(gDB float64) uint16 {
	dac := math.Round((gDB + 10.0) * 65536.0 / gainDACDen)
	if dac > math.MaxUint16 {
		dac = math.MaxUint16
	}
	return uint16(dac)
}

func gainDACToDB(dac uint16) float64 {
	return float64(dac)*gainDACDen/65536.0 - 10.0
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// updateFilter computes SLOWLEN/SLOWGAP/PEAKINT/PEAKSAM from the
// configured peaking and gap times, grounded on saturn_psl.c's
// pslUpdateFilter: both lengths are clock ticks at the FiPPI's
// decimation. SLOWLEN must land in the DSP's hard [2,28] filter-word
// range or the requested peaking time is rejected with SlowlenOOR;
// SLOWGAP is clamped to [3,29] and then shrunk (never errored) if the
// pair would overflow the 31-tick slow-filter budget, logging that
// shrink through log.
func updateFilter(peakingTimeUs, gapTimeUs, clockMHz float64, decimation uint, filterInfo []uint16, log *hlog.Logger) (slowlen, slowgap, peakint, peaksam int, err error) {
	scale := clockMHz * 1e6 / math.Pow(2, float64(decimation))
	slowlen = int(math.Round(peakingTimeUs * 1e-6 * scale))
	if slowlen < 2 || slowlen > 28 {
		return 0, 0, 0, 0, herr.Newf(herr.SlowlenOOR, "peaking_time %g us yields SLOWLEN %d, outside [2,28]", peakingTimeUs, slowlen)
	}
	slowgap = clampInt(int(math.Ceil(gapTimeUs*1e-6*scale)), 3, 29)
	if slowlen+slowgap > 31 {
		shrunk := 31 - slowlen
		if shrunk < 3 {
			shrunk = 3
			slowlen = 31 - shrunk
		}
		if log != nil {
			log.Infof("SLOWLEN+SLOWGAP %d exceeds 31, shrinking SLOWGAP %d -> %d", slowlen+slowgap, slowgap, shrunk)
		}
		slowgap = shrunk
	}
	offset0, offset1 := 0, 0
	if len(filterInfo) > 0 {
		offset0 = int(filterInfo[0])
	}
	if len(filterInfo) > 1 {
		offset1 = int(filterInfo[1])
	}
	peakint = slowlen + slowgap + offset0
	peaksam = peakint - offset1
	return slowlen, slowgap, peakint, peaksam, nil
}

// fastThreshold computes FASTLEN (the fixed fast-filter length in clock
// ticks) and the eV/ADC conversion ratio used to translate an eV
// threshold into the 16-bit THRESHOLD register, grounded on saturn_psl.c's
// pslCalculateThresh.
func fastThreshold(clockMHz, calibrationEnergyEV, adcPercentRule float64) (fastlen int, evPerADC float64) {
	fastlen = int(math.Round(fastFilterPeakingTimeUs * clockMHz))
	evPerADC = calibrationEnergyEV / ((adcPercentRule / 100.0) * adcResolution)
	return
}

// Driver is the reference ProductDriver for saturn-family hardware.
type Driver struct {
	Bus      capability.DeviceBus
	ClockMHz float64
	Log      *hlog.Logger
}

// New creates a Driver bound to bus, clocked at clockMHz.
func New(bus capability.DeviceBus, clockMHz float64) *Driver {
	return &Driver{Bus: bus, ClockMHz: clockMHz}
}

func (d *Driver) log() *hlog.Logger {
	if d.Log == nil {
		return hlog.Discard()
	}
	return d.Log
}

// requiredDefaults is the product-required Defaults catalog with its seed
// values: filter times, gain dependencies, thresholds, MCA size and
// decimation. It holds no SCA entries, and UserSetup applies a Defaults
// bag in that bag's own insertion order, not in this order.
var requiredDefaults = []struct {
	name string
	seed float64
}{
	{"peaking_time", 0.6},
	{"gap_time", 0.2},
	{"calibration_energy", 5900.0},
	{"mca_bin_width", 5.0},
	{"adc_percent_rule", 5.0},
	{"preamp_gain", 5.0},
	{"trigger_threshold", 1000.0},
	{"energy_threshold", 100.0},
	{"number_mca_channels", 2048},
	{"decimation", 0},
}

func (d *Driver) NumDefaults() int { return len(requiredDefaults) }

func (d *Driver) DefaultName(index int) (string, error) {
	if index < 0 || index >= len(requiredDefaults) {
		return "", herr.Newf(herr.BadIndex, "default index %d out of range", index)
	}
	return requiredDefaults[index].name, nil
}

func (d *Driver) SeedValue(name string) (float64, bool) {
	for _, e := range requiredDefaults {
		if e.name == name {
			return e.seed, true
		}
	}
	return 0, false
}

func (d *Driver) ValidateModule(m *graph.Module) error {
	if m.NumberOfChannels <= 0 {
		return herr.Newf(herr.InvalidNumchans, "module %s has no channels", m.Alias)
	}
	return nil
}

func (d *Driver) ValidateDefaults(def *graph.Defaults) error {
	var names []string
	for _, e := range requiredDefaults {
		names = append(names, e.name)
	}
	return def.RequireAll(names)
}

func (d *Driver) DownloadFirmware(ctx context.Context, physChan int, kind graph.FirmwareKind, stagedPath string, m *graph.Module, rawName string, def *graph.Defaults) error {
	return d.Bus.WriteMemory(ctx, capability.RegionRegister, uint32(kind), []byte(stagedPath))
}

func (d *Driver) decimation(def *graph.Defaults) uint {
	if v, err := def.Get("decimation"); err == nil {
		return uint(v)
	}
	return 0
}

func (d *Driver) filterInfo(def *graph.Defaults) []uint16 {
	lo, _ := def.Get("peakint_offset")
	hi, _ := def.Get("peaksam_offset")
	return []uint16{uint16(lo), uint16(hi)}
}

// SetAcquisitionValue is the per-name write path: for names this driver
// recognizes, compute the derived DSP word(s), write
// them through the bus, and overwrite value with the quantized read-back
// so the caller's Defaults entry reflects what hardware actually holds.
func (d *Driver) SetAcquisitionValue(ctx context.Context, physChan int, name string, value *float64, def *graph.Defaults, fs *graph.FirmwareSet, cur *graph.CurrentFirmware, det *graph.Detector, detChan int, m *graph.Module, modChan int) error {
	switch name {
	case "peaking_time", "gap_time":
		peakingTime, gapTime := *value, *value
		if name == "peaking_time" {
			if v, err := def.Get("gap_time"); err == nil {
				gapTime = v
			}
		} else {
			if v, err := def.Get("peaking_time"); err == nil {
				peakingTime = v
			}
		}
		slowlen, slowgap, peakint, peaksam, err := updateFilter(peakingTime, gapTime, d.ClockMHz, d.decimation(def), d.filterInfo(def), d.log())
		if err != nil {
			return err
		}
		if err := d.writeParam(ctx, physChan, "SLOWLEN", uint16(slowlen)); err != nil {
			return err
		}
		if err := d.writeParam(ctx, physChan, "SLOWGAP", uint16(slowgap)); err != nil {
			return err
		}
		if err := d.writeParam(ctx, physChan, "PEAKINT", uint16(peakint)); err != nil {
			return err
		}
		if err := d.writeParam(ctx, physChan, "PEAKSAM", uint16(peaksam)); err != nil {
			return err
		}
		actualUs := float64(slowlen) * math.Pow(2, float64(d.decimation(def))) / (d.ClockMHz * 1e6) * 1e6
		if name == "peaking_time" {
			*value = actualUs
		} else {
			*value = float64(slowgap) * math.Pow(2, float64(d.decimation(def))) / (d.ClockMHz * 1e6) * 1e6
		}
		return nil

	case "calibration_energy", "mca_bin_width", "adc_percent_rule", "preamp_gain":
		return d.GainOperation(ctx, physChan, "calculate_gain", 0, det, modChan, m, def)

	case "trigger_threshold", "energy_threshold":
		calE, _ := def.Get("calibration_energy")
		pct, _ := def.Get("adc_percent_rule")
		fastlen, evPerADC := fastThreshold(d.ClockMHz, calE, pct)
		if fastlen <= 0 || evPerADC <= 0 {
			return herr.Newf(herr.ThreshOOR, "%s: degenerate FASTLEN/eV-per-ADC (fastlen=%d, eV/ADC=%g)", name, fastlen, evPerADC)
		}
		threshold := math.Round(float64(fastlen) * *value / evPerADC)
		if threshold < 0 || threshold > 65535 {
			return herr.Newf(herr.ThreshOOR, "%s %g yields THRESHOLD %g, outside uint16 range", name, *value, threshold)
		}
		symbol := "FASTTHRESH"
		if name == "energy_threshold" {
			symbol = "SLOWTHRESH"
		}
		if err := d.writeParam(ctx, physChan, symbol, uint16(threshold)); err != nil {
			return err
		}
		*value = threshold * evPerADC / float64(fastlen)
		return nil

	case "number_mca_channels":
		if err := d.writeParam(ctx, physChan, "MCALIMHI", uint16(*value)); err != nil {
			return err
		}
		return nil

	case "preset_type":
		return d.writeParam(ctx, physChan, "PRESET", uint16(*value))

	case "preset_value":
		presetType, _ := def.Get("preset_type")
		rawTicks := *value
		isTimePreset := presetType == 1 || presetType == 2
		period := 16.0 / (d.ClockMHz * 1e6)
		if isTimePreset {
			// time presets are quantized to 16 ticks of the hardware
			// clock.
			rawTicks = *value / period
		}
		if rawTicks < 0 || rawTicks > math.MaxUint32 {
			return herr.Newf(herr.PresetValueOOR, "preset_value %g exceeds the 32-bit preset length", *value)
		}
		ticks := uint32(rawTicks)
		if isTimePreset {
			*value = float64(ticks) * period
		}
		if err := d.writeParam(ctx, physChan, "PRESETLEN0", uint16(ticks&0xFFFF)); err != nil {
			return err
		}
		return d.writeParam(ctx, physChan, "PRESETLEN1", uint16(ticks>>16))

	case "decimation":
		def.Set("decimation", *value)
		return nil

	default:
		return herr.Newf(herr.UnknownValue, "saturn driver has no acquisition value %q", name)
	}
}

func (d *Driver) writeParam(ctx context.Context, physChan int, symbol string, value uint16) error {
	return d.Bus.WriteSymbol(ctx, physChan, symbol, value)
}

func (d *Driver) GetAcquisitionValue(ctx context.Context, physChan int, name string, def *graph.Defaults) (float64, error) {
	if v, err := def.Get(name); err == nil {
		return v, nil
	}
	return 0, herr.Newf(herr.UnknownValue, "saturn driver has no acquisition value %q", name)
}

// GainOperation implements the gain chain: "calculate_gain" recomputes
// GAINDAC from the four dependency values and writes the quantized
// result back, reconciling Defaults with what was actually written.
func (d *Driver) GainOperation(ctx context.Context, physChan int, name string, value float64, det *graph.Detector, modChan int, m *graph.Module, def *graph.Defaults) error {
	switch name {
	case "calculate_gain":
		calE, _ := def.Get("calibration_energy")
		binW, _ := def.Get("mca_bin_width")
		pct, _ := def.Get("adc_percent_rule")
		preamp := 1.0
		if modChan < len(det.Gain) {
			preamp = det.Gain[modChan]
		}
		gDB := calculateGainDB(calE, binW, pct, preamp)
		dac := gainDBToDAC(gDB)
		if err := d.writeParam(ctx, physChan, "GAINDAC", dac); err != nil {
			return err
		}
		def.Set("gain_db", gainDACToDB(dac))
		return nil
	default:
		return herr.Newf(herr.BadPSLArgs, "saturn driver has no gain operation %q", name)
	}
}

func (d *Driver) GainCalibrate(ctx context.Context, physChan int, det *graph.Detector, modChan int, m *graph.Module, def *graph.Defaults, deltaGain float64) error {
	cur, _ := def.Get("gain_db")
	dac := gainDBToDAC(clamp(cur+deltaGain, gainDBMin, gainDBMax))
	if err := d.writeParam(ctx, physChan, "GAINDAC", dac); err != nil {
		return err
	}
	def.Set("gain_db", gainDACToDB(dac))
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func (d *Driver) StartRun(ctx context.Context, physChan int, resume bool, def *graph.Defaults, m *graph.Module) error {
	return d.Bus.RunControl(ctx, physChan, capability.RunSingle, resume, false)
}

func (d *Driver) StopRun(ctx context.Context, physChan int, m *graph.Module) error {
	return d.Bus.RunControl(ctx, physChan, capability.RunSingle, false, true)
}

func (d *Driver) GetRunData(ctx context.Context, physChan int, name string, def *graph.Defaults, m *graph.Module) (float64, error) {
	switch name {
	case "run_active":
		active, err := d.Bus.IsRunActive(ctx, physChan)
		if err != nil {
			return 0, err
		}
		if active {
			return 1, nil
		}
		return 0, nil
	case "mca_length", "baseline_length":
		if v, err := def.Get("number_mca_channels"); err == nil {
			return v, nil
		}
		return 2048, nil
	default:
		v, err := d.Bus.ReadSymbol(ctx, physChan, name)
		if err != nil {
			return 0, err
		}
		return float64(v), nil
	}
}

func (d *Driver) ReadSpectrum(ctx context.Context, physChan int, name string, length int, def *graph.Defaults, m *graph.Module) ([]uint32, error) {
	region := capability.RegionSpectrum
	raw, err := d.Bus.ReadMemory(ctx, region, 0, length*4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, length)
	for i := 0; i < length && (i*4+3) < len(raw); i++ {
		out[i] = uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
	}
	return out, nil
}

func (d *Driver) ModuleStatistics(ctx context.Context, physChan int, m *graph.Module) ([]uint32, error) {
	raw, err := d.Bus.ReadMemory(ctx, capability.RegionData, 0, 256*4)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, 256)
	for i := 0; i < 256 && (i*4+3) < len(raw); i++ {
		out[i] = uint32(raw[i*4]) | uint32(raw[i*4+1])<<8 | uint32(raw[i*4+2])<<16 | uint32(raw[i*4+3])<<24
	}
	return out, nil
}

func (d *Driver) ClockPeriod(ctx context.Context, physChan int) (time.Duration, error) {
	if d.ClockMHz <= 0 {
		return 0, herr.New(herr.ClockSpeed, "saturn driver has no clock configured")
	}
	return time.Duration(float64(time.Second) / (d.ClockMHz * 1e6)), nil
}

func (d *Driver) DoSpecialRun(ctx context.Context, physChan int, name string, info []float64, def *graph.Defaults, det *graph.Detector, detChan int) error {
	args := make([]byte, len(info)*8)
	for i, v := range info {
		bits := math.Float64bits(v)
		for b := 0; b < 8; b++ {
			args[i*8+b] = byte(bits >> (8 * b))
		}
	}
	return d.Bus.StartControlTask(ctx, physChan, controlTaskID(name), args)
}

func controlTaskID(name string) int {
	switch name {
	case "baseline_history":
		return 1
	case "adc_trace":
		return 2
	case "external_memory":
		return 3
	default:
		return 0
	}
}

func (d *Driver) GetSpecialRunData(ctx context.Context, physChan int, name string) (float64, error) {
	switch {
	case hasSuffix(name, "_active"):
		status, err := d.Bus.PollControlTask(ctx, physChan)
		if err != nil {
			return 0, err
		}
		if status == capability.ControlTaskBusy {
			return 1, nil
		}
		return 0, nil
	case hasSuffix(name, "_stop"):
		return 0, d.Bus.StopControlTask(ctx, physChan)
	default:
		result, err := d.Bus.ReadControlTaskResult(ctx, physChan, 8)
		if err != nil || len(result) < 8 {
			return 0, err
		}
		bits := uint64(0)
		for i := 0; i < 8; i++ {
			bits |= uint64(result[i]) << (8 * i)
		}
		return math.Float64frombits(bits), nil
	}
}

func hasSuffix(s, suffix string) bool {
	return len(s) >= len(suffix) && s[len(s)-len(suffix):] == suffix
}

func (d *Driver) UserSetup(ctx context.Context, physChan int, def *graph.Defaults, fs *graph.FirmwareSet, cur *graph.CurrentFirmware, detType graph.DetectorType, det *graph.Detector, detChan int, m *graph.Module, modChan int) error {
	if err := d.GainOperation(ctx, physChan, "calculate_gain", 0, det, modChan, m, def); err != nil {
		return err
	}
	return nil
}

func (d *Driver) ModuleSetup(ctx context.Context, physChan int, def *graph.Defaults, m *graph.Module) error {
	return nil
}

func (d *Driver) GetParameter(ctx context.Context, physChan int, name string) (uint16, error) {
	return d.Bus.ReadSymbol(ctx, physChan, name)
}

func (d *Driver) SetParameter(ctx context.Context, physChan int, name string, value uint16) error {
	return d.Bus.WriteSymbol(ctx, physChan, name, value)
}

func (d *Driver) NumParams(ctx context.Context, physChan int) (int, error) {
	return d.Bus.NumSymbols(ctx, physChan)
}

func (d *Driver) ParamNameByIndex(ctx context.Context, physChan int, index int) (string, error) {
	return d.Bus.SymbolName(ctx, physChan, index)
}

func (d *Driver) ParamData(ctx context.Context, physChan int, kind string) ([]string, []uint16, []bool, []uint16, []uint16, error) {
	n, err := d.Bus.NumSymbols(ctx, physChan)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	names := make([]string, 0, n)
	values := make([]uint16, 0, n)
	access := make([]bool, 0, n)
	lowers := make([]uint16, 0, n)
	uppers := make([]uint16, 0, n)
	for i := 0; i < n; i++ {
		name, err := d.Bus.SymbolName(ctx, physChan, i)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		v, err := d.Bus.ReadSymbol(ctx, physChan, name)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		lo, hi, err := d.Bus.SymbolBounds(ctx, physChan, name)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		names = append(names, name)
		values = append(values, v)
		access = append(access, true)
		lowers = append(lowers, lo)
		uppers = append(uppers, hi)
	}
	return names, values, access, lowers, uppers, nil
}

func (d *Driver) BoardOperation(ctx context.Context, physChan int, name string, value *capability.BoardOpValue, def *graph.Defaults) error {
	switch name {
	case "get_board_version":
		v, err := d.Bus.ReadRegister(ctx, "BOARD_VERSION")
		if err != nil {
			return err
		}
		value.Out = float64(v)
		return nil
	default:
		return herr.Newf(herr.BadSystemItem, "saturn driver has no board operation %q", name)
	}
}

func (d *Driver) FreeSCAs(m *graph.Module, modChan int) error {
	if modChan < 0 || modChan >= len(m.Channels) {
		return herr.Newf(herr.BadChannel, "channel %d out of range", modChan)
	}
	m.Channels[modChan].SCAs = nil
	return nil
}

func (d *Driver) Unhook(ctx context.Context, physChan int) error {
	return nil
}

// RequiresApply reports true: saturn's analog gain DAC only latches after
// a brief start/stop run bracket.
func (d *Driver) RequiresApply() bool { return true }

var _ capability.ProductDriver = (*Driver)(nil)
