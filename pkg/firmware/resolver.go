// Package firmware implements the (firmware set, kind, peaking time,
// detector type) -> staged file resolver.
package firmware

import (
	"context"
	"fmt"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
)

// NominalGlobalPeakingTime is the fixed peaking time global-firmware
// kinds (SystemFpga/SystemDsp/SystemFippi/FippiA) are probed with — these
// kinds are set-level, not PTRR-indexed, so any in-range value works; the
// original uses a small nominal value for this same reason.
const NominalGlobalPeakingTime = 1.0

func isGlobalKind(kind graph.FirmwareKind) bool {
	switch kind {
	case graph.SystemFpga, graph.SystemDsp, graph.SystemFippi, graph.FippiA:
		return true
	default:
		return false
	}
}

// Resolved is the resolver's result: the path staged for immediate use,
// and the canonical raw name CurrentFirmware compares against across
// resolutions.
type Resolved struct {
	StagedPath string
	RawName    string
}

// Resolver resolves firmware selections over a Graph and a
// FirmwareArchive capability.
type Resolver struct {
	Archive capability.FirmwareArchive
	Log     *hlog.Logger
}

// New creates a Resolver. log may be hlog.Discard() if the caller has no
// configured sink.
func New(archive capability.FirmwareArchive, log *hlog.Logger) *Resolver {
	if log == nil {
		log = hlog.Discard()
	}
	return &Resolver{Archive: archive, Log: log}
}

// Resolve maps (firmwareSet, kind, peakingTime, detectorType) to a staged
// file.
func (r *Resolver) Resolve(ctx context.Context, fs *graph.FirmwareSet, kind graph.FirmwareKind, peakingTime float64, detectorType string, overrideDefaults *graph.Defaults) (Resolved, error) {
	pt := peakingTime
	if isGlobalKind(kind) {
		pt = NominalGlobalPeakingTime
	}

	var resolved Resolved
	var err error
	switch fs.Mode {
	case graph.ModeListed:
		resolved, err = r.resolveListed(fs, kind, pt)
	case graph.ModeArchive:
		resolved, err = r.resolveArchive(ctx, fs, kind, pt, detectorType)
	default:
		return Resolved{}, herr.Newf(herr.MissingFirm, "firmware set %s has no populated mode", fs.Alias)
	}

	if err != nil {
		if isGlobalKind(kind) {
			r.Log.Infof("firmware kind %v not present in set %s (product does not use it): %v", kind, fs.Alias, err)
			return Resolved{}, herr.Wrapf(herr.OpenFile, err, "firmware kind %v absent in set %s", kind, fs.Alias)
		}
		return Resolved{}, err
	}
	return resolved, nil
}

func (r *Resolver) resolveListed(fs *graph.FirmwareSet, kind graph.FirmwareKind, peakingTime float64) (Resolved, error) {
	if kind == graph.Mmu {
		if fs.MMUPath == "" {
			return Resolved{}, herr.Newf(herr.OpenFile, "firmware set %s has no MMU path", fs.Alias)
		}
		return Resolved{StagedPath: fs.MMUPath, RawName: fs.MMUPath}, nil
	}

	v, err := fs.VariantFor(peakingTime)
	if err != nil {
		return Resolved{}, err
	}

	path, err := pathForKind(v, kind)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{StagedPath: path, RawName: path}, nil
}

func pathForKind(v *graph.FirmwareVariant, kind graph.FirmwareKind) (string, error) {
	switch kind {
	case graph.Fippi, graph.FippiA:
		if v.Fippi == "" {
			return "", herr.Newf(herr.OpenFile, "PTRR %d has no fippi path", v.PTRR)
		}
		return v.Fippi, nil
	case graph.UserFippi:
		if v.UserFippi == "" {
			return "", herr.Newf(herr.OpenFile, "PTRR %d has no user_fippi path", v.PTRR)
		}
		return v.UserFippi, nil
	case graph.Dsp, graph.SystemDsp:
		if v.Dsp == "" {
			return "", herr.Newf(herr.OpenFile, "PTRR %d has no dsp path", v.PTRR)
		}
		return v.Dsp, nil
	case graph.UserDsp:
		if v.UserDsp == "" {
			return "", herr.Newf(herr.OpenFile, "PTRR %d has no user_dsp path", v.PTRR)
		}
		return v.UserDsp, nil
	case graph.SystemFpga:
		if v.SystemFPGA == "" {
			return "", herr.Newf(herr.OpenFile, "PTRR %d has no system_fpga path", v.PTRR)
		}
		return v.SystemFPGA, nil
	case graph.SystemFippi:
		if v.Fippi == "" {
			return "", herr.Newf(herr.OpenFile, "PTRR %d has no system fippi path", v.PTRR)
		}
		return v.Fippi, nil
	default:
		return "", herr.Newf(herr.UnknownFirm, "unhandled firmware kind %v", kind)
	}
}

func kindName(kind graph.FirmwareKind) string {
	switch kind {
	case graph.Fippi:
		return "fippi"
	case graph.UserFippi:
		return "user_fippi"
	case graph.Dsp:
		return "dsp"
	case graph.UserDsp:
		return "user_dsp"
	case graph.Mmu:
		return "mmu"
	case graph.SystemFpga:
		return "system_fpga"
	case graph.SystemDsp:
		return "system_dsp"
	case graph.SystemFippi:
		return "system_fippi"
	case graph.FippiA:
		return "fippi_a"
	default:
		return "unknown"
	}
}

func (r *Resolver) resolveArchive(ctx context.Context, fs *graph.FirmwareSet, kind graph.FirmwareKind, peakingTime float64, detectorType string) (Resolved, error) {
	if r.Archive == nil {
		return Resolved{}, herr.New(herr.NoSupportFirm, "no FirmwareArchive capability configured")
	}
	tempDir := fs.TempPath
	if tempDir == "" {
		tempDir = r.Archive.TempPath()
	}
	if tempDir == "" {
		return Resolved{}, herr.Newf(herr.NoTmpPath, "firmware set %s has no temp path", fs.Alias)
	}

	staged, raw, err := r.Archive.Resolve(ctx, fs.ArchivePath, tempDir, kindName(kind), peakingTime, detectorType, fs.Keywords)
	if err != nil {
		return Resolved{}, herr.Wrapf(herr.OpenFile, err, "resolving %s from archive %s", kindName(kind), fs.ArchivePath)
	}
	return Resolved{StagedPath: staged, RawName: raw}, nil
}

// Variants returns fs's listed-mode PTRR table in sorted order, for CLI
// diagnostics.
func (r *Resolver) Variants(fs *graph.FirmwareSet) []*graph.FirmwareVariant {
	fs.SortVariants()
	return fs.Variants
}

// FilterInfo returns the [peakint_offset, peaksam_offset] pair for a
// firmware set at peakingTime, overlaid with any Defaults override named
// "peakint_offset_ptrrN"/"peaksam_offset_ptrrN" (listed mode) or
// "peakint_offset"/"peaksam_offset" (archive mode).
func (r *Resolver) FilterInfo(ctx context.Context, fs *graph.FirmwareSet, peakingTime float64, detectorType string, overrides *graph.Defaults) ([]uint16, error) {
	var base []uint16
	var suffix string

	switch fs.Mode {
	case graph.ModeListed:
		v, err := fs.VariantFor(peakingTime)
		if err != nil {
			return nil, err
		}
		base = append([]uint16(nil), v.FilterInfo...)
		suffix = fmt.Sprintf("_ptrr%d", v.PTRR)
	case graph.ModeArchive:
		if r.Archive == nil {
			return nil, herr.New(herr.NoSupportFirm, "no FirmwareArchive capability configured")
		}
		info, err := r.Archive.FilterInfo(ctx, fs.ArchivePath, peakingTime, detectorType)
		if err != nil {
			return nil, herr.Wrap(herr.OpenFile, err, "reading archive filter info")
		}
		base = info
		suffix = ""
	default:
		return nil, herr.Newf(herr.MissingFirm, "firmware set %s has no populated mode", fs.Alias)
	}

	if overrides == nil {
		return base, nil
	}
	if v, err := overrides.Get("peakint_offset" + suffix); err == nil && len(base) > 0 {
		base[0] = uint16(v)
	}
	if v, err := overrides.Get("peaksam_offset" + suffix); err == nil && len(base) > 1 {
		base[1] = uint16(v)
	}
	return base, nil
}
