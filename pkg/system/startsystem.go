// Package system implements StartSystem: the one-shot validation and
// firmware-emit pass that turns a built configuration graph into a
// downloaded, ready-to-setup hardware state.
package system

import (
	"context"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/firmware"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
)

// DriverLookup resolves the ProductDriver bound to a Module's product
// type (mirrors pkg/acquisition.DriverLookup; kept as a separate type so
// this package does not import acquisition).
type DriverLookup func(productType string) (capability.ProductDriver, error)

// firmwareKinds is the fixed download order: FiPPI before DSP, global
// kinds last since they are module-wide rather than per-channel.
var firmwareKinds = []graph.FirmwareKind{
	graph.Fippi,
	graph.UserFippi,
	graph.Dsp,
	graph.UserDsp,
	graph.Mmu,
	graph.SystemFpga,
	graph.SystemDsp,
	graph.SystemFippi,
}

// Starter runs StartSystem over a Graph.
type Starter struct {
	Graph    *graph.Graph
	Drivers  DriverLookup
	Resolver *firmware.Resolver
	Log      *hlog.Logger
}

func (s *Starter) log() *hlog.Logger {
	if s.Log == nil {
		return hlog.Discard()
	}
	return s.Log
}

// StartSystem validates the entire configuration graph and downloads
// firmware to every active channel.
//
//  1. Validate every FirmwareSet (mode consistency, PTRR sort/overlap,
//     required images).
//  2. Validate every Detector (polarity/gain/type completeness).
//  3. Validate the logical-channel graph (no cycles).
//  4. Per module: ProductDriver.ValidateModule and ValidateDefaults for
//     every bound channel's Defaults bag.
//  5. Per active channel: resolve and download every firmware kind the
//     module's driver reports via CurrentFirmware, skipping a kind only
//     when it is legitimately absent from the set (global kinds the
//     product doesn't use).
func (s *Starter) StartSystem(ctx context.Context) error {
	if err := s.validateFirmwareSets(); err != nil {
		return err
	}
	if err := s.validateDetectors(); err != nil {
		return err
	}
	if err := s.Graph.Channels.Validate(); err != nil {
		return err
	}
	if err := s.validateModules(); err != nil {
		return err
	}
	return s.emitFirmware(ctx)
}

func (s *Starter) validateFirmwareSets() error {
	for _, alias := range s.Graph.FirmwareSets.Aliases() {
		fs, err := s.Graph.FirmwareSets.Get(alias)
		if err != nil {
			return err
		}
		if err := fs.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Starter) validateDetectors() error {
	for _, alias := range s.Graph.Detectors.Aliases() {
		det, err := s.Graph.Detectors.Get(alias)
		if err != nil {
			return err
		}
		if err := det.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Starter) validateModules() error {
	for _, alias := range s.Graph.Modules.Aliases() {
		m, err := s.Graph.Modules.Get(alias)
		if err != nil {
			return err
		}
		driver, err := s.driverFor(m)
		if err != nil {
			return err
		}
		if err := driver.ValidateModule(m); err != nil {
			return err
		}
		for _, physChan := range m.ActiveChannels() {
			d, err := s.Graph.ResolveDefaults(m, physChan)
			if err != nil {
				return err
			}
			if err := driver.ValidateDefaults(d); err != nil {
				return err
			}
			required := make([]string, 0, driver.NumDefaults())
			for i := 0; i < driver.NumDefaults(); i++ {
				name, err := driver.DefaultName(i)
				if err != nil {
					return err
				}
				required = append(required, name)
			}
			if err := d.RequireAll(required); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Starter) emitFirmware(ctx context.Context) error {
	for _, alias := range s.Graph.Modules.Aliases() {
		m, err := s.Graph.Modules.Get(alias)
		if err != nil {
			return err
		}
		driver, err := s.driverFor(m)
		if err != nil {
			return err
		}
		for _, physChan := range m.ActiveChannels() {
			if err := s.emitChannel(ctx, m, physChan, driver); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Starter) emitChannel(ctx context.Context, m *graph.Module, physChan int, driver capability.ProductDriver) error {
	fs, err := s.Graph.ResolveFirmwareSet(m, physChan)
	if err != nil {
		return err
	}
	det, _, err := s.Graph.ResolveDetector(m, physChan)
	if err != nil {
		return err
	}
	d, err := s.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return err
	}
	peakingTime, err := d.Get("peaking_time")
	if err != nil {
		peakingTime = firmware.NominalGlobalPeakingTime
	}
	detType := "reset"
	if det.Type == graph.DetectorRCFeedback {
		detType = "rc_feedback"
	}

	cur := &m.Channels[physChan].Current
	for _, kind := range firmwareKinds {
		res, err := s.Resolver.Resolve(ctx, fs, kind, peakingTime, detType, d)
		if err != nil {
			if k, ok := herr.Of(err); ok && k == herr.OpenFile {
				// Kind legitimately absent from this set; not every
				// product uses every slot.
				continue
			}
			return err
		}
		if !cur.Set(kind, res.RawName) {
			continue
		}
		if err := driver.DownloadFirmware(ctx, physChan, kind, res.StagedPath, m, res.RawName, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Starter) driverFor(m *graph.Module) (capability.ProductDriver, error) {
	if s.Drivers == nil {
		return nil, herr.New(herr.UnknownBtype, "no driver registry configured")
	}
	return s.Drivers(m.ProductType)
}
