// Package setup implements UserSetup: the per-module, per-channel
// sequence that pushes a Defaults bag onto hardware after StartSystem has
// downloaded firmware.
package setup

import (
	"context"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
)

// DriverLookup resolves the ProductDriver bound to a Module's product
// type (mirrors pkg/acquisition.DriverLookup and pkg/system.DriverLookup;
// kept local to avoid a cross-package import cycle).
type DriverLookup func(productType string) (capability.ProductDriver, error)

// Sequencer runs UserSetup over a Graph. It also implements
// pkg/acquisition.Resetupper, so acquisition.Engine.Remove can restore
// coherence on one channel without importing this package.
type Sequencer struct {
	Graph   *graph.Graph
	Drivers DriverLookup
	Log     *hlog.Logger
}

func (s *Sequencer) log() *hlog.Logger {
	if s.Log == nil {
		return hlog.Discard()
	}
	return s.Log
}

func (s *Sequencer) driverFor(m *graph.Module) (capability.ProductDriver, error) {
	if s.Drivers == nil {
		return nil, herr.New(herr.UnknownBtype, "no driver registry configured")
	}
	return s.Drivers(m.ProductType)
}

// Run performs UserSetup across every module in the graph: the first
// active channel of each module gets the full bracketed setup, remaining
// channels are short-circuited once the module-wide state is already
// applied, and ModuleSetup runs exactly once per module.
func (s *Sequencer) Run(ctx context.Context) error {
	for _, alias := range s.Graph.Modules.Aliases() {
		m, err := s.Graph.Modules.Get(alias)
		if err != nil {
			return err
		}
		active := m.ActiveChannels()
		if len(active) == 0 {
			continue
		}
		driver, err := s.driverFor(m)
		if err != nil {
			return err
		}

		first := active[0]
		if err := s.setupChannel(ctx, m, first, driver, true); err != nil {
			return err
		}
		for _, physChan := range active[1:] {
			if err := s.setupChannel(ctx, m, physChan, driver, false); err != nil {
				return err
			}
		}

		if !m.IsSetup {
			d, err := s.Graph.ResolveDefaults(m, first)
			if err != nil {
				return err
			}
			if err := driver.ModuleSetup(ctx, first, d, m); err != nil {
				return err
			}
			m.IsSetup = true
		}
	}
	return nil
}

// UserSetupChannel runs the full bracketed setup for one channel,
// satisfying pkg/acquisition.Resetupper.
func (s *Sequencer) UserSetupChannel(ctx context.Context, m *graph.Module, physChan int) error {
	driver, err := s.driverFor(m)
	if err != nil {
		return err
	}
	return s.setupChannel(ctx, m, physChan, driver, true)
}

// setupChannel applies one channel's Defaults bag: driver.UserSetup seeds
// module-wide state, then every Defaults entry is re-applied in insertion
// order so dependent values (gain, thresholds, filter) settle in the
// order they were configured, bracketed by an apply run when withApply is
// set.
func (s *Sequencer) setupChannel(ctx context.Context, m *graph.Module, physChan int, driver capability.ProductDriver, withApply bool) error {
	det, detChan, err := s.Graph.ResolveDetector(m, physChan)
	if err != nil {
		return err
	}
	fs, err := s.Graph.ResolveFirmwareSet(m, physChan)
	if err != nil {
		return err
	}
	d, err := s.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return err
	}
	cur := &m.Channels[physChan].Current

	if err := driver.UserSetup(ctx, physChan, d, fs, cur, det.Type, det, detChan, m, physChan); err != nil {
		return err
	}

	if withApply {
		if err := s.applyRun(ctx, m, physChan, d, driver); err != nil {
			return err
		}
	}

	for _, entry := range d.Entries() {
		out := entry.CurrentValue
		if err := driver.SetAcquisitionValue(ctx, physChan, entry.Name, &out, d, fs, cur, det, detChan, m, physChan); err != nil {
			s.log().Warnf("user setup: channel %d default %q: %v", physChan, entry.Name, err)
			continue
		}
		d.Set(entry.Name, out)
	}

	if withApply {
		return s.applyRun(ctx, m, physChan, d, driver)
	}
	return nil
}

func (s *Sequencer) applyRun(ctx context.Context, m *graph.Module, physChan int, d *graph.Defaults, driver capability.ProductDriver) error {
	if !driver.RequiresApply() {
		return nil
	}
	if err := driver.StartRun(ctx, physChan, false, d, m); err != nil {
		return herr.Wrap(herr.ApplyStatus, err, "user setup apply: start")
	}
	if err := driver.StopRun(ctx, physChan, m); err != nil {
		return herr.Wrap(herr.ApplyStatus, err, "user setup apply: stop")
	}
	return nil
}
