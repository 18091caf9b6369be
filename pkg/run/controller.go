// Package run implements run control: starting and stopping acquisition
// across a logical-channel handle, and the special-run family used for
// board diagnostics and capture tasks.
package run

import (
	"context"
	"fmt"
	"time"

	"github.com/xiallc/handel-go/pkg/capability"
	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/hlog"
)

// DriverLookup resolves the ProductDriver bound to a Module's product
// type (mirrors the same small interface in pkg/acquisition and
// pkg/system; kept local to avoid a cross-package import cycle).
type DriverLookup func(productType string) (capability.ProductDriver, error)

// captureTaskNames are special runs that stream data while active and
// must be read before they are stopped, since stopping releases the
// capture buffer.
var captureTaskNames = map[string]bool{
	"baseline_history": true,
	"adc_trace":        true,
	"external_memory":  true,
}

// PollInterval bounds how often Controller re-checks run_active while
// waiting for a run to settle.
const PollInterval = 5 * time.Millisecond

// Controller implements the run-control and special-run contract over a
// logical-channel handle, fanning each call out to every Single channel
// the handle reaches.
type Controller struct {
	Graph   *graph.Graph
	Drivers DriverLookup
	Log     *hlog.Logger
}

func (c *Controller) log() *hlog.Logger {
	if c.Log == nil {
		return hlog.Discard()
	}
	return c.Log
}

func (c *Controller) driverFor(m *graph.Module) (capability.ProductDriver, error) {
	if c.Drivers == nil {
		return nil, herr.New(herr.UnknownBtype, "no driver registry configured")
	}
	return c.Drivers(m.ProductType)
}

// byModule groups a handle's member physical channels by owning module,
// preserving each module's first-seen channel order.
func (c *Controller) byModule(handle int) (map[string][]int, []string, error) {
	members, err := c.Graph.Channels.Members(handle)
	if err != nil {
		return nil, nil, err
	}
	grouped := make(map[string][]int)
	var order []string
	for _, logical := range members {
		m, physChan, err := c.Graph.ModuleForLogical(logical)
		if err != nil {
			return nil, nil, err
		}
		if _, ok := grouped[m.Alias]; !ok {
			order = append(order, m.Alias)
		}
		grouped[m.Alias] = append(grouped[m.Alias], physChan)
	}
	return grouped, order, nil
}

// StartRun starts acquisition on every channel a handle reaches. A module
// flagged IsMultichannel starts with one broadcast call; a channel
// already running is left untouched (silent success).
func (c *Controller) StartRun(ctx context.Context, handle int, resume bool) error {
	grouped, order, err := c.byModule(handle)
	if err != nil {
		return err
	}
	for _, alias := range order {
		m, err := c.Graph.Modules.Get(alias)
		if err != nil {
			return err
		}
		driver, err := c.driverFor(m)
		if err != nil {
			return err
		}
		if m.IsMultichannel {
			if m.RunActive != 0 {
				continue
			}
			first := grouped[alias][0]
			d, err := c.Graph.ResolveDefaults(m, first)
			if err != nil {
				return err
			}
			if err := driver.StartRun(ctx, first, resume, d, m); err != nil {
				return herr.Wrapf(herr.RunActive, err, "starting run on module %s", alias)
			}
			m.SetAllRunActive(true)
			continue
		}
		for _, physChan := range grouped[alias] {
			if m.IsRunActive(physChan) {
				continue
			}
			d, err := c.Graph.ResolveDefaults(m, physChan)
			if err != nil {
				return err
			}
			if err := driver.StartRun(ctx, physChan, resume, d, m); err != nil {
				return herr.Wrapf(herr.RunActive, err, "starting run on module %s channel %d", alias, physChan)
			}
			m.SetRunActive(physChan, true)
		}
	}
	return nil
}

// StopRun stops acquisition on every channel a handle reaches, mirroring
// StartRun's multichannel broadcast and already-stopped silence.
func (c *Controller) StopRun(ctx context.Context, handle int) error {
	grouped, order, err := c.byModule(handle)
	if err != nil {
		return err
	}
	for _, alias := range order {
		m, err := c.Graph.Modules.Get(alias)
		if err != nil {
			return err
		}
		driver, err := c.driverFor(m)
		if err != nil {
			return err
		}
		if m.IsMultichannel {
			if m.RunActive == 0 {
				continue
			}
			first := grouped[alias][0]
			if err := driver.StopRun(ctx, first, m); err != nil {
				return herr.Wrapf(herr.RunActive, err, "stopping run on module %s", alias)
			}
			m.SetAllRunActive(false)
			continue
		}
		for _, physChan := range grouped[alias] {
			if !m.IsRunActive(physChan) {
				continue
			}
			if err := driver.StopRun(ctx, physChan, m); err != nil {
				return herr.Wrapf(herr.RunActive, err, "stopping run on module %s channel %d", alias, physChan)
			}
			m.SetRunActive(physChan, false)
		}
	}
	return nil
}

// WaitIdle polls run_active on every channel a handle reaches until it
// reads zero or ctx is done, at PollInterval.
func (c *Controller) WaitIdle(ctx context.Context, handle int) error {
	grouped, order, err := c.byModule(handle)
	if err != nil {
		return err
	}
	for _, alias := range order {
		m, err := c.Graph.Modules.Get(alias)
		if err != nil {
			return err
		}
		driver, err := c.driverFor(m)
		if err != nil {
			return err
		}
		for _, physChan := range grouped[alias] {
			d, err := c.Graph.ResolveDefaults(m, physChan)
			if err != nil {
				return err
			}
			for {
				active, err := driver.GetRunData(ctx, physChan, "run_active", d, m)
				if err != nil {
					return err
				}
				if active == 0 {
					break
				}
				select {
				case <-ctx.Done():
					return herr.Wrap(herr.Timeout, ctx.Err(), "waiting for run to idle")
				case <-time.After(PollInterval):
				}
			}
		}
	}
	return nil
}

func (c *Controller) firstMember(handle int) (*graph.Module, int, error) {
	members, err := c.Graph.Channels.Members(handle)
	if err != nil {
		return nil, 0, err
	}
	if len(members) == 0 {
		return nil, 0, herr.Newf(herr.BadChannel, "logical channel %d has no members", handle)
	}
	return c.Graph.ModuleForLogical(members[0])
}

// DoSpecialRun starts a board-specific special run (e.g. a calibration
// sweep or a capture task) on a handle's first member channel. Capture tasks remain running until a matching GetSpecialRunData
// call for "<name>_stop" is issued.
func (c *Controller) DoSpecialRun(ctx context.Context, handle int, name string, info []float64) error {
	m, physChan, err := c.firstMember(handle)
	if err != nil {
		return err
	}
	det, detChan, err := c.Graph.ResolveDetector(m, physChan)
	if err != nil {
		return err
	}
	d, err := c.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return err
	}
	driver, err := c.driverFor(m)
	if err != nil {
		return err
	}
	return driver.DoSpecialRun(ctx, physChan, name, info, d, det, detChan)
}

// GetSpecialRunData reads one value produced by a special run.
func (c *Controller) GetSpecialRunData(ctx context.Context, handle int, name string) (float64, error) {
	m, physChan, err := c.firstMember(handle)
	if err != nil {
		return 0, err
	}
	d, err := c.Graph.ResolveDefaults(m, physChan)
	if err != nil {
		return 0, err
	}
	driver, err := c.driverFor(m)
	if err != nil {
		return 0, err
	}
	return driver.GetSpecialRunData(ctx, physChan, name, d)
}

// RunCaptureTask performs a full capture-task cycle: start, poll until
// the driver reports it idle, read every requested element, and stop —
// read-before-stop, since stopping releases the capture buffer.
func (c *Controller) RunCaptureTask(ctx context.Context, handle int, name string, info []float64, length int) ([]float64, error) {
	if !captureTaskNames[name] {
		return nil, herr.Newf(herr.UnknownCT, "%q is not a capture task", name)
	}
	if err := c.DoSpecialRun(ctx, handle, name, info); err != nil {
		return nil, err
	}
	for {
		active, err := c.GetSpecialRunData(ctx, handle, name+"_active")
		if err != nil {
			return nil, err
		}
		if active == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, herr.Wrap(herr.Timeout, ctx.Err(), "waiting for capture task")
		case <-time.After(PollInterval):
		}
	}

	data := make([]float64, length)
	for i := 0; i < length; i++ {
		v, err := c.GetSpecialRunData(ctx, handle, fmt.Sprintf("%s_value_%d", name, i))
		if err != nil {
			return nil, err
		}
		data[i] = v
	}

	if _, err := c.GetSpecialRunData(ctx, handle, name+"_stop"); err != nil {
		return data, err
	}
	return data, nil
}
