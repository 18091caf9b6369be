// Package graph implements the persistent configuration object graph:
// Detectors, FirmwareSets, Modules and Defaults bags, interned by alias,
// plus the logical-channel forest clients address them through.
package graph

import (
	"strconv"
	"strings"

	"github.com/xiallc/handel-go/pkg/herr"
	"github.com/xiallc/handel-go/pkg/registry"
)

// Graph owns every registry and is the sole place cross-entity references
// are resolved — Module channel slots hold aliases, never pointers.
type Graph struct {
	Detectors    *registry.Registry[Detector]
	FirmwareSets *registry.Registry[FirmwareSet]
	Modules      *registry.Registry[Module]
	Defaults     *registry.Registry[Defaults]
	Channels     *Channels
}

// New creates an empty Graph (handel's init_handel()).
func New() *Graph {
	return &Graph{
		Detectors:    registry.New[Detector](),
		FirmwareSets: registry.New[FirmwareSet](),
		Modules:      registry.New[Module](),
		Defaults:     registry.New[Defaults](),
		Channels:     NewChannels(),
	}
}

// NewDetector interns a new empty Detector.
func (g *Graph) NewDetector(alias string) (*Detector, error) {
	d := NewDetector(alias)
	if err := g.Detectors.Add(alias, d); err != nil {
		return nil, err
	}
	return d, nil
}

// NewFirmwareSet interns a new empty FirmwareSet.
func (g *Graph) NewFirmwareSet(alias string) (*FirmwareSet, error) {
	fs := NewFirmwareSet(alias)
	if err := g.FirmwareSets.Add(alias, fs); err != nil {
		return nil, err
	}
	return fs, nil
}

// NewDefaults interns a new empty Defaults bag.
func (g *Graph) NewDefaults(alias string) (*Defaults, error) {
	d := NewDefaults(alias)
	if err := g.Defaults.Add(alias, d); err != nil {
		return nil, err
	}
	return d, nil
}

// NewModule interns a new Module with n channel slots and registers the
// Channels forest's Single nodes lazily as logical ids are assigned via
// BindChannel.
func (g *Graph) NewModule(alias, productType string, n int) (*Module, error) {
	m := NewModule(alias, productType, n)
	if err := g.Modules.Add(alias, m); err != nil {
		return nil, err
	}
	return m, nil
}

// BindChannel assigns a logical channel id to physical channel physChan
// of module m, enforcing the global logical-id-uniqueness invariant by registering the id in the Channels forest.
func (g *Graph) BindChannel(m *Module, physChan, logicalID int) error {
	if physChan < 0 || physChan >= len(m.Channels) {
		return herr.Newf(herr.BadChannel, "physical channel %d out of range for module %s", physChan, m.Alias)
	}
	if err := g.Channels.AddSingle(logicalID, m.Alias); err != nil {
		return herr.Wrapf(herr.BadChannel, err, "binding logical channel %d on module %s", logicalID, m.Alias)
	}
	m.Channels[physChan].LogicalChannel = logicalID
	return nil
}

// RemoveDetector detaches a Detector; fails with BadValue if any Module
// still references it.
func (g *Graph) RemoveDetector(alias string) error {
	for _, modAlias := range g.Modules.Aliases() {
		m, err := g.Modules.Get(modAlias)
		if err != nil || m == nil {
			continue
		}
		for _, ch := range m.Channels {
			if strings.EqualFold(ch.DetectorAlias, alias) {
				return herr.Newf(herr.BadValue, "detector %s is referenced by module %s", alias, m.Alias)
			}
		}
	}
	return g.Detectors.Remove(alias)
}

// ResolveDetector looks up the Detector bound to a Module's physical
// channel.
func (g *Graph) ResolveDetector(m *Module, physChan int) (*Detector, int, error) {
	if physChan < 0 || physChan >= len(m.Channels) {
		return nil, 0, herr.Newf(herr.BadChannel, "physical channel %d out of range for module %s", physChan, m.Alias)
	}
	ch := m.Channels[physChan]
	det, err := g.Detectors.Get(ch.DetectorAlias)
	if err != nil {
		return nil, 0, herr.Wrapf(herr.InvalidDetChan, err, "module %s channel %d", m.Alias, physChan)
	}
	return det, ch.DetectorChannel, nil
}

// ResolveFirmwareSet looks up the FirmwareSet bound to a Module's physical
// channel.
func (g *Graph) ResolveFirmwareSet(m *Module, physChan int) (*FirmwareSet, error) {
	if physChan < 0 || physChan >= len(m.Channels) {
		return nil, herr.Newf(herr.BadChannel, "physical channel %d out of range for module %s", physChan, m.Alias)
	}
	return g.FirmwareSets.Get(m.Channels[physChan].FirmwareSetAlias)
}

// ResolveDefaults looks up the Defaults bag bound to a Module's physical
// channel.
func (g *Graph) ResolveDefaults(m *Module, physChan int) (*Defaults, error) {
	if physChan < 0 || physChan >= len(m.Channels) {
		return nil, herr.Newf(herr.BadChannel, "physical channel %d out of range for module %s", physChan, m.Alias)
	}
	return g.Defaults.Get(m.Channels[physChan].DefaultsAlias)
}

// ModuleForLogical resolves a logical channel id to its owning Module and
// physical channel index.
func (g *Graph) ModuleForLogical(logicalID int) (*Module, int, error) {
	modAlias, err := g.Channels.ModuleOf(logicalID)
	if err != nil {
		return nil, 0, err
	}
	m, err := g.Modules.Get(modAlias)
	if err != nil {
		return nil, 0, herr.Wrapf(herr.NoModChan, err, "module %s for logical channel %d", modAlias, logicalID)
	}
	phys, err := m.ChannelByLogical(logicalID)
	if err != nil {
		return nil, 0, err
	}
	return m, phys, nil
}

// ParseInt is a small helper shared by config-source readers for "channel5"
// style item-name suffixes.
func ParseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, herr.Wrapf(herr.BadValue, err, "expected integer, got %q", s)
	}
	return n, nil
}
