package graph

import "github.com/xiallc/handel-go/pkg/herr"

// DisabledChannel is the sentinel value for a physical Module channel
// slot that has no logical channel assigned.
const DisabledChannel = -1

// SCARange is one (low, high) single-channel-analyzer region of interest.
type SCARange struct {
	Low  int
	High int
}

// CurrentFirmware caches the raw filename last downloaded for each
// firmware kind on one Module channel, so repeated acquisition-value
// changes don't re-trigger identical downloads.
type CurrentFirmware struct {
	Fippi       string
	UserFippi   string
	Dsp         string
	UserDsp     string
	MMU         string
	SystemFPGA  string
	SystemFippi string
}

// Get returns the cached raw name for kind.
func (c *CurrentFirmware) Get(kind FirmwareKind) string {
	switch kind {
	case Fippi:
		return c.Fippi
	case UserFippi:
		return c.UserFippi
	case Dsp:
		return c.Dsp
	case UserDsp:
		return c.UserDsp
	case Mmu:
		return c.MMU
	case SystemFpga:
		return c.SystemFPGA
	case SystemFippi:
		return c.SystemFippi
	default:
		return ""
	}
}

// Set updates the cached raw name for kind and reports whether it changed
// (false means the driver should skip the download).
func (c *CurrentFirmware) Set(kind FirmwareKind, rawName string) (changed bool) {
	cur := c.Get(kind)
	if cur == rawName {
		return false
	}
	switch kind {
	case Fippi:
		c.Fippi = rawName
	case UserFippi:
		c.UserFippi = rawName
	case Dsp:
		c.Dsp = rawName
	case UserDsp:
		c.UserDsp = rawName
	case Mmu:
		c.MMU = rawName
	case SystemFpga:
		c.SystemFPGA = rawName
	case SystemFippi:
		c.SystemFippi = rawName
	}
	return true
}

// ModuleChannel is one physical channel slot of a Module.
type ModuleChannel struct {
	LogicalChannel   int // DisabledChannel if unused
	DetectorAlias    string
	DetectorChannel  int
	FirmwareSetAlias string
	DefaultsAlias    string
	SCAs             []SCARange
	Current          CurrentFirmware
}

// Module binds physical channels to detectors, firmware sets and defaults
// bags behind one transport, for one product type.
type Module struct {
	Alias            string
	ProductType      string
	Transport        Transport
	NumberOfChannels int
	Channels         []ModuleChannel
	IsMultichannel   bool
	IsSetup          bool
	RunActive        uint32 // bit i set => physical channel i running
}

// NewModule creates a Module with n channel slots, all disabled.
func NewModule(alias, productType string, n int) *Module {
	m := &Module{Alias: alias, ProductType: productType, NumberOfChannels: n}
	m.Channels = make([]ModuleChannel, n)
	for i := range m.Channels {
		m.Channels[i].LogicalChannel = DisabledChannel
		m.Channels[i].DetectorChannel = -1
	}
	return m
}

// ChannelByLogical finds the physical channel index bound to logical
// channel id, or an error if none is.
func (m *Module) ChannelByLogical(logical int) (int, error) {
	for i, c := range m.Channels {
		if c.LogicalChannel == logical {
			return i, nil
		}
	}
	return 0, herr.Newf(herr.NoDetChan, "module %s has no physical channel for logical id %d", m.Alias, logical)
}

// ActiveChannels returns the physical indices of channels that are bound
// to a logical channel (not DisabledChannel).
func (m *Module) ActiveChannels() []int {
	var out []int
	for i, c := range m.Channels {
		if c.LogicalChannel != DisabledChannel {
			out = append(out, i)
		}
	}
	return out
}

// SetRunActive sets or clears the run_active bit for a physical channel.
func (m *Module) SetRunActive(physChan int, active bool) {
	if active {
		m.RunActive |= 1 << uint(physChan)
	} else {
		m.RunActive &^= 1 << uint(physChan)
	}
}

// IsRunActive reports the run_active bit for a physical channel.
func (m *Module) IsRunActive(physChan int) bool {
	return m.RunActive&(1<<uint(physChan)) != 0
}

// SetAllRunActive broadcasts a run_active state to every channel of the
// module, modelling the start/stop semantics of a multichannel product
// that can only start or stop all of its channels together.
func (m *Module) SetAllRunActive(active bool) {
	for _, i := range m.ActiveChannels() {
		m.SetRunActive(i, active)
	}
}
