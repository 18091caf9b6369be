// Package iniconfig reads and writes the "handel_ini" persistence format:
// an INI file with one section per Detector, FirmwareSet, Defaults bag
// and Module, parsed with gopkg.in/ini.v1.
package iniconfig

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
)

const (
	detectorPrefix = "detector:"
	firmwarePrefix = "firmware:"
	defaultsPrefix = "defaults:"
	modulePrefix   = "module:"
)

// Load parses path and populates g, which must be freshly created.
func Load(path string, g *graph.Graph) error {
	f, err := ini.Load(path)
	if err != nil {
		return herr.Wrap(herr.MalformedFile, err, "loading handel_ini file")
	}

	for _, sec := range f.Sections() {
		switch {
		case strings.HasPrefix(sec.Name(), detectorPrefix):
			if err := loadDetector(g, strings.TrimPrefix(sec.Name(), detectorPrefix), sec); err != nil {
				return err
			}
		case strings.HasPrefix(sec.Name(), firmwarePrefix):
			if err := loadFirmwareSet(g, strings.TrimPrefix(sec.Name(), firmwarePrefix), sec); err != nil {
				return err
			}
		case strings.HasPrefix(sec.Name(), defaultsPrefix):
			if err := loadDefaults(g, strings.TrimPrefix(sec.Name(), defaultsPrefix), sec); err != nil {
				return err
			}
		}
	}
	for _, sec := range f.Sections() {
		if strings.HasPrefix(sec.Name(), modulePrefix) {
			if err := loadModule(g, strings.TrimPrefix(sec.Name(), modulePrefix), sec); err != nil {
				return err
			}
		}
	}
	return nil
}

func loadDetector(g *graph.Graph, alias string, sec *ini.Section) error {
	det, err := g.NewDetector(alias)
	if err != nil {
		return err
	}
	for _, key := range sec.Keys() {
		if err := det.AddItem(key.Name(), key.String()); err != nil {
			return err
		}
	}
	return det.Validate()
}

func loadFirmwareSet(g *graph.Graph, alias string, sec *ini.Section) error {
	fs, err := g.NewFirmwareSet(alias)
	if err != nil {
		return err
	}
	if sec.HasKey("archive_path") {
		keywords := strings.Split(sec.Key("keywords").String(), ",")
		return fs.SetArchive(sec.Key("archive_path").String(), sec.Key("temp_path").String(), keywords)
	}

	ptrrs := make(map[uint]*graph.FirmwareVariant)
	for _, key := range sec.Keys() {
		if !strings.HasPrefix(key.Name(), "ptrr") {
			if key.Name() == "mmu_path" {
				fs.MMUPath = key.String()
			}
			continue
		}
		rest := strings.TrimPrefix(key.Name(), "ptrr")
		parts := strings.SplitN(rest, "_", 2)
		n, err := strconv.Atoi(parts[0])
		if err != nil || len(parts) != 2 {
			continue
		}
		ptrr := uint(n)
		v, ok := ptrrs[ptrr]
		if !ok {
			v = &graph.FirmwareVariant{PTRR: ptrr}
			ptrrs[ptrr] = v
		}
		switch parts[1] {
		case "min":
			v.MinPtime, _ = key.Float64()
		case "max":
			v.MaxPtime, _ = key.Float64()
		case "fippi":
			v.Fippi = key.String()
		case "user_fippi":
			v.UserFippi = key.String()
		case "dsp":
			v.Dsp = key.String()
		case "user_dsp":
			v.UserDsp = key.String()
		case "system_fpga":
			v.SystemFPGA = key.String()
		case "filter_info":
			for _, s := range strings.Split(key.String(), ",") {
				n, err := strconv.Atoi(strings.TrimSpace(s))
				if err == nil {
					v.FilterInfo = append(v.FilterInfo, uint16(n))
				}
			}
		}
	}
	var order []uint
	for p := range ptrrs {
		order = append(order, p)
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	for _, p := range order {
		if err := fs.AddVariant(ptrrs[p]); err != nil {
			return err
		}
	}
	return nil
}

func loadDefaults(g *graph.Graph, alias string, sec *ini.Section) error {
	d, err := g.NewDefaults(alias)
	if err != nil {
		return err
	}
	for _, key := range sec.Keys() {
		v, err := key.Float64()
		if err != nil {
			return herr.Wrapf(herr.BadValue, err, "defaults %s key %s", alias, key.Name())
		}
		if err := d.Add(key.Name(), v); err != nil {
			return err
		}
	}
	return nil
}

func loadModule(g *graph.Graph, alias string, sec *ini.Section) error {
	n := sec.Key("number_of_channels").MustInt(1)
	m, err := g.NewModule(alias, sec.Key("product_type").String(), n)
	if err != nil {
		return err
	}
	if err := loadTransport(m, sec); err != nil {
		return err
	}
	m.IsMultichannel = sec.Key("is_multichannel").MustBool(false)

	for i := 0; i < n; i++ {
		prefix := fmt.Sprintf("channel%d_", i)
		if !sec.HasKey(prefix + "logical") {
			continue
		}
		logical := sec.Key(prefix + "logical").MustInt(graph.DisabledChannel)
		if err := g.BindChannel(m, i, logical); err != nil {
			return err
		}
		m.Channels[i].DetectorAlias = sec.Key(prefix + "detector").String()
		m.Channels[i].DetectorChannel = sec.Key(prefix + "detector_channel").MustInt(0)
		m.Channels[i].FirmwareSetAlias = sec.Key(prefix + "firmware").String()
		m.Channels[i].DefaultsAlias = sec.Key(prefix + "defaults").String()
	}
	return nil
}

func loadTransport(m *graph.Module, sec *ini.Section) error {
	var kind graph.TransportKind
	switch sec.Key("transport_kind").String() {
	case "usb":
		kind = graph.TransportUSB
	case "usb2":
		kind = graph.TransportUSB2
	case "epp":
		kind = graph.TransportEPP
	case "serial":
		kind = graph.TransportSerial
	case "pxi":
		kind = graph.TransportPXI
	default:
		kind = graph.TransportUnset
	}
	m.Transport = graph.Transport{
		Kind:         kind,
		EPPAddress:   uint32(sec.Key("transport_epp_address").MustUint(0)),
		DaisyChainID: graph.NoDaisyChain,
		DeviceNumber: uint(sec.Key("transport_device_number").MustUint(0)),
		ComPort:      uint(sec.Key("transport_com_port").MustUint(0)),
		DeviceFile:   sec.Key("transport_device_file").String(),
		BaudRate:     uint(sec.Key("transport_baud_rate").MustUint(0)),
		Bus:          byte(sec.Key("transport_bus").MustUint(0)),
		Slot:         byte(sec.Key("transport_slot").MustUint(0)),
	}
	if kind == graph.TransportUnset {
		return nil
	}
	return m.Transport.Validate()
}

// Save writes g to path in handel_ini format, readable by Load. It writes
// each Detector's channel count, per-channel gain and polarity, and type;
// every Defaults entry; and each Module's product type, channel count and
// per-channel logical id and detector, firmware and defaults aliases. It
// does not write FirmwareSets, detector type_value, Module transport
// bindings, is_multichannel or detector_channel, so those are lost across
// a Save/Load round trip.
func Save(path string, g *graph.Graph) error {
	f := ini.Empty()

	for _, alias := range g.Detectors.Aliases() {
		det, err := g.Detectors.Get(alias)
		if err != nil {
			return err
		}
		sec, err := f.NewSection(detectorPrefix + alias)
		if err != nil {
			return err
		}
		sec.NewKey("number_of_channels", strconv.Itoa(det.NumberOfChannels))
		for i := 0; i < det.NumberOfChannels; i++ {
			if i < len(det.Gain) {
				sec.NewKey(fmt.Sprintf("channel%d_gain", i), strconv.FormatFloat(det.Gain[i], 'g', -1, 64))
			}
			if i < len(det.Polarity) && det.Polarity[i] != graph.PolarityUnset {
				pol := "pos"
				if det.Polarity[i] == graph.PolarityNegative {
					pol = "neg"
				}
				sec.NewKey(fmt.Sprintf("channel%d_polarity", i), pol)
			}
		}
		if typ, err := det.GetItem("type"); err == nil {
			sec.NewKey("type", typ.(string))
		}
	}

	for _, alias := range g.Defaults.Aliases() {
		d, err := g.Defaults.Get(alias)
		if err != nil {
			return err
		}
		sec, err := f.NewSection(defaultsPrefix + alias)
		if err != nil {
			return err
		}
		for _, e := range d.Entries() {
			sec.NewKey(e.Name, strconv.FormatFloat(e.CurrentValue, 'g', -1, 64))
		}
	}

	for _, alias := range g.Modules.Aliases() {
		m, err := g.Modules.Get(alias)
		if err != nil {
			return err
		}
		sec, err := f.NewSection(modulePrefix + alias)
		if err != nil {
			return err
		}
		sec.NewKey("product_type", m.ProductType)
		sec.NewKey("number_of_channels", strconv.Itoa(m.NumberOfChannels))
		for i, ch := range m.Channels {
			if ch.LogicalChannel == graph.DisabledChannel {
				continue
			}
			p := fmt.Sprintf("channel%d_", i)
			sec.NewKey(p+"logical", strconv.Itoa(ch.LogicalChannel))
			sec.NewKey(p+"detector", ch.DetectorAlias)
			sec.NewKey(p+"firmware", ch.FirmwareSetAlias)
			sec.NewKey(p+"defaults", ch.DefaultsAlias)
		}
	}

	return f.SaveTo(path)
}
