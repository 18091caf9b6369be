package graph

import "github.com/xiallc/handel-go/pkg/herr"

// TransportKind names the interface kind of a Module's physical
// connection.
type TransportKind int

const (
	TransportUnset TransportKind = iota
	TransportEPP
	TransportUSB
	TransportUSB2
	TransportSerial
	TransportPXI
)

func (k TransportKind) String() string {
	switch k {
	case TransportEPP:
		return "epp"
	case TransportUSB:
		return "usb"
	case TransportUSB2:
		return "usb2"
	case TransportSerial:
		return "serial"
	case TransportPXI:
		return "pxi"
	default:
		return "unset"
	}
}

// NoDaisyChain is the "no chain" sentinel for Transport.DaisyChainID.
const NoDaisyChain = ^uint(0)

// Transport is the tagged-union transport binding of a Module.
type Transport struct {
	Kind TransportKind

	// epp / genericEPP
	EPPAddress   uint32
	DaisyChainID uint

	// usb / usb2
	DeviceNumber uint

	// serial
	ComPort    uint
	DeviceFile string
	BaudRate   uint

	// pxi
	Bus  byte
	Slot byte
}

// Validate checks that the fields required by Kind are populated.
func (t Transport) Validate() error {
	switch t.Kind {
	case TransportEPP:
		if t.EPPAddress == 0 {
			return herr.New(herr.MissingAddress, "epp transport requires epp_address")
		}
	case TransportUSB, TransportUSB2:
		// DeviceNumber 0 is a legal device index; nothing further to check.
	case TransportSerial:
		if t.ComPort == 0 && t.DeviceFile == "" {
			return herr.New(herr.MissingAddress, "serial transport requires com_port or device_file")
		}
		if t.BaudRate == 0 {
			return herr.New(herr.UnknownBaud, "serial transport requires baud_rate")
		}
	case TransportPXI:
		// any bus/slot value, including 0, is legal.
	default:
		return herr.New(herr.MissingInterface, "transport kind not set")
	}
	return nil
}
