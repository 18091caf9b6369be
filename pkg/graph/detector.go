package graph

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xiallc/handel-go/pkg/herr"
)

// Polarity is the preamp output polarity for one detector channel.
type Polarity int

const (
	PolarityUnset Polarity = iota
	PolarityPositive
	PolarityNegative
)

// DetectorType selects which physical meaning type_value carries: reset
// delay (µs) for reset-preamp detectors, decay time (µs) for RC-feedback
// detectors.
type DetectorType int

const (
	DetectorUnknown DetectorType = iota
	DetectorReset
	DetectorRCFeedback
)

const (
	gainMin = 0.001
	gainMax = 100.0
)

// Detector is a physical detector description shared by one or more
// Module channel bindings.
type Detector struct {
	Alias           string
	NumberOfChannels int
	Polarity        []Polarity
	Gain            []float64
	Type            DetectorType
	TypeValue       []float64 // reset delay (µs) or decay time (µs), per channel
}

// NewDetector creates an empty Detector; number_of_channels must be set
// via AddItem before any per-channel field.
func NewDetector(alias string) *Detector {
	return &Detector{Alias: alias, Type: DetectorUnknown}
}

// AddItem sets a named field, following the "number_of_channels",
// "type", "type_value", "channel{n}_gain", "channel{n}_polarity" item
// vocabulary.
func (d *Detector) AddItem(name string, value any) error {
	switch {
	case name == "number_of_channels":
		n, err := toInt(value)
		if err != nil {
			return herr.Wrap(herr.BadValue, err, "number_of_channels")
		}
		if n < 1 {
			return herr.Newf(herr.BadValue, "number_of_channels must be >= 1, got %d", n)
		}
		d.NumberOfChannels = n
		d.Polarity = make([]Polarity, n)
		d.Gain = make([]float64, n)
		d.TypeValue = make([]float64, n)
		return nil

	case name == "type":
		s, _ := value.(string)
		switch s {
		case "reset":
			d.Type = DetectorReset
		case "rc_feedback":
			d.Type = DetectorRCFeedback
		default:
			return herr.Newf(herr.BadValue, "unknown detector type %q", s)
		}
		return nil

	case name == "type_value":
		f, err := toFloat(value)
		if err != nil {
			return herr.Wrap(herr.BadValue, err, "type_value")
		}
		for i := range d.TypeValue {
			d.TypeValue[i] = f
		}
		return nil

	case strings.HasPrefix(name, "channel") && strings.HasSuffix(name, "_gain"):
		idx, err := channelIndex(name, "_gain")
		if err != nil {
			return err
		}
		if idx >= len(d.Gain) {
			return herr.Newf(herr.InvalidDetChan, "channel %d out of range for detector %s", idx, d.Alias)
		}
		f, err := toFloat(value)
		if err != nil {
			return herr.Wrap(herr.BadValue, err, name)
		}
		if f < gainMin || f > gainMax {
			return herr.Newf(herr.MissingGain, "gain %.6f out of range [%.3f,%.3f]", f, gainMin, gainMax)
		}
		d.Gain[idx] = f
		return nil

	case strings.HasPrefix(name, "channel") && strings.HasSuffix(name, "_polarity"):
		idx, err := channelIndex(name, "_polarity")
		if err != nil {
			return err
		}
		if idx >= len(d.Polarity) {
			return herr.Newf(herr.InvalidDetChan, "channel %d out of range for detector %s", idx, d.Alias)
		}
		s, _ := value.(string)
		switch s {
		case "pos", "+", "positive":
			d.Polarity[idx] = PolarityPositive
		case "neg", "-", "negative":
			d.Polarity[idx] = PolarityNegative
		default:
			return herr.Newf(herr.BadValue, "unknown polarity %q", s)
		}
		return nil

	default:
		return herr.Newf(herr.BadName, "unknown detector item %q", name)
	}
}

// GetItem reads back a named field using the same vocabulary as AddItem.
func (d *Detector) GetItem(name string) (any, error) {
	switch {
	case name == "number_of_channels":
		return d.NumberOfChannels, nil
	case name == "type":
		switch d.Type {
		case DetectorReset:
			return "reset", nil
		case DetectorRCFeedback:
			return "rc_feedback", nil
		default:
			return "", herr.New(herr.MissingType, "detector type not set")
		}
	case name == "type_value":
		if len(d.TypeValue) == 0 {
			return nil, herr.Newf(herr.NoChannels, "detector %s has no channels configured", d.Alias)
		}
		return d.TypeValue[0], nil
	case strings.HasPrefix(name, "channel") && strings.HasSuffix(name, "_gain"):
		idx, err := channelIndex(name, "_gain")
		if err != nil {
			return nil, err
		}
		if idx >= len(d.Gain) {
			return nil, herr.Newf(herr.InvalidDetChan, "channel %d out of range", idx)
		}
		return d.Gain[idx], nil
	case strings.HasPrefix(name, "channel") && strings.HasSuffix(name, "_polarity"):
		idx, err := channelIndex(name, "_polarity")
		if err != nil {
			return nil, err
		}
		if idx >= len(d.Polarity) {
			return nil, herr.Newf(herr.InvalidDetChan, "channel %d out of range", idx)
		}
		return d.Polarity[idx], nil
	default:
		return nil, herr.Newf(herr.BadName, "unknown detector item %q", name)
	}
}

// Validate checks the invariants required before a Detector may appear in
// a Module binding / before StartSystem: full polarity and gain arrays,
// and a known type.
func (d *Detector) Validate() error {
	if d.NumberOfChannels <= 0 {
		return herr.Newf(herr.NoChannels, "detector %s has no channels configured", d.Alias)
	}
	if len(d.Polarity) != d.NumberOfChannels || len(d.Gain) != d.NumberOfChannels {
		return herr.Newf(herr.MissingPol, "detector %s channel arrays incomplete", d.Alias)
	}
	for i, p := range d.Polarity {
		if p == PolarityUnset {
			return herr.Newf(herr.MissingPol, "detector %s channel %d has no polarity", d.Alias, i)
		}
	}
	for i, g := range d.Gain {
		if g < gainMin || g > gainMax {
			return herr.Newf(herr.MissingGain, "detector %s channel %d gain %.6f out of range", d.Alias, i, g)
		}
	}
	if d.Type == DetectorUnknown {
		return herr.Newf(herr.MissingType, "detector %s has unknown type", d.Alias)
	}
	return nil
}

func channelIndex(name, suffix string) (int, error) {
	body := strings.TrimPrefix(strings.TrimSuffix(name, suffix), "channel")
	idx, err := strconv.Atoi(body)
	if err != nil {
		return 0, herr.Wrapf(herr.BadName, err, "malformed channel item %q", name)
	}
	return idx, nil
}

func toInt(v any) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case float64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(t)
		return n, err
	default:
		return 0, fmt.Errorf("cannot convert %T to int", v)
	}
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case string:
		return strconv.ParseFloat(t, 64)
	default:
		return 0, fmt.Errorf("cannot convert %T to float64", v)
	}
}
