package handel

import (
	"encoding/json"
	"os"

	"github.com/xiallc/handel-go/pkg/graph"
	"github.com/xiallc/handel-go/pkg/herr"
)

// jsonDump is the secondary save_system("json", ...) shape: a flat
// snapshot for tooling, not meant to be re-loaded.
type jsonDump struct {
	Detectors map[string]jsonDetector `json:"detectors"`
	Defaults  map[string]jsonDefaults `json:"defaults"`
	Modules   map[string]jsonModule   `json:"modules"`
}

type jsonDetector struct {
	NumberOfChannels int       `json:"number_of_channels"`
	Gain             []float64 `json:"gain"`
}

type jsonDefaults struct {
	Entries map[string]float64 `json:"entries"`
}

type jsonModule struct {
	ProductType      string `json:"product_type"`
	NumberOfChannels int    `json:"number_of_channels"`
	IsMultichannel   bool   `json:"is_multichannel"`
}

func saveJSON(path string, g *graph.Graph) error {
	dump := jsonDump{
		Detectors: make(map[string]jsonDetector),
		Defaults:  make(map[string]jsonDefaults),
		Modules:   make(map[string]jsonModule),
	}

	for _, alias := range g.Detectors.Aliases() {
		det, err := g.Detectors.Get(alias)
		if err != nil {
			return err
		}
		dump.Detectors[alias] = jsonDetector{NumberOfChannels: det.NumberOfChannels, Gain: det.Gain}
	}
	for _, alias := range g.Defaults.Aliases() {
		d, err := g.Defaults.Get(alias)
		if err != nil {
			return err
		}
		entries := make(map[string]float64)
		for _, e := range d.Entries() {
			entries[e.Name] = e.CurrentValue
		}
		dump.Defaults[alias] = jsonDefaults{Entries: entries}
	}
	for _, alias := range g.Modules.Aliases() {
		m, err := g.Modules.Get(alias)
		if err != nil {
			return err
		}
		dump.Modules[alias] = jsonModule{ProductType: m.ProductType, NumberOfChannels: m.NumberOfChannels, IsMultichannel: m.IsMultichannel}
	}

	data, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return herr.Wrap(herr.MalformedFile, err, "marshaling json dump")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return herr.Wrap(herr.OpenFile, err, "writing json dump")
	}
	return nil
}
