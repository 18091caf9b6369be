package graph

import "github.com/xiallc/handel-go/pkg/herr"

// DefaultEntry is one named acquisition value or DSP symbol passthrough
// held by a Defaults bag, in insertion order.
type DefaultEntry struct {
	Name         string
	CurrentValue float64
	PendingValue float64
	HasPending   bool
	ReadOnly     bool
}

// Defaults is a named-value bag attached to one or more Module channels.
// Insertion order is load-bearing: it is the order UserSetup applies
// entries in.
type Defaults struct {
	Alias   string
	entries []DefaultEntry
	index   map[string]int
}

// NewDefaults creates an empty Defaults bag.
func NewDefaults(alias string) *Defaults {
	return &Defaults{Alias: alias, index: make(map[string]int)}
}

// Add inserts a new named value at the end of the insertion order. It
// fails with AliasExists if name is already present — use Set to modify.
func (d *Defaults) Add(name string, value float64) error {
	if _, ok := d.index[name]; ok {
		return herr.Newf(herr.AliasExists, "default %q already present", name)
	}
	d.index[name] = len(d.entries)
	d.entries = append(d.entries, DefaultEntry{Name: name, CurrentValue: value})
	return nil
}

// Set updates an existing entry's current value, or inserts it if absent.
func (d *Defaults) Set(name string, value float64) {
	if i, ok := d.index[name]; ok {
		d.entries[i].CurrentValue = value
		return
	}
	_ = d.Add(name, value)
}

// Get reads an entry's current value.
func (d *Defaults) Get(name string) (float64, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, herr.Newf(herr.UnknownValue, "default %q not present", name)
	}
	return d.entries[i].CurrentValue, nil
}

// Has reports whether name is present.
func (d *Defaults) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// SetReadOnly marks an entry read-only; the acquisition engine's get()
// falls back to the driver only for entries so marked.
func (d *Defaults) SetReadOnly(name string, readOnly bool) error {
	i, ok := d.index[name]
	if !ok {
		return herr.Newf(herr.UnknownValue, "default %q not present", name)
	}
	d.entries[i].ReadOnly = readOnly
	return nil
}

// IsReadOnly reports an entry's read-only flag.
func (d *Defaults) IsReadOnly(name string) bool {
	i, ok := d.index[name]
	return ok && d.entries[i].ReadOnly
}

// Remove drops an entry.
func (d *Defaults) Remove(name string) error {
	i, ok := d.index[name]
	if !ok {
		return herr.Newf(herr.NoRemove, "default %q not present", name)
	}
	d.entries = append(d.entries[:i], d.entries[i+1:]...)
	delete(d.index, name)
	for n, idx := range d.index {
		if idx > i {
			d.index[n] = idx - 1
		}
	}
	return nil
}

// Names returns every entry name in insertion order.
func (d *Defaults) Names() []string {
	out := make([]string, len(d.entries))
	for i, e := range d.entries {
		out[i] = e.Name
	}
	return out
}

// Entries returns the full ordered entry list, for UserSetup iteration.
func (d *Defaults) Entries() []DefaultEntry {
	out := make([]DefaultEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// RequireAll fails with IncompleteDefaults if any of names is absent,
// enforcing that every product-required default is present before a
// module can be started.
func (d *Defaults) RequireAll(names []string) error {
	for _, n := range names {
		if !d.Has(n) {
			return herr.Newf(herr.IncompleteDefaults, "defaults %s missing required value %q", d.Alias, n)
		}
	}
	return nil
}
