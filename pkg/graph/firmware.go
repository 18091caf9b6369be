package graph

import "github.com/xiallc/handel-go/pkg/herr"

// FirmwareKind names one of the firmware file classes a resolver can
// produce.
type FirmwareKind int

const (
	Fippi FirmwareKind = iota
	UserFippi
	Dsp
	UserDsp
	Mmu
	SystemFpga
	SystemDsp
	SystemFippi
	FippiA
)

// FirmwareVariant is one PTRR (peaking-time range reference) entry within
// a listed-mode FirmwareSet.
type FirmwareVariant struct {
	PTRR         uint
	MinPtime     float64 // µs
	MaxPtime     float64 // µs
	Fippi        string
	UserFippi    string
	Dsp          string
	UserDsp      string
	SystemFPGA   string
	FilterInfo   []uint16 // [peakint_offset, peaksam_offset, ...]
}

// Covers reports whether peakingTime falls within [MinPtime, MaxPtime].
func (v *FirmwareVariant) Covers(peakingTime float64) bool {
	return peakingTime >= v.MinPtime && peakingTime <= v.MaxPtime
}

// Validate checks that the variant carries at least one FiPPI kind and a
// DSP image.
func (v *FirmwareVariant) Validate() error {
	if v.Dsp == "" && v.UserDsp == "" {
		return herr.Newf(herr.MissingFirm, "PTRR %d has no DSP image", v.PTRR)
	}
	if v.Fippi == "" && v.UserFippi == "" {
		return herr.Newf(herr.MissingFirm, "PTRR %d has no FiPPI image", v.PTRR)
	}
	return nil
}

// FirmwareMode distinguishes a FirmwareSet's two populated-field shapes.
type FirmwareMode int

const (
	ModeUnset FirmwareMode = iota
	ModeArchive
	ModeListed
)

// FirmwareSet is a named collection of firmware variants (listed mode) or
// a pointer into a single multi-firmware archive (archive mode). Exactly
// one mode is populated.
type FirmwareSet struct {
	Alias string
	Mode  FirmwareMode

	// Archive mode.
	ArchivePath string
	Keywords    []string
	TempPath    string

	// Listed mode.
	MMUPath  string
	Variants []*FirmwareVariant
}

// NewFirmwareSet creates an empty, mode-less FirmwareSet.
func NewFirmwareSet(alias string) *FirmwareSet {
	return &FirmwareSet{Alias: alias}
}

// SetArchive populates archive mode. It fails with FirmBoth if listed-mode
// fields are already populated.
func (fs *FirmwareSet) SetArchive(path, tempPath string, keywords []string) error {
	if fs.Mode == ModeListed {
		return herr.Newf(herr.FirmBoth, "firmware set %s already has listed-mode variants", fs.Alias)
	}
	fs.Mode = ModeArchive
	fs.ArchivePath = path
	fs.TempPath = tempPath
	fs.Keywords = keywords
	return nil
}

// AddVariant appends a PTRR to listed mode, rejecting a PTRR number that
// is already present with BadPTR. It does not look at peaking-time ranges:
// sorting and the overlap check happen in Validate at StartSystem, so a
// set under incremental construction is never rejected mid-build.
func (fs *FirmwareSet) AddVariant(v *FirmwareVariant) error {
	if fs.Mode == ModeArchive {
		return herr.Newf(herr.FirmBoth, "firmware set %s is archive-mode", fs.Alias)
	}
	fs.Mode = ModeListed
	for _, existing := range fs.Variants {
		if existing.PTRR == v.PTRR {
			return herr.Newf(herr.BadPTR, "PTRR %d already present in firmware set %s", v.PTRR, fs.Alias)
		}
	}
	fs.Variants = append(fs.Variants, v)
	return nil
}

// SortVariants stable-sorts the listed-mode variants by MinPtime, using
// insertion sort as the original does — the variant
// list is always small (single digits) so this is a deliberate readability
// choice, not a performance compromise.
func (fs *FirmwareSet) SortVariants() {
	for i := 1; i < len(fs.Variants); i++ {
		v := fs.Variants[i]
		j := i - 1
		for j >= 0 && fs.Variants[j].MinPtime > v.MinPtime {
			fs.Variants[j+1] = fs.Variants[j]
			j--
		}
		fs.Variants[j+1] = v
	}
}

// CheckOverlap reports PTROverlap if any two adjacent (post-sort) variants
// have overlapping peaking-time ranges.
func (fs *FirmwareSet) CheckOverlap() error {
	for i := 1; i < len(fs.Variants); i++ {
		prev, cur := fs.Variants[i-1], fs.Variants[i]
		if cur.MinPtime <= prev.MaxPtime {
			return herr.Newf(herr.PTROverlap, "firmware set %s: PTRR %d [%.3f,%.3f] overlaps PTRR %d [%.3f,%.3f]",
				fs.Alias, prev.PTRR, prev.MinPtime, prev.MaxPtime, cur.PTRR, cur.MinPtime, cur.MaxPtime)
		}
	}
	return nil
}

// Validate enforces exactly one mode, and, in listed mode, sorted
// non-overlapping variants with required images.
func (fs *FirmwareSet) Validate() error {
	switch fs.Mode {
	case ModeArchive:
		if fs.ArchivePath == "" {
			return herr.Newf(herr.MissingFirm, "firmware set %s has no archive path", fs.Alias)
		}
		if len(fs.Variants) > 0 {
			return herr.Newf(herr.FirmBoth, "firmware set %s has both archive and listed variants", fs.Alias)
		}
		return nil
	case ModeListed:
		fs.SortVariants()
		if err := fs.CheckOverlap(); err != nil {
			return err
		}
		for _, v := range fs.Variants {
			if err := v.Validate(); err != nil {
				return err
			}
		}
		return nil
	default:
		return herr.Newf(herr.MissingFirm, "firmware set %s has neither archive nor listed variants", fs.Alias)
	}
}

// VariantFor returns the first variant (in sorted order) whose range
// covers peakingTime, or BadValue if none does.
func (fs *FirmwareSet) VariantFor(peakingTime float64) (*FirmwareVariant, error) {
	for _, v := range fs.Variants {
		if v.Covers(peakingTime) {
			return v, nil
		}
	}
	return nil, herr.Newf(herr.BadValue, "no PTRR in firmware set %s covers peaking time %.3f", fs.Alias, peakingTime)
}
