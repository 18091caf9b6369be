// Package capability declares the narrow interfaces the core depends on
// for everything it does not implement itself: the hardware transport,
// the firmware archive format, and product-specific DSP/physics behavior.
package capability

import (
	"context"
	"time"
)

// MemoryRegion names one of the driver-declared address spaces a
// memory-operation string can target.
type MemoryRegion string

const (
	RegionData     MemoryRegion = "data"
	RegionSpectrum MemoryRegion = "spectrum"
	RegionRegister MemoryRegion = "register"
)

// RunMode selects which physical channels a run-control call targets.
type RunMode int

const (
	RunSingle RunMode = iota
	RunBroadcast
)

// ControlTaskStatus is returned by PollControlTask.
type ControlTaskStatus int

const (
	ControlTaskBusy ControlTaskStatus = iota
	ControlTaskDone
)

// DeviceBus is the synchronous, blocking hardware transport capability
//. A single implementation is shared by every ProductDriver.
type DeviceBus interface {
	// Open establishes the bus connection described by kind/address (an
	// interface-kind-specific connection string; busdrv.USBBus takes a hex
	// "vid:pid" pair such as "0547:1002").
	Open(ctx context.Context, kind string, address string) error
	Close() error

	// ReadMemory/WriteMemory address one of RegionData/RegionSpectrum/
	// RegionRegister at addr, for len(data)/length bytes.
	ReadMemory(ctx context.Context, region MemoryRegion, addr uint32, length int) ([]byte, error)
	WriteMemory(ctx context.Context, region MemoryRegion, addr uint32, data []byte) error

	// ReadRegister/WriteRegister address a single named DSP/FiPPI register.
	ReadRegister(ctx context.Context, name string) (uint16, error)
	WriteRegister(ctx context.Context, name string, value uint16) error

	// RunControl starts/resumes/stops acquisition on physChan (or every
	// channel of the module, when mode is RunBroadcast).
	RunControl(ctx context.Context, physChan int, mode RunMode, resume bool, stop bool) error
	IsRunActive(ctx context.Context, physChan int) (bool, error)

	// Control-task lifecycle: start a numbered task with an
	// argument vector, poll for completion, read its result buffer, and
	// force-stop it (used by capture tasks).
	StartControlTask(ctx context.Context, physChan int, taskID int, args []byte) error
	PollControlTask(ctx context.Context, physChan int) (ControlTaskStatus, error)
	ReadControlTaskResult(ctx context.Context, physChan int, length int) ([]byte, error)
	StopControlTask(ctx context.Context, physChan int) error

	// DSP symbol table introspection.
	SymbolIndex(ctx context.Context, physChan int, name string) (int, error)
	SymbolName(ctx context.Context, physChan int, index int) (string, error)
	SymbolBounds(ctx context.Context, physChan int, name string) (lower, upper uint16, err error)
	ReadSymbol(ctx context.Context, physChan int, name string) (uint16, error)
	WriteSymbol(ctx context.Context, physChan int, name string, value uint16) error
	NumSymbols(ctx context.Context, physChan int) (int, error)

	// ClockTick returns the bus's free-running tick primitive, used by
	// poll loops to bound elapsed wait time without assuming wall-clock
	// granularity matches the device's.
	ClockTick(ctx context.Context) (time.Duration, error)

	// Alloc/Free bracket a bus-side memory allocation (e.g. a capture
	// buffer for trace/history special runs).
	Alloc(ctx context.Context, physChan int, length int) (addr uint32, err error)
	Free(ctx context.Context, physChan int, addr uint32) error
}

// FirmwareArchive resolves and stages firmware from a single multi-
// firmware archive.
type FirmwareArchive interface {
	// Resolve extracts (if needed) and returns the staged path plus a
	// canonical raw name stable across repeated extractions, for kind at
	// peakingTime/detectorType within archivePath, using tempDir as
	// scratch space.
	Resolve(ctx context.Context, archivePath, tempDir string, kind string, peakingTime float64, detectorType string, keywords []string) (stagedPath, rawName string, err error)

	// NumFilter and FilterInfo return the ordered filter-offset list
	// (e.g. [peakint_offset, peaksam_offset]) for a peaking time and
	// detector type.
	NumFilter(ctx context.Context, archivePath string, peakingTime float64, detectorType string) (int, error)
	FilterInfo(ctx context.Context, archivePath string, peakingTime float64, detectorType string) ([]uint16, error)

	// TempPath returns the default staging directory.
	TempPath() string
}
