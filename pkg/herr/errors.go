// Package herr defines the tagged error kind shared by every layer of the
// library. Every fallible operation in the core returns an *Error (or nil);
// no layer does string-based error dispatch.
package herr

import "fmt"

// Kind tags an error with the taxonomy from the library's error design.
// Callers use errors.Is against a Kind-wrapping sentinel, or inspect
// Kind() on an *Error, to decide whether a failure is recoverable.
type Kind int

const (
	// I/O
	Open Kind = iota
	IO
	InitializePort
	ClosePort
	BadIOName
	UnknownBaud

	// DSP / FiPPI
	DspLoad
	DspSleep
	DspAccess
	DspParamBounds
	NoSymbol
	Timeout
	FpgaTimeout
	Checksum
	BadBit
	RunActive
	InvalidString
	Unimplemented
	MemoryLength
	MemoryBlkSize
	UnknownMem
	UnknownFpga
	ApplyStatus
	InvalidLength
	NoSca
	FpgaCrc
	UnknownReg
	OpenFile
	RewriteFailure

	// Configuration
	BadSystemItem
	MaxModules
	NoDetChan
	NoIOChan
	NoModChan
	Initialize
	UnknownBtype
	BadChannel
	Null
	MalformedFile
	UnknownCT
	AliasExists
	AliasSize
	NoAlias
	BadValue
	BadName
	BadType
	InfiniteLoop
	FirmBoth
	PTROverlap
	MissingFirm
	MissingPol
	MissingGain
	MissingType
	NoChannels
	InvalidDetChan
	BinMismatch
	SCAOOR
	MaxSCAs

	// Acquisition-value
	UnknownValue
	ThreshOOR
	BinsOOR
	GainOOR
	SlowlenOOR
	FastlenOOR
	FastgapOOR
	FastfilterOOR
	MaxwidthOOR
	PresetValueOOR
	UnknownPreset
	ClockSpeed
	IncompleteDefaults
	BadPSLArgs
	BadFilter
	NoRemove
	FipOOR
	NoSupportFirm
	UnknownFirm
	MissingInterface
	MissingAddress
	InvalidNumchans
	NoTmpPath
	NoFilename
	NullFirmware
	LookingPTR
	BadPTR
	BadIndex
	NullAlias
	NullName
	NullValue
	NullInfo

	// Host
	NoMem
	OSApi

	// Log
	LogLevel
)

var kindNames = map[Kind]string{
	Open: "Open", IO: "IO", InitializePort: "InitializePort", ClosePort: "ClosePort",
	BadIOName: "BadIOName", UnknownBaud: "UnknownBaud",
	DspLoad: "DspLoad", DspSleep: "DspSleep", DspAccess: "DspAccess",
	DspParamBounds: "DspParamBounds", NoSymbol: "NoSymbol", Timeout: "Timeout",
	FpgaTimeout: "FpgaTimeout", Checksum: "Checksum", BadBit: "BadBit",
	RunActive: "RunActive", InvalidString: "InvalidString", Unimplemented: "Unimplemented",
	MemoryLength: "MemoryLength", MemoryBlkSize: "MemoryBlkSize", UnknownMem: "UnknownMem",
	UnknownFpga: "UnknownFpga", ApplyStatus: "ApplyStatus", InvalidLength: "InvalidLength",
	NoSca: "NoSca", FpgaCrc: "FpgaCrc", UnknownReg: "UnknownReg", OpenFile: "OpenFile",
	RewriteFailure: "RewriteFailure",
	BadSystemItem:  "BadSystemItem", MaxModules: "MaxModules", NoDetChan: "NoDetChan",
	NoIOChan: "NoIOChan", NoModChan: "NoModChan", Initialize: "Initialize",
	UnknownBtype: "UnknownBtype", BadChannel: "BadChannel", Null: "Null",
	MalformedFile: "MalformedFile", UnknownCT: "UnknownCT", AliasExists: "AliasExists",
	AliasSize: "AliasSize", NoAlias: "NoAlias", BadValue: "BadValue", BadName: "BadName",
	BadType: "BadType", InfiniteLoop: "InfiniteLoop", FirmBoth: "FirmBoth",
	PTROverlap: "PTROverlap", MissingFirm: "MissingFirm", MissingPol: "MissingPol",
	MissingGain: "MissingGain", MissingType: "MissingType", NoChannels: "NoChannels",
	InvalidDetChan: "InvalidDetChan", BinMismatch: "BinMismatch", SCAOOR: "SCAOOR",
	MaxSCAs: "MaxSCAs",
	UnknownValue:   "UnknownValue", ThreshOOR: "ThreshOOR", BinsOOR: "BinsOOR",
	GainOOR: "GainOOR", SlowlenOOR: "SlowlenOOR", FastlenOOR: "FastlenOOR",
	FastgapOOR: "FastgapOOR", FastfilterOOR: "FastfilterOOR", MaxwidthOOR: "MaxwidthOOR",
	PresetValueOOR: "PresetValueOOR", UnknownPreset: "UnknownPreset", ClockSpeed: "ClockSpeed",
	IncompleteDefaults: "IncompleteDefaults", BadPSLArgs: "BadPSLArgs", BadFilter: "BadFilter",
	NoRemove: "NoRemove", FipOOR: "FipOOR", NoSupportFirm: "NoSupportFirm",
	UnknownFirm: "UnknownFirm", MissingInterface: "MissingInterface", MissingAddress: "MissingAddress",
	InvalidNumchans: "InvalidNumchans", NoTmpPath: "NoTmpPath", NoFilename: "NoFilename",
	NullFirmware: "NullFirmware", LookingPTR: "LookingPTR", BadPTR: "BadPTR",
	BadIndex: "BadIndex", NullAlias: "NullAlias", NullName: "NullName", NullValue: "NullValue",
	NullInfo: "NullInfo",
	NoMem:    "NoMem", OSApi: "OSApi",
	LogLevel: "LogLevel",
}

// String returns the symbolic name of the kind (e.g. "ThreshOOR").
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the error type returned by every layer of the library. Its Kind
// determines whether a caller may recover; its message is diagnostic only.
type Error struct {
	kind    Kind
	message string
	cause   error
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, message string) *Error {
	return &Error{kind: kind, message: message}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error that wraps a lower-layer cause, preserving the
// chain for errors.Is/errors.As while still tagging a Kind for dispatch.
func Wrap(kind Kind, cause error, message string) *Error {
	return &Error{kind: kind, message: message, cause: cause}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{kind: kind, message: fmt.Sprintf(format, args...), cause: cause}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.kind, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.kind, e.message)
}

// Unwrap exposes the wrapped cause so errors.Is/errors.As compose across
// layers without string matching.
func (e *Error) Unwrap() error { return e.cause }

// Kind returns the tag used for recovery decisions.
func (e *Error) Kind() Kind { return e.kind }

// Is lets errors.Is(err, herr.New(herr.ThreshOOR, "")) match purely on Kind,
// which is how callers probe for a specific failure without caring about
// the diagnostic message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.kind == t.kind
}

// Of reports the Kind of err if it is (or wraps) an *Error, and whether one
// was found.
func Of(err error) (Kind, bool) {
	var e *Error
	if as(err, &e) {
		return e.kind, true
	}
	return 0, false
}

// as avoids importing errors just for this one call site pattern used by Of.
func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
