package types

import "fmt"

// Format identifies a persisted data product family. Each format has its own
// dataset shape and its own manager; the filename prefix is part of the
// on-disk contract.
type Format int

const (
	FormatRaw Format = iota
	FormatChannel
	FormatBeamformed
	FormatCorrelation
	FormatStationBeam
)

// String returns a human-readable name for the format.
func (f Format) String() string {
	switch f {
	case FormatRaw:
		return "raw"
	case FormatChannel:
		return "channel"
	case FormatBeamformed:
		return "beamformed"
	case FormatCorrelation:
		return "correlation"
	case FormatStationBeam:
		return "stationbeam"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// Prefix returns the filename prefix for the format.
func (f Format) Prefix() string {
	return f.String() + "_"
}

// TypeTag returns the value persisted in the metadata "type" field.
func (f Format) TypeTag() string {
	return f.String()
}

// ParseFormatPrefix maps a filename prefix (without the trailing underscore)
// back to its Format.
func ParseFormatPrefix(s string) (Format, bool) {
	switch s {
	case "raw":
		return FormatRaw, true
	case "channel":
		return FormatChannel, true
	case "beamformed":
		return FormatBeamformed, true
	case "correlation":
		return FormatCorrelation, true
	case "stationbeam":
		return FormatStationBeam, true
	default:
		return 0, false
	}
}

// Mode identifies the acquisition mode encoded in filenames. ModeNone
// contributes no filename component.
type Mode int

const (
	ModeNone Mode = iota
	ModeBurst
	ModeContinuous
	ModeIntegrated
)

// String returns a human-readable name for the mode.
func (m Mode) String() string {
	switch m {
	case ModeNone:
		return ""
	case ModeBurst:
		return "burst"
	case ModeContinuous:
		return "cont"
	case ModeIntegrated:
		return "integ"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Prefix returns the filename component for the mode, empty for ModeNone.
func (m Mode) Prefix() string {
	if m == ModeNone {
		return ""
	}
	return m.String() + "_"
}

// ParseModePrefix maps a filename mode component (without the trailing
// underscore) back to its Mode.
func ParseModePrefix(s string) (Mode, bool) {
	switch s {
	case "":
		return ModeNone, true
	case "burst":
		return ModeBurst, true
	case "cont":
		return ModeContinuous, true
	case "integ":
		return ModeIntegrated, true
	default:
		return 0, false
	}
}
