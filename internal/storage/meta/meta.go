// Package meta implements the root metadata record attached to every
// container: a set of typed attributes encoded as a compact binary payload.
//
// The integrity rule is strict: a record that is missing any mandatory field
// is rejected with ErrIntegrity and never partially trusted. The single
// exception is the "tsamp" field, which older containers were written
// without and which therefore may be absent.
package meta

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/xtxerr/beamstore/internal/errors"
)

// Canonical field names. Which of these are mandatory depends on the format.
const (
	FieldTimestamp = "timestamp"
	FieldDateTime  = "date_time"
	FieldNSamples  = "n_samples"
	FieldNBlocks   = "n_blocks"
	FieldType      = "type"
	FieldDataType  = "data_type"
	FieldTsStart   = "ts_start"
	FieldTsEnd     = "ts_end"
	FieldTsamp     = "tsamp"

	FieldTileID    = "tile_id"
	FieldChannelID = "channel_id"
	FieldStationID = "station_id"

	FieldNAntennas  = "n_antennas"
	FieldNPols      = "n_pols"
	FieldNChans     = "n_chans"
	FieldNSubbands  = "n_subbands"
	FieldNBaselines = "n_baselines"
	FieldNStokes    = "n_stokes"
	FieldNBeams     = "n_beams"
)

// Kind identifies the wire type of an attribute value.
type Kind byte

const (
	KindFloat Kind = iota + 1
	KindInt
	KindString
)

// Value is a typed attribute value.
type Value struct {
	Kind Kind
	F    float64
	I    int64
	S    string
}

// Float wraps a float64 attribute.
func Float(v float64) Value { return Value{Kind: KindFloat, F: v} }

// Int wraps an integer attribute.
func Int(v int64) Value { return Value{Kind: KindInt, I: v} }

// String wraps a string attribute.
func String(v string) Value { return Value{Kind: KindString, S: v} }

// Fields is the attribute set of one metadata record.
type Fields map[string]Value

// Float returns a float field, accepting integer-typed values for
// compatibility with records written by older tools.
func (f Fields) Float(name string) (float64, error) {
	v, ok := f[name]
	if !ok {
		return 0, errors.Integrityf("metadata field %s missing", name)
	}
	switch v.Kind {
	case KindFloat:
		return v.F, nil
	case KindInt:
		return float64(v.I), nil
	default:
		return 0, errors.Integrityf("metadata field %s is not numeric", name)
	}
}

// Int returns an integer field.
func (f Fields) Int(name string) (int64, error) {
	v, ok := f[name]
	if !ok {
		return 0, errors.Integrityf("metadata field %s missing", name)
	}
	if v.Kind != KindInt {
		return 0, errors.Integrityf("metadata field %s is not an integer", name)
	}
	return v.I, nil
}

// Str returns a string field.
func (f Fields) Str(name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.Integrityf("metadata field %s missing", name)
	}
	if v.Kind != KindString {
		return "", errors.Integrityf("metadata field %s is not a string", name)
	}
	return v.S, nil
}

// CheckIntegrity verifies that every expected field is present. The tsamp
// field is exempt for backward compatibility. Missing fields are reported
// together so one load failure names them all.
func CheckIntegrity(f Fields, expected []string) error {
	var missing []string
	for _, name := range expected {
		if name == FieldTsamp {
			continue
		}
		if _, ok := f[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.Integrityf("metadata record missing mandatory fields %v", missing)
	}
	return nil
}

// Attribute encoding (binary, little-endian), per attribute:
//   - Name length (2 bytes) + name
//   - Kind (1 byte)
//   - Value: 8 bytes for float/int, or length (4 bytes) + bytes for string
// The payload starts with the attribute count (4 bytes). Attributes are
// sorted by name so the payload is deterministic.

// Encode serializes the attribute set.
func Encode(f Fields) []byte {
	names := make([]string, 0, len(f))
	for name := range f {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := make([]byte, 0, 64*len(f))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(f)))
	for _, name := range names {
		v := f[name]
		buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name)))
		buf = append(buf, name...)
		buf = append(buf, byte(v.Kind))
		switch v.Kind {
		case KindFloat:
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v.F))
		case KindInt:
			buf = binary.LittleEndian.AppendUint64(buf, uint64(v.I))
		case KindString:
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(v.S)))
			buf = append(buf, v.S...)
		}
	}
	return buf
}

// Decode parses a serialized attribute set.
func Decode(data []byte) (Fields, error) {
	if len(data) < 4 {
		return nil, errors.Integrityf("metadata payload too short")
	}
	count := int(binary.LittleEndian.Uint32(data[0:4]))
	offset := 4

	f := make(Fields, count)
	for i := 0; i < count; i++ {
		name, next, err := readName(data, offset)
		if err != nil {
			return nil, errors.Integrityf("metadata attribute %d: %v", i, err)
		}
		offset = next

		if offset >= len(data) {
			return nil, errors.Integrityf("metadata attribute %s: truncated kind", name)
		}
		kind := Kind(data[offset])
		offset++

		switch kind {
		case KindFloat:
			if offset+8 > len(data) {
				return nil, errors.Integrityf("metadata attribute %s: truncated value", name)
			}
			f[name] = Float(math.Float64frombits(binary.LittleEndian.Uint64(data[offset:])))
			offset += 8
		case KindInt:
			if offset+8 > len(data) {
				return nil, errors.Integrityf("metadata attribute %s: truncated value", name)
			}
			f[name] = Int(int64(binary.LittleEndian.Uint64(data[offset:])))
			offset += 8
		case KindString:
			if offset+4 > len(data) {
				return nil, errors.Integrityf("metadata attribute %s: truncated length", name)
			}
			length := int(binary.LittleEndian.Uint32(data[offset:]))
			offset += 4
			if offset+length > len(data) {
				return nil, errors.Integrityf("metadata attribute %s: truncated string", name)
			}
			f[name] = String(string(data[offset : offset+length]))
			offset += length
		default:
			return nil, errors.Integrityf("metadata attribute %s: unknown kind %d", name, kind)
		}
	}
	return f, nil
}

func readName(data []byte, offset int) (string, int, error) {
	if offset+2 > len(data) {
		return "", offset, fmt.Errorf("truncated name length")
	}
	length := int(binary.LittleEndian.Uint16(data[offset:]))
	offset += 2
	if offset+length > len(data) {
		return "", offset, fmt.Errorf("truncated name")
	}
	return string(data[offset : offset+length]), offset + length, nil
}
