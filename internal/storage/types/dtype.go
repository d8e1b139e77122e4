package types

import "fmt"

// DataType identifies the element type of a dataset. The tag set is a
// closed enumeration; tags are persisted in container metadata and must not
// change meaning between releases.
type DataType int

const (
	// DataTypeComplex8 is a signed 8-bit complex sample, stored as a
	// two-field record {real int8, imag int8}. Tag: "complex".
	DataTypeComplex8 DataType = iota
	// DataTypeComplex64 is a single-precision complex sample
	// {real float32, imag float32}. Tag: "complex64".
	DataTypeComplex64
	DataTypeInt8
	DataTypeInt16
	DataTypeInt32
	DataTypeUint16
	DataTypeUint32
	DataTypeFloat32
	DataTypeFloat64
)

// Complex8 is the element layout for DataTypeComplex8.
type Complex8 struct {
	Real int8
	Imag int8
}

// String returns the persisted tag for the data type.
func (d DataType) String() string {
	switch d {
	case DataTypeComplex8:
		return "complex"
	case DataTypeComplex64:
		return "complex64"
	case DataTypeInt8:
		return "int8"
	case DataTypeInt16:
		return "int16"
	case DataTypeInt32:
		return "int32"
	case DataTypeUint16:
		return "uint16"
	case DataTypeUint32:
		return "uint32"
	case DataTypeFloat32:
		return "float32"
	case DataTypeFloat64:
		return "float64"
	default:
		return fmt.Sprintf("datatype(%d)", int(d))
	}
}

// Size returns the element size in bytes.
func (d DataType) Size() int {
	switch d {
	case DataTypeComplex8:
		return 2
	case DataTypeComplex64:
		return 8
	case DataTypeInt8:
		return 1
	case DataTypeInt16, DataTypeUint16:
		return 2
	case DataTypeInt32, DataTypeUint32, DataTypeFloat32:
		return 4
	case DataTypeFloat64:
		return 8
	default:
		return 0
	}
}

// ParseDataType maps a persisted tag back to its DataType.
func ParseDataType(tag string) (DataType, error) {
	switch tag {
	case "complex":
		return DataTypeComplex8, nil
	case "complex64":
		return DataTypeComplex64, nil
	case "int8":
		return DataTypeInt8, nil
	case "int16":
		return DataTypeInt16, nil
	case "int32":
		return DataTypeInt32, nil
	case "uint16":
		return DataTypeUint16, nil
	case "uint32":
		return DataTypeUint32, nil
	case "float32":
		return DataTypeFloat32, nil
	case "float64":
		return DataTypeFloat64, nil
	default:
		return 0, fmt.Errorf("unknown data type tag %q", tag)
	}
}
