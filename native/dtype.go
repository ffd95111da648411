package native

import (
	"fmt"
	"strings"
)

// DType is the element type of a variable buffer.
type DType int32

const (
	Float32 DType = iota
	Float16
	Float64
	Int8
	Int16
	Int32
	Int64
)

var dtypeNames = map[DType]string{
	Float32: "float32",
	Float16: "float16",
	Float64: "float64",
	Int8:    "int8",
	Int16:   "int16",
	Int32:   "int32",
	Int64:   "int64",
}

func (d DType) String() string {
	if name, ok := dtypeNames[d]; ok {
		return name
	}
	return fmt.Sprintf("dtype(%d)", int32(d))
}

// Size returns the width of one element in bytes, or 0 for an unknown dtype.
func (d DType) Size() int {
	switch d {
	case Int8:
		return 1
	case Float16, Int16:
		return 2
	case Float32, Int32:
		return 4
	case Float64, Int64:
		return 8
	default:
		return 0
	}
}

// Valid reports whether d is one of the declared element types.
func (d DType) Valid() bool {
	_, ok := dtypeNames[d]
	return ok
}

// IsFloat reports whether d holds floating point values.
func (d DType) IsFloat() bool {
	return d == Float32 || d == Float16 || d == Float64
}

// ParseDType accepts the canonical names plus the short aliases "float" and "double".
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "float":
		return Float32, nil
	case "float16", "half":
		return Float16, nil
	case "float64", "double":
		return Float64, nil
	case "int8":
		return Int8, nil
	case "int16":
		return Int16, nil
	case "int32":
		return Int32, nil
	case "int64":
		return Int64, nil
	}
	return 0, NewError(StatusInvalidDType, fmt.Sprintf("menoh invalid dtype error: %q", s))
}

func (d DType) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, NewError(StatusInvalidDType, fmt.Sprintf("menoh invalid dtype error: %s", d))
	}
	return []byte(d.String()), nil
}

func (d *DType) UnmarshalText(text []byte) error {
	v, err := ParseDType(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
