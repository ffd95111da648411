package codec

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/gomithril/menoh/native"
)

// ErrLengthMismatch is returned when a host sequence does not have exactly
// one value per buffer element.
var ErrLengthMismatch = errors.New("buffer length mismatch")

// Number is any host numeric type accepted by Write.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

func unsupported(dtype native.DType) error {
	if dtype == native.Float16 {
		return native.Errorf(native.StatusInvalidDType, "menoh invalid dtype error: %s is not supported", dtype)
	}
	return native.Errorf(native.StatusInvalidDType, "menoh invalid dtype error: %s", dtype)
}

// Alloc returns a zeroed Go-owned buffer of n elements. The backing slice
// stays reachable through Buffer.Data for as long as the Buffer does.
func Alloc(dtype native.DType, n int) (native.Buffer, error) {
	if n <= 0 {
		return native.Buffer{}, native.Errorf(native.StatusUnsupportedInputDims,
			"menoh unsupported input dims error: buffer of %d elements", n)
	}
	var p unsafe.Pointer
	switch dtype {
	case native.Float32:
		p = unsafe.Pointer(&make([]float32, n)[0])
	case native.Float64:
		p = unsafe.Pointer(&make([]float64, n)[0])
	case native.Int8:
		p = unsafe.Pointer(&make([]int8, n)[0])
	case native.Int16:
		p = unsafe.Pointer(&make([]int16, n)[0])
	case native.Int32:
		p = unsafe.Pointer(&make([]int32, n)[0])
	case native.Int64:
		p = unsafe.Pointer(&make([]int64, n)[0])
	default:
		return native.Buffer{}, unsupported(dtype)
	}
	return native.Buffer{DType: dtype, Data: p, Len: n}, nil
}

// Write copies values into buf, converting each one to the buffer's element
// type with Go's conversion rules. Narrowing truncates; out of range values
// follow the platform cast.
func Write[T Number](buf native.Buffer, values []T) error {
	if !buf.DType.Valid() || buf.DType == native.Float16 {
		return unsupported(buf.DType)
	}
	if len(values) != buf.Len {
		return fmt.Errorf("%w: expected %d values, got %d", ErrLengthMismatch, buf.Len, len(values))
	}
	if buf.Len == 0 {
		return nil
	}
	switch buf.DType {
	case native.Float32:
		store(unsafe.Slice((*float32)(buf.Data), buf.Len), values)
	case native.Float64:
		store(unsafe.Slice((*float64)(buf.Data), buf.Len), values)
	case native.Int8:
		store(unsafe.Slice((*int8)(buf.Data), buf.Len), values)
	case native.Int16:
		store(unsafe.Slice((*int16)(buf.Data), buf.Len), values)
	case native.Int32:
		store(unsafe.Slice((*int32)(buf.Data), buf.Len), values)
	case native.Int64:
		store(unsafe.Slice((*int64)(buf.Data), buf.Len), values)
	}
	return nil
}

func store[D, S Number](dst []D, src []S) {
	for i, v := range src {
		dst[i] = D(v)
	}
}

// WriteAny is Write for a host slice whose type is only known at run time.
func WriteAny(buf native.Buffer, values any) error {
	switch v := values.(type) {
	case []float64:
		return Write(buf, v)
	case []float32:
		return Write(buf, v)
	case []int:
		return Write(buf, v)
	case []int64:
		return Write(buf, v)
	case []int32:
		return Write(buf, v)
	case []int16:
		return Write(buf, v)
	case []int8:
		return Write(buf, v)
	case []uint8:
		return Write(buf, v)
	case []uint16:
		return Write(buf, v)
	case []uint32:
		return Write(buf, v)
	case []uint64:
		return Write(buf, v)
	default:
		return fmt.Errorf("unsupported host values type %T", values)
	}
}

// Values is the host view of a buffer. Floating point buffers fill Floats,
// integer buffers fill Ints.
type Values struct {
	DType  native.DType
	Floats []float64
	Ints   []int64
}

func (v Values) Len() int {
	if v.DType.IsFloat() {
		return len(v.Floats)
	}
	return len(v.Ints)
}

// Float64s returns the values as float64 regardless of the source type.
func (v Values) Float64s() []float64 {
	if v.DType.IsFloat() {
		return v.Floats
	}
	out := make([]float64, len(v.Ints))
	for i, x := range v.Ints {
		out[i] = float64(x)
	}
	return out
}

// Read copies buf into host values.
func Read(buf native.Buffer) (Values, error) {
	out := Values{DType: buf.DType}
	switch buf.DType {
	case native.Float32:
		out.Floats = load[float64](unsafe.Slice((*float32)(buf.Data), buf.Len))
	case native.Float64:
		out.Floats = load[float64](unsafe.Slice((*float64)(buf.Data), buf.Len))
	case native.Int8:
		out.Ints = load[int64](unsafe.Slice((*int8)(buf.Data), buf.Len))
	case native.Int16:
		out.Ints = load[int64](unsafe.Slice((*int16)(buf.Data), buf.Len))
	case native.Int32:
		out.Ints = load[int64](unsafe.Slice((*int32)(buf.Data), buf.Len))
	case native.Int64:
		out.Ints = load[int64](unsafe.Slice((*int64)(buf.Data), buf.Len))
	default:
		return Values{}, unsupported(buf.DType)
	}
	return out, nil
}

func load[D, S Number](src []S) []D {
	dst := make([]D, len(src))
	for i, v := range src {
		dst[i] = D(v)
	}
	return dst
}

// ReadAs copies buf into a slice of T.
func ReadAs[T Number](buf native.Buffer) ([]T, error) {
	switch buf.DType {
	case native.Float32:
		return load[T](unsafe.Slice((*float32)(buf.Data), buf.Len)), nil
	case native.Float64:
		return load[T](unsafe.Slice((*float64)(buf.Data), buf.Len)), nil
	case native.Int8:
		return load[T](unsafe.Slice((*int8)(buf.Data), buf.Len)), nil
	case native.Int16:
		return load[T](unsafe.Slice((*int16)(buf.Data), buf.Len)), nil
	case native.Int32:
		return load[T](unsafe.Slice((*int32)(buf.Data), buf.Len)), nil
	case native.Int64:
		return load[T](unsafe.Slice((*int64)(buf.Data), buf.Len)), nil
	}
	return nil, unsupported(buf.DType)
}
