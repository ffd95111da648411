package onnx

import (
	"unsafe"

	"github.com/gomithril/menoh/native"
	ort "github.com/yalue/onnxruntime_go"
)

// dtypeOf maps an ONNX Runtime element type to a native dtype.
func dtypeOf(t ort.TensorElementDataType) (native.DType, bool) {
	switch t {
	case ort.TensorElementDataTypeFloat:
		return native.Float32, true
	case ort.TensorElementDataTypeFloat16:
		return native.Float16, true
	case ort.TensorElementDataTypeDouble:
		return native.Float64, true
	case ort.TensorElementDataTypeInt8:
		return native.Int8, true
	case ort.TensorElementDataTypeInt16:
		return native.Int16, true
	case ort.TensorElementDataTypeInt32:
		return native.Int32, true
	case ort.TensorElementDataTypeInt64:
		return native.Int64, true
	}
	return 0, false
}

func shapeOf(dims []int32) ort.Shape {
	s := make(ort.Shape, len(dims))
	for i, d := range dims {
		s[i] = int64(d)
	}
	return s
}

// newEmptyTensor allocates a runtime owned tensor.
func newEmptyTensor(dtype native.DType, dims []int32) (ort.Value, error) {
	shape := shapeOf(dims)
	switch dtype {
	case native.Float32:
		return value(ort.NewEmptyTensor[float32](shape))
	case native.Float64:
		return value(ort.NewEmptyTensor[float64](shape))
	case native.Int8:
		return value(ort.NewEmptyTensor[int8](shape))
	case native.Int16:
		return value(ort.NewEmptyTensor[int16](shape))
	case native.Int32:
		return value(ort.NewEmptyTensor[int32](shape))
	case native.Int64:
		return value(ort.NewEmptyTensor[int64](shape))
	}
	return nil, native.Errorf(native.StatusFailedToConfigureOperator,
		"menoh failed to configure operator error: cannot allocate %s tensor", dtype)
}

// wrapBuffer creates a tensor over caller owned memory. The runtime reads
// and writes buf in place.
func wrapBuffer(buf native.Buffer, dims []int32) (ort.Value, error) {
	shape := shapeOf(dims)
	switch buf.DType {
	case native.Float32:
		return value(ort.NewTensor(shape, unsafe.Slice((*float32)(buf.Data), buf.Len)))
	case native.Float64:
		return value(ort.NewTensor(shape, unsafe.Slice((*float64)(buf.Data), buf.Len)))
	case native.Int8:
		return value(ort.NewTensor(shape, unsafe.Slice((*int8)(buf.Data), buf.Len)))
	case native.Int16:
		return value(ort.NewTensor(shape, unsafe.Slice((*int16)(buf.Data), buf.Len)))
	case native.Int32:
		return value(ort.NewTensor(shape, unsafe.Slice((*int32)(buf.Data), buf.Len)))
	case native.Int64:
		return value(ort.NewTensor(shape, unsafe.Slice((*int64)(buf.Data), buf.Len)))
	}
	return nil, native.Errorf(native.StatusInvalidDType, "menoh invalid dtype error: %s", buf.DType)
}

func value[T ort.TensorData](t *ort.Tensor[T], err error) (ort.Value, error) {
	if err != nil {
		return nil, err
	}
	return t, nil
}

// bufferOf exposes the data of a tensor created by newEmptyTensor or wrapBuffer.
func bufferOf(v ort.Value, dtype native.DType) (native.Buffer, error) {
	var p unsafe.Pointer
	var n int
	switch t := v.(type) {
	case *ort.Tensor[float32]:
		p, n = dataOf(t.GetData())
	case *ort.Tensor[float64]:
		p, n = dataOf(t.GetData())
	case *ort.Tensor[int8]:
		p, n = dataOf(t.GetData())
	case *ort.Tensor[int16]:
		p, n = dataOf(t.GetData())
	case *ort.Tensor[int32]:
		p, n = dataOf(t.GetData())
	case *ort.Tensor[int64]:
		p, n = dataOf(t.GetData())
	default:
		return native.Buffer{}, native.Errorf(native.StatusInvalidDType, "menoh invalid dtype error: unexpected tensor %T", v)
	}
	return native.Buffer{DType: dtype, Data: p, Len: n}, nil
}

func dataOf[T any](data []T) (unsafe.Pointer, int) {
	if len(data) == 0 {
		return nil, 0
	}
	return unsafe.Pointer(&data[0]), len(data)
}
