// Package native describes the boundary with an ONNX inference engine.
//
// An Engine is driven through opaque handles in the order
//
//	model data -> profile table builder -> profile table -> optimize ->
//	model builder -> model -> run
//
// and every handle it returns must be released with the matching Delete
// method exactly once. Deleting a zero handle, or one that was already
// deleted, does nothing.
package native

import "unsafe"

// Handle is an opaque reference to an object owned by an Engine.
type Handle uintptr

type (
	ModelData           Handle
	ProfileTableBuilder Handle
	ProfileTable        Handle
	ModelBuilder        Handle
	Model               Handle
)

// Kind names a handle type. It is used for accounting and metrics labels.
type Kind string

const (
	KindModelData           Kind = "model_data"
	KindProfileTableBuilder Kind = "variable_profile_table_builder"
	KindProfileTable        Kind = "variable_profile_table"
	KindModelBuilder        Kind = "model_builder"
	KindModel               Kind = "model"
)

// Kinds lists every handle kind in pipeline order.
var Kinds = []Kind{KindModelData, KindProfileTableBuilder, KindProfileTable, KindModelBuilder, KindModel}

// Buffer is a flat typed memory region of Len elements.
type Buffer struct {
	DType DType
	Data  unsafe.Pointer
	Len   int
}

// Bytes returns the size of the region in bytes.
func (b Buffer) Bytes() int { return b.Len * b.DType.Size() }

// Engine is the handle based API of a native inference engine.
type Engine interface {
	MakeModelDataFromONNX(path string) (ModelData, error)
	DeleteModelData(md ModelData)

	MakeVariableProfileTableBuilder() (ProfileTableBuilder, error)
	AddInputProfile(b ProfileTableBuilder, name string, dtype DType, dims []int32) error
	AddOutputName(b ProfileTableBuilder, name string) error
	BuildVariableProfileTable(b ProfileTableBuilder, md ModelData) (ProfileTable, error)
	DeleteVariableProfileTableBuilder(b ProfileTableBuilder)

	ProfileTableDims(t ProfileTable, name string) ([]int32, error)
	ProfileTableDType(t ProfileTable, name string) (DType, error)
	DeleteVariableProfileTable(t ProfileTable)

	OptimizeModelData(md ModelData, t ProfileTable) error

	MakeModelBuilder(t ProfileTable) (ModelBuilder, error)
	AttachExternalBuffer(b ModelBuilder, name string, buf Buffer) error
	BuildModel(b ModelBuilder, md ModelData, backend, config string) (Model, error)
	DeleteModelBuilder(b ModelBuilder)

	VariableBuffer(m Model, name string) (Buffer, error)
	VariableDimsSize(m Model, name string) (int32, error)
	VariableDimsAt(m Model, name string, i int32) (int32, error)
	VariableDType(m Model, name string) (DType, error)
	RunModel(m Model) error
	DeleteModel(m Model)
}

// ElementCount is the product of dims. It returns 0 for an empty shape.
func ElementCount(dims []int32) int {
	if len(dims) == 0 {
		return 0
	}
	n := 1
	for _, d := range dims {
		n *= int(d)
	}
	return n
}

// ValidDims reports whether dims is a non-empty shape of positive extents.
func ValidDims(dims []int32) bool {
	if len(dims) == 0 {
		return false
	}
	for _, d := range dims {
		if d <= 0 {
			return false
		}
	}
	return true
}

// ResolveDims fills the dynamic (non-positive) axes of a graph shape. A
// dynamic leading axis takes batch; any other dynamic axis is a
// DimensionMismatch.
func ResolveDims(name string, graph []int64, batch int32) ([]int32, error) {
	dims := make([]int32, len(graph))
	for i, d := range graph {
		switch {
		case d > 0:
			dims[i] = int32(d)
		case i == 0 && batch > 0:
			dims[i] = batch
		default:
			return nil, Errorf(StatusDimensionMismatch,
				"menoh dimension mismatch error: cannot resolve dynamic axis %d of %s", i, name)
		}
	}
	return dims, nil
}
