package inference

import (
	"github.com/gomithril/menoh/native"
	"github.com/rs/zerolog/log"
)

// VariableProfileBuilder collects input profiles and output names. It is a
// plain Go value; the engine side builder exists only inside Build.
type VariableProfileBuilder struct {
	inputs  []VariableConfig
	dims    [][]int32
	outputs []string
}

func NewVariableProfileBuilder() *VariableProfileBuilder {
	return &VariableProfileBuilder{}
}

// DeclareInput adds an input. The shape must be non-empty with positive
// extents and the name must not already be an input.
func (b *VariableProfileBuilder) DeclareInput(name string, dtype native.DType, shape []uint32) error {
	if !dtype.Valid() {
		return native.Errorf(native.StatusInvalidDType, "menoh invalid dtype error: %s", dtype)
	}
	dims, ok := toDims(shape)
	if !ok {
		return native.Errorf(native.StatusUnsupportedInputDims, "menoh unsupported input dims error: %s has dims %v", name, shape)
	}
	for _, in := range b.inputs {
		if in.Name == name {
			return native.Errorf(native.StatusSameNamedVariableAlreadyExist, "menoh same named variable already exist error: %s", name)
		}
	}
	b.inputs = append(b.inputs, VariableConfig{Name: name, DType: dtype, Shape: append([]uint32(nil), shape...)})
	b.dims = append(b.dims, dims)
	return nil
}

// DeclareOutput adds an output name. A name may be both an input and an
// output.
func (b *VariableProfileBuilder) DeclareOutput(name string) error {
	for _, out := range b.outputs {
		if out == name {
			return native.Errorf(native.StatusSameNamedVariableAlreadyExist, "menoh same named variable already exist error: %s", name)
		}
	}
	b.outputs = append(b.outputs, name)
	return nil
}

// Build resolves the declarations against src. The engine side builder is
// released before Build returns, on every path.
func (b *VariableProfileBuilder) Build(src *ModelSource) (*VariableProfileTable, error) {
	md, err := src.acquire()
	if err != nil {
		return nil, err
	}
	defer src.release()

	e := src.engine
	h, err := e.MakeVariableProfileTableBuilder()
	if err != nil {
		return nil, err
	}
	defer e.DeleteVariableProfileTableBuilder(h)

	for i, in := range b.inputs {
		if err := e.AddInputProfile(h, in.Name, in.DType, b.dims[i]); err != nil {
			return nil, err
		}
	}
	for _, name := range b.outputs {
		if err := e.AddOutputName(h, name); err != nil {
			return nil, err
		}
	}
	th, err := e.BuildVariableProfileTable(h, md)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Str("path", src.path).
		Int("inputs", len(b.inputs)).
		Int("outputs", len(b.outputs)).
		Msg("variable profile table built")

	t := &VariableProfileTable{engine: e, handle: th, outputs: append([]string(nil), b.outputs...)}
	for _, in := range b.inputs {
		t.inputs = append(t.inputs, in.Name)
	}
	return t, nil
}

// VariableProfileTable is the resolved dtype and shape of every declared
// variable. Close it once every model that needs it is built.
type VariableProfileTable struct {
	engine  native.Engine
	handle  native.ProfileTable
	inputs  []string
	outputs []string
}

func (t *VariableProfileTable) Inputs() []string  { return append([]string(nil), t.inputs...) }
func (t *VariableProfileTable) Outputs() []string { return append([]string(nil), t.outputs...) }

func (t *VariableProfileTable) valid() error {
	if t.handle == 0 {
		return native.Errorf(native.StatusStdError, "menoh error: variable profile table is closed")
	}
	return nil
}

// Dims returns the resolved shape of name.
func (t *VariableProfileTable) Dims(name string) ([]int32, error) {
	if err := t.valid(); err != nil {
		return nil, err
	}
	return t.engine.ProfileTableDims(t.handle, name)
}

func (t *VariableProfileTable) DType(name string) (native.DType, error) {
	if err := t.valid(); err != nil {
		return 0, err
	}
	return t.engine.ProfileTableDType(t.handle, name)
}

// Close releases the table. It is safe to call more than once.
func (t *VariableProfileTable) Close() error {
	if t.handle != 0 {
		t.engine.DeleteVariableProfileTable(t.handle)
		t.handle = 0
	}
	return nil
}
