package inference

import (
	"fmt"
	"runtime"
	"slices"
	"sync"

	"github.com/gomithril/menoh/codec"
	"github.com/gomithril/menoh/native"
	"github.com/rs/zerolog/log"
)

type variable struct {
	buf   native.Buffer
	dims  []int32
	dtype native.DType
}

// Model is a built executable model. Its buffers live until Close.
//
// Run may be called any number of times; concurrent calls on one Model are
// serialized. SetInput and Output wait for a run in progress.
type Model struct {
	engine  native.Engine
	inputs  []string
	outputs []string
	vars    map[string]variable
	// Go allocated input buffers attached at build time
	external map[string]native.Buffer

	mu     sync.Mutex
	handle native.Model
}

// newModel queries the buffer, shape and dtype of every variable from the
// built model.
func newModel(e native.Engine, h native.Model, inputs, outputs []string, external map[string]native.Buffer) (*Model, error) {
	m := &Model{
		engine:   e,
		handle:   h,
		inputs:   append([]string(nil), inputs...),
		outputs:  append([]string(nil), outputs...),
		vars:     make(map[string]variable, len(inputs)+len(outputs)),
		external: external,
	}
	for _, name := range append(append([]string(nil), inputs...), outputs...) {
		if _, ok := m.vars[name]; ok {
			continue
		}
		v, err := queryVariable(e, h, name)
		if err != nil {
			return nil, err
		}
		m.vars[name] = v
	}
	return m, nil
}

func queryVariable(e native.Engine, h native.Model, name string) (variable, error) {
	buf, err := e.VariableBuffer(h, name)
	if err != nil {
		return variable{}, err
	}
	rank, err := e.VariableDimsSize(h, name)
	if err != nil {
		return variable{}, err
	}
	dims := make([]int32, rank)
	for i := range dims {
		if dims[i], err = e.VariableDimsAt(h, name, int32(i)); err != nil {
			return variable{}, err
		}
	}
	dtype, err := e.VariableDType(h, name)
	if err != nil {
		return variable{}, err
	}
	if n := native.ElementCount(dims); buf.Len != n {
		return variable{}, native.Errorf(native.StatusDimensionMismatch,
			"menoh dimension mismatch error: %s has %d elements, dims %v need %d", name, buf.Len, dims, n)
	}
	return variable{buf: buf, dims: dims, dtype: dtype}, nil
}

func (m *Model) Inputs() []string  { return append([]string(nil), m.inputs...) }
func (m *Model) Outputs() []string { return append([]string(nil), m.outputs...) }

func (m *Model) lookup(name string) (variable, error) {
	v, ok := m.vars[name]
	if !ok {
		return variable{}, native.Errorf(native.StatusVariableNotFound, "menoh variable not found error: %s", name)
	}
	return v, nil
}

// Dims returns the shape of name as reported by the model.
func (m *Model) Dims(name string) ([]int32, error) {
	v, err := m.variable(name)
	if err != nil {
		return nil, err
	}
	return append([]int32(nil), v.dims...), nil
}

func (m *Model) DType(name string) (native.DType, error) {
	v, err := m.variable(name)
	if err != nil {
		return 0, err
	}
	return v.dtype, nil
}

// Buffer returns the raw buffer of name. It is valid until Close.
func (m *Model) Buffer(name string) (native.Buffer, error) {
	v, err := m.variable(name)
	if err != nil {
		return native.Buffer{}, err
	}
	return v.buf, nil
}

func (m *Model) variable(name string) (variable, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(); err != nil {
		return variable{}, err
	}
	return m.lookup(name)
}

// SetInput copies values into the buffer of input name. values must be a
// slice of a Go numeric type with exactly one element per buffer element.
func (m *Model) SetInput(name string, values any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(); err != nil {
		return err
	}
	if !slices.Contains(m.inputs, name) {
		return native.Errorf(native.StatusVariableNotFound, "menoh variable not found error: %s is not an input", name)
	}
	if err := codec.WriteAny(m.vars[name].buf, values); err != nil {
		return fmt.Errorf("input %s: %w", name, err)
	}
	return nil
}

// Run executes the model on a locked OS thread and waits for it to finish.
// It cannot be cancelled.
func (m *Model) Run() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		done <- m.engine.RunModel(m.handle)
	}()
	if err := <-done; err != nil {
		log.Error().Err(err).Msg("model run failed")
		return err
	}
	return nil
}

// Output copies the buffer of name into a Result.
func (m *Model) Output(name string) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(); err != nil {
		return nil, err
	}
	return m.result(name)
}

// Results returns every declared output.
func (m *Model) Results() (map[string]*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.open(); err != nil {
		return nil, err
	}
	out := make(map[string]*Result, len(m.outputs))
	for _, name := range m.outputs {
		r, err := m.result(name)
		if err != nil {
			return nil, err
		}
		out[name] = r
	}
	return out, nil
}

func (m *Model) result(name string) (*Result, error) {
	v, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	values, err := codec.Read(v.buf)
	if err != nil {
		return nil, err
	}
	return &Result{
		Name:   name,
		Shape:  append([]int32(nil), v.dims...),
		DType:  v.dtype,
		Floats: values.Floats,
		Ints:   values.Ints,
	}, nil
}

func (m *Model) open() error {
	if m.handle == 0 {
		return native.Errorf(native.StatusStdError, "menoh error: model is closed")
	}
	return nil
}

// Close releases the model and its buffers. It is safe to call more than
// once.
func (m *Model) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handle != 0 {
		m.engine.DeleteModel(m.handle)
		m.handle = 0
		m.external = nil
		m.vars = nil
	}
	return nil
}
