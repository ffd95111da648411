// Package enginetest provides an in-memory native.Engine for tests.
//
// Models are registered under a file path with AddGraph and evaluated in Go.
// The engine tracks every live handle per kind so callers can assert that a
// pipeline released everything it acquired, and FailOn injects a failure at
// any step of the pipeline.
package enginetest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/gomithril/menoh/codec"
	"github.com/gomithril/menoh/native"
)

// Op identifies an engine entry point for failure injection.
type Op string

const (
	OpLoad             Op = "load"
	OpMakeTableBuilder Op = "make_table_builder"
	OpAddInput         Op = "add_input"
	OpAddOutput        Op = "add_output"
	OpBuildTable       Op = "build_table"
	OpOptimize         Op = "optimize"
	OpMakeModelBuilder Op = "make_model_builder"
	OpAttach           Op = "attach"
	OpBuildModel       Op = "build_model"
	OpRun              Op = "run"
	OpVariableBuffer   Op = "variable_buffer"
)

type modelData struct {
	graph *Graph

	mu        sync.Mutex
	optimized map[*native.Profile]bool
}

type modelBuilder struct {
	table    *native.Profile
	external map[string]native.Buffer
}

type model struct {
	graph   *Graph
	table   *native.Profile
	buffers map[string]native.Buffer
}

// Engine is a native.Engine backed by Go graphs.
type Engine struct {
	mu       sync.Mutex
	graphs   map[string]*Graph
	backends map[string]bool
	failures map[Op]*native.Error
	runs     int

	modelData     native.Table[*modelData]
	builders      native.Table[*native.Profile]
	tables        native.Table[*native.Profile]
	modelBuilders native.Table[*modelBuilder]
	models        native.Table[*model]
}

var _ native.Engine = (*Engine)(nil)

// New returns an engine with a single "cpu" backend and no graphs.
func New() *Engine {
	return &Engine{
		graphs:   make(map[string]*Graph),
		backends: map[string]bool{"cpu": true},
		failures: make(map[Op]*native.Error),
	}
}

// AddGraph makes g loadable from path.
func (e *Engine) AddGraph(path string, g *Graph) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.graphs[path] = g
}

func (e *Engine) AddBackend(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backends[name] = true
}

// FailOn makes every later call of op fail with status s and message msg.
func (e *Engine) FailOn(op Op, s native.Status, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = native.NewError(s, msg)
}

// Reset clears injected failures.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures = make(map[Op]*native.Error)
}

func (e *Engine) fail(op Op) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err, ok := e.failures[op]; ok {
		return err
	}
	return nil
}

// Live returns the number of live handles per kind.
func (e *Engine) Live() map[native.Kind]int {
	return map[native.Kind]int{
		native.KindModelData:           e.modelData.Len(),
		native.KindProfileTableBuilder: e.builders.Len(),
		native.KindProfileTable:        e.tables.Len(),
		native.KindModelBuilder:        e.modelBuilders.Len(),
		native.KindModel:               e.models.Len(),
	}
}

// LiveTotal is the sum of Live.
func (e *Engine) LiveTotal() int {
	n := 0
	for _, v := range e.Live() {
		n += v
	}
	return n
}

// Runs returns the number of successful RunModel calls.
func (e *Engine) Runs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs
}

func (e *Engine) MakeModelDataFromONNX(path string) (native.ModelData, error) {
	if err := e.fail(OpLoad); err != nil {
		return 0, err
	}
	e.mu.Lock()
	g, ok := e.graphs[path]
	e.mu.Unlock()
	if !ok {
		return 0, native.Errorf(native.StatusInvalidFilename, "menoh invalid filename error: %s", path)
	}
	return native.ModelData(e.modelData.Put(&modelData{graph: g, optimized: make(map[*native.Profile]bool)})), nil
}

func (e *Engine) DeleteModelData(md native.ModelData) {
	e.modelData.Delete(native.Handle(md))
}

func (e *Engine) MakeVariableProfileTableBuilder() (native.ProfileTableBuilder, error) {
	if err := e.fail(OpMakeTableBuilder); err != nil {
		return 0, err
	}
	return native.ProfileTableBuilder(e.builders.Put(native.NewProfile())), nil
}

func (e *Engine) builder(h native.ProfileTableBuilder) (*native.Profile, error) {
	b, ok := e.builders.Get(native.Handle(h))
	if !ok {
		return nil, native.Errorf(native.StatusStdError, "menoh error: invalid variable profile table builder handle")
	}
	return b, nil
}

func (e *Engine) AddInputProfile(h native.ProfileTableBuilder, name string, dtype native.DType, dims []int32) error {
	if err := e.fail(OpAddInput); err != nil {
		return err
	}
	b, err := e.builder(h)
	if err != nil {
		return err
	}
	return b.AddInput(name, dtype, dims)
}

func (e *Engine) AddOutputName(h native.ProfileTableBuilder, name string) error {
	if err := e.fail(OpAddOutput); err != nil {
		return err
	}
	b, err := e.builder(h)
	if err != nil {
		return err
	}
	return b.AddOutput(name)
}

func (e *Engine) BuildVariableProfileTable(h native.ProfileTableBuilder, mdh native.ModelData) (native.ProfileTable, error) {
	if err := e.fail(OpBuildTable); err != nil {
		return 0, err
	}
	b, err := e.builder(h)
	if err != nil {
		return 0, err
	}
	md, ok := e.modelData.Get(native.Handle(mdh))
	if !ok {
		return 0, native.Errorf(native.StatusStdError, "menoh error: invalid model data handle")
	}
	in, out := md.graph.infos()
	t, err := b.Resolve(in, out)
	if err != nil {
		return 0, err
	}
	return native.ProfileTable(e.tables.Put(t)), nil
}

func (e *Engine) DeleteVariableProfileTableBuilder(h native.ProfileTableBuilder) {
	e.builders.Delete(native.Handle(h))
}

func (e *Engine) tableEntry(h native.ProfileTable, name string) (native.Entry, error) {
	t, ok := e.tables.Get(native.Handle(h))
	if !ok {
		return native.Entry{}, native.Errorf(native.StatusStdError, "menoh error: invalid variable profile table handle")
	}
	return t.Lookup(name)
}

func (e *Engine) ProfileTableDims(h native.ProfileTable, name string) ([]int32, error) {
	en, err := e.tableEntry(h, name)
	if err != nil {
		return nil, err
	}
	return append([]int32(nil), en.Dims...), nil
}

func (e *Engine) ProfileTableDType(h native.ProfileTable, name string) (native.DType, error) {
	en, err := e.tableEntry(h, name)
	return en.DType, err
}

func (e *Engine) DeleteVariableProfileTable(h native.ProfileTable) {
	e.tables.Delete(native.Handle(h))
}

func (e *Engine) OptimizeModelData(mdh native.ModelData, th native.ProfileTable) error {
	if err := e.fail(OpOptimize); err != nil {
		return err
	}
	md, ok := e.modelData.Get(native.Handle(mdh))
	if !ok {
		return native.Errorf(native.StatusStdError, "menoh error: invalid model data handle")
	}
	t, ok := e.tables.Get(native.Handle(th))
	if !ok {
		return native.Errorf(native.StatusStdError, "menoh error: invalid variable profile table handle")
	}
	if md.graph.Unsupported != "" {
		return native.Errorf(native.StatusUnsupportedOperator, "menoh unsupported operator error: %s", md.graph.Unsupported)
	}
	md.mu.Lock()
	md.optimized[t] = true
	md.mu.Unlock()
	return nil
}

func (e *Engine) MakeModelBuilder(th native.ProfileTable) (native.ModelBuilder, error) {
	if err := e.fail(OpMakeModelBuilder); err != nil {
		return 0, err
	}
	t, ok := e.tables.Get(native.Handle(th))
	if !ok {
		return 0, native.Errorf(native.StatusStdError, "menoh error: invalid variable profile table handle")
	}
	b := &modelBuilder{table: t, external: make(map[string]native.Buffer)}
	return native.ModelBuilder(e.modelBuilders.Put(b)), nil
}

func (e *Engine) AttachExternalBuffer(h native.ModelBuilder, name string, buf native.Buffer) error {
	if err := e.fail(OpAttach); err != nil {
		return err
	}
	b, ok := e.modelBuilders.Get(native.Handle(h))
	if !ok {
		return native.Errorf(native.StatusStdError, "menoh error: invalid model builder handle")
	}
	if !b.table.IsInput(name) {
		return native.Errorf(native.StatusVariableNotFound, "menoh variable not found error: %s", name)
	}
	en := b.table.Entries[name]
	if buf.DType != en.DType {
		return native.Errorf(native.StatusInvalidDType, "menoh invalid dtype error: %s is %s, buffer is %s", name, en.DType, buf.DType)
	}
	if buf.Len != native.ElementCount(en.Dims) {
		return native.Errorf(native.StatusDimensionMismatch,
			"menoh dimension mismatch error: %s needs %d elements, buffer has %d", name, native.ElementCount(en.Dims), buf.Len)
	}
	b.external[name] = buf
	return nil
}

func (e *Engine) BuildModel(h native.ModelBuilder, mdh native.ModelData, backend, config string) (native.Model, error) {
	if err := e.fail(OpBuildModel); err != nil {
		return 0, err
	}
	b, ok := e.modelBuilders.Get(native.Handle(h))
	if !ok {
		return 0, native.Errorf(native.StatusStdError, "menoh error: invalid model builder handle")
	}
	md, ok := e.modelData.Get(native.Handle(mdh))
	if !ok {
		return 0, native.Errorf(native.StatusStdError, "menoh error: invalid model data handle")
	}
	e.mu.Lock()
	known := e.backends[backend]
	e.mu.Unlock()
	if !known {
		return 0, native.Errorf(native.StatusInvalidBackendName, "menoh invalid backend name error: %s", backend)
	}
	if config != "" && !json.Valid([]byte(config)) {
		return 0, native.Errorf(native.StatusInvalidBackendConfigError, "menoh invalid backend config error: %s", config)
	}
	md.mu.Lock()
	optimized := md.optimized[b.table]
	md.mu.Unlock()
	if !optimized {
		return 0, native.Errorf(native.StatusStdError, "menoh error: model data is not optimized for this table")
	}
	m := &model{graph: md.graph, table: b.table, buffers: make(map[string]native.Buffer)}
	for _, name := range append(append([]string(nil), b.table.Inputs...), b.table.Outputs...) {
		if _, ok := m.buffers[name]; ok {
			continue
		}
		if buf, ok := b.external[name]; ok {
			m.buffers[name] = buf
			continue
		}
		en := b.table.Entries[name]
		buf, err := codec.Alloc(en.DType, native.ElementCount(en.Dims))
		if err != nil {
			return 0, err
		}
		m.buffers[name] = buf
	}
	return native.Model(e.models.Put(m)), nil
}

func (e *Engine) DeleteModelBuilder(h native.ModelBuilder) {
	e.modelBuilders.Delete(native.Handle(h))
}

func (e *Engine) model(h native.Model) (*model, error) {
	m, ok := e.models.Get(native.Handle(h))
	if !ok {
		return nil, native.Errorf(native.StatusStdError, "menoh error: invalid model handle")
	}
	return m, nil
}

func (e *Engine) VariableBuffer(h native.Model, name string) (native.Buffer, error) {
	if err := e.fail(OpVariableBuffer); err != nil {
		return native.Buffer{}, err
	}
	m, err := e.model(h)
	if err != nil {
		return native.Buffer{}, err
	}
	buf, ok := m.buffers[name]
	if !ok {
		return native.Buffer{}, native.Errorf(native.StatusVariableNotFound, "menoh variable not found error: %s", name)
	}
	return buf, nil
}

func (e *Engine) modelEntry(h native.Model, name string) (native.Entry, error) {
	m, err := e.model(h)
	if err != nil {
		return native.Entry{}, err
	}
	return m.table.Lookup(name)
}

func (e *Engine) VariableDimsSize(h native.Model, name string) (int32, error) {
	en, err := e.modelEntry(h, name)
	return int32(len(en.Dims)), err
}

func (e *Engine) VariableDimsAt(h native.Model, name string, i int32) (int32, error) {
	en, err := e.modelEntry(h, name)
	if err != nil {
		return 0, err
	}
	if i < 0 || int(i) >= len(en.Dims) {
		return 0, native.Errorf(native.StatusIndexOutOfRange, "menoh index out of range error: %s axis %d", name, i)
	}
	return en.Dims[i], nil
}

func (e *Engine) VariableDType(h native.Model, name string) (native.DType, error) {
	en, err := e.modelEntry(h, name)
	return en.DType, err
}

func (e *Engine) RunModel(h native.Model) error {
	if err := e.fail(OpRun); err != nil {
		return err
	}
	m, err := e.model(h)
	if err != nil {
		return err
	}
	in := make(map[string][]float64, len(m.table.Inputs))
	dims := make(map[string][]int32, len(m.table.Entries))
	for name, en := range m.table.Entries {
		dims[name] = en.Dims
	}
	for _, name := range m.table.Inputs {
		v, err := codec.Read(m.buffers[name])
		if err != nil {
			return err
		}
		in[name] = v.Float64s()
	}
	out, err := m.graph.Eval(in, dims)
	if err != nil {
		var ne *native.Error
		if errors.As(err, &ne) {
			return ne
		}
		return native.NewError(native.StatusBackendError, err.Error())
	}
	for _, name := range m.table.Outputs {
		if m.table.IsInput(name) {
			continue
		}
		if err := codec.Write(m.buffers[name], out[name]); err != nil {
			return native.Errorf(native.StatusDimensionMismatch, "menoh dimension mismatch error: %s: %v", name, err)
		}
	}
	e.mu.Lock()
	e.runs++
	e.mu.Unlock()
	return nil
}

func (e *Engine) DeleteModel(h native.Model) {
	e.models.Delete(native.Handle(h))
}
