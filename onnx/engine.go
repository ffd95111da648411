// Package onnx implements native.Engine on top of ONNX Runtime.
package onnx

import (
	"os"
	"sync"

	"github.com/gomithril/menoh/native"
	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
)

type modelData struct {
	data    []byte
	inputs  map[string]native.VariableInfo
	outputs map[string]native.VariableInfo
	// names of graph inputs and outputs that are not tensors
	opaque map[string]bool

	mu        sync.Mutex
	optimized map[*native.Profile]bool
}

func (md *modelData) optimize(t *native.Profile) {
	md.mu.Lock()
	defer md.mu.Unlock()
	if md.optimized == nil {
		md.optimized = make(map[*native.Profile]bool)
	}
	md.optimized[t] = true
}

func (md *modelData) optimizedFor(t *native.Profile) bool {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.optimized[t]
}

type modelBuilder struct {
	table    *native.Profile
	external map[string]native.Buffer
}

type model struct {
	session *ort.AdvancedSession
	io      *ModelIO
	table   *native.Profile
	buffers map[string]native.Buffer
}

func (m *model) destroy() {
	if m.session != nil {
		m.session.Destroy()
	}
	m.io.Destroy()
}

// Engine drives ONNX Runtime through the native handle API.
type Engine struct {
	ownsEnv bool

	modelData     native.Table[*modelData]
	builders      native.Table[*native.Profile]
	tables        native.Table[*native.Profile]
	modelBuilders native.Table[*modelBuilder]
	models        native.Table[*model]
}

var _ native.Engine = (*Engine)(nil)

// NewEngine initializes the ONNX Runtime environment from the shared library
// at libraryPath, unless it is already initialized. An empty path keeps the
// runtime's default library name.
func NewEngine(libraryPath string) (*Engine, error) {
	e := &Engine{}
	if ort.IsInitialized() {
		return e, nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, native.Errorf(native.StatusBackendError, "menoh backend error: failed to init ONNX env: %v", err)
	}
	e.ownsEnv = true
	log.Debug().Str("library", libraryPath).Msg("onnx runtime initialized")
	return e, nil
}

// Close destroys the environment if NewEngine created it. Live models must
// be deleted first.
func (e *Engine) Close() error {
	if !e.ownsEnv {
		return nil
	}
	e.ownsEnv = false
	return ort.DestroyEnvironment()
}

func (e *Engine) MakeModelDataFromONNX(path string) (native.ModelData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, native.Errorf(native.StatusInvalidFilename, "menoh invalid filename error: %s", path)
	}
	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(data)
	if err != nil {
		return 0, native.Errorf(native.StatusONNXParseError, "menoh onnx parse error: %s: %v", path, err)
	}
	md := &modelData{
		data:    data,
		inputs:  make(map[string]native.VariableInfo, len(inputs)),
		outputs: make(map[string]native.VariableInfo, len(outputs)),
		opaque:  make(map[string]bool),
	}
	collect(md, inputs, md.inputs)
	collect(md, outputs, md.outputs)
	return native.ModelData(e.modelData.Put(md)), nil
}

// collect records tensor variables in dst. Element types without a native
// dtype are kept with an invalid dtype so that a declaration naming them
// fails.
func collect(md *modelData, infos []ort.InputOutputInfo, dst map[string]native.VariableInfo) {
	for _, info := range infos {
		if info.OrtValueType != ort.ONNXTypeTensor {
			md.opaque[info.Name] = true
			continue
		}
		dtype, ok := dtypeOf(info.DataType)
		if !ok {
			dtype = native.DType(-1)
		}
		dst[info.Name] = native.VariableInfo{
			Name:  info.Name,
			DType: dtype,
			Dims:  append([]int64(nil), info.Dimensions...),
		}
	}
}

func (e *Engine) DeleteModelData(h native.ModelData) {
	e.modelData.Delete(native.Handle(h))
}

func (e *Engine) MakeVariableProfileTableBuilder() (native.ProfileTableBuilder, error) {
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
	b, err := e.builder(h)
	if err != nil {
		return err
	}
	return b.AddInput(name, dtype, dims)
}

func (e *Engine) AddOutputName(h native.ProfileTableBuilder, name string) error {
	b, err := e.builder(h)
	if err != nil {
		return err
	}
	return b.AddOutput(name)
}

func (e *Engine) BuildVariableProfileTable(h native.ProfileTableBuilder, mdh native.ModelData) (native.ProfileTable, error) {
	b, err := e.builder(h)
	if err != nil {
		return 0, err
	}
	md, err := e.data(mdh)
	if err != nil {
		return 0, err
	}
	t, err := b.Resolve(md.inputs, md.outputs)
	if err != nil {
		return 0, err
	}
	return native.ProfileTable(e.tables.Put(t)), nil
}

func (e *Engine) DeleteVariableProfileTableBuilder(h native.ProfileTableBuilder) {
	e.builders.Delete(native.Handle(h))
}

func (e *Engine) data(h native.ModelData) (*modelData, error) {
	md, ok := e.modelData.Get(native.Handle(h))
	if !ok {
		return nil, native.Errorf(native.StatusStdError, "menoh error: invalid model data handle")
	}
	return md, nil
}

func (e *Engine) table(h native.ProfileTable) (*native.Profile, error) {
	t, ok := e.tables.Get(native.Handle(h))
	if !ok {
		return nil, native.Errorf(native.StatusStdError, "menoh error: invalid variable profile table handle")
	}
	return t, nil
}

func (e *Engine) ProfileTableDims(h native.ProfileTable, name string) ([]int32, error) {
	t, err := e.table(h)
	if err != nil {
		return nil, err
	}
	en, err := t.Lookup(name)
	if err != nil {
		return nil, err
	}
	return append([]int32(nil), en.Dims...), nil
}

func (e *Engine) ProfileTableDType(h native.ProfileTable, name string) (native.DType, error) {
	t, err := e.table(h)
	if err != nil {
		return 0, err
	}
	en, err := t.Lookup(name)
	return en.DType, err
}

func (e *Engine) DeleteVariableProfileTable(h native.ProfileTable) {
	e.tables.Delete(native.Handle(h))
}

// OptimizeModelData checks t against the model data and marks it as
// optimized. Only builders made from an optimized table can build a model,
// and their sessions compute only the outputs declared in that table.
func (e *Engine) OptimizeModelData(mdh native.ModelData, th native.ProfileTable) error {
	md, err := e.data(mdh)
	if err != nil {
		return err
	}
	t, err := e.table(th)
	if err != nil {
		return err
	}
	for name := range md.opaque {
		if t.IsInput(name) || t.IsOutput(name) {
			return native.Errorf(native.StatusUnsupportedOperator,
				"menoh unsupported operator error: %s is not a tensor", name)
		}
	}
	for name, en := range t.Entries {
		if !en.DType.Valid() || en.DType == native.Float16 {
			return native.Errorf(native.StatusFailedToConfigureOperator,
				"menoh failed to configure operator error: %s has unsupported dtype %s", name, en.DType)
		}
	}
	md.optimize(t)
	return nil
}

func (e *Engine) MakeModelBuilder(th native.ProfileTable) (native.ModelBuilder, error) {
	t, err := e.table(th)
	if err != nil {
		return 0, err
	}
	b := &modelBuilder{table: t, external: make(map[string]native.Buffer)}
	return native.ModelBuilder(e.modelBuilders.Put(b)), nil
}

func (e *Engine) AttachExternalBuffer(h native.ModelBuilder, name string, buf native.Buffer) error {
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
	if n := native.ElementCount(en.Dims); buf.Len != n {
		return native.Errorf(native.StatusDimensionMismatch,
			"menoh dimension mismatch error: %s needs %d elements, buffer has %d", name, n, buf.Len)
	}
	b.external[name] = buf
	return nil
}

func (e *Engine) BuildModel(h native.ModelBuilder, mdh native.ModelData, backendName, config string) (native.Model, error) {
	b, ok := e.modelBuilders.Get(native.Handle(h))
	if !ok {
		return 0, native.Errorf(native.StatusStdError, "menoh error: invalid model builder handle")
	}
	md, err := e.data(mdh)
	if err != nil {
		return 0, err
	}
	backend, ok := GetBackend(backendName)
	if !ok {
		return 0, native.Errorf(native.StatusInvalidBackendName, "menoh invalid backend name error: %s", backendName)
	}
	cfg, err := ParseBackendConfig(config)
	if err != nil {
		return 0, err
	}
	if !md.optimizedFor(b.table) {
		return 0, native.Errorf(native.StatusStdError, "menoh error: model data is not optimized for this table")
	}

	m := &model{io: newModelIO(), table: b.table, buffers: make(map[string]native.Buffer)}
	if err := e.bind(m, b); err != nil {
		m.destroy()
		return 0, err
	}
	m.session, err = NewAdvancedSession(md.data, m.io, backend, cfg)
	if err != nil {
		m.destroy()
		return 0, native.Errorf(native.StatusBackendError, "menoh backend error: %v", err)
	}
	log.Debug().
		Str("backend", backendName).
		Strs("inputs", m.io.Inputs).
		Strs("outputs", m.io.Outputs).
		Msg("onnx session created")
	return native.Model(e.models.Put(m)), nil
}

// bind creates one tensor per table variable. External input buffers are
// wrapped in place; everything else is allocated by the runtime.
func (e *Engine) bind(m *model, b *modelBuilder) error {
	for _, name := range m.table.Inputs {
		en := m.table.Entries[name]
		var (
			tensor ort.Value
			err    error
		)
		if buf, ok := b.external[name]; ok {
			tensor, err = wrapBuffer(buf, en.Dims)
		} else {
			tensor, err = newEmptyTensor(en.DType, en.Dims)
		}
		if err != nil {
			return err
		}
		m.io.AddInput(name, tensor)
	}
	for _, name := range m.table.Outputs {
		if m.io.Has(name) {
			continue
		}
		tensor, err := newEmptyTensor(m.table.Entries[name].DType, m.table.Entries[name].Dims)
		if err != nil {
			return err
		}
		m.io.AddOutput(name, tensor)
	}
	for _, name := range append(append([]string(nil), m.io.Inputs...), m.io.Outputs...) {
		buf, err := bufferOf(m.io.Tensor(name), m.table.Entries[name].DType)
		if err != nil {
			return err
		}
		m.buffers[name] = buf
	}
	return nil
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

func (e *Engine) entry(h native.Model, name string) (native.Entry, error) {
	m, err := e.model(h)
	if err != nil {
		return native.Entry{}, err
	}
	return m.table.Lookup(name)
}

func (e *Engine) VariableDimsSize(h native.Model, name string) (int32, error) {
	en, err := e.entry(h, name)
	return int32(len(en.Dims)), err
}

func (e *Engine) VariableDimsAt(h native.Model, name string, i int32) (int32, error) {
	en, err := e.entry(h, name)
	if err != nil {
		return 0, err
	}
	if i < 0 || int(i) >= len(en.Dims) {
		return 0, native.Errorf(native.StatusIndexOutOfRange, "menoh index out of range error: %s axis %d", name, i)
	}
	return en.Dims[i], nil
}

func (e *Engine) VariableDType(h native.Model, name string) (native.DType, error) {
	en, err := e.entry(h, name)
	return en.DType, err
}

func (e *Engine) RunModel(h native.Model) error {
	m, err := e.model(h)
	if err != nil {
		return err
	}
	if err := m.session.Run(); err != nil {
		return native.Errorf(native.StatusBackendError, "menoh backend error: %v", err)
	}
	return nil
}

func (e *Engine) DeleteModel(h native.Model) {
	if m, ok := e.models.Delete(native.Handle(h)); ok {
		m.destroy()
	}
}
