package native

import "time"

// Observer receives handle lifecycle and run events from an instrumented engine.
type Observer interface {
	Acquired(kind Kind)
	Released(kind Kind)
	Ran(elapsed time.Duration, err error)
}

// Instrument wraps e so that every successful handle acquisition, every
// release of a non-zero handle and every model run is reported to obs.
func Instrument(e Engine, obs Observer) Engine {
	return &instrumented{Engine: e, obs: obs}
}

type instrumented struct {
	Engine
	obs Observer
}

func (i *instrumented) acquired(kind Kind, err error) {
	if err == nil {
		i.obs.Acquired(kind)
	}
}

func (i *instrumented) released(kind Kind, h Handle) {
	if h != 0 {
		i.obs.Released(kind)
	}
}

func (i *instrumented) MakeModelDataFromONNX(path string) (ModelData, error) {
	md, err := i.Engine.MakeModelDataFromONNX(path)
	i.acquired(KindModelData, err)
	return md, err
}

func (i *instrumented) DeleteModelData(md ModelData) {
	i.Engine.DeleteModelData(md)
	i.released(KindModelData, Handle(md))
}

func (i *instrumented) MakeVariableProfileTableBuilder() (ProfileTableBuilder, error) {
	b, err := i.Engine.MakeVariableProfileTableBuilder()
	i.acquired(KindProfileTableBuilder, err)
	return b, err
}

func (i *instrumented) DeleteVariableProfileTableBuilder(b ProfileTableBuilder) {
	i.Engine.DeleteVariableProfileTableBuilder(b)
	i.released(KindProfileTableBuilder, Handle(b))
}

func (i *instrumented) BuildVariableProfileTable(b ProfileTableBuilder, md ModelData) (ProfileTable, error) {
	t, err := i.Engine.BuildVariableProfileTable(b, md)
	i.acquired(KindProfileTable, err)
	return t, err
}

func (i *instrumented) DeleteVariableProfileTable(t ProfileTable) {
	i.Engine.DeleteVariableProfileTable(t)
	i.released(KindProfileTable, Handle(t))
}

func (i *instrumented) MakeModelBuilder(t ProfileTable) (ModelBuilder, error) {
	b, err := i.Engine.MakeModelBuilder(t)
	i.acquired(KindModelBuilder, err)
	return b, err
}

func (i *instrumented) DeleteModelBuilder(b ModelBuilder) {
	i.Engine.DeleteModelBuilder(b)
	i.released(KindModelBuilder, Handle(b))
}

func (i *instrumented) BuildModel(b ModelBuilder, md ModelData, backend, config string) (Model, error) {
	m, err := i.Engine.BuildModel(b, md, backend, config)
	i.acquired(KindModel, err)
	return m, err
}

func (i *instrumented) DeleteModel(m Model) {
	i.Engine.DeleteModel(m)
	i.released(KindModel, Handle(m))
}

func (i *instrumented) RunModel(m Model) error {
	start := time.Now()
	err := i.Engine.RunModel(m)
	i.obs.Ran(time.Since(start), err)
	return err
}
