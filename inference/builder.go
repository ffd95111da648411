package inference

import (
	"github.com/gomithril/menoh/codec"
	"github.com/gomithril/menoh/native"
	"github.com/rs/zerolog/log"
)

// ModelBuilder builds models from a variable profile table.
//
// With ExternalInputs set, input buffers are allocated in Go and attached
// before the build; otherwise the engine allocates every buffer. Output
// buffers always come from the engine.
type ModelBuilder struct {
	table          *VariableProfileTable
	ExternalInputs bool
}

func NewModelBuilder(table *VariableProfileTable, externalInputs bool) *ModelBuilder {
	return &ModelBuilder{table: table, ExternalInputs: externalInputs}
}

// Build creates a model for src on the named backend. src must have been
// optimized with the builder's table. The engine side builder is released
// before Build returns, on every path.
func (b *ModelBuilder) Build(src *ModelSource, backend, config string) (*Model, error) {
	if err := b.table.valid(); err != nil {
		return nil, err
	}
	md, err := src.acquire()
	if err != nil {
		return nil, err
	}
	defer src.release()

	e := src.engine
	h, err := e.MakeModelBuilder(b.table.handle)
	if err != nil {
		return nil, err
	}
	defer e.DeleteModelBuilder(h)

	var external map[string]native.Buffer
	if b.ExternalInputs {
		external, err = b.attach(e, h)
		if err != nil {
			return nil, err
		}
	}

	mh, err := e.BuildModel(h, md, backend, config)
	if err != nil {
		return nil, err
	}
	m, err := newModel(e, mh, b.table.inputs, b.table.outputs, external)
	if err != nil {
		e.DeleteModel(mh)
		return nil, err
	}
	log.Debug().
		Str("path", src.path).
		Str("backend", backend).
		Bool("external_inputs", b.ExternalInputs).
		Msg("model built")
	return m, nil
}

func (b *ModelBuilder) attach(e native.Engine, h native.ModelBuilder) (map[string]native.Buffer, error) {
	external := make(map[string]native.Buffer, len(b.table.inputs))
	for _, name := range b.table.inputs {
		dims, err := b.table.Dims(name)
		if err != nil {
			return nil, err
		}
		dtype, err := b.table.DType(name)
		if err != nil {
			return nil, err
		}
		buf, err := codec.Alloc(dtype, native.ElementCount(dims))
		if err != nil {
			return nil, err
		}
		if err := e.AttachExternalBuffer(h, name, buf); err != nil {
			return nil, err
		}
		external[name] = buf
		log.Debug().Str("variable", name).Int("len", buf.Len).Msg("external buffer attached")
	}
	return external, nil
}
