package inference

import (
	"errors"
	"sync"
	"testing"

	"github.com/gomithril/menoh/codec"
	"github.com/gomithril/menoh/enginetest"
	"github.com/gomithril/menoh/native"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildModel runs the pipeline step by step and returns the model with the
// source and table already released.
func buildModel(t *testing.T, e native.Engine, cfg *Config) *Model {
	t.Helper()
	src, err := Load(e, cfg.ModelPath)
	require.NoError(t, err)
	defer src.Close()

	b := NewVariableProfileBuilder()
	require.NoError(t, cfg.declare(b))
	table, err := b.Build(src)
	require.NoError(t, err)
	defer table.Close()

	require.NoError(t, Optimize(src, table))
	m, err := NewModelBuilder(table, cfg.ExternalInputs).Build(src, cfg.Backend, cfg.BackendConfig)
	require.NoError(t, err)
	return m
}

func sequence(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i)
	}
	return out
}

func TestClassifierScenario(t *testing.T) {
	for _, external := range []bool{false, true} {
		e := newTestEngine()
		cfg := vggConfig()
		cfg.ExternalInputs = external

		m := buildModel(t, e, cfg)
		assert.Equal(t, 1, e.LiveTotal())

		require.NoError(t, m.SetInput("data", sequence(150528)))
		require.NoError(t, m.Run())

		out, err := m.Output("prob")
		require.NoError(t, err)
		assert.Equal(t, 1000, out.Len())
		assert.Equal(t, []int32{1, 1000}, out.Shape)
		assert.Equal(t, native.Float32, out.DType)

		dims, err := m.Dims("prob")
		require.NoError(t, err)
		assert.Equal(t, out.Shape, dims)

		require.NoError(t, m.Close())
		require.NoError(t, m.Close())
		assert.Equal(t, 0, e.LiveTotal())
	}
}

func TestTableQueries(t *testing.T) {
	e := newTestEngine()
	src, err := Load(e, vggPath)
	require.NoError(t, err)
	defer src.Close()

	b := NewVariableProfileBuilder()
	require.NoError(t, b.DeclareInput("data", native.Float32, []uint32{2, 3, 224, 224}))
	require.NoError(t, b.DeclareOutput("prob"))
	table, err := b.Build(src)
	require.NoError(t, err)
	assert.Equal(t, 0, e.Live()[native.KindProfileTableBuilder])

	dims, err := table.Dims("prob")
	require.NoError(t, err)
	assert.Equal(t, []int32{2, 1000}, dims)
	dtype, err := table.DType("data")
	require.NoError(t, err)
	assert.Equal(t, native.Float32, dtype)
	assert.Equal(t, []string{"data"}, table.Inputs())
	assert.Equal(t, []string{"prob"}, table.Outputs())

	_, err = table.Dims("fc7")
	assert.True(t, errors.Is(err, native.VariableNotFound))

	require.NoError(t, table.Close())
	_, err = table.Dims("prob")
	assert.True(t, errors.Is(err, native.StdError))
}

func TestDeclarationErrors(t *testing.T) {
	b := NewVariableProfileBuilder()
	require.NoError(t, b.DeclareInput("data", native.Float32, []uint32{1, 3}))

	err := b.DeclareInput("data", native.Float32, []uint32{1, 3})
	assert.True(t, errors.Is(err, native.DuplicateVariable))
	err = b.DeclareInput("empty", native.Float32, nil)
	assert.True(t, errors.Is(err, native.InvalidDimension))
	err = b.DeclareInput("zero", native.Float32, []uint32{0, 3})
	assert.True(t, errors.Is(err, native.InvalidDimension))
	err = b.DeclareInput("huge", native.Float32, []uint32{1 << 31})
	assert.True(t, errors.Is(err, native.InvalidDimension))
	err = b.DeclareInput("half", native.DType(99), []uint32{1})
	assert.True(t, errors.Is(err, native.InvalidDType))

	require.NoError(t, b.DeclareOutput("prob"))
	assert.True(t, errors.Is(b.DeclareOutput("prob"), native.DuplicateVariable))
	require.NoError(t, b.DeclareOutput("data"))
}

func TestBuildErrorsReleaseHandles(t *testing.T) {
	e := newTestEngine()
	src, err := Load(e, vggPath)
	require.NoError(t, err)

	b := NewVariableProfileBuilder()
	require.NoError(t, b.DeclareInput("image", native.Float32, []uint32{1, 3, 224, 224}))
	_, err = b.Build(src)
	assert.True(t, errors.Is(err, native.VariableNotFound))

	b = NewVariableProfileBuilder()
	require.NoError(t, b.DeclareInput("data", native.Float32, []uint32{1, 3, 32, 32}))
	_, err = b.Build(src)
	assert.True(t, errors.Is(err, native.DimensionMismatch))

	assert.Equal(t, map[native.Kind]int{
		native.KindModelData:           1,
		native.KindProfileTableBuilder: 0,
		native.KindProfileTable:        0,
		native.KindModelBuilder:        0,
		native.KindModel:               0,
	}, e.Live())

	require.NoError(t, src.Close())
	require.NoError(t, src.Close())
	assert.Equal(t, 0, e.LiveTotal())

	_, err = b.Build(src)
	assert.True(t, errors.Is(err, native.StdError))
}

func TestLoadErrors(t *testing.T) {
	e := newTestEngine()
	_, err := Load(e, "missing.onnx")
	assert.True(t, errors.Is(err, native.InvalidFilename))
	assert.Equal(t, 0, e.LiveTotal())
}

func TestUnwindOnFailure(t *testing.T) {
	ops := []enginetest.Op{
		enginetest.OpMakeTableBuilder,
		enginetest.OpAddInput,
		enginetest.OpAddOutput,
		enginetest.OpBuildTable,
		enginetest.OpOptimize,
		enginetest.OpMakeModelBuilder,
		enginetest.OpAttach,
		enginetest.OpBuildModel,
		enginetest.OpVariableBuffer,
	}
	for _, op := range ops {
		for _, external := range []bool{false, true} {
			e := newTestEngine()
			e.FailOn(op, native.StatusBackendError, "menoh backend error: injected at "+string(op))

			cfg := vggConfig()
			cfg.ExternalInputs = external
			svc, err := NewService(e, cfg)
			if op == enginetest.OpAttach && !external {
				require.NoError(t, err)
				require.NoError(t, svc.Close())
			} else {
				require.Error(t, err, op)
				assert.Nil(t, svc)
				assert.True(t, errors.Is(err, native.BackendError))
				assert.Equal(t, "menoh backend error: injected at "+string(op), err.Error())
			}
			assert.Equal(t, 0, e.LiveTotal(), "op %s external %v: %v", op, external, e.Live())
		}
	}
}

func TestBuildRequiresOptimize(t *testing.T) {
	e := newTestEngine()
	src, err := Load(e, vggPath)
	require.NoError(t, err)
	defer src.Close()

	b := NewVariableProfileBuilder()
	require.NoError(t, vggConfig().declare(b))
	table, err := b.Build(src)
	require.NoError(t, err)
	defer table.Close()

	_, err = NewModelBuilder(table, false).Build(src, "cpu", "")
	assert.True(t, errors.Is(err, native.StdError))
	assert.Equal(t, 0, e.Live()[native.KindModelBuilder])
}

func TestBuildRequiresOptimizedTable(t *testing.T) {
	e := newTestEngine()
	src, err := Load(e, vggPath)
	require.NoError(t, err)
	defer src.Close()

	newTable := func() *VariableProfileTable {
		b := NewVariableProfileBuilder()
		require.NoError(t, vggConfig().declare(b))
		table, err := b.Build(src)
		require.NoError(t, err)
		return table
	}
	optimized := newTable()
	defer optimized.Close()
	other := newTable()
	defer other.Close()

	require.NoError(t, Optimize(src, optimized))
	_, err = NewModelBuilder(other, false).Build(src, "cpu", "")
	assert.True(t, errors.Is(err, native.StdError))
	assert.Equal(t, 0, e.Live()[native.KindModelBuilder])
	assert.Equal(t, 0, e.Live()[native.KindModel])

	m, err := NewModelBuilder(optimized, false).Build(src, "cpu", "")
	require.NoError(t, err)
	require.NoError(t, m.Close())
}

func TestUnsupportedOperator(t *testing.T) {
	e := newTestEngine()
	g := enginetest.Classifier("data", []int64{1, 8}, "prob", 2)
	g.Unsupported = "LRN"
	e.AddGraph("lrn.onnx", g)

	cfg := DefaultConfig()
	cfg.ModelPath = "lrn.onnx"
	cfg.Inputs = []VariableConfig{{Name: "data", DType: native.Float32, Shape: []uint32{1, 8}}}
	cfg.Outputs = []string{"prob"}
	_, err := NewService(e, cfg)
	assert.True(t, errors.Is(err, native.UnsupportedOperator))
	assert.Equal(t, 0, e.LiveTotal())
}

func TestBackendErrors(t *testing.T) {
	e := newTestEngine()

	cfg := vggConfig()
	cfg.Backend = "mkldnn"
	_, err := NewService(e, cfg)
	assert.True(t, errors.Is(err, native.InvalidBackendName))

	cfg = vggConfig()
	cfg.BackendConfig = `{"cpu_id":`
	_, err = NewService(e, cfg)
	assert.True(t, errors.Is(err, native.InvalidBackendConfigError))

	assert.Equal(t, 0, e.LiveTotal())
}

func TestSequentialRuns(t *testing.T) {
	e := newTestEngine()
	m := buildModel(t, e, doubleConfig(2))
	defer m.Close()

	require.NoError(t, m.SetInput("x", []float64{0, 1, 2, 3, 4, 5, 6, 7}))
	require.NoError(t, m.Run())
	first, err := m.Output("y")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 3, 5, 7, 9, 11, 13, 15}, first.Floats)

	require.NoError(t, m.SetInput("x", []int{-1, -1, -1, -1, 10, 10, 10, 10}))
	require.NoError(t, m.Run())
	second, err := m.Output("y")
	require.NoError(t, err)
	assert.Equal(t, []float64{-1, -1, -1, -1, 21, 21, 21, 21}, second.Floats)
	assert.Equal(t, []float64{1, 3, 5, 7, 9, 11, 13, 15}, first.Floats)
	assert.Equal(t, 2, e.Runs())
}

func TestModelVariableErrors(t *testing.T) {
	e := newTestEngine()
	m := buildModel(t, e, doubleConfig(1))

	_, err := m.Buffer("z")
	assert.True(t, errors.Is(err, native.VariableNotFound))
	_, err = m.Output("z")
	assert.True(t, errors.Is(err, native.VariableNotFound))
	err = m.SetInput("y", []float32{1, 2, 3, 4})
	assert.True(t, errors.Is(err, native.VariableNotFound))

	err = m.SetInput("x", []float32{1, 2, 3})
	assert.ErrorIs(t, err, codec.ErrLengthMismatch)

	buf, err := m.Buffer("x")
	require.NoError(t, err)
	assert.Equal(t, 4, buf.Len)
	dtype, err := m.DType("y")
	require.NoError(t, err)
	assert.Equal(t, native.Float32, dtype)
	assert.Equal(t, []string{"x"}, m.Inputs())
	assert.Equal(t, []string{"y"}, m.Outputs())

	require.NoError(t, m.Close())
	assert.True(t, errors.Is(m.Run(), native.StdError))
	assert.True(t, errors.Is(m.SetInput("x", []float32{1, 2, 3, 4}), native.StdError))

	buf, err = m.Buffer("x")
	assert.True(t, errors.Is(err, native.StdError))
	assert.Equal(t, native.Buffer{}, buf)
	dims, err := m.Dims("y")
	assert.True(t, errors.Is(err, native.StdError))
	assert.Nil(t, dims)
	_, err = m.DType("y")
	assert.True(t, errors.Is(err, native.StdError))
	_, err = m.Output("y")
	assert.True(t, errors.Is(err, native.StdError))
}

func TestRunFailure(t *testing.T) {
	e := newTestEngine()
	m := buildModel(t, e, doubleConfig(1))
	defer m.Close()

	e.FailOn(enginetest.OpRun, native.StatusDimensionMismatch, "menoh dimension mismatch error: runtime shape")
	err := m.Run()
	assert.True(t, errors.Is(err, native.DimensionMismatch))
	assert.Equal(t, "menoh dimension mismatch error: runtime shape", err.Error())

	e.Reset()
	assert.NoError(t, m.Run())
}

func TestConcurrentRunsSerialize(t *testing.T) {
	e := newTestEngine()
	m := buildModel(t, e, doubleConfig(1))
	defer m.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Run())
		}()
	}
	wg.Wait()
	assert.Equal(t, 8, e.Runs())
}

func TestOverlappingNames(t *testing.T) {
	e := newTestEngine()
	cfg := doubleConfig(1)
	cfg.Outputs = []string{"y", "x"}
	m := buildModel(t, e, cfg)
	defer m.Close()

	require.NoError(t, m.SetInput("x", []float32{1, 2, 3, 4}))
	require.NoError(t, m.Run())
	results, err := m.Results()
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, results["x"].Floats)
	assert.Equal(t, []float64{3, 5, 7, 9}, results["y"].Floats)
	assert.Equal(t, 1, e.Live()[native.KindModel])
}

func TestDynamicBatch(t *testing.T) {
	e := newTestEngine()
	m := buildModel(t, e, doubleConfig(3))
	defer m.Close()

	dims, err := m.Dims("y")
	require.NoError(t, err)
	assert.Equal(t, []int32{3, 4}, dims)

	require.NoError(t, m.SetInput("x", make([]float32, 12)))
	require.NoError(t, m.Run())
	out, err := m.Output("y")
	require.NoError(t, err)
	row, err := out.Batch(2)
	require.NoError(t, err)
	assert.Equal(t, []int32{4}, row.Shape)
	assert.Equal(t, []float64{1, 1, 1, 1}, row.Floats)
}
