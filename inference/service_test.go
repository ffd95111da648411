package inference

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gomithril/menoh/enginetest"
	"github.com/gomithril/menoh/metrics"
	"github.com/gomithril/menoh/native"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService(t *testing.T) {
	e := newTestEngine()
	svc, err := NewService(e, doubleConfig(1))
	require.NoError(t, err)
	assert.Equal(t, map[native.Kind]int{
		native.KindModelData:           0,
		native.KindProfileTableBuilder: 0,
		native.KindProfileTable:        0,
		native.KindModelBuilder:        0,
		native.KindModel:               1,
	}, e.Live())

	results, err := svc.Run(map[string]any{"x": []float64{1, 2, 3, 4}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 5, 7, 9}, results["y"].Floats)

	_, err = svc.Run(map[string]any{"x": []float64{1}})
	assert.Error(t, err)

	require.NoError(t, svc.Close())
	assert.Equal(t, 0, e.LiveTotal())
}

func TestServiceValidatesConfig(t *testing.T) {
	e := newTestEngine()
	cfg := doubleConfig(1)
	cfg.Inputs = append(cfg.Inputs, cfg.Inputs[0])
	_, err := NewService(e, cfg)
	assert.True(t, errors.Is(err, native.DuplicateVariable))

	_, err = NewService(e, nil)
	assert.True(t, errors.Is(err, native.InvalidFilename), "default model path is not registered")
	assert.Equal(t, 0, e.LiveTotal())
}

func TestServiceRunFailureIsWrapped(t *testing.T) {
	e := newTestEngine()
	svc, err := NewService(e, doubleConfig(1))
	require.NoError(t, err)
	defer svc.Close()

	e.FailOn(enginetest.OpRun, native.StatusBackendError, "menoh backend error: device lost")
	_, err = svc.Run(map[string]any{"x": []float32{1, 2, 3, 4}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, native.BackendError))
	assert.Contains(t, err.Error(), "device lost")
}

func TestInstrumentedPipeline(t *testing.T) {
	e := newTestEngine()
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)
	engine := native.Instrument(e, c)

	e.FailOn(enginetest.OpOptimize, native.StatusFailedToConfigureOperator, "menoh failed to configure operator error: Conv")
	_, err := NewService(engine, vggConfig())
	assert.True(t, errors.Is(err, native.FailedToConfigureOperator))
	e.Reset()

	svc, err := NewService(engine, doubleConfig(1))
	require.NoError(t, err)
	_, err = svc.Run(map[string]any{"x": []float32{0, 0, 0, 0}})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "menoh_engine_handles_live" {
			continue
		}
		for _, m := range mf.GetMetric() {
			assert.Equal(t, 0.0, m.GetGauge().GetValue(), m.String())
		}
	}
	n, err := testutil.GatherAndCount(reg, "menoh_model_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPool(t *testing.T) {
	e := newTestEngine()
	pool, err := NewPool(e, doubleConfig(1), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, pool.Size())
	assert.Equal(t, 3, e.LiveTotal())

	batches := make([]map[string]any, 10)
	for i := range batches {
		v := float64(i)
		batches[i] = map[string]any{"x": []float64{v, v, v, v}}
	}
	results, err := pool.Run(context.Background(), batches)
	require.NoError(t, err)
	require.Len(t, results, 10)
	for i, r := range results {
		want := 2*float64(i) + 1
		assert.Equal(t, []float64{want, want, want, want}, r["y"].Floats, "batch %d", i)
	}
	assert.Equal(t, 10, e.Runs())

	require.NoError(t, pool.Close())
	assert.Equal(t, 0, e.LiveTotal())
}

func TestPoolStopsOnFailure(t *testing.T) {
	e := enginetest.New()
	g := enginetest.Elementwise("x", "y", native.Float32, []int64{1, 4}, func(v float64) float64 { return v })
	eval := g.Eval
	g.Eval = func(in map[string][]float64, dims map[string][]int32) (map[string][]float64, error) {
		if in["x"][0] < 0 {
			return nil, errors.New("negative input")
		}
		return eval(in, dims)
	}
	e.AddGraph(doublePath, g)

	pool, err := NewPool(e, doubleConfig(1), 2)
	require.NoError(t, err)
	defer pool.Close()

	_, err = pool.Run(context.Background(), []map[string]any{
		{"x": []float64{1, 1, 1, 1}},
		{"x": []float64{-1, 1, 1, 1}},
		{"x": []float64{2, 2, 2, 2}},
	})
	assert.True(t, errors.Is(err, native.BackendError))
}

func TestPoolCancelled(t *testing.T) {
	e := newTestEngine()
	pool, err := NewPool(e, doubleConfig(1), 1)
	require.NoError(t, err)
	defer pool.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	_, err = pool.Run(ctx, []map[string]any{{"x": []float64{1, 1, 1, 1}}})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPoolBuildFailureReleasesModels(t *testing.T) {
	e := newTestEngine()
	e.FailOn(enginetest.OpVariableBuffer, native.StatusVariableNotFound, "menoh variable not found error: y")
	_, err := NewPool(e, doubleConfig(1), 4)
	assert.True(t, errors.Is(err, native.VariableNotFound))
	assert.Equal(t, 0, e.LiveTotal())
}
