package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/gomithril/menoh/native"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorHandles(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Acquired(native.KindModel)
	c.Acquired(native.KindModel)
	c.Released(native.KindModel)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.acquired.WithLabelValues("model")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.released.WithLabelValues("model")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.live.WithLabelValues("model")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.live.WithLabelValues("model_data")))

	n, err := testutil.GatherAndCount(reg, "menoh_engine_handles_live")
	require.NoError(t, err)
	assert.Equal(t, len(native.Kinds), n)
}

func TestCollectorRuns(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Ran(time.Millisecond, nil)
	c.Ran(time.Millisecond, native.Errorf(native.StatusBackendError, "menoh backend error: boom"))
	c.Ran(time.Millisecond, errors.New("plain"))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("BackendError")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.runs.WithLabelValues("UnknownError")))

	n, err := testutil.GatherAndCount(reg, "menoh_model_run_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCollectorUnregistered(t *testing.T) {
	c := NewCollector(nil)
	c.Acquired(native.KindModelData)
	assert.Equal(t, 1.0, testutil.ToFloat64(c.live.WithLabelValues("model_data")))
}
