package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raterudder/solarconsumer/pkg/types"
)

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordStart()
	m.RecordStart()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RunsInFlight))

	m.RecordFinish(types.RunStatusCompleted, nil)
	m.RecordFinish(types.RunStatusFailed, types.InvalidInput("years must be > 0"))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.RunsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("invalid_input")))

	m.RecordStart()
	m.RecordFinish(types.RunStatusFailed, errors.New("boom"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("internal")))

	m.RecordSimulate(250 * time.Millisecond)
	m.RecordCompute(time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(m.SimulateSeconds))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Greater(t, n, 0)

	// a second set on its own registry does not collide
	assert.NotPanics(t, func() { New(prometheus.NewRegistry()) })
}
