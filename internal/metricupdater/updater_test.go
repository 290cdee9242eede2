package metricupdater

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer/memory"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricbuffer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

func TestStartStopIdempotent(t *testing.T) {
	store := memory.New()
	buf := metricbuffer.New(500)
	u := New(store, buf, 20)

	u.Start()
	u.Start() // no-op
	assert.Equal(t, Running, u.State())

	u.Stop()
	u.Stop() // no-op
	assert.Equal(t, Stopped, u.State())
}

func TestDrainsSamplesIntoBuffer(t *testing.T) {
	store := memory.New()
	buf := metricbuffer.New(500)
	u := New(store, buf, 10)

	store.PushSample(planning.MetricSample{MetricID: "cpu", Value: 55, Timestamp: time.Now()})

	u.Start()
	defer u.Stop()

	require.Eventually(t, func() bool {
		_, ok := buf.Latest("cpu")
		return ok
	}, time.Second, 5*time.Millisecond)

	latest, ok := buf.Latest("cpu")
	require.True(t, ok)
	assert.Equal(t, 55.0, latest.Value)
}
