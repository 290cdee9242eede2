package collectorconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

func TestGenerateVectorConfigSkipsOtherCollectors(t *testing.T) {
	defs := []planning.MetricDefinition{
		{ID: "cpu", Collector: "vector", Kind: "host_metrics", Metadata: map[string]any{"scrape_interval_secs": 60}},
		{ID: "mem", Collector: "telegraf", Kind: "mem"},
	}

	out, err := GenerateVectorConfig(defs, "http://localhost:3024/api/metrics-receiver")
	require.NoError(t, err)
	assert.Contains(t, out, "cpu")
	assert.NotContains(t, out, "[sources.mem]")
	assert.Contains(t, out, "metric_id=cpu")
}

func TestGenerateTelegrafConfigGroupsByKind(t *testing.T) {
	defs := []planning.MetricDefinition{
		{ID: "mem-1", Collector: "telegraf", Kind: "mem"},
		{ID: "cpu-1", Collector: "telegraf", Kind: "cpu"},
		{ID: "vec-1", Collector: "vector", Kind: "cpu"},
	}

	out, err := GenerateTelegrafConfig(defs, "http://localhost:3024/api/metrics-receiver")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "mem") && strings.Contains(out, "cpu"))
	assert.Contains(t, out, "metric_id=mem-1")
	assert.NotContains(t, out, "metric_id=vec-1")
}
