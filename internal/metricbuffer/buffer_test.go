package metricbuffer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

func sample(metricID string, value float64, at time.Time) planning.MetricSample {
	return planning.MetricSample{MetricID: metricID, Value: value, Timestamp: at, Tags: map[string]string{}}
}

func TestQueryRoundTrip(t *testing.T) {
	buf := New(500)
	now := time.Now()
	buf.Push(sample("cpu", 42, now))

	v := buf.TaggedQuery("cpu", nil, 60_000, AggLatest)
	require.False(t, IsNoValue(v))
	assert.Equal(t, 42.0, v)
}

func TestAggregationsOverWindow(t *testing.T) {
	buf := New(500)
	now := time.Now()
	for i, v := range []float64{10, 20, 30, 80, 90} {
		buf.Push(sample("cpu", v, now.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, 46.0, buf.TaggedQuery("cpu", nil, 5_000_000, AggAvg))
	assert.Equal(t, 230.0, buf.TaggedQuery("cpu", nil, 5_000_000, AggSum))
	assert.Equal(t, 10.0, buf.TaggedQuery("cpu", nil, 5_000_000, AggMin))
	assert.Equal(t, 90.0, buf.TaggedQuery("cpu", nil, 5_000_000, AggMax))
	assert.Equal(t, 5.0, buf.TaggedQuery("cpu", nil, 5_000_000, AggCount))
	assert.Equal(t, 90.0, buf.TaggedQuery("cpu", nil, 5_000_000, AggLatest))
}

func TestEmptyWindowReturnsNoValue(t *testing.T) {
	buf := New(500)
	v := buf.TaggedQuery("cpu", nil, 1000, AggAvg)
	assert.True(t, IsNoValue(v))

	assert.Equal(t, 0.0, buf.TaggedQuery("cpu", nil, 1000, AggCount))
}

func TestTagFilter(t *testing.T) {
	buf := New(500)
	now := time.Now()
	s1 := sample("cpu", 10, now)
	s1.Tags = map[string]string{"az": "us-east-1a"}
	s2 := sample("cpu", 90, now)
	s2.Tags = map[string]string{"az": "us-east-1b"}
	buf.Push(s1)
	buf.Push(s2)

	v := buf.TaggedQuery("cpu", map[string]string{"az": "us-east-1a"}, 60_000, AggLatest)
	assert.Equal(t, 10.0, v)
}

func TestMemoryStaysUnderBudget(t *testing.T) {
	buf := New(1) // 1 KiB budget
	now := time.Now()
	for i := 0; i < 1000; i++ {
		buf.Push(sample(fmt.Sprintf("metric-%d", i%5), float64(i), now.Add(time.Duration(i)*time.Millisecond)))
		assert.LessOrEqual(t, buf.UsedBytes(), buf.budgetBytes)
	}
}

func TestEvictionDropsOldestAcrossMetrics(t *testing.T) {
	buf := New(1)
	now := time.Now()
	buf.Push(sample("b", -1, now.Add(-time.Millisecond)))
	for i := 0; i < 200; i++ {
		buf.Push(sample("a", float64(i), now.Add(time.Duration(i)*time.Millisecond)))
	}
	// Metric "b"'s only sample arrived first, so it is evicted before any of
	// "a"'s; "a"'s earliest samples go too, and Latest still works.
	_, ok := buf.Latest("b")
	assert.False(t, ok, "the globally oldest sample belongs to another metric and must be evicted first")
	latest, ok := buf.Latest("a")
	require.True(t, ok)
	assert.Equal(t, 199.0, latest.Value)

	first, ok := buf.Latest("does-not-exist")
	assert.False(t, ok)
	assert.Zero(t, first.Value)
}
