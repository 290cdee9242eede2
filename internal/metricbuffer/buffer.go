// Package metricbuffer implements the bounded, per-metric ring of recent
// samples that ScalingPlanner tasks read from and MetricUpdater writes to.
package metricbuffer

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

// Agg selects the aggregation function applied by Query/TaggedQuery.
type Agg string

const (
	AggAvg    Agg = "avg"
	AggSum    Agg = "sum"
	AggMin    Agg = "min"
	AggMax    Agg = "max"
	AggCount  Agg = "count"
	AggLatest Agg = "latest"
)

// NoValue is the sentinel result of aggregating over an empty window. It is
// distinct from 0.0 so a plan-rule comparison against it can be recognized
// as "no data" rather than "data says zero".
var NoValue = math.NaN()

// IsNoValue reports whether v is the NoValue sentinel.
func IsNoValue(v float64) bool {
	return math.IsNaN(v)
}

// sampleOverhead approximates the per-sample bookkeeping cost (tags map
// headers, slice slot) on top of the value+timestamp payload, so the byte
// budget tracks real memory pressure rather than just 16 bytes/sample.
const sampleOverhead = 64

// Buffer is a concurrent mapping from metric_id to a bounded time-ordered
// sequence of samples, evicted against a single shared byte budget.
type Buffer struct {
	mu sync.RWMutex

	budgetBytes   int64
	lowWaterBytes int64
	usedBytes     int64

	series map[string][]planning.MetricSample
	// order records every sample's arrival across all metrics, for the
	// global oldest-first eviction spec.md requires.
	order []seriesEntry
}

type seriesEntry struct {
	metricID string
}

// New creates a Buffer with the given byte budget. The low-water mark is
// 75% of the budget, per spec.md section 4.1.
func New(budgetKB int) *Buffer {
	if budgetKB <= 0 {
		budgetKB = 500
	}
	budget := int64(budgetKB) * 1024
	return &Buffer{
		budgetBytes:   budget,
		lowWaterBytes: budget * 3 / 4,
		series:        make(map[string][]planning.MetricSample),
	}
}

func sampleSize(s planning.MetricSample) int64 {
	size := int64(len(s.MetricID)) + 8 + 8 + sampleOverhead
	for k, v := range s.Tags {
		size += int64(len(k) + len(v))
	}
	return size
}

// Push appends a sample, evicting the globally oldest samples (across all
// metrics) until usage is back under the low-water mark whenever a push
// would exceed the budget.
func (b *Buffer) Push(s planning.MetricSample) {
	b.mu.Lock()
	defer b.mu.Unlock()

	size := sampleSize(s)
	b.series[s.MetricID] = append(b.series[s.MetricID], s)
	b.order = append(b.order, seriesEntry{metricID: s.MetricID})
	b.usedBytes += size

	if b.usedBytes > b.budgetBytes {
		b.evictLocked()
	}
}

// evictLocked drops the oldest sample across all metrics repeatedly until
// usage is at or below the low-water mark. Must be called with mu held.
func (b *Buffer) evictLocked() {
	for b.usedBytes > b.lowWaterBytes && len(b.order) > 0 {
		oldest := b.order[0]
		b.order = b.order[1:]

		series := b.series[oldest.metricID]
		if len(series) == 0 {
			continue
		}
		b.usedBytes -= sampleSize(series[0])
		b.series[oldest.metricID] = series[1:]
	}
}

// UsedBytes returns current tracked memory usage, for tests asserting the
// budget invariant.
func (b *Buffer) UsedBytes() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usedBytes
}

// Query returns every sample for metricID within windowMs of now, oldest
// first.
func (b *Buffer) Query(metricID string, windowMs int64) []planning.MetricSample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.windowLocked(metricID, windowMs, nil)
}

// Latest returns the most recently pushed sample for metricID, if any.
func (b *Buffer) Latest(metricID string) (planning.MetricSample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	series := b.series[metricID]
	if len(series) == 0 {
		return planning.MetricSample{}, false
	}
	return series[len(series)-1], true
}

// TaggedQuery aggregates samples for metricID within windowMs of now whose
// tags match every key/value in tagFilter, using agg. Returns NoValue if
// no sample matches, except for AggCount, which returns 0.
func (b *Buffer) TaggedQuery(metricID string, tagFilter map[string]string, windowMs int64, agg Agg) float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	matched := b.windowLocked(metricID, windowMs, tagFilter)
	return aggregate(matched, agg)
}

func (b *Buffer) windowLocked(metricID string, windowMs int64, tagFilter map[string]string) []planning.MetricSample {
	series := b.series[metricID]
	if len(series) == 0 {
		return nil
	}

	cutoff := time.Now().Add(-time.Duration(windowMs) * time.Millisecond)
	out := make([]planning.MetricSample, 0, len(series))
	for _, s := range series {
		if windowMs > 0 && s.Timestamp.Before(cutoff) {
			continue
		}
		if !matchesTags(s.Tags, tagFilter) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func matchesTags(tags, filter map[string]string) bool {
	for k, v := range filter {
		if tags[k] != v {
			return false
		}
	}
	return true
}

func aggregate(samples []planning.MetricSample, agg Agg) float64 {
	if len(samples) == 0 {
		if agg == AggCount {
			return 0
		}
		return NoValue
	}

	switch agg {
	case AggLatest:
		return samples[len(samples)-1].Value
	case AggCount:
		return float64(len(samples))
	case AggSum, AggAvg:
		var sum float64
		for _, s := range samples {
			sum += s.Value
		}
		if agg == AggSum {
			return sum
		}
		return sum / float64(len(samples))
	case AggMin:
		min := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value < min {
				min = s.Value
			}
		}
		return min
	case AggMax:
		max := samples[0].Value
		for _, s := range samples[1:] {
			if s.Value > max {
				max = s.Value
			}
		}
		return max
	default:
		return NoValue
	}
}
