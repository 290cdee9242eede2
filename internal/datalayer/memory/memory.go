// Package memory is an in-memory DataLayer used by controller tests and by
// examples that don't need durability.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/history"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

// Store is a thread-safe, in-memory DataLayer implementation.
type Store struct {
	mu sync.Mutex

	metrics    map[string]planning.MetricDefinition
	components map[string]planning.ScalingComponent
	plans      map[string]planning.ScalingPlan

	samples    []planning.MetricSample
	historyRow []history.Row

	watchers []chan struct{}
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		metrics:    make(map[string]planning.MetricDefinition),
		components: make(map[string]planning.ScalingComponent),
		plans:      make(map[string]planning.ScalingPlan),
	}
}

var _ datalayer.DataLayer = (*Store)(nil)

// PutMetric admits or replaces a metric definition and notifies watchers.
func (s *Store) PutMetric(m planning.MetricDefinition) {
	s.mu.Lock()
	s.metrics[m.ID] = m
	s.mu.Unlock()
	s.notify()
}

// PutScalingComponent admits or replaces a scaling component and notifies watchers.
func (s *Store) PutScalingComponent(c planning.ScalingComponent) {
	s.mu.Lock()
	s.components[c.ID] = c
	s.mu.Unlock()
	s.notify()
}

// PutPlan admits or replaces a scaling plan and notifies watchers.
func (s *Store) PutPlan(p planning.ScalingPlan) {
	s.mu.Lock()
	s.plans[p.ID] = p
	s.mu.Unlock()
	s.notify()
}

// RemovePlan removes a plan by id and notifies watchers.
func (s *Store) RemovePlan(id string) {
	s.mu.Lock()
	delete(s.plans, id)
	s.mu.Unlock()
	s.notify()
}

// PushSample appends a sample to the drainable stream, as if a collector
// had just delivered it through the API server.
func (s *Store) PushSample(sample planning.MetricSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, sample)
}

// HistoryRows returns a snapshot of every row appended so far, for test
// assertions.
func (s *Store) HistoryRows() []history.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]history.Row, len(s.historyRow))
	copy(out, s.historyRow)
	return out
}

func (s *Store) notify() {
	s.mu.Lock()
	watchers := append([]chan struct{}(nil), s.watchers...)
	s.mu.Unlock()
	for _, w := range watchers {
		select {
		case w <- struct{}{}:
		default:
		}
	}
}

func (s *Store) GetEnabledMetrics(ctx context.Context) ([]planning.MetricDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]planning.MetricDefinition, 0, len(s.metrics))
	for _, m := range s.metrics {
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) GetEnabledScalingComponents(ctx context.Context) ([]planning.ScalingComponent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]planning.ScalingComponent, 0, len(s.components))
	for _, c := range s.components {
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) GetEnabledPlans(ctx context.Context) ([]planning.ScalingPlan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]planning.ScalingPlan, 0, len(s.plans))
	for _, p := range s.plans {
		out = append(out, p)
	}
	return out, nil
}

// WatchDefinitions registers a notification channel that PutMetric,
// PutScalingComponent, PutPlan and RemovePlan signal synchronously. pollMs
// is ignored: the in-memory store adds no polling or coalescing delay.
func (s *Store) WatchDefinitions(ctx context.Context, pollMs int64) <-chan struct{} {
	ch := make(chan struct{}, 1)
	s.mu.Lock()
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, w := range s.watchers {
			if w == ch {
				s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
				break
			}
		}
	}()
	return ch
}

func (s *Store) DrainSamplesSince(ctx context.Context, cursor datalayer.Cursor) ([]planning.MetricSample, datalayer.Cursor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	offset := 0
	if cursor != "" {
		var parsed int
		if _, err := fmt.Sscanf(string(cursor), "%d", &parsed); err == nil {
			offset = parsed
		}
	}
	if offset > len(s.samples) {
		offset = len(s.samples)
	}
	drained := append([]planning.MetricSample(nil), s.samples[offset:]...)
	next := datalayer.Cursor(fmt.Sprintf("%d", len(s.samples)))
	return drained, next, nil
}

func (s *Store) AppendAutoscalingHistory(ctx context.Context, row history.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.historyRow = append(s.historyRow, row)
	return nil
}

func (s *Store) RemoveOldAutoscalingHistory(ctx context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.historyRow[:0]
	for _, row := range s.historyRow {
		if row.Timestamp.After(before) {
			kept = append(kept, row)
		}
	}
	s.historyRow = kept
	return nil
}

func (s *Store) UpsertMetrics(ctx context.Context, defs []planning.MetricDefinition) error {
	for _, d := range defs {
		s.PutMetric(d)
	}
	return nil
}

func (s *Store) UpsertScalingComponents(ctx context.Context, defs []planning.ScalingComponent) error {
	for _, d := range defs {
		s.PutScalingComponent(d)
	}
	return nil
}

func (s *Store) UpsertPlans(ctx context.Context, defs []planning.ScalingPlan) error {
	for _, d := range defs {
		s.PutPlan(d)
	}
	return nil
}

func (s *Store) DeleteAllMetrics(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = make(map[string]planning.MetricDefinition)
	return nil
}

func (s *Store) DeleteAllScalingComponents(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = make(map[string]planning.ScalingComponent)
	return nil
}

func (s *Store) DeleteAllPlans(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]planning.ScalingPlan)
	return nil
}
