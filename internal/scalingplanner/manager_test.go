package scalingplanner

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/history"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricbuffer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

// fakeDispatcher records every Dispatch call and returns a canned result
// per component_id.
type fakeDispatcher struct {
	mu    sync.Mutex
	calls []string
	err   map[string]error
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{err: make(map[string]error)}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, componentID string, params map[string]any) (scalingcomponent.Ack, error) {
	f.mu.Lock()
	f.calls = append(f.calls, componentID)
	err := f.err[componentID]
	f.mu.Unlock()
	if err != nil {
		return scalingcomponent.Ack{}, err
	}
	return scalingcomponent.Ack{Message: "ok"}, nil
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakeAppender records every AutoscalingHistory row appended.
type fakeAppender struct {
	mu   sync.Mutex
	rows []history.Row
}

func newFakeAppender() *fakeAppender { return &fakeAppender{} }

func (f *fakeAppender) AppendAutoscalingHistory(ctx context.Context, row history.Row) error {
	f.mu.Lock()
	f.rows = append(f.rows, row)
	f.mu.Unlock()
	return nil
}

func (f *fakeAppender) snapshot() []history.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]history.Row, len(f.rows))
	copy(out, f.rows)
	return out
}

func pushSamples(buf *metricbuffer.Buffer, metricID string, values []float64) {
	base := time.Now().Add(-time.Duration(len(values)) * time.Second)
	for i, v := range values {
		buf.Push(planning.MetricSample{
			MetricID:  metricID,
			Value:     v,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		})
	}
}

func TestSingleThresholdDispatchesThenCoolsDown(t *testing.T) {
	buf := metricbuffer.New(500)
	pushSamples(buf, "cpu", []float64{10, 20, 30, 80, 90})

	dispatcher := newFakeDispatcher()
	appender := newFakeAppender()

	plan := planning.ScalingPlan{
		ID:         "plan-1",
		IntervalMs: 20,
		CooldownMs: 500,
		Plans: []planning.PlanRule{
			{
				ID:         "rule-1",
				Expression: "get('cpu', {}, 10000, avg) > 40",
				Priority:   1,
				ScalingComponents: []planning.ScalingComponentRef{
					{ComponentID: "svc-a"},
				},
			},
		},
	}

	rules, err := compilePlan(plan)
	require.NoError(t, err)
	tk := newTask(plan, rules, buf, dispatcher, appender)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tk.start(ctx)
	defer tk.stop()

	require.Eventually(t, func() bool {
		return dispatcher.callCount() >= 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	calls := dispatcher.callCount()
	assert.Equal(t, 1, calls, "cooldown should suppress further dispatches")

	rows := appender.snapshot()
	require.NotEmpty(t, rows)
	assert.Nil(t, rows[0].FailMessage)
	assert.False(t, rows[0].Suppressed)
	assert.InDelta(t, 46.0, rows[0].MetricValues["cpu"].Value, 0.01)

	require.Eventually(t, func() bool {
		rows := appender.snapshot()
		for _, r := range rows[1:] {
			if r.Suppressed {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond, "a later tick should record a cooldown-suppressed row")
}

func TestPriorityOrderSelectsHighestFirst(t *testing.T) {
	buf := metricbuffer.New(500)
	pushSamples(buf, "cpu", []float64{75})

	dispatcher := newFakeDispatcher()
	appender := newFakeAppender()

	plan := planning.ScalingPlan{
		ID:         "plan-2",
		IntervalMs: 20,
		CooldownMs: 0,
		Plans: []planning.PlanRule{
			{
				ID:         "rule-lo",
				Expression: "true",
				Priority:   1,
				ScalingComponents: []planning.ScalingComponentRef{
					{ComponentID: "svc-lo"},
				},
			},
			{
				ID:         "rule-hi",
				Expression: "get('cpu', {}, 10000, latest) > 70",
				Priority:   10,
				ScalingComponents: []planning.ScalingComponentRef{
					{ComponentID: "svc-hi"},
				},
			},
		},
	}

	rules, err := compilePlan(plan)
	require.NoError(t, err)
	assert.Equal(t, "rule-hi", rules[0].rule.ID, "higher priority rule must be evaluated first")

	tk := newTask(plan, rules, buf, dispatcher, appender)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tk.start(ctx)
	defer tk.stop()

	require.Eventually(t, func() bool {
		rows := appender.snapshot()
		return len(rows) >= 1
	}, time.Second, 5*time.Millisecond)

	rows := appender.snapshot()
	assert.Equal(t, "rule-hi", rows[0].PlanRuleID)
}

func TestCooldownAppliesAcrossRulesInSamePlan(t *testing.T) {
	buf := metricbuffer.New(500)
	dispatcher := newFakeDispatcher()
	appender := newFakeAppender()

	plan := planning.ScalingPlan{
		ID:         "plan-multi-rule",
		IntervalMs: 20,
		CooldownMs: 10000,
		Plans: []planning.PlanRule{
			{
				ID:         "rule-hi",
				Expression: "false",
				Priority:   10,
				ScalingComponents: []planning.ScalingComponentRef{
					{ComponentID: "svc-hi"},
				},
			},
			{
				ID:         "rule-lo",
				Expression: "true",
				Priority:   1,
				ScalingComponents: []planning.ScalingComponentRef{
					{ComponentID: "svc-lo"},
				},
			},
		},
	}

	rules, err := compilePlan(plan)
	require.NoError(t, err)
	tk := newTask(plan, rules, buf, dispatcher, appender)

	// Simulate rule-hi having dispatched a moment ago: the plan-wide
	// cooldown must still suppress rule-lo, even though rule-lo never
	// dispatched before and no per-rule record mentions it.
	tk.lastSuccessAt = time.Now()
	tk.hasLastSuccessAt = true

	tk.tick(context.Background())

	assert.Equal(t, 0, dispatcher.callCount(), "cooldown armed by another rule must suppress this rule's dispatch too")
	rows := appender.snapshot()
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Suppressed)
	assert.Equal(t, "rule-lo", rows[0].PlanRuleID)
}

func TestAdapterFailureSetsFailMessageAndDoesNotArmCooldown(t *testing.T) {
	buf := metricbuffer.New(500)
	pushSamples(buf, "cpu", []float64{90})

	dispatcher := newFakeDispatcher()
	dispatcher.err["svc-a"] = scalingcomponent.NewAdapterError(scalingcomponent.AdapterTimeout, assertErr("boom"))
	appender := newFakeAppender()

	plan := planning.ScalingPlan{
		ID:         "plan-3",
		IntervalMs: 20,
		CooldownMs: 10000,
		Plans: []planning.PlanRule{
			{
				ID:         "rule-1",
				Expression: "get('cpu', {}, 10000, latest) > 50",
				Priority:   1,
				ScalingComponents: []planning.ScalingComponentRef{
					{ComponentID: "svc-a"},
				},
			},
		},
	}

	rules, err := compilePlan(plan)
	require.NoError(t, err)
	tk := newTask(plan, rules, buf, dispatcher, appender)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tk.start(ctx)
	defer tk.stop()

	require.Eventually(t, func() bool {
		rows := appender.snapshot()
		return len(rows) >= 2
	}, time.Second, 5*time.Millisecond)

	rows := appender.snapshot()
	require.NotNil(t, rows[0].FailMessage)
	assert.Equal(t, "svc-a", rows[0].ComponentOutcomes[0].ComponentID)
	assert.False(t, rows[0].ComponentOutcomes[0].Success)
	assert.False(t, rows[1].Suppressed, "a failed dispatch must not arm the cooldown for the next tick")
}

func TestManagerAddDefinitionsRejectsBadExpression(t *testing.T) {
	buf := metricbuffer.New(500)
	m := NewManager(buf, newFakeDispatcher(), newFakeAppender())
	defer m.Close()

	err := m.AddDefinitions([]planning.ScalingPlan{
		{
			ID: "bad-plan",
			Plans: []planning.PlanRule{
				{ID: "r1", Expression: "unknown_identifier_xyz > 1"},
			},
		},
	})
	require.Error(t, err)
	assert.Equal(t, 0, m.PlanCount())
}

func TestManagerRunStopIdempotent(t *testing.T) {
	buf := metricbuffer.New(500)
	m := NewManager(buf, newFakeDispatcher(), newFakeAppender())
	defer m.Close()

	require.NoError(t, m.AddDefinitions([]planning.ScalingPlan{
		{ID: "p1", IntervalMs: 1000, Plans: []planning.PlanRule{{ID: "r1", Expression: "false"}}},
	}))

	ctx := context.Background()
	m.Run(ctx)
	m.Run(ctx) // no-op
	assert.Equal(t, 1, m.PlanCount())

	m.Stop()
	m.Stop() // no-op
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
