package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer/memory"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricupdater"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/webhook"
)

func adapterFactories() map[string]scalingcomponent.AdapterFactory {
	return map[string]scalingcomponent.AdapterFactory{
		"generic-webhook": webhook.NewFactory(),
	}
}

// TestControllerEndToEndDispatchesOnThreshold exercises the full reload ->
// metric-ingest -> plan-evaluation -> adapter-dispatch -> history path
// against the in-memory data layer and a real HTTP webhook target.
func TestControllerEndToEndDispatchesOnThreshold(t *testing.T) {
	var hits int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	data := memory.New()
	data.PutMetric(planning.MetricDefinition{ID: "cpu", Collector: "vector", Kind: "gauge"})
	data.PutScalingComponent(planning.ScalingComponent{
		ID:   "svc-a",
		Kind: "generic-webhook",
		Metadata: map[string]any{
			"url": server.URL,
		},
	})
	data.PutPlan(planning.ScalingPlan{
		ID:         "plan-1",
		IntervalMs: 20,
		CooldownMs: 0,
		Plans: []planning.PlanRule{
			{
				ID:         "rule-1",
				Expression: "get('cpu', {}, 10000, avg) > 50",
				Priority:   1,
				ScalingComponents: []planning.ScalingComponentRef{
					{ComponentID: "svc-a"},
				},
			},
		},
	})

	now := time.Now()
	for i, v := range []float64{60, 70, 80} {
		data.PushSample(planning.MetricSample{
			MetricID:  "cpu",
			Value:     v,
			Timestamp: now.Add(time.Duration(i) * time.Millisecond),
		})
	}

	controller := New(data, 500, 10, adapterFactories(), "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- controller.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&hits) >= 1
	}, 2*time.Second, 10*time.Millisecond, "webhook should have been dispatched at least once")

	cancel()
	controller.Stop()
	require.NoError(t, <-done)

	rows := data.HistoryRows()
	require.NotEmpty(t, rows)
	assert.Equal(t, "plan-1", rows[0].PlanID)
	assert.Equal(t, "rule-1", rows[0].PlanRuleID)
	assert.Nil(t, rows[0].FailMessage)
}

// TestControllerReloadDropsStalePlan verifies that removing a plan from the
// data layer stops its task and that a reload with zero plans leaves the
// updater stopped (spec.md section 4.5's "restart only if plans exist" rule).
func TestControllerReloadDropsStalePlan(t *testing.T) {
	data := memory.New()
	data.PutPlan(planning.ScalingPlan{
		ID:         "plan-1",
		IntervalMs: 10,
		Plans: []planning.PlanRule{
			{ID: "rule-1", Expression: "false"},
		},
	})

	controller := New(data, 500, 10, adapterFactories(), "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- controller.Run(ctx) }()

	require.Eventually(t, func() bool {
		return controller.planners.PlanCount() == 1
	}, time.Second, 5*time.Millisecond)

	data.RemovePlan("plan-1")

	require.Eventually(t, func() bool {
		return controller.planners.PlanCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, metricupdater.Stopped, controller.updater.State())

	cancel()
	controller.Stop()
	require.NoError(t, <-done)
}

// TestControllerRejectsDoubleRun guards the "call Run once" contract.
func TestControllerRejectsDoubleRun(t *testing.T) {
	data := memory.New()
	controller := New(data, 500, 10, adapterFactories(), "")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- controller.Run(ctx) }()

	require.Eventually(t, func() bool {
		controller.mu.Lock()
		defer controller.mu.Unlock()
		return controller.started
	}, time.Second, 5*time.Millisecond)

	err := controller.Run(context.Background())
	require.Error(t, err)

	cancel()
	controller.Stop()
	require.NoError(t, <-done)
}
