// Package scalingplanner owns one scheduled task per ScalingPlan: a
// fixed-rate tick-skipping scheduler that evaluates PlanRule expressions
// and dispatches the first matching rule's scaling components.
package scalingplanner

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/wave-autoscale/wave-autoscale-go/internal/cmdbus"
	"github.com/wave-autoscale/wave-autoscale-go/internal/logging"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricbuffer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

// Manager holds the registered ScalingPlans and their running tasks.
// State transitions are serialized through cmdbus, the same
// single-owner-goroutine pattern ScalingComponentManager uses, rather
// than a bare sync.RWMutex.
type Manager struct {
	bus        *cmdbus.Bus
	buf        *metricbuffer.Buffer
	dispatcher Dispatcher
	appender   HistoryAppender
	log        zerolog.Logger

	plans   map[string]planning.ScalingPlan
	rules   map[string][]compiledRule
	tasks   map[string]*task
	running bool

	rootCtx    context.Context
	rootCancel context.CancelFunc
}

// NewManager builds a Manager that will dispatch through dispatcher and
// record outcomes through appender, evaluating rules against buf.
func NewManager(buf *metricbuffer.Buffer, dispatcher Dispatcher, appender HistoryAppender) *Manager {
	return &Manager{
		bus:        cmdbus.Start(),
		buf:        buf,
		dispatcher: dispatcher,
		appender:   appender,
		log:        logging.Named("scaling_planner_manager"),
		plans:      make(map[string]planning.ScalingPlan),
		rules:      make(map[string][]compiledRule),
		tasks:      make(map[string]*task),
	}
}

// Close stops the owner goroutine. Callers must Stop() first if any
// tasks are running.
func (m *Manager) Close() {
	m.bus.Stop()
}

// AddDefinitions admits a batch of ScalingPlans atomically: a plan whose
// expression fails to compile rejects the whole batch, leaving the
// previous registry untouched. It does not itself start tasks; call
// Run() after a reload per AppController's reload sequence.
func (m *Manager) AddDefinitions(plans []planning.ScalingPlan) error {
	newRules := make(map[string][]compiledRule, len(plans))
	newPlans := make(map[string]planning.ScalingPlan, len(plans))
	for _, p := range plans {
		rules, err := compilePlan(p)
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		newRules[p.ID] = rules
		newPlans[p.ID] = p
	}

	m.bus.Do(func() {
		m.plans = newPlans
		m.rules = newRules
	})
	return nil
}

// Run starts one task per registered plan. Calling Run while already
// running is a no-op.
func (m *Manager) Run(ctx context.Context) {
	m.bus.Do(func() {
		if m.running {
			return
		}
		m.rootCtx, m.rootCancel = context.WithCancel(ctx)
		m.tasks = make(map[string]*task, len(m.plans))
		for id, plan := range m.plans {
			t := newTask(plan, m.rules[id], m.buf, m.dispatcher, m.appender)
			t.start(m.rootCtx)
			m.tasks[id] = t
		}
		m.running = true
	})
}

// Stop signals every running task and joins them. Calling Stop while
// already stopped is a no-op.
func (m *Manager) Stop() {
	m.bus.Do(func() {
		if !m.running {
			return
		}
		for _, t := range m.tasks {
			t.stop()
		}
		if m.rootCancel != nil {
			m.rootCancel()
		}
		m.tasks = make(map[string]*task)
		m.running = false
	})
}

// RemoveAll stops every task and clears the registry.
func (m *Manager) RemoveAll() {
	m.Stop()
	m.bus.Do(func() {
		m.plans = make(map[string]planning.ScalingPlan)
		m.rules = make(map[string][]compiledRule)
	})
}

// PlanCount reports how many plans are currently registered, used by
// AppController to decide whether to (re)start after a reload.
func (m *Manager) PlanCount() int {
	var n int
	m.bus.Do(func() {
		n = len(m.plans)
	})
	return n
}
