package scalingplanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wave-autoscale/wave-autoscale-go/internal/history"
	"github.com/wave-autoscale/wave-autoscale-go/internal/logging"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricbuffer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingplanner/evalctx"
)

// TaskState is a planner task's lifecycle state, per spec.md section 4.4.
type TaskState string

const (
	Idle        TaskState = "Idle"
	Evaluating  TaskState = "Evaluating"
	Dispatching TaskState = "Dispatching"
	Stopped     TaskState = "Stopped"
)

// compiledRule pairs a PlanRule with its admission-time-checked
// expression program.
type compiledRule struct {
	rule    planning.PlanRule
	program *evalctx.Program
}

// HistoryAppender is the narrow slice of DataLayer a task needs to record
// outcomes; it exists so tests can stub it without a full DataLayer.
type HistoryAppender interface {
	AppendAutoscalingHistory(ctx context.Context, row history.Row) error
}

// Dispatcher is the narrow slice of ScalingComponentManager a task needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, componentID string, params map[string]any) (scalingcomponent.Ack, error)
}

// task runs one ScalingPlan's per-tick evaluate/dispatch loop.
type task struct {
	plan  planning.ScalingPlan
	rules []compiledRule

	buf        *metricbuffer.Buffer
	dispatcher Dispatcher
	appender   HistoryAppender
	log        zerolog.Logger

	mu               sync.Mutex
	state            TaskState
	lastSuccessAt    time.Time // last successful dispatch time for this plan, any rule
	hasLastSuccessAt bool

	cancel context.CancelFunc
	done   chan struct{}
}

// compilePlan validates every rule's expression at admission time, per
// the ExpressionError rule: a bad expression rejects the plan wholesale.
func compilePlan(plan planning.ScalingPlan) ([]compiledRule, error) {
	rules := make([]compiledRule, 0, len(plan.Plans))
	for _, r := range plan.Plans {
		program, err := evalctx.Compile(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("plan %q rule %q: %w", plan.ID, r.ID, err)
		}
		rules = append(rules, compiledRule{rule: r, program: program})
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].rule.Priority != rules[j].rule.Priority {
			return rules[i].rule.Priority > rules[j].rule.Priority
		}
		return rules[i].rule.ID < rules[j].rule.ID
	})
	return rules, nil
}

func newTask(plan planning.ScalingPlan, rules []compiledRule, buf *metricbuffer.Buffer, dispatcher Dispatcher, appender HistoryAppender) *task {
	return &task{
		plan:       plan,
		rules:      rules,
		buf:        buf,
		dispatcher: dispatcher,
		appender:   appender,
		log:        logging.Named("scaling_planner").With().Str("plan_id", plan.ID).Logger(),
		state:      Idle,
	}
}

// start spawns the task's fixed-rate ticker loop. Missed ticks are
// skipped, never queued: time.Ticker already drops ticks the receiver
// didn't drain in time.
func (t *task) start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.done = make(chan struct{})

	interval := time.Duration(t.plan.IntervalMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		defer close(t.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.setState(Stopped)
				return
			case <-ticker.C:
				t.maybeTick(ctx)
			}
		}
	}()
}

func (t *task) stop() {
	if t.cancel == nil {
		return
	}
	t.cancel()
	<-t.done
}

func (t *task) setState(s TaskState) {
	t.mu.Lock()
	t.state = s
	t.mu.Unlock()
}

func (t *task) currentState() TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// maybeTick drops the tick if the previous one is still Evaluating or
// Dispatching, per the single-in-flight-per-plan invariant.
func (t *task) maybeTick(ctx context.Context) {
	t.mu.Lock()
	if t.state == Evaluating || t.state == Dispatching {
		t.mu.Unlock()
		t.log.Warn().Msg("previous tick still running, dropping this tick")
		return
	}
	t.state = Evaluating
	t.mu.Unlock()

	t.tick(ctx)

	t.mu.Lock()
	if t.state != Stopped {
		t.state = Idle
	}
	t.mu.Unlock()
}

// historyFor reports this plan's last successful dispatch age, the same
// value regardless of which rule asks: the cooldown gate it backs is
// keyed per plan, not per rule.
func (t *task) historyFor(planRuleID string) evalctx.HistoryInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.hasLastSuccessAt {
		return evalctx.HistoryInfo{LastSuccessAgeMs: -1}
	}
	return evalctx.HistoryInfo{LastSuccessAgeMs: time.Since(t.lastSuccessAt).Milliseconds()}
}

// tick runs one evaluation-then-dispatch cycle: select the first
// high-to-low-priority rule whose expression is true, cooldown-gate it,
// dispatch its scaling_components best-effort, and record one history
// row.
func (t *task) tick(ctx context.Context) {
	env := evalctx.NewEnv(t.buf, t.historyFor)

	var selected *compiledRule
	for i := range t.rules {
		ok, err := t.rules[i].program.Eval(env)
		if err != nil {
			t.log.Error().Err(err).Str("plan_rule_id", t.rules[i].rule.ID).Msg("rule evaluation error")
			continue
		}
		if ok {
			selected = &t.rules[i]
			break
		}
	}
	if selected == nil {
		return
	}

	t.mu.Lock()
	lastSuccess, hasLastSuccess := t.lastSuccessAt, t.hasLastSuccessAt
	t.mu.Unlock()

	// Cooldown gates the plan as a whole: a dispatch by any rule
	// suppresses every rule's dispatch until cooldown_ms has elapsed.
	cooldown := time.Duration(t.plan.CooldownMs) * time.Millisecond
	if hasLastSuccess && cooldown > 0 && time.Since(lastSuccess) < cooldown {
		t.writeSuppressedHistory(ctx, selected.rule, env)
		return
	}

	t.setState(Dispatching)
	outcomes := make([]history.ComponentOutcome, 0, len(selected.rule.ScalingComponents))
	anyFailed := false
	var firstFailure string
	for _, ref := range selected.rule.ScalingComponents {
		_, err := t.dispatcher.Dispatch(ctx, ref.ComponentID, ref.ActionParams)
		if err != nil {
			anyFailed = true
			if firstFailure == "" {
				firstFailure = err.Error()
			}
			outcomes = append(outcomes, history.ComponentOutcome{ComponentID: ref.ComponentID, Success: false, Error: err.Error()})
			continue
		}
		outcomes = append(outcomes, history.ComponentOutcome{ComponentID: ref.ComponentID, Success: true})
	}

	if !anyFailed {
		t.mu.Lock()
		t.lastSuccessAt = time.Now()
		t.hasLastSuccessAt = true
		t.mu.Unlock()
	}

	var failMsg *string
	if anyFailed {
		failMsg = strPtr(firstFailure)
	}
	t.writeHistoryWithOutcomes(ctx, selected.rule, env, outcomes, failMsg)
}

// writeSuppressedHistory records a tick where dispatch was skipped by the
// cooldown gate. Per spec.md section 7, this is a normal outcome, not a
// failure, so it carries Suppressed=true rather than a FailMessage.
func (t *task) writeSuppressedHistory(ctx context.Context, rule planning.PlanRule, env *evalctx.Env) {
	row := t.buildRow(rule, env, nil, nil)
	row.Suppressed = true
	t.appendRow(ctx, row)
}

func (t *task) writeHistoryWithOutcomes(ctx context.Context, rule planning.PlanRule, env *evalctx.Env, outcomes []history.ComponentOutcome, failMsg *string) {
	row := t.buildRow(rule, env, outcomes, failMsg)
	t.appendRow(ctx, row)
}

func (t *task) buildRow(rule planning.PlanRule, env *evalctx.Env, outcomes []history.ComponentOutcome, failMsg *string) history.Row {
	metricValues := make(map[string]history.MetricValue)
	for id, r := range env.ResolvedMetrics() {
		metricValues[id] = history.MetricValue{Value: r.Value, Timestamp: r.Timestamp}
	}

	return history.Row{
		ID:                uuid.NewString(),
		PlanID:            t.plan.ID,
		PlanRuleID:        rule.ID,
		MetricValues:      metricValues,
		ComponentOutcomes: outcomes,
		FailMessage:       failMsg,
		Timestamp:         time.Now(),
	}
}

func (t *task) appendRow(ctx context.Context, row history.Row) {
	if err := t.appender.AppendAutoscalingHistory(ctx, row); err != nil {
		t.log.Error().Err(err).Msg("failed to append autoscaling history row")
	}
}

func strPtr(s string) *string { return &s }
