// Package evalctx is the evaluation context a PlanRule expression runs
// against: a façade over MetricBuffer plus recent AutoscalingHistory,
// compiled once at plan admission with expr-lang/expr so that unknown
// identifiers fail at admission time rather than mid-evaluation.
package evalctx

import (
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/wave-autoscale/wave-autoscale-go/internal/metricbuffer"
)

// Aggregation name constants, exposed as Env fields so a rule expression
// can reference them as bare identifiers (e.g. "get('cpu', {}, 1000,
// latest)") instead of quoting the aggregation kind.
const (
	Avg    = "avg"
	Sum    = "sum"
	Min    = "min"
	Max    = "max"
	Count  = "count"
	Latest = "latest"
)

func aggOf(name string) metricbuffer.Agg {
	switch name {
	case Sum:
		return metricbuffer.AggSum
	case Min:
		return metricbuffer.AggMin
	case Max:
		return metricbuffer.AggMax
	case Count:
		return metricbuffer.AggCount
	case Latest:
		return metricbuffer.AggLatest
	default:
		return metricbuffer.AggAvg
	}
}

// HistoryInfo is the subset of a plan rule's recent history the
// expression language can observe.
type HistoryInfo struct {
	LastSuccessAgeMs int64 `expr:"last_success_age_ms"`
}

// Resolved is one metric_id's last-read value during an evaluation, kept
// so the planner can attach it to the AutoscalingHistory row it writes
// for that tick.
type Resolved struct {
	Value     float64
	Timestamp time.Time
}

// Env is the expr-lang environment struct: its exported fields are
// exactly the vocabulary a PlanRule expression may reference, each
// tagged with the lowercase identifier the expression language sees
// (Go exported names can't spell "get" or "avg" directly). Anything
// not listed here is an unknown identifier and fails expr.Compile.
type Env struct {
	Avg    string `expr:"avg"`
	Sum    string `expr:"sum"`
	Min    string `expr:"min"`
	Max    string `expr:"max"`
	Count  string `expr:"count"`
	Latest string `expr:"latest"`

	// GetFn resolves metric_id over the last window_ms milliseconds,
	// filtered by tags, aggregated per agg (one of the aggregation
	// constants above). Returns metricbuffer.NoValue (NaN) if the window
	// is empty, or 0 for count. NoValue follows plain NaN comparison
	// rules and never panics: <, <=, >, >= and == against it are false,
	// while != is true, so a rule written with != (or a negated
	// comparison) evaluates true on missing data.
	GetFn func(metricID string, tags map[string]interface{}, windowMs int, agg string) float64 `expr:"get"`

	// NowFn returns the current time as Unix milliseconds.
	NowFn func() int64 `expr:"now"`

	// HistoryFn returns the most recent history summary for planRuleID.
	HistoryFn func(planRuleID string) HistoryInfo `expr:"history"`

	mu       sync.Mutex
	resolved map[string]Resolved
}

// NewEnv builds an Env bound to a live MetricBuffer and a history
// lookup. A fresh Env is built for every tick so ResolvedMetrics only
// reflects that tick's Get calls.
func NewEnv(buf *metricbuffer.Buffer, historyFor func(planRuleID string) HistoryInfo) *Env {
	env := &Env{
		Avg: Avg, Sum: Sum, Min: Min, Max: Max, Count: Count, Latest: Latest,
	}
	env.GetFn = func(metricID string, tags map[string]interface{}, windowMs int, agg string) float64 {
		strTags := make(map[string]string, len(tags))
		for k, v := range tags {
			strTags[k] = fmt.Sprintf("%v", v)
		}
		v := buf.TaggedQuery(metricID, strTags, int64(windowMs), aggOf(agg))
		env.mu.Lock()
		if env.resolved == nil {
			env.resolved = make(map[string]Resolved)
		}
		env.resolved[metricID] = Resolved{Value: v, Timestamp: time.Now()}
		env.mu.Unlock()
		return v
	}
	env.NowFn = func() int64 {
		return time.Now().UnixMilli()
	}
	env.HistoryFn = func(planRuleID string) HistoryInfo {
		if historyFor == nil {
			return HistoryInfo{LastSuccessAgeMs: -1}
		}
		return historyFor(planRuleID)
	}
	return env
}

// ResolvedMetrics returns every metric_id this Env's get() was called
// with during the evaluation so far, keyed by metric_id (last call
// wins).
func (e *Env) ResolvedMetrics() map[string]Resolved {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Resolved, len(e.resolved))
	for k, v := range e.resolved {
		out[k] = v
	}
	return out
}

// Program is a compiled PlanRule expression, checked against Env's
// vocabulary once at admission time.
type Program struct {
	compiled *vm.Program
}

// Compile parses and type-checks expression against Env's vocabulary.
// Returns an error suitable for rejecting the owning plan rule at
// admission (spec.md's ExpressionError, "plan-admission-time only").
func Compile(expression string) (*Program, error) {
	compiled, err := expr.Compile(expression, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, err
	}
	return &Program{compiled: compiled}, nil
}

// Eval runs the compiled expression against env, returning its boolean
// result.
func (p *Program) Eval(env *Env) (bool, error) {
	out, err := expr.Run(p.compiled, env)
	if err != nil {
		return false, err
	}
	b, _ := out.(bool)
	return b, nil
}
