// Package datalayer defines the narrow contract the controller core
// consumes from the (out-of-scope) persistent data layer, per spec.md
// section 6. The core only ever depends on this interface; concrete
// implementations (in-memory, SQL-backed) live in subpackages.
package datalayer

import (
	"context"
	"time"

	"github.com/wave-autoscale/wave-autoscale-go/internal/history"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

// Cursor opaquely tracks how far MetricUpdater has drained the sample
// stream. The core never inspects its contents.
type Cursor string

// DataLayer is the contract consumed by the controller core. An external
// HTTP API server, CLI, and the definition-file sync logic are the only
// other writers; the core treats it as read-mostly plus history appends.
type DataLayer interface {
	GetEnabledMetrics(ctx context.Context) ([]planning.MetricDefinition, error)
	GetEnabledScalingComponents(ctx context.Context) ([]planning.ScalingComponent, error)
	GetEnabledPlans(ctx context.Context) ([]planning.ScalingPlan, error)

	// UpsertMetrics, UpsertScalingComponents and UpsertPlans admit or
	// replace definitions by id. They back definitionsync.SyncFile and the
	// (out-of-scope) HTTP admin API; the core itself never calls them.
	UpsertMetrics(ctx context.Context, defs []planning.MetricDefinition) error
	UpsertScalingComponents(ctx context.Context, defs []planning.ScalingComponent) error
	UpsertPlans(ctx context.Context, defs []planning.ScalingPlan) error

	// WatchDefinitions returns a channel that receives a value every time
	// the definition set changes, polling at pollMs. The channel is
	// last-value-wins: only the fact that something changed matters.
	WatchDefinitions(ctx context.Context, pollMs int64) <-chan struct{}

	DrainSamplesSince(ctx context.Context, cursor Cursor) ([]planning.MetricSample, Cursor, error)

	AppendAutoscalingHistory(ctx context.Context, row history.Row) error
	RemoveOldAutoscalingHistory(ctx context.Context, before time.Time) error

	// DeleteAllMetrics, DeleteAllScalingComponents and DeleteAllPlans back
	// reset_definitions_on_startup.
	DeleteAllMetrics(ctx context.Context) error
	DeleteAllScalingComponents(ctx context.Context) error
	DeleteAllPlans(ctx context.Context) error
}
