// Package app composes MetricBuffer, MetricUpdater, ScalingComponentManager
// and ScalingPlannerManager into the AppController runtime described in
// spec.md section 4.5, and owns the history-retention background job.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/logging"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricbuffer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricupdater"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingplanner"
)

// Controller wires the core runtime together and reacts to
// "definitions updated" notifications from the data layer.
type Controller struct {
	data datalayer.DataLayer
	buf  *metricbuffer.Buffer

	updater  *metricupdater.Updater
	adapters *scalingcomponent.Manager
	planners *scalingplanner.Manager

	retentionDuration time.Duration
	log               zerolog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds a Controller. adapterFactories is the fixed kind->factory
// registry cmd/wavectl assembles at startup; updateIntervalMs is the
// MetricUpdater poll cadence (cmd/wavectl passes 1000); retentionDuration
// is WaveConfig's autoscaling_history_retention.
func New(data datalayer.DataLayer, bufBudgetKB int, updateIntervalMs int64, adapterFactories map[string]scalingcomponent.AdapterFactory, retentionDuration string) *Controller {
	buf := metricbuffer.New(bufBudgetKB)
	adapters := scalingcomponent.NewManager(adapterFactories)
	updater := metricupdater.New(data, buf, updateIntervalMs)
	planners := scalingplanner.NewManager(buf, adapters, data)

	c := &Controller{
		data:     data,
		buf:      buf,
		updater:  updater,
		adapters: adapters,
		planners: planners,
		log:      logging.Named("app_controller"),
	}

	if retentionDuration != "" {
		d, err := time.ParseDuration(retentionDuration)
		if err != nil {
			c.log.Error().Err(err).Str("value", retentionDuration).Msg("invalid autoscaling_history_retention, retention job disabled")
		} else {
			c.retentionDuration = d
		}
	}

	return c
}

// MetricBuffer exposes the shared buffer for API-server ingestion paths
// outside the core (not itself in scope here).
func (c *Controller) MetricBuffer() *metricbuffer.Buffer { return c.buf }

// Run loads the current definitions, starts every manager, and spawns
// the history-retention job. It blocks until ctx is cancelled, reacting
// to WatchDefinitions notifications in the meantime.
func (c *Controller) Run(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return fmt.Errorf("controller already running")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.started = true
	c.mu.Unlock()

	if err := c.reload(ctx); err != nil {
		return fmt.Errorf("initial definition load: %w", err)
	}

	if c.retentionDuration > 0 {
		c.wg.Add(1)
		go c.retentionLoop(ctx)
	}

	watchMs := int64(5000)
	changes := c.data.WatchDefinitions(ctx, watchMs)
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := c.reload(ctx); err != nil {
				c.log.Error().Err(err).Msg("reload failed, previous state remains active")
			}
		}
	}
}

// Stop cancels Run, waits for background jobs to exit, and releases the
// owner goroutines behind the component and planner managers. Call once,
// after Run has returned or is about to.
func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
	c.adapters.Close()
	c.planners.Close()
}

func (c *Controller) shutdown() {
	c.updater.Stop()
	c.planners.Stop()
	c.wg.Wait()
}

// reload implements the AppController reload sequence from spec.md
// section 4.5: reload components atomically, then stop the updater and
// stop/reload/conditionally-restart the planners so that a newly
// registered metric is never evaluated against an empty buffer. The
// updater is only stopped once the component reload has succeeded, so
// a rejected component reload leaves the previous updater/planner state
// running untouched rather than stalling metric collection. If the plans
// cannot be loaded or are rejected, the updater and planners are
// restarted on the previous plan registry.
func (c *Controller) reload(ctx context.Context) error {
	components, err := c.data.GetEnabledScalingComponents(ctx)
	if err != nil {
		return fmt.Errorf("load scaling components: %w", err)
	}
	if err := c.adapters.AddDefinitions(components); err != nil {
		c.log.Error().Err(err).Msg("scaling component reload rejected, previous registry retained")
		return err
	}

	c.updater.Stop()
	c.planners.Stop()

	plans, err := c.data.GetEnabledPlans(ctx)
	if err != nil {
		err = fmt.Errorf("load scaling plans: %w", err)
	} else if err = c.planners.AddDefinitions(plans); err != nil {
		c.log.Error().Err(err).Msg("plan reload rejected, previous registry retained")
	}

	if c.planners.PlanCount() > 0 {
		c.updater.Start()
		c.planners.Run(ctx)
	}

	return err
}

func (c *Controller) retentionLoop(ctx context.Context) {
	defer c.wg.Done()
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-c.retentionDuration)
			if err := c.data.RemoveOldAutoscalingHistory(ctx, cutoff); err != nil {
				c.log.Error().Err(err).Msg("failed to prune autoscaling history")
			}
		}
	}
}
