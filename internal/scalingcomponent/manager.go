package scalingcomponent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wave-autoscale/wave-autoscale-go/internal/cmdbus"
	"github.com/wave-autoscale/wave-autoscale-go/internal/logging"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

// slowDispatchThreshold is the spec.md section 5 warning threshold: the
// controller enforces no global wall-clock limit on adapter calls, but
// logs if a dispatch exceeds this.
const slowDispatchThreshold = 30 * time.Second

// Manager holds the component_id -> Adapter registry and routes dispatch
// calls to it. State is owned by a single goroutine (via cmdbus) rather
// than guarded by a bare RWMutex, per the REDESIGN FLAGS in spec.md
// section 9.
type Manager struct {
	bus       *cmdbus.Bus
	factories map[string]AdapterFactory // kind -> factory
	adapters  map[string]Adapter        // component_id -> bound adapter
	log       zerolog.Logger
}

// NewManager creates a Manager with the given kind->factory registry. The
// registry is fixed at construction; spec.md's "built-in adapter variants"
// are wired once at startup by cmd/wavectl.
func NewManager(factories map[string]AdapterFactory) *Manager {
	return &Manager{
		bus:       cmdbus.Start(),
		factories: factories,
		adapters:  make(map[string]Adapter),
		log:       logging.Named("scaling_component_manager"),
	}
}

// Close stops the owner goroutine. Safe to call once.
func (m *Manager) Close() {
	m.bus.Stop()
}

// AddDefinitions admits a batch of ScalingComponents atomically: either
// every component is admitted and becomes the entire registry, or the
// batch is rejected and the previous registry is left untouched. A
// component present in the previous registry but absent from this batch
// is dropped, matching ScalingPlannerManager's reload semantics.
func (m *Manager) AddDefinitions(components []planning.ScalingComponent) error {
	built := make(map[string]Adapter, len(components))
	for _, c := range components {
		factory, ok := m.factories[c.Kind]
		if !ok {
			return fmt.Errorf("config error: unknown scaling component kind %q for %q", c.Kind, c.ID)
		}
		adapter, err := factory(c.Metadata)
		if err != nil {
			return fmt.Errorf("config error: component %q: %w", c.ID, err)
		}
		built[c.ID] = adapter
	}

	m.bus.Do(func() {
		m.adapters = built
	})
	return nil
}

// RemoveAll clears the registry.
func (m *Manager) RemoveAll() {
	m.bus.Do(func() {
		m.adapters = make(map[string]Adapter)
	})
}

// Dispatch routes params to the adapter registered for componentID. Errors
// from the adapter are returned to the caller (the planner) and never
// retried here.
func (m *Manager) Dispatch(ctx context.Context, componentID string, params map[string]any) (Ack, error) {
	var adapter Adapter
	m.bus.Do(func() {
		adapter = m.adapters[componentID]
	})
	if adapter == nil {
		return Ack{}, &ErrUnknownComponent{ComponentID: componentID}
	}

	start := time.Now()
	ack, adapterErr := adapter.Apply(ctx, params)
	if elapsed := time.Since(start); elapsed > slowDispatchThreshold {
		m.log.Warn().
			Str("component_id", componentID).
			Dur("elapsed", elapsed).
			Msg("dispatch exceeded warning threshold")
	}
	if adapterErr != nil {
		return Ack{}, adapterErr
	}
	return ack, nil
}
