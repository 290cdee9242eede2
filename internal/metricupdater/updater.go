// Package metricupdater drains the data layer's metric-sample stream into
// a MetricBuffer on a fixed cadence.
package metricupdater

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/logging"
	"github.com/wave-autoscale/wave-autoscale-go/internal/metricbuffer"
)

// State is the MetricUpdater lifecycle state.
type State int

const (
	Stopped State = iota
	Running
)

// Updater polls DataLayer.DrainSamplesSince on a fixed cadence and pushes
// every drained sample into a MetricBuffer. Start/Stop are idempotent.
type Updater struct {
	data       datalayer.DataLayer
	buf        *metricbuffer.Buffer
	intervalMs int64
	log        zerolog.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
	cursor datalayer.Cursor
}

// New creates an Updater in the Stopped state. intervalMs defaults to
// 1000ms when zero or negative.
func New(data datalayer.DataLayer, buf *metricbuffer.Buffer, intervalMs int64) *Updater {
	if intervalMs <= 0 {
		intervalMs = 1000
	}
	return &Updater{
		data:       data,
		buf:        buf,
		intervalMs: intervalMs,
		log:        logging.Named("metric_updater"),
		state:      Stopped,
	}
}

// State returns the current lifecycle state.
func (u *Updater) State() State {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.state
}

// Start transitions Stopped->Running and spawns the poll loop. A no-op if
// already Running.
func (u *Updater) Start() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.state == Running {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.cancel = cancel
	u.done = make(chan struct{})
	u.state = Running

	go u.loop(ctx, u.done)
}

// Stop transitions Running->Stopped, signaling cancellation and joining
// the poll loop. A no-op if already Stopped.
func (u *Updater) Stop() {
	u.mu.Lock()
	if u.state == Stopped {
		u.mu.Unlock()
		return
	}
	cancel := u.cancel
	done := u.done
	u.state = Stopped
	u.mu.Unlock()

	cancel()
	<-done
}

func (u *Updater) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(time.Duration(u.intervalMs) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.tick(ctx)
		}
	}
}

// tick tolerates transient data-layer errors by logging and retrying next
// tick, per spec.md section 4.2.
func (u *Updater) tick(ctx context.Context) {
	samples, next, err := u.data.DrainSamplesSince(ctx, u.cursor)
	if err != nil {
		u.log.Error().Err(err).Msg("drain samples failed, retrying next tick")
		return
	}
	u.cursor = next
	for _, s := range samples {
		u.buf.Push(s)
	}
}
