// Package sqlstore is a Postgres-backed DataLayer implementation, wired
// behind the same narrow datalayer.DataLayer interface the core consumes.
// It stands in for spec.md's "SQLite-backed store" — see DESIGN.md for why
// the corpus's Postgres stack (lib/pq, sqlx) was kept instead of adding an
// unmodeled SQLite driver.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/history"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

// Store is a sqlx-backed DataLayer. It does not implement WatchDefinitions
// via LISTEN/NOTIFY; WatchDefinitions polls the definition tables itself
// every pollMs (internal/app passes 5000 ms), matching the original's DB
// polling watcher.
type Store struct {
	db *sqlx.DB
}

var _ datalayer.DataLayer = (*Store)(nil)

// Open connects to dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect data layer: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate data layer: %w", err)
	}

	log.Info().Str("component", "datalayer").Msg("connected to data layer")
	return store, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS metrics (
	id TEXT PRIMARY KEY,
	collector TEXT NOT NULL,
	kind TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	enabled BOOLEAN NOT NULL DEFAULT true
);
CREATE TABLE IF NOT EXISTS scaling_components (
	id TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}',
	enabled BOOLEAN NOT NULL DEFAULT true
);
CREATE TABLE IF NOT EXISTS scaling_plans (
	id TEXT PRIMARY KEY,
	definition JSONB NOT NULL,
	enabled BOOLEAN NOT NULL DEFAULT true
);
CREATE TABLE IF NOT EXISTS metric_samples (
	seq BIGSERIAL PRIMARY KEY,
	metric_id TEXT NOT NULL,
	value DOUBLE PRECISION NOT NULL,
	tags JSONB NOT NULL DEFAULT '{}',
	sample_time TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS autoscaling_history (
	id TEXT PRIMARY KEY,
	plan_id TEXT NOT NULL,
	plan_rule_id TEXT NOT NULL,
	metric_values_json JSONB NOT NULL,
	metadata_values_json JSONB NOT NULL DEFAULT '{}',
	component_outcomes_json JSONB NOT NULL DEFAULT '[]',
	suppressed BOOLEAN NOT NULL DEFAULT false,
	fail_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) GetEnabledMetrics(ctx context.Context) ([]planning.MetricDefinition, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT id, collector, kind, metadata FROM metrics WHERE enabled`)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []planning.MetricDefinition
	for rows.Next() {
		var id, collector, kind string
		var metaRaw []byte
		if err := rows.Scan(&id, &collector, &kind, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		meta := map[string]any{}
		_ = json.Unmarshal(metaRaw, &meta)
		out = append(out, planning.MetricDefinition{ID: id, Collector: collector, Kind: kind, Metadata: meta})
	}
	return out, rows.Err()
}

func (s *Store) GetEnabledScalingComponents(ctx context.Context) ([]planning.ScalingComponent, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT id, kind, metadata FROM scaling_components WHERE enabled`)
	if err != nil {
		return nil, fmt.Errorf("query scaling components: %w", err)
	}
	defer rows.Close()

	var out []planning.ScalingComponent
	for rows.Next() {
		var id, kind string
		var metaRaw []byte
		if err := rows.Scan(&id, &kind, &metaRaw); err != nil {
			return nil, fmt.Errorf("scan scaling component: %w", err)
		}
		meta := map[string]any{}
		_ = json.Unmarshal(metaRaw, &meta)
		out = append(out, planning.ScalingComponent{ID: id, Kind: kind, Metadata: meta})
	}
	return out, rows.Err()
}

func (s *Store) GetEnabledPlans(ctx context.Context) ([]planning.ScalingPlan, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT definition FROM scaling_plans WHERE enabled`)
	if err != nil {
		return nil, fmt.Errorf("query scaling plans: %w", err)
	}
	defer rows.Close()

	var out []planning.ScalingPlan
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan scaling plan: %w", err)
		}
		var plan planning.ScalingPlan
		if err := json.Unmarshal(raw, &plan); err != nil {
			return nil, fmt.Errorf("decode scaling plan: %w", err)
		}
		out = append(out, plan)
	}
	return out, rows.Err()
}

// WatchDefinitions polls the data layer's definition tables every pollMs
// and fires the channel whenever the fingerprint of their rows (every
// column of every row, see definitionsFingerprint) changes. A
// last-value-wins buffered channel mirrors the original's
// tokio::sync::watch behavior.
func (s *Store) WatchDefinitions(ctx context.Context, pollMs int64) <-chan struct{} {
	ch := make(chan struct{}, 1)
	go func() {
		ticker := time.NewTicker(time.Duration(pollMs) * time.Millisecond)
		defer ticker.Stop()

		last := s.definitionsFingerprint(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cur := s.definitionsFingerprint(ctx)
				if cur != last {
					last = cur
					select {
					case ch <- struct{}{}:
					default:
					}
				}
			}
		}
	}()
	return ch
}

func (s *Store) definitionsFingerprint(ctx context.Context) string {
	var fp string
	_ = s.db.GetContext(ctx, &fp, `
SELECT
	COALESCE((SELECT string_agg(m::text, ',' ORDER BY m.id) FROM metrics m), '') || '|' ||
	COALESCE((SELECT string_agg(c::text, ',' ORDER BY c.id) FROM scaling_components c), '') || '|' ||
	COALESCE((SELECT string_agg(p::text, ',' ORDER BY p.id) FROM scaling_plans p), '')`)
	return fp
}

func (s *Store) DrainSamplesSince(ctx context.Context, cursor datalayer.Cursor) ([]planning.MetricSample, datalayer.Cursor, error) {
	var since int64
	if cursor != "" {
		fmt.Sscanf(string(cursor), "%d", &since)
	}

	rows, err := s.db.QueryxContext(ctx, `
SELECT seq, metric_id, value, tags, sample_time FROM metric_samples
WHERE seq > $1 ORDER BY seq ASC LIMIT 10000`, since)
	if err != nil {
		return nil, cursor, fmt.Errorf("drain samples: %w", err)
	}
	defer rows.Close()

	var out []planning.MetricSample
	maxSeq := since
	for rows.Next() {
		var seq int64
		var metricID string
		var value float64
		var tagsRaw []byte
		var sampleTime time.Time
		if err := rows.Scan(&seq, &metricID, &value, &tagsRaw, &sampleTime); err != nil {
			return nil, cursor, fmt.Errorf("scan sample: %w", err)
		}
		tags := map[string]string{}
		_ = json.Unmarshal(tagsRaw, &tags)
		out = append(out, planning.MetricSample{MetricID: metricID, Value: value, Tags: tags, Timestamp: sampleTime})
		if seq > maxSeq {
			maxSeq = seq
		}
	}
	return out, datalayer.Cursor(fmt.Sprintf("%d", maxSeq)), rows.Err()
}

func (s *Store) AppendAutoscalingHistory(ctx context.Context, row history.Row) error {
	metricValues, _ := json.Marshal(row.MetricValues)
	metadataValues, _ := json.Marshal(row.MetadataValues)
	outcomes, _ := json.Marshal(row.ComponentOutcomes)

	var failMessage sql.NullString
	if row.FailMessage != nil {
		failMessage = sql.NullString{String: *row.FailMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO autoscaling_history
	(id, plan_id, plan_rule_id, metric_values_json, metadata_values_json, component_outcomes_json, suppressed, fail_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		row.ID, row.PlanID, row.PlanRuleID, metricValues, metadataValues, outcomes, row.Suppressed, failMessage, row.Timestamp)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (s *Store) RemoveOldAutoscalingHistory(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM autoscaling_history WHERE created_at < $1`, before)
	if err != nil {
		return fmt.Errorf("remove old history: %w", err)
	}
	return nil
}

func (s *Store) UpsertMetrics(ctx context.Context, defs []planning.MetricDefinition) error {
	for _, d := range defs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode metric %q: %w", d.ID, err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO metrics (id, collector, kind, metadata, enabled) VALUES ($1, $2, $3, $4, true)
ON CONFLICT (id) DO UPDATE SET collector = $2, kind = $3, metadata = $4, enabled = true`,
			d.ID, d.Collector, d.Kind, meta)
		if err != nil {
			return fmt.Errorf("upsert metric %q: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Store) UpsertScalingComponents(ctx context.Context, defs []planning.ScalingComponent) error {
	for _, d := range defs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			return fmt.Errorf("encode scaling component %q: %w", d.ID, err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO scaling_components (id, kind, metadata, enabled) VALUES ($1, $2, $3, true)
ON CONFLICT (id) DO UPDATE SET kind = $2, metadata = $3, enabled = true`,
			d.ID, d.Kind, meta)
		if err != nil {
			return fmt.Errorf("upsert scaling component %q: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Store) UpsertPlans(ctx context.Context, defs []planning.ScalingPlan) error {
	for _, d := range defs {
		raw, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("encode scaling plan %q: %w", d.ID, err)
		}
		_, err = s.db.ExecContext(ctx, `
INSERT INTO scaling_plans (id, definition, enabled) VALUES ($1, $2, true)
ON CONFLICT (id) DO UPDATE SET definition = $2, enabled = true`,
			d.ID, raw)
		if err != nil {
			return fmt.Errorf("upsert scaling plan %q: %w", d.ID, err)
		}
	}
	return nil
}

func (s *Store) DeleteAllMetrics(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM metrics`)
	return err
}

func (s *Store) DeleteAllScalingComponents(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scaling_components`)
	return err
}

func (s *Store) DeleteAllPlans(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scaling_plans`)
	return err
}
