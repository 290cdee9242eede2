// Package definitionsync syncs a local wave-definition.yaml file into the
// data layer on startup, the behavior main.rs ran before entering its
// watch loop.
package definitionsync

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer"
	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

// File is the on-disk shape of wave-definition.yaml: flat lists of each
// definition kind, matching the original's YAML layout.
type File struct {
	Metrics           []planning.MetricDefinition `yaml:"metrics"`
	ScalingComponents []planning.ScalingComponent `yaml:"scaling_components"`
	ScalingPlans      []planning.ScalingPlan      `yaml:"scaling_plans"`
}

// SyncFile reads path (if it exists) and upserts every definition it
// contains into data. A missing file is not an error: the original
// treats an absent wave-definition.yaml as "nothing to sync".
func SyncFile(ctx context.Context, data datalayer.DataLayer, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read definition file %q: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return fmt.Errorf("parse definition file %q: %w", path, err)
	}

	if len(f.Metrics) > 0 {
		if err := data.UpsertMetrics(ctx, f.Metrics); err != nil {
			return fmt.Errorf("sync metrics: %w", err)
		}
	}
	if len(f.ScalingComponents) > 0 {
		if err := data.UpsertScalingComponents(ctx, f.ScalingComponents); err != nil {
			return fmt.Errorf("sync scaling components: %w", err)
		}
	}
	if len(f.ScalingPlans) > 0 {
		if err := data.UpsertPlans(ctx, f.ScalingPlans); err != nil {
			return fmt.Errorf("sync scaling plans: %w", err)
		}
	}
	return nil
}
