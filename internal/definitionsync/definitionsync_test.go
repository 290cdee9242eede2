package definitionsync

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/datalayer/memory"
)

func TestSyncFileMissingIsNotAnError(t *testing.T) {
	store := memory.New()
	err := SyncFile(context.Background(), store, filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
}

func TestSyncFileUpsertsDefinitions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wave-definition.yaml")
	content := `
metrics:
  - id: cpu
    collector: vector
    kind: host_metrics
scaling_components:
  - id: svc-a
    kind: generic-webhook
scaling_plans:
  - id: plan-1
    interval_ms: 1000
    cooldown_ms: 5000
    plans:
      - id: rule-1
        expression: "true"
        priority: 1
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	store := memory.New()
	require.NoError(t, SyncFile(context.Background(), store, path))

	metrics, err := store.GetEnabledMetrics(context.Background())
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.Equal(t, "cpu", metrics[0].ID)

	components, err := store.GetEnabledScalingComponents(context.Background())
	require.NoError(t, err)
	require.Len(t, components, 1)

	plans, err := store.GetEnabledPlans(context.Background())
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, "plan-1", plans[0].ID)
}
