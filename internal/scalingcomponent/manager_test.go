package scalingcomponent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/planning"
)

type stubAdapter struct {
	id string
}

func (a *stubAdapter) Apply(ctx context.Context, params map[string]any) (Ack, *AdapterError) {
	return Ack{Message: a.id}, nil
}

func stubFactory(kind string) AdapterFactory {
	return func(metadata map[string]any) (Adapter, error) {
		id, _ := metadata["id"].(string)
		return &stubAdapter{id: id}, nil
	}
}

func TestManagerDispatchRoutesToRegisteredAdapter(t *testing.T) {
	m := NewManager(map[string]AdapterFactory{"stub": stubFactory("stub")})
	defer m.Close()

	require.NoError(t, m.AddDefinitions([]planning.ScalingComponent{
		{ID: "svc-a", Kind: "stub", Metadata: map[string]any{"id": "svc-a"}},
	}))

	ack, err := m.Dispatch(context.Background(), "svc-a", nil)
	require.NoError(t, err)
	assert.Equal(t, "svc-a", ack.Message)
}

func TestManagerDispatchUnknownComponentErrors(t *testing.T) {
	m := NewManager(map[string]AdapterFactory{"stub": stubFactory("stub")})
	defer m.Close()

	_, err := m.Dispatch(context.Background(), "missing", nil)
	require.Error(t, err)
	var unknown *ErrUnknownComponent
	require.ErrorAs(t, err, &unknown)
}

func TestManagerAddDefinitionsRejectsUnknownKind(t *testing.T) {
	m := NewManager(map[string]AdapterFactory{"stub": stubFactory("stub")})
	defer m.Close()

	err := m.AddDefinitions([]planning.ScalingComponent{
		{ID: "svc-a", Kind: "not-a-real-kind"},
	})
	require.Error(t, err)

	_, dispatchErr := m.Dispatch(context.Background(), "svc-a", nil)
	require.Error(t, dispatchErr, "rejected batch must not partially admit components")
}

// TestManagerAddDefinitionsReplacesRegistryWholesale ensures a reload that
// omits a previously registered component drops it, rather than leaving
// stale adapters reachable after a definition change.
func TestManagerAddDefinitionsReplacesRegistryWholesale(t *testing.T) {
	m := NewManager(map[string]AdapterFactory{"stub": stubFactory("stub")})
	defer m.Close()

	require.NoError(t, m.AddDefinitions([]planning.ScalingComponent{
		{ID: "svc-a", Kind: "stub", Metadata: map[string]any{"id": "svc-a"}},
		{ID: "svc-b", Kind: "stub", Metadata: map[string]any{"id": "svc-b"}},
	}))

	require.NoError(t, m.AddDefinitions([]planning.ScalingComponent{
		{ID: "svc-b", Kind: "stub", Metadata: map[string]any{"id": "svc-b"}},
	}))

	_, err := m.Dispatch(context.Background(), "svc-a", nil)
	require.Error(t, err, "svc-a should have been dropped by the second reload")

	ack, err := m.Dispatch(context.Background(), "svc-b", nil)
	require.NoError(t, err)
	assert.Equal(t, "svc-b", ack.Message)
}

func TestManagerRemoveAllClearsRegistry(t *testing.T) {
	m := NewManager(map[string]AdapterFactory{"stub": stubFactory("stub")})
	defer m.Close()

	require.NoError(t, m.AddDefinitions([]planning.ScalingComponent{
		{ID: "svc-a", Kind: "stub", Metadata: map[string]any{"id": "svc-a"}},
	}))
	m.RemoveAll()

	_, err := m.Dispatch(context.Background(), "svc-a", nil)
	require.Error(t, err)
}
