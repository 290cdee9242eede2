package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

func TestAdapterPostsParamsAsJSON(t *testing.T) {
	var gotBody map[string]any
	var gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	factory := NewFactory()
	adapter, err := factory(map[string]any{"url": server.URL})
	require.NoError(t, err)

	ack, adapterErr := adapter.Apply(context.Background(), map[string]any{"desired_capacity": float64(3)})
	require.Nil(t, adapterErr)
	assert.Contains(t, ack.Message, "200")
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, float64(3), gotBody["desired_capacity"])
}

func TestAdapterClassifiesNonSuccessStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	factory := NewFactory()
	adapter, err := factory(map[string]any{"url": server.URL})
	require.NoError(t, err)

	_, adapterErr := adapter.Apply(context.Background(), nil)
	require.NotNil(t, adapterErr)
	assert.Equal(t, scalingcomponent.AdapterRateLimited, adapterErr.Kind)
}

func TestParseConfigRequiresURL(t *testing.T) {
	factory := NewFactory()
	_, err := factory(map[string]any{})
	require.Error(t, err)
}

func TestParseConfigHonorsCustomMethodAndHeaders(t *testing.T) {
	var gotMethod, gotHeader string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Wave-Token")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	factory := NewFactory()
	adapter, err := factory(map[string]any{
		"url":    server.URL,
		"method": http.MethodPut,
		"headers": map[string]any{
			"X-Wave-Token": "secret",
		},
	})
	require.NoError(t, err)

	_, adapterErr := adapter.Apply(context.Background(), nil)
	require.Nil(t, adapterErr)
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "secret", gotHeader)
}
