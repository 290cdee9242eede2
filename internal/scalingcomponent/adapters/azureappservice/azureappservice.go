// Package azureappservice implements the azure-app-service adapter kind:
// an ARM PATCH against an App Service plan's sku.capacity, authenticated
// with azidentity.DefaultAzureCredential the way the pack's Azure clients
// authenticate.
package azureappservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

const armScope = "https://management.azure.com/.default"

// Config is the kind-specific metadata validated on admission.
type Config struct {
	SubscriptionID string `mapstructure:"subscription_id"`
	ResourceGroup  string `mapstructure:"resource_group"`
	PlanName       string `mapstructure:"plan_name"`
}

func parseConfig(metadata map[string]any) (Config, error) {
	var cfg Config
	if v, ok := metadata["subscription_id"].(string); ok {
		cfg.SubscriptionID = v
	}
	if v, ok := metadata["resource_group"].(string); ok {
		cfg.ResourceGroup = v
	}
	if v, ok := metadata["plan_name"].(string); ok {
		cfg.PlanName = v
	}
	if cfg.SubscriptionID == "" || cfg.ResourceGroup == "" || cfg.PlanName == "" {
		return Config{}, fmt.Errorf("azure-app-service requires metadata.subscription_id, resource_group, plan_name")
	}
	return cfg, nil
}

type adapter struct {
	cfg Config

	mu   sync.Mutex
	cred *azidentity.DefaultAzureCredential
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "azure-app-service" kind.
func NewFactory() scalingcomponent.AdapterFactory {
	return func(metadata map[string]any) (scalingcomponent.Adapter, error) {
		cfg, err := parseConfig(metadata)
		if err != nil {
			return nil, err
		}
		return &adapter{cfg: cfg}, nil
	}
}

func (a *adapter) credential() (*azidentity.DefaultAzureCredential, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cred != nil {
		return a.cred, nil
	}
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	a.cred = cred
	return cred, nil
}

type skuPatch struct {
	Sku struct {
		Capacity int `json:"capacity"`
	} `json:"sku"`
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	capacity, ok := intParam(params, "capacity")
	if !ok {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown,
			fmt.Errorf("azure-app-service action_params requires integer 'capacity'"))
	}

	cred, err := a.credential()
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	token, err := cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{armScope}})
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	var body skuPatch
	body.Sku.Capacity = capacity
	payload, err := json.Marshal(body)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
	}

	url := fmt.Sprintf(
		"https://management.azure.com/subscriptions/%s/resourceGroups/%s/providers/Microsoft.Web/serverfarms/%s?api-version=2022-03-01",
		a.cfg.SubscriptionID, a.cfg.ResourceGroup, a.cfg.PlanName,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token.Token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return scalingcomponent.Ack{}, classifyStatus(resp.StatusCode, string(respBody))
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("set %s sku.capacity to %d", a.cfg.PlanName, capacity)}, nil
}

func classifyStatus(status int, body string) *scalingcomponent.AdapterError {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, fmt.Errorf("%d: %s", status, body))
	case status == http.StatusNotFound:
		return scalingcomponent.NewAdapterError(scalingcomponent.AdapterTargetNotFound, fmt.Errorf("%d: %s", status, body))
	case status == http.StatusTooManyRequests:
		return scalingcomponent.NewAdapterError(scalingcomponent.AdapterRateLimited, fmt.Errorf("%d: %s", status, body))
	default:
		return scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, fmt.Errorf("%d: %s", status, body))
	}
}

func intParam(params map[string]any, key string) (int, bool) {
	switch v := params[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

