// Package gcpfunctions implements the gcp-functions adapter kind: a REST
// PATCH against a Cloud Function's maxInstanceCount, authenticated with
// Application Default Credentials via golang.org/x/oauth2/google.
package gcpfunctions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// Config is the kind-specific metadata validated on admission.
type Config struct {
	ProjectID string `mapstructure:"project_id"`
	Region    string `mapstructure:"region"`
	Function  string `mapstructure:"function_name"`
}

func parseConfig(metadata map[string]any) (Config, error) {
	var cfg Config
	if v, ok := metadata["project_id"].(string); ok {
		cfg.ProjectID = v
	}
	if v, ok := metadata["region"].(string); ok {
		cfg.Region = v
	}
	if v, ok := metadata["function_name"].(string); ok {
		cfg.Function = v
	}
	if cfg.ProjectID == "" || cfg.Region == "" || cfg.Function == "" {
		return Config{}, fmt.Errorf("gcp-functions requires metadata.project_id, region, function_name")
	}
	return cfg, nil
}

type adapter struct {
	cfg Config

	mu          sync.Mutex
	tokenSource oauth2.TokenSource
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "gcp-functions" kind.
func NewFactory() scalingcomponent.AdapterFactory {
	return func(metadata map[string]any) (scalingcomponent.Adapter, error) {
		cfg, err := parseConfig(metadata)
		if err != nil {
			return nil, err
		}
		return &adapter{cfg: cfg}, nil
	}
}

func (a *adapter) source(ctx context.Context) (oauth2.TokenSource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.tokenSource != nil {
		return a.tokenSource, nil
	}
	creds, err := google.FindDefaultCredentials(ctx, cloudPlatformScope)
	if err != nil {
		return nil, err
	}
	a.tokenSource = creds.TokenSource
	return a.tokenSource, nil
}

type maxInstancesPatch struct {
	ServiceConfig struct {
		MaxInstanceCount int `json:"maxInstanceCount"`
	} `json:"serviceConfig"`
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	maxInstances, ok := intParam(params, "max_instance_count")
	if !ok {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown,
			fmt.Errorf("gcp-functions action_params requires integer 'max_instance_count'"))
	}

	src, err := a.source(ctx)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}
	token, err := src.Token()
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var body maxInstancesPatch
	body.ServiceConfig.MaxInstanceCount = maxInstances
	payload, err := json.Marshal(body)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
	}

	name := fmt.Sprintf("projects/%s/locations/%s/functions/%s", a.cfg.ProjectID, a.cfg.Region, a.cfg.Function)
	url := fmt.Sprintf(
		"https://cloudfunctions.googleapis.com/v2/%s?updateMask=serviceConfig.maxInstanceCount",
		name,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(payload))
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
	}
	req.Header.Set("Content-Type", "application/json")
	token.SetAuthHeader(req)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterTimeout, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return scalingcomponent.Ack{}, classifyStatus(resp.StatusCode, string(respBody))
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("set %s maxInstanceCount to %d", name, maxInstances)}, nil
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
