// Package webhook implements the generic-webhook adapter kind: it POSTs
// the dispatched action_params as JSON to an arbitrary URL, for targets
// with no dedicated adapter.
package webhook

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

// Config is the kind-specific metadata validated on admission.
type Config struct {
	URL     string            `mapstructure:"url"`
	Method  string            `mapstructure:"method"`
	Headers map[string]string `mapstructure:"headers"`
}

func parseConfig(metadata map[string]any) (Config, error) {
	cfg := Config{Method: http.MethodPost}
	if v, ok := metadata["url"].(string); ok {
		cfg.URL = v
	}
	if v, ok := metadata["method"].(string); ok && v != "" {
		cfg.Method = v
	}
	if headers, ok := metadata["headers"].(map[string]any); ok {
		cfg.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				cfg.Headers[k] = s
			}
		}
	}
	if cfg.URL == "" {
		return Config{}, fmt.Errorf("generic-webhook requires metadata.url")
	}
	return cfg, nil
}

type adapter struct {
	cfg    Config
	client *resty.Client
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "generic-webhook" kind.
func NewFactory() scalingcomponent.AdapterFactory {
	return func(metadata map[string]any) (scalingcomponent.Adapter, error) {
		cfg, err := parseConfig(metadata)
		if err != nil {
			return nil, err
		}
		return &adapter{
			cfg:    cfg,
			client: resty.New().SetTimeout(30 * time.Second),
		}, nil
	}
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	req := a.client.R().
		SetContext(ctx).
		SetHeaders(a.cfg.Headers).
		SetBody(params)

	resp, err := req.Execute(a.cfg.Method, a.cfg.URL)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterTimeout, err)
	}

	if resp.StatusCode() >= 300 {
		return scalingcomponent.Ack{}, classifyStatus(resp.StatusCode(), resp.String())
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("%s %s -> %d", a.cfg.Method, a.cfg.URL, resp.StatusCode())}, nil
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
