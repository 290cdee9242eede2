// Package cloudwatchsink implements the aws-cloudwatch-sink adapter kind:
// instead of scaling a target directly, it republishes the dispatched
// action_params as a CloudWatch custom metric, for setups where a
// downstream CloudWatch alarm or dashboard drives the actual scaling.
package cloudwatchsink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

// Config is the kind-specific metadata validated on admission.
type Config struct {
	Region     string `mapstructure:"region"`
	Namespace  string `mapstructure:"namespace"`
	MetricName string `mapstructure:"metric_name"`
}

func parseConfig(metadata map[string]any) (Config, error) {
	cfg := Config{Namespace: "WaveAutoscale"}
	if v, ok := metadata["region"].(string); ok {
		cfg.Region = v
	}
	if v, ok := metadata["namespace"].(string); ok && v != "" {
		cfg.Namespace = v
	}
	if v, ok := metadata["metric_name"].(string); ok {
		cfg.MetricName = v
	}
	if cfg.MetricName == "" {
		return Config{}, fmt.Errorf("aws-cloudwatch-sink requires metadata.metric_name")
	}
	return cfg, nil
}

type adapter struct {
	cfg Config

	mu     sync.Mutex
	client *cloudwatch.Client
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "aws-cloudwatch-sink" kind.
func NewFactory() scalingcomponent.AdapterFactory {
	return func(metadata map[string]any) (scalingcomponent.Adapter, error) {
		cfg, err := parseConfig(metadata)
		if err != nil {
			return nil, err
		}
		return &adapter{cfg: cfg}, nil
	}
}

func (a *adapter) cwClient(ctx context.Context) (*cloudwatch.Client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.client != nil {
		return a.client, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if a.cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(a.cfg.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	a.client = cloudwatch.NewFromConfig(cfg)
	return a.client, nil
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	value, ok := floatParam(params, "value")
	if !ok {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown,
			fmt.Errorf("aws-cloudwatch-sink action_params requires numeric 'value'"))
	}

	cli, err := a.cwClient(ctx)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = cli.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(a.cfg.Namespace),
		MetricData: []types.MetricDatum{
			{
				MetricName: aws.String(a.cfg.MetricName),
				Value:      aws.Float64(value),
				Timestamp:  aws.Time(time.Now()),
			},
		},
	})
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("published %s/%s = %v", a.cfg.Namespace, a.cfg.MetricName, value)}, nil
}

func floatParam(params map[string]any, key string) (float64, bool) {
	switch v := params[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
