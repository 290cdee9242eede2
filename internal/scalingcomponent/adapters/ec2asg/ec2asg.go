// Package ec2asg implements the aws-ec2-asg adapter kind: it sets an Auto
// Scaling Group's desired capacity through aws-sdk-go-v2.
package ec2asg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

// Config is the kind-specific metadata validated on admission.
type Config struct {
	Region               string `mapstructure:"region"`
	AutoScalingGroupName string `mapstructure:"asg_name"`
}

func parseConfig(metadata map[string]any) (Config, error) {
	var cfg Config
	if v, ok := metadata["region"].(string); ok {
		cfg.Region = v
	}
	if v, ok := metadata["asg_name"].(string); ok {
		cfg.AutoScalingGroupName = v
	}
	if cfg.AutoScalingGroupName == "" {
		return Config{}, fmt.Errorf("aws-ec2-asg requires metadata.asg_name")
	}
	return cfg, nil
}

type adapter struct {
	cfg Config

	mu     sync.Mutex
	client *autoscaling.Client
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "aws-ec2-asg" kind.
func NewFactory() scalingcomponent.AdapterFactory {
	return func(metadata map[string]any) (scalingcomponent.Adapter, error) {
		cfg, err := parseConfig(metadata)
		if err != nil {
			return nil, err
		}
		return &adapter{cfg: cfg}, nil
	}
}

func (a *adapter) asgClient(ctx context.Context) (*autoscaling.Client, error) {
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
	a.client = autoscaling.NewFromConfig(cfg)
	return a.client, nil
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	desired, ok := intParam(params, "desired_capacity")
	if !ok {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown,
			fmt.Errorf("aws-ec2-asg action_params requires integer 'desired_capacity'"))
	}

	cli, err := a.asgClient(ctx)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err = cli.SetDesiredCapacity(ctx, &autoscaling.SetDesiredCapacityInput{
		AutoScalingGroupName: aws.String(a.cfg.AutoScalingGroupName),
		DesiredCapacity:      aws.Int32(int32(desired)),
		HonorCooldown:        aws.Bool(false),
	})
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("set %s desired capacity to %d", a.cfg.AutoScalingGroupName, desired)}, nil
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
