// Package awslambda implements the aws-lambda adapter kind: it sets a
// Lambda function's reserved concurrency, the serverless analogue of a
// replica count.
package awslambda

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

// Config is the kind-specific metadata validated on admission.
type Config struct {
	Region       string `mapstructure:"region"`
	FunctionName string `mapstructure:"function_name"`
}

func parseConfig(metadata map[string]any) (Config, error) {
	var cfg Config
	if v, ok := metadata["region"].(string); ok {
		cfg.Region = v
	}
	if v, ok := metadata["function_name"].(string); ok {
		cfg.FunctionName = v
	}
	if cfg.FunctionName == "" {
		return Config{}, fmt.Errorf("aws-lambda requires metadata.function_name")
	}
	return cfg, nil
}

type adapter struct {
	cfg Config

	mu     sync.Mutex
	client *lambda.Client
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "aws-lambda" kind.
func NewFactory() scalingcomponent.AdapterFactory {
	return func(metadata map[string]any) (scalingcomponent.Adapter, error) {
		cfg, err := parseConfig(metadata)
		if err != nil {
			return nil, err
		}
		return &adapter{cfg: cfg}, nil
	}
}

func (a *adapter) lambdaClient(ctx context.Context) (*lambda.Client, error) {
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
	a.client = lambda.NewFromConfig(cfg)
	return a.client, nil
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	concurrency, ok := intParam(params, "reserved_concurrency")
	if !ok {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown,
			fmt.Errorf("aws-lambda action_params requires integer 'reserved_concurrency'"))
	}

	cli, err := a.lambdaClient(ctx)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if concurrency <= 0 {
		_, err = cli.DeleteFunctionConcurrency(ctx, &lambda.DeleteFunctionConcurrencyInput{
			FunctionName: aws.String(a.cfg.FunctionName),
		})
	} else {
		_, err = cli.PutFunctionConcurrency(ctx, &lambda.PutFunctionConcurrencyInput{
			FunctionName:                 aws.String(a.cfg.FunctionName),
			ReservedConcurrentExecutions: aws.Int32(int32(concurrency)),
		})
	}
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterTargetNotFound, err)
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("set %s reserved concurrency to %d", a.cfg.FunctionName, concurrency)}, nil
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
