package main

import (
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/awslambda"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/azureappservice"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/cloudwatchsink"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/ec2asg"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/gcpfunctions"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/k8sdeployment"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/k8shpa"
	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent/adapters/webhook"
)

// builtinAdapterFactories is the kind -> factory registry for every
// built-in adapter variant named in spec.md section 4.3.
func builtinAdapterFactories() map[string]scalingcomponent.AdapterFactory {
	return map[string]scalingcomponent.AdapterFactory{
		"k8s-deployment":      k8sdeployment.NewFactory(),
		"k8s-hpa-patch":       k8shpa.NewFactory(),
		"aws-ec2-asg":         ec2asg.NewFactory(),
		"aws-cloudwatch-sink": cloudwatchsink.NewFactory(),
		"aws-lambda":          awslambda.NewFactory(),
		"azure-app-service":   azureappservice.NewFactory(),
		"gcp-functions":       gcpfunctions.NewFactory(),
		"generic-webhook":     webhook.NewFactory(),
	}
}
