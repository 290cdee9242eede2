// Package k8shpa implements the k8s-hpa-patch adapter kind: a strategic
// merge patch against a HorizontalPodAutoscaler's min/max replica bounds,
// the "Kubernetes-HPA-like patch" variant from spec.md section 4.3.
package k8shpa

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/wave-autoscale/wave-autoscale-go/internal/scalingcomponent"
)

// Config is the kind-specific metadata validated on admission.
type Config struct {
	KubeconfigPath string `mapstructure:"kubeconfig_path"`
	Namespace      string `mapstructure:"namespace"`
	Name           string `mapstructure:"name"`
}

func parseConfig(metadata map[string]any) (Config, error) {
	cfg := Config{Namespace: "default"}
	if v, ok := metadata["kubeconfig_path"].(string); ok {
		cfg.KubeconfigPath = v
	}
	if v, ok := metadata["namespace"].(string); ok && v != "" {
		cfg.Namespace = v
	}
	if v, ok := metadata["name"].(string); ok {
		cfg.Name = v
	}
	if cfg.Name == "" {
		return Config{}, fmt.Errorf("k8s-hpa-patch requires metadata.name")
	}
	return cfg, nil
}

type adapter struct {
	cfg Config

	mu        sync.Mutex
	clientset kubernetes.Interface
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "k8s-hpa-patch" kind.
func NewFactory() scalingcomponent.AdapterFactory {
	return func(metadata map[string]any) (scalingcomponent.Adapter, error) {
		cfg, err := parseConfig(metadata)
		if err != nil {
			return nil, err
		}
		return &adapter{cfg: cfg}, nil
	}
}

func (a *adapter) client() (kubernetes.Interface, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.clientset != nil {
		return a.clientset, nil
	}

	var restCfg *rest.Config
	var err error
	if a.cfg.KubeconfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", a.cfg.KubeconfigPath)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	cs, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, err
	}
	a.clientset = cs
	return cs, nil
}

type patchBody struct {
	Spec struct {
		MinReplicas *int32 `json:"minReplicas,omitempty"`
		MaxReplicas *int32 `json:"maxReplicas,omitempty"`
	} `json:"spec"`
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	var body patchBody
	if v, ok := intParam(params, "min_replicas"); ok {
		min := int32(v)
		body.Spec.MinReplicas = &min
	}
	if v, ok := intParam(params, "max_replicas"); ok {
		max := int32(v)
		body.Spec.MaxReplicas = &max
	}
	if body.Spec.MinReplicas == nil && body.Spec.MaxReplicas == nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown,
			fmt.Errorf("k8s-hpa-patch action_params requires min_replicas and/or max_replicas"))
	}

	patch, err := json.Marshal(body)
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
	}

	cs, err := a.client()
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	hpas := cs.AutoscalingV2().HorizontalPodAutoscalers(a.cfg.Namespace)
	if _, err := hpas.Patch(ctx, a.cfg.Name, types.StrategicMergePatchType, patch, metav1.PatchOptions{}); err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterTargetNotFound, err)
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("patched HPA %s/%s", a.cfg.Namespace, a.cfg.Name)}, nil
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
