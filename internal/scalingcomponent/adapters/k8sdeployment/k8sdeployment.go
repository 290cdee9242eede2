// Package k8sdeployment implements the k8s-deployment adapter kind: it
// patches a Deployment's replica count through client-go, the pattern the
// teacher's autoscaling.KubernetesExecutor stubbed out with a TODO.
package k8sdeployment

import (
	"context"
	"fmt"
	"sync"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
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
		return Config{}, fmt.Errorf("k8s-deployment requires metadata.name")
	}
	return cfg, nil
}

func buildClientset(kubeconfigPath string) (kubernetes.Interface, error) {
	var restCfg *rest.Config
	var err error
	if kubeconfigPath != "" {
		restCfg, err = clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	} else {
		restCfg, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, err
	}
	return kubernetes.NewForConfig(restCfg)
}

// adapter implements scalingcomponent.Adapter, caching its clientset after
// the first successful Apply call.
type adapter struct {
	cfg Config

	mu        sync.Mutex
	clientset kubernetes.Interface
}

// NewFactory returns the AdapterFactory wired into the registry under the
// "k8s-deployment" kind.
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
	cs, err := buildClientset(a.cfg.KubeconfigPath)
	if err != nil {
		return nil, err
	}
	a.clientset = cs
	return cs, nil
}

func (a *adapter) Apply(ctx context.Context, params map[string]any) (scalingcomponent.Ack, *scalingcomponent.AdapterError) {
	replicas, ok := intParam(params, "replicas")
	if !ok {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown,
			fmt.Errorf("k8s-deployment action_params requires integer 'replicas'"))
	}

	cs, err := a.client()
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterAuthFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	deployments := cs.AppsV1().Deployments(a.cfg.Namespace)
	dep, err := deployments.Get(ctx, a.cfg.Name, metav1.GetOptions{})
	if err != nil {
		return scalingcomponent.Ack{}, scalingcomponent.NewAdapterError(scalingcomponent.AdapterTargetNotFound, err)
	}

	desired := int32(replicas)
	dep.Spec.Replicas = &desired

	if _, err := deployments.Update(ctx, dep, metav1.UpdateOptions{}); err != nil {
		return scalingcomponent.Ack{}, classifyErr(err)
	}

	return scalingcomponent.Ack{Message: fmt.Sprintf("scaled %s/%s to %d replicas", a.cfg.Namespace, a.cfg.Name, replicas)}, nil
}

func classifyErr(err error) *scalingcomponent.AdapterError {
	return scalingcomponent.NewAdapterError(scalingcomponent.AdapterUnknown, err)
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
