// Package k8sclient builds the Kubernetes clientset this control plane uses
// for imperative object manipulation. There is no watch-based controller
// here: every call is issued in direct response to an HTTP request or a
// reconciler tick, so a plain kubernetes.Interface is enough.
package k8sclient

import (
	"fmt"
	"time"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const defaultTimeout = 30 * time.Second

// New builds a clientset. When inCluster is true it uses the in-cluster
// service account config; otherwise it loads kubeconfigPath (falling back to
// the default loading rules when empty).
func New(kubeconfigPath string, inCluster bool) (kubernetes.Interface, error) {
	cfg, err := restConfig(kubeconfigPath, inCluster)
	if err != nil {
		return nil, err
	}
	cfg.Timeout = defaultTimeout

	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("building kubernetes clientset: %w", err)
	}
	return clientset, nil
}

func restConfig(kubeconfigPath string, inCluster bool) (*rest.Config, error) {
	if inCluster {
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("loading in-cluster config: %w", err)
		}
		return cfg, nil
	}

	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if kubeconfigPath != "" {
		loadingRules.ExplicitPath = kubeconfigPath
	}

	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		loadingRules, &clientcmd.ConfigOverrides{}).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("loading kubeconfig: %w", err)
	}
	return cfg, nil
}
