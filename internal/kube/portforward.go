/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package kube sets up port forwarding to an inference service running in
// a cluster, so the load harness can target it through localhost.
package kube

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client/config"
)

// PortForwarder is a scoped handle on an active port-forward. Close is
// safe to call more than once and must run on every exit path, including
// interrupts.
type PortForwarder struct {
	LocalPort int

	stopChan chan struct{}
	stopOnce sync.Once
}

// Endpoint returns the local base URL the forward serves.
func (p *PortForwarder) Endpoint() string {
	return fmt.Sprintf("http://localhost:%d", p.LocalPort)
}

// Close tears down the forward and releases the local port.
func (p *PortForwarder) Close() {
	p.stopOnce.Do(func() {
		close(p.stopChan)
	})
}

// ForwardService port-forwards a free local port to a ready pod backing
// the named service, targeting the given service port.
func ForwardService(ctx context.Context, namespace, service string, remotePort int) (*PortForwarder, error) {
	// The forwarder logs connection churn through klog at warning level;
	// keep it off the console.
	klog.SetOutput(io.Discard)
	klog.LogToStderr(false)

	restConfig, err := config.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get kubeconfig: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}

	podName, targetPort, err := findForwardTarget(ctx, clientset, namespace, service, remotePort)
	if err != nil {
		return nil, err
	}

	localPort, err := findAvailablePort()
	if err != nil {
		return nil, fmt.Errorf("failed to find available port: %w", err)
	}

	stopChan := make(chan struct{})
	readyChan := make(chan struct{})
	errChan := make(chan error, 1)

	path := fmt.Sprintf("/api/v1/namespaces/%s/pods/%s/portforward", namespace, podName)
	hostIP := strings.TrimPrefix(restConfig.Host, "https://")
	hostIP = strings.TrimPrefix(hostIP, "http://")

	serverURL := url.URL{Scheme: "https", Host: hostIP, Path: path}
	if strings.HasPrefix(restConfig.Host, "http://") {
		serverURL.Scheme = "http"
	}

	transport, upgrader, err := spdy.RoundTripperFor(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create SPDY transport: %w", err)
	}

	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, &serverURL)

	ports := []string{fmt.Sprintf("%d:%d", localPort, targetPort)}

	pf, err := portforward.New(dialer, ports, stopChan, readyChan, io.Discard, io.Discard)
	if err != nil {
		return nil, fmt.Errorf("failed to create port forwarder: %w", err)
	}

	go func() {
		if err := pf.ForwardPorts(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-readyChan:
	case err := <-errChan:
		return nil, fmt.Errorf("port forward failed: %w", err)
	case <-time.After(10 * time.Second):
		close(stopChan)
		return nil, fmt.Errorf("timeout waiting for port forward to be ready")
	case <-ctx.Done():
		close(stopChan)
		return nil, ctx.Err()
	}

	forwarder := &PortForwarder{LocalPort: localPort, stopChan: stopChan}

	if err := waitReachable(forwarder.Endpoint()); err != nil {
		forwarder.Close()
		return nil, err
	}

	return forwarder, nil
}

// findForwardTarget resolves the service's selector to a ready pod and
// the service port to the pod-side target port.
func findForwardTarget(
	ctx context.Context, clientset kubernetes.Interface, namespace, service string, remotePort int,
) (string, int, error) {
	reqCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	svc, err := clientset.CoreV1().Services(namespace).Get(reqCtx, service, metav1.GetOptions{})
	if err != nil {
		return "", 0, fmt.Errorf("failed to get service %s: %w", service, err)
	}

	targetPort := resolveTargetPort(svc, remotePort)

	selectors := make([]string, 0, len(svc.Spec.Selector))
	for k, v := range svc.Spec.Selector {
		selectors = append(selectors, fmt.Sprintf("%s=%s", k, v))
	}
	labelSelector := strings.Join(selectors, ",")

	pods, err := clientset.CoreV1().Pods(namespace).List(reqCtx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to list pods: %w", err)
	}

	for i := range pods.Items {
		if isPodReady(&pods.Items[i]) {
			return pods.Items[i].Name, targetPort, nil
		}
	}

	return "", 0, fmt.Errorf("no ready pods found for service %s", service)
}

// resolveTargetPort maps a service port to the container port it fronts.
// Named target ports fall back to the service port number.
func resolveTargetPort(svc *corev1.Service, remotePort int) int {
	for _, port := range svc.Spec.Ports {
		if int(port.Port) != remotePort {
			continue
		}
		if v := port.TargetPort.IntValue(); v > 0 {
			return v
		}
	}
	return remotePort
}

func isPodReady(pod *corev1.Pod) bool {
	if pod.Status.Phase != corev1.PodRunning {
		return false
	}
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

func findAvailablePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port, nil
}

// waitReachable retries a plain GET against the forwarded endpoint until
// the tunnel accepts connections.
func waitReachable(endpoint string) error {
	httpClient := &http.Client{Timeout: 5 * time.Second}
	var lastErr error
	for i := 0; i < 5; i++ {
		resp, err := httpClient.Get(endpoint + "/v1/models")
		if err == nil {
			_ = resp.Body.Close()
			return nil
		}
		lastErr = err
		time.Sleep(500 * time.Millisecond)
	}
	return fmt.Errorf("cannot connect to %s after port forward: %w", endpoint, lastErr)
}
