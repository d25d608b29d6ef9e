package tunnel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"svcfwd/pkg/logging"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/portforward"
	"k8s.io/client-go/transport/spdy"
)

// ErrNoReadyPod is returned when the target service has no running,
// ready backing pod to forward to.
var ErrNoReadyPod = errors.New("no ready pod backing service")

const (
	readyTimeout    = 60 * time.Second
	teardownTimeout = 5 * time.Second
)

// KubeDriver forwards ports over the Kubernetes API using SPDY streams.
// One Start call owns one forwarding stream until it fails or is
// cancelled.
type KubeDriver struct {
	client      kubernetes.Interface
	restConfig  *rest.Config
	bindAddress string
}

// NewKubeDriver creates a driver bound to one cluster connection.
// bindAddress is the local address tunnels listen on.
func NewKubeDriver(client kubernetes.Interface, restConfig *rest.Config, bindAddress string) *KubeDriver {
	if bindAddress == "" {
		bindAddress = "127.0.0.1"
	}
	return &KubeDriver{client: client, restConfig: restConfig, bindAddress: bindAddress}
}

type kubeHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *kubeHandle) Cancel() {
	h.once.Do(func() { close(h.stop) })
}

// Start spawns the forwarding goroutine and returns immediately.
func (d *KubeDriver) Start(target Target, localPort int, report ReportFunc) (Handle, error) {
	if localPort <= 0 || localPort > 65535 {
		return nil, fmt.Errorf("invalid local port %d", localPort)
	}
	h := &kubeHandle{stop: make(chan struct{})}
	go d.run(target, localPort, report, h)
	return h, nil
}

func (d *KubeDriver) run(target Target, localPort int, report ReportFunc, h *kubeHandle) {
	stop := h.stop
	subsystem := fmt.Sprintf("tunnel %s/%s:%d", target.Namespace, target.Service, target.RemotePort)

	var terminal sync.Once
	failed := func(err error) {
		terminal.Do(func() {
			logging.Error(subsystem, err, "tunnel failed")
			report(OutcomeFailed, err)
		})
	}
	stopped := func() {
		terminal.Do(func() {
			logging.Debug(subsystem, "tunnel stopped")
			report(OutcomeStopped, nil)
		})
	}

	podName, err := d.readyPod(target)
	if err != nil {
		failed(err)
		return
	}
	logging.Debug(subsystem, "forwarding via pod %s", podName)

	reqURL := d.client.CoreV1().RESTClient().Post().
		Resource("pods").
		Namespace(target.Namespace).
		Name(podName).
		SubResource("portforward").
		URL()

	transport, upgrader, err := spdy.RoundTripperFor(d.restConfig)
	if err != nil {
		failed(fmt.Errorf("failed to create SPDY round tripper: %w", err))
		return
	}
	dialer := spdy.NewDialer(upgrader, &http.Client{Transport: transport}, http.MethodPost, reqURL)

	readyChan := make(chan struct{})
	ports := []string{fmt.Sprintf("%d:%d", localPort, target.RemotePort)}
	out := &logWriter{subsystem: subsystem}
	errOut := &logWriter{subsystem: subsystem, asError: true}

	fw, err := portforward.NewOnAddresses(dialer, []string{d.bindAddress}, ports, stop, readyChan, out, errOut)
	if err != nil {
		failed(fmt.Errorf("failed to create port forwarder: %w", err))
		return
	}

	errChan := make(chan error, 1)
	go func() { errChan <- fw.ForwardPorts() }()

	select {
	case err := <-errChan:
		// Ended before ever becoming ready.
		select {
		case <-stop:
			stopped()
		default:
			if err == nil {
				err = errors.New("forwarding ended before becoming ready")
			}
			failed(err)
		}
	case <-stop:
		d.awaitTeardown(errChan)
		stopped()
	case <-time.After(readyTimeout):
		h.Cancel()
		d.awaitTeardown(errChan)
		failed(fmt.Errorf("timed out after %s waiting for tunnel to become ready", readyTimeout))
	case <-readyChan:
		report(OutcomeReady, nil)
		select {
		case err := <-errChan:
			select {
			case <-stop:
				stopped()
			default:
				if err == nil {
					err = errors.New("forwarding stream closed unexpectedly")
				}
				failed(err)
			}
		case <-stop:
			d.awaitTeardown(errChan)
			stopped()
		}
	}
}

// awaitTeardown waits briefly for ForwardPorts to return after the stop
// channel closed. The listener is released either way.
func (d *KubeDriver) awaitTeardown(errChan <-chan error) {
	select {
	case <-errChan:
	case <-time.After(teardownTimeout):
	}
}

// readyPod resolves the target service to a running, ready backing pod.
func (d *KubeDriver) readyPod(target Target) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	svc, err := d.client.CoreV1().Services(target.Namespace).Get(ctx, target.Service, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to get service %s/%s: %w", target.Namespace, target.Service, err)
	}
	if len(svc.Spec.Selector) == 0 {
		return "", fmt.Errorf("service %s/%s has no selector, cannot find backing pods", target.Namespace, target.Service)
	}

	selector := labels.SelectorFromSet(svc.Spec.Selector)
	podList, err := d.client.CoreV1().Pods(target.Namespace).List(ctx, metav1.ListOptions{LabelSelector: selector.String()})
	if err != nil {
		return "", fmt.Errorf("failed to list pods for service %s/%s: %w", target.Namespace, target.Service, err)
	}

	for _, pod := range podList.Items {
		if pod.Status.Phase != corev1.PodRunning {
			continue
		}
		if !podIsReady(&pod) {
			continue
		}
		return pod.Name, nil
	}
	return "", fmt.Errorf("%w: %s/%s (selector %s)", ErrNoReadyPod, target.Namespace, target.Service, selector.String())
}

func podIsReady(pod *corev1.Pod) bool {
	ready := false
	for _, cond := range pod.Status.Conditions {
		if cond.Type == corev1.PodReady && cond.Status == corev1.ConditionTrue {
			ready = true
			break
		}
	}
	if !ready {
		return false
	}
	if len(pod.Status.ContainerStatuses) == 0 && len(pod.Spec.Containers) > 0 {
		return false
	}
	for _, cs := range pod.Status.ContainerStatuses {
		if !cs.Ready {
			return false
		}
	}
	return true
}

// logWriter relays the portforward library's stdout/stderr lines to the
// log file.
type logWriter struct {
	subsystem string
	asError   bool
}

func (w *logWriter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
		if line == "" {
			continue
		}
		if w.asError {
			logging.Warn(w.subsystem, "%s", line)
		} else {
			logging.Debug(w.subsystem, "%s", line)
		}
	}
	return len(p), nil
}
