package tunnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
	"k8s.io/client-go/rest"
)

func testService(name string, selector map[string]string) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec: corev1.ServiceSpec{
			Selector: selector,
			Ports:    []corev1.ServicePort{{Port: 8080, Protocol: corev1.ProtocolTCP}},
		},
	}
}

func testPod(name string, labels map[string]string, phase corev1.PodPhase, ready bool) *corev1.Pod {
	readyStatus := corev1.ConditionFalse
	if ready {
		readyStatus = corev1.ConditionTrue
	}
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default", Labels: labels},
		Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "main"}}},
		Status: corev1.PodStatus{
			Phase:             phase,
			Conditions:        []corev1.PodCondition{{Type: corev1.PodReady, Status: readyStatus}},
			ContainerStatuses: []corev1.ContainerStatus{{Name: "main", Ready: ready}},
		},
	}
}

func TestReadyPodPicksRunningReadyPod(t *testing.T) {
	sel := map[string]string{"app": "api"}
	client := fake.NewSimpleClientset(
		testService("api", sel),
		testPod("api-0", sel, corev1.PodPending, false),
		testPod("api-1", sel, corev1.PodRunning, false),
		testPod("api-2", sel, corev1.PodRunning, true),
	)
	d := NewKubeDriver(client, &rest.Config{}, "")

	pod, err := d.readyPod(Target{Namespace: "default", Service: "api", RemotePort: 8080})
	require.NoError(t, err)
	assert.Equal(t, "api-2", pod)
}

func TestReadyPodNoBackingPods(t *testing.T) {
	sel := map[string]string{"app": "api"}
	client := fake.NewSimpleClientset(testService("api", sel))
	d := NewKubeDriver(client, &rest.Config{}, "")

	_, err := d.readyPod(Target{Namespace: "default", Service: "api", RemotePort: 8080})
	assert.ErrorIs(t, err, ErrNoReadyPod)
}

func TestReadyPodServiceWithoutSelector(t *testing.T) {
	client := fake.NewSimpleClientset(testService("external", nil))
	d := NewKubeDriver(client, &rest.Config{}, "")

	_, err := d.readyPod(Target{Namespace: "default", Service: "external", RemotePort: 8080})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no selector")
}

func TestStartRejectsInvalidLocalPort(t *testing.T) {
	d := NewKubeDriver(fake.NewSimpleClientset(), &rest.Config{}, "")

	_, err := d.Start(Target{Namespace: "default", Service: "api", RemotePort: 8080}, 0, func(OutcomeKind, error) {})
	assert.Error(t, err)
}

func TestHandleCancelIsIdempotent(t *testing.T) {
	h := &kubeHandle{stop: make(chan struct{})}
	h.Cancel()
	h.Cancel()

	select {
	case <-h.stop:
	default:
		t.Fatal("stop channel not closed")
	}
}
