package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func newNamespace(name string) *corev1.Namespace {
	return &corev1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
}

func newService(namespace, name string, ports ...corev1.ServicePort) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
		Spec:       corev1.ServiceSpec{Ports: ports},
	}
}

func TestFetchUnknownNamespace(t *testing.T) {
	client := fake.NewSimpleClientset()

	_, err := Fetch(context.Background(), client, "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNamespaceNotFound)
}

func TestFetchOrdersServicesAndPorts(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNamespace("default"),
		newService("default", "zeta",
			corev1.ServicePort{Name: "metrics", Port: 9090, Protocol: corev1.ProtocolTCP},
			corev1.ServicePort{Name: "http", Port: 8080, Protocol: corev1.ProtocolTCP},
		),
		newService("default", "api",
			corev1.ServicePort{Name: "grpc", Port: 50051, Protocol: corev1.ProtocolTCP},
		),
	)

	cat, err := Fetch(context.Background(), client, "default")
	require.NoError(t, err)

	require.Len(t, cat.Services, 2)
	assert.Equal(t, "api", cat.Services[0].Name)
	assert.Equal(t, "zeta", cat.Services[1].Name)

	require.Len(t, cat.Services[1].Ports, 2)
	assert.Equal(t, int32(8080), cat.Services[1].Ports[0].Remote)
	assert.Equal(t, int32(9090), cat.Services[1].Ports[1].Remote)
	assert.Equal(t, "http", cat.Services[1].Ports[0].Label)
}

func TestFetchKeepsBothProtocolsOfOnePort(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNamespace("default"),
		newService("default", "dns",
			corev1.ServicePort{Name: "dns-udp", Port: 53, Protocol: corev1.ProtocolUDP},
			corev1.ServicePort{Name: "dns-tcp", Port: 53, Protocol: corev1.ProtocolTCP},
		),
	)

	cat, err := Fetch(context.Background(), client, "default")
	require.NoError(t, err)
	require.Len(t, cat.Services, 1)
	require.Len(t, cat.Services[0].Ports, 2)
	assert.Equal(t, "TCP", cat.Services[0].Ports[0].Protocol)
	assert.Equal(t, "UDP", cat.Services[0].Ports[1].Protocol)
}

func TestFetchUnnamedPortFallsBackToNumber(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNamespace("default"),
		newService("default", "db", corev1.ServicePort{Port: 5432, Protocol: corev1.ProtocolTCP}),
	)

	cat, err := Fetch(context.Background(), client, "default")
	require.NoError(t, err)
	require.Len(t, cat.Services, 1)
	require.Len(t, cat.Services[0].Ports, 1)
	assert.Equal(t, "5432", cat.Services[0].Ports[0].Label)
}

func TestFetchIgnoresOtherNamespaces(t *testing.T) {
	client := fake.NewSimpleClientset(
		newNamespace("default"),
		newNamespace("other"),
		newService("other", "hidden", corev1.ServicePort{Port: 80, Protocol: corev1.ProtocolTCP}),
	)

	cat, err := Fetch(context.Background(), client, "default")
	require.NoError(t, err)
	assert.Empty(t, cat.Services)
}
