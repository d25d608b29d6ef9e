package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"svcfwd/pkg/logging"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// ErrNamespaceNotFound is returned by Fetch when the requested namespace
// does not exist in the cluster.
var ErrNamespaceNotFound = errors.New("namespace not found")

// Port is one exposed port of a service.
type Port struct {
	Remote   int32
	Label    string // port name from the service spec, or the number when unnamed
	Protocol string
}

// Service is one service in the namespace with its exposed ports,
// ordered by remote port number.
type Service struct {
	Name  string
	Ports []Port
}

// Catalog is the one-shot namespace snapshot the session manager is
// built from. It is never refreshed while the program runs.
type Catalog struct {
	Namespace string
	Services  []Service // ordered by service name
}

// Fetch lists the services of a namespace and returns them with their
// ports in a stable (service name, remote port, protocol) order.
func Fetch(ctx context.Context, client kubernetes.Interface, namespace string) (*Catalog, error) {
	if _, err := client.CoreV1().Namespaces().Get(ctx, namespace, metav1.GetOptions{}); err != nil {
		if apierrors.IsNotFound(err) {
			return nil, fmt.Errorf("%w: %q", ErrNamespaceNotFound, namespace)
		}
		return nil, fmt.Errorf("failed to get namespace %q: %w", namespace, err)
	}

	svcList, err := client.CoreV1().Services(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list services in %q: %w", namespace, err)
	}

	cat := &Catalog{Namespace: namespace}
	for _, svc := range svcList.Items {
		entry := Service{Name: svc.Name}
		for _, p := range svc.Spec.Ports {
			label := p.Name
			if label == "" {
				label = fmt.Sprintf("%d", p.Port)
			}
			entry.Ports = append(entry.Ports, Port{
				Remote:   p.Port,
				Label:    label,
				Protocol: string(p.Protocol),
			})
		}
		sort.Slice(entry.Ports, func(i, j int) bool {
			if entry.Ports[i].Remote != entry.Ports[j].Remote {
				return entry.Ports[i].Remote < entry.Ports[j].Remote
			}
			return entry.Ports[i].Protocol < entry.Ports[j].Protocol
		})
		cat.Services = append(cat.Services, entry)
	}
	sort.Slice(cat.Services, func(i, j int) bool {
		return cat.Services[i].Name < cat.Services[j].Name
	})

	logging.Debug("catalog", "fetched %d services from namespace %s", len(cat.Services), namespace)
	return cat, nil
}
