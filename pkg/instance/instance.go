package instance

import (
	"os"
	"strings"
)

// ID identifies this worker replica in logs and lock owner tokens. It falls
// back to the hostname, which is the pod name under Kubernetes.
func ID() string {
	if id := strings.TrimSpace(os.Getenv("ORDERFLOW_WORKER_ID")); id != "" {
		return id
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "worker-0"
}
