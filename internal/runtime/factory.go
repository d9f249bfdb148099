// Package runtime selects and constructs a Runtime Backend: the Local
// Daemon or Cluster Orchestrator implementation of SandboxRuntime.
package runtime

import (
	"fmt"
	"log"
	"os"

	"github.com/lumicore/sandrun/internal/runtime/cluster"
	"github.com/lumicore/sandrun/internal/runtime/local"
	pkgruntime "github.com/lumicore/sandrun/pkg/runtime"
)

// BackendType names a Runtime Backend choice.
type BackendType string

const (
	BackendLocal   BackendType = "local"
	BackendCluster BackendType = "cluster"
	BackendAuto    BackendType = "auto"
)

// New constructs a SandboxRuntime for the requested backend type. "auto"
// defers to detectBackend. workspaceRoot and hostProjectDir are passed
// through to the Local Daemon backend for its HOST_PROJECT_DIR bind-mount
// translation; they are unused by the Cluster Orchestrator backend, which
// reads workspace files directly off the engine's own filesystem.
func New(backendType BackendType, namespace, pvcClaim, workspaceRoot, hostProjectDir string) (pkgruntime.SandboxRuntime, error) {
	switch backendType {
	case BackendLocal:
		return local.New(workspaceRoot, hostProjectDir)

	case BackendCluster:
		if namespace == "" {
			namespace = os.Getenv("KUBERNETES_NAMESPACE")
			if namespace == "" {
				namespace = "default"
			}
		}
		return cluster.New(namespace, pvcClaim)

	case BackendAuto:
		return NewAuto(namespace, pvcClaim, workspaceRoot, hostProjectDir)

	default:
		return nil, fmt.Errorf("runtime: unknown backend type %q", backendType)
	}
}

// NewAuto implements detect_runtime: an explicit EXECUTION_RUNTIME env var
// wins, then the presence of KUBERNETES_SERVICE_HOST (set by the cluster's
// service discovery inside any pod), then the Local Daemon backend.
func NewAuto(namespace, pvcClaim, workspaceRoot, hostProjectDir string) (pkgruntime.SandboxRuntime, error) {
	switch DetectBackendType() {
	case BackendCluster:
		log.Println("runtime: detected cluster environment, using Cluster Orchestrator backend")
		if namespace == "" {
			namespace = os.Getenv("KUBERNETES_NAMESPACE")
			if namespace == "" {
				namespace = "default"
			}
		}
		return cluster.New(namespace, pvcClaim)

	default:
		log.Println("runtime: using Local Daemon backend")
		return local.New(workspaceRoot, hostProjectDir)
	}
}

// DetectBackendType returns the backend auto-detection would select,
// without constructing one. Used by the Admission Front-End's /version
// handler to report the active backend.
func DetectBackendType() BackendType {
	if explicit := os.Getenv("EXECUTION_RUNTIME"); explicit != "" {
		return BackendType(explicit)
	}
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		return BackendCluster
	}
	return BackendLocal
}
