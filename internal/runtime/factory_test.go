package runtime

import "testing"

func TestDetectBackendType_ExplicitOverride(t *testing.T) {
	t.Setenv("EXECUTION_RUNTIME", "cluster")
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	if got := DetectBackendType(); got != BackendCluster {
		t.Errorf("DetectBackendType() = %q, want %q", got, BackendCluster)
	}
}

func TestDetectBackendType_ExplicitOverrideWinsOverClusterSignal(t *testing.T) {
	t.Setenv("EXECUTION_RUNTIME", "local")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	if got := DetectBackendType(); got != BackendLocal {
		t.Errorf("DetectBackendType() = %q, want %q", got, BackendLocal)
	}
}

func TestDetectBackendType_KubernetesServiceHostDetected(t *testing.T) {
	t.Setenv("EXECUTION_RUNTIME", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "10.0.0.1")

	if got := DetectBackendType(); got != BackendCluster {
		t.Errorf("DetectBackendType() = %q, want %q", got, BackendCluster)
	}
}

func TestDetectBackendType_DefaultsToLocal(t *testing.T) {
	t.Setenv("EXECUTION_RUNTIME", "")
	t.Setenv("KUBERNETES_SERVICE_HOST", "")

	if got := DetectBackendType(); got != BackendLocal {
		t.Errorf("DetectBackendType() = %q, want %q", got, BackendLocal)
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(BackendType("nonsense"), "", "", "", ""); err == nil {
		t.Error("New() with an unknown backend type: expected an error, got nil")
	}
}
