package runtime

import (
	"context"
	"time"
)

// MockRuntime is a mock implementation of SandboxRuntime for testing.
type MockRuntime struct {
	RunFunc         func(ctx context.Context, spec RunSpec) (*RunOutput, error)
	ImageReadyFunc  func(ctx context.Context, imageTag string) (bool, error)
	CloseFunc       func() error
}

// Run calls the mock function.
func (m *MockRuntime) Run(ctx context.Context, spec RunSpec) (*RunOutput, error) {
	if m.RunFunc != nil {
		return m.RunFunc(ctx, spec)
	}
	// Default behavior: success, no output files.
	return &RunOutput{
		Stdout:   "",
		Stderr:   "",
		ExitCode: 0,
		Duration: time.Second,
	}, nil
}

// ImageReady calls the mock function.
func (m *MockRuntime) ImageReady(ctx context.Context, imageTag string) (bool, error) {
	if m.ImageReadyFunc != nil {
		return m.ImageReadyFunc(ctx, imageTag)
	}
	// Default behavior: image exists.
	return true, nil
}

// Close calls the mock function.
func (m *MockRuntime) Close() error {
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Ensure MockRuntime implements SandboxRuntime.
var _ SandboxRuntime = (*MockRuntime)(nil)
