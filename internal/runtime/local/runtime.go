// Package local implements the Local Daemon Runtime Backend, running guest
// programs in a single Docker container on the engine host.
package local

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/lumicore/sandrun/internal/docker"
	"github.com/lumicore/sandrun/pkg/runtime"
	"github.com/lumicore/sandrun/pkg/sandboxerr"
)

// Runtime implements runtime.SandboxRuntime using the local Docker daemon.
// It is the default backend for development and single-host deployments.
type Runtime struct {
	client docker.DockerClient

	// workspaceRoot and hostProjectDir translate a RunSpec's workspace
	// paths into host paths before they reach the Docker bind mounts, for
	// the case where the engine process runs inside its own container and
	// shares a volume with the Docker host (HOST_PROJECT_DIR). hostProjectDir
	// empty disables translation.
	workspaceRoot  string
	hostProjectDir string
}

// New creates a Local Daemon runtime backed by the Docker socket on the
// engine host (DOCKER_HOST / default socket per docker/client.FromEnv).
// workspaceRoot is the engine's own view of its workspace directory;
// hostProjectDir is its host-filesystem equivalent, empty if the engine
// runs directly on the Docker host (no translation needed).
func New(workspaceRoot, hostProjectDir string) (*Runtime, error) {
	client, err := docker.NewClient()
	if err != nil {
		return nil, fmt.Errorf("local: create docker client: %w", err)
	}
	return &Runtime{client: client, workspaceRoot: workspaceRoot, hostProjectDir: hostProjectDir}, nil
}

// Run executes spec in an ephemeral, isolated container.
func (r *Runtime) Run(ctx context.Context, spec runtime.RunSpec) (*runtime.RunOutput, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	out, err := r.client.RunGuest(ctx, docker.GuestConfig{
		ImageTag:    spec.ImageTag,
		CodePath:    r.hostPath(spec.CodePath),
		InputPath:   r.hostPath(spec.InputPath),
		OutputPath:  r.hostPath(spec.OutputPath),
		RequestJSON: spec.RequestJSON,
		OnMarker:    spec.OnMarker,
		Env:         spec.Env,
		WorkDir:     spec.WorkDir,
	})
	if err != nil {
		return nil, fmt.Errorf("local: run guest: %w: %w", sandboxerr.ErrBackend, err)
	}

	result := &runtime.RunOutput{
		Stdout:   out.Stdout,
		Stderr:   out.Stderr,
		ExitCode: out.ExitCode,
		Duration: out.Duration,
		TimedOut: out.TimedOut,
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		result.Cancelled = true
		result.TimedOut = false
		return result, fmt.Errorf("local: job %s: %w", spec.JobID, sandboxerr.ErrCancelled)
	}
	if out.TimedOut {
		return result, fmt.Errorf("local: job %s: %w", spec.JobID, sandboxerr.ErrTimeout)
	}
	if out.ExitCode != 0 {
		return result, fmt.Errorf("local: job %s: %w", spec.JobID, &sandboxerr.GuestExitError{ExitCode: out.ExitCode})
	}

	return result, nil
}

// hostPath translates a workspace path rooted at r.workspaceRoot into its
// host-filesystem equivalent rooted at r.hostProjectDir, for the Docker bind
// mounts built in Run. With hostProjectDir unset it returns p unchanged.
func (r *Runtime) hostPath(p string) string {
	if r.hostProjectDir == "" {
		return p
	}
	rel, err := filepath.Rel(r.workspaceRoot, p)
	if err != nil {
		return p
	}
	return filepath.Join(r.hostProjectDir, rel)
}

// ImageReady checks whether the guest image is pulled locally.
func (r *Runtime) ImageReady(ctx context.Context, imageTag string) (bool, error) {
	return r.client.ImageExists(ctx, imageTag)
}

// Close releases the Docker client.
func (r *Runtime) Close() error {
	return r.client.Close()
}

var _ runtime.SandboxRuntime = (*Runtime)(nil)
