package runtime

import (
	"context"
	"time"

	"github.com/lumicore/sandrun/pkg/protocol"
)

// SandboxRuntime abstracts the execution environment for running a guest
// program. This allows the same Job Manager pipeline to work against a
// local container daemon (development) or a cluster orchestrator
// (production) with no change to caller code.
type SandboxRuntime interface {
	// Run executes a guest program in an ephemeral isolated container,
	// reading a JSON RunRequest on stdin and producing files under an
	// output directory.
	Run(ctx context.Context, spec RunSpec) (*RunOutput, error)

	// ImageReady checks whether the guest image is available to run.
	ImageReady(ctx context.Context, imageTag string) (bool, error)

	// Close releases any resources held by the runtime.
	Close() error
}

// RunSpec holds everything a backend needs to execute one job.
type RunSpec struct {
	// JobID uniquely identifies this job.
	JobID string

	// ImageTag is the guest container image to use.
	ImageTag string

	// CodePath, InputPath and OutputPath are host-side workspace subtrees,
	// already materialized by internal/workspace.Materialize. CodePath and
	// InputPath are bound read-only, OutputPath read-write.
	CodePath   string
	InputPath  string
	OutputPath string

	// RequestJSON is the marshaled Sandbox Protocol RunRequest, piped to
	// the guest's stdin as the first line.
	RequestJSON []byte

	// OnMarker is invoked synchronously, in stream order, for every
	// recognized marker on the guest's stdout. For confirmation-capable
	// markers (Marker.WantsConfirm) the returned ConfirmationResult is
	// written back on the guest's stdin before the next marker is read;
	// for fire-and-forget markers the return value is ignored. A nil
	// handler disables confirmations entirely (the guest must only use
	// _async markers).
	OnMarker func(protocol.Marker) *protocol.ConfirmationResult

	// Env is a list of environment variables in "KEY=VALUE" format.
	Env []string

	// WorkDir is the working directory inside the container.
	WorkDir string

	// Timeout is the maximum time allowed for the run. A zero timeout
	// means "use the backend's default".
	Timeout time.Duration
}

// RunOutput holds the result of a guest execution. OutputPath's contents
// (the harvested artifacts) are read directly by the caller via
// internal/workspace.Harvest once Run returns, rather than being threaded
// back through this struct: both backends guarantee OutputPath is readable
// from the engine host once the guest exits (a local bind mount for the
// Local Daemon backend, a shared-storage PVC subpath for the Cluster
// Orchestrator backend).
type RunOutput struct {
	Stdout    string
	Stderr    string
	ExitCode  int
	Duration  time.Duration
	TimedOut  bool
	Cancelled bool
}
