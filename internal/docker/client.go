package docker

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/lumicore/sandrun/pkg/protocol"
)

const (
	// Resource limits.
	MaxMemory     = 512 * 1024 * 1024 // 512MB, guest programs load images
	MaxMemorySwap = 512 * 1024 * 1024 // No extra swap beyond memory
	MaxCPUQuota   = 100000            // 1 CPU
	MaxPidsLimit  = 200               // Max processes
	MaxOutputSize = 4 * 1024 * 1024   // 4MB of captured stdout/stderr text

	// DefaultTimeout is used when a RunSpec doesn't set one.
	DefaultTimeout = 5 * time.Minute
)

// Client wraps the Docker client with secure container operations.
type Client struct {
	cli *client.Client
}

// NewClient creates a new Docker client.
func NewClient() (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}

	return &Client{cli: cli}, nil
}

// Close closes the Docker client.
func (c *Client) Close() error {
	return c.cli.Close()
}

// ImageExists checks if a Docker image exists locally.
func (c *Client) ImageExists(ctx context.Context, imageTag string) (bool, error) {
	_, err := c.cli.ImageInspect(ctx, imageTag)
	if err != nil {
		if errdefs.IsNotFound(err) { //nolint:staticcheck // SA1019: errdefs.IsNotFound is correct for Docker client
			return false, nil
		}
		return false, fmt.Errorf("failed to inspect image: %w", err)
	}
	return true, nil
}

// GuestConfig holds everything needed to run one guest program in an
// isolated container over the sandbox protocol's bidirectional
// stdin/stdout marker channel.
type GuestConfig struct {
	ImageTag string

	// CodePath, InputPath and OutputPath are host directories bind-mounted
	// into the container at /code (ro), /input (ro) and /output (rw).
	CodePath   string
	InputPath  string
	OutputPath string

	// RequestJSON is written as the guest's first stdin line.
	RequestJSON []byte

	// OnMarker is invoked for every recognized marker parsed off the
	// guest's stdout, in stream order. See pkg/runtime.RunSpec.OnMarker.
	OnMarker func(protocol.Marker) *protocol.ConfirmationResult

	Env     []string
	WorkDir string
}

// GuestOutput holds the result of one guest run.
type GuestOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// RunGuest creates and runs a secure container for one guest program,
// feeding it a RunRequest on stdin and relaying marker traffic through
// config.OnMarker as it arrives on stdout.
func (c *Client) RunGuest(ctx context.Context, config GuestConfig) (*GuestOutput, error) {
	startTime := time.Now()

	containerID, err := c.createSecureContainer(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	defer func() {
		cleanupCtx := context.WithoutCancel(ctx)
		_ = c.cli.ContainerRemove(cleanupCtx, containerID, container.RemoveOptions{ //nolint:errcheck // best effort cleanup
			Force:         true,
			RemoveVolumes: true,
		})
	}()

	attach, err := c.cli.ContainerAttach(ctx, containerID, container.AttachOptions{
		Stream: true,
		Stdin:  true,
		Stdout: true,
		Stderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to attach to container: %w", err)
	}
	defer attach.Close()

	if err := c.cli.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		return nil, fmt.Errorf("failed to start container: %w", err)
	}

	if _, err := attach.Conn.Write(append(config.RequestJSON, '\n')); err != nil {
		return nil, fmt.Errorf("failed to write request to guest stdin: %w", err)
	}

	stdoutBuf := &limitedWriter{limit: MaxOutputSize}
	stderrBuf := &limitedWriter{limit: MaxOutputSize}

	markerPipeR, markerPipeW := io.Pipe()
	var stdoutTee io.Writer = stdoutBuf
	if config.OnMarker != nil {
		stdoutTee = io.MultiWriter(stdoutBuf, markerPipeW)
	}

	var copyWG sync.WaitGroup
	copyWG.Add(1)
	go func() {
		defer copyWG.Done()
		_, copyErr := stdcopy.StdCopy(stdoutTee, stderrBuf, attach.Reader)
		_ = markerPipeW.CloseWithError(copyErr) //nolint:errcheck // propagated via scanner
	}()

	var markerWG sync.WaitGroup
	if config.OnMarker != nil {
		markerWG.Add(1)
		go func() {
			defer markerWG.Done()
			c.pumpMarkers(markerPipeR, attach.Conn, config.OnMarker)
		}()
	} else {
		go func() { _, _ = io.Copy(io.Discard, markerPipeR) }() //nolint:errcheck // unused when no handler
	}

	statusCh, errCh := c.cli.ContainerWait(ctx, containerID, container.WaitConditionNotRunning)

	var exitCode int64
	timedOut := false

	select {
	case waitErr := <-errCh:
		if waitErr != nil {
			return nil, fmt.Errorf("error waiting for container: %w", waitErr)
		}
	case status := <-statusCh:
		exitCode = status.StatusCode
	case <-ctx.Done():
		timedOut = true
		killCtx := context.WithoutCancel(ctx)
		_ = c.cli.ContainerKill(killCtx, containerID, "SIGKILL") //nolint:errcheck // best effort kill
		<-statusCh
	}

	attach.Close()
	copyWG.Wait()
	markerWG.Wait()

	duration := time.Since(startTime)

	return &GuestOutput{
		Stdout:   sanitizeOutput(stdoutBuf.String()),
		Stderr:   sanitizeOutput(stderrBuf.String()),
		ExitCode: int(exitCode),
		Duration: duration,
		TimedOut: timedOut,
	}, nil
}

// pumpMarkers scans demultiplexed guest stdout for protocol markers,
// invoking onMarker for each and writing confirmation replies back on the
// guest's stdin for markers that requested one.
func (c *Client) pumpMarkers(r io.Reader, stdin io.Writer, onMarker func(protocol.Marker) *protocol.ConfirmationResult) {
	sc := protocol.NewScanner(r)
	for {
		marker, err := sc.Next()
		if err != nil {
			return
		}

		result := onMarker(marker)
		if !marker.WantsConfirm || result == nil {
			continue
		}

		payload, marshalErr := protocol.MarshalConfirmation(result)
		if marshalErr != nil {
			continue
		}
		if _, writeErr := stdin.Write(append(payload, '\n')); writeErr != nil {
			return
		}
	}
}

// createSecureContainer creates a container with all security constraints
// and the three workspace bind mounts.
func (c *Client) createSecureContainer(ctx context.Context, config GuestConfig) (string, error) {
	workDir := config.WorkDir
	if workDir == "" {
		workDir = "/code"
	}

	containerConfig := &container.Config{
		Image:           config.ImageTag,
		Cmd:             []string{"python3", "/code/main.py"},
		WorkingDir:      workDir,
		User:            "sandbox",
		NetworkDisabled: true,
		Env:             config.Env,
		OpenStdin:       true,
		AttachStdin:     true,
		AttachStdout:    true,
		AttachStderr:    true,
		StdinOnce:       true,
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:     MaxMemory,
			MemorySwap: MaxMemorySwap,
			CPUQuota:   MaxCPUQuota,
			PidsLimit:  func() *int64 { v := int64(MaxPidsLimit); return &v }(),
		},
		SecurityOpt:    []string{"no-new-privileges"},
		ReadonlyRootfs: false,
		CapDrop:        []string{"ALL"},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=64m",
		},
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: config.CodePath, Target: "/code", ReadOnly: true},
			{Type: mount.TypeBind, Source: config.InputPath, Target: "/input", ReadOnly: true},
			{Type: mount.TypeBind, Source: config.OutputPath, Target: "/output", ReadOnly: false},
		},
	}

	resp, err := c.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		return "", err
	}

	return resp.ID, nil
}

// sanitizeOutput removes potentially dangerous content from output.
func sanitizeOutput(output string) string {
	output = removeANSIEscapes(output)

	if len(output) > MaxOutputSize {
		output = output[:MaxOutputSize] + "\n... (output truncated)"
	}

	return output
}

// removeANSIEscapes removes ANSI escape sequences.
func removeANSIEscapes(s string) string {
	result := strings.Builder{}
	inEscape := false

	for _, r := range s {
		if r == '\x1b' {
			inEscape = true
			continue
		}
		if inEscape {
			if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
				inEscape = false
			}
			continue
		}
		result.WriteRune(r)
	}

	return result.String()
}

// limitedWriter wraps a strings.Builder with a size limit.
type limitedWriter struct {
	strings.Builder
	limit int
}

func (w *limitedWriter) Write(p []byte) (n int, err error) {
	remaining := w.limit - w.Len()
	if remaining <= 0 {
		return 0, io.EOF
	}

	if len(p) > remaining {
		p = p[:remaining]
	}

	return w.Builder.Write(p)
}
