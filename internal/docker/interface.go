package docker

import "context"

// DockerClient is an interface for Docker operations. This allows for
// easier mocking in tests.
type DockerClient interface {
	RunGuest(ctx context.Context, config GuestConfig) (*GuestOutput, error)
	ImageExists(ctx context.Context, imageTag string) (bool, error)
	Close() error
}

// Ensure Client implements DockerClient.
var _ DockerClient = (*Client)(nil)
