// Package config loads sandrun's runtime configuration: server, storage,
// runtime-backend and diagnostic settings, driven by environment variables.
package config

import "time"

// Config holds the application configuration.
type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Workers    WorkerPoolConfig
	Runtime    RuntimeConfig
	Diagnostic DiagnosticConfig
	LogStore   LogStoreConfig
	Workspace  WorkspaceConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int
	Environment string // "development" or "production"
}

// RedisConfig holds Redis connection settings, shared by the job bookkeeping
// store and (optionally) the logstore's redisstore backend.
type RedisConfig struct {
	Enabled      bool
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MaxRetries   int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	JobTTL       time.Duration
}

// WorkerPoolConfig holds Job Manager concurrency settings.
type WorkerPoolConfig struct {
	MaxWorkers int
	QueueSize  int
}

// RuntimeConfig selects and parameterizes the Runtime Backend.
type RuntimeConfig struct {
	// Backend is "local", "cluster", or "auto".
	Backend string

	// ImageTag is the guest container image run for every job.
	ImageTag string

	// Namespace is the Kubernetes namespace used by the cluster backend.
	Namespace string

	// OutputPVC names the PersistentVolumeClaim the cluster backend mounts
	// for harvested output.
	OutputPVC string

	// JobTimeout bounds a single job's execution.
	JobTimeout time.Duration
}

// DiagnosticConfig tunes the Diagnostic Instrumentation component.
type DiagnosticConfig struct {
	// FailureThreshold is the number of consecutive failures in a session
	// before instrumentation is offered.
	FailureThreshold int
}

// LogStoreConfig selects the Execution Logger's persistence backend and
// root directory for the filesystem mode.
type LogStoreConfig struct {
	// Backend is "fs" or "redis".
	Backend string

	// Dir is the root directory for the fsstore backend.
	Dir string
}

// WorkspaceConfig tunes per-job filesystem materialization and output
// retention.
type WorkspaceConfig struct {
	// Root is where per-job code/input/output subtrees are materialized.
	Root string

	// OutputRetention bounds how long a job's output/ subtree stays on
	// disk after completion, serving GET /outputs/{job_id}/{relpath}.
	OutputRetention time.Duration

	// ReapInterval is how often the retention sweep runs.
	ReapInterval time.Duration

	// HostProjectDir is the Docker host's view of Root, used to translate
	// bind-mount source paths when the engine process itself runs inside a
	// container sharing a volume with the host (HOST_PROJECT_DIR). Empty
	// when the engine runs directly on the Docker host.
	HostProjectDir string
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Environment: "development",
		},
		Redis: RedisConfig{
			Enabled:      false,
			Addr:         "localhost:6379",
			Password:     "",
			DB:           0,
			PoolSize:     20,
			MaxRetries:   3,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			JobTTL:       24 * time.Hour,
		},
		Workers: WorkerPoolConfig{
			MaxWorkers: 5,
			QueueSize:  100,
		},
		Runtime: RuntimeConfig{
			Backend:    "auto",
			ImageTag:   "sandrun-guest:latest",
			Namespace:  "default",
			OutputPVC:  "sandrun-output",
			JobTimeout: 5 * time.Minute,
		},
		Diagnostic: DiagnosticConfig{
			FailureThreshold: 2,
		},
		LogStore: LogStoreConfig{
			Backend: "fs",
			Dir:     "logs",
		},
		Workspace: WorkspaceConfig{
			Root:            "workspaces",
			OutputRetention: 24 * time.Hour,
			ReapInterval:    10 * time.Minute,
		},
	}
}
