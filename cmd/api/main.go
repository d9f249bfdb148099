package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/lumicore/sandrun/internal/api"
	"github.com/lumicore/sandrun/internal/config"
	"github.com/lumicore/sandrun/internal/job"
	"github.com/lumicore/sandrun/internal/logstore"
	"github.com/lumicore/sandrun/internal/runtime"
	"github.com/lumicore/sandrun/internal/storage"
)

func main() {
	cfg := loadConfig()

	maxSourceBytes := applyRuntimeCatalog(cfg)

	log.Printf("Starting sandrun API server")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %d", cfg.Server.Port)
	log.Printf("Runtime backend: %s", cfg.Runtime.Backend)
	log.Printf("Redis enabled: %t", cfg.Redis.Enabled)

	jobStore, err := storage.NewJobStore(cfg)
	if err != nil {
		log.Fatalf("Failed to create job storage: %v", err)
	}
	defer func() {
		if err := jobStore.Close(); err != nil {
			log.Printf("Error closing job storage: %v", err)
		}
	}()

	logStore, err := logstore.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create execution logger: %v", err)
	}
	defer func() {
		if err := logStore.Close(); err != nil {
			log.Printf("Error closing execution logger: %v", err)
		}
	}()

	sandboxRuntime, err := runtime.New(runtime.BackendType(cfg.Runtime.Backend), cfg.Runtime.Namespace, cfg.Runtime.OutputPVC, cfg.Workspace.Root, cfg.Workspace.HostProjectDir)
	if err != nil {
		log.Fatalf("Failed to create runtime backend: %v", err)
	}
	defer func() {
		if err := sandboxRuntime.Close(); err != nil {
			log.Printf("Error closing runtime backend: %v", err)
		}
	}()

	jobManager := job.New(job.Options{
		Runtime:          sandboxRuntime,
		JobStore:         jobStore,
		LogStore:         logStore,
		WorkspaceRoot:    cfg.Workspace.Root,
		ImageTag:         cfg.Runtime.ImageTag,
		MaxConcurrent:    cfg.Workers.MaxWorkers,
		DefaultTimeout:   cfg.Runtime.JobTimeout,
		FailureThreshold: cfg.Diagnostic.FailureThreshold,
		OutputURLPrefix:  "/outputs",
		MaxSourceBytes:   maxSourceBytes,
	})

	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	jobManager.StartReaper(reapCtx, cfg.Workspace.ReapInterval, cfg.Workspace.OutputRetention)

	server := api.New(jobManager, logStore, api.Config{
		OutputsRoot:     cfg.Workspace.Root,
		OutputRetention: cfg.Workspace.OutputRetention,
		Version:         version(),
	})
	defer func() {
		if err := server.Close(); err != nil {
			log.Printf("Error closing server: %v", err)
		}
	}()

	e := api.NewEchoServer(server, cfg.Server.Environment == "production")

	go func() {
		addr := ":" + strconv.Itoa(cfg.Server.Port)
		log.Printf("Server listening on %s", addr)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// applyRuntimeCatalog loads configs/runtimes.yaml, if present, overriding
// the guest image tag and job timeout defaults and returning the source
// size cap it describes. Values set explicitly through RUNNER_IMAGE or
// SCRIPT_TIMEOUT take precedence over the catalog. A missing or invalid
// catalog file falls back to cfg's existing defaults with no source size
// cap, since the single guest image baked into cfg.Runtime.ImageTag is
// always a valid fallback.
func applyRuntimeCatalog(cfg *config.Config) int64 {
	catalog, err := config.LoadDefaultRuntimeCatalog()
	if err != nil {
		log.Printf("Runtime catalog not loaded (%v), using built-in defaults", err)
		return 0
	}

	if os.Getenv("RUNNER_IMAGE") == "" {
		cfg.Runtime.ImageTag = catalog.ImageTag
	}
	if os.Getenv("SCRIPT_TIMEOUT") == "" {
		cfg.Runtime.JobTimeout = time.Duration(catalog.Limits.MaxJobTimeoutSeconds) * time.Second
	}
	return catalog.MaxSourceBytes()
}

func version() string {
	if v := os.Getenv("SANDRUN_VERSION"); v != "" {
		return v
	}
	return "dev"
}

// loadConfig loads configuration from environment variables.
func loadConfig() *config.Config {
	cfg := config.DefaultConfig()

	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Server.Port = p
		}
	}

	if env := os.Getenv("ENVIRONMENT"); env != "" {
		cfg.Server.Environment = env
	}

	if enabled := os.Getenv("REDIS_ENABLED"); enabled == "true" {
		cfg.Redis.Enabled = true
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if d, err := strconv.Atoi(db); err == nil {
			cfg.Redis.DB = d
		}
	}
	if poolSize := os.Getenv("REDIS_POOL_SIZE"); poolSize != "" {
		if p, err := strconv.Atoi(poolSize); err == nil {
			cfg.Redis.PoolSize = p
		}
	}
	if ttl := os.Getenv("REDIS_JOB_TTL_HOURS"); ttl != "" {
		if hours, err := strconv.Atoi(ttl); err == nil {
			cfg.Redis.JobTTL = time.Duration(hours) * time.Hour
		}
	}

	if maxWorkers := os.Getenv("MAX_WORKERS"); maxWorkers != "" {
		if w, err := strconv.Atoi(maxWorkers); err == nil {
			cfg.Workers.MaxWorkers = w
		}
	}
	if queueSize := os.Getenv("QUEUE_SIZE"); queueSize != "" {
		if q, err := strconv.Atoi(queueSize); err == nil {
			cfg.Workers.QueueSize = q
		}
	}

	if backend := os.Getenv("EXECUTION_RUNTIME"); backend != "" {
		cfg.Runtime.Backend = backend
	}
	if imageTag := os.Getenv("RUNNER_IMAGE"); imageTag != "" {
		cfg.Runtime.ImageTag = imageTag
	}
	if namespace := os.Getenv("KUBERNETES_NAMESPACE"); namespace != "" {
		cfg.Runtime.Namespace = namespace
	}
	if pvc := os.Getenv("SANDRUN_OUTPUT_PVC"); pvc != "" {
		cfg.Runtime.OutputPVC = pvc
	}
	if timeout := os.Getenv("SCRIPT_TIMEOUT"); timeout != "" {
		if s, err := strconv.Atoi(timeout); err == nil {
			cfg.Runtime.JobTimeout = time.Duration(s) * time.Second
		}
	}

	if threshold := os.Getenv("SANDRUN_FAILURE_THRESHOLD"); threshold != "" {
		if n, err := strconv.Atoi(threshold); err == nil {
			cfg.Diagnostic.FailureThreshold = n
		}
	}

	if backend := os.Getenv("SANDRUN_LOGSTORE_BACKEND"); backend != "" {
		cfg.LogStore.Backend = backend
	}
	if dir := os.Getenv("SANDRUN_LOGSTORE_DIR"); dir != "" {
		cfg.LogStore.Dir = dir
	}

	if root := os.Getenv("SANDRUN_WORKSPACE_ROOT"); root != "" {
		cfg.Workspace.Root = root
	}
	if retention := os.Getenv("SANDRUN_OUTPUT_RETENTION_HOURS"); retention != "" {
		if h, err := strconv.Atoi(retention); err == nil {
			cfg.Workspace.OutputRetention = time.Duration(h) * time.Hour
		}
	}
	if hostDir := os.Getenv("HOST_PROJECT_DIR"); hostDir != "" {
		cfg.Workspace.HostProjectDir = hostDir
	}

	return cfg
}
