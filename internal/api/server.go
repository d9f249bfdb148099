package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lumicore/sandrun/internal/job"
	"github.com/lumicore/sandrun/internal/logstore"
)

// Server is the Admission Front-End: the HTTP surface over the Job Manager
// and Execution Logger.
type Server struct {
	jobs            *job.Manager
	logs            logstore.LogStore
	outputsRoot     string
	outputRetention time.Duration
	version         string
}

// Config holds configuration for the server.
type Config struct {
	OutputsRoot     string
	OutputRetention time.Duration
	Version         string
}

// New constructs the Admission Front-End over an already-built Job Manager
// and Execution Logger.
func New(jobs *job.Manager, logs logstore.LogStore, cfg Config) *Server {
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Server{
		jobs:            jobs,
		logs:            logs,
		outputsRoot:     cfg.OutputsRoot,
		outputRetention: cfg.OutputRetention,
		version:         cfg.Version,
	}
}

// Close releases server resources.
func (s *Server) Close() error {
	return s.logs.Close()
}

// NewEchoServer creates a new Echo instance configured with the Server
// handlers: a logger, recover, and CORS middleware stack, plus a rate
// limiter on the admission route.
func NewEchoServer(server *Server, withRateLimit bool) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/health", server.HandleHealth)
	e.GET("/version", server.HandleVersion)
	e.GET("/outputs/:job_id/*", server.HandleOutput)

	apiGroup := e.Group("")
	if withRateLimit {
		rateLimiter := NewRateLimiter(10, time.Minute)
		apiGroup.Use(RateLimitMiddleware(rateLimiter))
	}

	apiGroup.POST("/run", server.HandleRun)
	apiGroup.POST("/run/:job_id/cancel", server.HandleCancel)

	apiGroup.GET("/logs/summary", server.HandleLogsSummary)
	apiGroup.GET("/logs/failures", server.HandleLogsFailures)
	apiGroup.GET("/logs/successes", server.HandleLogsSuccesses)
	apiGroup.GET("/logs/session/:id", server.HandleLogsSession)
	apiGroup.GET("/logs/log/:id", server.HandleLogsLog)
	apiGroup.GET("/logs/analysis", server.HandleLogsAnalysis)
	apiGroup.POST("/logs/clear", server.HandleLogsClear)

	return e
}
