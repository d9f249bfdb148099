package logstore

import (
	"fmt"
	"log"

	"github.com/lumicore/sandrun/internal/config"
	"github.com/lumicore/sandrun/internal/logstore/fsstore"
	"github.com/lumicore/sandrun/internal/logstore/redisstore"
)

// New creates a LogStore based on configuration, mirroring
// internal/storage.NewJobStore's Redis-vs-default selection.
func New(cfg *config.Config) (LogStore, error) {
	if cfg.LogStore.Backend == "redis" {
		log.Printf("logstore: using redis backend at %s", cfg.Redis.Addr)
		store, err := redisstore.New(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("logstore: create redis store: %w", err)
		}
		return store, nil
	}

	dir := cfg.LogStore.Dir
	if dir == "" {
		dir = "logs"
	}
	log.Printf("logstore: using filesystem backend at %s", dir)
	return fsstore.New(dir)
}
