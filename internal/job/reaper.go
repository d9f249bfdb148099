package job

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"time"
)

// StartReaper periodically deletes workspace directories whose own
// modification time has aged past maxAge, bounding disk usage from harvested
// artifacts kept alive for GET /outputs/{job_id}/{relpath}. Mirrors
// internal/api/middleware.go's RateLimiter.cleanup ticker idiom.
func (m *Manager) StartReaper(ctx context.Context, interval, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.reapOnce(maxAge)
			}
		}
	}()
}

func (m *Manager) reapOnce(maxAge time.Duration) {
	entries, err := os.ReadDir(m.wsRoot)
	if err != nil {
		return
	}

	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(m.wsRoot, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Printf("job: reap %s: %v", path, err)
		}
	}
}
