// Package redisstore is the optional Redis-backed LogStore implementation,
// grounded on internal/storage/redis/store.go's hash-plus-index-set
// pattern, generalized from "latest job snapshot" to an append-only list of
// entry IDs per outcome plus one JSON session record per session.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumicore/sandrun/internal/config"
	"github.com/lumicore/sandrun/pkg/models"
)

// Store persists LogEntry records as JSON string values, indexed by a
// most-recent-first List per outcome so RecentFailures/RecentSuccesses are
// O(limit) reads.
type Store struct {
	client *redis.Client
	ctx    context.Context
	ttl    time.Duration
}

// New creates a Redis-backed Store using cfg.
func New(cfg config.RedisConfig) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MaxRetries:   cfg.MaxRetries,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redisstore: connect to %s: %w", cfg.Addr, err)
	}

	return &Store{client: client, ctx: ctx, ttl: cfg.JobTTL}, nil
}

// NewWithClient wraps an existing client, for tests using miniredis.
func NewWithClient(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ctx: context.Background(), ttl: ttl}
}

func (s *Store) WriteFailure(entry models.LogEntry) error {
	entry.Outcome = models.OutcomeFailure
	return s.write("failures", entry)
}

func (s *Store) WriteSuccess(entry models.LogEntry) error {
	if err := s.write("successes", entry); err != nil {
		return err
	}
	return s.backfillSession(entry)
}

// backfillSession sets FixedBy to entry.LogID on every unresolved failure
// in entry's session, not just the one entry.PreviousAttemptID directly
// names: a session with several consecutive failures before a fix must have
// all of them marked resolved, since previous_attempt_id only ever points
// at the single most recent one.
func (s *Store) backfillSession(entry models.LogEntry) error {
	seen := map[string]bool{entry.LogID: true}
	fix := func(attemptID string) error {
		if attemptID == "" || seen[attemptID] {
			return nil
		}
		seen[attemptID] = true
		prior, ok := s.GetLog(attemptID)
		if !ok || prior.Outcome != models.OutcomeFailure || prior.FixedBy != "" {
			return nil
		}
		prior.FixedBy = entry.LogID
		data, err := json.Marshal(prior)
		if err != nil {
			return err
		}
		return s.client.Set(s.ctx, s.entryKey(prior.LogID), data, s.ttl).Err()
	}

	if err := fix(entry.PreviousAttemptID); err != nil {
		return fmt.Errorf("redisstore: backfill fixed_by: %w", err)
	}

	session, ok := s.GetSession(entry.SessionID)
	if !ok {
		return nil
	}
	for _, attemptID := range session.AttemptIDs {
		if err := fix(attemptID); err != nil {
			return fmt.Errorf("redisstore: backfill fixed_by: %w", err)
		}
	}
	return nil
}

func (s *Store) write(kind string, entry models.LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("redisstore: marshal entry: %w", err)
	}

	entryKey := s.entryKey(entry.LogID)
	if err := s.client.Set(s.ctx, entryKey, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: write entry %s: %w", entry.LogID, err)
	}

	indexKey := s.indexKey(kind)
	if err := s.client.LPush(s.ctx, indexKey, entry.LogID).Err(); err != nil {
		return fmt.Errorf("redisstore: push index %s: %w", indexKey, err)
	}
	s.client.Expire(s.ctx, indexKey, s.ttl)

	return nil
}

func (s *Store) GetLog(logID string) (models.LogEntry, bool) {
	data, err := s.client.Get(s.ctx, s.entryKey(logID)).Bytes()
	if err != nil {
		return models.LogEntry{}, false
	}
	var entry models.LogEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return models.LogEntry{}, false
	}
	return entry, true
}

func (s *Store) RecentFailures(limit int) ([]models.LogEntry, error) {
	return s.recent("failures", limit)
}

func (s *Store) RecentSuccesses(limit int) ([]models.LogEntry, error) {
	return s.recent("successes", limit)
}

func (s *Store) recent(kind string, limit int) ([]models.LogEntry, error) {
	ids, err := s.client.LRange(s.ctx, s.indexKey(kind), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redisstore: list %s index: %w", kind, err)
	}

	entries := make([]models.LogEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := s.GetLog(id); ok {
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *Store) GetSession(sessionID string) (models.Session, bool) {
	data, err := s.client.Get(s.ctx, s.sessionKey(sessionID)).Bytes()
	if err != nil {
		return models.Session{}, false
	}
	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return models.Session{}, false
	}
	return session, true
}

// AppendSession uses WATCH/MULTI to append atomically, since two attempts
// in the same session can complete concurrently.
func (s *Store) AppendSession(sessionID, attemptID string, resolved bool) error {
	key := s.sessionKey(sessionID)

	txf := func(tx *redis.Tx) error {
		session := models.Session{SessionID: sessionID, CreatedAt: time.Now().UTC()}
		if data, err := tx.Get(s.ctx, key).Bytes(); err == nil {
			_ = json.Unmarshal(data, &session) //nolint:errcheck // fall back to fresh session on corrupt value
		}

		session.AttemptIDs = append(session.AttemptIDs, attemptID)
		if resolved && session.ResolvedAt == nil {
			now := time.Now().UTC()
			session.ResolvedAt = &now
		}

		data, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}

		_, err = tx.TxPipelined(s.ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(s.ctx, key, data, 0)
			return nil
		})
		return err
	}

	if err := s.client.Watch(s.ctx, txf, key); err != nil {
		return fmt.Errorf("redisstore: append session %s: %w", sessionID, err)
	}
	return nil
}

// Clear deletes every logentry:*, logindex:*, and session:* key, scanning
// in batches so a large corpus doesn't block the server with a single KEYS
// call.
func (s *Store) Clear() error {
	for _, pattern := range []string{"logentry:*", "logindex:*", "session:*"} {
		iter := s.client.Scan(s.ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(s.ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redisstore: scan %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			continue
		}
		if err := s.client.Del(s.ctx, keys...).Err(); err != nil {
			return fmt.Errorf("redisstore: delete %s: %w", pattern, err)
		}
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) entryKey(logID string) string   { return fmt.Sprintf("logentry:%s", logID) }
func (s *Store) indexKey(kind string) string     { return fmt.Sprintf("logindex:%s", kind) }
func (s *Store) sessionKey(sessionID string) string { return fmt.Sprintf("session:%s", sessionID) }
