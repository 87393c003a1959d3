// Package redis provides Redis-backed counters and run gating. Counters use
// atomic INCR, the run-once gate uses SETNX, and the daily execution cap
// uses per-day keys that expire on their own.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/fieldflow/fieldflow/pkg/models"
	"github.com/fieldflow/fieldflow/pkg/persistence"
)

const (
	connectTimeout = 5 * time.Second

	// Retained runs per workflow; older entries are trimmed away.
	runListLimit = 1000

	// Per-day counters live two days, enough to survive clock skew around
	// midnight.
	dailyKeyTTL = 48 * time.Hour
)

// Store implements persistence.RunHistory and persistence.CounterStore on a
// Redis instance shared by all workers, giving the trigger gates a
// consistent view under concurrent runs.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

// NewStore connects to Redis and verifies the connection.
func NewStore(ctx context.Context, logger *slog.Logger, addr, password string, db int) (*Store, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", addr, "db", db)

	return &Store{client: client, logger: logger.With("module", "redis_store")}, nil
}

// NewStoreFromURL connects using a redis:// URL.
func NewStoreFromURL(ctx context.Context, logger *slog.Logger, redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}

	return NewStore(ctx, logger, opts.Addr, opts.Password, opts.DB)
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func runKey(runID string) string { return "fieldflow:run:" + runID }

func runListKey(workflowID string) string { return "fieldflow:runs:" + workflowID }

func runOnceKey(workflowID, recordID string) string {
	return fmt.Sprintf("fieldflow:runonce:%s:%s", workflowID, recordID)
}

func dailyKey(workflowID string, day time.Time) string {
	return fmt.Sprintf("fieldflow:daily:%s:%s", workflowID, day.UTC().Format("2006-01-02"))
}

func statsKey(workflowID string) string { return "fieldflow:stats:" + workflowID }

// Record stores the run document, bumps the per-day counter, and marks the
// run-once gate for successful record-bound runs.
func (s *Store) Record(ctx context.Context, run *models.ExecutionRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return persistence.NewStoreError("encode run", run.WorkflowID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, runKey(run.ID), data, 0)
	pipe.LPush(ctx, runListKey(run.WorkflowID), run.ID)
	pipe.LTrim(ctx, runListKey(run.WorkflowID), 0, runListLimit-1)

	daily := dailyKey(run.WorkflowID, run.StartedAt)
	pipe.Incr(ctx, daily)
	pipe.Expire(ctx, daily, dailyKeyTTL)

	if run.Succeeded() && run.Context.RecordID != "" {
		pipe.SetNX(ctx, runOnceKey(run.WorkflowID, run.Context.RecordID), run.ID, 0)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("record run", run.WorkflowID, err)
	}

	return nil
}

func (s *Store) HasSuccessfulRun(ctx context.Context, workflowID, recordID string) (bool, error) {
	count, err := s.client.Exists(ctx, runOnceKey(workflowID, recordID)).Result()
	if err != nil {
		return false, persistence.NewStoreError("run-once lookup", workflowID, err)
	}

	return count > 0, nil
}

func (s *Store) CountExecutionsToday(ctx context.Context, workflowID string, now time.Time) (int, error) {
	count, err := s.client.Get(ctx, dailyKey(workflowID, now)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}

	if err != nil {
		return 0, persistence.NewStoreError("daily count lookup", workflowID, err)
	}

	return count, nil
}

func (s *Store) RunsByWorkflow(ctx context.Context, workflowID string, limit int) ([]*models.ExecutionRun, error) {
	if limit <= 0 || limit > runListLimit {
		limit = runListLimit
	}

	runIDs, err := s.client.LRange(ctx, runListKey(workflowID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, persistence.NewStoreError("run list lookup", workflowID, err)
	}

	runs := make([]*models.ExecutionRun, 0, len(runIDs))

	for _, runID := range runIDs {
		run, err := s.RunByID(ctx, runID)
		if persistence.IsRunNotFound(err) {
			// Trimmed or expired since it was listed.
			continue
		}

		if err != nil {
			return nil, err
		}

		runs = append(runs, run)
	}

	return runs, nil
}

func (s *Store) RunByID(ctx context.Context, runID string) (*models.ExecutionRun, error) {
	data, err := s.client.Get(ctx, runKey(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, persistence.ErrRunNotFound
	}

	if err != nil {
		return nil, persistence.NewStoreError("read run", "", err)
	}

	var run models.ExecutionRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, persistence.NewStoreError("decode run", "", err)
	}

	return &run, nil
}

// IncrementRun updates the per-workflow stats hash atomically.
func (s *Store) IncrementRun(ctx context.Context, workflowID string, succeeded bool, at time.Time) error {
	key := statsKey(workflowID)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, key, "execution_count", 1)

	if succeeded {
		pipe.HIncrBy(ctx, key, "success_count", 1)
	} else {
		pipe.HIncrBy(ctx, key, "failure_count", 1)
	}

	pipe.HSet(ctx, key, "last_run_at", at.UTC().Format(time.RFC3339Nano))

	if _, err := pipe.Exec(ctx); err != nil {
		return persistence.NewStoreError("increment counters", workflowID, err)
	}

	return nil
}

func (s *Store) Stats(ctx context.Context, workflowID string) (*models.WorkflowStats, error) {
	fields, err := s.client.HGetAll(ctx, statsKey(workflowID)).Result()
	if err != nil {
		return nil, persistence.NewStoreError("stats lookup", workflowID, err)
	}

	stats := &models.WorkflowStats{WorkflowID: workflowID}

	stats.ExecutionCount = parseCount(fields["execution_count"])
	stats.SuccessCount = parseCount(fields["success_count"])
	stats.FailureCount = parseCount(fields["failure_count"])

	if raw, ok := fields["last_run_at"]; ok {
		if lastRun, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			stats.LastRunAt = &lastRun
		}
	}

	return stats, nil
}

func parseCount(raw string) int64 {
	var count int64

	_, _ = fmt.Sscanf(raw, "%d", &count)

	return count
}
