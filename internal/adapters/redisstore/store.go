package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/melih/lighthouse/internal/core/ports"
)

// Store keeps build status, build logs and worker heartbeats.
type Store struct {
	rdb       redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

// NewStore creates a store whose keys expire after ttl (24h if zero).
func NewStore(rdb redis.UniversalClient, keyPrefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{rdb: rdb, keyPrefix: keyPrefix, ttl: ttl}
}

func (s *Store) AppendLog(ctx context.Context, buildID string, lines ...string) error {
	if len(lines) == 0 {
		return nil
	}
	k := key(s.keyPrefix, "logs", buildID)
	values := make([]interface{}, len(lines))
	for i, l := range lines {
		values[i] = l
	}

	pipe := s.rdb.TxPipeline()
	pipe.RPush(ctx, k, values...)
	pipe.Expire(ctx, k, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store build log: %w", err)
	}
	return nil
}

func (s *Store) Logs(ctx context.Context, buildID string) ([]string, error) {
	lines, err := s.rdb.LRange(ctx, key(s.keyPrefix, "logs", buildID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read build log: %w", err)
	}
	return lines, nil
}

func (s *Store) SetStatus(ctx context.Context, st ports.BuildStatus) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, key(s.keyPrefix, "build", st.ID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store build status: %w", err)
	}
	return nil
}

// Status returns nil, nil for unknown builds.
func (s *Store) Status(ctx context.Context, buildID string) (*ports.BuildStatus, error) {
	raw, err := s.rdb.Get(ctx, key(s.keyPrefix, "build", buildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read build status: %w", err)
	}
	var st ports.BuildStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("malformed build status: %w", err)
	}
	return &st, nil
}

// Beat records that a worker is alive; the entry expires after ttl.
func (s *Store) Beat(ctx context.Context, info ports.WorkerInfo, ttl time.Duration) error {
	k := key(s.keyPrefix, "workers", info.Node)
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, k,
		"node", info.Node,
		"beats", info.Beats,
		"slots", info.Slots,
		"seen_at", info.SeenAt.Unix(),
	)
	pipe.Expire(ctx, k, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record heartbeat: %w", err)
	}
	return nil
}

// Workers lists workers whose heartbeat has not expired.
func (s *Store) Workers(ctx context.Context) ([]ports.WorkerInfo, error) {
	var workers []ports.WorkerInfo
	iter := s.rdb.Scan(ctx, 0, key(s.keyPrefix, "workers", "*"), 100).Iterator()
	for iter.Next(ctx) {
		fields, err := s.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read heartbeat: %w", err)
		}
		if len(fields) == 0 {
			continue
		}
		beats, _ := strconv.ParseInt(fields["beats"], 10, 64)
		slots, _ := strconv.Atoi(fields["slots"])
		seen, _ := strconv.ParseInt(fields["seen_at"], 10, 64)
		workers = append(workers, ports.WorkerInfo{
			Node:   fields["node"],
			Beats:  beats,
			Slots:  slots,
			SeenAt: time.Unix(seen, 0).UTC(),
		})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return workers, nil
}
