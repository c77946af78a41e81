package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/melih/lighthouse/internal/core/domain"
)

// Queue moves build requests and results through redis lists.
type Queue struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

func NewQueue(rdb redis.UniversalClient, keyPrefix string) *Queue {
	return &Queue{rdb: rdb, keyPrefix: keyPrefix}
}

func key(prefix string, parts ...string) string {
	if prefix == "" {
		return strings.Join(parts, ":")
	}
	return prefix + ":" + strings.Join(parts, ":")
}

func (q *Queue) Enqueue(ctx context.Context, req domain.BuildRequest) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, key(q.keyPrefix, "builds"), raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue build: %w", err)
	}
	return nil
}

// Dequeue pops the oldest request, waiting up to wait for one to arrive.
func (q *Queue) Dequeue(ctx context.Context, wait time.Duration) (*domain.BuildRequest, error) {
	res, err := q.rdb.BRPop(ctx, wait, key(q.keyPrefix, "builds")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue build: %w", err)
	}

	var req domain.BuildRequest
	if err := json.Unmarshal([]byte(res[1]), &req); err != nil {
		return nil, fmt.Errorf("malformed build request: %w", err)
	}
	return &req, nil
}

// PublishResult implements ports.ResultSink.
func (q *Queue) PublishResult(ctx context.Context, rec domain.ResultRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	if err := q.rdb.LPush(ctx, key(q.keyPrefix, "results"), raw).Err(); err != nil {
		return fmt.Errorf("failed to publish result: %w", err)
	}
	return nil
}

// NextResult pops the oldest finished build record. It is the read side of
// the results list that the notification layer drains; it returns nil, nil
// when nothing arrives within wait.
func (q *Queue) NextResult(ctx context.Context, wait time.Duration) (*domain.ResultRecord, error) {
	res, err := q.rdb.BRPop(ctx, wait, key(q.keyPrefix, "results")).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read result: %w", err)
	}

	var rec domain.ResultRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		return nil, fmt.Errorf("malformed result: %w", err)
	}
	return &rec, nil
}
