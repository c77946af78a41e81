package ports

import (
	"context"
	"time"

	"github.com/melih/lighthouse/internal/core/domain"
)

// BuildQueue carries build requests from the webhook front end to workers.
type BuildQueue interface {
	Enqueue(ctx context.Context, req domain.BuildRequest) error
	// Dequeue blocks up to wait; it returns (nil, nil) when nothing arrived.
	Dequeue(ctx context.Context, wait time.Duration) (*domain.BuildRequest, error)
}

// ResultSink receives finished build records.
type ResultSink interface {
	PublishResult(ctx context.Context, rec domain.ResultRecord) error
}

// BuildStatus is the externally visible state of one build.
type BuildStatus struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	ImageID   string    `json:"image_id,omitempty"`
	Repo      string    `json:"repo,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

const (
	StatusQueued     = "queued"
	StatusInProgress = "in-progress"
	StatusSucceeded  = "succeeded"
	StatusFailed     = "failed"
)

// LogStore keeps build status and log lines for the API.
type LogStore interface {
	AppendLog(ctx context.Context, buildID string, lines ...string) error
	Logs(ctx context.Context, buildID string) ([]string, error)
	SetStatus(ctx context.Context, st BuildStatus) error
	Status(ctx context.Context, buildID string) (*BuildStatus, error)
}

// Recorder observes build outcomes for metrics.
type Recorder interface {
	ObserveBuild(result domain.BuildResult, elapsed time.Duration)
	ObservePush(outcome domain.PushOutcome)
}

// WorkerInfo is the last heartbeat of a worker process.
type WorkerInfo struct {
	Node   string    `json:"node"`
	Beats  int64     `json:"beats"`
	Slots  int       `json:"slots"`
	SeenAt time.Time `json:"seen_at"`
}

// Heartbeats tracks live workers.
type Heartbeats interface {
	Beat(ctx context.Context, info WorkerInfo, ttl time.Duration) error
	Workers(ctx context.Context) ([]WorkerInfo, error)
}
