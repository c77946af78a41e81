package worker

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// Runner runs one build to completion.
type Runner interface {
	Run(ctx context.Context, req domain.BuildRequest) domain.BuildResult
}

// Config sizes the pool.
type Config struct {
	Node         string
	Slots        int
	BuildTimeout time.Duration
	PollWait     time.Duration // how long one dequeue blocks
	Heartbeat    time.Duration
}

// Worker pulls requests from the queue and runs each in one of Slots
// parallel slots under BuildTimeout.
type Worker struct {
	queue      ports.BuildQueue
	runner     Runner
	sinks      []ports.ResultSink
	store      ports.LogStore
	heartbeats ports.Heartbeats
	recorder   ports.Recorder
	cfg        Config
	logger     logrus.FieldLogger
}

// Option wires optional collaborators.
type Option func(*Worker)

func WithSinks(sinks ...ports.ResultSink) Option {
	return func(w *Worker) { w.sinks = append(w.sinks, sinks...) }
}

func WithLogStore(store ports.LogStore) Option {
	return func(w *Worker) { w.store = store }
}

func WithHeartbeats(hb ports.Heartbeats) Option {
	return func(w *Worker) { w.heartbeats = hb }
}

func WithRecorder(r ports.Recorder) Option {
	return func(w *Worker) { w.recorder = r }
}

func New(queue ports.BuildQueue, runner Runner, cfg Config, logger logrus.FieldLogger, opts ...Option) *Worker {
	if cfg.Slots < 1 {
		cfg.Slots = 1
	}
	if cfg.PollWait <= 0 {
		cfg.PollWait = 5 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 10 * time.Second
	}
	w := &Worker{queue: queue, runner: runner, cfg: cfg, logger: logger.WithField("node", cfg.Node)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start blocks until ctx is cancelled. Builds in flight see the cancellation
// through their own context and still release their workspaces.
func (w *Worker) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.cfg.Slots; i++ {
		slot := i
		g.Go(func() error { return w.loop(ctx, slot) })
	}
	if w.heartbeats != nil {
		g.Go(func() error { return w.beat(ctx) })
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (w *Worker) loop(ctx context.Context, slot int) error {
	logger := w.logger.WithField("slot", slot)
	logger.Info("waiting for builds")
	for {
		if ctx.Err() != nil {
			return nil
		}
		req, err := w.queue.Dequeue(ctx, w.cfg.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger.WithError(err).Error("failed to dequeue")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.cfg.PollWait):
			}
			continue
		}
		if req == nil {
			continue
		}
		w.Process(ctx, *req)
	}
}

// Process runs a single request and reports its result everywhere it is wanted.
func (w *Worker) Process(ctx context.Context, req domain.BuildRequest) domain.BuildResult {
	logger := w.logger.WithFields(logrus.Fields{"build": req.ID, "repo": req.RepoURL, "tag": req.Tag})
	logger.Info("build started")
	w.setStatus(ctx, ports.BuildStatus{ID: req.ID, Status: ports.StatusInProgress, Repo: req.RepoURL, Tag: req.Tag})

	started := time.Now()
	buildCtx := ctx
	if w.cfg.BuildTimeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, w.cfg.BuildTimeout)
		defer cancel()
	}
	result := w.runner.Run(buildCtx, req)
	elapsed := time.Since(started)

	// Reporting outlives a shutdown request so the build is not lost.
	reportCtx := context.WithoutCancel(ctx)

	if w.recorder != nil {
		w.recorder.ObserveBuild(result, elapsed)
		if push := pushOf(result); push != nil {
			w.recorder.ObservePush(*push)
		}
	}

	st := ports.BuildStatus{ID: req.ID, Repo: req.RepoURL, Tag: req.Tag}
	switch r := result.(type) {
	case *domain.Success:
		st.Status, st.ImageID = ports.StatusSucceeded, r.ImageID
	case *domain.Failure:
		st.Status, st.Message = ports.StatusFailed, r.Error()
	}
	if w.store != nil {
		if err := w.store.AppendLog(reportCtx, req.ID, result.Log()...); err != nil {
			logger.WithError(err).Warn("failed to store build log")
		}
	}
	w.setStatus(reportCtx, st)

	rec := result.Record()
	for _, sink := range w.sinks {
		if err := sink.PublishResult(reportCtx, rec); err != nil {
			logger.WithError(err).Error("failed to publish result")
		}
	}

	logger.WithFields(logrus.Fields{"status": st.Status, "elapsed": elapsed.Round(time.Millisecond)}).Info("build finished")
	return result
}

func (w *Worker) setStatus(ctx context.Context, st ports.BuildStatus) {
	if w.store == nil || st.ID == "" {
		return
	}
	if err := w.store.SetStatus(ctx, st); err != nil {
		w.logger.WithError(err).WithField("build", st.ID).Warn("failed to store build status")
	}
}

func (w *Worker) beat(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.Heartbeat)
	defer ticker.Stop()

	var beats int64
	for {
		beats++
		info := ports.WorkerInfo{Node: w.cfg.Node, Beats: beats, Slots: w.cfg.Slots, SeenAt: time.Now().UTC()}
		if err := w.heartbeats.Beat(ctx, info, 3*w.cfg.Heartbeat); err != nil && ctx.Err() == nil {
			w.logger.WithError(err).Warn("heartbeat failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func pushOf(result domain.BuildResult) *domain.PushOutcome {
	switch r := result.(type) {
	case *domain.Success:
		return r.Push
	case *domain.Failure:
		return r.Push
	}
	return nil
}
