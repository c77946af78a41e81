package services

import (
	"context"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeStream replays a fixed list of events, then err (io.EOF by default).
type fakeStream struct {
	events []ports.Event
	err    error
	closed bool
}

func (s *fakeStream) Next() (ports.Event, error) {
	if len(s.events) == 0 {
		if s.err != nil {
			return ports.Event{}, s.err
		}
		return ports.Event{}, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

func logEvent(text string) ports.Event    { return ports.Event{Kind: ports.EventLog, Text: text} }
func statusEvent(text string) ports.Event { return ports.Event{Kind: ports.EventStatus, Text: text} }
func errorEvent(text string) ports.Event  { return ports.Event{Kind: ports.EventError, Text: text} }

type tagCall struct{ source, target string }

type fakeRuntime struct {
	buildStream *fakeStream
	buildErr    error
	pushStream  *fakeStream
	pushErr     error
	tagErr      error

	built  []string
	tags   []tagCall
	pushes []string
}

func (r *fakeRuntime) Build(_ context.Context, contextDir, tag string) (ports.EventStream, error) {
	r.built = append(r.built, tag)
	if r.buildErr != nil {
		return nil, r.buildErr
	}
	return r.buildStream, nil
}

func (r *fakeRuntime) Tag(_ context.Context, source, target string) error {
	r.tags = append(r.tags, tagCall{source, target})
	return r.tagErr
}

func (r *fakeRuntime) Push(_ context.Context, ref string) (ports.EventStream, error) {
	r.pushes = append(r.pushes, ref)
	if r.pushErr != nil {
		return nil, r.pushErr
	}
	if r.pushStream == nil {
		return &fakeStream{}, nil
	}
	return r.pushStream, nil
}

func (r *fakeRuntime) Ping(context.Context) error { return nil }

type fakeRegistry struct {
	id         string
	resolveErr error
	deleteErr  error
	setErr     error

	calls []string
}

func (r *fakeRegistry) ResolveTag(_ context.Context, repo, tag string) (string, error) {
	r.calls = append(r.calls, "resolve "+repo+":"+tag)
	return r.id, r.resolveErr
}

func (r *fakeRegistry) DeleteTag(_ context.Context, repo, tag string) error {
	r.calls = append(r.calls, "delete "+repo+":"+tag)
	return r.deleteErr
}

func (r *fakeRegistry) SetTag(_ context.Context, repo, tag, imageID string) error {
	r.calls = append(r.calls, "set "+repo+":"+tag+"="+imageID)
	return r.setErr
}

// spyWorkspace counts releases.
type spyWorkspace struct {
	mu       sync.Mutex
	path     string
	releases int
}

func (w *spyWorkspace) Path() string { return w.path }

func (w *spyWorkspace) Release() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.releases++
	return nil
}

func (w *spyWorkspace) Releases() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.releases
}

type spyProvider struct {
	ws  *spyWorkspace
	err error
}

func (p *spyProvider) Acquire(context.Context) (ports.Workspace, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.ws, nil
}

type fakeFetcher struct {
	lines []string
	err   error
	panic bool
	path  string
}

func (f *fakeFetcher) Fetch(_ context.Context, _ domain.BuildRequest, path string, log *domain.BuildLog) error {
	f.path = path
	log.Append(f.lines...)
	if f.panic {
		panic("fetcher exploded")
	}
	return f.err
}

type fakePublisher struct {
	outcome domain.PushOutcome
	calls   int
}

func (p *fakePublisher) Publish(context.Context, *domain.Success) domain.PushOutcome {
	p.calls++
	return p.outcome
}
