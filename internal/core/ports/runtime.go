package ports

import "context"

// EventKind tells what a runtime event carries.
type EventKind int

const (
	// EventLog is a fragment of build output.
	EventLog EventKind = iota
	// EventStatus is a progress/status line (push, pull).
	EventStatus
	// EventError is an explicit error reported by the runtime.
	EventError
)

// Event is one decoded message of a build or push stream.
type Event struct {
	Kind EventKind
	Text string
}

// EventStream is a pull-based sequence of events. Next returns io.EOF once
// the stream is exhausted.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// ImageRuntime is the container engine used to build, tag and push images.
// Implementations must allow concurrent independent operations.
type ImageRuntime interface {
	Build(ctx context.Context, contextDir, tag string) (EventStream, error)
	Tag(ctx context.Context, source, target string) error
	Push(ctx context.Context, ref string) (EventStream, error)
	Ping(ctx context.Context) error
}

// RegistryClient queries a registry's tag listing and manages tags.
type RegistryClient interface {
	// ResolveTag returns the image ID (manifest digest) tag points to, or
	// domain.ErrTagNotFound if the repository does not list it.
	ResolveTag(ctx context.Context, repo, tag string) (string, error)
	DeleteTag(ctx context.Context, repo, tag string) error
	SetTag(ctx context.Context, repo, tag, imageID string) error
}
