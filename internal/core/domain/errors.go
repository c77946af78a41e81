package domain

import (
	"errors"
	"fmt"
)

// Kind classifies build errors by the stage that produced them.
type Kind string

const (
	KindWorkspace Kind = "workspace"
	KindFetch     Kind = "fetch"
	KindBuild     Kind = "build"
	KindPublish   Kind = "publish"
)

var (
	ErrWorkspaceExists = errors.New("workspace already exists")
	ErrNoBuildResult   = errors.New("no build result")
	ErrPushFailed      = errors.New("push failed")
	ErrTagNotFound     = errors.New("tag not found in registry")
)

// Error is a classified build error. Err usually carries a stack trace.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Format keeps the wrapped error's "%+v" output (stack traces) reachable.
func (e *Error) Format(s fmt.State, verb rune) {
	if verb == 'v' && s.Flag('+') {
		fmt.Fprintf(s, "%s\n%+v", e.Error(), e.Err)
		return
	}
	fmt.Fprint(s, e.Error())
}

func WorkspaceError(op string, err error) error { return &Error{Kind: KindWorkspace, Op: op, Err: err} }
func FetchError(op string, err error) error     { return &Error{Kind: KindFetch, Op: op, Err: err} }
func BuildError(op string, err error) error     { return &Error{Kind: KindBuild, Op: op, Err: err} }
func PublishError(op string, err error) error   { return &Error{Kind: KindPublish, Op: op, Err: err} }

// KindOf reports the kind of a classified error, or "" if err is not one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
