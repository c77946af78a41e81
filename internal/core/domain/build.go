package domain

import (
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// BuildRequest is a tag push that should become an image.
// It is created by the webhook layer and never modified afterwards.
type BuildRequest struct {
	ID         string
	RepoURL    string
	CommitSHA  string
	Tag        string
	ImageName  string // owner/repo, lower-cased before use
	Sender     string
	Message    string
	ReceivedAt time.Time
}

type requestJSON struct {
	ID        string `json:"id,omitempty"`
	RepoURL   string `json:"repo"`
	CommitSHA string `json:"commit"`
	Tag       string `json:"tag"`
	ImageName string `json:"name"`
	Sender    string `json:"sender"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// MarshalJSON encodes ReceivedAt as unix seconds in "timestamp".
func (r BuildRequest) MarshalJSON() ([]byte, error) {
	out := requestJSON{
		ID:        r.ID,
		RepoURL:   r.RepoURL,
		CommitSHA: r.CommitSHA,
		Tag:       r.Tag,
		ImageName: r.ImageName,
		Sender:    r.Sender,
		Message:   r.Message,
	}
	if !r.ReceivedAt.IsZero() {
		out.Timestamp = r.ReceivedAt.Unix()
	}
	return json.Marshal(out)
}

func (r *BuildRequest) UnmarshalJSON(data []byte) error {
	var in requestJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = BuildRequest{
		ID:        in.ID,
		RepoURL:   in.RepoURL,
		CommitSHA: in.CommitSHA,
		Tag:       in.Tag,
		ImageName: in.ImageName,
		Sender:    in.Sender,
		Message:   in.Message,
	}
	if in.Timestamp != 0 {
		r.ReceivedAt = time.Unix(in.Timestamp, 0).UTC()
	}
	return nil
}

// ImageTag returns the local "name:tag" reference the image is built as.
func (r BuildRequest) ImageTag() string {
	return strings.ToLower(r.ImageName + ":" + DestinationTag(r.Tag))
}

// DestinationTag strips the leading "v" of a version tag ("v1.2.3" -> "1.2.3").
// A tag made only of "v"s is kept as is so the image reference stays valid.
func DestinationTag(tag string) string {
	if trimmed := strings.TrimLeft(tag, "v"); trimmed != "" {
		return trimmed
	}
	return tag
}

// BuildLog is the ordered, append-only log of a single build.
type BuildLog struct {
	mu    sync.Mutex
	lines []string
}

func NewBuildLog() *BuildLog {
	return &BuildLog{}
}

// Append pushes lines to the end of the log.
func (l *BuildLog) Append(lines ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, lines...)
}

// Lines returns a snapshot of the log.
func (l *BuildLog) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.lines))
	copy(out, l.lines)
	return out
}

func (l *BuildLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.lines)
}

// PushOutcome describes what happened when the image was published.
type PushOutcome struct {
	DestinationRepo string
	DestinationTag  string
	ResolvedImageID string // empty unless the registry was queried successfully
	PushLog         []string
	Failed          bool
}

// Stage is the orchestrator state a build was in.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageFetching   Stage = "fetching"
	StageBuilding   Stage = "building"
	StagePublishing Stage = "publishing"
	StageDone       Stage = "done"
)

// BuildResult is either *Success or *Failure.
type BuildResult interface {
	BuildRequest() BuildRequest
	Log() []string
	Succeeded() bool
	Record() ResultRecord

	isBuildResult()
}

// Success is a built (and, if enabled, pushed) image.
type Success struct {
	Request   BuildRequest
	ImageID   string
	Tag       string
	ImageName string
	BuildLog  []string
	Push      *PushOutcome
}

func (s *Success) BuildRequest() BuildRequest { return s.Request }
func (s *Success) Log() []string              { return s.BuildLog }
func (s *Success) Succeeded() bool            { return true }
func (s *Success) isBuildResult()             {}

func (s *Success) Record() ResultRecord {
	rec := newRecord(s.Request)
	rec.Status = true
	rec.ID = s.ImageID
	rec.BuildLog = s.BuildLog
	return rec
}

// Failure carries everything needed to diagnose a failed build.
type Failure struct {
	Request   BuildRequest
	Stage     Stage
	Err       error
	BuildLog  []string
	Traceback string
	Push      *PushOutcome // set when the push itself failed
}

func (f *Failure) BuildRequest() BuildRequest { return f.Request }
func (f *Failure) Log() []string              { return f.BuildLog }
func (f *Failure) Succeeded() bool            { return false }
func (f *Failure) isBuildResult()             {}

func (f *Failure) Error() string {
	if f.Err == nil {
		return "build failed"
	}
	return f.Err.Error()
}

func (f *Failure) Record() ResultRecord {
	rec := newRecord(f.Request)
	rec.Log = f.BuildLog
	rec.Traceback = f.Traceback
	rec.Error = f.Error()
	rec.Stage = string(f.Stage)
	return rec
}

// ResultRecord is the shape handed to the notification layer.
type ResultRecord struct {
	BuildID   string   `json:"build_id" yaml:"build_id"`
	Name      string   `json:"name" yaml:"name"`
	Repo      string   `json:"repo" yaml:"repo"`
	Commit    string   `json:"commit" yaml:"commit"`
	Message   string   `json:"message" yaml:"message"`
	Tag       string   `json:"tag" yaml:"tag"`
	Timestamp int64    `json:"timestamp" yaml:"timestamp"`
	Sender    string   `json:"sender" yaml:"sender"`
	Status    bool     `json:"status" yaml:"status"`
	BuildLog  []string `json:"build_log,omitempty" yaml:"build_log,omitempty"`
	ID        string   `json:"id,omitempty" yaml:"id,omitempty"`
	Log       []string `json:"log,omitempty" yaml:"log,omitempty"`
	Traceback string   `json:"traceback,omitempty" yaml:"traceback,omitempty"`
	Error     string   `json:"error,omitempty" yaml:"error,omitempty"`
	Stage     string   `json:"stage,omitempty" yaml:"stage,omitempty"`
}

func newRecord(r BuildRequest) ResultRecord {
	var ts int64
	if !r.ReceivedAt.IsZero() {
		ts = r.ReceivedAt.Unix()
	}
	return ResultRecord{
		BuildID:   r.ID,
		Name:      r.ImageName,
		Repo:      r.RepoURL,
		Commit:    r.CommitSHA,
		Message:   r.Message,
		Tag:       r.Tag,
		Timestamp: ts,
		Sender:    r.Sender,
	}
}
