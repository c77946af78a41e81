package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDestinationTag(t *testing.T) {
	assert.Equal(t, "1.2.3", DestinationTag("v1.2.3"))
	assert.Equal(t, "1.2.3", DestinationTag("1.2.3"))
	assert.Equal(t, "", DestinationTag(""))
	assert.Equal(t, "v", DestinationTag("v"))
	assert.Equal(t, "vv", DestinationTag("vv"))
}

func TestBuildRequestImageTag(t *testing.T) {
	req := BuildRequest{ImageName: "Acme/WebApp", Tag: "v2.0"}
	assert.Equal(t, "acme/webapp:2.0", req.ImageTag())

	bare := BuildRequest{ImageName: "acme/app", Tag: "v"}
	assert.Equal(t, "acme/app:v", bare.ImageTag())
}

func TestBuildRequestJSON(t *testing.T) {
	raw := `{"repo":"git@github.com:acme/app.git","commit":"abc","tag":"v1","name":"acme/app","sender":"bob","message":"release","timestamp":1700000000}`

	var req BuildRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &req))
	assert.Equal(t, "git@github.com:acme/app.git", req.RepoURL)
	assert.Equal(t, "abc", req.CommitSHA)
	assert.Equal(t, "acme/app", req.ImageName)
	assert.Equal(t, int64(1700000000), req.ReceivedAt.Unix())

	out, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, raw, string(out))
}

func TestBuildLogSnapshot(t *testing.T) {
	log := NewBuildLog()
	log.Append("one")
	snap := log.Lines()
	log.Append("two", "three")

	assert.Equal(t, []string{"one"}, snap)
	assert.Equal(t, []string{"one", "two", "three"}, log.Lines())
	assert.Equal(t, 3, log.Len())

	snap[0] = "changed"
	assert.Equal(t, "one", log.Lines()[0])
}

func TestResultRecords(t *testing.T) {
	req := BuildRequest{
		ID:         "b1",
		RepoURL:    "repo",
		CommitSHA:  "c0ffee",
		Tag:        "v1",
		ImageName:  "acme/app",
		Sender:     "bob",
		Message:    "msg",
		ReceivedAt: time.Unix(42, 0),
	}

	var ok BuildResult = &Success{Request: req, ImageID: "deadbeef", BuildLog: []string{"Successfully built deadbeef"}}
	rec := ok.Record()
	assert.True(t, rec.Status)
	assert.Equal(t, "deadbeef", rec.ID)
	assert.Equal(t, []string{"Successfully built deadbeef"}, rec.BuildLog)
	assert.Equal(t, int64(42), rec.Timestamp)
	assert.Empty(t, rec.Traceback)

	var failed BuildResult = &Failure{Request: req, Stage: StageBuilding, Err: BuildError("build", ErrNoBuildResult), BuildLog: []string{"x"}, Traceback: "trace"}
	rec = failed.Record()
	assert.False(t, rec.Status)
	assert.False(t, failed.Succeeded())
	assert.Equal(t, []string{"x"}, rec.Log)
	assert.Nil(t, rec.BuildLog)
	assert.Equal(t, "trace", rec.Traceback)
	assert.Equal(t, "building", rec.Stage)
	assert.Contains(t, rec.Error, "no build result")
}
