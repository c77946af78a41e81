package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melih/lighthouse/internal/adapters/redisstore"
	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

const githubTagPush = `{
  "ref": "refs/tags/v1.2.0",
  "head_commit": {
    "id": "6113728f27ae82c7b1a177c8d03f9e96e0adf246",
    "message": "release 1.2.0",
    "timestamp": "2024-03-01T10:00:00+01:00"
  },
  "repository": {
    "ssh_url": "git@github.com:Acme/App.git",
    "full_name": "Acme/App"
  },
  "sender": {"login": "octocat"}
}`

const gitlabTagPush = `{
  "object_kind": "tag_push",
  "ref": "refs/tags/v2.0",
  "checkout_sha": "82b3d5ae55f7080f1e6022629cdb57bfae7cccc7",
  "user_id": 4,
  "commits": [{"message": "bump", "timestamp": "2024-03-02T08:00:00Z"}],
  "repository": {
    "url": "git@example.com:jsmith/example.git",
    "homepage": "http://example.com/jsmith/example"
  }
}`

type testServer struct {
	app   *fiber.App
	queue *redisstore.Queue
	store *redisstore.Store
}

func setupServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	queue := redisstore.NewQueue(rdb, "lh")
	store := redisstore.NewStore(rdb, "lh", time.Hour)

	webhooks := NewWebhookHandler(queue, store, logger)
	webhooks.newID = func() string { return "build-1" }
	webhooks.now = func() time.Time { return time.Unix(1_700_000_000, 0) }

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "lighthouse_test_total", Help: "test"}))

	app := fiber.New()
	Register(app, webhooks, NewBuildsHandler(store, store), promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &testServer{app: app, queue: queue, store: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, headers map[string]string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(raw)
}

func githubHeaders(event string) map[string]string {
	return map[string]string{"X-GitHub-Event": event, "X-GitHub-Delivery": "72d3162e-cc78-11e3-81ab-4c9367dc0958"}
}

func TestGitHubTagPush(t *testing.T) {
	s := setupServer(t)

	code, body := s.do(t, http.MethodPost, "/webhook/github", githubTagPush, githubHeaders("push"))

	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":true,"id":"build-1"}`, body)

	req, err := s.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, domain.BuildRequest{
		ID:         "build-1",
		RepoURL:    "git@github.com:Acme/App.git",
		CommitSHA:  "6113728f27ae82c7b1a177c8d03f9e96e0adf246",
		Tag:        "v1.2.0",
		ImageName:  "Acme/App",
		Sender:     "octocat",
		Message:    "release 1.2.0",
		ReceivedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}, *req)

	st, err := s.store.Status(context.Background(), "build-1")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, ports.StatusQueued, st.Status)
}

func TestGitHubAlternatePath(t *testing.T) {
	s := setupServer(t)

	code, _ := s.do(t, http.MethodPost, "/github/webhook", githubTagPush, githubHeaders("push"))
	assert.Equal(t, http.StatusOK, code)
}

func TestGitHubIgnoredDeliveries(t *testing.T) {
	s := setupServer(t)

	code, _ := s.do(t, http.MethodPost, "/webhook/github", githubTagPush, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(t, http.MethodPost, "/webhook/github", `{"zen":"hi"}`, githubHeaders("ping"))
	assert.Equal(t, http.StatusNoContent, code)

	code, body := s.do(t, http.MethodPost, "/webhook/github", `{}`, githubHeaders("issues"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, `"OK"`, body)

	branch := strings.Replace(githubTagPush, "refs/tags/v1.2.0", "refs/heads/main", 1)
	code, body = s.do(t, http.MethodPost, "/webhook/github", branch, githubHeaders("push"))
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "false", body)

	code, _ = s.do(t, http.MethodPost, "/webhook/github", `{not json`, githubHeaders("push"))
	assert.Equal(t, http.StatusBadRequest, code)

	req, err := s.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, req)
}

func TestGitLabTagPush(t *testing.T) {
	s := setupServer(t)

	code, body := s.do(t, http.MethodPost, "/webhook/gitlab", gitlabTagPush, nil)

	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":true,"id":"build-1"}`, body)

	req, err := s.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "git@example.com:jsmith/example.git", req.RepoURL)
	assert.Equal(t, "82b3d5ae55f7080f1e6022629cdb57bfae7cccc7", req.CommitSHA)
	assert.Equal(t, "v2.0", req.Tag)
	assert.Equal(t, "jsmith/example", req.ImageName)
	assert.Equal(t, "4", req.Sender)
	assert.Equal(t, "bump", req.Message)
	assert.Equal(t, time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC), req.ReceivedAt)
}

func TestGitLabWithoutCommits(t *testing.T) {
	s := setupServer(t)
	payload := `{"ref":"refs/tags/1.0","checkout_sha":"abc","repository":{"url":"u","homepage":"http://example.com/a/b/"}}`

	code, _ := s.do(t, http.MethodPost, "/webhook/gitlab", payload, nil)
	require.Equal(t, http.StatusOK, code)

	req, err := s.queue.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	require.NotNil(t, req)
	assert.Equal(t, "<No message>", req.Message)
	assert.Equal(t, "a/b", req.ImageName)
	assert.Equal(t, time.Unix(1_700_000_000, 0).UTC(), req.ReceivedAt)
}

func TestBuildsAPI(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	code, _ := s.do(t, http.MethodGet, "/api/v1/builds/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, code)

	require.NoError(t, s.store.SetStatus(ctx, ports.BuildStatus{ID: "b1", Status: ports.StatusSucceeded, ImageID: "4dc1a5e7b2f0"}))
	require.NoError(t, s.store.AppendLog(ctx, "b1", "Step 1/1 : FROM scratch", "Successfully built 4dc1a5e7b2f0"))
	require.NoError(t, s.store.Beat(ctx, ports.WorkerInfo{Node: "host-a", Beats: 1, Slots: 2, SeenAt: time.Unix(1_700_000_000, 0)}, time.Minute))

	code, body := s.do(t, http.MethodGet, "/api/v1/builds/b1", "", nil)
	require.Equal(t, http.StatusOK, code)
	var st ports.BuildStatus
	require.NoError(t, json.Unmarshal([]byte(body), &st))
	assert.Equal(t, ports.StatusSucceeded, st.Status)
	assert.Equal(t, "4dc1a5e7b2f0", st.ImageID)

	code, body = s.do(t, http.MethodGet, "/api/v1/builds/b1/logs", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"b1","build_log":["Step 1/1 : FROM scratch","Successfully built 4dc1a5e7b2f0"]}`, body)

	code, body = s.do(t, http.MethodGet, "/api/v1/builds/unknown/logs", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"id":"unknown","build_log":[]}`, body)

	code, body = s.do(t, http.MethodGet, "/api/v1/workers", "", nil)
	require.Equal(t, http.StatusOK, code)
	var workers []ports.WorkerInfo
	require.NoError(t, json.Unmarshal([]byte(body), &workers))
	require.Len(t, workers, 1)
	assert.Equal(t, "host-a", workers[0].Node)
}

func TestHealthAndMetrics(t *testing.T) {
	s := setupServer(t)

	code, _ := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, code)

	code, body := s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "lighthouse_test_total 0")
}
