package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/melih/lighthouse/internal/core/domain"
	"github.com/melih/lighthouse/internal/core/ports"
)

// WebhookHandler turns tag pushes into queued build requests.
type WebhookHandler struct {
	queue  ports.BuildQueue
	store  ports.LogStore // optional
	newID  func() string
	now    func() time.Time
	logger logrus.FieldLogger
}

func NewWebhookHandler(queue ports.BuildQueue, store ports.LogStore, logger logrus.FieldLogger) *WebhookHandler {
	return &WebhookHandler{
		queue:  queue,
		store:  store,
		newID:  uuid.NewString,
		now:    time.Now,
		logger: logger,
	}
}

type githubPush struct {
	Ref        string `json:"ref"`
	HeadCommit *struct {
		ID        string `json:"id"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	} `json:"head_commit"`
	Repository struct {
		SSHURL   string `json:"ssh_url"`
		FullName string `json:"full_name"`
	} `json:"repository"`
	Sender struct {
		Login string `json:"login"`
	} `json:"sender"`
}

// GitHub handles GitHub webhook deliveries. Only tag pushes start builds.
func (h *WebhookHandler) GitHub(c *fiber.Ctx) error {
	event := c.Get("X-GitHub-Event")
	if event == "" || c.Get("X-GitHub-Delivery") == "" {
		return c.SendStatus(fiber.StatusForbidden)
	}

	switch event {
	case "ping":
		h.logger.Debug("got ping from github")
		return c.SendStatus(fiber.StatusNoContent)
	case "push":
	default:
		return c.JSON("OK")
	}

	var payload githubPush
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	tag, ok := tagFromRef(payload.Ref)
	if !ok || payload.HeadCommit == nil {
		return c.JSON(false)
	}

	return h.enqueue(c, domain.BuildRequest{
		RepoURL:    payload.Repository.SSHURL,
		CommitSHA:  payload.HeadCommit.ID,
		Tag:        tag,
		ImageName:  payload.Repository.FullName,
		Sender:     payload.Sender.Login,
		Message:    payload.HeadCommit.Message,
		ReceivedAt: h.parseTime(payload.HeadCommit.Timestamp),
	})
}

type gitlabPush struct {
	Ref         string `json:"ref"`
	CheckoutSHA string `json:"checkout_sha"`
	UserID      int64  `json:"user_id"`
	Commits     []struct {
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	} `json:"commits"`
	Repository struct {
		URL      string `json:"url"`
		Homepage string `json:"homepage"`
	} `json:"repository"`
}

// GitLab handles GitLab tag push hooks.
func (h *WebhookHandler) GitLab(c *fiber.Ctx) error {
	var payload gitlabPush
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	tag, ok := tagFromRef(payload.Ref)
	if !ok {
		return c.JSON(false)
	}

	message, timestamp := "<No message>", ""
	if len(payload.Commits) > 0 {
		message, timestamp = payload.Commits[0].Message, payload.Commits[0].Timestamp
	}

	// The project path is the last two segments of the homepage URL.
	parts := strings.Split(strings.TrimSuffix(payload.Repository.Homepage, "/"), "/")
	name := payload.Repository.Homepage
	if len(parts) >= 2 {
		name = parts[len(parts)-2] + "/" + parts[len(parts)-1]
	}

	return h.enqueue(c, domain.BuildRequest{
		RepoURL:    payload.Repository.URL,
		CommitSHA:  payload.CheckoutSHA,
		Tag:        tag,
		ImageName:  name,
		Sender:     strconv.FormatInt(payload.UserID, 10),
		Message:    message,
		ReceivedAt: h.parseTime(timestamp),
	})
}

func (h *WebhookHandler) enqueue(c *fiber.Ctx, req domain.BuildRequest) error {
	req.ID = h.newID()
	logger := h.logger.WithFields(logrus.Fields{"build": req.ID, "repo": req.RepoURL, "tag": req.Tag})

	if err := h.queue.Enqueue(c.Context(), req); err != nil {
		logger.WithError(err).Error("failed to queue build")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if h.store != nil {
		err := h.store.SetStatus(c.Context(), ports.BuildStatus{
			ID:     req.ID,
			Status: ports.StatusQueued,
			Repo:   req.RepoURL,
			Tag:    req.Tag,
		})
		if err != nil {
			logger.WithError(err).Warn("failed to record queued status")
		}
	}

	logger.Info("build queued")
	return c.JSON(fiber.Map{
		"status": true,
		"id":     req.ID,
	})
}

func (h *WebhookHandler) parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC()
	}
	return h.now().UTC()
}

func tagFromRef(ref string) (string, bool) {
	tag, ok := strings.CutPrefix(ref, "refs/tags/")
	if !ok || tag == "" {
		return "", false
	}
	return tag, true
}
