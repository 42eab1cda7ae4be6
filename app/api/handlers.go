package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/rss-merge/app/cache"
	"github.com/lysyi3m/rss-merge/app/campaign"
	"github.com/lysyi3m/rss-merge/app/database"
	"github.com/lysyi3m/rss-merge/app/tasks"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

var httpURL = regexp.MustCompile(`(?i)^https?://`)

type Dependencies struct {
	FeedRepo    database.FeedRepository
	ItemRepo    database.ItemRepository
	MessageRepo database.MessageRepository
	EventRepo   database.EventRepository
	Pipeline    *tasks.Pipeline
	Hooks       *campaign.Hooks
	Prober      FeedProber
	Locker      cache.Locker
	Version     string
}

func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		feedRepo:    deps.FeedRepo,
		itemRepo:    deps.ItemRepo,
		messageRepo: deps.MessageRepo,
		eventRepo:   deps.EventRepo,
		pipeline:    deps.Pipeline,
		hooks:       deps.Hooks,
		generator:   campaign.NewGenerator(deps.Version),
		prober:      deps.Prober,
		locker:      deps.Locker,
		version:     deps.Version,
		startedAt:   time.Now(),
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	if feedCount, err := h.feedRepo.GetFeedCount(c.Request.Context()); err == nil {
		health["feeds"] = feedCount
	} else {
		slog.Error("Database error", "operation", "get_feed_count", "error", err)
		health["status"] = "unhealthy"
		health["database"] = err.Error()
	}

	if checker, ok := h.locker.(HealthChecker); ok {
		redis := checker.Health(c.Request.Context())
		health["redis"] = redis
		if redis["status"] != "healthy" {
			health["status"] = "degraded"
		}
	}

	status := http.StatusOK
	if health["status"] == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	feeds, err := h.feedRepo.ListFeeds(ctx)
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := 0
	for _, f := range feeds {
		items += f.ItemCount
	}

	events, err := h.eventRepo.RecentEvents(ctx, 20)
	if err != nil {
		slog.Error("Database error", "operation", "recent_events", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	recent := make([]gin.H, 0, len(events))
	for _, event := range events {
		recent = append(recent, gin.H{"entry": event.Entry, "created_at": event.CreatedAt})
	}

	c.JSON(http.StatusOK, gin.H{
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
		"feeds":   len(feeds),
		"items":   items,
		"events":  recent,
	})
}

func (h *Handler) APIListFeeds(c *gin.Context) {
	summaries, err := h.feedRepo.ListFeeds(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	feeds := make([]FeedResponse, 0, len(summaries))
	for _, summary := range summaries {
		feeds = append(feeds, FeedResponse{
			ID:              summary.ID,
			URL:             summary.URL,
			ETag:            summary.ETag,
			LastModified:    summary.LastModified,
			ItemCount:       summary.ItemCount,
			LatestPublished: summary.LatestPublished,
			CreatedAt:       summary.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"feeds": feeds,
		"total": len(feeds),
	})
}

func (h *Handler) APIAddFeed(c *gin.Context) {
	var req AddFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	url := strings.TrimSpace(req.URL)
	if !httpURL.MatchString(url) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid URL %s for RSS feed", url)})
		return
	}

	ctx := c.Request.Context()
	entries, err := h.prober.Probe(ctx, url)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": fmt.Sprintf("Failed to fetch URL %s %s", url, err)})
		return
	}

	f, err := h.feedRepo.AddFeed(ctx, url)
	if err != nil {
		slog.Error("Database error", "operation", "add_feed", "url", url, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"feed":    FeedResponse{ID: f.ID, URL: f.URL, CreatedAt: f.CreatedAt},
		"entries": entries,
	})
}

func (h *Handler) APIListItems(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid feed id"})
		return
	}

	page, perPage := pagination(c)

	f, err := h.feedRepo.GetFeed(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_feed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if f == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Feed not found"})
		return
	}

	total, err := h.itemRepo.GetItemCount(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_item_count", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	records, err := h.itemRepo.ListItems(ctx, id, perPage, (page-1)*perPage)
	if err != nil {
		slog.Error("Database error", "operation", "list_items", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	items := make([]ItemResponse, 0, len(records))
	for _, record := range records {
		items = append(items, ItemResponse{
			ID:         record.ID,
			UID:        record.UID,
			Published:  record.Published,
			Added:      record.Added,
			Properties: record.Properties,
		})
	}

	c.JSON(http.StatusOK, ItemsResponse{Items: items, Page: page, PerPage: perPage, Total: total})
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}

	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	return page, perPage
}

func (h *Handler) APIResetFeeds(c *gin.Context) {
	if err := h.feedRepo.ResetFeeds(c.Request.Context()); err != nil {
		slog.Error("Database error", "operation", "reset_feeds", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "message": "All items deleted and feed validators cleared"})
}

func (h *Handler) APIFetch(c *gin.Context) {
	task := tasks.NewFetchFeedsTask("api", h.feedRepo, h.pipeline, h.locker, nil)
	task.Start()

	if err := task.Execute(c.Request.Context()); err != nil {
		slog.Error("Fetch failed", "id", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Fetch failed", "details": err.Error()})
		return
	}

	if task.Report == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "A fetch is already running"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task":   gin.H{"id": task.ID, "type": task.Type},
		"report": task.Report,
	})
}

func (h *Handler) APIProcessQueue(c *gin.Context) {
	task := tasks.NewProcessQueueTask("api", h.hooks, h.locker)
	task.Start()

	if err := task.Execute(c.Request.Context()); err != nil {
		slog.Error("Queue processing failed", "id", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Queue processing failed", "details": err.Error()})
		return
	}

	outcomes := task.Outcomes
	if outcomes == nil {
		outcomes = []campaign.TickOutcome{}
	}

	c.JSON(http.StatusOK, gin.H{
		"task":     gin.H{"id": task.ID, "type": task.Type},
		"outcomes": outcomes,
	})
}

func (h *Handler) APIPurge(c *gin.Context) {
	var req PurgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}

	task := tasks.NewPurgeTask("api", h.feedRepo, h.itemRepo, req.Days, req.UnusedFeeds)
	task.Start()

	if err := task.Execute(c.Request.Context()); err != nil {
		slog.Error("Purge failed", "id", task.ID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Purge failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"task":   gin.H{"id": task.ID, "type": task.Type},
		"result": task.Result,
	})
}

func (h *Handler) APIPreviewMessage(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return
	}

	message, result, err := h.hooks.Preview(c.Request.Context(), id)
	if errors.Is(err, database.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if err != nil {
		slog.Error("Preview failed", "message_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Preview failed", "details": err.Error()})
		return
	}

	c.JSON(http.StatusOK, PreviewResponse{
		MessageID: message.ID,
		Subject:   message.Subject,
		Body:      message.Body,
		Content:   result,
	})
}

func (h *Handler) APIValidateMessage(c *gin.Context) {
	ctx := c.Request.Context()

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return
	}

	message, err := h.messageRepo.GetMessage(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_message", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if message == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}

	err = h.hooks.Validate(ctx, message)
	var validationErr *campaign.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"valid": false, "error": validationErr.Message})
	case err != nil:
		slog.Error("Validation failed", "message_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Validation failed", "details": err.Error()})
	default:
		c.JSON(http.StatusOK, gin.H{"valid": true})
	}
}

func (h *Handler) APIMessageFeed(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid message id"})
		return
	}

	message, items, err := h.hooks.UpcomingItems(c.Request.Context(), id)
	if errors.Is(err, database.ErrMessageNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Message not found"})
		return
	}
	if err != nil {
		slog.Error("Failed to select items", "message_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	selfLink := fmt.Sprintf("%s://%s%s", requestScheme(c), c.Request.Host, c.Request.URL.Path)
	rss := h.generator.Run(message, items, selfLink, time.Now())

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))
	c.Header("X-Embargo", message.Embargo.Format(time.RFC3339))
	c.String(http.StatusOK, rss)
}

func requestScheme(c *gin.Context) string {
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if c.Request.TLS != nil {
		return "https"
	}
	return "http"
}
