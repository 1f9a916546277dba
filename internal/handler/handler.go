package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"inbox-triage-go/internal/config"
	schedulerHandler "inbox-triage-go/internal/handler/scheduler"
	"inbox-triage-go/internal/llm"
	"inbox-triage-go/internal/provider"
	"inbox-triage-go/internal/repository"
	"inbox-triage-go/internal/scheduler"
	"inbox-triage-go/internal/triage"
)

// Handlers contains all HTTP handlers
type Handlers struct {
	triage    *triage.Service
	mailbox   *provider.Adapter
	scheduler *scheduler.Scheduler
	backend   llm.Backend
	cfg       *config.Config
	gatherer  prometheus.Gatherer
}

// NewHandlers creates new HTTP handlers. A nil gatherer serves the default registry.
func NewHandlers(svc *triage.Service, mailbox *provider.Adapter, sched *scheduler.Scheduler, backend llm.Backend, cfg *config.Config, gatherer prometheus.Gatherer) *Handlers {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handlers{
		triage:    svc,
		mailbox:   mailbox,
		scheduler: sched,
		backend:   backend,
		cfg:       cfg,
		gatherer:  gatherer,
	}
}

// SetupRoutes sets up all HTTP routes
func (h *Handlers) SetupRoutes(router *gin.Engine) {
	router.GET("/healthz", h.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")
	{
		api.POST("/messages/sync", h.SyncMessages)
		api.GET("/messages", h.ListMessages)
		api.POST("/messages/reset", h.ResetMessages)
		api.DELETE("/messages/reset", h.ResetMessages)
		api.GET("/messages/:id", h.GetMessage)
		api.POST("/messages/:id/retriage", h.RetriageMessage)
		api.POST("/messages/:id/generate-reply", h.GenerateReply)
		api.POST("/messages/:id/send", h.SendReply)

		api.GET("/config/providers", h.GetProviders)

		api.POST("/scheduler/start", schedulerHandler.Start(h.scheduler))
		api.POST("/scheduler/stop", schedulerHandler.Stop(h.scheduler))
		api.POST("/scheduler/run-once", schedulerHandler.RunOnce(h.scheduler))
		api.GET("/scheduler/status", schedulerHandler.Status(h.scheduler))
	}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Mailbox:   h.mailbox.Mode(),
		Metrics:   make(map[string]string),
	}

	if err := h.triage.Ping(c.Request.Context()); err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	if h.scheduler.IsRunning() {
		response.Metrics["scheduler"] = "running"
		response.Metrics["next_run"] = h.scheduler.GetNextRun().Format(time.RFC3339)
	} else {
		response.Metrics["scheduler"] = "stopped"
	}
	if last := h.scheduler.GetLastRun(); !last.IsZero() {
		response.Metrics["last_run"] = last.Format(time.RFC3339)
	}

	if counts, err := h.triage.Stats(c.Request.Context()); err == nil {
		for status, n := range counts {
			response.Metrics["messages_"+string(status)] = strconv.FormatInt(n, 10)
		}
	}

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}

// SyncMessages ingests recent mail and triages a batch of pending messages
func (h *Handlers) SyncMessages(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	if simulate, _ := strconv.ParseBool(c.Query("simulate_error")); simulate {
		h.mailbox.SimulateFailure(true)
		defer h.mailbox.SimulateFailure(false)
	}

	result, err := h.triage.RunTriage(c.Request.Context(), limit)
	if err != nil {
		logrus.Errorf("Triage run failed: %v", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "sync_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, SyncResponse{Success: true, Result: result})
}

// ListMessages returns messages newest first, optionally filtered
func (h *Handlers) ListMessages(c *gin.Context) {
	var filter repository.Filter
	if raw := c.Query("is_lead"); raw != "" {
		isLead, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "invalid_filter", "is_lead must be a boolean")
			return
		}
		filter.IsLead = &isLead
	}
	filter.Category = strings.ToUpper(strings.TrimSpace(c.Query("category")))
	filter.Priority = strings.ToUpper(strings.TrimSpace(c.Query("priority")))

	messages, err := h.triage.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch messages",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	responses := make([]MessageResponse, 0, len(messages))
	for i := range messages {
		responses = append(responses, toMessageResponse(&messages[i]))
	}

	c.JSON(http.StatusOK, MessageListResponse{Messages: responses})
}

// GetMessage returns a single message
func (h *Handlers) GetMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	msg, err := h.triage.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMessageResponse(msg))
}

// RetriageMessage classifies a message again and re-applies the reply rule
func (h *Handlers) RetriageMessage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	msg, err := h.triage.Retriage(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, MessageEnvelope{Message: toMessageResponse(msg)})
}

// GenerateReply drafts a reply whether or not the message needs one
func (h *Handlers) GenerateReply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	msg, err := h.triage.DraftReply(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, toMessageResponse(msg))
}

// SendReply sends the given or suggested reply
func (h *Handlers) SendReply(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req SendReplyRequest
	if err := c.ShouldBind(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "validation_error", "Invalid request body")
		return
	}

	msg, err := h.triage.SendReply(c.Request.Context(), id, req.ReplyBody)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, SendReplyResponse{
		Success: true,
		Message: "Reply sent successfully",
		Email:   toMessageResponse(msg),
	})
}

// ResetMessages deletes every message and rewinds the mock mailbox
func (h *Handlers) ResetMessages(c *gin.Context) {
	deleted, err := h.triage.Reset(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "database_error",
			Message: "Failed to reset messages",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	c.JSON(http.StatusOK, ResetResponse{Success: true, Deleted: deleted})
}

// GetProviders reports the mailbox and language-model configuration
func (h *Handlers) GetProviders(c *gin.Context) {
	user := h.cfg.Gmail.UserEmail
	if user == "" {
		user = "not-set"
	}

	c.JSON(http.StatusOK, ProvidersResponse{Providers: []ProviderStatus{
		{
			Name:    "gmail",
			Enabled: h.cfg.Gmail.Enabled,
			Details: map[string]string{
				"user":       user,
				"mode":       h.mailbox.Mode(),
				"source":     h.mailbox.Name(),
				"configured": strconv.FormatBool(h.mailbox.IsConfigured()),
			},
		},
		{
			Name:    h.cfg.LLM.Provider,
			Enabled: h.cfg.LLM.HasAPIKey(),
			Details: map[string]string{
				"model":   h.backend.Model(),
				"backend": h.backend.Name(),
			},
		},
	}})
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil || id == 0 {
		badRequest(c, "invalid_id", "Invalid message ID")
		return 0, false
	}
	return uint(id), true
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   code,
		Message: message,
		Code:    http.StatusBadRequest,
	})
}

// writeError maps pipeline errors onto HTTP statuses
func writeError(c *gin.Context, err error) {
	var (
		classErr *triage.ClassificationError
		replyErr *triage.ReplyGenerationError
		sendErr  *triage.SendError
		transErr *triage.TransitionError
	)

	resp := ErrorResponse{Error: "internal_error", Message: err.Error(), Code: http.StatusInternalServerError}
	switch {
	case triage.IsNotFound(err):
		resp = ErrorResponse{Error: "not_found", Message: "Message not found", Code: http.StatusNotFound}
	case errors.As(err, &sendErr) && sendErr.Reason == triage.SendMissingBody:
		resp = ErrorResponse{Error: "missing_reply_body", Message: err.Error(), Code: http.StatusBadRequest}
	case errors.As(err, &sendErr):
		resp = ErrorResponse{Error: "send_failed", Message: "Failed to send reply. Check logs for details.", Code: http.StatusBadGateway}
	case errors.As(err, &transErr):
		resp = ErrorResponse{Error: "invalid_transition", Message: err.Error(), Code: http.StatusConflict}
	case errors.As(err, &classErr):
		resp = ErrorResponse{Error: "classification_failed", Message: err.Error(), Code: http.StatusBadGateway}
	case errors.As(err, &replyErr):
		resp = ErrorResponse{Error: "reply_generation_failed", Message: err.Error(), Code: http.StatusBadGateway}
	default:
		logrus.Errorf("Request failed: %v", err)
	}

	c.JSON(resp.Code, resp)
}
