// Package server exposes the assistant over HTTP.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"compliance-copilot/internal/analytics"
	"compliance-copilot/internal/auditlog"
	"compliance-copilot/internal/chart"
	"compliance-copilot/internal/orchestrator"
)

// TurnHandler is the part of the orchestrator the HTTP layer needs.
type TurnHandler interface {
	HandleTurn(ctx context.Context, req orchestrator.Request) orchestrator.Reply
}

type Handler struct {
	orch     TurnHandler
	recorder auditlog.Recorder
}

func NewHandler(orch TurnHandler, recorder auditlog.Recorder) *Handler {
	return &Handler{orch: orch, recorder: recorder}
}

// Router builds the echo instance with all routes registered.
func (h *Handler) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	e.POST("/api/chat", h.Chat)
	e.GET("/api/stats", h.Stats)
	e.GET("/healthz", h.Health)
	return e
}

type chatRequest struct {
	SessionID   string `json:"session_id"`
	Message     string `json:"message"`
	PageContext string `json:"page_context"`
}

type chatResponse struct {
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
	ChartSpec *chart.Spec `json:"chart_spec,omitempty"`
}

// Chat handles one conversational turn.
func (h *Handler) Chat(c echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Message == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "message is required"})
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	reply := h.orch.HandleTurn(c.Request().Context(), orchestrator.Request{
		SessionID:   req.SessionID,
		Message:     req.Message,
		PageContext: req.PageContext,
	})

	return c.JSON(http.StatusOK, chatResponse{
		SessionID: reply.SessionID,
		Text:      reply.Text,
		ChartSpec: reply.Chart,
	})
}

// Stats returns the daily usage rollup from the audit log.
func (h *Handler) Stats(c echo.Context) error {
	if h.recorder == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "audit log not configured"})
	}

	date := time.Now().UTC()
	if raw := c.QueryParam("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		}
		date = parsed
	}

	events, err := h.recorder.LoadInteractions()
	if err != nil {
		log.Printf("⚠️ failed to load interactions: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load audit log"})
	}

	return c.JSON(http.StatusOK, analytics.AnalyzeDailyLogs(events, date))
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
