package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/townsq/internal/messagestore"
	"github.com/fyrsmithlabs/townsq/internal/quota"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Topics int    `json:"topics"`
}

// TopicResponse describes one registered topic.
type TopicResponse struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CreateTopicRequest is the request body for POST /api/v1/topics.
type CreateTopicRequest struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// PostMessageRequest is the request body for POST /api/v1/topics/:topic/messages.
type PostMessageRequest struct {
	Content  string         `json:"content"`
	UserID   string         `json:"userId"`
	Metadata map[string]any `json:"metadata"`
}

// MessagesResponse wraps a list of messages.
type MessagesResponse struct {
	Messages []messagestore.Message `json:"messages"`
}

// MessageCountResponse is the response body for GET /api/v1/users/:id/message-count.
type MessageCountResponse struct {
	UserID string `json:"userId"`
	Count  int    `json:"count"`
	Limit  int    `json:"limit"`
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", Topics: s.reg.Len()})
}

func (s *Server) handleListTopics(c echo.Context) error {
	topics := s.reg.Topics()
	resp := make([]TopicResponse, 0, len(topics))
	for _, t := range topics {
		resp = append(resp, TopicResponse{Name: t.Name(), Title: t.Title, Description: t.Description})
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateTopic(c echo.Context) error {
	var req CreateTopicRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "name field is required")
	}
	if req.Title == "" {
		req.Title = req.Name
	}

	topic, err := s.reg.Add(c.Request().Context(), req.Name, req.Title, req.Description)
	if err != nil {
		s.logger.Error("failed to create topic", zap.String("topic", req.Name), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to create topic")
	}
	return c.JSON(http.StatusCreated, TopicResponse{
		Name: topic.Name(), Title: topic.Title, Description: topic.Description,
	})
}

func (s *Server) handleDeleteTopic(c echo.Context) error {
	name := c.Param("topic")
	if !s.reg.Remove(name) {
		return echo.NewHTTPError(http.StatusNotFound, "topic not found")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handlePostMessage(c echo.Context) error {
	var req PostMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Content == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "content field is required")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "userId field is required")
	}

	ctx := c.Request().Context()
	if err := s.limiter.Allow(ctx, req.UserID); err != nil {
		if errors.Is(err, quota.ErrLimitExceeded) {
			return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
		}
		s.logger.Error("quota check failed", zap.String("user_id", req.UserID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "quota check failed")
	}

	topic, err := s.reg.Get(ctx, c.Param("topic"))
	if err != nil {
		s.logger.Error("failed to open topic", zap.String("topic", c.Param("topic")), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open topic")
	}

	msg := messagestore.Message{
		ID:        uuid.NewString(),
		Content:   req.Content,
		UserID:    req.UserID,
		Timestamp: time.Now().UTC(),
		Metadata:  req.Metadata,
	}
	if err := topic.Add(ctx, msg); err != nil {
		s.logger.Error("failed to store message",
			zap.String("topic", topic.Name()),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store message")
	}
	return c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleListMessages(c echo.Context) error {
	topic, err := s.reg.Get(c.Request().Context(), c.Param("topic"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open topic")
	}

	msgs, err := topic.Recent(c.Request().Context(), queryLimit(c, 100))
	if err != nil {
		s.logger.Error("failed to list messages", zap.String("topic", topic.Name()), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list messages")
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: msgs})
}

func (s *Server) handleSearch(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q parameter is required")
	}

	topic, err := s.reg.Get(c.Request().Context(), c.Param("topic"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open topic")
	}

	msgs, err := topic.Search(c.Request().Context(), query, queryLimit(c, 10))
	if err != nil {
		s.logger.Error("search failed",
			zap.String("topic", topic.Name()),
			zap.String("query", query),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "search failed")
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: msgs})
}

func (s *Server) handleUserMessages(c echo.Context) error {
	topic, err := s.reg.Get(c.Request().Context(), c.Param("topic"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open topic")
	}

	msgs, err := topic.ByUser(c.Request().Context(), c.Param("id"), queryLimit(c, 100))
	if err != nil {
		s.logger.Error("user filter failed",
			zap.String("topic", topic.Name()),
			zap.String("user_id", c.Param("id")),
			zap.Error(err),
		)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to fetch user messages")
	}
	return c.JSON(http.StatusOK, MessagesResponse{Messages: msgs})
}

func (s *Server) handleUserMessageCount(c echo.Context) error {
	userID := c.Param("id")
	count, err := s.limiter.Count(c.Request().Context(), userID)
	if err != nil {
		s.logger.Error("message count failed", zap.String("user_id", userID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to count messages")
	}
	return c.JSON(http.StatusOK, MessageCountResponse{
		UserID: userID,
		Count:  count,
		Limit:  s.limiter.Limit(),
	})
}

// queryLimit parses the limit query parameter, falling back on bad input.
func queryLimit(c echo.Context, fallback int) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return fallback
	}
	return limit
}
