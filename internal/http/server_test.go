package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/townsq/internal/embeddings"
	"github.com/fyrsmithlabs/townsq/internal/messagestore"
	"github.com/fyrsmithlabs/townsq/internal/quota"
	"github.com/fyrsmithlabs/townsq/internal/registry"
)

func newTestServer(t *testing.T, limit int) *Server {
	t.Helper()
	reg := registry.New(
		messagestore.Config{RootPath: t.TempDir()},
		embeddings.NewDeterministic(8),
		zap.NewNop(),
	)
	server, err := NewServer(reg, quota.New(reg, limit, zap.NewNop()), zap.NewNop(), nil)
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, server *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	server.echo.ServeHTTP(rec, req)
	return rec
}

func postMessage(t *testing.T, server *Server, topic, userID, content string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, server, http.MethodPost, "/api/v1/topics/"+topic+"/messages", PostMessageRequest{
		Content: content,
		UserID:  userID,
	})
}

func TestNewServer(t *testing.T) {
	t.Run("uses defaults when config is nil", func(t *testing.T) {
		server := newTestServer(t, 100)
		assert.Equal(t, "localhost", server.config.Host)
		assert.Equal(t, 8080, server.config.Port)
	})

	t.Run("returns error when registry is nil", func(t *testing.T) {
		_, err := NewServer(nil, nil, zap.NewNop(), nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "registry cannot be nil")
	})

	t.Run("returns error when logger is nil", func(t *testing.T) {
		reg := registry.New(messagestore.Config{RootPath: t.TempDir()}, embeddings.NewDeterministic(8), zap.NewNop())
		_, err := NewServer(reg, quota.New(reg, 100, zap.NewNop()), nil, nil)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "logger is required")
	})
}

func TestHandleHealth(t *testing.T) {
	server := newTestServer(t, 100)
	rec := doJSON(t, server, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}

func TestHandlePostMessage(t *testing.T) {
	server := newTestServer(t, 100)

	rec := postMessage(t, server, "chat", "alice", "hello neighbors")
	require.Equal(t, http.StatusCreated, rec.Code)

	var msg messagestore.Message
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msg))
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello neighbors", msg.Content)
	assert.Equal(t, "alice", msg.UserID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestHandlePostMessage_Validation(t *testing.T) {
	server := newTestServer(t, 100)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/topics/chat/messages", PostMessageRequest{UserID: "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server, http.MethodPost, "/api/v1/topics/chat/messages", PostMessageRequest{Content: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlePostMessage_QuotaExceeded(t *testing.T) {
	server := newTestServer(t, 2)

	for i := 0; i < 2; i++ {
		rec := postMessage(t, server, "chat", "alice", fmt.Sprintf("message %d", i))
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := postMessage(t, server, "chat", "alice", "one too many")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Other users are unaffected.
	rec = postMessage(t, server, "chat", "bob", "still fine")
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestHandleListMessages(t *testing.T) {
	server := newTestServer(t, 100)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "chat", "alice", "first").Code)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "chat", "alice", "second").Code)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/topics/chat/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 2)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/topics/chat/messages?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.Messages, 1)
}

func TestHandleSearch(t *testing.T) {
	server := newTestServer(t, 100)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "chat", "alice", "cats are great").Code)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "chat", "bob", "dogs are great").Code)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/topics/chat/search?q=cats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "cats are great", resp.Messages[0].Content)
}

func TestHandleSearch_MissingQuery(t *testing.T) {
	server := newTestServer(t, 100)
	rec := doJSON(t, server, http.MethodGet, "/api/v1/topics/chat/search", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleUserMessages(t *testing.T) {
	server := newTestServer(t, 100)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "chat", "alice", "mine").Code)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "chat", "bob", "not mine").Code)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/topics/chat/users/alice/messages", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessagesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "alice", resp.Messages[0].UserID)
}

func TestHandleUserMessageCount(t *testing.T) {
	server := newTestServer(t, 100)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "chat", "alice", "one").Code)
	require.Equal(t, http.StatusCreated, postMessage(t, server, "marketplace", "alice", "two").Code)

	rec := doJSON(t, server, http.MethodGet, "/api/v1/users/alice/message-count", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MessageCountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.UserID)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 100, resp.Limit)
}

func TestTopicLifecycle(t *testing.T) {
	server := newTestServer(t, 100)

	rec := doJSON(t, server, http.MethodPost, "/api/v1/topics", CreateTopicRequest{
		Name:        "events",
		Title:       "Local Events",
		Description: "What's happening nearby",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, server, http.MethodGet, "/api/v1/topics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var topics []TopicResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &topics))
	require.Len(t, topics, 1)
	assert.Equal(t, "events", topics[0].Name)
	assert.Equal(t, "Local Events", topics[0].Title)

	rec = doJSON(t, server, http.MethodDelete, "/api/v1/topics/events", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, server, http.MethodDelete, "/api/v1/topics/events", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateTopic_Validation(t *testing.T) {
	server := newTestServer(t, 100)
	rec := doJSON(t, server, http.MethodPost, "/api/v1/topics", CreateTopicRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteThrottle(t *testing.T) {
	reg := registry.New(
		messagestore.Config{RootPath: t.TempDir()},
		embeddings.NewDeterministic(8),
		zap.NewNop(),
	)
	server, err := NewServer(reg, quota.New(reg, 100, zap.NewNop()), zap.NewNop(), &Config{
		Host:               "localhost",
		Port:               8080,
		WriteRatePerSecond: 1,
		WriteRateBurst:     2,
	})
	require.NoError(t, err)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := postMessage(t, server, "chat", "alice", fmt.Sprintf("burst %d", i))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, http.StatusCreated, codes[0])
	assert.Equal(t, http.StatusCreated, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])
}
