package messagestore_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/townsq/internal/embeddings"
	"github.com/fyrsmithlabs/townsq/internal/messagestore"
)

func newTestStore(t *testing.T, name string) *messagestore.Store {
	t.Helper()
	store, err := messagestore.New(
		messagestore.Config{Name: name, RootPath: t.TempDir()},
		embeddings.NewDeterministic(8),
		zap.NewNop(),
	)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	return store
}

func addMessage(t *testing.T, store *messagestore.Store, content, userID string) messagestore.Message {
	t.Helper()
	msg := messagestore.Message{
		ID:        uuid.NewString(),
		Content:   content,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
	}
	require.NoError(t, store.Add(context.Background(), msg))
	return msg
}

func TestStore_AddAndSearchRoundTrip(t *testing.T) {
	store := newTestStore(t, "chat")
	ts := time.Date(2026, 8, 29, 12, 30, 0, 123456000, time.UTC)
	msg := messagestore.Message{
		ID:        "m-1",
		Content:   "the library opens at nine",
		UserID:    "alice",
		Timestamp: ts,
		Metadata:  map[string]any{"source": "web"},
	}
	require.NoError(t, store.Add(context.Background(), msg))

	results, err := store.Search(context.Background(), "the library opens at nine", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)

	got := results[0]
	assert.Equal(t, "m-1", got.ID)
	assert.Equal(t, msg.Content, got.Content)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, ts, got.Timestamp)
	assert.Equal(t, map[string]any{"source": "web"}, got.Metadata)
}

// Exact-content matches suppress everything that scored below the exact
// threshold: searching "cats" must return the two messages containing the
// whole word and nothing else.
func TestStore_Search_ExactMatchesExcludeOthers(t *testing.T) {
	store := newTestStore(t, "chat")
	first := addMessage(t, store, "cats are great", "alice")
	addMessage(t, store, "dogs are great", "bob")
	third := addMessage(t, store, "I like cats", "carol")

	results, err := store.Search(context.Background(), "cats", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	ids := []string{results[0].ID, results[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, third.ID)
}

func TestStore_Search_EmptyTopic(t *testing.T) {
	store := newTestStore(t, "chat")
	results, err := store.Search(context.Background(), "anything", 10)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestStore_Search_LimitApplies(t *testing.T) {
	store := newTestStore(t, "chat")
	for i := 0; i < 5; i++ {
		addMessage(t, store, fmt.Sprintf("garden update number %d", i), "alice")
	}
	results, err := store.Search(context.Background(), "garden update", 3)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

// wrongDimensionEmbedder always produces vectors of a fixed length regardless
// of the dimension it reports.
type wrongDimensionEmbedder struct{ reported, actual int }

func (e wrongDimensionEmbedder) Generate(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, e.actual), nil
}

func (e wrongDimensionEmbedder) Dimension() int { return e.reported }

func TestStore_Add_DimensionMismatch(t *testing.T) {
	store, err := messagestore.New(
		messagestore.Config{Name: "chat", RootPath: t.TempDir()},
		wrongDimensionEmbedder{reported: 8, actual: 4},
		zap.NewNop(),
	)
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))

	err = store.Add(context.Background(), messagestore.Message{
		ID: "m-1", Content: "hello", UserID: "alice", Timestamp: time.Now().UTC(),
	})
	require.ErrorIs(t, err, messagestore.ErrDimensionMismatch)

	// The rejected message must not be retrievable.
	msgs, err := store.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

// Operations on an uninitialized store initialize it on first use.
func TestStore_Add_LazyInitialize(t *testing.T) {
	store, err := messagestore.New(
		messagestore.Config{Name: "chat", RootPath: t.TempDir()},
		embeddings.NewDeterministic(8),
		zap.NewNop(),
	)
	require.NoError(t, err)
	require.Equal(t, messagestore.StateUninitialized, store.State())

	err = store.Add(context.Background(), messagestore.Message{
		ID: "m-1", Content: "hello", UserID: "alice", Timestamp: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Equal(t, messagestore.StateReady, store.State())
}

func TestStore_Recent_OrderAndLimit(t *testing.T) {
	store := newTestStore(t, "chat")
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Add(context.Background(), messagestore.Message{
			ID:        fmt.Sprintf("m-%d", i),
			Content:   fmt.Sprintf("message %d", i),
			UserID:    "alice",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	msgs, err := store.Recent(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "m-3", msgs[0].ID)
	assert.Equal(t, "m-2", msgs[1].ID)
	assert.Equal(t, "m-1", msgs[2].ID)
}

func TestStore_ByUser(t *testing.T) {
	store := newTestStore(t, "chat")
	addMessage(t, store, "one", "alice")
	addMessage(t, store, "two", "bob")
	addMessage(t, store, "three", "alice")

	msgs, err := store.ByUser(context.Background(), "alice", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "alice", m.UserID)
	}
}

func TestStore_ByUser_LimitApplies(t *testing.T) {
	store := newTestStore(t, "chat")
	for i := 0; i < 5; i++ {
		addMessage(t, store, fmt.Sprintf("note %d", i), "alice")
	}
	msgs, err := store.ByUser(context.Background(), "alice", 2)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

// An empty topic yields an empty slice and no error for an unknown user.
func TestStore_ByUser_EmptyTopic(t *testing.T) {
	store := newTestStore(t, "chat")
	msgs, err := store.ByUser(context.Background(), "nobody", 100)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestStore_ByUser_QuoteInUserID(t *testing.T) {
	store := newTestStore(t, "chat")
	addMessage(t, store, "hello", "o'brien")

	msgs, err := store.ByUser(context.Background(), "o'brien", 100)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "o'brien", msgs[0].UserID)
}

func TestStore_ReopenFromDisk(t *testing.T) {
	dir := t.TempDir()
	embedder := embeddings.NewDeterministic(8)

	store, err := messagestore.New(messagestore.Config{Name: "chat", RootPath: dir}, embedder, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))
	require.NoError(t, store.Add(context.Background(), messagestore.Message{
		ID: "m-1", Content: "persisted", UserID: "alice", Timestamp: time.Now().UTC(),
	}))

	reopened, err := messagestore.New(messagestore.Config{Name: "chat", RootPath: dir}, embedder, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, reopened.Initialize(context.Background()))

	msgs, err := reopened.Recent(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].ID)

	// Appends after reopen must not clobber existing fragments.
	require.NoError(t, reopened.Add(context.Background(), messagestore.Message{
		ID: "m-2", Content: "after reopen", UserID: "alice", Timestamp: time.Now().UTC(),
	}))
	msgs, err = reopened.Recent(context.Background(), 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestStore_StateTransitions(t *testing.T) {
	store, err := messagestore.New(
		messagestore.Config{Name: "chat", RootPath: t.TempDir()},
		embeddings.NewDeterministic(8),
		zap.NewNop(),
	)
	require.NoError(t, err)
	assert.Equal(t, messagestore.StateUninitialized, store.State())

	require.NoError(t, store.Initialize(context.Background()))
	assert.Equal(t, messagestore.StateReady, store.State())

	// Initialize is idempotent once ready.
	require.NoError(t, store.Initialize(context.Background()))
	assert.Equal(t, messagestore.StateReady, store.State())
}

func TestNormalizeTopicName(t *testing.T) {
	store, err := messagestore.New(
		messagestore.Config{Name: "Lost And Found", RootPath: t.TempDir()},
		embeddings.NewDeterministic(8),
		zap.NewNop(),
	)
	require.NoError(t, err)
	assert.Equal(t, "Lost And Found", store.Name())
}
