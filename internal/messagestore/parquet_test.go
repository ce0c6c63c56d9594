package messagestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEncodeDecodeRow(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793000, time.UTC)
	msg := Message{
		ID:        "m-1",
		Content:   "hello",
		UserID:    "alice",
		Timestamp: ts,
		Metadata:  map[string]any{"kind": "greeting"},
		Vector:    []float32{0.1, 0.2},
	}

	row, err := encodeRow(msg)
	require.NoError(t, err)
	assert.Equal(t, ts.UnixMicro(), row.Timestamp)
	assert.JSONEq(t, `{"kind":"greeting"}`, row.Metadata)

	got, recovered := decodeRow(row)
	assert.False(t, recovered)
	assert.Equal(t, msg.ID, got.ID)
	assert.Equal(t, msg.Content, got.Content)
	assert.Equal(t, msg.UserID, got.UserID)
	// Microsecond precision survives the round trip.
	assert.Equal(t, ts.Truncate(time.Microsecond), got.Timestamp)
	assert.Equal(t, map[string]any{"kind": "greeting"}, got.Metadata)
	assert.Equal(t, msg.Vector, got.Vector)
}

func TestEncodeRow_NilMetadata(t *testing.T) {
	row, err := encodeRow(Message{ID: "m-2", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, "{}", row.Metadata)
}

func TestDecodeRow_MalformedMetadata(t *testing.T) {
	msg, recovered := decodeRow(fragmentRow{ID: "m-3", Metadata: "{not json"})
	assert.True(t, recovered)
	assert.Equal(t, map[string]any{}, msg.Metadata)
}

// A row whose metadata column holds garbage must not abort a whole fetch:
// the store replaces it with an empty document and keeps going.
func TestRecent_RecoversMalformedMetadataRow(t *testing.T) {
	dir := t.TempDir()
	store, err := New(Config{Name: "t", RootPath: dir}, stubEmbedder{dim: 4}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Initialize(context.Background()))

	good, err := encodeRow(Message{
		ID: "good", Content: "fine", UserID: "u",
		Timestamp: time.Now().UTC(), Vector: []float32{1, 2, 3, 4},
	})
	require.NoError(t, err)
	bad := good
	bad.ID = "bad"
	bad.Metadata = "{definitely not json"

	require.NoError(t, writeFragment(filepath.Join(store.tableDir, "part-000000-x.parquet"), good))
	require.NoError(t, writeFragment(filepath.Join(store.tableDir, "part-000001-y.parquet"), bad))

	msgs, err := store.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.NotNil(t, m.Metadata)
		assert.Empty(t, m.Metadata["missing"])
	}
}

// stubEmbedder returns a constant-length vector for internal tests.
type stubEmbedder struct{ dim int }

func (s stubEmbedder) Generate(_ context.Context, _ string) ([]float32, error) {
	return make([]float32, s.dim), nil
}

func (s stubEmbedder) Dimension() int { return s.dim }
