// Package messagestore implements the per-topic hybrid message store.
//
// Each Store owns one on-disk messages table made of append-only parquet
// fragments under root/<topic_name_normalized>/messages. Messages carry an
// embedding generated on write; search blends text-match and vector
// similarity scoring, and user-filtered retrieval runs a tiered fallback
// chain over the table.
package messagestore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("townsq.messagestore")

const (
	// tableName is the table directory within each topic directory.
	tableName = "messages"

	// defaultSearchLimit caps search results when the caller passes no limit.
	defaultSearchLimit = 10

	// defaultByUserLimit caps user-filtered results when the caller passes no limit.
	defaultByUserLimit = 100

	// fullScanWindow is how many recent rows the authoritative fallback tier
	// inspects. Matching messages older than this window may be missed in
	// topics holding more rows; that is a documented limitation.
	fullScanWindow = 1000
)

// State is the initialization state of a Store.
type State int32

const (
	// StateUninitialized means the table has not been opened yet.
	StateUninitialized State = iota
	// StateInitializing means an open/create is in flight.
	StateInitializing
	// StateReady means the table is open and operations may proceed.
	StateReady
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Embedder generates vector embeddings from text.
// It is satisfied by embeddings.Provider.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Config holds configuration for a per-topic Store.
type Config struct {
	// Name is the topic name. Required. The on-disk directory name is the
	// lowercased name with spaces replaced by underscores.
	Name string

	// RootPath is the storage root shared by all topics.
	// Default: "data"
	RootPath string

	// SimilarityThreshold is the blended-score cutoff for the vector stage.
	// Default: 0.1
	SimilarityThreshold float64

	// ExactMatchThreshold is the text-score cutoff that short-circuits
	// ranking. Default: 0.8
	ExactMatchThreshold float64
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.RootPath == "" {
		c.RootPath = "data"
	}
	if c.SimilarityThreshold == 0 {
		c.SimilarityThreshold = 0.1
	}
	if c.ExactMatchThreshold == 0 {
		c.ExactMatchThreshold = 0.8
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: topic name required", ErrInvalidConfig)
	}
	return nil
}

// Store is the persistent message table for one topic.
//
// Lifecycle: uninitialized -> initializing -> ready; an initialization
// failure returns to uninitialized and is retried on the next operation.
// Initialization and appends are serialized through one mutex per store, so
// concurrent callers cannot race the open/create, and two writers cannot
// interleave a fragment append. Reads scan immutable fragment files and need
// no lock beyond the ready check.
type Store struct {
	config   Config
	dir      string // rootPath/<normalized name>
	tableDir string // dir/messages
	embedder Embedder
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	seq    int64       // next fragment sequence number, guarded by mu
	syntax quoteSyntax // filter syntax cached by the open-time probe
}

// New creates a Store for one topic. The table is not opened until
// Initialize or the first operation.
func New(config Config, embedder Embedder, logger *zap.Logger) (*Store, error) {
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	dir := filepath.Join(config.RootPath, normalizeTopicName(config.Name))
	return &Store{
		config:   config,
		dir:      dir,
		tableDir: filepath.Join(dir, tableName),
		embedder: embedder,
		logger:   logger.With(zap.String("topic", config.Name)),
		state:    StateUninitialized,
	}, nil
}

// normalizeTopicName maps a topic name to its directory name.
func normalizeTopicName(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "_")
}

// Name returns the topic name.
func (s *Store) Name() string { return s.config.Name }

// Dimension returns the embedding dimension enforced on writes.
func (s *Store) Dimension() int { return s.embedder.Dimension() }

// State returns the current lifecycle state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialize opens the topic's table, creating the directory and an empty
// table on first use. Idempotent; safe to call concurrently with operations
// that also trigger initialization.
func (s *Store) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

// initializeLocked performs the state transition with s.mu held.
func (s *Store) initializeLocked(ctx context.Context) error {
	if s.state == StateReady {
		return nil
	}

	ctx, span := tracer.Start(ctx, "Store.Initialize")
	defer span.End()
	span.SetAttributes(attribute.String("topic", s.config.Name))

	s.state = StateInitializing

	if err := os.MkdirAll(s.tableDir, 0o755); err != nil {
		s.state = StateUninitialized
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%w: creating table directory %s: %v", ErrStorageUnavailable, s.tableDir, err)
	}

	names, err := s.fragmentNames()
	if err != nil {
		s.state = StateUninitialized
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	s.seq = int64(len(names))

	// Probe which filter quoting the scan engine accepts, once per open,
	// instead of retrying syntaxes on every user-filter call.
	s.syntax = probeFilterSyntax()

	s.state = StateReady
	span.SetStatus(codes.Ok, "success")

	s.logger.Info("message store initialized",
		zap.String("path", s.tableDir),
		zap.Int64("fragments", s.seq),
		zap.Int("dimension", s.embedder.Dimension()),
	)
	return nil
}

// ensureReady initializes the store if needed.
func (s *Store) ensureReady(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initializeLocked(ctx)
}

// Add embeds the message content and appends exactly one row to the table.
//
// Fails with ErrDimensionMismatch if the generated vector's length does not
// equal the topic's configured dimension; the message is not persisted.
func (s *Store) Add(ctx context.Context, msg Message) error {
	ctx, span := tracer.Start(ctx, "Store.Add")
	defer span.End()
	span.SetAttributes(
		attribute.String("topic", s.config.Name),
		attribute.String("message_id", msg.ID),
	)

	if err := s.ensureReady(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	vec, err := s.embedder.Generate(ctx, msg.Content)
	if err != nil {
		// The fallback embedder never fails; a concrete Embedder that does
		// is a write-path error.
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("generating embedding: %w", err)
	}
	if len(vec) != s.embedder.Dimension() {
		err := fmt.Errorf("%w: got %d floats, topic dimension is %d",
			ErrDimensionMismatch, len(vec), s.embedder.Dimension())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	msg.Vector = vec

	row, err := encodeRow(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLocked(row); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("message appended",
		zap.String("message_id", msg.ID),
		zap.String("user_id", msg.UserID),
	)
	return nil
}

// appendLocked writes one fragment with s.mu held. The fragment is written
// to a temp name and renamed so concurrent scans never see a partial file.
func (s *Store) appendLocked(row fragmentRow) error {
	name := fmt.Sprintf("part-%06d-%s.parquet", s.seq, uuid.NewString())
	final := filepath.Join(s.tableDir, name)
	tmp := final + ".tmp"

	if err := writeFragment(tmp, row); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("%w: publishing fragment: %v", ErrStorageUnavailable, err)
	}
	s.seq++
	return nil
}

// Recent returns stored messages sorted by timestamp descending, truncated
// to limit (default 100). Rows that fail to deserialize are skipped with a
// logged warning; malformed metadata is replaced with an empty document.
func (s *Store) Recent(ctx context.Context, limit int) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "Store.Recent")
	defer span.End()
	span.SetAttributes(attribute.String("topic", s.config.Name), attribute.Int("limit", limit))

	if err := s.ensureReady(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if limit <= 0 {
		limit = defaultByUserLimit
	}

	msgs, err := s.scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].Timestamp.After(msgs[j].Timestamp)
	})
	if len(msgs) > limit {
		msgs = msgs[:limit]
	}

	span.SetAttributes(attribute.Int("results", len(msgs)))
	span.SetStatus(codes.Ok, "success")
	return msgs, nil
}

// fragmentNames lists fragment files in storage order.
func (s *Store) fragmentNames() ([]string, error) {
	entries, err := os.ReadDir(s.tableDir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing table %s: %v", ErrStorageUnavailable, s.tableDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".parquet") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// scan reads every row of every fragment, in storage order. A fragment that
// cannot be read is skipped with a warning so one bad file never aborts the
// whole fetch; a missing table directory propagates ErrStorageUnavailable.
func (s *Store) scan(ctx context.Context) ([]Message, error) {
	names, err := s.fragmentNames()
	if err != nil {
		return nil, err
	}

	var msgs []Message
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := readFragment(filepath.Join(s.tableDir, name))
		if err != nil {
			s.logger.Warn("skipping unreadable fragment",
				zap.String("fragment", name),
				zap.Error(err),
			)
			continue
		}
		for _, row := range rows {
			msg, recovered := decodeRow(row)
			if recovered {
				s.logger.Warn("malformed message metadata replaced with empty document",
					zap.String("message_id", msg.ID),
					zap.String("fragment", name),
				)
			}
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}
