// Package registry tracks the active topics and their message stores.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/townsq/internal/messagestore"
)

// Topic pairs a message store with its display metadata.
type Topic struct {
	*messagestore.Store

	// Title is the human-readable topic name shown in listings. The store's
	// Name() is the lookup key.
	Title       string
	Description string
}

// defaultTopic declares a topic seeded on first start.
type defaultTopic struct {
	name        string
	title       string
	description string
}

var defaultTopics = []defaultTopic{
	{name: "marketplace", title: "Community Task Marketplace", description: "Find and offer services in your neighborhood"},
	{name: "chat", title: "Neighborhood Hub Chat", description: "General discussion about your area"},
}

// Registry is a concurrency-safe collection of topics. Stores are created
// and initialized on first access and reused afterwards.
type Registry struct {
	storeConfig messagestore.Config
	embedder    messagestore.Embedder
	logger      *zap.Logger

	mu     sync.Mutex
	topics map[string]*Topic
	order  []string
}

// New returns an empty registry. storeConfig.Name is ignored; each topic
// supplies its own.
func New(storeConfig messagestore.Config, embedder messagestore.Embedder, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		storeConfig: storeConfig,
		embedder:    embedder,
		logger:      logger.Named("registry"),
		topics:      make(map[string]*Topic),
	}
}

// SeedDefaults registers the built-in topics if they are not already present.
func (r *Registry) SeedDefaults(ctx context.Context) error {
	for _, dt := range defaultTopics {
		if _, err := r.Add(ctx, dt.name, dt.title, dt.description); err != nil {
			return fmt.Errorf("seeding topic %q: %w", dt.name, err)
		}
	}
	return nil
}

// Add registers a topic under name, creating and initializing its store.
// Adding an existing name returns the existing topic unchanged.
func (r *Registry) Add(ctx context.Context, name, title, description string) (*Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(ctx, name, title, description)
}

// Get returns the topic registered under name, creating it on demand. A
// topic created this way uses its name as the title.
func (r *Registry) Get(ctx context.Context, name string) (*Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.addLocked(ctx, name, name, "")
}

// Lookup returns the topic registered under name without creating one.
func (r *Registry) Lookup(name string) (*Topic, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[name]
	return t, ok
}

func (r *Registry) addLocked(ctx context.Context, name, title, description string) (*Topic, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty topic name", messagestore.ErrInvalidConfig)
	}
	if existing, ok := r.topics[name]; ok {
		return existing, nil
	}

	cfg := r.storeConfig
	cfg.Name = name
	store, err := messagestore.New(cfg, r.embedder, r.logger)
	if err != nil {
		return nil, fmt.Errorf("creating store for topic %q: %w", name, err)
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initializing topic %q: %w", name, err)
	}

	topic := &Topic{Store: store, Title: title, Description: description}
	r.topics[name] = topic
	r.order = append(r.order, name)
	r.logger.Info("topic registered", zap.String("topic", name))
	return topic, nil
}

// Remove drops the topic from the registry. Persisted fragments stay on
// disk; a later Add with the same name reopens them.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[name]; !ok {
		return false
	}
	delete(r.topics, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.logger.Info("topic removed", zap.String("topic", name))
	return true
}

// Clear drops every topic.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = make(map[string]*Topic)
	r.order = nil
}

// Names returns the registered topic names in registration order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Topics returns the registered topics in registration order.
func (r *Registry) Topics() []*Topic {
	r.mu.Lock()
	defer r.mu.Unlock()
	topics := make([]*Topic, 0, len(r.order))
	for _, name := range r.order {
		topics = append(topics, r.topics[name])
	}
	return topics
}

// Len reports the number of registered topics.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.topics)
}

// SortedNames returns topic names in lexical order, for stable listings.
func (r *Registry) SortedNames() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}
