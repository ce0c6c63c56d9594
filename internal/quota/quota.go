// Package quota enforces the per-user message cap across all topics.
package quota

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/townsq/internal/messagestore"
	"github.com/fyrsmithlabs/townsq/internal/registry"
)

var tracer = otel.Tracer("townsq.quota")

// ErrLimitExceeded is returned by Allow when a user has reached the
// cross-topic message cap.
var ErrLimitExceeded = errors.New("message limit exceeded")

// DefaultLimit caps messages per user across all topics.
const DefaultLimit = 100

// fullScanWindow bounds the per-topic recount used near the quota boundary.
const fullScanWindow = 1000

// Topic is the per-topic message access the limiter counts against.
type Topic interface {
	Name() string
	ByUser(ctx context.Context, userID string, limit int) ([]messagestore.Message, error)
	Recent(ctx context.Context, limit int) ([]messagestore.Message, error)
}

// Limiter counts a user's messages across every registered topic and gates
// writes against the cap. Counting and writing are not atomic; concurrent
// writers can land a few messages past the cap.
type Limiter struct {
	topics func() []Topic
	limit  int
	logger *zap.Logger
}

// New returns a limiter over reg. A non-positive limit falls back to
// DefaultLimit.
func New(reg *registry.Registry, limit int, logger *zap.Logger) *Limiter {
	return newLimiter(func() []Topic {
		regTopics := reg.Topics()
		topics := make([]Topic, len(regTopics))
		for i, t := range regTopics {
			topics[i] = t
		}
		return topics
	}, limit, logger)
}

func newLimiter(topics func() []Topic, limit int, logger *zap.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Limiter{topics: topics, limit: limit, logger: logger.Named("quota")}
}

// Limit returns the configured cap.
func (l *Limiter) Limit() int { return l.limit }

// Count tallies userID's messages across all topics, stopping early once
// the cap is provably reached. Topics that fail to answer are skipped.
func (l *Limiter) Count(ctx context.Context, userID string) (int, error) {
	ctx, span := tracer.Start(ctx, "Limiter.Count")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	total := 0
	for _, topic := range l.topics() {
		// limit+1 exposes whether the per-topic truncation hid any rows.
		msgs, err := topic.ByUser(ctx, userID, l.limit+1)
		if err != nil {
			l.logger.Warn("skipping topic during quota count",
				zap.String("topic", topic.Name()),
				zap.String("user_id", userID),
				zap.Error(err),
			)
			continue
		}
		total += len(msgs)
		if total >= l.limit {
			span.SetAttributes(attribute.Int("count", total))
			return total, nil
		}
	}

	// Near the boundary the filtered counts may undercount when the filter
	// chain fell back to a truncated scan, so recount from raw fetches.
	if total >= l.limit-2 {
		manual, err := l.recount(ctx, userID)
		if err != nil {
			return total, err
		}
		if manual >= l.limit {
			total = manual
		}
	}

	span.SetAttributes(attribute.Int("count", total))
	return total, nil
}

func (l *Limiter) recount(ctx context.Context, userID string) (int, error) {
	total := 0
	for _, topic := range l.topics() {
		msgs, err := topic.Recent(ctx, fullScanWindow)
		if err != nil {
			l.logger.Warn("skipping topic during quota recount",
				zap.String("topic", topic.Name()),
				zap.Error(err),
			)
			continue
		}
		for _, m := range msgs {
			if m.UserID == userID {
				total++
			}
		}
		if err := ctx.Err(); err != nil {
			return total, err
		}
	}
	return total, nil
}

// Allow reports whether userID may post another message. It returns
// ErrLimitExceeded once the cap is reached.
func (l *Limiter) Allow(ctx context.Context, userID string) error {
	count, err := l.Count(ctx, userID)
	if err != nil {
		return err
	}
	if count >= l.limit {
		l.logger.Info("message quota reached",
			zap.String("user_id", userID),
			zap.Int("count", count),
			zap.Int("limit", l.limit),
		)
		return fmt.Errorf("%w: user %s has %d of %d messages", ErrLimitExceeded, userID, count, l.limit)
	}
	return nil
}
