package messagestore

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ByUser returns up to limit messages (default 100) posted by userID.
//
// Resolution runs a tiered fallback chain; a tier that errors or returns
// zero results hands off to the next, because the first tiers depend on scan
// machinery that may reject a filter syntax:
//
//  1. equality filter in the syntax cached by the open-time probe;
//  2. the same query in the alternate quoting convention;
//  3. an in-memory filter over the most recent rows (authoritative within a
//     1,000-row window; older matches in larger topics may be missed).
//
// Tiers 1-2 return storage order; tier 3 returns recency order. Callers must
// not rely on a specific order.
func (s *Store) ByUser(ctx context.Context, userID string, limit int) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "Store.ByUser")
	defer span.End()
	span.SetAttributes(
		attribute.String("topic", s.config.Name),
		attribute.String("user_id", userID),
		attribute.Int("limit", limit),
	)

	if err := s.ensureReady(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if limit <= 0 {
		limit = defaultByUserLimit
	}

	syntaxes := []quoteSyntax{s.syntax, alternateSyntax(s.syntax)}
	for tier, syntax := range syntaxes {
		expr := fmt.Sprintf("userId = %s", syntax.quoteValue(userID))
		msgs, err := s.filterScan(ctx, expr, syntax, limit)
		if err != nil {
			s.logger.Warn("user filter tier failed, falling through",
				zap.Int("tier", tier+1),
				zap.String("syntax", syntax.String()),
				zap.Error(err),
			)
			continue
		}
		if len(msgs) == 0 {
			// Empty is not conclusive here: the filter may be running
			// against an index that does not exist yet.
			continue
		}
		span.SetAttributes(attribute.Int("results", len(msgs)), attribute.Int("tier", tier+1))
		span.SetStatus(codes.Ok, "success")
		return msgs, nil
	}

	// Final tier: full scan of the recent window, filtered in memory.
	recent, err := s.Recent(ctx, fullScanWindow)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("user filter fallback scan: %w", err)
	}

	msgs := make([]Message, 0)
	for _, msg := range recent {
		if msg.UserID != userID {
			continue
		}
		msgs = append(msgs, msg)
		if len(msgs) >= limit {
			break
		}
	}

	span.SetAttributes(attribute.Int("results", len(msgs)), attribute.Int("tier", 3))
	span.SetStatus(codes.Ok, "success")
	return msgs, nil
}

// alternateSyntax returns the quoting convention not chosen by the probe.
func alternateSyntax(q quoteSyntax) quoteSyntax {
	if q == syntaxSingleQuote {
		return syntaxDoubleQuote
	}
	return syntaxSingleQuote
}
