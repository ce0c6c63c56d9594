package messagestore

import (
	"context"
	"math"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// Blended ranking weights for the vector stage.
const (
	textWeight   = 0.7
	vectorWeight = 0.3
)

// textScore measures lexical overlap between a query and message content,
// in [0,1]:
//
//  1. query is a case-insensitive substring of content: 1.0 when the match
//     starts at position 0, 0.9 otherwise;
//  2. single-word query: 1.0 when it appears as a whole word, else 0.0;
//  3. multi-word query: the fraction of query words present as whole words.
func textScore(content, query string) float64 {
	c := strings.ToLower(content)
	q := strings.ToLower(query)

	if idx := strings.Index(c, q); idx >= 0 {
		if idx == 0 {
			return 1.0
		}
		return 0.9
	}

	words := strings.Fields(q)
	if len(words) == 0 {
		return 0.0
	}

	contentWords := make(map[string]struct{})
	for _, w := range strings.Fields(c) {
		contentWords[w] = struct{}{}
	}

	if len(words) == 1 {
		if _, ok := contentWords[words[0]]; ok {
			return 1.0
		}
		return 0.0
	}

	present := 0
	for _, w := range words {
		if _, ok := contentWords[w]; ok {
			present++
		}
	}
	return float64(present) / float64(len(words))
}

// cosineSimilarity computes cosine similarity between two vectors, in
// [-1,1]. Mismatched lengths and zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	magA = math.Sqrt(magA)
	magB = math.Sqrt(magB)
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (magA * magB)
}

// Search ranks stored messages against a free-text query and returns up to
// limit results (default 10).
//
// Messages whose text score is strictly above the exact-match threshold are
// returned in storage order without any vector comparison. Otherwise the
// query is embedded and messages are ranked by
// textScore*0.7 + cosineSimilarity*0.3, keeping scores at or above the
// similarity threshold. An empty store yields an empty result, not an error.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]Message, error) {
	ctx, span := tracer.Start(ctx, "Store.Search")
	defer span.End()
	span.SetAttributes(attribute.String("topic", s.config.Name), attribute.Int("limit", limit))

	if err := s.ensureReady(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	msgs, err := s.scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(msgs) == 0 {
		span.SetStatus(codes.Ok, "success")
		return []Message{}, nil
	}

	scores := make([]float64, len(msgs))
	var exact []Message
	for i, msg := range msgs {
		scores[i] = textScore(msg.Content, query)
		if scores[i] > s.config.ExactMatchThreshold {
			exact = append(exact, msg)
		}
	}

	// Exact and near-exact textual matches bypass the vector stage entirely.
	if len(exact) > 0 {
		if len(exact) > limit {
			exact = exact[:limit]
		}
		span.SetAttributes(attribute.Int("results", len(exact)), attribute.Bool("exact_match", true))
		span.SetStatus(codes.Ok, "success")
		return exact, nil
	}

	queryVec, err := s.embedder.Generate(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	type ranked struct {
		msg   Message
		score float64
	}
	var results []ranked
	for i, msg := range msgs {
		vectorScore := cosineSimilarity(queryVec, msg.Vector)
		final := scores[i]*textWeight + vectorScore*vectorWeight
		if final >= s.config.SimilarityThreshold {
			results = append(results, ranked{msg: msg, score: final})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]Message, len(results))
	for i, r := range results {
		out[i] = r.msg
	}

	span.SetAttributes(attribute.Int("results", len(out)))
	span.SetStatus(codes.Ok, "success")
	s.logger.Debug("search completed",
		zap.Int("candidates", len(msgs)),
		zap.Int("results", len(out)),
	)
	return out, nil
}
