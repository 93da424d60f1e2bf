package services

import (
	"context"

	"go.uber.org/zap"

	"topicgraph/application/ports"
	"topicgraph/domain/core/valueobjects"
	"topicgraph/pkg/observability"
)

// TopicLookup is the read side of the registry the resolver needs
type TopicLookup interface {
	// Lookup resolves key to a live topic by exact match or synonym
	Lookup(key valueobjects.TopicKey) (valueobjects.TopicKey, bool)

	// Keys lists live keys in creation order
	Keys() []valueobjects.TopicKey
}

// Similarity resolution paths, used as metric labels
const (
	PathExact     = "exact"
	PathLocal     = "local"
	PathDelegated = "delegated"
)

// SimilarityResolver decides whether a candidate key names an existing topic.
// Small registries are compared locally with word-set Jaccard; large ones
// delegate the comparison to the oracle.
type SimilarityResolver struct {
	topics     TopicLookup
	oracle     ports.Oracle
	localLimit int
	logger     *zap.Logger
	metrics    *observability.Collector
}

// NewSimilarityResolver creates a new similarity resolver. Registries with
// fewer than localLimit topics are compared locally.
func NewSimilarityResolver(
	topics TopicLookup,
	oracle ports.Oracle,
	localLimit int,
	logger *zap.Logger,
	metrics *observability.Collector,
) *SimilarityResolver {
	return &SimilarityResolver{
		topics:     topics,
		oracle:     oracle,
		localLimit: localLimit,
		logger:     logger,
		metrics:    metrics,
	}
}

// FindSimilar returns the live topic key matches, or false when nothing
// clears threshold. Oracle failures count as "no match".
func (r *SimilarityResolver) FindSimilar(ctx context.Context, key valueobjects.TopicKey, threshold float64) (valueobjects.TopicKey, bool) {
	if key.IsEmpty() {
		return "", false
	}

	if canonical, ok := r.topics.Lookup(key); ok {
		r.metrics.RecordSimilarity(PathExact, true)
		return canonical, true
	}

	keys := r.topics.Keys()
	if len(keys) < r.localLimit {
		match, ok := localMatch(key, keys, threshold)
		r.metrics.RecordSimilarity(PathLocal, ok)
		return match, ok
	}

	match, ok := r.delegatedMatch(ctx, key, keys, threshold)
	r.metrics.RecordSimilarity(PathDelegated, ok)
	return match, ok
}

// localMatch scans keys in order and returns the best Jaccard match at or
// above threshold. The first key reaching the best score wins ties.
func localMatch(key valueobjects.TopicKey, keys []valueobjects.TopicKey, threshold float64) (valueobjects.TopicKey, bool) {
	var best valueobjects.TopicKey
	bestScore := -1.0
	for _, existing := range keys {
		if existing == key {
			return existing, true
		}
		score := valueobjects.Jaccard(key, existing)
		if score > bestScore {
			best, bestScore = existing, score
		}
	}
	if best.IsEmpty() || bestScore < threshold {
		return "", false
	}
	return best, true
}

// delegatedMatch asks the oracle for the most similar key. The answer is
// accepted only when it clears threshold and names a live topic.
func (r *SimilarityResolver) delegatedMatch(ctx context.Context, key valueobjects.TopicKey, keys []valueobjects.TopicKey, threshold float64) (valueobjects.TopicKey, bool) {
	if r.oracle == nil || len(keys) == 0 {
		return "", false
	}

	candidates := make([]string, len(keys))
	for i, k := range keys {
		candidates[i] = k.String()
	}

	match, err := r.oracle.CompareSimilarity(ctx, key.String(), candidates, threshold)
	if err != nil {
		r.logger.Warn("Delegated similarity failed, treating as no match",
			zap.String("topic", key.String()),
			zap.Int("candidates", len(candidates)),
			zap.Error(err),
		)
		return "", false
	}
	if match.Label == "" || match.Similarity < threshold {
		return "", false
	}

	canonical, ok := r.topics.Lookup(valueobjects.Normalize(match.Label))
	if !ok {
		r.logger.Debug("Oracle matched a topic that is no longer live",
			zap.String("topic", key.String()),
			zap.String("match", match.Label),
		)
		return "", false
	}

	r.logger.Debug("Oracle resolved similar topic",
		zap.String("topic", key.String()),
		zap.String("match", canonical.String()),
		zap.Float64("similarity", match.Similarity),
	)
	return canonical, true
}
