package services

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"topicgraph/domain/core/aggregates"
	"topicgraph/domain/core/entities"
	"topicgraph/domain/core/valueobjects"
)

// MergeCandidate is a pair of topics the planner considers duplicates
type MergeCandidate struct {
	Winner valueobjects.TopicKey `json:"winner"`
	Loser  valueobjects.TopicKey `json:"loser"`
	Score  float64               `json:"score"`
}

// MergePlanner consolidates near-duplicate topics across the registry.
// A pair's score is the larger of its word overlap and its saturated
// co-occurrence strength, so topics that keep appearing together merge even
// when they share no words.
type MergePlanner struct {
	ceiling    int
	saturation int
	logger     *zap.Logger
}

// NewMergePlanner creates a planner that refuses registries larger than
// ceiling and saturates co-occurrence strength at saturation.
func NewMergePlanner(ceiling, saturation int, logger *zap.Logger) *MergePlanner {
	if saturation <= 0 {
		saturation = 10
	}
	return &MergePlanner{
		ceiling:    ceiling,
		saturation: saturation,
		logger:     logger,
	}
}

// PairScore returns max(jaccard, min(1, coOccurrence/saturation))
func (p *MergePlanner) PairScore(a, b valueobjects.TopicKey, coOccurrence int) float64 {
	lexical := valueobjects.Jaccard(a, b)
	cooc := math.Min(1.0, float64(coOccurrence)/float64(p.saturation))
	return math.Max(lexical, cooc)
}

// Plan lists the merges a pass at threshold would execute, in order.
// It does not modify the registry.
func (p *MergePlanner) Plan(registry *aggregates.TopicRegistry, threshold float64) []MergeCandidate {
	if registry.Len() > p.ceiling {
		p.logger.Warn("Registry too large for merge planning",
			zap.Int("topics", registry.Len()),
			zap.Int("ceiling", p.ceiling),
		)
		return nil
	}

	topics := registry.Topics()
	var pairs []MergeCandidate
	for i := 0; i < len(topics); i++ {
		for j := i + 1; j < len(topics); j++ {
			a, b := topics[i], topics[j]
			score := p.PairScore(a.Key, b.Key, registry.EdgeWeight(a.Key, b.Key))
			if score < threshold {
				continue
			}
			winner, loser := mergeDirection(a, b)
			pairs = append(pairs, MergeCandidate{Winner: winner.Key, Loser: loser.Key, Score: score})
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].Score != pairs[j].Score {
			return pairs[i].Score > pairs[j].Score
		}
		if pairs[i].Winner != pairs[j].Winner {
			return pairs[i].Winner < pairs[j].Winner
		}
		return pairs[i].Loser < pairs[j].Loser
	})

	consumed := make(map[valueobjects.TopicKey]struct{})
	plan := make([]MergeCandidate, 0, len(pairs))
	for _, pair := range pairs {
		if _, used := consumed[pair.Winner]; used {
			continue
		}
		if _, used := consumed[pair.Loser]; used {
			continue
		}
		consumed[pair.Winner] = struct{}{}
		consumed[pair.Loser] = struct{}{}
		plan = append(plan, pair)
	}
	return plan
}

// PlanAndExecuteMerges plans a pass at threshold and merges every planned
// loser into its winner. It returns the number of merges performed.
func (p *MergePlanner) PlanAndExecuteMerges(registry *aggregates.TopicRegistry, threshold float64) int {
	merged := 0
	for _, pair := range p.Plan(registry, threshold) {
		if !registry.MergeTopic(pair.Loser.String(), pair.Winner.String()) {
			continue
		}
		merged++
		p.logger.Info("Merged topics",
			zap.String("source", pair.Loser.String()),
			zap.String("target", pair.Winner.String()),
			zap.Float64("score", pair.Score),
		)
	}
	return merged
}

// mergeDirection picks the surviving topic: core beats non-core, then more
// observations, then more mentions, then the lexically smaller key.
func mergeDirection(a, b entities.TopicView) (winner, loser entities.TopicView) {
	switch {
	case a.IsCore != b.IsCore:
		if a.IsCore {
			return a, b
		}
		return b, a
	case a.ObservationCount != b.ObservationCount:
		if a.ObservationCount > b.ObservationCount {
			return a, b
		}
		return b, a
	case a.MentionCount != b.MentionCount:
		if a.MentionCount > b.MentionCount {
			return a, b
		}
		return b, a
	case a.Key <= b.Key:
		return a, b
	default:
		return b, a
	}
}
