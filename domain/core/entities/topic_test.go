package entities

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"topicgraph/domain/core/valueobjects"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestNewTopic_InitialInterest(t *testing.T) {
	core := NewTopic("ai", true, epoch)
	discovered := NewTopic("rust", false, epoch)

	assert.Equal(t, 1.0, core.InterestLevel())
	assert.Equal(t, 0.5, discovered.InterestLevel())
	assert.Zero(t, core.MentionCount())
	assert.Zero(t, core.ObservationCount())
	assert.Equal(t, epoch, core.DiscoveredAt())
}

func TestTopic_PromoteToCoreIsSticky(t *testing.T) {
	topic := NewTopic("rust", false, epoch)

	assert.True(t, topic.PromoteToCore())
	assert.False(t, topic.PromoteToCore())
	assert.True(t, topic.IsCore())
}

func TestTopic_AddRelatedKeepsFirstSeenOrder(t *testing.T) {
	topic := NewTopic("ai", false, epoch)

	assert.True(t, topic.AddRelated("ml"))
	assert.True(t, topic.AddRelated("robotics"))
	assert.False(t, topic.AddRelated("ml"))
	assert.False(t, topic.AddRelated("ai"))

	assert.Equal(t, []valueobjects.TopicKey{"ml", "robotics"}, topic.RelatedTopics())
}

func TestTopic_ReplaceRelated(t *testing.T) {
	t.Run("new target takes the old slot", func(t *testing.T) {
		topic := NewTopic("ai", false, epoch)
		topic.AddRelated("ml")
		topic.AddRelated("robotics")

		topic.ReplaceRelated("ml", "deep learning")

		assert.Equal(t, []valueobjects.TopicKey{"deep learning", "robotics"}, topic.RelatedTopics())
	})

	t.Run("existing target keeps its own slot", func(t *testing.T) {
		topic := NewTopic("ai", false, epoch)
		topic.AddRelated("ml")
		topic.AddRelated("robotics")
		topic.AddRelated("deep learning")

		topic.ReplaceRelated("ml", "deep learning")

		assert.Equal(t, []valueobjects.TopicKey{"robotics", "deep learning"}, topic.RelatedTopics())
	})

	t.Run("self reference is dropped", func(t *testing.T) {
		topic := NewTopic("ai", false, epoch)
		topic.AddRelated("artificial intelligence")

		topic.ReplaceRelated("artificial intelligence", "ai")

		assert.Empty(t, topic.RelatedTopics())
	})
}

func TestTopic_Absorb(t *testing.T) {
	target := NewTopic("climate change", false, epoch)
	target.RecordMention(epoch)
	target.RecordObservation(epoch)
	target.AddRelated("energy")
	target.AddRelated("global warming")

	source := NewTopic("global warming", true, epoch.Add(-time.Hour))
	source.RecordMention(epoch.Add(time.Hour))
	source.RecordMention(epoch.Add(time.Hour))
	source.AddRelated("energy")
	source.AddRelated("policy")
	source.AddRelated("climate change")

	target.Absorb(source)

	assert.Equal(t, 3, target.MentionCount())
	assert.Equal(t, 1, target.ObservationCount())
	assert.True(t, target.IsCore())
	assert.Equal(t, 1.0, target.InterestLevel())
	assert.Equal(t, epoch.Add(-time.Hour), target.DiscoveredAt())
	assert.Equal(t, epoch.Add(time.Hour), target.LastUpdatedAt())
	assert.Equal(t, []valueobjects.TopicKey{"energy", "policy"}, target.RelatedTopics())
}

func TestTopic_ViewIsDetached(t *testing.T) {
	topic := NewTopic("ai", false, epoch)
	topic.AddRelated("ml")

	view := topic.View()
	view.RelatedTopics[0] = "changed"

	assert.Equal(t, []valueobjects.TopicKey{"ml"}, topic.RelatedTopics())
}

func TestInterestScorer(t *testing.T) {
	scorer := DefaultInterestScorer()

	t.Run("fresh discovered topic", func(t *testing.T) {
		topic := NewTopic("rust", false, epoch)
		assert.InDelta(t, 0.6, scorer.Score(topic, epoch), 1e-9)
	})

	t.Run("frequency saturates at ten observations", func(t *testing.T) {
		topic := NewTopic("rust", false, epoch)
		for i := 0; i < 25; i++ {
			topic.RecordObservation(epoch)
		}
		assert.InDelta(t, 1.0, scorer.Score(topic, epoch), 1e-9)
	})

	t.Run("half-life is about 6.9 days", func(t *testing.T) {
		hours := math.Ln2 / 0.1 * 24
		halfLife := time.Duration(hours * float64(time.Hour))
		assert.InDelta(t, 0.5, scorer.Recency(epoch, epoch.Add(halfLife)), 1e-6)
	})

	t.Run("core topic untouched for 30 days keeps the floor", func(t *testing.T) {
		topic := NewTopic("machine learning", true, epoch)
		now := epoch.Add(30 * 24 * time.Hour)

		assert.InDelta(t, math.Exp(-3), scorer.Recency(epoch, now), 1e-9)
		assert.GreaterOrEqual(t, scorer.Score(topic, now), 0.7)
	})

	t.Run("core topic above the floor uses the weighted blend", func(t *testing.T) {
		topic := NewTopic("ai", true, epoch)
		for i := 0; i < 10; i++ {
			topic.RecordObservation(epoch)
		}
		assert.InDelta(t, 1.0, scorer.Score(topic, epoch), 1e-9)
	})

	t.Run("discovered topic decays", func(t *testing.T) {
		topic := NewTopic("rust", false, epoch)
		now := epoch.Add(30 * 24 * time.Hour)
		assert.InDelta(t, 0.6*math.Exp(-3), scorer.Score(topic, now), 1e-9)
	})

	t.Run("future timestamps do not exceed one", func(t *testing.T) {
		topic := NewTopic("rust", false, epoch.Add(time.Hour))
		assert.LessOrEqual(t, scorer.Score(topic, epoch), 1.0)
	})
}
