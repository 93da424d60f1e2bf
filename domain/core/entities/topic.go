package entities

import (
	"time"

	"topicgraph/domain/core/valueobjects"
)

// Topic is a recurring theme observed in the text stream.
// Topics are owned by the TopicRegistry aggregate; everything outside the
// aggregate works with TopicView copies.
type Topic struct {
	key              valueobjects.TopicKey
	isCore           bool
	interestLevel    float64
	discoveredAt     time.Time
	lastUpdatedAt    time.Time
	observationCount int
	mentionCount     int
	relatedTopics    []valueobjects.TopicKey
}

// TopicView is an immutable copy of a topic's state
type TopicView struct {
	Key              valueobjects.TopicKey   `json:"key"`
	IsCore           bool                    `json:"is_core"`
	InterestLevel    float64                 `json:"interest_level"`
	DiscoveredAt     time.Time               `json:"discovered_at"`
	LastUpdatedAt    time.Time               `json:"last_updated_at"`
	ObservationCount int                     `json:"observation_count"`
	MentionCount     int                     `json:"mention_count"`
	RelatedTopics    []valueobjects.TopicKey `json:"related_topics"`
}

const (
	coreInitialInterest       = 1.0
	discoveredInitialInterest = 0.5
)

// NewTopic creates a topic first seen at now
func NewTopic(key valueobjects.TopicKey, isCore bool, now time.Time) *Topic {
	interest := discoveredInitialInterest
	if isCore {
		interest = coreInitialInterest
	}

	return &Topic{
		key:           key,
		isCore:        isCore,
		interestLevel: interest,
		discoveredAt:  now,
		lastUpdatedAt: now,
		relatedTopics: []valueobjects.TopicKey{},
	}
}

// ReconstructTopic rebuilds a topic from persisted state
func ReconstructTopic(view TopicView) *Topic {
	related := make([]valueobjects.TopicKey, len(view.RelatedTopics))
	copy(related, view.RelatedTopics)

	return &Topic{
		key:              view.Key,
		isCore:           view.IsCore,
		interestLevel:    clamp01(view.InterestLevel),
		discoveredAt:     view.DiscoveredAt,
		lastUpdatedAt:    view.LastUpdatedAt,
		observationCount: view.ObservationCount,
		mentionCount:     view.MentionCount,
		relatedTopics:    related,
	}
}

func (t *Topic) Key() valueobjects.TopicKey { return t.key }
func (t *Topic) IsCore() bool               { return t.isCore }
func (t *Topic) InterestLevel() float64     { return t.interestLevel }
func (t *Topic) DiscoveredAt() time.Time    { return t.discoveredAt }
func (t *Topic) LastUpdatedAt() time.Time   { return t.lastUpdatedAt }
func (t *Topic) ObservationCount() int      { return t.observationCount }
func (t *Topic) MentionCount() int          { return t.mentionCount }

// RelatedTopics returns a copy of the related-topic cache in first-seen order
func (t *Topic) RelatedTopics() []valueobjects.TopicKey {
	out := make([]valueobjects.TopicKey, len(t.relatedTopics))
	copy(out, t.relatedTopics)
	return out
}

// View returns a detached copy of the topic
func (t *Topic) View() TopicView {
	return TopicView{
		Key:              t.key,
		IsCore:           t.isCore,
		InterestLevel:    t.interestLevel,
		DiscoveredAt:     t.discoveredAt,
		LastUpdatedAt:    t.lastUpdatedAt,
		ObservationCount: t.observationCount,
		MentionCount:     t.mentionCount,
		RelatedTopics:    t.RelatedTopics(),
	}
}

// RecordMention counts one more mention and refreshes the topic
func (t *Topic) RecordMention(now time.Time) {
	t.mentionCount++
	t.touch(now)
}

// RecordObservation counts one more batch in which the topic appeared
func (t *Topic) RecordObservation(now time.Time) {
	t.observationCount++
	t.touch(now)
}

// PromoteToCore marks the topic as core. Core status is never revoked.
// It returns true if the topic was not core before.
func (t *Topic) PromoteToCore() bool {
	if t.isCore {
		return false
	}
	t.isCore = true
	return true
}

// ApplyScore stores a freshly computed interest level
func (t *Topic) ApplyScore(score float64) {
	t.interestLevel = clamp01(score)
}

// AddRelated appends key to the related cache if it is new and not the topic itself
func (t *Topic) AddRelated(key valueobjects.TopicKey) bool {
	if key == t.key {
		return false
	}
	for _, existing := range t.relatedTopics {
		if existing == key {
			return false
		}
	}
	t.relatedTopics = append(t.relatedTopics, key)
	return true
}

// ReplaceRelated rewrites references to from so they point at to. When to is
// already cached it keeps its own position and from is dropped; otherwise to
// takes from's slot. Self references are dropped. This mirrors how the
// relationship graph folds a merged row.
func (t *Topic) ReplaceRelated(from, to valueobjects.TopicKey) {
	hasTo := false
	for _, key := range t.relatedTopics {
		if key == to {
			hasTo = true
			break
		}
	}

	rewritten := make([]valueobjects.TopicKey, 0, len(t.relatedTopics))
	for _, key := range t.relatedTopics {
		if key == from {
			if hasTo {
				continue
			}
			key = to
		}
		if key == t.key {
			continue
		}
		rewritten = append(rewritten, key)
	}
	t.relatedTopics = rewritten
}

// Absorb folds another topic's state into this one: counts are summed,
// interest takes the maximum, core status is OR-ed and the related caches
// are unioned without self references. The most recent update time wins.
func (t *Topic) Absorb(other *Topic) {
	t.mentionCount += other.mentionCount
	t.observationCount += other.observationCount
	if other.interestLevel > t.interestLevel {
		t.interestLevel = other.interestLevel
	}
	if other.isCore {
		t.isCore = true
	}
	if other.discoveredAt.Before(t.discoveredAt) {
		t.discoveredAt = other.discoveredAt
	}
	if other.lastUpdatedAt.After(t.lastUpdatedAt) {
		t.lastUpdatedAt = other.lastUpdatedAt
	}
	for _, key := range other.relatedTopics {
		if key == other.key {
			continue
		}
		t.AddRelated(key)
	}
	t.ReplaceRelated(other.key, t.key)
}

func (t *Topic) touch(now time.Time) {
	if now.After(t.lastUpdatedAt) {
		t.lastUpdatedAt = now
	}
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
