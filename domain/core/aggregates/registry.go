package aggregates

import (
	"time"

	"topicgraph/domain/core/entities"
	"topicgraph/domain/core/valueobjects"
	"topicgraph/domain/events"
)

// TopicRegistry is the aggregate root for the topic vocabulary.
// It owns every Topic, the synonym table and the relationship graph, and is
// the only place where they change. The registry is not safe for concurrent
// use; its owner serializes access.
type TopicRegistry struct {
	topics   map[valueobjects.TopicKey]*entities.Topic
	order    []valueobjects.TopicKey
	synonyms map[valueobjects.TopicKey]valueobjects.TopicKey
	graph    *RelationshipGraph
	scorer   entities.InterestScorer
	now      func() time.Time
	events   []events.DomainEvent
}

// Option configures a TopicRegistry
type Option func(*TopicRegistry)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(r *TopicRegistry) { r.now = now }
}

// WithScorer overrides the interest scorer
func WithScorer(scorer entities.InterestScorer) Option {
	return func(r *TopicRegistry) { r.scorer = scorer }
}

// NewTopicRegistry creates an empty registry
func NewTopicRegistry(opts ...Option) *TopicRegistry {
	r := &TopicRegistry{
		topics:   make(map[valueobjects.TopicKey]*entities.Topic),
		order:    []valueobjects.TopicKey{},
		synonyms: make(map[valueobjects.TopicKey]valueobjects.TopicKey),
		graph:    NewRelationshipGraph(),
		scorer:   entities.DefaultInterestScorer(),
		now:      time.Now,
		events:   []events.DomainEvent{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AddTopic normalizes raw and creates the topic if it does not exist yet.
// An existing topic is promoted to core when isCore is set. Labels that
// resolve through the synonym table land on their canonical topic.
func (r *TopicRegistry) AddTopic(raw string, isCore bool) (valueobjects.TopicKey, error) {
	key, err := valueobjects.NewTopicKey(raw)
	if err != nil {
		return "", err
	}
	key = r.resolve(key)
	now := r.now()

	if topic, ok := r.topics[key]; ok {
		if isCore && topic.PromoteToCore() {
			topic.ApplyScore(r.scorer.Score(topic, now))
			r.addEvent(events.NewTopicPromoted(key.String(), now))
		}
		return key, nil
	}

	r.topics[key] = entities.NewTopic(key, isCore, now)
	r.order = append(r.order, key)
	r.addEvent(events.NewTopicDiscovered(key.String(), isCore, now))
	return key, nil
}

// HasTopic reports whether raw resolves, directly or via a synonym, to a live topic
func (r *TopicRegistry) HasTopic(raw string) bool {
	_, ok := r.topics[r.ResolveCanonical(raw)]
	return ok
}

// ResolveCanonical normalizes raw and applies the synonym table
func (r *TopicRegistry) ResolveCanonical(raw string) valueobjects.TopicKey {
	return r.resolve(valueobjects.Normalize(raw))
}

// resolve follows at most one synonym hop; the table never chains
func (r *TopicRegistry) resolve(key valueobjects.TopicKey) valueobjects.TopicKey {
	if canonical, ok := r.synonyms[key]; ok {
		return canonical
	}
	return key
}

// Lookup resolves an already-normalized key to a live topic, via exact match
// or the synonym table.
func (r *TopicRegistry) Lookup(key valueobjects.TopicKey) (valueobjects.TopicKey, bool) {
	if _, ok := r.topics[key]; ok {
		return key, true
	}
	if canonical, ok := r.synonyms[key]; ok {
		if _, live := r.topics[canonical]; live {
			return canonical, true
		}
	}
	return "", false
}

// RecordMention counts a mention of key. Unknown keys are ignored.
func (r *TopicRegistry) RecordMention(key valueobjects.TopicKey) bool {
	topic, ok := r.topics[r.resolve(key)]
	if !ok {
		return false
	}
	now := r.now()
	topic.RecordMention(now)
	topic.ApplyScore(r.scorer.Score(topic, now))
	return true
}

// RecordObservation counts one batch in which key appeared. Unknown keys are ignored.
func (r *TopicRegistry) RecordObservation(key valueobjects.TopicKey) bool {
	topic, ok := r.topics[r.resolve(key)]
	if !ok {
		return false
	}
	now := r.now()
	topic.RecordObservation(now)
	topic.ApplyScore(r.scorer.Score(topic, now))
	return true
}

// AddSynonym maps variant onto canonical's topic. It refuses variants that are
// live topics themselves and canonicals that do not resolve to a live topic.
func (r *TopicRegistry) AddSynonym(variant, canonical valueobjects.TopicKey) bool {
	target, ok := r.Lookup(canonical)
	if !ok || variant.IsEmpty() || variant == target {
		return false
	}
	if _, live := r.topics[variant]; live {
		return false
	}
	if existing, mapped := r.synonyms[variant]; mapped && existing == target {
		return false
	}
	r.synonyms[variant] = target
	r.addEvent(events.NewSynonymAdded(variant.String(), target.String(), r.now()))
	return true
}

// MergeTopic folds source into target. It returns false when either side is
// unknown or both resolve to the same topic.
//
// Counts are summed, interest takes the maximum, core status is OR-ed, the
// related caches are unioned, and every graph edge of source is moved onto
// target with colliding strengths summed. The source topic and its adjacency
// row are deleted and source becomes a synonym of target. Variants that
// pointed at source are re-pointed at target so the table never chains.
func (r *TopicRegistry) MergeTopic(source, target string) bool {
	srcKey := r.ResolveCanonical(source)
	dstKey := r.ResolveCanonical(target)
	if srcKey == dstKey {
		return false
	}
	src, ok := r.topics[srcKey]
	if !ok {
		return false
	}
	dst, ok := r.topics[dstKey]
	if !ok {
		return false
	}

	dst.Absorb(src)
	r.graph.Fold(srcKey, dstKey)

	delete(r.topics, srcKey)
	r.removeFromOrder(srcKey)

	for key, topic := range r.topics {
		if key != dstKey {
			topic.ReplaceRelated(srcKey, dstKey)
		}
	}

	for variant, canonical := range r.synonyms {
		if canonical == srcKey {
			r.synonyms[variant] = dstKey
		}
	}
	r.synonyms[srcKey] = dstKey

	r.addEvent(events.NewTopicsMerged(srcKey.String(), dstKey.String(), dst.MentionCount(), r.now()))
	return true
}

// RecordCoOccurrence strengthens the edge between every pair of distinct
// live topics in keys and updates their related-topic caches.
func (r *TopicRegistry) RecordCoOccurrence(keys []valueobjects.TopicKey) {
	live := make([]valueobjects.TopicKey, 0, len(keys))
	seen := make(map[valueobjects.TopicKey]struct{}, len(keys))
	for _, k := range keys {
		canonical := r.resolve(k)
		if _, ok := r.topics[canonical]; !ok {
			continue
		}
		if _, dup := seen[canonical]; dup {
			continue
		}
		seen[canonical] = struct{}{}
		live = append(live, canonical)
	}

	for i := 0; i < len(live); i++ {
		for j := i + 1; j < len(live); j++ {
			a, b := live[i], live[j]
			r.graph.Strengthen(a, b, 1)
			r.topics[a].AddRelated(b)
			r.topics[b].AddRelated(a)
		}
	}
}

// EdgeWeight returns the co-occurrence strength between two topics
func (r *TopicRegistry) EdgeWeight(a, b valueobjects.TopicKey) int {
	return r.graph.Weight(r.resolve(a), r.resolve(b))
}

// TopNeighbors returns the n strongest neighbors of key
func (r *TopicRegistry) TopNeighbors(key valueobjects.TopicKey, n int) []Neighbor {
	return r.graph.TopNeighbors(r.resolve(key), n)
}

// Rescore recomputes every topic's interest level at now
func (r *TopicRegistry) Rescore(now time.Time) {
	for _, topic := range r.topics {
		topic.ApplyScore(r.scorer.Score(topic, now))
	}
}

// Topic returns a copy of the topic key resolves to
func (r *TopicRegistry) Topic(key valueobjects.TopicKey) (entities.TopicView, bool) {
	topic, ok := r.topics[r.resolve(key)]
	if !ok {
		return entities.TopicView{}, false
	}
	return topic.View(), true
}

// Topics returns copies of every live topic in creation order
func (r *TopicRegistry) Topics() []entities.TopicView {
	out := make([]entities.TopicView, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.topics[key].View())
	}
	return out
}

// Keys returns every live key in creation order
func (r *TopicRegistry) Keys() []valueobjects.TopicKey {
	out := make([]valueobjects.TopicKey, len(r.order))
	copy(out, r.order)
	return out
}

// CoreTopics returns the keys of core topics in creation order
func (r *TopicRegistry) CoreTopics() []valueobjects.TopicKey {
	var out []valueobjects.TopicKey
	for _, key := range r.order {
		if r.topics[key].IsCore() {
			out = append(out, key)
		}
	}
	return out
}

// Synonyms returns a copy of the variant → canonical table
func (r *TopicRegistry) Synonyms() map[valueobjects.TopicKey]valueobjects.TopicKey {
	out := make(map[valueobjects.TopicKey]valueobjects.TopicKey, len(r.synonyms))
	for k, v := range r.synonyms {
		out[k] = v
	}
	return out
}

// Len returns the number of live topics
func (r *TopicRegistry) Len() int {
	return len(r.topics)
}

// GetUncommittedEvents returns all uncommitted domain events
func (r *TopicRegistry) GetUncommittedEvents() []events.DomainEvent {
	return r.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (r *TopicRegistry) MarkEventsAsCommitted() {
	r.events = []events.DomainEvent{}
}

// DrainEvents returns the uncommitted events and clears them
func (r *TopicRegistry) DrainEvents() []events.DomainEvent {
	out := r.events
	r.MarkEventsAsCommitted()
	return out
}

func (r *TopicRegistry) addEvent(event events.DomainEvent) {
	r.events = append(r.events, event)
}

func (r *TopicRegistry) removeFromOrder(key valueobjects.TopicKey) {
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
