package aggregates

import (
	"fmt"
	"sort"
	"time"

	"topicgraph/domain/core/entities"
	"topicgraph/domain/core/valueobjects"
	pkgerrors "topicgraph/pkg/errors"
)

// SnapshotVersion is bumped whenever the persisted layout changes.
// Version 2 added explicit topic and neighbor order.
const SnapshotVersion = 2

// TopicRecord is the persisted form of a topic
type TopicRecord struct {
	IsCore           bool      `json:"is_core" dynamodbav:"is_core"`
	InterestLevel    float64   `json:"interest_level" dynamodbav:"interest_level"`
	DiscoveredAt     time.Time `json:"discovered_at" dynamodbav:"discovered_at"`
	LastUpdatedAt    time.Time `json:"last_updated_at" dynamodbav:"last_updated_at"`
	ObservationCount int       `json:"observation_count" dynamodbav:"observation_count"`
	MentionCount     int       `json:"mention_count" dynamodbav:"mention_count"`
	RelatedTopics    []string  `json:"related_topics" dynamodbav:"related_topics"`
}

// Snapshot is a full serialization of the registry plus the oracle seed set.
// It is written and read whole; there is no incremental form.
type Snapshot struct {
	Version       int                       `json:"version" dynamodbav:"version"`
	SavedAt       time.Time                 `json:"saved_at" dynamodbav:"saved_at"`
	CoreTopics    []string                  `json:"core_topics" dynamodbav:"core_topics"`
	Topics        map[string]TopicRecord    `json:"topics" dynamodbav:"topics"`
	Relationships map[string]map[string]int `json:"relationships" dynamodbav:"relationships"`
	Order         []string                  `json:"order,omitempty" dynamodbav:"order,omitempty"`
	NeighborOrder map[string][]string       `json:"neighbor_order,omitempty" dynamodbav:"neighbor_order,omitempty"`
	Synonyms      map[string]string         `json:"synonyms" dynamodbav:"synonyms"`
	Seeds         map[string][]string       `json:"seeds" dynamodbav:"seeds"`
}

// Snapshot captures the registry's full state. Seeds are supplied by the
// owner because they are configuration rather than registry state.
func (r *TopicRegistry) Snapshot(seeds map[string][]string) *Snapshot {
	snap := &Snapshot{
		Version:       SnapshotVersion,
		SavedAt:       r.now(),
		CoreTopics:    []string{},
		Topics:        make(map[string]TopicRecord, len(r.topics)),
		Relationships: r.graph.Adjacency(),
		Order:         make([]string, 0, len(r.order)),
		NeighborOrder: r.graph.NeighborOrder(),
		Synonyms:      make(map[string]string, len(r.synonyms)),
		Seeds:         make(map[string][]string, len(seeds)),
	}

	for _, key := range r.order {
		topic := r.topics[key]
		snap.Order = append(snap.Order, key.String())
		if topic.IsCore() {
			snap.CoreTopics = append(snap.CoreTopics, key.String())
		}
		related := make([]string, 0, len(topic.RelatedTopics()))
		for _, k := range topic.RelatedTopics() {
			related = append(related, k.String())
		}
		snap.Topics[key.String()] = TopicRecord{
			IsCore:           topic.IsCore(),
			InterestLevel:    topic.InterestLevel(),
			DiscoveredAt:     topic.DiscoveredAt(),
			LastUpdatedAt:    topic.LastUpdatedAt(),
			ObservationCount: topic.ObservationCount(),
			MentionCount:     topic.MentionCount(),
			RelatedTopics:    related,
		}
	}

	for variant, canonical := range r.synonyms {
		snap.Synonyms[variant.String()] = canonical.String()
	}

	for label, keywords := range seeds {
		kw := make([]string, len(keywords))
		copy(kw, keywords)
		snap.Seeds[label] = kw
	}

	return snap
}

// RestoreTopicRegistry rebuilds a registry from a snapshot.
// The snapshot is validated rather than repaired: an asymmetric graph, a
// chained or self-referencing synonym, or a synonym that shadows a live topic
// is rejected.
func RestoreTopicRegistry(snap *Snapshot, opts ...Option) (*TopicRegistry, error) {
	r := NewTopicRegistry(opts...)
	if snap == nil {
		return r, nil
	}
	if snap.Version > SnapshotVersion {
		return nil, pkgerrors.NewValidationError(
			fmt.Sprintf("snapshot version %d is newer than supported version %d", snap.Version, SnapshotVersion))
	}

	core := make(map[string]struct{}, len(snap.CoreTopics))
	for _, k := range snap.CoreTopics {
		core[k] = struct{}{}
	}

	keys, err := restoreOrder(snap)
	if err != nil {
		return nil, err
	}
	for _, raw := range keys {
		rec := snap.Topics[raw]
		key := valueobjects.TopicKey(raw)
		if key.IsEmpty() {
			return nil, pkgerrors.NewValidationError("snapshot contains an empty topic key")
		}
		related := make([]valueobjects.TopicKey, 0, len(rec.RelatedTopics))
		for _, k := range rec.RelatedTopics {
			related = append(related, valueobjects.TopicKey(k))
		}
		_, isCore := core[raw]
		r.topics[key] = entities.ReconstructTopic(entities.TopicView{
			Key:              key,
			IsCore:           rec.IsCore || isCore,
			InterestLevel:    rec.InterestLevel,
			DiscoveredAt:     rec.DiscoveredAt,
			LastUpdatedAt:    rec.LastUpdatedAt,
			ObservationCount: rec.ObservationCount,
			MentionCount:     rec.MentionCount,
			RelatedTopics:    related,
		})
		r.order = append(r.order, key)
	}

	for variant, canonical := range snap.Synonyms {
		v, c := valueobjects.TopicKey(variant), valueobjects.TopicKey(canonical)
		if v == c {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("synonym %q maps to itself", variant))
		}
		if _, live := r.topics[v]; live {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("synonym %q is also a live topic", variant))
		}
		if _, ok := r.topics[c]; !ok {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("synonym %q points at unknown topic %q", variant, canonical))
		}
		if _, chained := snap.Synonyms[canonical]; chained {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("synonym %q chains through %q", variant, canonical))
		}
		r.synonyms[v] = c
	}

	for from, row := range snap.Relationships {
		for to, w := range row {
			if snap.Relationships[to][from] != w {
				return nil, pkgerrors.NewValidationError(
					fmt.Sprintf("relationship %q-%q is not symmetric", from, to))
			}
		}
		key := valueobjects.TopicKey(from)
		var order []valueobjects.TopicKey
		if persisted, ok := snap.NeighborOrder[from]; ok {
			for _, nb := range persisted {
				order = append(order, valueobjects.TopicKey(nb))
			}
		} else if topic, ok := r.topics[key]; ok {
			order = topic.RelatedTopics()
		}
		r.graph.restoreRow(key, row, order)
	}

	return r, nil
}

// restoreOrder returns the creation order recorded in the snapshot. Topics
// the order does not list, as in version 1 snapshots, follow in
// sortedTopicKeys order.
func restoreOrder(snap *Snapshot) ([]string, error) {
	keys := make([]string, 0, len(snap.Topics))
	listed := make(map[string]struct{}, len(snap.Order))
	for _, k := range snap.Order {
		if _, ok := snap.Topics[k]; !ok {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("snapshot order lists unknown topic %q", k))
		}
		if _, dup := listed[k]; dup {
			return nil, pkgerrors.NewValidationError(fmt.Sprintf("snapshot order lists %q twice", k))
		}
		listed[k] = struct{}{}
		keys = append(keys, k)
	}
	if len(keys) == len(snap.Topics) {
		return keys, nil
	}

	rest := make(map[string]TopicRecord, len(snap.Topics)-len(keys))
	for k, rec := range snap.Topics {
		if _, ok := listed[k]; !ok {
			rest[k] = rec
		}
	}
	return append(keys, sortedTopicKeys(rest)...), nil
}

// sortedTopicKeys orders topics by discovery time, then key. It is the
// fallback for snapshots written before creation order was persisted.
func sortedTopicKeys(topics map[string]TopicRecord) []string {
	keys := make([]string, 0, len(topics))
	for k := range topics {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		ta, tb := topics[a].DiscoveredAt, topics[b].DiscoveredAt
		if !ta.Equal(tb) {
			return ta.Before(tb)
		}
		return a < b
	})
	return keys
}
