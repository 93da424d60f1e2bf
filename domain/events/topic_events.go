package events

import "time"

const (
	EventTypeTopicDiscovered = "topic.discovered"
	EventTypeTopicPromoted   = "topic.promoted"
	EventTypeTopicsMerged    = "topic.merged"
	EventTypeSynonymAdded    = "topic.synonym_added"
)

// TopicDiscovered is raised when a topic is created
type TopicDiscovered struct {
	BaseEvent
	Key    string `json:"key"`
	IsCore bool   `json:"is_core"`
}

// NewTopicDiscovered creates a TopicDiscovered event
func NewTopicDiscovered(key string, isCore bool, timestamp time.Time) TopicDiscovered {
	return TopicDiscovered{
		BaseEvent: newBaseEvent(key, EventTypeTopicDiscovered, timestamp),
		Key:       key,
		IsCore:    isCore,
	}
}

// TopicPromoted is raised when an existing topic becomes core
type TopicPromoted struct {
	BaseEvent
	Key string `json:"key"`
}

// NewTopicPromoted creates a TopicPromoted event
func NewTopicPromoted(key string, timestamp time.Time) TopicPromoted {
	return TopicPromoted{
		BaseEvent: newBaseEvent(key, EventTypeTopicPromoted, timestamp),
		Key:       key,
	}
}

// TopicsMerged is raised when Source is folded into Target
type TopicsMerged struct {
	BaseEvent
	Source       string `json:"source"`
	Target       string `json:"target"`
	MentionCount int    `json:"mention_count"`
}

// NewTopicsMerged creates a TopicsMerged event. The aggregate is the surviving topic.
func NewTopicsMerged(source, target string, mentionCount int, timestamp time.Time) TopicsMerged {
	return TopicsMerged{
		BaseEvent:    newBaseEvent(target, EventTypeTopicsMerged, timestamp),
		Source:       source,
		Target:       target,
		MentionCount: mentionCount,
	}
}

// SynonymAdded is raised when a variant label is mapped onto an existing topic
// without ever having been a topic itself
type SynonymAdded struct {
	BaseEvent
	Variant   string `json:"variant"`
	Canonical string `json:"canonical"`
}

// NewSynonymAdded creates a SynonymAdded event
func NewSynonymAdded(variant, canonical string, timestamp time.Time) SynonymAdded {
	return SynonymAdded{
		BaseEvent: newBaseEvent(canonical, EventTypeSynonymAdded, timestamp),
		Variant:   variant,
		Canonical: canonical,
	}
}
