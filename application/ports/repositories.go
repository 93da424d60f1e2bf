package ports

import (
	"context"
	"time"

	"topicgraph/domain/core/aggregates"
	"topicgraph/domain/events"
)

// SnapshotStore persists the whole registry as a single document.
// This is a port in hexagonal architecture - the engine doesn't know about the implementation
type SnapshotStore interface {
	// Load returns the latest snapshot, or nil with no error when none exists
	Load(ctx context.Context) (*aggregates.Snapshot, error)

	// Save replaces the stored snapshot. A zero ttl keeps it forever.
	Save(ctx context.Context, snap *aggregates.Snapshot, ttl time.Duration) error
}

// EventPublisher defines the interface for publishing domain events
type EventPublisher interface {
	// Publish sends a single event
	Publish(ctx context.Context, event events.DomainEvent) error

	// PublishBatch sends multiple events
	PublishBatch(ctx context.Context, events []events.DomainEvent) error
}

// Cache defines the interface for caching
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error
}

// RegistryStats summarizes the registry and the intake buffer
type RegistryStats struct {
	Topics     int  `json:"topics"`
	CoreTopics int  `json:"core_topics"`
	Synonyms   int  `json:"synonyms"`
	Pending    int  `json:"pending"`
	Flushing   bool `json:"flushing"`
}

// StatsReporter ships registry stats to an external monitoring system
type StatsReporter interface {
	ReportStats(ctx context.Context, stats RegistryStats) error
}
