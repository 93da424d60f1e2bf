// Package mocks provides testify mocks of the application ports
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"topicgraph/application/ports"
	"topicgraph/domain/core/aggregates"
	"topicgraph/domain/events"
)

type MockOracle struct {
	mock.Mock
}

func (m *MockOracle) Classify(ctx context.Context, texts []string, seeds map[string][]string) ([][]ports.Candidate, error) {
	args := m.Called(ctx, texts, seeds)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]ports.Candidate), args.Error(1)
}

func (m *MockOracle) UpdateSeeds(ctx context.Context, seeds map[string][]string) error {
	args := m.Called(ctx, seeds)
	return args.Error(0)
}

func (m *MockOracle) CompareSimilarity(ctx context.Context, topic string, candidates []string, threshold float64) (ports.SimilarityMatch, error) {
	args := m.Called(ctx, topic, candidates, threshold)
	return args.Get(0).(ports.SimilarityMatch), args.Error(1)
}

func (m *MockOracle) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockOracle) HealthCheck(ctx context.Context) (ports.OracleHealth, error) {
	args := m.Called(ctx)
	return args.Get(0).(ports.OracleHealth), args.Error(1)
}

type MockSnapshotStore struct {
	mock.Mock
}

func (m *MockSnapshotStore) Load(ctx context.Context) (*aggregates.Snapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*aggregates.Snapshot), args.Error(1)
}

func (m *MockSnapshotStore) Save(ctx context.Context, snap *aggregates.Snapshot, ttl time.Duration) error {
	args := m.Called(ctx, snap, ttl)
	return args.Error(0)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event events.DomainEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockEventPublisher) PublishBatch(ctx context.Context, evts []events.DomainEvent) error {
	args := m.Called(ctx, evts)
	return args.Error(0)
}

type MockStatsReporter struct {
	mock.Mock
}

func (m *MockStatsReporter) ReportStats(ctx context.Context, stats ports.RegistryStats) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}
