package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"topicgraph/application/ports"
	"topicgraph/application/ports/mocks"
	"topicgraph/domain/config"
	"topicgraph/domain/core/aggregates"
	"topicgraph/domain/core/valueobjects"
	pkgerrors "topicgraph/pkg/errors"
)

var engineEpoch = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type engineFixture struct {
	engine    *TopicEngine
	oracle    *mocks.MockOracle
	store     *mocks.MockSnapshotStore
	publisher *mocks.MockEventPublisher
	now       time.Time
}

func newEngineFixture(t *testing.T, tweak func(cfg *config.DomainConfig)) *engineFixture {
	t.Helper()
	cfg := config.DefaultDomainConfig()
	if tweak != nil {
		tweak(cfg)
	}

	f := &engineFixture{
		oracle:    new(mocks.MockOracle),
		store:     new(mocks.MockSnapshotStore),
		publisher: new(mocks.MockEventPublisher),
		now:       engineEpoch,
	}
	f.oracle.On("UpdateSeeds", mock.Anything, mock.Anything).Return(nil).Maybe()
	f.publisher.On("PublishBatch", mock.Anything, mock.Anything).Return(nil).Maybe()

	f.engine = NewTopicEngine(cfg, f.oracle, f.store, f.publisher, zap.NewNop(), nil,
		WithEngineClock(func() time.Time { return f.now }))
	return f
}

func candidate(label string, probability float64) ports.Candidate {
	return ports.Candidate{Label: label, Probability: probability, Keywords: []string{label}}
}

func (f *engineFixture) classifyReturns(texts []string, results [][]ports.Candidate) {
	f.oracle.On("Classify", mock.Anything, texts, mock.Anything).Return(results, nil).Once()
}

func TestTopicEngine_SeedCoreTopics(t *testing.T) {
	f := newEngineFixture(t, nil)

	err := f.engine.SeedCoreTopics(context.Background(), map[string][]string{
		"Machine Learning": {"neural", "model"},
		"AI":               {"llm"},
	})
	require.NoError(t, err)

	topics := f.engine.Topics(false)
	require.Len(t, topics, 2)
	for _, topic := range topics {
		assert.True(t, topic.IsCore)
		// listing rescores, and an unobserved core topic sits at the floor
		assert.InDelta(t, 0.7, topic.InterestLevel, 1e-9)
	}
	assert.Equal(t, map[string][]string{
		"machine learning": {"neural", "model"},
		"ai":               {"llm"},
	}, f.engine.Seeds())
	f.oracle.AssertCalled(t, "UpdateSeeds", mock.Anything, f.engine.Seeds())
}

func TestTopicEngine_ExactMatchRecordsMention(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.SeedCoreTopics(ctx, map[string][]string{"machine learning": nil, "ai": nil}))

	texts := []string{"AI is eating the world"}
	f.classifyReturns(texts, [][]ports.Candidate{{
		{Label: "AI", Probability: 0.9, IsPredefined: true},
	}})

	f.engine.HandleBatch(ctx, "batch-1", texts)

	topic, err := f.engine.Topic("ai")
	require.NoError(t, err)
	assert.Equal(t, 1, topic.MentionCount)
	assert.Equal(t, 1, topic.ObservationCount)
	assert.Len(t, f.engine.Topics(false), 2, "no new topic")
	f.oracle.AssertExpectations(t)
}

func TestTopicEngine_DelegatedSimilarityCreatesSynonym(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	seeds := map[string][]string{"climate change": {"climate"}}
	for i := 0; i < 99; i++ {
		seeds[fmt.Sprintf("filler topic %d", i)] = nil
	}
	require.NoError(t, f.engine.SeedCoreTopics(ctx, seeds))
	require.Len(t, f.engine.Topics(false), 100)

	texts := []string{"the planet keeps heating up"}
	f.classifyReturns(texts, [][]ports.Candidate{{candidate("Global Warming", 0.9)}})
	f.oracle.On("CompareSimilarity", mock.Anything, "global warming", mock.Anything, 0.85).
		Return(ports.SimilarityMatch{Label: "climate change", Similarity: 0.88}, nil).Once()

	f.engine.HandleBatch(ctx, "batch-2", texts)

	assert.Len(t, f.engine.Topics(false), 100, "no topic record for the variant")
	topic, err := f.engine.Topic("global warming")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.TopicKey("climate change"), topic.Key)
	assert.Equal(t, 1, topic.MentionCount)
	assert.Equal(t, 1, f.engine.Stats().Synonyms)
	f.oracle.AssertExpectations(t)
}

func TestTopicEngine_DelegatedSimilarityBelowThresholdCreatesTopic(t *testing.T) {
	f := newEngineFixture(t, func(cfg *config.DomainConfig) { cfg.LocalComparisonLimit = 1 })
	ctx := context.Background()
	require.NoError(t, f.engine.SeedCoreTopics(ctx, map[string][]string{"climate change": nil}))

	texts := []string{"the planet keeps heating up"}
	f.classifyReturns(texts, [][]ports.Candidate{{candidate("global warming", 0.9)}})
	f.oracle.On("CompareSimilarity", mock.Anything, "global warming", []string{"climate change"}, 0.85).
		Return(ports.SimilarityMatch{Label: "climate change", Similarity: 0.8}, nil).Once()

	f.engine.HandleBatch(ctx, "batch-3", texts)

	topic, err := f.engine.Topic("global warming")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.TopicKey("global warming"), topic.Key)
	assert.False(t, topic.IsCore)
	assert.Contains(t, f.engine.Seeds(), "global warming")
}

func TestTopicEngine_CandidateThreshold(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	texts := []string{"one", "two"}
	f.classifyReturns(texts, [][]ports.Candidate{
		{candidate("rust", 0.65)},
		{{Label: "go", Probability: 0.6, IsPredefined: true}, candidate("zig", 0.66)},
	})

	f.engine.HandleBatch(ctx, "batch-4", texts)

	topics := f.engine.Topics(false)
	require.Len(t, topics, 1)
	assert.Equal(t, valueobjects.TopicKey("zig"), topics[0].Key)
}

func TestTopicEngine_CoOccurrenceAndObservations(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.SeedCoreTopics(ctx, map[string][]string{"ai": nil}))

	texts := []string{"robots with ai", "more ai"}
	f.classifyReturns(texts, [][]ports.Candidate{
		{candidate("AI", 0.9), candidate("Robotics", 0.9), candidate("ai", 0.9)},
		{candidate("ai", 0.9)},
	})

	f.engine.HandleBatch(ctx, "batch-5", texts)

	ai, err := f.engine.Topic("ai")
	require.NoError(t, err)
	assert.Equal(t, 3, ai.MentionCount)
	assert.Equal(t, 1, ai.ObservationCount, "one observation per batch")
	assert.Equal(t, []valueobjects.TopicKey{"robotics"}, ai.RelatedTopics)

	related, err := f.engine.Related("AI", 0)
	require.NoError(t, err)
	require.Len(t, related, 1)
	assert.Equal(t, valueobjects.TopicKey("robotics"), related[0].Key)
	assert.Equal(t, 1, related[0].Strength)
	assert.InDelta(t, 0.64, related[0].InterestLevel, 1e-9)

	robotics, err := f.engine.Related("robotics", 5)
	require.NoError(t, err)
	assert.Equal(t, 1, robotics[0].Strength)

	f.oracle.AssertCalled(t, "UpdateSeeds", mock.Anything, mock.MatchedBy(func(seeds map[string][]string) bool {
		_, ok := seeds["robotics"]
		return ok
	}))
}

func TestTopicEngine_OracleFailureDiscoversNothing(t *testing.T) {
	f := newEngineFixture(t, nil)
	texts := []string{"anything"}
	f.oracle.On("Classify", mock.Anything, texts, mock.Anything).
		Return(nil, pkgerrors.NewTimeoutError("classify")).Once()

	assert.NotPanics(t, func() {
		f.engine.HandleBatch(context.Background(), "batch-6", texts)
	})
	assert.Empty(t, f.engine.Topics(false))
}

func TestTopicEngine_SubmitTriggersOneBatchCall(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	f.oracle.On("Classify", mock.Anything, mock.MatchedBy(func(texts []string) bool { return len(texts) == 50 }), mock.Anything).
		Return([][]ports.Candidate{}, nil).Once()

	for i := 0; i < 49; i++ {
		result := f.engine.Submit(ctx, fmt.Sprintf("post %d", i))
		require.False(t, result.Flushed)
	}
	f.oracle.AssertNotCalled(t, "Classify", mock.Anything, mock.Anything, mock.Anything)

	result := f.engine.Submit(ctx, "post 49")

	assert.True(t, result.Flushed)
	assert.Zero(t, result.Pending)
	f.oracle.AssertNumberOfCalls(t, "Classify", 1)
}

func TestTopicEngine_RunMergesFoldsCoOccurringTopics(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	texts := make([]string, 12)
	results := make([][]ports.Candidate, 12)
	for i := range texts {
		texts[i] = fmt.Sprintf("qubit post %d", i)
		results[i] = []ports.Candidate{candidate("Quantum Computing", 0.9), candidate("qubits", 0.9)}
	}
	f.classifyReturns(texts, results)
	f.engine.HandleBatch(ctx, "batch-7", texts)
	require.Len(t, f.engine.Topics(false), 2)

	plan := f.engine.PlanMerges()
	require.Len(t, plan, 1)

	assert.Equal(t, 1, f.engine.RunMerges(ctx))

	topic, err := f.engine.Topic("qubits")
	require.NoError(t, err)
	assert.Equal(t, valueobjects.TopicKey("quantum computing"), topic.Key)
	assert.Equal(t, 24, topic.MentionCount)
	assert.NotContains(t, f.engine.Seeds(), "qubits")
	assert.Contains(t, f.engine.Seeds()["quantum computing"], "qubits")
	f.publisher.AssertCalled(t, "PublishBatch", mock.Anything, mock.Anything)
}

func TestTopicEngine_TopicsActiveOnly(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.SeedCoreTopics(ctx, map[string][]string{"ai": nil}))

	texts := []string{"fad"}
	f.classifyReturns(texts, [][]ports.Candidate{{candidate("fad", 0.9)}})
	f.engine.HandleBatch(ctx, "batch-8", texts)

	f.now = f.now.Add(30 * 24 * time.Hour)
	f.engine.Rescore()

	all := f.engine.Topics(false)
	require.Len(t, all, 2)
	assert.Equal(t, valueobjects.TopicKey("ai"), all[0].Key, "sorted by interest")

	active := f.engine.Topics(true)
	require.Len(t, active, 1)
	assert.Equal(t, valueobjects.TopicKey("ai"), active[0].Key)
	assert.GreaterOrEqual(t, active[0].InterestLevel, 0.7)
}

func TestTopicEngine_TopicsReflectDecayWithoutMaintenance(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	texts := []string{"fad"}
	f.classifyReturns(texts, [][]ports.Candidate{{candidate("fad", 0.9)}})
	f.engine.HandleBatch(ctx, "batch-8b", texts)
	require.Len(t, f.engine.Topics(true), 1)

	// no Rescore or Save in between
	f.now = f.now.Add(30 * 24 * time.Hour)

	assert.Empty(t, f.engine.Topics(true))
	all := f.engine.Topics(false)
	require.Len(t, all, 1)
	assert.Less(t, all[0].InterestLevel, 0.1)
}

func TestTopicEngine_EntityFallback(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()

	texts := []string{"Ada Lovelace met Charles Babbage in London at the Royal Society", "nothing here", "covered"}
	f.classifyReturns(texts, [][]ports.Candidate{{}, {}, {candidate("computing", 0.9)}})
	f.oracle.On("ExtractEntities", mock.Anything, texts[0]).
		Return([]string{"Ada Lovelace", "Charles Babbage", "London", "Royal Society"}, nil).Once()
	f.oracle.On("ExtractEntities", mock.Anything, texts[1]).Return([]string{}, nil).Once()

	f.engine.HandleBatch(ctx, "batch-9", texts)

	topics := f.engine.Topics(false)
	require.Len(t, topics, 2)
	topic, err := f.engine.Topic("ada lovelace")
	require.NoError(t, err)
	assert.False(t, topic.IsCore)
	assert.Equal(t, 1, topic.MentionCount)
	assert.Equal(t, []string{"Ada Lovelace", "Charles Babbage", "London"}, f.engine.Seeds()["ada lovelace"])
	f.oracle.AssertNotCalled(t, "ExtractEntities", mock.Anything, texts[2])
	f.oracle.AssertExpectations(t)
}

func TestTopicEngine_EntityFallbackRespectsThreshold(t *testing.T) {
	tests := []struct {
		name  string
		tweak func(cfg *config.DomainConfig)
		calls int
	}{
		{"below topic threshold", func(cfg *config.DomainConfig) { cfg.EntityProbability = 0.5 }, 1},
		{"disabled", func(cfg *config.DomainConfig) { cfg.EntityProbability = 0 }, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, tt.tweak)
			texts := []string{"Grace Hopper"}
			f.classifyReturns(texts, [][]ports.Candidate{{}})
			f.oracle.On("ExtractEntities", mock.Anything, texts[0]).Return([]string{"Grace Hopper"}, nil).Maybe()

			f.engine.HandleBatch(context.Background(), "batch-10", texts)

			assert.Empty(t, f.engine.Topics(false))
			f.oracle.AssertNumberOfCalls(t, "ExtractEntities", tt.calls)
		})
	}
}

func TestTopicEngine_EntityExtractionFailureSkipsText(t *testing.T) {
	f := newEngineFixture(t, nil)
	texts := []string{"Grace Hopper"}
	f.classifyReturns(texts, [][]ports.Candidate{{}})
	f.oracle.On("ExtractEntities", mock.Anything, texts[0]).
		Return(nil, pkgerrors.NewUnavailableError("topic-oracle")).Once()

	assert.NotPanics(t, func() {
		f.engine.HandleBatch(context.Background(), "batch-11", texts)
	})
	assert.Empty(t, f.engine.Topics(false))
}

func TestTopicEngine_TopicNotFound(t *testing.T) {
	f := newEngineFixture(t, nil)

	_, err := f.engine.Topic("unknown")
	assert.True(t, pkgerrors.IsNotFound(err))

	_, err = f.engine.Related("unknown", 3)
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestTopicEngine_SaveAndLoad(t *testing.T) {
	source := newEngineFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, source.engine.SeedCoreTopics(ctx, map[string][]string{"ai": {"llm"}, "robotics": nil}))

	var saved *aggregates.Snapshot
	source.store.On("Save", mock.Anything, mock.AnythingOfType("*aggregates.Snapshot"), time.Duration(0)).
		Run(func(args mock.Arguments) { saved = args.Get(1).(*aggregates.Snapshot) }).
		Return(nil).Once()
	require.NoError(t, source.engine.Save(ctx))
	require.NotNil(t, saved)

	target := newEngineFixture(t, nil)
	target.store.On("Load", mock.Anything).Return(saved, nil).Once()
	require.NoError(t, target.engine.Load(ctx))

	assert.Equal(t, source.engine.Topics(false), target.engine.Topics(false))
	assert.Equal(t, source.engine.Seeds(), target.engine.Seeds())
}

func TestTopicEngine_LoadWithoutSnapshot(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.store.On("Load", mock.Anything).Return(nil, nil).Once()

	require.NoError(t, f.engine.Load(context.Background()))
	assert.Empty(t, f.engine.Topics(false))
}

func TestTopicEngine_StoreFailuresKeepRegistry(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.SeedCoreTopics(ctx, map[string][]string{"ai": nil}))

	f.store.On("Load", mock.Anything).Return(nil, pkgerrors.NewDatabaseError("load", errors.New("throttled"))).Once()
	f.store.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("throttled")).Once()

	assert.Error(t, f.engine.Load(ctx))
	assert.Error(t, f.engine.Save(ctx))
	assert.Len(t, f.engine.Topics(false), 1)
}

func TestTopicEngine_LoadRejectsCorruptSnapshot(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.engine.SeedCoreTopics(ctx, map[string][]string{"ai": nil}))

	corrupt := &aggregates.Snapshot{
		Version:       aggregates.SnapshotVersion,
		Topics:        map[string]aggregates.TopicRecord{"a": {}, "b": {}},
		Relationships: map[string]map[string]int{"a": {"b": 1}},
	}
	f.store.On("Load", mock.Anything).Return(corrupt, nil).Once()

	err := f.engine.Load(ctx)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
	assert.Len(t, f.engine.Topics(false), 1, "current registry kept")
}

func TestTopicEngine_Shutdown(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	f.oracle.On("Classify", mock.Anything, []string{"pending"}, mock.Anything).Return([][]ports.Candidate{{}}, nil).Once()
	f.store.On("Save", mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()

	f.engine.Submit(ctx, "pending")
	require.NoError(t, f.engine.Shutdown(ctx))

	f.oracle.AssertExpectations(t)
	f.store.AssertExpectations(t)
	assert.Zero(t, f.engine.Stats().Pending)
}

func TestTopicEngine_Health(t *testing.T) {
	f := newEngineFixture(t, nil)
	f.oracle.On("HealthCheck", mock.Anything).Return(ports.OracleHealth{Status: "healthy", ModelLoaded: true}, nil)

	health, err := f.engine.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, health.ModelLoaded)
}

func TestTopicEngine_MaintenanceReportsStats(t *testing.T) {
	f := newEngineFixture(t, nil)
	ctx := context.Background()
	reporter := new(mocks.MockStatsReporter)
	f.engine.reporter = reporter

	require.NoError(t, f.engine.SeedCoreTopics(ctx, map[string][]string{"ai": nil, "robotics": nil}))
	f.store.On("Save", mock.Anything, mock.Anything, time.Duration(0)).Return(nil).Once()
	reporter.On("ReportStats", mock.Anything, ports.RegistryStats{Topics: 2, CoreTopics: 2}).
		Return(errors.New("throttled")).Once()

	f.engine.maintain(ctx)

	f.store.AssertExpectations(t)
	reporter.AssertExpectations(t)
}
