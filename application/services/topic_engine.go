package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"topicgraph/application/ports"
	"topicgraph/domain/config"
	"topicgraph/domain/core/aggregates"
	"topicgraph/domain/core/entities"
	"topicgraph/domain/core/valueobjects"
	"topicgraph/domain/events"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/observability"
)

// TopicEngine is the single owner of the topic registry and the seed set.
// Every registry mutation runs under mu as one synchronous section; the lock
// is never held across an oracle, store or publisher call.
type TopicEngine struct {
	mu       sync.Mutex
	registry *aggregates.TopicRegistry
	seeds    map[string][]string

	// serializes snapshot saves
	saveMu sync.Mutex

	resolver *SimilarityResolver
	planner  *MergePlanner
	intake   *BatchIntake

	oracle    ports.Oracle
	store     ports.SnapshotStore
	publisher ports.EventPublisher
	config    *config.DomainConfig
	logger    *zap.Logger
	metrics   *observability.Collector
	reporter  ports.StatsReporter
	now       func() time.Time
}

// EngineOption configures a TopicEngine
type EngineOption func(*TopicEngine)

// WithEngineClock overrides the engine's time source
func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *TopicEngine) { e.now = now }
}

// WithStatsReporter pushes engine stats after every maintenance pass
func WithStatsReporter(r ports.StatsReporter) EngineOption {
	return func(e *TopicEngine) { e.reporter = r }
}

// SubmitResult describes what happened to submitted texts
type SubmitResult struct {
	Accepted int  `json:"accepted"`
	Flushed  bool `json:"flushed"`
	Pending  int  `json:"pending"`
}

// RelatedTopic is a neighbor of a topic in the relationship graph
type RelatedTopic struct {
	Key           valueobjects.TopicKey `json:"key"`
	Strength      int                   `json:"strength"`
	InterestLevel float64               `json:"interest_level"`
}

// EngineStats summarizes the engine's state
type EngineStats = ports.RegistryStats

// discoveryStats counts the outcome of one batch
type discoveryStats struct {
	created    int
	mentions   int
	synonyms   int
	predefined int
	skipped    int
}

// NewTopicEngine creates an engine with an empty registry
func NewTopicEngine(
	cfg *config.DomainConfig,
	oracle ports.Oracle,
	store ports.SnapshotStore,
	publisher ports.EventPublisher,
	logger *zap.Logger,
	metrics *observability.Collector,
	opts ...EngineOption,
) *TopicEngine {
	if cfg == nil {
		cfg = config.DefaultDomainConfig()
	}
	e := &TopicEngine{
		seeds:     make(map[string][]string),
		oracle:    oracle,
		store:     store,
		publisher: publisher,
		config:    cfg,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	e.registry = aggregates.NewTopicRegistry(e.registryOptions()...)
	e.resolver = NewSimilarityResolver(lockedLookup{e: e}, oracle, cfg.LocalComparisonLimit, logger, metrics)
	e.planner = NewMergePlanner(cfg.MergeRegistryCeiling, cfg.CoOccurrenceSaturation, logger)
	e.intake = NewBatchIntake(cfg.BatchSize, e, logger, metrics)
	return e
}

func (e *TopicEngine) registryOptions() []aggregates.Option {
	return []aggregates.Option{
		aggregates.WithClock(e.now),
		aggregates.WithScorer(e.config.Scorer()),
	}
}

// lockedLookup gives the resolver registry reads that take the engine lock
// per call, so the oracle round trip in between runs unlocked.
type lockedLookup struct {
	e *TopicEngine
}

func (l lockedLookup) Lookup(key valueobjects.TopicKey) (valueobjects.TopicKey, bool) {
	l.e.mu.Lock()
	defer l.e.mu.Unlock()
	return l.e.registry.Lookup(key)
}

func (l lockedLookup) Keys() []valueobjects.TopicKey {
	l.e.mu.Lock()
	defer l.e.mu.Unlock()
	return l.e.registry.Keys()
}

// SeedCoreTopics registers every label of seeds as a core topic and pushes
// the resulting seed set to the oracle.
func (e *TopicEngine) SeedCoreTopics(ctx context.Context, seeds map[string][]string) error {
	labels := make([]string, 0, len(seeds))
	for label := range seeds {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	e.mu.Lock()
	added := 0
	for _, label := range labels {
		key, err := e.registry.AddTopic(label, true)
		if err != nil {
			e.logger.Warn("Skipping invalid core topic", zap.String("label", label), zap.Error(err))
			continue
		}
		e.mergeSeed(key, seeds[label])
		added++
	}
	evts := e.registry.DrainEvents()
	pushed := e.copySeeds()
	size := e.registry.Len()
	e.mu.Unlock()

	e.metrics.SetRegistrySize(size)
	e.logger.Info("Seeded core topics", zap.Int("coreTopics", added))
	e.publish(ctx, evts)
	e.pushSeeds(ctx, pushed)
	return nil
}

// AddCoreTopic registers label as a core topic, promoting it if it already
// exists, and adds keywords to its seed entry.
func (e *TopicEngine) AddCoreTopic(ctx context.Context, label string, keywords []string) (entities.TopicView, error) {
	e.mu.Lock()
	key, err := e.registry.AddTopic(label, true)
	if err != nil {
		e.mu.Unlock()
		return entities.TopicView{}, err
	}
	e.mergeSeed(key, keywords)
	view, _ := e.registry.Topic(key)
	evts := e.registry.DrainEvents()
	pushed := e.copySeeds()
	size := e.registry.Len()
	e.mu.Unlock()

	e.metrics.SetRegistrySize(size)
	e.publish(ctx, evts)
	e.pushSeeds(ctx, pushed)
	return view, nil
}

// Submit buffers texts for classification; reaching the batch size flushes
func (e *TopicEngine) Submit(ctx context.Context, texts ...string) SubmitResult {
	accepted, flushed := e.intake.Submit(ctx, texts...)
	return SubmitResult{
		Accepted: accepted,
		Flushed:  flushed,
		Pending:  e.intake.Pending(),
	}
}

// Flush forces a flush of whatever is buffered
func (e *TopicEngine) Flush(ctx context.Context) bool {
	return e.intake.Flush(ctx)
}

// HandleBatch classifies texts with one oracle call and folds every
// candidate into the registry. Each text's topics co-occur with each other,
// and every topic seen in the batch gets one observation.
func (e *TopicEngine) HandleBatch(ctx context.Context, batchID string, texts []string) {
	logger := e.logger.With(zap.String("batchID", batchID))
	if e.oracle == nil || len(texts) == 0 {
		return
	}

	results, err := e.oracle.Classify(ctx, texts, e.Seeds())
	if err != nil {
		logger.Warn("Topic classification failed, no topics discovered this round",
			zap.Int("texts", len(texts)),
			zap.Error(err),
		)
		return
	}
	if len(results) != len(texts) {
		logger.Warn("Oracle returned a different number of results than texts",
			zap.Int("texts", len(texts)),
			zap.Int("results", len(results)),
		)
		if len(results) > len(texts) {
			results = results[:len(texts)]
		}
	}

	e.entityFallback(ctx, logger, texts, results)

	var stats discoveryStats
	observed := make([]valueobjects.TopicKey, 0)
	seen := make(map[valueobjects.TopicKey]struct{})

	for _, candidates := range results {
		textTopics := make([]valueobjects.TopicKey, 0, len(candidates))
		for _, candidate := range candidates {
			key := e.discover(ctx, candidate, &stats)
			if key.IsEmpty() {
				continue
			}
			textTopics = append(textTopics, key)
			if _, dup := seen[key]; !dup {
				seen[key] = struct{}{}
				observed = append(observed, key)
			}
		}
		if len(textTopics) > 1 {
			e.mu.Lock()
			e.registry.RecordCoOccurrence(textTopics)
			e.mu.Unlock()
		}
	}

	e.mu.Lock()
	for _, key := range observed {
		e.registry.RecordObservation(key)
	}
	evts := e.registry.DrainEvents()
	size := e.registry.Len()
	var pushed map[string][]string
	if stats.created > 0 {
		pushed = e.copySeeds()
	}
	e.mu.Unlock()

	e.metrics.RecordDiscovery(stats.created, stats.mentions, stats.synonyms)
	e.metrics.SetRegistrySize(size)
	logger.Info("Processed batch",
		zap.Int("texts", len(texts)),
		zap.Int("topicsObserved", len(observed)),
		zap.Int("topicsCreated", stats.created),
		zap.Int("mentions", stats.mentions),
		zap.Int("synonymsAdded", stats.synonyms),
		zap.Int("predefinedCreated", stats.predefined),
		zap.Int("candidatesSkipped", stats.skipped),
	)

	e.publish(ctx, evts)
	if pushed != nil {
		e.pushSeeds(ctx, pushed)
	}
}

// entityFallback fills in texts the oracle found no topic for with a
// candidate built from the text's named entities: the first entity is the
// label and the first three are its keywords.
func (e *TopicEngine) entityFallback(ctx context.Context, logger *zap.Logger, texts []string, results [][]ports.Candidate) {
	if e.config.EntityProbability <= 0 {
		return
	}
	for i, candidates := range results {
		if len(candidates) > 0 {
			continue
		}
		found, err := e.oracle.ExtractEntities(ctx, texts[i])
		if err != nil {
			logger.Debug("Entity extraction failed", zap.Int("text", i), zap.Error(err))
			continue
		}
		if len(found) == 0 {
			continue
		}
		keywords := found
		if len(keywords) > 3 {
			keywords = keywords[:3]
		}
		results[i] = []ports.Candidate{{
			Label:              found[0],
			Keywords:           append([]string(nil), keywords...),
			Probability:        e.config.EntityProbability,
			RepresentativeText: texts[i],
		}}
	}
}

// discover resolves one candidate to a live topic, creating it when nothing
// matches and the oracle was confident enough. It returns "" when the
// candidate was dropped.
func (e *TopicEngine) discover(ctx context.Context, candidate ports.Candidate, stats *discoveryStats) valueobjects.TopicKey {
	key := valueobjects.Normalize(candidate.Label)
	if key.IsEmpty() {
		stats.skipped++
		return ""
	}

	match, found := e.resolver.FindSimilar(ctx, key, e.config.SimilarityThreshold)

	e.mu.Lock()
	defer e.mu.Unlock()

	if found {
		if canonical, live := e.registry.Lookup(match); live {
			e.registry.RecordMention(canonical)
			stats.mentions++
			if key != canonical && e.registry.AddSynonym(key, canonical) {
				stats.synonyms++
			}
			return canonical
		}
	}

	// another batch may have created it while the resolver was waiting
	if canonical, live := e.registry.Lookup(key); live {
		e.registry.RecordMention(canonical)
		stats.mentions++
		return canonical
	}

	if candidate.Probability <= e.config.TopicThreshold {
		stats.skipped++
		return ""
	}

	created, err := e.registry.AddTopic(key.String(), false)
	if err != nil {
		stats.skipped++
		return ""
	}
	e.registry.RecordMention(created)
	stats.created++
	if candidate.IsPredefined {
		stats.predefined++
	}

	keywords := candidate.Keywords
	if len(keywords) == 0 {
		keywords = []string{created.String()}
	}
	e.mergeSeed(created, keywords)
	return created
}

// RunMerges runs one merge planning pass and returns the number of merges
func (e *TopicEngine) RunMerges(ctx context.Context) int {
	e.mu.Lock()
	merged := e.planner.PlanAndExecuteMerges(e.registry, e.config.MergeThreshold)
	seedsChanged := merged > 0 && e.foldSeeds()
	evts := e.registry.DrainEvents()
	size := e.registry.Len()
	var pushed map[string][]string
	if seedsChanged {
		pushed = e.copySeeds()
	}
	e.mu.Unlock()

	e.metrics.RecordMerges(merged)
	e.metrics.SetRegistrySize(size)
	if merged > 0 {
		e.logger.Info("Merge pass complete", zap.Int("merged", merged), zap.Int("topics", size))
	}
	e.publish(ctx, evts)
	if pushed != nil {
		e.pushSeeds(ctx, pushed)
	}
	return merged
}

// PlanMerges lists the merges the next pass would execute
func (e *TopicEngine) PlanMerges() []MergeCandidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.planner.Plan(e.registry, e.config.MergeThreshold)
}

// Topics returns topics by descending interest, decayed to now. activeOnly
// keeps topics at or above the active interest threshold.
func (e *TopicEngine) Topics(activeOnly bool) []entities.TopicView {
	e.mu.Lock()
	e.registry.Rescore(e.now())
	views := e.registry.Topics()
	e.mu.Unlock()

	out := views[:0]
	for _, v := range views {
		if activeOnly && v.InterestLevel < e.config.ActiveInterestThreshold {
			continue
		}
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].InterestLevel > out[j].InterestLevel
	})
	return out
}

// Topic returns the topic raw resolves to
func (e *TopicEngine) Topic(raw string) (entities.TopicView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	view, ok := e.registry.Topic(e.registry.ResolveCanonical(raw))
	if !ok {
		return entities.TopicView{}, pkgerrors.NewNotFoundError("topic")
	}
	return view, nil
}

// Related returns up to limit neighbors of the topic raw resolves to
func (e *TopicEngine) Related(raw string, limit int) ([]RelatedTopic, error) {
	if limit <= 0 {
		limit = e.config.DefaultRelatedLimit
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	key := e.registry.ResolveCanonical(raw)
	if _, ok := e.registry.Topic(key); !ok {
		return nil, pkgerrors.NewNotFoundError("topic")
	}
	neighbors := e.registry.TopNeighbors(key, limit)
	out := make([]RelatedTopic, 0, len(neighbors))
	for _, nb := range neighbors {
		related := RelatedTopic{Key: nb.Key, Strength: nb.Strength}
		if view, ok := e.registry.Topic(nb.Key); ok {
			related.InterestLevel = view.InterestLevel
		}
		out = append(out, related)
	}
	return out, nil
}

// Seeds returns a copy of the seed set
func (e *TopicEngine) Seeds() map[string][]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copySeeds()
}

// Stats summarizes the engine's state
func (e *TopicEngine) Stats() EngineStats {
	e.mu.Lock()
	stats := EngineStats{
		Topics:     e.registry.Len(),
		CoreTopics: len(e.registry.CoreTopics()),
		Synonyms:   len(e.registry.Synonyms()),
	}
	e.mu.Unlock()

	stats.Pending = e.intake.Pending()
	stats.Flushing = e.intake.Flushing()
	return stats
}

// Rescore applies time decay to every topic
func (e *TopicEngine) Rescore() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.registry.Rescore(e.now())
}

// Load replaces the registry with the stored snapshot, when one exists.
// On failure the current registry is kept.
func (e *TopicEngine) Load(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	start := time.Now()
	snap, err := e.store.Load(ctx)
	e.metrics.RecordStoreOperation("load", time.Since(start), err)
	if err != nil {
		e.logger.Error("Failed to load snapshot, continuing with in-memory registry", zap.Error(err))
		return err
	}
	if snap == nil {
		e.logger.Info("No snapshot found, starting with an empty registry")
		return nil
	}

	restored, err := aggregates.RestoreTopicRegistry(snap, e.registryOptions()...)
	if err != nil {
		e.logger.Error("Rejected corrupt snapshot", zap.Error(err))
		return err
	}

	e.mu.Lock()
	e.registry = restored
	for label, keywords := range snap.Seeds {
		e.mergeSeed(valueobjects.TopicKey(label), keywords)
	}
	size := e.registry.Len()
	e.mu.Unlock()

	e.metrics.SetRegistrySize(size)
	e.logger.Info("Loaded snapshot",
		zap.Int("topics", size),
		zap.Time("savedAt", snap.SavedAt),
	)
	return nil
}

// Save writes a full snapshot. Saves are serialized; the registry stays
// authoritative when the store fails.
func (e *TopicEngine) Save(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	e.registry.Rescore(e.now())
	snap := e.registry.Snapshot(e.copySeeds())
	e.mu.Unlock()

	start := time.Now()
	err := e.store.Save(ctx, snap, e.config.SnapshotTTL)
	e.metrics.RecordStoreOperation("save", time.Since(start), err)
	if err != nil {
		e.logger.Error("Failed to save snapshot", zap.Error(err))
		return err
	}

	e.logger.Debug("Saved snapshot", zap.Int("topics", len(snap.Topics)))
	return nil
}

// RunMaintenance runs a rescore, a merge pass and a save every interval
// until ctx is done.
func (e *TopicEngine) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = e.config.MaintenanceInterval
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.maintain(ctx)
		}
	}
}

// maintain runs one maintenance pass
func (e *TopicEngine) maintain(ctx context.Context) {
	e.Rescore()
	e.RunMerges(ctx)
	_ = e.Save(ctx)

	if e.reporter != nil {
		if err := e.reporter.ReportStats(ctx, e.Stats()); err != nil {
			e.logger.Warn("Failed to report engine stats", zap.Error(err))
		}
	}
}

// Shutdown flushes buffered texts and saves a final snapshot
func (e *TopicEngine) Shutdown(ctx context.Context) error {
	e.Flush(ctx)
	return e.Save(ctx)
}

// Health reports the oracle status
func (e *TopicEngine) Health(ctx context.Context) (ports.OracleHealth, error) {
	if e.oracle == nil {
		return ports.OracleHealth{}, pkgerrors.NewUnavailableError("oracle")
	}
	return e.oracle.HealthCheck(ctx)
}

// mergeSeed adds keywords to key's seed entry. Caller holds mu.
func (e *TopicEngine) mergeSeed(key valueobjects.TopicKey, keywords []string) bool {
	if key.IsEmpty() {
		return false
	}
	label := key.String()
	existing, ok := e.seeds[label]
	changed := !ok
	for _, kw := range keywords {
		if kw == "" || containsString(existing, kw) {
			continue
		}
		existing = append(existing, kw)
		changed = true
	}
	if existing == nil {
		existing = []string{}
	}
	e.seeds[label] = existing
	return changed
}

// foldSeeds moves the seed entries of merged-away topics onto their
// canonical topic. Caller holds mu.
func (e *TopicEngine) foldSeeds() bool {
	changed := false
	for label, keywords := range e.seeds {
		canonical := e.registry.ResolveCanonical(label)
		if canonical.String() == label {
			continue
		}
		if _, live := e.registry.Lookup(canonical); !live {
			continue
		}
		delete(e.seeds, label)
		e.mergeSeed(canonical, keywords)
		changed = true
	}
	return changed
}

// copySeeds deep-copies the seed set. Caller holds mu.
func (e *TopicEngine) copySeeds() map[string][]string {
	out := make(map[string][]string, len(e.seeds))
	for label, keywords := range e.seeds {
		kw := make([]string, len(keywords))
		copy(kw, keywords)
		out[label] = kw
	}
	return out
}

func (e *TopicEngine) pushSeeds(ctx context.Context, seeds map[string][]string) {
	if e.oracle == nil || len(seeds) == 0 {
		return
	}
	if err := e.oracle.UpdateSeeds(ctx, seeds); err != nil {
		e.logger.Warn("Failed to push seed topics to oracle", zap.Int("seeds", len(seeds)), zap.Error(err))
	}
}

func (e *TopicEngine) publish(ctx context.Context, evts []events.DomainEvent) {
	if e.publisher == nil || len(evts) == 0 {
		return
	}
	if err := e.publisher.PublishBatch(ctx, evts); err != nil {
		e.logger.Warn("Failed to publish domain events", zap.Int("events", len(evts)), zap.Error(err))
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
