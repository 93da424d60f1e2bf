package di

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"topicgraph/application/ports"
	"topicgraph/application/services"
	"topicgraph/infrastructure/cache"
	"topicgraph/infrastructure/config"
	"topicgraph/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config  *config.Config
	Logger  *zap.Logger
	Tracer  *observability.Tracer
	Metrics *observability.Collector
	Cache   *cache.InMemoryCache
	Oracle  ports.Oracle
	Store   ports.SnapshotStore
	Engine  *services.TopicEngine
	Handler http.Handler

	seedWatcher *config.SeedWatcher `wire:"-"`
}

// Bootstrap restores the last snapshot and registers the configured core
// topics. A failed restore leaves the engine empty rather than aborting
// startup. When seed watching is enabled, edits to the seed file register
// new core topics until Shutdown.
func (c *Container) Bootstrap(ctx context.Context) error {
	_ = c.Engine.Load(ctx)

	if c.Config.SeedFile == "" {
		return nil
	}

	if !c.Config.WatchSeedFile {
		seeds, err := config.LoadSeeds(c.Config.SeedFile)
		if err != nil {
			return err
		}
		return c.Engine.SeedCoreTopics(ctx, seeds)
	}

	watcher, err := config.NewSeedWatcher(c.Config.SeedFile, c.Logger)
	if err != nil {
		return err
	}
	if err := c.Engine.SeedCoreTopics(ctx, watcher.Current()); err != nil {
		watcher.Stop()
		return err
	}

	engine := c.Engine
	logger := c.Logger
	watcher.OnChange(func(seeds map[string][]string) {
		if err := engine.SeedCoreTopics(context.Background(), seeds); err != nil {
			logger.Error("Failed to apply reloaded seeds", zap.Error(err))
		}
	})
	watcher.Start()
	c.seedWatcher = watcher
	return nil
}

// Shutdown stops the seed watcher, flushes pending texts and saves a final
// snapshot.
func (c *Container) Shutdown(ctx context.Context) error {
	if c.seedWatcher != nil {
		c.seedWatcher.Stop()
	}
	return c.Engine.Shutdown(ctx)
}
