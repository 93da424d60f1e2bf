package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscloudwatch "github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"topicgraph/application/ports"
	"topicgraph/application/services"
	"topicgraph/infrastructure/cache"
	"topicgraph/infrastructure/config"
	"topicgraph/infrastructure/messaging"
	"topicgraph/infrastructure/messaging/eventbridge"
	"topicgraph/infrastructure/monitoring"
	"topicgraph/infrastructure/oracle"
	"topicgraph/infrastructure/persistence/dynamodb"
	"topicgraph/infrastructure/persistence/memory"
	"topicgraph/infrastructure/persistence/sqlite"
	"topicgraph/interfaces/http/rest"
	"topicgraph/pkg/observability"
)

const serviceName = "topicgraph"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		zcfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}

	return logger.With(zap.String("environment", cfg.Environment)), nil
}

// ProvideAWSConfig creates AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
}

// ProvideDynamoDBClient creates a DynamoDB client
func ProvideDynamoDBClient(awsCfg aws.Config) *awsdynamodb.Client {
	return awsdynamodb.NewFromConfig(awsCfg)
}

// ProvideEventBridgeClient creates an EventBridge client
func ProvideEventBridgeClient(awsCfg aws.Config) *awseventbridge.Client {
	return awseventbridge.NewFromConfig(awsCfg)
}

// ProvideCloudWatchClient creates a CloudWatch client
func ProvideCloudWatchClient(awsCfg aws.Config) *awscloudwatch.Client {
	return awscloudwatch.NewFromConfig(awsCfg)
}

// ProvideTracer creates the X-Ray tracer
func ProvideTracer(cfg *config.Config) *observability.Tracer {
	return observability.NewTracer(serviceName, cfg.EnableTracing)
}

// ProvideMetrics creates the Prometheus collector
func ProvideMetrics() *observability.Collector {
	return observability.NewCollector(serviceName)
}

// ProvideCache creates the in-memory cache
func ProvideCache() (*cache.InMemoryCache, func()) {
	c := cache.NewInMemoryCache(time.Minute)
	return c, c.Close
}

// ProvideOracle creates the HTTP oracle client
func ProvideOracle(
	cfg *config.Config,
	c *cache.InMemoryCache,
	logger *zap.Logger,
	tracer *observability.Tracer,
	metrics *observability.Collector,
) ports.Oracle {
	return oracle.NewHTTPClient(oracle.ClientConfig{
		URL:             cfg.OracleURL,
		Timeout:         cfg.OracleTimeout,
		RatePerSecond:   cfg.OracleRatePerSecond,
		Burst:           cfg.OracleBurst,
		BreakerFailures: cfg.OracleBreakerFailures,
		BreakerTimeout:  cfg.OracleBreakerTimeout,
		HealthCacheTTL:  cfg.OracleHealthCacheTTL,
	}, c, logger, tracer, metrics)
}

// ProvideSnapshotStore creates the configured snapshot store
func ProvideSnapshotStore(
	cfg *config.Config,
	client *awsdynamodb.Client,
	logger *zap.Logger,
	tracer *observability.Tracer,
) (ports.SnapshotStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreDynamoDB:
		return dynamodb.NewSnapshotStore(client, cfg.DynamoDBTable, cfg.SnapshotID, logger, tracer), func() {}, nil
	case config.StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath, cfg.SnapshotID, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {
			if err := store.Close(); err != nil {
				logger.Warn("Failed to close SQLite store", zap.Error(err))
			}
		}, nil
	default:
		return memory.NewSnapshotStore(), func() {}, nil
	}
}

// ProvideEventPublisher creates the configured event publisher
func ProvideEventPublisher(cfg *config.Config, client *awseventbridge.Client, logger *zap.Logger) ports.EventPublisher {
	if cfg.PublisherBackend == config.PublisherEventBridge {
		return eventbridge.NewPublisher(client, cfg.EventBusName, logger)
	}
	return messaging.NewLogPublisher(logger)
}

// ProvideStatsReporter creates the CloudWatch reporter, or nil when disabled
func ProvideStatsReporter(cfg *config.Config, client *awscloudwatch.Client) ports.StatsReporter {
	if !cfg.EnableCloudWatch {
		return nil
	}
	return monitoring.NewCloudWatchReporter(client, cfg.CloudWatchNamespace, cfg.Environment)
}

// ProvideTopicEngine creates the engine that owns the registry
func ProvideTopicEngine(
	cfg *config.Config,
	oracleClient ports.Oracle,
	store ports.SnapshotStore,
	publisher ports.EventPublisher,
	reporter ports.StatsReporter,
	logger *zap.Logger,
	metrics *observability.Collector,
) *services.TopicEngine {
	var opts []services.EngineOption
	if reporter != nil {
		opts = append(opts, services.WithStatsReporter(reporter))
	}
	return services.NewTopicEngine(cfg.Domain, oracleClient, store, publisher, logger, metrics, opts...)
}

// ProvideHTTPHandler builds the REST router
func ProvideHTTPHandler(
	cfg *config.Config,
	engine *services.TopicEngine,
	logger *zap.Logger,
	metrics *observability.Collector,
	tracer *observability.Tracer,
) http.Handler {
	return rest.NewRouter(engine, rest.RouterConfig{
		EnableCORS:         cfg.EnableCORS,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		EnableMetrics:      cfg.EnableMetrics,
		Debug:              cfg.IsDevelopment(),
		RateLimitPerSecond: cfg.RateLimitPerSecond,
		RateLimitBurst:     cfg.RateLimitBurst,
		RequireAuth:        cfg.RequireAuth,
		JWTSecret:          cfg.JWTSecret,
		JWTIssuer:          cfg.JWTIssuer,
		TrustGatewayAuth:   cfg.IsLambda,
	}, logger, metrics, tracer).Setup()
}
