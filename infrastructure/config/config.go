package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	domainconfig "topicgraph/domain/config"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/utils"
)

// Snapshot store backends
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreDynamoDB = "dynamodb"
)

// Event publisher backends
const (
	PublisherLog         = "log"
	PublisherEventBridge = "eventbridge"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `validate:"required"`
	Environment   string `validate:"oneof=development staging production test"`

	// Persistence
	StoreBackend  string `validate:"oneof=memory sqlite dynamodb"`
	SQLitePath    string `validate:"required_if=StoreBackend sqlite"`
	DynamoDBTable string `validate:"required_if=StoreBackend dynamodb"`
	SnapshotID    string `validate:"required"`

	// AWS configuration
	AWSRegion string

	// Event publishing
	PublisherBackend string `validate:"oneof=log eventbridge"`
	EventBusName     string `validate:"required_if=PublisherBackend eventbridge"`

	// Oracle
	OracleURL             string        `validate:"required,url"`
	OracleTimeout         time.Duration `validate:"gt=0"`
	OracleRatePerSecond   float64       `validate:"gte=0"`
	OracleBurst           int           `validate:"gte=1"`
	OracleBreakerFailures uint32        `validate:"gte=1"`
	OracleBreakerTimeout  time.Duration `validate:"gt=0"`
	OracleHealthCacheTTL  time.Duration `validate:"gte=0"`

	// Core topic seed file
	SeedFile      string
	WatchSeedFile bool

	// Lambda configuration
	IsLambda           bool
	LambdaFunctionName string
	ColdStartTimeout   int // milliseconds

	// Logging
	LogLevel string

	// Feature flags
	EnableMetrics bool
	EnableTracing bool
	EnableCORS    bool

	// CloudWatch stats push, for hosts that cannot be scraped
	EnableCloudWatch    bool
	CloudWatchNamespace string `validate:"required_if=EnableCloudWatch true"`

	CORSAllowedOrigins []string

	// Per-client HTTP request budget; zero disables it
	RateLimitPerSecond float64 `validate:"gte=0"`
	RateLimitBurst     int     `validate:"gte=0"`

	// Bearer auth on mutating routes. In Lambda, API Gateway's authorizer
	// may stand in for the shared secret.
	RequireAuth bool
	JWTSecret   string `validate:"required_if=RequireAuth true IsLambda false"`
	JWTIssuer   string

	// Domain rules
	Domain *domainconfig.DomainConfig `validate:"-"`
}

// LoadConfig loads configuration from environment variables. A .env file in
// the working directory, when present, fills in variables that are not set.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	environment := getEnv("ENVIRONMENT", "development")
	storeBackend := getEnv("STORE_BACKEND", StoreMemory)

	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   environment,

		StoreBackend:  storeBackend,
		SQLitePath:    getEnv("SQLITE_PATH", "topicgraph.db"),
		DynamoDBTable: getEnv("TABLE_NAME", getEnv("DYNAMODB_TABLE", "")),
		SnapshotID:    getEnv("SNAPSHOT_ID", "default"),

		AWSRegion: getEnv("AWS_REGION", "us-west-2"),

		PublisherBackend: getEnv("EVENT_PUBLISHER", PublisherLog),
		EventBusName:     getEnv("EVENT_BUS_NAME", ""),

		OracleURL:             getEnv("ORACLE_URL", "http://localhost:5555"),
		OracleTimeout:         getEnvDuration("ORACLE_TIMEOUT", 30*time.Second),
		OracleRatePerSecond:   getEnvFloat("ORACLE_RATE_PER_SECOND", 5),
		OracleBurst:           getEnvInt("ORACLE_BURST", 5),
		OracleBreakerFailures: uint32(getEnvInt("ORACLE_BREAKER_FAILURES", 5)),
		OracleBreakerTimeout:  getEnvDuration("ORACLE_BREAKER_TIMEOUT", 30*time.Second),
		OracleHealthCacheTTL:  getEnvDuration("ORACLE_HEALTH_CACHE_TTL", 10*time.Second),

		SeedFile:      getEnv("SEED_FILE", ""),
		WatchSeedFile: getEnvBool("WATCH_SEED_FILE", environment == "development"),

		IsLambda:           getEnvBool("IS_LAMBDA", false),
		LambdaFunctionName: getEnv("AWS_LAMBDA_FUNCTION_NAME", ""),
		ColdStartTimeout:   getEnvInt("COLD_START_TIMEOUT", 3000),

		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EnableMetrics: getEnvBool("ENABLE_METRICS", true),
		EnableTracing: getEnvBool("ENABLE_TRACING", false),
		EnableCORS:    getEnvBool("ENABLE_CORS", true),

		EnableCloudWatch:    getEnvBool("ENABLE_CLOUDWATCH_METRICS", false),
		CloudWatchNamespace: getEnv("CLOUDWATCH_NAMESPACE", "TopicGraph"),

		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerSecond: getEnvFloat("RATE_LIMIT_PER_SECOND", 0),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 20),

		RequireAuth: getEnvBool("REQUIRE_AUTH", environment == "production"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", ""),

		Domain: loadDomainConfig(environment),
	}

	// Lambda functions keep no local disk between invocations
	if cfg.IsLambda && cfg.StoreBackend == StoreSQLite {
		cfg.StoreBackend = StoreMemory
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return pkgerrors.NewValidationError("invalid configuration").WithCause(err)
	}
	if c.Domain == nil {
		return pkgerrors.NewValidationError("domain configuration is missing")
	}
	return c.Domain.Validate()
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// loadDomainConfig starts from the environment's defaults and applies
// overrides from the environment.
func loadDomainConfig(environment string) *domainconfig.DomainConfig {
	d := domainconfig.LoadDomainConfig(environment)

	d.TopicThreshold = getEnvFloat("TOPIC_THRESHOLD", d.TopicThreshold)
	d.EntityProbability = getEnvFloat("ENTITY_PROBABILITY", d.EntityProbability)
	d.SimilarityThreshold = getEnvFloat("SIMILARITY_THRESHOLD", d.SimilarityThreshold)
	d.MergeThreshold = getEnvFloat("MERGE_THRESHOLD", d.MergeThreshold)
	d.LocalComparisonLimit = getEnvInt("LOCAL_COMPARISON_LIMIT", d.LocalComparisonLimit)
	d.MergeRegistryCeiling = getEnvInt("MERGE_REGISTRY_CEILING", d.MergeRegistryCeiling)
	d.BatchSize = getEnvInt("BATCH_SIZE", d.BatchSize)
	d.DecayRate = getEnvFloat("INTEREST_DECAY_RATE", d.DecayRate)
	d.ActiveInterestThreshold = getEnvFloat("ACTIVE_INTEREST_THRESHOLD", d.ActiveInterestThreshold)
	d.SnapshotTTL = getEnvDuration("SNAPSHOT_TTL", d.SnapshotTTL)
	d.MaintenanceInterval = getEnvDuration("MAINTENANCE_INTERVAL", d.MaintenanceInterval)

	return d
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable (e.g. "30s") with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default value
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
