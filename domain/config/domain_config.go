package config

import (
	"time"

	"topicgraph/domain/core/entities"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/utils"
)

// DomainConfig holds the tunable rules of the topic engine
type DomainConfig struct {
	// Discovery
	TopicThreshold      float64 `validate:"gte=0,lte=1"`
	EntityProbability   float64 `validate:"gte=0,lte=1"` // zero disables the entity fallback
	SimilarityThreshold float64 `validate:"gt=0,lte=1"`

	// Similarity resolution
	LocalComparisonLimit int `validate:"gte=0"`

	// Merge planning
	MergeThreshold         float64 `validate:"gt=0,lte=1"`
	MergeRegistryCeiling   int     `validate:"gte=0"`
	CoOccurrenceSaturation int     `validate:"gt=0"`

	// Batching
	BatchSize int `validate:"gt=0,lte=1000"`

	// Interest scoring
	DecayRate               float64 `validate:"gt=0"`
	FrequencySaturation     float64 `validate:"gt=0"`
	CoreInterestFloor       float64 `validate:"gte=0,lte=1"`
	ActiveInterestThreshold float64 `validate:"gte=0,lte=1"`

	// Related topics
	DefaultRelatedLimit int `validate:"gt=0"`

	// Persistence and maintenance
	SnapshotTTL         time.Duration `validate:"gte=0"`
	MaintenanceInterval time.Duration `validate:"gte=0"`
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		TopicThreshold:      0.65,
		EntityProbability:   0.7,
		SimilarityThreshold: 0.85,

		LocalComparisonLimit: 100,

		MergeThreshold:         0.9,
		MergeRegistryCeiling:   1000,
		CoOccurrenceSaturation: 10,

		BatchSize: 50,

		DecayRate:               0.1,
		FrequencySaturation:     10,
		CoreInterestFloor:       0.7,
		ActiveInterestThreshold: 0.5,

		DefaultRelatedLimit: 5,

		SnapshotTTL:         0, // No expiration by default
		MaintenanceInterval: 15 * time.Minute,
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Snapshots of an abandoned deployment expire after a quarter
	config.SnapshotTTL = 90 * 24 * time.Hour
	config.MaintenanceInterval = time.Hour

	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()

	// Small batches and frequent maintenance make local runs observable
	config.BatchSize = 5
	config.MaintenanceInterval = time.Minute

	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return pkgerrors.NewValidationError("invalid domain configuration").WithCause(err)
	}
	return nil
}

// Scorer builds the interest scorer these settings describe
func (c *DomainConfig) Scorer() entities.InterestScorer {
	return entities.InterestScorer{
		DecayRate:           c.DecayRate,
		FrequencySaturation: c.FrequencySaturation,
		CoreFloor:           c.CoreInterestFloor,
	}
}
