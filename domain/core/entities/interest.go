package entities

import (
	"math"
	"time"
)

// InterestScorer computes a topic's decayed relevance.
//
//	recency   = exp(-DecayRate * daysSinceLastUpdate)
//	frequency = min(1, observationCount / FrequencySaturation)
//	core      = max(CoreFloor, 0.3*recency + 0.7*frequency)
//	other     = 0.6*recency + 0.4*frequency
type InterestScorer struct {
	DecayRate           float64
	FrequencySaturation float64
	CoreFloor           float64
}

// DefaultInterestScorer decays with a half-life of about 6.9 days and
// saturates frequency at ten observations.
func DefaultInterestScorer() InterestScorer {
	return InterestScorer{
		DecayRate:           0.1,
		FrequencySaturation: 10,
		CoreFloor:           0.7,
	}
}

// Score returns the interest level of t at time now, in [0,1]
func (s InterestScorer) Score(t *Topic, now time.Time) float64 {
	return s.score(t.isCore, t.observationCount, t.lastUpdatedAt, now)
}

// Recency returns the exponential decay factor for a topic last touched at lastUpdated
func (s InterestScorer) Recency(lastUpdated, now time.Time) float64 {
	days := now.Sub(lastUpdated).Hours() / 24
	if days < 0 {
		days = 0
	}
	return math.Exp(-s.DecayRate * days)
}

// Frequency returns the saturating observation factor
func (s InterestScorer) Frequency(observationCount int) float64 {
	if s.FrequencySaturation <= 0 {
		return 1
	}
	return math.Min(1, float64(observationCount)/s.FrequencySaturation)
}

func (s InterestScorer) score(isCore bool, observations int, lastUpdated, now time.Time) float64 {
	recency := s.Recency(lastUpdated, now)
	frequency := s.Frequency(observations)

	if isCore {
		return clamp01(math.Max(s.CoreFloor, 0.3*recency+0.7*frequency))
	}
	return clamp01(0.6*recency + 0.4*frequency)
}
