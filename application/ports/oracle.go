package ports

import "context"

// Candidate is one topic proposed by the oracle for a batch of texts
type Candidate struct {
	Label              string   `json:"topic"`
	Keywords           []string `json:"keywords"`
	IsPredefined       bool     `json:"is_predefined"`
	Probability        float64  `json:"probability"`
	RepresentativeText string   `json:"representative_text,omitempty"`
}

// SimilarityMatch is the oracle's answer to a similarity question.
// An empty Label means no candidate cleared the threshold.
type SimilarityMatch struct {
	Label      string  `json:"most_similar"`
	Similarity float64 `json:"similarity"`
}

// OracleHealth reports the oracle's own view of its readiness
type OracleHealth struct {
	Status               string `json:"status"`
	ModelLoaded          bool   `json:"model_loaded"`
	EmbeddingModelLoaded bool   `json:"embedding_model_loaded"`
	EntityModelLoaded    bool   `json:"entity_model_loaded"`
	SeedTopics           int    `json:"seed_topics"`
}

// Ready reports whether every model the oracle needs is loaded
func (h OracleHealth) Ready() bool {
	return h.ModelLoaded && h.EmbeddingModelLoaded && h.EntityModelLoaded
}

// Oracle is the external topic-modelling service. Every call may fail or
// time out; callers treat a failure as "no result" for that call.
type Oracle interface {
	// Classify proposes topic candidates for each text, biased toward seeds
	// (label → keywords). result[i] belongs to texts[i].
	Classify(ctx context.Context, texts []string, seeds map[string][]string) ([][]Candidate, error)

	// UpdateSeeds replaces the oracle's seed set
	UpdateSeeds(ctx context.Context, seeds map[string][]string) error

	// CompareSimilarity returns the candidate most similar to topic when its
	// similarity reaches threshold
	CompareSimilarity(ctx context.Context, topic string, candidates []string, threshold float64) (SimilarityMatch, error)

	// ExtractEntities returns the named entities in text, most salient first
	ExtractEntities(ctx context.Context, text string) ([]string, error)

	// HealthCheck reports the oracle status
	HealthCheck(ctx context.Context) (OracleHealth, error)
}
