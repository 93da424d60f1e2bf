// Package oracle talks to the external topic-modelling worker over HTTP.
package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"topicgraph/application/ports"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/observability"
)

const (
	serviceName      = "topic-oracle"
	healthCacheKey   = "oracle:health"
	maxResponseBytes = 8 << 20

	// transportFailure marks errors that say the oracle is down rather than
	// that it answered badly. Only these trip the breaker.
	transportFailure = "ORACLE_TRANSPORT"
)

// Wire commands understood by the worker
const (
	CommandDiscoverTopics    = "discover_topics"
	CommandUpdateTopics      = "update_topics"
	CommandCompareSimilarity = "compare_similarity"
	CommandExtractEntities   = "extract_entities"
	CommandHealthCheck       = "health_check"
)

// ClientConfig configures the HTTP oracle client
type ClientConfig struct {
	URL             string
	Timeout         time.Duration
	RatePerSecond   float64 // 0 disables rate limiting
	Burst           int
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	HealthCacheTTL  time.Duration
}

// HTTPClient implements ports.Oracle against the worker's JSON command API
type HTTPClient struct {
	endpoint   string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
	cache      ports.Cache
	healthTTL  time.Duration
	logger     *zap.Logger
	tracer     *observability.Tracer
	metrics    *observability.Collector
}

var _ ports.Oracle = (*HTTPClient)(nil)

type request struct {
	Command          string              `json:"command"`
	Texts            []string            `json:"texts,omitempty"`
	Text             string              `json:"text,omitempty"`
	PredefinedTopics map[string][]string `json:"predefined_topics,omitempty"`
	Topic            string              `json:"topic,omitempty"`
	Candidates       []string            `json:"candidates,omitempty"`
	Threshold        float64             `json:"threshold,omitempty"`
}

type response struct {
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

type healthResult struct {
	ModelLoaded          bool `json:"model_loaded"`
	EmbeddingModelLoaded bool `json:"embedding_model_loaded"`
	SpacyLoaded          bool `json:"spacy_loaded"`
	SeedTopicsCount      int  `json:"seed_topics_count"`
}

// NewHTTPClient creates an oracle client. cache may be nil, which disables
// health caching.
func NewHTTPClient(
	cfg ClientConfig,
	cache ports.Cache,
	logger *zap.Logger,
	tracer *observability.Tracer,
	metrics *observability.Collector,
) *HTTPClient {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        serviceName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Oracle circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			appErr := pkgerrors.GetAppError(err)
			return appErr == nil || (appErr.Code != transportFailure && appErr.Type != pkgerrors.ErrorTypeTimeout)
		},
	})

	return &HTTPClient{
		endpoint:   cfg.URL,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(limit, burst),
		breaker:    breaker,
		cache:      cache,
		healthTTL:  cfg.HealthCacheTTL,
		logger:     logger,
		tracer:     tracer,
		metrics:    metrics,
	}
}

// Classify sends one discover_topics call for the whole batch
func (c *HTTPClient) Classify(ctx context.Context, texts []string, seeds map[string][]string) ([][]ports.Candidate, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var result [][]ports.Candidate
	err := c.call(ctx, request{
		Command:          CommandDiscoverTopics,
		Texts:            texts,
		PredefinedTopics: seeds,
	}, &result)
	if err != nil {
		return nil, err
	}
	if len(result) != len(texts) {
		return nil, pkgerrors.NewMalformedResponseError(serviceName,
			fmt.Errorf("got candidates for %d texts, sent %d", len(result), len(texts)))
	}
	return result, nil
}

// UpdateSeeds replaces the worker's predefined topics
func (c *HTTPClient) UpdateSeeds(ctx context.Context, seeds map[string][]string) error {
	var ok bool
	if err := c.call(ctx, request{Command: CommandUpdateTopics, PredefinedTopics: seeds}, &ok); err != nil {
		return err
	}
	if !ok {
		return pkgerrors.NewExternalError(serviceName, errors.New("seed update rejected"))
	}
	return nil
}

// CompareSimilarity asks the worker for the candidate closest to topic
func (c *HTTPClient) CompareSimilarity(ctx context.Context, topic string, candidates []string, threshold float64) (ports.SimilarityMatch, error) {
	var match ports.SimilarityMatch
	if len(candidates) == 0 {
		return match, nil
	}
	err := c.call(ctx, request{
		Command:    CommandCompareSimilarity,
		Topic:      topic,
		Candidates: candidates,
		Threshold:  threshold,
	}, &match)
	if err != nil {
		return ports.SimilarityMatch{}, err
	}
	return match, nil
}

// ExtractEntities asks the worker for the named entities in text
func (c *HTTPClient) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	if text == "" {
		return nil, nil
	}
	var entities []string
	if err := c.call(ctx, request{Command: CommandExtractEntities, Text: text}, &entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// HealthCheck asks the worker for its status. A worker with any model missing is
// degraded. Healthy answers are cached for the configured TTL.
func (c *HTTPClient) HealthCheck(ctx context.Context) (ports.OracleHealth, error) {
	if c.cache != nil && c.healthTTL > 0 {
		if cached, ok := c.cache.Get(ctx, healthCacheKey); ok {
			if health, ok := cached.(ports.OracleHealth); ok {
				return health, nil
			}
		}
	}

	var result healthResult
	if err := c.call(ctx, request{Command: CommandHealthCheck}, &result); err != nil {
		return ports.OracleHealth{Status: "unavailable"}, err
	}

	health := ports.OracleHealth{
		Status:               "healthy",
		ModelLoaded:          result.ModelLoaded,
		EmbeddingModelLoaded: result.EmbeddingModelLoaded,
		EntityModelLoaded:    result.SpacyLoaded,
		SeedTopics:           result.SeedTopicsCount,
	}
	if !health.Ready() {
		health.Status = "degraded"
	}

	if c.cache != nil && c.healthTTL > 0 && health.Ready() {
		_ = c.cache.Set(ctx, healthCacheKey, health, c.healthTTL)
	}
	return health, nil
}

// call rate-limits, traces and breaker-guards a single command
func (c *HTTPClient) call(ctx context.Context, req request, out interface{}) error {
	start := time.Now()

	err := c.tracer.TraceFunction(ctx, "oracle."+req.Command, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return pkgerrors.NewTimeoutError("oracle " + req.Command).WithCause(err)
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			return nil, c.roundTrip(ctx, req, out)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return pkgerrors.NewUnavailableError(serviceName).WithCause(err)
		}
		return err
	})

	c.metrics.RecordOracleCall(req.Command, time.Since(start), err)
	if err != nil {
		c.logger.Warn("Oracle call failed",
			zap.String("command", req.Command),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
	}
	return err
}

func (c *HTTPClient) roundTrip(ctx context.Context, req request, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(req)
	if err != nil {
		return pkgerrors.NewInternalError("failed to encode oracle request").WithCause(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return pkgerrors.NewInternalError("failed to build oracle request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return pkgerrors.NewTimeoutError("oracle " + req.Command).WithCause(err)
		}
		return pkgerrors.NewExternalError(serviceName, err).WithCode(transportFailure)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return pkgerrors.NewExternalError(serviceName, err).WithCode(transportFailure)
	}

	if resp.StatusCode != http.StatusOK {
		return pkgerrors.NewExternalError(serviceName,
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(data, 200))).WithCode(transportFailure)
	}

	var env response
	if err := json.Unmarshal(data, &env); err != nil {
		return pkgerrors.NewMalformedResponseError(serviceName, err)
	}
	if env.Status != "success" {
		return pkgerrors.NewExternalError(serviceName, fmt.Errorf("%s failed: %s", req.Command, env.Error))
	}
	if out == nil {
		return nil
	}
	if len(env.Result) == 0 {
		return pkgerrors.NewMalformedResponseError(serviceName, errors.New("missing result"))
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return pkgerrors.NewMalformedResponseError(serviceName, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
