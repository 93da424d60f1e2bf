package oracle

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"topicgraph/application/ports"
	"topicgraph/infrastructure/cache"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/observability"
)

// workerStub answers like the topic worker; handle returns the result payload
type workerStub struct {
	hits   atomic.Int32
	handle func(t *testing.T, req request) (int, interface{})
}

func (s *workerStub) server(t *testing.T) *httptest.Server {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		status, body := s.handle(t, req)
		w.WriteHeader(status)
		switch b := body.(type) {
		case string:
			_, _ = w.Write([]byte(b))
		default:
			_ = json.NewEncoder(w).Encode(b)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func success(result interface{}) map[string]interface{} {
	return map[string]interface{}{"status": "success", "result": result}
}

func newTestClient(url string, mods ...func(*ClientConfig)) *HTTPClient {
	cfg := ClientConfig{
		URL:             url,
		Timeout:         time.Second,
		BreakerFailures: 2,
		BreakerTimeout:  time.Minute,
		HealthCacheTTL:  time.Minute,
	}
	for _, mod := range mods {
		mod(&cfg)
	}
	return NewHTTPClient(cfg, cache.NewInMemoryCache(0), zap.NewNop(),
		observability.NewTracer("test", false), observability.NewCollector("test"))
}

func TestClassify(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		assert.Equal(t, CommandDiscoverTopics, req.Command)
		assert.Equal(t, []string{"first text", "second text"}, req.Texts)
		assert.Equal(t, map[string][]string{"ai": {"neural"}}, req.PredefinedTopics)
		return http.StatusOK, success([][]map[string]interface{}{
			{{"topic": "AI", "keywords": []string{"neural"}, "is_predefined": true, "probability": 0.9}},
			{},
		})
	}}
	client := newTestClient(stub.server(t).URL)

	result, err := client.Classify(context.Background(),
		[]string{"first text", "second text"}, map[string][]string{"ai": {"neural"}})
	require.NoError(t, err)
	require.Len(t, result, 2)
	require.Len(t, result[0], 1)
	assert.Equal(t, ports.Candidate{Label: "AI", Keywords: []string{"neural"}, IsPredefined: true, Probability: 0.9}, result[0][0])
	assert.Empty(t, result[1])
}

func TestClassify_EmptyBatchSkipsCall(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		return http.StatusOK, success(nil)
	}}
	client := newTestClient(stub.server(t).URL)

	result, err := client.Classify(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Equal(t, int32(0), stub.hits.Load())
}

func TestClassify_LengthMismatchIsMalformed(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		return http.StatusOK, success([][]ports.Candidate{{}})
	}}
	client := newTestClient(stub.server(t).URL)

	_, err := client.Classify(context.Background(), []string{"a", "b"}, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeMalformed))
}

func TestCompareSimilarity(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]interface{}
		want   ports.SimilarityMatch
	}{
		{"match", map[string]interface{}{"most_similar": "machine learning", "similarity": 0.91}, ports.SimilarityMatch{Label: "machine learning", Similarity: 0.91}},
		{"no match", map[string]interface{}{"most_similar": nil, "similarity": 0.4}, ports.SimilarityMatch{Similarity: 0.4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
				assert.Equal(t, CommandCompareSimilarity, req.Command)
				assert.Equal(t, "ml", req.Topic)
				assert.Equal(t, []string{"machine learning", "robotics"}, req.Candidates)
				assert.Equal(t, 0.85, req.Threshold)
				return http.StatusOK, success(tt.result)
			}}
			client := newTestClient(stub.server(t).URL)

			got, err := client.CompareSimilarity(context.Background(), "ml", []string{"machine learning", "robotics"}, 0.85)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestUpdateSeeds(t *testing.T) {
	accepted := true
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		assert.Equal(t, CommandUpdateTopics, req.Command)
		return http.StatusOK, success(accepted)
	}}
	client := newTestClient(stub.server(t).URL)

	require.NoError(t, client.UpdateSeeds(context.Background(), map[string][]string{"ai": {}}))

	accepted = false
	err := client.UpdateSeeds(context.Background(), map[string][]string{"ai": {}})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsExternal(err))
}

func TestCall_Failures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     interface{}
		wantType pkgerrors.ErrorType
	}{
		{"server error", http.StatusInternalServerError, "boom", pkgerrors.ErrorTypeExternal},
		{"not json", http.StatusOK, "{not json", pkgerrors.ErrorTypeMalformed},
		{"worker error", http.StatusOK, map[string]interface{}{"status": "error", "error": "model not loaded"}, pkgerrors.ErrorTypeExternal},
		{"missing result", http.StatusOK, map[string]interface{}{"status": "success"}, pkgerrors.ErrorTypeMalformed},
		{"wrong result shape", http.StatusOK, success("nope"), pkgerrors.ErrorTypeMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
				return tt.status, tt.body
			}}
			client := newTestClient(stub.server(t).URL)

			_, err := client.CompareSimilarity(context.Background(), "x", []string{"y"}, 0.5)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsType(err, tt.wantType), "got %v", err)
			assert.True(t, pkgerrors.IsExternal(err))
		})
	}
}

func TestCall_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := newTestClient(srv.URL, func(c *ClientConfig) { c.Timeout = 20 * time.Millisecond })

	_, err := client.CompareSimilarity(context.Background(), "x", []string{"y"}, 0.5)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeTimeout), "got %v", err)
}

func TestCall_BreakerOpensOnTransportFailures(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		return http.StatusServiceUnavailable, "down"
	}}
	client := newTestClient(stub.server(t).URL)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := client.CompareSimilarity(ctx, "x", []string{"y"}, 0.5)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
	}

	_, err := client.CompareSimilarity(ctx, "x", []string{"y"}, 0.5)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeUnavailable), "got %v", err)
	assert.Equal(t, int32(2), stub.hits.Load())
}

func TestCall_WorkerErrorsDoNotTripBreaker(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		return http.StatusOK, "{garbage"
	}}
	client := newTestClient(stub.server(t).URL)

	for i := 0; i < 4; i++ {
		_, err := client.CompareSimilarity(context.Background(), "x", []string{"y"}, 0.5)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeMalformed))
	}
	assert.Equal(t, int32(4), stub.hits.Load())
}

func TestHealthCheck_Cached(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		assert.Equal(t, CommandHealthCheck, req.Command)
		return http.StatusOK, success(map[string]interface{}{
			"model_loaded":           true,
			"embedding_model_loaded": true,
			"spacy_loaded":           true,
			"seed_topics_count":      3,
		})
	}}
	client := newTestClient(stub.server(t).URL)

	for i := 0; i < 3; i++ {
		health, err := client.HealthCheck(context.Background())
		require.NoError(t, err)
		assert.Equal(t, ports.OracleHealth{
			Status:               "healthy",
			ModelLoaded:          true,
			EmbeddingModelLoaded: true,
			EntityModelLoaded:    true,
			SeedTopics:           3,
		}, health)
	}
	assert.Equal(t, int32(1), stub.hits.Load())
}

func TestHealthCheck_PartlyLoadedWorkerIsDegraded(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]interface{}
	}{
		{"embedding model missing", map[string]interface{}{"model_loaded": true, "embedding_model_loaded": false, "spacy_loaded": true}},
		{"entity model missing", map[string]interface{}{"model_loaded": true, "embedding_model_loaded": true, "spacy_loaded": false}},
		{"older worker without model flags", map[string]interface{}{"model_loaded": true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
				return http.StatusOK, success(tt.result)
			}}
			client := newTestClient(stub.server(t).URL)

			health, err := client.HealthCheck(context.Background())
			require.NoError(t, err)
			assert.Equal(t, "degraded", health.Status)
			assert.True(t, health.ModelLoaded)
			assert.False(t, health.Ready())

			_, _ = client.HealthCheck(context.Background())
			assert.Equal(t, int32(2), stub.hits.Load())
		})
	}
}

func TestExtractEntities(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		assert.Equal(t, CommandExtractEntities, req.Command)
		assert.Equal(t, "Ada Lovelace worked with Charles Babbage in London", req.Text)
		assert.Empty(t, req.Texts)
		return http.StatusOK, success([]string{"Ada Lovelace", "Charles Babbage", "London"})
	}}
	client := newTestClient(stub.server(t).URL)

	entities, err := client.ExtractEntities(context.Background(), "Ada Lovelace worked with Charles Babbage in London")
	require.NoError(t, err)
	assert.Equal(t, []string{"Ada Lovelace", "Charles Babbage", "London"}, entities)

	entities, err = client.ExtractEntities(context.Background(), "")
	require.NoError(t, err)
	assert.Nil(t, entities)
	assert.Equal(t, int32(1), stub.hits.Load())
}

func TestExtractEntities_WorkerError(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		return http.StatusOK, map[string]interface{}{"status": "error", "error": "spacy not loaded"}
	}}
	client := newTestClient(stub.server(t).URL)

	_, err := client.ExtractEntities(context.Background(), "some text")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsType(err, pkgerrors.ErrorTypeExternal))
}

func TestHealthCheck_DegradedNotCached(t *testing.T) {
	stub := &workerStub{handle: func(t *testing.T, req request) (int, interface{}) {
		return http.StatusOK, success(map[string]interface{}{"model_loaded": false})
	}}
	client := newTestClient(stub.server(t).URL)

	for i := 0; i < 2; i++ {
		health, err := client.HealthCheck(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "degraded", health.Status)
	}
	assert.Equal(t, int32(2), stub.hits.Load())
}
