package handlers

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"topicgraph/application/ports"
	"topicgraph/application/services"
	"topicgraph/domain/core/entities"
	"topicgraph/pkg/common"
	pkgerrors "topicgraph/pkg/errors"
	"topicgraph/pkg/utils"
)

const maxBodyBytes = 4 << 20

// TopicService is the engine surface the HTTP layer drives
type TopicService interface {
	Submit(ctx context.Context, texts ...string) services.SubmitResult
	Flush(ctx context.Context) bool
	Topics(activeOnly bool) []entities.TopicView
	Topic(raw string) (entities.TopicView, error)
	Related(raw string, limit int) ([]services.RelatedTopic, error)
	AddCoreTopic(ctx context.Context, label string, keywords []string) (entities.TopicView, error)
	RunMerges(ctx context.Context) int
	PlanMerges() []services.MergeCandidate
	Stats() services.EngineStats
	Health(ctx context.Context) (ports.OracleHealth, error)
}

// TopicHandler handles topic-related HTTP requests
type TopicHandler struct {
	engine TopicService
	errors *pkgerrors.ErrorHandler
	logger *zap.Logger
}

// NewTopicHandler creates a new topic handler
func NewTopicHandler(engine TopicService, errorHandler *pkgerrors.ErrorHandler, logger *zap.Logger) *TopicHandler {
	return &TopicHandler{
		engine: engine,
		errors: errorHandler,
		logger: logger,
	}
}

// SubmitObservationsRequest is the body of POST /observations
type SubmitObservationsRequest struct {
	Texts []string `json:"texts" validate:"required,min=1,max=1000,dive,max=20000"`
	Flush bool     `json:"flush,omitempty"`
}

// CreateTopicRequest is the body of POST /topics
type CreateTopicRequest struct {
	Label    string   `json:"label" validate:"required,max=200"`
	Keywords []string `json:"keywords,omitempty" validate:"omitempty,max=50,dive,max=100"`
}

// RunMergesRequest is the optional body of POST /merges
type RunMergesRequest struct {
	DryRun bool `json:"dry_run,omitempty"`
}

// SubmitObservationsResponse reports what the intake did with the texts
type SubmitObservationsResponse struct {
	services.SubmitResult
	RequestID string `json:"request_id,omitempty"`
}

// RunMergesResponse reports the outcome of a merge pass
type RunMergesResponse struct {
	Merged  int                       `json:"merged"`
	Planned []services.MergeCandidate `json:"planned,omitempty"`
	DryRun  bool                      `json:"dry_run"`
}

// SubmitObservations handles POST /observations
func (h *TopicHandler) SubmitObservations(w http.ResponseWriter, r *http.Request) {
	var req SubmitObservationsRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	result := h.engine.Submit(r.Context(), req.Texts...)
	if req.Flush && result.Pending > 0 {
		result.Flushed = h.engine.Flush(r.Context()) || result.Flushed
		result.Pending = h.engine.Stats().Pending
	}

	h.logger.Debug("Observations submitted",
		zap.Int("accepted", result.Accepted),
		zap.Bool("flushed", result.Flushed),
		zap.Int("pending", result.Pending))

	common.RespondJSON(w, http.StatusAccepted, SubmitObservationsResponse{
		SubmitResult: result,
		RequestID:    chimiddleware.GetReqID(r.Context()),
	})
}

// Flush handles POST /flush
func (h *TopicHandler) Flush(w http.ResponseWriter, r *http.Request) {
	flushed := h.engine.Flush(r.Context())
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"flushed": flushed,
		"pending": h.engine.Stats().Pending,
	})
}

// ListTopics handles GET /topics
func (h *TopicHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))
	params := common.ExtractPaginationParams(r)

	topics := h.engine.Topics(activeOnly)
	start, end := params.Bounds(len(topics))

	common.RespondWithMeta(w, http.StatusOK, topics[start:end], &common.MetaInfo{
		RequestID:  chimiddleware.GetReqID(r.Context()),
		Pagination: common.BuildPaginationMeta(params.Page, params.PageSize, len(topics)),
	})
}

// GetTopic handles GET /topics/{key}
func (h *TopicHandler) GetTopic(w http.ResponseWriter, r *http.Request) {
	key, ok := h.topicKey(w, r)
	if !ok {
		return
	}

	topic, err := h.engine.Topic(key)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, topic)
}

// GetRelated handles GET /topics/{key}/related
func (h *TopicHandler) GetRelated(w http.ResponseWriter, r *http.Request) {
	key, ok := h.topicKey(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > common.MaxPageSize {
			h.errors.Handle(w, r, pkgerrors.NewValidationError("limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	related, err := h.engine.Related(key, limit)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, related)
}

// CreateTopic handles POST /topics
func (h *TopicHandler) CreateTopic(w http.ResponseWriter, r *http.Request) {
	var req CreateTopicRequest
	if !h.decode(w, r, &req, false) {
		return
	}

	topic, err := h.engine.AddCoreTopic(r.Context(), req.Label, req.Keywords)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.logger.Info("Core topic added", zap.String("key", topic.Key.String()))
	common.RespondJSON(w, http.StatusCreated, topic)
}

// RunMerges handles POST /merges
func (h *TopicHandler) RunMerges(w http.ResponseWriter, r *http.Request) {
	var req RunMergesRequest
	if !h.decode(w, r, &req, true) {
		return
	}

	if req.DryRun {
		common.RespondJSON(w, http.StatusOK, RunMergesResponse{
			Planned: h.engine.PlanMerges(),
			DryRun:  true,
		})
		return
	}

	merged := h.engine.RunMerges(r.Context())
	common.RespondJSON(w, http.StatusOK, RunMergesResponse{Merged: merged})
}

// GetStats handles GET /stats
func (h *TopicHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, h.engine.Stats())
}

// decode parses and validates a JSON body. An empty body is accepted when
// optional is set.
func (h *TopicHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}, optional bool) bool {
	if optional && r.ContentLength == 0 {
		return true
	}
	if err := common.ParseJSONBody(w, r, v, maxBodyBytes); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid request body: "+err.Error()))
		return false
	}
	if err := utils.ValidateStruct(v); err != nil {
		h.errors.Handle(w, r, pkgerrors.NewValidationError(err.Error()))
		return false
	}
	return true
}

func (h *TopicHandler) topicKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		h.errors.Handle(w, r, pkgerrors.NewValidationError("invalid topic key"))
		return "", false
	}
	return key, true
}
