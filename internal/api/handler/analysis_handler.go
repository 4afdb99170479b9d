package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
)

// AnalysisService 处理器门面, 由 processor.AnalysisService 实现
type AnalysisService interface {
	Analyze(ctx context.Context, req processor.AnalysisRequest) (types.RequestResult, error)
	Submit(ctx context.Context, req processor.AnalysisRequest) error
	Lookup(ctx context.Context, requestID string) (*types.AnalysisLogRecord, error)
}

// RequestLocker 防止同一 request_id 被并发提交
type RequestLocker interface {
	AcquireRequestLock(ctx context.Context, requestID string) (string, bool, error)
	ReleaseRequestLock(ctx context.Context, requestID, token string) error
}

// HealthChecker 数据库连通性检查
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// AnalysisHandler 简历分析 HTTP 处理器
type AnalysisHandler struct {
	svc    AnalysisService
	limits Limits
	locker RequestLocker
	health HealthChecker
	logger zerolog.Logger
}

// Option 配置 AnalysisHandler
type Option func(*AnalysisHandler)

func WithRequestLocker(l RequestLocker) Option {
	return func(h *AnalysisHandler) { h.locker = l }
}

func WithHealthChecker(hc HealthChecker) Option {
	return func(h *AnalysisHandler) { h.health = hc }
}

func WithLogger(l zerolog.Logger) Option {
	return func(h *AnalysisHandler) { h.logger = l }
}

// NewAnalysisHandler 创建处理器
func NewAnalysisHandler(svc AnalysisService, limits Limits, opts ...Option) *AnalysisHandler {
	h := &AnalysisHandler{
		svc:    svc,
		limits: limits,
		logger: logger.Component("api"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// TotalFailureResponse 整批失败时的响应体
type TotalFailureResponse struct {
	Message     string   `json:"message"`
	FailedFiles []string `json:"failed_files"`
	RequestID   string   `json:"request_id"`
}

// AnalysisRecordResponse 查询已存储请求的响应体。resultado 为结果列表或 "falha_total"
type AnalysisRecordResponse struct {
	RequestID   string    `json:"request_id"`
	UserID      string    `json:"user_id"`
	Query       *string   `json:"query"`
	Status      string    `json:"status"`
	Resultado   any       `json:"resultado,omitempty"`
	FailedFiles []string  `json:"failed_files,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// HandleAnalyze POST /api/v1/analyze
func (h *AnalysisHandler) HandleAnalyze(ctx context.Context, c *app.RequestContext) {
	req, inputErr := ParseAnalysisForm(c, h.limits)
	if inputErr != nil {
		h.writeInputError(ctx, c, inputErr)
		return
	}
	log := h.logger.With().Str("request_id", req.RequestID).Str("user_id", req.UserID).Logger()
	log.Info().Int("files", len(req.Files)).Bool("has_query", req.Query != "").Msg("analysis request received")

	release, ok := h.lock(ctx, c, req.RequestID, log)
	if !ok {
		return
	}
	defer release()

	result, err := h.svc.Analyze(ctx, req)
	if err != nil {
		h.writeServiceError(ctx, c, req.RequestID, err, log)
		return
	}
	c.JSON(http.StatusOK, result)
}

// HandleAnalyzeAsync POST /api/v1/analyze/async
func (h *AnalysisHandler) HandleAnalyzeAsync(ctx context.Context, c *app.RequestContext) {
	req, inputErr := ParseAnalysisForm(c, h.limits)
	if inputErr != nil {
		h.writeInputError(ctx, c, inputErr)
		return
	}
	log := h.logger.With().Str("request_id", req.RequestID).Str("user_id", req.UserID).Logger()

	release, ok := h.lock(ctx, c, req.RequestID, log)
	if !ok {
		return
	}
	defer release()

	if err := h.svc.Submit(ctx, req); err != nil {
		h.writeServiceError(ctx, c, req.RequestID, err, log)
		return
	}
	c.JSON(http.StatusAccepted, utils.H{"request_id": req.RequestID, "status": types.StatusQueued})
}

// HandleGetAnalysis GET /api/v1/analyze/:request_id
func (h *AnalysisHandler) HandleGetAnalysis(ctx context.Context, c *app.RequestContext) {
	requestID := c.Param("request_id")
	id, err := uuid.Parse(requestID)
	if err != nil {
		h.writeInputError(ctx, c, unprocessable("request_id must be a valid UUID"))
		return
	}

	rec, err := h.svc.Lookup(ctx, id.String())
	switch {
	case errors.Is(err, processor.ErrLogNotFound):
		c.JSON(http.StatusNotFound, utils.H{"error": "analysis request not found"})
		return
	case errors.Is(err, processor.ErrMissingComponent):
		c.JSON(http.StatusServiceUnavailable, utils.H{"error": "request log storage is not available"})
		return
	case err != nil:
		h.logger.Error().Err(err).Str("request_id", requestID).Msg("failed to look up analysis request")
		c.JSON(http.StatusInternalServerError, utils.H{"error": "failed to look up analysis request"})
		return
	}
	c.JSON(http.StatusOK, toRecordResponse(rec))
}

// HandleHealth GET /health
func (h *AnalysisHandler) HandleHealth(ctx context.Context, c *app.RequestContext) {
	database := "down"
	if h.health != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := h.health.Ping(pingCtx); err == nil {
			database = "up"
		} else {
			h.logger.Warn().Err(err).Msg("database health check failed")
		}
	}
	c.JSON(http.StatusOK, utils.H{"status": "ok", "database": database})
}

// lock 获取 request_id 锁。Redis 不可用时放行
func (h *AnalysisHandler) lock(ctx context.Context, c *app.RequestContext, requestID string, log zerolog.Logger) (func(), bool) {
	if h.locker == nil {
		return func() {}, true
	}
	token, acquired, err := h.locker.AcquireRequestLock(ctx, requestID)
	if err != nil {
		log.Warn().Err(err).Msg("request lock unavailable, continuing without it")
		return func() {}, true
	}
	if !acquired {
		c.JSON(http.StatusConflict, utils.H{"error": "request_id is already being processed"})
		return nil, false
	}
	return func() {
		if err := h.locker.ReleaseRequestLock(context.WithoutCancel(ctx), requestID, token); err != nil {
			log.Warn().Err(err).Msg("failed to release request lock")
		}
	}, true
}

func (h *AnalysisHandler) writeInputError(ctx context.Context, c *app.RequestContext, e *InputError) {
	tracing.RecordHTTPError(trace.SpanFromContext(ctx), e, e.Status)
	c.JSON(e.Status, utils.H{"error": e.Message})
}

func (h *AnalysisHandler) writeServiceError(ctx context.Context, c *app.RequestContext, requestID string, err error, log zerolog.Logger) {
	span := trace.SpanFromContext(ctx)
	if tf, ok := processor.AsTotalFailure(err); ok {
		log.Warn().Strs("failed_files", tf.FailedFiles).Msg("total failure")
		tracing.RecordHTTPError(span, err, http.StatusUnprocessableEntity)
		c.JSON(http.StatusUnprocessableEntity, TotalFailureResponse{
			Message:     fmt.Sprintf("no resume could be processed successfully after %d attempts", tf.Retries),
			FailedFiles: tf.FailedFiles,
			RequestID:   requestID,
		})
		return
	}
	switch {
	case errors.Is(err, processor.ErrInvalidQuery):
		tracing.RecordHTTPError(span, err, http.StatusUnprocessableEntity)
		c.JSON(http.StatusUnprocessableEntity, utils.H{"error": "invalid query, provide a query relevant to resume analysis"})
	case errors.Is(err, processor.ErrMissingComponent):
		log.Error().Err(err).Msg("service dependency missing")
		tracing.RecordHTTPError(span, err, http.StatusServiceUnavailable)
		c.JSON(http.StatusServiceUnavailable, utils.H{"error": "service dependency unavailable"})
	default:
		log.Error().Err(err).Msg("analysis failed")
		tracing.RecordHTTPError(span, err, http.StatusInternalServerError)
		c.JSON(http.StatusInternalServerError, utils.H{"error": "internal server error"})
	}
}

func toRecordResponse(rec *types.AnalysisLogRecord) AnalysisRecordResponse {
	resp := AnalysisRecordResponse{
		RequestID:   rec.RequestID,
		UserID:      rec.UserID,
		Query:       rec.Query,
		Status:      rec.Status,
		FailedFiles: rec.FailedFiles,
		Timestamp:   rec.Timestamp,
	}
	switch rec.Status {
	case types.StatusTotalFailure:
		resp.Resultado = types.TotalFailureMarker
	case types.StatusCompleted:
		resp.Resultado = rec.Results
	}
	return resp
}
