package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
	"resume-analyzer/pkg/utils"
)

// ErrLogNotFound is returned by Lookup for an unknown request id.
var ErrLogNotFound = errors.New("analysis request not found")

// AnalysisRequest 一次分析请求（已通过输入校验）
type AnalysisRequest struct {
	RequestID string
	UserID    string
	Query     string // blank means no-query mode
	Files     []types.UploadedFile
}

// AnalysisService is the entry point used by the HTTP layer, the job consumer and the CLI.
type AnalysisService struct {
	orchestrator *Orchestrator
	comps        Components
	settings     Settings
	logger       zerolog.Logger
	now          func() time.Time
}

// NewAnalysisService wires the orchestrator and the optional sinks.
func NewAnalysisService(comps Components, settings Settings) (*AnalysisService, error) {
	settings = settings.normalized()
	orch, err := NewOrchestrator(comps, settings)
	if err != nil {
		return nil, err
	}
	return &AnalysisService{
		orchestrator: orch,
		comps:        comps,
		settings:     settings,
		logger:       settings.Logger.With().Str("component", "analysis_service").Logger(),
		now:          time.Now,
	}, nil
}

// Close releases the shared worker pool.
func (s *AnalysisService) Close() {
	s.orchestrator.Close()
}

// CheckQuery applies the query validation gate. A blank query always passes.
func (s *AnalysisService) CheckQuery(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)
	if query == "" || !s.settings.QueryValidation || s.comps.QueryValidator == nil {
		return nil
	}
	if !s.comps.QueryValidator.ValidateQuery(ctx, query) {
		return ErrInvalidQuery
	}
	return nil
}

// Analyze runs a request synchronously. It returns ErrInvalidQuery, a *TotalFailureError
// or the ranked result; per-file failures are never returned as errors.
func (s *AnalysisService) Analyze(ctx context.Context, req AnalysisRequest) (types.RequestResult, error) {
	req.Query = strings.TrimSpace(req.Query)
	ctx, span := tracer.Start(ctx, "AnalysisService.Analyze", trace.WithAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("request.user_id", tracing.SafeAttributeValue("user_id", req.UserID, tracing.DefaultMaxLength)),
		attribute.Int("request.files", len(req.Files)),
		attribute.Bool("request.has_query", req.Query != ""),
	))
	defer span.End()

	logger := s.logger.With().Str("request_id", req.RequestID).Logger()

	if err := s.CheckQuery(ctx, req.Query); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		logger.Info().Msg("query rejected by validator")
		return types.RequestResult{}, err
	}

	s.archiveAll(ctx, req, logger)
	return s.run(ctx, req, logger)
}

// run executes the batch and records it. Files are assumed to be archived already.
func (s *AnalysisService) run(ctx context.Context, req AnalysisRequest, logger zerolog.Logger) (types.RequestResult, error) {
	start := s.now()
	outcomes := s.orchestrator.ProcessAll(ctx, req.Files, req.Query)
	result, err := Finalize(req.RequestID, outcomes, req.Query, s.settings.MaxRetries, s.settings.TopN)

	record := types.AnalysisLogRecord{
		RequestID: req.RequestID,
		UserID:    req.UserID,
		Query:     utils.StringPtr(req.Query),
		Timestamp: s.now().UTC(),
	}

	event := types.AnalysisEvent{
		RequestID:  req.RequestID,
		UserID:     req.UserID,
		HasQuery:   req.Query != "",
		TotalFiles: len(req.Files),
		OccurredAt: record.Timestamp,
	}
	for _, o := range outcomes {
		if o.Success {
			event.SuccessCount++
		} else {
			event.FailedFiles = append(event.FailedFiles, o.Filename)
		}
	}

	if tf, ok := AsTotalFailure(err); ok {
		record.Status = types.StatusTotalFailure
		record.FailedFiles = tf.FailedFiles
		event.Status = types.StatusTotalFailure
		logger.Error().Strs("failed_files", tf.FailedFiles).Int("retries", tf.Retries).Msg("total failure: no file processed")
	} else {
		record.Status = types.StatusCompleted
		record.Results = result.Results
		event.Status = types.StatusCompleted
		logger.Info().
			Int("files", len(req.Files)).
			Int("succeeded", event.SuccessCount).
			Int("returned", len(result.Results)).
			Dur("elapsed", s.now().Sub(start)).
			Msg("analysis finished")
	}

	s.recordLog(ctx, record, logger)
	s.publishEvent(ctx, event, logger)
	return result, err
}

// Submit archives the files and queues the request for the job consumer.
func (s *AnalysisService) Submit(ctx context.Context, req AnalysisRequest) error {
	if s.comps.Archive == nil || s.comps.Events == nil {
		return fmt.Errorf("%w: async mode needs file archive and event publisher", ErrMissingComponent)
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := s.CheckQuery(ctx, req.Query); err != nil {
		return err
	}

	job := types.AnalysisJob{
		RequestID:   req.RequestID,
		UserID:      req.UserID,
		Query:       req.Query,
		SubmittedAt: s.now().UTC(),
	}
	for _, f := range req.Files {
		key, err := s.comps.Archive.ArchiveResume(ctx, req.RequestID, f)
		if err != nil {
			return fmt.Errorf("archive %s: %w", f.Filename, err)
		}
		job.Files = append(job.Files, types.ArchivedFile{Filename: f.Filename, ObjectKey: key, Size: f.Size})
	}

	if s.comps.Logs != nil {
		rec := types.AnalysisLogRecord{
			RequestID: req.RequestID,
			UserID:    req.UserID,
			Status:    types.StatusQueued,
			Query:     utils.StringPtr(req.Query),
			Timestamp: job.SubmittedAt,
		}
		if err := s.comps.Logs.AppendLog(ctx, rec); err != nil {
			s.logger.Warn().Err(err).Str("request_id", req.RequestID).Msg("failed to record queued request")
		}
	}

	if err := s.comps.Events.PublishAnalysisJob(ctx, job); err != nil {
		return fmt.Errorf("publish analysis job: %w", err)
	}
	s.logger.Info().Str("request_id", req.RequestID).Int("files", len(job.Files)).Msg("analysis job queued")
	return nil
}

// RunJob processes a queued job. Files that cannot be fetched become empty uploads
// and fail in the pipeline like any other unreadable file.
func (s *AnalysisService) RunJob(ctx context.Context, job types.AnalysisJob) (types.RequestResult, error) {
	if s.comps.Archive == nil {
		return types.RequestResult{}, fmt.Errorf("%w: file archive", ErrMissingComponent)
	}
	logger := s.logger.With().Str("request_id", job.RequestID).Logger()

	files := make([]types.UploadedFile, len(job.Files))
	for i, af := range job.Files {
		data, err := s.comps.Archive.FetchResume(ctx, af.ObjectKey)
		if err != nil {
			logger.Warn().Err(err).Str("filename", af.Filename).Str("object_key", af.ObjectKey).Msg("failed to fetch archived resume")
		}
		files[i] = types.NewUploadedFile(af.Filename, data)
	}

	req := AnalysisRequest{RequestID: job.RequestID, UserID: job.UserID, Query: strings.TrimSpace(job.Query), Files: files}
	return s.run(ctx, req, logger)
}

// Lookup returns the stored record of a request.
func (s *AnalysisService) Lookup(ctx context.Context, requestID string) (*types.AnalysisLogRecord, error) {
	if s.comps.Logs == nil {
		return nil, fmt.Errorf("%w: request log sink", ErrMissingComponent)
	}
	rec, err := s.comps.Logs.FindLog(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrLogNotFound
	}
	return rec, nil
}

// archiveAll uploads files concurrently; failures are logged and never block analysis.
func (s *AnalysisService) archiveAll(ctx context.Context, req AnalysisRequest, logger zerolog.Logger) {
	if s.comps.Archive == nil || len(req.Files) == 0 {
		return
	}
	var wg sync.WaitGroup
	for _, f := range req.Files {
		if len(f.Data) == 0 {
			continue
		}
		wg.Add(1)
		go func(f types.UploadedFile) {
			defer wg.Done()
			if _, err := s.comps.Archive.ArchiveResume(ctx, req.RequestID, f); err != nil {
				logger.Warn().Err(err).Str("filename", f.Filename).Msg("failed to archive resume")
			}
		}(f)
	}
	wg.Wait()
}

func (s *AnalysisService) recordLog(ctx context.Context, record types.AnalysisLogRecord, logger zerolog.Logger) {
	if s.comps.Logs == nil {
		return
	}
	if err := s.comps.Logs.AppendLog(ctx, record); err != nil {
		logger.Error().Err(err).Msg("failed to persist analysis log")
	}
}

func (s *AnalysisService) publishEvent(ctx context.Context, event types.AnalysisEvent, logger zerolog.Logger) {
	if s.comps.Events == nil {
		return
	}
	if err := s.comps.Events.PublishAnalysisEvent(ctx, event); err != nil {
		logger.Warn().Err(err).Str("status", event.Status).Msg("failed to publish analysis event")
	}
}
