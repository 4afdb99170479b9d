package processor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
	"resume-analyzer/pkg/utils"
)

var tracer = otel.Tracer("resume-analyzer/processor")

// Pipeline runs one file through extract → validate → analyze. Blocking steps are
// executed on the shared worker pool.
type Pipeline struct {
	comps    Components
	settings Settings
	pool     *WorkerPool
	logger   zerolog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPipeline 创建单文件处理流水线。pool 由调用方持有并负责关闭。
func NewPipeline(comps Components, settings Settings, pool *WorkerPool) (*Pipeline, error) {
	if comps.Extractor == nil {
		return nil, fmt.Errorf("%w: extractor", ErrMissingComponent)
	}
	if comps.Analyzer == nil {
		return nil, fmt.Errorf("%w: analyzer", ErrMissingComponent)
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: worker pool", ErrMissingComponent)
	}
	settings = settings.normalized()
	return &Pipeline{
		comps:    comps,
		settings: settings,
		pool:     pool,
		logger:   settings.Logger.With().Str("component", "pipeline").Logger(),
		sleep:    sleepCtx,
	}, nil
}

// Process always returns exactly one outcome for file.
func (p *Pipeline) Process(ctx context.Context, file types.UploadedFile, query string) types.FileOutcome {
	logger := p.logger.With().Str("filename", file.Filename).Logger()

	if len(file.Data) == 0 {
		return failureOutcome(newEmptyFileError(file.Filename))
	}

	text, perr := p.extract(ctx, file, logger)
	if perr != nil {
		logger.Warn().Str("stage", "extract").Msg(perr.Error())
		return failureOutcome(perr)
	}

	if perr := p.validate(ctx, file, text, logger); perr != nil {
		logger.Info().Str("stage", "validate").Msg(perr.Error())
		return failureOutcome(perr)
	}

	result, perr := p.analyze(ctx, file.Filename, text, query, logger)
	if perr != nil {
		logger.Warn().Str("stage", "analyze").Msg(perr.Error())
		return failureOutcome(perr)
	}

	return types.SuccessOutcome(file.Filename, result.ScoreValue(), result.Summary)
}

// extract retries panics and transient extraction errors with linear backoff.
func (p *Pipeline) extract(ctx context.Context, file types.UploadedFile, logger zerolog.Logger) (string, *PipelineError) {
	ctx, span := tracer.Start(ctx, "pipeline.extract", trace.WithAttributes(
		attribute.String("file.name", file.Filename),
		attribute.Int64("file.size", file.Size),
	))
	defer span.End()

	var lastDetail string
	for attempt := 0; attempt < p.settings.MaxRetries; attempt++ {
		var res types.ExtractionResult
		err := p.pool.Do(ctx, func(ctx context.Context) error {
			res = p.comps.Extractor.Extract(ctx, file.Data, file.Filename)
			return nil
		})

		switch {
		case err != nil:
			lastDetail = err.Error()
		case res.Ok():
			span.SetAttributes(attribute.Int("extract.attempts", attempt+1), attribute.Int("extract.chars", len(res.Text)))
			return res.Text, nil
		case res.Permanent:
			perr := newExtractionError(file.Filename, res.Err)
			tracing.RecordError(span, perr, tracing.ErrorTypeExtraction)
			return "", perr
		default:
			lastDetail = res.Err
		}

		logger.Debug().Int("attempt", attempt+1).Str("error", lastDetail).Msg("extraction attempt failed")
		if ctx.Err() != nil {
			break
		}
		if attempt < p.settings.MaxRetries-1 {
			if err := p.sleep(ctx, p.settings.ExtractionBackoff*time.Duration(attempt+1)); err != nil {
				break
			}
		}
	}

	perr := newExtractionError(file.Filename, lastDetail)
	tracing.RecordError(span, perr, tracing.ErrorTypeExtraction)
	return "", perr
}

// validate returns a PipelineError only for an explicit rejection.
func (p *Pipeline) validate(ctx context.Context, file types.UploadedFile, text string, logger zerolog.Logger) *PipelineError {
	if p.comps.Validator == nil || !p.settings.ContentValidation {
		return nil
	}

	ctx, span := tracer.Start(ctx, "pipeline.validate", trace.WithAttributes(
		attribute.String("file.name", file.Filename),
		attribute.Bool("file.is_image", file.IsImage()),
	))
	defer span.End()

	content := []byte(text)
	if file.IsImage() {
		content = file.Data
	}

	var accepted bool
	var verr error
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		accepted, verr = p.comps.Validator.Validate(ctx, content, file.Filename)
		return nil
	})
	if err == nil {
		err = verr
	}

	decision := types.Accepted()
	switch {
	case err != nil:
		decision = types.ValidationFailed(err.Error())
	case !accepted:
		decision = types.Rejected("not a resume")
	}
	span.SetAttributes(attribute.String("validation.decision", decision.Kind.String()))

	if decision.Kind == types.DecisionValidationFailed {
		tracing.RecordError(span, err, tracing.ErrorTypeLLM)
		logger.Warn().Err(err).Str("stage", "validate").Msg("content validation unavailable, continuing without it")
	}
	if !decision.Proceed() {
		return newRejectedError(file.Filename)
	}
	return nil
}

func (p *Pipeline) analyze(ctx context.Context, filename, text, query string, logger zerolog.Logger) (types.AnalysisResult, *PipelineError) {
	ctx, span := tracer.Start(ctx, "pipeline.analyze", trace.WithAttributes(
		attribute.String("file.name", filename),
		attribute.Bool("analysis.query_mode", query != ""),
		attribute.String("analysis.query", tracing.SafeQuery(query)),
	))
	defer span.End()

	cacheKey := ""
	if p.comps.Cache != nil && p.settings.CacheTTL > 0 {
		cacheKey = AnalysisCacheKey(text, query)
		cached, ok, err := p.comps.Cache.GetAnalysis(ctx, cacheKey)
		switch {
		case err != nil:
			logger.Debug().Err(err).Msg("analysis cache lookup failed")
		case ok && !cached.Failed():
			span.SetAttributes(attribute.Bool("analysis.cache_hit", true))
			return cached, nil
		}
	}

	var result types.AnalysisResult
	err := p.pool.Do(ctx, func(ctx context.Context) error {
		result = p.comps.Analyzer.Analyze(ctx, text, query)
		return nil
	})
	if err != nil {
		perr := newUnexpectedError(filename, "analyze", err)
		tracing.RecordError(span, perr, tracing.ErrorTypeInternal)
		return types.AnalysisResult{}, perr
	}
	if result.Failed() {
		perr := newAnalysisError(filename, result.Error)
		tracing.RecordError(span, perr, tracing.ErrorTypeLLM)
		return types.AnalysisResult{}, perr
	}

	if cacheKey != "" {
		if err := p.comps.Cache.SetAnalysis(ctx, cacheKey, result, p.settings.CacheTTL); err != nil {
			logger.Debug().Err(err).Msg("analysis cache write failed")
		}
	}
	return result, nil
}

// AnalysisCacheKey identifies an analysis by the extracted text and the query.
func AnalysisCacheKey(text, query string) string {
	return fmt.Sprintf(constants.KeyAnalysisCache, utils.CalculateMD5([]byte(text)), utils.CalculateMD5([]byte(query)))
}

func failureOutcome(err error) types.FileOutcome {
	var perr *PipelineError
	if errors.As(err, &perr) {
		return types.FailureOutcome(perr.Filename, perr.Error())
	}
	return types.FailureOutcome("", err.Error())
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
