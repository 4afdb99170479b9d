package processor

import (
	"time"

	"github.com/rs/zerolog"
)

// ComponentOpt 组件选项类型，仅改变 Components 结构体内的字段
type ComponentOpt func(*Components)

// SettingOpt 设置选项类型，仅改变 Settings 结构体内的字段
type SettingOpt func(*Settings)

// BuildComponents applies opts to an empty Components.
func BuildComponents(opts ...ComponentOpt) Components {
	var c Components
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// BuildSettings applies opts on top of DefaultSettings.
func BuildSettings(opts ...SettingOpt) Settings {
	s := DefaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// ----- 组件选项 -----

func WithExtractor(e TextExtractor) ComponentOpt {
	return func(c *Components) { c.Extractor = e }
}

func WithContentValidator(v ContentValidator) ComponentOpt {
	return func(c *Components) { c.Validator = v }
}

func WithAnalyzer(a ResumeAnalyzer) ComponentOpt {
	return func(c *Components) { c.Analyzer = a }
}

func WithQueryValidator(q QueryValidator) ComponentOpt {
	return func(c *Components) { c.QueryValidator = q }
}

func WithAnalysisCache(cache AnalysisCache) ComponentOpt {
	return func(c *Components) { c.Cache = cache }
}

// WithFileArchive 设置上传文件归档（MinIO）
func WithFileArchive(a FileArchive) ComponentOpt {
	return func(c *Components) { c.Archive = a }
}

// WithRequestLogSink 设置请求日志持久化（MySQL）
func WithRequestLogSink(s RequestLogSink) ComponentOpt {
	return func(c *Components) { c.Logs = s }
}

// WithEventPublisher 设置事件发布（RabbitMQ）
func WithEventPublisher(p EventPublisher) ComponentOpt {
	return func(c *Components) { c.Events = p }
}

// ----- 设置选项 -----

func WithMaxRetries(n int) SettingOpt {
	return func(s *Settings) { s.MaxRetries = n }
}

func WithMaxConcurrent(n int) SettingOpt {
	return func(s *Settings) { s.MaxConcurrent = n }
}

func WithWorkerPoolSize(n int) SettingOpt {
	return func(s *Settings) { s.WorkerPoolSize = n }
}

func WithExtractionBackoff(d time.Duration) SettingOpt {
	return func(s *Settings) { s.ExtractionBackoff = d }
}

func WithTopN(n int) SettingOpt {
	return func(s *Settings) { s.TopN = n }
}

func WithContentValidation(enabled bool) SettingOpt {
	return func(s *Settings) { s.ContentValidation = enabled }
}

func WithQueryValidation(enabled bool) SettingOpt {
	return func(s *Settings) { s.QueryValidation = enabled }
}

func WithCacheTTL(ttl time.Duration) SettingOpt {
	return func(s *Settings) { s.CacheTTL = ttl }
}

// WithLogger 设置日志记录器
func WithLogger(logger zerolog.Logger) SettingOpt {
	return func(s *Settings) { s.Logger = logger }
}
