package processor

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Settings 处理流水线的全部可调参数，由配置层显式构造后注入
type Settings struct {
	MaxRetries        int           // extraction and LLM retry budget
	MaxConcurrent     int           // admission gate size
	WorkerPoolSize    int           // shared pool for blocking steps
	ExtractionBackoff time.Duration // multiplied by (attempt+1)
	TopN              int           // ranking cut-off in query mode
	ContentValidation bool
	QueryValidation   bool
	CacheTTL          time.Duration // 0 disables the analysis cache
	Logger            zerolog.Logger
}

// DefaultSettings mirrors the production defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxRetries:        3,
		MaxConcurrent:     5,
		WorkerPoolSize:    10,
		ExtractionBackoff: 500 * time.Millisecond,
		TopN:              5,
		ContentValidation: true,
		QueryValidation:   true,
		CacheTTL:          24 * time.Hour,
		Logger:            log.Logger,
	}
}

// normalized replaces non-positive limits with their defaults.
func (s Settings) normalized() Settings {
	d := DefaultSettings()
	if s.MaxRetries <= 0 {
		s.MaxRetries = d.MaxRetries
	}
	if s.MaxConcurrent <= 0 {
		s.MaxConcurrent = d.MaxConcurrent
	}
	if s.WorkerPoolSize <= 0 {
		s.WorkerPoolSize = 2 * s.MaxConcurrent
	}
	if s.ExtractionBackoff < 0 {
		s.ExtractionBackoff = 0
	}
	if s.TopN <= 0 {
		s.TopN = d.TopN
	}
	if s.CacheTTL < 0 {
		s.CacheTTL = 0
	}
	return s
}

// Components 聚合流水线依赖，便于集中管理和测试替换。
// Extractor and Analyzer are required, everything else is optional.
type Components struct {
	Extractor      TextExtractor
	Validator      ContentValidator
	Analyzer       ResumeAnalyzer
	QueryValidator QueryValidator
	Cache          AnalysisCache

	Archive FileArchive
	Logs    RequestLogSink
	Events  EventPublisher
}
