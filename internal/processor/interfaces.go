package processor

import (
	"context"
	"time"

	"resume-analyzer/internal/types"
)

// TextExtractor 文本提取接口
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, filename string) types.ExtractionResult
}

// ContentValidator decides whether content is a resume. A non-nil error is an
// infrastructure failure and never a rejection.
type ContentValidator interface {
	Validate(ctx context.Context, content []byte, filename string) (bool, error)
}

// ResumeAnalyzer 简历评分接口，query 为空时为无查询模式
type ResumeAnalyzer interface {
	Analyze(ctx context.Context, text, query string) types.AnalysisResult
}

type QueryValidator interface {
	ValidateQuery(ctx context.Context, query string) bool
}

// AnalysisCache 分析结果缓存（Redis）
type AnalysisCache interface {
	GetAnalysis(ctx context.Context, key string) (types.AnalysisResult, bool, error)
	SetAnalysis(ctx context.Context, key string, result types.AnalysisResult, ttl time.Duration) error
}

// RequestLogSink 请求日志持久化
type RequestLogSink interface {
	AppendLog(ctx context.Context, record types.AnalysisLogRecord) error
	FindLog(ctx context.Context, requestID string) (*types.AnalysisLogRecord, error)
}

// FileArchive 上传文件归档
type FileArchive interface {
	ArchiveResume(ctx context.Context, requestID string, file types.UploadedFile) (string, error)
	FetchResume(ctx context.Context, objectKey string) ([]byte, error)
}

// EventPublisher 分析事件与异步任务发布
type EventPublisher interface {
	PublishAnalysisEvent(ctx context.Context, event types.AnalysisEvent) error
	PublishAnalysisJob(ctx context.Context, job types.AnalysisJob) error
}
