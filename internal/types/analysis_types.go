package types

import (
	"path/filepath"
	"strings"
	"time"
)

// UploadedFile 一次请求中上传的单个文件，仅在请求生命周期内存在
type UploadedFile struct {
	Filename string
	Data     []byte
	Size     int64
	Ext      string // lower-case, with leading dot
}

// NewUploadedFile builds an UploadedFile and derives its extension from the filename.
func NewUploadedFile(filename string, data []byte) UploadedFile {
	return UploadedFile{
		Filename: filename,
		Data:     data,
		Size:     int64(len(data)),
		Ext:      strings.ToLower(filepath.Ext(filename)),
	}
}

// IsImage reports whether the file is handled by direct image recognition.
func (f UploadedFile) IsImage() bool {
	switch f.Ext {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}

// ExtractionResult is either extracted text or the reason extraction failed.
type ExtractionResult struct {
	Text string
	Err  string
	// Permanent marks errors that cannot change on retry, e.g. an unsupported file type.
	Permanent bool
}

func ExtractedText(text string) ExtractionResult {
	return ExtractionResult{Text: text}
}

func ExtractionError(reason string) ExtractionResult {
	if reason == "" {
		reason = "extraction failed"
	}
	return ExtractionResult{Err: reason}
}

func PermanentExtractionError(reason string) ExtractionResult {
	r := ExtractionError(reason)
	r.Permanent = true
	return r
}

func (r ExtractionResult) Ok() bool {
	return r.Err == ""
}

// DecisionKind 内容校验的三态结果
type DecisionKind int

const (
	DecisionAccepted DecisionKind = iota
	DecisionRejected
	DecisionValidationFailed
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionAccepted:
		return "accepted"
	case DecisionRejected:
		return "rejected"
	case DecisionValidationFailed:
		return "validation_failed"
	}
	return "unknown"
}

type ValidationDecision struct {
	Kind   DecisionKind
	Reason string
}

func Accepted() ValidationDecision {
	return ValidationDecision{Kind: DecisionAccepted}
}

func Rejected(reason string) ValidationDecision {
	return ValidationDecision{Kind: DecisionRejected, Reason: reason}
}

func ValidationFailed(reason string) ValidationDecision {
	return ValidationDecision{Kind: DecisionValidationFailed, Reason: reason}
}

// Proceed is false only for an explicit rejection. Infrastructure failures are non-fatal.
func (d ValidationDecision) Proceed() bool {
	return d.Kind != DecisionRejected
}

// AnalysisKind 区分评分结果的三种形态
type AnalysisKind int

const (
	AnalysisScored      AnalysisKind = iota + 1 // query mode, numeric score 0-10
	AnalysisCategorized                         // no-query mode, seniority label
	AnalysisFailed
)

// AnalysisResult is a tagged union: check Kind before reading Score or Level.
type AnalysisResult struct {
	Kind    AnalysisKind `json:"kind"`
	Score   float64      `json:"score,omitempty"`
	Level   string       `json:"level,omitempty"`
	Summary string       `json:"summary,omitempty"`
	Error   string       `json:"error,omitempty"`
}

func ScoredAnalysis(score float64, summary string) AnalysisResult {
	return AnalysisResult{Kind: AnalysisScored, Score: score, Summary: summary}
}

func CategorizedAnalysis(level, summary string) AnalysisResult {
	return AnalysisResult{Kind: AnalysisCategorized, Level: level, Summary: summary}
}

func AnalysisError(message string) AnalysisResult {
	return AnalysisResult{Kind: AnalysisFailed, Error: message}
}

func (r AnalysisResult) Failed() bool {
	return r.Kind == AnalysisFailed
}

// ScoreValue returns the score as exposed to callers: float64 in query mode, string otherwise.
func (r AnalysisResult) ScoreValue() any {
	switch r.Kind {
	case AnalysisScored:
		return r.Score
	case AnalysisCategorized:
		return r.Level
	default:
		return nil
	}
}

// FileOutcome 单个文件的最终状态，每个输入文件恰好对应一个
type FileOutcome struct {
	Filename string `json:"filename"`
	Score    any    `json:"score,omitempty"`
	Summary  string `json:"summary,omitempty"`
	Error    string `json:"error,omitempty"`
	Success  bool   `json:"-"`
}

func SuccessOutcome(filename string, score any, summary string) FileOutcome {
	return FileOutcome{Filename: filename, Score: score, Summary: summary, Success: true}
}

func FailureOutcome(filename, reason string) FileOutcome {
	return FileOutcome{Filename: filename, Error: reason}
}

// RequestResult is the externally visible artifact of one analysis request.
type RequestResult struct {
	RequestID string        `json:"request_id"`
	Results   []FileOutcome `json:"results"`
}

// Request log statuses.
const (
	StatusQueued       = "queued"
	StatusProcessing   = "processing"
	StatusCompleted    = "completed"
	StatusTotalFailure = "total_failure"
)

// TotalFailureMarker is stored in place of the result list when no file succeeded.
const TotalFailureMarker = "falha_total"

// AnalysisLogRecord is what the persistence sink stores once per request.
type AnalysisLogRecord struct {
	RequestID   string        `json:"request_id"`
	UserID      string        `json:"user_id"`
	Query       *string       `json:"query"`
	Status      string        `json:"status"`
	Results     []FileOutcome `json:"resultado,omitempty"`
	FailedFiles []string      `json:"failed_files,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}

// ArchivedFile 已归档到对象存储的上传文件
type ArchivedFile struct {
	Filename  string `json:"filename"`
	ObjectKey string `json:"object_key"`
	Size      int64  `json:"size"`
}

// AnalysisJob is the queued form of an asynchronous analysis request.
type AnalysisJob struct {
	RequestID   string         `json:"request_id"`
	UserID      string         `json:"user_id"`
	Query       string         `json:"query,omitempty"`
	Files       []ArchivedFile `json:"files"`
	SubmittedAt time.Time      `json:"submitted_at"`
}

// AnalysisEvent is published once a request reaches a terminal state.
type AnalysisEvent struct {
	RequestID    string    `json:"request_id"`
	UserID       string    `json:"user_id"`
	Status       string    `json:"status"`
	HasQuery     bool      `json:"has_query"`
	TotalFiles   int       `json:"total_files"`
	SuccessCount int       `json:"success_count"`
	FailedFiles  []string  `json:"failed_files,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}
