package processor

import (
	"errors"
	"fmt"
	"strings"
)

// 定义基础错误类型
var (
	ErrEmptyFile        = errors.New("empty file")
	ErrExtractionFailed = errors.New("ocr error")
	ErrRejected         = errors.New("rejected: not a resume")
	ErrAnalysisFailed   = errors.New("analysis error")
	ErrUnexpected       = errors.New("unexpected error")

	// ErrTotalFailure matches *TotalFailureError via errors.Is.
	ErrTotalFailure = errors.New("no file could be processed")
	// ErrInvalidQuery is returned when the query validator refuses the query.
	ErrInvalidQuery = errors.New("invalid query: not suitable for resume analysis")
	// ErrMissingComponent means a required pipeline component was not configured.
	ErrMissingComponent = errors.New("missing pipeline component")
)

// PipelineError 单个文件在某个阶段的失败。Error() is the text shown to callers.
type PipelineError struct {
	Filename string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *PipelineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.BaseErr, e.Detail)
	}
	return e.BaseErr.Error()
}

func (e *PipelineError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *PipelineError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

// 错误构造函数
func newEmptyFileError(filename string) *PipelineError {
	return &PipelineError{Filename: filename, Op: "read", BaseErr: ErrEmptyFile}
}

func newExtractionError(filename, detail string) *PipelineError {
	return &PipelineError{Filename: filename, Op: "extract", BaseErr: ErrExtractionFailed, Detail: detail}
}

func newRejectedError(filename string) *PipelineError {
	return &PipelineError{Filename: filename, Op: "validate", BaseErr: ErrRejected}
}

func newAnalysisError(filename, detail string) *PipelineError {
	return &PipelineError{Filename: filename, Op: "analyze", BaseErr: ErrAnalysisFailed, Detail: detail}
}

func newUnexpectedError(filename, op string, cause any) *PipelineError {
	return &PipelineError{Filename: filename, Op: op, BaseErr: ErrUnexpected, Detail: fmt.Sprint(cause)}
}

// TotalFailureError is returned when not a single file of a request succeeded.
type TotalFailureError struct {
	RequestID   string
	FailedFiles []string
	Retries     int
}

func (e *TotalFailureError) Error() string {
	return fmt.Sprintf("%s (request %s, retries %d): %s",
		ErrTotalFailure, e.RequestID, e.Retries, strings.Join(e.FailedFiles, ", "))
}

func (e *TotalFailureError) Is(target error) bool {
	return target == ErrTotalFailure
}

// AsTotalFailure unwraps err into a *TotalFailureError.
func AsTotalFailure(err error) (*TotalFailureError, bool) {
	var tf *TotalFailureError
	if errors.As(err, &tf) {
		return tf, true
	}
	return nil, false
}
