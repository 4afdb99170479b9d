package handler

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/types"
)

// InputError 请求输入不合法，在进入处理流程前直接返回给调用方
type InputError struct {
	Status  int
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

func unprocessable(format string, args ...any) *InputError {
	return &InputError{Status: http.StatusUnprocessableEntity, Message: fmt.Sprintf(format, args...)}
}

// Limits 输入校验的上限
type Limits struct {
	MaxFiles          int
	MaxFileSize       int64
	MaxUserIDLength   int
	MaxQueryLength    int
	AllowedExtensions []string
}

// LimitsFromConfig 从配置生成校验上限
func LimitsFromConfig(cfg config.LimitsConfig) Limits {
	return Limits{
		MaxFiles:          cfg.MaxFiles,
		MaxFileSize:       cfg.MaxFileSize(),
		MaxUserIDLength:   cfg.MaxUserIDLength,
		MaxQueryLength:    cfg.MaxQueryLength,
		AllowedExtensions: cfg.AllowedExtensions,
	}
}

func (l Limits) allowed(ext string) bool {
	for _, a := range l.AllowedExtensions {
		if a == ext {
			return true
		}
	}
	return false
}

// ValidateFormInputs 校验 request_id / user_id / query 字段
func ValidateFormInputs(requestID, userID, query string, limits Limits) *InputError {
	id, err := uuid.Parse(strings.TrimSpace(requestID))
	if err != nil {
		return unprocessable("request_id must be a valid UUID")
	}
	if id.Version() != 4 {
		return unprocessable("request_id must be a version 4 UUID")
	}
	if strings.TrimSpace(userID) == "" {
		return unprocessable("user_id must not be empty")
	}
	if len(userID) > limits.MaxUserIDLength {
		return unprocessable("user_id too long, at most %d characters", limits.MaxUserIDLength)
	}
	if len(query) > limits.MaxQueryLength {
		return unprocessable("query too long, at most %d characters", limits.MaxQueryLength)
	}
	return nil
}

// ValidateFileHeaders 校验上传文件列表的数量、文件名、扩展名与大小
func ValidateFileHeaders(files []*multipart.FileHeader, limits Limits) *InputError {
	if len(files) == 0 {
		return unprocessable("at least one file must be uploaded")
	}
	if len(files) > limits.MaxFiles {
		return &InputError{Status: http.StatusRequestEntityTooLarge, Message: fmt.Sprintf("too many files, at most %d per request", limits.MaxFiles)}
	}
	for _, fh := range files {
		name := strings.TrimSpace(fh.Filename)
		if name == "" {
			return unprocessable("one of the files was sent without a name")
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext == "" {
			return &InputError{Status: http.StatusUnsupportedMediaType, Message: fmt.Sprintf("file '%s' has no extension", name)}
		}
		if !limits.allowed(ext) {
			return &InputError{
				Status:  http.StatusUnsupportedMediaType,
				Message: fmt.Sprintf("file '%s' has an unsupported format, use %s", name, strings.Join(limits.AllowedExtensions, ", ")),
			}
		}
		if fh.Size > limits.MaxFileSize {
			return &InputError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("file '%s' is too large, at most %dMB", name, limits.MaxFileSize/(1024*1024)),
			}
		}
	}
	return nil
}

// ParseAnalysisForm 读取并校验 multipart 表单，返回可直接交给 AnalysisService 的请求
func ParseAnalysisForm(c *app.RequestContext, limits Limits) (processor.AnalysisRequest, *InputError) {
	form, err := c.MultipartForm()
	if err != nil {
		return processor.AnalysisRequest{}, unprocessable("request must be multipart/form-data: %v", err)
	}

	requestID := formValue(form, "request_id")
	userID := formValue(form, "user_id")
	query := formValue(form, "query")
	if inputErr := ValidateFormInputs(requestID, userID, query, limits); inputErr != nil {
		return processor.AnalysisRequest{}, inputErr
	}

	headers := form.File["files"]
	if inputErr := ValidateFileHeaders(headers, limits); inputErr != nil {
		return processor.AnalysisRequest{}, inputErr
	}

	files := make([]types.UploadedFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readFileHeader(fh, limits.MaxFileSize)
		if err != nil {
			return processor.AnalysisRequest{}, unprocessable("failed to read file '%s': %v", fh.Filename, err)
		}
		if int64(len(data)) > limits.MaxFileSize {
			return processor.AnalysisRequest{}, &InputError{
				Status:  http.StatusRequestEntityTooLarge,
				Message: fmt.Sprintf("file '%s' is too large, at most %dMB", fh.Filename, limits.MaxFileSize/(1024*1024)),
			}
		}
		files = append(files, types.NewUploadedFile(strings.TrimSpace(fh.Filename), data))
	}

	return processor.AnalysisRequest{
		RequestID: strings.ToLower(strings.TrimSpace(requestID)),
		UserID:    strings.TrimSpace(userID),
		Query:     strings.TrimSpace(query),
		Files:     files,
	}, nil
}

func formValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// readFileHeader 读取文件内容，最多多读一个字节用于判断是否超限
func readFileHeader(fh *multipart.FileHeader, max int64) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, max+1))
}
