package constants

import "time"

// Request limits.
const (
	MaxFiles           = 20
	MaxFileSize        = 10 * 1024 * 1024
	MaxUserIDLength    = 50
	MaxQueryLength     = 2500
	MaxRequestBodySize = MaxFiles*MaxFileSize + 1024*1024
)

// AllowedExtensions 允许上传的文件扩展名
var AllowedExtensions = []string{".pdf", ".png", ".jpg", ".jpeg"}

const (
	// RequestLockTTL bounds how long a request_id stays locked if the holder dies.
	RequestLockTTL = 10 * time.Minute

	// ResumeObjectPrefix MinIO 中归档简历的对象前缀
	ResumeObjectPrefix = "resumes"

	// Async job processing
	AnalysisJobTimeout = 15 * time.Minute
)
