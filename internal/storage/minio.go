package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/lifecycle"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
)

var minioTracer = otel.Tracer("resume-analyzer/storage/minio")

// ObjectStorage 对象存储接口
type ObjectStorage interface {
	// ArchiveResume 归档一份上传的简历，返回对象键
	ArchiveResume(ctx context.Context, requestID string, file types.UploadedFile) (string, error)

	// FetchResume 读取已归档的简历
	FetchResume(ctx context.Context, objectKey string) ([]byte, error)

	// GetPresignedURL 获取预签名URL
	GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)

	// DeleteResume 删除归档
	DeleteResume(ctx context.Context, objectKey string) error
}

// 确保MinIO实现了ObjectStorage接口
var _ ObjectStorage = (*MinIO)(nil)

// MinIO 提供对象存储功能
type MinIO struct {
	client *minio.Client
	cfg    *config.MinIOConfig
	bucket string
	logger zerolog.Logger
}

// NewMinIO 创建MinIO客户端
func NewMinIO(cfg *config.MinIOConfig, logger zerolog.Logger) (*MinIO, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MinIO配置不能为空")
	}
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("MinIO存储桶名称不能为空")
	}
	logger.Debug().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("initializing MinIO client")

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("创建MinIO客户端失败: %w", err)
	}

	m := &MinIO{
		client: client,
		cfg:    cfg,
		bucket: cfg.BucketName,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := m.ensureBucketExists(ctx, m.bucket, cfg.Location); err != nil {
		return nil, fmt.Errorf("确保简历存储桶 %s 存在失败: %w", m.bucket, err)
	}

	// 设置生命周期规则
	if cfg.ResumeExpireDays > 0 {
		if err := m.setupBucketLifecycle(ctx, m.bucket, "expire-archived-resumes", cfg.ResumeExpireDays); err != nil {
			logger.Warn().Err(err).Msg("failed to set up lifecycle rules")
		}
	}

	logger.Info().Str("endpoint", cfg.Endpoint).Str("bucket", m.bucket).Msg("MinIO client initialized")
	return m, nil
}

// ensureBucketExists 确保存储桶存在
func (m *MinIO) ensureBucketExists(ctx context.Context, bucketName, location string) error {
	exists, err := m.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("检查存储桶 %s 是否存在时出错: %w", bucketName, err)
	}
	if exists {
		return nil
	}
	m.logger.Info().Str("bucket", bucketName).Msg("bucket does not exist, creating")
	if err := m.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{Region: location}); err != nil {
		return fmt.Errorf("创建存储桶 %s 失败: %w", bucketName, err)
	}
	return nil
}

// setupBucketLifecycle 为归档前缀设置过期规则
func (m *MinIO) setupBucketLifecycle(ctx context.Context, bucketName, ruleID string, expiryDays int) error {
	cfg := lifecycle.NewConfiguration()
	cfg.Rules = []lifecycle.Rule{
		{
			ID:         ruleID,
			Status:     "Enabled",
			RuleFilter: lifecycle.Filter{Prefix: constants.ResumeObjectPrefix + "/"},
			Expiration: lifecycle.Expiration{
				Days: lifecycle.ExpirationDays(expiryDays),
			},
		},
	}
	if err := m.client.SetBucketLifecycle(ctx, bucketName, cfg); err != nil {
		return err
	}
	m.logger.Debug().Str("bucket", bucketName).Int("expiry_days", expiryDays).Msg("lifecycle rule set")
	return nil
}

// ResumeObjectKey 构建归档对象键: resumes/<requestID>/<uuidv7><ext>
func ResumeObjectKey(requestID, ext string) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("生成对象标识失败: %w", err)
	}
	return path.Join(constants.ResumeObjectPrefix, requestID, id.String()+strings.ToLower(ext)), nil
}

// ArchiveResume 上传原始简历到存储桶
func (m *MinIO) ArchiveResume(ctx context.Context, requestID string, file types.UploadedFile) (string, error) {
	ctx, span := minioTracer.Start(ctx, "MinIO.ArchiveResume", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	objectKey, err := ResumeObjectKey(requestID, file.Ext)
	if err != nil {
		return "", err
	}
	span.SetAttributes(
		attribute.String("minio.bucket", m.bucket),
		attribute.String("minio.object_key", objectKey),
		attribute.Int64("minio.object_size", file.Size),
	)

	info, err := m.client.PutObject(ctx, m.bucket, objectKey, bytes.NewReader(file.Data), int64(len(file.Data)), minio.PutObjectOptions{
		ContentType:  getContentType(file.Ext),
		UserMetadata: map[string]string{"original-filename": file.Filename, "request-id": requestID},
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return "", fmt.Errorf("上传对象 %s/%s 失败: %w", m.bucket, objectKey, err)
	}

	m.logger.Debug().Str("object_key", objectKey).Str("etag", info.ETag).Int64("size", info.Size).Msg("resume archived")
	return objectKey, nil
}

// FetchResume 下载已归档的简历
func (m *MinIO) FetchResume(ctx context.Context, objectKey string) ([]byte, error) {
	ctx, span := minioTracer.Start(ctx, "MinIO.FetchResume", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("minio.bucket", m.bucket), attribute.String("minio.object_key", objectKey))

	obj, err := m.client.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return nil, fmt.Errorf("获取对象 %s/%s 失败: %w", m.bucket, objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeObjectStore)
		return nil, fmt.Errorf("读取对象 %s/%s 数据失败: %w", m.bucket, objectKey, err)
	}
	return data, nil
}

// GetPresignedURL 获取预签名URL
func (m *MinIO) GetPresignedURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error) {
	presignedURL, err := m.client.PresignedGetObject(ctx, m.bucket, objectKey, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("生成MinIO预签名URL失败: %w", err)
	}
	return presignedURL.String(), nil
}

// DeleteResume 删除归档的简历
func (m *MinIO) DeleteResume(ctx context.Context, objectKey string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("删除对象 %s 失败: %w", objectKey, err)
	}
	return nil
}

// 获取内容类型
func getContentType(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
