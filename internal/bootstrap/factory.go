// Package bootstrap 根据配置组装分析服务，供 HTTP 服务与命令行工具共用
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"

	"resume-analyzer/internal/analysis"
	"resume-analyzer/internal/config"
	"resume-analyzer/internal/extractor"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/validator"
	"resume-analyzer/pkg/agent"
	"resume-analyzer/pkg/ratelimit"
)

// ChatModels 文本模型与视觉模型各自独立限流，底层共用一个 HTTP 客户端
type ChatModels struct {
	Text   model.BaseChatModel
	Vision model.BaseChatModel
}

// NewChatModels 创建 Groq 聊天模型并按模型 QPM 包装限流代理
func NewChatModels(cfg *config.Config) (ChatModels, error) {
	chatLogger := logger.Component("chat_model")
	base, err := agent.NewChatModel(agent.ChatModelConfig{
		APIKey:      cfg.Groq.APIKey,
		APIURL:      cfg.Groq.APIURL,
		Model:       cfg.Groq.Model,
		Temperature: float32(cfg.Groq.Temperature),
		MaxTokens:   cfg.Groq.MaxTokens,
		Timeout:     time.Duration(cfg.Groq.TimeoutSeconds) * time.Second,
		Logger:      &chatLogger,
	})
	if err != nil {
		return ChatModels{}, fmt.Errorf("创建Groq聊天模型失败: %w", err)
	}
	return ChatModels{
		Text:   ratelimit.WrapWithRateLimit(base, cfg.Groq.Model, cfg.ModelQPMLimits, cfg.Groq.QPM),
		Vision: ratelimit.WrapWithRateLimit(base, cfg.Groq.VisionModel, cfg.ModelQPMLimits, cfg.Groq.QPM),
	}, nil
}

// NewExtractor 组装文本提取器: eino PDF 文本层 -> pdfcpu 栅格化 -> 视觉模型 OCR
func NewExtractor(ctx context.Context, cfg *config.Config, vision model.BaseChatModel) (*extractor.Extractor, error) {
	reader, err := parser.NewEinoPDFTextReader(ctx, parser.WithPDFReaderLogger(logger.Component("pdf_reader")))
	if err != nil {
		return nil, fmt.Errorf("创建PDF文本读取器失败: %w", err)
	}
	ocr, err := parser.NewVisionOCR(vision, cfg.Groq.VisionModel,
		parser.WithOCRPreprocessing(cfg.Pipeline.PreprocessImages == nil || *cfg.Pipeline.PreprocessImages),
		parser.WithOCRLogger(logger.Component("vision_ocr")),
	)
	if err != nil {
		return nil, fmt.Errorf("创建OCR引擎失败: %w", err)
	}
	return extractor.New(reader, parser.NewPDFCPURasterizer(), ocr,
		extractor.WithLanguages(cfg.Pipeline.OCRLanguages),
		extractor.WithDirectTextThreshold(cfg.Pipeline.DirectTextThreshold),
		extractor.WithLogger(logger.Component("extractor")),
	), nil
}

// CollaboratorOpts 创建 LLM 协作者（提取、校验、评分）并返回处理器组件选项
func CollaboratorOpts(ctx context.Context, cfg *config.Config) ([]processor.ComponentOpt, error) {
	models, err := NewChatModels(cfg)
	if err != nil {
		return nil, err
	}
	ext, err := NewExtractor(ctx, cfg, models.Vision)
	if err != nil {
		return nil, err
	}

	retries := cfg.Pipeline.MaxRetries
	contentValidator := validator.NewContentValidator(models.Text,
		validator.WithVisionChat(models.Vision),
		validator.WithModels(cfg.Groq.Model, cfg.Groq.VisionModel),
		validator.WithMaxRetries(retries),
		validator.WithMaxTextChars(cfg.Pipeline.ValidatorTextLimit),
		validator.WithLogger(logger.Component("content_validator")),
	)
	queryValidator := validator.NewQueryValidator(models.Text,
		validator.WithQueryModel(cfg.Groq.Model),
		validator.WithQueryRetries(retries),
		validator.WithQueryLogger(logger.Component("query_validator")),
	)
	analyzer := analysis.NewAnalyzer(models.Text,
		analysis.WithModel(cfg.Groq.Model),
		analysis.WithTemperature(float32(cfg.Groq.Temperature)),
		analysis.WithMaxRetries(retries),
		analysis.WithLogger(logger.Component("analyzer")),
	)

	return []processor.ComponentOpt{
		processor.WithExtractor(ext),
		processor.WithContentValidator(contentValidator),
		processor.WithQueryValidator(queryValidator),
		processor.WithAnalyzer(analyzer),
	}, nil
}

// NewAnalysisService 组装分析服务。extra 追加存储类组件（缓存、日志、归档、事件）
func NewAnalysisService(ctx context.Context, cfg *config.Config, extra ...processor.ComponentOpt) (*processor.AnalysisService, error) {
	opts, err := CollaboratorOpts(ctx, cfg)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)
	settings := cfg.Pipeline.Settings(logger.Component("processor"))
	return processor.NewAnalysisService(processor.BuildComponents(opts...), settings)
}
