package main

import (
	"context"
	"errors"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"

	"resume-analyzer/internal/api/handler"
	"resume-analyzer/internal/api/router"
	"resume-analyzer/internal/bootstrap"
	"resume-analyzer/internal/config"
	"resume-analyzer/internal/constants"
	"resume-analyzer/internal/logger"
	"resume-analyzer/internal/outbox"
	"resume-analyzer/internal/processor"
	"resume-analyzer/internal/storage"
	"resume-analyzer/internal/tracing"
	"resume-analyzer/internal/types"
)

const version = "1.0.0"

func main() {
	configPath := pflag.StringP("config", "c", "", "配置文件路径 (默认自动查找 config.yaml)")
	pflag.Parse()

	// 1. 加载配置文件
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置文件失败")
	}

	// 2. 初始化日志系统
	logCloser := initLogger(cfg)
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 链路追踪
	shutdownTracing, err := tracing.InitProvider(ctx, cfg.Tracing.ProviderConfig(version))
	if err != nil {
		logger.Warn().Err(err).Msg("初始化链路追踪失败，继续运行")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(shutdownCtx)
		}()
	}

	// 4. 初始化存储管理器，不可用的组件降级为空
	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("存储组件全部不可用，以无持久化模式运行")
		storageManager = &storage.Storage{}
	}
	defer storageManager.Close()

	// 5. 分析服务
	svc, err := bootstrap.NewAnalysisService(ctx, cfg, storageManager.ComponentOpts(&cfg.RabbitMQ)...)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化分析服务失败")
	}
	defer svc.Close()

	// 6. outbox 中继与异步任务消费者
	if storageManager.MySQL != nil && storageManager.RabbitMQ != nil {
		relay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ,
			logger.Component("outbox"), config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second))
		relay.Start(ctx)
		defer relay.Stop()
	}
	var consumersDone <-chan struct{}
	if storageManager.RabbitMQ != nil && storageManager.MinIO != nil {
		consumersDone, err = storageManager.RabbitMQ.StartJobConsumer(ctx, cfg.RabbitMQ.ConsumerWorkers, jobHandler(svc))
		if err != nil {
			logger.Error().Err(err).Msg("启动分析任务消费者失败，异步模式不可用")
		}
	}

	// 7. 创建HTTP服务器
	tracer, tracerCfg := hertztracing.NewServerTracer()
	maxBody := cfg.Limits.MaxFiles*int(cfg.Limits.MaxFileSize()) + 1024*1024
	if maxBody <= 0 {
		maxBody = constants.MaxRequestBodySize
	}
	h := server.Default(
		tracer,
		server.WithHostPorts(cfg.Server.Address),
		server.WithMaxRequestBodySize(maxBody),
		server.WithExitWaitTime(5*time.Second),
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))

	opts := []handler.Option{}
	if storageManager.Redis != nil {
		opts = append(opts, handler.WithRequestLocker(storageManager.Redis))
	}
	if storageManager.MySQL != nil {
		opts = append(opts, handler.WithHealthChecker(storageManager.MySQL))
	}
	analysisHandler := handler.NewAnalysisHandler(svc, handler.LimitsFromConfig(cfg.Limits), opts...)
	router.RegisterRoutes(h, analysisHandler, cfg.Server.APIKeys)

	// 8. 启动HTTP服务器
	go func() {
		if err := h.Run(); err != nil {
			logger.Fatal().Err(err).Msg("启动HTTP服务器失败")
		}
	}()
	logger.Info().Str("address", cfg.Server.Address).Msg("HTTP服务器已启动")

	// 9. 等待终止信号
	<-ctx.Done()
	logger.Info().Msg("接收到终止信号，正在优雅退出...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("服务器关闭失败")
	}
	if consumersDone != nil {
		select {
		case <-consumersDone:
		case <-shutdownCtx.Done():
			logger.Warn().Msg("等待任务消费者退出超时")
		}
	}

	logger.Info().Msg("优雅退出完成")
}

func initLogger(cfg *config.Config) io.Closer {
	closer := logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
		File:         cfg.Logger.File,
		MaxSizeMB:    cfg.Logger.MaxSizeMB,
		MaxBackups:   cfg.Logger.MaxBackups,
	})

	// 设置一些全局的字段
	logger.Logger = logger.Logger.With().
		Str("app", "resume-analyzer").
		Str("version", version).
		Logger()
	return closer
}

// jobHandler 处理一条异步分析任务。整批失败已被记录，不重新入队
func jobHandler(svc *processor.AnalysisService) func(ctx context.Context, job types.AnalysisJob) error {
	return func(ctx context.Context, job types.AnalysisJob) error {
		ctx, cancel := context.WithTimeout(ctx, constants.AnalysisJobTimeout)
		defer cancel()

		result, err := svc.RunJob(ctx, job)
		if errors.Is(err, processor.ErrTotalFailure) {
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info().Str("request_id", job.RequestID).Int("results", len(result.Results)).Msg("异步分析任务完成")
		return nil
	}
}
