package storage

import (
	"context"
	"fmt"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/storage/models"
	"resume-analyzer/internal/types"
)

// Event types written to the outbox.
const (
	EventAnalysisCompleted = "analysis.completed"
	EventAnalysisFailed    = "analysis.failed"
)

// OutboxWriter 写入 outbox 表
type OutboxWriter interface {
	EnqueueOutbox(ctx context.Context, msg *models.OutboxMessage) error
}

// JobPublisher 投递异步任务
type JobPublisher interface {
	PublishAnalysisJob(ctx context.Context, job types.AnalysisJob) error
}

// OutboxEventPublisher 将分析事件写入 outbox，由中继转发到 RabbitMQ；任务直接投递
type OutboxEventPublisher struct {
	outbox OutboxWriter
	jobs   JobPublisher
	cfg    *config.RabbitMQConfig
}

func NewOutboxEventPublisher(outbox OutboxWriter, jobs JobPublisher, cfg *config.RabbitMQConfig) *OutboxEventPublisher {
	return &OutboxEventPublisher{outbox: outbox, jobs: jobs, cfg: cfg}
}

// PublishAnalysisEvent 写入一条待转发的终态事件
func (p *OutboxEventPublisher) PublishAnalysisEvent(ctx context.Context, event types.AnalysisEvent) error {
	eventType := EventAnalysisCompleted
	if event.Status == types.StatusTotalFailure {
		eventType = EventAnalysisFailed
	}
	msg, err := models.NewOutboxMessage(event.RequestID, eventType, p.cfg.AnalysisExchange, EventRoutingKey(p.cfg, event.Status), event)
	if err != nil {
		return err
	}
	return p.outbox.EnqueueOutbox(ctx, msg)
}

// PublishAnalysisJob 直接投递任务
func (p *OutboxEventPublisher) PublishAnalysisJob(ctx context.Context, job types.AnalysisJob) error {
	if p.jobs == nil {
		return fmt.Errorf("job publisher is not configured")
	}
	return p.jobs.PublishAnalysisJob(ctx, job)
}
