package storage

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/config"
	"resume-analyzer/internal/storage/models"
	"resume-analyzer/internal/types"
)

type recordingOutbox struct {
	msgs []*models.OutboxMessage
}

func (r *recordingOutbox) EnqueueOutbox(_ context.Context, msg *models.OutboxMessage) error {
	r.msgs = append(r.msgs, msg)
	return nil
}

type recordingJobs struct {
	jobs []types.AnalysisJob
}

func (r *recordingJobs) PublishAnalysisJob(_ context.Context, job types.AnalysisJob) error {
	r.jobs = append(r.jobs, job)
	return nil
}

func testMQConfig() *config.RabbitMQConfig {
	return &config.RabbitMQConfig{
		AnalysisExchange:    "analysis.events.exchange",
		CompletedRoutingKey: "analysis.completed",
		FailedRoutingKey:    "analysis.failed",
		JobRoutingKey:       "analysis.requested",
	}
}

func TestOutboxEventPublisher_RoutesByStatus(t *testing.T) {
	outbox := &recordingOutbox{}
	p := NewOutboxEventPublisher(outbox, nil, testMQConfig())
	ctx := context.Background()

	require.NoError(t, p.PublishAnalysisEvent(ctx, types.AnalysisEvent{RequestID: "a", Status: types.StatusCompleted, SuccessCount: 2}))
	require.NoError(t, p.PublishAnalysisEvent(ctx, types.AnalysisEvent{RequestID: "b", Status: types.StatusTotalFailure}))

	require.Len(t, outbox.msgs, 2)
	assert.Equal(t, EventAnalysisCompleted, outbox.msgs[0].EventType)
	assert.Equal(t, "analysis.completed", outbox.msgs[0].TargetRoutingKey)
	assert.Equal(t, EventAnalysisFailed, outbox.msgs[1].EventType)
	assert.Equal(t, "analysis.failed", outbox.msgs[1].TargetRoutingKey)
	assert.Equal(t, "b", outbox.msgs[1].AggregateID)
	assert.Equal(t, models.OutboxStatusPending, outbox.msgs[1].Status)

	var decoded types.AnalysisEvent
	require.NoError(t, json.Unmarshal([]byte(outbox.msgs[0].Payload), &decoded))
	assert.Equal(t, 2, decoded.SuccessCount)
}

func TestOutboxEventPublisher_Jobs(t *testing.T) {
	jobs := &recordingJobs{}
	p := NewOutboxEventPublisher(&recordingOutbox{}, jobs, testMQConfig())

	require.NoError(t, p.PublishAnalysisJob(context.Background(), types.AnalysisJob{RequestID: "r"}))
	assert.Len(t, jobs.jobs, 1)

	noJobs := NewOutboxEventPublisher(&recordingOutbox{}, nil, testMQConfig())
	assert.Error(t, noJobs.PublishAnalysisJob(context.Background(), types.AnalysisJob{}))
}

func TestResumeObjectKey(t *testing.T) {
	key, err := ResumeObjectKey("req-1", ".PDF")
	require.NoError(t, err)
	assert.Regexp(t, `^resumes/req-1/[0-9a-f-]{36}\.pdf$`, key)

	other, err := ResumeObjectKey("req-1", ".PDF")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}

func TestGetContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", getContentType(".PDF"))
	assert.Equal(t, "image/png", getContentType(".png"))
	assert.Equal(t, "image/jpeg", getContentType(".jpeg"))
	assert.Equal(t, "application/octet-stream", getContentType(".docx"))
}
