package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/pkg/agent"
)

func TestTokenBucket_AllowDrainsCapacity(t *testing.T) {
	tb := NewTokenBucket(60, 2)
	frozen := time.Now()
	tb.now = func() time.Time { return frozen }
	tb.lastRefillTime = frozen

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow(), "bucket should be empty after consuming its capacity")

	frozen = frozen.Add(time.Second)
	assert.True(t, tb.Allow(), "one token per second at 60 qpm")
}

func TestTokenBucket_DefaultCapacity(t *testing.T) {
	tb := NewTokenBucket(1, 0)
	assert.Equal(t, 1, tb.Available())
}

func TestTokenBucket_WaitHonorsContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryWithBackoff(t *testing.T) {
	t.Run("retries transient errors", func(t *testing.T) {
		tb := NewTokenBucket(6000, 10).WithRetryPolicy(time.Millisecond, 2)
		calls := 0
		err := tb.RetryWithBackoff(context.Background(), func() error {
			calls++
			if calls < 3 {
				return errors.New("status 429 Too Many Requests")
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry permanent errors", func(t *testing.T) {
		tb := NewTokenBucket(6000, 10).WithRetryPolicy(time.Millisecond, 2)
		calls := 0
		err := tb.RetryWithBackoff(context.Background(), func() error {
			calls++
			return errors.New("invalid api key")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero retries means single attempt", func(t *testing.T) {
		tb := NewTokenBucket(6000, 10).WithRetryPolicy(time.Millisecond, 0)
		calls := 0
		_ = tb.RetryWithBackoff(context.Background(), func() error {
			calls++
			return errors.New("timeout")
		})
		assert.Equal(t, 1, calls)
	})
}

func TestIsRetryableError(t *testing.T) {
	assert.False(t, IsRetryableError(nil))
	assert.True(t, IsRetryableError(&agent.APIError{StatusCode: 429, Status: "429 Too Many Requests"}))
	assert.True(t, IsRetryableError(errors.New("context deadline exceeded")))
	assert.False(t, IsRetryableError(&agent.APIError{StatusCode: 401, Status: "401 Unauthorized"}))
}

func TestRateLimitedChatModel_Generate(t *testing.T) {
	mock := agent.NewMockChatClient("true", nil)
	limited := WrapWithRateLimit(mock, "llama3-8b-8192", map[string]int{"llama3-8b-8192": 600}, 0)

	msg, err := limited.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	require.NoError(t, err)
	assert.Equal(t, "true", msg.Content)
	assert.Equal(t, 1, mock.CallCount())
}
