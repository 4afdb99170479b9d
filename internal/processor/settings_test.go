package processor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuildSettings(t *testing.T) {
	s := BuildSettings(
		WithMaxRetries(5),
		WithMaxConcurrent(2),
		WithTopN(3),
		WithExtractionBackoff(time.Second),
		WithQueryValidation(false),
		WithCacheTTL(0),
	)
	assert.Equal(t, 5, s.MaxRetries)
	assert.Equal(t, 2, s.MaxConcurrent)
	assert.Equal(t, 3, s.TopN)
	assert.Equal(t, time.Second, s.ExtractionBackoff)
	assert.False(t, s.QueryValidation)
	assert.True(t, s.ContentValidation)
	assert.Equal(t, time.Duration(0), s.CacheTTL)
}

func TestSettingsNormalized(t *testing.T) {
	s := Settings{MaxConcurrent: 4, ExtractionBackoff: -time.Second, CacheTTL: -1}.normalized()
	assert.Equal(t, 3, s.MaxRetries)
	assert.Equal(t, 4, s.MaxConcurrent)
	assert.Equal(t, 8, s.WorkerPoolSize)
	assert.Equal(t, 5, s.TopN)
	assert.Equal(t, time.Duration(0), s.ExtractionBackoff)
	assert.Equal(t, time.Duration(0), s.CacheTTL)
}
