package logger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	closer := Init(Config{Level: "debug", Format: "json", File: path})

	l := Component("test")
	l.Info().Str("request_id", "req-1").Msg("hello")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"request_id":"req-1"`)
	assert.Contains(t, string(data), `"component":"test"`)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

func TestInitDefaultsToInfo(t *testing.T) {
	closer := Init(Config{Level: "nonsense"})
	defer closer.Close()
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}

func TestWithContext(t *testing.T) {
	Init(Config{Level: "info"})
	ctx := WithContext(context.Background())
	assert.NotNil(t, Ctx(ctx))
}
