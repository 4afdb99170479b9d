package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/types"
	"resume-analyzer/pkg/agent"
)

func TestAnalyze_QueryMode(t *testing.T) {
	mock := agent.NewMockChatClient(wellFormed, nil)
	res := NewAnalyzer(mock).Analyze(context.Background(), "resume text", "Backend Go")

	require.Equal(t, types.AnalysisScored, res.Kind)
	assert.Equal(t, 8.0, res.Score)
	assert.Equal(t, 8.0, res.ScoreValue())

	msgs := mock.LastMessages()
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "Backend Go")
	opts := mock.LastOptions()
	assert.Equal(t, DefaultModel, *opts.Model)
	assert.InDelta(t, DefaultTemperature, *opts.Temperature, 0.0001)
}

func TestAnalyze_NoQueryMode(t *testing.T) {
	mock := agent.NewMockChatClient("Feedback:\nScore: Pleno\nResumo: Desenvolvedor pleno com foco em APIs REST.\nExtra comments: -", nil)
	res := NewAnalyzer(mock).Analyze(context.Background(), "resume text", "   ")

	require.Equal(t, types.AnalysisCategorized, res.Kind)
	assert.Equal(t, "Pleno", res.ScoreValue())
	assert.NotContains(t, mock.LastMessages()[1].Content, "REQUIREMENT")
}

func TestAnalyze_RetriesThenSucceeds(t *testing.T) {
	mock := agent.NewMockChatClientSequential([]agent.MockResponse{
		{Error: errors.New("connection reset")},
		{Content: "Feedback:\nScore: 9\nSummary: short"},
		{Content: wellFormed},
	})
	res := NewAnalyzer(mock).Analyze(context.Background(), "text", "Go")
	assert.Equal(t, types.AnalysisScored, res.Kind)
	assert.Equal(t, 3, mock.CallCount())
}

func TestAnalyze_ExhaustedRetries(t *testing.T) {
	mock := agent.NewMockChatClient("I refuse to follow the format", nil)
	res := NewAnalyzer(mock, WithMaxRetries(2)).Analyze(context.Background(), "text", "Go")

	require.True(t, res.Failed())
	assert.Contains(t, res.Error, "after 2 attempts")
	assert.Equal(t, 2, mock.CallCount())
}

func TestAnalyze_NilModel(t *testing.T) {
	res := NewAnalyzer(nil).Analyze(context.Background(), "text", "")
	assert.True(t, res.Failed())
}

func TestBuildMessages_KeepsResumeTextVerbatim(t *testing.T) {
	text := "Nome: \"Ana\"\nExperiência:\n- Go, 5 anos"

	msgs := BuildMessages(text, "backend \"Go\"")
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[1].Content, "RESUME TEXT:\n"+text+"\n---")
	assert.Contains(t, msgs[1].Content, "REQUIREMENT:\nbackend \"Go\"\n---")
	assert.NotContains(t, msgs[1].Content, `\n- Go`)

	msgs = BuildMessages(text, "  ")
	assert.Contains(t, msgs[1].Content, "RESUME TEXT:\n"+text+"\n---")
	assert.NotContains(t, msgs[1].Content, "REQUIREMENT:")
}
