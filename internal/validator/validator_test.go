package validator

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/pkg/agent"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 6, 6))))
	return buf.Bytes()
}

func TestInterpret(t *testing.T) {
	cases := map[string]verdict{
		"True":                       verdictTrue,
		"  true.\n":                  verdictTrue,
		"FALSE":                      verdictFalse,
		"The answer is false":        verdictFalse,
		"True or False, hard to say": verdictRetry,
		"I cannot decide":            verdictRetry,
		"":                           verdictRetry,
	}
	for reply, want := range cases {
		assert.Equal(t, want, interpret(reply), "reply %q", reply)
	}
}

func TestValidateText(t *testing.T) {
	t.Run("accepts on true", func(t *testing.T) {
		mock := agent.NewMockChatClient("True", nil)
		ok, err := NewContentValidator(mock).ValidateText(context.Background(), "Experiência: Go", "cv.pdf")
		require.NoError(t, err)
		assert.True(t, ok)

		opts := mock.LastOptions()
		require.NotNil(t, opts.Model)
		assert.Equal(t, DefaultTextModel, *opts.Model)
	})

	t.Run("retries ambiguous then rejects", func(t *testing.T) {
		mock := agent.NewMockChatClientSequential([]agent.MockResponse{
			{Content: "true and false"},
			{Content: "False"},
		})
		ok, err := NewContentValidator(mock).ValidateText(context.Background(), "nota fiscal", "nf.pdf")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 2, mock.CallCount())
	})

	t.Run("fails closed when budget exhausted", func(t *testing.T) {
		mock := agent.NewMockChatClientSequential([]agent.MockResponse{
			{Content: "maybe"},
			{Error: errors.New("503 Service Unavailable")},
			{Content: "TRUE/FALSE"},
			{Content: "True"},
		})
		ok, err := NewContentValidator(mock, WithMaxRetries(3)).ValidateText(context.Background(), "x", "x.pdf")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 3, mock.CallCount())
	})

	t.Run("truncates long text", func(t *testing.T) {
		mock := agent.NewMockChatClient("true", nil)
		long := strings.Repeat("é", 5000)
		_, err := NewContentValidator(mock, WithMaxTextChars(100)).ValidateText(context.Background(), long, "x.pdf")
		require.NoError(t, err)
		user := mock.LastMessages()[1].Content
		assert.Contains(t, user, strings.Repeat("é", 100))
		assert.NotContains(t, user, strings.Repeat("é", 101))
	})
}

func TestValidateImage(t *testing.T) {
	t.Run("sends data url to vision model", func(t *testing.T) {
		mock := agent.NewMockChatClient("true", nil)
		ok, err := NewContentValidator(mock).Validate(context.Background(), pngBytes(t), "foto.PNG")
		require.NoError(t, err)
		assert.True(t, ok)

		msgs := mock.LastMessages()
		require.Len(t, msgs, 2)
		require.Len(t, msgs[1].MultiContent, 2)
		assert.Equal(t, schema.ChatMessagePartTypeImageURL, msgs[1].MultiContent[1].Type)
		assert.True(t, strings.HasPrefix(msgs[1].MultiContent[1].ImageURL.URL, "data:image/jpeg;base64,"))
		assert.Equal(t, DefaultVisionModel, *mock.LastOptions().Model)
	})

	t.Run("undecodable image is a validation error", func(t *testing.T) {
		mock := agent.NewMockChatClient("true", nil)
		ok, err := NewContentValidator(mock).ValidateImage(context.Background(), []byte("junk"), "foto.jpg")
		assert.False(t, ok)
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
		assert.Equal(t, 0, mock.CallCount())
	})

	t.Run("vision chat handles images, text chat handles text", func(t *testing.T) {
		text := agent.NewMockChatClient("true", nil)
		vision := agent.NewMockChatClient("true", nil)
		v := NewContentValidator(text, WithVisionChat(vision))

		_, err := v.Validate(context.Background(), pngBytes(t), "foto.jpg")
		require.NoError(t, err)
		_, err = v.Validate(context.Background(), []byte("Experiência: Go"), "cv.pdf")
		require.NoError(t, err)

		assert.Equal(t, 1, vision.CallCount())
		assert.Equal(t, 1, text.CallCount())
		assert.Equal(t, DefaultVisionModel, *vision.LastOptions().Model)
	})

	t.Run("missing model is a validation error", func(t *testing.T) {
		_, err := NewContentValidator(nil).ValidateImage(context.Background(), pngBytes(t), "foto.jpg")
		assert.True(t, IsValidationError(err))
	})
}

func TestValidateQuery(t *testing.T) {
	fast := WithQueryBackoff(time.Millisecond)

	assert.True(t, NewQueryValidator(agent.NewMockChatClient("True", nil), fast).
		ValidateQuery(context.Background(), "Desenvolvedor backend Go"))

	assert.False(t, NewQueryValidator(agent.NewMockChatClient("False", nil), fast).
		ValidateQuery(context.Background(), "Qual a capital da França?"))

	errs := agent.NewMockChatClient("", errors.New("timeout"))
	assert.False(t, NewQueryValidator(errs, fast, WithQueryRetries(2)).ValidateQuery(context.Background(), "Go"))
	assert.Equal(t, 2, errs.CallCount())

	seq := agent.NewMockChatClientSequential([]agent.MockResponse{{Content: "true? false?"}, {Content: "true"}})
	assert.True(t, NewQueryValidator(seq, fast).ValidateQuery(context.Background(), "DevOps"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, NewQueryValidator(agent.NewMockChatClient("true", nil)).ValidateQuery(ctx, "Go"))
}
