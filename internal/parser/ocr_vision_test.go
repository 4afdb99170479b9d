package parser

import (
	"context"
	"errors"
	"image"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/pkg/agent"
)

func TestVisionOCR_Recognize(t *testing.T) {
	mock := agent.NewMockChatClient("João Silva\nDesenvolvedor Go", nil)
	ocr, err := NewVisionOCR(mock, "vision-model")
	require.NoError(t, err)

	img := encodePNG(t, image.NewGray(image.Rect(0, 0, 10, 10)))
	text, err := ocr.Recognize(context.Background(), img, ParseLanguageHints("por+eng"))
	require.NoError(t, err)
	assert.Equal(t, "João Silva\nDesenvolvedor Go", text)

	msgs := mock.LastMessages()
	require.Len(t, msgs, 2)
	parts := msgs[1].MultiContent
	require.Len(t, parts, 2)
	assert.Contains(t, parts[0].Text, "por, eng")
	assert.Equal(t, schema.ChatMessagePartTypeImageURL, parts[1].Type)
	assert.Contains(t, parts[1].ImageURL.URL, "data:image/jpeg;base64,")

	opts := mock.LastOptions()
	require.NotNil(t, opts.Model)
	assert.Equal(t, "vision-model", *opts.Model)
}

func TestVisionOCR_Errors(t *testing.T) {
	_, err := NewVisionOCR(nil, "")
	assert.Error(t, err)

	ocr, err := NewVisionOCR(agent.NewMockChatClient("", errors.New("boom")), "")
	require.NoError(t, err)

	_, err = ocr.Recognize(context.Background(), []byte("garbage"), nil)
	assert.ErrorContains(t, err, "decode image")

	img := encodePNG(t, image.NewGray(image.Rect(0, 0, 4, 4)))
	_, err = ocr.Recognize(context.Background(), img, nil)
	assert.ErrorContains(t, err, "boom")
}

func TestParseLanguageHints(t *testing.T) {
	assert.Equal(t, []string{"por", "eng"}, ParseLanguageHints("por+eng"))
	assert.Equal(t, []string{"eng"}, ParseLanguageHints(" eng "))
	assert.Nil(t, ParseLanguageHints(""))
}
