package parser

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const ocrSystemPrompt = `You are an OCR engine. Transcribe every piece of text visible in the image exactly as written,
preserving line breaks and reading order. Do not summarize, translate or comment.
If the image contains no text, reply with an empty message.`

// VisionOCR recognizes text in images with a vision-capable chat model.
type VisionOCR struct {
	chat        model.BaseChatModel
	modelName   string
	temperature float32
	prep        ImagePrepOptions
	preprocess  bool
	logger      zerolog.Logger
}

// VisionOCROption VisionOCR 的配置选项
type VisionOCROption func(*VisionOCR)

// WithOCRPreprocessing toggles grayscale/downscale preprocessing before recognition.
func WithOCRPreprocessing(enabled bool) VisionOCROption {
	return func(o *VisionOCR) { o.preprocess = enabled }
}

func WithOCRLogger(logger zerolog.Logger) VisionOCROption {
	return func(o *VisionOCR) { o.logger = logger }
}

// NewVisionOCR 创建基于视觉模型的 OCR 引擎
func NewVisionOCR(chat model.BaseChatModel, modelName string, opts ...VisionOCROption) (*VisionOCR, error) {
	if chat == nil {
		return nil, errors.New("vision OCR requires a chat model")
	}
	o := &VisionOCR{
		chat:        chat,
		modelName:   modelName,
		temperature: 0,
		prep:        OCRPrepOptions(),
		preprocess:  true,
		logger:      log.With().Str("component", "vision_ocr").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Recognize returns the text found in img. languages are hints such as "por", "eng".
func (o *VisionOCR) Recognize(ctx context.Context, img []byte, languages []string) (string, error) {
	prepared, err := o.encode(img)
	if err != nil {
		return "", err
	}

	instruction := "Transcribe the text in this image."
	if len(languages) > 0 {
		instruction += fmt.Sprintf(" The text is most likely in these languages: %s.", strings.Join(languages, ", "))
	}

	messages := []*schema.Message{
		schema.SystemMessage(ocrSystemPrompt),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: instruction},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: JPEGDataURL(prepared)}},
			},
		},
	}

	opts := []model.Option{model.WithTemperature(o.temperature)}
	if o.modelName != "" {
		opts = append(opts, model.WithModel(o.modelName))
	}

	resp, err := o.chat.Generate(ctx, messages, opts...)
	if err != nil {
		return "", fmt.Errorf("vision OCR request: %w", err)
	}
	o.logger.Debug().Int("image_bytes", len(img)).Int("chars", len(resp.Content)).Msg("image recognized")
	return resp.Content, nil
}

func (o *VisionOCR) encode(img []byte) ([]byte, error) {
	if o.preprocess {
		return PrepareImage(img, o.prep)
	}
	return ToTransportJPEG(img)
}

// ParseLanguageHints splits a tesseract-style hint ("por+eng") into its parts.
func ParseLanguageHints(hint string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(hint, func(r rune) bool { return r == '+' || r == ',' || r == ' ' }) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
