// Package validator asks an LLM whether uploaded content is really a resume
// and whether a job query is suitable for resume screening.
package validator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"resume-analyzer/internal/parser"
)

const (
	DefaultTextModel    = "llama3-8b-8192"
	DefaultVisionModel  = "meta-llama/llama-4-scout-17b-16e-instruct"
	DefaultMaxRetries   = 3
	DefaultMaxTextChars = 3000
	defaultTemperature  = 0.2
)

const contentSystemPrompt = `You are an expert in document analysis and resume identification.
Decide whether the document you receive is a resume/CV or some other kind of document.
Look at its structure and at the information it contains, and watch for documents that merely
imitate the layout of a resume.

Answer ONLY with:
- True if the document is a resume/CV
- False if it is not`

const contentUserPrompt = `Determine whether this document is a resume/CV.
A resume contains things like personal details, professional experience, education, skills and competences.
Other documents may look similar to a resume without being one.`

// ValidationError is an infrastructure failure of the validator itself. Callers treat it
// as non-fatal and continue without validation.
type ValidationError struct {
	Filename string
	Reason   string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation of %s failed: %s: %v", e.Filename, e.Reason, e.Err)
	}
	return fmt.Sprintf("validation of %s failed: %s", e.Filename, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

type verdict int

const (
	verdictRetry verdict = iota
	verdictTrue
	verdictFalse
)

// interpret maps a free-text reply onto a boolean. Replies mentioning both
// answers, or neither, are inconclusive.
func interpret(reply string) verdict {
	lower := strings.ToLower(strings.TrimSpace(reply))
	hasTrue := strings.Contains(lower, "true")
	hasFalse := strings.Contains(lower, "false")
	switch {
	case hasTrue && hasFalse:
		return verdictRetry
	case lower == "false":
		return verdictFalse
	case hasTrue:
		return verdictTrue
	case hasFalse:
		return verdictFalse
	default:
		return verdictRetry
	}
}

// ContentValidator 基于 LLM 的简历内容校验器
type ContentValidator struct {
	chat         model.BaseChatModel
	visionChat   model.BaseChatModel // 图片校验专用，为空时回退到 chat
	textModel    string
	visionModel  string
	maxRetries   int
	maxTextChars int
	temperature  float32
	logger       zerolog.Logger
}

type Option func(*ContentValidator)

func WithModels(textModel, visionModel string) Option {
	return func(v *ContentValidator) {
		if textModel != "" {
			v.textModel = textModel
		}
		if visionModel != "" {
			v.visionModel = visionModel
		}
	}
}

// WithVisionChat routes image validation through its own chat model, so vision calls
// draw on the vision rate limit instead of the text one.
func WithVisionChat(chat model.BaseChatModel) Option {
	return func(v *ContentValidator) { v.visionChat = chat }
}

func WithMaxRetries(n int) Option {
	return func(v *ContentValidator) {
		if n > 0 {
			v.maxRetries = n
		}
	}
}

func WithMaxTextChars(n int) Option {
	return func(v *ContentValidator) {
		if n > 0 {
			v.maxTextChars = n
		}
	}
}

func WithTemperature(t float32) Option {
	return func(v *ContentValidator) { v.temperature = t }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(v *ContentValidator) { v.logger = logger }
}

func NewContentValidator(chat model.BaseChatModel, opts ...Option) *ContentValidator {
	v := &ContentValidator{
		chat:         chat,
		textModel:    DefaultTextModel,
		visionModel:  DefaultVisionModel,
		maxRetries:   DefaultMaxRetries,
		maxTextChars: DefaultMaxTextChars,
		temperature:  defaultTemperature,
		logger:       log.With().Str("component", "content_validator").Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate dispatches on the filename: images are judged on their pixels, anything
// else is treated as UTF-8 text.
func (v *ContentValidator) Validate(ctx context.Context, content []byte, filename string) (bool, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg":
		return v.ValidateImage(ctx, content, filename)
	default:
		return v.ValidateText(ctx, string(content), filename)
	}
}

// ValidateImage sends the image to the vision model as a JPEG data URL.
func (v *ContentValidator) ValidateImage(ctx context.Context, img []byte, filename string) (bool, error) {
	chat := v.visionChat
	if chat == nil {
		chat = v.chat
	}
	if chat == nil {
		return false, &ValidationError{Filename: filename, Reason: "no chat model configured"}
	}
	jpegBytes, err := parser.ToTransportJPEG(img)
	if err != nil {
		return false, &ValidationError{Filename: filename, Reason: "cannot prepare image", Err: err}
	}

	messages := []*schema.Message{
		schema.SystemMessage(contentSystemPrompt),
		{
			Role: schema.User,
			MultiContent: []schema.ChatMessagePart{
				{Type: schema.ChatMessagePartTypeText, Text: contentUserPrompt},
				{Type: schema.ChatMessagePartTypeImageURL, ImageURL: &schema.ChatMessageImageURL{URL: parser.JPEGDataURL(jpegBytes)}},
			},
		},
	}
	return v.ask(ctx, chat, messages, v.visionModel, filename), nil
}

// ValidateText sends at most maxTextChars runes of text.
func (v *ContentValidator) ValidateText(ctx context.Context, text, filename string) (bool, error) {
	if v.chat == nil {
		return false, &ValidationError{Filename: filename, Reason: "no chat model configured"}
	}
	prompt := fmt.Sprintf("%s\n\n---\nTEXT:\n%s\n---", contentUserPrompt, truncateRunes(text, v.maxTextChars))
	messages := []*schema.Message{
		schema.SystemMessage(contentSystemPrompt),
		schema.UserMessage(prompt),
	}
	return v.ask(ctx, v.chat, messages, v.textModel, filename), nil
}

// ask runs the retry loop. Exhausting the budget rejects the document.
func (v *ContentValidator) ask(ctx context.Context, chat model.BaseChatModel, messages []*schema.Message, modelName, filename string) bool {
	for attempt := 1; attempt <= v.maxRetries; attempt++ {
		if ctx.Err() != nil {
			break
		}
		resp, err := chat.Generate(ctx, messages, model.WithModel(modelName), model.WithTemperature(v.temperature))
		if err != nil {
			v.logger.Warn().Err(err).Str("filename", filename).Int("attempt", attempt).Int("max_retries", v.maxRetries).
				Msg("content validation attempt failed")
			continue
		}
		switch interpret(resp.Content) {
		case verdictTrue:
			return true
		case verdictFalse:
			return false
		default:
			v.logger.Debug().Str("filename", filename).Int("attempt", attempt).Str("reply", resp.Content).
				Msg("inconclusive validation reply")
		}
	}
	v.logger.Warn().Str("filename", filename).Msg("content validation exhausted retries, rejecting")
	return false
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// IsValidationError reports whether err is a validator infrastructure failure.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
