// Package extractor turns uploaded resume bytes into plain text.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"resume-analyzer/internal/parser"
	"resume-analyzer/internal/types"
)

// DefaultDirectTextThreshold 直接文本超过该长度即视为文本型 PDF
const DefaultDirectTextThreshold = 200

// TextReader reads the embedded text layer of a PDF.
type TextReader interface {
	ReadPages(ctx context.Context, data []byte, uri string) (string, error)
}

// PageRasterizer produces one image per page of a PDF.
type PageRasterizer interface {
	PagesAsImages(ctx context.Context, data []byte) ([]parser.PageImage, error)
}

// Recognizer is the OCR engine.
type Recognizer interface {
	Recognize(ctx context.Context, img []byte, languages []string) (string, error)
}

// Extractor dispatches on file extension: images go straight to OCR, PDFs try the
// text layer first and fall back to per-page OCR.
type Extractor struct {
	reader     TextReader
	rasterizer PageRasterizer
	ocr        Recognizer
	languages  []string
	threshold  int
	logger     zerolog.Logger
}

type Option func(*Extractor)

func WithLanguages(languages []string) Option {
	return func(e *Extractor) { e.languages = languages }
}

func WithDirectTextThreshold(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.threshold = n
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

func New(reader TextReader, rasterizer PageRasterizer, ocr Recognizer, opts ...Option) *Extractor {
	e := &Extractor{
		reader:     reader,
		rasterizer: rasterizer,
		ocr:        ocr,
		languages:  []string{"por", "eng"},
		threshold:  DefaultDirectTextThreshold,
		logger:     log.With().Str("component", "extractor").Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract never returns a Go error; failures are carried in the result.
func (e *Extractor) Extract(ctx context.Context, data []byte, filename string) types.ExtractionResult {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png", ".jpg", ".jpeg":
		return e.extractImage(ctx, data)
	case ".pdf":
		return e.extractPDF(ctx, data, filename)
	default:
		return types.PermanentExtractionError("unsupported file type, use PDF, PNG, JPG or JPEG")
	}
}

func (e *Extractor) extractImage(ctx context.Context, data []byte) types.ExtractionResult {
	if e.ocr == nil {
		return types.ExtractionError("no OCR engine configured")
	}
	text, err := e.ocr.Recognize(ctx, data, e.languages)
	if err != nil {
		return types.ExtractionError(fmt.Sprintf("image OCR failed: %v", err))
	}
	return types.ExtractedText(text)
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte, filename string) types.ExtractionResult {
	direct := ""
	if e.reader != nil {
		text, err := e.reader.ReadPages(ctx, data, filename)
		if err != nil {
			e.logger.Debug().Err(err).Str("filename", filename).Msg("direct pdf text extraction failed, falling back to OCR")
		} else {
			direct = text
		}
	}

	if len(strings.TrimSpace(direct)) > e.threshold {
		return types.ExtractedText(direct)
	}

	if e.rasterizer == nil || e.ocr == nil {
		return types.ExtractionError("pdf has no text layer and OCR is not configured")
	}

	pages, err := e.rasterizer.PagesAsImages(ctx, data)
	if errors.Is(err, parser.ErrNoPageImages) {
		// 没有可识别的图像，短文本层就是全部内容
		if strings.TrimSpace(direct) != "" {
			return types.ExtractedText(direct)
		}
		return types.PermanentExtractionError(fmt.Sprintf("pdf OCR fallback failed: %v", err))
	}
	if err != nil {
		return types.ExtractionError(fmt.Sprintf("pdf OCR fallback failed: %v", err))
	}

	var out, recognized strings.Builder
	for i, page := range pages {
		text, err := e.ocr.Recognize(ctx, page.Data, e.languages)
		if err != nil {
			return types.ExtractionError(fmt.Sprintf("pdf OCR fallback failed on page %d: %v", i+1, err))
		}
		pageNr := page.PageNr
		if pageNr <= 0 {
			pageNr = i + 1
		}
		fmt.Fprintf(&out, "\n--- Page %d ---\n%s", pageNr, text)
		recognized.WriteString(text)
	}

	if strings.TrimSpace(recognized.String()) == "" {
		return types.ExtractionError("pdf appears to be an image but OCR returned no text")
	}

	e.logger.Debug().Str("filename", filename).Int("pages", len(pages)).Msg("pdf extracted via OCR")
	return types.ExtractedText(out.String())
}
