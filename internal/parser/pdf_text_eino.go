package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/document/parser/pdf"
	einoParser "github.com/cloudwego/eino/components/document/parser"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultPDFParseTimeout = 30 * time.Second

// EinoPDFTextReader 使用 Eino PDF Parser 读取 PDF 文本层
type EinoPDFTextReader struct {
	parser  *pdf.PDFParser
	logger  zerolog.Logger
	timeout time.Duration
}

// PDFTextReaderOption PDF文本读取器的配置选项
type PDFTextReaderOption func(*EinoPDFTextReader)

// WithPDFReaderLogger 配置自定义日志记录器
func WithPDFReaderLogger(logger zerolog.Logger) PDFTextReaderOption {
	return func(r *EinoPDFTextReader) {
		r.logger = logger
	}
}

// WithPDFReaderTimeout 配置单次解析超时
func WithPDFReaderTimeout(timeout time.Duration) PDFTextReaderOption {
	return func(r *EinoPDFTextReader) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewEinoPDFTextReader 初始化文本层读取器，按页解析
func NewEinoPDFTextReader(ctx context.Context, options ...PDFTextReaderOption) (*EinoPDFTextReader, error) {
	p, err := pdf.NewPDFParser(ctx, &pdf.Config{ToPages: true})
	if err != nil {
		return nil, fmt.Errorf("failed to create Eino PDF parser: %w", err)
	}

	r := &EinoPDFTextReader{
		parser:  p,
		logger:  log.With().Str("component", "pdf_text_reader").Logger(),
		timeout: defaultPDFParseTimeout,
	}
	for _, option := range options {
		option(r)
	}
	return r, nil
}

// ReadPages returns the concatenated text layer of every page, in page order.
func (r *EinoPDFTextReader) ReadPages(ctx context.Context, data []byte, uri string) (string, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	docs, err := r.parser.Parse(ctx, bytes.NewReader(data),
		einoParser.WithURI(uri),
		einoParser.WithExtraMeta(map[string]any{"source": uri}),
	)
	if err != nil {
		return "", fmt.Errorf("eino PDF parser failed for %s: %w", uri, err)
	}

	var sb strings.Builder
	for i, doc := range docs {
		if doc == nil {
			continue
		}
		sb.WriteString(doc.Content)
		if i < len(docs)-1 && !strings.HasSuffix(doc.Content, "\n") {
			sb.WriteString("\n")
		}
	}

	text := sb.String()
	r.logger.Debug().
		Str("uri", uri).
		Int("pages", len(docs)).
		Int("chars", len(text)).
		Dur("elapsed", time.Since(startTime)).
		Msg("pdf text layer read")
	return text, nil
}
