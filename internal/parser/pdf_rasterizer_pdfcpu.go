package parser

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrNoPageImages is returned when a PDF carries no raster content to recognize.
var ErrNoPageImages = errors.New("pdf contains no page images")

// PageImage 单页的栅格图像
type PageImage struct {
	PageNr int
	Data   []byte
	Format string // png, jpg, tif
}

// PDFCPURasterizer produces one image per page for scanned PDFs. A scanned page is a
// full-page embedded raster, so the largest decodable image on each page stands in for
// the rendered page.
type PDFCPURasterizer struct {
	conf   *model.Configuration
	logger zerolog.Logger
}

// NewPDFCPURasterizer 创建基于 pdfcpu 的页面图像提取器
func NewPDFCPURasterizer() *PDFCPURasterizer {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFCPURasterizer{
		conf:   conf,
		logger: log.With().Str("component", "pdf_rasterizer").Logger(),
	}
}

// PageCount returns the number of pages in the document.
func (r *PDFCPURasterizer) PageCount(data []byte) (int, error) {
	count, err := api.PageCount(bytes.NewReader(data), r.conf)
	if err != nil {
		return 0, fmt.Errorf("pdfcpu page count: %w", err)
	}
	return count, nil
}

// PagesAsImages returns page images ordered by page number.
func (r *PDFCPURasterizer) PagesAsImages(ctx context.Context, data []byte) ([]PageImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	perPage, err := api.ExtractImagesRaw(bytes.NewReader(data), nil, r.conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu extract images: %w", err)
	}

	best := make(map[int]model.Image)
	for _, images := range perPage {
		for _, img := range images {
			if !decodableFormat(img.FileType) {
				continue
			}
			cur, ok := best[img.PageNr]
			if !ok || img.Width*img.Height > cur.Width*cur.Height {
				best[img.PageNr] = img
			}
		}
	}
	if len(best) == 0 {
		return nil, ErrNoPageImages
	}

	pages := make([]PageImage, 0, len(best))
	for pageNr, img := range best {
		raw, err := io.ReadAll(img)
		if err != nil {
			return nil, fmt.Errorf("read image on page %d: %w", pageNr, err)
		}
		pages = append(pages, PageImage{PageNr: pageNr, Data: raw, Format: img.FileType})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].PageNr < pages[j].PageNr })

	r.logger.Debug().Int("pages_with_images", len(pages)).Msg("pdf page images extracted")
	return pages, nil
}

func decodableFormat(fileType string) bool {
	switch fileType {
	case "jpg", "jpeg", "png", "tif", "tiff":
		return true
	}
	return false
}
