package parser

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

const (
	// DefaultJPEGQuality 与视觉模型传输时使用的 JPEG 质量
	DefaultJPEGQuality = 85
	// DefaultMaxEdge 预处理时图片最长边的上限（像素）
	DefaultMaxEdge = 2000
)

// ImagePrepOptions 控制图片预处理
type ImagePrepOptions struct {
	Grayscale bool
	MaxEdge   int // 0 disables downscaling
	Quality   int
}

// OCRPrepOptions is the preprocessing applied before text recognition.
func OCRPrepOptions() ImagePrepOptions {
	return ImagePrepOptions{Grayscale: true, MaxEdge: DefaultMaxEdge, Quality: DefaultJPEGQuality}
}

// PrepareImage decodes PNG/JPEG/TIFF bytes, flattens any alpha channel onto white and
// re-encodes as JPEG, optionally converting to grayscale and bounding the longest edge.
func PrepareImage(data []byte, opts ImagePrepOptions) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img := flattenOnWhite(src)
	if opts.MaxEdge > 0 {
		img = downscale(img, opts.MaxEdge)
	}
	if opts.Grayscale {
		gray := image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
		img = gray
	}

	quality := opts.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("encode %s image as jpeg: %w", format, err)
	}
	return buf.Bytes(), nil
}

// ToTransportJPEG is the minimal conversion used for vision-model validation.
func ToTransportJPEG(data []byte) ([]byte, error) {
	return PrepareImage(data, ImagePrepOptions{Quality: DefaultJPEGQuality})
}

// JPEGDataURL wraps JPEG bytes in a base64 data URL.
func JPEGDataURL(jpegBytes []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegBytes)
}

func flattenOnWhite(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func downscale(src image.Image, maxEdge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxEdge {
		return src
	}

	ratio := float64(maxEdge) / float64(longest)
	nw, nh := int(float64(w)*ratio), int(float64(h)*ratio)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
