package parser

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestPrepareImage_FlattensTransparencyOnWhite(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8)) // fully transparent
	out, err := ToTransportJPEG(encodePNG(t, src))
	require.NoError(t, err)

	decoded, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	r, g, b, _ := decoded.At(4, 4).RGBA()
	assert.Greater(t, r>>8, uint32(240), "transparent pixels should become white")
	assert.Greater(t, g>>8, uint32(240))
	assert.Greater(t, b>>8, uint32(240))
}

func TestPrepareImage_DownscalesAndGrays(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 100))
	for x := 0; x < 400; x++ {
		for y := 0; y < 100; y++ {
			src.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}

	out, err := PrepareImage(encodePNG(t, src), ImagePrepOptions{Grayscale: true, MaxEdge: 200, Quality: 90})
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 200, cfg.Width)
	assert.Equal(t, 50, cfg.Height)
	assert.Equal(t, color.GrayModel, cfg.ColorModel)
}

func TestPrepareImage_RejectsGarbage(t *testing.T) {
	_, err := PrepareImage([]byte("not an image"), OCRPrepOptions())
	assert.ErrorContains(t, err, "decode image")
}

func TestJPEGDataURL(t *testing.T) {
	url := JPEGDataURL([]byte{0xFF, 0xD8})
	require.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"))
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(url, "data:image/jpeg;base64,"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, raw)
}
