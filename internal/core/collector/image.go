package collector

import (
	"bytes"
	"errors"
	"image"
	"image/jpeg"
	_ "image/png" // register decoder

	"golang.org/x/image/draw"
)

// Downscale shrinks a PNG or JPEG screenshot to at most maxWidth pixels wide
// and re-encodes it as JPEG. Images already narrow enough are returned as is.
// The returned string is the MIME type of the returned bytes.
func Downscale(data []byte, maxWidth, jpegQuality int) ([]byte, string, error) {
	if len(data) == 0 {
		return nil, "", errors.New("empty image")
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= 0 || height <= 0 {
		return nil, "", errors.New("invalid image dimensions")
	}
	if maxWidth <= 0 || width <= maxWidth {
		return data, mimeFor(format), nil
	}

	scale := float64(maxWidth) / float64(width)
	newW := maxWidth
	newH := int(float64(height) * scale)
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	q := jpegQuality
	if q < 1 || q > 100 {
		q = 80
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: q}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}

// SniffImageType reports the MIME type of PNG or JPEG bytes.
func SniffImageType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xff, 0xd8, 0xff}):
		return "image/jpeg"
	default:
		return ""
	}
}

func mimeFor(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
