package upload

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MaxEdge     = 1080
	JPEGQuality = 82

	// Limits on the decoded source, checked from the header before any
	// pixels are allocated.
	MaxSourceEdge   = 8192
	MaxSourcePixels = 40_000_000
)

var errImageTooLarge = errors.New("image dimensions exceed limits")

// checkDimensions reads only the image header.
func checkDimensions(content []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return err
	}
	if cfg.Width > MaxSourceEdge || cfg.Height > MaxSourceEdge ||
		int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return fmt.Errorf("%w: %dx%d", errImageTooLarge, cfg.Width, cfg.Height)
	}
	return nil
}

// normalizeImage decodes any registered format, shrinks it so neither side
// exceeds MaxEdge and stores it as JPEG. Transparent areas become white.
func normalizeImage(content []byte) ([]byte, error) {
	if err := checkDimensions(content); err != nil {
		return nil, err
	}
	src, format, err := image.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := jpeg.Encode(&out, flatten(fitWithin(src, MaxEdge)), &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, fmt.Errorf("encode %s as jpeg: %w", format, err)
	}
	return out.Bytes(), nil
}

// fitWithin returns src unchanged when it already fits in an edge x edge box,
// otherwise a scaled copy with the aspect ratio kept.
func fitWithin(src image.Image, edge int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := max(w, h)
	if w <= 0 || h <= 0 || longest <= edge {
		return src
	}

	dst := image.NewRGBA(image.Rect(0, 0, max(w*edge/longest, 1), max(h*edge/longest, 1)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
	return dst
}

func flatten(src image.Image) image.Image {
	if _, opaque := src.(*image.YCbCr); opaque {
		return src
	}
	dst := image.NewRGBA(src.Bounds())
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	xdraw.Draw(dst, dst.Bounds(), src, src.Bounds().Min, xdraw.Over)
	return dst
}
