package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// ThumbnailSize is the edge length of cached display pictures.
const ThumbnailSize = 96

// MaxPixels bounds the canvas a picture may declare before it is decoded.
const MaxPixels = 4096 * 4096

var (
	// ErrEmpty is returned for zero-length picture data.
	ErrEmpty = errors.New("empty picture data")
	// ErrTooLarge is returned when a picture declares more than MaxPixels.
	ErrTooLarge = errors.New("picture too large")
)

// Thumbnail decodes a PNG, JPEG, GIF or TIFF picture and renders it centered
// on a transparent size×size PNG, preserving the aspect ratio.
func Thumbnail(data []byte, size int) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode picture header: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d", ErrTooLarge, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode picture: %w", err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, fit(src.Bounds(), size), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// fit returns the largest rectangle with b's aspect ratio centered in a
// size×size square.
func fit(b image.Rectangle, size int) image.Rectangle {
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return image.Rect(0, 0, size, size)
	}
	tw, th := size, size
	if w > h {
		th = max(1, h*size/w)
	} else if h > w {
		tw = max(1, w*size/h)
	}
	x0 := (size - tw) / 2
	y0 := (size - th) / 2
	return image.Rect(x0, y0, x0+tw, y0+th)
}
