// Package imaging derives bounded JPEG previews from uploaded images.
package imaging

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strconv"

	"visual-search-be/pkg/apperrors"

	"golang.org/x/crypto/blake2b"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const ContentType = "image/jpeg"

type Options struct {
	MaxEdge int
	Quality int
	// MaxPixels caps the decoded width*height. Checked against the image
	// header before any pixel data is allocated.
	MaxPixels  int
	Background color.Color
}

func DefaultOptions() Options {
	return Options{MaxEdge: 1024, Quality: 85, MaxPixels: 50_000_000, Background: color.White}
}

type Preview struct {
	Data         []byte
	Width        int
	Height       int
	SourceFormat string
}

// Fit scales (w, h) so the longest edge is at most maxEdge, preserving the
// aspect ratio. Images already within bounds are returned unchanged.
func Fit(w, h, maxEdge int) (int, int) {
	if maxEdge <= 0 || (w <= maxEdge && h <= maxEdge) {
		return w, h
	}
	if w >= h {
		nh := int(float64(h)*float64(maxEdge)/float64(w) + 0.5)
		return maxEdge, max(nh, 1)
	}
	nw := int(float64(w)*float64(maxEdge)/float64(h) + 0.5)
	return max(nw, 1), maxEdge
}

// Render decodes src, downsizes it and encodes a JPEG. Transparent pixels are
// composited over opts.Background because JPEG has no alpha channel.
func Render(src []byte, opts Options) (*Preview, error) {
	if opts.MaxEdge <= 0 {
		opts.MaxEdge = DefaultOptions().MaxEdge
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultOptions().Quality
	}
	if opts.MaxPixels <= 0 {
		opts.MaxPixels = DefaultOptions().MaxPixels
	}
	if opts.Background == nil {
		opts.Background = color.White
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.Input(fmt.Errorf("%w: %v", apperrors.ErrUnsupportedImage, err))
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, apperrors.Input(fmt.Errorf("%w: empty image", apperrors.ErrUnsupportedImage))
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, apperrors.Input(fmt.Errorf("%w: %dx%d exceeds %d pixels",
			apperrors.ErrUnsupportedImage, cfg.Width, cfg.Height, opts.MaxPixels))
	}

	img, format, err := image.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, apperrors.Input(fmt.Errorf("%w: %v", apperrors.ErrUnsupportedImage, err))
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, apperrors.Input(fmt.Errorf("%w: empty image", apperrors.ErrUnsupportedImage))
	}
	w, h := Fit(b.Dx(), b.Dy(), opts.MaxEdge)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(opts.Background), image.Point{}, draw.Src)
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: opts.Quality}); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}

	return &Preview{Data: buf.Bytes(), Width: w, Height: h, SourceFormat: format}, nil
}

// Digest identifies a preview by its source bytes and render options, so a
// re-delivered event can tell an up to date preview apart from a stale one.
func Digest(src []byte, opts Options) string {
	h, _ := blake2b.New256(nil)
	h.Write(src)
	h.Write([]byte("|" + strconv.Itoa(opts.MaxEdge) + "|" + strconv.Itoa(opts.Quality)))
	return hex.EncodeToString(h.Sum(nil))
}
