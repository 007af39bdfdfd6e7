package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// Format is an output encoding
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// Ext returns the file extension written for the format.
func (f Format) Ext() string {
	if f == FormatPNG {
		return ".png"
	}
	return ".jpg"
}

// Options control Optimize. Zero Width/Height keep the source size.
type Options struct {
	Width   int
	Height  int
	Format  Format
	Quality int // JPEG quality 1-100, default 82
}

// DefaultOptions is the Open Graph recommended size.
func DefaultOptions() Options {
	return Options{Width: 1200, Height: 630, Format: FormatJPEG, Quality: 82}
}

// Optimize decodes raw (PNG, JPEG or WebP), crops it to the target aspect
// ratio around the center, scales it and re-encodes it.
func Optimize(raw []byte, opts Options) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	b := src.Bounds()
	width, height := opts.Width, opts.Height
	if width <= 0 || height <= 0 {
		width, height = b.Dx(), b.Dy()
	}

	crop := coverRect(b, width, height)
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Over, nil)

	var buf bytes.Buffer
	switch opts.Format {
	case FormatPNG:
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, dst); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
	case FormatJPEG, "":
		quality := opts.Quality
		if quality <= 0 || quality > 100 {
			quality = 82
		}
		if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encoding jpeg: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported image format %q", opts.Format)
	}
	return buf.Bytes(), nil
}

// coverRect is the largest centered sub-rectangle of b with the aspect
// ratio width:height.
func coverRect(b image.Rectangle, width, height int) image.Rectangle {
	sw, sh := b.Dx(), b.Dy()
	if sw*height > sh*width {
		// source is wider: trim the sides
		w := sh * width / height
		x := b.Min.X + (sw-w)/2
		return image.Rect(x, b.Min.Y, x+w, b.Max.Y)
	}
	h := sw * height / width
	y := b.Min.Y + (sh-h)/2
	return image.Rect(b.Min.X, y, b.Max.X, y+h)
}
