package img

import (
	"bytes"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/emandor/imagetext_service/internal/recognition"
)

type PrepOptions struct {
	MaxW      int
	Quality   int
	Grayscale bool
}

// PrepareForOCR: auto-orient → flatten alpha → resize → grayscale (optional) → JPEG
func PrepareForOCR(data []byte, opts PrepOptions) (recognition.Image, error) {
	src, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return recognition.Image{}, err
	}
	src = flattenOnWhite(src)

	// resize proportional
	if opts.MaxW > 0 && src.Bounds().Dx() > opts.MaxW {
		src = imaging.Resize(src, opts.MaxW, 0, imaging.Lanczos)
	}

	if opts.Grayscale {
		src = imaging.Grayscale(src)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, imaging.JPEG, imaging.JPEGQuality(clamp(opts.Quality, 60, 95))); err != nil {
		return recognition.Image{}, err
	}
	return recognition.Image{Data: buf.Bytes(), MIME: "image/jpeg"}, nil
}

// flattenOnWhite blends any transparency onto a white page; tesseract reads
// transparent pixels as black.
func flattenOnWhite(src image.Image) image.Image {
	b := src.Bounds()
	bg := imaging.New(b.Dx(), b.Dy(), color.White)
	return imaging.Overlay(bg, src, image.Pt(0, 0), 1.0)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
