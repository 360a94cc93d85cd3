package img

import (
	"bytes"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func samplePNG(t *testing.T, w, h int, transparent bool) []byte {
	t.Helper()
	im := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			c := color.NRGBA{R: 200, G: 30, B: 30, A: 0xff}
			if transparent && x%2 == 0 {
				c.A = 0
			}
			im.SetNRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, im); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestPrepareForOCRResizesAndReencodes(t *testing.T) {
	src := samplePNG(t, 400, 100, true)

	out, err := PrepareForOCR(src, PrepOptions{MaxW: 200, Quality: 80, Grayscale: true})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if out.MIME != "image/jpeg" {
		t.Fatalf("MIME = %q", out.MIME)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 200 || b.Dy() != 50 {
		t.Fatalf("size = %dx%d, want 200x50", b.Dx(), b.Dy())
	}
}

func TestPrepareForOCRKeepsSmallImages(t *testing.T) {
	out, err := PrepareForOCR(samplePNG(t, 60, 20, false), PrepOptions{MaxW: 200})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	decoded, err := jpeg.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if b := decoded.Bounds(); b.Dx() != 60 || b.Dy() != 20 {
		t.Fatalf("size = %dx%d, want 60x20", b.Dx(), b.Dy())
	}
}

func TestPrepareForOCRFlattensAlphaOntoWhite(t *testing.T) {
	tests := []struct {
		name     string
		fill     color.NRGBA
		min, max uint8
	}{
		{"transparent", color.NRGBA{A: 0}, 245, 255},
		{"half transparent white", color.NRGBA{R: 255, G: 255, B: 255, A: 128}, 245, 255},
		{"half transparent black", color.NRGBA{A: 128}, 110, 145},
		{"opaque black", color.NRGBA{A: 255}, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			im := image.NewNRGBA(image.Rect(0, 0, 4, 4))
			for y := 0; y < 4; y++ {
				for x := 0; x < 4; x++ {
					im.SetNRGBA(x, y, tt.fill)
				}
			}
			var buf bytes.Buffer
			if err := png.Encode(&buf, im); err != nil {
				t.Fatal(err)
			}

			out, err := PrepareForOCR(buf.Bytes(), PrepOptions{Quality: 95})
			if err != nil {
				t.Fatalf("prepare: %v", err)
			}
			decoded, err := jpeg.Decode(bytes.NewReader(out.Data))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			r, g, b, _ := decoded.At(1, 1).RGBA()
			for _, v := range []uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)} {
				if v < tt.min || v > tt.max {
					t.Fatalf("pixel = (%d,%d,%d), want each in [%d,%d]", r>>8, g>>8, b>>8, tt.min, tt.max)
				}
			}
		})
	}
}

func TestPrepareForOCRRejectsGarbage(t *testing.T) {
	if _, err := PrepareForOCR([]byte("definitely not an image"), PrepOptions{}); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDecodeDataURI(t *testing.T) {
	raw := samplePNG(t, 4, 4, false)
	enc := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name     string
		in       string
		wantMIME string
		wantErr  error
	}{
		{name: "png", in: "data:image/png;base64," + enc, wantMIME: "image/png"},
		{name: "params", in: "data:image/JPEG;name=a.jpg;base64," + enc, wantMIME: "image/jpeg"},
		{name: "text", in: "data:text/plain;base64,aGVsbG8=", wantErr: ErrNotImage},
		{name: "not base64", in: "data:image/png,rawbytes", wantErr: ErrNotDataURI},
		{name: "plain", in: "https://example.com/a.png", wantErr: ErrNotDataURI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeDataURI(tt.in)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.MIME != tt.wantMIME {
				t.Fatalf("MIME = %q, want %q", got.MIME, tt.wantMIME)
			}
			if !bytes.Equal(got.Data, raw) {
				t.Fatal("payload mismatch")
			}
		})
	}
}

func TestDecodeDataURIBadBase64(t *testing.T) {
	if _, err := DecodeDataURI("data:image/png;base64,@@@"); err == nil {
		t.Fatal("expected base64 error")
	}
}

func TestSniffAndFingerprint(t *testing.T) {
	raw := samplePNG(t, 2, 2, false)
	if got := SniffMIME(raw); got != "image/png" {
		t.Fatalf("SniffMIME = %q", got)
	}
	a, b := Fingerprint(raw), Fingerprint(append([]byte{}, raw...))
	if a != b || len(a) != 64 {
		t.Fatalf("fingerprint unstable: %q %q", a, b)
	}
	if Fingerprint([]byte("other")) == a {
		t.Fatal("fingerprint collision")
	}
}
