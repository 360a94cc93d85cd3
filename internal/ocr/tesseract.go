package ocr

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/emandor/imagetext_service/internal/recognition"
)

type TesseractOptions struct {
	// PageSegMode is a tesseract PSM value; 0 keeps the library default.
	PageSegMode int
	// TessdataDir, when set, is checked for <lang>.traineddata before the
	// client is built so missing language data fails construction.
	TessdataDir string
}

// Tesseract is an engine backed by one gosseract client. The client is not
// safe for concurrent use; recognition.Manager serializes calls.
type Tesseract struct {
	client *gosseract.Client
}

func TesseractFactory(opts TesseractOptions) recognition.Factory {
	return func(ctx context.Context, lang string) (recognition.Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		langs := splitLang(lang)
		if err := checkTessdata(opts.TessdataDir, langs); err != nil {
			return nil, err
		}

		client := gosseract.NewClient()
		if err := client.SetLanguage(langs...); err != nil {
			client.Close()
			return nil, fmt.Errorf("set language %q: %w", lang, err)
		}
		if opts.PageSegMode > 0 {
			if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PageSegMode)); err != nil {
				client.Close()
				return nil, fmt.Errorf("set page segmentation mode: %w", err)
			}
		}
		_ = client.DisableOutput()
		return &Tesseract{client: client}, nil
	}
}

func (t *Tesseract) Recognize(ctx context.Context, img recognition.Image, report func(recognition.Status)) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	report(recognition.Status{Phase: "loading image", Progress: 0})
	if err := t.client.SetImageFromBytes(img.Data); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	report(recognition.Status{Phase: recognition.PhaseRecognizing, Progress: 0})
	text, err := t.client.Text()
	if err != nil {
		return "", fmt.Errorf("tesseract: %w", err)
	}
	report(recognition.Status{Phase: recognition.PhaseRecognizing, Progress: 1})
	return text, nil
}

func (t *Tesseract) Terminate() error {
	return t.client.Close()
}

// splitLang turns "eng+deu" into tesseract language codes.
func splitLang(lang string) []string {
	var out []string
	for _, l := range strings.Split(lang, "+") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	if len(out) == 0 {
		out = []string{recognition.DefaultLanguage}
	}
	return out
}

func checkTessdata(dir string, langs []string) error {
	if dir == "" {
		return nil
	}
	for _, l := range langs {
		p := filepath.Join(dir, l+".traineddata")
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("language data for %q: %w", l, err)
		}
	}
	return nil
}
