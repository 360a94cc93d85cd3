package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/emandor/imagetext_service/internal/recognition"
	"github.com/emandor/imagetext_service/internal/telemetry"
)

const defaultOpenAIURL = "https://api.openai.com/v1/chat/completions"

type OpenAIVision struct {
	Key, Model, URL string
	Lang            string
	Client          *http.Client
	Limiter         *rate.Limiter
	MaxRetries      int
}

func NewOpenAIVision(key, model, url string, rps, burst, maxRetries int) *OpenAIVision {
	if rps <= 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 2
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if url == "" {
		url = defaultOpenAIURL
	}
	return &OpenAIVision{
		Key:        key,
		Model:      model,
		URL:        url,
		Lang:       recognition.DefaultLanguage,
		Client:     &http.Client{Timeout: 60 * time.Second},
		Limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		MaxRetries: maxRetries,
	}
}

// OpenAIVisionFactory builds a vision engine per manager. The limiter is
// shared so every session draws from the same request budget.
func OpenAIVisionFactory(key, model, url string, rps, burst, maxRetries int) recognition.Factory {
	shared := NewOpenAIVision(key, model, url, rps, burst, maxRetries)
	return func(ctx context.Context, lang string) (recognition.Engine, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if shared.Key == "" {
			return nil, errors.New("openai vision: missing api key")
		}
		o := *shared
		o.Client = &http.Client{Timeout: shared.Client.Timeout}
		if lang != "" {
			o.Lang = lang
		}
		return &o, nil
	}
}

func (o *OpenAIVision) Recognize(ctx context.Context, img recognition.Image, report func(recognition.Status)) (string, error) {
	if err := o.Limiter.Wait(ctx); err != nil {
		return "", err
	}
	report(recognition.Status{Phase: recognition.PhaseRecognizing, Progress: 0})

	mime := img.MIME
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	// data URL; detail:"high" since we only want the text back
	dataURL := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	payload := map[string]any{
		"model": o.Model,
		"messages": []any{
			map[string]any{
				"role": "user",
				"content": []any{
					map[string]string{"type": "text", "text": "Extract plain text (OCR), language hint: " + o.Lang + ". Return ONLY the raw text (no explanation). Return nothing if the image has no text."},
					map[string]any{"type": "image_url", "image_url": map[string]any{"url": dataURL, "detail": "high"}},
				},
			},
		},
		"temperature": 0.0,
		"max_tokens":  2048,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	log := telemetry.L().With().Str("engine", "openai-vision").Logger()

	var lastErr error
	start := time.Now()
	for attempt := 0; attempt <= o.MaxRetries; attempt++ {
		if attempt > 0 {
			d := time.Duration(200*(1<<uint(attempt-1))) * time.Millisecond
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return "", ctx.Err()
			}
			report(recognition.Status{Phase: recognition.PhaseRecognizing, Progress: float64(attempt) / float64(o.MaxRetries+1)})
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.URL, bytes.NewReader(b))
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+o.Key)
		req.Header.Set("Content-Type", "application/json")

		resp, err := o.Client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}

		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var out struct {
				Choices []struct{ Message struct{ Content string } }
			}
			if err := json.Unmarshal(raw, &out); err != nil {
				return "", fmt.Errorf("openai vision: decode response: %w", err)
			}
			if len(out.Choices) == 0 {
				return "", errors.New("openai vision: empty choices")
			}
			txt := out.Choices[0].Message.Content
			log.Debug().Int("latency_ms", int(time.Since(start)/time.Millisecond)).Int("chars", len(txt)).Msg("ocr_ok")
			report(recognition.Status{Phase: recognition.PhaseRecognizing, Progress: 1})
			return txt, nil
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			log.Warn().Int("status", resp.StatusCode).Int("attempt", attempt).Msg("ocr_retry")
			lastErr = errors.New("openai vision http " + resp.Status)
			continue
		}

		lastErr = errors.New("openai vision http " + resp.Status)
		break
	}
	return "", lastErr
}

func (o *OpenAIVision) Terminate() error {
	o.Client.CloseIdleConnections()
	return nil
}
