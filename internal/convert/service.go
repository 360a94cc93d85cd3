package convert

import (
	"context"

	"github.com/emandor/imagetext_service/internal/cache"
	"github.com/emandor/imagetext_service/internal/img"
	"github.com/emandor/imagetext_service/internal/recognition"
	"github.com/emandor/imagetext_service/internal/session"
	"github.com/emandor/imagetext_service/internal/telemetry"
	"github.com/emandor/imagetext_service/internal/textutil"
)

const (
	msgSuccess = "Text extracted successfully!"
	msgNoText  = "No text found in the image. Please try with a clearer image."
)

// Notifier pushes extraction events to clients following a session.
type Notifier interface {
	BroadcastProgress(sessionID string, percent int)
	BroadcastDone(sessionID, text string, noText bool)
	BroadcastError(sessionID string, err error)
	BroadcastSessionClosed(sessionID string)
}

type Result struct {
	Text    string         `json:"text"`
	NoText  bool           `json:"no_text"`
	Message string         `json:"message"`
	Stats   textutil.Stats `json:"stats"`
	Cached  bool           `json:"cached"`
}

func newResult(text string, cached bool) Result {
	r := Result{
		Text:    text,
		NoText:  recognition.IsNoText(text),
		Message: msgSuccess,
		Stats:   textutil.Count(text),
		Cached:  cached,
	}
	if r.NoText {
		r.Message = msgNoText
	}
	return r
}

type Service struct {
	cache  *cache.ResultCache
	notify Notifier
	prep   img.PrepOptions
}

func NewService(rc *cache.ResultCache, notify Notifier, prep img.PrepOptions) *Service {
	return &Service{cache: rc, notify: notify, prep: prep}
}

// Extract runs one image through the session's manager: cache lookup,
// preprocessing, recognition with progress fan-out, cache fill.
func (s *Service) Extract(ctx context.Context, sess *session.Session, raw recognition.Image) (Result, error) {
	log := telemetry.L().With().Str("session_id", sess.ID).Logger()
	if sess.Manager.State() == recognition.Terminated {
		return Result{}, &recognition.LifecycleError{Op: "extract"}
	}

	lang := sess.Manager.Language()
	fp := img.Fingerprint(raw.Data)
	txt, hit, err := s.cache.Get(ctx, lang, fp)
	if err != nil {
		log.Warn().Err(err).Msg("ocr_cache_get_err")
	}
	if hit {
		log.Info().Int("len", len(txt)).Msg("ocr_cache_hit")
		s.notify.BroadcastProgress(sess.ID, 100)
		s.notify.BroadcastDone(sess.ID, txt, recognition.IsNoText(txt))
		return newResult(txt, true), nil
	}

	im := raw
	if prepared, err := img.PrepareForOCR(raw.Data, s.prep); err != nil {
		// let the engine judge the uploaded bytes
		log.Warn().Err(err).Str("mime", raw.MIME).Msg("ocr_prep_skip")
	} else {
		im = prepared
	}

	text, err := sess.Manager.ExtractText(ctx, im, func(p int) {
		s.notify.BroadcastProgress(sess.ID, p)
	})
	if err != nil {
		s.notify.BroadcastError(sess.ID, err)
		return Result{}, err
	}

	noText := recognition.IsNoText(text)
	if !noText {
		if err := s.cache.Set(ctx, lang, fp, text); err != nil {
			log.Warn().Err(err).Msg("ocr_cache_set_err")
		}
	}
	s.notify.BroadcastDone(sess.ID, text, noText)
	return newResult(text, false), nil
}
