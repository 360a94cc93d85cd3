package convert

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/imagetext_service/internal/middleware"
	"github.com/emandor/imagetext_service/internal/recognition"
	"github.com/emandor/imagetext_service/internal/session"
	"github.com/emandor/imagetext_service/internal/textutil"
)

type Handler struct {
	reg      *session.Registry
	svc      *Service
	notify   Notifier
	maxBytes int64
}

func NewHandler(reg *session.Registry, svc *Service, notify Notifier, maxBytes int64) *Handler {
	return &Handler{reg: reg, svc: svc, notify: notify, maxBytes: maxBytes}
}

// Mount registers the API routes under r.
func (h *Handler) Mount(r fiber.Router) {
	r.Post("/sessions", h.CreateSession)

	sess := r.Group("/sessions/:id", middleware.SessionLookup(h.reg))
	sess.Get("", h.GetSession)
	sess.Delete("", h.DeleteSession)
	sess.Post("/extract", middleware.ImageUploadValidator(h.maxBytes), h.Extract)

	r.Post("/text/stats", h.Stats)
	r.Post("/text/download", h.Download)
}

type SessionView struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
}

func viewOf(s *session.Session) SessionView {
	return SessionView{
		ID:        s.ID,
		State:     s.Manager.State().String(),
		Language:  s.Manager.Language(),
		CreatedAt: s.Created,
	}
}

func (h *Handler) CreateSession(c *fiber.Ctx) error {
	s := h.reg.Open(c.UserContext())
	log := middleware.Logger(c)
	log.Info().Str("session_id", s.ID).Msg("session_created")
	return c.Status(fiber.StatusCreated).JSON(viewOf(s))
}

func (h *Handler) GetSession(c *fiber.Ctx) error {
	return c.JSON(viewOf(middleware.CurrentSession(c)))
}

func (h *Handler) DeleteSession(c *fiber.Ctx) error {
	id := middleware.CurrentSession(c).ID
	if err := h.reg.Close(c.UserContext(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Session not found. Please start a new session."})
		}
		log := middleware.Logger(c)
		log.Error().Err(err).Str("session_id", id).Msg("session_close_fail")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
	}
	h.notify.BroadcastSessionClosed(id)
	return c.JSON(fiber.Map{"id": id, "state": recognition.Terminated.String()})
}

func (h *Handler) Extract(c *fiber.Ctx) error {
	s := middleware.CurrentSession(c)
	im, ok := middleware.UploadedImage(c)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Please select an image first."})
	}

	log := middleware.Logger(c).With().Str("session_id", s.ID).Logger()
	log.Info().Int("bytes", len(im.Data)).Str("mime", im.MIME).Msg("extract_requested")

	res, err := h.svc.Extract(c.UserContext(), s, im)
	if err != nil {
		status, msg := StatusFor(err)
		log.Warn().Err(err).AnErr("cause", errors.Unwrap(err)).Int("status", status).Msg("extract_failed")
		return c.Status(status).JSON(fiber.Map{"error": msg})
	}
	return c.JSON(res)
}

type textBody struct {
	Text     string `json:"text" form:"text"`
	Filename string `json:"filename" form:"filename"`
}

func (h *Handler) Stats(c *fiber.Ctx) error {
	var body textBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	return c.JSON(textutil.Count(body.Text))
}

func (h *Handler) Download(c *fiber.Ctx) error {
	var body textBody
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if body.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "There is no text to download."})
	}
	name := textutil.Filename(body.Filename)
	c.Set(fiber.HeaderContentDisposition, "attachment; filename="+strconv.Quote(name))
	c.Type("txt", "utf-8")
	return c.SendString(body.Text)
}

// StatusFor maps recognition errors to an HTTP status and the message shown
// to the user. Engine details never reach the response.
func StatusFor(err error) (int, string) {
	var (
		initErr *recognition.InitializationError
		extErr  *recognition.ExtractionError
		lifeErr *recognition.LifecycleError
		busyErr *recognition.ConcurrencyError
	)
	switch {
	case errors.As(err, &initErr):
		return fiber.StatusServiceUnavailable, initErr.Error()
	case errors.As(err, &extErr):
		return fiber.StatusUnprocessableEntity, extErr.Error()
	case errors.As(err, &lifeErr):
		return fiber.StatusGone, lifeErr.Error()
	case errors.As(err, &busyErr):
		return fiber.StatusConflict, busyErr.Error()
	default:
		return fiber.StatusInternalServerError, "internal error"
	}
}
