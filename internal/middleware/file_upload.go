package middleware

import (
	"fmt"
	"io"
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/emandor/imagetext_service/internal/img"
	"github.com/emandor/imagetext_service/internal/recognition"
)

const ImageKey = "image"

const msgInvalidImage = "Please select a valid image file (JPG, PNG, GIF, WebP, etc.)"

// ImageUploadValidator accepts either a multipart file field "image" or a
// base64 data URI in "data_uri" (form field or JSON body). The payload must
// sniff as an image and be at most maxBytes. The decoded recognition.Image
// is stored under ImageKey.
func ImageUploadValidator(maxBytes int64) fiber.Handler {
	return func(c *fiber.Ctx) error {
		im, ferr := readImage(c, maxBytes)
		if ferr != nil {
			log := Logger(c)
			log.Info().Int("status", ferr.Code).Str("reason", ferr.Message).Msg("upload_rejected")
			return c.Status(ferr.Code).JSON(fiber.Map{"error": ferr.Message})
		}
		c.Locals(ImageKey, im)
		return c.Next()
	}
}

// UploadedImage returns the payload stored by ImageUploadValidator.
func UploadedImage(c *fiber.Ctx) (recognition.Image, bool) {
	im, ok := c.Locals(ImageKey).(recognition.Image)
	return im, ok
}

func readImage(c *fiber.Ctx, maxBytes int64) (recognition.Image, *fiber.Error) {
	if fh, err := c.FormFile("image"); err == nil {
		return validateFile(fh, maxBytes)
	}

	uri := c.FormValue("data_uri")
	if uri == "" && c.Is("json") {
		var body struct {
			DataURI string `json:"data_uri"`
		}
		if err := c.BodyParser(&body); err != nil {
			return recognition.Image{}, fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		uri = body.DataURI
	}
	if uri != "" {
		return validateDataURI(uri, maxBytes)
	}
	return recognition.Image{}, fiber.NewError(fiber.StatusBadRequest, "Please select an image first.")
}

// validateFile checks the file size and sniffed content type
func validateFile(file *multipart.FileHeader, maxBytes int64) (recognition.Image, *fiber.Error) {
	if file.Size > maxBytes {
		return recognition.Image{}, tooLarge(maxBytes)
	}

	f, err := file.Open()
	if err != nil {
		return recognition.Image{}, fiber.NewError(fiber.StatusBadRequest, "cannot open file")
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return recognition.Image{}, fiber.NewError(fiber.StatusBadRequest, "cannot read file")
	}
	if int64(len(data)) > maxBytes {
		return recognition.Image{}, tooLarge(maxBytes)
	}
	return sniffImage(data)
}

func validateDataURI(uri string, maxBytes int64) (recognition.Image, *fiber.Error) {
	// base64 inflates by 4/3; reject early before decoding
	if int64(len(uri)) > maxBytes/3*4+1024 {
		return recognition.Image{}, tooLarge(maxBytes)
	}
	im, err := img.DecodeDataURI(uri)
	if err != nil {
		return recognition.Image{}, fiber.NewError(fiber.StatusUnsupportedMediaType, msgInvalidImage)
	}
	if int64(len(im.Data)) > maxBytes {
		return recognition.Image{}, tooLarge(maxBytes)
	}
	return sniffImage(im.Data)
}

// the declared type is never trusted; magic bytes decide
func sniffImage(data []byte) (recognition.Image, *fiber.Error) {
	if len(data) == 0 {
		return recognition.Image{}, fiber.NewError(fiber.StatusBadRequest, "Please select an image first.")
	}
	mime := img.SniffMIME(data)
	if !strings.HasPrefix(mime, "image/") {
		return recognition.Image{}, fiber.NewError(fiber.StatusUnsupportedMediaType, msgInvalidImage)
	}
	return recognition.Image{Data: data, MIME: mime}, nil
}

func tooLarge(maxBytes int64) *fiber.Error {
	return fiber.NewError(fiber.StatusRequestEntityTooLarge,
		fmt.Sprintf("Image file is too large. Please select an image under %dMB.", maxBytes/(1024*1024)))
}
