package img

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/emandor/imagetext_service/internal/recognition"
)

var (
	ErrNotDataURI = errors.New("not a base64 data URI")
	ErrNotImage   = errors.New("not an image")
)

// DecodeDataURI parses "data:image/png;base64,...." into an image payload.
// The declared MIME type must be an image type.
func DecodeDataURI(s string) (recognition.Image, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "data:") {
		return recognition.Image{}, ErrNotDataURI
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return recognition.Image{}, ErrNotDataURI
	}
	mime := strings.ToLower(strings.TrimSuffix(meta, ";base64"))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") {
		return recognition.Image{}, ErrNotImage
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return recognition.Image{}, err
	}
	return recognition.Image{Data: data, MIME: mime}, nil
}

// SniffMIME returns the content type detected from the leading bytes.
func SniffMIME(data []byte) string {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return http.DetectContentType(head)
}

// Fingerprint is the cache key for an upload: sha256 of the raw bytes.
func Fingerprint(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
