package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EngineTesseract = "tesseract"
	EngineOpenAI    = "openai"
)

type Config struct {
	AppEnv, AppPort string
	CORSOrigins     []string

	RedisAddr string
	RedisDB   int

	OCRLang         string
	OCREngine       string
	OCRPageSegMode  int
	OCRTessdataDir  string
	OCROpenAIModel  string
	OCROpenAIKey    string
	OCROpenAIURL    string
	OCRImgMaxW      int
	OCRImgQuality   int
	OCRImgGrayscale bool
	OCRCacheTTL     time.Duration
	OCRTimeout      time.Duration

	OpenAIRPS          int
	OpenAIBurst        int
	ProviderMaxRetries int

	SessionIdleTTL time.Duration

	RateLimitMax    int
	RateLimitWindow time.Duration

	MaxBodyLimit       int
	AllowedMaxFileSize int
}

func Load() *Config {
	_ = godotenv.Load()

	c := &Config{
		AppEnv:             get("APP_ENV", "dev"),
		AppPort:            get("APP_PORT", "8080"),
		CORSOrigins:        GetEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),
		RedisAddr:          get("REDIS_ADDR", ""),
		RedisDB:            atoi(get("REDIS_DB", "0")),
		OCRLang:            get("OCR_LANG", "eng"),
		OCREngine:          strings.ToLower(get("OCR_ENGINE", EngineTesseract)),
		OCRPageSegMode:     atoi(get("OCR_PSM", "3")),
		OCRTessdataDir:     get("OCR_TESSDATA_DIR", ""),
		OCROpenAIModel:     get("OCR_OPENAI_MODEL", "gpt-4o-mini"),
		OCROpenAIURL:       get("OCR_OPENAI_URL", "https://api.openai.com/v1/chat/completions"),
		OCRImgMaxW:         atoi(get("OCR_IMG_MAX_W", "2000")),
		OCRImgQuality:      atoi(get("OCR_IMG_QUALITY", "85")),
		OCRImgGrayscale:    parseBool(get("OCR_IMG_GRAYSCALE", "true")),
		OCRCacheTTL:        mustDuration(get("OCR_CACHE_TTL", "168h")),
		OCRTimeout:         mustDuration(get("OCR_TIMEOUT", "90s")),
		OpenAIRPS:          atoi(get("OPENAI_RPS", "2")),
		OpenAIBurst:        atoi(get("OPENAI_BURST", "2")),
		ProviderMaxRetries: atoi(get("PROVIDER_MAX_RETRIES", "3")),
		SessionIdleTTL:     mustDuration(get("SESSION_IDLE_TTL", "30m")),
		RateLimitMax:       GetEnvInt("RATE_LIMIT_MAX", 60),
		RateLimitWindow:    mustDuration(get("RATE_LIMIT_WINDOW", "1m")),
		MaxBodyLimit:       GetEnvInt("MAX_BODY_LIMIT", 12),
		AllowedMaxFileSize: GetEnvInt("ALLOWED_MAX_FILE_SIZE", 10),
	}
	if c.OCREngine == EngineOpenAI {
		c.OCROpenAIKey = must("OCR_OPENAI_KEY")
	}
	return c
}

// MaxFileBytes is the upload cap in bytes.
func (c *Config) MaxFileBytes() int64 {
	return int64(c.AllowedMaxFileSize) * 1024 * 1024
}

// BodyLimitBytes is the request body cap. It never drops below what an
// upload at the file cap needs when sent base64-encoded as a data URI.
func (c *Config) BodyLimitBytes() int {
	return BodyLimitFor(int64(c.MaxBodyLimit)*1024*1024, c.MaxFileBytes())
}

// BodyLimitFor returns bodyBytes raised to fit a data URI carrying fileBytes.
func BodyLimitFor(bodyBytes, fileBytes int64) int {
	// base64 grows by 4/3, plus room for the JSON envelope and data URI header
	need := (fileBytes+2)/3*4 + 64*1024
	return int(max(bodyBytes, need))
}

func GetEnvInt(k string, d int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return d
}

func GetEnvList(k string, d []string) []string {
	if v := split(os.Getenv(k)); len(v) > 0 {
		return v
	}
	return d
}

func get(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
func must(k string) string {
	v := os.Getenv(k)
	if v == "" {
		log.Fatalf("missing env %s", k)
	}
	return v
}
func atoi(s string) int                   { i, _ := strconv.Atoi(s); return i }
func parseBool(s string) bool             { b, _ := strconv.ParseBool(s); return b }
func mustDuration(s string) time.Duration { d, _ := time.ParseDuration(s); return d }
func split(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func GetEnv(k, d string) string {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	return v
}
