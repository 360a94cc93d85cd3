package ocr

import (
	"fmt"

	"github.com/emandor/imagetext_service/internal/config"
	"github.com/emandor/imagetext_service/internal/recognition"
)

// NewFactory picks the engine named by OCR_ENGINE.
func NewFactory(cfg *config.Config) (recognition.Factory, error) {
	switch cfg.OCREngine {
	case config.EngineTesseract, "":
		return TesseractFactory(TesseractOptions{
			PageSegMode: cfg.OCRPageSegMode,
			TessdataDir: cfg.OCRTessdataDir,
		}), nil
	case config.EngineOpenAI:
		return OpenAIVisionFactory(
			cfg.OCROpenAIKey,
			cfg.OCROpenAIModel,
			cfg.OCROpenAIURL,
			cfg.OpenAIRPS,
			cfg.OpenAIBurst,
			cfg.ProviderMaxRetries,
		), nil
	default:
		return nil, fmt.Errorf("unknown OCR_ENGINE %q", cfg.OCREngine)
	}
}
