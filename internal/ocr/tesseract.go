package ocr

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"scanlab/internal/metrics"
	"scanlab/pkg/logging/logging"
)

// TesseractEngine implements Engine with the gosseract client. Each call gets
// its own client since gosseract clients are not safe for concurrent use.
type TesseractEngine struct {
	clientFactory func() *gosseract.Client
	languages     []string
}

// NewTesseractEngine constructs a Tesseract-backed engine. No languages means
// Tesseract's default ("eng").
func NewTesseractEngine(languages ...string) *TesseractEngine {
	return &TesseractEngine{
		clientFactory: gosseract.NewClient,
		languages:     append([]string(nil), languages...),
	}
}

func (e *TesseractEngine) Name() string { return "tesseract" }

func (e *TesseractEngine) Recognize(ctx context.Context, imagePath string) (string, error) {
	// the cgo call itself cannot be interrupted
	if err := ctx.Err(); err != nil {
		return "", err
	}

	start := time.Now()
	defer func() {
		metrics.OCRDurationSeconds.Observe(time.Since(start).Seconds())
	}()

	c := e.clientFactory()
	defer c.Close()

	if len(e.languages) > 0 {
		if err := c.SetLanguage(e.languages...); err != nil {
			return "", fmt.Errorf("set languages: %w", err)
		}
	}
	if err := c.SetImage(imagePath); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	plain := strings.TrimSpace(text)

	logging.L(ctx).Debug("ocr completed",
		zap.String("engine", e.Name()),
		zap.String("image", imagePath),
		zap.Int("chars", len(plain)),
		zap.Duration("duration", time.Since(start)),
	)

	return plain, nil
}
