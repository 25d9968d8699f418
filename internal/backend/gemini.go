package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"scanlab/internal/metrics"
)

const (
	backendGemini = "gemini"

	// generateContent rejects requests above 20MB, base64 included.
	maxInlineImageBytes = 14 * 1024 * 1024
)

// Tier selects the Gemini model.
type Tier string

const (
	TierFlash Tier = "flash"
	TierPro   Tier = "pro"
)

// VisionRequest is one generateContent call with a single inline image.
type VisionRequest struct {
	Tier     Tier
	Family   string // e.g. "Gemini 2.5 Flash"
	Prompt   string
	MIMEType string
	Image    []byte
}

// GenerateContent sends the prompt and image to Gemini. A missing API key
// short-circuits without any HTTP call.
func (c *Client) GenerateContent(parentCtx context.Context, req VisionRequest) (res Result) {
	if c.cfg.GeminiAPIKey == "" {
		return NotConfigured(GeminiKeyMissing)
	}

	start := time.Now()
	op := req.Family + " inference"

	defer func() {
		metrics.BackendLatencySeconds.
			WithLabelValues(backendGemini, res.Kind.String()).
			Observe(time.Since(start).Seconds())
	}()

	if len(req.Image) > maxInlineImageBytes {
		return Transport(op, fmt.Errorf("image too large for inline upload (%d bytes, max %d)",
			len(req.Image), maxInlineImageBytes))
	}

	mimeType := req.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}

	pReq := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: req.Prompt},
				{InlineData: &geminiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
	}

	bodyBytes, err := json.Marshal(pReq)
	if err != nil {
		return Transport(op, fmt.Errorf("marshal request: %w", err))
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?%s",
		c.cfg.GeminiBaseURL,
		url.PathEscape(c.modelFor(req.Tier)),
		url.Values{"key": {c.cfg.GeminiAPIKey}}.Encode(),
	)

	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build HTTP request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.doWithRetry(ctx, backendGemini, bodyBytes, doOnce)
	if err != nil {
		err = c.redact(err)
		c.logger.Error("gemini request failed",
			zap.String("tier", string(req.Tier)),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return Transport(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Transport(op, c.redact(fmt.Errorf("read response: %w", err)))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("gemini upstream error",
			zap.String("tier", string(req.Tier)),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return Upstream(resp.StatusCode, string(body))
	}

	c.logger.Info("gemini request completed",
		zap.String("tier", string(req.Tier)),
		zap.Int("response_bytes", len(body)),
		zap.Duration("duration", time.Since(start)),
	)

	text, ok := candidateText(body)
	if !ok {
		// unexpected shape: show what came back rather than nothing
		return OK(string(body))
	}
	if text == "" {
		return Empty(req.Family)
	}
	return OK(text)
}

// candidateText extracts candidates[0].content.parts[0].text.
func candidateText(body []byte) (string, bool) {
	var pResp geminiResponse
	if err := json.Unmarshal(body, &pResp); err != nil {
		return "", false
	}
	if len(pResp.Candidates) == 0 || len(pResp.Candidates[0].Content.Parts) == 0 {
		return "", false
	}
	return pResp.Candidates[0].Content.Parts[0].Text, true
}

func (c *Client) modelFor(t Tier) string {
	if t == TierPro {
		return c.cfg.GeminiProModel
	}
	return c.cfg.GeminiFlashModel
}

// redact strips the API key that *url.Error embeds in its message.
func (c *Client) redact(err error) error {
	if err == nil || c.cfg.GeminiAPIKey == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, c.cfg.GeminiAPIKey) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, c.cfg.GeminiAPIKey, "REDACTED"))
}
