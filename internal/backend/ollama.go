package backend

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"scanlab/internal/metrics"
)

const backendOllama = "ollama"

// GenerateRequest is one call to the local generation server.
type GenerateRequest struct {
	Model string
	// Family names the model in user-facing messages, e.g. "LLaVA".
	Family string
	Prompt string
	Images [][]byte
}

// Generate posts to /api/generate and concatenates the streamed response
// fragments. It never returns an error: failures are encoded in the Result.
func (c *Client) Generate(parentCtx context.Context, req GenerateRequest) (res Result) {
	start := time.Now()
	op := req.Family + " inference"

	defer func() {
		metrics.BackendLatencySeconds.
			WithLabelValues(backendOllama, res.Kind.String()).
			Observe(time.Since(start).Seconds())
	}()

	pReq := generateRequest{
		Model:  req.Model,
		Prompt: req.Prompt,
	}
	for _, img := range req.Images {
		pReq.Images = append(pReq.Images, base64.StdEncoding.EncodeToString(img))
	}

	bodyBytes, err := json.Marshal(pReq)
	if err != nil {
		return Transport(op, fmt.Errorf("marshal request: %w", err))
	}

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	url := c.cfg.OllamaURL + "/api/generate"

	doOnce := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build HTTP request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(httpReq)
	}

	c.logger.Debug("generate request starting",
		zap.String("model", req.Model),
		zap.Int("prompt_bytes", len(req.Prompt)),
		zap.Int("images", len(req.Images)),
	)

	resp, err := c.doWithRetry(ctx, backendOllama, bodyBytes, doOnce)
	if err != nil {
		c.logger.Error("generate request failed",
			zap.String("model", req.Model),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return Transport(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("generate upstream error",
			zap.String("model", req.Model),
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body), 200)),
		)
		return Upstream(resp.StatusCode, string(body))
	}

	// ---------- Read newline-delimited JSON stream ----------

	reader := bufio.NewReader(resp.Body)
	var out strings.Builder
	chunkCount := 0

	for {
		line, err := reader.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			var chunk generateChunk
			if jerr := json.Unmarshal(bytes.TrimSpace(line), &chunk); jerr != nil {
				// partial or foreign lines are skipped, not fatal
				c.logger.Debug("skipping undecodable stream line", zap.Error(jerr))
			} else if chunk.Error != "" {
				c.logger.Error("generate stream error",
					zap.String("model", req.Model),
					zap.String("error", chunk.Error),
				)
				return Upstream(resp.StatusCode, chunk.Error)
			} else {
				out.WriteString(chunk.Response)
				chunkCount++
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return Transport(op, fmt.Errorf("read stream: %w", err))
		}
	}

	c.logger.Info("generate request completed",
		zap.String("model", req.Model),
		zap.Int("chunks", chunkCount),
		zap.Int("response_bytes", out.Len()),
		zap.Duration("duration", time.Since(start)),
	)

	if out.Len() == 0 {
		return Empty(req.Family)
	}
	return OK(out.String())
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
