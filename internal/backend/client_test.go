package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, ollamaURL, geminiURL, key string) *Client {
	t.Helper()
	client, err := NewClient(Config{
		OllamaURL:     ollamaURL,
		GeminiBaseURL: geminiURL,
		GeminiAPIKey:  key,
		BaseBackoff:   time.Millisecond,
	}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewClient(Config{}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatalf("expected validation error, got nil")
	}
}

func TestGenerateConcatenatesStream(t *testing.T) {
	t.Parallel()

	var gotReq generateRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotReq); err != nil {
			t.Errorf("unmarshal request: %v", err)
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		flusher := w.(http.Flusher)
		for _, line := range []string{
			`{"response":"| Field |","done":false}`,
			`not json at all`,
			``,
			`{"response":" Value |","done":false}`,
			`{"response":"","done":true}`,
		} {
			fmt.Fprintln(w, line)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "")

	res := client.Generate(context.Background(), GenerateRequest{
		Model:  "llava:latest",
		Family: "LLaVA",
		Prompt: "Describe the contents of this image.",
		Images: [][]byte{[]byte("png-bytes")},
	})

	if res.Kind != KindOK {
		t.Fatalf("expected ok result, got %v (%s)", res.Kind, res.Display())
	}
	if res.Display() != "| Field | Value |" {
		t.Fatalf("unexpected text: %q", res.Display())
	}
	if gotReq.Model != "llava:latest" || gotReq.Prompt != "Describe the contents of this image." {
		t.Fatalf("unexpected request: %#v", gotReq)
	}
	if len(gotReq.Images) != 1 || gotReq.Images[0] != base64.StdEncoding.EncodeToString([]byte("png-bytes")) {
		t.Fatalf("image not base64 encoded: %#v", gotReq.Images)
	}
}

func TestGenerateTextOnlyOmitsImages(t *testing.T) {
	t.Parallel()

	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&raw)
		fmt.Fprintln(w, `{"response":"ok","done":true}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "")
	res := client.Generate(context.Background(), GenerateRequest{Model: "llama3:8b", Family: "LLM", Prompt: "hi"})

	if res.Display() != "ok" {
		t.Fatalf("unexpected text: %q", res.Display())
	}
	if _, ok := raw["images"]; ok {
		t.Fatalf("text-only request must not carry images: %#v", raw)
	}
}

func TestGenerateEmptyStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"response":"","done":true}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "")
	res := client.Generate(context.Background(), GenerateRequest{Model: "gemma3:27b", Family: "Gemma3", Prompt: "x"})

	if res.Kind != KindEmpty {
		t.Fatalf("expected empty kind, got %v", res.Kind)
	}
	if got := res.Display(); got != "No response from Gemma3." {
		t.Fatalf("unexpected sentinel: %q", got)
	}
}

func TestGenerateNonSuccessStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model 'llama4:latest' not found"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "")
	res := client.Generate(context.Background(), GenerateRequest{Model: "llama4:latest", Family: "Llama4", Prompt: "x"})

	if res.Kind != KindUpstream || res.Status != http.StatusNotFound {
		t.Fatalf("expected upstream 404, got %v/%d", res.Kind, res.Status)
	}
	if got := res.Display(); got != `Error: {"error":"model 'llama4:latest' not found"}` {
		t.Fatalf("unexpected display: %q", got)
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, `{"response":"recovered","done":true}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "")
	res := client.Generate(context.Background(), GenerateRequest{Model: "m", Family: "M", Prompt: "x"})

	if res.Display() != "recovered" {
		t.Fatalf("unexpected display: %q", res.Display())
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 calls, got %d", calls.Load())
	}
}

func TestGenerateTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url, url, "")
	res := client.Generate(context.Background(), GenerateRequest{Model: "llava:latest", Family: "LLaVA", Prompt: "x"})

	if res.Kind != KindTransport {
		t.Fatalf("expected transport kind, got %v", res.Kind)
	}
	if !strings.HasPrefix(res.Display(), "Error during LLaVA inference: ") {
		t.Fatalf("unexpected display: %q", res.Display())
	}
}

func TestGenerateContextCancelled(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the server only notices a client disconnect once the body is drained
		_, _ = io.Copy(io.Discard, r.Body)
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	client := newTestClient(t, srv.URL, srv.URL, "")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res := client.Generate(ctx, GenerateRequest{Model: "m", Family: "M", Prompt: "x"})
	if res.Kind != KindTransport || !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline transport error, got %v: %v", res.Kind, res.Err)
	}
}

func TestGenerateContentSuccess(t *testing.T) {
	t.Parallel()

	var gotReq geminiRequest
	var gotKey, gotPath string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"| Field | Value |"}]}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "secret-key")
	res := client.GenerateContent(context.Background(), VisionRequest{
		Tier:     TierPro,
		Family:   "Gemini 2.5 Pro",
		Prompt:   "Extract all fields and tables from this document as markdown.",
		MIMEType: "image/png",
		Image:    []byte("png"),
	})

	if res.Display() != "| Field | Value |" {
		t.Fatalf("unexpected display: %q", res.Display())
	}
	if gotPath != "/models/gemini-2.5-pro:generateContent" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotKey != "secret-key" {
		t.Fatalf("api key not sent as query param: %q", gotKey)
	}
	parts := gotReq.Contents[0].Parts
	if len(parts) != 2 || parts[0].Text == "" || parts[1].InlineData == nil {
		t.Fatalf("unexpected parts: %#v", parts)
	}
	if parts[1].InlineData.MimeType != "image/png" || parts[1].InlineData.Data != base64.StdEncoding.EncodeToString([]byte("png")) {
		t.Fatalf("unexpected inline data: %#v", parts[1].InlineData)
	}
}

func TestGenerateContentMissingKeySkipsHTTP(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "")
	if client.GeminiConfigured() {
		t.Fatalf("client without key must not report configured")
	}

	res := client.GenerateContent(context.Background(), VisionRequest{Tier: TierFlash, Family: "Gemini 2.5 Flash", Image: []byte("x")})
	if res.Kind != KindNotConfigured || res.Display() != "Gemini API key not set." {
		t.Fatalf("unexpected result: %v %q", res.Kind, res.Display())
	}
	if calls.Load() != 0 {
		t.Fatalf("expected no HTTP call, got %d", calls.Load())
	}
}

func TestGenerateContentUnexpectedShapeFallsBackToBody(t *testing.T) {
	t.Parallel()

	const body = `{"promptFeedback":{"blockReason":"SAFETY"}}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "k")
	res := client.GenerateContent(context.Background(), VisionRequest{Tier: TierFlash, Family: "Gemini 2.5 Flash", Image: []byte("x")})

	if res.Kind != KindOK || res.Display() != body {
		t.Fatalf("expected raw body fallback, got %v %q", res.Kind, res.Display())
	}
}

func TestGenerateContentClientError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL, srv.URL, "bad")
	res := client.GenerateContent(context.Background(), VisionRequest{Tier: TierFlash, Family: "Gemini 2.5 Flash", Image: []byte("x")})

	if got := res.Display(); got != `Error: {"error":{"message":"API key not valid"}}` {
		t.Fatalf("unexpected display: %q", got)
	}
}

func TestGenerateContentRedactsKeyFromTransportErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := newTestClient(t, url, url, "super-secret")
	res := client.GenerateContent(context.Background(), VisionRequest{Tier: TierFlash, Family: "Gemini 2.5 Flash", Image: []byte("x")})

	if res.Kind != KindTransport {
		t.Fatalf("expected transport kind, got %v", res.Kind)
	}
	if strings.Contains(res.Display(), "super-secret") {
		t.Fatalf("api key leaked into display: %q", res.Display())
	}
	if !strings.HasPrefix(res.Display(), "Error during Gemini 2.5 Flash inference: ") {
		t.Fatalf("unexpected display: %q", res.Display())
	}
}
