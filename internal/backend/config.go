package backend

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

type Config struct {
	//required fields
	OllamaURL     string // e.g. http://localhost:11434
	GeminiBaseURL string // e.g. https://generativelanguage.googleapis.com/v1beta

	// Optional: empty disables the cloud pipelines.
	GeminiAPIKey     string
	GeminiFlashModel string // default: gemini-2.5-flash
	GeminiProModel   string // default: gemini-2.5-pro

	UpstreamTimeout time.Duration // per-call timeout (default: 5m)
	MaxRetries      int           // retry attempts (default: 2)
	BaseBackoff     time.Duration // initial backoff (default: 100ms)

	// Optional connection pool settings
	MaxIdleConns        int // default: 32
	MaxIdleConnsPerHost int // default: 8

	// Custom HTTP client (for testing or special configs)
	HTTPClient *http.Client
}

// Validate checks required fields only.
func (c *Config) Validate() error {
	if c.OllamaURL == "" {
		return errors.New("OllamaURL is required")
	}
	if c.GeminiBaseURL == "" {
		return errors.New("GeminiBaseURL is required")
	}
	return nil
}

// WithDefaults returns a copy of Config with sane defaults applied.
func (c *Config) WithDefaults() Config {
	cfg := *c

	cfg.OllamaURL = strings.TrimRight(cfg.OllamaURL, "/")
	cfg.GeminiBaseURL = strings.TrimRight(cfg.GeminiBaseURL, "/")

	if cfg.GeminiFlashModel == "" {
		cfg.GeminiFlashModel = "gemini-2.5-flash"
	}
	if cfg.GeminiProModel == "" {
		cfg.GeminiProModel = "gemini-2.5-pro"
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = 5 * time.Minute
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 32
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = 8
	}

	return cfg
}

// Client talks to the local generation server and the Gemini REST API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a backend client with the given configuration.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Transport: defaultTransport(cfg),
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger.Named("backend"),
	}, nil
}

// defaultTransport creates an HTTP transport with connection pooling and
// dial/handshake timeouts. Whole-call deadlines come from UpstreamTimeout.
func defaultTransport(cfg Config) *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// GeminiConfigured reports whether an API key is present.
func (c *Client) GeminiConfigured() bool {
	return c.cfg.GeminiAPIKey != ""
}

// Close releases resources held by the client.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
