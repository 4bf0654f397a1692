// Package openaicompat implements domain.AIClient against an OpenAI-compatible
// chat-completions server, such as a locally hosted llama runtime.
package openaicompat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/ai-interview-coach/internal/config"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
	"github.com/fairyhunter13/ai-interview-coach/internal/observability"
)

// Client talks to {base}/v1/chat/completions and {base}/v1/models.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	metrics domain.MetricsSink

	modelMu       sync.Mutex
	resolvedModel string
}

// New constructs a client with the configured timeout. A nil metrics sink is
// replaced by a no-op sink.
func New(cfg config.Config, metrics domain.MetricsSink) *Client {
	if metrics == nil {
		metrics = domain.NopMetrics{}
	}
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "llm " + r.URL.Path
		}),
	)
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: cfg.LLMTimeout, Transport: transport},
		metrics: metrics,
	}
}

type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	Temperature float64              `json:"temperature"`
	MaxTokens   int                  `json:"max_tokens,omitempty"`
	Stream      bool                 `json:"stream"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type modelsResponse struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Complete performs one chat completion with exponential-backoff retries on
// transient failures. The response content is returned verbatim.
func (c *Client) Complete(ctx domain.Context, messages []domain.ChatMessage, opts domain.ChatOptions) (string, error) {
	lg := observability.LoggerFromContext(ctx)
	model, err := c.model(ctx)
	if err != nil {
		return "", fmt.Errorf("op=ai.complete: resolve model: %w", err)
	}

	body := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      false,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("op=ai.complete: marshal: %w", err)
	}

	expo := backoff.NewExponentialBackOff()
	maxElapsed, initial, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsed
	expo.InitialInterval = initial
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	var content string
	start := time.Now()
	op := func() error {
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LLMBaseURL+"/v1/chat/completions", bytes.NewReader(payload))
		if reqErr != nil {
			return backoff.Permanent(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.cfg.LLMAPIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
		}
		resp, doErr := c.hc.Do(req)
		if doErr != nil {
			lg.Warn("ai request failed", "error", doErr, "model", model)
			return doErr
		}
		defer func() { _ = resp.Body.Close() }()
		raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if readErr != nil {
			return readErr
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("upstream status %d: %s", resp.StatusCode, snippet(raw))
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("upstream status %d: %s", resp.StatusCode, snippet(raw)))
		}
		var cr chatResponse
		if umErr := json.Unmarshal(raw, &cr); umErr != nil {
			return backoff.Permanent(fmt.Errorf("decode response: %w", umErr))
		}
		if len(cr.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("empty choices in response"))
		}
		content = cr.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(expo, ctx)); err != nil {
		c.metrics.IncCounter("ai_request_failed", "chat")
		return "", fmt.Errorf("op=ai.complete: %w", err)
	}
	c.metrics.IncCounter("ai_request_ok", "chat")
	c.metrics.Observe("ai_request_seconds", time.Since(start).Seconds(), "chat")
	lg.Debug("ai completion ok", "model", model, "messages", len(messages))
	return content, nil
}

// CheckAvailability probes GET /v1/models, mirroring how the backend's own
// clients detect a live server.
func (c *Client) CheckAvailability(ctx domain.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LLMBaseURL+"/v1/models", nil)
	if err != nil {
		return err
	}
	if c.cfg.LLMAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("op=ai.check: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("op=ai.check: status %d", resp.StatusCode)
	}
	return nil
}

// model returns the configured model, or resolves and caches the first model
// the server advertises when none is configured.
func (c *Client) model(ctx domain.Context) (string, error) {
	if c.cfg.LLMModel != "" {
		return c.cfg.LLMModel, nil
	}
	c.modelMu.Lock()
	defer c.modelMu.Unlock()
	if c.resolvedModel != "" {
		return c.resolvedModel, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.LLMBaseURL+"/v1/models", nil)
	if err != nil {
		return "", err
	}
	if c.cfg.LLMAPIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.LLMAPIKey)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	var mr modelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&mr); err != nil || len(mr.Data) == 0 {
		// The server is up but not advertising models; use a stable default.
		c.resolvedModel = "meta-llama-3.1-8b-instruct"
		return c.resolvedModel, nil
	}
	c.resolvedModel = mr.Data[0].ID
	return c.resolvedModel, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
