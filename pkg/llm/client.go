package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haneul-labs/mailaction/pkg/logging"
	"github.com/haneul-labs/mailaction/pkg/observability"
)

// Default client settings.
const (
	DefaultAPIVersion = "2024-02-01"
	DefaultTimeout    = 60 * time.Second
)

// Client talks to an Azure-OpenAI-compatible REST endpoint. It implements
// both Completer and Embedder.
type Client struct {
	endpoint            string
	apiKey              string
	apiVersion          string
	embeddingDeployment string
	httpClient          *http.Client
	log                 logging.Logger
}

var (
	_ Completer = (*Client)(nil)
	_ Embedder  = (*Client)(nil)
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(v string) Option {
	return func(c *Client) { c.apiVersion = v }
}

// WithTimeout sets the per-call HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// NewClient creates a client for the given endpoint and API key.
// embeddingDeployment names the deployment used for Embed calls.
func NewClient(endpoint, apiKey, embeddingDeployment string, log logging.Logger, opts ...Option) *Client {
	if log == nil {
		log = logging.NewNopLogger()
	}
	c := &Client{
		endpoint:            strings.TrimRight(endpoint, "/"),
		apiKey:              apiKey,
		apiVersion:          DefaultAPIVersion,
		embeddingDeployment: embeddingDeployment,
		httpClient:          &http.Client{Timeout: DefaultTimeout},
		log:                 log.With(logging.F("component", "llm_client")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// chatResponse is the wire shape of a completion response.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a chat completion request and returns the first choice's text.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (_ string, err error) {
	defer func() { recordCall("completion", err) }()

	payload := map[string]any{
		"messages":    req.Messages,
		"temperature": req.Temperature,
		"max_tokens":  req.MaxTokens,
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, req.Model, c.apiVersion)

	start := time.Now()
	body, err := c.post(ctx, url, payload)
	if err != nil {
		return "", err
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decoding completion response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("completion service error %s: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty completion: no choices returned")
	}

	content := strings.TrimSpace(parsed.Choices[0].Message.Content)
	c.log.Debug("completion call finished",
		logging.F("model", req.Model),
		logging.F("duration", time.Since(start)),
		logging.F("response_len", len(content)))

	return content, nil
}

// embeddingResponse is the wire shape of an embedding response.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns one vector per input text, in input order.
func (c *Client) Embed(ctx context.Context, texts []string) (_ [][]float32, err error) {
	if len(texts) == 0 {
		return nil, nil
	}
	defer func() { recordCall("embedding", err) }()

	url := fmt.Sprintf("%s/openai/deployments/%s/embeddings?api-version=%s",
		c.endpoint, c.embeddingDeployment, c.apiVersion)

	body, err := c.post(ctx, url, map[string]any{"input": texts})
	if err != nil {
		return nil, err
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding embedding response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("embedding service error %s: %s", parsed.Error.Code, parsed.Error.Message)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors", len(texts), len(parsed.Data))
	}

	vectors := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, nil
}

// post sends a JSON POST and returns the response body.
func (c *Client) post(ctx context.Context, url string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return body, nil
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("rate limit exceeded: HTTP 429: %s", truncateBody(body))
	default:
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncateBody(body))
	}
}

// recordCall counts one external call by kind and outcome.
func recordCall(kind string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	observability.LLMCalls.WithLabelValues(kind, status).Inc()
}

func truncateBody(b []byte) string {
	const max = 500
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
