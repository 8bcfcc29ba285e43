// Package llamacpp provides an LLM provider backed by a local llama.cpp
// server (llama-server) speaking the OpenAI-compatible chat API.
//
// llama.cpp converts JSON schemas into GBNF grammars server-side, so this
// provider reports SupportsJSONSchema=true and forwards the schema through
// the response_format field. Only standard library packages are used — no
// additional dependencies beyond Go's net/http and encoding/json.
//
// Example usage:
//
//	p, err := llamacpp.New("", "qwen2.5-7b-instruct") // connects to http://127.0.0.1:8080
//	resp, err := p.Complete(ctx, req)
package llamacpp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Maratmain/ai-hr/pkg/provider/llm"
)

// DefaultBaseURL is the default address of a locally running llama-server.
const DefaultBaseURL = "http://127.0.0.1:8080"

// Ensure Provider implements the llm.Provider interface at compile time.
var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider using a local llama.cpp server.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// config holds optional configuration collected from functional options.
type config struct {
	timeout time.Duration
	apiKey  string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithTimeout sets a per-request HTTP timeout on the underlying HTTP client.
// A zero or negative value means no timeout (the default); callers usually
// bound requests with a context deadline instead.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithAPIKey sets the bearer token sent to servers started with --api-key.
func WithAPIKey(key string) Option {
	return func(c *config) {
		c.apiKey = key
	}
}

// New constructs a new llama.cpp Provider.
//
// baseURL is the address of the llama-server instance; empty means
// DefaultBaseURL. A trailing slash is stripped automatically. model is
// advisory — llama-server serves whatever model it was started with — but is
// echoed in requests for log correlation and must not be empty.
func New(baseURL string, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, fmt.Errorf("llamacpp: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	httpClient := &http.Client{}
	if cfg.timeout > 0 {
		httpClient.Timeout = cfg.timeout
	}

	p := &Provider{
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
	}
	if cfg.apiKey != "" {
		p.httpClient.Transport = &authTransport{key: cfg.apiKey, next: http.DefaultTransport}
	}
	return p, nil
}

// authTransport injects the Authorization header on every request.
type authTransport struct {
	key  string
	next http.RoundTripper
}

func (t *authTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+t.key)
	return t.next.RoundTrip(clone)
}

// chatRequest is the JSON request body for POST /v1/chat/completions.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// responseFormat carries the schema llama.cpp compiles into a GBNF grammar.
type responseFormat struct {
	Type   string         `json:"type"`
	Schema map[string]any `json:"schema,omitempty"`
}

// chatResponse is the non-streaming response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// chatStreamChunk is one SSE data payload of a streaming response.
type chatStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	body, err := json.Marshal(p.buildRequest(req, false))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: http: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("llamacpp: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("llamacpp: decode response: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("llamacpp: empty choices in response")
	}

	return &llm.CompletionResponse{
		Content: result.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}, nil
}

// StreamCompletion implements llm.Provider.
func (p *Provider) StreamCompletion(ctx context.Context, req llm.CompletionRequest) (<-chan llm.Chunk, error) {
	body, err := json.Marshal(p.buildRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llamacpp: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llamacpp: http: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("llamacpp: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	ch := make(chan llm.Chunk, 32)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}

			var chunk chatStreamChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]

			select {
			case ch <- llm.Chunk{Text: choice.Delta.Content, FinishReason: choice.FinishReason}:
			case <-ctx.Done():
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			select {
			case ch <- llm.Chunk{FinishReason: "error", Text: err.Error()}:
			case <-ctx.Done():
			}
		}
	}()

	return ch, nil
}

// CountTokens implements llm.Provider.
// llama-server exposes /tokenize, but a local approximation avoids a network
// round trip on the hot path.
func (p *Provider) CountTokens(messages []llm.Message) (int, error) {
	total := 0
	for _, m := range messages {
		// ~4 chars per token is a rough approximation for most models.
		total += (len(m.Content) + 3) / 4
		total += 4
	}
	return total, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return llm.ModelCapabilities{
		// llama-server defaults; the real window depends on the loaded model
		// and the --ctx-size flag.
		ContextWindow:      32_768,
		MaxOutputTokens:    4_096,
		SupportsStreaming:  true,
		SupportsJSONSchema: true,
	}
}

// buildRequest converts a CompletionRequest into the wire shape.
func (p *Provider) buildRequest(req llm.CompletionRequest, stream bool) chatRequest {
	var messages []chatMessage
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	out := chatRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: req.MaxTokens,
		Stream:    stream,
	}
	if req.Temperature != 0 {
		t := req.Temperature
		out.Temperature = &t
	}
	if req.ResponseSchema != nil {
		out.ResponseFormat = &responseFormat{
			Type:   "json_object",
			Schema: req.ResponseSchema,
		}
	}
	return out
}
