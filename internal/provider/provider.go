// Package provider calls upstream AI chat APIs and normalizes their usage reports.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"
)

// DefaultEndpoint is recorded for providers without a registered client.
const DefaultEndpoint = "/chat"

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 8 << 20

// ErrUnsupported is returned when no client is registered for a provider name.
var ErrUnsupported = errors.New("provider: not supported")

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral chat invocation.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   *int
	APIKey      string
	BaseURL     string // Overrides the client's default host when set.
}

// Usage is the normalized token usage of one invocation.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Response is the normalized result of one invocation.
type Response struct {
	Text  *string         // Primary text, nil when the provider returned none.
	Usage Usage           // Normalized usage.
	Raw   json.RawMessage // Provider response body.
}

// Client invokes one provider's chat API.
type Client interface {
	// Endpoint returns the upstream path recorded for calls.
	Endpoint() string
	// Invoke sends req and returns the normalized response.
	Invoke(ctx context.Context, req Request) (Response, error)
	// TestKey verifies that apiKey is accepted upstream.
	TestKey(ctx context.Context, apiKey, baseURL string) error
}

// Registry resolves provider names to clients. Lookups ignore case.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewRegistry returns a registry with the OpenAI and Anthropic clients installed.
func NewRegistry(httpClient *http.Client) *Registry {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	r := &Registry{clients: make(map[string]Client)}
	r.Register("OpenAI", NewOpenAI(httpClient))
	r.Register("Anthropic", NewAnthropic(httpClient))
	return r
}

// Register installs c under name, replacing any previous client.
func (r *Registry) Register(name string, c Client) {
	if r == nil || c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[registryKey(name)] = c
}

// Lookup returns the client for name.
func (r *Registry) Lookup(name string) (Client, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[registryKey(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	return c, nil
}

// Endpoint returns the recorded endpoint path for name.
func (r *Registry) Endpoint(name string) string {
	c, err := r.Lookup(name)
	if err != nil {
		return DefaultEndpoint
	}
	return c.Endpoint()
}

// TestKey checks apiKey against the named provider.
// Providers without a client only require a non-empty key.
func (r *Registry) TestKey(ctx context.Context, name, apiKey, baseURL string) error {
	if strings.TrimSpace(apiKey) == "" {
		return errors.New("provider: api key is empty")
	}
	c, err := r.Lookup(name)
	if err != nil {
		return nil
	}
	return c.TestKey(ctx, apiKey, baseURL)
}

func registryKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// PrimaryText returns the first text part of a chat response body.
func PrimaryText(body []byte) *string {
	for _, path := range []string{"choices.0.message.content", "content.0.text"} {
		if v := gjson.GetBytes(body, path); v.Exists() && v.Type == gjson.String {
			text := v.String()
			return &text
		}
	}
	return nil
}

// send executes req and returns the body of a 2xx response.
func send(client *http.Client, req *http.Request, label string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: send request: %w", label, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", label, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &StatusError{Provider: label, StatusCode: resp.StatusCode, Message: upstreamMessage(body)}
	}
	return body, nil
}

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: request failed with status code %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Message, e.StatusCode)
}

// maxUpstreamMessage caps, in bytes, the raw body kept as an error message.
const maxUpstreamMessage = 512

func upstreamMessage(body []byte) string {
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return strings.TrimSpace(msg.String())
	}
	trimmed := strings.TrimSpace(string(body))
	if len(trimmed) <= maxUpstreamMessage {
		return trimmed
	}
	cut := maxUpstreamMessage
	for cut > 0 && !utf8.RuneStart(trimmed[cut]) {
		cut--
	}
	return trimmed[:cut]
}

func joinURL(base, path string) string {
	return strings.TrimRight(strings.TrimSpace(base), "/") + path
}
