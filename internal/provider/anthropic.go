package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultAnthropicBaseURL is the public Anthropic API host.
const DefaultAnthropicBaseURL = "https://api.anthropic.com"

// AnthropicVersion is sent as the anthropic-version header.
const AnthropicVersion = "2023-06-01"

// DefaultAnthropicMaxTokens is used when the request leaves max_tokens unset.
const DefaultAnthropicMaxTokens = 1024

const (
	anthropicMessagesPath = "/v1/messages"
	anthropicModelsPath   = "/v1/models"
)

// Anthropic calls the messages API.
type Anthropic struct {
	http    *http.Client
	baseURL string
}

// NewAnthropic constructs an Anthropic client.
func NewAnthropic(httpClient *http.Client) *Anthropic {
	return &Anthropic{http: httpClient, baseURL: DefaultAnthropicBaseURL}
}

// Endpoint implements Client.
func (c *Anthropic) Endpoint() string { return anthropicMessagesPath }

// Invoke implements Client.
func (c *Anthropic) Invoke(ctx context.Context, req Request) (Response, error) {
	payload, err := buildAnthropicPayload(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(c.base(req.BaseURL), anthropicMessagesPath), bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: build request: %w", err)
	}
	c.authorize(httpReq, req.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	body, err := send(c.http, httpReq, "anthropic")
	if err != nil {
		return Response{}, err
	}
	return Response{
		Text: PrimaryText(body),
		Usage: Usage{
			PromptTokens:     gjson.GetBytes(body, "usage.input_tokens").Int(),
			CompletionTokens: gjson.GetBytes(body, "usage.output_tokens").Int(),
		},
		Raw: body,
	}, nil
}

// TestKey lists models with apiKey.
func (c *Anthropic) TestKey(ctx context.Context, apiKey, baseURL string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(c.base(baseURL), anthropicModelsPath), nil)
	if err != nil {
		return fmt.Errorf("anthropic: build request: %w", err)
	}
	c.authorize(httpReq, apiKey)
	_, err = send(c.http, httpReq, "anthropic")
	return err
}

func (c *Anthropic) authorize(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", AnthropicVersion)
}

func (c *Anthropic) base(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return c.baseURL
}

// buildAnthropicPayload moves the first system message into the system field.
func buildAnthropicPayload(req Request) ([]byte, error) {
	system := ""
	turns := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system == "" {
				system = m.Content
			}
			continue
		}
		turns = append(turns, m)
	}
	maxTokens := DefaultAnthropicMaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}

	payload := []byte(`{}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "model", req.Model); err != nil {
		return nil, fmt.Errorf("anthropic: encode model: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "max_tokens", maxTokens); err != nil {
		return nil, fmt.Errorf("anthropic: encode max_tokens: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "temperature", req.Temperature); err != nil {
		return nil, fmt.Errorf("anthropic: encode temperature: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "messages", turns); err != nil {
		return nil, fmt.Errorf("anthropic: encode messages: %w", err)
	}
	if system != "" {
		if payload, err = sjson.SetBytes(payload, "system", system); err != nil {
			return nil, fmt.Errorf("anthropic: encode system: %w", err)
		}
	}
	return payload, nil
}
