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

// DefaultOpenAIBaseURL is the public OpenAI API host.
const DefaultOpenAIBaseURL = "https://api.openai.com"

const (
	openAIChatPath   = "/v1/chat/completions"
	openAIModelsPath = "/v1/models"
)

// OpenAI calls the chat completions API.
type OpenAI struct {
	http    *http.Client
	baseURL string
}

// NewOpenAI constructs an OpenAI client.
func NewOpenAI(httpClient *http.Client) *OpenAI {
	return &OpenAI{http: httpClient, baseURL: DefaultOpenAIBaseURL}
}

// Endpoint implements Client.
func (c *OpenAI) Endpoint() string { return openAIChatPath }

// Invoke implements Client.
func (c *OpenAI) Invoke(ctx context.Context, req Request) (Response, error) {
	payload, err := buildOpenAIPayload(req)
	if err != nil {
		return Response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(c.base(req.BaseURL), openAIChatPath), bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	body, err := send(c.http, httpReq, "openai")
	if err != nil {
		return Response{}, err
	}
	return Response{
		Text: PrimaryText(body),
		Usage: Usage{
			PromptTokens:     gjson.GetBytes(body, "usage.prompt_tokens").Int(),
			CompletionTokens: gjson.GetBytes(body, "usage.completion_tokens").Int(),
		},
		Raw: body,
	}, nil
}

// TestKey lists models with apiKey.
func (c *OpenAI) TestKey(ctx context.Context, apiKey, baseURL string) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, joinURL(c.base(baseURL), openAIModelsPath), nil)
	if err != nil {
		return fmt.Errorf("openai: build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	_, err = send(c.http, httpReq, "openai")
	return err
}

func (c *OpenAI) base(override string) string {
	if strings.TrimSpace(override) != "" {
		return override
	}
	return c.baseURL
}

func buildOpenAIPayload(req Request) ([]byte, error) {
	payload := []byte(`{}`)
	var err error
	if payload, err = sjson.SetBytes(payload, "model", req.Model); err != nil {
		return nil, fmt.Errorf("openai: encode model: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "messages", req.Messages); err != nil {
		return nil, fmt.Errorf("openai: encode messages: %w", err)
	}
	if payload, err = sjson.SetBytes(payload, "temperature", req.Temperature); err != nil {
		return nil, fmt.Errorf("openai: encode temperature: %w", err)
	}
	if req.MaxTokens != nil {
		if payload, err = sjson.SetBytes(payload, "max_tokens", *req.MaxTokens); err != nil {
			return nil, fmt.Errorf("openai: encode max_tokens: %w", err)
		}
	}
	return payload, nil
}
