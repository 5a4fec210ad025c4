// Package recorder wraps provider invocations and persists one AI call record per attempt.
package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/strepsil/internal/cost"
	"github.com/router-for-me/strepsil/internal/metrics"
	"github.com/router-for-me/strepsil/internal/models"
	"github.com/router-for-me/strepsil/internal/provider"
	"github.com/router-for-me/strepsil/internal/store"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// DefaultTimeout bounds one provider invocation when none is configured.
const DefaultTimeout = 60 * time.Second

// DefaultTemperature is sent when the request leaves temperature unset.
const DefaultTemperature = 1.0

var (
	// ErrInvalidRequest indicates a chat request missing provider, model or messages.
	ErrInvalidRequest = errors.New("recorder: provider, model, and messages are required")
	// ErrProviderNotConfigured indicates the provider is unknown or has no API key.
	ErrProviderNotConfigured = errors.New("recorder: provider api key not configured")
)

// CallError reports a failed provider invocation whose record was persisted.
type CallError struct {
	CallID string
	Err    error
}

func (e *CallError) Error() string {
	return e.Err.Error()
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Store is the persistence the recorder needs.
type Store interface {
	GetProvider(ctx context.Context, name string) (store.ProviderConfig, error)
	InsertCall(ctx context.Context, call *models.AICall) error
}

// Providers resolves provider clients by name.
type Providers interface {
	Lookup(name string) (provider.Client, error)
	Endpoint(name string) string
}

// ChatRequest is one chat invocation to record.
type ChatRequest struct {
	Provider    string
	Model       string
	Messages    []provider.Message
	Temperature *float64
	MaxTokens   *int
}

// Usage is the token usage reported back to callers.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// Result describes a recorded call.
type Result struct {
	ID        string
	Response  *string
	Usage     Usage
	Cost      decimal.Decimal
	LatencyMS int64
	Provider  string
	Model     string
	Record    models.AICall
}

// Recorder invokes providers and persists the outcome.
type Recorder struct {
	store     Store
	providers Providers
	metrics   *metrics.Metrics
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// New constructs a Recorder. A non-positive timeout uses DefaultTimeout.
func New(s Store, providers Providers, m *metrics.Metrics, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Recorder{
		store:     s,
		providers: providers,
		metrics:   m,
		timeout:   timeout,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     func() string { return uuid.NewString() },
	}
}

// Record invokes the provider for req and persists exactly one record.
// A provider failure is returned as *CallError after the record is stored.
func (r *Recorder) Record(ctx context.Context, req ChatRequest) (Result, error) {
	req.Provider = strings.TrimSpace(req.Provider)
	req.Model = strings.TrimSpace(req.Model)
	if req.Provider == "" || req.Model == "" || len(req.Messages) == 0 {
		return Result{}, ErrInvalidRequest
	}
	temperature := DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	cfg, errProvider := r.store.GetProvider(ctx, req.Provider)
	if errProvider != nil {
		if errors.Is(errProvider, store.ErrNotFound) {
			return Result{}, fmt.Errorf("%w: %s", ErrProviderNotConfigured, req.Provider)
		}
		return Result{}, fmt.Errorf("recorder: load provider: %w", errProvider)
	}
	if !cfg.Configured() {
		return Result{}, fmt.Errorf("%w: %s", ErrProviderNotConfigured, req.Provider)
	}

	callID := r.newID()
	rate := cfg.Pricing[req.Model]
	call := models.AICall{
		ID:              callID,
		Provider:        req.Provider,
		ModelType:       req.Model,
		Endpoint:        r.providers.Endpoint(req.Provider),
		Prompt:          SerializePrompt(req.Messages),
		CostPerTokenIn:  rate.Input,
		CostPerTokenOut: rate.Output,
		CreatedAt:       r.now(),
	}

	resp, latency, errInvoke := r.invoke(ctx, cfg, req, temperature)
	call.LatencyMS = latency.Milliseconds()
	total := decimal.Zero
	if errInvoke == nil {
		breakdown, errCost := cost.ForModel(cfg.Pricing, req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		if errCost != nil {
			errInvoke = fmt.Errorf("recorder: price usage: %w", errCost)
		} else {
			total = breakdown.Total
		}
	}

	if errInvoke == nil {
		call.Status = models.AICallStatusSuccess
		call.Response = resp.Text
		call.TokensIn = resp.Usage.PromptTokens
		call.TokensOut = resp.Usage.CompletionTokens
		call.TotalCost = total.InexactFloat64()
	} else {
		msg := errInvoke.Error()
		call.Status = models.AICallStatusFailure
		call.ErrorMessage = &msg
		total = decimal.Zero
	}
	call.Metadata = buildMetadata(temperature, req.MaxTokens, resp.Raw)

	// Persist even when the caller has cancelled.
	if errInsert := r.store.InsertCall(context.WithoutCancel(ctx), &call); errInsert != nil {
		return Result{}, fmt.Errorf("recorder: persist call: %w", errInsert)
	}
	r.metrics.ObserveCall(call.Provider, call.ModelType, string(call.Status), call.TotalCost, latency)

	if errInvoke != nil {
		log.WithError(errInvoke).WithFields(log.Fields{
			"provider": call.Provider,
			"model":    call.ModelType,
			"call_id":  callID,
		}).Warn("recorder: provider call failed")
		return Result{ID: callID, Provider: call.Provider, Model: call.ModelType, LatencyMS: call.LatencyMS, Record: call},
			&CallError{CallID: callID, Err: errInvoke}
	}

	return Result{
		ID:       callID,
		Response: call.Response,
		Usage: Usage{
			PromptTokens:     call.TokensIn,
			CompletionTokens: call.TokensOut,
			TotalTokens:      call.TotalTokens(),
		},
		Cost:      total,
		LatencyMS: call.LatencyMS,
		Provider:  call.Provider,
		Model:     call.ModelType,
		Record:    call,
	}, nil
}

// invoke times the provider round trip only.
func (r *Recorder) invoke(ctx context.Context, cfg store.ProviderConfig, req ChatRequest, temperature float64) (provider.Response, time.Duration, error) {
	client, err := r.providers.Lookup(req.Provider)
	if err != nil {
		return provider.Response{}, 0, err
	}
	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	resp, err := client.Invoke(callCtx, provider.Request{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: temperature,
		MaxTokens:   req.MaxTokens,
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
	})
	latency := time.Since(start)
	if err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("provider call timed out after %s: %w", r.timeout, err)
	}
	return resp, latency, err
}

// SerializePrompt renders messages as "role: content" lines in input order.
func SerializePrompt(messages []provider.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		lines = append(lines, m.Role+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

func buildMetadata(temperature float64, maxTokens *int, raw json.RawMessage) datatypes.JSON {
	meta := map[string]any{
		"temperature":  temperature,
		"max_tokens":   maxTokens,
		"raw_response": nil,
	}
	if len(raw) > 0 && json.Valid(raw) {
		meta["raw_response"] = raw
	}
	encoded, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return datatypes.JSON(encoded)
}
