package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/provider"
	"github.com/router-for-me/strepsil/internal/ratelimit"
	"github.com/router-for-me/strepsil/internal/recorder"
	"github.com/router-for-me/strepsil/internal/store"
	log "github.com/sirupsen/logrus"
)

// ChatHandler proxies chat requests to providers and records each call.
type ChatHandler struct {
	store    *store.Store
	recorder *recorder.Recorder
	limiter  *ratelimit.Manager // Optional per-provider throttle.
}

// NewChatHandler constructs a chat handler. limiter may be nil.
func NewChatHandler(s *store.Store, rec *recorder.Recorder, limiter *ratelimit.Manager) *ChatHandler {
	return &ChatHandler{store: s, recorder: rec, limiter: limiter}
}

// chatRequest is the chat payload.
type chatRequest struct {
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Messages    []provider.Message `json:"messages"`
	Temperature *float64           `json:"temperature"`
	MaxTokens   *int               `json:"max_tokens"`
}

// Send invokes the provider, records the call and returns the response.
func (h *ChatHandler) Send(c *gin.Context) {
	var body chatRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	body.Provider = strings.TrimSpace(body.Provider)
	body.Model = strings.TrimSpace(body.Model)
	if body.Provider == "" || body.Model == "" || len(body.Messages) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Provider, model, and messages are required"})
		return
	}

	ctx := c.Request.Context()
	decision, result, errLimit := h.limiter.AllowProvider(ctx, body.Provider)
	if errLimit != nil {
		log.WithError(errLimit).WithField("provider", body.Provider).Warn("chat: rate limit check failed")
	} else if !result.Allowed {
		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(result.Reset)))
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
		return
	}

	res, errRecord := h.recorder.Record(ctx, recorder.ChatRequest{
		Provider:    body.Provider,
		Model:       body.Model,
		Messages:    body.Messages,
		Temperature: body.Temperature,
		MaxTokens:   body.MaxTokens,
	})
	if errRecord != nil {
		var callErr *recorder.CallError
		switch {
		case errors.Is(errRecord, recorder.ErrInvalidRequest):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Provider, model, and messages are required"})
		case errors.Is(errRecord, recorder.ErrProviderNotConfigured):
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("%s API key not configured", body.Provider)})
		case errors.As(errRecord, &callErr):
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "AI API call failed",
				"message": callErr.Err.Error(),
				"callId":  callErr.CallID,
			})
		default:
			log.WithError(errRecord).Error("chat: request failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process chat request"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         res.ID,
		"response":   res.Response,
		"usage":      res.Usage,
		"cost":       res.Cost.InexactFloat64(),
		"latency_ms": res.LatencyMS,
		"provider":   res.Provider,
		"model":      res.Model,
	})
}

// Models lists the configured models and pricing of a provider.
func (h *ChatHandler) Models(c *gin.Context) {
	cfg, errGet := h.store.GetProvider(c.Request.Context(), c.Param("provider"))
	if errGet != nil {
		if errors.Is(errGet, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
			return
		}
		log.WithError(errGet).Error("chat: load models failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch models"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": cfg.Models, "pricing": cfg.Pricing})
}

func retryAfterSeconds(reset time.Time) int {
	if reset.IsZero() {
		return 1
	}
	secs := int(time.Until(reset).Seconds() + 0.999)
	if secs < 1 {
		return 1
	}
	return secs
}
