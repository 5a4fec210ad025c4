package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/modelreference"
	"github.com/router-for-me/strepsil/internal/models"
	"github.com/router-for-me/strepsil/internal/provider"
	"github.com/router-for-me/strepsil/internal/store"
	log "github.com/sirupsen/logrus"
)

// ProviderHandler manages provider credentials, models and pricing.
type ProviderHandler struct {
	store    *store.Store
	registry *provider.Registry
}

// NewProviderHandler constructs a provider handler.
func NewProviderHandler(s *store.Store, registry *provider.Registry) *ProviderHandler {
	return &ProviderHandler{store: s, registry: registry}
}

// updateProviderRequest captures a partial provider update.
// api_key is raw so that an explicit null clears the stored key.
type updateProviderRequest struct {
	APIKey  json.RawMessage              `json:"api_key"`
	BaseURL *string                      `json:"base_url"`
	Active  *bool                        `json:"active"`
	Models  *[]models.ModelDescriptor    `json:"models"`
	Pricing *map[string]models.ModelRate `json:"pricing"`
}

// testProviderRequest optionally carries a key to test instead of the stored one.
type testProviderRequest struct {
	APIKey string `json:"api_key"`
}

// List returns all providers without their API keys.
func (h *ProviderHandler) List(c *gin.Context) {
	rows, errList := h.store.ListProviders(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Error("providers: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch providers"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatProvider(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"providers": out})
}

// Get returns one provider without its API key.
func (h *ProviderHandler) Get(c *gin.Context) {
	cfg, ok := h.load(c, "Failed to fetch provider")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"provider": formatProvider(&cfg)})
}

// Update applies a partial update to a provider.
func (h *ProviderHandler) Update(c *gin.Context) {
	var body updateProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	update := store.ProviderUpdate{
		BaseURL: body.BaseURL,
		Active:  body.Active,
		Models:  body.Models,
		Pricing: body.Pricing,
	}
	if len(body.APIKey) > 0 {
		key := ""
		if string(body.APIKey) != "null" {
			if errKey := json.Unmarshal(body.APIKey, &key); errKey != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "api_key must be a string"})
				return
			}
		}
		update.APIKey = &key
	}

	cfg, errUpdate := h.store.UpdateProvider(c.Request.Context(), c.Param("name"), update)
	if errUpdate != nil {
		switch {
		case errors.Is(errUpdate, store.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
		case errors.Is(errUpdate, store.ErrInvalidPricing):
			c.JSON(http.StatusBadRequest, gin.H{"error": errUpdate.Error()})
		default:
			log.WithError(errUpdate).Error("providers: update failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update provider"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Provider updated successfully",
		"provider": formatProvider(&cfg),
	})
}

// Test checks an API key against the provider. The body key wins over the stored key.
func (h *ProviderHandler) Test(c *gin.Context) {
	var body testProviderRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil && !errors.Is(errBind, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	cfg, ok := h.load(c, "Failed to test provider")
	if !ok {
		return
	}
	key := strings.TrimSpace(body.APIKey)
	if key == "" {
		key = cfg.APIKey
	}
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No API key provided"})
		return
	}

	if errTest := h.registry.TestKey(c.Request.Context(), cfg.Name, key, cfg.BaseURL); errTest != nil {
		log.WithError(errTest).WithField("provider", cfg.Name).Info("providers: key test failed")
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "API key test failed",
			"error":   errTest.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "API key is valid",
		"error":   nil,
	})
}

// Models returns the provider's model list and pricing.
func (h *ProviderHandler) Models(c *gin.Context) {
	cfg, ok := h.load(c, "Failed to fetch provider models")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": cfg.Models, "pricing": cfg.Pricing})
}

// SuggestedPricing proposes per-token rates from synced price references.
// Nothing is saved.
func (h *ProviderHandler) SuggestedPricing(c *gin.Context) {
	cfg, ok := h.load(c, "Failed to suggest pricing")
	if !ok {
		return
	}
	names := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		names = append(names, m.Name)
	}
	pricing, errSuggest := modelreference.Suggest(c.Request.Context(), h.store.DB(), cfg.Name, names)
	if errSuggest != nil {
		log.WithError(errSuggest).Error("providers: suggest pricing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to suggest pricing"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"pricing": pricing})
}

func (h *ProviderHandler) load(c *gin.Context, failure string) (store.ProviderConfig, bool) {
	cfg, errGet := h.store.GetProvider(c.Request.Context(), c.Param("name"))
	if errGet != nil {
		if errors.Is(errGet, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Provider not found"})
			return store.ProviderConfig{}, false
		}
		log.WithError(errGet).Error("providers: load failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": failure})
		return store.ProviderConfig{}, false
	}
	return cfg, true
}

// formatProvider renders a provider with its key replaced by a configured flag.
func formatProvider(cfg *store.ProviderConfig) gin.H {
	return gin.H{
		"name":       cfg.Name,
		"base_url":   cfg.BaseURL,
		"active":     cfg.Active,
		"models":     cfg.Models,
		"pricing":    cfg.Pricing,
		"configured": cfg.Configured(),
		"created_at": cfg.CreatedAt,
		"updated_at": cfg.UpdatedAt,
	}
}
