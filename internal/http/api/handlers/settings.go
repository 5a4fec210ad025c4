package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/analytics"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
	"github.com/router-for-me/strepsil/internal/store"
	log "github.com/sirupsen/logrus"
)

// SettingHandler manages application settings and the setup lifecycle.
type SettingHandler struct {
	store    *store.Store               // Settings persistence.
	snapshot *internalsettings.Snapshot // Refreshed after every write.
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(s *store.Store, snapshot *internalsettings.Snapshot) *SettingHandler {
	return &SettingHandler{store: s, snapshot: snapshot}
}

// updateSettingRequest captures a setting write.
type updateSettingRequest struct {
	Value     json.RawMessage `json:"value"`     // Any JSON scalar.
	Encrypted bool            `json:"encrypted"` // Store the value sealed.
}

// List returns every setting with encrypted values opened.
func (h *SettingHandler) List(c *gin.Context) {
	values, errList := h.store.ListSettings(c.Request.Context())
	if errList != nil {
		log.WithError(errList).Error("settings: list failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch settings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": values})
}

// Get returns one setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	value, errGet := h.store.GetSetting(c.Request.Context(), key)
	if errGet != nil {
		if errors.Is(errGet, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
			return
		}
		log.WithError(errGet).Error("settings: get failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch setting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// Update upserts a setting. Non-string values are stored in their JSON text form.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key"})
		return
	}
	var body updateSettingRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	value, ok := settingText(body.Value)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Value is required"})
		return
	}

	ctx := c.Request.Context()
	if errSet := h.store.SetSetting(ctx, key, value, body.Encrypted); errSet != nil {
		log.WithError(errSet).WithField("key", key).Error("settings: update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update setting"})
		return
	}
	if errRefresh := h.refreshSnapshot(ctx); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Setting updated successfully"})
}

// CompleteSetup marks the setup wizard as finished.
func (h *SettingHandler) CompleteSetup(c *gin.Context) {
	ctx := c.Request.Context()
	if errSet := h.store.SetSetting(ctx, internalsettings.SetupCompletedKey, "true", false); errSet != nil {
		log.WithError(errSet).Error("settings: complete setup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete setup"})
		return
	}
	if errRefresh := h.refreshSnapshot(ctx); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Setup completed successfully"})
}

// Reset reopens setup and clears every provider key.
func (h *SettingHandler) Reset(c *gin.Context) {
	ctx := c.Request.Context()
	if errSet := h.store.SetSetting(ctx, internalsettings.SetupCompletedKey, "false", false); errSet != nil {
		log.WithError(errSet).Error("settings: reset failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset settings"})
		return
	}
	if errReset := h.store.ResetProviders(ctx); errReset != nil {
		log.WithError(errReset).Error("settings: reset providers failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset settings"})
		return
	}
	if errRefresh := h.refreshSnapshot(ctx); errRefresh != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "refresh settings snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Settings reset successfully"})
}

// AppInfo returns the app name, version, setup flag and all-time usage totals.
func (h *SettingHandler) AppInfo(c *gin.Context) {
	ctx := c.Request.Context()
	name := h.settingOr(ctx, internalsettings.AppNameKey, internalsettings.DefaultAppName)
	version := h.settingOr(ctx, internalsettings.AppVersionKey, internalsettings.DefaultAppVersion)
	setupCompleted := h.settingOr(ctx, internalsettings.SetupCompletedKey, "false") == "true"

	records, errQuery := h.store.QueryCalls(ctx, store.CallFilter{}, store.MaxReportRecords, 0)
	if errQuery != nil {
		log.WithError(errQuery).Error("settings: app info stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch app info"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"app": gin.H{
			"name":           name,
			"version":        version,
			"setupCompleted": setupCompleted,
		},
		"stats": formatSummary(analytics.Summarize(records)),
	})
}

func (h *SettingHandler) settingOr(ctx context.Context, key, fallback string) string {
	value, errGet := h.store.GetSetting(ctx, key)
	if errGet != nil {
		if !errors.Is(errGet, store.ErrNotFound) {
			log.WithError(errGet).WithField("key", key).Warn("settings: read failed, using default")
		}
		return fallback
	}
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func (h *SettingHandler) refreshSnapshot(ctx context.Context) error {
	if errRefresh := h.store.RefreshSnapshot(ctx, h.snapshot); errRefresh != nil {
		log.WithError(errRefresh).Error("settings: refresh snapshot failed")
		return errRefresh
	}
	return nil
}

// settingText converts a JSON value to its stored text. Missing and null values are rejected.
func settingText(raw json.RawMessage) (string, bool) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return "", false
	}
	var s string
	if errString := json.Unmarshal(raw, &s); errString == nil {
		return s, true
	}
	return trimmed, true
}
