package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/strepsil/internal/db"
	"github.com/router-for-me/strepsil/internal/store"
	log "github.com/sirupsen/logrus"
)

// serviceName identifies this API in health responses.
const serviceName = "strepsil-api"

// SystemHandler serves health and setup status.
type SystemHandler struct {
	store   *store.Store
	dbInfo  db.Info
	version string
	now     func() time.Time
}

// NewSystemHandler constructs a system handler.
func NewSystemHandler(s *store.Store, dbInfo db.Info, version string) *SystemHandler {
	return &SystemHandler{
		store:   s,
		dbInfo:  dbInfo,
		version: version,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Health reports liveness and database reachability.
func (h *SystemHandler) Health(c *gin.Context) {
	database := "connected"
	if sqlDB, errDB := h.store.DB().DB(); errDB != nil {
		database = "disconnected"
	} else if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		log.WithError(errPing).Warn("health: database ping failed")
		database = "disconnected"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"timestamp":     h.now().Format(time.RFC3339Nano),
		"service":       serviceName,
		"version":       h.version,
		"database":      database,
		"database_info": h.dbInfo,
	})
}

// SetupStatus reports whether setup finished and which providers are usable.
func (h *SystemHandler) SetupStatus(c *gin.Context) {
	ctx := c.Request.Context()
	completed, errCompleted := h.store.SetupCompleted(ctx)
	if errCompleted != nil {
		log.WithError(errCompleted).Error("setup: read status failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup status"})
		return
	}
	providers, errList := h.store.ListProviders(ctx)
	if errList != nil {
		log.WithError(errList).Error("setup: list providers failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check setup status"})
		return
	}

	configured := 0
	out := make([]gin.H, 0, len(providers))
	for i := range providers {
		p := &providers[i]
		if p.Active && p.Configured() {
			configured++
		}
		out = append(out, gin.H{
			"name":       p.Name,
			"active":     p.Active,
			"configured": p.Configured(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"setupCompleted":      completed,
		"providersConfigured": configured,
		"providers":           out,
	})
}
