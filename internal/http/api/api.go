// Package api wires the HTTP handlers under /api.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/router-for-me/strepsil/internal/config"
	"github.com/router-for-me/strepsil/internal/db"
	"github.com/router-for-me/strepsil/internal/http/api/handlers"
	"github.com/router-for-me/strepsil/internal/metrics"
	"github.com/router-for-me/strepsil/internal/provider"
	"github.com/router-for-me/strepsil/internal/ratelimit"
	"github.com/router-for-me/strepsil/internal/recorder"
	"github.com/router-for-me/strepsil/internal/security"
	internalsettings "github.com/router-for-me/strepsil/internal/settings"
	"github.com/router-for-me/strepsil/internal/store"
	log "github.com/sirupsen/logrus"
)

// Deps carries the components the routes are built from.
type Deps struct {
	Store     *store.Store
	Snapshot  *internalsettings.Snapshot
	Recorder  *recorder.Recorder
	Providers *provider.Registry
	Limiter   *ratelimit.Manager  // Optional.
	Gatherer  prometheus.Gatherer // Optional; /metrics is skipped when nil.
	JWT       config.JWTConfig    // Empty secret disables the bearer guard.
	DBInfo    db.Info
	Version   string
}

// RegisterRoutes registers every /api route plus /metrics.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}

	public := r.Group("/api")
	systemHandler := handlers.NewSystemHandler(deps.Store, deps.DBInfo, deps.Version)
	public.GET("/health", systemHandler.Health)
	public.GET("/setup/status", systemHandler.SetupStatus)

	authed := r.Group("/api")
	if strings.TrimSpace(deps.JWT.Secret) != "" {
		authed.Use(bearerAuthMiddleware(deps.JWT))
	}

	aiCallHandler := handlers.NewAICallHandler(deps.Store)
	authed.GET("/ai-calls", aiCallHandler.List)
	authed.POST("/ai-calls", aiCallHandler.Create)
	authed.GET("/ai-calls/analytics/summary", aiCallHandler.AnalyticsSummary)
	authed.POST("/ai-calls/bulk/delete", aiCallHandler.BulkDelete)
	authed.GET("/ai-calls/:id", aiCallHandler.Get)
	authed.PATCH("/ai-calls/:id/status", aiCallHandler.UpdateStatus)
	authed.DELETE("/ai-calls/:id", aiCallHandler.Delete)

	reportHandler := handlers.NewReportHandler(deps.Store)
	authed.GET("/reports/billing", reportHandler.Billing)
	authed.GET("/reports/cost-breakdown", reportHandler.CostBreakdown)
	authed.GET("/reports/trends", reportHandler.Trends)

	chatHandler := handlers.NewChatHandler(deps.Store, deps.Recorder, deps.Limiter)
	authed.POST("/chat", chatHandler.Send)
	authed.GET("/chat/models/:provider", chatHandler.Models)

	providerHandler := handlers.NewProviderHandler(deps.Store, deps.Providers)
	authed.GET("/providers", providerHandler.List)
	authed.GET("/providers/:name", providerHandler.Get)
	authed.PUT("/providers/:name", providerHandler.Update)
	authed.POST("/providers/:name/test", providerHandler.Test)
	authed.GET("/providers/:name/models", providerHandler.Models)
	authed.GET("/providers/:name/pricing/suggested", providerHandler.SuggestedPricing)

	modelReferenceHandler := handlers.NewModelReferenceHandler(deps.Store.DB())
	authed.GET("/model-references", modelReferenceHandler.List)

	settingHandler := handlers.NewSettingHandler(deps.Store, deps.Snapshot)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/app/info", settingHandler.AppInfo)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.POST("/settings/complete-setup", settingHandler.CompleteSetup)
	authed.POST("/settings/reset", settingHandler.Reset)
}

// RequestLogger logs one line per request through logrus.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			entry.Error("request")
		case status >= http.StatusBadRequest:
			entry.Warn("request")
		default:
			entry.Debug("request")
		}
	}
}

// bearerAuthMiddleware requires a valid HS256 bearer token.
func bearerAuthMiddleware(jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("subject", claims.Subject)
		c.Next()
	}
}
